//go:build darwin || windows || linux

package clip

import "golang.design/x/clipboard"

func readSystem() Contents {
	return Contents{
		Text:  string(clipboard.Read(clipboard.FmtText)),
		Image: clipboard.Read(clipboard.FmtImage),
	}
}

func writeSystem(c Contents) error {
	switch {
	case c.Text != "":
		clipboard.Write(clipboard.FmtText, []byte(c.Text))
	case len(c.Image) > 0:
		clipboard.Write(clipboard.FmtImage, c.Image)
	default:
		return ErrNothingToWrite
	}
	return nil
}
