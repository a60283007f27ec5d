// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   macOS via golang.design/x/clipboard + cgo changeCount
//	clip_windows.go  Windows via golang.design/x/clipboard + AddClipboardFormatListener
//	clip_linux.go    Linux via golang.design/x/clipboard, no change signal
//	clip_other.go    everything else, in-memory only
package clip

import "errors"

var ErrNothingToWrite = errors.New("clip: nothing to write")

// Contents is what the clipboard currently holds. Image is PNG-encoded.
// Either field may be empty.
type Contents struct {
	Text  string
	Image []byte
}

func (c Contents) Empty() bool { return c.Text == "" && len(c.Image) == 0 }

// Backend is the interface that all clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the current clipboard contents.
	Read() (Contents, error)

	// Write replaces the clipboard contents. Text wins if both are set.
	Write(c Contents) error

	// Watch returns a channel that receives a signal whenever the platform
	// reports a clipboard change. The channel is never closed and may never
	// fire; callers must still poll.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
