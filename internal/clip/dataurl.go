package clip

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// PNGDataURLPrefix prefixes every image value the poller captures.
const PNGDataURLPrefix = "data:image/png;base64,"

var ErrNotDataURL = errors.New("clip: not a base64 image data URL")

// EncodeImage renders PNG bytes as a data URL.
func EncodeImage(png []byte) string {
	return PNGDataURLPrefix + base64.StdEncoding.EncodeToString(png)
}

// DecodeImage extracts the image bytes from a "data:image/...;base64," URL.
func DecodeImage(dataURL string) ([]byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:image/")
	if !ok {
		return nil, ErrNotDataURL
	}
	_, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return nil, ErrNotDataURL
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotDataURL, err)
	}
	if len(b) == 0 {
		return nil, ErrNotDataURL
	}
	return b, nil
}
