//go:build linux

package clip

import (
	"log/slog"

	"golang.design/x/clipboard"
)

// linuxBackend has no native change notification on X11/Wayland; the
// poller's own ticker drives reads.
type linuxBackend struct {
	watchCh chan struct{}
}

// New returns the Linux clipboard backend, or an in-memory backend if the
// display environment is unavailable (e.g. a headless server without X11
// or Wayland). clipboard.Init is called here rather than in init() so that
// CLI sub-commands don't trigger the warning.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewMemory()
	}
	return &linuxBackend{watchCh: make(chan struct{})}
}

func (b *linuxBackend) Name() string            { return "Linux clipboard (poll)" }
func (b *linuxBackend) Read() (Contents, error) { return readSystem(), nil }
func (b *linuxBackend) Write(c Contents) error  { return writeSystem(c) }
func (b *linuxBackend) Watch() <-chan struct{}  { return b.watchCh }
func (b *linuxBackend) Close()                  {}
