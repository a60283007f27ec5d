//go:build darwin

package clip

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa
// #import <Cocoa/Cocoa.h>
//
// NSInteger clipmind_changeCount() {
//     return [[NSPasteboard generalPasteboard] changeCount];
// }
import "C"

import (
	"log/slog"
	"time"

	"golang.design/x/clipboard"
)

const changeCountInterval = 100 * time.Millisecond

// darwinBackend signals Watch when NSPasteboard's changeCount moves, which
// is far cheaper than reading the contents.
type darwinBackend struct {
	lastChange C.NSInteger
	watchCh    chan struct{}
	done       chan struct{}
}

// New returns the macOS clipboard backend, falling back to an in-memory
// clipboard when the pasteboard cannot be initialised.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewMemory()
	}
	b := &darwinBackend{
		lastChange: C.clipmind_changeCount(),
		watchCh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go b.watchChangeCount()
	return b
}

func (b *darwinBackend) Name() string { return "macOS NSPasteboard" }

func (b *darwinBackend) watchChangeCount() {
	t := time.NewTicker(changeCountInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			if cc := C.clipmind_changeCount(); cc != b.lastChange {
				b.lastChange = cc
				notify(b.watchCh)
			}
		}
	}
}

func (b *darwinBackend) Read() (Contents, error) { return readSystem(), nil }
func (b *darwinBackend) Write(c Contents) error  { return writeSystem(c) }
func (b *darwinBackend) Watch() <-chan struct{}  { return b.watchCh }
func (b *darwinBackend) Close()                  { close(b.done) }
