//go:build windows

package clip

// #cgo LDFLAGS: -luser32
//
// #include <windows.h>
// #include <stdlib.h>
//
// static LRESULT CALLBACK clipmind_wnd_proc(HWND hwnd, UINT msg, WPARAM wp, LPARAM lp) {
//     if (msg == WM_CLIPBOARDUPDATE) {
//         PostMessage(hwnd, WM_USER + 1, 0, 0);
//         return 0;
//     }
//     return DefWindowProc(hwnd, msg, wp, lp);
// }
//
// static HWND clipmind_create_listener_window() {
//     WNDCLASS wc = {0};
//     wc.lpfnWndProc   = clipmind_wnd_proc;
//     wc.hInstance     = GetModuleHandle(NULL);
//     wc.lpszClassName = "ClipmindListener";
//     RegisterClass(&wc);
//     HWND hwnd = CreateWindowEx(0, "ClipmindListener", NULL, 0,
//         0, 0, 0, 0, HWND_MESSAGE, NULL, GetModuleHandle(NULL), NULL);
//     AddClipboardFormatListener(hwnd);
//     return hwnd;
// }
//
// static int clipmind_drain(HWND hwnd) {
//     MSG msg;
//     int changed = 0;
//     while (PeekMessage(&msg, hwnd, 0, 0, PM_REMOVE)) {
//         if (msg.message == WM_USER + 1) { changed = 1; }
//         TranslateMessage(&msg);
//         DispatchMessage(&msg);
//     }
//     return changed;
// }
//
// static void clipmind_destroy(HWND hwnd) {
//     RemoveClipboardFormatListener(hwnd);
//     DestroyWindow(hwnd);
// }
import "C"

import (
	"log/slog"
	"runtime"
	"time"

	"golang.design/x/clipboard"
)

const pumpInterval = 50 * time.Millisecond

// windowsBackend owns a message-only window registered for
// WM_CLIPBOARDUPDATE. Window messages are delivered to the creating
// thread, so the pump goroutine creates the window and stays locked to
// its OS thread.
type windowsBackend struct {
	watchCh chan struct{}
	done    chan struct{}
}

// New returns the Windows clipboard backend using AddClipboardFormatListener.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewMemory()
	}
	b := &windowsBackend{
		watchCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go b.pump()
	return b
}

func (b *windowsBackend) Name() string { return "Windows clipboard" }

func (b *windowsBackend) pump() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hwnd := C.clipmind_create_listener_window()
	defer C.clipmind_destroy(hwnd)

	t := time.NewTicker(pumpInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			if C.clipmind_drain(hwnd) != 0 {
				notify(b.watchCh)
			}
		}
	}
}

func (b *windowsBackend) Read() (Contents, error) { return readSystem(), nil }
func (b *windowsBackend) Write(c Contents) error  { return writeSystem(c) }
func (b *windowsBackend) Watch() <-chan struct{}  { return b.watchCh }
func (b *windowsBackend) Close()                  { close(b.done) }
