//go:build !windows

package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
)

func defaultSocketPath() string {
	// Linux: prefer XDG_RUNTIME_DIR
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "clipmind.sock")
	}
	// macOS / fallback
	return filepath.Join(os.TempDir(), "clipmind.sock")
}

func listenIPC(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, &net.OpError{Op: "listen", Net: "unix", Addr: &net.UnixAddr{Name: path, Net: "unix"}, Err: os.ErrExist}
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(path, 0o600)
	return ln, nil
}

func dialIPC(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}
