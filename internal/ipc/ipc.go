// Package ipc provides the local socket used by CLI sub-commands and
// observer windows to reach a running clipmind daemon.
//
// The daemon multiplexes gRPC, HTTP and the NDJSON observer protocol on the
// socket, the same as on its TCP port. On Unix it is a domain socket; on
// Windows a named pipe.
package ipc

import (
	"context"
	"net"
	"os"
	"time"
)

// EnvSocket overrides the default socket path.
const EnvSocket = "CLIPMIND_SOCKET"

// SocketPath returns path if set, then $CLIPMIND_SOCKET, then the platform
// default:
//
//   - Linux:   $XDG_RUNTIME_DIR/clipmind.sock, else $TMPDIR/clipmind.sock
//   - macOS:   $TMPDIR/clipmind.sock
//   - Windows: \\.\pipe\clipmind
func SocketPath(path string) string {
	if path != "" {
		return path
	}
	if s := os.Getenv(EnvSocket); s != "" {
		return s
	}
	return defaultSocketPath()
}

// Listen creates a listener on path, removing any stale socket left by a
// crashed daemon first.
func Listen(path string) (net.Listener, error) {
	return listenIPC(path)
}

// Dial connects to the daemon socket at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	return dialIPC(ctx, path)
}

// IsRunning reports whether a daemon appears to be listening on path. It
// does a cheap dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	c, err := dialIPC(ctx, path)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}
