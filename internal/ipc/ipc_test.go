//go:build !windows

package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortSocket(t *testing.T) string {
	t.Helper()
	// Unix socket paths are limited to ~104 bytes; t.TempDir can exceed that.
	dir, err := os.MkdirTemp("", "cm")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func TestSocketPathPrecedence(t *testing.T) {
	t.Setenv(EnvSocket, "/from/env.sock")
	assert.Equal(t, "/explicit.sock", SocketPath("/explicit.sock"))
	assert.Equal(t, "/from/env.sock", SocketPath(""))

	t.Setenv(EnvSocket, "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/clipmind.sock", SocketPath(""))
}

func TestListenDialAndStaleSocket(t *testing.T) {
	path := shortSocket(t)
	assert.False(t, IsRunning(path))

	// A leftover regular file stands in for a stale socket.
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ln, err := Listen(path)
	require.NoError(t, err)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	assert.True(t, IsRunning(path))
	c, err := Dial(context.Background(), path)
	require.NoError(t, err)
	c.Close()

	_, err = Listen(path)
	assert.Error(t, err, "second daemon must not steal a live socket")

	require.NoError(t, ln.Close())
}
