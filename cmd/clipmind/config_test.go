package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipmind/internal/history"
	"go.klb.dev/clipmind/internal/hub"
)

func TestParseDelays(t *testing.T) {
	ds, err := parseDelays([]string{"100ms, 500ms", "1s", ""})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second}, ds)

	ds, err = parseDelays(nil)
	require.NoError(t, err)
	assert.Empty(t, ds)

	_, err = parseDelays([]string{"soon"})
	assert.Error(t, err)

	_, err = parseDelays([]string{"-1s"})
	assert.Error(t, err)
}

func TestFormatDelaysRoundTrip(t *testing.T) {
	def := hub.DefaultSchedules().Activate
	ds, err := parseDelays(formatDelays(def))
	require.NoError(t, err)
	assert.Equal(t, def, ds)
}

func serveViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags(args))
	v := viper.New()
	require.NoError(t, bindViper(cmd, v))
	return v
}

func TestLoadServeConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	v := serveViper(t)

	cfg, err := loadServeConfig(v)
	require.NoError(t, err)
	assert.Equal(t, history.DefaultMaxItems, cfg.opts.MaxItems)
	assert.Equal(t, history.EvictOldest, cfg.opts.Policy)
	assert.Equal(t, hub.DefaultSchedules(), cfg.sched)
	assert.Equal(t, DefaultAddr, cfg.addr)
	assert.False(t, cfg.noClipboard)
}

func TestLoadServeConfigFlags(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	v := serveViper(t,
		"--max-items", "5",
		"--eviction", "keep-pinned",
		"--resend-delays", "",
		"--show-delays", "50ms,75ms",
		"--addr", "",
		"--no-clipboard",
	)

	cfg, err := loadServeConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.opts.MaxItems)
	assert.Equal(t, history.KeepPinned, cfg.opts.Policy)
	assert.Empty(t, cfg.sched.Broadcast)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 75 * time.Millisecond}, cfg.sched.Activate)
	assert.Empty(t, cfg.addr)
	assert.True(t, cfg.noClipboard)
}

func TestLoadServeConfigRejects(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := loadServeConfig(serveViper(t, "--eviction", "random"))
	assert.Error(t, err)

	_, err = loadServeConfig(serveViper(t, "--poll-interval", "0s"))
	assert.Error(t, err)

	_, err = loadServeConfig(serveViper(t, "--request-delays", "later"))
	assert.Error(t, err)
}

func TestBindViperConfigFileAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "clipmind.toml")
	require.NoError(t, os.WriteFile(path, []byte("max-items = 7\neviction = \"keep-pinned\"\n"), 0o600))

	v := serveViper(t, "--config", path)
	assert.Equal(t, 7, v.GetInt("max-items"))
	assert.Equal(t, "keep-pinned", v.GetString("eviction"))

	t.Setenv("CLIPMIND_MAX_ITEMS", "9")
	v = serveViper(t, "--config", path)
	assert.Equal(t, 9, v.GetInt("max-items"))

	v = serveViper(t, "--config", path, "--max-items", "11")
	assert.Equal(t, 11, v.GetInt("max-items"))
}

func TestBindViperBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipmind.toml")
	require.NoError(t, os.WriteFile(path, []byte("max-items = [\n"), 0o600))

	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path}))
	assert.Error(t, bindViper(cmd, viper.New()))
}
