package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipmind/internal/clip"
	"go.klb.dev/clipmind/internal/crypto"
	"go.klb.dev/clipmind/internal/history"
	"go.klb.dev/clipmind/internal/hub"
	"go.klb.dev/clipmind/internal/ipc"
	"go.klb.dev/clipmind/internal/persist"
	"go.klb.dev/clipmind/internal/poller"
	"go.klb.dev/clipmind/internal/service"
)

// DefaultAddr is the TCP listen address used when none is configured.
const DefaultAddr = "127.0.0.1:8753"

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the clipboard history daemon",
		Long: `Starts the clipmind daemon. It samples the system clipboard, keeps the
history in a SQLite database under --data-dir, and serves observers on the
local socket and (unless --addr is empty) on a TCP port.

Both endpoints speak gRPC, HTTP/JSON and newline-delimited JSON on the same
port. With --token set, TCP clients must present it (gRPC and HTTP as a
bearer token) and NDJSON lines on TCP are encrypted with a key derived from
it. The local socket is owner-only and needs no token.

Config file search order:
  /etc/clipmind/clipmind.toml
  $HOME/.config/clipmind/clipmind.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPMIND_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context(), v) },
	}

	def := hub.DefaultSchedules()
	f := cmd.Flags()
	f.String("data-dir", defaultDataDir(), "directory holding the history database")
	f.Int("max-items", history.DefaultMaxItems, "maximum number of history entries")
	f.String("eviction", string(history.EvictOldest), "eviction policy when full: evict-oldest|keep-pinned")
	f.Duration("poll-interval", poller.DefaultInterval, "clipboard sampling interval")
	f.StringSlice("resend-delays", formatDelays(def.Broadcast), "resend delays after each history change")
	f.StringSlice("show-delays", formatDelays(def.Activate), "resend delays when an observer becomes visible")
	f.StringSlice("request-delays", formatDelays(def.Request), "resend delays after an explicit history request")
	f.String("addr", DefaultAddr, "TCP listen address (empty = local socket only)")
	f.String("token", "", "shared secret for TCP clients (empty = no auth, no encryption)")
	f.Bool("no-clipboard", false, "do not touch the system clipboard (in-memory backend)")
	f.String("socket", "", "local socket path (default: platform specific)")
	f.String("source", "", "source recorded on captured entries (default: system)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

type serveConfig struct {
	dataDir     string
	opts        history.Options
	interval    time.Duration
	sched       hub.Schedules
	addr        string
	token       string
	noClipboard bool
	socket      string
	source      string
}

func loadServeConfig(v *viper.Viper) (serveConfig, error) {
	cfg := serveConfig{
		dataDir:     v.GetString("data-dir"),
		interval:    v.GetDuration("poll-interval"),
		addr:        v.GetString("addr"),
		token:       v.GetString("token"),
		noClipboard: v.GetBool("no-clipboard"),
		socket:      ipc.SocketPath(v.GetString("socket")),
		source:      v.GetString("source"),
	}
	if cfg.dataDir == "" {
		cfg.dataDir = defaultDataDir()
	}
	if cfg.interval <= 0 {
		return cfg, fmt.Errorf("poll-interval: %w", poller.ErrInvalidInterval)
	}

	policy, err := history.ParsePolicy(v.GetString("eviction"))
	if err != nil {
		return cfg, err
	}
	cfg.opts = history.Options{MaxItems: v.GetInt("max-items"), Policy: policy}
	if cfg.opts.MaxItems < 0 {
		return cfg, fmt.Errorf("max-items must not be negative")
	}

	for _, s := range []struct {
		key string
		dst *[]time.Duration
	}{
		{"resend-delays", &cfg.sched.Broadcast},
		{"show-delays", &cfg.sched.Activate},
		{"request-delays", &cfg.sched.Request},
	} {
		ds, err := parseDelays(v.GetStringSlice(s.key))
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", s.key, err)
		}
		*s.dst = ds
	}
	return cfg, nil
}

func runServe(ctx context.Context, v *viper.Viper) error {
	setupLogging(v)

	cfg, err := loadServeConfig(v)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := persist.OpenSQLite(cfg.dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	store, err := history.Open(ctx, db, cfg.opts)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var backend clip.Backend
	if cfg.noClipboard {
		backend = clip.NewMemory()
	} else {
		backend = clip.New()
	}
	defer backend.Close()

	h := hub.New(cfg.sched)
	defer h.Close()
	svc := service.New(store, h, backend)

	p := poller.New(backend, svc, poller.Config{Interval: cfg.interval, Source: cfg.source})
	svc.OnWriteBack(p.Suppress)

	slog.Info("clipmind starting",
		"version", Version,
		"db", db.Path(),
		"entries", store.Len(),
		"max_items", store.MaxItems(),
		"eviction", store.Policy(),
		"clipboard", backend.Name(),
		"interval", cfg.interval,
	)

	ipcLn, err := ipc.Listen(cfg.socket)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.socket, err)
	}
	endpoints := []endpoint{{name: "ipc", ln: ipcLn}}
	slog.Info("local socket listening", "path", cfg.socket)

	if cfg.addr != "" {
		ln, err := net.Listen("tcp", cfg.addr)
		if err != nil {
			_ = ipcLn.Close()
			return fmt.Errorf("listen %s: %w", cfg.addr, err)
		}
		key, err := crypto.KeyForToken(cfg.token)
		if err != nil {
			_ = ipcLn.Close()
			_ = ln.Close()
			return fmt.Errorf("key derivation: %w", err)
		}
		endpoints = append(endpoints, endpoint{name: "tcp", ln: ln, token: cfg.token, key: key})
		slog.Info("listening", "addr", ln.Addr(), "auth", cfg.token != "")
	}

	if err := p.Start(ctx); err != nil {
		for _, ep := range endpoints {
			_ = ep.ln.Close()
		}
		return fmt.Errorf("start poller: %w", err)
	}
	defer p.Stop()

	errc := make(chan error, len(endpoints))
	for _, ep := range endpoints {
		go func() { errc <- serveEndpoint(ctx, ep, svc) }()
	}

	var firstErr error
	for range endpoints {
		if err := <-errc; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	slog.Info("clipmind stopped")
	if firstErr != nil && !errors.Is(firstErr, context.Canceled) {
		return firstErr
	}
	return nil
}
