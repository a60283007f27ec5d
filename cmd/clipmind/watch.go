package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipmind/internal/crypto"
	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/ipc"
	"go.klb.dev/clipmind/internal/message"
	"go.klb.dev/clipmind/internal/observer"
	"go.klb.dev/clipmind/internal/view"
	"go.klb.dev/clipmind/internal/wire"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the history every time it changes",
		Long: `Connects to the daemon as an observer using the newline-delimited JSON
protocol and prints the newest entry (or, with --json, the whole snapshot)
whenever the history changes. Redundant resends are not printed twice.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(v)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runWatch(ctx, cmd.OutOrStdout(), v)
		},
	}

	cmd.Flags().Bool("json", false, "print each snapshot as one JSON line")
	addClientFlags(cmd)
	addLoggingFlags(cmd)

	return cmd
}

func runWatch(ctx context.Context, w io.Writer, v *viper.Viper) error {
	conn, key, err := dialObserver(ctx, v)
	if err != nil {
		return err
	}
	wc := wire.New(conn, key)
	defer wc.Close()
	go func() {
		<-ctx.Done()
		_ = wc.Close()
	}()

	asJSON := v.GetBool("json")
	m := observer.NewMirror()
	m.OnChange(func(hist []entry.Entry) {
		if asJSON {
			b, err := json.Marshal(hist)
			if err != nil {
				slog.Error("encode history", "err", err)
				return
			}
			fmt.Fprintf(w, "%s\n", b)
			return
		}
		if len(hist) == 0 {
			fmt.Fprintln(w, "(empty)")
			return
		}
		fmt.Fprintf(w, "%s  %s  (%d)\n", shortID(hist[0].ID), view.Preview(hist[0], previewWidth), len(hist))
	})

	hello := &message.Message{Type: message.TypeHello, Source: v.GetString("source"), Handshake: true}
	if err := wc.WriteMsg(hello); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	if err := wc.WriteMsg(&message.Message{Type: message.TypeReady}); err != nil {
		return fmt.Errorf("ready: %w", err)
	}

	for {
		msg, err := wc.ReadMsg()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		switch msg.Type {
		case message.TypeUpdateHistory:
			m.Apply(msg)
		case message.TypeError:
			slog.Warn("daemon reported error", "err", msg.Error)
		}
	}
}

// dialObserver opens a raw connection for the NDJSON protocol. TCP
// connections are encrypted when a token is set.
func dialObserver(ctx context.Context, v *viper.Viper) (net.Conn, *[32]byte, error) {
	dctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	if server := v.GetString("server"); server != "" {
		key, err := crypto.KeyForToken(v.GetString("token"))
		if err != nil {
			return nil, nil, fmt.Errorf("key derivation: %w", err)
		}
		d := net.Dialer{Timeout: 5 * time.Second}
		conn, err := d.DialContext(dctx, "tcp", server)
		if err != nil {
			return nil, nil, fmt.Errorf("connect %s: %w", server, err)
		}
		return conn, key, nil
	}

	path := ipc.SocketPath(v.GetString("socket"))
	conn, err := ipc.Dial(dctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("no clipmind daemon on %s: %w", path, err)
	}
	return conn, nil, nil
}
