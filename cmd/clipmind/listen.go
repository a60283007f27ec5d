package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"

	"go.klb.dev/clipmind/internal/connpeer"
	"go.klb.dev/clipmind/internal/grpcservice"
	"go.klb.dev/clipmind/internal/httpapi"
	"go.klb.dev/clipmind/internal/service"
)

// matchTimeout bounds how long cmux waits for a client's first bytes.
// NDJSON observers that never speak first are handed over after it.
const matchTimeout = 2 * time.Second

// endpoint is one listener plus the credentials its clients must present.
type endpoint struct {
	name  string
	ln    net.Listener
	token string
	key   *[32]byte
}

// serveEndpoint splits ep.ln into gRPC, HTTP/1 and raw NDJSON listeners and
// serves each until ctx is cancelled or one of them fails.
func serveEndpoint(ctx context.Context, ep endpoint, svc *service.Service) error {
	log := slog.With("endpoint", ep.name)

	m := cmux.New(ep.ln)
	m.SetReadTimeout(matchTimeout)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.HTTP1Fast())
	rawL := m.Match(cmux.Any())

	gs := grpc.NewServer()
	grpcservice.Register(gs, grpcservice.New(svc, ep.token))

	api, err := httpapi.New(svc, ep.token)
	if err != nil {
		_ = ep.ln.Close()
		return fmt.Errorf("%s: http routes: %w", ep.name, err)
	}
	hs := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 4)
	go func() { errc <- gs.Serve(grpcL) }()
	go func() { errc <- hs.Serve(httpL) }()
	go func() { errc <- connpeer.ServeListener(ctx, rawL, svc.Hub(), svc, ep.key) }()
	go func() { errc <- m.Serve() }()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	_ = ep.ln.Close()
	_ = hs.Close()
	gs.Stop()

	if ctx.Err() != nil || isClosed(serveErr) {
		log.Debug("endpoint closed")
		return nil
	}
	return fmt.Errorf("%s: %w", ep.name, serveErr)
}

func isClosed(err error) bool {
	return err == nil ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, grpc.ErrServerStopped) ||
		errors.Is(err, cmux.ErrListenerClosed) ||
		errors.Is(err, cmux.ErrServerClosed)
}
