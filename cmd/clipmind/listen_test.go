package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"go.klb.dev/clipmind/internal/clip"
	"go.klb.dev/clipmind/internal/crypto"
	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/grpcservice"
	"go.klb.dev/clipmind/internal/history"
	"go.klb.dev/clipmind/internal/hub"
	"go.klb.dev/clipmind/internal/message"
	"go.klb.dev/clipmind/internal/persist"
	"go.klb.dev/clipmind/internal/service"
	"go.klb.dev/clipmind/internal/wire"
)

type daemon struct {
	svc  *service.Service
	addr string
}

func startDaemon(t *testing.T, token string) *daemon {
	t.Helper()
	store, err := history.Open(context.Background(), persist.NewMemory(), history.Options{})
	require.NoError(t, err)
	h := hub.New(hub.Schedules{})
	svc := service.New(store, h, clip.NewMemory())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	key, err := crypto.KeyForToken(token)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveEndpoint(ctx, endpoint{name: "tcp", ln: ln, token: token, key: key}, svc) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("endpoint did not stop")
		}
		h.Close()
	})
	return &daemon{svc: svc, addr: ln.Addr().String()}
}

func (d *daemon) add(t *testing.T, v string) entry.Entry {
	t.Helper()
	e := entry.NewText(v)
	_, err := d.svc.Append(context.Background(), e)
	require.NoError(t, err)
	return e
}

func TestEndpointServesGRPC(t *testing.T) {
	d := startDaemon(t, "tok")
	e := d.add(t, "over grpc")

	conn, err := grpc.NewClient(d.addr, dialOpts("tok", "test")...)
	require.NoError(t, err)
	defer conn.Close()
	c := grpcservice.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hist, err := c.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, e.ID, hist[0].ID)

	require.NoError(t, c.SetPinned(ctx, e.ID, true))
	assert.True(t, d.svc.History()[0].Pinned)
}

func TestEndpointRejectsBadToken(t *testing.T) {
	d := startDaemon(t, "tok")

	conn, err := grpc.NewClient(d.addr, dialOpts("wrong", "test")...)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = grpcservice.NewClient(conn).History(ctx)
	assert.Error(t, err)
}

func TestEndpointServesHTTP(t *testing.T) {
	d := startDaemon(t, "")
	d.add(t, "over http")

	resp, err := http.Get("http://" + d.addr + "/v1/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hist []entry.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hist))
	require.Len(t, hist, 1)
	assert.Equal(t, "over http", hist[0].Value)
}

func readUpdate(t *testing.T, wc *wire.Conn) *message.Message {
	t.Helper()
	wc.SetReadDeadline(5 * time.Second)
	for {
		msg, err := wc.ReadMsg()
		require.NoError(t, err)
		if msg.Type == message.TypeUpdateHistory {
			return msg
		}
	}
}

func TestEndpointServesNDJSON(t *testing.T) {
	d := startDaemon(t, "tok")
	d.add(t, "over ndjson")

	conn, err := net.Dial("tcp", d.addr)
	require.NoError(t, err)
	key, err := crypto.KeyForToken("tok")
	require.NoError(t, err)
	wc := wire.New(conn, key)
	defer wc.Close()

	require.NoError(t, wc.WriteMsg(&message.Message{Type: message.TypeHello, Source: "test"}))

	msg := readUpdate(t, wc)
	hist, ok := message.DecodeHistory(msg.History)
	require.True(t, ok)
	require.Len(t, hist, 1)
	assert.Equal(t, "over ndjson", hist[0].Value)

	require.NoError(t, wc.WriteMsg(&message.Message{Type: message.TypeClearHistory}))
	msg = readUpdate(t, wc)
	hist, ok = message.DecodeHistory(msg.History)
	require.True(t, ok)
	assert.Empty(t, hist)
}
