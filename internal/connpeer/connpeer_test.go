package connpeer

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/hub"
	"go.klb.dev/clipmind/internal/message"
	"go.klb.dev/clipmind/internal/wire"
)

func init() { helloWait = 20 * time.Millisecond }

type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []message.Type
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ hub.Observer, msg *message.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg.Type)
	return d.err
}

func (d *recordingDispatcher) types() []message.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]message.Type(nil), d.msgs...)
}

func connect(t *testing.T, h *hub.Hub, d Dispatcher) *wire.Conn {
	t.Helper()
	server, client := net.Pipe()
	p := New(server, h, d, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		client.Close()
		<-done
	})
	return wire.New(client, nil)
}

func readHistory(t *testing.T, c *wire.Conn) (uint64, []entry.Entry) {
	t.Helper()
	msg, err := c.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, message.TypeUpdateHistory, msg.Type)
	hist, ok := message.DecodeHistory(msg.History)
	require.True(t, ok)
	return msg.Seq, hist
}

func TestSilentClientGetsCurrentHistory(t *testing.T) {
	h := hub.New(hub.Schedules{})
	defer h.Close()
	h.Broadcast([]entry.Entry{entry.NewText("a")})

	c := connect(t, h, &recordingDispatcher{})
	seq, hist := readHistory(t, c)
	assert.Equal(t, uint64(1), seq)
	assert.Len(t, hist, 1)

	h.Broadcast([]entry.Entry{entry.NewText("b"), entry.NewText("a")})
	seq, hist = readHistory(t, c)
	assert.Equal(t, uint64(2), seq)
	assert.Len(t, hist, 2)
}

func TestPlainObserverGetsResends(t *testing.T) {
	h := hub.New(hub.Schedules{Broadcast: []time.Duration{5 * time.Millisecond}})
	defer h.Close()
	c := connect(t, h, &recordingDispatcher{})
	readHistory(t, c)

	h.Broadcast([]entry.Entry{entry.NewText("a")})
	seq, _ := readHistory(t, c)
	assert.Equal(t, uint64(1), seq)

	seq, hist := readHistory(t, c)
	assert.Equal(t, uint64(1), seq)
	assert.Len(t, hist, 1)
	assert.Equal(t, uint64(1), h.Stats().Resent)

	infos := h.Observers()
	require.Len(t, infos, 1)
	assert.False(t, infos[0].Handshake)
}

func TestPeerIsPlainObserverUntilHandshake(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	p := New(server, hub.New(hub.Schedules{}), &recordingDispatcher{}, nil)
	defer p.Close()

	assert.Nil(t, p.Ready())
	p.markReady()
	assert.Nil(t, p.Ready())

	assert.True(t, p.hello(&message.Message{Type: message.TypeHello, Handshake: true}))
	ready := p.Ready()
	require.NotNil(t, ready)
	select {
	case <-ready:
		t.Fatal("ready before the client said so")
	default:
	}
	p.markReady()
	<-ready
}

func TestCommandsAreDispatched(t *testing.T) {
	h := hub.New(hub.Schedules{})
	defer h.Close()
	d := &recordingDispatcher{}
	c := connect(t, h, d)

	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeDeleteItem, ID: "x"}))
	readHistory(t, c)
	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeClearHistory}))

	require.Eventually(t, func() bool { return len(d.types()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []message.Type{message.TypeDeleteItem, message.TypeClearHistory}, d.types())
}

func TestDispatchErrorIsReported(t *testing.T) {
	h := hub.New(hub.Schedules{})
	defer h.Close()
	d := &recordingDispatcher{err: message.ErrMissingID}
	c := connect(t, h, d)
	readHistory(t, c)

	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeDeleteItem}))
	msg, err := c.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.TypeError, msg.Type)
	assert.Contains(t, msg.Error, "missing item id")
}

func TestHandshakeDeliversOnceAfterReady(t *testing.T) {
	h := hub.New(hub.Schedules{Broadcast: []time.Duration{5 * time.Millisecond}})
	defer h.Close()
	c := connect(t, h, &recordingDispatcher{})

	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeHello, Source: "popup", Handshake: true, Visible: true}))
	require.Eventually(t, func() bool { return len(h.Observers()) == 1 }, time.Second, 5*time.Millisecond)

	h.Broadcast([]entry.Entry{entry.NewText("a")})
	h.Broadcast([]entry.Entry{entry.NewText("b"), entry.NewText("a")})
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, h.Stats().Sent)

	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeReady}))
	seq, hist := readHistory(t, c)
	assert.Equal(t, uint64(2), seq)
	assert.Len(t, hist, 2)

	time.Sleep(30 * time.Millisecond)
	st := h.Stats()
	assert.Equal(t, uint64(1), st.Sent)
	assert.Zero(t, st.Resent)

	infos := h.Observers()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Visible)
}

func TestShowAndHide(t *testing.T) {
	h := hub.New(hub.Schedules{})
	defer h.Close()
	c := connect(t, h, &recordingDispatcher{})
	readHistory(t, c)

	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeShow}))
	readHistory(t, c)
	require.Eventually(t, func() bool {
		infos := h.Observers()
		return len(infos) == 1 && infos[0].Visible
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.WriteMsg(&message.Message{Type: message.TypeHide}))
	require.Eventually(t, func() bool {
		infos := h.Observers()
		return len(infos) == 1 && !infos[0].Visible
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnectUnregisters(t *testing.T) {
	h := hub.New(hub.Schedules{})
	defer h.Close()
	server, client := net.Pipe()
	p := New(server, h, &recordingDispatcher{}, nil)
	done := make(chan struct{})
	go func() {
		p.Serve(context.Background())
		close(done)
	}()
	c := wire.New(client, nil)
	readHistory(t, c)
	require.Len(t, h.Observers(), 1)

	client.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after disconnect")
	}
	assert.Empty(t, h.Observers())
	assert.False(t, p.Alive())
	assert.ErrorIs(t, p.Send(hub.Update{}), ErrClosed)
}

func TestServeListener(t *testing.T) {
	h := hub.New(hub.Schedules{})
	defer h.Close()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- ServeListener(ctx, ln, h, &recordingDispatcher{}, nil) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	readHistory(t, wire.New(conn, nil))

	cancel()
	ln.Close()
	conn.Close()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ServeListener did not return")
	}
}
