package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipmind/internal/entry"
)

func TestStreamKeepsNewest(t *testing.T) {
	s := NewStream(context.Background(), "watch/1")
	require.NoError(t, s.Send(Update{Seq: 1}))
	require.NoError(t, s.Send(Update{Seq: 2}))
	assert.Equal(t, uint64(2), (<-s.Updates()).Seq)

	select {
	case u := <-s.Updates():
		t.Fatalf("unexpected update %d", u.Seq)
	default:
	}
}

func TestStreamAliveFollowsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream(ctx, "sse/1")
	assert.True(t, s.Alive())
	cancel()
	assert.False(t, s.Alive())
}

func TestStreamGetsSingleDelivery(t *testing.T) {
	h := New(Schedules{Broadcast: []time.Duration{5 * time.Millisecond}})
	defer h.Close()

	s := NewStream(context.Background(), "watch/1")
	h.Register(s)
	assert.Equal(t, uint64(0), (<-s.Updates()).Seq)

	h.Broadcast([]entry.Entry{entry.NewText("a")})
	assert.Equal(t, uint64(1), (<-s.Updates()).Seq)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, h.Stats().Resent)
	assert.True(t, h.Observers()[0].Handshake)
}
