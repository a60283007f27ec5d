package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipmind/internal/entry"
)

type fakeObserver struct {
	id string

	mu      sync.Mutex
	alive   bool
	visible bool
	sendErr error
	updates []Update
}

func newObserver(id string, visible bool) *fakeObserver {
	return &fakeObserver{id: id, alive: true, visible: visible}
}

func (o *fakeObserver) ID() string { return o.id }

func (o *fakeObserver) Alive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.alive
}

func (o *fakeObserver) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

func (o *fakeObserver) Send(u Update) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sendErr != nil {
		return o.sendErr
	}
	o.updates = append(o.updates, u)
	return nil
}

func (o *fakeObserver) setAlive(v bool) {
	o.mu.Lock()
	o.alive = v
	o.mu.Unlock()
}

func (o *fakeObserver) seqs() []uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]uint64, len(o.updates))
	for i, u := range o.updates {
		out[i] = u.Seq
	}
	return out
}

func (o *fakeObserver) count() int { return len(o.seqs()) }

type readyObserver struct {
	*fakeObserver
	ready chan struct{}
}

func (o *readyObserver) Ready() <-chan struct{} { return o.ready }

func history(values ...string) []entry.Entry {
	out := make([]entry.Entry, len(values))
	for i, v := range values {
		out[i] = entry.NewText(v)
	}
	return out
}

func TestRegisterDeliversLatest(t *testing.T) {
	h := New(Schedules{})
	defer h.Close()
	h.Broadcast(history("a"))

	o := newObserver("o", false)
	h.Register(o)
	require.Equal(t, []uint64{1}, o.seqs())
	assert.Len(t, o.updates[0].History, 1)
}

func TestBroadcastPrimaryAndResend(t *testing.T) {
	h := New(Schedules{Broadcast: []time.Duration{20 * time.Millisecond}})
	defer h.Close()
	o := newObserver("o", false)
	h.Register(o)

	u := h.Broadcast(history("a", "b"))
	assert.Equal(t, uint64(1), u.Seq)
	assert.Equal(t, []uint64{0, 1}, o.seqs())

	require.Eventually(t, func() bool { return o.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{0, 1, 1}, o.seqs())

	st := h.Stats()
	assert.Equal(t, uint64(1), st.Broadcasts)
	assert.Equal(t, uint64(1), st.Resent)
}

func TestDeadObserverSkipped(t *testing.T) {
	h := New(Schedules{})
	defer h.Close()
	o := newObserver("o", false)
	o.setAlive(false)
	h.Register(o)
	h.Broadcast(history("a"))

	assert.Zero(t, o.count())
	assert.Equal(t, uint64(2), h.Stats().Skipped)
}

func TestLivenessCheckedAtFireTime(t *testing.T) {
	h := New(Schedules{Broadcast: []time.Duration{30 * time.Millisecond}})
	defer h.Close()
	o := newObserver("o", false)
	h.Register(o)
	h.Broadcast(history("a"))
	o.setAlive(false)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []uint64{0, 1}, o.seqs())
	assert.Equal(t, uint64(1), h.Stats().Skipped)
}

func TestUnregisterCancelsResendsAndIsIdempotent(t *testing.T) {
	h := New(Schedules{Broadcast: []time.Duration{30 * time.Millisecond}})
	defer h.Close()
	o := newObserver("o", false)
	h.Register(o)
	h.Broadcast(history("a"))

	h.Unregister(o)
	h.Unregister(o)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []uint64{0, 1}, o.seqs())
	assert.Empty(t, h.Observers())

	h.Broadcast(history("b"))
	assert.Equal(t, 2, o.count())
}

func TestResendNeverGoesBackwards(t *testing.T) {
	h := New(Schedules{Broadcast: []time.Duration{20 * time.Millisecond}})
	defer h.Close()
	o := newObserver("o", false)
	h.Register(o)

	h.Broadcast(history("a"))
	h.Broadcast(history("a", "b"))

	require.Eventually(t, func() bool { return o.count() == 5 }, time.Second, 5*time.Millisecond)
	seqs := o.seqs()
	for i := 1; i < len(seqs); i++ {
		assert.GreaterOrEqual(t, seqs[i], seqs[i-1], "seqs %v", seqs)
	}
	assert.Equal(t, []uint64{0, 1, 2, 2, 2}, seqs)
}

func TestVisibleRegistrationUsesActivateSchedule(t *testing.T) {
	h := New(Schedules{Activate: []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 15 * time.Millisecond}})
	defer h.Close()
	o := newObserver("o", true)
	h.Register(o)

	require.Eventually(t, func() bool { return o.count() == 4 }, time.Second, 5*time.Millisecond)
}

func TestActivateAndSendTo(t *testing.T) {
	h := New(Schedules{
		Activate: []time.Duration{5 * time.Millisecond, 10 * time.Millisecond},
		Request:  []time.Duration{5 * time.Millisecond},
	})
	defer h.Close()
	o := newObserver("o", false)
	h.Register(o)
	require.Equal(t, 1, o.count())

	h.Activate(o)
	require.Eventually(t, func() bool { return o.count() == 4 }, time.Second, 5*time.Millisecond)

	h.SendTo(o)
	require.Eventually(t, func() bool { return o.count() == 6 }, time.Second, 5*time.Millisecond)
}

func TestSendToUnregisteredSendsOnce(t *testing.T) {
	h := New(Schedules{Request: []time.Duration{5 * time.Millisecond}})
	defer h.Close()
	h.Broadcast(history("a"))

	o := newObserver("stranger", false)
	h.SendTo(o)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []uint64{1}, o.seqs())
	assert.Empty(t, h.Observers())
}

func TestReadyObserverGetsExactlyOneDelivery(t *testing.T) {
	h := New(Schedules{
		Broadcast: []time.Duration{5 * time.Millisecond},
		Activate:  []time.Duration{5 * time.Millisecond},
	})
	defer h.Close()
	o := &readyObserver{fakeObserver: newObserver("o", true), ready: make(chan struct{})}
	h.Register(o)
	h.Broadcast(history("a"))
	h.Broadcast(history("a", "b"))
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, o.count())

	close(o.ready)
	require.Eventually(t, func() bool { return o.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{2}, o.seqs())

	h.Broadcast(history("c"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []uint64{2, 3}, o.seqs())

	infos := h.Observers()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Handshake)
	assert.Equal(t, uint64(3), infos[0].LastSeq)
}

func TestReadyObserverNilChannelFallsBack(t *testing.T) {
	h := New(Schedules{Broadcast: []time.Duration{5 * time.Millisecond}})
	defer h.Close()
	o := &readyObserver{fakeObserver: newObserver("o", false)}
	h.Register(o)
	h.Broadcast(history("a"))
	require.Eventually(t, func() bool { return o.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestUnregisterStopsReadyWait(t *testing.T) {
	h := New(Schedules{})
	defer h.Close()
	o := &readyObserver{fakeObserver: newObserver("o", false), ready: make(chan struct{})}
	h.Register(o)
	h.Unregister(o)
	close(o.ready)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, o.count())
}

func TestCloseCancelsEverything(t *testing.T) {
	h := New(Schedules{Broadcast: []time.Duration{30 * time.Millisecond}})
	o := newObserver("o", false)
	h.Register(o)
	h.Broadcast(history("a"))
	h.Close()
	h.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []uint64{0, 1}, o.seqs())

	h.Register(newObserver("late", false))
	assert.Empty(t, h.Observers())
	assert.Equal(t, uint64(1), h.Broadcast(history("b")).Seq)
}

func TestSendFailureCounted(t *testing.T) {
	h := New(Schedules{})
	defer h.Close()
	o := newObserver("o", false)
	o.sendErr = errors.New("buffer full")
	h.Register(o)
	assert.Equal(t, uint64(1), h.Stats().Failed)
}

func TestRegisterReplacesSameID(t *testing.T) {
	h := New(Schedules{})
	defer h.Close()
	a := newObserver("same", false)
	b := newObserver("same", false)
	h.Register(a)
	h.Register(b)
	h.Broadcast(history("x"))

	assert.Equal(t, []uint64{0}, a.seqs())
	assert.Equal(t, []uint64{0, 1}, b.seqs())
	assert.Len(t, h.Observers(), 1)
}
