package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipmind/internal/clip"
	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/history"
	"go.klb.dev/clipmind/internal/hub"
	"go.klb.dev/clipmind/internal/message"
	"go.klb.dev/clipmind/internal/persist"
)

type observer struct {
	mu      sync.Mutex
	updates []hub.Update
}

func (o *observer) ID() string    { return "test" }
func (o *observer) Alive() bool   { return true }
func (o *observer) Visible() bool { return false }

func (o *observer) Send(u hub.Update) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, u)
	return nil
}

func (o *observer) last() hub.Update {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.updates[len(o.updates)-1]
}

func (o *observer) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.updates)
}

type failingPersister struct {
	*persist.Memory
	fail bool
}

func (f *failingPersister) Save(ctx context.Context, e []entry.Entry) error {
	if f.fail {
		return errors.New("read-only filesystem")
	}
	return f.Memory.Save(ctx, e)
}

type fixture struct {
	svc  *Service
	hub  *hub.Hub
	clip *clip.Memory
	obs  *observer
	p    *failingPersister
}

func setup(t *testing.T) *fixture {
	t.Helper()
	p := &failingPersister{Memory: persist.NewMemory()}
	store, err := history.Open(context.Background(), p, history.Options{})
	require.NoError(t, err)
	h := hub.New(hub.Schedules{})
	t.Cleanup(h.Close)
	cb := clip.NewMemory()
	svc := New(store, h, cb)
	obs := &observer{}
	h.Register(obs)
	return &fixture{svc: svc, hub: h, clip: cb, obs: obs, p: p}
}

func (f *fixture) add(t *testing.T, v string) entry.Entry {
	t.Helper()
	e := entry.NewText(v)
	added, err := f.svc.Append(context.Background(), e)
	require.NoError(t, err)
	require.True(t, added)
	return e
}

func TestAppendBroadcastsOnlyWhenAdded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	before := f.obs.count()

	f.add(t, "hello")
	assert.Equal(t, before+1, f.obs.count())

	added, err := f.svc.Append(ctx, entry.NewText(" hello "))
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, before+1, f.obs.count())
}

func TestGetHistoryRepliesToRequester(t *testing.T) {
	f := setup(t)
	f.add(t, "x")
	n := f.obs.count()

	require.NoError(t, f.svc.Dispatch(context.Background(), f.obs, &message.Message{Type: message.TypeGetHistory}))
	assert.Equal(t, n+1, f.obs.count())
	assert.Len(t, f.obs.last().History, 1)
}

func TestDeleteItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.add(t, "a")
	f.add(t, "b")

	require.NoError(t, f.svc.Dispatch(ctx, f.obs, &message.Message{Type: message.TypeDeleteItem, ID: a.ID}))
	hist := f.obs.last().History
	require.Len(t, hist, 1)
	assert.Equal(t, "b", hist[0].Value)

	err := f.svc.Dispatch(ctx, f.obs, &message.Message{Type: message.TypeDeleteItem})
	assert.ErrorIs(t, err, message.ErrMissingID)
}

func TestUpdateItemPinsOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.add(t, "a")

	msg := &message.Message{Type: message.TypeUpdateItem, Item: json.RawMessage(`{"id":"` + a.ID + `","pinned":true,"value":"hacked"}`)}
	require.NoError(t, f.svc.Dispatch(ctx, f.obs, msg))

	hist := f.obs.last().History
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Pinned)
	assert.Equal(t, "a", hist[0].Value)
}

func TestUpdateItemUnknownIDStillBroadcasts(t *testing.T) {
	f := setup(t)
	f.add(t, "a")
	n := f.obs.count()
	require.NoError(t, f.svc.UpdateItem(context.Background(), "missing", true))
	assert.Equal(t, n+1, f.obs.count())
	assert.False(t, f.obs.last().History[0].Pinned)
}

func TestClearHistory(t *testing.T) {
	f := setup(t)
	a := f.add(t, "a")
	require.NoError(t, f.svc.UpdateItem(context.Background(), a.ID, true))

	require.NoError(t, f.svc.Dispatch(context.Background(), f.obs, &message.Message{Type: message.TypeClearHistory}))
	assert.Empty(t, f.obs.last().History)
	assert.Empty(t, f.svc.History())

	stored, err := f.p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCopyTextWritesClipboardAndSuppresses(t *testing.T) {
	f := setup(t)
	var gotKind entry.Kind
	var gotValue string
	f.svc.OnWriteBack(func(k entry.Kind, v string) { gotKind, gotValue = k, v })

	m, err := message.NewCopy(entry.NewText("paste me"))
	require.NoError(t, err)
	n := f.obs.count()
	require.NoError(t, f.svc.Dispatch(context.Background(), f.obs, m))

	c, err := f.clip.Read()
	require.NoError(t, err)
	assert.Equal(t, "paste me", c.Text)
	assert.Equal(t, entry.KindText, gotKind)
	assert.Equal(t, "paste me", gotValue)
	assert.Equal(t, n, f.obs.count(), "copy does not change history")
}

func TestCopyImageDecodesDataURL(t *testing.T) {
	f := setup(t)
	png := []byte{0x89, 'P', 'N', 'G'}
	require.NoError(t, f.svc.CopyToClipboard(context.Background(), entry.NewImage(clip.EncodeImage(png))))

	c, err := f.clip.Read()
	require.NoError(t, err)
	assert.Equal(t, png, c.Image)

	err = f.svc.CopyToClipboard(context.Background(), entry.NewImage("not a url"))
	assert.ErrorIs(t, err, clip.ErrNotDataURL)
}

func TestCopyByID(t *testing.T) {
	f := setup(t)
	a := f.add(t, "stored")
	require.NoError(t, f.svc.CopyByID(context.Background(), a.ID))
	c, _ := f.clip.Read()
	assert.Equal(t, "stored", c.Text)

	assert.ErrorIs(t, f.svc.CopyByID(context.Background(), "nope"), ErrNotFound)
}

func TestPersistFailureSkipsBroadcast(t *testing.T) {
	f := setup(t)
	a := f.add(t, "a")
	n := f.obs.count()
	f.p.fail = true

	assert.Error(t, f.svc.DeleteItem(context.Background(), a.ID))
	_, err := f.svc.Append(context.Background(), entry.NewText("b"))
	assert.Error(t, err)
	assert.Equal(t, n, f.obs.count())
	assert.Len(t, f.svc.History(), 1)
}

func TestUnknownCommand(t *testing.T) {
	f := setup(t)
	err := f.svc.Dispatch(context.Background(), f.obs, &message.Message{Type: "explode"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestBroadcastOrderFollowsMutationOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Append(ctx, entry.NewText(string(rune('a'+i))))
		}()
	}
	wg.Wait()

	f.obs.mu.Lock()
	defer f.obs.mu.Unlock()
	for i := 1; i < len(f.obs.updates); i++ {
		assert.Greater(t, f.obs.updates[i].Seq, f.obs.updates[i-1].Seq)
		assert.Equal(t, len(f.obs.updates[i-1].History)+1, len(f.obs.updates[i].History))
	}
}
