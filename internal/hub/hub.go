// Package hub implements the observer registry and history broadcaster.
// It is transport-agnostic: observers register, receive full history
// snapshots through a non-blocking Send, and are tracked by ID.
//
// Delivery is best effort with redundancy. Each send is followed by a
// bounded number of delayed resends, because a freshly created observer may
// not be able to accept messages yet and the hub cannot tell. Observers that
// can say when they are ready implement ReadyNotifier instead and receive
// exactly one delivery once ready, with no blind resends.
package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipmind/internal/entry"
)

// Update is a full history snapshot. Seq increases by one per broadcast;
// observers treat History as read-only.
type Update struct {
	Seq     uint64
	History []entry.Entry
}

// Observer is anything that can display the history.
type Observer interface {
	ID() string
	// Alive reports whether the observer can still accept a message. It is
	// checked before every send, including delayed resends.
	Alive() bool
	// Visible reports whether the observer is currently on screen.
	Visible() bool
	// Send delivers an update. Must be non-blocking.
	Send(Update) error
}

// ReadyNotifier is an optional interface for observers that signal when
// they can accept updates. Ready may return nil to opt out, in which case
// the observer is treated like a plain Observer.
type ReadyNotifier interface {
	Observer
	Ready() <-chan struct{}
}

// Schedules lists the resend delays applied after the primary send.
type Schedules struct {
	// Broadcast follows every history mutation.
	Broadcast []time.Duration
	// Activate follows registration of a visible observer or Activate.
	Activate []time.Duration
	// Request follows an explicit history request.
	Request []time.Duration
}

func DefaultSchedules() Schedules {
	return Schedules{
		Broadcast: []time.Duration{100 * time.Millisecond},
		Activate:  []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond},
		Request:   []time.Duration{500 * time.Millisecond},
	}
}

type Stats struct {
	Broadcasts uint64 `json:"broadcasts"`
	Sent       uint64 `json:"sent"`
	Resent     uint64 `json:"resent"`
	Skipped    uint64 `json:"skipped"`
	Failed     uint64 `json:"failed"`
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID        string `json:"id"`
	Alive     bool   `json:"alive"`
	Visible   bool   `json:"visible"`
	Pending   int    `json:"pending_resends"`
	LastSeq   uint64 `json:"last_seq"`
	Handshake bool   `json:"handshake"`
}

// Hub fans history snapshots out to all registered observers.
type Hub struct {
	sched Schedules

	mu        sync.Mutex
	observers map[string]*registration
	latest    Update
	closed    bool

	broadcasts, sent, resent, skipped, failed atomic.Uint64
}

type pendingResend struct{ t *time.Timer }

type registration struct {
	obs  Observer
	done chan struct{}

	// guarded by Hub.mu
	timers  map[*pendingResend]struct{}
	waiting bool

	sendMu  sync.Mutex
	lastSeq uint64
	sentAny bool
}

// New returns an empty Hub. Zero-valued schedules mean no resends.
func New(sched Schedules) *Hub {
	return &Hub{
		sched:     sched,
		observers: make(map[string]*registration),
		latest:    Update{History: []entry.Entry{}},
	}
}

// Register adds o, replacing any observer with the same ID, and delivers
// the latest snapshot. Visible observers get the activation schedule.
func (h *Hub) Register(o Observer) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if old, ok := h.observers[o.ID()]; ok {
		h.dropLocked(old)
	}
	reg := &registration{
		obs:    o,
		done:   make(chan struct{}),
		timers: make(map[*pendingResend]struct{}),
	}
	h.observers[o.ID()] = reg
	u := h.latest
	total := len(h.observers)
	h.mu.Unlock()

	slog.Info("observer registered", "observer", o.ID(), "visible", o.Visible(), "total", total)

	var delays []time.Duration
	if o.Visible() {
		delays = h.sched.Activate
	}
	h.deliver(reg, u, delays)
}

// Unregister removes o and cancels its pending resends. Unknown observers
// are ignored, so it is safe to call more than once.
func (h *Hub) Unregister(o Observer) {
	h.mu.Lock()
	reg, ok := h.observers[o.ID()]
	if !ok {
		h.mu.Unlock()
		return
	}
	h.dropLocked(reg)
	total := len(h.observers)
	h.mu.Unlock()

	slog.Info("observer unregistered", "observer", o.ID(), "total", total)
}

// Broadcast records history as the latest snapshot and sends it to every
// registered observer.
func (h *Hub) Broadcast(history []entry.Entry) Update {
	h.mu.Lock()
	if h.closed {
		u := h.latest
		h.mu.Unlock()
		return u
	}
	h.latest = Update{Seq: h.latest.Seq + 1, History: entry.Clone(history)}
	u := h.latest
	regs := h.registrationsLocked()
	h.mu.Unlock()

	h.broadcasts.Add(1)
	for _, reg := range regs {
		h.deliver(reg, u, h.sched.Broadcast)
	}
	return u
}

// Activate resends the latest snapshot to o on the activation schedule,
// for an observer that has just been shown.
func (h *Hub) Activate(o Observer) { h.sendLatest(o, h.sched.Activate) }

// SendTo answers an explicit history request from o. An observer that was
// never registered gets a single send.
func (h *Hub) SendTo(o Observer) { h.sendLatest(o, h.sched.Request) }

func (h *Hub) sendLatest(o Observer, delays []time.Duration) {
	h.mu.Lock()
	reg, ok := h.observers[o.ID()]
	u := h.latest
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}
	if !ok {
		if !o.Alive() {
			h.skipped.Add(1)
			return
		}
		if err := o.Send(u); err != nil {
			h.failed.Add(1)
			slog.Debug("send failed", "observer", o.ID(), "err", err)
			return
		}
		h.sent.Add(1)
		return
	}
	h.deliver(reg, u, delays)
}

// Latest returns the most recent snapshot.
func (h *Hub) Latest() Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

func (h *Hub) Observers() []ObserverInfo {
	h.mu.Lock()
	regs := h.registrationsLocked()
	pending := make(map[*registration]int, len(regs))
	for _, r := range regs {
		pending[r] = len(r.timers)
	}
	h.mu.Unlock()

	out := make([]ObserverInfo, 0, len(regs))
	for _, r := range regs {
		r.sendMu.Lock()
		seq := r.lastSeq
		r.sendMu.Unlock()
		out = append(out, ObserverInfo{
			ID:        r.obs.ID(),
			Alive:     r.obs.Alive(),
			Visible:   r.obs.Visible(),
			Pending:   pending[r],
			LastSeq:   seq,
			Handshake: readyChan(r.obs) != nil,
		})
	}
	return out
}

func (h *Hub) Stats() Stats {
	return Stats{
		Broadcasts: h.broadcasts.Load(),
		Sent:       h.sent.Load(),
		Resent:     h.resent.Load(),
		Skipped:    h.skipped.Load(),
		Failed:     h.failed.Load(),
	}
}

// Close cancels every pending resend and ready wait and unregisters all
// observers. Later calls to Register and Broadcast are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, reg := range h.registrationsLocked() {
		h.dropLocked(reg)
	}
}

// deliver sends u now and schedules resends of the latest snapshot, or
// defers a single send until a ReadyNotifier is ready.
func (h *Hub) deliver(reg *registration, u Update, delays []time.Duration) {
	if ready := readyChan(reg.obs); ready != nil {
		h.deliverWhenReady(reg, ready)
		return
	}

	h.send(reg, u, false)
	if len(delays) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.observers[reg.obs.ID()] != reg {
		return
	}
	for _, d := range delays {
		p := &pendingResend{}
		p.t = time.AfterFunc(d, func() { h.resend(reg, p) })
		reg.timers[p] = struct{}{}
	}
}

func (h *Hub) deliverWhenReady(reg *registration, ready <-chan struct{}) {
	select {
	case <-ready:
		h.send(reg, h.Latest(), false)
		return
	default:
	}

	h.mu.Lock()
	if reg.waiting || h.closed || h.observers[reg.obs.ID()] != reg {
		h.mu.Unlock()
		return
	}
	reg.waiting = true
	h.mu.Unlock()

	go func() {
		select {
		case <-ready:
		case <-reg.done:
			return
		}
		h.mu.Lock()
		reg.waiting = false
		current := !h.closed && h.observers[reg.obs.ID()] == reg
		u := h.latest
		h.mu.Unlock()
		if current {
			h.send(reg, u, false)
		}
	}()
}

// resend fires from a timer. The snapshot is read at fire time so a resend
// never carries older data than a broadcast already delivered.
func (h *Hub) resend(reg *registration, p *pendingResend) {
	h.mu.Lock()
	if _, ok := reg.timers[p]; !ok {
		h.mu.Unlock()
		return
	}
	delete(reg.timers, p)
	u := h.latest
	h.mu.Unlock()

	h.send(reg, u, true)
}

func (h *Hub) send(reg *registration, u Update, resend bool) {
	if !reg.obs.Alive() {
		h.skipped.Add(1)
		return
	}

	reg.sendMu.Lock()
	defer reg.sendMu.Unlock()
	if reg.sentAny && u.Seq < reg.lastSeq {
		h.skipped.Add(1)
		return
	}
	if err := reg.obs.Send(u); err != nil {
		h.failed.Add(1)
		slog.Debug("send failed", "observer", reg.obs.ID(), "seq", u.Seq, "err", err)
		return
	}
	reg.lastSeq = u.Seq
	reg.sentAny = true
	if resend {
		h.resent.Add(1)
	} else {
		h.sent.Add(1)
	}
}

// dropLocked must be called with h.mu held.
func (h *Hub) dropLocked(reg *registration) {
	for p := range reg.timers {
		p.t.Stop()
	}
	clear(reg.timers)
	close(reg.done)
	if h.observers[reg.obs.ID()] == reg {
		delete(h.observers, reg.obs.ID())
	}
}

func (h *Hub) registrationsLocked() []*registration {
	out := make([]*registration, 0, len(h.observers))
	for _, r := range h.observers {
		out = append(out, r)
	}
	return out
}

func readyChan(o Observer) <-chan struct{} {
	if rn, ok := o.(ReadyNotifier); ok {
		return rn.Ready()
	}
	return nil
}
