// Package poller samples the system clipboard on a fixed interval and hands
// new text and image content to the history.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.klb.dev/clipmind/internal/clip"
	"go.klb.dev/clipmind/internal/entry"
)

// DefaultInterval is the sampling period when none is configured.
const DefaultInterval = 500 * time.Millisecond

var (
	ErrInvalidInterval = errors.New("poller: interval must be positive")
	ErrAlreadyStarted  = errors.New("poller: already started")
)

// Sink receives candidate entries. It reports whether the entry was added
// (false means it duplicated existing content).
type Sink interface {
	Append(ctx context.Context, e entry.Entry) (bool, error)
}

type Config struct {
	Interval time.Duration
	// Source is recorded on captured entries; empty means entry.DefaultSource.
	Source string
}

// Poller tracks the last seen text and image independently, so a change in
// one never masks a change in the other.
type Poller struct {
	backend  clip.Backend
	sink     Sink
	interval time.Duration
	source   string

	mu        sync.Mutex
	lastText  string
	lastImage string
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(backend clip.Backend, sink Sink, cfg Config) *Poller {
	return &Poller{
		backend:  backend,
		sink:     sink,
		interval: cfg.Interval,
		source:   cfg.Source,
	}
}

// Start runs one sampling pass synchronously, so content already on the
// clipboard is captured before Start returns, then keeps sampling in the
// background until Stop or ctx is cancelled. A native change signal from
// the backend triggers an extra pass between ticks.
func (p *Poller) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return ErrInvalidInterval
	}
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	p.mu.Unlock()

	slog.Info("clipboard poller started", "backend", p.backend.Name(), "interval", p.interval)
	p.tick(ctx)

	go func() {
		defer p.wg.Done()
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.tick(ctx)
			case <-p.backend.Watch():
				p.tick(ctx)
			}
		}
	}()
	return nil
}

// Stop halts sampling and waits for an in-flight pass to finish. It is safe
// to call more than once, and before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		if p.cancel != nil {
			p.cancel()
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Suppress records value as already seen so a write-back of that content
// is not captured again as a fresh copy.
func (p *Poller) Suppress(kind entry.Kind, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch kind {
	case entry.KindText:
		p.lastText = entry.Normalize(kind, value)
	case entry.KindImage:
		p.lastImage = value
	}
}

func (p *Poller) tick(ctx context.Context) {
	c, err := p.backend.Read()
	if err != nil {
		slog.Warn("clipboard read failed", "err", err)
		return
	}

	// Whitespace-only text has no stored form; it leaves lastText alone.
	if t := strings.TrimSpace(c.Text); t != "" {
		p.offer(ctx, entry.KindText, c.Text, t, &p.lastText)
	}
	if len(c.Image) > 0 {
		url := clip.EncodeImage(c.Image)
		p.offer(ctx, entry.KindImage, url, url, &p.lastImage)
	}
}

// offer appends value if norm differs from *last. *last advances whether or
// not the history deduplicated it, but stays put on error so the next pass
// retries.
func (p *Poller) offer(ctx context.Context, kind entry.Kind, value, norm string, last *string) {
	p.mu.Lock()
	seen := *last == norm
	p.mu.Unlock()
	if seen {
		return
	}

	added, err := p.sink.Append(ctx, entry.New(kind, value, p.source))
	if err != nil {
		slog.Error("clipboard capture failed", "kind", kind, "err", err)
		return
	}
	p.mu.Lock()
	*last = norm
	p.mu.Unlock()
	slog.Debug("clipboard changed", "kind", kind, "added", added, "bytes", len(value))
}
