// Package history holds the bounded, deduplicated, newest-first clipboard
// history and keeps it in step with a persister.
//
// Every mutation persists the full resulting list before the in-memory
// copy is replaced. If the write fails the store is left untouched and the
// error is returned, so memory and storage never diverge.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.klb.dev/clipmind/internal/entry"
)

// DefaultMaxItems bounds the history when no limit is configured.
const DefaultMaxItems = 20

// Policy selects which entry is dropped when the bound is exceeded.
type Policy string

const (
	// EvictOldest drops the oldest entries whether or not they are pinned.
	EvictOldest Policy = "evict-oldest"
	// KeepPinned drops the oldest unpinned entry first and only falls back
	// to pinned entries when nothing else can go.
	KeepPinned Policy = "keep-pinned"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case EvictOldest, KeepPinned:
		return p, nil
	case "":
		return EvictOldest, nil
	}
	return "", fmt.Errorf("history: unknown eviction policy %q", s)
}

var ErrInvalidEntry = errors.New("history: invalid entry")

// Persister loads and saves the whole history.
type Persister interface {
	Load(ctx context.Context) ([]entry.Entry, error)
	Save(ctx context.Context, entries []entry.Entry) error
}

type Options struct {
	MaxItems int
	Policy   Policy
}

// AppendResult reports what Append did. History is always the post-call
// snapshot, whether or not the candidate was added.
type AppendResult struct {
	Added   bool
	History []entry.Entry
	Evicted []entry.Entry
}

type Store struct {
	mu       sync.Mutex
	p        Persister
	maxItems int
	policy   Policy
	items    []entry.Entry
}

// Open loads the persisted history, dropping malformed or duplicate
// entries and anything past the bound. A load failure is returned.
func Open(ctx context.Context, p Persister, opts Options) (*Store, error) {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Policy == "" {
		opts.Policy = EvictOldest
	}
	s := &Store{p: p, maxItems: opts.MaxItems, policy: opts.Policy}

	loaded, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	items, dropped := sanitize(loaded)
	items, evicted := s.truncate(items)
	if dropped > 0 || len(evicted) > 0 {
		slog.Warn("history: discarded stored entries", "invalid", dropped, "over_limit", len(evicted))
	}
	s.items = items
	return s, nil
}

func sanitize(in []entry.Entry) ([]entry.Entry, int) {
	seen := make(map[entry.Key]bool, len(in))
	out := make([]entry.Entry, 0, len(in))
	for _, e := range in {
		if e.Validate() != nil || seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		if e.Source == "" {
			e.Source = entry.DefaultSource
		}
		out = append(out, e)
	}
	return out, len(in) - len(out)
}

func (s *Store) MaxItems() int  { return s.maxItems }
func (s *Store) Policy() Policy { return s.policy }

// Snapshot returns a copy of the current history, newest first.
func (s *Store) Snapshot() []entry.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entry.Clone(s.items)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Find returns the entry with the given id.
func (s *Store) Find(id string) (entry.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.items {
		if e.ID == id {
			return e, true
		}
	}
	return entry.Entry{}, false
}

// Append prepends e unless an entry with the same content already exists,
// in which case nothing changes and nothing is written.
func (s *Store) Append(ctx context.Context, e entry.Entry) (AppendResult, error) {
	if err := e.Validate(); err != nil {
		return AppendResult{}, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	if e.Source == "" {
		e.Source = entry.DefaultSource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cur := range s.items {
		if entry.SameContent(cur, e) {
			return AppendResult{History: entry.Clone(s.items)}, nil
		}
	}

	next := make([]entry.Entry, 0, len(s.items)+1)
	next = append(next, e)
	next = append(next, s.items...)
	next, evicted := s.truncate(next)

	if err := s.commit(ctx, next); err != nil {
		return AppendResult{History: entry.Clone(s.items)}, err
	}
	return AppendResult{Added: true, History: entry.Clone(next), Evicted: evicted}, nil
}

// Remove deletes the entry with id. A missing id leaves the list as is.
func (s *Store) Remove(ctx context.Context, id string) ([]entry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]entry.Entry, 0, len(s.items))
	for _, e := range s.items {
		if e.ID != id {
			next = append(next, e)
		}
	}
	if err := s.commit(ctx, next); err != nil {
		return entry.Clone(s.items), err
	}
	return entry.Clone(next), nil
}

// UpdatePinned sets the pinned flag of id and nothing else.
func (s *Store) UpdatePinned(ctx context.Context, id string, pinned bool) ([]entry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := entry.Clone(s.items)
	for i := range next {
		if next[i].ID == id {
			next[i].Pinned = pinned
		}
	}
	if err := s.commit(ctx, next); err != nil {
		return entry.Clone(s.items), err
	}
	return entry.Clone(next), nil
}

// Clear empties the history, pinned entries included.
func (s *Store) Clear(ctx context.Context) ([]entry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := []entry.Entry{}
	if err := s.commit(ctx, next); err != nil {
		return entry.Clone(s.items), err
	}
	return entry.Clone(next), nil
}

// commit must be called with s.mu held.
func (s *Store) commit(ctx context.Context, next []entry.Entry) error {
	if err := s.p.Save(ctx, next); err != nil {
		return fmt.Errorf("history: persist: %w", err)
	}
	s.items = next
	return nil
}

// truncate enforces the bound on a newest-first list. Index 0 is the most
// recent insert and is never chosen while another candidate exists.
func (s *Store) truncate(items []entry.Entry) ([]entry.Entry, []entry.Entry) {
	var evicted []entry.Entry
	for len(items) > s.maxItems {
		victim := len(items) - 1
		if s.policy == KeepPinned {
			for i := len(items) - 1; i > 0; i-- {
				if !items[i].Pinned {
					victim = i
					break
				}
			}
		}
		evicted = append(evicted, items[victim])
		items = append(items[:victim:victim], items[victim+1:]...)
	}
	return items, evicted
}
