// Package observer keeps a client-side copy of the daemon's history, fed by
// update-history notifications.
package observer

import (
	"sync"

	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/message"
)

// Mirror holds the last history received. Redundant or out-of-date
// notifications leave it unchanged, so applying the same update twice is
// the same as applying it once.
type Mirror struct {
	mu       sync.RWMutex
	seq      uint64
	history  []entry.Entry
	rejected int
	onChange func([]entry.Entry)
}

func NewMirror() *Mirror {
	return &Mirror{history: []entry.Entry{}}
}

// OnChange registers fn to be called with the new history after every
// accepted update.
func (m *Mirror) OnChange(fn func([]entry.Entry)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Apply consumes one message. It reports whether the visible history
// changed. Messages of other types are ignored. A malformed payload
// replaces the history with an empty list.
func (m *Mirror) Apply(msg *message.Message) bool {
	if msg.Type != message.TypeUpdateHistory {
		return false
	}
	hist, ok := message.DecodeHistory(msg.History)
	return m.Set(msg.Seq, hist, ok)
}

// Set installs hist as of seq. A seq of zero always applies.
func (m *Mirror) Set(seq uint64, hist []entry.Entry, valid bool) bool {
	m.mu.Lock()
	if seq != 0 && seq < m.seq {
		m.mu.Unlock()
		return false
	}
	if !valid {
		m.rejected++
		hist = []entry.Entry{}
	}
	changed := !equal(m.history, hist)
	if seq > m.seq {
		m.seq = seq
	}
	m.history = hist
	fn := m.onChange
	m.mu.Unlock()

	if changed && fn != nil {
		fn(entry.Clone(hist))
	}
	return changed
}

// History returns a copy of the current history.
func (m *Mirror) History() []entry.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return entry.Clone(m.history)
}

func (m *Mirror) Seq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

// Rejected counts malformed payloads seen so far.
func (m *Mirror) Rejected() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rejected
}

func equal(a, b []entry.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Pinned != b[i].Pinned || a[i].Value != b[i].Value || a[i].Kind != b[i].Kind {
			return false
		}
	}
	return true
}
