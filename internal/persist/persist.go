// Package persist keeps the serialized history under a single durable key.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.klb.dev/clipmind/internal/entry"
)

// HistoryKey is the key the history snapshot is stored under.
const HistoryKey = "history"

func encode(entries []entry.Entry) ([]byte, error) {
	if entries == nil {
		entries = []entry.Entry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("persist: encode history: %w", err)
	}
	return b, nil
}

// decode tolerates individually malformed elements by leaving them to the
// caller's sanitization; only a payload that is not a JSON array fails.
func decode(b []byte) ([]entry.Entry, error) {
	if len(b) == 0 {
		return []entry.Entry{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("persist: decode history: %w", err)
	}
	out := make([]entry.Entry, 0, len(raw))
	for _, r := range raw {
		var e entry.Entry
		if err := json.Unmarshal(r, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Memory is an in-process store, used when no data directory is configured
// and in tests.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(context.Context) ([]entry.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decode(m.data)
}

func (m *Memory) Save(_ context.Context, entries []entry.Entry) error {
	b, err := encode(entries)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
