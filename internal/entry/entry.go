// Package entry defines a single clipboard history record and the content
// identity rules used for deduplication.
package entry

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind is the content type of an entry.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// DefaultSource is recorded for entries captured from the system clipboard.
const DefaultSource = "system"

var (
	ErrMissingID   = errors.New("entry: missing id")
	ErrUnknownKind = errors.New("entry: unknown kind")
	ErrEmptyValue  = errors.New("entry: empty value")
)

// ParseKind accepts "text" or "image".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindText, KindImage:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) Valid() bool { return k == KindText || k == KindImage }

// Entry is one captured clipboard item. Images are carried as
// "data:image/png;base64,..." URLs so every entry serializes as text.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	Kind      Kind      `json:"type" yaml:"type"`
	Value     string    `json:"value" yaml:"value"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
	Pinned    bool      `json:"pinned" yaml:"pinned"`
}

var (
	idMu    sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a fresh, lexically time-ordered identifier.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// New builds an unpinned entry stamped with the current time.
func New(kind Kind, value, source string) Entry {
	if source == "" {
		source = DefaultSource
	}
	return Entry{
		ID:        NewID(),
		Kind:      kind,
		Value:     value,
		Timestamp: time.Now(),
		Source:    source,
	}
}

func NewText(value string) Entry    { return New(KindText, value, DefaultSource) }
func NewImage(dataURL string) Entry { return New(KindImage, dataURL, DefaultSource) }

// Validate reports whether e is well-formed enough to be stored.
func (e Entry) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	if Normalize(e.Kind, e.Value) == "" {
		return ErrEmptyValue
	}
	return nil
}

// Normalize returns the form of value used for equality. Text is compared
// with surrounding whitespace removed; images compare on the exact URL.
func Normalize(kind Kind, value string) string {
	if kind == KindText {
		return strings.TrimSpace(value)
	}
	return value
}

// Key identifies content regardless of id, time or pin state.
type Key struct {
	Kind  Kind
	Value string
}

func (e Entry) Key() Key { return Key{Kind: e.Kind, Value: Normalize(e.Kind, e.Value)} }

// SameContent reports whether a and b are duplicates of each other.
func SameContent(a, b Entry) bool { return a.Key() == b.Key() }

// Clone copies a slice of entries. Entries hold no pointers so a shallow
// copy is independent of the source.
func Clone(in []Entry) []Entry {
	if in == nil {
		return []Entry{}
	}
	out := make([]Entry, len(in))
	copy(out, in)
	return out
}

// jsonEntry is the wire form: timestamps are Unix milliseconds and "kind"
// is accepted as an alias for "type" on input.
type jsonEntry struct {
	ID        string `json:"id"`
	Type      Kind   `json:"type"`
	Kind      Kind   `json:"kind,omitempty"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source,omitempty"`
	Pinned    bool   `json:"pinned"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	var ms int64
	if !e.Timestamp.IsZero() {
		ms = e.Timestamp.UnixMilli()
	}
	return json.Marshal(jsonEntry{
		ID:        e.ID,
		Type:      e.Kind,
		Value:     e.Value,
		Timestamp: ms,
		Source:    e.Source,
		Pinned:    e.Pinned,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var j jsonEntry
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	kind := j.Type
	if kind == "" {
		kind = j.Kind
	}
	*e = Entry{
		ID:     j.ID,
		Kind:   kind,
		Value:  j.Value,
		Source: j.Source,
		Pinned: j.Pinned,
	}
	if j.Timestamp != 0 {
		e.Timestamp = time.UnixMilli(j.Timestamp)
	}
	return nil
}
