// Package message defines the clipmind observer protocol.
//
// All messages are newline-delimited JSON, one message per line. Observers
// send commands (get-history, copy-to-clipboard, delete-item, update-item,
// clear-history) and lifecycle events (show, hide, ready); the daemon sends
// update-history notifications carrying the full history.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.klb.dev/clipmind/internal/entry"
)

// Type identifies the kind of message.
type Type string

const (
	// Observer → daemon commands.
	TypeGetHistory   Type = "get-history"
	TypeCopy         Type = "copy-to-clipboard"
	TypeDeleteItem   Type = "delete-item"
	TypeUpdateItem   Type = "update-item"
	TypeClearHistory Type = "clear-history"

	// Observer lifecycle.
	TypeHello Type = "hello"
	TypeShow  Type = "show"
	TypeHide  Type = "hide"
	TypeReady Type = "ready"

	// Daemon → observer.
	TypeUpdateHistory Type = "update-history"
	TypeError         Type = "error"
)

var (
	ErrMissingID      = errors.New("message: missing item id")
	ErrMissingPinned  = errors.New("message: missing pinned flag")
	ErrMissingPayload = errors.New("message: missing item payload")
)

// Message is the top-level wire envelope.
type Message struct {
	// Always present
	Type   Type   `json:"type"`
	Source string `json:"source,omitempty"`

	// delete-item
	ID string `json:"id,omitempty"`

	// copy-to-clipboard carries a whole entry, update-item {id, pinned}.
	Item json.RawMessage `json:"item,omitempty"`

	// hello: the observer will send "ready" before it can accept updates.
	Handshake bool `json:"handshake,omitempty"`
	// hello: the observer starts out visible.
	Visible bool `json:"visible,omitempty"`

	// update-history
	Seq     uint64          `json:"seq,omitempty"`
	History json.RawMessage `json:"history,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	return &m, nil
}

// NewUpdateHistory builds the notification sent to observers.
func NewUpdateHistory(seq uint64, history []entry.Entry) (*Message, error) {
	if history == nil {
		history = []entry.Entry{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return &Message{Type: TypeUpdateHistory, Seq: seq, History: raw}, nil
}

func NewCopy(e entry.Entry) (*Message, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return &Message{Type: TypeCopy, Item: raw}, nil
}

func NewUpdateItem(id string, pinned bool) *Message {
	raw, _ := json.Marshal(pinUpdate{ID: id, Pinned: &pinned})
	return &Message{Type: TypeUpdateItem, Item: raw}
}

func NewError(err error) *Message {
	return &Message{Type: TypeError, Error: err.Error()}
}

// CopyItem returns the entry carried by copy-to-clipboard. Only the kind
// and value are required; the rest are informational.
func (m *Message) CopyItem() (entry.Entry, error) {
	if len(m.Item) == 0 {
		return entry.Entry{}, ErrMissingPayload
	}
	var e entry.Entry
	if err := json.Unmarshal(m.Item, &e); err != nil {
		return entry.Entry{}, fmt.Errorf("decode item: %w", err)
	}
	if !e.Kind.Valid() {
		return entry.Entry{}, fmt.Errorf("%w: %q", entry.ErrUnknownKind, e.Kind)
	}
	if entry.Normalize(e.Kind, e.Value) == "" {
		return entry.Entry{}, entry.ErrEmptyValue
	}
	return e, nil
}

type pinUpdate struct {
	ID     string `json:"id"`
	Pinned *bool  `json:"pinned"`
}

// PinUpdate returns the id and pinned flag of update-item. Any other fields
// in the payload are ignored.
func (m *Message) PinUpdate() (string, bool, error) {
	if len(m.Item) == 0 {
		return "", false, ErrMissingPayload
	}
	var u pinUpdate
	if err := json.Unmarshal(m.Item, &u); err != nil {
		return "", false, fmt.Errorf("decode item: %w", err)
	}
	if u.ID == "" {
		return "", false, ErrMissingID
	}
	if u.Pinned == nil {
		return "", false, ErrMissingPinned
	}
	return u.ID, *u.Pinned, nil
}

// DeleteID returns the id named by delete-item.
func (m *Message) DeleteID() (string, error) {
	if m.ID == "" {
		return "", ErrMissingID
	}
	return m.ID, nil
}
