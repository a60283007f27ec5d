// Package service executes observer commands against the history and keeps
// every observer in step with the result.
//
// All mutations (captures from the poller and commands from observers) run
// under one lock that spans store mutation, persistence and broadcast, so
// broadcasts go out in the order mutations complete.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.klb.dev/clipmind/internal/clip"
	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/history"
	"go.klb.dev/clipmind/internal/hub"
	"go.klb.dev/clipmind/internal/message"
)

var (
	ErrNotFound       = errors.New("service: no entry with that id")
	ErrUnknownCommand = errors.New("service: unknown command")
)

// ClipboardWriter is the part of clip.Backend the service needs.
type ClipboardWriter interface {
	Write(c clip.Contents) error
}

type Service struct {
	store *history.Store
	hub   *hub.Hub
	clip  ClipboardWriter

	mu        sync.Mutex
	writeBack func(entry.Kind, string)
}

// New wires store, hub and clipboard together and seeds the hub with the
// loaded history so new observers see it immediately.
func New(store *history.Store, h *hub.Hub, cw ClipboardWriter) *Service {
	s := &Service{store: store, hub: h, clip: cw}
	h.Broadcast(store.Snapshot())
	return s
}

// OnWriteBack registers fn to be told about content the service put on the
// clipboard, so the poller does not capture it as a fresh copy.
func (s *Service) OnWriteBack(fn func(kind entry.Kind, value string)) {
	s.mu.Lock()
	s.writeBack = fn
	s.mu.Unlock()
}

// History returns the current snapshot.
func (s *Service) History() []entry.Entry { return s.store.Snapshot() }

func (s *Service) Hub() *hub.Hub { return s.hub }

// StatusInfo summarises the daemon for status commands.
type StatusInfo struct {
	Entries   int                `json:"entries" yaml:"entries"`
	MaxItems  int                `json:"max_items" yaml:"max_items"`
	Policy    string             `json:"policy" yaml:"policy"`
	Observers []hub.ObserverInfo `json:"observers" yaml:"observers"`
	Stats     hub.Stats          `json:"stats" yaml:"stats"`
}

func (s *Service) Status() StatusInfo {
	return StatusInfo{
		Entries:   s.store.Len(),
		MaxItems:  s.store.MaxItems(),
		Policy:    string(s.store.Policy()),
		Observers: s.hub.Observers(),
		Stats:     s.hub.Stats(),
	}
}

// Append adds a captured entry and broadcasts when it was new.
func (s *Service) Append(ctx context.Context, e entry.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.Append(ctx, e)
	if err != nil {
		return false, err
	}
	if !res.Added {
		return false, nil
	}
	for _, ev := range res.Evicted {
		slog.Debug("history entry evicted", "id", ev.ID, "pinned", ev.Pinned)
	}
	s.broadcast("history appended", res.History)
	return true, nil
}

// RequestHistory sends the current history to o only.
func (s *Service) RequestHistory(o hub.Observer) {
	s.hub.SendTo(o)
}

// CopyToClipboard writes e's content to the system clipboard. The history
// itself is not changed.
func (s *Service) CopyToClipboard(_ context.Context, e entry.Entry) error {
	var c clip.Contents
	switch e.Kind {
	case entry.KindText:
		c.Text = e.Value
	case entry.KindImage:
		png, err := clip.DecodeImage(e.Value)
		if err != nil {
			return err
		}
		c.Image = png
	default:
		return fmt.Errorf("%w: %q", entry.ErrUnknownKind, e.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.clip.Write(c); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	if s.writeBack != nil {
		s.writeBack(e.Kind, e.Value)
	}
	slog.Info("copied to clipboard", "kind", e.Kind, "id", e.ID)
	return nil
}

// CopyByID copies the stored entry with id.
func (s *Service) CopyByID(ctx context.Context, id string) error {
	e, ok := s.store.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.CopyToClipboard(ctx, e)
}

// DeleteItem removes id. Deleting an unknown id still persists and
// broadcasts the unchanged history.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if id == "" {
		return message.ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hist, err := s.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	s.broadcast("history item deleted", hist)
	return nil
}

// UpdateItem changes only the pinned flag of id.
func (s *Service) UpdateItem(ctx context.Context, id string, pinned bool) error {
	if id == "" {
		return message.ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hist, err := s.store.UpdatePinned(ctx, id, pinned)
	if err != nil {
		return err
	}
	s.broadcast("history item updated", hist)
	return nil
}

// ClearHistory removes every entry, pinned ones included.
func (s *Service) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist, err := s.store.Clear(ctx)
	if err != nil {
		return err
	}
	s.broadcast("history cleared", hist)
	return nil
}

// Dispatch runs one observer command. Malformed commands are logged and
// ignored; the returned error is informational.
func (s *Service) Dispatch(ctx context.Context, o hub.Observer, msg *message.Message) error {
	err := s.dispatch(ctx, o, msg)
	if err != nil {
		slog.Warn("command failed", "observer", o.ID(), "type", msg.Type, "err", err)
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, o hub.Observer, msg *message.Message) error {
	switch msg.Type {
	case message.TypeGetHistory:
		s.RequestHistory(o)
		return nil
	case message.TypeCopy:
		e, err := msg.CopyItem()
		if err != nil {
			return err
		}
		return s.CopyToClipboard(ctx, e)
	case message.TypeDeleteItem:
		id, err := msg.DeleteID()
		if err != nil {
			return err
		}
		return s.DeleteItem(ctx, id)
	case message.TypeUpdateItem:
		id, pinned, err := msg.PinUpdate()
		if err != nil {
			return err
		}
		return s.UpdateItem(ctx, id, pinned)
	case message.TypeClearHistory:
		return s.ClearHistory(ctx)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Type)
}

// broadcast must be called with s.mu held.
func (s *Service) broadcast(event string, hist []entry.Entry) {
	u := s.hub.Broadcast(hist)
	hub.LogHistory(event, u)
}
