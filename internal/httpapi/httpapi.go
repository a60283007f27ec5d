// Package httpapi serves the history over plain HTTP/JSON for scripts and
// browsers, plus a server-sent event stream of updates.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"go.klb.dev/clipmind/internal/clip"
	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/hub"
	"go.klb.dev/clipmind/internal/message"
	"go.klb.dev/clipmind/internal/service"
)

const sseWriteTimeout = 10 * time.Second

// Server routes HTTP requests to the service.
type Server struct {
	svc   *service.Service
	token string
	mux   *gwruntime.ServeMux
}

// New builds the route table. token may be empty to disable auth.
func New(svc *service.Service, token string) (*Server, error) {
	s := &Server{svc: svc, token: token, mux: gwruntime.NewServeMux()}

	routes := []struct {
		method, pattern string
		h               gwruntime.HandlerFunc
	}{
		{http.MethodGet, "/v1/history", s.handleHistory},
		{http.MethodDelete, "/v1/history", s.handleClear},
		{http.MethodPost, "/v1/history/{id}/copy", s.handleCopy},
		{http.MethodDelete, "/v1/history/{id}", s.handleDelete},
		{http.MethodPatch, "/v1/history/{id}", s.handleUpdate},
		{http.MethodGet, "/v1/status", s.handleStatus},
		{http.MethodGet, "/v1/events", s.handleEvents},
	}
	for _, r := range routes {
		if err := s.mux.HandlePath(r.method, r.pattern, r.h); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", r.method, r.pattern, err)
		}
	}
	return s, nil
}

// Handler returns the authenticated root handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || tok != s.token {
				writeError(w, http.StatusUnauthorized, errors.New("invalid token"))
				return
			}
		}
		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, s.svc.History())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.reply(w, s.svc.ClearHistory(r.Context()))
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request, p map[string]string) {
	s.reply(w, s.svc.CopyByID(r.Context(), p["id"]))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, p map[string]string) {
	s.reply(w, s.svc.DeleteItem(r.Context(), p["id"]))
}

type updateBody struct {
	Pinned *bool `json:"pinned"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, p map[string]string) {
	var body updateBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if body.Pinned == nil {
		writeError(w, http.StatusBadRequest, message.ErrMissingPinned)
		return
	}
	s.reply(w, s.svc.UpdateItem(r.Context(), p["id"], *body.Pinned))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// handleEvents streams every history update as a server-sent event. Each
// event carries the full snapshot, so a client that misses one loses nothing.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	rc := http.NewResponseController(w)
	deadlines := true

	writeAndFlush := func(data []byte) error {
		if deadlines {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				deadlines = false
			}
		}
		if _, err := fmt.Fprintf(w, "event: update-history\ndata: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	o := hub.NewStream(ctx, "sse/"+r.RemoteAddr+"/"+uuid.NewString()[:8])
	h := s.svc.Hub()
	h.Register(o)
	defer h.Unregister(o)
	slog.Debug("event stream opened", "observer", o.ID())

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-o.Updates():
			data, err := json.Marshal(event{Seq: u.Seq, History: u.History})
			if err != nil {
				slog.Error("encode event", "err", err)
				continue
			}
			if err := writeAndFlush(data); err != nil {
				slog.Debug("event stream closed", "observer", o.ID(), "err", err)
				return
			}
		}
	}
}

type event struct {
	Seq     uint64        `json:"seq"`
	History []entry.Entry `json:"history"`
}

func (s *Server) reply(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, message.ErrMissingID),
		errors.Is(err, entry.ErrUnknownKind),
		errors.Is(err, clip.ErrNotDataURL):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
