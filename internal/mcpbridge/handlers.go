package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/view"
)

const previewWidth = 80

var errInvalid = errors.New("invalid request")

// Handlers holds the backend the tools call.
type Handlers struct {
	b Backend
}

func NewHandlers(b Backend) *Handlers { return &Handlers{b: b} }

// ListRequest is the list_history input.
type ListRequest struct {
	Query         string `json:"query,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	IncludeImages bool   `json:"include_images,omitempty"`
}

// IDRequest is the input of tools that take a single entry id.
type IDRequest struct {
	ID string `json:"id"`
}

// PinRequest is the pin_item input.
type PinRequest struct {
	ID     string `json:"id"`
	Pinned *bool  `json:"pinned"`
}

// ClearRequest is the clear_history input.
type ClearRequest struct {
	Confirm bool `json:"confirm"`
}

// Item is one entry as returned to the agent.
type Item struct {
	ID        string     `json:"id"`
	Type      entry.Kind `json:"type"`
	Preview   string     `json:"preview"`
	Value     string     `json:"value,omitempty"`
	Pinned    bool       `json:"pinned"`
	Source    string     `json:"source,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ListResult is the list_history output.
type ListResult struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(fmt.Errorf("%w: %v", errInvalid, err)), nil
	}
	if in.Limit < 0 {
		return errorResult(fmt.Errorf("%w: limit must not be negative", errInvalid)), nil
	}

	hist, err := h.b.History(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	matched := view.Order(view.Filter(hist, in.Query))

	out := ListResult{Items: make([]Item, 0, len(matched)), Total: len(matched)}
	for _, e := range matched {
		if in.Limit > 0 && len(out.Items) == in.Limit {
			break
		}
		it := Item{
			ID:        e.ID,
			Type:      e.Kind,
			Preview:   view.Preview(e, previewWidth),
			Pinned:    e.Pinned,
			Source:    e.Source,
			Timestamp: e.Timestamp,
		}
		if e.Kind == entry.KindText || in.IncludeImages {
			it.Value = e.Value
		}
		out.Items = append(out.Items, it)
	}
	return successResult(out)
}

func (h *Handlers) HandleCopy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decodeID(req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := h.b.Copy(ctx, in.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"copied": in.ID})
}

func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decodeID(req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := h.b.Delete(ctx, in.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": in.ID})
}

func (h *Handlers) HandlePin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[PinRequest](req)
	if err != nil {
		return errorResult(fmt.Errorf("%w: %v", errInvalid, err)), nil
	}
	if in.ID == "" {
		return errorResult(fmt.Errorf("%w: id is required", errInvalid)), nil
	}
	if in.Pinned == nil {
		return errorResult(fmt.Errorf("%w: pinned is required", errInvalid)), nil
	}
	if err := h.b.SetPinned(ctx, in.ID, *in.Pinned); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": in.ID, "pinned": *in.Pinned})
}

func (h *Handlers) HandleClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[ClearRequest](req)
	if err != nil {
		return errorResult(fmt.Errorf("%w: %v", errInvalid, err)), nil
	}
	if !in.Confirm {
		return errorResult(fmt.Errorf("%w: confirm must be true", errInvalid)), nil
	}
	if err := h.b.Clear(ctx); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"cleared": true})
}

func (h *Handlers) HandleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.b.Status(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(st)
}

func decodeID(req mcp.CallToolRequest) (IDRequest, error) {
	in, err := decode[IDRequest](req)
	if err != nil {
		return in, fmt.Errorf("%w: %v", errInvalid, err)
	}
	if in.ID == "" {
		return in, fmt.Errorf("%w: id is required", errInvalid)
	}
	return in, nil
}

// decode unmarshals the tool arguments into T.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return out, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("unmarshal args: %w", err)
	}
	return out, nil
}

// errorResult reports err to the client with IsError set. Internal errors
// keep their detail out of the payload.
func errorResult(err error) *mcp.CallToolResult {
	code, msg := "INTERNAL", "an internal error occurred"
	if errors.Is(err, errInvalid) {
		code, msg = "INVALID_REQUEST", err.Error()
	} else if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			code, msg = "NOT_FOUND", st.Message()
		case codes.InvalidArgument:
			code, msg = "INVALID_REQUEST", st.Message()
		case codes.Unavailable:
			code, msg = "UNAVAILABLE", "clipmind daemon is not reachable"
		case codes.Unauthenticated:
			code, msg = "UNAUTHENTICATED", st.Message()
		}
	}
	payload, _ := json.Marshal(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(payload)}},
		IsError: true,
	}
}

func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
