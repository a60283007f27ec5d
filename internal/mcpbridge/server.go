// Package mcpbridge exposes the clipboard history to MCP clients over stdio.
// It talks to a running daemon, so the agent sees the same history as every
// other observer.
package mcpbridge

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"google.golang.org/grpc"

	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/grpcservice"
)

// Backend is the daemon API the tools call. *grpcservice.Client satisfies it.
type Backend interface {
	History(ctx context.Context, opts ...grpc.CallOption) ([]entry.Entry, error)
	Copy(ctx context.Context, id string, opts ...grpc.CallOption) error
	Delete(ctx context.Context, id string, opts ...grpc.CallOption) error
	SetPinned(ctx context.Context, id string, pinned bool, opts ...grpc.CallOption) error
	Clear(ctx context.Context, opts ...grpc.CallOption) error
	Status(ctx context.Context, opts ...grpc.CallOption) (*grpcservice.StatusInfo, error)
}

type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var toolRegistry = map[string]toolEntry{
	"list_history": {
		def: mcp.NewTool("list_history",
			mcp.WithDescription("List clipboard history, pinned entries first, newest first."),
			mcp.WithString("query", mcp.Description("Case-insensitive substring to match against text entries.")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries to return.")),
			mcp.WithBoolean("include_images", mcp.Description("Include image data URLs instead of a size summary.")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"copy_item": {
		def: mcp.NewTool("copy_item",
			mcp.WithDescription("Put a history entry back on the system clipboard."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Entry id.")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCopy },
	},
	"delete_item": {
		def: mcp.NewTool("delete_item",
			mcp.WithDescription("Remove an entry from the history."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Entry id.")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"pin_item": {
		def: mcp.NewTool("pin_item",
			mcp.WithDescription("Pin or unpin a history entry."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Entry id.")),
			mcp.WithBoolean("pinned", mcp.Required(), mcp.Description("New pinned state.")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePin },
	},
	"clear_history": {
		def: mcp.NewTool("clear_history",
			mcp.WithDescription("Remove every entry, pinned ones included."),
			mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true.")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClear },
	},
	"status": {
		def: mcp.NewTool("status",
			mcp.WithDescription("Report history size, observers and delivery counters."),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStatus },
	},
}

// NewServer creates an MCP server with every tool registered.
func NewServer(b Backend, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"clipmind",
		version,
		server.WithToolCapabilities(true),
	)
	h := NewHandlers(b)
	for _, e := range toolRegistry {
		s.AddTool(e.def, e.handler(h))
	}
	return s
}

// Run serves MCP on stdin/stdout until the client disconnects.
func Run(b Backend, version string) error {
	return server.ServeStdio(NewServer(b, version))
}
