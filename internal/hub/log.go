package hub

import (
	"context"
	"log/slog"

	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/view"
)

const logPreviewWidth = 120

// LogHistory logs a history change at INFO (seq, size, pinned count) and at
// DEBUG one line per entry with a text preview, or the payload size for
// images.
func LogHistory(event string, u Update) {
	pinned := 0
	for _, e := range u.History {
		if e.Pinned {
			pinned++
		}
	}
	slog.Info(event, "seq", u.Seq, "entries", len(u.History), "pinned", pinned)

	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, e := range u.History {
		if e.Kind == entry.KindText {
			slog.Debug("history entry", "id", e.ID, "pinned", e.Pinned, "preview", view.Preview(e, logPreviewWidth))
		} else {
			slog.Debug("history entry", "id", e.ID, "pinned", e.Pinned, "kind", e.Kind, "size_bytes", len(e.Value))
		}
	}
}
