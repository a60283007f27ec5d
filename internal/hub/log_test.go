package hub

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipmind/internal/entry"
)

func TestLogHistoryPreviewKeepsRunesWhole(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	e := entry.NewText("a" + strings.Repeat("é", 200))
	LogHistory("history changed", Update{Seq: 3, History: []entry.Entry{e}})

	var preview string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if p, ok := rec["preview"].(string); ok {
			preview = p
		}
	}
	require.NotEmpty(t, preview)
	assert.True(t, utf8.ValidString(preview))
	assert.NotContains(t, preview, "\uFFFD")
	assert.Equal(t, logPreviewWidth, utf8.RuneCountInString(preview))
	assert.True(t, strings.HasSuffix(preview, "…"))
}
