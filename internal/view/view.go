// Package view holds the presentation rules observers apply to a history:
// display order and search.
package view

import (
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"go.klb.dev/clipmind/internal/entry"
)

// Order returns a copy of history with pinned entries first, each group
// newest first. Entries with equal timestamps keep their relative order.
func Order(history []entry.Entry) []entry.Entry {
	out := entry.Clone(history)
	slices.SortStableFunc(out, func(a, b entry.Entry) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

// Filter keeps text entries containing query, ignoring case. An empty
// query keeps everything, images included.
func Filter(history []entry.Entry, query string) []entry.Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return entry.Clone(history)
	}
	out := make([]entry.Entry, 0, len(history))
	for _, e := range history {
		if e.Kind == entry.KindText && strings.Contains(strings.ToLower(e.Value), q) {
			out = append(out, e)
		}
	}
	return out
}

// Preview shortens a value for single-line display. Images render as a
// size tag.
func Preview(e entry.Entry, width int) string {
	if e.Kind == entry.KindImage {
		return "[image " + humanize.IBytes(uint64(len(e.Value)*3/4)) + "]"
	}
	s := strings.Join(strings.Fields(e.Value), " ")
	if width > 1 && len([]rune(s)) > width {
		r := []rune(s)
		s = string(r[:width-1]) + "…"
	}
	return s
}
