package message

import (
	"bytes"
	"encoding/json"

	"go.klb.dev/clipmind/internal/entry"
)

var requiredFields = []string{"id", "value", "timestamp"}

// DecodeHistory validates a history payload received from the other side
// of a process boundary. It must be a JSON array of objects, each with an
// id, a type (or kind), a value and a numeric timestamp. Anything else is
// treated as no data and ok is false; the returned slice is then empty,
// never nil.
func DecodeHistory(raw json.RawMessage) (history []entry.Entry, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return []entry.Entry{}, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return []entry.Entry{}, false
	}
	out := make([]entry.Entry, 0, len(elems))
	for _, el := range elems {
		e, ok := decodeEntry(el)
		if !ok {
			return []entry.Entry{}, false
		}
		out = append(out, e)
	}
	return out, true
}

func decodeEntry(raw json.RawMessage) (entry.Entry, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return entry.Entry{}, false
	}
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return entry.Entry{}, false
		}
	}
	if _, ok := fields["type"]; !ok {
		if _, ok := fields["kind"]; !ok {
			return entry.Entry{}, false
		}
	}
	var ts float64
	if err := json.Unmarshal(fields["timestamp"], &ts); err != nil {
		return entry.Entry{}, false
	}
	var e entry.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return entry.Entry{}, false
	}
	if e.ID == "" || !e.Kind.Valid() {
		return entry.Entry{}, false
	}
	return e, true
}
