package grpcservice

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/message"
)

var errMalformedHistory = errors.New("grpcservice: malformed history payload")

func entryValue(e entry.Entry) map[string]any {
	m := map[string]any{
		"id":        e.ID,
		"type":      string(e.Kind),
		"value":     e.Value,
		"timestamp": float64(e.Timestamp.UnixMilli()),
		"pinned":    e.Pinned,
	}
	if e.Source != "" {
		m["source"] = e.Source
	}
	return m
}

func toList(history []entry.Entry) (*structpb.ListValue, error) {
	vals := make([]any, len(history))
	for i, e := range history {
		vals[i] = entryValue(e)
	}
	return structpb.NewList(vals)
}

// fromList runs the payload through the same validation as any other
// history crossing a process boundary.
func fromList(lv *structpb.ListValue) ([]entry.Entry, error) {
	raw, err := json.Marshal(lv.AsSlice())
	if err != nil {
		return nil, err
	}
	hist, ok := message.DecodeHistory(raw)
	if !ok {
		return nil, errMalformedHistory
	}
	return hist, nil
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("grpcservice: decode struct: %w", err)
	}
	return nil
}
