package types

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// JSONTree is an opaque recursive JSON value — the shape used for widget
// and semantics trees, whose upstream schema is not stable (spec §9). It
// is read with gjson accessors rather than unmarshalled into typed Go
// structs.
type JSONTree struct {
	raw json.RawMessage
}

// NewJSONTree wraps raw bytes as a JSONTree without validating them.
func NewJSONTree(raw []byte) JSONTree {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return JSONTree{raw: cp}
}

// IsZero reports whether the tree carries no payload.
func (t JSONTree) IsZero() bool {
	return len(t.raw) == 0
}

// Raw returns the underlying JSON bytes.
func (t JSONTree) Raw() []byte {
	return t.raw
}

// Get returns the gjson.Result for the given path, e.g. "children.0.text".
func (t JSONTree) Get(path string) gjson.Result {
	return gjson.GetBytes(t.raw, path)
}

// Pretty returns the tree re-encoded with 2-space indentation, per the
// on-disk widget_tree.json/semantics.json format.
func (t JSONTree) Pretty() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, t.raw, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler by passing the raw payload
// through unchanged.
func (t JSONTree) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return t.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler by storing the raw payload
// unchanged.
func (t *JSONTree) UnmarshalJSON(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	t.raw = cp
	return nil
}
