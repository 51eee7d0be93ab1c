// Package diagram holds the diagram state value passed between the editor,
// the project store and the assistant.
package diagram

import (
	"bytes"
	"encoding/json"
)

var emptyArray = json.RawMessage(`[]`)

// Snapshot is the full diagram state at one instant. The element payloads
// are kept as raw JSON so fields the backend does not model survive storage
// and export untouched. A Snapshot is treated as immutable once handed out.
type Snapshot struct {
	Nodes       json.RawMessage `json:"nodes"`
	Connections json.RawMessage `json:"connections"`
	Borders     json.RawMessage `json:"borders"`
}

// Empty returns a diagram with no elements.
func Empty() Snapshot {
	return Snapshot{Nodes: emptyArray, Connections: emptyArray, Borders: emptyArray}
}

// Normalize replaces missing or null element lists with empty arrays.
func (s Snapshot) Normalize() Snapshot {
	if isNull(s.Nodes) {
		s.Nodes = emptyArray
	}
	if isNull(s.Connections) {
		s.Connections = emptyArray
	}
	if isNull(s.Borders) {
		s.Borders = emptyArray
	}
	return s
}

// Equal reports whether two snapshots hold the same JSON values.
func (s Snapshot) Equal(o Snapshot) bool {
	return jsonEqual(s.Nodes, o.Nodes) &&
		jsonEqual(s.Connections, o.Connections) &&
		jsonEqual(s.Borders, o.Borders)
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

func jsonEqual(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Compact(&cb, b); err != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
