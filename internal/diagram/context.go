package diagram

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID accepts both string and numeric element ids.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("element id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Node is the assistant's view of a diagram node. Unknown fields are dropped.
type Node struct {
	ID     ID      `json:"id"`
	Label  string  `json:"label"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Shape  string  `json:"shape,omitempty"`
	Color  string  `json:"color,omitempty"`
}

type Connection struct {
	ID        ID     `json:"id"`
	From      ID     `json:"from"`
	To        ID     `json:"to"`
	Style     string `json:"style,omitempty"`
	Color     string `json:"color,omitempty"`
	LineStyle string `json:"lineStyle,omitempty"`
}

type Border struct {
	ID        ID      `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	W         float64 `json:"w"`
	H         float64 `json:"h"`
	Color     string  `json:"color,omitempty"`
	LineWidth float64 `json:"lineWidth,omitempty"`
}

type Statistics struct {
	NodeCount       int            `json:"nodeCount"`
	ConnectionCount int            `json:"connectionCount"`
	BorderCount     int            `json:"borderCount"`
	ShapeCounts     map[string]int `json:"shapeCounts,omitempty"`
	// DanglingConnections counts connections whose endpoints are missing.
	DanglingConnections int `json:"danglingConnections,omitempty"`
}

// Context is the diagram summary sent to the assistant with a user turn.
type Context struct {
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	Borders     []Border     `json:"borders"`
	Statistics  Statistics   `json:"statistics"`
}

// BuildContext decodes a snapshot into the assistant's view.
func BuildContext(s Snapshot) (*Context, error) {
	s = s.Normalize()
	c := &Context{}
	if err := json.Unmarshal(s.Nodes, &c.Nodes); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	if err := json.Unmarshal(s.Connections, &c.Connections); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}
	if err := json.Unmarshal(s.Borders, &c.Borders); err != nil {
		return nil, fmt.Errorf("decode borders: %w", err)
	}

	ids := make(map[ID]struct{}, len(c.Nodes))
	shapes := map[string]int{}
	for _, n := range c.Nodes {
		ids[n.ID] = struct{}{}
		if n.Shape != "" {
			shapes[n.Shape]++
		}
	}
	dangling := 0
	for _, conn := range c.Connections {
		_, okFrom := ids[conn.From]
		_, okTo := ids[conn.To]
		if !okFrom || !okTo {
			dangling++
		}
	}

	c.Statistics = Statistics{
		NodeCount:           len(c.Nodes),
		ConnectionCount:     len(c.Connections),
		BorderCount:         len(c.Borders),
		DanglingConnections: dangling,
	}
	if len(shapes) > 0 {
		c.Statistics.ShapeCounts = shapes
	}
	return c, nil
}

// Render wraps the context as {"diagram_context": ...}.
func (c *Context) Render() (string, error) {
	b, err := json.MarshalIndent(map[string]*Context{"diagram_context": c}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
