package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Diagram edit tools the assistant may call. A call is only a proposal: the
// editor applies it after the user approves.
const (
	ToolCreateNode       = "create_node"
	ToolUpdateNode       = "update_node"
	ToolDeleteNode       = "delete_node"
	ToolCreateConnection = "create_connection"
	ToolDeleteConnection = "delete_connection"
	ToolCreateBorder     = "create_border"
	ToolDeleteBorder     = "delete_border"
	ToolArrangeNodes     = "arrange_nodes"
	ToolClearDiagram     = "clear_diagram"
)

// ToolDefinition is a function tool in the provider's request schema.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

type FunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func functionTool(name, description, parameters string) ToolDefinition {
	return ToolDefinition{
		Type:     "function",
		Function: FunctionSpec{Name: name, Description: description, Parameters: json.RawMessage(parameters)},
	}
}

const nodeRef = `{"type":"string","description":"Node id or label (case-insensitive)"}`

var diagramTools = []ToolDefinition{
	functionTool(ToolCreateNode, "Create a node. Use \"auto\" for x and y to place it automatically.", `{
		"type":"object",
		"properties":{
			"label":{"type":"string"},
			"shape":{"type":"string","enum":["rectangle","circle","diamond"]},
			"color":{"type":"string","description":"CSS color, e.g. #3b82f6"},
			"x":{"type":["number","string"]},
			"y":{"type":["number","string"]},
			"width":{"type":"number"},
			"height":{"type":"number"}
		},
		"required":["label"]
	}`),
	functionTool(ToolUpdateNode, "Change a node's label, shape, color, position or size.", `{
		"type":"object",
		"properties":{
			"node":`+nodeRef+`,
			"label":{"type":"string"},
			"shape":{"type":"string","enum":["rectangle","circle","diamond"]},
			"color":{"type":"string"},
			"x":{"type":"number"},
			"y":{"type":"number"},
			"width":{"type":"number"},
			"height":{"type":"number"}
		},
		"required":["node"]
	}`),
	functionTool(ToolDeleteNode, "Delete a node and its connections.", `{
		"type":"object",
		"properties":{"node":`+nodeRef+`},
		"required":["node"]
	}`),
	functionTool(ToolCreateConnection, "Connect two existing nodes.", `{
		"type":"object",
		"properties":{
			"fromNodeId":`+nodeRef+`,
			"toNodeId":`+nodeRef+`,
			"style":{"type":"string","enum":["curved","straight","orthogonal"]},
			"color":{"type":"string"},
			"lineStyle":{"type":"string","enum":["solid","dashed","dotted"]}
		},
		"required":["fromNodeId","toNodeId"]
	}`),
	functionTool(ToolDeleteConnection, "Delete a connection by id, or the connection between two nodes.", `{
		"type":"object",
		"properties":{
			"connectionId":{"type":"string"},
			"fromNodeId":`+nodeRef+`,
			"toNodeId":`+nodeRef+`
		}
	}`),
	functionTool(ToolCreateBorder, "Draw a border rectangle that groups elements.", `{
		"type":"object",
		"properties":{
			"x":{"type":"number"},
			"y":{"type":"number"},
			"w":{"type":"number"},
			"h":{"type":"number"},
			"color":{"type":"string"},
			"nodes":{"type":"array","items":`+nodeRef+`,"description":"Fit the border around these nodes instead of x/y/w/h"}
		}
	}`),
	functionTool(ToolDeleteBorder, "Delete a border.", `{
		"type":"object",
		"properties":{"borderId":{"type":"string"}},
		"required":["borderId"]
	}`),
	functionTool(ToolArrangeNodes, "Lay out all nodes.", `{
		"type":"object",
		"properties":{"layout":{"type":"string","enum":["vertical","horizontal","grid","circle"]}},
		"required":["layout"]
	}`),
	functionTool(ToolClearDiagram, "Remove every node, connection and border.", `{"type":"object","properties":{}}`),
}

// DiagramTools returns the tool schema sent with every upstream request.
func DiagramTools() []ToolDefinition {
	return append([]ToolDefinition(nil), diagramTools...)
}

func knownTool(name string) bool {
	for _, t := range diagramTools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}

// ToolCall is a diagram edit proposed by the assistant. Arguments is a JSON
// object.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallDelta is one streamed fragment of a tool call. Providers send the
// arguments either as string fragments or as a whole JSON object.
type ToolCallDelta struct {
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string          `json:"name,omitempty"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	} `json:"function"`
}

type pendingCall struct {
	id   string
	name string
	args bytes.Buffer
}

// toolCallAccumulator merges tool call fragments across frames. Fragments
// are matched by index, then by id; a fragment with neither continues the
// last call.
type toolCallAccumulator struct {
	calls   []*pendingCall
	byIndex map[int]*pendingCall
}

func (a *toolCallAccumulator) add(d ToolCallDelta) {
	call := a.match(d)
	if d.ID != "" {
		call.id = d.ID
	}
	if d.Function.Name != "" {
		call.name = d.Function.Name
	}
	appendArguments(&call.args, d.Function.Arguments)
}

func (a *toolCallAccumulator) match(d ToolCallDelta) *pendingCall {
	if d.Index != nil {
		if a.byIndex == nil {
			a.byIndex = make(map[int]*pendingCall)
		}
		if c, ok := a.byIndex[*d.Index]; ok {
			return c
		}
		c := a.start()
		a.byIndex[*d.Index] = c
		return c
	}
	if d.ID != "" {
		for _, c := range a.calls {
			if c.id == d.ID {
				return c
			}
		}
		return a.start()
	}
	if len(a.calls) == 0 {
		return a.start()
	}
	return a.calls[len(a.calls)-1]
}

func (a *toolCallAccumulator) start() *pendingCall {
	c := &pendingCall{}
	a.calls = append(a.calls, c)
	return c
}

func appendArguments(buf *bytes.Buffer, raw json.RawMessage) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			buf.WriteString(s)
			return
		}
	}
	buf.Write(raw)
}

// proposals returns the complete, well-formed calls. Unknown tools and
// arguments that are not a JSON object are logged and dropped.
func (a *toolCallAccumulator) proposals(log *slog.Logger) []ToolCall {
	var out []ToolCall
	for i, c := range a.calls {
		call, err := c.build(i)
		if err != nil {
			log.Warn("dropping tool call", "tool", c.name, "error", err)
			continue
		}
		out = append(out, call)
	}
	return out
}

func (c *pendingCall) build(i int) (ToolCall, error) {
	if !knownTool(c.name) {
		return ToolCall{}, fmt.Errorf("unknown tool %q", c.name)
	}
	args := bytes.TrimSpace(c.args.Bytes())
	if len(args) == 0 {
		args = []byte(`{}`)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil {
		return ToolCall{}, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	id := c.id
	if id == "" {
		id = fmt.Sprintf("call-%d", i)
	}
	return ToolCall{ID: id, Name: c.name, Arguments: json.RawMessage(append([]byte(nil), args...))}, nil
}

// summarizeProposals stands in for the text of a reply that only proposed
// edits.
func summarizeProposals(calls []ToolCall) string {
	counts := make(map[string]int)
	var order []string
	for _, c := range calls {
		if counts[c.Name] == 0 {
			order = append(order, c.Name)
		}
		counts[c.Name]++
	}
	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, fmt.Sprintf("%s x%d", name, counts[name]))
	}
	return "Proposed diagram changes: " + strings.Join(parts, ", ")
}
