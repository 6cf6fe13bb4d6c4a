package synth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FragmentTag marks a node that only groups its children.
const FragmentTag = "#fragment"

// Node is one element of a rendered tree. Text nodes carry only Text.
type Node struct {
	Tag      string         `json:"tag,omitempty"`
	Text     string         `json:"text,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
	Handlers map[string]int `json:"handlers,omitempty"`
	Children []*Node        `json:"children,omitempty"`
}

// IsText reports whether n is a text leaf.
func (n *Node) IsText() bool {
	return n.Tag == ""
}

// Prop returns a prop rendered as a string, or "" when absent.
func (n *Node) Prop(name string) string {
	v, ok := n.Props[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

// TextContent concatenates the text of n and all its descendants.
func (n *Node) TextContent() string {
	var sb strings.Builder
	n.Walk(func(c *Node) bool {
		if c.IsText() {
			sb.WriteString(c.Text)
		}
		return true
	})
	return sb.String()
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Interactive is an element the user can act on from the terminal.
type Interactive struct {
	Index int
	Node  *Node
}

// Label is a short description for the interactive list.
func (i Interactive) Label() string {
	text := strings.TrimSpace(i.Node.TextContent())
	if text == "" {
		text = i.Node.Prop("placeholder")
	}
	if text == "" {
		text = i.Node.Prop("value")
	}
	if len(text) > 40 {
		text = text[:40] + "…"
	}
	return fmt.Sprintf("[%d] <%s> %s", i.Index, i.Node.Tag, text)
}

// Handler returns the id of the first of names that n handles.
func (i Interactive) Handler(names ...string) (int, bool) {
	for _, name := range names {
		if id, ok := i.Node.Handlers[name]; ok {
			return id, true
		}
	}
	return 0, false
}

// Interactives lists the elements with event handlers in document order,
// numbered from 1.
func (n *Node) Interactives() []Interactive {
	var out []Interactive
	n.Walk(func(c *Node) bool {
		if len(c.Handlers) > 0 {
			out = append(out, Interactive{Index: len(out) + 1, Node: c})
		}
		return true
	})
	return out
}

func parseTree(data string) (*Node, error) {
	var n Node
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return nil, fmt.Errorf("failed to decode render tree: %w", err)
	}
	return &n, nil
}
