package nb2doc

import (
	"fmt"
	"slices"
	"strings"
)

// Node kinds emitted by the tree builder. Format-specific writers may
// encounter additional kinds produced by element renderer plugins.
const (
	KindDocument      = "document"
	KindFrontMatter   = "front_matter"
	KindCell          = "cell"
	KindCellInput     = "cell_input"
	KindCellOutput    = "cell_output"
	KindMimeBundle    = "mime_bundle"
	KindMimeContainer = "mime_container"
	KindFigure        = "figure"
	KindCaption       = "caption"
	KindWarning       = "warning"
	KindRaw           = "raw"
	KindImage         = "image"
	KindMathBlock     = "math_block"
	KindLiteralBlock  = "literal_block"
)

// Node is a generic document tree node: a semantic kind, style classes,
// free-form attributes, ordered children and a source location. It is the
// format-agnostic intermediate representation between notebook parsing and
// per-format output.
type Node struct {
	Kind     string
	Classes  []string
	Attrs    map[string]any
	Children []*Node

	// Text holds leaf content (literal blocks, text runs, raw fragments).
	Text string

	// Source location for diagnostics and jump-to-source.
	Source string
	Line   int

	parent *Node
}

// NewNode creates a node of the given kind with an empty attribute map.
func NewNode(kind string) *Node {
	return &Node{Kind: kind, Attrs: map[string]any{}}
}

// Append adds children in order, reparenting them to n.
func (n *Node) Append(children ...*Node) {
	for _, c := range children {
		if c == nil {
			continue
		}
		c.parent = n
		n.Children = append(n.Children, c)
	}
}

// Parent returns the node this node is attached to, or nil for roots.
func (n *Node) Parent() *Node { return n.parent }

// SetAttr sets a single attribute, allocating the map if needed.
func (n *Node) SetAttr(key string, value any) {
	if n.Attrs == nil {
		n.Attrs = map[string]any{}
	}
	n.Attrs[key] = value
}

// Attr returns an attribute value, or nil if unset.
func (n *Node) Attr(key string) any {
	if n.Attrs == nil {
		return nil
	}
	return n.Attrs[key]
}

// StringAttr returns a string attribute, or "" if unset or not a string.
func (n *Node) StringAttr(key string) string {
	s, _ := n.Attr(key).(string)
	return s
}

// AddClass appends style classes, skipping duplicates.
func (n *Node) AddClass(classes ...string) {
	for _, c := range classes {
		if !slices.Contains(n.Classes, c) {
			n.Classes = append(n.Classes, c)
		}
	}
}

// SetLocation records the source path and line on n.
func (n *Node) SetLocation(source string, line int) {
	n.Source = source
	n.Line = line
}

// SetLocationRecursive records the source path and line on n and every
// descendant that does not already carry one.
func (n *Node) SetLocationRecursive(source string, line int) {
	n.Walk(func(d *Node) bool {
		if d.Source == "" {
			d.Source = source
			d.Line = line
		}
		return true
	})
}

// Walk visits n and its descendants in document order. Returning false
// from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FindAll returns every descendant (including n) matching pred, in
// document order.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var found []*Node
	n.Walk(func(d *Node) bool {
		if pred(d) {
			found = append(found, d)
		}
		return true
	})
	return found
}

// Remove detaches n from its parent. It is a no-op for roots.
func (n *Node) Remove() {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = slices.Delete(p.Children, i, i+1)
			break
		}
	}
	n.parent = nil
}

// ReplaceWith splices replacement nodes into n's position in its parent,
// detaching n. Passing no replacements is equivalent to Remove.
func (n *Node) ReplaceWith(replacements ...*Node) {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c != n {
			continue
		}
		for _, r := range replacements {
			r.parent = p
		}
		p.Children = slices.Concat(p.Children[:i:i], replacements, p.Children[i+1:])
		break
	}
	n.parent = nil
}

// Clone returns a deep copy of the subtree rooted at n. The copy is
// detached (its parent is nil), so one parsed tree can be resolved
// independently for several output formats.
func (n *Node) Clone() *Node {
	c := &Node{
		Kind:    n.Kind,
		Classes: slices.Clone(n.Classes),
		Text:    n.Text,
		Source:  n.Source,
		Line:    n.Line,
	}
	if n.Attrs != nil {
		c.Attrs = make(map[string]any, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = v
		}
	}
	for _, child := range n.Children {
		c.Append(child.Clone())
	}
	return c
}

// String renders a compact one-line description, mainly for tests and
// debug logging.
func (n *Node) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s", n.Kind)
	if len(n.Classes) > 0 {
		fmt.Fprintf(&b, " classes=%q", strings.Join(n.Classes, " "))
	}
	if n.Text != "" {
		fmt.Fprintf(&b, " text=%q", truncate(n.Text, 40))
	}
	fmt.Fprintf(&b, " children=%d>", len(n.Children))
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// TextNode creates a plain text run.
func TextNode(text string) *Node {
	n := NewNode("text")
	n.Text = text
	return n
}
