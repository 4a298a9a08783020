package nb2doc

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// markdownParser converts markdown cell content into document tree
// nodes. The conversion keeps block structure (headings in particular)
// so notebook markdown participates in the page's normal sectioning
// instead of being an opaque container.
type markdownParser struct {
	md goldmark.Markdown
}

func newMarkdownParser() *markdownParser {
	return &markdownParser{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithXHTML()),
		),
	}
}

// Parse converts markdown into tree nodes. Every produced node carries
// the document source path; block nodes carry the line of their first
// source segment offset by lineOffset (the cell's starting line).
func (p *markdownParser) Parse(markdown, source string, lineOffset int) []*Node {
	src := []byte(markdown)
	root := p.md.Parser().Parse(text.NewReader(src))

	var out []*Node
	for child := root.FirstChild(); child != nil; child = child.NextSibling() {
		out = append(out, p.convert(child, src)...)
	}
	for _, n := range out {
		n.SetLocationRecursive(source, lineOffset)
		offsetLines(n, lineOffset)
	}
	return out
}

// offsetLines shifts goldmark's 1-based lines by the cell offset where a
// specific line was recorded during conversion.
func offsetLines(n *Node, lineOffset int) {
	n.Walk(func(d *Node) bool {
		if rel, ok := d.Attrs["relative_line"].(int); ok {
			d.Line = lineOffset + rel - 1
			delete(d.Attrs, "relative_line")
		}
		return true
	})
}

// convert maps one goldmark AST node to tree nodes. Block kinds the
// tree has no vocabulary for (tables and the rest of GFM) fall back to
// a pre-rendered HTML fragment so nothing is silently dropped.
func (p *markdownParser) convert(n ast.Node, src []byte) []*Node {
	switch t := n.(type) {
	case *ast.Heading:
		node := p.blockNode(t, src, "heading")
		node.SetAttr("level", t.Level)
		node.Append(p.convertChildren(t, src)...)
		return []*Node{node}
	case *ast.Paragraph:
		node := p.blockNode(t, src, "paragraph")
		node.Append(p.convertChildren(t, src)...)
		return []*Node{node}
	case *ast.TextBlock:
		node := p.blockNode(t, src, "paragraph")
		node.Append(p.convertChildren(t, src)...)
		return []*Node{node}
	case *ast.Blockquote:
		node := p.blockNode(t, src, "block_quote")
		node.Append(p.convertChildren(t, src)...)
		return []*Node{node}
	case *ast.List:
		kind := "bullet_list"
		if t.IsOrdered() {
			kind = "enumerated_list"
		}
		node := NewNode(kind)
		if t.IsOrdered() && t.Start != 1 {
			node.SetAttr("start", t.Start)
		}
		node.Append(p.convertChildren(t, src)...)
		return []*Node{node}
	case *ast.ListItem:
		node := NewNode("list_item")
		node.Append(p.convertChildren(t, src)...)
		return []*Node{node}
	case *ast.FencedCodeBlock:
		node := p.blockNode(t, src, KindLiteralBlock)
		node.Text = segmentsText(t, src)
		if lang := t.Language(src); lang != nil {
			node.SetAttr("language", string(lang))
		}
		return []*Node{node}
	case *ast.CodeBlock:
		node := p.blockNode(t, src, KindLiteralBlock)
		node.Text = segmentsText(t, src)
		return []*Node{node}
	case *ast.ThematicBreak:
		return []*Node{NewNode("transition")}
	case *ast.HTMLBlock:
		node := NewNode(KindRaw)
		node.SetAttr("format", "html")
		node.Text = htmlBlockText(t, src)
		return []*Node{node}
	case *ast.Text:
		value := string(t.Segment.Value(src))
		if t.SoftLineBreak() {
			value += "\n"
		} else if t.HardLineBreak() {
			value += "\n"
		}
		if value == "" {
			return nil
		}
		return []*Node{TextNode(value)}
	case *ast.String:
		return []*Node{TextNode(string(t.Value))}
	case *ast.CodeSpan:
		node := NewNode("literal")
		node.Text = codeSpanText(t, src)
		return []*Node{node}
	case *ast.Emphasis:
		kind := "emphasis"
		if t.Level >= 2 {
			kind = "strong"
		}
		node := NewNode(kind)
		node.Append(p.convertChildren(t, src)...)
		return []*Node{node}
	case *ast.Link:
		node := NewNode("reference")
		node.SetAttr("uri", string(t.Destination))
		if len(t.Title) > 0 {
			node.SetAttr("title", string(t.Title))
		}
		node.Append(p.convertChildren(t, src)...)
		return []*Node{node}
	case *ast.AutoLink:
		node := NewNode("reference")
		node.SetAttr("uri", string(t.URL(src)))
		node.Append(TextNode(string(t.Label(src))))
		return []*Node{node}
	case *ast.Image:
		node := NewNode(KindImage)
		node.SetAttr("uri", string(t.Destination))
		node.SetAttr("alt", string(t.Text(src)))
		return []*Node{node}
	case *ast.RawHTML:
		node := NewNode(KindRaw)
		node.SetAttr("format", "html")
		node.Text = rawHTMLText(t, src)
		return []*Node{node}
	}
	return p.fallbackHTML(n, src)
}

func (p *markdownParser) convertChildren(n ast.Node, src []byte) []*Node {
	var out []*Node
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		out = append(out, p.convert(child, src)...)
	}
	return out
}

// blockNode creates a node recording the block's relative source line.
func (p *markdownParser) blockNode(n ast.Node, src []byte, kind string) *Node {
	node := NewNode(kind)
	if lines := n.Lines(); lines.Len() > 0 {
		seg := lines.At(0)
		node.SetAttr("relative_line", 1+bytes.Count(src[:seg.Start], []byte("\n")))
	}
	return node
}

// fallbackHTML renders an unmapped AST subtree through goldmark's HTML
// renderer and wraps it as a raw fragment.
func (p *markdownParser) fallbackHTML(n ast.Node, src []byte) []*Node {
	var buf bytes.Buffer
	if err := p.md.Renderer().Render(&buf, src, n); err != nil {
		return nil
	}
	fragment := strings.TrimSpace(buf.String())
	if fragment == "" {
		return nil
	}
	node := NewNode(KindRaw)
	node.SetAttr("format", "html")
	node.Text = fragment
	return []*Node{node}
}

func segmentsText(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func htmlBlockText(n *ast.HTMLBlock, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	if n.HasClosure() {
		b.Write(n.ClosureLine.Value(src))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func rawHTMLText(n *ast.RawHTML, src []byte) string {
	var b strings.Builder
	for i := 0; i < n.Segments.Len(); i++ {
		seg := n.Segments.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

func codeSpanText(n *ast.CodeSpan, src []byte) string {
	var b strings.Builder
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
		}
	}
	return b.String()
}
