package nb2doc

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// htmlPageTemplate wraps a rendered body fragment in a complete HTML5
// document. The verbs are: title, head extras (CSS link and script
// tags), body.
const htmlPageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
%s</head>
<body>
%s
</body>
</html>`

// HTMLWriter renders resolved document trees to HTML pages. It expects
// trees that have been through ResolveMimeBundles; leftover bundle
// nodes are rendered as their children so a writer bug never hides
// content.
type HTMLWriter struct{}

// WritePage renders a full HTML page for a resolved tree. cssHrefs and
// jsFiles become link and script tags in the head; script files are
// emitted in sorted key order for stable output.
func (w *HTMLWriter) WritePage(doc *Node, title string, cssHrefs []string, jsFiles map[string]JsFile) string {
	var head strings.Builder
	for _, href := range cssHrefs {
		fmt.Fprintf(&head, "<link rel=\"stylesheet\" href=%q/>\n", href)
	}
	keys := make([]string, 0, len(jsFiles))
	for k := range jsFiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		file := jsFiles[key]
		var attrs strings.Builder
		optKeys := make([]string, 0, len(file.Options))
		for opt := range file.Options {
			optKeys = append(optKeys, opt)
		}
		sort.Strings(optKeys)
		for _, opt := range optKeys {
			fmt.Fprintf(&attrs, " %s=%q", opt, file.Options[opt])
		}
		fmt.Fprintf(&head, "<script src=%q%s></script>\n", file.URI, attrs.String())
	}
	return fmt.Sprintf(htmlPageTemplate, html.EscapeString(title), head.String(), w.RenderBody(doc))
}

// RenderBody renders the tree to an HTML body fragment.
func (w *HTMLWriter) RenderBody(doc *Node) string {
	var b strings.Builder
	for _, child := range doc.Children {
		w.render(&b, child)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (w *HTMLWriter) render(b *strings.Builder, n *Node) {
	switch n.Kind {
	case "text":
		b.WriteString(html.EscapeString(n.Text))
	case "heading":
		level, _ := n.Attr("level").(int)
		if level < 1 || level > 6 {
			level = 6
		}
		fmt.Fprintf(b, "<h%d>", level)
		w.renderChildren(b, n)
		fmt.Fprintf(b, "</h%d>\n", level)
	case "paragraph":
		b.WriteString("<p>")
		w.renderChildren(b, n)
		b.WriteString("</p>\n")
	case "emphasis":
		w.wrapInline(b, n, "em")
	case "strong":
		w.wrapInline(b, n, "strong")
	case "literal":
		b.WriteString("<code>")
		b.WriteString(html.EscapeString(n.Text))
		b.WriteString("</code>")
	case KindLiteralBlock:
		w.renderLiteralBlock(b, n)
	case "reference":
		fmt.Fprintf(b, "<a href=%q>", n.StringAttr("uri"))
		w.renderChildren(b, n)
		b.WriteString("</a>")
	case KindImage:
		fmt.Fprintf(b, "<img src=%q alt=%q/>\n", n.StringAttr("uri"), n.StringAttr("alt"))
	case "bullet_list":
		w.wrapBlock(b, n, "ul")
	case "enumerated_list":
		w.wrapBlock(b, n, "ol")
	case "list_item":
		w.wrapBlock(b, n, "li")
	case "block_quote":
		w.wrapBlock(b, n, "blockquote")
	case "transition":
		b.WriteString("<hr/>\n")
	case KindRaw:
		if n.StringAttr("format") == "html" {
			b.WriteString(n.Text)
			b.WriteString("\n")
		}
	case KindMathBlock:
		fmt.Fprintf(b, "<div class=\"math notranslate\">\\[%s\\]</div>\n", html.EscapeString(n.Text))
	case KindFigure:
		fmt.Fprintf(b, "<figure%s>\n", classAttr(n.Classes))
		w.renderChildren(b, n)
		b.WriteString("</figure>\n")
	case KindCaption:
		b.WriteString("<figcaption>")
		w.renderChildren(b, n)
		b.WriteString("</figcaption>\n")
	case KindWarning:
		fmt.Fprintf(b, "<div%s>", classAttr(n.Classes))
		w.renderChildren(b, n)
		b.WriteString("</div>\n")
	case KindFrontMatter:
		w.renderFrontMatter(b, n)
	case KindCell, KindCellInput, KindCellOutput:
		fmt.Fprintf(b, "<div%s>\n", classAttr(n.Classes))
		w.renderChildren(b, n)
		b.WriteString("</div>\n")
	default:
		w.renderChildren(b, n)
	}
}

func (w *HTMLWriter) renderChildren(b *strings.Builder, n *Node) {
	for _, child := range n.Children {
		w.render(b, child)
	}
}

func (w *HTMLWriter) wrapInline(b *strings.Builder, n *Node, tag string) {
	fmt.Fprintf(b, "<%s>", tag)
	w.renderChildren(b, n)
	fmt.Fprintf(b, "</%s>", tag)
}

func (w *HTMLWriter) wrapBlock(b *strings.Builder, n *Node, tag string) {
	fmt.Fprintf(b, "<%s>\n", tag)
	w.renderChildren(b, n)
	fmt.Fprintf(b, "</%s>\n", tag)
}

// renderLiteralBlock emits syntax-highlighted code, falling back to an
// escaped pre block when highlighting fails.
func (w *HTMLWriter) renderLiteralBlock(b *strings.Builder, n *Node) {
	language := n.StringAttr("language")
	numberLines, _ := n.Attr("number_lines").(bool)
	fmt.Fprintf(b, "<div%s>\n", classAttr(append([]string{"highlight"}, n.Classes...)))
	highlighted, err := HighlightHTML(n.Text, language, numberLines)
	if err != nil {
		fmt.Fprintf(b, "<pre>%s</pre>\n", html.EscapeString(n.Text))
	} else {
		b.WriteString(highlighted)
		b.WriteString("\n")
	}
	b.WriteString("</div>\n")
}

// renderFrontMatter emits notebook front matter as a definition list,
// keys sorted for stable output.
func (w *HTMLWriter) renderFrontMatter(b *strings.Builder, n *Node) {
	data, ok := n.Attr("data").(map[string]any)
	if !ok || len(data) == 0 {
		return
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("<dl class=\"front-matter\">\n")
	for _, key := range keys {
		fmt.Fprintf(b, "<dt>%s</dt><dd>%s</dd>\n",
			html.EscapeString(key), html.EscapeString(fmt.Sprint(data[key])))
	}
	b.WriteString("</dl>\n")
}

func classAttr(classes []string) string {
	if len(classes) == 0 {
		return ""
	}
	return fmt.Sprintf(" class=%q", strings.Join(classes, " "))
}
