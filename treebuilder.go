package nb2doc

import (
	"fmt"
	"strings"
)

// TreeBuilder walks a notebook document model once and produces the
// format-agnostic document tree. Display-data outputs keep every
// candidate representation inside a mime-bundle node; the per-format
// choice happens later in ResolveMimeBundles.
type TreeBuilder struct {
	cfg      *Config
	nb       *Notebook
	renderer ElementRenderer
	logger   *DocLogger
	md       *markdownParser

	source string
	lexer  string

	doc     *Node
	docMeta map[string]any
}

// NewTreeBuilder creates a builder for one notebook. source is the
// document path recorded on every emitted node.
func NewTreeBuilder(nb *Notebook, cfg *Config, renderer ElementRenderer, logger *DocLogger, source string) *TreeBuilder {
	return &TreeBuilder{
		cfg:      cfg,
		nb:       nb,
		renderer: renderer,
		logger:   logger,
		md:       newMarkdownParser(),
		source:   source,
		docMeta:  map[string]any{},
	}
}

// Build renders the notebook into a document tree. Cells appear in
// document order; rendering never reorders them.
func (b *TreeBuilder) Build() *Node {
	b.doc = NewNode(KindDocument)
	b.doc.SetLocation(b.source, 1)
	b.lexer = ResolveLexer(b.nb.Language())

	b.renderMetadata()
	for _, cell := range b.nb.Cells {
		switch cell.Type {
		case CellMarkdown:
			b.renderMarkdownCell(cell)
		case CellCode:
			b.renderCodeCell(cell)
		case CellRaw:
			b.renderRawCell(cell)
		default:
			b.doc.Append(b.warningNode(
				fmt.Sprintf("unsupported cell type: %s", cell.Type),
				WarnOutputType, cell.Line))
		}
	}
	return b.doc
}

// DocMetadata returns the reserved notebook metadata (kernelspec,
// language_info, source_map) extracted during Build, for the
// per-document metadata store.
func (b *TreeBuilder) DocMetadata() map[string]any { return b.docMeta }

// renderMetadata extracts reserved keys into the side metadata and
// forwards the remainder, after the element renderer's transform, as
// front matter.
func (b *TreeBuilder) renderMetadata() {
	metadata := make(map[string]any, len(b.nb.Metadata))
	for k, v := range b.nb.Metadata {
		metadata[k] = v
	}
	for _, key := range reservedMetadataKeys {
		if value, ok := metadata[key]; ok {
			b.docMeta[key] = value
		}
	}

	metadata = b.renderer.RenderNbMetadata(metadata)

	topMatter := map[string]any{}
	for k, v := range metadata {
		if !isReservedMetadataKey(k) && k != b.cfg.MetadataKey {
			topMatter[k] = v
		}
	}
	if len(topMatter) == 0 {
		return
	}
	node := NewNode(KindFrontMatter)
	node.SetAttr("data", topMatter)
	node.SetLocation(b.source, 1)
	b.doc.Append(node)
}

func isReservedMetadataKey(key string) bool {
	for _, reserved := range reservedMetadataKeys {
		if key == reserved {
			return true
		}
	}
	return false
}

// renderMarkdownCell renders cell content as ordinary markup, with no
// wrapping container: wrapping would break the heading and section
// structure of the page.
func (b *TreeBuilder) renderMarkdownCell(cell *Cell) {
	b.doc.Append(b.md.Parse(cell.Source, b.source, cell.Line)...)
}

// renderRawCell delegates entirely to the element renderer.
func (b *TreeBuilder) renderRawCell(cell *Cell) {
	nodes := b.renderer.RenderRawCell(cell.Source, cell.Metadata, cell.Index, cell.Line)
	for _, n := range nodes {
		n.SetLocationRecursive(b.source, cell.Line)
	}
	b.doc.Append(nodes...)
}

// Cell tags that suppress the input or output region of a code cell.
// Both hyphenated and underscored spellings appear in the wild.
var (
	inputRemovalTags  = []string{"remove_input", "remove-input", "hide_input", "hide-input"}
	outputRemovalTags = []string{"remove_output", "remove-output", "hide_output", "hide-output"}
)

func hasAnyTag(cell *Cell, tags []string) bool {
	for _, tag := range tags {
		if cell.HasTag(tag) {
			return true
		}
	}
	return false
}

func (b *TreeBuilder) renderCodeCell(cell *Cell) {
	tags := cell.Tags()

	removeInput := b.cfg.CellFlag(cell.Metadata, "remove_code_source") || hasAnyTag(cell, inputRemovalTags)
	removeOutput := b.cfg.CellFlag(cell.Metadata, "remove_code_outputs") || hasAnyTag(cell, outputRemovalTags)

	// Removing both input and output removes the whole cell.
	if removeInput && removeOutput {
		return
	}

	container := NewNode(KindCell)
	container.AddClass("cell")
	for _, tag := range tags {
		container.AddClass("tag_" + strings.ReplaceAll(tag, " ", "_"))
	}
	container.SetAttr("cell_index", cell.Index)
	if cell.ExecutionCount != nil {
		container.SetAttr("exec_count", *cell.ExecutionCount)
	}
	container.SetAttr("cell_metadata", cell.Metadata)
	container.SetLocation(b.source, cell.Line)
	b.doc.Append(container)

	if !removeInput {
		input := NewNode(KindCellInput)
		input.AddClass("cell_input")
		input.SetLocation(b.source, cell.Line)
		input.Append(b.codeBlock(cell))
		container.Append(input)
	}

	if !removeOutput && len(cell.Outputs) > 0 {
		output := NewNode(KindCellOutput)
		output.AddClass("cell_output")
		output.SetLocation(b.source, cell.Line)
		b.renderCodeCellOutputs(cell, output)
		container.Append(output)
	}
}

// codeBlock renders a cell's source as a syntax-highlightable code
// block with the notebook's resolved lexer.
func (b *TreeBuilder) codeBlock(cell *Cell) *Node {
	node := NewNode(KindLiteralBlock)
	node.Text = cell.Source
	node.SetAttr("language", b.lexer)
	node.SetAttr("number_lines", b.cfg.CellFlag(cell.Metadata, "number_source_lines"))
	node.SetLocation(b.source, cell.Line)
	return node
}

// renderCodeCellOutputs renders a cell's outputs, in original order,
// into the given output container.
func (b *TreeBuilder) renderCodeCellOutputs(cell *Cell, parent *Node) {
	line := cell.Line
	for outputIndex, out := range cell.Outputs {
		switch out.Type {
		case OutputStream:
			switch out.Name {
			case "stdout":
				b.appendPluginNodes(parent, b.renderer.RenderStdout(out, cell.Metadata, cell.Index, line), line)
			case "stderr":
				b.appendPluginNodes(parent, b.renderer.RenderStderr(out, cell.Metadata, cell.Index, line), line)
			default:
				// Reserved: other stream names are ignored for now.
			}
		case OutputError:
			b.appendPluginNodes(parent, b.renderer.RenderError(out, cell.Metadata, cell.Index, line), line)
		case OutputDisplayData, OutputExecuteResult:
			b.renderDisplayData(cell, out, outputIndex, parent, line)
		default:
			parent.Append(b.warningNode(
				fmt.Sprintf("unsupported output type: %s", out.Type),
				WarnOutputType, line))
		}
	}
}

// renderDisplayData emits one mime-bundle node holding a mime-container
// per representation. All candidates are retained here; the per-format
// selection is deferred to the post-transform.
func (b *TreeBuilder) renderDisplayData(cell *Cell, out *Output, outputIndex int, parent *Node, line int) {
	// A missing figure option is "no figure wrapping", not an error.
	var figureOptions map[string]any
	if value, err := b.cfg.CellOption(cell.Metadata, "figure", "", false); err == nil {
		figureOptions, _ = value.(map[string]any)
	}

	bundle := NewNode(KindMimeBundle)
	bundle.SetLocation(b.source, line)

	for _, mimeType := range out.Data.Keys() {
		payload, _ := out.Data.Get(mimeType)
		container := NewNode(KindMimeContainer)
		container.SetAttr("mime_type", mimeType)
		container.SetLocation(b.source, line)

		nodes := b.renderer.RenderMimeType(MimeData{
			MimeType:       mimeType,
			Payload:        payload,
			CellMetadata:   cell.Metadata,
			OutputMetadata: out.Metadata,
			CellIndex:      cell.Index,
			OutputIndex:    outputIndex,
			Line:           line,
		})
		for _, n := range nodes {
			n.SetLocationRecursive(b.source, line)
		}
		container.Append(nodes...)

		// A representation that rendered to nothing is dropped.
		if len(container.Children) > 0 {
			bundle.Append(container)
		}
	}

	// A bundle with no surviving representation is dropped entirely.
	if len(bundle.Children) == 0 {
		return
	}

	if figureOptions != nil {
		parent.Append(b.figureNode(figureOptions, bundle, line))
		return
	}
	parent.Append(bundle)
}

// figureNode wraps a mime bundle in a figure for caption and numbering
// semantics.
func (b *TreeBuilder) figureNode(options map[string]any, bundle *Node, line int) *Node {
	fig := NewNode(KindFigure)
	fig.SetLocation(b.source, line)
	if name, ok := options["name"].(string); ok && name != "" {
		fig.SetAttr("name", name)
	}
	if align, ok := options["align"].(string); ok && align != "" {
		fig.SetAttr("align", align)
	}
	if classes, ok := options["classes"].([]any); ok {
		for _, c := range classes {
			if class, ok := c.(string); ok {
				fig.AddClass(class)
			}
		}
	}
	fig.Append(bundle)
	if caption, ok := options["caption"].(string); ok && caption != "" {
		captionNode := NewNode(KindCaption)
		captionNode.SetLocation(b.source, line)
		captionNode.Append(b.md.Parse(caption, b.source, line)...)
		fig.Append(captionNode)
	}
	return fig
}

func (b *TreeBuilder) appendPluginNodes(parent *Node, nodes []*Node, line int) {
	for _, n := range nodes {
		n.SetLocationRecursive(b.source, line)
	}
	parent.Append(nodes...)
}

// warningNode logs a diagnostic and returns an inline warning node so
// the problem is visible in the rendered page too.
func (b *TreeBuilder) warningNode(msg, subtype string, line int) *Node {
	if b.logger != nil {
		b.logger.Warning(msg, subtype, line)
	}
	node := NewNode(KindWarning)
	node.AddClass("admonition", "warning")
	node.SetAttr("subtype", subtype)
	node.SetLocation(b.source, line)
	node.Append(TextNode(msg))
	return node
}
