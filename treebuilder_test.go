package nb2doc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func intPtr(n int) *int { return &n }

func newTestRenderer(t *testing.T) ElementRenderer {
	t.Helper()
	factory, err := LoadRenderer(DefaultRenderPlugin)
	if err != nil {
		t.Fatalf("LoadRenderer() error = %v", err)
	}
	return factory(RendererOptions{OutputDir: t.TempDir(), URIPrefix: DefaultOutputFolder})
}

func buildNotebook(t *testing.T, nb *Notebook) *Node {
	t.Helper()
	cfg := DefaultConfig()
	return NewTreeBuilder(nb, &cfg, newTestRenderer(t), nil, "doc.ipynb").Build()
}

func nodesOfKind(doc *Node, kind string) []*Node {
	return doc.FindAll(func(n *Node) bool { return n.Kind == kind })
}

func codeCell(tags []string, outputs ...*Output) *Cell {
	metadata := map[string]any{}
	if tags != nil {
		raw := make([]any, len(tags))
		for i, tag := range tags {
			raw[i] = tag
		}
		metadata["tags"] = raw
	}
	return &Cell{
		Type:           CellCode,
		Source:         "print(1)",
		Metadata:       metadata,
		ExecutionCount: intPtr(1),
		Outputs:        outputs,
		Line:           1,
	}
}

func stdoutOutput(text string) *Output {
	return &Output{Type: OutputStream, Name: "stdout", Text: text, Metadata: map[string]any{}}
}

func resultOutput(mimeTypes ...string) *Output {
	data := NewMimeBundleData()
	for _, mimeType := range mimeTypes {
		data.Set(mimeType, MimePayload{Text: "payload for " + mimeType})
	}
	return &Output{Type: OutputExecuteResult, Data: data, Metadata: map[string]any{}}
}

func TestBuildRemoveBothDropsCell(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells:    []*Cell{codeCell([]string{"remove-input", "remove-output"}, stdoutOutput("hi\n"))},
		Metadata: map[string]any{},
	}
	doc := buildNotebook(t, nb)

	if len(doc.Children) != 0 {
		t.Errorf("doc children = %d, want 0 (cell removed entirely)", len(doc.Children))
	}
}

func TestBuildRemoveInputKeepsOutputs(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells:    []*Cell{codeCell([]string{"remove-input"}, stdoutOutput("hi\n"))},
		Metadata: map[string]any{},
	}
	doc := buildNotebook(t, nb)

	if got := len(nodesOfKind(doc, KindCell)); got != 1 {
		t.Fatalf("cell nodes = %d, want 1", got)
	}
	if got := len(nodesOfKind(doc, KindCellInput)); got != 0 {
		t.Errorf("cell_input nodes = %d, want 0", got)
	}
	if got := len(nodesOfKind(doc, KindCellOutput)); got != 1 {
		t.Errorf("cell_output nodes = %d, want 1", got)
	}
}

func TestBuildHideInputTag(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells:    []*Cell{codeCell([]string{"hide-input"}, stdoutOutput("hi\n"))},
		Metadata: map[string]any{},
	}
	doc := buildNotebook(t, nb)

	if got := len(nodesOfKind(doc, KindCellInput)); got != 0 {
		t.Errorf("cell_input nodes = %d, want 0", got)
	}
	if got := len(nodesOfKind(doc, KindCellOutput)); got != 1 {
		t.Errorf("cell_output nodes = %d, want 1", got)
	}
}

func TestBuildRemoveInputViaCellOption(t *testing.T) {
	t.Parallel()

	cell := codeCell(nil, stdoutOutput("hi\n"))
	cell.Metadata["render"] = map[string]any{"remove_code_source": true}
	nb := &Notebook{Cells: []*Cell{cell}, Metadata: map[string]any{}}
	doc := buildNotebook(t, nb)

	if got := len(nodesOfKind(doc, KindCellInput)); got != 0 {
		t.Errorf("cell_input nodes = %d, want 0", got)
	}
}

func TestBuildTagClasses(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells:    []*Cell{codeCell([]string{"hide cell", "important"})},
		Metadata: map[string]any{},
	}
	doc := buildNotebook(t, nb)

	cells := nodesOfKind(doc, KindCell)
	if len(cells) != 1 {
		t.Fatalf("cell nodes = %d, want 1", len(cells))
	}
	classes := strings.Join(cells[0].Classes, " ")
	for _, want := range []string{"cell", "tag_hide_cell", "tag_important"} {
		if !strings.Contains(classes, want) {
			t.Errorf("classes = %q, missing %q", classes, want)
		}
	}
}

func TestBuildStreamOrderPreserved(t *testing.T) {
	t.Parallel()

	stderr := &Output{Type: OutputStream, Name: "stderr", Text: "oops\n", Metadata: map[string]any{}}
	nb := &Notebook{
		Cells:    []*Cell{codeCell(nil, stdoutOutput("first\n"), stderr, stdoutOutput("third\n"))},
		Metadata: map[string]any{},
	}
	doc := buildNotebook(t, nb)

	outputs := nodesOfKind(doc, KindCellOutput)
	if len(outputs) != 1 {
		t.Fatalf("cell_output nodes = %d, want 1", len(outputs))
	}
	if got := len(outputs[0].Children); got != 3 {
		t.Fatalf("rendered outputs = %d, want 3", got)
	}
	wantTexts := []string{"first\n", "oops\n", "third\n"}
	for i, want := range wantTexts {
		if got := outputs[0].Children[i].Text; got != want {
			t.Errorf("output[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestBuildDisplayDataKeepsAllRepresentations(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells:    []*Cell{codeCell(nil, resultOutput("text/plain", "text/html", "text/latex"))},
		Metadata: map[string]any{},
	}
	doc := buildNotebook(t, nb)

	bundles := nodesOfKind(doc, KindMimeBundle)
	if len(bundles) != 1 {
		t.Fatalf("mime bundles = %d, want 1", len(bundles))
	}
	containers := bundles[0].Children
	if len(containers) != 3 {
		t.Fatalf("mime containers = %d, want 3", len(containers))
	}
	want := []string{"text/plain", "text/html", "text/latex"}
	for i, mimeType := range want {
		if got := containers[i].StringAttr("mime_type"); got != mimeType {
			t.Errorf("container[%d] mime_type = %q, want %q", i, got, mimeType)
		}
	}
}

func TestBuildEmptyRepresentationDropped(t *testing.T) {
	t.Parallel()

	// An unhandled mime type renders to nothing: its container must not
	// appear, and a bundle with no survivors disappears.
	nb := &Notebook{
		Cells:    []*Cell{codeCell(nil, resultOutput("application/x-unknown"))},
		Metadata: map[string]any{},
	}
	doc := buildNotebook(t, nb)

	if got := len(nodesOfKind(doc, KindMimeBundle)); got != 0 {
		t.Errorf("mime bundles = %d, want 0", got)
	}
}

func TestBuildUnknownOutputTypeWarns(t *testing.T) {
	t.Parallel()

	bogus := &Output{Type: "mystery", Metadata: map[string]any{}}
	nb := &Notebook{
		Cells:    []*Cell{codeCell(nil, bogus, stdoutOutput("still here\n"))},
		Metadata: map[string]any{},
	}

	var buf bytes.Buffer
	logger := NewDocLogger(NewLogger(&buf, log.WarnLevel), "doc.ipynb")
	cfg := DefaultConfig()
	doc := NewTreeBuilder(nb, &cfg, newTestRenderer(t), logger, "doc.ipynb").Build()

	warnings := nodesOfKind(doc, KindWarning)
	if len(warnings) != 1 {
		t.Fatalf("warning nodes = %d, want 1", len(warnings))
	}
	if got := warnings[0].StringAttr("subtype"); got != WarnOutputType {
		t.Errorf("warning subtype = %q, want %q", got, WarnOutputType)
	}
	if !strings.Contains(buf.String(), "mystery") {
		t.Errorf("diagnostic does not name the output type: %s", buf.String())
	}

	// The bad output must not stop the rest of the cell from rendering.
	outputs := nodesOfKind(doc, KindCellOutput)
	if len(outputs) != 1 || len(outputs[0].Children) != 2 {
		t.Error("outputs after the unknown one were dropped")
	}
}

func TestBuildFigureWrapping(t *testing.T) {
	t.Parallel()

	cell := codeCell(nil, resultOutput("text/plain"))
	cell.Metadata["render"] = map[string]any{
		"figure": map[string]any{
			"name":    "fig-answer",
			"caption": "The **answer**",
		},
	}
	nb := &Notebook{Cells: []*Cell{cell}, Metadata: map[string]any{}}
	doc := buildNotebook(t, nb)

	figures := nodesOfKind(doc, KindFigure)
	if len(figures) != 1 {
		t.Fatalf("figure nodes = %d, want 1", len(figures))
	}
	fig := figures[0]
	if got := fig.StringAttr("name"); got != "fig-answer" {
		t.Errorf("figure name = %q", got)
	}
	if len(nodesOfKind(fig, KindMimeBundle)) != 1 {
		t.Error("figure does not wrap the mime bundle")
	}
	captions := nodesOfKind(fig, KindCaption)
	if len(captions) != 1 {
		t.Fatalf("caption nodes = %d, want 1", len(captions))
	}
	if len(nodesOfKind(captions[0], "strong")) != 1 {
		t.Error("caption markdown not parsed")
	}
}

func TestBuildFrontMatterAndDocMetadata(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Metadata: map[string]any{
			"kernelspec": map[string]any{"name": "python3"},
			"authors":    "jane",
			"nb2doc":     map[string]any{"remove_code_outputs": true},
		},
	}
	cfg := DefaultConfig()
	builder := NewTreeBuilder(nb, &cfg, newTestRenderer(t), nil, "doc.ipynb")
	doc := builder.Build()

	fronts := nodesOfKind(doc, KindFrontMatter)
	if len(fronts) != 1 {
		t.Fatalf("front_matter nodes = %d, want 1", len(fronts))
	}
	data, _ := fronts[0].Attr("data").(map[string]any)
	if data["authors"] != "jane" {
		t.Errorf("front matter data = %v, want authors entry", data)
	}
	if _, ok := data["kernelspec"]; ok {
		t.Error("reserved key leaked into front matter")
	}
	if _, ok := data["nb2doc"]; ok {
		t.Error("tool configuration leaked into front matter")
	}
	if _, ok := builder.DocMetadata()["kernelspec"]; !ok {
		t.Error("kernelspec missing from document metadata")
	}
}

func TestBuildMarkdownCellNotWrapped(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells: []*Cell{{
			Type:     CellMarkdown,
			Source:   "# Title\n\nBody text.\n",
			Metadata: map[string]any{},
			Line:     1,
		}},
		Metadata: map[string]any{},
	}
	doc := buildNotebook(t, nb)

	if len(nodesOfKind(doc, KindCell)) != 0 {
		t.Error("markdown content must not be wrapped in a cell container")
	}
	if len(doc.Children) < 2 || doc.Children[0].Kind != "heading" {
		t.Errorf("doc children = %v, want heading first", doc.Children)
	}
}

func TestBuildRawCell(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells: []*Cell{{
			Type:     CellRaw,
			Source:   "<hr/>",
			Metadata: map[string]any{"format": "text/html"},
			Line:     1,
		}},
		Metadata: map[string]any{},
	}
	doc := buildNotebook(t, nb)

	raws := nodesOfKind(doc, KindRaw)
	if len(raws) != 1 {
		t.Fatalf("raw nodes = %d, want 1", len(raws))
	}
	if raws[0].Text != "<hr/>" || raws[0].StringAttr("format") != "text/html" {
		t.Errorf("raw node = %q format %q", raws[0].Text, raws[0].StringAttr("format"))
	}
}
