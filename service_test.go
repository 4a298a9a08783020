package nb2doc

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func notebookBytes(t *testing.T, nb *Notebook) []byte {
	t.Helper()
	data, err := WriteNotebook(nb)
	if err != nil {
		t.Fatalf("WriteNotebook() error = %v", err)
	}
	return data
}

func newTestService(t *testing.T, buf *bytes.Buffer, opts ...Option) (*Service, string) {
	t.Helper()
	outDir := t.TempDir()
	opts = append([]Option{
		WithOutputDir(outDir),
		WithLogger(NewLogger(buf, log.WarnLevel)),
	}, opts...)
	svc, err := New(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc, outDir
}

func TestServiceParseDocument(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells: []*Cell{
			{Type: CellMarkdown, Source: "# Title", Metadata: map[string]any{}},
			codeCell(nil, resultOutput("text/plain", "text/html")),
		},
		Metadata: map[string]any{
			"kernelspec": map[string]any{"name": "python3", "language": "python"},
		},
	}

	var buf bytes.Buffer
	svc, outDir := newTestService(t, &buf)

	tree, err := svc.ParseDocument(context.Background(), "guide/intro", notebookBytes(t, nb))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	if tree == nil || svc.Tree("guide/intro") != tree {
		t.Fatal("tree not recorded")
	}

	// The (possibly executed) notebook is persisted under the output folder.
	artifact := filepath.Join(outDir, DefaultOutputFolder, "guide", "intro.ipynb")
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("notebook artifact missing: %v", err)
	}

	// Reserved notebook metadata lands in the store, not the tree.
	if _, ok := svc.Store().DocData("guide/intro")["kernelspec"]; !ok {
		t.Error("kernelspec missing from metadata store")
	}
}

func TestServiceResolveFormatKeepsParsedTree(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells:    []*Cell{codeCell(nil, resultOutput("text/plain", "text/html"))},
		Metadata: map[string]any{},
	}

	var buf bytes.Buffer
	svc, _ := newTestService(t, &buf)
	if _, err := svc.ParseDocument(context.Background(), "doc", notebookBytes(t, nb)); err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	resolved := svc.ResolveFormat("html")
	doc := resolved["doc"]
	if doc == nil {
		t.Fatal("resolved tree missing")
	}
	if got := len(nodesOfKind(doc, KindMimeBundle)); got != 0 {
		t.Errorf("resolved tree keeps %d mime bundles, want 0", got)
	}
	// text/html outranks text/plain for the html format.
	if got := len(nodesOfKind(doc, KindRaw)); got != 1 {
		t.Errorf("raw html nodes = %d, want 1", got)
	}

	// The stored tree keeps every candidate for further formats.
	if got := len(nodesOfKind(svc.Tree("doc"), KindMimeBundle)); got != 1 {
		t.Errorf("stored tree bundles = %d, want 1 (resolve must not mutate it)", got)
	}

	latex := svc.ResolveFormat("latex")["doc"]
	plains := latex.FindAll(func(n *Node) bool {
		return n.Kind == KindLiteralBlock && strings.Contains(strings.Join(n.Classes, " "), "text_plain")
	})
	if len(plains) != 1 {
		t.Errorf("latex resolve text_plain nodes = %d, want 1", len(plains))
	}
}

func TestServiceNotebookOverrides(t *testing.T) {
	t.Parallel()

	base := &Notebook{
		Cells: []*Cell{codeCell(nil, stdoutOutput("hi\n"))},
	}

	tests := []struct {
		name        string
		metadata    map[string]any
		wantOutputs int
		wantWarning bool
	}{
		{
			name:        "valid override removes outputs",
			metadata:    map[string]any{"nb2doc": map[string]any{"remove_code_outputs": true}},
			wantOutputs: 0,
		},
		{
			name: "bad override keeps configuration unchanged",
			metadata: map[string]any{"nb2doc": map[string]any{
				"remove_code_outputs": true,
				"bogus_option":        1,
			}},
			wantOutputs: 1,
			wantWarning: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			nb := &Notebook{Cells: base.Cells, Metadata: tt.metadata}
			var buf bytes.Buffer
			svc, _ := newTestService(t, &buf)

			tree, err := svc.ParseDocument(context.Background(), "doc", notebookBytes(t, nb))
			if err != nil {
				t.Fatalf("ParseDocument() error = %v", err)
			}
			if got := len(nodesOfKind(tree, KindCellOutput)); got != tt.wantOutputs {
				t.Errorf("cell_output nodes = %d, want %d", got, tt.wantOutputs)
			}
			if tt.wantWarning && !strings.Contains(buf.String(), "config") {
				t.Errorf("expected a config warning, log = %s", buf.String())
			}
		})
	}
}

// recordingExecutor returns a fixed result and remembers what it ran.
type recordingExecutor struct {
	result *ExecutionResult
	ran    []string
}

func (e *recordingExecutor) Execute(_ context.Context, nb *Notebook, docPath string) (*Notebook, *ExecutionResult, error) {
	e.ran = append(e.ran, docPath)
	return nb, e.result, nil
}

func TestServiceExecutorTraceback(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{result: &ExecutionResult{
		Status:    ExecStatusError,
		Traceback: "ZeroDivisionError: division by zero",
	}}

	nb := &Notebook{Cells: []*Cell{codeCell(nil)}, Metadata: map[string]any{}}
	var buf bytes.Buffer
	svc, outDir := newTestService(t, &buf, WithExecutor(exec))

	if _, err := svc.ParseDocument(context.Background(), "broken", notebookBytes(t, nb)); err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	report := filepath.Join(outDir, "reports", "broken.err.log")
	content, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("traceback report missing: %v", err)
	}
	if !strings.Contains(string(content), "ZeroDivisionError") {
		t.Errorf("report content = %s", content)
	}
	if !strings.Contains(buf.String(), "traceback saved") {
		t.Errorf("no traceback warning logged: %s", buf.String())
	}

	result := svc.Store().ExecData("broken")
	if result == nil || result.Status != ExecStatusError {
		t.Errorf("ExecData(broken) = %v", result)
	}
	if !svc.Store().NewExecData() {
		t.Error("execution did not raise the new-exec-data flag")
	}
}

func TestServiceParseAll(t *testing.T) {
	t.Parallel()

	good := notebookBytes(t, &Notebook{
		Cells:    []*Cell{{Type: CellMarkdown, Source: "hello", Metadata: map[string]any{}}},
		Metadata: map[string]any{},
	})
	sources := map[string][]byte{
		"a":     good,
		"b/c":   good,
		"bad":   []byte("{not json"),
		"other": good,
	}

	var buf bytes.Buffer
	svc, _ := newTestService(t, &buf)

	err := svc.ParseAll(context.Background(), sources, 2)
	if err == nil {
		t.Fatal("ParseAll() = nil error, want failure for bad document")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error does not name the failed document: %v", err)
	}

	// A failing document must not take the others down.
	for _, docName := range []string{"a", "b/c", "other"} {
		if svc.Tree(docName) == nil {
			t.Errorf("tree missing for %s", docName)
		}
	}
	if svc.Tree("bad") != nil {
		t.Error("failed document has a tree")
	}
}

func TestServiceClearDocument(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells:    []*Cell{{Type: CellMarkdown, Source: "x", Metadata: map[string]any{}}},
		Metadata: map[string]any{"kernelspec": map[string]any{"name": "python3"}},
	}
	var buf bytes.Buffer
	svc, _ := newTestService(t, &buf)
	if _, err := svc.ParseDocument(context.Background(), "doc", notebookBytes(t, nb)); err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	svc.ClearDocument("doc")
	if svc.Tree("doc") != nil {
		t.Error("tree survived ClearDocument")
	}
	if len(svc.Store().DocIDs()) != 0 {
		t.Errorf("store entries = %v, want none", svc.Store().DocIDs())
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MetadataKey = ""
	if _, err := New(cfg); err == nil {
		t.Error("New() accepted an invalid configuration")
	}

	cfg = DefaultConfig()
	cfg.RenderPlugin = "not-registered"
	if _, err := New(cfg); err == nil {
		t.Error("New() accepted an unregistered render plugin")
	}
}

func TestServiceGlueSidecar(t *testing.T) {
	t.Parallel()

	nb := &Notebook{
		Cells:    []*Cell{codeCell(nil, gluedOutput("answer", "text/plain"))},
		Metadata: map[string]any{},
	}
	var buf bytes.Buffer
	svc, outDir := newTestService(t, &buf)
	if _, err := svc.ParseDocument(context.Background(), "doc", notebookBytes(t, nb)); err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	sidecar := filepath.Join(outDir, DefaultOutputFolder, "doc.glue.json")
	content, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("glue sidecar missing: %v", err)
	}
	if !strings.Contains(string(content), "answer") {
		t.Errorf("sidecar content = %s", content)
	}
	if keys := svc.Store().GlueKeys("doc"); len(keys) != 1 || keys[0] != "answer" {
		t.Errorf("GlueKeys(doc) = %v", keys)
	}
}
