package nb2doc

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

// MimeData carries one mime representation of an output into the
// element renderer.
type MimeData struct {
	MimeType       string
	Payload        MimePayload
	CellMetadata   map[string]any
	OutputMetadata map[string]any
	CellIndex      int
	OutputIndex    int
	Line           int
}

// JsFile is a per-document script registration: a URI plus tag options
// (e.g. "async", "integrity"). Registered files end up in the
// per-document metadata store after rendering.
type JsFile struct {
	URI     string
	Options map[string]string
}

// ElementRenderer materializes notebook elements into tree nodes and
// persists side files. Implementations are interchangeable; the active
// one is selected by registered name via the render_plugin option.
type ElementRenderer interface {
	// RenderNbMetadata may transform or filter notebook metadata before
	// the non-reserved remainder is forwarded to front matter rendering.
	RenderNbMetadata(metadata map[string]any) map[string]any

	RenderRawCell(content string, metadata map[string]any, cellIndex, line int) []*Node
	RenderStdout(out *Output, cellMetadata map[string]any, cellIndex, line int) []*Node
	RenderStderr(out *Output, cellMetadata map[string]any, cellIndex, line int) []*Node
	RenderError(out *Output, cellMetadata map[string]any, cellIndex, line int) []*Node
	RenderMimeType(data MimeData) []*Node

	// WriteFile persists content under the build output folder and
	// returns the URI pages should use to reference it.
	WriteFile(pathSegments []string, content []byte, overwrite bool) (string, error)
}

// jsFileRegistrar is implemented by renderers that register per-page
// script files during rendering.
type jsFileRegistrar interface {
	JsFiles() map[string]JsFile
}

// RendererOptions configures an element renderer instance for one
// document.
type RendererOptions struct {
	Logger *DocLogger

	// OutputDir is the filesystem directory WriteFile writes under.
	OutputDir string

	// URIPrefix prefixes the URIs WriteFile returns.
	URIPrefix string
}

// RendererFactory builds an element renderer for one document.
type RendererFactory func(opts RendererOptions) ElementRenderer

var rendererRegistry = map[string]RendererFactory{}

// RegisterRenderer adds a named element renderer to the registry. Names
// are fixed at configuration time; re-registration is an error.
func RegisterRenderer(name string, factory RendererFactory) error {
	if _, ok := rendererRegistry[name]; ok {
		return fmt.Errorf("%w: %q", ErrRendererExists, name)
	}
	rendererRegistry[name] = factory
	return nil
}

// LoadRenderer returns the factory registered under name.
func LoadRenderer(name string) (RendererFactory, error) {
	factory, ok := rendererRegistry[name]
	if !ok {
		known := make([]string, 0, len(rendererRegistry))
		for k := range rendererRegistry {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownRenderer, name, strings.Join(known, ", "))
	}
	return factory, nil
}

func init() {
	if err := RegisterRenderer(DefaultRenderPlugin, newDefaultRenderer); err != nil {
		panic(err)
	}
}

// Mime type of Jupyter widget views, which need the widget JS runtime
// on the page.
const widgetViewMimeType = "application/vnd.jupyter.widget-view+json"

const widgetJsURI = "https://cdn.jsdelivr.net/npm/@jupyter-widgets/html-manager@*/dist/embed-amd.js"

var ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// defaultRenderer is the built-in element renderer.
type defaultRenderer struct {
	logger     *DocLogger
	outputDir  string
	uriPrefix  string
	jsFiles    map[string]JsFile
	mdFragment goldmark.Markdown
}

func newDefaultRenderer(opts RendererOptions) ElementRenderer {
	return &defaultRenderer{
		logger:    opts.Logger,
		outputDir: opts.OutputDir,
		uriPrefix: opts.URIPrefix,
		jsFiles:   map[string]JsFile{},
		// text/markdown payloads render as CommonMark only: headings and
		// GFM are left out so a discarded candidate cannot leak section
		// structure or reference targets into the page.
		mdFragment: goldmark.New(
			goldmark.WithExtensions(
				highlighting.NewHighlighting(highlighting.WithStyle(defaultHighlightStyle)),
			),
		),
	}
}

func (r *defaultRenderer) JsFiles() map[string]JsFile { return r.jsFiles }

func (r *defaultRenderer) RenderNbMetadata(metadata map[string]any) map[string]any {
	return metadata
}

func (r *defaultRenderer) RenderRawCell(content string, metadata map[string]any, cellIndex, line int) []*Node {
	format, _ := metadata["format"].(string)
	if format == "" {
		format, _ = metadata["raw_mimetype"].(string)
	}
	node := NewNode(KindRaw)
	node.SetAttr("format", format)
	node.Text = content
	return []*Node{node}
}

func (r *defaultRenderer) RenderStdout(out *Output, cellMetadata map[string]any, cellIndex, line int) []*Node {
	return []*Node{streamNode(out.Text, "stream")}
}

func (r *defaultRenderer) RenderStderr(out *Output, cellMetadata map[string]any, cellIndex, line int) []*Node {
	return []*Node{streamNode(out.Text, "stderr")}
}

func (r *defaultRenderer) RenderError(out *Output, cellMetadata map[string]any, cellIndex, line int) []*Node {
	text := strings.Join(out.Traceback, "\n")
	if text == "" {
		text = fmt.Sprintf("%s: %s", out.EName, out.EValue)
	}
	node := streamNode(ansiEscapes.ReplaceAllString(text, ""), "traceback")
	return []*Node{node}
}

func streamNode(text, class string) *Node {
	node := NewNode(KindLiteralBlock)
	node.AddClass("output", class)
	node.Text = text
	return node
}

func (r *defaultRenderer) RenderMimeType(data MimeData) []*Node {
	switch {
	case strings.HasPrefix(data.MimeType, "image/"), data.MimeType == "application/pdf":
		return r.renderImage(data)
	case data.MimeType == "text/html":
		node := NewNode(KindRaw)
		node.SetAttr("format", "html")
		node.Text = data.Payload.Text
		return []*Node{node}
	case data.MimeType == "text/markdown":
		return r.renderMarkdownFragment(data)
	case data.MimeType == "text/latex":
		node := NewNode(KindMathBlock)
		node.SetAttr("nowrap", false)
		node.Text = strings.TrimSpace(strings.Trim(data.Payload.Text, "$"))
		return []*Node{node}
	case data.MimeType == "text/plain":
		node := streamNode(data.Payload.Text, "text_plain")
		return []*Node{node}
	case data.MimeType == "application/javascript":
		node := NewNode(KindRaw)
		node.SetAttr("format", "html")
		node.Text = "<script>" + data.Payload.Text + "</script>"
		return []*Node{node}
	case data.MimeType == widgetViewMimeType:
		return r.renderWidgetView(data)
	}
	if r.logger != nil {
		r.logger.Debug(fmt.Sprintf("skipped unhandled mime type: %s", data.MimeType), WarnOutputType)
	}
	return nil
}

// renderImage persists the payload under the output folder and emits an
// image node referencing it.
func (r *defaultRenderer) renderImage(data MimeData) []*Node {
	content := data.Payload.Binary
	if content == nil {
		content = []byte(data.Payload.Text)
	}
	name := fmt.Sprintf("output_%d_%d%s", data.CellIndex, data.OutputIndex, mimeExtension(data.MimeType))
	uri, err := r.WriteFile([]string{name}, content, true)
	if err != nil {
		if r.logger != nil {
			r.logger.Warning(fmt.Sprintf("failed to write image output: %v", err), WarnOutputType, data.Line)
		}
		return nil
	}
	node := NewNode(KindImage)
	node.SetAttr("uri", uri)
	if alt, ok := data.OutputMetadata["alt"].(string); ok {
		node.SetAttr("alt", alt)
	}
	return []*Node{node}
}

func (r *defaultRenderer) renderMarkdownFragment(data MimeData) []*Node {
	var buf bytes.Buffer
	if err := r.mdFragment.Convert([]byte(data.Payload.Text), &buf); err != nil {
		if r.logger != nil {
			r.logger.Warning(fmt.Sprintf("failed to render text/markdown output: %v", err), WarnOutputType, data.Line)
		}
		return nil
	}
	node := NewNode(KindRaw)
	node.SetAttr("format", "html")
	node.Text = buf.String()
	return []*Node{node}
}

// renderWidgetView embeds the widget state and registers the widget JS
// runtime for the page.
func (r *defaultRenderer) renderWidgetView(data MimeData) []*Node {
	r.jsFiles["jupyter-widgets"] = JsFile{
		URI:     widgetJsURI,
		Options: map[string]string{"crossorigin": "anonymous"},
	}
	node := NewNode(KindRaw)
	node.SetAttr("format", "html")
	node.Text = `<script type="application/vnd.jupyter.widget-view+json">` +
		data.Payload.Text + `</script>`
	return []*Node{node}
}

func (r *defaultRenderer) WriteFile(pathSegments []string, content []byte, overwrite bool) (string, error) {
	if len(pathSegments) == 0 {
		return "", fmt.Errorf("%w: empty path", ErrWriteFile)
	}
	target := filepath.Join(append([]string{r.outputDir}, pathSegments...)...)
	if !overwrite {
		if _, err := os.Stat(target); err == nil {
			return "", fmt.Errorf("%w: %s", ErrFileExists, target)
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFile, err)
	}
	if err := os.WriteFile(target, content, 0o600); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFile, err)
	}
	return path.Join(append([]string{r.uriPrefix}, pathSegments...)...), nil
}

// mimeExtension maps a mime type to a file extension for extracted
// output assets.
func mimeExtension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/svg+xml":
		return ".svg"
	case "application/pdf":
		return ".pdf"
	}
	return ".bin"
}
