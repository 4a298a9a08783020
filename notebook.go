package nb2doc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Reserved notebook metadata keys that are routed to the per-document
// metadata store instead of the rendered front matter.
var reservedMetadataKeys = []string{"kernelspec", "language_info", "source_map"}

// CellType discriminates notebook cells.
type CellType string

// Cell types defined by the notebook interchange format.
const (
	CellMarkdown CellType = "markdown"
	CellCode     CellType = "code"
	CellRaw      CellType = "raw"
)

// OutputType discriminates code cell outputs.
type OutputType string

// Output types defined by the notebook interchange format.
const (
	OutputStream        OutputType = "stream"
	OutputError         OutputType = "error"
	OutputDisplayData   OutputType = "display_data"
	OutputExecuteResult OutputType = "execute_result"
)

// Notebook is the document model for one notebook: an ordered cell list
// plus top-level metadata. Cell order is document order and is never
// changed by rendering.
type Notebook struct {
	Cells         []*Cell
	Metadata      map[string]any
	NBFormat      int
	NBFormatMinor int
}

// Cell is one unit of a notebook document.
type Cell struct {
	Type     CellType
	Index    int
	Source   string
	Metadata map[string]any

	// Line is the 1-based starting line of the cell in the source
	// document, taken from the source_map metadata when present.
	Line int

	// Code cells only.
	ExecutionCount *int
	Outputs        []*Output
}

// Tags returns the cell's metadata tags, if any.
func (c *Cell) Tags() []string {
	raw, ok := c.Metadata["tags"].([]any)
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// HasTag reports whether the cell carries the given tag.
func (c *Cell) HasTag(tag string) bool {
	for _, t := range c.Tags() {
		if t == tag {
			return true
		}
	}
	return false
}

// Output is a tagged variant: stream, error, or display data
// (display_data and execute_result both carry a mime bundle).
type Output struct {
	Type OutputType

	// Stream outputs.
	Name string
	Text string

	// Error outputs.
	EName     string
	EValue    string
	Traceback []string

	// Display data / execute result outputs.
	Data     *MimeBundleData
	Metadata map[string]any
}

// MimePayload is one representation of an output. Binary payloads are
// base64-carrying in the interchange format and are held decoded;
// whether a mime type is binary is a mime type convention.
type MimePayload struct {
	Text   string
	Binary []byte
}

// IsBinary reports whether the payload carries decoded binary data.
func (p MimePayload) IsBinary() bool { return p.Binary != nil }

// MimeBundleData is an insertion-ordered mapping of mime type to payload.
// Mime types are unique within a bundle; setting an existing type
// replaces its payload in place.
type MimeBundleData struct {
	keys   []string
	values map[string]MimePayload
}

// NewMimeBundleData creates an empty bundle.
func NewMimeBundleData() *MimeBundleData {
	return &MimeBundleData{values: map[string]MimePayload{}}
}

// Set adds or replaces the payload for a mime type.
func (m *MimeBundleData) Set(mimeType string, payload MimePayload) {
	if m.values == nil {
		m.values = map[string]MimePayload{}
	}
	if _, ok := m.values[mimeType]; !ok {
		m.keys = append(m.keys, mimeType)
	}
	m.values[mimeType] = payload
}

// Get returns the payload for a mime type.
func (m *MimeBundleData) Get(mimeType string) (MimePayload, bool) {
	p, ok := m.values[mimeType]
	return p, ok
}

// Keys returns the mime types in insertion order.
func (m *MimeBundleData) Keys() []string { return m.keys }

// Len returns the number of distinct mime types.
func (m *MimeBundleData) Len() int { return len(m.keys) }

// binaryMimeType reports whether payloads of this mime type are base64
// encoded in the interchange format.
func binaryMimeType(mimeType string) bool {
	switch {
	case mimeType == "image/svg+xml":
		return false
	case strings.HasPrefix(mimeType, "image/"):
		return true
	case mimeType == "application/pdf":
		return true
	}
	return false
}

// UnmarshalJSON decodes a mime bundle preserving key order, which the
// tree builder relies on when emitting mime containers.
func (m *MimeBundleData) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.values = map[string]MimePayload{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("mime bundle: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		mimeType := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		text := joinedText(raw)
		if binaryMimeType(mimeType) {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
			if err != nil {
				// Malformed base64 is kept as text rather than dropped.
				m.Set(mimeType, MimePayload{Text: text})
				continue
			}
			m.Set(mimeType, MimePayload{Binary: decoded})
			continue
		}
		m.Set(mimeType, MimePayload{Text: text})
	}
	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON encodes the bundle with keys in insertion order. Binary
// payloads are written back as base64 text.
func (m *MimeBundleData) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		payload := m.values[key]
		var text string
		if payload.IsBinary() {
			text = base64.StdEncoding.EncodeToString(payload.Binary)
		} else {
			text = payload.Text
		}
		v, err := json.Marshal(text)
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Interchange-format JSON shapes. Source fields may be a string or an
// array of strings, so they decode via json.RawMessage.
type notebookJSON struct {
	Cells         []cellJSON     `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

type cellJSON struct {
	CellType       string          `json:"cell_type"`
	Source         json.RawMessage `json:"source"`
	Metadata       map[string]any  `json:"metadata"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
	Outputs        []outputJSON    `json:"outputs,omitempty"`
}

// MarshalJSON emits the interchange cell shape. Code cells always carry
// execution_count and outputs (null and [] when absent, as the format
// requires); markdown and raw cells never do.
func (c cellJSON) MarshalJSON() ([]byte, error) {
	if c.CellType != string(CellCode) {
		return json.Marshal(struct {
			CellType string          `json:"cell_type"`
			Source   json.RawMessage `json:"source"`
			Metadata map[string]any  `json:"metadata"`
		}{c.CellType, c.Source, c.Metadata})
	}
	outputs := c.Outputs
	if outputs == nil {
		outputs = []outputJSON{}
	}
	return json.Marshal(struct {
		CellType       string          `json:"cell_type"`
		Source         json.RawMessage `json:"source"`
		Metadata       map[string]any  `json:"metadata"`
		ExecutionCount *int            `json:"execution_count"`
		Outputs        []outputJSON    `json:"outputs"`
	}{c.CellType, c.Source, c.Metadata, c.ExecutionCount, outputs})
}

type outputJSON struct {
	OutputType     string          `json:"output_type"`
	Name           string          `json:"name,omitempty"`
	Text           json.RawMessage `json:"text,omitempty"`
	EName          string          `json:"ename,omitempty"`
	EValue         string          `json:"evalue,omitempty"`
	Traceback      []string        `json:"traceback,omitempty"`
	Data           *MimeBundleData `json:"data,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
}

// joinedText decodes a JSON value that is either a string or an array of
// strings, joining array entries without separators.
func joinedText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return strings.Join(arr, "")
	}
	return ""
}

// ReadNotebook parses notebook interchange JSON into the document model.
// Cell lines come from the source_map metadata when present, otherwise
// they are derived from the cumulative length of preceding cell sources.
func ReadNotebook(data []byte) (*Notebook, error) {
	if len(data) == 0 {
		return nil, ErrEmptySource
	}
	var raw notebookJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotebookParse, err)
	}

	nb := &Notebook{
		Metadata:      raw.Metadata,
		NBFormat:      raw.NBFormat,
		NBFormatMinor: raw.NBFormatMinor,
	}
	if nb.Metadata == nil {
		nb.Metadata = map[string]any{}
	}

	sourceMap := sourceMapLines(nb.Metadata)
	line := 1
	for i, rc := range raw.Cells {
		cell := &Cell{
			Type:     CellType(rc.CellType),
			Index:    i,
			Source:   joinedText(rc.Source),
			Metadata: rc.Metadata,
			Line:     line,
		}
		if cell.Metadata == nil {
			cell.Metadata = map[string]any{}
		}
		if i < len(sourceMap) {
			cell.Line = sourceMap[i]
		}
		if cell.Type == CellCode {
			cell.ExecutionCount = rc.ExecutionCount
			for _, ro := range rc.Outputs {
				cell.Outputs = append(cell.Outputs, decodeOutput(ro))
			}
		}
		nb.Cells = append(nb.Cells, cell)
		line += strings.Count(cell.Source, "\n") + 2
	}
	return nb, nil
}

func decodeOutput(ro outputJSON) *Output {
	out := &Output{Type: OutputType(ro.OutputType)}
	switch out.Type {
	case OutputStream:
		out.Name = ro.Name
		out.Text = joinedText(ro.Text)
	case OutputError:
		out.EName = ro.EName
		out.EValue = ro.EValue
		out.Traceback = ro.Traceback
	case OutputDisplayData, OutputExecuteResult:
		out.Data = ro.Data
		if out.Data == nil {
			out.Data = NewMimeBundleData()
		}
		out.Metadata = ro.Metadata
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	return out
}

// sourceMapLines extracts the source_map metadata list, if present.
func sourceMapLines(metadata map[string]any) []int {
	raw, ok := metadata["source_map"].([]any)
	if !ok {
		return nil
	}
	lines := make([]int, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			lines = append(lines, int(n))
		case int:
			lines = append(lines, n)
		}
	}
	return lines
}

// WriteNotebook serializes the document model back to interchange JSON.
func WriteNotebook(nb *Notebook) ([]byte, error) {
	raw := notebookJSON{
		Metadata:      nb.Metadata,
		NBFormat:      nb.NBFormat,
		NBFormatMinor: nb.NBFormatMinor,
	}
	if raw.NBFormat == 0 {
		raw.NBFormat = 4
		raw.NBFormatMinor = 5
	}
	if raw.Metadata == nil {
		raw.Metadata = map[string]any{}
	}
	raw.Cells = make([]cellJSON, 0, len(nb.Cells))
	for _, cell := range nb.Cells {
		source, err := json.Marshal(cell.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotebookWrite, err)
		}
		rc := cellJSON{
			CellType: string(cell.Type),
			Source:   source,
			Metadata: cell.Metadata,
		}
		if cell.Type == CellCode {
			rc.ExecutionCount = cell.ExecutionCount
			rc.Outputs = make([]outputJSON, 0, len(cell.Outputs))
			for _, out := range cell.Outputs {
				rc.Outputs = append(rc.Outputs, encodeOutput(out))
			}
		}
		raw.Cells = append(raw.Cells, rc)
	}
	data, err := json.MarshalIndent(raw, "", " ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotebookWrite, err)
	}
	return data, nil
}

func encodeOutput(out *Output) outputJSON {
	ro := outputJSON{OutputType: string(out.Type)}
	switch out.Type {
	case OutputStream:
		ro.Name = out.Name
		ro.Text, _ = json.Marshal(out.Text)
	case OutputError:
		ro.EName = out.EName
		ro.EValue = out.EValue
		ro.Traceback = out.Traceback
	case OutputDisplayData, OutputExecuteResult:
		ro.Data = out.Data
		ro.Metadata = out.Metadata
	}
	return ro
}

// Language returns the notebook's programming language, preferring
// language_info over the kernelspec, defaulting to "python".
func (nb *Notebook) Language() string {
	if info, ok := nb.Metadata["language_info"].(map[string]any); ok {
		if name, ok := info["name"].(string); ok && name != "" {
			return name
		}
	}
	if spec, ok := nb.Metadata["kernelspec"].(map[string]any); ok {
		if lang, ok := spec["language"].(string); ok && lang != "" {
			return lang
		}
	}
	return "python"
}
