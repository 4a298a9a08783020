package nb2doc

import (
	"fmt"

	"github.com/alnah/go-nb2doc/internal/yamlutil"
)

// Default configuration values.
const (
	DefaultMetadataKey   = "nb2doc"
	DefaultCellRenderKey = "render"
	DefaultRenderPlugin  = "default"
	DefaultOutputFolder  = "jupyter_execute"
)

// Config holds the global notebook rendering options. Values resolve per
// cell through CellOption, which layers cell metadata over this struct.
type Config struct {
	// MetadataKey is the notebook-level metadata key holding config
	// overrides for a single document.
	MetadataKey string `yaml:"metadata_key"`

	// CellRenderKey is the cell-metadata namespace holding per-cell
	// render options.
	CellRenderKey string `yaml:"cell_render_key"`

	RemoveCodeSource  bool `yaml:"remove_code_source"`
	RemoveCodeOutputs bool `yaml:"remove_code_outputs"`
	NumberSourceLines bool `yaml:"number_source_lines"`

	// RenderPlugin selects the element renderer by registered name.
	RenderPlugin string `yaml:"render_plugin"`

	// OutputFolder receives executed notebooks, glue sidecars and
	// extracted output assets. It cannot be overridden per notebook.
	OutputFolder string `yaml:"output_folder"`

	// MimePriorityOverrides maps an output-format (builder) name to a
	// full replacement mime priority list.
	MimePriorityOverrides map[string][]string `yaml:"mime_priority_overrides"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		MetadataKey:   DefaultMetadataKey,
		CellRenderKey: DefaultCellRenderKey,
		RenderPlugin:  DefaultRenderPlugin,
		OutputFolder:  DefaultOutputFolder,
	}
}

// Validate checks the configuration for values the build cannot proceed
// with. A failure here is fatal to the whole build generation.
func (c Config) Validate() error {
	if c.MetadataKey == "" {
		return fmt.Errorf("%w: metadata_key cannot be empty", ErrInvalidConfig)
	}
	if c.CellRenderKey == "" {
		return fmt.Errorf("%w: cell_render_key cannot be empty", ErrInvalidConfig)
	}
	if c.RenderPlugin == "" {
		return fmt.Errorf("%w: render_plugin cannot be empty", ErrInvalidConfig)
	}
	if c.OutputFolder == "" {
		return fmt.Errorf("%w: output_folder cannot be empty", ErrInvalidConfig)
	}
	for builder, priority := range c.MimePriorityOverrides {
		if builder == "" {
			return fmt.Errorf("%w: mime_priority_overrides contains an empty builder name", ErrInvalidConfig)
		}
		if len(priority) == 0 {
			return fmt.Errorf("%w: mime priority list for builder %q is empty", ErrInvalidConfig, builder)
		}
		for _, mimeType := range priority {
			if mimeType == "" {
				return fmt.Errorf("%w: mime priority list for builder %q contains an empty mime type", ErrInvalidConfig, builder)
			}
		}
	}
	return nil
}

// LoadConfig parses a YAML configuration document layered over defaults.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithOverrides returns a copy of the configuration with a notebook
// metadata override mapping applied. The output folder cannot be
// overridden. Application is atomic: an unknown or mistyped field fails
// the whole overlay and the receiver is left untouched.
func (c Config) WithOverrides(overrides map[string]any) (Config, error) {
	filtered := make(map[string]any, len(overrides))
	for k, v := range overrides {
		if k == "output_folder" {
			continue
		}
		filtered[k] = v
	}
	updated := c
	if err := yamlutil.Reencode(filtered, &updated); err != nil {
		return c, fmt.Errorf("%w: %v", ErrConfigOverride, err)
	}
	if err := updated.Validate(); err != nil {
		return c, fmt.Errorf("%w: %v", ErrConfigOverride, err)
	}
	return updated, nil
}

// CellOption resolves a render option for one cell. The cell-metadata
// namespace wins and its value is returned verbatim; otherwise the
// notebook-level option named nbKey (or key when nbKey is empty) is
// returned, unless nbFallback is false, in which case ErrOptionNotFound
// signals the option is genuinely absent. Lookup never mutates metadata.
func (c *Config) CellOption(cellMetadata map[string]any, key, nbKey string, nbFallback bool) (any, error) {
	if ns, ok := cellMetadata[c.CellRenderKey].(map[string]any); ok {
		if value, ok := ns[key]; ok {
			return value, nil
		}
	}
	if !nbFallback {
		return nil, fmt.Errorf("%w: %q", ErrOptionNotFound, key)
	}
	if nbKey == "" {
		nbKey = key
	}
	return c.notebookOption(nbKey)
}

// notebookOption returns the notebook-level value for a known option key.
func (c *Config) notebookOption(key string) (any, error) {
	switch key {
	case "remove_code_source":
		return c.RemoveCodeSource, nil
	case "remove_code_outputs":
		return c.RemoveCodeOutputs, nil
	case "number_source_lines":
		return c.NumberSourceLines, nil
	case "render_plugin":
		return c.RenderPlugin, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrOptionNotFound, key)
}

// CellFlag resolves a boolean render option for one cell, coercing
// loosely-typed cell metadata values. Unknown keys resolve to false.
func (c *Config) CellFlag(cellMetadata map[string]any, key string) bool {
	value, err := c.CellOption(cellMetadata, key, "", true)
	if err != nil {
		return false
	}
	return truthy(value)
}

// truthy interprets loosely-typed metadata values as booleans.
func truthy(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return value == "true" || value == "1" || value == "yes"
	case int:
		return value != 0
	case float64:
		return value != 0
	}
	return v != nil
}
