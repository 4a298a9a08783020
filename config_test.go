package nb2doc

import (
	"errors"
	"testing"
)

func TestCellOptionPrecedence(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RemoveCodeSource = true

	tests := []struct {
		name       string
		metadata   map[string]any
		key        string
		nbKey      string
		nbFallback bool
		want       any
		wantErr    error
	}{
		{
			name:       "cell metadata wins verbatim",
			metadata:   map[string]any{"render": map[string]any{"remove_code_source": "no"}},
			key:        "remove_code_source",
			nbFallback: true,
			want:       "no",
		},
		{
			name:       "falls back to notebook level",
			metadata:   map[string]any{},
			key:        "remove_code_source",
			nbFallback: true,
			want:       true,
		},
		{
			name:       "distinct notebook level key",
			metadata:   map[string]any{},
			key:        "source_lines",
			nbKey:      "number_source_lines",
			nbFallback: true,
			want:       false,
		},
		{
			name:       "fallback disabled signals absence",
			metadata:   map[string]any{},
			key:        "figure",
			nbFallback: false,
			wantErr:    ErrOptionNotFound,
		},
		{
			name:       "unknown notebook key",
			metadata:   map[string]any{},
			key:        "no_such_option",
			nbFallback: true,
			wantErr:    ErrOptionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := cfg.CellOption(tt.metadata, tt.key, tt.nbKey, tt.nbFallback)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CellOption() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CellOption() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CellOption() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCellOptionDoesNotMutateMetadata(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	metadata := map[string]any{}
	if _, err := cfg.CellOption(metadata, "remove_code_source", "", true); err != nil {
		t.Fatalf("CellOption() error = %v", err)
	}
	if len(metadata) != 0 {
		t.Errorf("metadata mutated: %v", metadata)
	}
}

func TestWithOverrides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		overrides map[string]any
		wantErr   bool
		check     func(t *testing.T, cfg Config)
	}{
		{
			name:      "valid override applies",
			overrides: map[string]any{"remove_code_outputs": true},
			check: func(t *testing.T, cfg Config) {
				if !cfg.RemoveCodeOutputs {
					t.Error("RemoveCodeOutputs = false, want true")
				}
			},
		},
		{
			name:      "output_folder cannot be overridden",
			overrides: map[string]any{"output_folder": "elsewhere"},
			check: func(t *testing.T, cfg Config) {
				if cfg.OutputFolder != DefaultOutputFolder {
					t.Errorf("OutputFolder = %q, want %q", cfg.OutputFolder, DefaultOutputFolder)
				}
			},
		},
		{
			name:      "unknown field fails whole overlay",
			overrides: map[string]any{"remove_code_outputs": true, "bogus_option": 1},
			wantErr:   true,
		},
		{
			name:      "mistyped field fails whole overlay",
			overrides: map[string]any{"remove_code_outputs": map[string]any{"oops": 1}},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			base := DefaultConfig()
			updated, err := base.WithOverrides(tt.overrides)
			if tt.wantErr {
				if !errors.Is(err, ErrConfigOverride) {
					t.Fatalf("WithOverrides() error = %v, want ErrConfigOverride", err)
				}
				// No partial application: the returned config is the original.
				if updated.RemoveCodeOutputs {
					t.Error("partial application detected")
				}
				return
			}
			if err != nil {
				t.Fatalf("WithOverrides() error = %v", err)
			}
			tt.check(t, updated)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "empty metadata key", mutate: func(c *Config) { c.MetadataKey = "" }, wantErr: true},
		{name: "empty cell render key", mutate: func(c *Config) { c.CellRenderKey = "" }, wantErr: true},
		{name: "empty render plugin", mutate: func(c *Config) { c.RenderPlugin = "" }, wantErr: true},
		{name: "empty output folder", mutate: func(c *Config) { c.OutputFolder = "" }, wantErr: true},
		{
			name:    "empty priority list",
			mutate:  func(c *Config) { c.MimePriorityOverrides = map[string][]string{"html": {}} },
			wantErr: true,
		},
		{
			name:    "empty mime type in priority list",
			mutate:  func(c *Config) { c.MimePriorityOverrides = map[string][]string{"html": {"text/plain", ""}} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig([]byte("remove_code_source: true\nmime_priority_overrides:\n  latex:\n    - text/latex\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.RemoveCodeSource {
		t.Error("RemoveCodeSource = false, want true")
	}
	if cfg.MetadataKey != DefaultMetadataKey {
		t.Errorf("MetadataKey = %q, want default retained", cfg.MetadataKey)
	}
	if got := cfg.MimePriorityOverrides["latex"]; len(got) != 1 || got[0] != "text/latex" {
		t.Errorf("MimePriorityOverrides = %v", cfg.MimePriorityOverrides)
	}

	if _, err := LoadConfig([]byte("no_such_field: 1\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadConfig(unknown field) error = %v, want ErrInvalidConfig", err)
	}
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "bool true", value: true, want: true},
		{name: "bool false", value: false, want: false},
		{name: "string true", value: "true", want: true},
		{name: "string other", value: "no", want: false},
		{name: "nonzero int", value: 1, want: true},
		{name: "zero float", value: 0.0, want: false},
		{name: "nil", value: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := truthy(tt.value); got != tt.want {
				t.Errorf("truthy(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
