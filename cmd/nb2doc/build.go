package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	nb2doc "github.com/alnah/go-nb2doc"
	"github.com/alnah/go-nb2doc/internal/assets"
)

// run executes one build: discover notebooks, parse them in parallel,
// then resolve and write pages per requested output format.
func run(ctx context.Context, flags *buildFlags, logger *log.Logger) error {
	cfg, err := loadConfig(flags.config)
	if err != nil {
		return err
	}

	svc, err := nb2doc.New(cfg,
		nb2doc.WithLogger(logger),
		nb2doc.WithOutputDir(flags.outDir),
	)
	if err != nil {
		return err
	}

	sources, err := discoverNotebooks(flags.inputs)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("%w: no notebooks found", ErrNoInputs)
	}
	logger.Info("parsing notebooks", "count", len(sources), "workers", nb2doc.ResolveWorkerCount(flags.workers))

	if err := svc.ParseAll(ctx, sources, flags.workers); err != nil {
		return err
	}

	for _, builder := range flags.builders {
		if err := writeFormat(svc, builder, flags.outDir, logger); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig reads the YAML configuration file, or returns defaults
// when no path is given.
func loadConfig(path string) (nb2doc.Config, error) {
	if path == "" {
		return nb2doc.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path supplied by the operator
	if err != nil {
		return nb2doc.Config{}, fmt.Errorf("reading config: %w", err)
	}
	return nb2doc.LoadConfig(data)
}

// discoverNotebooks maps input files and directories to document
// sources, keyed by document name (relative path without extension).
func discoverNotebooks(inputs []string) (map[string][]byte, error) {
	sources := map[string][]byte{}
	addFile := func(base, path string) error {
		data, err := os.ReadFile(path) // #nosec G304 -- discovered under operator-supplied roots
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		rel := path
		if base != "" {
			if r, err := filepath.Rel(base, path); err == nil {
				rel = r
			}
		}
		docName := strings.TrimSuffix(filepath.ToSlash(rel), ".ipynb")
		sources[docName] = data
		return nil
	}

	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", input, err)
		}
		if !info.IsDir() {
			if err := addFile(filepath.Dir(input), input); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				// Notebook checkpoints are never build inputs.
				if d.Name() == ".ipynb_checkpoints" {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".ipynb" {
				return nil
			}
			return addFile(input, path)
		})
		if err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// writeFormat resolves all trees for one output format and, for HTML,
// writes the pages and static assets.
func writeFormat(svc *nb2doc.Service, builder, outDir string, logger *log.Logger) error {
	resolved := svc.ResolveFormat(builder)
	if builder != "html" {
		logger.Info("resolved trees", "builder", builder, "documents", len(resolved))
		return nil
	}

	formatDir := filepath.Join(outDir, builder)
	css, err := assets.Stylesheet()
	if err != nil {
		return err
	}
	staticDir := filepath.Join(formatDir, "_static")
	if err := os.MkdirAll(staticDir, 0o750); err != nil {
		return fmt.Errorf("writing static assets: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staticDir, assets.StylesheetName), css, 0o600); err != nil {
		return fmt.Errorf("writing static assets: %w", err)
	}

	writer := &nb2doc.HTMLWriter{}
	for docName, tree := range resolved {
		depth := strings.Count(docName, "/")
		cssHref := strings.Repeat("../", depth) + "_static/" + assets.StylesheetName
		page := writer.WritePage(tree, docName, []string{cssHref}, svc.Store().JsFiles(docName))

		target := filepath.Join(formatDir, filepath.FromSlash(docName)+".html")
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return fmt.Errorf("writing page %s: %w", docName, err)
		}
		if err := os.WriteFile(target, []byte(page), 0o600); err != nil {
			return fmt.Errorf("writing page %s: %w", docName, err)
		}
		logger.Debug("wrote page", "doc", docName, "target", target)
	}
	logger.Info("build finished", "builder", builder, "pages", len(resolved), "new_exec_data", svc.Store().NewExecData())
	return nil
}
