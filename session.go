package nb2doc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Session renders documents for one build worker. Each session owns an
// isolated metadata store; worker results combine afterwards through
// MetadataStore.MergeOther, so sessions never share mutable state.
type Session struct {
	id       string
	cfg      Config
	base     *log.Logger
	executor Executor
	outDir   string
	store    *MetadataStore
}

func newSession(cfg Config, base *log.Logger, executor Executor, outDir string) *Session {
	if executor == nil {
		executor = StaticExecutor{}
	}
	return &Session{
		id:       uuid.NewString()[:8],
		cfg:      cfg,
		base:     base,
		executor: executor,
		outDir:   outDir,
		store:    NewMetadataStore(),
	}
}

// Store returns the session's metadata store for merging.
func (s *Session) Store() *MetadataStore { return s.store }

// ParseDocument renders one notebook document into a format-agnostic
// tree and persists its per-document artifacts (executed notebook, glue
// sidecar). docName is the document identifier: a slash-separated path
// without extension. A failure in one document does not affect trees or
// metadata entries of other documents.
func (s *Session) ParseDocument(ctx context.Context, docName string, source []byte) (*Node, error) {
	base := s.base
	if base != nil {
		base = base.With("session", s.id)
	}
	logger := NewDocLogger(base, docName)

	nb, err := ReadNotebook(source)
	if err != nil {
		return nil, err
	}

	// Layer notebook-level metadata overrides onto a copy of the global
	// configuration. A bad override keeps the original unchanged.
	cfg := s.cfg
	if raw, ok := nb.Metadata[cfg.MetadataKey].(map[string]any); ok {
		updated, err := cfg.WithOverrides(raw)
		if err != nil {
			logger.Warning(fmt.Sprintf("failed to update configuration with notebook metadata: %v", err), WarnConfig, 0)
		} else {
			cfg = updated
			logger.Debug("updated configuration with notebook metadata", WarnConfig)
		}
	}

	// Execute (or load from cache) via the external collaborator.
	executed, execResult, err := s.executor.Execute(ctx, nb, docName)
	if err != nil {
		return nil, fmt.Errorf("executing notebook %q: %w", docName, err)
	}
	if executed != nil {
		nb = executed
	}
	if execResult != nil {
		s.store.SetExecData(docName, execResult)
		if execResult.Traceback != "" {
			if reportPath, err := s.writeTracebackReport(docName, execResult.Traceback); err != nil {
				logger.Warning(fmt.Sprintf("failed to save exception traceback: %v", err), WarnExec, 0)
			} else {
				logger.Warning(fmt.Sprintf("notebook exception traceback saved in: %s", reportPath), WarnExec, 0)
			}
		}
	}

	factory, err := LoadRenderer(cfg.RenderPlugin)
	if err != nil {
		return nil, err
	}
	renderer := factory(RendererOptions{
		Logger:    logger,
		OutputDir: filepath.Join(s.outDir, cfg.OutputFolder),
		URIPrefix: cfg.OutputFolder,
	})

	glue := ExtractGlue(nb)

	builder := NewTreeBuilder(nb, &cfg, renderer, logger, docName)
	tree := builder.Build()

	// Reserved notebook metadata moves to the environment-level store so
	// later phases can read it without loading the whole tree.
	for key, value := range builder.DocMetadata() {
		s.store.SetDocData(docName, key, value)
	}

	// Persist the final (possibly updated) notebook in interchange form.
	content, err := WriteNotebook(nb)
	if err != nil {
		logger.Warning(fmt.Sprintf("failed to serialize notebook: %v", err), WarnExec, 0)
	} else if _, err := renderer.WriteFile(docSegments(docName, ".ipynb"), content, true); err != nil {
		logger.Warning(fmt.Sprintf("failed to write notebook: %v", err), WarnExec, 0)
	}

	// Persist glue data as a JSON sidecar and record the key list.
	if len(glue) > 0 {
		encoded, err := EncodeGlue(glue)
		if err != nil {
			logger.Warning(err.Error(), WarnConfig, 0)
		} else if _, err := renderer.WriteFile(docSegments(docName, ".glue.json"), encoded, true); err != nil {
			logger.Warning(fmt.Sprintf("failed to write glue data: %v", err), WarnConfig, 0)
		} else {
			s.store.SetDocData(docName, docDataGlueKey, glue.Keys())
		}
	}

	// Migrate script registrations collected during rendering, then drop
	// the transient renderer handle.
	if registrar, ok := renderer.(jsFileRegistrar); ok {
		for key, file := range registrar.JsFiles() {
			s.store.AddJsFile(docName, key, file)
		}
	}

	return tree, nil
}

// writeTracebackReport persists an execution traceback to the fixed
// per-document report path and returns it.
func (s *Session) writeTracebackReport(docName, traceback string) (string, error) {
	segments := append([]string{s.outDir, "reports"}, docSegments(docName, ".err.log")...)
	reportPath := filepath.Join(segments...)
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(reportPath, []byte(traceback), 0o600); err != nil {
		return "", err
	}
	return reportPath, nil
}

// docSegments splits a document identifier into path segments, adding
// suffix to the last one.
func docSegments(docName, suffix string) []string {
	segments := strings.Split(docName, "/")
	segments[len(segments)-1] += suffix
	return segments
}
