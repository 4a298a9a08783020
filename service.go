package nb2doc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Service orchestrates the notebook-to-document build: a parse phase
// producing one format-agnostic tree per document, then a resolve phase
// per output format that collapses mime bundles against that format's
// priority list.
type Service struct {
	cfg      Config
	logger   *log.Logger
	executor Executor
	outDir   string

	store *MetadataStore
	trees map[string]*Node
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the build-wide logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithExecutor sets the notebook execution collaborator.
func WithExecutor(e Executor) Option {
	return func(s *Service) { s.executor = e }
}

// WithOutputDir sets the build output directory for persisted
// artifacts (executed notebooks, glue sidecars, reports, assets).
func WithOutputDir(dir string) Option {
	return func(s *Service) { s.outDir = dir }
}

// New creates a Service for one build generation. An invalid
// configuration is fatal: the whole build depends on it.
func New(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:      cfg,
		executor: StaticExecutor{},
		outDir:   "_build",
		store:    NewMetadataStore(),
		trees:    map[string]*Node{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = NewLogger(os.Stderr, log.InfoLevel)
	}
	if _, err := LoadRenderer(cfg.RenderPlugin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return s, nil
}

// Config returns the validated build configuration.
func (s *Service) Config() Config { return s.cfg }

// Store returns the combined per-document metadata store.
func (s *Service) Store() *MetadataStore { return s.store }

// Tree returns the parsed format-agnostic tree for a document, or nil.
func (s *Service) Tree(docName string) *Node { return s.trees[docName] }

// ParseDocument parses a single document in-process and records its
// tree and metadata.
func (s *Service) ParseDocument(ctx context.Context, docName string, source []byte) (*Node, error) {
	session := newSession(s.cfg, s.logger, s.executor, s.outDir)
	tree, err := session.ParseDocument(ctx, docName, source)
	if err != nil {
		return nil, err
	}
	s.store.MergeOther([]string{docName}, session.Store())
	s.trees[docName] = tree
	return tree, nil
}

// ParseAll parses every document, distributing them over worker
// sessions. Each worker has its own metadata store; results merge
// deterministically after all workers finish. The new-execution-data
// flag resets at the start of the pass. Per-document failures are
// collected and returned joined; successful documents keep their trees.
func (s *Service) ParseAll(ctx context.Context, sources map[string][]byte, workers int) error {
	s.store.ResetExecFlag()

	docNames := make([]string, 0, len(sources))
	for docName := range sources {
		docNames = append(docNames, docName)
	}
	sort.Strings(docNames)

	workers = ResolveWorkerCount(workers)
	if workers > len(docNames) {
		workers = len(docNames)
	}
	if workers < 1 {
		workers = 1
	}

	type result struct {
		docName string
		tree    *Node
		err     error
	}

	jobs := make(chan string)
	results := make(chan result)
	pool := newSessionPool(workers, func() *Session {
		return newSession(s.cfg, s.logger, s.executor, s.outDir)
	})

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := pool.Acquire()
			defer pool.Release(session)
			for docName := range jobs {
				tree, err := session.ParseDocument(ctx, docName, sources[docName])
				results <- result{docName: docName, tree: tree, err: err}
			}
		}()
	}

	go func() {
		for _, docName := range docNames {
			jobs <- docName
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	perDoc := map[string]*Node{}
	errs := map[string]error{}
	for r := range results {
		if r.err != nil {
			errs[r.docName] = r.err
			continue
		}
		perDoc[r.docName] = r.tree
	}

	// Single-threaded, deterministic merge: each document's entry comes
	// from exactly one worker, so merge order does not matter.
	for _, session := range pool.Sessions() {
		ids := session.Store().DocIDs()
		sort.Strings(ids)
		s.store.MergeOther(ids, session.Store())
	}
	for docName, tree := range perDoc {
		s.trees[docName] = tree
	}

	if len(errs) > 0 {
		failed := make([]string, 0, len(errs))
		for docName := range errs {
			failed = append(failed, docName)
		}
		sort.Strings(failed)
		joined := make([]error, 0, len(errs))
		for _, docName := range failed {
			joined = append(joined, fmt.Errorf("%s: %w", docName, errs[docName]))
		}
		return errors.Join(joined...)
	}
	return nil
}

// ResolveFormat returns per-document trees resolved for one output
// format. Each returned tree is an independent copy: the stored parsed
// trees keep all candidate representations so further formats can be
// resolved without re-parsing.
func (s *Service) ResolveFormat(builder string) map[string]*Node {
	priority := MimePriority(builder, s.cfg.MimePriorityOverrides)
	resolved := make(map[string]*Node, len(s.trees))
	for docName, tree := range s.trees {
		clone := tree.Clone()
		ResolveMimeBundles(clone, builder, priority, NewDocLogger(s.logger, docName))
		resolved[docName] = clone
	}
	return resolved
}

// ClearDocument removes a document from the build.
func (s *Service) ClearDocument(docName string) {
	delete(s.trees, docName)
	s.store.ClearDoc(docName)
}
