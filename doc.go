// Package nb2doc renders computational notebooks as documentation pages.
//
// # Quick Start
//
// Create a build service, parse notebooks, then resolve the trees for
// an output format:
//
//	svc, err := nb2doc.New(nb2doc.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tree, err := svc.ParseDocument(ctx, "notebooks/demo", source)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pages := svc.ResolveFormat("html")
//
// # Rendering Pipeline
//
// The build runs in two phases:
//
//  1. Parse: each notebook becomes a format-agnostic document tree.
//     Markdown cells merge into the page structure via Goldmark, code
//     cells become cell/cell_input/cell_output containers, and outputs
//     with several candidate representations become mime-bundle nodes
//     that keep every candidate.
//  2. Resolve: once per output format, mime bundles collapse to the
//     single best representation for that format's priority list. The
//     parsed trees are never mutated, so any number of formats can be
//     resolved without re-parsing.
//
// # Configuration
//
// Render options resolve through a precedence chain: per-cell metadata
// (under the cell_render_key namespace) wins over notebook metadata
// overrides, which win over the global Config. See Config.CellOption.
//
// # Parallel Builds
//
// ParseAll distributes documents over worker sessions, each with an
// isolated per-document metadata store; stores merge deterministically
// after the parse phase via MetadataStore.MergeOther.
//
// # Element Renderers
//
// The nodes emitted for stdout/stderr/errors/mime payloads come from an
// ElementRenderer selected by name via the render_plugin option.
// Register custom implementations with RegisterRenderer before
// constructing the service.
package nb2doc
