package nb2doc

import (
	"fmt"
	"strings"
)

// Built-in mime priority lists per output format. The first entry of a
// list that matches any representation in a bundle wins.
var (
	htmlMimePriority = []string{
		widgetViewMimeType,
		"application/javascript",
		"text/html",
		"image/svg+xml",
		"image/png",
		"image/jpeg",
		"image/gif",
		"text/markdown",
		"text/latex",
		"text/plain",
	}
	latexMimePriority = []string{
		"text/latex",
		"application/pdf",
		"image/png",
		"image/jpeg",
		"text/markdown",
		"text/plain",
	}
)

// MimePriority returns the ordered mime priority list for an output
// format, honoring per-format user overrides first.
func MimePriority(builder string, overrides map[string][]string) []string {
	if priority, ok := overrides[builder]; ok {
		return priority
	}
	switch {
	case strings.HasPrefix(builder, "latex"), builder == "pdf":
		return latexMimePriority
	default:
		return htmlMimePriority
	}
}

// ResolveMimeBundles collapses every mime-bundle node in the tree to
// the single best representation for the given output format, or
// removes the bundle when nothing matches. It runs once per format over
// the finished tree and is idempotent: a resolved tree contains no
// mime-bundle nodes, so a second run is a no-op.
func ResolveMimeBundles(doc *Node, builder string, priority []string, logger *DocLogger) {
	bundles := doc.FindAll(func(n *Node) bool { return n.Kind == KindMimeBundle })
	for _, bundle := range bundles {
		resolveBundle(bundle, builder, priority, logger)
	}
}

func resolveBundle(bundle *Node, builder string, priority []string, logger *DocLogger) {
	if len(bundle.Children) == 0 {
		bundle.Remove()
		return
	}

	mimeTypes := make([]string, len(bundle.Children))
	for i, container := range bundle.Children {
		mimeTypes[i] = container.StringAttr("mime_type")
	}

	// Lowest index in the priority list wins, regardless of how many
	// representations match later entries.
	winner := -1
	for _, mimeType := range priority {
		for i, present := range mimeTypes {
			if present == mimeType {
				winner = i
				break
			}
		}
		if winner >= 0 {
			break
		}
	}

	if winner < 0 {
		if logger != nil {
			logger.Warning(
				fmt.Sprintf("no mime type available in priority list for builder %q (%s)",
					builder, strings.Join(mimeTypes, ", ")),
				WarnMimePriority, bundle.Line)
		}
		bundle.Remove()
		return
	}

	selected := bundle.Children[winner]
	if len(selected.Children) == 0 {
		// The winning candidate rendered to nothing; no fallback to the
		// next priority entry.
		bundle.Remove()
		return
	}
	bundle.ReplaceWith(selected.Children...)
}
