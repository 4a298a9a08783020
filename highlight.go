package nb2doc

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// defaultHighlightStyle is the chroma style used by the HTML writer.
const defaultHighlightStyle = "github"

// ResolveLexer maps a kernel language name to a canonical lexer name,
// falling back to plain text when no lexer is registered for it.
func ResolveLexer(language string) string {
	if language == "" {
		return "text"
	}
	if lexers.Get(language) == nil {
		return "text"
	}
	return strings.ToLower(language)
}

// HighlightHTML renders source code as syntax-highlighted HTML using the
// lexer registered for the given language. Unknown languages fall back
// to the plain-text lexer rather than failing.
func HighlightHTML(source, language string, numberLines bool) (string, error) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(defaultHighlightStyle)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return "", fmt.Errorf("highlighting failed: %w", err)
	}

	formatter := html.New(
		html.WithLineNumbers(numberLines),
		html.WithClasses(false),
	)
	var b strings.Builder
	if err := formatter.Format(&b, style, iterator); err != nil {
		return "", fmt.Errorf("highlighting failed: %w", err)
	}
	return b.String(), nil
}
