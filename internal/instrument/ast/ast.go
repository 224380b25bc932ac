// Package ast is the AST Analyzer (C1): it parses one source file into an
// ordered list of Constructs with scope-aware variable-use records attached,
// using tree-sitter grammars (github.com/smacker/go-tree-sitter), the same
// library other_examples/getlawrence-cli uses to drive its own
// OpenTelemetry-initialization code injector.
package ast

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

// Analyzer parses source text in one language into an ordered Construct list.
// Each concrete language gets its own Analyzer, registered below, following
// the same per-language-handler-map pattern getlawrence-cli's CodeInjector
// uses for its own language dispatch.
type Analyzer interface {
	Language() model.Language
	Analyze(ctx context.Context, source []byte) ([]*model.Construct, error)
}

var registry = map[model.Language]Analyzer{}

func register(a Analyzer) {
	registry[a.Language()] = a
}

// For registers each language's Analyzer as init runs.
func init() {
	register(newPythonAnalyzer())
	register(newGoAnalyzer())
	register(newJSAnalyzer(model.LanguageJavaScript))
	register(newJSAnalyzer(model.LanguageTypeScript))
}

// Analyze dispatches to the registered Analyzer for lang. An unparseable
// file, or a language with no registered Analyzer, fails the whole file -
// the core never partially instruments a file it
// could not fully analyze.
func Analyze(ctx context.Context, lang model.Language, source []byte) ([]*model.Construct, error) {
	a, ok := registry[lang]
	if !ok {
		return nil, model.NewParseError(fmt.Sprintf("no analyzer registered for language %q", lang), nil)
	}
	return a.Analyze(ctx, source)
}

// parseTree is a small shared helper: build a sitter.Parser for lang,
// parse source, and return the resulting tree. Callers must Close() the
// tree when done.
func parseTree(ctx context.Context, lang *sitter.Language, source []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, model.NewParseError("tree-sitter parse failed", err)
	}
	if tree.RootNode().HasError() {
		// Conservative: a syntax-error-containing tree is still walked by
		// tree-sitter (it degrades gracefully), but this package requires
		// unparseable input to fail the whole file rather than instrument
		// around an error node.
		tree.Close()
		return nil, model.NewParseError("source contains a syntax error node", nil)
	}
	return tree, nil
}

// lineOf converts a tree-sitter 0-indexed row to Telescribe's 1-indexed Span
// line numbering.
func lineOf(p sitter.Point) int {
	return int(p.Row) + 1
}
