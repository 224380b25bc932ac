package validate

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

// goValidator always requires a build command (go build or go vet against a
// scratch module, supplied by the caller as build.Command) since Go is
// RequiresBuild()==true: unused imports and unused locals are compile
// errors in Go, not warnings, so the syntax-only tree-sitter pass can't
// stand in for it the way it can for Python/JS.
type goValidator struct{}

func (goValidator) Language() model.Language { return model.LanguageGo }

func (goValidator) Validate(ctx context.Context, candidate string, build BuildConfig) model.ValidationResult {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, []byte(candidate))
	if err != nil {
		return model.ValidationResult{Status: model.ValidationSyntaxError, FailurePattern: canonicalFailurePattern(model.LanguageGo, model.ValidationSyntaxError, err.Error()), StderrExcerpt: err.Error()}
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		return model.ValidationResult{Status: model.ValidationSyntaxError, FailurePattern: "go_syntax_error"}
	}

	if res := lintUnusedTelescribeLocals(candidate, "_tel"); !res.OK() {
		return res
	}

	// go build's own compiler already rejects unused imports/locals, so the
	// build command itself is the authoritative unused-identifier check;
	// lintUnusedTelescribeLocals above only catches it earlier and cheaper.
	return runBuildCommand(ctx, model.LanguageGo, candidate, "go", build.Command)
}
