package validate

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

// jsValidator serves both JavaScript and TypeScript: the grammar and
// whether a build (type-check) command is mandatory differ, everything
// else - syntax check, reserved-local lint, optional build command - is shared.
type jsValidator struct {
	lang        model.Language
	typeChecked bool // true for TypeScript: build.Command runs "tsc --noEmit" or similar
}

func (v *jsValidator) Language() model.Language { return v.lang }

func (v *jsValidator) grammar() *sitter.Language {
	if v.lang == model.LanguageTypeScript {
		return typescript.GetLanguage()
	}
	return javascript.GetLanguage()
}

func (v *jsValidator) Validate(ctx context.Context, candidate string, build BuildConfig) model.ValidationResult {
	parser := sitter.NewParser()
	parser.SetLanguage(v.grammar())
	tree, err := parser.ParseCtx(ctx, nil, []byte(candidate))
	if err != nil {
		return model.ValidationResult{Status: model.ValidationSyntaxError, FailurePattern: canonicalFailurePattern(v.lang, model.ValidationSyntaxError, err.Error()), StderrExcerpt: err.Error()}
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		return model.ValidationResult{Status: model.ValidationSyntaxError, FailurePattern: string(v.lang) + "_syntax_error"}
	}

	if res := lintUnusedTelescribeLocals(candidate, "_tel"); !res.OK() {
		return res
	}

	ext := "js"
	if v.lang == model.LanguageTypeScript {
		ext = "ts"
	}
	if len(build.Command) == 0 {
		if v.typeChecked {
			return model.ValidationResult{Status: model.ValidationConfigError, FailurePattern: "missing_build_command"}
		}
		return model.ValidationResult{Status: model.ValidationOK}
	}
	return runBuildCommand(ctx, v.lang, candidate, ext, build.Command)
}
