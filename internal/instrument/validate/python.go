package validate

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

// pythonValidator checks syntax via tree-sitter, then (when a build command
// is configured) shells out to it - typically "python3 -m py_compile" - for
// a real interpreter-level check tree-sitter's error-recovery parser can't
// give. Python never requires a build command (RequiresBuild() is false),
// so a candidate with no configured command still gets the syntax check.
type pythonValidator struct{}

func (pythonValidator) Language() model.Language { return model.LanguagePython }

func (pythonValidator) Validate(ctx context.Context, candidate string, build BuildConfig) model.ValidationResult {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, []byte(candidate))
	if err != nil {
		return model.ValidationResult{Status: model.ValidationSyntaxError, FailurePattern: canonicalFailurePattern(model.LanguagePython, model.ValidationSyntaxError, err.Error()), StderrExcerpt: err.Error()}
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		return model.ValidationResult{Status: model.ValidationSyntaxError, FailurePattern: "python_syntax_error"}
	}

	if res := lintUnusedTelescribeLocals(candidate, "_tel"); !res.OK() {
		return res
	}

	if len(build.Command) == 0 {
		return model.ValidationResult{Status: model.ValidationOK}
	}
	return runBuildCommand(ctx, model.LanguagePython, candidate, "py", build.Command)
}

// lintUnusedTelescribeLocals is a cheap, language-agnostic heuristic shared
// by every language validator: every reserved-prefix local the
// generator introduces (e.g. "_telFunction3") must be referenced at least
// twice in the candidate (its declaration plus at least one use). A single
// occurrence means a snippet assigned a capture variable nothing reads -
// the exact defect class this validator calls "unused_identifier".
func lintUnusedTelescribeLocals(candidate, prefix string) model.ValidationResult {
	counts := map[string]int{}
	for _, tok := range strings.FieldsFunc(candidate, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) {
		if strings.HasPrefix(tok, prefix) {
			counts[tok]++
		}
	}
	for name, n := range counts {
		if n < 2 {
			return model.ValidationResult{Status: model.ValidationUnusedIdentifier, FailurePattern: "reserved_local_unused", StderrExcerpt: "unused: " + name}
		}
	}
	return model.ValidationResult{Status: model.ValidationOK}
}

// runBuildCommand writes candidate to a throwaway temp file with the given
// extension and runs build.Command against it, classifying a non-zero exit
// by stderr content. Used by every language whose Validator has a
// configured external compiler/interpreter.
func runBuildCommand(ctx context.Context, lang model.Language, candidate, ext string, command []string) model.ValidationResult {
	tmp, err := os.CreateTemp("", "telescribe-validate-*."+ext)
	if err != nil {
		return model.ValidationResult{Status: model.ValidationConfigError, FailurePattern: "temp_file_create_failed"}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(candidate); err != nil {
		tmp.Close()
		return model.ValidationResult{Status: model.ValidationConfigError, FailurePattern: "temp_file_write_failed"}
	}
	tmp.Close()

	args := make([]string, 0, len(command))
	for _, a := range command {
		if a == "{file}" {
			args = append(args, tmp.Name())
		} else {
			args = append(args, a)
		}
	}
	if len(args) == 0 {
		return model.ValidationResult{Status: model.ValidationConfigError, FailurePattern: "missing_build_command"}
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = filepath.Dir(tmp.Name())
	out, err := cmd.CombinedOutput()
	if err == nil {
		return model.ValidationResult{Status: model.ValidationOK}
	}
	if ctx.Err() != nil {
		return model.ValidationResult{Status: model.ValidationRuntimeTimeout, FailurePattern: "build_command_timeout"}
	}
	status := classifyBuildStderr(string(out))
	return model.ValidationResult{Status: status, FailurePattern: canonicalFailurePattern(lang, status, string(out)), StderrExcerpt: firstLines(string(out), 5)}
}

func classifyBuildStderr(stderr string) model.ValidationStatus {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "no module named"), strings.Contains(lower, "cannot find package"), strings.Contains(lower, "cannot find module"):
		return model.ValidationImportError
	case strings.Contains(lower, "declared and not used"), strings.Contains(lower, "is declared but its value is never read"), strings.Contains(lower, "unused"):
		return model.ValidationUnusedIdentifier
	case strings.Contains(lower, "undefined"), strings.Contains(lower, "undeclared name"), strings.Contains(lower, "cannot find name"):
		return model.ValidationUndefinedIdentifier
	case strings.Contains(lower, "syntaxerror"), strings.Contains(lower, "syntax error"):
		return model.ValidationSyntaxError
	default:
		return model.ValidationCompileError
	}
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
