// Package validate is the Validator (C7): per-language backends sharing one
// interface, composed behind a dispatch table keyed by language tag -
// generalizing the "independent checker functions composed by
// one entrypoint" idiom (internal/attractor/validate.Validate, which runs a
// fixed sequence of lint* functions over a graph and merges their
// Diagnostics) from graph linting to source-file validation.
package validate

import (
	"context"
	"regexp"
	"strings"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

// BuildConfig supplies the external build/type-check command for languages
// that require one. A missing Command for a RequiresBuild language is a
// config_error, never a silent pass-through ("null-build-command
// bug").
type BuildConfig struct {
	Command []string // e.g. ["go", "build", "./..."] or ["tsc", "--noEmit"]
}

// Validator is implemented once per language.
type Validator interface {
	Language() model.Language
	Validate(ctx context.Context, candidate string, build BuildConfig) model.ValidationResult
}

var registry = map[model.Language]Validator{}

func register(v Validator) { registry[v.Language()] = v }

func init() {
	register(&pythonValidator{})
	register(&jsValidator{lang: model.LanguageJavaScript})
	register(&jsValidator{lang: model.LanguageTypeScript, typeChecked: true})
	register(&goValidator{})
}

// Validate dispatches to the registered Validator for lang.
func Validate(ctx context.Context, lang model.Language, candidate string, build BuildConfig) model.ValidationResult {
	v, ok := registry[lang]
	if !ok {
		return model.ValidationResult{Status: model.ValidationConfigError, FailurePattern: "no_validator_for_language"}
	}
	if lang.RequiresBuild() && len(build.Command) == 0 {
		// A missing build command must never be treated as silent
		// success - this is the exact upstream bug a real tool must avoid.
		return model.ValidationResult{Status: model.ValidationConfigError, FailurePattern: "missing_build_command"}
	}
	return v.Validate(ctx, candidate, build)
}

// ImportsRuntimeUtility is importsRuntimeUtility exported for callers outside
// this package (the pipeline needs the same check before deciding whether a
// file needs its runtime-utility import line inserted).
func ImportsRuntimeUtility(lang model.Language, candidate string) bool {
	return importsRuntimeUtility(lang, candidate)
}

// importsRuntimeUtility reports whether candidate source already imports the
// runtime-utility module, using simple per-language substring heuristics.
// No validator executes the candidate; a configured build command is the
// only external check, and it runs whether or not this reports true.
func importsRuntimeUtility(lang model.Language, candidate string) bool {
	switch lang {
	case model.LanguagePython:
		return strings.Contains(candidate, "import _telemetry") || strings.Contains(candidate, "from _telemetry")
	case model.LanguageJavaScript, model.LanguageTypeScript:
		return strings.Contains(candidate, "_telemetry")
	case model.LanguageGo:
		return strings.Contains(candidate, `"telemetry"`) || strings.Contains(candidate, "telemetry.Enter")
	default:
		return false
	}
}

// canonicalFailurePattern builds a stable key for the Learning Store from the
// language tag and validation status, e.g. "go_undefined_identifier", with a
// "_reserved_local" suffix when the message names a reserved _tel* local
// (e.g. "python_unused_identifier_reserved_local"). Line numbers and the
// names themselves are dropped, so failures of the same kind on different
// lines/names group together.
var identifierInMessage = regexp.MustCompile(`[_a-zA-Z][_a-zA-Z0-9]*`)

func canonicalFailurePattern(lang model.Language, status model.ValidationStatus, message string) string {
	var sb strings.Builder
	sb.WriteString(string(lang))
	sb.WriteString("_")
	sb.WriteString(string(status))
	if strings.Contains(message, "_tel") {
		match := identifierInMessage.FindString(message[strings.Index(message, "_tel"):])
		if strings.HasPrefix(match, "_tel") {
			sb.WriteString("_reserved_local")
		}
	}
	return sb.String()
}
