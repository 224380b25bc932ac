package validate

import (
	"context"
	"testing"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

func TestValidateGoMissingBuildCommandIsConfigError(t *testing.T) {
	res := Validate(context.Background(), model.LanguageGo, "package main\n", BuildConfig{})
	if res.Status != model.ValidationConfigError {
		t.Fatalf("expected config_error when no build command is configured for a RequiresBuild language, got %v", res.Status)
	}
}

func TestValidatePythonSyntaxErrorDetected(t *testing.T) {
	res := Validate(context.Background(), model.LanguagePython, "def broken(:\n    pass\n", BuildConfig{})
	if res.Status != model.ValidationSyntaxError {
		t.Fatalf("expected syntax_error for malformed python, got %v", res.Status)
	}
}

func TestValidatePythonWellFormedPassesWithoutBuildCommand(t *testing.T) {
	res := Validate(context.Background(), model.LanguagePython, "def add(a, b):\n    return a + b\n", BuildConfig{})
	if !res.OK() {
		t.Fatalf("expected ok for well-formed python with no configured build command, got %v", res.Status)
	}
}

func TestValidateUnknownLanguageIsConfigError(t *testing.T) {
	res := Validate(context.Background(), model.Language("ruby"), "puts 1", BuildConfig{})
	if res.Status != model.ValidationConfigError {
		t.Fatalf("expected config_error for an unregistered language, got %v", res.Status)
	}
}

func TestLintUnusedTelescribeLocalsCatchesSingleOccurrence(t *testing.T) {
	res := lintUnusedTelescribeLocals("x = 1\n_tel_entry_0 = record_entry()\n", "_tel")
	if res.Status != model.ValidationUnusedIdentifier {
		t.Fatalf("expected unused_identifier for a reserved local referenced only once, got %v", res.Status)
	}
}

func TestLintUnusedTelescribeLocalsAllowsTwoOccurrences(t *testing.T) {
	res := lintUnusedTelescribeLocals("_tel_entry_0 = record_entry()\nuse(_tel_entry_0)\n", "_tel")
	if !res.OK() {
		t.Fatalf("expected ok when a reserved local is referenced twice, got %v", res.Status)
	}
}

func TestClassifyBuildStderrUnusedImportFallsBackDeclaredNotUsedRecognized(t *testing.T) {
	if got := classifyBuildStderr("./main.go:3:2: \"fmt\" imported and not used"); got != model.ValidationCompileError {
		t.Fatalf("expected compile_error fallback for an unused-import message without the unused keyword, got %v", got)
	}
	if got := classifyBuildStderr("./main.go:5:2: declared and not used: x"); got != model.ValidationUnusedIdentifier {
		t.Fatalf("expected unused_identifier for a declared-and-not-used message, got %v", got)
	}
}
