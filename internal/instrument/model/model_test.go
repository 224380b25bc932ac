package model

import "testing"

func TestSpanContains(t *testing.T) {
	s := Span{StartLine: 10, EndLine: 20}
	if !s.Contains(10) || !s.Contains(20) || !s.Contains(15) {
		t.Fatalf("expected span to contain its boundary and interior lines")
	}
	if s.Contains(9) || s.Contains(21) {
		t.Fatalf("expected span to reject lines outside its range")
	}
}

func TestSpanContainsSpan(t *testing.T) {
	outer := Span{StartLine: 1, EndLine: 100}
	inner := Span{StartLine: 10, EndLine: 20}
	if !outer.ContainsSpan(inner) {
		t.Fatalf("expected outer span to contain inner span")
	}
	if inner.ContainsSpan(outer) {
		t.Fatalf("did not expect inner span to contain outer span")
	}
}

func TestLanguageRequiresBuild(t *testing.T) {
	cases := map[Language]bool{
		LanguageGo:         true,
		LanguageTypeScript: true,
		LanguagePython:     false,
		LanguageJavaScript: false,
	}
	for lang, want := range cases {
		if got := lang.RequiresBuild(); got != want {
			t.Errorf("%s.RequiresBuild() = %v, want %v", lang, got, want)
		}
	}
}

func TestPipelineErrorRecoverable(t *testing.T) {
	recoverable := []*PipelineError{
		NewAnchorDriftError("drift"),
		NewValidationFailure(ValidationSyntaxError, "bad syntax"),
	}
	for _, e := range recoverable {
		if !e.Recoverable() {
			t.Errorf("expected %v to be recoverable", e.Kind)
		}
	}
	terminal := []*PipelineError{
		NewParseError("unparseable", nil),
		NewConfigError("missing build command"),
		NewBudgetExhaustedError("out of budget"),
		NewSandboxViolationError("escaped scratch dir"),
	}
	for _, e := range terminal {
		if e.Recoverable() {
			t.Errorf("expected %v to be terminal", e.Kind)
		}
	}
}

func TestValidationResultOK(t *testing.T) {
	ok := ValidationResult{Status: ValidationOK}
	if !ok.OK() {
		t.Fatalf("expected ValidationOK to report OK()")
	}
	bad := ValidationResult{Status: ValidationSyntaxError}
	if bad.OK() {
		t.Fatalf("did not expect syntax_error to report OK()")
	}
}
