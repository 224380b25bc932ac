package snippet

import (
	"strings"
	"testing"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

func TestFunctionEntryExitPython(t *testing.T) {
	fn := &model.Construct{
		Kind:       model.ConstructFunction,
		Name:       "add",
		ParamNames: []string{"a", "b"},
		Span:       model.Span{StartLine: 1, EndLine: 3},
		BodySpan:   model.Span{StartLine: 2, EndLine: 3},
		ExitLines:  []int{3},
	}
	entry, exits, err := FunctionEntryExit(model.LanguagePython, fn)
	if err != nil {
		t.Fatalf("FunctionEntryExit: %v", err)
	}
	if !strings.Contains(entry.Text, "enter_function") || !strings.Contains(entry.Text, "add") {
		t.Fatalf("entry text = %q, missing expected fragments", entry.Text)
	}
	if len(exits) != 1 || !strings.Contains(exits[0].Text, "exit_function") {
		t.Fatalf("exits = %v, want one exit_function call", exits)
	}
	if exits[0].Anchor != model.AnchorBefore {
		t.Fatalf("exit anchor = %v, want AnchorBefore (insert before return, never rewrite it)", exits[0].Anchor)
	}
}

func TestFunctionEntryExitGoSkipsWhenNoExitLines(t *testing.T) {
	fn := &model.Construct{
		Kind:     model.ConstructFunction,
		Name:     "spin",
		Span:     model.Span{StartLine: 1, EndLine: 5},
		BodySpan: model.Span{StartLine: 2, EndLine: 5},
	}
	entry, exits, err := FunctionEntryExit(model.LanguageGo, fn)
	if err != nil {
		t.Fatalf("FunctionEntryExit: %v", err)
	}
	if entry.Text != "" || exits != nil {
		t.Fatalf("expected no snippets for a Go function with no discoverable exit line (would leave handle unused)")
	}
}

func TestVariableChangeRefusesUndefinedUse(t *testing.T) {
	construct := &model.Construct{EnclosingFunc: "f"}
	use := model.VariableUse{Name: "x", Line: 10, Defined: false}
	if _, err := VariableChange(model.LanguagePython, construct, use); err == nil {
		t.Fatalf("expected an error when synthesizing a variable_change snippet for an undefined use")
	}
}

func TestVariableChangeProducesCall(t *testing.T) {
	construct := &model.Construct{EnclosingFunc: "f"}
	use := model.VariableUse{Name: "x", Line: 10, Defined: true, BoundScope: "function:f"}
	snip, err := VariableChange(model.LanguageJavaScript, construct, use)
	if err != nil {
		t.Fatalf("VariableChange: %v", err)
	}
	if !strings.Contains(snip.Text, "variableChange") || !strings.Contains(snip.Text, "x") {
		t.Fatalf("snip.Text = %q, missing expected fragments", snip.Text)
	}
}

func TestHandleNameIsCollisionSafeAcrossLines(t *testing.T) {
	a := HandleName(model.ConstructLoop, 5)
	b := HandleName(model.ConstructLoop, 6)
	if a == b {
		t.Fatalf("expected distinct handle names for constructs on different lines")
	}
	if !strings.HasPrefix(a, "_tel") {
		t.Fatalf("handle name %q does not use the reserved _tel prefix", a)
	}
}

func TestUnsupportedLanguageReturnsError(t *testing.T) {
	fn := &model.Construct{Span: model.Span{StartLine: 1, EndLine: 2}, BodySpan: model.Span{StartLine: 1, EndLine: 2}}
	if _, _, err := FunctionEntryExit(model.Language("ruby"), fn); err == nil {
		t.Fatalf("expected an error for a language with no registered template set")
	}
}
