package script

import (
	"testing"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

func TestGenerateFastPathFunction(t *testing.T) {
	lines := []string{
		"def add(a, b):",
		"    total = a + b",
		"    return total",
	}
	fn := &model.Construct{
		Kind:       model.ConstructFunction,
		Name:       "add",
		Language:   model.LanguagePython,
		ParamNames: []string{"a", "b"},
		Span:       model.Span{StartLine: 1, EndLine: 3},
		BodySpan:   model.Span{StartLine: 2, EndLine: 3},
		ExitLines:  []int{3},
	}
	s, ok, err := GenerateFastPath(lines, fn)
	if err != nil || !ok {
		t.Fatalf("GenerateFastPath: ok=%v err=%v", ok, err)
	}
	if len(s.Ops) != 2 {
		t.Fatalf("expected entry + one exit op, got %d", len(s.Ops))
	}
	for _, op := range s.Ops {
		if op.Anchor.LineHash == "" {
			t.Fatalf("expected every op to carry a non-empty anchor line hash")
		}
	}
}

func TestAnchorDetectsDrift(t *testing.T) {
	lines := []string{"x = 1", "y = 2"}
	a := ComputeAnchor(lines, 1)
	if !AnchorMatches(lines, a) {
		t.Fatalf("expected anchor to match unchanged content")
	}
	drifted := []string{"x = 999", "y = 2"}
	if AnchorMatches(drifted, a) {
		t.Fatalf("expected anchor to detect drift when line content changes")
	}
}

func TestValidateScriptAgainstSpanRejectsOutOfRangeAnchor(t *testing.T) {
	s := model.Script{Ops: []model.Op{{Kind: model.OpInsertLine, Anchor: model.Anchor{Line: 100}, Text: "ok"}}}
	span := model.Span{StartLine: 1, EndLine: 10}
	if err := ValidateScriptAgainstSpan(s, span); err == nil {
		t.Fatalf("expected an error for an anchor outside the construct span")
	}
}

func TestValidateScriptAgainstSpanRejectsForbiddenMarker(t *testing.T) {
	s := model.Script{Ops: []model.Op{{Kind: model.OpInsertLine, Anchor: model.Anchor{Line: 5}, Text: "```python\nx=1\n```"}}}
	span := model.Span{StartLine: 1, EndLine: 10}
	if err := ValidateScriptAgainstSpan(s, span); err == nil {
		t.Fatalf("expected an error for a markdown-fenced op text")
	}
}

func TestValidateInsertionScriptJSONAcceptsWellFormedDoc(t *testing.T) {
	raw := []byte(`{"ops":[{"kind":"insert_line","anchor_line":3,"anchor_hash":"abc123","text":"telemetry.Exit()"}]}`)
	if _, err := ValidateInsertionScriptJSON(raw); err != nil {
		t.Fatalf("ValidateInsertionScriptJSON: %v", err)
	}
}

func TestValidateInsertionScriptJSONRejectsMissingOps(t *testing.T) {
	raw := []byte(`{"not_ops": []}`)
	if _, err := ValidateInsertionScriptJSON(raw); err == nil {
		t.Fatalf("expected schema validation to reject a document missing \"ops\"")
	}
}

func TestExtractJSONObjectStripsSurroundingProse(t *testing.T) {
	text := "Sure, here is the script:\n{\"ops\":[]}\nLet me know if you need anything else."
	got := extractJSONObject(text)
	if got != `{"ops":[]}` {
		t.Fatalf("extractJSONObject() = %q, want {\"ops\":[]}", got)
	}
}
