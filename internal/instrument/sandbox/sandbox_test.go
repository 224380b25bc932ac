package sandbox

import (
	"testing"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/script"
)

func TestApplyInsertsBeforeAndAfterAnchors(t *testing.T) {
	lines := []string{
		"def add(a, b):",
		"    total = a + b",
		"    return total",
	}
	entryOp := model.Op{Kind: model.OpInsertLine, Placement: model.AnchorWrapEntry, Anchor: script.ComputeAnchor(lines, 2), Text: "ENTRY"}
	exitOp := model.Op{Kind: model.OpInsertLine, Placement: model.AnchorBefore, Anchor: script.ComputeAnchor(lines, 3), Text: "EXIT"}
	s := model.Script{Ops: []model.Op{entryOp, exitOp}}

	res, err := Apply(lines, s, DefaultLimits())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []string{
		"def add(a, b):",
		"ENTRY",
		"    total = a + b",
		"EXIT",
		"    return total",
	}
	if len(res.Lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(res.Lines), len(want), res.Lines)
	}
	for i := range want {
		if res.Lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q (full: %v)", i, res.Lines[i], want[i], res.Lines)
		}
	}
}

func TestApplyDetectsAnchorDriftBeyondRadius(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	op := model.Op{Kind: model.OpInsertLine, Anchor: model.Anchor{Line: 2, LineHash: "not-a-real-hash"}, Text: "X"}
	_, err := Apply(lines, model.Script{Ops: []model.Op{op}}, DefaultLimits())
	if err == nil {
		t.Fatalf("expected an anchor_drift error when no nearby line matches the stored hash")
	}
	perr, ok := err.(*model.PipelineError)
	if !ok || perr.Kind != model.ErrAnchorDrift {
		t.Fatalf("expected ErrAnchorDrift, got %v", err)
	}
}

func TestApplyToleratesBoundedDrift(t *testing.T) {
	original := []string{"a", "b", "c", "d", "e"}
	anchor := script.ComputeAnchor(original, 3) // anchors on "c"
	shifted := []string{"a", "zzz", "b", "c", "d", "e"}
	op := model.Op{Kind: model.OpInsertLine, Placement: model.AnchorBefore, Anchor: anchor, Text: "INSERTED"}

	res, err := Apply(shifted, model.Script{Ops: []model.Op{op}}, DefaultLimits())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	found := false
	for i, l := range res.Lines {
		if l == "INSERTED" {
			if i+1 < len(res.Lines) && res.Lines[i+1] == "c" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected INSERTED immediately before the drifted \"c\" line, got %v", res.Lines)
	}
}

func TestStripForbiddenMarkerLinesRemovesFenceOnlyLines(t *testing.T) {
	lines := []string{"real code", "```", "more code"}
	stripped := stripForbiddenMarkerLines(lines)
	for _, l := range stripped {
		if l == "```" {
			t.Fatalf("expected fence-only lines to be stripped, got %v", stripped)
		}
	}
	if len(stripped) != 2 {
		t.Fatalf("expected 2 lines after stripping, got %d: %v", len(stripped), stripped)
	}
}

func TestScratchWriteCandidateRejectsEscapingPath(t *testing.T) {
	s, err := NewScratch(t.TempDir())
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	defer s.Close()
	if _, err := s.WriteCandidate("../escape.py", []string{"x = 1"}); err == nil {
		t.Fatalf("expected an error when writing outside the scratch directory")
	}
}

func TestScratchWriteCandidateWritesWithinScratch(t *testing.T) {
	s, err := NewScratch(t.TempDir())
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	defer s.Close()
	path, err := s.WriteCandidate("pkg/out.py", []string{"x = 1", "y = 2"})
	if err != nil {
		t.Fatalf("WriteCandidate: %v", err)
	}
	if path == "" {
		t.Fatalf("expected a non-empty written path")
	}
}
