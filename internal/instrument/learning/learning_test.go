package learning

import (
	"testing"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestRecordThenConsolidateGroupsByKindAndPattern(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.Record(model.LearningRecord{
			Language:       model.LanguagePython,
			ConstructKind:  model.ConstructFunction,
			FailurePattern: "python_unused_identifier",
			BadExcerpt:     "_tel_entry_0 unused",
			Success:        i == 2,
			FixDescription: "reference the capture var in the emit call",
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	patterns, err := s.Consolidate(model.LanguagePython, 2)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected exactly one consolidated pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.OccurrenceCount != 3 {
		t.Fatalf("OccurrenceCount = %d, want 3", p.OccurrenceCount)
	}
	if p.SuccessRate < 0.33 || p.SuccessRate > 0.34 {
		t.Fatalf("SuccessRate = %v, want ~1/3", p.SuccessRate)
	}
}

func TestConsolidateDropsBelowThresholdGroups(t *testing.T) {
	s := newTestStore(t)
	if err := s.Record(model.LearningRecord{Language: model.LanguageGo, ConstructKind: model.ConstructLoop, FailurePattern: "go_compile_error"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	patterns, err := s.Consolidate(model.LanguageGo, 2)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("expected a single occurrence to be dropped below the threshold, got %d patterns", len(patterns))
	}
}

func TestRelevantPatternsFiltersByKindAndPattern(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 2; i++ {
		if err := s.Record(model.LearningRecord{
			Language:       model.LanguageJavaScript,
			ConstructKind:  model.ConstructConditional,
			FailurePattern: "javascript_syntax_error",
			FixDescription: "do not insert inside a single-line arrow body",
			Success:        true,
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	frags := s.RelevantPatterns(model.LanguageJavaScript, model.ConstructConditional, "javascript_syntax_error")
	if len(frags) != 1 {
		t.Fatalf("expected one relevant pattern fragment, got %d", len(frags))
	}
	if frags[0] == "" {
		t.Fatalf("expected a non-empty rendered pattern fragment")
	}

	none := s.RelevantPatterns(model.LanguageJavaScript, model.ConstructLoop, "javascript_syntax_error")
	if len(none) != 0 {
		t.Fatalf("expected no patterns for a different construct kind, got %d", len(none))
	}
}

func TestBestFixDescriptionPrefersMostRecentThenShortest(t *testing.T) {
	grp := []model.LearningRecord{
		{Success: true, TimestampUnix: 100, FixDescription: "a much longer fix description here"},
		{Success: true, TimestampUnix: 200, FixDescription: "short fix"},
		{Success: false, TimestampUnix: 300, FixDescription: "ignored: not a success"},
	}
	got := bestFixDescription(grp)
	if got != "short fix" {
		t.Fatalf("bestFixDescription = %q, want the most recent successful fix (%q)", got, "short fix")
	}
}
