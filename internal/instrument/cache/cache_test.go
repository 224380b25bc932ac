package cache

import (
	"path/filepath"
	"testing"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func TestStoreThenLookupHit(t *testing.T) {
	c := newTestCache(t)
	fp := model.Fingerprint("python-function#abc123")
	script := model.Script{ConstructKind: model.ConstructFunction, Language: model.LanguagePython}

	if err := c.Store(model.LanguagePython, fp, script, "v1"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	rec, ok := c.Lookup(model.LanguagePython, fp, "v1")
	if !ok {
		t.Fatalf("expected cache hit after Store")
	}
	if rec.Fingerprint != fp {
		t.Fatalf("rec.Fingerprint = %v, want %v", rec.Fingerprint, fp)
	}
}

func TestLookupMissOnVersionMismatch(t *testing.T) {
	c := newTestCache(t)
	fp := model.Fingerprint("go-loop#def456")
	script := model.Script{ConstructKind: model.ConstructLoop, Language: model.LanguageGo}
	if err := c.Store(model.LanguageGo, fp, script, "v1"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := c.Lookup(model.LanguageGo, fp, "v2"); ok {
		t.Fatalf("expected miss when current API version differs from stored version")
	}
}

func TestFailureStreakEvictsEntry(t *testing.T) {
	c := newTestCache(t)
	fp := model.Fingerprint("js-conditional#ghi789")
	script := model.Script{ConstructKind: model.ConstructConditional, Language: model.LanguageJavaScript}
	if err := c.Store(model.LanguageJavaScript, fp, script, "v1"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	for i := 0; i < model.EvictionThreshold; i++ {
		if err := c.MarkFailure(model.LanguageJavaScript, fp); err != nil {
			t.Fatalf("MarkFailure: %v", err)
		}
	}
	if _, ok := c.Lookup(model.LanguageJavaScript, fp, "v1"); ok {
		t.Fatalf("expected entry to be evicted once failure streak reached threshold")
	}
}

func TestMarkSuccessResetsFailureStreak(t *testing.T) {
	c := newTestCache(t)
	fp := model.Fingerprint("python-loop#jkl012")
	script := model.Script{ConstructKind: model.ConstructLoop, Language: model.LanguagePython}
	if err := c.Store(model.LanguagePython, fp, script, "v1"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.MarkFailure(model.LanguagePython, fp); err != nil {
		t.Fatalf("MarkFailure: %v", err)
	}
	if err := c.MarkSuccess(model.LanguagePython, fp); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	rec, ok := c.Lookup(model.LanguagePython, fp, "v1")
	if !ok {
		t.Fatalf("expected hit after MarkSuccess reset the failure streak")
	}
	if rec.FailureStreak != 0 {
		t.Fatalf("FailureStreak = %d, want 0", rec.FailureStreak)
	}
	if rec.HitCount != 1 {
		t.Fatalf("HitCount = %d, want 1", rec.HitCount)
	}
}

func TestVersionSweepEvictsMismatchedEntries(t *testing.T) {
	c := newTestCache(t)
	stale := model.Fingerprint("go-function#stale")
	fresh := model.Fingerprint("go-function#fresh")
	script := model.Script{ConstructKind: model.ConstructFunction, Language: model.LanguageGo}
	if err := c.Store(model.LanguageGo, stale, script, "v1"); err != nil {
		t.Fatalf("Store stale: %v", err)
	}
	if err := c.Store(model.LanguageGo, fresh, script, "v2"); err != nil {
		t.Fatalf("Store fresh: %v", err)
	}
	evicted, err := c.VersionSweep("v2")
	if err != nil {
		t.Fatalf("VersionSweep: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, ok := c.Lookup(model.LanguageGo, fresh, "v2"); !ok {
		t.Fatalf("expected fresh entry to survive the sweep")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := newTestCache(t)
	fp := model.Fingerprint("python-function#mno345")
	script := model.Script{ConstructKind: model.ConstructFunction, Language: model.LanguagePython}
	if err := c.Store(model.LanguagePython, fp, script, "v1"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Invalidate(model.LanguagePython, fp); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := c.Lookup(model.LanguagePython, fp, "v1"); ok {
		t.Fatalf("expected miss after Invalidate")
	}
	// Invalidating a nonexistent entry is a no-op, not an error.
	if err := c.Invalidate(model.LanguagePython, fp); err != nil {
		t.Fatalf("Invalidate on missing entry: %v", err)
	}
}
