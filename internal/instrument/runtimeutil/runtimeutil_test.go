package runtimeutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/sandbox"
)

func TestLoadFromDirDiscoversRegisteredTemplates(t *testing.T) {
	root := t.TempDir()
	pyDir := filepath.Join(root, "python")
	if err := os.MkdirAll(pyDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pyDir, "_telemetry.py"), []byte("def enter(): pass\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := LoadFromDir(root)
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}
	tpl, ok := m.Get(model.LanguagePython)
	if !ok {
		t.Fatalf("expected a python template to be discovered")
	}
	if tpl.Revision == "" {
		t.Fatalf("expected a non-empty revision tag")
	}

	if _, ok := m.Get(model.LanguageGo); ok {
		t.Fatalf("expected no go template when its file doesn't exist")
	}
}

func TestCopyIntoFailsForUnregisteredBuildRequiringLanguage(t *testing.T) {
	m := NewManager()
	s, err := sandbox.NewScratch(t.TempDir())
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	defer s.Close()
	if err := m.CopyInto(s, model.LanguageGo); err == nil {
		t.Fatalf("expected an error when Go has no registered runtime-utility template")
	}
}

func TestCopyIntoSkipsUnregisteredNonBuildLanguage(t *testing.T) {
	m := NewManager()
	s, err := sandbox.NewScratch(t.TempDir())
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	defer s.Close()
	if err := m.CopyInto(s, model.LanguagePython); err != nil {
		t.Fatalf("expected no error for an unregistered non-build-requiring language, got %v", err)
	}
}

func TestRevisionsCoversOnlyRegisteredLanguages(t *testing.T) {
	m := NewManager()
	m.Register(Template{Language: model.LanguagePython, Revision: "abc"})
	revs := m.Revisions()
	if len(revs) != 1 || revs["python"] != "abc" {
		t.Fatalf("Revisions() = %v, want exactly {python: abc}", revs)
	}
}
