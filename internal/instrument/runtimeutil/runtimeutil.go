// Package runtimeutil manages the opaque per-language runtime-utility
// templates: small library files providing the entry/exit/iteration/branch/
// variable-change emission helpers every synthesized Snippet calls into
// (telemetry.Enter, _telemetry.emit_exit, etc). The templates themselves are
// plain source files, not generated text - the instrumentation engine only
// needs to know where they live, what revision tag each is at, and how to
// get a copy alongside a candidate file for compiled-language validation.
package runtimeutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/sandbox"
)

// Template describes one language's runtime-utility file on disk.
type Template struct {
	Language    model.Language
	SourcePath  string // absolute path to the template file
	DestRelPath string // path, relative to a target source tree, the import expects
	Revision    string // opaque revision tag folded into the cache's API version bundle
}

// Manager resolves Templates by language and copies them into scratch
// directories ahead of validation.
type Manager struct {
	templates map[model.Language]Template
}

func NewManager() *Manager {
	return &Manager{templates: map[model.Language]Template{}}
}

// Register adds or replaces the Template for its Language.
func (m *Manager) Register(t Template) {
	m.templates[t.Language] = t
}

// Get returns the Template registered for lang, if any.
func (m *Manager) Get(lang model.Language) (Template, bool) {
	t, ok := m.templates[lang]
	return t, ok
}

// Revisions returns a language->revision map suitable for
// cache.VersionBundleID, covering exactly the languages with a registered
// Template (an unregistered language contributes nothing to the bundle,
// rather than a synthetic zero value that could collide with a real tag).
func (m *Manager) Revisions() map[string]string {
	out := make(map[string]string, len(m.templates))
	for lang, t := range m.templates {
		out[string(lang)] = t.Revision
	}
	return out
}

// CopyInto stages lang's runtime-utility template inside the scratch
// directory, for languages whose validator needs it on disk to type-check or
// run a candidate against (Go, TypeScript).
func (m *Manager) CopyInto(scratch *sandbox.Scratch, lang model.Language) error {
	t, ok := m.Get(lang)
	if !ok {
		if lang.RequiresBuild() {
			return fmt.Errorf("runtimeutil: no template registered for build-requiring language %q", lang)
		}
		return nil
	}
	return scratch.CopyRuntimeUtility(t.SourcePath, t.DestRelPath)
}

// LoadFromDir discovers runtime-utility templates under root using the fixed
// per-language layout root/<language>/<entrypoint>, each file's modification
// time serving as its revision tag (cheap and monotonic enough to detect
// "the template changed since this cache entry was written" without
// requiring a separate version-stamping step).
func LoadFromDir(root string) (*Manager, error) {
	m := NewManager()
	layout := map[model.Language]string{
		model.LanguagePython:     "python/_telemetry.py",
		model.LanguageJavaScript: "javascript/_telemetry.js",
		model.LanguageTypeScript: "typescript/_telemetry.ts",
		model.LanguageGo:         "go/telemetry/telemetry.go",
	}
	for lang, rel := range layout {
		full := filepath.Join(root, rel)
		info, err := os.Stat(full)
		if err != nil {
			continue // missing template: that language simply isn't wired yet
		}
		m.Register(Template{
			Language:    lang,
			SourcePath:  full,
			DestRelPath: rel,
			Revision:    fmt.Sprintf("%d", info.ModTime().Unix()),
		})
	}
	return m, nil
}
