package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProviderSetFromModelsDedupesAndSorts(t *testing.T) {
	got := providerSetFromModels([]string{"zai/glm-4.6", "zai/glm-4.5", "anthropic/claude-sonnet"}, "zai")
	want := []string{"anthropic", "zai"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestParseAPIKeyEnvOverridesMergesConfigAndFlags(t *testing.T) {
	configured := map[string]string{"zai": "ZAI_API_KEY"}
	out, err := parseAPIKeyEnvOverrides([]string{"anthropic=MY_ANTHROPIC_KEY"}, configured)
	if err != nil {
		t.Fatalf("parseAPIKeyEnvOverrides: %v", err)
	}
	if out["zai"] != "ZAI_API_KEY" {
		t.Errorf("expected configured zai override preserved, got %q", out["zai"])
	}
	if out["anthropic"] != "MY_ANTHROPIC_KEY" {
		t.Errorf("expected flag override applied, got %q", out["anthropic"])
	}
}

func TestParseAPIKeyEnvOverridesRejectsMalformedFlag(t *testing.T) {
	if _, err := parseAPIKeyEnvOverrides([]string{"no-equals-sign"}, nil); err == nil {
		t.Fatalf("expected an error for a malformed --api-key-env value")
	}
}

func TestLanguageForPath(t *testing.T) {
	cases := map[string]bool{
		"main.go": true, "lib.py": true, "index.ts": true, "app.jsx": true, "README.md": false,
	}
	for path, want := range cases {
		_, ok := languageForPath(path)
		if ok != want {
			t.Errorf("languageForPath(%q) = %v, want %v", path, ok, want)
		}
	}
}

func TestDiscoverFilesRespectsIncludeAndExcludeGlobs(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	mustWrite("pkg/main.go")
	mustWrite("pkg/main_test.go")
	mustWrite("vendor/thirdparty/vendored.go")

	got, err := discoverFiles(dir, []string{"**/*.go"}, []string{"**/vendor/**"})
	if err != nil {
		t.Fatalf("discoverFiles: %v", err)
	}
	want := []string{"pkg/main.go", "pkg/main_test.go"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
