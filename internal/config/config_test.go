package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "telescribe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFillsDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "model:\n  models: [\"gpt-5-mini\"]\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("expected default retry.max_attempts=3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.CacheRoot == "" {
		t.Fatalf("expected a default cache_root to be filled in")
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "model:\n  models: [\"gpt-5-mini\"]\nnonexistent_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected strict decoding to reject an unknown top-level field")
	}
}

func TestLoadRejectsMissingModels(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "cache_root: /tmp/cache\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation to reject a config with no models listed")
	}
}

func TestLoadRejectsEmptyBuildCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "model:\n  models: [\"gpt-5-mini\"]\nbuild_commands:\n  go:\n    command: []\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation to reject an empty build command")
	}
}

func TestLoadPreservesExplicitOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "model:\n  models: [\"gpt-5-mini\"]\nretry:\n  max_attempts: 5\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("expected explicit retry.max_attempts=5 to be preserved, got %d", cfg.Retry.MaxAttempts)
	}
}
