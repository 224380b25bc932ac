// Package config loads the run configuration: cache/learning-store roots,
// per-language validator build commands, retry/backoff tuning, and model
// client provider wiring. Strict YAML decoding (gopkg.in/yaml.v3) and the
// defaults-then-validate pipeline below follows a common config-loader
// shape: decode with UnmarshalStrict-style behavior (KnownFields(true) here,
// since yaml.v3 exposes it on the decoder rather than as a separate
// function), then fill defaults, then validate.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BuildCommand is one language's external compiler/type-checker invocation,
// with "{file}" substituted for the candidate's temp path at validation time.
type BuildCommand struct {
	Command []string `yaml:"command"`
}

// RetryConfig mirrors internal/instrument/retry.Config's tunables in their
// serializable form.
type RetryConfig struct {
	MaxAttempts            int     `yaml:"max_attempts"`
	BackoffBaseMillis      int     `yaml:"backoff_base_millis"`
	BackoffMaxMillis       int     `yaml:"backoff_max_millis"`
	BackoffJitterFraction  float64 `yaml:"backoff_jitter_fraction"`
	FailuresBeforeEscalate int     `yaml:"failures_before_escalate"`
}

// ModelConfig wires the model client: which provider adapters to register
// and which API-key environment variable each reads from. Literal secrets
// are never stored in the config file itself.
type ModelConfig struct {
	DefaultProvider  string            `yaml:"default_provider"`
	Models           []string          `yaml:"models"` // escalation chain, cheapest first
	APIKeyEnvVars    map[string]string `yaml:"api_key_env_vars"`
	CatalogPath      string            `yaml:"catalog_path"`
	BudgetUSD        float64           `yaml:"budget_usd"`
	RequestTimeoutMS int               `yaml:"request_timeout_ms"`
}

// Config is the full run configuration.
type Config struct {
	CacheRoot          string                  `yaml:"cache_root"`
	LearningStoreRoot  string                  `yaml:"learning_store_root"`
	RuntimeUtilityRoot string                  `yaml:"runtime_utility_root"`
	ScratchRoot        string                  `yaml:"scratch_root"`
	IncludeGlobs       []string                `yaml:"include_globs"`
	ExcludeGlobs       []string                `yaml:"exclude_globs"`
	BuildCommands      map[string]BuildCommand `yaml:"build_commands"` // language -> command
	Retry              RetryConfig             `yaml:"retry"`
	Model              ModelConfig             `yaml:"model"`
}

// Default returns a Config with every field populated with a sane default,
// rooted at baseDir (typically the run's working directory).
func Default(baseDir string) Config {
	return Config{
		CacheRoot:          filepath.Join(baseDir, ".telescribe", "cache"),
		LearningStoreRoot:  filepath.Join(baseDir, ".telescribe", "learning"),
		RuntimeUtilityRoot: filepath.Join(baseDir, ".telescribe", "runtime"),
		ScratchRoot:        filepath.Join(baseDir, ".telescribe", "scratch"),
		IncludeGlobs:       []string{"**/*.py", "**/*.js", "**/*.ts", "**/*.go"},
		ExcludeGlobs:       []string{"**/node_modules/**", "**/.git/**", "**/vendor/**"},
		BuildCommands:      map[string]BuildCommand{},
		Retry: RetryConfig{
			MaxAttempts:            3,
			BackoffBaseMillis:      500,
			BackoffMaxMillis:       20000,
			BackoffJitterFraction:  0.2,
			FailuresBeforeEscalate: 2,
		},
		Model: ModelConfig{
			RequestTimeoutMS: 30000,
		},
	}
}

// Load reads and strictly decodes a YAML config file at path, then fills any
// zero-valued field left unset with Default's value, then validates.
// Unknown keys are a load error: a reject-unknown-fields posture for run
// configuration, rather than silently ignoring a typo'd key.
func Load(path string) (Config, error) {
	cfg := Default(filepath.Dir(path))

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var loaded Config
	if err := dec.Decode(&loaded); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	mergeDefaults(&loaded, cfg)

	if err := validate(loaded); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return loaded, nil
}

// mergeDefaults fills zero-valued fields of loaded from defaults in place.
func mergeDefaults(loaded *Config, defaults Config) {
	if loaded.CacheRoot == "" {
		loaded.CacheRoot = defaults.CacheRoot
	}
	if loaded.LearningStoreRoot == "" {
		loaded.LearningStoreRoot = defaults.LearningStoreRoot
	}
	if loaded.RuntimeUtilityRoot == "" {
		loaded.RuntimeUtilityRoot = defaults.RuntimeUtilityRoot
	}
	if loaded.ScratchRoot == "" {
		loaded.ScratchRoot = defaults.ScratchRoot
	}
	if len(loaded.IncludeGlobs) == 0 {
		loaded.IncludeGlobs = defaults.IncludeGlobs
	}
	if len(loaded.ExcludeGlobs) == 0 {
		loaded.ExcludeGlobs = defaults.ExcludeGlobs
	}
	if loaded.BuildCommands == nil {
		loaded.BuildCommands = defaults.BuildCommands
	}
	if loaded.Retry.MaxAttempts == 0 {
		loaded.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if loaded.Retry.BackoffBaseMillis == 0 {
		loaded.Retry.BackoffBaseMillis = defaults.Retry.BackoffBaseMillis
	}
	if loaded.Retry.BackoffMaxMillis == 0 {
		loaded.Retry.BackoffMaxMillis = defaults.Retry.BackoffMaxMillis
	}
	if loaded.Retry.BackoffJitterFraction == 0 {
		loaded.Retry.BackoffJitterFraction = defaults.Retry.BackoffJitterFraction
	}
	if loaded.Retry.FailuresBeforeEscalate == 0 {
		loaded.Retry.FailuresBeforeEscalate = defaults.Retry.FailuresBeforeEscalate
	}
	if loaded.Model.RequestTimeoutMS == 0 {
		loaded.Model.RequestTimeoutMS = defaults.Model.RequestTimeoutMS
	}
}

func validate(cfg Config) error {
	if len(cfg.Model.Models) == 0 {
		return fmt.Errorf("model.models must list at least one model")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	for lang, bc := range cfg.BuildCommands {
		if len(bc.Command) == 0 {
			return fmt.Errorf("build_commands[%s] has an empty command", lang)
		}
	}
	return nil
}
