package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/danshapiro/telescribe/internal/config"
	"github.com/danshapiro/telescribe/internal/instrument/cache"
	"github.com/danshapiro/telescribe/internal/instrument/learning"
	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/pipeline"
	"github.com/danshapiro/telescribe/internal/instrument/retry"
	"github.com/danshapiro/telescribe/internal/instrument/runtimeutil"
	"github.com/danshapiro/telescribe/internal/instrument/sandbox"
	"github.com/danshapiro/telescribe/internal/instrument/validate"
	"github.com/danshapiro/telescribe/internal/modelclient"
	"github.com/danshapiro/telescribe/internal/modelmeta"
	"github.com/danshapiro/telescribe/internal/telelog"
)

const version = "0.1.0"

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("telescribe %s\n", version)
		os.Exit(0)
	case "run":
		runCommand(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  telescribe --version")
	fmt.Fprintln(os.Stderr, "  telescribe run --dir <path> --config <config.yaml> [--dry-run] [--api-key-env <PROVIDER=VAR>]")
}

func runCommand(args []string) {
	var dir, configPath string
	var dryRun bool
	var apiKeyEnvOverrides []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--dir":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--dir requires a value")
				os.Exit(1)
			}
			dir = args[i]
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			configPath = args[i]
		case "--dry-run":
			dryRun = true
		case "--api-key-env":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--api-key-env requires a value in the form provider=VAR_NAME")
				os.Exit(1)
			}
			apiKeyEnvOverrides = append(apiKeyEnvOverrides, args[i])
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}
	if dir == "" {
		dir = "."
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	overrides, err := parseAPIKeyEnvOverrides(apiKeyEnvOverrides, cfg.Model.APIKeyEnvVars)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	p, apiBundleID, err := buildPipeline(cfg, overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	baseLogger := telelog.NewConsole(apiBundleID)

	reqTemplate := modelclient.Request{
		Provider: cfg.Model.DefaultProvider,
		Model:    cfg.Model.Models[0],
	}

	paths, err := discoverFiles(absDir, cfg.IncludeGlobs, cfg.ExcludeGlobs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "no files matched include/exclude globs")
		os.Exit(0)
	}

	var totalCost float64
	var totalFiles, totalFailed, totalCacheHits, totalCacheMisses int

	for _, relPath := range paths {
		lang, ok := languageForPath(relPath)
		if !ok {
			continue
		}
		fullPath := filepath.Join(absDir, relPath)
		source, err := os.ReadFile(fullPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", relPath, err)
			totalFailed++
			continue
		}

		fileLogger := telelog.ForFile(baseLogger, relPath, string(lang))
		fileLogger.Info().Msg("processing file")

		report, err := p.ProcessFile(ctx, relPath, lang, source, reqTemplate)
		if err != nil {
			fileLogger.Error().Err(err).Msg("file processing failed")
			fmt.Fprintf(os.Stderr, "file=%s error=%v\n", relPath, err)
			totalFailed++
			continue
		}

		totalFiles++
		totalCost += report.TotalCostUSD
		totalCacheHits += report.CacheHits
		totalCacheMisses += report.CacheMisses
		totalFailed += report.Failed

		for _, c := range report.Constructs {
			cl := telelog.ForConstruct(fileLogger, string(c.Kind), c.StartLine)
			if c.Err != nil {
				cl.Warn().Err(c.Err).Msg("construct not instrumented")
			}
		}

		if !dryRun && !report.Unchanged {
			content := strings.Join(report.FinalLines, "\n")
			if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "write %s: %v\n", relPath, err)
				totalFailed++
				continue
			}
		}

		fmt.Printf("file=%s constructs=%d cache_hits=%d cache_misses=%d failed=%d cost_usd=%.4f\n",
			relPath, len(report.Constructs), report.CacheHits, report.CacheMisses, report.Failed, report.TotalCostUSD)
	}

	fmt.Printf("files_processed=%d total_failed_constructs=%d cache_hits=%d cache_misses=%d total_cost_usd=%.4f\n",
		totalFiles, totalFailed, totalCacheHits, totalCacheMisses, totalCost)

	if totalFailed > 0 {
		os.Exit(1)
	}
	os.Exit(0)
}

// buildPipeline wires every collaborator a run needs from cfg: cache,
// learning store, runtime-utility manager, model client (one HTTP adapter
// per distinct provider referenced by the model escalation chain), and the
// retry orchestrator, returning the assembled Pipeline plus the cache's
// current API version bundle ID.
func buildPipeline(cfg config.Config, apiKeyEnvOverrides map[string]string) (*pipeline.Pipeline, string, error) {
	c, err := cache.Open(cfg.CacheRoot)
	if err != nil {
		return nil, "", fmt.Errorf("open cache: %w", err)
	}

	store, err := learning.Open(cfg.LearningStoreRoot)
	if err != nil {
		return nil, "", fmt.Errorf("open learning store: %w", err)
	}

	runtimeMgr, err := runtimeutil.LoadFromDir(cfg.RuntimeUtilityRoot)
	if err != nil {
		return nil, "", fmt.Errorf("load runtime utilities: %w", err)
	}

	client := modelclient.NewClient()
	providers := providerSetFromModels(cfg.Model.Models, cfg.Model.DefaultProvider)
	for _, provider := range providers {
		adapter, err := modelclient.NewHTTPAdapter(provider, apiKeyEnvOverrides[provider])
		if err != nil {
			return nil, "", fmt.Errorf("wire provider %q: %w", provider, err)
		}
		client.Register(adapter)
	}
	if cfg.Model.DefaultProvider != "" {
		client.SetDefaultProvider(cfg.Model.DefaultProvider)
	}

	var catalog *modelclient.ModelCatalog
	if cfg.Model.CatalogPath != "" {
		catalog, err = modelclient.LoadModelCatalogFromOpenRouterJSON(cfg.Model.CatalogPath)
		if err != nil {
			return nil, "", fmt.Errorf("load model catalog: %w", err)
		}
	}

	retryCfg := retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Chain: retry.Chain{
			Models:                 cfg.Model.Models,
			FailuresBeforeEscalate: cfg.Retry.FailuresBeforeEscalate,
		},
		Backoff: retry.BackoffPolicy{
			Base:           durationMillis(cfg.Retry.BackoffBaseMillis),
			Max:            durationMillis(cfg.Retry.BackoffMaxMillis),
			JitterFraction: cfg.Retry.BackoffJitterFraction,
		},
		BudgetUSD:     cfg.Model.BudgetUSD,
		SandboxLimits: sandbox.DefaultLimits(),
	}
	orchestrator := retry.New(client, catalog, store, retryCfg)

	buildCommands := map[model.Language]validate.BuildConfig{}
	for lang, bc := range cfg.BuildCommands {
		buildCommands[model.Language(lang)] = validate.BuildConfig{Command: bc.Command}
	}

	apiBundleID, _, err := cache.VersionBundleID("telescribe-runtime-v1", "snippet-v1", runtimeMgr.Revisions())
	if err != nil {
		return nil, "", fmt.Errorf("compute API version bundle: %w", err)
	}

	return &pipeline.Pipeline{
		Cache:              c,
		Orchestrator:       orchestrator,
		RuntimeUtil:        runtimeMgr,
		SnippetVersion:     "snippet-v1",
		APIVersionBundleID: apiBundleID,
		BuildCommands:      buildCommands,
	}, apiBundleID, nil
}

func durationMillis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// providerSetFromModels returns the distinct, canonical provider keys the
// escalation chain and default provider reference, so buildPipeline registers
// exactly one HTTP adapter per provider actually in play.
func providerSetFromModels(models []string, defaultProvider string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(key string) {
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	add(defaultProvider)
	for _, m := range models {
		add(modelmeta.ProviderFromModelID(m))
	}
	sort.Strings(out)
	return out
}

func parseAPIKeyEnvOverrides(flagValues []string, configured map[string]string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range configured {
		out[k] = v
	}
	for _, raw := range flagValues {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("--api-key-env %q is invalid; expected provider=VAR_NAME", raw)
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out, nil
}

func discoverFiles(root string, includeGlobs, excludeGlobs []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matchesAny(rel, includeGlobs) {
			return nil
		}
		if matchesAny(rel, excludeGlobs) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func matchesAny(rel string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func languageForPath(path string) (model.Language, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return model.LanguagePython, true
	case ".js", ".jsx":
		return model.LanguageJavaScript, true
	case ".ts", ".tsx":
		return model.LanguageTypeScript, true
	case ".go":
		return model.LanguageGo, true
	default:
		return "", false
	}
}
