// Package pipeline wires the per-file stages together: AST Analyzer (C1) ->
// Scope Tracker (C2, already folded into C1's walkers) -> Snippet Synthesizer
// (C3) -> Script Generator (C4) -> Script Cache (C5) -> Script Sandbox (C6)
// -> Validator (C7) -> Retry Orchestrator (C8) -> Learning Store (C9),
// producing one FileReport per source file.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/danshapiro/telescribe/internal/instrument/ast"
	"github.com/danshapiro/telescribe/internal/instrument/cache"
	"github.com/danshapiro/telescribe/internal/instrument/fingerprint"
	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/retry"
	"github.com/danshapiro/telescribe/internal/instrument/runtimeutil"
	"github.com/danshapiro/telescribe/internal/instrument/sandbox"
	"github.com/danshapiro/telescribe/internal/instrument/script"
	"github.com/danshapiro/telescribe/internal/instrument/validate"
	"github.com/danshapiro/telescribe/internal/modelclient"
)

// Pipeline holds every collaborator a file-processing run needs.
type Pipeline struct {
	Cache          *cache.Cache
	Orchestrator   *retry.Orchestrator
	RuntimeUtil    *runtimeutil.Manager
	SnippetVersion string
	APIVersionBundleID string
	BuildCommands  map[model.Language]validate.BuildConfig
}

// ConstructOutcome records what happened to one Construct.
type ConstructOutcome struct {
	Kind      model.ConstructKind
	StartLine int
	FromCache bool
	Attempts  int
	CostUSD   float64
	Escalated bool
	Err       error
}

// FileReport is the structured result of processing one file.
type FileReport struct {
	RelPath        string
	Language       model.Language
	Constructs     []ConstructOutcome
	FinalLines     []string
	TotalCostUSD   float64
	CacheHits      int
	CacheMisses    int
	Failed         int
	Unchanged      bool // true if no construct was successfully instrumented
}

// ProcessFile analyzes source, instruments every Construct it can, and
// returns the final file content plus a per-construct report. Constructs are
// applied in descending start-line order (the same anchor-stability
// principle the sandbox already uses for one Script's own ops,
// generalized here across an entire file's constructs): instrumenting a
// later construct first never shifts the line numbers any earlier
// construct's anchors were computed against.
func (p *Pipeline) ProcessFile(ctx context.Context, relPath string, lang model.Language, source []byte, reqTemplate modelclient.Request) (FileReport, error) {
	constructs, err := ast.Analyze(ctx, lang, source)
	if err != nil {
		return FileReport{}, err
	}

	flat := flatten(constructs)
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].Span.StartLine > flat[j].Span.StartLine })

	lines := strings.Split(string(source), "\n")
	build := p.BuildCommands[lang]

	// The synthesized snippets call into the runtime-utility module by bare
	// name (_telemetry.enter_function, etc) without ever emitting their own
	// import line, so the pipeline adds it once per file, ahead of any
	// per-construct processing. This shifts every source line down by one,
	// and anchors are computed against the shifted lines, so every
	// construct's spans, exit lines and variable-use lines are moved down by
	// one to match.
	if len(flat) > 0 {
		if importLine := runtimeUtilityImportLine(lang); importLine != "" && !validate.ImportsRuntimeUtility(lang, string(source)) {
			lines = append([]string{importLine}, lines...)
			for _, c := range flat {
				c.Span.StartLine++
				c.Span.EndLine++
				c.BodySpan.StartLine++
				c.BodySpan.EndLine++
				for i := range c.ExitLines {
					c.ExitLines[i]++
				}
				for i := range c.VariableUses {
					c.VariableUses[i].Line++
				}
			}
		}
	}

	report := FileReport{RelPath: relPath, Language: lang}
	for _, c := range flat {
		outcome := ConstructOutcome{Kind: c.Kind, StartLine: c.Span.StartLine}

		normalized := fingerprint.NormalizeBody(c.NormalizedBody)
		fp := fingerprint.Compute(lang, c.Kind, normalized, p.SnippetVersion, p.APIVersionBundleID)

		if rec, hit := p.Cache.Lookup(lang, fp, p.APIVersionBundleID); hit {
			rebased := rebaseScript(rec.Script, c.Span.StartLine, lines)
			res, applyErr := sandbox.Apply(lines, rebased, sandbox.DefaultLimits())
			if applyErr == nil {
				vr := validate.Validate(ctx, lang, strings.Join(res.Lines, "\n"), build)
				if vr.OK() {
					lines = res.Lines
					_ = p.Cache.MarkSuccess(lang, fp)
					outcome.FromCache = true
					report.CacheHits++
					report.Constructs = append(report.Constructs, outcome)
					continue
				}
			}
			// Cached entry didn't hold up against this occurrence (anchor
			// drifted beyond the bounded search radius, or this file's
			// surrounding context makes the same script invalid here);
			// mark the failure and fall through to regeneration rather than
			// silently leaving the construct un-instrumented.
			_ = p.Cache.MarkFailure(lang, fp)
		}
		report.CacheMisses++

		out, attemptErr := p.Orchestrator.Attempt(ctx, lines, c, reqTemplate, build)
		if attemptErr != nil {
			outcome.Err = attemptErr
			report.Failed++
			report.Constructs = append(report.Constructs, outcome)
			continue
		}

		if storeErr := p.Cache.Store(lang, fp, relativeScript(out.Script, c.Span.StartLine), p.APIVersionBundleID); storeErr != nil {
			// A cache write failure doesn't invalidate a successful
			// instrumentation; the construct still applied correctly to
			// this file, it just won't be reusable next run.
			outcome.Err = fmt.Errorf("cache store failed (instrumentation still applied): %w", storeErr)
		}

		lines = out.Lines
		outcome.Attempts = out.Attempts
		outcome.CostUSD = out.CostUSD
		outcome.Escalated = out.Escalated
		report.TotalCostUSD += out.CostUSD
		report.Constructs = append(report.Constructs, outcome)
	}

	report.FinalLines = lines
	report.Unchanged = report.CacheHits == 0 && report.CacheMisses == len(report.Constructs) && allFailed(report.Constructs)
	return report, nil
}

// runtimeUtilityImportLine returns the line a file needs to reach the
// runtime-utility module, for the languages where a single import/require
// statement unambiguously resolves it. Go is deliberately left out: its
// module-qualified import path depends on the target project's own go.mod,
// which a single extracted candidate file processed in isolation has no way
// to know, so Go files are expected to either ship the runtime utility
// package already imported by some other means, or run without a configured
// build command for that file.
func runtimeUtilityImportLine(lang model.Language) string {
	switch lang {
	case model.LanguagePython:
		return "import _telemetry"
	case model.LanguageJavaScript:
		return `const _telemetry = require("./_telemetry");`
	case model.LanguageTypeScript:
		return `import * as _telemetry from "./_telemetry";`
	default:
		return ""
	}
}

func allFailed(outcomes []ConstructOutcome) bool {
	for _, o := range outcomes {
		if o.Err == nil {
			return false
		}
	}
	return len(outcomes) > 0
}

func flatten(constructs []*model.Construct) []*model.Construct {
	var out []*model.Construct
	var walk func(c *model.Construct)
	walk = func(c *model.Construct) {
		out = append(out, c)
		for _, child := range c.Children {
			walk(child)
		}
	}
	for _, c := range constructs {
		walk(c)
	}
	return out
}

// relativeScript converts a freshly-generated Script's absolute anchor lines
// into offsets relative to the construct's start line, so the cached entry
// can be rebased onto a different occurrence of the same fingerprinted
// construct (a different file, or a different position within this file on
// a later run) rather than only ever matching the exact line it was
// generated against.
func relativeScript(s model.Script, startLine int) model.Script {
	out := s
	out.Ops = make([]model.Op, len(s.Ops))
	for i, op := range s.Ops {
		op.Anchor.Line -= startLine
		if op.Kind == model.OpWrapBlock {
			op.EndAnchor.Line -= startLine
		}
		out.Ops[i] = op
	}
	return out
}

// rebaseScript is relativeScript's inverse: it re-anchors a cached Script
// (whose anchors are offsets from a construct's start line) onto startLine
// in lines, recomputing each anchor's content hash fresh against lines
// rather than trusting the stored hash, since the stored hash was computed
// against whatever file the entry was first cached from.
func rebaseScript(s model.Script, startLine int, lines []string) model.Script {
	out := s
	out.Ops = make([]model.Op, len(s.Ops))
	for i, op := range s.Ops {
		abs := startLine + op.Anchor.Line
		op.Anchor = script.ComputeAnchor(lines, abs)
		if op.Kind == model.OpWrapBlock {
			absEnd := startLine + op.EndAnchor.Line
			op.EndAnchor = script.ComputeAnchor(lines, absEnd)
		}
		out.Ops[i] = op
	}
	return out
}
