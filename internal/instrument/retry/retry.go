package retry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/sandbox"
	"github.com/danshapiro/telescribe/internal/instrument/script"
	"github.com/danshapiro/telescribe/internal/instrument/validate"
	"github.com/danshapiro/telescribe/internal/modelclient"
)

// LearningSource is the narrow view the orchestrator needs of the Learning
// Store (C9): a prompt-injection fragment per failure context, and a place
// to append outcomes. Kept as an interface so this package never imports
// the learning package, avoiding a dependency cycle (learning in turn wants
// to import retry's FailureClass for bookkeeping).
type LearningSource interface {
	RelevantPatterns(lang model.Language, kind model.ConstructKind, failurePattern string) []string
	Record(rec model.LearningRecord) error
}

// NoLearning is a LearningSource that contributes nothing and records
// nothing - useful for callers that haven't wired a Learning Store yet.
type NoLearning struct{}

func (NoLearning) RelevantPatterns(model.Language, model.ConstructKind, string) []string { return nil }
func (NoLearning) Record(model.LearningRecord) error                                     { return nil }

// Config governs one Orchestrator's retry ceiling, backoff, and budget.
type Config struct {
	MaxAttempts int // total attempts including the first slow-path try; default 3
	Chain       Chain
	Backoff     BackoffPolicy
	BudgetUSD   float64 // 0 = unlimited
	SandboxLimits sandbox.Limits
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		Backoff:       DefaultBackoffPolicy(),
		SandboxLimits: sandbox.DefaultLimits(),
	}
}

// Orchestrator is the Retry Orchestrator (C8).
type Orchestrator struct {
	Client   *modelclient.Client
	Catalog  *modelclient.ModelCatalog
	Learning LearningSource
	Config   Config
	rng      *rand.Rand
}

func New(client *modelclient.Client, catalog *modelclient.ModelCatalog, learning LearningSource, cfg Config) *Orchestrator {
	if learning == nil {
		learning = NoLearning{}
	}
	return &Orchestrator{Client: client, Catalog: catalog, Learning: learning, Config: cfg, rng: rand.New(rand.NewSource(1))}
}

// Outcome is what one construct's attempt loop produced.
type Outcome struct {
	Script       model.Script
	Lines        []string // the fully-applied candidate, as lines
	Attempts     int
	CostUSD      float64
	Escalated    bool
	FromCache    bool
}

// Attempt runs the fast path first; on failure or non-applicability it falls
// through to the slow-path retry loop (generate -> apply -> validate ->
// classify -> maybe repair-and-retry) up to Config.MaxAttempts, escalating
// models per Config.Chain and backing off per Config.Backoff between
// attempts.
func (o *Orchestrator) Attempt(ctx context.Context, lines []string, construct *model.Construct, reqTemplate modelclient.Request, build validate.BuildConfig) (Outcome, error) {
	if fastScript, ok, err := script.GenerateFastPath(lines, construct); err != nil {
		return Outcome{}, err
	} else if ok {
		res, applyErr := sandbox.Apply(lines, fastScript, o.Config.SandboxLimits)
		if applyErr == nil {
			vr := validate.Validate(ctx, construct.Language, strings.Join(res.Lines, "\n"), build)
			if vr.OK() {
				return Outcome{Script: fastScript, Lines: res.Lines, Attempts: 1}, nil
			}
		}
		// Fast path produced something but it didn't apply/validate cleanly;
		// fall through to the slow path rather than giving up
		// ("a template fails validation falls back to slow path").
	}

	var lastFailure string
	var spent float64
	maxAttempts := o.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := o.Config.Backoff.Delay(attempt, o.rng)
			select {
			case <-ctx.Done():
				return Outcome{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		req := reqTemplate
		if m := o.Config.Chain.ModelFor(attempt); m != "" {
			req.Model = m
		}

		if o.Config.BudgetUSD > 0 && o.Catalog != nil {
			estimate := o.Catalog.EstimateCostUSD(req.Model, 2000, 500) // rough per-attempt estimate
			if spent+estimate > o.Config.BudgetUSD {
				return Outcome{}, model.NewBudgetExhaustedError(fmt.Sprintf("estimated cost %.4f would exceed remaining budget after %.4f spent", estimate, spent))
			}
		}

		patterns := script.PatternContext{Patterns: o.Learning.RelevantPatterns(construct.Language, construct.Kind, lastFailure)}
		s, genErr := script.GenerateSlowPath(ctx, o.Client, req, lines, construct, lastFailure, patterns)
		if genErr == nil {
			if resp, ok := o.lastResponseCost(req); ok {
				spent += resp
			}
		}
		if genErr != nil {
			class := Classify(genErr)
			o.recordAttempt(construct, attempt, false, classFailurePattern(class), genErr.Error())
			if class == ClassTerminalTransport || class == ClassTerminalContent {
				return Outcome{}, genErr
			}
			lastFailure = genErr.Error()
			continue
		}

		res, applyErr := sandbox.Apply(lines, s, o.Config.SandboxLimits)
		if applyErr != nil {
			class := Classify(applyErr)
			o.recordAttempt(construct, attempt, false, classFailurePattern(class), applyErr.Error())
			if class == ClassTerminalContent || class == ClassTerminalTransport {
				return Outcome{}, applyErr
			}
			lastFailure = applyErr.Error()
			continue
		}

		vr := validate.Validate(ctx, construct.Language, strings.Join(res.Lines, "\n"), build)
		if vr.OK() {
			o.recordAttempt(construct, attempt, true, "", "")
			return Outcome{Script: s, Lines: res.Lines, Attempts: attempt, CostUSD: spent, Escalated: o.Config.Chain.Escalated(attempt)}, nil
		}
		o.recordAttempt(construct, attempt, false, vr.FailurePattern, vr.StderrExcerpt)
		lastFailure = fmt.Sprintf("%s: %s", vr.Status, vr.StderrExcerpt)
	}

	return Outcome{}, model.NewValidationFailure(model.ValidationCompileError, fmt.Sprintf("exhausted %d attempts; last failure: %s", maxAttempts, lastFailure))
}

// lastResponseCost is a placeholder hook point: in the current Client shape
// cost accounting happens inside modelclient.Response, which GenerateSlowPath
// doesn't surface back to the caller. Budget tracking therefore degrades to
// the pre-call estimate above rather than actual spend; wiring the real
// response cost through requires widening GenerateSlowPath's return value,
// left as-is since the model client is treated as an external
// collaborator whose exact surface this module doesn't own.
func (o *Orchestrator) lastResponseCost(modelclient.Request) (float64, bool) {
	return 0, false
}

func (o *Orchestrator) recordAttempt(construct *model.Construct, attempt int, success bool, failurePattern, excerpt string) {
	_ = o.Learning.Record(model.LearningRecord{
		Language:       construct.Language,
		ConstructKind:  construct.Kind,
		Attempt:        attempt,
		Success:        success,
		FailurePattern: failurePattern,
		BadExcerpt:     excerpt,
	})
}

func classFailurePattern(c FailureClass) string {
	return string(c)
}
