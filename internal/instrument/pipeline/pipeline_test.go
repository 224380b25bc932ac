package pipeline

import (
	"context"
	"testing"

	"github.com/danshapiro/telescribe/internal/instrument/cache"
	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/retry"
	"github.com/danshapiro/telescribe/internal/instrument/validate"
	"github.com/danshapiro/telescribe/internal/modelclient"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	c, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	orch := retry.New(modelclient.NewClient(), nil, nil, retry.DefaultConfig())
	return &Pipeline{
		Cache:              c,
		Orchestrator:       orch,
		SnippetVersion:     "snippet-v1",
		APIVersionBundleID: "test-bundle-v1",
		BuildCommands:      map[model.Language]validate.BuildConfig{},
	}
}

func TestProcessFileInstrumentsFunctionViaFastPath(t *testing.T) {
	p := newTestPipeline(t)
	source := "def add(a, b):\n    total = a + b\n    return total\n"

	report, err := p.ProcessFile(context.Background(), "math.py", model.LanguagePython, []byte(source), modelclient.Request{Model: "test-model"})
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(report.Constructs) == 0 {
		t.Fatalf("expected at least one construct to be found and processed")
	}
	foundFunction := false
	for _, c := range report.Constructs {
		if c.Kind == model.ConstructFunction {
			foundFunction = true
			if c.Err != nil {
				t.Fatalf("function construct failed: %v", c.Err)
			}
		}
	}
	if !foundFunction {
		t.Fatalf("expected a function construct in the report, got %+v", report.Constructs)
	}
	if len(report.FinalLines) <= 3 {
		t.Fatalf("expected the instrumented file to gain lines, got %d: %v", len(report.FinalLines), report.FinalLines)
	}
}

func TestProcessFileSecondRunHitsCache(t *testing.T) {
	p := newTestPipeline(t)
	source := "def add(a, b):\n    total = a + b\n    return total\n"
	ctx := context.Background()

	if _, err := p.ProcessFile(ctx, "math.py", model.LanguagePython, []byte(source), modelclient.Request{Model: "test-model"}); err != nil {
		t.Fatalf("first ProcessFile: %v", err)
	}
	report, err := p.ProcessFile(ctx, "math_copy.py", model.LanguagePython, []byte(source), modelclient.Request{Model: "test-model"})
	if err != nil {
		t.Fatalf("second ProcessFile: %v", err)
	}
	if report.CacheHits == 0 {
		t.Fatalf("expected the second file's identical function body to hit the cache, got %+v", report)
	}
}
