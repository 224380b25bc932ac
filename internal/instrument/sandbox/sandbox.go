// Package sandbox is the Script Sandbox (C6): applies an Insertion Script to
// a copy of the source file in an isolated scratch directory, resolving
// anchor drift and stripping forbidden markers as a defense-in-depth layer.
//
// The reverse-line-order application strategy below is grounded directly on
// other_examples/getlawrence-cli's internal/codegen/injector.applyModifications,
// which applies its own line-based modifications "in REVERSE order... to
// avoid line-number invalidation" - the exact same problem this package
// step 3 names.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/cpuid/v2"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/script"
)

// DriftSearchRadius is the bounded ±K-line window searched for a drifted
// anchor before giving up and reporting anchor_drift.
const DriftSearchRadius = 3

// Limits bounds what one sandboxed application may cost.
type Limits struct {
	WallClock time.Duration
}

// baseWallClock is the budget on a runner with full SIMD support.
const baseWallClock = 15 * time.Second

// DefaultLimits widens the wall-clock budget on feature-limited runners:
// every anchor resolution hashes candidate lines (script.ComputeAnchor), and
// without AVX2 that hashing falls back to a scalar path slow enough that the
// fixed 15s budget starts clipping legitimate, large files rather than only
// catching runaway ones.
func DefaultLimits() Limits {
	return Limits{WallClock: baseWallClock * time.Duration(wallClockMultiplier())}
}

func wallClockMultiplier() int {
	if cpuid.CPU.Supports(cpuid.AVX2) {
		return 1
	}
	return 2
}

// Result is the outcome of applying a Script to a file's lines.
type Result struct {
	Lines []string // the candidate file, as lines
}

// Apply resolves every operation's anchor against originalLines, applies the
// operations in descending line order, then strips any line that consists
// solely of a forbidden marker (defense in depth against upstream model
// contamination that slipped past the generator's own check).
func Apply(originalLines []string, s model.Script, limits Limits) (Result, error) {
	deadline := time.Now().Add(limits.WallClock)

	resolved := make([]resolvedOp, 0, len(s.Ops))
	for _, op := range s.Ops {
		if time.Now().After(deadline) {
			return Result{}, model.NewSandboxViolationError("wall-clock budget exceeded while resolving anchors")
		}
		line, ok := resolveAnchor(originalLines, op.Anchor)
		if !ok {
			return Result{}, model.NewAnchorDriftError(fmt.Sprintf("no matching anchor for op at recorded line %d within +/-%d lines", op.Anchor.Line, DriftSearchRadius))
		}
		r := resolvedOp{op: op, line: line}
		if op.Kind == model.OpWrapBlock {
			endLine, ok := resolveAnchor(originalLines, op.EndAnchor)
			if !ok {
				return Result{}, model.NewAnchorDriftError(fmt.Sprintf("no matching end anchor for wrap_block op at recorded line %d", op.EndAnchor.Line))
			}
			r.endLine = endLine
		}
		resolved = append(resolved, r)
	}

	// Apply in descending line order so earlier (in file-order) operations'
	// line numbers are never invalidated by later insertions.
	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].line > resolved[j].line })

	out := append([]string(nil), originalLines...)
	for _, r := range resolved {
		var err error
		out, err = applyOne(out, r)
		if err != nil {
			return Result{}, err
		}
	}

	out = stripForbiddenMarkerLines(out)
	return Result{Lines: out}, nil
}

type resolvedOp struct {
	op      model.Op
	line    int
	endLine int
}

// resolveAnchor finds the line matching op's anchor, first trying the exact
// recorded line, then a bounded ±DriftSearchRadius search.
func resolveAnchor(lines []string, a model.Anchor) (int, bool) {
	if script.AnchorMatches(lines, a) {
		return a.Line, true
	}
	for delta := 1; delta <= DriftSearchRadius; delta++ {
		for _, candidate := range []int{a.Line + delta, a.Line - delta} {
			if candidate < 1 || candidate > len(lines) {
				continue
			}
			probe := model.Anchor{Line: candidate, LineHash: a.LineHash}
			if script.AnchorMatches(lines, probe) {
				return candidate, true
			}
		}
	}
	return 0, false
}

func applyOne(lines []string, r resolvedOp) ([]string, error) {
	idx := r.line - 1
	switch r.op.Kind {
	case model.OpInsertLine:
		if r.op.Placement == model.AnchorBefore {
			return insertAt(lines, idx, r.op.Text), nil
		}
		return insertAt(lines, idx+1, r.op.Text), nil
	case model.OpReplaceLine:
		if idx < 0 || idx >= len(lines) {
			return nil, model.NewAnchorDriftError("replace_line anchor out of range after resolution")
		}
		out := append([]string(nil), lines...)
		out[idx] = r.op.Text
		return out, nil
	case model.OpWrapBlock:
		out := insertAt(lines, r.endLine, r.op.Postlude)
		out = insertAt(out, idx, r.op.Text)
		return out, nil
	case model.OpRewriteReturn:
		// Absolute rule: never rewrite the return
		// expression itself. rewrite_return only ever inserts a capture
		// line immediately before the anchor; CaptureVar names the temp
		// the return's own snippet emission should read from. The actual
		// return line at idx is left untouched.
		return insertAt(lines, idx, r.op.Text), nil
	default:
		return nil, model.NewSandboxViolationError(fmt.Sprintf("unknown operation kind %q", r.op.Kind))
	}
}

// insertAt inserts text as a new line before the 0-indexed position pos.
func insertAt(lines []string, pos int, text string) []string {
	if pos < 0 {
		pos = 0
	}
	if pos > len(lines) {
		pos = len(lines)
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:pos]...)
	out = append(out, text)
	out = append(out, lines[pos:]...)
	return out
}

func stripForbiddenMarkerLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		forbidden := false
		for _, m := range script.ForbiddenMarkers {
			if trimmed == m || strings.HasPrefix(trimmed, m) && strings.TrimLeft(trimmed, m) == "" {
				forbidden = true
				break
			}
		}
		if forbidden {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Scratch manages a per-attempt scratch directory: a copy of the file (and,
// for compiled-language validation, a copy of the runtime-utility template
// alongside it), destroyed on Close.
type Scratch struct {
	Dir string
}

// NewScratch creates a fresh scratch directory under root.
func NewScratch(root string) (*Scratch, error) {
	dir, err := os.MkdirTemp(root, "telescribe-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("sandbox: create scratch dir: %w", err)
	}
	return &Scratch{Dir: dir}, nil
}

func (s *Scratch) Close() error {
	return os.RemoveAll(s.Dir)
}

// WriteCandidate writes the candidate file's lines into the scratch
// directory under relPath, creating parent directories as needed. The write
// never escapes s.Dir: relPath is cleaned and rejected if it would resolve
// outside the scratch directory ("no writes outside the scratch
// directory").
func (s *Scratch) WriteCandidate(relPath string, lines []string) (string, error) {
	cleaned := filepath.Clean(relPath)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", model.NewSandboxViolationError("candidate path escapes scratch directory: " + relPath)
	}
	full := filepath.Join(s.Dir, cleaned)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", err
	}
	return full, nil
}

// CopyRuntimeUtility copies an opaque runtime-utility template file into the
// scratch directory alongside the candidate, needed so compiled-language
// candidates (Go, TypeScript) can be type-checked against it.
func (s *Scratch) CopyRuntimeUtility(templatePath, destRelPath string) error {
	content, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("sandbox: read runtime utility template: %w", err)
	}
	cleaned := filepath.Clean(destRelPath)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return model.NewSandboxViolationError("runtime utility destination escapes scratch directory: " + destRelPath)
	}
	full := filepath.Join(s.Dir, cleaned)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}
