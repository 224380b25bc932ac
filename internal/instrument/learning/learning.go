// Package learning is the Learning Store (C9): an append-only log of every
// attempt's outcome, consolidated into Patterns that feed the slow path's
// repair prompts. Record IDs use github.com/oklog/ulid/v2, the same
// lexicographically-sortable ID scheme the domain-stack wiring in
// the learning store is responsible for.
package learning

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

// Store is a directory of per-language append-only JSON-lines files, plus an
// in-memory consolidated view rebuilt on demand.
type Store struct {
	root string
	mu   sync.Mutex

	now func() time.Time
}

// Open returns a Store rooted at dir, creating it if necessary.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("learning: create store dir: %w", err)
	}
	return &Store{root: dir, now: time.Now}, nil
}

func (s *Store) pathFor(lang model.Language) string {
	return filepath.Join(s.root, string(lang)+".jsonl")
}

// Record appends one LearningRecord, stamping an ID and timestamp if absent.
// Concurrent appends from multiple goroutines processing different files are
// safe: each call takes the Store-wide mutex for the brief duration of the
// open-append-close: lock around the critical section, not the whole
// operation (cache.Cache does the same
// per-fingerprint, narrowed here to per-store since append order doesn't
// matter across languages).
func (s *Store) Record(rec model.LearningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.nextID()
	}
	if rec.TimestampUnix == 0 {
		rec.TimestampUnix = s.clock().Unix()
	}
	if rec.ContentHash == "" {
		rec.ContentHash = contentHash(rec)
	}

	f, err := os.OpenFile(s.pathFor(rec.Language), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("learning: open store file: %w", err)
	}
	defer f.Close()

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("learning: marshal record: %w", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("learning: append record: %w", err)
	}
	return nil
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Store) nextID() string {
	t := ulid.Timestamp(s.clock())
	id, err := ulid.New(t, ulid.DefaultEntropy())
	if err != nil {
		return fmt.Sprintf("lr-%d", t)
	}
	return id.String()
}

func contentHash(rec model.LearningRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", rec.Language, rec.ConstructKind, rec.FailurePattern, rec.BadExcerpt)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// load reads every record for a language from disk. A missing file is an
// empty store, not an error.
func (s *Store) load(lang model.Language) ([]model.LearningRecord, error) {
	f, err := os.Open(s.pathFor(lang))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("learning: open store file: %w", err)
	}
	defer f.Close()

	var out []model.LearningRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec model.LearningRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue // a corrupted line is skipped, not fatal to the whole store
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// Consolidate groups a language's records by (construct kind, failure
// pattern) into Patterns, keeping only groups with at least minOccurrences
// entries (a single failure is noise, a repeated one is a pattern).
func (s *Store) Consolidate(lang model.Language, minOccurrences int) ([]model.Pattern, error) {
	s.mu.Lock()
	recs, err := s.load(lang)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	type key struct {
		kind    model.ConstructKind
		pattern string
	}
	groups := map[key][]model.LearningRecord{}
	for _, r := range recs {
		if r.FailurePattern == "" {
			continue
		}
		k := key{kind: r.ConstructKind, pattern: r.FailurePattern}
		groups[k] = append(groups[k], r)
	}

	var patterns []model.Pattern
	for k, grp := range groups {
		if len(grp) < minOccurrences {
			continue
		}
		patterns = append(patterns, buildPattern(lang, k.kind, k.pattern, grp))
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].OccurrenceCount != patterns[j].OccurrenceCount {
			return patterns[i].OccurrenceCount > patterns[j].OccurrenceCount
		}
		return patterns[i].FailurePattern < patterns[j].FailurePattern
	})
	return patterns, nil
}

func buildPattern(lang model.Language, kind model.ConstructKind, failurePattern string, grp []model.LearningRecord) model.Pattern {
	sort.Slice(grp, func(i, j int) bool { return grp[i].TimestampUnix > grp[j].TimestampUnix })

	var badExample, goodExample, why, how string
	var successes int
	for _, r := range grp {
		if r.Success {
			successes++
			if goodExample == "" {
				goodExample = r.FixDescription
			}
		} else if badExample == "" {
			badExample = r.BadExcerpt
		}
	}
	// Tie-break for which fix description to surface as "how": most recent
	// successful record, then shortest description among ties on recency -
	// Recorded design decision for "best good example" (see DESIGN.md).
	best := bestFixDescription(grp)
	how = best
	if why == "" && badExample != "" {
		why = "repeated " + failurePattern + " failures observed for this construct kind"
	}

	return model.Pattern{
		Language:        lang,
		ConstructKind:   kind,
		FailurePattern:  failurePattern,
		BadExample:      badExample,
		GoodExample:     goodExample,
		Why:             why,
		How:             how,
		OccurrenceCount: len(grp),
		SuccessRate:     float64(successes) / float64(len(grp)),
	}
}

func bestFixDescription(grp []model.LearningRecord) string {
	var best *model.LearningRecord
	for i := range grp {
		r := &grp[i]
		if !r.Success || r.FixDescription == "" {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		if r.TimestampUnix > best.TimestampUnix {
			best = r
			continue
		}
		if r.TimestampUnix == best.TimestampUnix && len(r.FixDescription) < len(best.FixDescription) {
			best = r
		}
	}
	if best == nil {
		return ""
	}
	return best.FixDescription
}

// RelevantPatterns renders the top patterns for (lang, kind, failurePattern)
// as plain-text prompt fragments, implementing retry.LearningSource
// structurally (no import of the retry package needed, since Go interfaces
// are satisfied implicitly).
func (s *Store) RelevantPatterns(lang model.Language, kind model.ConstructKind, failurePattern string) []string {
	patterns, err := s.Consolidate(lang, 2)
	if err != nil {
		return nil
	}
	var out []string
	for _, p := range patterns {
		if p.ConstructKind != kind {
			continue
		}
		if failurePattern != "" && p.FailurePattern != failurePattern {
			continue
		}
		out = append(out, renderPattern(p))
		if len(out) >= 3 {
			break
		}
	}
	return out
}

func renderPattern(p model.Pattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] seen %d times (success rate %.0f%%): %s", p.FailurePattern, p.OccurrenceCount, p.SuccessRate*100, p.Why)
	if p.BadExample != "" {
		fmt.Fprintf(&b, "\n  bad: %s", p.BadExample)
	}
	if p.How != "" {
		fmt.Fprintf(&b, "\n  fix: %s", p.How)
	}
	return b.String()
}
