// Package model holds the shared data types that flow between the
// instrumentation pipeline's stages: Construct, Snippet, Insertion Script,
// Fingerprint, Script Record, Validation Result, Learning Record and Pattern.
package model

// Language is a supported target language tag.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageGo         Language = "go"
)

// RequiresBuild reports whether the language needs a compile/type-check step
// for validation: a non-null build command is mandatory for these.
func (l Language) RequiresBuild() bool {
	switch l {
	case LanguageGo, LanguageTypeScript:
		return true
	default:
		return false
	}
}

// ConstructKind enumerates the instrumentable syntactic units C1 identifies.
type ConstructKind string

const (
	ConstructFunction           ConstructKind = "function"
	ConstructLoop               ConstructKind = "loop"
	ConstructConditional        ConstructKind = "conditional"
	ConstructVariableAssignment ConstructKind = "variable_assignment"
	ConstructExceptionHandler   ConstructKind = "exception_handler"
)

// Span is a closed line range, 1-indexed, inclusive of both StartLine and
// EndLine (EndLine is the last line in the span).
type Span struct {
	StartLine int
	EndLine   int
}

func (s Span) Contains(line int) bool {
	return line >= s.StartLine && line <= s.EndLine
}

func (s Span) ContainsSpan(other Span) bool {
	return other.StartLine >= s.StartLine && other.EndLine <= s.EndLine
}

// VariableUse records one identifier reference encountered during analysis,
// annotated with the Scope Tracker's (C2) verdict on where (if anywhere) it
// is bound.
type VariableUse struct {
	Name       string
	Line       int
	BoundScope string // scope descriptor, or "" if undefined at this point
	Defined    bool
}

// Construct is one instrumentable unit produced by the AST Analyzer (C1).
type Construct struct {
	Kind            ConstructKind
	Name            string // function name, loop/conditional label, or assigned variable name
	EnclosingFunc   string
	Language        Language
	Span            Span
	BodySpan        Span // body only, excluding header/signature line(s)
	ExitLines       []int
	ParamNames      []string
	Children        []*Construct
	VariableUses    []VariableUse
	NormalizedBody  string // raw body source text; fingerprint.NormalizeBody collapses its whitespace (comments are kept) before hashing
}

// AnchorKind describes where relative to an anchor line a Snippet attaches.
type AnchorKind string

const (
	AnchorBefore     AnchorKind = "before"
	AnchorAfter      AnchorKind = "after"
	AnchorWrapEntry  AnchorKind = "wrap_entry"
	AnchorWrapExit   AnchorKind = "wrap_exit"
	AnchorReplace    AnchorKind = "inline_replace"
)

// Snippet is literal text to insert at a specific site, produced by C3.
type Snippet struct {
	Text     string
	Anchor   AnchorKind
	Line     int
	Indent   string
	Language Language
}

// OpKind enumerates the small set of Insertion Script operations.
type OpKind string

const (
	OpInsertLine   OpKind = "insert_line"
	OpReplaceLine  OpKind = "replace_line"
	OpWrapBlock    OpKind = "wrap_block"
	OpRewriteReturn OpKind = "rewrite_return"
)

// Anchor identifies a line by position plus a content fingerprint, so drift
// (the file having changed since the script was generated/cached) can be
// detected before the script is blindly applied.
type Anchor struct {
	Line        int
	LineHash    string // fingerprint of the original line's content, trailing CR/LF removed
}

// Op is one operation in an Insertion Script.
type Op struct {
	Kind     OpKind
	// Placement controls where OpInsertLine lands relative to Anchor:
	// AnchorBefore inserts above the anchor line, anything else (AnchorAfter,
	// AnchorWrapEntry) inserts below it. OpWrapBlock/OpReplaceLine/
	// OpRewriteReturn ignore Placement - their Kind fully determines position.
	Placement AnchorKind
	Anchor    Anchor
	EndAnchor Anchor // only for OpWrapBlock
	Text      string // payload for insert/replace, or prelude for wrap_block
	Postlude  string // only for OpWrapBlock
	CaptureVar string // only for OpRewriteReturn: the temp var the original return value is bound to
}

// Script is an Insertion Script: an ordered, deterministic program that,
// applied to the original file's lines, yields the instrumented file.
type Script struct {
	ConstructKind ConstructKind
	Language      Language
	Ops           []Op // must be applied in descending Anchor.Line order
	GeneratedBy   string // "fast_path" or "slow_path"
}

// Fingerprint is the Script Cache's (C5) key: a stable hash of language,
// construct kind, normalized body, and the generator/runtime-utility
// versions that produced it.
type Fingerprint string

// ScriptRecord is a Script Cache entry.
type ScriptRecord struct {
	Fingerprint      Fingerprint
	Script           Script
	APIVersion       string
	CreatedAtUnix    int64
	HitCount         int
	LastOKUnix       int64
	FailureStreak    int
}

// EvictionThreshold is the default failure-streak eviction trigger.
const EvictionThreshold = 3

// ValidationStatus enumerates the validator's outcome taxonomy.
type ValidationStatus string

const (
	ValidationOK                  ValidationStatus = "ok"
	ValidationSyntaxError         ValidationStatus = "syntax_error"
	ValidationCompileError        ValidationStatus = "compile_error"
	ValidationImportError         ValidationStatus = "import_error"
	ValidationUndefinedIdentifier ValidationStatus = "undefined_identifier"
	ValidationUnusedIdentifier    ValidationStatus = "unused_identifier"
	ValidationRuntimeTimeout      ValidationStatus = "runtime_timeout"
	ValidationRuntimeFailure      ValidationStatus = "runtime_failure"
	ValidationConfigError         ValidationStatus = "config_error"
)

// ValidationResult is C7's output for one candidate file.
type ValidationResult struct {
	Status        ValidationStatus
	FailurePattern string // canonical, regex-normalized key, e.g. "go_undefined_Tel"
	StderrExcerpt string
	Lines         []int
}

func (r ValidationResult) OK() bool { return r.Status == ValidationOK }

// LearningRecord is one append-only entry in the Learning Store (C9).
type LearningRecord struct {
	ID             string
	Language       Language
	ConstructKind  ConstructKind
	Attempt        int
	Success        bool
	FailurePattern string
	BadExcerpt     string
	FixDescription string
	TimestampUnix  int64
	ContentHash    string
}

// Pattern is a consolidated view over LearningRecords sharing a failure
// pattern, used as a prompt-injection fragment.
type Pattern struct {
	Language       Language
	ConstructKind  ConstructKind
	FailurePattern string
	BadExample     string
	GoodExample    string
	Why            string
	How            string
	OccurrenceCount int
	SuccessRate    float64
}
