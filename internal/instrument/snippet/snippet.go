// Package snippet is the Snippet Synthesizer (C3): deterministic,
// template-driven generation of telemetry snippet text, with no model calls
// on the fast path.
//
// Per design notes ("dynamic per-language prompt
// composition... reimplement as a registry of (full_template,
// brief_template) per language tag"), the generator-side equivalent here is
// a registry of per-language templateSet values keyed by Language, rather
// than a runtime-composed format string - the same "explicit table, not an
// implicit switch" idiom internal/providerspec.Builtin() uses for its own
// provider specs.
package snippet

import (
	"fmt"
	"strings"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

// Version is bumped whenever template text changes in a way that would
// change Fingerprint-stable output; it is one of Fingerprint's inputs.
const Version = "snippet-v1"

// reservedPrefix is never a valid user identifier by convention, so
// generated locals never collide with names that already appear in source
// the instrumentation engine rewrites.
const reservedPrefix = "_tel"

type templateSet struct {
	funcEntry  string // %s=handle var, %s=func name, %s=params repr
	funcExit   string // %s=handle var
	loopEntry  string // %s=handle var, %s=loop label
	loopIter   string // %s=handle var
	loopExit   string // %s=handle var
	condEntry  string // %s=handle var, %s=cond label
	condBranch string // %s=handle var, %s=branch name
	condExit   string // %s=handle var
	varChange  string // %s=name, %s=name (value), %s=func name, %d=line
	// unusedLocalIsError marks languages where a declared-but-unreferenced
	// local is a compile error (Go) vs. merely a lint warning (Python/JS).
	unusedLocalIsError bool
}

var templates = map[model.Language]templateSet{
	model.LanguagePython: {
		funcEntry:  "%s = _telemetry.enter_function(%q, [%s])",
		funcExit:   "_telemetry.exit_function(%s)",
		loopEntry:  "%s = _telemetry.enter_loop(%q)",
		loopIter:   "_telemetry.loop_iteration(%s)",
		loopExit:   "_telemetry.exit_loop(%s)",
		condEntry:  "%s = _telemetry.enter_conditional(%q)",
		condBranch: "_telemetry.conditional_branch(%s, %q)",
		condExit:   "_telemetry.exit_conditional(%s)",
		varChange:  "_telemetry.variable_change(%q, %s, %q, %d)",
	},
	model.LanguageJavaScript: {
		funcEntry:  "const %s = _telemetry.enterFunction(%q, [%s]);",
		funcExit:   "_telemetry.exitFunction(%s);",
		loopEntry:  "const %s = _telemetry.enterLoop(%q);",
		loopIter:   "_telemetry.loopIteration(%s);",
		loopExit:   "_telemetry.exitLoop(%s);",
		condEntry:  "const %s = _telemetry.enterConditional(%q);",
		condBranch: "_telemetry.conditionalBranch(%s, %q);",
		condExit:   "_telemetry.exitConditional(%s);",
		varChange:  "_telemetry.variableChange(%q, %s, %q, %d);",
	},
	model.LanguageTypeScript: {
		funcEntry:  "const %s: TelemetryHandle = _telemetry.enterFunction(%q, [%s]);",
		funcExit:   "_telemetry.exitFunction(%s);",
		loopEntry:  "const %s: TelemetryHandle = _telemetry.enterLoop(%q);",
		loopIter:   "_telemetry.loopIteration(%s);",
		loopExit:   "_telemetry.exitLoop(%s);",
		condEntry:  "const %s: TelemetryHandle = _telemetry.enterConditional(%q);",
		condBranch: "_telemetry.conditionalBranch(%s, %q);",
		condExit:   "_telemetry.exitConditional(%s);",
		varChange:  "_telemetry.variableChange(%q, %s, %q, %d);",
	},
	model.LanguageGo: {
		funcEntry:          "%s := telemetry.EnterFunction(%q, []string{%s})",
		funcExit:           "telemetry.ExitFunction(%s)",
		loopEntry:          "%s := telemetry.EnterLoop(%q)",
		loopIter:           "telemetry.LoopIteration(%s)",
		loopExit:           "telemetry.ExitLoop(%s)",
		condEntry:          "%s := telemetry.EnterConditional(%q)",
		condBranch:         "telemetry.ConditionalBranch(%s, %q)",
		condExit:           "telemetry.ExitConditional(%s)",
		varChange:          "telemetry.VariableChange(%q, %s, %q, %d)",
		unusedLocalIsError: true,
	},
}

// HandleName derives a collision-free handle variable name for a construct,
// using the reserved prefix plus the construct's line number.
func HandleName(kind model.ConstructKind, line int) string {
	return fmt.Sprintf("%s%s%d", reservedPrefix, strings.Title(string(kind)), line)
}

// FunctionEntryExit synthesizes the entry snippet and one exit snippet per
// exit line (multi-value / early-return aware: the caller is responsible for
// placing each exit snippet immediately before its corresponding return,
// never rewriting the return expression itself.
func FunctionEntryExit(lang model.Language, fn *model.Construct) (entry model.Snippet, exits []model.Snippet, err error) {
	t, ok := templates[lang]
	if !ok {
		return model.Snippet{}, nil, fmt.Errorf("snippet: unsupported language %q", lang)
	}
	handle := HandleName(model.ConstructFunction, fn.Span.StartLine)
	paramsRepr := quotedList(fn.ParamNames)
	entryText := fmt.Sprintf(t.funcEntry, handle, fn.Name, paramsRepr)
	entry = model.Snippet{Text: entryText, Anchor: model.AnchorWrapEntry, Line: fn.BodySpan.StartLine, Language: lang}

	exitText := fmt.Sprintf(t.funcExit, handle)
	if t.unusedLocalIsError && len(fn.ExitLines) == 0 {
		// A function whose body the analyzer found no exit point for
		// (e.g. an infinite loop with no return) would leave the handle
		// unused in a language where that's a compile error - emit no
		// entry/exit pair at all rather than produce code that can never
		// validate.
		return model.Snippet{}, nil, nil
	}
	for _, line := range fn.ExitLines {
		exits = append(exits, model.Snippet{Text: exitText, Anchor: model.AnchorBefore, Line: line, Language: lang})
	}
	return entry, exits, nil
}

// LoopSnippets synthesizes entry/iteration/exit snippets for a loop.
func LoopSnippets(lang model.Language, loop *model.Construct) (entry, iteration, exit model.Snippet, err error) {
	t, ok := templates[lang]
	if !ok {
		return model.Snippet{}, model.Snippet{}, model.Snippet{}, fmt.Errorf("snippet: unsupported language %q", lang)
	}
	handle := HandleName(model.ConstructLoop, loop.Span.StartLine)
	entry = model.Snippet{
		Text: fmt.Sprintf(t.loopEntry, handle, loop.Name), Anchor: model.AnchorBefore,
		Line: loop.Span.StartLine, Language: lang,
	}
	iteration = model.Snippet{
		Text: fmt.Sprintf(t.loopIter, handle), Anchor: model.AnchorWrapEntry,
		Line: loop.BodySpan.StartLine, Language: lang,
	}
	exit = model.Snippet{
		Text: fmt.Sprintf(t.loopExit, handle), Anchor: model.AnchorAfter,
		Line: loop.Span.EndLine, Language: lang,
	}
	return entry, iteration, exit, nil
}

// ConditionalSnippets synthesizes entry/branch-taken/exit snippets.
func ConditionalSnippets(lang model.Language, cond *model.Construct, branchName string) (entry, branch, exit model.Snippet, err error) {
	t, ok := templates[lang]
	if !ok {
		return model.Snippet{}, model.Snippet{}, model.Snippet{}, fmt.Errorf("snippet: unsupported language %q", lang)
	}
	handle := HandleName(model.ConstructConditional, cond.Span.StartLine)
	entry = model.Snippet{
		Text: fmt.Sprintf(t.condEntry, handle, branchName), Anchor: model.AnchorBefore,
		Line: cond.Span.StartLine, Language: lang,
	}
	branch = model.Snippet{
		Text: fmt.Sprintf(t.condBranch, handle, branchName), Anchor: model.AnchorWrapEntry,
		Line: cond.BodySpan.StartLine, Language: lang,
	}
	exit = model.Snippet{
		Text: fmt.Sprintf(t.condExit, handle), Anchor: model.AnchorAfter,
		Line: cond.Span.EndLine, Language: lang,
	}
	return entry, branch, exit, nil
}

// VariableChange synthesizes the one-line call recording a variable
// mutation. Only called for VariableUses the Scope Tracker validated as
// Defined ("only emitted for names validated by the scope tracker").
func VariableChange(lang model.Language, construct *model.Construct, use model.VariableUse) (model.Snippet, error) {
	t, ok := templates[lang]
	if !ok {
		return model.Snippet{}, fmt.Errorf("snippet: unsupported language %q", lang)
	}
	if !use.Defined {
		return model.Snippet{}, fmt.Errorf("snippet: refusing to instrument undefined variable %q at line %d", use.Name, use.Line)
	}
	text := fmt.Sprintf(t.varChange, use.Name, use.Name, construct.EnclosingFunc, use.Line)
	return model.Snippet{Text: text, Anchor: model.AnchorAfter, Line: use.Line, Language: lang}, nil
}

func quotedList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
