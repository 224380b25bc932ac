// Package script is the Script Generator (C4): it produces an Insertion
// Script for one Construct, on the fast (template-only, deterministic) or
// slow (model-assisted) path.
package script

import (
	"strings"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/snippet"
)

// GenerateFastPath builds a deterministic Insertion Script for a Construct
// from its already-synthesized Snippets. This is the path the overwhelming
// majority of constructs take: no model call, anchors computed as
// line + content fingerprint.
func GenerateFastPath(lines []string, construct *model.Construct) (model.Script, bool, error) {
	switch construct.Kind {
	case model.ConstructFunction:
		return generateFunctionScript(lines, construct)
	case model.ConstructLoop:
		return generateLoopScript(lines, construct)
	case model.ConstructConditional:
		return generateConditionalScript(lines, construct, "if")
	case model.ConstructVariableAssignment:
		return generateVariableScript(lines, construct)
	default:
		// exception_handler constructs currently have no dedicated
		// templates; fall through to the slow path.
		return model.Script{}, false, nil
	}
}

func generateFunctionScript(lines []string, construct *model.Construct) (model.Script, bool, error) {
	entry, exits, err := snippet.FunctionEntryExit(construct.Language, construct)
	if err != nil {
		return model.Script{}, false, err
	}
	if entry.Text == "" {
		// snippet.FunctionEntryExit deliberately produced nothing (e.g. a
		// Go function with no discoverable exit); caller should fall back
		// to the slow path or leave the construct un-instrumented.
		return model.Script{}, false, nil
	}
	var ops []model.Op
	ops = append(ops, opFromSnippet(lines, entry))
	for _, exit := range exits {
		ops = append(ops, opFromSnippet(lines, exit))
	}
	return model.Script{ConstructKind: model.ConstructFunction, Language: construct.Language, Ops: ops, GeneratedBy: "fast_path"}, true, nil
}

func generateLoopScript(lines []string, construct *model.Construct) (model.Script, bool, error) {
	entry, iteration, exit, err := snippet.LoopSnippets(construct.Language, construct)
	if err != nil {
		return model.Script{}, false, err
	}
	ops := []model.Op{
		opFromSnippet(lines, entry),
		opFromSnippet(lines, iteration),
		opFromSnippet(lines, exit),
	}
	return model.Script{ConstructKind: model.ConstructLoop, Language: construct.Language, Ops: ops, GeneratedBy: "fast_path"}, true, nil
}

func generateConditionalScript(lines []string, construct *model.Construct, branchName string) (model.Script, bool, error) {
	entry, branch, exit, err := snippet.ConditionalSnippets(construct.Language, construct, branchName)
	if err != nil {
		return model.Script{}, false, err
	}
	ops := []model.Op{
		opFromSnippet(lines, entry),
		opFromSnippet(lines, branch),
		opFromSnippet(lines, exit),
	}
	return model.Script{ConstructKind: model.ConstructConditional, Language: construct.Language, Ops: ops, GeneratedBy: "fast_path"}, true, nil
}

func generateVariableScript(lines []string, construct *model.Construct) (model.Script, bool, error) {
	if len(construct.VariableUses) != 1 {
		return model.Script{}, false, nil
	}
	use := construct.VariableUses[0]
	if !use.Defined {
		return model.Script{}, false, nil
	}
	snip, err := snippet.VariableChange(construct.Language, construct, use)
	if err != nil {
		return model.Script{}, false, err
	}
	op := opFromSnippet(lines, snip)
	return model.Script{ConstructKind: model.ConstructVariableAssignment, Language: construct.Language, Ops: []model.Op{op}, GeneratedBy: "fast_path"}, true, nil
}

// opFromSnippet converts a synthesized Snippet into an Op, preserving its
// placement semantics (before/after/wrap_entry) so the sandbox applies it on
// the correct side of the anchor line.
func opFromSnippet(lines []string, snip model.Snippet) model.Op {
	return model.Op{
		Kind:      model.OpInsertLine,
		Placement: snip.Anchor,
		Anchor:    ComputeAnchor(lines, snip.Line),
		Text:      snip.Text,
	}
}

// ForbiddenMarkers are substrings that must never appear in synthesized or
// model-returned snippet text ("prohibited output forms"; "markdown
// fence leakage"). Checked in this package first: the slow path rejects a
// model response containing one, and ValidateScriptAgainstSpan rejects any
// op text containing one. The sandbox (C6) strips lines consisting solely of
// a marker as a further layer. The validator (C7) does not check for them.
var ForbiddenMarkers = []string{"```", "<|", "|>"}

// ContainsForbiddenMarker reports whether text contains any disallowed marker.
func ContainsForbiddenMarker(text string) bool {
	for _, m := range ForbiddenMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// ValidateScriptAgainstSpan rejects a Script if any operation's anchor lies
// outside the Construct's span, or any operation text contains a forbidden
// marker (the slow-path validation gate).
func ValidateScriptAgainstSpan(s model.Script, span model.Span) error {
	for _, op := range s.Ops {
		if !span.Contains(op.Anchor.Line) {
			return model.NewValidationFailure(model.ValidationSyntaxError, "insertion script anchor outside construct span")
		}
		if op.Kind == model.OpWrapBlock && !span.Contains(op.EndAnchor.Line) {
			return model.NewValidationFailure(model.ValidationSyntaxError, "insertion script wrap_block end anchor outside construct span")
		}
		if ContainsForbiddenMarker(op.Text) || ContainsForbiddenMarker(op.Postlude) {
			return model.NewValidationFailure(model.ValidationSyntaxError, "insertion script contains a forbidden marker")
		}
	}
	return nil
}
