package script

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/modelclient"
)

// PatternContext is the prompt-injection view the Learning Store (C9)
// supplies to the slow path, kept as plain text blocks
// so this package has no dependency on the learning package's internal
// representation.
type PatternContext struct {
	Patterns []string
}

// GenerateSlowPath builds a structured repair/generation prompt for one
// Construct and parses the model's response into an Insertion Script,
// rejecting it before it is ever returned to the caller (and therefore
// before it is ever cached) if validation fails.
func GenerateSlowPath(ctx context.Context, client *modelclient.Client, req modelclient.Request, lines []string, construct *model.Construct, failureContext string, patterns PatternContext) (model.Script, error) {
	prompt := buildSlowPathPrompt(construct, lines, failureContext, patterns)
	req.UserPrompt = prompt
	resp, err := client.Generate(ctx, req)
	if err != nil {
		return model.Script{}, err
	}
	if ContainsForbiddenMarker(resp.Text) {
		return model.Script{}, model.NewValidationFailure(model.ValidationSyntaxError, "model response contains a forbidden marker (markdown fence leakage)")
	}
	doc, err := ValidateInsertionScriptJSON([]byte(extractJSONObject(resp.Text)))
	if err != nil {
		return model.Script{}, model.NewValidationFailure(model.ValidationSyntaxError, err.Error())
	}
	s, err := decodeScriptDoc(doc, construct)
	if err != nil {
		return model.Script{}, err
	}
	if err := ValidateScriptAgainstSpan(s, construct.Span); err != nil {
		return model.Script{}, err
	}
	s.GeneratedBy = "slow_path"
	return s, nil
}

func buildSlowPathPrompt(construct *model.Construct, lines []string, failureContext string, patterns PatternContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Construct kind: %s\nLanguage: %s\nLines %d-%d:\n", construct.Kind, construct.Language, construct.Span.StartLine, construct.Span.EndLine)
	for i := construct.Span.StartLine; i <= construct.Span.EndLine && i <= len(lines); i++ {
		fmt.Fprintf(&b, "%d: %s\n", i, lines[i-1])
	}
	b.WriteString("\nRules: return a JSON object with a single \"ops\" array of insertion operations only. ")
	b.WriteString("Do not modify unrelated lines. Preserve indentation. Do not introduce imports. ")
	b.WriteString("Never wrap the response in markdown code fences.\n")
	if failureContext != "" {
		fmt.Fprintf(&b, "\nPrevious attempt failed: %s\n", failureContext)
	}
	if len(patterns.Patterns) > 0 {
		b.WriteString("\nKnown failure patterns and fixes:\n")
		for _, p := range patterns.Patterns {
			b.WriteString("- ")
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// extractJSONObject trims leading/trailing prose a model might add despite
// instructions, by taking the substring between the first '{' and the
// matching last '}'. This is the generator-side half of the markdown-fence
// defense; the sandbox and validator provide the other two layers.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

func decodeScriptDoc(doc map[string]any, construct *model.Construct) (model.Script, error) {
	rawOps, _ := doc["ops"].([]any)
	var ops []model.Op
	for _, rawOp := range rawOps {
		m, ok := rawOp.(map[string]any)
		if !ok {
			continue
		}
		op := model.Op{
			Kind: model.OpKind(stringField(m, "kind")),
			Anchor: model.Anchor{
				Line:     intField(m, "anchor_line"),
				LineHash: stringField(m, "anchor_hash"),
			},
			Text:       stringField(m, "text"),
			Postlude:   stringField(m, "postlude"),
			CaptureVar: stringField(m, "capture_var"),
		}
		if op.Kind == model.OpWrapBlock {
			op.EndAnchor = model.Anchor{
				Line:     intField(m, "end_anchor_line"),
				LineHash: stringField(m, "end_anchor_hash"),
			}
		}
		ops = append(ops, op)
	}
	return model.Script{ConstructKind: construct.Kind, Language: construct.Language, Ops: ops}, nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
