package ast

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/scope"
)

type goAnalyzer struct{}

func newGoAnalyzer() *goAnalyzer { return &goAnalyzer{} }

func (a *goAnalyzer) Language() model.Language { return model.LanguageGo }

func (a *goAnalyzer) Analyze(ctx context.Context, source []byte) ([]*model.Construct, error) {
	tree, err := parseTree(ctx, golang.GetLanguage(), source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	tr := scope.New()
	w := &goWalker{source: source, scope: tr}
	return w.walkBlock(tree.RootNode()), nil
}

type goWalker struct {
	source []byte
	scope  *scope.Tracker
}

func (w *goWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.source)
}

func (w *goWalker) walkBlock(n *sitter.Node) []*model.Construct {
	var out []*model.Construct
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := w.walkStatement(n.NamedChild(i)); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (w *goWalker) walkStatement(n *sitter.Node) *model.Construct {
	switch n.Type() {
	case "function_declaration", "method_declaration":
		return w.walkFunction(n)
	case "for_statement":
		return w.walkLoop(n)
	case "if_statement":
		return w.walkConditional(n)
	case "short_var_declaration":
		return w.walkShortVarDecl(n)
	default:
		return nil
	}
}

func (w *goWalker) walkFunction(n *sitter.Node) *model.Construct {
	nameNode := n.ChildByFieldName("name")
	name := w.text(nameNode)
	paramsNode := n.ChildByFieldName("parameters")
	bodyNode := n.ChildByFieldName("body")

	span := model.Span{StartLine: lineOf(n.StartPoint()), EndLine: lineOf(n.EndPoint())}
	bodySpan := span
	if bodyNode != nil {
		bodySpan = model.Span{StartLine: lineOf(bodyNode.StartPoint()), EndLine: lineOf(bodyNode.EndPoint())}
	}

	c := &model.Construct{
		Kind:           model.ConstructFunction,
		Name:           name,
		Language:       model.LanguageGo,
		Span:           span,
		BodySpan:       bodySpan,
		NormalizedBody: w.text(bodyNode),
	}

	w.scope.Push(scope.KindFunction, name)
	if paramsNode != nil {
		for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
			p := paramsNode.NamedChild(i)
			if p.Type() != "parameter_declaration" {
				continue
			}
			if pn := p.ChildByFieldName("name"); pn != nil {
				pname := w.text(pn)
				c.ParamNames = append(c.ParamNames, pname)
				w.scope.Bind(pname, lineOf(p.StartPoint()), true)
			}
		}
	}

	c.ExitLines = w.findExitLines(bodyNode)
	if bodyNode != nil {
		c.Children = w.walkBlock(bodyNode)
	}
	w.scope.Pop()
	return c
}

// findExitLines collects "return" statement lines within this function's
// body (not descending into nested function literals), plus the closing
// brace line as the implicit fall-through exit - Go requires an explicit
// return in any path that needs one, but functions with no return values
// may fall through, and the instrumentation must cover that path too.
// The fall-through line is omitted when the body's last top-level statement
// already terminates every path (a return), since the closing brace is then
// unreachable and emitting an exit there would be dead instrumentation.
func (w *goWalker) findExitLines(body *sitter.Node) []int {
	if body == nil {
		return nil
	}
	var lines []int
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "func_literal" {
			return
		}
		if n.Type() == "return_statement" {
			lines = append(lines, lineOf(n.StartPoint()))
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(body)
	if bodyFallsThrough(body) {
		lines = append(lines, lineOf(body.EndPoint()))
	}
	return lines
}

// bodyFallsThrough reports whether control can reach body's closing brace:
// false when the last top-level statement is itself a return, since that
// unconditionally exits the function before the brace is ever reached.
func bodyFallsThrough(body *sitter.Node) bool {
	n := int(body.NamedChildCount())
	if n == 0 {
		return true
	}
	return body.NamedChild(n-1).Type() != "return_statement"
}

func (w *goWalker) walkLoop(n *sitter.Node) *model.Construct {
	bodyNode := n.ChildByFieldName("body")
	span := model.Span{StartLine: lineOf(n.StartPoint()), EndLine: lineOf(n.EndPoint())}
	bodySpan := span
	if bodyNode != nil {
		bodySpan = model.Span{StartLine: lineOf(bodyNode.StartPoint()), EndLine: lineOf(bodyNode.EndPoint())}
	}
	c := &model.Construct{
		Kind:     model.ConstructLoop,
		Name:     "for",
		Language: model.LanguageGo,
		Span:     span,
		BodySpan: bodySpan,
	}
	if bodyNode != nil {
		w.scope.Push(scope.KindBlock, "for")
		c.Children = w.walkBlock(bodyNode)
		w.scope.Pop()
	}
	return c
}

func (w *goWalker) walkConditional(n *sitter.Node) *model.Construct {
	consequence := n.ChildByFieldName("consequence")
	span := model.Span{StartLine: lineOf(n.StartPoint()), EndLine: lineOf(n.EndPoint())}
	bodySpan := span
	if consequence != nil {
		bodySpan = model.Span{StartLine: lineOf(consequence.StartPoint()), EndLine: lineOf(consequence.EndPoint())}
	}
	c := &model.Construct{
		Kind:     model.ConstructConditional,
		Name:     "if",
		Language: model.LanguageGo,
		Span:     span,
		BodySpan: bodySpan,
	}
	if consequence != nil {
		w.scope.Push(scope.KindBlock, "if")
		c.Children = w.walkBlock(consequence)
		w.scope.Pop()
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil && alt.Type() == "block" {
		w.scope.Push(scope.KindBlock, "else")
		c.Children = append(c.Children, w.walkBlock(alt)...)
		w.scope.Pop()
	}
	return c
}

// walkShortVarDecl handles `name := expr`. Multi-name declarations
// (`a, b := f()`) are conservatively skipped: instrumenting each name would
// require correlating positions across the left and right operand lists,
// which tree-sitter's grammar does not guarantee a 1:1 shape for (e.g. one
// name may be `_`), so this resolves toward not instrumenting.
func (w *goWalker) walkShortVarDecl(n *sitter.Node) *model.Construct {
	left := n.ChildByFieldName("left")
	if left == nil || left.NamedChildCount() != 1 {
		return nil
	}
	nameNode := left.NamedChild(0)
	if nameNode.Type() != "identifier" {
		return nil
	}
	name := w.text(nameNode)
	if name == "_" {
		return nil
	}
	line := lineOf(n.StartPoint())
	w.scope.Bind(name, line, false)
	res := w.scope.Resolve(name, line)
	use := model.VariableUse{Name: name, Line: line, Defined: res.Defined, BoundScope: res.Scope}
	return &model.Construct{
		Kind:           model.ConstructVariableAssignment,
		Name:           name,
		Language:       model.LanguageGo,
		Span:           model.Span{StartLine: line, EndLine: line},
		BodySpan:       model.Span{StartLine: line, EndLine: line},
		VariableUses:   []model.VariableUse{use},
		NormalizedBody: w.text(n),
	}
}
