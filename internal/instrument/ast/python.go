package ast

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/scope"
)

type pythonAnalyzer struct{}

func newPythonAnalyzer() *pythonAnalyzer { return &pythonAnalyzer{} }

func (a *pythonAnalyzer) Language() model.Language { return model.LanguagePython }

func (a *pythonAnalyzer) Analyze(ctx context.Context, source []byte) ([]*model.Construct, error) {
	tree, err := parseTree(ctx, python.GetLanguage(), source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	tr := scope.New()
	w := &pythonWalker{source: source, scope: tr}
	return w.walkBlock(tree.RootNode()), nil
}

type pythonWalker struct {
	source []byte
	scope  *scope.Tracker
}

func (w *pythonWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.source)
}

// walkBlock visits the named children of a module/block node, returning the
// top-level Constructs found directly inside it (nested constructs are
// attached as Children, not flattened into the caller's slice).
func (w *pythonWalker) walkBlock(n *sitter.Node) []*model.Construct {
	var out []*model.Construct
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if c := w.walkStatement(child); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (w *pythonWalker) walkStatement(n *sitter.Node) *model.Construct {
	switch n.Type() {
	case "function_definition":
		return w.walkFunction(n)
	case "for_statement":
		return w.walkLoop(n, "for")
	case "while_statement":
		return w.walkLoop(n, "while")
	case "if_statement":
		return w.walkConditional(n)
	case "try_statement":
		return w.walkTry(n)
	case "expression_statement":
		return w.walkExpressionStatement(n)
	case "class_definition":
		w.scope.Push(scope.KindClass, w.text(n.ChildByFieldName("name")))
		defer w.scope.Pop()
		body := n.ChildByFieldName("body")
		if body != nil {
			w.walkBlock(body)
		}
		return nil
	default:
		return nil
	}
}

func (w *pythonWalker) walkFunction(n *sitter.Node) *model.Construct {
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
		Kind:          model.ConstructFunction,
		Name:          name,
		Language:      model.LanguagePython,
		Span:          span,
		BodySpan:      bodySpan,
		NormalizedBody: w.text(bodyNode),
	}

	w.scope.Push(scope.KindFunction, name)
	if paramsNode != nil {
		pcount := int(paramsNode.NamedChildCount())
		for i := 0; i < pcount; i++ {
			p := paramsNode.NamedChild(i)
			pname := w.paramName(p)
			if pname == "" {
				continue
			}
			c.ParamNames = append(c.ParamNames, pname)
			w.scope.Bind(pname, lineOf(p.StartPoint()), true)
		}
	}

	c.ExitLines = w.findExitLines(bodyNode)
	if bodyNode != nil {
		c.Children = w.walkBlock(bodyNode)
	}
	w.scope.Pop()
	return c
}

func (w *pythonWalker) paramName(p *sitter.Node) string {
	switch p.Type() {
	case "identifier":
		return w.text(p)
	case "default_parameter", "typed_parameter", "typed_default_parameter":
		if nameNode := p.ChildByFieldName("name"); nameNode != nil {
			return w.text(nameNode)
		}
		if p.NamedChildCount() > 0 {
			return w.text(p.NamedChild(0))
		}
	}
	return ""
}

// findExitLines collects every "return" statement line directly reachable
// without crossing into a nested function, plus the body's final line as a
// fall-through exit.
func (w *pythonWalker) findExitLines(body *sitter.Node) []int {
	if body == nil {
		return nil
	}
	var lines []int
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "function_definition" {
			return // don't descend into nested functions' own returns
		}
		if n.Type() == "return_statement" {
			lines = append(lines, lineOf(n.StartPoint()))
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(body)
	lines = append(lines, lineOf(body.EndPoint())) // fall-through exit
	return lines
}

func (w *pythonWalker) walkLoop(n *sitter.Node, label string) *model.Construct {
	bodyNode := n.ChildByFieldName("body")
	span := model.Span{StartLine: lineOf(n.StartPoint()), EndLine: lineOf(n.EndPoint())}
	bodySpan := span
	if bodyNode != nil {
		bodySpan = model.Span{StartLine: lineOf(bodyNode.StartPoint()), EndLine: lineOf(bodyNode.EndPoint())}
	}

	if leftNode := n.ChildByFieldName("left"); leftNode != nil && leftNode.Type() == "identifier" {
		w.scope.Bind(w.text(leftNode), lineOf(n.StartPoint()), true)
	}

	c := &model.Construct{
		Kind:     model.ConstructLoop,
		Name:     label,
		Language: model.LanguagePython,
		Span:     span,
		BodySpan: bodySpan,
	}
	if bodyNode != nil {
		w.scope.Push(scope.KindBlock, label)
		c.Children = w.walkBlock(bodyNode)
		w.scope.Pop()
	}
	return c
}

func (w *pythonWalker) walkConditional(n *sitter.Node) *model.Construct {
	consequence := n.ChildByFieldName("consequence")
	span := model.Span{StartLine: lineOf(n.StartPoint()), EndLine: lineOf(n.EndPoint())}
	bodySpan := span
	if consequence != nil {
		bodySpan = model.Span{StartLine: lineOf(consequence.StartPoint()), EndLine: lineOf(consequence.EndPoint())}
	}
	c := &model.Construct{
		Kind:     model.ConstructConditional,
		Name:     "if",
		Language: model.LanguagePython,
		Span:     span,
		BodySpan: bodySpan,
	}
	if consequence != nil {
		w.scope.Push(scope.KindBlock, "if")
		c.Children = w.walkBlock(consequence)
		w.scope.Pop()
	}
	// alternative/elif_clause bodies are walked for their own nested
	// constructs but are not represented as separate top-level Constructs,
	// matching the "one Construct per conditional statement" model used by
	// the snippet synthesizer's entry/branch-taken/exit templates.
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "elif_clause" || child.Type() == "else_clause" {
			if body := child.ChildByFieldName("consequence"); body != nil {
				w.scope.Push(scope.KindBlock, child.Type())
				c.Children = append(c.Children, w.walkBlock(body)...)
				w.scope.Pop()
			}
		}
	}
	return c
}

func (w *pythonWalker) walkTry(n *sitter.Node) *model.Construct {
	span := model.Span{StartLine: lineOf(n.StartPoint()), EndLine: lineOf(n.EndPoint())}
	c := &model.Construct{
		Kind:     model.ConstructExceptionHandler,
		Name:     "try",
		Language: model.LanguagePython,
		Span:     span,
		BodySpan: span,
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "except_clause" {
			if child.NamedChildCount() > 0 {
				last := child.NamedChild(int(child.NamedChildCount()) - 1)
				if last.Type() == "block" {
					w.scope.Push(scope.KindBlock, "except")
					c.Children = append(c.Children, w.walkBlock(last)...)
					w.scope.Pop()
				}
			}
		}
	}
	return c
}

// walkExpressionStatement handles bare `name = expr` assignments, the only
// variable_assignment Construct kind this analyzer emits. Only a plain
// assignment to a single identifier target is handled; augmented
// assignments (`x += 1`), tuple unpacking and attribute/subscript targets
// are skipped (ambiguity resolves toward not instrumenting).
func (w *pythonWalker) walkExpressionStatement(n *sitter.Node) *model.Construct {
	if n.NamedChildCount() != 1 {
		return nil
	}
	assign := n.NamedChild(0)
	if assign.Type() != "assignment" {
		return nil
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return nil // tuple/attribute/subscript targets: skip, conservative
	}
	name := w.text(left)
	line := lineOf(n.StartPoint())
	w.scope.Bind(name, line, false)

	res := w.scope.Resolve(name, line)
	use := model.VariableUse{Name: name, Line: line, Defined: res.Defined, BoundScope: res.Scope}

	return &model.Construct{
		Kind:           model.ConstructVariableAssignment,
		Name:           name,
		Language:       model.LanguagePython,
		Span:           model.Span{StartLine: line, EndLine: line},
		BodySpan:       model.Span{StartLine: line, EndLine: line},
		VariableUses:   []model.VariableUse{use},
		NormalizedBody: w.text(assign),
	}
}
