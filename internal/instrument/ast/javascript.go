package ast

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/danshapiro/telescribe/internal/instrument/model"
	"github.com/danshapiro/telescribe/internal/instrument/scope"
)

type jsAnalyzer struct {
	lang model.Language
}

func newJSAnalyzer(lang model.Language) *jsAnalyzer { return &jsAnalyzer{lang: lang} }

func (a *jsAnalyzer) Language() model.Language { return a.lang }

func (a *jsAnalyzer) Analyze(ctx context.Context, source []byte) ([]*model.Construct, error) {
	var grammar *sitter.Language
	if a.lang == model.LanguageTypeScript {
		grammar = typescript.GetLanguage()
	} else {
		grammar = javascript.GetLanguage()
	}
	tree, err := parseTree(ctx, grammar, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	tr := scope.New()
	w := &jsWalker{source: source, scope: tr, lang: a.lang}
	return w.walkBlock(tree.RootNode()), nil
}

type jsWalker struct {
	source []byte
	scope  *scope.Tracker
	lang   model.Language
}

func (w *jsWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.source)
}

func (w *jsWalker) walkBlock(n *sitter.Node) []*model.Construct {
	var out []*model.Construct
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := w.walkStatement(n.NamedChild(i)); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (w *jsWalker) walkStatement(n *sitter.Node) *model.Construct {
	switch n.Type() {
	case "function_declaration":
		return w.walkFunction(n)
	case "for_statement", "for_in_statement":
		return w.walkLoop(n)
	case "while_statement":
		return w.walkLoop(n)
	case "if_statement":
		return w.walkConditional(n)
	case "try_statement":
		return w.walkTry(n)
	case "variable_declaration", "lexical_declaration":
		return w.walkVariableDeclaration(n)
	case "expression_statement":
		if n.NamedChildCount() == 1 && n.NamedChild(0).Type() == "assignment_expression" {
			return w.walkAssignmentExpression(n.NamedChild(0), lineOf(n.StartPoint()))
		}
		return nil
	default:
		return nil
	}
}

func (w *jsWalker) walkFunction(n *sitter.Node) *model.Construct {
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
		Language:       w.lang,
		Span:           span,
		BodySpan:       bodySpan,
		NormalizedBody: w.text(bodyNode),
	}

	w.scope.Push(scope.KindFunction, name)
	if paramsNode != nil {
		for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
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

func (w *jsWalker) paramName(p *sitter.Node) string {
	switch p.Type() {
	case "identifier":
		return w.text(p)
	case "required_parameter", "optional_parameter":
		if pat := p.ChildByFieldName("pattern"); pat != nil && pat.Type() == "identifier" {
			return w.text(pat)
		}
	case "assignment_pattern":
		if left := p.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
			return w.text(left)
		}
	}
	return ""
}

func (w *jsWalker) findExitLines(body *sitter.Node) []int {
	if body == nil {
		return nil
	}
	var lines []int
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration", "function", "arrow_function", "method_definition":
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
	lines = append(lines, lineOf(body.EndPoint()))
	return lines
}

func (w *jsWalker) walkLoop(n *sitter.Node) *model.Construct {
	bodyNode := n.ChildByFieldName("body")
	span := model.Span{StartLine: lineOf(n.StartPoint()), EndLine: lineOf(n.EndPoint())}
	bodySpan := span
	if bodyNode != nil {
		bodySpan = model.Span{StartLine: lineOf(bodyNode.StartPoint()), EndLine: lineOf(bodyNode.EndPoint())}
	}
	c := &model.Construct{Kind: model.ConstructLoop, Name: n.Type(), Language: w.lang, Span: span, BodySpan: bodySpan}
	if bodyNode != nil && bodyNode.Type() == "statement_block" {
		w.scope.Push(scope.KindBlock, n.Type())
		c.Children = w.walkBlock(bodyNode)
		w.scope.Pop()
	}
	return c
}

func (w *jsWalker) walkConditional(n *sitter.Node) *model.Construct {
	consequence := n.ChildByFieldName("consequence")
	span := model.Span{StartLine: lineOf(n.StartPoint()), EndLine: lineOf(n.EndPoint())}
	bodySpan := span
	if consequence != nil {
		bodySpan = model.Span{StartLine: lineOf(consequence.StartPoint()), EndLine: lineOf(consequence.EndPoint())}
	}
	c := &model.Construct{Kind: model.ConstructConditional, Name: "if", Language: w.lang, Span: span, BodySpan: bodySpan}
	if consequence != nil && consequence.Type() == "statement_block" {
		w.scope.Push(scope.KindBlock, "if")
		c.Children = w.walkBlock(consequence)
		w.scope.Pop()
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		target := alt
		if alt.Type() == "else_clause" && alt.NamedChildCount() > 0 {
			target = alt.NamedChild(0)
		}
		if target.Type() == "statement_block" {
			w.scope.Push(scope.KindBlock, "else")
			c.Children = append(c.Children, w.walkBlock(target)...)
			w.scope.Pop()
		}
	}
	return c
}

func (w *jsWalker) walkTry(n *sitter.Node) *model.Construct {
	span := model.Span{StartLine: lineOf(n.StartPoint()), EndLine: lineOf(n.EndPoint())}
	c := &model.Construct{Kind: model.ConstructExceptionHandler, Name: "try", Language: w.lang, Span: span, BodySpan: span}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "catch_clause" {
			if body := child.ChildByFieldName("body"); body != nil {
				w.scope.Push(scope.KindBlock, "catch")
				c.Children = append(c.Children, w.walkBlock(body)...)
				w.scope.Pop()
			}
		}
	}
	return c
}

// walkVariableDeclaration handles `let/const/var name = expr`. Only the
// single-declarator case is instrumented; destructuring patterns and
// multi-declarator statements (`let a = 1, b = 2`) are conservatively
// skipped (ambiguity resolves toward not instrumenting).
func (w *jsWalker) walkVariableDeclaration(n *sitter.Node) *model.Construct {
	if n.NamedChildCount() != 1 {
		return nil
	}
	decl := n.NamedChild(0)
	if decl.Type() != "variable_declarator" {
		return nil
	}
	nameNode := decl.ChildByFieldName("name")
	if nameNode == nil || nameNode.Type() != "identifier" {
		return nil
	}
	name := w.text(nameNode)
	line := lineOf(n.StartPoint())
	hoisted := n.Type() == "variable_declaration" // `var` hoists; `let`/`const` (lexical_declaration) do not
	w.scope.Bind(name, line, hoisted)
	res := w.scope.Resolve(name, line)
	use := model.VariableUse{Name: name, Line: line, Defined: res.Defined, BoundScope: res.Scope}
	return &model.Construct{
		Kind:           model.ConstructVariableAssignment,
		Name:           name,
		Language:       w.lang,
		Span:           model.Span{StartLine: line, EndLine: line},
		BodySpan:       model.Span{StartLine: line, EndLine: line},
		VariableUses:   []model.VariableUse{use},
		NormalizedBody: w.text(n),
	}
}

func (w *jsWalker) walkAssignmentExpression(n *sitter.Node, line int) *model.Construct {
	left := n.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return nil
	}
	name := w.text(left)
	res := w.scope.Resolve(name, line)
	if !res.Defined {
		// Plain reassignment of an undeclared name: per the Scope Tracker
		// contract this is "undefined at this point" and is dropped rather
		// than instrumented.
		return nil
	}
	use := model.VariableUse{Name: name, Line: line, Defined: true, BoundScope: res.Scope}
	return &model.Construct{
		Kind:           model.ConstructVariableAssignment,
		Name:           name,
		Language:       w.lang,
		Span:           model.Span{StartLine: line, EndLine: line},
		BodySpan:       model.Span{StartLine: line, EndLine: line},
		VariableUses:   []model.VariableUse{use},
		NormalizedBody: w.text(n),
	}
}
