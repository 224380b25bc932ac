package ast

import (
	"context"
	"testing"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

func TestAnalyzeUnknownLanguageFails(t *testing.T) {
	_, err := Analyze(context.Background(), model.Language("cobol"), []byte("IDENTIFICATION DIVISION."))
	if err == nil {
		t.Fatalf("expected an error for an unregistered language")
	}
	var perr *model.PipelineError
	if !asPipelineError(err, &perr) {
		t.Fatalf("expected a *model.PipelineError, got %T", err)
	}
	if perr.Kind != model.ErrParse {
		t.Fatalf("Kind = %v, want %v", perr.Kind, model.ErrParse)
	}
}

func TestAnalyzePythonFindsTopLevelFunction(t *testing.T) {
	src := []byte("def add(a, b):\n    total = a + b\n    return total\n")
	constructs, err := Analyze(context.Background(), model.LanguagePython, src)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(constructs) != 1 {
		t.Fatalf("expected exactly one top-level construct, got %d", len(constructs))
	}
	fn := constructs[0]
	if fn.Kind != model.ConstructFunction || fn.Name != "add" {
		t.Fatalf("got Kind=%v Name=%q, want function/add", fn.Kind, fn.Name)
	}
	if len(fn.ParamNames) != 2 || fn.ParamNames[0] != "a" || fn.ParamNames[1] != "b" {
		t.Fatalf("ParamNames = %v, want [a b]", fn.ParamNames)
	}
	if len(fn.ExitLines) == 0 {
		t.Fatalf("expected at least one exit line for add()")
	}
}

func TestAnalyzeGoFindsFunctionAndShortVarDecl(t *testing.T) {
	src := []byte("package main\n\nfunc add(a, b int) int {\n\ttotal := a + b\n\treturn total\n}\n")
	constructs, err := Analyze(context.Background(), model.LanguageGo, src)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var found *model.Construct
	for _, c := range constructs {
		if c.Kind == model.ConstructFunction {
			found = c
		}
	}
	if found == nil {
		t.Fatalf("expected to find a function construct")
	}
	if found.Name != "add" {
		t.Fatalf("Name = %q, want add", found.Name)
	}
	var sawAssignment bool
	for _, child := range found.Children {
		if child.Kind == model.ConstructVariableAssignment && child.Name == "total" {
			sawAssignment = true
		}
	}
	if !sawAssignment {
		t.Fatalf("expected to find the `total := a + b` short var decl as a child construct")
	}
}

func asPipelineError(err error, target **model.PipelineError) bool {
	if pe, ok := err.(*model.PipelineError); ok {
		*target = pe
		return true
	}
	return false
}
