package scope

import "testing"

func TestResolveUndefinedBeforeDeclaration(t *testing.T) {
	tr := New()
	tr.Push(KindFunction, "f")
	tr.Bind("x", 10, false)
	res := tr.Resolve("x", 5)
	if res.Defined {
		t.Fatalf("expected x to be undefined at line 5 when first assigned at line 10")
	}
}

func TestResolveDefinedAfterDeclaration(t *testing.T) {
	tr := New()
	tr.Push(KindFunction, "f")
	tr.Bind("x", 10, false)
	res := tr.Resolve("x", 15)
	if !res.Defined {
		t.Fatalf("expected x to be defined at line 15 after being assigned at line 10")
	}
}

func TestResolveDefinedAtExactDeclarationLine(t *testing.T) {
	tr := New()
	tr.Push(KindFunction, "f")
	tr.Bind("x", 10, false)
	res := tr.Resolve("x", 10)
	if !res.Defined {
		t.Fatalf("expected x to be defined at its own declaration line (not strictly after)")
	}
}

func TestHoistedBindingVisibleFromScopeEntry(t *testing.T) {
	tr := New()
	tr.Push(KindFunction, "f")
	tr.Bind("v", 20, true)
	res := tr.Resolve("v", 1)
	if !res.Defined {
		t.Fatalf("expected hoisted binding to be visible before its textual declaration line")
	}
}

func TestResolveFallsThroughToOuterScope(t *testing.T) {
	tr := New()
	tr.Bind("g", 1, true) // module scope
	tr.Push(KindFunction, "f")
	res := tr.Resolve("g", 5)
	if !res.Defined {
		t.Fatalf("expected module-scope binding to be visible from nested function scope")
	}
}

func TestPopRestoresOuterScopeVisibility(t *testing.T) {
	tr := New()
	tr.Push(KindFunction, "f")
	tr.Bind("local", 1, true)
	tr.Pop()
	res := tr.Resolve("local", 5)
	if res.Defined {
		t.Fatalf("expected function-local binding to be invisible after Pop")
	}
}

func TestPopNeverRemovesModuleScope(t *testing.T) {
	tr := New()
	tr.Pop()
	tr.Pop()
	if tr.CurrentKind() != KindModule {
		t.Fatalf("expected module scope to survive excess Pop calls")
	}
}

func TestShadowingNonHoistedLocalHidesLaterOuterLookup(t *testing.T) {
	tr := New()
	tr.Bind("x", 1, true) // outer, hoisted
	tr.Push(KindFunction, "f")
	tr.Bind("x", 20, false) // inner, assigned later in the function
	res := tr.Resolve("x", 5)
	if res.Defined {
		t.Fatalf("expected inner not-yet-assigned x to shadow outer x, reporting undefined before line 20")
	}
}
