package ast

import "testing"

func TestScopeLookup(t *testing.T) {
	root := NewScope(ScopeRoot, nil, "a", "b")
	outer := NewScope(ScopeBlock, root, "x")
	inner := NewScope(ScopeBlock, outer, "y", "a")
	method := NewScope(ScopeMethod, nil, "arg")

	cases := []struct {
		scope *Scope
		name  string
		slot  int
		depth int
		found bool
	}{
		{root, "b", 1, 0, true},
		{outer, "a", 0, 1, true},
		{inner, "x", 0, 1, true},
		{inner, "b", 1, 2, true},
		{inner, "a", 1, 0, true}, // shadowed by the block's own a
		{inner, "nope", -1, -1, false},
		{method, "a", -1, -1, false},
	}
	for _, tc := range cases {
		slot, depth, ok := tc.scope.Lookup(tc.name)
		if slot != tc.slot || depth != tc.depth || ok != tc.found {
			t.Fatalf("lookup %s in %s scope: expected (%d, %d, %t), got (%d, %d, %t)",
				tc.name, tc.scope.Kind, tc.slot, tc.depth, tc.found, slot, depth, ok)
		}
	}
}

func TestScopeDeclare(t *testing.T) {
	s := NewScope(ScopeMethod, nil)
	if got := s.Declare("x"); got != 0 {
		t.Fatalf("expected slot 0, got %d", got)
	}
	if got := s.Declare("y"); got != 1 {
		t.Fatalf("expected slot 1, got %d", got)
	}
	if got := s.Declare("x"); got != 0 {
		t.Fatalf("expected redeclaration to reuse slot 0, got %d", got)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 names, got %d", s.Len())
	}
	var none *Scope
	if none.Len() != 0 {
		t.Fatalf("expected a nil scope to be empty")
	}
}

func TestScopeDepth(t *testing.T) {
	root := NewScope(ScopeRoot, nil)
	b1 := NewScope(ScopeBlock, root)
	b2 := NewScope(ScopeBlock, b1)
	if got := b2.Depth(); got != 2 {
		t.Fatalf("expected depth 2, got %d", got)
	}
	if got := root.Depth(); got != 0 {
		t.Fatalf("expected depth 0, got %d", got)
	}
	if b2.At(2) != root {
		t.Fatalf("expected At(2) to reach the root scope")
	}
}
