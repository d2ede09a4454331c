package runtime

import (
	"testing"

	"rblower/compiler-go/pkg/ast"
)

func TestEnvironmentGetAndSet(t *testing.T) {
	scope := ast.NewScope(ast.ScopeMethod, nil, "greeting")
	env := NewEnv(scope, nil)
	env.Set(0, 0, Str("hello"))

	got := env.Get(0, 0)
	if gv, ok := got.(*StringValue); !ok || gv.Val != "hello" {
		t.Fatalf("unexpected value returned: %#v", got)
	}
}

func TestEnvironmentUnsetSlotReadsNil(t *testing.T) {
	env := NewEnv(ast.NewScope(ast.ScopeMethod, nil, "a", "b"), nil)
	if got := env.Get(1, 0); got.Kind() != KindNil {
		t.Fatalf("unset slot mismatch: got=%#v want=nil", got)
	}
	if got := env.Get(7, 0); got.Kind() != KindNil {
		t.Fatalf("out of range slot mismatch: got=%#v want=nil", got)
	}
}

func TestEnvironmentClosureSharesParent(t *testing.T) {
	outer := ast.NewScope(ast.ScopeMethod, nil, "counter")
	inner := ast.NewScope(ast.ScopeBlock, outer, "step")
	env := NewEnv(outer, nil)
	env.Set(0, 0, Int(1))

	child := NewEnv(inner, env)
	child.Set(0, 1, Int(2))

	got, ok := env.Get(0, 0).(IntegerValue)
	if !ok || got.Val.Int64() != 2 {
		t.Fatalf("parent write mismatch: got=%#v want=2", env.Get(0, 0))
	}
}

func TestEnvironmentSnapshotShadowsOuterNames(t *testing.T) {
	outer := ast.NewScope(ast.ScopeMethod, nil, "x", "y")
	inner := ast.NewScope(ast.ScopeBlock, outer, "x")
	env := NewEnv(outer, nil)
	env.Set(0, 0, Int(1))
	env.Set(1, 0, Int(2))
	child := NewEnv(inner, env)
	child.Set(0, 0, Int(3))

	snap := child.Snapshot()
	if x := snap["x"].(IntegerValue); x.Val.Int64() != 3 {
		t.Fatalf("shadowed x mismatch: got=%v want=3", x.Val)
	}
	if keys := child.Keys(); len(keys) != 2 || keys[0] != "x" || keys[1] != "y" {
		t.Fatalf("keys mismatch: got=%#v", keys)
	}
	slot, depth, ok := child.Lookup("y")
	if !ok || slot != 1 || depth != 1 {
		t.Fatalf("lookup mismatch: got=(%d,%d,%v) want=(1,1,true)", slot, depth, ok)
	}
}
