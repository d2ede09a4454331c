package runtime

import "testing"

func TestHashKeepsInsertionOrder(t *testing.T) {
	h := NewHash()
	h.Set(SymbolValue{Name: "b"}, Int(2))
	h.Set(SymbolValue{Name: "a"}, Int(1))
	h.Set(SymbolValue{Name: "b"}, Int(3))

	if h.Len() != 2 {
		t.Fatalf("len mismatch: got=%d want=2", h.Len())
	}
	if got := Inspect(h); got != "{:b=>3, :a=>1}" {
		t.Fatalf("inspect mismatch: got=%q", got)
	}
}

func TestHashKeysUseEql(t *testing.T) {
	h := NewHash()
	h.Set(Int(1), Str("int"))
	h.Set(FloatValue{Val: 1}, Str("float"))
	h.Set(Str("k"), Str("string"))

	if h.Len() != 3 {
		t.Fatalf("len mismatch: got=%d want=3", h.Len())
	}
	v, ok := h.Get(Str("k"))
	if !ok || v.(*StringValue).Val != "string" {
		t.Fatalf("string key lookup mismatch: got=%#v", v)
	}
	if _, ok := h.Delete(Int(1)); !ok {
		t.Fatalf("expected delete to find integer key")
	}
	if _, ok := h.Get(Int(1)); ok {
		t.Fatalf("deleted key still present")
	}
	if h.Len() != 2 {
		t.Fatalf("len after delete mismatch: got=%d want=2", h.Len())
	}
}

func TestTruthiness(t *testing.T) {
	cases := []struct {
		value Value
		want  bool
	}{
		{Nil, false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), true},
		{Str(""), true},
		{NewArray(), true},
	}
	for _, tc := range cases {
		if got := Truthy(tc.value); got != tc.want {
			t.Fatalf("truthiness mismatch for %s: got=%v want=%v", Inspect(tc.value), got, tc.want)
		}
	}
}
