package lowering

import (
	"strings"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/sergi/go-diff/diffmatchpatch"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/inspector"
)

func compile(t *testing.T, opts Options, root *ast.RootNode) *emit.Unit {
	t.Helper()
	unit, err := New(opts).Compile(root)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return unit
}

// normalize drops the padding Listing leaves after operand-less ops.
func normalize(listing string) string {
	lines := strings.Split(listing, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.Join(lines, "\n")
}

func expectListing(t *testing.T, name string, unit *emit.Unit, want string) {
	t.Helper()
	got := normalize(unit.Listing())
	if got != want {
		dmp := diffmatchpatch.New()
		t.Fatalf("%s: listing mismatch:\n%s", name, dmp.DiffPrettyText(dmp.DiffMain(want, got, false)))
	}
}

func swap() *ast.RootNode {
	s := ast.NewScope(ast.ScopeRoot, nil, "a", "b")
	return ast.Root(s,
		ast.MAsgn(ast.Arr(ast.Int(1), ast.Int(2)), ast.LAsgn("a", 0, nil), ast.LAsgn("b", 1, nil)),
		ast.Nil(),
	)
}

func TestListings(t *testing.T) {
	cases := []struct {
		name string
		opts func() Options
		root func() *ast.RootNode
		want string
	}{
		{
			name: "fast multiple assignment",
			opts: DefaultOptions,
			root: swap,
			want: `unit 0 root ""
  push_int        1
  push_int        2
  reverse         2
  store_local     0@0
  store_local     1@0
  push_nil
`,
		},
		{
			name: "constant condition",
			opts: DefaultOptions,
			root: func() *ast.RootNode {
				return ast.Root(ast.NewScope(ast.ScopeRoot, nil), ast.If(ast.True(), ast.Int(1), ast.Int(2)))
			},
			want: `unit 0 root ""
  push_int        1
`,
		},
		{
			name: "call",
			opts: DefaultOptions,
			root: func() *ast.RootNode {
				return ast.Root(ast.NewScope(ast.ScopeRoot, nil), ast.Call(ast.Int(1), "+", ast.Int(2)))
			},
			want: `unit 0 root ""
  push_int        1
  push_int        2
  dispatch        +/1 normal
`,
		},
	}
	for _, tc := range cases {
		expectListing(t, tc.name, compile(t, tc.opts(), tc.root()), tc.want)
	}
}

func TestListingIsDeterministic(t *testing.T) {
	s := ast.NewScope(ast.ScopeRoot, nil, "r")
	b := ast.NewScope(ast.ScopeBlock, s)
	root := ast.Root(s,
		ast.LAsgn("r", 0, ast.Arr()),
		ast.CallIter(ast.Arr(ast.Int(1), ast.Int(2)), "each", ast.Block(b,
			ast.Call(ast.DVar("r", 0, 1), "<<", ast.DVar("x", 0, 0)), "x")),
	)
	first := compile(t, DefaultOptions(), root)
	second := compile(t, DefaultOptions(), root)
	if first.UnitID() == second.UnitID() {
		t.Fatalf("expected distinct unit ids, got %s twice", first.UnitID())
	}
	expectListing(t, "recompiled", second, normalize(first.Listing()))
	if first.Count() != 2 {
		t.Fatalf("expected a root and a closure unit, got %d units", first.Count())
	}
}

func TestMultipleAssignmentPaths(t *testing.T) {
	nested := func() *ast.RootNode {
		s := ast.NewScope(ast.ScopeRoot, nil, "a", "b", "c")
		inner := ast.NewMultipleAsgn([]ast.Node{ast.LAsgn("b", 1, nil), ast.LAsgn("c", 2, nil)}, nil, nil, nil)
		return ast.Root(s,
			ast.MAsgn(ast.Arr(ast.Int(1), ast.LVar("a", 0)), ast.LAsgn("a", 0, nil), inner),
			ast.Nil(),
		)
	}
	wide := func() *ast.RootNode {
		s := ast.NewScope(ast.ScopeRoot, nil)
		var targets, values []ast.Node
		for i := 0; i < 11; i++ {
			name := string(rune('a' + i))
			targets = append(targets, ast.LAsgn(name, s.Declare(name), nil))
			values = append(values, ast.Int(int64(i)))
		}
		return ast.Root(s, ast.MAsgn(ast.Arr(values...), targets...), ast.Nil())
	}

	cases := []struct {
		name string
		opts func(*Options)
		root func() *ast.RootNode
		fast bool
	}{
		{"default", func(*Options) {}, swap, true},
		{"disabled", func(o *Options) { o.FastMultipleAssignment = false }, swap, false},
		{"below minimum arity", func(o *Options) { o.FastMasgnMinArity = 3 }, swap, false},
		{"above maximum arity", func(*Options) {}, wide, false},
		{"nested target", func(*Options) {}, nested, false},
		{"nested target allowed", func(o *Options) { o.FastMasgnNestedTargets = true }, nested, true},
	}
	for _, tc := range cases {
		opts := DefaultOptions()
		tc.opts(&opts)
		listing := compile(t, opts, tc.root()).Listing()
		// the fast path never materializes the value array
		fast := !strings.Contains(listing, "make_array")
		if fast != tc.fast {
			t.Fatalf("%s: expected fast=%t, got listing:\n%s", tc.name, tc.fast, listing)
		}
	}
}

func TestNotCompilable(t *testing.T) {
	pos := ast.Position{File: "t.rb", StartLine: 4, EndLine: 4}
	cases := []struct {
		name string
		node func() ast.Node
		kind ast.NodeType
	}{
		{"retry outside rescue", func() ast.Node { return ast.At(ast.NewRetry(), pos) }, ast.NodeRetry},
		{"redo outside a loop", func() ast.Node { return ast.At(ast.NewRedo(), pos) }, ast.NodeRedo},
		{"splat in when", func() ast.Node {
			return ast.Case(ast.Int(1), nil, ast.When(ast.Int(2), ast.At(ast.Splat(ast.Arr(ast.Int(1))), pos)))
		}, ast.NodeSplat},
	}
	for _, tc := range cases {
		root := ast.Root(ast.NewScope(ast.ScopeRoot, nil), tc.node())
		_, err := New(DefaultOptions()).Compile(root)
		if !IsNotCompilable(err) {
			t.Fatalf("%s: expected not compilable, got %v", tc.name, err)
		}
		if got, ok := PositionOf(err); !ok || got != pos {
			t.Fatalf("%s: expected position %v, got %v", tc.name, pos, got)
		}
		if got, ok := NodeTypeOf(err); !ok || got != tc.kind {
			t.Fatalf("%s: expected node type %s, got %s", tc.name, tc.kind, got)
		}
		if ReasonOf(err) == "" {
			t.Fatalf("%s: expected a reason", tc.name)
		}
	}

	if _, err := New(DefaultOptions()).Compile(nil); !errorx.IsOfType(err, errorx.IllegalArgument) {
		t.Fatalf("expected illegal argument for a nil root, got %v", err)
	}
}

func TestRetryInsideRescueCompiles(t *testing.T) {
	root := ast.Root(ast.NewScope(ast.ScopeRoot, nil),
		ast.Rescue(ast.Int(1), ast.RescueClause(ast.NewRetry())))
	unit := compile(t, DefaultOptions(), root)
	if !strings.Contains(unit.Listing(), "begin_protected") {
		t.Fatalf("expected a protected region, got:\n%s", unit.Listing())
	}
}

func TestUnitCallConfigs(t *testing.T) {
	s := ast.NewScope(ast.ScopeRoot, nil)
	plain := ast.NewScope(ast.ScopeBlock, s)
	aware := ast.NewScope(ast.ScopeBlock, s)
	m := ast.NewScope(ast.ScopeMethod, nil)
	root := ast.Root(s,
		ast.CallIter(ast.Arr(), "each", ast.Block(plain, ast.DVar("x", 0, 0), "x")),
		ast.CallIter(ast.Arr(), "each", ast.Block(aware, ast.FCall("binding"))),
		ast.Def("m", m, ast.Int(1)),
	)
	unit := compile(t, DefaultOptions(), root)
	if len(unit.Children) != 3 {
		t.Fatalf("expected 3 child units, got %d", len(unit.Children))
	}
	cases := []struct {
		unit   *emit.Unit
		kind   emit.UnitKind
		config inspector.CallConfig
	}{
		{unit, emit.UnitRoot, inspector.FrameFullScopeFull},
		{unit.Children[0], emit.UnitClosure, inspector.FrameNoneScopeNone},
		{unit.Children[1], emit.UnitClosure, inspector.FrameFullScopeFull},
	}
	for i, tc := range cases {
		if tc.unit.Spec.Kind != tc.kind {
			t.Fatalf("unit %d: expected kind %s, got %s", i, tc.kind, tc.unit.Spec.Kind)
		}
		if tc.unit.Spec.CallConfig != tc.config {
			t.Fatalf("unit %d: expected %s, got %s", i, tc.config, tc.unit.Spec.CallConfig)
		}
	}
	// a method whose body needs nothing runs without frame or scope
	if method := unit.Children[2]; method.Spec.Kind != emit.UnitMethod || method.Spec.CallConfig != inspector.FrameNoneScopeNone {
		t.Fatalf("expected a bare method unit, got %s %s", method.Spec.Kind, method.Spec.CallConfig)
	}
}

func TestConservativeInspection(t *testing.T) {
	opts := DefaultOptions()
	opts.Inspector.Conservative = true
	unit := compile(t, opts, ast.Root(ast.NewScope(ast.ScopeRoot, nil), ast.Int(1)))
	if unit.Spec.CallConfig != inspector.FrameFullScopeFull {
		t.Fatalf("expected a conservative unit to get a frame and scope, got %s", unit.Spec.CallConfig)
	}
}
