package inspector

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"rblower/compiler-go/pkg/ast"
)

func TestInspectFlags(t *testing.T) {
	blockScope := func() *ast.Scope { return ast.NewScope(ast.ScopeBlock, ast.NewScope(ast.ScopeRoot, nil)) }
	cases := []struct {
		name   string
		node   func() ast.Node
		want   Flag
		config CallConfig
	}{
		{"literal", func() ast.Node { return ast.Int(1) }, 0, FrameNoneScopeNone},
		{"plain call", func() ast.Node { return ast.Call(ast.Int(1), "+", ast.Int(2)) }, 0, FrameNoneScopeNone},
		{"block_given?", func() ast.Node { return ast.FCall("block_given?") }, FrameAware, FrameFullScopeNone},
		{"__method__", func() ast.Node { return ast.VCall("__method__") }, FrameAware, FrameFullScopeNone},
		{"local_variables", func() ast.Node { return ast.VCall("local_variables") }, ScopeAware, FrameNoneScopeFull},
		{"eval", func() ast.Node { return ast.FCall("eval", ast.Str("1")) }, FrameAware | Eval | ScopeAware, FrameFullScopeFull},
		{"closure", func() ast.Node {
			return ast.CallIter(ast.Arr(), "each", ast.Block(blockScope(), nil))
		}, Closure, FrameFullScopeFull},
		{"last line", func() ast.Node { return ast.GVar("$_") }, LastLine, FrameFullScopeNone},
		{"class variable", func() ast.Node { return ast.CVar("@@x") }, ClassVar, FrameNoneScopeNone},
		{"constant", func() ast.Node { return ast.Const("X") }, Constant, FrameNoneScopeNone},
		{"Proc.new", func() ast.Node { return ast.Call(ast.Const("Proc"), "new") }, Constant | FrameBlock, FrameFullScopeNone},
		{"method definition", func() ast.Node {
			return ast.Def("m", ast.NewScope(ast.ScopeMethod, nil), nil)
		}, Method | FrameVisibility | ScopeAware, FrameFullScopeFull},
		{"retry", func() ast.Node { return ast.NewRetry() }, Retry, FrameNoneScopeNone},
		{"literal when", func() ast.Node {
			return ast.Case(ast.Int(1), nil, ast.When(ast.Nil(), ast.Int(1), ast.Str("x")))
		}, 0, FrameNoneScopeNone},
		{"computed when", func() ast.Node {
			return ast.Case(ast.Int(1), nil, ast.When(ast.Nil(), ast.Const("Integer")))
		}, Constant | BackRef, FrameFullScopeNone},
	}
	for _, tc := range cases {
		in := New(tc.name, DefaultConfig())
		in.Inspect(tc.node())
		rec := in.Record()
		if rec.Flags() != tc.want {
			t.Fatalf("%s: expected flags %s, got %s", tc.name, tc.want, rec.Flags())
		}
		if rec.CallConfig() != tc.config {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.config, rec.CallConfig())
		}
	}
}

func TestDisablingNodes(t *testing.T) {
	nodes := map[string]func() ast.Node{
		"rescue": func() ast.Node { return ast.Rescue(ast.Int(1), ast.RescueClause(ast.Nil())) },
		"ensure": func() ast.Node { return ast.Ensure(ast.Int(1), ast.Int(2)) },
		"defined? of a call": func() ast.Node {
			return ast.Defined(ast.Call(ast.Int(1), "foo"))
		},
	}
	for name, node := range nodes {
		in := New(name, DefaultConfig())
		in.Inspect(node())
		if !in.Record().All() {
			t.Fatalf("%s: expected full conservatism, got %s", name, in.Record())
		}
	}

	in := New("fast defined", DefaultConfig())
	in.Inspect(ast.Defined(ast.IVar("@x")))
	if in.Record().All() {
		t.Fatalf("expected defined?(@x) to keep the record, got %s", in.Record())
	}
}

func TestCustomMethodLists(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameAwareMethods = []string{"my_frame_reader"}
	cfg.ScopeAwareMethods = []string{"my_scope_reader"}

	in := New("custom", cfg)
	in.Inspect(ast.FCall("block_given?"))
	if in.Record().Flags() != 0 {
		t.Fatalf("expected block_given? to be ordinary, got %s", in.Record())
	}
	in.Inspect(ast.VCall("my_frame_reader"))
	in.Inspect(ast.VCall("my_scope_reader"))
	if want := FrameAware | ScopeAware; in.Record().Flags() != want {
		t.Fatalf("expected %s, got %s", want, in.Record())
	}
}

func TestConservativeConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conservative = true
	rec := InspectBody("all", cfg, nil, ast.Int(1))
	if !rec.All() || rec.CallConfig() != FrameFullScopeFull {
		t.Fatalf("expected full conservatism, got %s", rec)
	}
}

func TestLoopWithClosureIsNonLocal(t *testing.T) {
	root := ast.NewScope(ast.ScopeRoot, nil)
	body := ast.CallIter(ast.Arr(), "each", ast.Block(ast.NewScope(ast.ScopeBlock, root), ast.Break(nil)))
	loop := ast.While(ast.True(), body)
	in := New("loop", DefaultConfig())
	in.Inspect(loop)
	if !in.ContainsNonLocalFlow(loop) {
		t.Fatalf("expected the loop to be marked for non-local exits")
	}
	if !in.Record().Has(Closure | ScopeAware) {
		t.Fatalf("expected closure and scope flags, got %s", in.Record())
	}

	plain := ast.While(ast.True(), ast.Int(1))
	in = New("plain loop", DefaultConfig())
	in.Inspect(plain)
	if in.ContainsNonLocalFlow(plain) {
		t.Fatalf("expected a plain loop to stay local")
	}
}

func TestFlagString(t *testing.T) {
	cases := map[Flag]string{
		0:                    "NONE",
		AllFlags:             "ALL",
		Closure | ScopeAware: "CLOSURE|SCOPE_AWARE",
		FrameAware:           "FRAME_AWARE",
		BackRef | LastLine:   "BACKREF|LASTLINE",
	}
	for f, want := range cases {
		if got := f.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestDumpLogsFlags(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Dump = true
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	in := New("dumped", cfg)
	in.Inspect(ast.FCall("block_given?"))
	out := buf.String()
	if !strings.Contains(out, "inspector flag") || !strings.Contains(out, "FRAME_AWARE") {
		t.Fatalf("expected a flag entry in the dump, got %q", out)
	}
	if !strings.Contains(out, "body=dumped") {
		t.Fatalf("expected the body name in the dump, got %q", out)
	}
}

func TestFlagsOnlyAccumulate(t *testing.T) {
	root := ast.NewScope(ast.ScopeRoot, nil)
	parts := []func() ast.Node{
		func() ast.Node { return ast.FCall("block_given?") },
		func() ast.Node { return ast.Const("X") },
		func() ast.Node { return ast.CallIter(ast.Arr(), "each", ast.Block(ast.NewScope(ast.ScopeBlock, root), nil)) },
		func() ast.Node { return ast.Ensure(ast.Int(1), ast.Int(2)) },
		func() ast.Node { return ast.GVar("$~") },
	}
	whole := New("whole", DefaultConfig())
	var prev Flag
	for i, part := range parts {
		alone := New("part", DefaultConfig())
		alone.Inspect(part())
		whole.Inspect(part())
		got := whole.Record().Flags()
		if got&prev != prev {
			t.Fatalf("step %d: flags were cleared: before=%s after=%s", i, prev, got)
		}
		if want := alone.Record().Flags(); got&want != want {
			t.Fatalf("step %d: expected %s to include %s", i, got, want)
		}
		prev = got
	}
	if !whole.Record().All() {
		t.Fatalf("expected the ensure to leave every flag set, got %s", whole.Record())
	}
}
