package vm_test

import (
	"bytes"
	"testing"

	"github.com/joomcode/errorx"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/inspector"
	"rblower/compiler-go/pkg/lowering"
	"rblower/compiler-go/pkg/runtime"
	"rblower/compiler-go/pkg/vm"
)

func run(t *testing.T, opts lowering.Options, root *ast.RootNode) (*vm.VM, string, runtime.Value, error) {
	t.Helper()
	unit, err := lowering.New(opts).Compile(root)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var out bytes.Buffer
	machine := vm.New(vm.Options{Stdout: &out})
	v, err := machine.Run(unit)
	return machine, out.String(), v, err
}

type program struct {
	name   string
	root   func() *ast.RootNode
	result string
	output string
}

func checkPrograms(t *testing.T, programs []program) {
	t.Helper()
	for _, tc := range programs {
		_, out, v, err := run(t, lowering.DefaultOptions(), tc.root())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got := runtime.Inspect(v); got != tc.result {
			t.Fatalf("%s: expected result %q, got %q", tc.name, tc.result, got)
		}
		if out != tc.output {
			t.Fatalf("%s: expected output %q, got %q", tc.name, tc.output, out)
		}
	}
}

func inc(name string, slot, depth int) ast.Node {
	return ast.DAsgn(name, slot, depth, ast.Call(ast.DVar(name, slot, depth), "+", ast.Int(1)))
}

func TestControlFlow(t *testing.T) {
	checkPrograms(t, []program{
		{
			// i = 0; while true; begin; i += 1; break if i == 3; ensure; puts i; end; end; i
			name: "ensure runs on break",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil, "i")
				return ast.Root(s,
					ast.LAsgn("i", 0, ast.Int(0)),
					ast.While(ast.True(), ast.Ensure(
						ast.Seq(
							inc("i", 0, 0),
							ast.If(ast.Call(ast.LVar("i", 0), "==", ast.Int(3)), ast.Break(nil), nil),
						),
						ast.FCall("puts", ast.LVar("i", 0)),
					)),
					ast.LVar("i", 0),
				)
			},
			result: "3",
			output: "1\n2\n3\n",
		},
		{
			// n = 0; begin; n += 1; raise "boom" if n < 3; n; rescue; retry; end
			name: "retry restarts the protected body",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil, "n")
				return ast.Root(s,
					ast.LAsgn("n", 0, ast.Int(0)),
					ast.Rescue(
						ast.Seq(
							inc("n", 0, 0),
							ast.If(ast.Call(ast.LVar("n", 0), "<", ast.Int(3)), ast.FCall("raise", ast.Str("boom")), nil),
							ast.LVar("n", 0),
						),
						ast.RescueClause(ast.NewRetry()),
					),
				)
			},
			result: "3",
		},
		{
			// begin; raise ArgumentError, "bad"; rescue TypeError; 1; rescue ArgumentError; $!.message; end
			name: "rescue selects the matching clause",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				return ast.Root(s, ast.Rescue(
					ast.FCall("raise", ast.Const("ArgumentError"), ast.Str("bad")),
					ast.RescueClause(ast.Int(1), ast.Const("TypeError")),
					ast.RescueClause(ast.Call(ast.GVar("$!"), "message"), ast.Const("ArgumentError")),
				))
			},
			result: `"bad"`,
		},
		{
			// while/until with a counter
			name: "until loop",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil, "i", "sum")
				return ast.Root(s,
					ast.LAsgn("i", 0, ast.Int(0)),
					ast.LAsgn("sum", 1, ast.Int(0)),
					ast.Until(ast.Call(ast.LVar("i", 0), ">=", ast.Int(5)), ast.Seq(
						inc("i", 0, 0),
						ast.LAsgn("sum", 1, ast.Call(ast.LVar("sum", 1), "+", ast.LVar("i", 0))),
					)),
					ast.LVar("sum", 1),
				)
			},
			result: "15",
		},
		{
			// x = nil; [x || 1, x && 2, !x]
			name: "short circuit",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil, "x")
				return ast.Root(s,
					ast.LAsgn("x", 0, ast.Nil()),
					ast.Arr(
						ast.Or(ast.LVar("x", 0), ast.Int(1)),
						ast.And(ast.LVar("x", 0), ast.Int(2)),
						ast.Not(ast.LVar("x", 0)),
					),
				)
			},
			result: "[1, nil, true]",
		},
		{
			// catch(:done) { 10.times { |i| throw :done, i if i == 4 }; :never }
			name: "throw unwinds to catch",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				outer := ast.NewScope(ast.ScopeBlock, s)
				inner := ast.NewScope(ast.ScopeBlock, outer)
				return ast.Root(s, ast.FCallIter("catch", ast.Block(outer, ast.Seq(
					ast.CallIter(ast.Int(10), "times", ast.Block(inner,
						ast.If(ast.Call(ast.DVar("i", 0, 0), "==", ast.Int(4)),
							ast.FCall("throw", ast.Sym("done"), ast.DVar("i", 0, 0)), nil),
						"i")),
					ast.Sym("never"),
				)), ast.Sym("done")))
			},
			result: "4",
		},
	})
}

func TestBlocks(t *testing.T) {
	checkPrograms(t, []program{
		{
			// r = []; [1, 2, 3, 4].each { |x| next if x == 2; break if x == 4; r << x }; r
			name: "next and break in a block",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil, "r")
				b := ast.NewScope(ast.ScopeBlock, s)
				return ast.Root(s,
					ast.LAsgn("r", 0, ast.Arr()),
					ast.CallIter(ast.Arr(ast.Int(1), ast.Int(2), ast.Int(3), ast.Int(4)), "each", ast.Block(b, ast.Seq(
						ast.If(ast.Call(ast.DVar("x", 0, 0), "==", ast.Int(2)), ast.Next(nil), nil),
						ast.If(ast.Call(ast.DVar("x", 0, 0), "==", ast.Int(4)), ast.Break(nil), nil),
						ast.Call(ast.DVar("r", 0, 1), "<<", ast.DVar("x", 0, 0)),
					), "x")),
					ast.LVar("r", 0),
				)
			},
			result: "[1, 3]",
		},
		{
			// [1, 2, 3].each { |x| break x * 10 if x == 2 }
			name: "break value becomes the call's value",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				b := ast.NewScope(ast.ScopeBlock, s)
				return ast.Root(s, ast.CallIter(ast.Arr(ast.Int(1), ast.Int(2), ast.Int(3)), "each", ast.Block(b,
					ast.If(ast.Call(ast.DVar("x", 0, 0), "==", ast.Int(2)),
						ast.Break(ast.Call(ast.DVar("x", 0, 0), "*", ast.Int(10))), nil),
					"x")))
			},
			result: "20",
		},
		{
			// [1, 2, 3].map { |x| next 0 if x == 2; x * x }
			name: "next value is the block's value",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				b := ast.NewScope(ast.ScopeBlock, s)
				return ast.Root(s, ast.CallIter(ast.Arr(ast.Int(1), ast.Int(2), ast.Int(3)), "map", ast.Block(b, ast.Seq(
					ast.If(ast.Call(ast.DVar("x", 0, 0), "==", ast.Int(2)), ast.Next(ast.Int(0)), nil),
					ast.Call(ast.DVar("x", 0, 0), "*", ast.DVar("x", 0, 0)),
				), "x")))
			},
			result: "[1, 0, 9]",
		},
		{
			// def twice; yield 1; yield 2; end; t = 0; twice { |v| t += v }; t
			name: "yield reaches the caller's block",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil, "t")
				m := ast.NewScope(ast.ScopeMethod, nil)
				b := ast.NewScope(ast.ScopeBlock, s)
				return ast.Root(s,
					ast.Def("twice", m, ast.Seq(ast.Yield(ast.Int(1)), ast.Yield(ast.Int(2)))),
					ast.LAsgn("t", 0, ast.Int(0)),
					ast.FCallIter("twice", ast.Block(b,
						ast.DAsgn("t", 0, 1, ast.Call(ast.DVar("t", 0, 1), "+", ast.DVar("v", 0, 0))),
						"v")),
					ast.LVar("t", 0),
				)
			},
			result: "3",
		},
		{
			// def m; block_given?; end; [m, m {}]
			name: "block_given? in a method",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				m := ast.NewScope(ast.ScopeMethod, nil)
				b := ast.NewScope(ast.ScopeBlock, s)
				return ast.Root(s,
					ast.Def("m", m, ast.FCall("block_given?")),
					ast.Arr(ast.FCall("m"), ast.FCallIter("m", ast.Block(b, nil))),
				)
			},
			result: "[false, true]",
		},
		{
			// [[1, 2], [3, 4]].map { |a, b| a + b }
			name: "multiple block parameters spread an array",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				b := ast.NewScope(ast.ScopeBlock, s)
				return ast.Root(s, ast.CallIter(
					ast.Arr(ast.Arr(ast.Int(1), ast.Int(2)), ast.Arr(ast.Int(3), ast.Int(4))), "map",
					ast.Block(b, ast.Call(ast.DVar("a", 0, 0), "+", ast.DVar("b", 1, 0)), "a", "b")))
			},
			result: "[3, 7]",
		},
	})
}

func TestMethodsAndClasses(t *testing.T) {
	checkPrograms(t, []program{
		{
			// def m(a, b = (puts "default"; 5)); a + b; end; [m(1, 2), m(1)]
			name: "optional default runs only when the argument is missing",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				m := ast.NewScope(ast.ScopeMethod, nil)
				a := m.Declare("a")
				b := m.Declare("b")
				args := ast.NewArgs(
					[]ast.Node{ast.NewArgument("a", a)},
					[]*ast.OptArgNode{ast.NewOptArg(ast.LAsgn("b", b, ast.Seq(ast.FCall("puts", ast.Str("default")), ast.Int(5))))},
					nil, nil)
				body := ast.Call(ast.LVar("a", a), "+", ast.LVar("b", b))
				return ast.Root(s,
					ast.NewDefn("m", args, body, m),
					ast.Arr(ast.FCall("m", ast.Int(1), ast.Int(2)), ast.FCall("m", ast.Int(1))),
				)
			},
			result: "[3, 6]",
			output: "default\n",
		},
		{
			// class Counter; attr_reader :n; def initialize; @n = 0; end
			//   def bump(by); @n += by; self; end; end
			// Counter.new.bump(2).bump(3).n
			name: "class with instance state",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				cls := ast.NewScope(ast.ScopeClass, nil)
				init := ast.NewScope(ast.ScopeMethod, nil)
				bump := ast.NewScope(ast.ScopeMethod, nil)
				body := ast.Seq(
					ast.FCall("attr_reader", ast.Sym("n")),
					ast.Def("initialize", init, ast.IAsgn("@n", ast.Int(0))),
					ast.Def("bump", bump, ast.Seq(
						ast.IAsgn("@n", ast.Call(ast.IVar("@n"), "+", ast.LVar("by", 0))),
						ast.Self(),
					), "by"),
				)
				return ast.Root(s,
					ast.NewClass(ast.Const("Counter"), nil, body, cls),
					ast.Call(ast.Call(ast.Call(ast.Call(ast.Const("Counter"), "new"), "bump", ast.Int(2)), "bump", ast.Int(3)), "n"),
				)
			},
			result: "5",
		},
		{
			// def classify(n); case n; when 1..9 then "small"; when Integer then "big"; else "other"; end; end
			name: "case dispatches through ===",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				m := ast.NewScope(ast.ScopeMethod, nil)
				body := ast.Case(ast.LVar("n", 0), ast.Str("other"),
					ast.When(ast.Str("small"), ast.Range(ast.Int(1), ast.Int(9))),
					ast.When(ast.Str("big"), ast.Const("Integer")),
				)
				return ast.Root(s,
					ast.Def("classify", m, body, "n"),
					ast.Arr(
						ast.FCall("classify", ast.Int(5)),
						ast.FCall("classify", ast.Int(50)),
						ast.FCall("classify", ast.Str("x")),
					),
				)
			},
			result: `["small", "big", "other"]`,
		},
		{
			// def find(xs); xs.each { |x| return x if x > 1 }; nil; end; find([1, 5, 7])
			name: "return from a block leaves the method",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil)
				m := ast.NewScope(ast.ScopeMethod, nil)
				b := ast.NewScope(ast.ScopeBlock, m)
				body := ast.Seq(
					ast.CallIter(ast.LVar("xs", 0), "each", ast.Block(b,
						ast.If(ast.Call(ast.DVar("x", 0, 0), ">", ast.Int(1)), ast.Return(ast.DVar("x", 0, 0)), nil),
						"x")),
					ast.Nil(),
				)
				return ast.Root(s,
					ast.Def("find", m, body, "xs"),
					ast.FCall("find", ast.Arr(ast.Int(1), ast.Int(5), ast.Int(7))),
				)
			},
			result: "5",
		},
		{
			// a, b = 1, 2; a, b = b, a; [a, b]
			name: "multiple assignment swaps",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil, "a", "b")
				return ast.Root(s,
					ast.MAsgn(ast.Arr(ast.Int(1), ast.Int(2)), ast.LAsgn("a", 0, nil), ast.LAsgn("b", 1, nil)),
					ast.MAsgn(ast.Arr(ast.LVar("b", 1), ast.LVar("a", 0)), ast.LAsgn("a", 0, nil), ast.LAsgn("b", 1, nil)),
					ast.Arr(ast.LVar("a", 0), ast.LVar("b", 1)),
				)
			},
			result: "[2, 1]",
		},
		{
			// h = Hash.new(0); ["a", "b", "a"].each { |w| h[w] += 1 }; h["a"]
			name: "element operator assignment",
			root: func() *ast.RootNode {
				s := ast.NewScope(ast.ScopeRoot, nil, "h")
				b := ast.NewScope(ast.ScopeBlock, s)
				return ast.Root(s,
					ast.LAsgn("h", 0, ast.Call(ast.Const("Hash"), "new", ast.Int(0))),
					ast.CallIter(ast.Arr(ast.Str("a"), ast.Str("b"), ast.Str("a")), "each", ast.Block(b,
						ast.NewOpElementAsgn(ast.DVar("h", 0, 1), ast.Arr(ast.DVar("w", 0, 0)), "+", ast.Int(1)),
						"w")),
					ast.Call(ast.LVar("h", 0), "[]", ast.Str("a")),
				)
			},
			result: "2",
		},
	})
}

func TestUnsoundCallConfig(t *testing.T) {
	// send(:block_given?) hides the frame-aware name from the inspector,
	// so the root unit runs without a frame.
	s := ast.NewScope(ast.ScopeRoot, nil)
	root := ast.Root(s, ast.FCall("send", ast.Sym("block_given?")))
	_, _, _, err := run(t, lowering.DefaultOptions(), root)
	if err == nil || !errorx.IsOfType(err, vm.Unsound) {
		t.Fatalf("expected an unsound call config error, got %v", err)
	}

	// Dropping block_given? from the frame-aware list has the same effect
	// on a direct call.
	opts := lowering.DefaultOptions()
	cfg := inspector.DefaultConfig()
	cfg.FrameAwareMethods = []string{"binding"}
	opts.Inspector = cfg
	root = ast.Root(ast.NewScope(ast.ScopeRoot, nil), ast.FCall("block_given?"))
	_, _, _, err = run(t, opts, root)
	if err == nil || !errorx.IsOfType(err, vm.Unsound) {
		t.Fatalf("expected an unsound call config error, got %v", err)
	}

	// The default configuration gives the unit a frame.
	root = ast.Root(ast.NewScope(ast.ScopeRoot, nil), ast.FCall("block_given?"))
	_, _, v, err := run(t, lowering.DefaultOptions(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := runtime.Inspect(v); got != "false" {
		t.Fatalf("expected false, got %s", got)
	}
}

func TestFrameReadersGetAFrame(t *testing.T) {
	// def f; __method__; end; [f, block_given?]
	s := ast.NewScope(ast.ScopeRoot, nil)
	root := ast.Root(s,
		ast.Def("f", ast.NewScope(ast.ScopeMethod, nil), ast.VCall("__method__")),
		ast.Arr(ast.FCall("f"), ast.FCall("block_given?")),
	)
	_, _, v, err := run(t, lowering.DefaultOptions(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := runtime.Inspect(v); got != "[:f, false]" {
		t.Fatalf("result mismatch: got=%s want=[:f, false]", got)
	}
}

func TestUncaughtException(t *testing.T) {
	s := ast.NewScope(ast.ScopeRoot, nil)
	root := ast.Root(s, ast.Call(ast.Int(1), "/", ast.Int(0)))
	_, _, _, err := run(t, lowering.DefaultOptions(), root)
	if !vm.IsRaise(err, "ZeroDivisionError") {
		t.Fatalf("expected ZeroDivisionError, got %v", err)
	}
	if !vm.IsRaise(err, "StandardError") {
		t.Fatalf("expected ZeroDivisionError to be a StandardError")
	}
}

func TestExitAndAtExit(t *testing.T) {
	// at_exit { puts "first" }; at_exit { puts "second" }; puts "body"; exit 3
	s := ast.NewScope(ast.ScopeRoot, nil)
	b1 := ast.NewScope(ast.ScopeBlock, s)
	b2 := ast.NewScope(ast.ScopeBlock, s)
	root := ast.Root(s,
		ast.FCallIter("at_exit", ast.Block(b1, ast.FCall("puts", ast.Str("first")))),
		ast.FCallIter("at_exit", ast.Block(b2, ast.FCall("puts", ast.Str("second")))),
		ast.FCall("puts", ast.Str("body")),
		ast.FCall("exit", ast.Int(3)),
	)
	machine, out, _, err := run(t, lowering.DefaultOptions(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "body\nsecond\nfirst\n"; out != want {
		t.Fatalf("expected output %q, got %q", want, out)
	}
	if machine.ExitStatus() != 3 {
		t.Fatalf("expected exit status 3, got %d", machine.ExitStatus())
	}
}

func TestGlobals(t *testing.T) {
	s := ast.NewScope(ast.ScopeRoot, nil)
	root := ast.Root(s, ast.GAsgn("$answer", ast.Call(ast.Int(6), "*", ast.Int(7))))
	machine, _, _, err := run(t, lowering.DefaultOptions(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := runtime.Inspect(machine.Global("$answer")); got != "42" {
		t.Fatalf("expected 42, got %s", got)
	}
}
