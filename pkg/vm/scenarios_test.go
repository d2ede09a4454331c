package vm_test

import (
	"testing"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/lowering"
	"rblower/compiler-go/pkg/runtime"
)

func TestDefinedNeverRaises(t *testing.T) {
	checkExprs(t, []expr{
		{"unset ivar", func(s *ast.Scope) ast.Node { return ast.Defined(ast.IVar("@x")) }, "nil"},
		{"set ivar", func(s *ast.Scope) ast.Node {
			return ast.Seq(ast.IAsgn("@x", ast.Int(1)), ast.Defined(ast.IVar("@x")))
		}, `"instance-variable"`},
		{"division is not performed", func(s *ast.Scope) ast.Node {
			return ast.Defined(ast.Call(ast.Int(1), "/", ast.Int(0)))
		}, `"method"`},
		{"missing method", func(s *ast.Scope) ast.Node { return ast.Defined(ast.Call(ast.Int(1), "nope")) }, "nil"},
		{"missing receiver", func(s *ast.Scope) ast.Node {
			return ast.Defined(ast.Call(ast.VCall("nope"), "size"))
		}, "nil"},
		{"private method through self", func(s *ast.Scope) ast.Node { return ast.Defined(ast.VCall("puts")) }, `"method"`},
		{"private method with a receiver", func(s *ast.Scope) ast.Node {
			return ast.Defined(ast.Call(ast.Int(1), "puts"))
		}, "nil"},
		{"constant", func(s *ast.Scope) ast.Node { return ast.Defined(ast.Const("String")) }, `"constant"`},
		{"missing constant", func(s *ast.Scope) ast.Node { return ast.Defined(ast.Const("Nope")) }, "nil"},
		{"qualified under a missing constant", func(s *ast.Scope) ast.Node {
			return ast.Defined(ast.NewColon2(ast.Const("Nope"), "X"))
		}, "nil"},
		{"local", func(s *ast.Scope) ast.Node {
			slot := s.Declare("x")
			return ast.Seq(ast.LAsgn("x", slot, ast.Int(1)), ast.Defined(ast.LVar("x", slot)))
		}, `"local-variable"`},
		{"assignment", func(s *ast.Scope) ast.Node { return ast.Defined(ast.IAsgn("@y", ast.Int(1))) }, `"assignment"`},
		{"assignment is not performed", func(s *ast.Scope) ast.Node {
			return ast.Seq(ast.Defined(ast.IAsgn("@y", ast.Int(1))), ast.IVar("@y"))
		}, "nil"},
		{"literal", func(s *ast.Scope) ast.Node { return ast.Defined(ast.Int(1)) }, `"expression"`},
		{"self", func(s *ast.Scope) ast.Node { return ast.Defined(ast.Self()) }, `"self"`},
		{"unset global", func(s *ast.Scope) ast.Node { return ast.Defined(ast.GVar("$nope")) }, "nil"},
	})
}

func TestEndToEndScenarios(t *testing.T) {
	checkExprs(t, []expr{
		{"constant condition", func(s *ast.Scope) ast.Node {
			return ast.If(ast.True(), ast.Int(1), ast.Int(2))
		}, "1"},
		{"rest capture", func(s *ast.Scope) ast.Node {
			a, b := s.Declare("a"), s.Declare("b")
			masgn := ast.NewMultipleAsgn([]ast.Node{ast.LAsgn("a", a, nil)}, ast.LAsgn("b", b, nil), nil,
				ast.NewToAry(ints(1, 2, 3)))
			return ast.Seq(masgn, ast.Arr(ast.LVar("a", a), ast.LVar("b", b)))
		}, "[1, [2, 3]]"},
		{"post group", func(s *ast.Scope) ast.Node {
			a, b, c := s.Declare("a"), s.Declare("b"), s.Declare("c")
			masgn := ast.NewMultipleAsgn([]ast.Node{ast.LAsgn("a", a, nil)}, ast.LAsgn("b", b, nil),
				[]ast.Node{ast.LAsgn("c", c, nil)}, ast.NewToAry(ints(1, 2, 3, 4)))
			return ast.Seq(masgn, ast.Arr(ast.LVar("a", a), ast.LVar("b", b), ast.LVar("c", c)))
		}, "[1, [2, 3], 4]"},
		{"rescue restores the exception binding", func(s *ast.Scope) ast.Node {
			r, e := s.Declare("r"), s.Declare("e")
			body := ast.Rescue(ast.FCall("raise", ast.Str("x")),
				ast.RescueClause(ast.Seq(ast.LAsgn("e", e, ast.GVar("$!")), ast.Int(42))))
			return ast.Seq(
				ast.LAsgn("r", r, body),
				ast.Arr(ast.LVar("r", r), ast.GVar("$!"), ast.Call(ast.LVar("e", e), "message")),
			)
		}, `[42, nil, "x"]`},
		{"closure mutates an enclosing local", func(s *ast.Scope) ast.Node {
			x := s.Declare("x")
			return ast.Seq(
				ast.LAsgn("x", x, ast.Int(1)),
				ast.CallIter(ints(1, 2), "each", block(s, "y", func(y ast.Node) ast.Node {
					return ast.DAsgn("x", x, 1, ast.Call(ast.DVar("x", x, 1), "+", y))
				})),
				ast.LVar("x", x),
			)
		}, "4"},
	})
}

func TestFastAndGeneralAssignmentAgree(t *testing.T) {
	build := func() *ast.RootNode {
		s := ast.NewScope(ast.ScopeRoot, nil)
		var targets, values, reads []ast.Node
		for i, name := range []string{"a", "b", "c", "d"} {
			slot := s.Declare(name)
			targets = append(targets, ast.LAsgn(name, slot, nil))
			values = append(values, ast.Call(ast.Int(int64(i)), "*", ast.Int(10)))
			reads = append(reads, ast.LVar(name, slot))
		}
		return ast.Root(s, ast.MAsgn(ast.Arr(values...), targets...), ast.Arr(reads...))
	}
	fast := lowering.DefaultOptions()
	general := lowering.DefaultOptions()
	general.FastMultipleAssignment = false

	var results []string
	for _, opts := range []lowering.Options{fast, general} {
		_, _, v, err := run(t, opts, build())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		results = append(results, runtime.Inspect(v))
	}
	if results[0] != results[1] || results[0] != "[0, 10, 20, 30]" {
		t.Fatalf("binding mismatch: fast=%s general=%s", results[0], results[1])
	}
}
