package vm_test

import (
	"testing"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/lowering"
	"rblower/compiler-go/pkg/runtime"
	"rblower/compiler-go/pkg/vm"
)

type expr struct {
	name string
	node func(s *ast.Scope) ast.Node
	want string
}

// block builds a one-parameter block over s.
func block(s *ast.Scope, param string, body func(x ast.Node) ast.Node) *ast.IterNode {
	b := ast.NewScope(ast.ScopeBlock, s)
	b.Declare(param)
	return ast.Block(b, body(ast.DVar(param, 0, 0)), param)
}

func ints(ns ...int64) *ast.ArrayNode {
	out := make([]ast.Node, len(ns))
	for i, n := range ns {
		out[i] = ast.Int(n)
	}
	return ast.Arr(out...)
}

func checkExprs(t *testing.T, exprs []expr) {
	t.Helper()
	for _, tc := range exprs {
		s := ast.NewScope(ast.ScopeRoot, nil)
		_, _, v, err := run(t, lowering.DefaultOptions(), ast.Root(s, tc.node(s)))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got := runtime.Inspect(v); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestArrayMethods(t *testing.T) {
	checkExprs(t, []expr{
		{"sort", func(s *ast.Scope) ast.Node { return ast.Call(ints(3, 1, 2), "sort") }, "[1, 2, 3]"},
		{"uniq", func(s *ast.Scope) ast.Node { return ast.Call(ints(1, 1, 2, 1), "uniq") }, "[1, 2]"},
		{"flatten", func(s *ast.Scope) ast.Node {
			return ast.Call(ast.Arr(ast.Int(1), ast.Arr(ast.Int(2), ast.Arr(ast.Int(3)))), "flatten")
		}, "[1, 2, 3]"},
		{"join", func(s *ast.Scope) ast.Node { return ast.Call(ints(1, 2, 3), "join", ast.Str("-")) }, `"1-2-3"`},
		{"inject with an operator", func(s *ast.Scope) ast.Node { return ast.Call(ints(1, 2, 3, 4), "inject", ast.Sym("+")) }, "10"},
		{"select", func(s *ast.Scope) ast.Node {
			return ast.CallIter(ints(1, 2, 3, 4), "select", block(s, "x", func(x ast.Node) ast.Node {
				return ast.Call(x, "even?")
			}))
		}, "[2, 4]"},
		{"each_slice without a block", func(s *ast.Scope) ast.Node {
			return ast.Call(ints(1, 2, 3, 4, 5), "each_slice", ast.Int(2))
		}, "[[1, 2], [3, 4], [5]]"},
		{"negative index", func(s *ast.Scope) ast.Node { return ast.Call(ints(1, 2, 3), "[]", ast.Int(-1)) }, "3"},
		{"range index", func(s *ast.Scope) ast.Node {
			return ast.Call(ints(1, 2, 3, 4), "[]", ast.Range(ast.Int(1), ast.Int(2)))
		}, "[2, 3]"},
		{"out of range", func(s *ast.Scope) ast.Node { return ast.Call(ints(1), "[]", ast.Int(5)) }, "nil"},
		{"difference", func(s *ast.Scope) ast.Node { return ast.Call(ints(1, 2, 3), "-", ints(2)) }, "[1, 3]"},
		{"max_by", func(s *ast.Scope) ast.Node {
			return ast.CallIter(ints(3, -7, 5), "max_by", block(s, "x", func(x ast.Node) ast.Node {
				return ast.Call(x, "abs")
			}))
		}, "-7"},
		{"zip", func(s *ast.Scope) ast.Node { return ast.Call(ints(1, 2), "zip", ints(3, 4)) }, "[[1, 3], [2, 4]]"},
		{"include?", func(s *ast.Scope) ast.Node { return ast.Call(ints(1, 2), "include?", ast.Int(2)) }, "true"},
	})
}

func TestHashMethods(t *testing.T) {
	pairs := func() *ast.HashNode {
		return ast.Hsh(ast.Sym("a"), ast.Int(1), ast.Sym("b"), ast.Int(2))
	}
	checkExprs(t, []expr{
		{"lookup", func(s *ast.Scope) ast.Node { return ast.Call(pairs(), "[]", ast.Sym("b")) }, "2"},
		{"missing key", func(s *ast.Scope) ast.Node { return ast.Call(pairs(), "[]", ast.Sym("z")) }, "nil"},
		{"keys keep insertion order", func(s *ast.Scope) ast.Node { return ast.Call(pairs(), "keys") }, "[:a, :b]"},
		{"fetch default", func(s *ast.Scope) ast.Node {
			return ast.Call(pairs(), "fetch", ast.Sym("z"), ast.Int(0))
		}, "0"},
		{"transform_values", func(s *ast.Scope) ast.Node {
			return ast.Call(ast.CallIter(pairs(), "transform_values", block(s, "v", func(v ast.Node) ast.Node {
				return ast.Call(v, "*", ast.Int(10))
			})), "values")
		}, "[10, 20]"},
		{"tally", func(s *ast.Scope) ast.Node {
			return ast.Call(ast.Call(ast.Arr(ast.Str("x"), ast.Str("y"), ast.Str("x")), "tally"), "[]", ast.Str("x"))
		}, "2"},
		{"size", func(s *ast.Scope) ast.Node { return ast.Call(pairs(), "size") }, "2"},
	})
}

func TestStringMethods(t *testing.T) {
	checkExprs(t, []expr{
		{"upcase", func(s *ast.Scope) ast.Node { return ast.Call(ast.Str("abc"), "upcase") }, `"ABC"`},
		{"split", func(s *ast.Scope) ast.Node { return ast.Call(ast.Str(" a  b c "), "split") }, `["a", "b", "c"]`},
		{"gsub", func(s *ast.Scope) ast.Node {
			return ast.Call(ast.Str("a-b-c"), "gsub", ast.Str("-"), ast.Str("+"))
		}, `"a+b+c"`},
		{"repeat", func(s *ast.Scope) ast.Node { return ast.Call(ast.Str("ab"), "*", ast.Int(3)) }, `"ababab"`},
		{"interpolation", func(s *ast.Scope) ast.Node {
			return ast.DStr(ast.Str("n="), ast.Interp(ast.Call(ast.Int(2), "+", ast.Int(3))))
		}, `"n=5"`},
		{"to_sym", func(s *ast.Scope) ast.Node { return ast.Call(ast.Str("abc"), "to_sym") }, ":abc"},
		{"succ", func(s *ast.Scope) ast.Node { return ast.Call(ast.Str("az"), "succ") }, `"ba"`},
	})
}

func TestNumericMethods(t *testing.T) {
	checkExprs(t, []expr{
		{"integer division floors", func(s *ast.Scope) ast.Node { return ast.Call(ast.Int(-7), "/", ast.Int(2)) }, "-4"},
		{"modulo follows the divisor", func(s *ast.Scope) ast.Node { return ast.Call(ast.Int(-7), "%", ast.Int(3)) }, "2"},
		{"overflow promotes", func(s *ast.Scope) ast.Node {
			return ast.Call(ast.Int(2), "**", ast.Int(70))
		}, "1180591620717411303424"},
		{"mixed arithmetic", func(s *ast.Scope) ast.Node { return ast.Call(ast.Int(1), "+", ast.Flt(0.5)) }, "1.5"},
		{"range sum", func(s *ast.Scope) ast.Node { return ast.Call(ast.Range(ast.Int(1), ast.Int(100)), "sum") }, "5050"},
		{"exclusive range to_a", func(s *ast.Scope) ast.Node {
			return ast.Call(ast.XRange(ast.Int(1), ast.Int(4)), "to_a")
		}, "[1, 2, 3]"},
	})
}

func TestExceptionFields(t *testing.T) {
	// begin; {}.fetch(:k); rescue KeyError; $!.key; end
	checkExprs(t, []expr{
		{"KeyError#key", func(s *ast.Scope) ast.Node {
			return ast.Rescue(
				ast.Call(ast.Hsh(), "fetch", ast.Sym("k")),
				ast.RescueClause(ast.Call(ast.GVar("$!"), "key"), ast.Const("KeyError")),
			)
		}, ":k"},
		{"NoMethodError#name", func(s *ast.Scope) ast.Node {
			return ast.Rescue(
				ast.Call(ast.Int(1), "nope"),
				ast.RescueClause(ast.Call(ast.GVar("$!"), "name"), ast.Const("NoMethodError")),
			)
		}, ":nope"},
		{"Math::DomainError is an ArgumentError", func(s *ast.Scope) ast.Node {
			return ast.Rescue(
				ast.Call(ast.Const("Math"), "sqrt", ast.Int(-1)),
				ast.RescueClause(ast.Str("domain"), ast.Const("ArgumentError")),
			)
		}, `"domain"`},
	})

	s := ast.NewScope(ast.ScopeRoot, nil)
	_, _, _, err := run(t, lowering.DefaultOptions(), ast.Root(s, ast.FCall("raise", ast.Str("plain"))))
	if !vm.IsRaise(err, "RuntimeError") {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
}
