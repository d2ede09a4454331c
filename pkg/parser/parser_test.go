package parser

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/lowering"
	"rblower/compiler-go/pkg/runtime"
	"rblower/compiler-go/pkg/vm"
)

func parse(t *testing.T, src string) *ast.RootNode {
	t.Helper()
	p, err := New()
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	defer p.Close()
	root, err := p.Parse("test.rb", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return root
}

// find returns every node of type T in tree order.
func find[T ast.Node](root ast.Node) []T {
	var out []T
	ast.Walk(root, func(n ast.Node) bool {
		if v, ok := n.(T); ok {
			out = append(out, v)
		}
		return true
	})
	return out
}

func TestLocalsResolveThroughBlocks(t *testing.T) {
	root := parse(t, "x = 1\n[1].each { |y| x + y }\n")
	if got := root.Scope.Names; len(got) != 1 || got[0] != "x" {
		t.Fatalf("root names mismatch: got=%v", got)
	}
	reads := find[*ast.DVarNode](root)
	if len(reads) != 2 {
		t.Fatalf("expected 2 block reads, got %d", len(reads))
	}
	want := map[string][2]int{"x": {0, 1}, "y": {0, 0}}
	for _, r := range reads {
		if w := want[r.Name]; r.Slot != w[0] || r.Depth != w[1] {
			t.Fatalf("%s: expected slot %d depth %d, got slot %d depth %d", r.Name, w[0], w[1], r.Slot, r.Depth)
		}
	}
}

func TestBlockAssignmentDeclaresLocally(t *testing.T) {
	root := parse(t, "[1].each do |a|\n  b = a\nend\n")
	asgns := find[*ast.DAsgnNode](root)
	if len(asgns) != 1 || asgns[0].Name != "b" || asgns[0].Slot != 1 || asgns[0].Depth != 0 {
		t.Fatalf("expected b in slot 1 of the block, got %#v", asgns)
	}
	if root.Scope.Len() != 0 {
		t.Fatalf("expected the root scope to stay empty, got %v", root.Scope.Names)
	}
}

func TestMethodScopeIsABoundary(t *testing.T) {
	root := parse(t, "x = 1\ndef m\n  x\nend\n")
	calls := find[*ast.VCallNode](root)
	if len(calls) != 1 || calls[0].Name != "x" {
		t.Fatalf("expected x inside the method to be a call, got %#v", calls)
	}
	defs := find[*ast.DefnNode](root)
	if len(defs) != 1 || defs[0].Scope.Kind != ast.ScopeMethod {
		t.Fatalf("expected one method with its own scope")
	}
}

func TestForLoopVariableBelongsToEnclosingScope(t *testing.T) {
	root := parse(t, "for i in [1, 2]\n  j = i\nend\ni + j\n")
	if got := root.Scope.Names; len(got) != 2 || got[0] != "i" || got[1] != "j" {
		t.Fatalf("expected i and j in the root scope, got %v", got)
	}
	loops := find[*ast.ForNode](root)
	if len(loops) != 1 || loops[0].Scope.Len() != 0 {
		t.Fatalf("expected a for loop whose scope declares nothing")
	}
	target, ok := loops[0].Var.(*ast.DAsgnNode)
	if !ok || target.Depth != 1 {
		t.Fatalf("expected the loop variable one scope up, got %#v", loops[0].Var)
	}
}

func TestParameters(t *testing.T) {
	root := parse(t, "def f(a, b = 2, *rest, &blk)\n  a\nend\n")
	def := find[*ast.DefnNode](root)[0]
	args := def.Args
	if args.RequiredCount() != 1 || args.OptionalCount() != 1 || !args.HasRest() || args.Block == nil {
		t.Fatalf("parameter shape mismatch: got=%#v", args)
	}
	if got := def.Scope.Names; len(got) != 4 {
		t.Fatalf("expected four declared parameters, got %v", got)
	}
	if args.Rest.Slot != 2 || args.Block.Slot != 3 {
		t.Fatalf("expected rest in slot 2 and block in slot 3, got %d and %d", args.Rest.Slot, args.Block.Slot)
	}
}

func TestUnsupportedSyntaxBecomesUnknown(t *testing.T) {
	cases := map[string]string{
		"a = 1\na&.succ\n":                 "call",
		"case 1\nin Integer then 2\nend\n": "case_match",
		"def f(a:, b: 1)\n  a\nend\n":      "keyword_parameter",
		"x = 3r\n":                          "rational",
	}
	for src, kind := range cases {
		unknowns := find[*ast.UnknownNode](parse(t, src))
		if len(unknowns) == 0 || unknowns[0].Name != kind {
			t.Fatalf("%q: expected an unknown %s node, got %#v", src, kind, unknowns)
		}
	}
}

func TestSyntaxError(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	defer p.Close()
	_, err = p.Parse("broken.rb", []byte("x = 1\ndef (\n"))
	if !IsSyntaxError(err) {
		t.Fatalf("expected a syntax error, got %v", err)
	}
	loc, ok := LocationOf(err)
	if !ok || loc.Line < 1 {
		t.Fatalf("expected a located error, got %#v", loc)
	}

	_, err = p.Parse("stray.rb", []byte("x = 1\n)\n"))
	if !IsSyntaxError(err) || !strings.Contains(err.Error(), "syntax error, ") {
		t.Fatalf("expected a detailed syntax error, got %v", err)
	}
}

func TestDescribeKind(t *testing.T) {
	cases := []struct {
		kind string
		want string
	}{
		{"end", "'end'"},
		{")", "')'"},
		{"=>", "'=>'"},
		{"block_parameters", "block parameters"},
		{" ", "token"},
	}
	for _, tc := range cases {
		if got := describeKind(tc.kind); got != tc.want {
			t.Fatalf("describeKind(%q) = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestParseContext(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	root, err := p.ParseContext(ctx, "live.rb", []byte("x = 1\nx + 1\n"))
	if err != nil {
		t.Fatalf("parse with a live context: %v", err)
	}
	if len(find[*ast.LocalAsgnNode](root)) != 1 {
		t.Fatalf("expected one local assignment")
	}

	cancel()
	if _, err := p.ParseContext(ctx, "cancelled.rb", []byte("x = 1\n")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// the parser stays usable after a cancelled call
	if _, err := p.Parse("after.rb", []byte("1\n")); err != nil {
		t.Fatalf("parse after cancel: %v", err)
	}
}

func TestLiterals(t *testing.T) {
	root := parse(t, "[0x1f, 1_000, -3, 2.5, 'ab', \"t\\tn\", :sym, 9999999999999999999999]\n")
	arr := find[*ast.ArrayNode](root)[0]
	if len(arr.Elements) != 8 {
		t.Fatalf("expected 8 elements, got %d", len(arr.Elements))
	}
	ints := find[*ast.FixnumNode](root)
	wantInts := []int64{31, 1000, -3}
	for i, w := range wantInts {
		if ints[i].Value != w {
			t.Fatalf("integer %d: expected %d, got %d", i, w, ints[i].Value)
		}
	}
	strs := find[*ast.StrNode](root)
	if strs[0].Value != "ab" || strs[1].Value != "t\tn" {
		t.Fatalf("string mismatch: got %q and %q", strs[0].Value, strs[1].Value)
	}
	if len(find[*ast.BignumNode](root)) != 1 {
		t.Fatalf("expected a bignum literal")
	}
	if syms := find[*ast.SymbolNode](root); len(syms) != 1 || syms[0].Name != "sym" {
		t.Fatalf("symbol mismatch: got %#v", syms)
	}
}

func TestEndToEnd(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		result string
		output string
	}{
		{
			name:   "recursion",
			src:    "def fib(n)\n  n < 2 ? n : fib(n - 1) + fib(n - 2)\nend\nfib(10)\n",
			result: "55",
		},
		{
			name:   "closure accumulates",
			src:    "total = 0\n[1, 2, 3].each do |x|\n  total += x\nend\ntotal\n",
			result: "6",
		},
		{
			name: "class with defaults",
			src: `class Greeter
  def initialize(name)
    @name = name
  end

  def greet(greeting = "Hello")
    "#{greeting}, #{@name}!"
  end
end
puts Greeter.new("Ruby").greet
Greeter.new("Go").greet("Hi")
`,
			result: `"Hi, Go!"`,
			output: "Hello, Ruby!\n",
		},
		{
			name: "rescue binds the exception",
			src: `begin
  raise ArgumentError, "bad"
rescue TypeError
  :type
rescue ArgumentError => e
  e.message
end
`,
			result: `"bad"`,
		},
		{
			name: "rescue variable is visible in blocks",
			src: `begin
  raise ArgumentError, "x"
rescue ArgumentError, TypeError => e
  [1, 2].map { |i| e.message * i }
end
`,
			result: `["x", "xx"]`,
		},
		{
			name:   "swap",
			src:    "a, b = 1, 2\na, b = b, a\n[a, b]\n",
			result: "[2, 1]",
		},
		{
			name:   "modifiers",
			src:    "x = 10\nx = x * 2 if x > 5\nx -= 1 unless x.zero?\nx\n",
			result: "19",
		},
		{
			name:   "while loop",
			src:    "i = 0\nsum = 0\nwhile i < 5\n  i += 1\n  next if i == 3\n  sum += i\nend\nsum\n",
			result: "12",
		},
		{
			name:   "case",
			src:    "def kind(v)\n  case v\n  when 1..5 then :small\n  when Integer then :big\n  else :other\n  end\nend\n[kind(3), kind(50), kind(nil)]\n",
			result: "[:small, :big, :other]",
		},
		{
			name:   "or assign",
			src:    "h = {}\nh[:a] ||= []\nh[:a] << 1\nh[:a]\n",
			result: "[1]",
		},
	}
	for _, tc := range cases {
		root := parse(t, tc.src)
		unit, err := lowering.New(lowering.DefaultOptions()).Compile(root)
		if err != nil {
			t.Fatalf("%s: compile: %v", tc.name, err)
		}
		var out bytes.Buffer
		v, err := vm.New(vm.Options{Stdout: &out}).Run(unit)
		if err != nil {
			t.Fatalf("%s: run: %v", tc.name, err)
		}
		if got := runtime.Inspect(v); got != tc.result {
			t.Fatalf("%s: result mismatch: got=%s want=%s", tc.name, got, tc.result)
		}
		if out.String() != tc.output {
			t.Fatalf("%s: output mismatch: got=%q want=%q", tc.name, out.String(), tc.output)
		}
	}
}
