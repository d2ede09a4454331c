// Package inspector runs the static pre-pass that decides which calling
// convention a method or closure body may use. It is deliberately
// conservative: any node whose effects it cannot prove local sets every flag.
package inspector

import (
	"log/slog"
	"strings"

	"github.com/emirpasic/gods/sets/hashset"

	"rblower/compiler-go/pkg/ast"
)

// DefaultFrameAwareMethods read or write the caller's frame.
var DefaultFrameAwareMethods = []string{
	"eval", "module_eval", "class_eval", "instance_eval", "binding",
	"public", "private", "protected", "module_function",
	"block_given?", "iterator?", "__method__",
}

// DefaultScopeAwareMethods capture the caller's local variable scope.
var DefaultScopeAwareMethods = []string{
	"eval", "module_eval", "class_eval", "instance_eval",
	"module_exec", "class_exec", "instance_exec", "binding", "local_variables",
}

type Config struct {
	// Conservative starts every inspection with all flags set.
	Conservative      bool
	Dump              bool
	FrameAwareMethods []string
	ScopeAwareMethods []string
	Logger            *slog.Logger
}

// DefaultConfig returns the stock method lists with dumping off.
func DefaultConfig() Config {
	return Config{
		FrameAwareMethods: append([]string(nil), DefaultFrameAwareMethods...),
		ScopeAwareMethods: append([]string(nil), DefaultScopeAwareMethods...),
	}
}

type Inspector struct {
	name       string
	cfg        Config
	logger     *slog.Logger
	frameAware *hashset.Set
	scopeAware *hashset.Set
	record     Record
	nonLocal   map[ast.Node]struct{}
}

func New(name string, cfg Config) *Inspector {
	if cfg.FrameAwareMethods == nil {
		cfg.FrameAwareMethods = DefaultFrameAwareMethods
	}
	if cfg.ScopeAwareMethods == nil {
		cfg.ScopeAwareMethods = DefaultScopeAwareMethods
	}
	in := &Inspector{
		name:       name,
		cfg:        cfg,
		logger:     cfg.Logger,
		frameAware: hashset.New(),
		scopeAware: hashset.New(),
		nonLocal:   make(map[ast.Node]struct{}),
	}
	if in.logger == nil {
		in.logger = slog.Default()
	}
	for _, m := range cfg.FrameAwareMethods {
		in.frameAware.Add(m)
	}
	for _, m := range cfg.ScopeAwareMethods {
		in.scopeAware.Add(m)
	}
	if cfg.Conservative {
		in.disable(nil)
	}
	return in
}

func (in *Inspector) Record() Record { return in.record }

// ContainsNonLocalFlow reports whether loop may be exited by a closure or
// eval inside its body. It is diagnostic only: lowering compiles every
// loop the same way, because a break inside a block ends the block's
// call, not the enclosing loop, and the loop itself is already marked
// ScopeAware so its locals live in the heap scope.
func (in *Inspector) ContainsNonLocalFlow(loop ast.Node) bool {
	_, ok := in.nonLocal[loop]
	return ok
}

// SubInspect walks nodes with a fresh inspector sharing this one's config.
func (in *Inspector) SubInspect(nodes ...ast.Node) *Inspector {
	sub := New(in.name, in.cfg)
	for _, n := range nodes {
		sub.Inspect(n)
	}
	return sub
}

// Integrate folds another inspection into this one.
func (in *Inspector) Integrate(other *Inspector) {
	in.record.flags |= other.record.flags
	for loop := range other.nonLocal {
		in.nonLocal[loop] = struct{}{}
	}
}

func (in *Inspector) set(node ast.Node, f Flag) {
	if in.cfg.Dump && in.record.flags&f != f {
		in.logger.Debug("inspector flag",
			"body", in.name, "flag", f.String(), "node", node.NodeType(), "pos", node.Position().String())
	}
	in.record.flags |= f
}

func (in *Inspector) disable(node ast.Node) {
	if in.cfg.Dump && in.record.flags != AllFlags {
		attrs := []any{"body", in.name}
		if node != nil {
			attrs = append(attrs, "node", node.NodeType(), "pos", node.Position().String())
		}
		in.logger.Debug("inspector disabled", attrs...)
	}
	in.record.flags = AllFlags
}

func (in *Inspector) inspectAll(nodes []ast.Node) {
	for _, n := range nodes {
		in.Inspect(n)
	}
}

// Inspect accumulates the flags implied by node and its children.
func (in *Inspector) Inspect(node ast.Node) {
	if ast.IsNil(node) {
		return
	}
	switch n := node.(type) {
	case *ast.NilNode, *ast.TrueNode, *ast.FalseNode, *ast.SelfNode, *ast.FixnumNode,
		*ast.BignumNode, *ast.FloatNode, *ast.StrNode, *ast.SymbolNode, *ast.RegexpNode,
		*ast.XStrNode, *ast.ZArrayNode, *ast.LocalVarNode, *ast.DVarNode, *ast.InstVarNode,
		*ast.ArgumentNode, *ast.BlockArgNode, *ast.RestArgNode, *ast.StarNode,
		*ast.NthRefNode, *ast.RedoNode, *ast.Colon3Node, *ast.VAliasNode:
		return

	case *ast.DStrNode:
		in.inspectAll(n.Parts)
	case *ast.DSymbolNode:
		in.inspectAll(n.Parts)
	case *ast.DRegexpNode:
		in.inspectAll(n.Parts)
	case *ast.DXStrNode:
		in.inspectAll(n.Parts)
	case *ast.EvStrNode:
		in.Inspect(n.Body)
	case *ast.ArrayNode:
		in.inspectAll(n.Elements)
	case *ast.HashNode:
		in.inspectAll(n.Pairs)
	case *ast.DotNode:
		in.Inspect(n.Begin)
		in.Inspect(n.End)
	case *ast.BlockNode:
		in.inspectAll(n.Statements)
	case *ast.NewlineNode:
		in.Inspect(n.Next)
	case *ast.BeginNode:
		in.Inspect(n.Body)

	case *ast.LocalAsgnNode:
		in.Inspect(n.Value)
	case *ast.DAsgnNode:
		in.Inspect(n.Value)
	case *ast.InstAsgnNode:
		in.Inspect(n.Value)
	case *ast.GlobalAsgnNode:
		switch n.Name {
		case "$_":
			in.set(n, LastLine)
		case "$~":
			in.set(n, BackRef)
		}
		in.Inspect(n.Value)
	case *ast.GlobalVarNode:
		switch n.Name {
		case "$_", "$LAST_READ_LINE":
			in.set(n, LastLine)
		case "$~", "$`", "$'", "$+", "$LAST_MATCH_INFO", "$PREMATCH", "$POSTMATCH", "$LAST_PAREN_MATCH":
			in.set(n, BackRef)
		}
	case *ast.ClassVarNode:
		in.set(n, ClassVar)
	case *ast.ClassVarAsgnNode:
		in.Inspect(n.Value)
		in.set(n, ClassVar)
	case *ast.ClassVarDeclNode:
		in.Inspect(n.Value)
		in.set(n, ClassVar)
	case *ast.ConstNode:
		in.set(n, Constant)
	case *ast.ConstDeclNode:
		in.Inspect(n.Path)
		in.Inspect(n.Value)
		in.set(n, Constant)
	case *ast.Colon2Node:
		in.Inspect(n.Left)
	case *ast.BackRefNode:
		in.set(n, BackRef)

	case *ast.AndNode:
		in.Inspect(n.First)
		in.Inspect(n.Second)
	case *ast.OrNode:
		in.Inspect(n.First)
		in.Inspect(n.Second)
	case *ast.NotNode:
		in.Inspect(n.Condition)
	case *ast.IfNode:
		in.Inspect(n.Condition)
		in.Inspect(n.Then)
		in.Inspect(n.Else)
	case *ast.WhileNode:
		in.inspectLoop(n, n.Condition, n.Body)
	case *ast.UntilNode:
		in.inspectLoop(n, n.Condition, n.Body)
	case *ast.CaseNode:
		in.Inspect(n.Subject)
		for _, w := range n.Whens {
			in.Inspect(w)
		}
		in.Inspect(n.Else)
	case *ast.WhenNode:
		in.Inspect(n.Body)
		in.inspectAll(n.Expressions)
		for _, expr := range n.Expressions {
			if !isPlainLiteral(expr) {
				in.set(n, BackRef)
				break
			}
		}
	case *ast.ForNode:
		in.set(n, Closure|ScopeAware)
		in.Inspect(n.Iter)
		in.Inspect(n.Body)
		in.Inspect(n.Var)
	case *ast.BreakNode:
		in.Inspect(n.Value)
	case *ast.NextNode:
		in.Inspect(n.Value)
	case *ast.ReturnNode:
		in.Inspect(n.Value)
	case *ast.RetryNode:
		in.set(n, Retry)
	case *ast.FlipNode:
		in.Inspect(n.Begin)
		in.Inspect(n.End)
	case *ast.MatchNode:
		in.Inspect(n.Regexp)
		in.set(n, BackRef)
	case *ast.Match2Node:
		in.Inspect(n.Receiver)
		in.Inspect(n.Value)
		in.set(n, BackRef)
	case *ast.Match3Node:
		in.Inspect(n.Receiver)
		in.Inspect(n.Value)
		in.set(n, BackRef)
	case *ast.DefinedNode:
		in.Inspect(n.Expression)
		if !HasFastDefinedCheck(n.Expression) {
			in.disable(n)
		}

	case *ast.CallNode:
		in.Inspect(n.Receiver)
		if n.Name == "new" {
			if c, ok := n.Receiver.(*ast.ConstNode); ok && c.Name == "Proc" {
				in.set(n, FrameBlock)
			}
		}
		if ast.IsNil(n.Args) && ast.IsNil(n.Iter) {
			switch n.Receiver.(type) {
			case *ast.FixnumNode, *ast.FloatNode, *ast.BignumNode, *ast.StrNode, *ast.SymbolNode:
				return
			}
		}
		in.Inspect(n.Args)
		in.Inspect(n.Iter)
		in.inspectName(n, n.Name)
	case *ast.FCallNode:
		in.Inspect(n.Args)
		in.Inspect(n.Iter)
		in.inspectName(n, n.Name)
	case *ast.VCallNode:
		in.inspectName(n, n.Name)
	case *ast.AttrAssignNode:
		in.Inspect(n.Args)
		in.Inspect(n.Receiver)
	case *ast.SuperNode:
		in.Inspect(n.Args)
		in.Inspect(n.Iter)
		in.set(n, Super)
	case *ast.ZSuperNode:
		in.set(n, ScopeAware|ZSuper)
		in.Inspect(n.Iter)
	case *ast.YieldNode:
		in.Inspect(n.Args)
	case *ast.BlockPassNode:
		in.Inspect(n.Body)
	case *ast.SplatNode:
		in.Inspect(n.Value)
	case *ast.ArgsCatNode:
		in.Inspect(n.First)
		in.Inspect(n.Second)
	case *ast.ArgsPushNode:
		in.Inspect(n.First)
		in.Inspect(n.Second)
	case *ast.SValueNode:
		in.Inspect(n.Value)
	case *ast.ToAryNode:
		in.Inspect(n.Value)
	case *ast.IterNode:
		// The block body gets its own inspection when it is lowered.
		in.set(n, Closure)
	case *ast.LambdaNode:
		in.set(n, Closure)

	case *ast.MultipleAsgnNode:
		in.inspectAll(n.Head)
		in.Inspect(n.Rest)
		in.inspectAll(n.Post)
		in.Inspect(n.Value)
	case *ast.OpAsgnNode:
		in.Inspect(n.Receiver)
		in.Inspect(n.Value)
	case *ast.OpAsgnAndNode:
		in.Inspect(n.First)
		in.Inspect(n.Second)
	case *ast.OpAsgnOrNode:
		if HasFastDefinedCheck(n.First) {
			in.Inspect(n.Second)
		} else {
			in.Inspect(n.First)
			in.Inspect(n.Second)
			in.disable(n)
		}
	case *ast.OpElementAsgnNode:
		in.Inspect(n.Args)
		in.Inspect(n.Receiver)
		in.Inspect(n.Value)

	case *ast.DefnNode:
		in.set(n, Method|FrameVisibility|ScopeAware)
	case *ast.DefsNode:
		in.Inspect(n.Receiver)
		in.set(n, Method|FrameVisibility|ScopeAware)
	case *ast.ClassNode:
		in.set(n, Class|ScopeAware)
		in.Inspect(n.Path)
		in.Inspect(n.Super)
	case *ast.ModuleNode:
		in.set(n, Class|ScopeAware)
		in.Inspect(n.Path)
	case *ast.SClassNode:
		in.set(n, Class|FrameAware|ScopeAware)
		in.Inspect(n.Receiver)
	case *ast.AliasNode, *ast.UndefNode:
		in.set(n, Method)
	case *ast.PreExeNode:
		in.set(n, Closure|ScopeAware)
		in.Inspect(n.Body)
	case *ast.PostExeNode:
		in.set(n, Closure|ScopeAware)
		in.Inspect(n.Body)

	case *ast.ArgsNode:
		if n.Block != nil {
			in.set(n, BlockArg)
		}
		if len(n.Optional) > 0 {
			in.set(n, OptArgs)
			for _, opt := range n.Optional {
				in.Inspect(opt)
			}
		}
		if n.Rest != nil {
			in.set(n, RestArg)
		}
		// Destructuring block parameters.
		for _, req := range n.Required {
			if _, ok := req.(*ast.MultipleAsgnNode); ok {
				in.Inspect(req)
			}
		}
	case *ast.OptArgNode:
		in.Inspect(n.Assignment)

	case *ast.RescueNode:
		in.Inspect(n.Body)
		in.Inspect(n.Else)
		if n.Rescue != nil {
			in.Inspect(n.Rescue)
		}
		in.disable(n)
	case *ast.RescueBodyNode:
		in.Inspect(n.Exceptions)
		in.Inspect(n.Body)
		if n.Next != nil {
			in.Inspect(n.Next)
		}
	case *ast.EnsureNode:
		in.Inspect(n.Body)
		in.Inspect(n.Ensure)
		in.disable(n)
	case *ast.RootNode:
		in.Inspect(n.Body)

	default:
		in.inspectAll(ast.Children(node))
		in.disable(node)
	}
}

func (in *Inspector) inspectName(node ast.Node, name string) {
	if in.frameAware.Contains(name) {
		in.set(node, FrameAware)
		if strings.Contains(name, "eval") {
			in.set(node, Eval)
		}
	}
	if in.scopeAware.Contains(name) {
		in.set(node, ScopeAware)
	}
}

func (in *Inspector) inspectLoop(loop ast.Node, cond, body ast.Node) {
	sub := in.SubInspect(cond, body)
	if sub.record.Any(Closure|Eval) || in.record.Any(BlockArg) {
		in.nonLocal[loop] = struct{}{}
		in.set(loop, ScopeAware)
	}
	in.Integrate(sub)
}

// HasFastDefinedCheck reports shapes whose definedness can be answered
// without the general probing path.
func HasFastDefinedCheck(n ast.Node) bool {
	switch n.(type) {
	case *ast.ClassVarAsgnNode, *ast.ClassVarDeclNode, *ast.ConstDeclNode, *ast.DAsgnNode,
		*ast.GlobalAsgnNode, *ast.LocalAsgnNode, *ast.MultipleAsgnNode, *ast.OpAsgnNode,
		*ast.OpElementAsgnNode, *ast.DVarNode, *ast.FalseNode, *ast.TrueNode,
		*ast.LocalVarNode, *ast.InstVarNode, *ast.BackRefNode, *ast.SelfNode,
		*ast.VCallNode, *ast.YieldNode, *ast.GlobalVarNode, *ast.ConstNode,
		*ast.FCallNode, *ast.ClassVarNode:
		return true
	}
	return false
}

func isPlainLiteral(n ast.Node) bool {
	switch n.(type) {
	case *ast.FixnumNode, *ast.BignumNode, *ast.FloatNode, *ast.StrNode, *ast.SymbolNode,
		*ast.NilNode, *ast.TrueNode, *ast.FalseNode:
		return true
	}
	return false
}

// InspectBody inspects a method or closure body together with its
// parameter list and returns the resulting record.
func InspectBody(name string, cfg Config, args *ast.ArgsNode, body ast.Node) Record {
	in := New(name, cfg)
	if args != nil {
		in.Inspect(args)
	}
	in.Inspect(body)
	return in.Record()
}
