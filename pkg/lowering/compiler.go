// Package lowering translates scope-annotated syntax trees into the
// primitive operations of an emit.Target.
package lowering

import (
	"log/slog"

	"github.com/joomcode/errorx"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/inspector"
)

type Options struct {
	// MaxSpecificArity is the largest argument count passed as separate
	// operands; longer lists are packed into one array.
	MaxSpecificArity int

	FastMultipleAssignment bool
	FastMasgnMinArity      int
	FastMasgnMaxArity      int
	// FastMasgnNestedTargets lets nested targets take the fast path.
	FastMasgnNestedTargets bool

	Inspector inspector.Config
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxSpecificArity:       3,
		FastMultipleAssignment: true,
		FastMasgnMinArity:      2,
		FastMasgnMaxArity:      10,
		Inspector:              inspector.DefaultConfig(),
	}
}

// Compiler holds options only; all per-unit state lives in Unit, so one
// Compiler may lower independent trees concurrently.
type Compiler struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Compiler {
	if opts.MaxSpecificArity < 0 {
		opts.MaxSpecificArity = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Inspector.Logger == nil {
		opts.Inspector.Logger = logger
	}
	return &Compiler{opts: opts, logger: logger}
}

func (c *Compiler) Options() Options { return c.opts }

// Compile lowers root into a recorded unit tree. On any error the partial
// tree is dropped.
func (c *Compiler) Compile(root *ast.RootNode) (*emit.Unit, error) {
	if root == nil {
		return nil, errorx.IllegalArgument.New("lowering: nil root")
	}
	asm := emit.NewAssembler(c.rootSpec(root))
	if err := c.CompileRoot(root, asm); err != nil {
		return nil, err
	}
	return asm.Finish()
}

func (c *Compiler) rootSpec(root *ast.RootNode) emit.UnitSpec {
	record := inspector.InspectBody(root.File, c.opts.Inspector, nil, root.Body)
	return emit.UnitSpec{
		Kind:       emit.UnitRoot,
		Name:       root.File,
		Scope:      root.Scope,
		Record:     record,
		CallConfig: record.CallConfig(),
		Pos:        root.Position(),
	}
}

// CompileRoot lowers root into target, which must have been opened for a
// root unit.
func (c *Compiler) CompileRoot(root *ast.RootNode, target emit.Target) error {
	u := newUnit(c, target, c.rootSpec(root))
	u.Position(root.Position())
	err := c.Lower(root.Body, u)
	if err == nil {
		err = u.checkBalanced(root)
	}
	if err != nil {
		if IsNotCompilable(err) {
			pos, _ := PositionOf(err)
			c.logger.Debug("unit not compilable", "file", root.File, "pos", pos.String(), "reason", ReasonOf(err))
		}
		return err
	}
	return nil
}

func (u *Unit) checkBalanced(node ast.Node) error {
	if u.depth != 1 {
		return Unbalanced.New("unit %q left %d values on the stack", u.name, u.depth).
			WithProperty(PropertyPosition, node.Position())
	}
	return nil
}

// Lower emits code leaving exactly one value, the value of node, on the
// stack. A nil node lowers as nil.
func (c *Compiler) Lower(node ast.Node, u *Unit) error {
	if ast.IsNil(node) {
		u.PushNil()
		return nil
	}
	switch n := node.(type) {
	// literals
	case *ast.NilNode:
		u.PushNil()
	case *ast.TrueNode:
		u.PushTrue()
	case *ast.FalseNode:
		u.PushFalse()
	case *ast.SelfNode:
		u.PushSelf()
	case *ast.FixnumNode:
		u.PushInt(n.Value)
	case *ast.BignumNode:
		u.PushBignum(n.Value)
	case *ast.FloatNode:
		u.PushFloat(n.Value)
	case *ast.StrNode:
		u.PushString(n.Value)
	case *ast.SymbolNode:
		u.PushSymbol(n.Name)
	case *ast.RegexpNode:
		u.PushRegexp(n.Source, n.Options)
	case *ast.XStrNode:
		return c.lowerXStr(n, u)
	case *ast.DStrNode:
		return c.lowerDStr(n, u)
	case *ast.DSymbolNode:
		return c.lowerDSymbol(n, u)
	case *ast.DRegexpNode:
		return c.lowerDRegexp(n, u)
	case *ast.DXStrNode:
		return c.lowerDXStr(n, u)
	case *ast.EvStrNode:
		return c.lowerEvStr(n, u)
	case *ast.ArrayNode:
		return c.lowerArray(n, u)
	case *ast.ZArrayNode:
		u.MakeArray(0)
	case *ast.HashNode:
		return c.lowerHash(n, u)
	case *ast.DotNode:
		return c.lowerDot(n, u)

	// variables
	case *ast.LocalVarNode:
		u.LoadLocal(n.Slot, n.Depth)
	case *ast.DVarNode:
		u.LoadLocal(n.Slot, n.Depth)
	case *ast.InstVarNode:
		u.LoadIvar(n.Name)
	case *ast.GlobalVarNode:
		u.LoadGlobal(n.Name)
	case *ast.ClassVarNode:
		u.LoadCvar(n.Name)
	case *ast.ConstNode:
		u.LoadConst(n.Name, emit.ConstLexical)
	case *ast.Colon2Node:
		return c.lowerColon2(n, u)
	case *ast.Colon3Node:
		u.LoadConst(n.Name, emit.ConstTop)
	case *ast.BackRefNode:
		u.LoadGlobal(n.GlobalName())
	case *ast.NthRefNode:
		u.LoadGlobal(n.GlobalName())
	case *ast.LocalAsgnNode, *ast.DAsgnNode, *ast.InstAsgnNode, *ast.GlobalAsgnNode,
		*ast.ClassVarAsgnNode, *ast.ClassVarDeclNode, *ast.ConstDeclNode:
		return c.lowerAssignment(node, u, true)

	// control flow
	case *ast.AndNode:
		return c.lowerAnd(n, u)
	case *ast.OrNode:
		return c.lowerOr(n, u)
	case *ast.NotNode:
		return c.lowerNot(n, u)
	case *ast.IfNode:
		return c.lowerIf(n, u)
	case *ast.WhileNode:
		return c.lowerWhile(n, u)
	case *ast.UntilNode:
		return c.lowerUntil(n, u)
	case *ast.CaseNode:
		return c.lowerCase(n, u)
	case *ast.ForNode:
		return c.lowerFor(n, u)
	case *ast.BlockNode:
		return c.lowerBlock(n, u)
	case *ast.NewlineNode:
		u.Position(n.Position())
		return c.Lower(n.Next, u)
	case *ast.BeginNode:
		return c.Lower(n.Body, u)
	case *ast.BreakNode:
		return c.lowerBreak(n, u)
	case *ast.NextNode:
		return c.lowerNext(n, u)
	case *ast.RedoNode:
		return c.lowerRedo(n, u)
	case *ast.RetryNode:
		return c.lowerRetry(n, u)
	case *ast.ReturnNode:
		return c.lowerReturn(n, u)
	case *ast.FlipNode:
		return c.lowerFlip(n, u)
	case *ast.MatchNode:
		return c.lowerMatch(n, u)
	case *ast.Match2Node:
		return c.lowerMatch2(n, u)
	case *ast.Match3Node:
		return c.lowerMatch3(n, u)
	case *ast.DefinedNode:
		return c.lowerDefinedExpr(n, u)

	// calls
	case *ast.CallNode:
		return c.lowerCall(n, u)
	case *ast.FCallNode:
		return c.lowerFCall(n, u)
	case *ast.VCallNode:
		return c.lowerVCall(n, u)
	case *ast.AttrAssignNode:
		return c.lowerAttrAssign(n, u)
	case *ast.SuperNode:
		return c.lowerSuper(n, u)
	case *ast.ZSuperNode:
		return c.lowerZSuper(n, u)
	case *ast.YieldNode:
		return c.lowerYield(n, u)
	case *ast.SplatNode:
		if err := c.Lower(n.Value, u); err != nil {
			return err
		}
		u.Splat()
	case *ast.ArgsCatNode, *ast.ArgsPushNode:
		return c.lowerArgsArray(node, u)
	case *ast.SValueNode:
		if err := c.lowerArgsArray(n.Value, u); err != nil {
			return err
		}
		u.SValue()
	case *ast.ToAryNode:
		if err := c.Lower(n.Value, u); err != nil {
			return err
		}
		u.ToAry()
	case *ast.IterNode:
		return c.lowerClosure(n, n.Args, n.Body, n.Scope, false, u)
	case *ast.LambdaNode:
		return c.lowerClosure(n, n.Args, n.Body, n.Scope, true, u)

	// compound assignment
	case *ast.MultipleAsgnNode:
		return c.lowerMultipleAsgn(n, u)
	case *ast.OpAsgnNode:
		return c.lowerOpAsgn(n, u)
	case *ast.OpAsgnOrNode:
		return c.lowerOpAsgnOr(n, u)
	case *ast.OpAsgnAndNode:
		return c.lowerOpAsgnAnd(n, u)
	case *ast.OpElementAsgnNode:
		return c.lowerOpElementAsgn(n, u)

	// definitions
	case *ast.DefnNode:
		return c.lowerDefn(n, u)
	case *ast.DefsNode:
		return c.lowerDefs(n, u)
	case *ast.ClassNode:
		return c.lowerClass(n, u)
	case *ast.ModuleNode:
		return c.lowerModule(n, u)
	case *ast.SClassNode:
		return c.lowerSClass(n, u)
	case *ast.AliasNode:
		u.AliasMethod(n.NewName, n.OldName)
	case *ast.VAliasNode:
		u.AliasGlobal(n.NewName, n.OldName)
	case *ast.UndefNode:
		u.UndefMethod(n.Name)
	case *ast.PreExeNode:
		return c.Lower(n.Body, u)
	case *ast.PostExeNode:
		return c.lowerPostExe(n, u)

	// exceptions
	case *ast.RescueNode:
		return c.lowerRescue(n, u)
	case *ast.EnsureNode:
		return c.lowerEnsure(n, u)

	case *ast.RootNode:
		return notCompilable(n, "nested root node")
	case *ast.RescueBodyNode:
		return notCompilable(n, "rescue clause outside a rescue")
	case *ast.WhenNode:
		return notCompilable(n, "when clause outside a case")
	case *ast.BlockPassNode:
		return notCompilable(n, "block argument in value position")
	case *ast.ArgsNode, *ast.ArgumentNode, *ast.OptArgNode, *ast.RestArgNode, *ast.BlockArgNode:
		return notCompilable(node, "parameter node %s in value position", node.NodeType())
	case *ast.StarNode:
		return notCompilable(n, "anonymous splat in value position")
	case *ast.UnknownNode:
		return notCompilable(n, "unsupported syntax %q", n.Name)
	default:
		return notCompilable(node, "unsupported node %s", node.NodeType())
	}
	return nil
}

// lowerDiscarded lowers node for its effects only. It leaves the stack as
// it found it.
func (c *Compiler) lowerDiscarded(node ast.Node, u *Unit) error {
	switch n := ast.Unwrap(node).(type) {
	case nil:
		return nil
	case *ast.NilNode, *ast.TrueNode, *ast.FalseNode, *ast.SelfNode, *ast.FixnumNode,
		*ast.FloatNode, *ast.StrNode, *ast.SymbolNode, *ast.LocalVarNode, *ast.DVarNode:
		if nl, ok := node.(*ast.NewlineNode); ok {
			u.Position(nl.Position())
		}
		return nil
	case *ast.BlockNode:
		for _, stmt := range n.Statements {
			if err := c.lowerDiscarded(stmt, u); err != nil {
				return err
			}
		}
		return nil
	case *ast.MultipleAsgnNode:
		if nl, ok := node.(*ast.NewlineNode); ok {
			u.Position(nl.Position())
		}
		if c.fastMasgnApplies(n) {
			return c.lowerFastMasgn(n, u)
		}
		if err := c.lowerMultipleAsgn(n, u); err != nil {
			return err
		}
		u.Pop()
		return nil
	case *ast.LocalAsgnNode, *ast.DAsgnNode, *ast.InstAsgnNode, *ast.GlobalAsgnNode,
		*ast.ClassVarAsgnNode, *ast.ClassVarDeclNode, *ast.ConstDeclNode:
		if nl, ok := node.(*ast.NewlineNode); ok {
			u.Position(nl.Position())
		}
		return c.lowerAssignment(n, u, false)
	}
	if ast.IsNil(node) {
		return nil
	}
	if err := c.Lower(node, u); err != nil {
		return err
	}
	u.Pop()
	return nil
}

// lowerBlock discards every statement's value but the last.
func (c *Compiler) lowerBlock(n *ast.BlockNode, u *Unit) error {
	if len(n.Statements) == 0 {
		u.PushNil()
		return nil
	}
	last := len(n.Statements) - 1
	for _, stmt := range n.Statements[:last] {
		if err := c.lowerDiscarded(stmt, u); err != nil {
			return err
		}
	}
	return c.Lower(n.Statements[last], u)
}

// beginChild opens a nested unit and returns its context.
func (c *Compiler) beginChild(parent *Unit, spec emit.UnitSpec) *Unit {
	t := parent.t.BeginUnit(spec)
	return newUnit(c, t, spec)
}
