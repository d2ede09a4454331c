package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

// Categories answered by defined?.
const (
	DefinedLocalVariable    = "local-variable"
	DefinedInstanceVariable = "instance-variable"
	DefinedGlobalVariable   = "global-variable"
	DefinedClassVariable    = "class variable"
	DefinedConstant         = "constant"
	DefinedMethod           = "method"
	DefinedYield            = "yield"
	DefinedSelf             = "self"
	DefinedTrue             = "true"
	DefinedFalse            = "false"
	DefinedNil              = "nil"
	DefinedAssignment       = "assignment"
	DefinedExpression       = "expression"
	DefinedSuper            = "super"
)

func (c *Compiler) lowerDefinedExpr(n *ast.DefinedNode, u *Unit) error {
	return c.lowerDefined(n.Expression, u)
}

// definedCheck pushes a value whose truthiness decides one precondition.
type definedCheck func(u *Unit) error

// definedWhen pushes category when every check holds and nil otherwise.
// Checks run in order and stop at the first failure.
func (u *Unit) definedWhen(category string, checks ...definedCheck) error {
	base := u.depth
	undefined := u.NewLabel()
	done := u.NewLabel()
	for _, check := range checks {
		if err := check(u); err != nil {
			return err
		}
		u.BranchIfFalse(undefined)
	}
	u.PushString(category)
	u.Branch(done)
	u.MarkLabel(undefined)
	u.setDepth(base)
	u.PushNil()
	u.MarkLabel(done)
	return nil
}

func probe(kind emit.ProbeKind, name string) definedCheck {
	return func(u *Unit) error {
		u.Probe(kind, name)
		return nil
	}
}

func (c *Compiler) isDefined(node ast.Node) definedCheck {
	return func(u *Unit) error { return c.lowerDefined(node, u) }
}

// protectedProbe evaluates receiver and probes name on it, turning any
// failure along the way into undefined.
func (c *Compiler) protectedProbe(receiver ast.Node, kind emit.ProbeKind, name string) definedCheck {
	return func(u *Unit) error {
		return u.performProbe(func(u *Unit) error {
			if err := c.Lower(receiver, u); err != nil {
				return err
			}
			u.Probe(kind, name)
			return nil
		})
	}
}

// argsDefined checks every argument expression, looking through splats.
func (c *Compiler) argsDefined(args ast.Node) []definedCheck {
	var nodes []ast.Node
	switch a := args.(type) {
	case *ast.ArrayNode:
		nodes = a.Elements
	case *ast.ArgsCatNode:
		nodes = []ast.Node{a.First, a.Second}
	case *ast.ArgsPushNode:
		nodes = []ast.Node{a.First, a.Second}
	default:
		if !ast.IsNil(args) {
			nodes = []ast.Node{args}
		}
	}
	checks := make([]definedCheck, 0, len(nodes))
	for _, n := range nodes {
		if s, ok := n.(*ast.SplatNode); ok {
			n = s.Value
		}
		checks = append(checks, c.isDefined(n))
	}
	return checks
}

// lowerDefined pushes the category string of node, or nil when node is
// not defined. It never raises: probing code that evaluates subexpressions
// runs inside a probe region.
func (c *Compiler) lowerDefined(node ast.Node, u *Unit) error {
	if ast.IsNil(node) {
		u.PushString(DefinedExpression)
		return nil
	}
	switch n := ast.Unwrap(node).(type) {
	case *ast.LocalAsgnNode, *ast.DAsgnNode, *ast.InstAsgnNode, *ast.GlobalAsgnNode,
		*ast.ClassVarAsgnNode, *ast.ClassVarDeclNode, *ast.ConstDeclNode, *ast.MultipleAsgnNode,
		*ast.OpAsgnNode, *ast.OpAsgnOrNode, *ast.OpAsgnAndNode, *ast.OpElementAsgnNode:
		u.PushString(DefinedAssignment)
	case *ast.LocalVarNode, *ast.DVarNode:
		u.PushString(DefinedLocalVariable)
	case *ast.TrueNode:
		u.PushString(DefinedTrue)
	case *ast.FalseNode:
		u.PushString(DefinedFalse)
	case *ast.NilNode:
		u.PushString(DefinedNil)
	case *ast.SelfNode:
		u.PushString(DefinedSelf)
	case *ast.Match2Node, *ast.Match3Node:
		u.PushString(DefinedMethod)
	case *ast.InstVarNode:
		return u.definedWhen(DefinedInstanceVariable, probe(emit.ProbeIvar, n.Name))
	case *ast.GlobalVarNode:
		return u.definedWhen(DefinedGlobalVariable, probe(emit.ProbeGlobal, n.Name))
	case *ast.ClassVarNode:
		return u.definedWhen(DefinedClassVariable, probe(emit.ProbeCvar, n.Name))
	case *ast.ConstNode:
		return u.definedWhen(DefinedConstant, probe(emit.ProbeConst, n.Name))
	case *ast.Colon2Node:
		if ast.IsNil(n.Left) {
			return u.definedWhen(DefinedConstant, probe(emit.ProbeConst, n.Name))
		}
		return u.definedWhen(DefinedConstant,
			c.isDefined(n.Left),
			c.protectedProbe(n.Left, emit.ProbeQualifiedConst, n.Name))
	case *ast.Colon3Node:
		return u.definedWhen(DefinedConstant, func(u *Unit) error {
			u.LoadConst("Object", emit.ConstTop)
			u.Probe(emit.ProbeQualifiedConst, n.Name)
			return nil
		})
	case *ast.VCallNode:
		return u.definedWhen(DefinedMethod, selfProbe(n.Name))
	case *ast.FCallNode:
		checks := append([]definedCheck{selfProbe(n.Name)}, c.argsDefined(n.Args)...)
		return u.definedWhen(DefinedMethod, checks...)
	case *ast.CallNode:
		checks := []definedCheck{
			c.isDefined(n.Receiver),
			c.protectedProbe(n.Receiver, emit.ProbeMethod, n.Name),
		}
		return u.definedWhen(DefinedMethod, append(checks, c.argsDefined(n.Args)...)...)
	case *ast.AttrAssignNode:
		if _, self := n.Receiver.(*ast.SelfNode); self {
			return u.definedWhen(DefinedAssignment, selfProbe(n.Name))
		}
		return u.definedWhen(DefinedAssignment,
			c.isDefined(n.Receiver),
			c.protectedProbe(n.Receiver, emit.ProbeMethod, n.Name))
	case *ast.YieldNode:
		return u.definedWhen(DefinedYield, probe(emit.ProbeBlock, ""))
	case *ast.SuperNode, *ast.ZSuperNode:
		return u.definedWhen(DefinedSuper, probe(emit.ProbeSuper, ""))
	case *ast.BackRefNode:
		return u.definedWhen(DefinedGlobalVariable, loadGlobal(n.GlobalName()))
	case *ast.NthRefNode:
		return u.definedWhen(DefinedGlobalVariable, loadGlobal(n.GlobalName()))
	case *ast.NotNode:
		return u.definedWhen(DefinedMethod, c.isDefined(n.Condition))
	default:
		u.PushString(DefinedExpression)
	}
	return nil
}

func selfProbe(name string) definedCheck {
	return func(u *Unit) error {
		u.PushSelf()
		u.Probe(emit.ProbeFunctionalMethod, name)
		return nil
	}
}

func loadGlobal(name string) definedCheck {
	return func(u *Unit) error {
		u.LoadGlobal(name)
		return nil
	}
}
