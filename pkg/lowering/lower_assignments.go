package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

// lowerMultipleAsgn is the general path: the right-hand side becomes one
// array, which is destructured into the targets and left on the stack as
// the expression's value.
func (c *Compiler) lowerMultipleAsgn(n *ast.MultipleAsgnNode, u *Unit) error {
	switch v := n.Value.(type) {
	case *ast.ArrayNode:
		if err := c.lowerArray(v, u); err != nil {
			return err
		}
	case *ast.SplatNode, *ast.ArgsCatNode, *ast.ArgsPushNode:
		if err := c.lowerArgsArray(v, u); err != nil {
			return err
		}
	default:
		if err := c.Lower(n.Value, u); err != nil {
			return err
		}
		u.ToMultipleAssignable()
	}
	return c.destructure(n, u)
}

// destructure assigns the head, rest and post targets from the array on
// top of the stack. The array stays.
func (c *Compiler) destructure(t *ast.MultipleAsgnNode, u *Unit) error {
	pre, post := len(t.Head), len(t.Post)
	err := u.forEachInValueArray(0, pre, t.Head, func(u *Unit, _ any, i int) error {
		return c.assign(t.Head[i], u)
	})
	if err != nil {
		return err
	}
	if !ast.IsNil(t.Rest) {
		if _, anonymous := t.Rest.(*ast.StarNode); !anonymous {
			u.Dup()
			u.ArraySlice(pre, post)
			if err := c.assign(t.Rest, u); err != nil {
				return err
			}
		}
	}
	for i, target := range t.Post {
		u.Dup()
		u.ArrayTailRef(pre, post, i)
		if err := c.assign(target, u); err != nil {
			return err
		}
	}
	return nil
}

// fastMasgnApplies reports whether a statement-position multiple
// assignment can bind values straight off the stack.
func (c *Compiler) fastMasgnApplies(n *ast.MultipleAsgnNode) bool {
	if !c.opts.FastMultipleAssignment || !ast.IsNil(n.Rest) || len(n.Post) > 0 {
		return false
	}
	arr, ok := n.Value.(*ast.ArrayNode)
	if !ok || hasSplat(arr.Elements) {
		return false
	}
	size := len(n.Head)
	if size != len(arr.Elements) || size < c.opts.FastMasgnMinArity || size > c.opts.FastMasgnMaxArity {
		return false
	}
	for _, target := range n.Head {
		switch ast.Unwrap(target).(type) {
		case *ast.MultipleAsgnNode:
			if !c.opts.FastMasgnNestedTargets {
				return false
			}
		case *ast.SplatNode, *ast.StarNode:
			return false
		}
	}
	return true
}

// lowerFastMasgn evaluates every value first, then assigns left to right.
func (c *Compiler) lowerFastMasgn(n *ast.MultipleAsgnNode, u *Unit) error {
	values := n.Value.(*ast.ArrayNode).Elements
	for _, v := range values {
		if err := c.Lower(v, u); err != nil {
			return err
		}
	}
	u.Reverse(len(values))
	for _, target := range n.Head {
		if err := c.assign(target, u); err != nil {
			return err
		}
	}
	return nil
}

func isLogicalOperator(op string) bool { return op == "||" || op == "&&" }

// lowerOpAsgn is `recv.attr op= value`. The receiver is evaluated once.
func (c *Compiler) lowerOpAsgn(n *ast.OpAsgnNode, u *Unit) error {
	disc := setterDiscipline(n.Receiver)
	if err := c.Lower(n.Receiver, u); err != nil {
		return err
	}
	u.Dup()
	u.Dispatch(emit.CallSite{Name: n.Attribute, Discipline: disc})
	setter := emit.CallSite{Name: n.AttributeAssign(), Arity: 1, Discipline: disc}

	if !isLogicalOperator(n.Operator) {
		if err := c.Lower(n.Value, u); err != nil {
			return err
		}
		u.Dispatch(emit.CallSite{Name: n.Operator, Arity: 1, Discipline: emit.DispatchNormal})
		u.DupX1()
		u.Dispatch(setter)
		u.Pop()
		return nil
	}

	keep := u.NewLabel()
	end := u.NewLabel()
	held := u.depth
	u.Dup()
	if n.Operator == "||" {
		u.BranchIfTrue(keep)
	} else {
		u.BranchIfFalse(keep)
	}
	u.Pop()
	if err := c.Lower(n.Value, u); err != nil {
		return err
	}
	u.DupX1()
	u.Dispatch(setter)
	u.Pop()
	u.Branch(end)

	u.MarkLabel(keep)
	u.setDepth(held)
	u.Swap()
	u.Pop()
	u.MarkLabel(end)
	return nil
}

// lowerOpElementAsgn is `recv[index] op= value` with a single index.
func (c *Compiler) lowerOpElementAsgn(n *ast.OpElementAsgnNode, u *Unit) error {
	var index ast.Node
	switch a := n.Args.(type) {
	case *ast.ArrayNode:
		if len(a.Elements) != 1 || hasSplat(a.Elements) {
			return notCompilable(n, "element assignment with %d indexes", len(a.Elements))
		}
		index = a.Elements[0]
	case *ast.SplatNode, *ast.ArgsCatNode, *ast.ArgsPushNode:
		return notCompilable(n, "element assignment with a splat index")
	default:
		if ast.IsNil(n.Args) {
			return notCompilable(n, "element assignment without an index")
		}
		index = n.Args
	}
	disc := setterDiscipline(n.Receiver)
	if err := c.Lower(n.Receiver, u); err != nil {
		return err
	}
	if err := c.Lower(index, u); err != nil {
		return err
	}
	u.Dup2()
	u.Dispatch(emit.CallSite{Name: "[]", Arity: 1, Discipline: disc})
	setter := emit.CallSite{Name: "[]=", Arity: 2, Discipline: disc}

	if !isLogicalOperator(n.Operator) {
		if err := c.Lower(n.Value, u); err != nil {
			return err
		}
		u.Dispatch(emit.CallSite{Name: n.Operator, Arity: 1, Discipline: emit.DispatchNormal})
		u.DupX2()
		u.Dispatch(setter)
		u.Pop()
		return nil
	}

	keep := u.NewLabel()
	end := u.NewLabel()
	held := u.depth
	u.Dup()
	if n.Operator == "||" {
		u.BranchIfTrue(keep)
	} else {
		u.BranchIfFalse(keep)
	}
	u.Pop()
	if err := c.Lower(n.Value, u); err != nil {
		return err
	}
	u.DupX2()
	u.Dispatch(setter)
	u.Pop()
	u.Branch(end)

	u.MarkLabel(keep)
	u.setDepth(held)
	u.DupX2()
	u.Pop()
	u.Pop()
	u.Pop()
	u.MarkLabel(end)
	return nil
}

// needsDefinitionCheck reports whether reading the target of `||=` could
// raise because it is not yet defined.
func needsDefinitionCheck(n ast.Node) bool {
	switch ast.Unwrap(n).(type) {
	case *ast.ClassVarAsgnNode, *ast.ClassVarDeclNode, *ast.ConstDeclNode, *ast.DAsgnNode,
		*ast.GlobalAsgnNode, *ast.LocalAsgnNode, *ast.MultipleAsgnNode, *ast.OpAsgnNode,
		*ast.OpElementAsgnNode, *ast.DVarNode, *ast.FalseNode, *ast.TrueNode,
		*ast.LocalVarNode, *ast.Match2Node, *ast.Match3Node, *ast.NilNode, *ast.SelfNode:
		return false
	}
	return true
}

// lowerOpAsgnOr assigns Second when First is undefined or falsy.
func (c *Compiler) lowerOpAsgnOr(n *ast.OpAsgnOrNode, u *Unit) error {
	assign := u.NewLabel()
	done := u.NewLabel()
	if needsDefinitionCheck(n.First) {
		if err := c.lowerDefined(n.First, u); err != nil {
			return err
		}
		u.BranchIfFalse(assign)
	}
	if err := c.Lower(n.First, u); err != nil {
		return err
	}
	u.Dup()
	u.BranchIfTrue(done)
	u.Pop()
	u.MarkLabel(assign)
	if err := c.Lower(n.Second, u); err != nil {
		return err
	}
	u.MarkLabel(done)
	return nil
}

func (c *Compiler) lowerOpAsgnAnd(n *ast.OpAsgnAndNode, u *Unit) error {
	if err := c.Lower(n.First, u); err != nil {
		return err
	}
	return u.performLogicalAnd(nodeBranch(c, n.Second))
}
