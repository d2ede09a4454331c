package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

func (c *Compiler) lowerColon2(n *ast.Colon2Node, u *Unit) error {
	if ast.IsNil(n.Left) {
		u.LoadConst(n.Name, emit.ConstLexical)
		return nil
	}
	if err := c.Lower(n.Left, u); err != nil {
		return err
	}
	u.LoadConst(n.Name, emit.ConstQualified)
	return nil
}

// assignedValue returns the value child of a simple assignment node.
func assignedValue(n ast.Node) ast.Node {
	switch a := n.(type) {
	case *ast.LocalAsgnNode:
		return a.Value
	case *ast.DAsgnNode:
		return a.Value
	case *ast.InstAsgnNode:
		return a.Value
	case *ast.GlobalAsgnNode:
		return a.Value
	case *ast.ClassVarAsgnNode:
		return a.Value
	case *ast.ClassVarDeclNode:
		return a.Value
	case *ast.ConstDeclNode:
		return a.Value
	}
	return nil
}

// lowerAssignment evaluates the value of a simple assignment and stores
// it. With keep the value stays on the stack as the expression's result.
func (c *Compiler) lowerAssignment(n ast.Node, u *Unit, keep bool) error {
	if err := c.Lower(assignedValue(n), u); err != nil {
		return err
	}
	if keep {
		u.Dup()
	}
	return c.assign(n, u)
}

// assign stores the value on top of the stack into target, consuming it.
func (c *Compiler) assign(target ast.Node, u *Unit) error {
	switch t := ast.Unwrap(target).(type) {
	case *ast.LocalAsgnNode:
		u.StoreLocal(t.Slot, t.Depth)
	case *ast.DAsgnNode:
		u.StoreLocal(t.Slot, t.Depth)
	case *ast.InstAsgnNode:
		u.StoreIvar(t.Name)
	case *ast.GlobalAsgnNode:
		u.StoreGlobal(t.Name)
	case *ast.ClassVarAsgnNode:
		u.StoreCvar(t.Name)
	case *ast.ClassVarDeclNode:
		u.StoreCvar(t.Name)
	case *ast.ConstDeclNode:
		return c.assignConst(t, u)
	case *ast.AttrAssignNode:
		return c.assignAttr(t, u)
	case *ast.MultipleAsgnNode:
		u.ToMultipleAssignable()
		if err := c.destructure(t, u); err != nil {
			return err
		}
		u.Pop()
	case *ast.StarNode:
		u.Pop()
	case *ast.SplatNode:
		return c.assign(t.Value, u)
	default:
		return notCompilable(target, "cannot assign to %s", target.NodeType())
	}
	return nil
}

func (c *Compiler) assignConst(t *ast.ConstDeclNode, u *Unit) error {
	switch p := t.Path.(type) {
	case nil:
		u.StoreConst(t.Name, emit.ConstLexical)
	case *ast.Colon2Node:
		if ast.IsNil(p.Left) {
			u.StoreConst(t.Name, emit.ConstLexical)
			return nil
		}
		if err := c.Lower(p.Left, u); err != nil {
			return err
		}
		u.Swap()
		u.StoreConst(t.Name, emit.ConstQualified)
	case *ast.Colon3Node:
		u.StoreConst(t.Name, emit.ConstTop)
	default:
		return notCompilable(t, "constant path %s", t.Path.NodeType())
	}
	return nil
}

// assignAttr calls a setter with the value on the stack as its last
// argument and discards the setter's result.
func (c *Compiler) assignAttr(t *ast.AttrAssignNode, u *Unit) error {
	disc := setterDiscipline(t.Receiver)
	if ast.IsNil(t.Args) {
		if err := c.Lower(t.Receiver, u); err != nil {
			return err
		}
		u.Swap()
		u.Dispatch(emit.CallSite{Name: t.Name, Arity: 1, Discipline: disc})
		u.Pop()
		return nil
	}
	// [v] -> [recv, args..., v] through an argument array.
	u.MakeArray(1)
	if err := c.Lower(t.Receiver, u); err != nil {
		return err
	}
	u.Swap()
	if err := c.lowerArgsArray(t.Args, u); err != nil {
		return err
	}
	u.Swap()
	u.ArgsCat()
	u.Dispatch(emit.CallSite{Name: t.Name, Arity: emit.Variadic, Discipline: disc})
	u.Pop()
	return nil
}

func setterDiscipline(receiver ast.Node) emit.Discipline {
	if _, ok := receiver.(*ast.SelfNode); ok {
		return emit.DispatchFunctional
	}
	return emit.DispatchNormal
}
