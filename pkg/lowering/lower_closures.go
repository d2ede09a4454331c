package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/inspector"
)

func arityOf(args *ast.ArgsNode) emit.Arity {
	return emit.Arity{Required: args.RequiredCount(), Optional: args.OptionalCount(), Rest: args.HasRest()}
}

// lowerClosure compiles a block or lambda body into a child unit and
// pushes the closure. The child reaches enclosing locals through scope
// depth, so it captures the whole enclosing environment.
func (c *Compiler) lowerClosure(node ast.Node, args *ast.ArgsNode, body ast.Node, scope *ast.Scope, lambda bool, u *Unit) error {
	name := "block in " + u.name
	if lambda {
		name = "lambda in " + u.name
	}
	record := inspector.InspectBody(name, c.opts.Inspector, args, body)
	child := c.beginChild(u, emit.UnitSpec{
		Kind:       emit.UnitClosure,
		Name:       name,
		Scope:      scope,
		Arity:      arityOf(args),
		Record:     record,
		CallConfig: record.CallConfig(),
		Lambda:     lambda,
		Pos:        node.Position(),
	})
	if err := c.bindParameters(args, child, lambda); err != nil {
		return err
	}
	if err := c.lowerClosureBody(node, body, child); err != nil {
		return err
	}
	u.PushClosure(child.t.EndUnit())
	return nil
}

// lowerClosureBody marks the redo point after parameter binding and
// lowers the body.
func (c *Compiler) lowerClosureBody(owner, body ast.Node, u *Unit) error {
	u.redo = u.NewLabel()
	u.hasRedo = true
	u.MarkLabel(u.redo)
	if err := c.Lower(body, u); err != nil {
		return err
	}
	return u.checkBalanced(owner)
}

// bindParameters stores incoming arguments into parameter slots. Optional
// parameters take the supplied value when there is one and otherwise run
// their default assignment. strict adds an arity check.
func (c *Compiler) bindParameters(args *ast.ArgsNode, u *Unit, strict bool) error {
	if strict {
		u.CheckArity(arityOf(args))
	}
	if args == nil {
		return nil
	}
	for i, param := range args.Required {
		u.LoadArg(i)
		if err := c.bindParameter(param, u); err != nil {
			return err
		}
	}
	first := len(args.Required)
	for j, opt := range args.Optional {
		i := first + j
		useDefault := u.NewLabel()
		bound := u.NewLabel()
		u.ArgGiven(i)
		u.BranchIfFalse(useDefault)
		u.LoadArg(i)
		if err := c.assign(opt.Assignment, u); err != nil {
			return err
		}
		u.Branch(bound)
		u.MarkLabel(useDefault)
		if err := c.lowerDiscarded(opt.Assignment, u); err != nil {
			return err
		}
		u.MarkLabel(bound)
	}
	if rest := args.Rest; rest != nil && rest.Slot >= 0 {
		u.RestArgs(first + len(args.Optional))
		u.StoreLocal(rest.Slot, 0)
	}
	if blk := args.Block; blk != nil {
		u.LoadBlock()
		u.StoreLocal(blk.Slot, 0)
	}
	return nil
}

func (c *Compiler) bindParameter(param ast.Node, u *Unit) error {
	if arg, ok := param.(*ast.ArgumentNode); ok {
		u.StoreLocal(arg.Slot, 0)
		return nil
	}
	return c.assign(param, u)
}
