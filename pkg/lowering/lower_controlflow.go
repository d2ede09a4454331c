package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

func (c *Compiler) lowerAnd(n *ast.AndNode, u *Unit) error {
	switch {
	case ast.AlwaysTrue(n.First):
		if err := c.lowerDiscarded(n.First, u); err != nil {
			return err
		}
		return c.Lower(n.Second, u)
	case ast.AlwaysFalse(n.First):
		return c.Lower(n.First, u)
	}
	if err := c.Lower(n.First, u); err != nil {
		return err
	}
	return u.performLogicalAnd(nodeBranch(c, n.Second))
}

func (c *Compiler) lowerOr(n *ast.OrNode, u *Unit) error {
	switch {
	case ast.AlwaysTrue(n.First):
		return c.Lower(n.First, u)
	case ast.AlwaysFalse(n.First):
		if err := c.lowerDiscarded(n.First, u); err != nil {
			return err
		}
		return c.Lower(n.Second, u)
	}
	if err := c.Lower(n.First, u); err != nil {
		return err
	}
	return u.performLogicalOr(nodeBranch(c, n.Second))
}

func (c *Compiler) lowerNot(n *ast.NotNode, u *Unit) error {
	if err := c.Lower(n.Condition, u); err != nil {
		return err
	}
	return u.performBooleanBranch(
		func(u *Unit) error { u.PushFalse(); return nil },
		func(u *Unit) error { u.PushTrue(); return nil },
	)
}

func (c *Compiler) lowerIf(n *ast.IfNode, u *Unit) error {
	switch {
	case ast.AlwaysTrue(n.Condition):
		if err := c.lowerDiscarded(n.Condition, u); err != nil {
			return err
		}
		return c.Lower(n.Then, u)
	case ast.AlwaysFalse(n.Condition):
		if err := c.lowerDiscarded(n.Condition, u); err != nil {
			return err
		}
		return c.Lower(n.Else, u)
	}
	if err := c.Lower(n.Condition, u); err != nil {
		return err
	}
	return u.performBooleanBranch(nodeBranch(c, n.Then), nodeBranch(c, n.Else))
}

// lowerCase tests when expressions in order with ===, or for truthiness
// when the case has no subject.
func (c *Compiler) lowerCase(n *ast.CaseNode, u *Unit) error {
	hasSubject := !ast.IsNil(n.Subject)
	if hasSubject {
		if err := c.Lower(n.Subject, u); err != nil {
			return err
		}
	}
	var tests []BranchCallback
	var owners []int
	bodies := make([]BranchCallback, 0, len(n.Whens))
	for i, when := range n.Whens {
		for _, expr := range when.Expressions {
			switch expr.(type) {
			case *ast.SplatNode, *ast.ArgsCatNode, *ast.ArgsPushNode:
				return notCompilable(expr, "splat in when clause")
			}
			expr := expr
			if hasSubject {
				tests = append(tests, func(u *Unit) error {
					u.Dup()
					if err := c.Lower(expr, u); err != nil {
						return err
					}
					u.Swap()
					u.Dispatch(emit.CallSite{Name: "===", Arity: 1, Discipline: emit.DispatchNormal})
					return nil
				})
			} else {
				tests = append(tests, nodeBranch(c, expr))
			}
			owners = append(owners, i)
		}
		body := when.Body
		bodies = append(bodies, func(u *Unit) error {
			if hasSubject {
				u.Pop()
			}
			return c.Lower(body, u)
		})
	}
	otherwise := func(u *Unit) error {
		if hasSubject {
			u.Pop()
		}
		return c.Lower(n.Else, u)
	}
	return u.sequencedConditional(tests, owners, bodies, otherwise)
}

// lowerFlip keeps the flip-flop state in a hidden local. Two-dot flips test
// the end condition on the same evaluation that turned them on.
func (c *Compiler) lowerFlip(n *ast.FlipNode, u *Unit) error {
	base := u.depth
	on := u.NewLabel()
	off := u.NewLabel()
	done := u.NewLabel()

	u.LoadLocal(n.Slot, n.Depth)
	u.BranchIfTrue(on)

	// state off: test begin
	if err := c.Lower(n.Begin, u); err != nil {
		return err
	}
	u.BranchIfFalse(off)
	if n.Exclusive {
		u.PushTrue()
		u.StoreLocal(n.Slot, n.Depth)
	} else {
		stayOff := u.NewLabel()
		if err := c.Lower(n.End, u); err != nil {
			return err
		}
		u.BranchIfTrue(stayOff)
		u.PushTrue()
		u.StoreLocal(n.Slot, n.Depth)
		u.MarkLabel(stayOff)
	}
	u.PushTrue()
	u.Branch(done)

	// state on: test end
	u.MarkLabel(on)
	u.setDepth(base)
	stillOn := u.NewLabel()
	if err := c.Lower(n.End, u); err != nil {
		return err
	}
	u.BranchIfFalse(stillOn)
	u.PushFalse()
	u.StoreLocal(n.Slot, n.Depth)
	u.MarkLabel(stillOn)
	u.PushTrue()
	u.Branch(done)

	u.MarkLabel(off)
	u.setDepth(base)
	u.PushFalse()
	u.MarkLabel(done)
	return nil
}

func (c *Compiler) matchOperator(u *Unit) {
	u.Dispatch(emit.CallSite{Name: "=~", Arity: 1, Discipline: emit.DispatchNormal})
}

// lowerMatch matches a bare regexp against $_.
func (c *Compiler) lowerMatch(n *ast.MatchNode, u *Unit) error {
	if err := c.Lower(n.Regexp, u); err != nil {
		return err
	}
	u.LoadGlobal("$_")
	c.matchOperator(u)
	return nil
}

func (c *Compiler) lowerMatch2(n *ast.Match2Node, u *Unit) error {
	if err := c.Lower(n.Receiver, u); err != nil {
		return err
	}
	if err := c.Lower(n.Value, u); err != nil {
		return err
	}
	c.matchOperator(u)
	return nil
}

// lowerMatch3 sends =~ to the value with the regexp as argument, so a
// string subject keeps String#=~ semantics.
func (c *Compiler) lowerMatch3(n *ast.Match3Node, u *Unit) error {
	if err := c.Lower(n.Value, u); err != nil {
		return err
	}
	if err := c.Lower(n.Receiver, u); err != nil {
		return err
	}
	c.matchOperator(u)
	return nil
}
