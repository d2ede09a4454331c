package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/inspector"
)

func (c *Compiler) lowerWhile(n *ast.WhileNode, u *Unit) error {
	return c.lowerLoop(n.Condition, n.Body, n.EvaluateAtStart, false, u)
}

func (c *Compiler) lowerUntil(n *ast.UntilNode, u *Unit) error {
	return c.lowerLoop(n.Condition, n.Body, n.EvaluateAtStart, true, u)
}

func (c *Compiler) lowerLoop(cond, body ast.Node, checkFirst, until bool, u *Unit) error {
	runsForever := ast.AlwaysTrue(cond) && ast.IsImmediate(cond)
	neverRuns := ast.AlwaysFalse(cond)
	if until {
		runsForever, neverRuns = ast.AlwaysFalse(cond), ast.AlwaysTrue(cond) && ast.IsImmediate(cond)
	}
	bodyCb := nodeBranch(c, body)
	switch {
	case runsForever:
		return u.performInfiniteLoop(bodyCb)
	case neverRuns && checkFirst:
		if err := c.lowerDiscarded(cond, u); err != nil {
			return err
		}
		u.PushNil()
		return nil
	case neverRuns:
		return u.performBooleanLoop(func(u *Unit) error {
			if err := c.lowerDiscarded(cond, u); err != nil {
				return err
			}
			if until {
				u.PushTrue()
			} else {
				u.PushFalse()
			}
			return nil
		}, bodyCb, false, until)
	}
	return u.performBooleanLoop(nodeBranch(c, cond), bodyCb, checkFirst, until)
}

// lowerFor calls each on the iterable with a closure that assigns the
// block argument to the loop variable in the enclosing scope.
func (c *Compiler) lowerFor(n *ast.ForNode, u *Unit) error {
	if err := c.Lower(n.Iter, u); err != nil {
		return err
	}
	record := inspector.InspectBody("for", c.opts.Inspector, nil, n.Body)
	spec := emit.UnitSpec{
		Kind:       emit.UnitClosure,
		Name:       "for",
		Scope:      n.Scope,
		Arity:      emit.Arity{Required: 1},
		Record:     record,
		CallConfig: record.CallConfig(),
		Pos:        n.Position(),
	}
	child := c.beginChild(u, spec)
	child.LoadArg(0)
	if err := c.assign(n.Var, child); err != nil {
		return err
	}
	if err := c.lowerClosureBody(n, n.Body, child); err != nil {
		return err
	}
	u.PushClosure(child.t.EndUnit())
	u.Dispatch(emit.CallSite{Name: "each", Discipline: emit.DispatchNormal, HasBlock: true})
	return nil
}

func (c *Compiler) lowerBreak(n *ast.BreakNode, u *Unit) error {
	if err := c.Lower(n.Value, u); err != nil {
		return err
	}
	before := u.depth
	if loop := u.innermost(frameLoop); loop >= 0 {
		target := u.frames[loop].breakLabel
		if err := u.exitFrames(loop, true); err != nil {
			return err
		}
		u.Branch(target)
		u.setDepth(before)
		return nil
	}
	if u.kind != emit.UnitClosure {
		return notCompilable(n, "break outside a loop or block")
	}
	if err := u.exitFrames(-1, true); err != nil {
		return err
	}
	u.Break()
	u.setDepth(before)
	return nil
}

func (c *Compiler) lowerNext(n *ast.NextNode, u *Unit) error {
	if err := c.Lower(n.Value, u); err != nil {
		return err
	}
	before := u.depth
	if loop := u.innermost(frameLoop); loop >= 0 {
		target := u.frames[loop].nextLabel
		u.Pop()
		if err := u.exitFrames(loop, false); err != nil {
			return err
		}
		u.Branch(target)
		u.setDepth(before)
		return nil
	}
	if u.kind != emit.UnitClosure {
		return notCompilable(n, "next outside a loop or block")
	}
	if err := u.exitFrames(-1, true); err != nil {
		return err
	}
	u.Next()
	u.setDepth(before)
	return nil
}

func (c *Compiler) lowerRedo(n *ast.RedoNode, u *Unit) error {
	before := u.depth
	if loop := u.innermost(frameLoop); loop >= 0 {
		target := u.frames[loop].redoLabel
		if err := u.exitFrames(loop, false); err != nil {
			return err
		}
		u.Branch(target)
		u.setDepth(before + 1)
		return nil
	}
	if !u.hasRedo {
		return notCompilable(n, "redo outside a loop or block")
	}
	if err := u.exitFrames(-1, false); err != nil {
		return err
	}
	u.Branch(u.redo)
	u.setDepth(before + 1)
	return nil
}

// lowerRetry restarts the protected region of the innermost rescue whose
// handler is running.
func (c *Compiler) lowerRetry(n *ast.RetryNode, u *Unit) error {
	before := u.depth
	handler := u.innermost(frameRescueHandler)
	if handler < 0 {
		return notCompilable(n, "retry outside a rescue clause")
	}
	f := u.frames[handler]
	target := f.retryLabel
	// the handler frame's depth counts the saved $! above the rescue base
	if err := u.exitFramesTo(handler-1, f.depth-1, false); err != nil {
		return err
	}
	u.Branch(target)
	u.setDepth(before + 1)
	return nil
}

func (c *Compiler) lowerReturn(n *ast.ReturnNode, u *Unit) error {
	if err := c.Lower(n.Value, u); err != nil {
		return err
	}
	before := u.depth
	if err := u.exitFrames(-1, true); err != nil {
		return err
	}
	u.Return()
	u.setDepth(before)
	return nil
}
