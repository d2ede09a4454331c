package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

// performEnsure runs body in a region whose handler catches everything,
// including non-local jumps, runs ensure and rethrows. Jumps that leave the
// region statically get ensure inlined by exitFrames.
func (u *Unit) performEnsure(body BranchCallback, ensure ast.Node) error {
	base := u.depth
	handler := u.NewLabel()
	done := u.NewLabel()

	u.BeginProtected(emit.ProtectEnsure, handler)
	u.pushFrame(jumpFrame{kind: frameProtected, depth: base, protect: emit.ProtectEnsure, ensure: ensure})
	if err := body(u); err != nil {
		return err
	}
	u.popFrame()
	u.EndProtected()
	if err := u.c.lowerDiscarded(ensure, u); err != nil {
		return err
	}
	u.Branch(done)

	u.setDepth(base)
	u.BeginHandler(handler)
	if err := u.c.lowerDiscarded(ensure, u); err != nil {
		return err
	}
	u.Rethrow()
	u.setDepth(base + 1)
	u.MarkLabel(done)
	return nil
}

func (c *Compiler) lowerEnsure(n *ast.EnsureNode, u *Unit) error {
	return u.performEnsure(nodeBranch(c, n.Body), n.Ensure)
}

// performProbe evaluates body, which pushes a boolean, in a region that
// turns any failure into nil.
func (u *Unit) performProbe(body BranchCallback) error {
	base := u.depth
	handler := u.NewLabel()
	done := u.NewLabel()

	u.BeginProtected(emit.ProtectProbe, handler)
	u.pushFrame(jumpFrame{kind: frameProtected, depth: base, protect: emit.ProtectProbe})
	if err := body(u); err != nil {
		return err
	}
	u.popFrame()
	u.EndProtected()
	u.Branch(done)

	u.setDepth(base)
	u.BeginHandler(handler)
	u.Pop()
	u.PushNil()
	u.MarkLabel(done)
	return nil
}
