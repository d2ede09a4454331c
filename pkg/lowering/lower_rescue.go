package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

// RescueHandler runs with the prior $! and the caught exception on the
// stack and must reach done with exactly one value in their place. retry
// restarts the protected region.
type RescueHandler func(u *Unit, retry, done emit.Label) error

// performRescue runs body in a protected region. When body completes,
// orElse (if any) replaces its value outside the region. When it raises,
// $! is bound to the exception and handler takes over.
func (u *Unit) performRescue(body, orElse BranchCallback, handler RescueHandler) error {
	base := u.depth
	retry := u.NewLabel()
	caught := u.NewLabel()
	done := u.NewLabel()

	u.MarkLabel(retry)
	u.BeginProtected(emit.ProtectRescue, caught)
	u.pushFrame(jumpFrame{kind: frameProtected, depth: base, protect: emit.ProtectRescue})
	if err := body(u); err != nil {
		return err
	}
	u.popFrame()
	u.EndProtected()
	if orElse != nil {
		u.Pop()
		if err := orElse(u); err != nil {
			return err
		}
	}
	u.Branch(done)

	u.setDepth(base)
	u.BeginHandler(caught)
	// [exc] -> [prior, exc] with $! = exc
	u.LoadGlobal("$!")
	u.Swap()
	u.Dup()
	u.StoreGlobal("$!")
	if err := handler(u, retry, done); err != nil {
		return err
	}
	u.MarkLabel(done)
	u.setDepth(base + 1)
	return nil
}

func (c *Compiler) lowerRescue(n *ast.RescueNode, u *Unit) error {
	var clauses []*ast.RescueBodyNode
	for cl := n.Rescue; cl != nil; cl = cl.Next {
		if _, err := exceptionClasses(cl); err != nil {
			return err
		}
		clauses = append(clauses, cl)
	}
	var orElse BranchCallback
	if !ast.IsNil(n.Else) {
		orElse = nodeBranch(c, n.Else)
	}
	return u.performRescue(nodeBranch(c, n.Body), orElse, func(u *Unit, retry, done emit.Label) error {
		return c.lowerRescueClauses(clauses, u, retry, done)
	})
}

// exceptionClasses lists the class expressions of a clause. A nil list
// means the clause catches StandardError.
func exceptionClasses(cl *ast.RescueBodyNode) ([]ast.Node, error) {
	var classes []ast.Node
	switch e := cl.Exceptions.(type) {
	case *ast.ArrayNode:
		classes = e.Elements
	case *ast.SplatNode, *ast.ArgsCatNode, *ast.ArgsPushNode:
		return nil, notCompilable(cl, "splat in rescue class list")
	default:
		if !ast.IsNil(e) {
			classes = []ast.Node{e}
		}
	}
	if hasSplat(classes) {
		return nil, notCompilable(cl, "splat in rescue class list")
	}
	return classes, nil
}

// lowerRescueClauses tests each clause's classes left to right with ===
// and runs the first matching body. With no match the exception is
// rethrown after restoring $!.
func (c *Compiler) lowerRescueClauses(clauses []*ast.RescueBodyNode, u *Unit, retry, done emit.Label) error {
	base := u.depth - 2
	for _, cl := range clauses {
		classes, err := exceptionClasses(cl)
		if err != nil {
			return err
		}
		match := u.NewLabel()
		next := u.NewLabel()
		if len(classes) == 0 {
			u.Dup()
			u.LoadConst("StandardError", emit.ConstTop)
			u.Swap()
			u.Dispatch(emit.CallSite{Name: "===", Arity: 1, Discipline: emit.DispatchNormal})
			u.BranchIfTrue(match)
		}
		for _, class := range classes {
			u.Dup()
			if err := c.Lower(class, u); err != nil {
				return err
			}
			u.Swap()
			u.Dispatch(emit.CallSite{Name: "===", Arity: 1, Discipline: emit.DispatchNormal})
			u.BranchIfTrue(match)
		}
		u.Branch(next)

		u.MarkLabel(match)
		u.Pop()
		u.pushFrame(jumpFrame{kind: frameRescueHandler, depth: base + 1, retryLabel: retry})
		if err := c.Lower(cl.Body, u); err != nil {
			return err
		}
		u.popFrame()
		u.Swap()
		u.StoreGlobal("$!")
		u.Branch(done)

		u.MarkLabel(next)
		u.setDepth(base + 2)
	}
	u.Swap()
	u.StoreGlobal("$!")
	u.Rethrow()
	u.setDepth(base + 1)
	return nil
}
