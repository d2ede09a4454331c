package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

// BranchCallback emits code that leaves exactly one value on the stack.
type BranchCallback func(u *Unit) error

// ValueCallback has the same contract as BranchCallback; it names a single
// value produced from deep inside another rule, such as a call receiver.
type ValueCallback func(u *Unit) error

// ArrayCallback lowers the index-th logical element of source.
type ArrayCallback func(u *Unit, source any, index int) error

// ArgumentsCallback pushes a call's arguments. Arity is emit.Variadic when
// they arrive as a single array.
type ArgumentsCallback interface {
	Arity() int
	Call(u *Unit) error
}

type argumentsFunc struct {
	arity int
	fn    func(u *Unit) error
}

func (a argumentsFunc) Arity() int         { return a.arity }
func (a argumentsFunc) Call(u *Unit) error { return a.fn(u) }

func nodeBranch(c *Compiler, n ast.Node) BranchCallback {
	return func(u *Unit) error { return c.Lower(n, u) }
}

func pushNilBranch(u *Unit) error {
	u.PushNil()
	return nil
}

// performBooleanBranch consumes the value on top of the stack and runs one
// of the branches on its truthiness.
func (u *Unit) performBooleanBranch(trueBranch, falseBranch BranchCallback) error {
	elseLabel := u.NewLabel()
	endLabel := u.NewLabel()
	u.BranchIfFalse(elseLabel)
	base := u.depth
	if err := trueBranch(u); err != nil {
		return err
	}
	u.Branch(endLabel)
	u.MarkLabel(elseLabel)
	u.setDepth(base)
	if err := falseBranch(u); err != nil {
		return err
	}
	u.MarkLabel(endLabel)
	return nil
}

// performLogicalAnd keeps the left value when it is falsy and otherwise
// replaces it with the right operand.
func (u *Unit) performLogicalAnd(right BranchCallback) error {
	return u.shortCircuit(right, false)
}

func (u *Unit) performLogicalOr(right BranchCallback) error {
	return u.shortCircuit(right, true)
}

func (u *Unit) shortCircuit(right BranchCallback, keepWhenTrue bool) error {
	end := u.NewLabel()
	u.Dup()
	if keepWhenTrue {
		u.BranchIfTrue(end)
	} else {
		u.BranchIfFalse(end)
	}
	u.Pop()
	if err := right(u); err != nil {
		return err
	}
	u.MarkLabel(end)
	return nil
}

// performBooleanLoop lowers a while or until loop. The loop's value is nil
// unless a break carries one out.
func (u *Unit) performBooleanLoop(condition, body BranchCallback, checkFirst, until bool) error {
	base := u.depth
	bodyLabel := u.NewLabel()
	condLabel := u.NewLabel()
	breakLabel := u.NewLabel()

	if checkFirst {
		u.Branch(condLabel)
	}
	u.MarkLabel(bodyLabel)
	u.pushFrame(jumpFrame{kind: frameLoop, depth: base, breakLabel: breakLabel, nextLabel: condLabel, redoLabel: bodyLabel})
	if err := body(u); err != nil {
		return err
	}
	u.Pop()
	u.popFrame()

	u.MarkLabel(condLabel)
	if err := condition(u); err != nil {
		return err
	}
	if until {
		u.BranchIfFalse(bodyLabel)
	} else {
		u.BranchIfTrue(bodyLabel)
	}
	u.PushNil()
	u.MarkLabel(breakLabel)
	return nil
}

// performInfiniteLoop is a loop whose condition folded to always true.
func (u *Unit) performInfiniteLoop(body BranchCallback) error {
	base := u.depth
	bodyLabel := u.NewLabel()
	breakLabel := u.NewLabel()
	u.MarkLabel(bodyLabel)
	u.pushFrame(jumpFrame{kind: frameLoop, depth: base, breakLabel: breakLabel, nextLabel: bodyLabel, redoLabel: bodyLabel})
	if err := body(u); err != nil {
		return err
	}
	u.Pop()
	u.popFrame()
	u.Branch(bodyLabel)
	u.setDepth(base + 1)
	u.MarkLabel(breakLabel)
	return nil
}

func (u *Unit) createArray(source any, count int, element ArrayCallback) error {
	for i := 0; i < count; i++ {
		if err := element(u, source, i); err != nil {
			return err
		}
	}
	u.MakeArray(count)
	return nil
}

// createHash lowers count key/value pairs; element is called with
// 2*pair and 2*pair+1.
func (u *Unit) createHash(source any, pairs int, element ArrayCallback) error {
	for i := 0; i < 2*pairs; i++ {
		if err := element(u, source, i); err != nil {
			return err
		}
	}
	u.MakeHash(pairs)
	return nil
}

func (u *Unit) createString(source any, count int, element ArrayCallback) error {
	for i := 0; i < count; i++ {
		if err := element(u, source, i); err != nil {
			return err
		}
	}
	u.ConcatStrings(count)
	return nil
}

// forEachInValueArray hands element i of the array on top of the stack to
// assign, for i in [start, start+count). The array stays on the stack.
func (u *Unit) forEachInValueArray(start, count int, source any, assign ArrayCallback) error {
	for i := start; i < start+count; i++ {
		u.Dup()
		u.ArrayRef(i)
		if err := assign(u, source, i); err != nil {
			return err
		}
	}
	return nil
}

// invoke evaluates receiver, arguments and block in that order and
// dispatches. A nil receiver means implicit self.
func (u *Unit) invoke(receiver ValueCallback, name string, discipline emit.Discipline, args ArgumentsCallback, block ValueCallback) error {
	if receiver == nil {
		u.PushSelf()
	} else if err := receiver(u); err != nil {
		return err
	}
	arity := 0
	if args != nil {
		arity = args.Arity()
		if err := args.Call(u); err != nil {
			return err
		}
	}
	if block != nil {
		if err := block(u); err != nil {
			return err
		}
	}
	u.Dispatch(emit.CallSite{Name: name, Arity: arity, Discipline: discipline, HasBlock: block != nil})
	return nil
}

// sequencedConditional tests each condition in order and runs the body of
// the first that holds, or otherwise. Each test consumes nothing and pushes
// a boolean.
func (u *Unit) sequencedConditional(tests []BranchCallback, owners []int, bodies []BranchCallback, otherwise BranchCallback) error {
	base := u.depth
	end := u.NewLabel()
	labels := make([]emit.Label, len(bodies))
	for i := range bodies {
		labels[i] = u.NewLabel()
	}
	for i, test := range tests {
		if err := test(u); err != nil {
			return err
		}
		u.BranchIfTrue(labels[owners[i]])
	}
	if err := otherwise(u); err != nil {
		return err
	}
	after := u.depth
	u.Branch(end)
	for i, body := range bodies {
		u.MarkLabel(labels[i])
		u.setDepth(base)
		if err := body(u); err != nil {
			return err
		}
		u.Branch(end)
	}
	u.MarkLabel(end)
	u.setDepth(after)
	return nil
}
