package lowering

import (
	"math/big"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/inspector"
)

type frameKind int

const (
	frameLoop frameKind = iota
	frameProtected
	frameRescueHandler
)

// jumpFrame records a construct a break, next, redo, retry or return may
// have to leave. depth is the static stack depth when the frame opened.
type jumpFrame struct {
	kind  frameKind
	depth int

	breakLabel emit.Label
	nextLabel  emit.Label
	redoLabel  emit.Label

	protect emit.ProtectKind
	ensure  ast.Node

	retryLabel emit.Label
}

// Unit is one compilation unit being lowered. It forwards every primitive to
// its target and keeps a static count of the operand stack depth, which
// jumps use to discard what they leave behind.
type Unit struct {
	c      *Compiler
	t      emit.Target
	kind   emit.UnitKind
	name   string
	scope  *ast.Scope
	record inspector.Record
	lambda bool

	depth  int
	frames []jumpFrame

	// redo restarts a closure body.
	redo    emit.Label
	hasRedo bool
}

func newUnit(c *Compiler, t emit.Target, spec emit.UnitSpec) *Unit {
	return &Unit{
		c:      c,
		t:      t,
		kind:   spec.Kind,
		name:   spec.Name,
		scope:  spec.Scope,
		record: spec.Record,
		lambda: spec.Lambda,
	}
}

func (u *Unit) Kind() emit.UnitKind { return u.kind }

func (u *Unit) Depth() int { return u.depth }

func (u *Unit) Record() inspector.Record { return u.record }

// setDepth resumes tracking after an unconditional transfer, where the
// following code is only reachable through a label.
func (u *Unit) setDepth(d int) { u.depth = d }

func (u *Unit) adjust(delta int) { u.depth += delta }

func (u *Unit) pushFrame(f jumpFrame) int {
	u.frames = append(u.frames, f)
	return len(u.frames) - 1
}

func (u *Unit) popFrame() { u.frames = u.frames[:len(u.frames)-1] }

func (u *Unit) innermost(kind frameKind) int {
	for i := len(u.frames) - 1; i >= 0; i-- {
		if u.frames[i].kind == kind {
			return i
		}
	}
	return -1
}

// dropTo discards stack values above depth. With carry the top value is
// kept and the values beneath it are discarded.
func (u *Unit) dropTo(depth int, carry bool) {
	if carry {
		for u.depth-1 > depth {
			u.Swap()
			u.Pop()
		}
		return
	}
	for u.depth > depth {
		u.Pop()
	}
}

// exitFrames leaves every frame above index target, running the cleanup
// each one needs: protected regions are closed and ensure bodies inlined,
// rescue handlers restore the prior $!. The stack is left at the target
// frame's depth, plus the carried value.
func (u *Unit) exitFrames(target int, carry bool) error {
	base := 0
	if target >= 0 {
		base = u.frames[target].depth
	}
	return u.exitFramesTo(target, base, carry)
}

// exitFramesTo is exitFrames with an explicit final depth, for jumps that
// land deeper than the enclosing frame's base.
func (u *Unit) exitFramesTo(target, base int, carry bool) error {
	saved := u.frames
	defer func() { u.frames = saved }()
	for i := len(saved) - 1; i > target; i-- {
		f := saved[i]
		u.dropTo(f.depth, carry)
		u.frames = append([]jumpFrame(nil), saved[:i]...)
		switch f.kind {
		case frameProtected:
			u.EndProtected()
			if f.ensure != nil {
				if err := u.c.lowerDiscarded(f.ensure, u); err != nil {
					return err
				}
			}
		case frameRescueHandler:
			if carry {
				u.Swap()
			}
			u.StoreGlobal("$!")
		}
	}
	u.dropTo(base, carry)
	return nil
}

// Primitive forwarding. Each method applies the primitive's stack effect.

func (u *Unit) PushNil()              { u.t.PushNil(); u.adjust(1) }
func (u *Unit) PushTrue()             { u.t.PushTrue(); u.adjust(1) }
func (u *Unit) PushFalse()            { u.t.PushFalse(); u.adjust(1) }
func (u *Unit) PushSelf()             { u.t.PushSelf(); u.adjust(1) }
func (u *Unit) PushInt(v int64)       { u.t.PushInt(v); u.adjust(1) }
func (u *Unit) PushBignum(v *big.Int) { u.t.PushBignum(v); u.adjust(1) }
func (u *Unit) PushFloat(v float64)   { u.t.PushFloat(v); u.adjust(1) }
func (u *Unit) PushString(v string)   { u.t.PushString(v); u.adjust(1) }
func (u *Unit) PushSymbol(v string)   { u.t.PushSymbol(v); u.adjust(1) }

func (u *Unit) PushRegexp(source string, options ast.RegexpOptions) {
	u.t.PushRegexp(source, options)
	u.adjust(1)
}

func (u *Unit) LoadLocal(slot, depth int)  { u.t.LoadLocal(slot, depth); u.adjust(1) }
func (u *Unit) StoreLocal(slot, depth int) { u.t.StoreLocal(slot, depth); u.adjust(-1) }
func (u *Unit) LoadGlobal(name string)     { u.t.LoadGlobal(name); u.adjust(1) }
func (u *Unit) StoreGlobal(name string)    { u.t.StoreGlobal(name); u.adjust(-1) }
func (u *Unit) LoadIvar(name string)       { u.t.LoadIvar(name); u.adjust(1) }
func (u *Unit) StoreIvar(name string)      { u.t.StoreIvar(name); u.adjust(-1) }
func (u *Unit) LoadCvar(name string)       { u.t.LoadCvar(name); u.adjust(1) }
func (u *Unit) StoreCvar(name string)      { u.t.StoreCvar(name); u.adjust(-1) }

func (u *Unit) LoadConst(name string, scope emit.ConstScope) {
	u.t.LoadConst(name, scope)
	if scope != emit.ConstQualified {
		u.adjust(1)
	}
}

func (u *Unit) StoreConst(name string, scope emit.ConstScope) {
	u.t.StoreConst(name, scope)
	if scope == emit.ConstQualified {
		u.adjust(-2)
		return
	}
	u.adjust(-1)
}

func (u *Unit) Dup()          { u.t.Dup(); u.adjust(1) }
func (u *Unit) Dup2()         { u.t.Dup2(); u.adjust(2) }
func (u *Unit) DupX1()        { u.t.DupX1(); u.adjust(1) }
func (u *Unit) DupX2()        { u.t.DupX2(); u.adjust(1) }
func (u *Unit) Swap()         { u.t.Swap() }
func (u *Unit) Pop()          { u.t.Pop(); u.adjust(-1) }
func (u *Unit) Reverse(n int) { u.t.Reverse(n) }

func (u *Unit) Dispatch(site emit.CallSite) {
	u.t.Dispatch(site)
	pops := 1
	switch {
	case site.ZSuper:
	case site.Arity == emit.Variadic:
		pops++
	default:
		pops += site.Arity
	}
	if site.HasBlock {
		pops++
	}
	u.adjust(1 - pops)
}

func (u *Unit) NewLabel() emit.Label       { return u.t.NewLabel() }
func (u *Unit) MarkLabel(l emit.Label)     { u.t.MarkLabel(l) }
func (u *Unit) Branch(l emit.Label)        { u.t.Branch(l) }
func (u *Unit) BranchIfTrue(l emit.Label)  { u.t.BranchIfTrue(l); u.adjust(-1) }
func (u *Unit) BranchIfFalse(l emit.Label) { u.t.BranchIfFalse(l); u.adjust(-1) }

func (u *Unit) PushClosure(ref emit.UnitRef) { u.t.PushClosure(ref); u.adjust(1) }

func (u *Unit) DefineMethod(name string, ref emit.UnitRef) {
	u.t.DefineMethod(name, ref)
	u.adjust(1)
}

func (u *Unit) DefineSingletonMethod(name string, ref emit.UnitRef) {
	u.t.DefineSingletonMethod(name, ref)
}

func (u *Unit) OpenClass(name string, ref emit.UnitRef, path emit.ConstScope, hasSuper bool) {
	u.t.OpenClass(name, ref, path, hasSuper)
	delta := 1
	if path == emit.ConstQualified {
		delta--
	}
	if hasSuper {
		delta--
	}
	u.adjust(delta)
}

func (u *Unit) OpenModule(name string, ref emit.UnitRef, path emit.ConstScope) {
	u.t.OpenModule(name, ref, path)
	if path != emit.ConstQualified {
		u.adjust(1)
	}
}

func (u *Unit) OpenSingletonClass(ref emit.UnitRef)  { u.t.OpenSingletonClass(ref) }
func (u *Unit) AliasMethod(newName, oldName string) { u.t.AliasMethod(newName, oldName); u.adjust(1) }
func (u *Unit) AliasGlobal(newName, oldName string) { u.t.AliasGlobal(newName, oldName); u.adjust(1) }
func (u *Unit) UndefMethod(name string)             { u.t.UndefMethod(name); u.adjust(1) }
func (u *Unit) AtExit(ref emit.UnitRef)             { u.t.AtExit(ref); u.adjust(1) }

func (u *Unit) BeginProtected(kind emit.ProtectKind, handler emit.Label) {
	u.t.BeginProtected(kind, handler)
}

func (u *Unit) BeginHandler(handler emit.Label) { u.t.BeginHandler(handler); u.adjust(1) }
func (u *Unit) EndProtected()                   { u.t.EndProtected() }
func (u *Unit) Rethrow()                        { u.t.Rethrow(); u.adjust(-1) }

func (u *Unit) CheckArity(arity emit.Arity) { u.t.CheckArity(arity) }
func (u *Unit) LoadArg(i int)               { u.t.LoadArg(i); u.adjust(1) }
func (u *Unit) ArgGiven(i int)              { u.t.ArgGiven(i); u.adjust(1) }
func (u *Unit) RestArgs(from int)           { u.t.RestArgs(from); u.adjust(1) }
func (u *Unit) LoadBlock()                  { u.t.LoadBlock(); u.adjust(1) }

func (u *Unit) MakeArray(n int)          { u.t.MakeArray(n); u.adjust(1 - n) }
func (u *Unit) MakeHash(pairs int)       { u.t.MakeHash(pairs); u.adjust(1 - 2*pairs) }
func (u *Unit) MakeRange(exclusive bool) { u.t.MakeRange(exclusive); u.adjust(-1) }
func (u *Unit) ConcatStrings(n int)      { u.t.ConcatStrings(n); u.adjust(1 - n) }
func (u *Unit) AsString()                { u.t.AsString() }

func (u *Unit) MakeDynamicRegexp(n int, options ast.RegexpOptions) {
	u.t.MakeDynamicRegexp(n, options)
	u.adjust(1 - n)
}

func (u *Unit) Splat()                        { u.t.Splat() }
func (u *Unit) ToAry()                        { u.t.ToAry() }
func (u *Unit) ArgsCat()                      { u.t.ArgsCat(); u.adjust(-1) }
func (u *Unit) ArgsPush()                     { u.t.ArgsPush(); u.adjust(-1) }
func (u *Unit) SValue()                       { u.t.SValue() }
func (u *Unit) ToMultipleAssignable()         { u.t.ToMultipleAssignable() }
func (u *Unit) ArrayRef(i int)                { u.t.ArrayRef(i) }
func (u *Unit) ArraySlice(pre, post int)      { u.t.ArraySlice(pre, post) }
func (u *Unit) ArrayTailRef(pre, post, i int) { u.t.ArrayTailRef(pre, post, i) }

func (u *Unit) ToProc() { u.t.ToProc() }

func (u *Unit) Yield(arity int) {
	u.t.Yield(arity)
	if arity != emit.Variadic {
		u.adjust(1 - arity)
	}
}

func (u *Unit) Return() { u.t.Return(); u.adjust(-1) }
func (u *Unit) Break()  { u.t.Break(); u.adjust(-1) }
func (u *Unit) Next()   { u.t.Next(); u.adjust(-1) }

func (u *Unit) Probe(kind emit.ProbeKind, name string) {
	u.t.Probe(kind, name)
	u.adjust(1 - kind.Pops())
}

func (u *Unit) Position(pos ast.Position) { u.t.Position(pos) }
