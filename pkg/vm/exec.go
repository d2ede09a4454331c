package vm

import (
	"fmt"
	"io"
	"strings"

	"github.com/emirpasic/gods/stacks/arraystack"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/runtime"
)

// handler is an open protected region.
type handler struct {
	kind   emit.ProtectKind
	pc     int
	height int
}

// activation runs one unit: a method call, a block call, a class body or
// the root program.
type activation struct {
	vm      *VM
	unit    *emit.Unit
	env     *runtime.Env
	self    runtime.Value
	frame   *runtime.Frame
	lexical *runtime.ClassValue

	args  []runtime.Value
	block *runtime.ProcValue
	proc  *runtime.ProcValue

	stack    []runtime.Value
	handlers *arraystack.Stack
	pc       int
	pos      ast.Position
	fault    error
}

func (vm *VM) newActivation(unit *emit.Unit, env *runtime.Env, self runtime.Value, frame *runtime.Frame, lexical *runtime.ClassValue) *activation {
	return &activation{
		vm:       vm,
		unit:     unit,
		env:      env,
		self:     self,
		frame:    frame,
		lexical:  lexical,
		handlers: arraystack.New(),
		pos:      unit.Spec.Pos,
	}
}

func (a *activation) push(v runtime.Value) {
	if v == nil {
		v = runtime.Nil
	}
	a.stack = append(a.stack, v)
}

func (a *activation) pop() runtime.Value {
	if len(a.stack) == 0 {
		if a.fault == nil {
			a.fault = Internal.New("operand stack underflow in %q at pc %d", a.unit.Spec.Name, a.pc-1)
		}
		return runtime.Nil
	}
	v := a.stack[len(a.stack)-1]
	a.stack = a.stack[:len(a.stack)-1]
	return v
}

func (a *activation) peek(n int) runtime.Value {
	if n >= len(a.stack) {
		if a.fault == nil {
			a.fault = Internal.New("operand stack underflow in %q at pc %d", a.unit.Spec.Name, a.pc-1)
		}
		return runtime.Nil
	}
	return a.stack[len(a.stack)-1-n]
}

// popN returns the top n values in push order.
func (a *activation) popN(n int) []runtime.Value {
	if n > len(a.stack) {
		if a.fault == nil {
			a.fault = Internal.New("operand stack underflow in %q at pc %d", a.unit.Spec.Name, a.pc-1)
		}
		a.stack = a.stack[:0]
		return make([]runtime.Value, n)
	}
	out := append([]runtime.Value(nil), a.stack[len(a.stack)-n:]...)
	a.stack = a.stack[:len(a.stack)-n]
	return out
}

// run executes the unit to its end or to an exit instruction. The unit's
// value is what is left on top of the stack.
func (a *activation) run() (runtime.Value, error) {
	vm := a.vm
	vm.depth++
	defer func() { vm.depth-- }()
	if vm.depth > vm.opts.MaxCallDepth {
		return nil, a.Raise("SystemStackError", "stack level too deep")
	}
	code := a.unit.Code
	for a.pc < len(code) {
		in := &code[a.pc]
		a.pc++
		result, leave, err := a.step(in)
		if err == nil && a.fault != nil {
			return nil, a.fault
		}
		if err != nil {
			if a.recover(err) {
				continue
			}
			return nil, err
		}
		if leave {
			return result, nil
		}
	}
	if len(a.stack) == 0 {
		return runtime.Nil, nil
	}
	return a.stack[len(a.stack)-1], nil
}

// recover unwinds to the innermost protected region that takes err. The
// regions it passes are closed.
func (a *activation) recover(err error) bool {
	for !a.handlers.Empty() {
		top, _ := a.handlers.Pop()
		h := top.(handler)
		caught, ok := catchable(err, h.kind == emit.ProtectRescue)
		if !ok {
			continue
		}
		if h.height < len(a.stack) {
			a.stack = a.stack[:h.height]
		}
		a.push(caught)
		a.pc = h.pc
		return true
	}
	return false
}

func (a *activation) label(l emit.Label) int {
	pc := a.unit.LabelPC(l)
	if pc < 0 && a.fault == nil {
		a.fault = Internal.New("unresolved label L%d in %q", l, a.unit.Spec.Name)
	}
	return pc
}

func (a *activation) step(in *emit.Instr) (runtime.Value, bool, error) {
	vm := a.vm
	switch in.Op {
	case emit.OpPushNil:
		a.push(runtime.Nil)
	case emit.OpPushTrue:
		a.push(runtime.Bool(true))
	case emit.OpPushFalse:
		a.push(runtime.Bool(false))
	case emit.OpPushSelf:
		a.push(a.self)
	case emit.OpPushInt:
		a.push(runtime.Int(in.Int))
	case emit.OpPushBignum:
		a.push(runtime.IntegerValue{Val: runtime.CloneBigInt(in.Big)})
	case emit.OpPushFloat:
		a.push(runtime.FloatValue{Val: in.Float})
	case emit.OpPushString:
		a.push(runtime.Str(in.Str))
	case emit.OpPushSymbol:
		a.push(runtime.SymbolValue{Name: in.Str})
	case emit.OpPushRegexp:
		re, err := a.newRegexp(in.Str, in.Regexp)
		if err != nil {
			return nil, false, err
		}
		a.push(re)

	case emit.OpLoadLocal:
		a.push(a.env.Get(in.A, in.B))
	case emit.OpStoreLocal:
		a.env.Set(in.A, in.B, a.pop())
	case emit.OpLoadGlobal:
		a.push(vm.loadGlobal(in.Str))
	case emit.OpStoreGlobal:
		if err := a.storeGlobal(in.Str, a.pop()); err != nil {
			return nil, false, err
		}
	case emit.OpLoadIvar:
		a.push(a.loadIvar(in.Str))
	case emit.OpStoreIvar:
		if err := a.storeIvar(in.Str, a.pop()); err != nil {
			return nil, false, err
		}
	case emit.OpLoadCvar:
		v, owner := a.cvarBase().LookupCvar(in.Str)
		if owner == nil {
			return nil, false, a.Raise("NameError", "uninitialized class variable %s in %s", in.Str, a.cvarBase().QualifiedName())
		}
		a.push(v)
	case emit.OpStoreCvar:
		a.storeCvar(in.Str, a.pop())
	case emit.OpLoadConst:
		v, err := a.loadConst(in.Str, in.Const)
		if err != nil {
			return nil, false, err
		}
		a.push(v)
	case emit.OpStoreConst:
		if err := a.storeConst(in.Str, in.Const); err != nil {
			return nil, false, err
		}

	case emit.OpDup:
		a.push(a.peek(0))
	case emit.OpDup2:
		x, y := a.peek(1), a.peek(0)
		a.push(x)
		a.push(y)
	case emit.OpDupX1:
		b := a.pop()
		x := a.pop()
		a.push(b)
		a.push(x)
		a.push(b)
	case emit.OpDupX2:
		c := a.pop()
		b := a.pop()
		x := a.pop()
		a.push(c)
		a.push(x)
		a.push(b)
		a.push(c)
	case emit.OpSwap:
		b := a.pop()
		x := a.pop()
		a.push(b)
		a.push(x)
	case emit.OpPop:
		a.pop()
	case emit.OpReverse:
		vals := a.popN(in.A)
		for i := len(vals) - 1; i >= 0; i-- {
			a.push(vals[i])
		}

	case emit.OpDispatch:
		v, err := a.execDispatch(in.Site)
		if err != nil {
			return nil, false, err
		}
		a.push(v)

	case emit.OpBranch:
		a.pc = a.label(in.Label)
	case emit.OpBranchIfTrue:
		if runtime.Truthy(a.pop()) {
			a.pc = a.label(in.Label)
		}
	case emit.OpBranchIfFalse:
		if !runtime.Truthy(a.pop()) {
			a.pc = a.label(in.Label)
		}

	case emit.OpPushClosure:
		a.push(a.closure(in.Child))
	case emit.OpDefineMethod:
		a.defineMethod(a.definee(), in.Str, in.Child)
		a.push(runtime.Nil)
	case emit.OpDefineSingletonMethod:
		target, err := a.singletonClassOf(a.pop())
		if err != nil {
			return nil, false, err
		}
		target.Methods[in.Str] = &runtime.Method{Name: in.Str, Owner: target, Unit: in.Child, Lexical: a.lexical}
		a.push(runtime.Nil)
	case emit.OpOpenClass:
		v, err := a.openClass(in)
		if err != nil {
			return nil, false, err
		}
		a.push(v)
	case emit.OpOpenModule:
		v, err := a.openModule(in)
		if err != nil {
			return nil, false, err
		}
		a.push(v)
	case emit.OpOpenSingletonClass:
		sc, err := a.singletonClassOf(a.pop())
		if err != nil {
			return nil, false, err
		}
		v, err := a.runBody(sc, in.Child)
		if err != nil {
			return nil, false, err
		}
		a.push(v)
	case emit.OpAliasMethod:
		if err := a.aliasMethod(a.definee(), in.Str, in.Str2); err != nil {
			return nil, false, err
		}
		a.push(runtime.Nil)
	case emit.OpAliasGlobal:
		vm.globalAliases[in.Str] = vm.resolveGlobal(in.Str2)
		a.push(runtime.Nil)
	case emit.OpUndefMethod:
		if err := a.undefMethod(a.definee(), in.Str); err != nil {
			return nil, false, err
		}
		a.push(runtime.Nil)
	case emit.OpAtExit:
		vm.atExit = append(vm.atExit, a.closure(in.Child))
		a.push(runtime.Nil)

	case emit.OpBeginProtected:
		a.handlers.Push(handler{kind: in.Protect, pc: a.label(in.Label), height: len(a.stack)})
	case emit.OpBeginHandler:
		// the caught value was pushed when control arrived here
	case emit.OpEndProtected:
		if _, ok := a.handlers.Pop(); !ok && a.fault == nil {
			a.fault = Internal.New("end of protected region without a region in %q", a.unit.Spec.Name)
		}
	case emit.OpRethrow:
		return nil, false, a.rethrow(a.pop())

	case emit.OpCheckArity:
		if err := a.checkArity(in.Arity, len(a.args)); err != nil {
			return nil, false, err
		}
	case emit.OpLoadArg:
		if in.A < len(a.args) {
			a.push(a.args[in.A])
		} else {
			a.push(runtime.Nil)
		}
	case emit.OpArgGiven:
		a.push(runtime.Bool(in.A < len(a.args)))
	case emit.OpRestArgs:
		var rest []runtime.Value
		if in.A < len(a.args) {
			rest = append(rest, a.args[in.A:]...)
		}
		a.push(runtime.NewArray(rest...))
	case emit.OpLoadBlock:
		if a.block == nil {
			a.push(runtime.Nil)
		} else {
			a.push(a.block)
		}

	case emit.OpMakeArray:
		a.push(runtime.NewArray(a.popN(in.A)...))
	case emit.OpMakeHash:
		vals := a.popN(2 * in.A)
		h := runtime.NewHash()
		for i := 0; i < len(vals); i += 2 {
			h.Set(vals[i], vals[i+1])
		}
		a.push(h)
	case emit.OpMakeRange:
		end := a.pop()
		start := a.pop()
		a.push(runtime.RangeValue{Start: start, End: end, Exclusive: in.Flag})
	case emit.OpConcatStrings:
		var b strings.Builder
		for _, part := range a.popN(in.A) {
			s, err := a.toS(part)
			if err != nil {
				return nil, false, err
			}
			b.WriteString(s)
		}
		a.push(runtime.Str(b.String()))
	case emit.OpAsString:
		v := a.pop()
		if _, ok := v.(*runtime.StringValue); ok {
			a.push(v)
			break
		}
		s, err := a.toS(v)
		if err != nil {
			return nil, false, err
		}
		a.push(runtime.Str(s))
	case emit.OpMakeDynamicRegexp:
		var b strings.Builder
		for _, part := range a.popN(in.A) {
			s, err := a.toS(part)
			if err != nil {
				return nil, false, err
			}
			b.WriteString(s)
		}
		re, err := a.newRegexp(b.String(), in.Regexp)
		if err != nil {
			return nil, false, err
		}
		a.push(re)
	case emit.OpSplat:
		arr, err := a.splat(a.pop())
		if err != nil {
			return nil, false, err
		}
		a.push(arr)
	case emit.OpToAry, emit.OpToMultipleAssignable:
		arr, err := a.toAry(a.pop())
		if err != nil {
			return nil, false, err
		}
		a.push(arr)
	case emit.OpArgsCat:
		tail := a.pop()
		head := a.pop()
		a.push(runtime.NewArray(append(append([]runtime.Value(nil), elementsOf(head)...), elementsOf(tail)...)...))
	case emit.OpArgsPush:
		v := a.pop()
		head := a.pop()
		a.push(runtime.NewArray(append(append([]runtime.Value(nil), elementsOf(head)...), v)...))
	case emit.OpSValue:
		// arrays stay arrays; a splatted right-hand side is its array
	case emit.OpArrayRef:
		v := a.pop()
		arr, ok := v.(*runtime.ArrayValue)
		switch {
		case !ok && in.A == 0:
			a.push(v)
		case !ok || in.A >= len(arr.Elements):
			a.push(runtime.Nil)
		default:
			a.push(arr.Elements[in.A])
		}
	case emit.OpArraySlice:
		elems := elementsOf(a.pop())
		from, to := in.A, len(elems)-in.B
		if to < from {
			to = from
		}
		if from > len(elems) {
			from, to = len(elems), len(elems)
		}
		a.push(runtime.NewArray(append([]runtime.Value(nil), elems[from:to]...)...))
	case emit.OpArrayTailRef:
		elems := elementsOf(a.pop())
		middle := len(elems) - in.A - in.B
		if middle < 0 {
			middle = 0
		}
		idx := in.A + middle + in.C
		if idx < len(elems) {
			a.push(elems[idx])
		} else {
			a.push(runtime.Nil)
		}

	case emit.OpToProc:
		v, err := a.toProc(a.pop())
		if err != nil {
			return nil, false, err
		}
		a.push(v)
	case emit.OpYield:
		var args []runtime.Value
		if in.A == emit.Variadic {
			args = append(args, elementsOf(a.pop())...)
		} else {
			args = a.popN(in.A)
		}
		if a.frame == nil || a.frame.Block == nil {
			return nil, false, a.Raise("LocalJumpError", "no block given (yield)")
		}
		v, err := vm.callProc(a, a.frame.Block, args, nil)
		if err != nil {
			return nil, false, err
		}
		a.push(v)
	case emit.OpReturn:
		v := a.pop()
		switch {
		case a.unit.Spec.Kind == emit.UnitClass:
			return nil, false, a.Raise("LocalJumpError", "return from a class body")
		case a.proc != nil && !a.proc.Lambda:
			if a.frame == nil || a.frame.Returned {
				return nil, false, a.Raise("LocalJumpError", "unexpected return")
			}
			return nil, false, returnSignal{frame: a.frame, value: v}
		}
		return v, true, nil
	case emit.OpBreak:
		v := a.pop()
		if a.proc == nil {
			return nil, false, Internal.New("break outside a block in %q", a.unit.Spec.Name)
		}
		if a.proc.Lambda {
			return v, true, nil
		}
		return nil, false, breakSignal{proc: a.proc, value: v}
	case emit.OpNext:
		return a.pop(), true, nil

	case emit.OpProbe:
		ok, err := a.probe(in.Probe, in.Str)
		if err != nil {
			return nil, false, err
		}
		a.push(runtime.Bool(ok))
	case emit.OpPosition:
		a.pos = in.Pos
	default:
		return nil, false, Internal.New("unknown instruction %s", in.Op)
	}
	return nil, false, nil
}

func elementsOf(v runtime.Value) []runtime.Value {
	if arr, ok := v.(*runtime.ArrayValue); ok {
		return arr.Elements
	}
	return []runtime.Value{v}
}

func (a *activation) rethrow(v runtime.Value) error {
	switch x := v.(type) {
	case caughtSignal:
		return x.err
	case *runtime.ObjectValue:
		return a.vm.raiseObject(x)
	}
	return Internal.New("rethrow of %s", runtime.Inspect(v))
}

func (a *activation) closure(unit *emit.Unit) *runtime.ProcValue {
	return &runtime.ProcValue{
		Unit:    unit,
		Env:     a.env,
		Self:    a.self,
		Frame:   a.frame,
		Lexical: a.lexical,
		Lambda:  unit.Spec.Lambda,
	}
}

func (a *activation) checkArity(arity emit.Arity, given int) error {
	max := arity.Required + arity.Optional
	if given >= arity.Required && (arity.Rest || given <= max) {
		return nil
	}
	var expected string
	switch {
	case arity.Rest:
		expected = fmt.Sprintf("%d+", arity.Required)
	case arity.Optional > 0:
		expected = fmt.Sprintf("%d..%d", arity.Required, max)
	default:
		expected = fmt.Sprint(arity.Required)
	}
	return a.Raise("ArgumentError", "wrong number of arguments (given %d, expected %s)", given, expected)
}

//-----------------------------------------------------------------------------
// Caller
//-----------------------------------------------------------------------------

func (a *activation) Send(recv runtime.Value, name string, args []runtime.Value, block *runtime.ProcValue) (runtime.Value, error) {
	m := a.vm.classOf(recv).Lookup(name)
	if m == nil {
		return a.missing(recv, name, emit.DispatchFunctional, args, block)
	}
	return a.vm.invoke(a, recv, m, args, block)
}

func (a *activation) CallProc(p *runtime.ProcValue, args []runtime.Value) (runtime.Value, error) {
	return a.vm.callProc(a, p, args, nil)
}

func (a *activation) Raise(class string, format string, args ...any) error {
	c := a.vm.classNamed(class)
	if c == nil {
		c = a.vm.classNamed("RuntimeError")
	}
	return a.vm.raiseObject(a.vm.newException(c, fmt.Sprintf(format, args...), a.where()))
}

// raiseWith is Raise with instance variables preset on the exception,
// such as NameError's @name.
func (a *activation) raiseWith(class string, ivars map[string]runtime.Value, format string, args ...any) error {
	err := a.Raise(class, format, args...)
	if re, ok := err.(*RaiseError); ok {
		for k, v := range ivars {
			re.Exception.Ivars[k] = v
		}
	}
	return err
}

func (a *activation) Frame() *runtime.Frame {
	if !a.unit.Spec.CallConfig.HasFrame() {
		return nil
	}
	return a.frame
}

func (a *activation) Scope() *runtime.Env {
	if !a.unit.Spec.CallConfig.HasScope() {
		return nil
	}
	return a.env
}

func (a *activation) ClassOf(v runtime.Value) *runtime.ClassValue { return a.vm.classOf(v) }

func (a *activation) Stdout() io.Writer { return a.vm.opts.Stdout }

func (a *activation) where() string {
	name := a.unit.Spec.Name
	if a.frame != nil && a.frame.Method != "" {
		name = a.frame.Method
	}
	return fmt.Sprintf("%s:in `%s'", a.pos, name)
}

var _ runtime.Caller = (*activation)(nil)
