package vm

import (
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/runtime"
)

// execDispatch pops the operands of a call site and performs the call. A
// break out of the block passed here ends the call with the break value.
func (a *activation) execDispatch(site emit.CallSite) (runtime.Value, error) {
	var blockArg runtime.Value = runtime.Nil
	if site.HasBlock {
		blockArg = a.pop()
	}
	var args []runtime.Value
	switch {
	case site.ZSuper:
	case site.Arity == emit.Variadic:
		args = append(args, elementsOf(a.pop())...)
	default:
		args = a.popN(site.Arity)
	}
	recv := a.pop()
	if a.fault != nil {
		return nil, a.fault
	}
	var blk *runtime.ProcValue
	switch b := blockArg.(type) {
	case *runtime.ProcValue:
		blk = b
	case runtime.NilValue:
	default:
		return nil, a.Raise("TypeError", "wrong argument type %s (expected Proc)", a.vm.realClassOf(blockArg).QualifiedName())
	}
	v, err := a.dispatch(recv, site, args, blk)
	if bs, ok := err.(breakSignal); ok && blk != nil && bs.proc == blk {
		return bs.value, nil
	}
	return v, err
}

func (a *activation) dispatch(recv runtime.Value, site emit.CallSite, args []runtime.Value, blk *runtime.ProcValue) (runtime.Value, error) {
	if site.Discipline == emit.DispatchSuper {
		return a.callSuper(site, args, blk)
	}
	m := a.vm.classOf(recv).Lookup(site.Name)
	if m == nil {
		return a.missing(recv, site.Name, site.Discipline, args, blk)
	}
	if site.Discipline == emit.DispatchNormal {
		if err := a.checkVisibility(recv, m); err != nil {
			return nil, err
		}
	}
	return a.vm.invoke(a, recv, m, args, blk)
}

func (a *activation) callSuper(site emit.CallSite, args []runtime.Value, blk *runtime.ProcValue) (runtime.Value, error) {
	f := a.Frame()
	if f == nil {
		return nil, Unsound.New("super in %q without a frame", a.unit.Spec.Name)
	}
	if f.Owner == nil || f.Method == "" {
		return nil, a.Raise("RuntimeError", "super called outside of method")
	}
	if site.ZSuper {
		args = append([]runtime.Value(nil), f.Args...)
	}
	if blk == nil && !site.HasBlock {
		blk = f.Block
	}
	m := a.vm.classOf(a.self).LookupAfter(f.Owner, f.Method)
	if m == nil {
		return nil, a.Raise("NoMethodError", "super: no superclass method `%s' for %s", f.Method, a.vm.describe(a.self))
	}
	return a.vm.invoke(a, a.self, m, args, blk)
}

func (a *activation) checkVisibility(recv runtime.Value, m *runtime.Method) error {
	switch m.Visibility {
	case runtime.Private:
		return a.Raise("NoMethodError", "private method `%s' called for %s", m.Name, a.vm.describe(recv))
	case runtime.Protected:
		if !a.vm.isA(a.self, m.Owner) {
			return a.Raise("NoMethodError", "protected method `%s' called for %s", m.Name, a.vm.describe(recv))
		}
	}
	return nil
}

// missing hands an unresolved call to a user-defined method_missing, or
// raises.
func (a *activation) missing(recv runtime.Value, name string, discipline emit.Discipline, args []runtime.Value, blk *runtime.ProcValue) (runtime.Value, error) {
	if mm := a.vm.classOf(recv).Lookup("method_missing"); mm != nil && mm.Native == nil {
		full := append([]runtime.Value{runtime.SymbolValue{Name: name}}, args...)
		return a.vm.invoke(a, recv, mm, full, blk)
	}
	return nil, a.noMethod(recv, name, discipline)
}

func (a *activation) noMethod(recv runtime.Value, name string, discipline emit.Discipline) error {
	ivars := map[string]runtime.Value{"@name": runtime.SymbolValue{Name: name}, "@receiver": recv}
	if discipline == emit.DispatchVariable {
		return a.raiseWith("NameError", ivars, "undefined local variable or method `%s' for %s", name, a.vm.describe(recv))
	}
	return a.raiseWith("NoMethodError", ivars, "undefined method `%s' for %s", name, a.vm.describe(recv))
}

// invoke runs m with recv as self. caller is the activation whose frame
// native methods see.
func (vm *VM) invoke(caller *activation, recv runtime.Value, m *runtime.Method, args []runtime.Value, blk *runtime.ProcValue) (runtime.Value, error) {
	if m.Native != nil {
		if m.Arity >= 0 && len(args) != m.Arity {
			return nil, caller.Raise("ArgumentError", "wrong number of arguments (given %d, expected %d)", len(args), m.Arity)
		}
		return m.Native(caller, recv, args, blk)
	}
	unit := m.Unit
	frame := &runtime.Frame{
		Self:      recv,
		Method:    m.Name,
		Owner:     m.Owner,
		Args:      args,
		Block:     blk,
		Lexical:   m.Lexical,
		Allocated: unit.Spec.CallConfig.HasFrame(),
	}
	act := vm.newActivation(unit, runtime.NewEnv(unit.Spec.Scope, nil), recv, frame, m.Lexical)
	act.args, act.block = args, blk
	v, err := act.run()
	frame.Returned = true
	if rs, ok := err.(returnSignal); ok && rs.frame == frame {
		return rs.value, nil
	}
	return v, err
}

// callProc runs a block or lambda. Blocks taking several parameters
// spread a single array argument over them.
func (vm *VM) callProc(caller *activation, p *runtime.ProcValue, args []runtime.Value, blk *runtime.ProcValue) (runtime.Value, error) {
	if p.Native != nil {
		return p.Native(caller, args, blk)
	}
	spec := p.Unit.Spec
	if !p.Lambda && len(args) == 1 {
		params := spec.Arity.Required + spec.Arity.Optional
		if params > 1 || (spec.Arity.Rest && params > 0) {
			if arr, ok := args[0].(*runtime.ArrayValue); ok {
				args = append([]runtime.Value(nil), arr.Elements...)
			}
		}
	}
	act := vm.newActivation(p.Unit, runtime.NewEnv(spec.Scope, p.Env), p.Self, p.Frame, p.Lexical)
	act.args, act.block, act.proc = args, blk, p
	return act.run()
}

//-----------------------------------------------------------------------------
// Class model
//-----------------------------------------------------------------------------

// classOf is the class method lookup starts at, singleton classes
// included.
func (vm *VM) classOf(v runtime.Value) *runtime.ClassValue {
	switch x := v.(type) {
	case *runtime.ObjectValue:
		if x.Singleton != nil {
			return x.Singleton
		}
		return x.Class
	case *runtime.ClassValue:
		return vm.metaclass(x)
	}
	return vm.realClassOf(v)
}

// realClassOf is what Object#class answers.
func (vm *VM) realClassOf(v runtime.Value) *runtime.ClassValue {
	switch x := v.(type) {
	case nil, runtime.NilValue:
		return vm.nilClass
	case runtime.BoolValue:
		if x.Val {
			return vm.trueClass
		}
		return vm.falseClass
	case runtime.IntegerValue:
		return vm.integer
	case runtime.FloatValue:
		return vm.float
	case *runtime.StringValue:
		return vm.str
	case runtime.SymbolValue:
		return vm.symbol
	case *runtime.ArrayValue:
		return vm.array
	case *runtime.HashValue:
		return vm.hash
	case runtime.RangeValue:
		return vm.rangeType
	case *runtime.RegexpValue:
		return vm.regexpType
	case *runtime.MatchDataValue:
		return vm.matchData
	case *runtime.ProcValue:
		return vm.proc
	case *runtime.ObjectValue:
		return x.Class
	case *runtime.ClassValue:
		if x.IsModule {
			return vm.module
		}
		return vm.class
	}
	return vm.object
}

// metaclass returns the singleton class of c, creating it on first use.
// Metaclasses inherit from the superclass's metaclass, so class methods
// are inherited.
func (vm *VM) metaclass(c *runtime.ClassValue) *runtime.ClassValue {
	if c.Meta != nil {
		return c.Meta
	}
	var super *runtime.ClassValue
	switch {
	case c.IsSingleton():
		super = vm.class
	case c.Super != nil:
		super = vm.metaclass(c.Super)
	case c.IsModule:
		super = vm.module
	default:
		super = vm.class
	}
	meta := runtime.NewClass("#<Class:"+c.QualifiedName()+">", super, false)
	meta.Attached = c
	c.Meta = meta
	return meta
}

func (a *activation) singletonClassOf(v runtime.Value) (*runtime.ClassValue, error) {
	switch x := v.(type) {
	case *runtime.ClassValue:
		return a.vm.metaclass(x), nil
	case *runtime.ObjectValue:
		if x.Singleton == nil {
			sc := runtime.NewClass("#<Class:"+runtime.Inspect(x)+">", x.Class, false)
			sc.Attached = x
			x.Singleton = sc
		}
		return x.Singleton, nil
	}
	return nil, a.Raise("TypeError", "can't define singleton for %s", a.vm.describe(v))
}

func (vm *VM) isA(v runtime.Value, c *runtime.ClassValue) bool {
	if c == nil {
		return false
	}
	return vm.classOf(v).IsSubclassOf(c)
}

// describe names a receiver in error messages.
func (vm *VM) describe(v runtime.Value) string {
	if v == runtime.Value(vm.main) {
		return "main:Object"
	}
	if _, ok := v.(*runtime.ObjectValue); ok {
		return runtime.Inspect(v)
	}
	return runtime.Inspect(v) + ":" + vm.realClassOf(v).Name
}

// definee is the class def adds methods to.
func (a *activation) definee() *runtime.ClassValue {
	if a.lexical == nil {
		return a.vm.object
	}
	return a.lexical
}

func (a *activation) defineMethod(target *runtime.ClassValue, name string, unit *emit.Unit) {
	vis := runtime.Public
	moduleFunction := false
	if a.frame != nil {
		vis = a.frame.Visibility
		moduleFunction = a.frame.ModuleFunction
	}
	if name == "initialize" || name == "initialize_copy" || name == "respond_to_missing?" {
		vis = runtime.Private
	}
	m := &runtime.Method{Name: name, Owner: target, Visibility: vis, Unit: unit, Lexical: a.lexical}
	target.Methods[name] = m
	if moduleFunction {
		m.Visibility = runtime.Private
		meta := a.vm.metaclass(target)
		meta.Methods[name] = &runtime.Method{Name: name, Owner: meta, Unit: unit, Lexical: a.lexical}
	}
}

func (a *activation) aliasMethod(target *runtime.ClassValue, newName, oldName string) error {
	m := target.Lookup(oldName)
	if m == nil {
		return a.Raise("NameError", "undefined method `%s' for class `%s'", oldName, target.QualifiedName())
	}
	alias := *m
	target.Methods[newName] = &alias
	return nil
}

func (a *activation) undefMethod(target *runtime.ClassValue, name string) error {
	if target.Lookup(name) == nil {
		return a.Raise("NameError", "undefined method `%s' for class `%s'", name, target.QualifiedName())
	}
	target.Methods[name] = &runtime.Method{Name: name, Owner: target, Undefined: true}
	return nil
}

// container resolves where a class or module definition lives.
func (a *activation) container(path emit.ConstScope) (*runtime.ClassValue, error) {
	switch path {
	case emit.ConstQualified:
		v := a.pop()
		c, ok := v.(*runtime.ClassValue)
		if !ok {
			return nil, a.Raise("TypeError", "%s is not a class/module", runtime.Inspect(v))
		}
		return c, nil
	case emit.ConstTop:
		return a.vm.object, nil
	}
	return a.definee(), nil
}

func (a *activation) openClass(in *emit.Instr) (runtime.Value, error) {
	var super *runtime.ClassValue
	if in.Flag {
		v := a.pop()
		c, ok := v.(*runtime.ClassValue)
		if !ok || c.IsModule {
			return nil, a.Raise("TypeError", "superclass must be a Class (%s given)", a.vm.realClassOf(v).Name)
		}
		super = c
	}
	outer, err := a.container(in.Const)
	if err != nil {
		return nil, err
	}
	var class *runtime.ClassValue
	if existing, ok := outer.Consts[in.Str]; ok {
		c, ok := existing.(*runtime.ClassValue)
		if !ok || c.IsModule {
			return nil, a.Raise("TypeError", "%s is not a class", in.Str)
		}
		if super != nil && c.Super != super {
			return nil, a.Raise("TypeError", "superclass mismatch for class %s", in.Str)
		}
		class = c
	} else {
		if super == nil {
			super = a.vm.object
		}
		class = runtime.NewClass(in.Str, super, false)
		class.Lexical = outer
		outer.Consts[in.Str] = class
	}
	return a.runBody(class, in.Child)
}

func (a *activation) openModule(in *emit.Instr) (runtime.Value, error) {
	outer, err := a.container(in.Const)
	if err != nil {
		return nil, err
	}
	var mod *runtime.ClassValue
	if existing, ok := outer.Consts[in.Str]; ok {
		c, ok := existing.(*runtime.ClassValue)
		if !ok || !c.IsModule {
			return nil, a.Raise("TypeError", "%s is not a module", in.Str)
		}
		mod = c
	} else {
		mod = runtime.NewClass(in.Str, nil, true)
		mod.Lexical = outer
		outer.Consts[in.Str] = mod
	}
	return a.runBody(mod, in.Child)
}

// runBody executes a class, module or singleton class body with the class
// as self and as the definition target.
func (a *activation) runBody(class *runtime.ClassValue, unit *emit.Unit) (runtime.Value, error) {
	frame := &runtime.Frame{
		Self:       class,
		Lexical:    class,
		Visibility: runtime.Public,
		Allocated:  unit.Spec.CallConfig.HasFrame(),
	}
	act := a.vm.newActivation(unit, runtime.NewEnv(unit.Spec.Scope, nil), class, frame, class)
	v, err := act.run()
	frame.Returned = true
	return v, err
}
