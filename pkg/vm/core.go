package vm

import (
	"sort"

	"rblower/compiler-go/pkg/runtime"
)

// builtin is a native method with direct access to the calling
// activation.
type builtin func(a *activation, self runtime.Value, args []runtime.Value, blk *runtime.ProcValue) (runtime.Value, error)

func wrap(fn builtin) runtime.NativeFunc {
	return func(c runtime.Caller, self runtime.Value, args []runtime.Value, blk *runtime.ProcValue) (runtime.Value, error) {
		return fn(c.(*activation), self, args, blk)
	}
}

// def adds a public native method; arity -1 accepts any count.
func (vm *VM) def(c *runtime.ClassValue, name string, arity int, fn builtin) {
	c.Methods[name] = &runtime.Method{Name: name, Owner: c, Visibility: runtime.Public, Native: wrap(fn), Arity: arity}
}

func (vm *VM) defPrivate(c *runtime.ClassValue, name string, arity int, fn builtin) {
	c.Methods[name] = &runtime.Method{Name: name, Owner: c, Visibility: runtime.Private, Native: wrap(fn), Arity: arity}
}

func (vm *VM) defSingleton(c *runtime.ClassValue, name string, arity int, fn builtin) {
	vm.def(vm.metaclass(c), name, arity, fn)
}

func (vm *VM) alias(c *runtime.ClassValue, newName, oldName string) {
	m := *c.Methods[oldName]
	m.Name = newName
	c.Methods[newName] = &m
}

func (vm *VM) defineClass(name string, super *runtime.ClassValue) *runtime.ClassValue {
	c := runtime.NewClass(name, super, false)
	c.Lexical = vm.object
	vm.object.Consts[name] = c
	return c
}

func (vm *VM) defineModule(name string) *runtime.ClassValue {
	m := runtime.NewClass(name, nil, true)
	m.Lexical = vm.object
	vm.object.Consts[name] = m
	return m
}

func (vm *VM) bootstrap() {
	vm.basicObject = runtime.NewClass("BasicObject", nil, false)
	vm.object = runtime.NewClass("Object", vm.basicObject, false)
	vm.basicObject.Lexical = vm.object
	vm.object.Consts["BasicObject"] = vm.basicObject
	vm.object.Consts["Object"] = vm.object
	vm.module = vm.defineClass("Module", vm.object)
	vm.class = vm.defineClass("Class", vm.module)

	vm.kernel = vm.defineModule("Kernel")
	vm.object.Includes = append(vm.object.Includes, vm.kernel)
	vm.comparable = vm.defineModule("Comparable")
	vm.enumerable = vm.defineModule("Enumerable")

	vm.nilClass = vm.defineClass("NilClass", vm.object)
	vm.trueClass = vm.defineClass("TrueClass", vm.object)
	vm.falseClass = vm.defineClass("FalseClass", vm.object)
	vm.numeric = vm.defineClass("Numeric", vm.object)
	vm.numeric.Includes = append(vm.numeric.Includes, vm.comparable)
	vm.integer = vm.defineClass("Integer", vm.numeric)
	vm.float = vm.defineClass("Float", vm.numeric)
	vm.str = vm.defineClass("String", vm.object)
	vm.str.Includes = append(vm.str.Includes, vm.comparable)
	vm.symbol = vm.defineClass("Symbol", vm.object)
	vm.symbol.Includes = append(vm.symbol.Includes, vm.comparable)
	vm.array = vm.defineClass("Array", vm.object)
	vm.array.Includes = append(vm.array.Includes, vm.enumerable)
	vm.hash = vm.defineClass("Hash", vm.object)
	vm.hash.Includes = append(vm.hash.Includes, vm.enumerable)
	vm.rangeType = vm.defineClass("Range", vm.object)
	vm.rangeType.Includes = append(vm.rangeType.Includes, vm.enumerable)
	vm.regexpType = vm.defineClass("Regexp", vm.object)
	vm.matchData = vm.defineClass("MatchData", vm.object)
	vm.proc = vm.defineClass("Proc", vm.object)
	vm.binding = vm.defineClass("Binding", vm.object)

	vm.main = runtime.NewObject(vm.object)

	vm.initKernel()
	vm.initModule()
	vm.initComparable()
	vm.initEnumerable()
	vm.initLiterals()
	vm.initNumeric()
	vm.initString()
	vm.initArray()
	vm.initHash()
	vm.initRange()
	vm.initRegexp()
	vm.initProc()
	vm.initExceptions()
	vm.initMath()

	mainMeta, _ := (&activation{vm: vm}).singletonClassOf(vm.main)
	vm.def(mainMeta, "to_s", 0, func(a *activation, self runtime.Value, args []runtime.Value, blk *runtime.ProcValue) (runtime.Value, error) {
		return runtime.Str("main"), nil
	})
	vm.alias(mainMeta, "inspect", "to_s")
	for _, name := range []string{"public", "private", "include", "define_method"} {
		m := vm.module.Lookup(name)
		vm.defPrivate(mainMeta, name, -1, func(a *activation, self value, args []value, blk block) (value, error) {
			return m.Native(a, vm.object, args, blk)
		})
	}
	vm.globals["$0"] = runtime.Str("main")
	vm.globals["$,"] = runtime.Nil
	vm.globals["$/"] = runtime.Str("\n")
}

//-----------------------------------------------------------------------------
// Argument helpers
//-----------------------------------------------------------------------------

func nameArg(v runtime.Value) (string, bool) {
	switch x := v.(type) {
	case runtime.SymbolValue:
		return x.Name, true
	case *runtime.StringValue:
		return x.Val, true
	}
	return "", false
}

func (a *activation) nameArg(v runtime.Value) (string, error) {
	if s, ok := nameArg(v); ok {
		return s, nil
	}
	return "", a.Raise("TypeError", "%s is not a symbol nor a string", runtime.Inspect(v))
}

func (a *activation) stringArg(v runtime.Value) (string, error) {
	if s, ok := v.(*runtime.StringValue); ok {
		return s.Val, nil
	}
	return "", a.Raise("TypeError", "no implicit conversion of %s into String", a.vm.typeName(v))
}

func (a *activation) intArg(v runtime.Value) (int, error) {
	if n, ok := intArg(v); ok {
		return n, nil
	}
	return 0, a.Raise("TypeError", "no implicit conversion of %s into Integer", a.vm.typeName(v))
}

// typeName names v's class the way conversion errors do.
func (vm *VM) typeName(v runtime.Value) string {
	switch v.(type) {
	case runtime.NilValue:
		return "nil"
	case runtime.BoolValue:
		return runtime.Inspect(v)
	}
	return vm.realClassOf(v).QualifiedName()
}

func (a *activation) argCount(args []runtime.Value, min, max int) error {
	if len(args) >= min && (max < 0 || len(args) <= max) {
		return nil
	}
	switch {
	case max < 0:
		return a.Raise("ArgumentError", "wrong number of arguments (given %d, expected %d+)", len(args), min)
	case min == max:
		return a.Raise("ArgumentError", "wrong number of arguments (given %d, expected %d)", len(args), min)
	}
	return a.Raise("ArgumentError", "wrong number of arguments (given %d, expected %d..%d)", len(args), min, max)
}

func (a *activation) needBlock(blk *runtime.ProcValue) error {
	if blk == nil {
		return a.Raise("LocalJumpError", "no block given (yield)")
	}
	return nil
}

func (a *activation) callBlock(blk *runtime.ProcValue, args ...runtime.Value) (runtime.Value, error) {
	return a.vm.callProc(a, blk, args, nil)
}

// needFrame returns the caller's frame or an Unsound error naming the
// builtin that wanted it.
func (a *activation) needFrame(name string) (*runtime.Frame, error) {
	f := a.Frame()
	if f == nil {
		return nil, Unsound.New("%s called from %q, which has no frame", name, a.unit.Spec.Name)
	}
	return f, nil
}

func (a *activation) needScope(name string) (*runtime.Env, error) {
	env := a.Scope()
	if env == nil {
		return nil, Unsound.New("%s called from %q, which has no heap scope", name, a.unit.Spec.Name)
	}
	return env, nil
}

func symbols(names []string) *runtime.ArrayValue {
	sort.Strings(names)
	out := make([]runtime.Value, len(names))
	for i, n := range names {
		out[i] = runtime.SymbolValue{Name: n}
	}
	return runtime.NewArray(out...)
}

// rebind copies p with a new self and definition target, as instance_eval
// and define_method do.
func rebind(p *runtime.ProcValue, self runtime.Value, lexical *runtime.ClassValue, lambda bool) *runtime.ProcValue {
	cp := *p
	cp.Self = self
	if lexical != nil {
		cp.Lexical = lexical
	}
	cp.Lambda = cp.Lambda || lambda
	return &cp
}
