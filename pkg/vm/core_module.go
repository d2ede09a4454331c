package vm

import (
	"sort"
	"strings"

	"rblower/compiler-go/pkg/runtime"
)

func (vm *VM) initModule() {
	mod := vm.module
	cls := vm.class

	vm.def(mod, "name", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		c := self.(*runtime.ClassValue)
		if c.Name == "" {
			return runtime.Nil, nil
		}
		return runtime.Str(c.QualifiedName()), nil
	})
	vm.def(mod, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		c := self.(*runtime.ClassValue)
		if c.Name == "" {
			if c.IsModule {
				return runtime.Str("#<Module>"), nil
			}
			return runtime.Str("#<Class>"), nil
		}
		return runtime.Str(c.QualifiedName()), nil
	})
	vm.alias(mod, "inspect", "to_s")
	vm.def(mod, "===", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(vm.isA(args[0], self.(*runtime.ClassValue))), nil
	})
	vm.def(mod, "==", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(self == args[0]), nil
	})
	vm.def(mod, "<", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.relate(self, args[0], true)
	})
	vm.def(mod, "<=", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.relate(self, args[0], false)
	})
	vm.def(mod, ">", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.relate(args[0], self, true)
	})
	vm.def(mod, ">=", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.relate(args[0], self, false)
	})
	vm.def(mod, "ancestors", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		var out []value
		for _, c := range self.(*runtime.ClassValue).Ancestors() {
			out = append(out, c)
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(mod, "include", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		target := self.(*runtime.ClassValue)
		for _, arg := range args {
			m, ok := arg.(*runtime.ClassValue)
			if !ok || !m.IsModule {
				return nil, a.Raise("TypeError", "wrong argument type %s (expected Module)", vm.realClassOf(arg).Name)
			}
			include(target, m)
			if hook := vm.classOf(m).Lookup("included"); hook != nil && hook.Native == nil {
				if _, err := vm.invoke(a, m, hook, []value{target}, nil); err != nil {
					return nil, err
				}
			}
		}
		return self, nil
	})
	vm.def(mod, "include?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		m, ok := args[0].(*runtime.ClassValue)
		return runtime.Bool(ok && m.IsModule && self != args[0] && self.(*runtime.ClassValue).IsSubclassOf(m)), nil
	})
	vm.def(mod, "included_modules", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		var out []value
		for _, c := range self.(*runtime.ClassValue).Ancestors() {
			if c.IsModule {
				out = append(out, c)
			}
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(mod, "instance_methods", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		inherited := len(args) == 0 || runtime.Truthy(args[0])
		return symbols(methodNames(self.(*runtime.ClassValue), inherited, false)), nil
	})
	vm.alias(mod, "public_instance_methods", "instance_methods")
	vm.def(mod, "private_instance_methods", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		inherited := len(args) == 0 || runtime.Truthy(args[0])
		return symbols(methodNames(self.(*runtime.ClassValue), inherited, true)), nil
	})
	vm.def(mod, "method_defined?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		m := self.(*runtime.ClassValue).Lookup(name)
		return runtime.Bool(m != nil && m.Visibility != runtime.Private), nil
	})
	vm.alias(mod, "public_method_defined?", "method_defined?")
	vm.def(mod, "private_method_defined?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		m := self.(*runtime.ClassValue).Lookup(name)
		return runtime.Bool(m != nil && m.Visibility == runtime.Private), nil
	})
	vm.def(mod, "instance_method", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		if self.(*runtime.ClassValue).Lookup(name) == nil {
			return nil, a.Raise("NameError", "undefined method `%s' for class `%s'", name, self.(*runtime.ClassValue).QualifiedName())
		}
		return runtime.SymbolValue{Name: name}, nil
	})

	for _, name := range []string{"attr_reader", "attr_writer", "attr_accessor", "attr"} {
		reader := name != "attr_writer"
		writer := name == "attr_writer" || name == "attr_accessor"
		vm.def(mod, name, -1, func(a *activation, self value, args []value, blk block) (value, error) {
			target := self.(*runtime.ClassValue)
			var defined []value
			for _, arg := range args {
				attr, err := a.nameArg(arg)
				if err != nil {
					return nil, err
				}
				if reader {
					vm.def(target, attr, 0, attrReader("@"+attr))
					defined = append(defined, runtime.SymbolValue{Name: attr})
				}
				if writer {
					vm.def(target, attr+"=", 1, attrWriter("@"+attr))
					defined = append(defined, runtime.SymbolValue{Name: attr + "="})
				}
			}
			return runtime.NewArray(defined...), nil
		})
	}

	vm.defPrivate(mod, "public", -1, visibilityBuiltin("public", runtime.Public))
	vm.defPrivate(mod, "private", -1, visibilityBuiltin("private", runtime.Private))
	vm.defPrivate(mod, "protected", -1, visibilityBuiltin("protected", runtime.Protected))
	vm.defPrivate(mod, "module_function", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		f, err := a.needFrame("module_function")
		if err != nil {
			return nil, err
		}
		target := self.(*runtime.ClassValue)
		if len(args) == 0 {
			f.ModuleFunction = true
			return runtime.Nil, nil
		}
		names, err := a.methodNameArgs(args)
		if err != nil {
			return nil, err
		}
		meta := vm.metaclass(target)
		for _, name := range names {
			m := target.Lookup(name)
			if m == nil {
				return nil, a.Raise("NameError", "undefined method `%s' for module `%s'", name, target.QualifiedName())
			}
			public := *m
			public.Owner, public.Visibility = meta, runtime.Public
			meta.Methods[name] = &public
			private := *m
			private.Owner, private.Visibility = target, runtime.Private
			target.Methods[name] = &private
		}
		return runtime.Nil, nil
	})
	vm.def(mod, "private_class_method", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		names, err := a.methodNameArgs(args)
		if err != nil {
			return nil, err
		}
		return runtime.Nil, a.setVisibility(vm.metaclass(self.(*runtime.ClassValue)), names, runtime.Private)
	})
	vm.def(mod, "public_class_method", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		names, err := a.methodNameArgs(args)
		if err != nil {
			return nil, err
		}
		return runtime.Nil, a.setVisibility(vm.metaclass(self.(*runtime.ClassValue)), names, runtime.Public)
	})
	vm.def(mod, "private_constant", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Nil, nil
	})
	vm.def(mod, "define_method", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		body := blk
		if len(args) == 2 {
			p, ok := args[1].(*runtime.ProcValue)
			if !ok {
				return nil, a.Raise("TypeError", "wrong argument type %s (expected Proc)", vm.realClassOf(args[1]).Name)
			}
			body = p
		}
		if body == nil {
			return nil, a.Raise("ArgumentError", "tried to create Proc object without a block")
		}
		target := self.(*runtime.ClassValue)
		target.Methods[name] = vm.procMethod(target, name, body)
		return runtime.SymbolValue{Name: name}, nil
	})
	vm.def(mod, "alias_method", 2, func(a *activation, self value, args []value, blk block) (value, error) {
		names, err := a.methodNameArgs(args)
		if err != nil {
			return nil, err
		}
		if err := a.aliasMethod(self.(*runtime.ClassValue), names[0], names[1]); err != nil {
			return nil, err
		}
		return runtime.SymbolValue{Name: names[0]}, nil
	})
	vm.def(mod, "remove_method", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		names, err := a.methodNameArgs(args)
		if err != nil {
			return nil, err
		}
		target := self.(*runtime.ClassValue)
		for _, name := range names {
			if _, ok := target.Methods[name]; !ok {
				return nil, a.Raise("NameError", "method `%s' not defined in %s", name, target.QualifiedName())
			}
			delete(target.Methods, name)
		}
		return self, nil
	})
	vm.def(mod, "undef_method", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		names, err := a.methodNameArgs(args)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if err := a.undefMethod(self.(*runtime.ClassValue), name); err != nil {
				return nil, err
			}
		}
		return self, nil
	})

	vm.def(mod, "const_get", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		path, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		cur := self.(*runtime.ClassValue)
		var found value = cur
		for _, part := range strings.Split(path, "::") {
			if part == "" {
				cur = vm.object
				continue
			}
			v, ok := cur.LookupConst(part)
			if !ok {
				v, ok = vm.object.LookupConst(part)
			}
			if !ok {
				return nil, a.Raise("NameError", "uninitialized constant %s::%s", cur.QualifiedName(), part)
			}
			found = v
			if c, isClass := v.(*runtime.ClassValue); isClass {
				cur = c
			}
		}
		return found, nil
	})
	vm.def(mod, "const_set", 2, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		if !isConstName(name) {
			return nil, a.Raise("NameError", "wrong constant name %s", name)
		}
		target := self.(*runtime.ClassValue)
		if c, ok := args[1].(*runtime.ClassValue); ok && c.Name == "" {
			c.Name, c.Lexical = name, target
		}
		target.Consts[name] = args[1]
		return args[1], nil
	})
	vm.def(mod, "const_defined?", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		_, ok := self.(*runtime.ClassValue).LookupConst(name)
		return runtime.Bool(ok), nil
	})
	vm.def(mod, "constants", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		var names []string
		for n := range self.(*runtime.ClassValue).Consts {
			names = append(names, n)
		}
		return symbols(names), nil
	})
	vm.def(mod, "class_variable_get", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		c := self.(*runtime.ClassValue)
		v, owner := c.LookupCvar(name)
		if owner == nil {
			return nil, a.Raise("NameError", "uninitialized class variable %s in %s", name, c.QualifiedName())
		}
		return v, nil
	})
	vm.def(mod, "class_variable_set", 2, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		c := self.(*runtime.ClassValue)
		if _, owner := c.LookupCvar(name); owner != nil {
			c = owner
		}
		c.Cvars[name] = args[1]
		return args[1], nil
	})
	vm.def(mod, "class_variable_defined?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		_, owner := self.(*runtime.ClassValue).LookupCvar(name)
		return runtime.Bool(owner != nil), nil
	})
	vm.def(mod, "class_variables", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		seen := map[string]bool{}
		var names []string
		for _, c := range self.(*runtime.ClassValue).Ancestors() {
			for n := range c.Cvars {
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
		return symbols(names), nil
	})
	vm.def(mod, "module_eval", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if _, err := a.needFrame("module_eval"); err != nil {
			return nil, err
		}
		if blk == nil {
			return nil, a.Raise("NotImplementedError", "module_eval of a string is not supported")
		}
		c := self.(*runtime.ClassValue)
		return a.callBlock(rebind(blk, c, c, false), c)
	})
	vm.alias(mod, "class_eval", "module_eval")
	vm.def(mod, "class_exec", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		c := self.(*runtime.ClassValue)
		return a.callBlock(rebind(blk, c, c, false), args...)
	})
	vm.alias(mod, "module_exec", "class_exec")
	vm.def(mod, "freeze", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
	vm.defPrivate(mod, "included", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Nil, nil
	})
	vm.defPrivate(mod, "inherited", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Nil, nil
	})

	vm.defSingleton(mod, "new", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		m := runtime.NewClass("", nil, true)
		if blk != nil {
			if _, err := a.callBlock(rebind(blk, m, m, false), m); err != nil {
				return nil, err
			}
		}
		return m, nil
	})

	// Class.
	vm.def(cls, "allocate", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.allocate(self.(*runtime.ClassValue))
	})
	vm.def(cls, "new", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		obj, err := a.allocate(self.(*runtime.ClassValue))
		if err != nil {
			return nil, err
		}
		if _, err := a.Send(obj, "initialize", args, blk); err != nil {
			return nil, err
		}
		return obj, nil
	})
	vm.def(cls, "superclass", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		c := self.(*runtime.ClassValue)
		if c.Super == nil {
			return runtime.Nil, nil
		}
		return c.Super, nil
	})
	vm.defSingleton(cls, "new", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 0, 1); err != nil {
			return nil, err
		}
		super := vm.object
		if len(args) == 1 {
			s, ok := args[0].(*runtime.ClassValue)
			if !ok || s.IsModule {
				return nil, a.Raise("TypeError", "superclass must be a Class (%s given)", vm.realClassOf(args[0]).Name)
			}
			super = s
		}
		c := runtime.NewClass("", super, false)
		if hook := vm.classOf(super).Lookup("inherited"); hook != nil && hook.Native == nil {
			if _, err := vm.invoke(a, super, hook, []value{c}, nil); err != nil {
				return nil, err
			}
		}
		if blk != nil {
			if _, err := a.callBlock(rebind(blk, c, c, false), c); err != nil {
				return nil, err
			}
		}
		return c, nil
	})
}

// noAllocate lists classes whose instances are immediate or built-in
// values.
func (vm *VM) noAllocate(c *runtime.ClassValue) bool {
	switch c {
	case vm.integer, vm.float, vm.symbol, vm.nilClass, vm.trueClass, vm.falseClass, vm.numeric,
		vm.str, vm.array, vm.hash, vm.rangeType, vm.regexpType, vm.matchData, vm.proc, vm.binding:
		return true
	}
	return false
}

func (a *activation) allocate(c *runtime.ClassValue) (value, error) {
	if c.IsSingleton() {
		return nil, a.Raise("TypeError", "can't create instance of singleton class")
	}
	for s := c; s != nil; s = s.Super {
		if a.vm.noAllocate(s) {
			return nil, a.Raise("NoMethodError", "undefined method `new' for %s:Class", c.QualifiedName())
		}
	}
	obj := runtime.NewObject(c)
	if c.IsSubclassOf(a.vm.exception) {
		obj.Data = &exceptionData{}
	}
	return obj, nil
}

func (a *activation) relate(x, y value, strict bool) (value, error) {
	xc, ok1 := x.(*runtime.ClassValue)
	yc, ok2 := y.(*runtime.ClassValue)
	if !ok1 || !ok2 {
		return nil, a.Raise("TypeError", "compared with non class/module")
	}
	if xc == yc {
		return runtime.Bool(!strict), nil
	}
	if xc.IsSubclassOf(yc) {
		return runtime.Bool(true), nil
	}
	if yc.IsSubclassOf(xc) {
		return runtime.Bool(false), nil
	}
	return runtime.Nil, nil
}

func include(target, mod *runtime.ClassValue) {
	for _, m := range target.Includes {
		if m == mod {
			return
		}
	}
	target.Includes = append(target.Includes, mod)
}

func methodNames(c *runtime.ClassValue, inherited, private bool) []string {
	seen := map[string]bool{}
	var names []string
	classes := []*runtime.ClassValue{c}
	if inherited {
		classes = c.Ancestors()
	}
	for _, k := range classes {
		for name, m := range k.Methods {
			if seen[name] {
				continue
			}
			seen[name] = true
			if m.Undefined || (m.Visibility == runtime.Private) != private {
				continue
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// procMethod wraps a block as a method body. The block runs as a lambda
// with the receiver as self.
func (vm *VM) procMethod(owner *runtime.ClassValue, name string, body *runtime.ProcValue) *runtime.Method {
	return &runtime.Method{
		Name:       name,
		Owner:      owner,
		Visibility: runtime.Public,
		Arity:      -1,
		Native: func(c runtime.Caller, self runtime.Value, args []runtime.Value, blk *runtime.ProcValue) (runtime.Value, error) {
			return vm.callProc(c.(*activation), rebind(body, self, nil, true), args, blk)
		},
	}
}

func attrReader(ivar string) builtin {
	return func(a *activation, self value, args []value, blk block) (value, error) {
		if v, ok := ivarsOf(self)[ivar]; ok {
			return v, nil
		}
		return runtime.Nil, nil
	}
}

func attrWriter(ivar string) builtin {
	return func(a *activation, self value, args []value, blk block) (value, error) {
		ivars := ivarsOf(self)
		if ivars == nil {
			return nil, a.Raise("FrozenError", "can't modify frozen %s", a.vm.realClassOf(self).Name)
		}
		ivars[ivar] = args[0]
		return args[0], nil
	}
}

func (a *activation) methodNameArgs(args []value) ([]string, error) {
	var names []string
	for _, arg := range args {
		if arr, ok := arg.(*runtime.ArrayValue); ok {
			more, err := a.methodNameArgs(arr.Elements)
			if err != nil {
				return nil, err
			}
			names = append(names, more...)
			continue
		}
		name, err := a.nameArg(arg)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// visibilityBuiltin implements public, private and protected. Without
// arguments they change the default for following definitions in the
// caller's frame.
func visibilityBuiltin(name string, vis runtime.Visibility) builtin {
	return func(a *activation, self value, args []value, blk block) (value, error) {
		f, err := a.needFrame(name)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			f.Visibility = vis
			f.ModuleFunction = false
			return runtime.Nil, nil
		}
		names, err := a.methodNameArgs(args)
		if err != nil {
			return nil, err
		}
		if err := a.setVisibility(self.(*runtime.ClassValue), names, vis); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return args[0], nil
		}
		return runtime.NewArray(args...), nil
	}
}

func (a *activation) setVisibility(target *runtime.ClassValue, names []string, vis runtime.Visibility) error {
	for _, name := range names {
		m := target.Lookup(name)
		if m == nil {
			return a.Raise("NameError", "undefined method `%s' for class `%s'", name, target.QualifiedName())
		}
		if m.Owner == target {
			m.Visibility = vis
			continue
		}
		cp := *m
		cp.Owner, cp.Visibility = target, vis
		target.Methods[name] = &cp
	}
	return nil
}

func (vm *VM) initComparable() {
	c := vm.comparable
	ops := map[string]func(int) bool{
		"<":  func(n int) bool { return n < 0 },
		"<=": func(n int) bool { return n <= 0 },
		">":  func(n int) bool { return n > 0 },
		">=": func(n int) bool { return n >= 0 },
	}
	for name, test := range ops {
		vm.def(c, name, 1, func(a *activation, self value, args []value, blk block) (value, error) {
			n, err := a.compare(self, args[0])
			if err != nil {
				return nil, err
			}
			return runtime.Bool(test(n)), nil
		})
	}
	vm.def(c, "==", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		if identical(self, args[0]) {
			return runtime.Bool(true), nil
		}
		out, err := a.Send(self, "<=>", args, nil)
		if err != nil {
			return nil, err
		}
		n, ok := out.(runtime.IntegerValue)
		return runtime.Bool(ok && n.Val.Sign() == 0), nil
	})
	vm.def(c, "between?", 2, func(a *activation, self value, args []value, blk block) (value, error) {
		lo, err := a.compare(self, args[0])
		if err != nil {
			return nil, err
		}
		hi, err := a.compare(self, args[1])
		if err != nil {
			return nil, err
		}
		return runtime.Bool(lo >= 0 && hi <= 0), nil
	})
	vm.def(c, "clamp", 2, func(a *activation, self value, args []value, blk block) (value, error) {
		if n, err := a.compare(self, args[0]); err != nil || n < 0 {
			return args[0], err
		}
		if n, err := a.compare(self, args[1]); err != nil || n > 0 {
			return args[1], err
		}
		return self, nil
	})
}
