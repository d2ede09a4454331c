package vm

import (
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/runtime"
)

func (vm *VM) initLiterals() {
	n := vm.nilClass
	vm.def(n, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Str(""), nil
	})
	vm.def(n, "to_a", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.NewArray(), nil
	})
	vm.def(n, "to_h", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.NewHash(), nil
	})
	vm.def(n, "to_i", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(0), nil
	})
	vm.def(n, "to_f", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.FloatValue{Val: 0}, nil
	})
	vm.def(n, "inspect", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Str("nil"), nil
	})
	vm.def(n, "&", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(false), nil
	})
	vm.def(n, "|", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(runtime.Truthy(args[0])), nil
	})

	for _, c := range []*runtime.ClassValue{vm.trueClass, vm.falseClass} {
		truth := c == vm.trueClass
		vm.def(c, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
			return runtime.Str(runtime.Inspect(self)), nil
		})
		vm.alias(c, "inspect", "to_s")
		vm.def(c, "&", 1, func(a *activation, self value, args []value, blk block) (value, error) {
			return runtime.Bool(truth && runtime.Truthy(args[0])), nil
		})
		vm.def(c, "|", 1, func(a *activation, self value, args []value, blk block) (value, error) {
			return runtime.Bool(truth || runtime.Truthy(args[0])), nil
		})
		vm.def(c, "^", 1, func(a *activation, self value, args []value, blk block) (value, error) {
			return runtime.Bool(truth != runtime.Truthy(args[0])), nil
		})
	}
}

func (vm *VM) initProc() {
	c := vm.proc
	prc := func(v value) *runtime.ProcValue { return v.(*runtime.ProcValue) }

	vm.defSingleton(c, "new", 0, func(a *activation, _ value, args []value, blk block) (value, error) {
		if blk == nil {
			return nil, a.Raise("ArgumentError", "tried to create Proc object without a block")
		}
		return blk, nil
	})
	vm.def(c, "call", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.vm.callProc(a, prc(self), args, blk)
	})
	for _, name := range []string{"()", "yield", "[]", "==="} {
		vm.alias(c, name, "call")
	}
	vm.def(c, "to_proc", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
	vm.def(c, "arity", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(prc(self).Arity())), nil
	})
	vm.def(c, "parameters", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		p := prc(self)
		if p.Unit == nil {
			return runtime.NewArray(runtime.NewArray(runtime.SymbolValue{Name: "rest"})), nil
		}
		return parameters(p.Unit.Spec, p.Lambda), nil
	})
	vm.def(c, "lambda?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(prc(self).Lambda), nil
	})
	vm.def(c, "curry", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		p := prc(self)
		n := p.Arity()
		if len(args) > 0 {
			k, err := a.intArg(args[0])
			if err != nil {
				return nil, err
			}
			n = k
		}
		if n < 0 {
			n = -n - 1
		}
		return vm.curry(p, n, nil), nil
	})
	vm.def(c, ">>", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return vm.compose(prc(self), args[0], false), nil
	})
	vm.def(c, "<<", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return vm.compose(prc(self), args[0], true), nil
	})
	vm.def(c, "inspect", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Str(runtime.Inspect(self)), nil
	})
	vm.alias(c, "to_s", "inspect")

	k := vm.kernel
	vm.def(k, "method", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		m := a.vm.classOf(self).Lookup(name)
		if m == nil {
			return nil, a.Raise("NameError", "undefined method '%s' for %s", name, a.vm.describe(self))
		}
		return &runtime.ProcValue{Self: self, Lambda: true, Native: func(c runtime.Caller, args []value, blk *runtime.ProcValue) (value, error) {
			return a.vm.invoke(c.(*activation), self, m, args, blk)
		}}, nil
	})
	vm.alias(k, "public_method", "method")

	vm.initBinding()
}

// curry collects n arguments across calls before invoking p.
func (vm *VM) curry(p *runtime.ProcValue, n int, got []value) *runtime.ProcValue {
	return &runtime.ProcValue{Self: p.Self, Lambda: true, Native: func(c runtime.Caller, args []value, blk *runtime.ProcValue) (value, error) {
		all := append(append([]value(nil), got...), args...)
		if len(all) >= n {
			return vm.callProc(c.(*activation), p, all, blk)
		}
		return vm.curry(p, n, all), nil
	}}
}

// compose chains p with g; before runs g first, as Proc#<< does.
func (vm *VM) compose(p *runtime.ProcValue, g value, before bool) *runtime.ProcValue {
	return &runtime.ProcValue{Self: p.Self, Lambda: true, Native: func(c runtime.Caller, args []value, blk *runtime.ProcValue) (value, error) {
		a := c.(*activation)
		first := func(args []value) (value, error) { return vm.callProc(a, p, args, blk) }
		second := func(args []value) (value, error) { return a.Send(g, "call", args, nil) }
		if before {
			first, second = second, first
		}
		v, err := first(args)
		if err != nil {
			return nil, err
		}
		return second([]value{v})
	}}
}

func parameters(spec emit.UnitSpec, lambda bool) *runtime.ArrayValue {
	var out []value
	kind := "opt"
	if lambda {
		kind = "req"
	}
	var names []string
	if spec.Scope != nil {
		names = spec.Scope.Names
	}
	at := 0
	next := func(k string) {
		entry := []value{runtime.SymbolValue{Name: k}}
		if at < len(names) && names[at] != "" {
			entry = append(entry, runtime.SymbolValue{Name: names[at]})
		}
		at++
		out = append(out, runtime.NewArray(entry...))
	}
	for i := 0; i < spec.Arity.Required; i++ {
		next(kind)
	}
	for i := 0; i < spec.Arity.Optional; i++ {
		next("opt")
	}
	if spec.Arity.Rest {
		next("rest")
	}
	return runtime.NewArray(out...)
}

func (vm *VM) initBinding() {
	c := vm.binding
	data := func(v value) *bindingData { return v.(*runtime.ObjectValue).Data.(*bindingData) }

	vm.def(c, "local_variable_get", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		d := data(self)
		if slot, depth, ok := d.env.Lookup(name); ok {
			return d.env.Get(slot, depth), nil
		}
		if v, ok := d.extra[name]; ok {
			return v, nil
		}
		return nil, a.Raise("NameError", "local variable '%s' is not defined for %s", name, runtime.Inspect(self))
	})
	vm.def(c, "local_variable_set", 2, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		d := data(self)
		if slot, depth, ok := d.env.Lookup(name); ok {
			d.env.Set(slot, depth, args[1])
			return args[1], nil
		}
		d.extra[name] = args[1]
		return args[1], nil
	})
	vm.def(c, "local_variable_defined?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		d := data(self)
		_, _, ok := d.env.Lookup(name)
		_, extra := d.extra[name]
		return runtime.Bool(ok || extra), nil
	})
	vm.def(c, "local_variables", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		d := data(self)
		return localNames(d.env, d.extra), nil
	})
	vm.def(c, "receiver", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return data(self).self, nil
	})
	vm.def(c, "eval", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return nil, a.Raise("NotImplementedError", "eval of source text is not supported")
	})
}
