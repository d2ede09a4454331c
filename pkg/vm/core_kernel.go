package vm

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/runtime"
)

type (
	value = runtime.Value
	block = *runtime.ProcValue
)

func (vm *VM) initKernel() {
	k := vm.kernel
	bo := vm.basicObject

	vm.defPrivate(bo, "initialize", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Nil, nil
	})
	vm.def(bo, "!", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(!runtime.Truthy(self)), nil
	})
	vm.def(bo, "==", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(runtime.Equal(self, args[0])), nil
	})
	vm.def(bo, "!=", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		same, err := a.equal(self, args[0])
		return runtime.Bool(!same), err
	})
	vm.def(bo, "equal?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(identical(self, args[0])), nil
	})
	vm.def(bo, "__id__", 0, objectID)
	vm.def(bo, "__send__", -1, send)
	vm.def(bo, "instance_eval", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if _, err := a.needFrame("instance_eval"); err != nil {
			return nil, err
		}
		if blk == nil {
			return nil, a.Raise("NotImplementedError", "instance_eval of a string is not supported")
		}
		return a.callBlock(rebind(blk, self, a.evalTarget(self), false), self)
	})
	vm.def(bo, "instance_exec", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		return a.callBlock(rebind(blk, self, a.evalTarget(self), false), args...)
	})

	// Output.
	vm.defPrivate(k, "puts", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Nil, a.puts(a.Stdout(), args)
	})
	vm.defPrivate(k, "print", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		for _, arg := range args {
			s, err := a.toS(arg)
			if err != nil {
				return nil, err
			}
			io.WriteString(a.Stdout(), s)
		}
		return runtime.Nil, nil
	})
	vm.defPrivate(k, "p", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		for _, arg := range args {
			s, err := a.inspect(arg)
			if err != nil {
				return nil, err
			}
			io.WriteString(a.Stdout(), s+"\n")
		}
		switch len(args) {
		case 0:
			return runtime.Nil, nil
		case 1:
			return args[0], nil
		}
		return runtime.NewArray(args...), nil
	})
	vm.alias(k, "pp", "p")
	vm.defPrivate(k, "format", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, -1); err != nil {
			return nil, err
		}
		f, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		s, err := a.sprintf(f, args[1:])
		if err != nil {
			return nil, err
		}
		return runtime.Str(s), nil
	})
	vm.alias(k, "sprintf", "format")

	// Exceptions and control.
	vm.defPrivate(k, "raise", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return nil, a.raise(args)
	})
	vm.alias(k, "fail", "raise")
	vm.defPrivate(k, "loop", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		for {
			if _, err := a.callBlock(blk); err != nil {
				if IsRaise(err, "StopIteration") {
					return runtime.Nil, nil
				}
				return nil, err
			}
		}
	})
	vm.defPrivate(k, "catch", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 0, 1); err != nil {
			return nil, err
		}
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		var tag value = runtime.NewObject(vm.object)
		if len(args) == 1 {
			tag = args[0]
		}
		v, err := a.callBlock(blk, tag)
		if ts, ok := err.(throwSignal); ok && runtime.Equal(ts.tag, tag) {
			return ts.value, nil
		}
		return v, err
	})
	vm.defPrivate(k, "throw", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		var v value = runtime.Nil
		if len(args) == 2 {
			v = args[1]
		}
		return nil, throwSignal{tag: args[0], value: v}
	})
	vm.defPrivate(k, "exit", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		status := runtime.Int(0)
		if len(args) > 0 {
			switch x := args[0].(type) {
			case runtime.IntegerValue:
				status = x
			case runtime.BoolValue:
				if !x.Val {
					status = runtime.Int(1)
				}
			}
		}
		exc := vm.newException(vm.classNamed("SystemExit"), "exit", a.where())
		exc.Ivars["@status"] = status
		return nil, vm.raiseObject(exc)
	})
	vm.defPrivate(k, "abort", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		msg := ""
		if len(args) > 0 {
			s, err := a.stringArg(args[0])
			if err != nil {
				return nil, err
			}
			msg = s
			io.WriteString(a.Stdout(), s+"\n")
		}
		exc := vm.newException(vm.classNamed("SystemExit"), msg, a.where())
		exc.Ivars["@status"] = runtime.Int(1)
		return nil, vm.raiseObject(exc)
	})
	vm.defPrivate(k, "at_exit", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		vm.atExit = append(vm.atExit, blk)
		return blk, nil
	})

	// Frame and scope introspection.
	vm.defPrivate(k, "block_given?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		f, err := a.needFrame("block_given?")
		if err != nil {
			return nil, err
		}
		return runtime.Bool(f.Block != nil), nil
	})
	vm.alias(k, "iterator?", "block_given?")
	vm.defPrivate(k, "__method__", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		f, err := a.needFrame("__method__")
		if err != nil {
			return nil, err
		}
		if f.Method == "" {
			return runtime.Nil, nil
		}
		return runtime.SymbolValue{Name: f.Method}, nil
	})
	vm.defPrivate(k, "binding", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if _, err := a.needFrame("binding"); err != nil {
			return nil, err
		}
		env, err := a.needScope("binding")
		if err != nil {
			return nil, err
		}
		obj := runtime.NewObject(vm.binding)
		obj.Data = &bindingData{env: env, self: a.self, extra: map[string]value{}}
		return obj, nil
	})
	vm.defPrivate(k, "local_variables", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		env, err := a.needScope("local_variables")
		if err != nil {
			return nil, err
		}
		return localNames(env, nil), nil
	})
	vm.defPrivate(k, "eval", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if _, err := a.needFrame("eval"); err != nil {
			return nil, err
		}
		return nil, a.Raise("NotImplementedError", "eval of a source string is not supported")
	})

	// Procs.
	vm.defPrivate(k, "lambda", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if blk == nil {
			return nil, a.Raise("ArgumentError", "tried to create Proc object without a block")
		}
		cp := *blk
		cp.Lambda = true
		return &cp, nil
	})
	vm.defPrivate(k, "proc", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if blk == nil {
			return nil, a.Raise("ArgumentError", "tried to create Proc object without a block")
		}
		return blk, nil
	})

	// Conversion functions.
	vm.defPrivate(k, "Integer", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		return a.toInteger(args[0])
	})
	vm.defPrivate(k, "Float", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.toFloat(args[0])
	})
	vm.defPrivate(k, "String", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		s, err := a.toS(args[0])
		return runtime.Str(s), err
	})
	vm.defPrivate(k, "Array", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		switch x := args[0].(type) {
		case runtime.NilValue:
			return runtime.NewArray(), nil
		case *runtime.ArrayValue:
			return x, nil
		}
		return a.splat(args[0])
	})
	vm.defPrivate(k, "require", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(false), nil
	})
	vm.alias(k, "require_relative", "require")

	// Object protocol.
	vm.def(k, "class", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return vm.realClassOf(self), nil
	})
	vm.def(k, "singleton_class", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.singletonClassOf(self)
	})
	vm.def(k, "is_a?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		c, ok := args[0].(*runtime.ClassValue)
		if !ok {
			return nil, a.Raise("TypeError", "class or module required")
		}
		return runtime.Bool(vm.isA(self, c)), nil
	})
	vm.alias(k, "kind_of?", "is_a?")
	vm.def(k, "instance_of?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(vm.realClassOf(self) == args[0]), nil
	})
	vm.def(k, "respond_to?", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		if len(args) == 2 && runtime.Truthy(args[1]) {
			return runtime.Bool(vm.classOf(self).Lookup(name) != nil), nil
		}
		if vm.respondTo(self, name) {
			return runtime.Bool(true), nil
		}
		if m := vm.classOf(self).Lookup("respond_to_missing?"); m != nil && m.Native == nil {
			v, err := vm.invoke(a, self, m, []value{runtime.SymbolValue{Name: name}, runtime.Bool(false)}, nil)
			if err != nil {
				return nil, err
			}
			return runtime.Bool(runtime.Truthy(v)), nil
		}
		return runtime.Bool(false), nil
	})
	vm.defPrivate(k, "respond_to_missing?", 2, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(false), nil
	})
	vm.def(k, "send", -1, send)
	vm.def(k, "public_send", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, -1); err != nil {
			return nil, err
		}
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		m := vm.classOf(self).Lookup(name)
		if m == nil {
			return nil, a.noMethod(self, name, emit.DispatchNormal)
		}
		if err := a.checkVisibility(self, m); err != nil {
			return nil, err
		}
		return vm.invoke(a, self, m, args[1:], blk)
	})
	vm.def(k, "method_missing", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		name := "?"
		if len(args) > 0 {
			name, _ = nameArg(args[0])
		}
		return nil, a.Raise("NoMethodError", "undefined method `%s' for %s", name, vm.describe(self))
	})
	k.Methods["method_missing"].Visibility = runtime.Private
	vm.def(k, "nil?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(self.Kind() == runtime.KindNil), nil
	})
	vm.def(k, "===", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		same, err := a.equal(self, args[0])
		return runtime.Bool(same), err
	})
	vm.def(k, "=~", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Nil, nil
	})
	vm.def(k, "eql?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(runtime.Eql(self, args[0])), nil
	})
	vm.def(k, "hash", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(runtime.HashOf(self) >> 2)), nil
	})
	vm.def(k, "object_id", 0, objectID)
	vm.def(k, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Str(runtime.ToS(self)), nil
	})
	vm.def(k, "inspect", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		obj, ok := self.(*runtime.ObjectValue)
		if !ok {
			return runtime.Str(runtime.Inspect(self)), nil
		}
		if len(obj.Ivars) == 0 {
			return runtime.Str("#<" + obj.Class.QualifiedName() + ">"), nil
		}
		names := make([]string, 0, len(obj.Ivars))
		for n := range obj.Ivars {
			names = append(names, n)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, n := range names {
			s, err := a.inspect(obj.Ivars[n])
			if err != nil {
				return nil, err
			}
			parts[i] = n + "=" + s
		}
		return runtime.Str("#<" + obj.Class.QualifiedName() + " " + strings.Join(parts, ", ") + ">"), nil
	})
	vm.def(k, "instance_variable_get", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		if v, ok := ivarsOf(self)[name]; ok {
			return v, nil
		}
		return runtime.Nil, nil
	})
	vm.def(k, "instance_variable_set", 2, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		ivars := ivarsOf(self)
		if ivars == nil {
			return nil, a.Raise("FrozenError", "can't modify frozen %s", vm.realClassOf(self).Name)
		}
		ivars[name] = args[1]
		return args[1], nil
	})
	vm.def(k, "instance_variable_defined?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		_, ok := ivarsOf(self)[name]
		return runtime.Bool(ok), nil
	})
	vm.def(k, "instance_variables", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		var names []string
		for n := range ivarsOf(self) {
			names = append(names, n)
		}
		return symbols(names), nil
	})
	vm.def(k, "methods", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return symbols(methodNames(vm.classOf(self), true, false)), nil
	})
	vm.def(k, "freeze", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if s, ok := self.(*runtime.StringValue); ok {
			s.Frozen = true
		}
		return self, nil
	})
	vm.def(k, "frozen?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		switch x := self.(type) {
		case *runtime.StringValue:
			return runtime.Bool(x.Frozen), nil
		case runtime.NilValue, runtime.BoolValue, runtime.IntegerValue, runtime.FloatValue, runtime.SymbolValue, runtime.RangeValue:
			return runtime.Bool(true), nil
		}
		return runtime.Bool(false), nil
	})
	vm.def(k, "dup", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.copyValue(self, false)
	})
	vm.def(k, "clone", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.copyValue(self, true)
	})
	vm.def(k, "tap", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		if _, err := a.callBlock(blk, self); err != nil {
			return nil, err
		}
		return self, nil
	})
	vm.def(k, "then", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		return a.callBlock(blk, self)
	})
	vm.alias(k, "yield_self", "then")
	vm.def(k, "itself", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
	vm.def(k, "extend", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		sc, err := a.singletonClassOf(self)
		if err != nil {
			return nil, err
		}
		for _, arg := range args {
			mod, ok := arg.(*runtime.ClassValue)
			if !ok || !mod.IsModule {
				return nil, a.Raise("TypeError", "wrong argument type %s (expected Module)", vm.realClassOf(arg).Name)
			}
			include(sc, mod)
		}
		return self, nil
	})
	vm.def(k, "define_singleton_method", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		sc, err := a.singletonClassOf(self)
		if err != nil {
			return nil, err
		}
		sc.Methods[name] = vm.procMethod(sc, name, blk)
		return runtime.SymbolValue{Name: name}, nil
	})
	vm.def(k, "display", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		s, err := a.toS(self)
		if err != nil {
			return nil, err
		}
		io.WriteString(a.Stdout(), s)
		return runtime.Nil, nil
	})
}

//-----------------------------------------------------------------------------
// Kernel helpers
//-----------------------------------------------------------------------------

func identical(x, y value) bool {
	switch xv := x.(type) {
	case runtime.IntegerValue, runtime.FloatValue, runtime.SymbolValue, runtime.NilValue, runtime.BoolValue:
		return runtime.Eql(x, y)
	case *runtime.StringValue:
		yv, ok := y.(*runtime.StringValue)
		return ok && xv == yv
	case *runtime.ArrayValue:
		yv, ok := y.(*runtime.ArrayValue)
		return ok && xv == yv
	case *runtime.HashValue:
		yv, ok := y.(*runtime.HashValue)
		return ok && xv == yv
	}
	return x == y
}

func objectID(a *activation, self value, args []value, blk block) (value, error) {
	switch x := self.(type) {
	case *runtime.ObjectValue:
		return runtime.Int(int64(x.ID()) * 8), nil
	case *runtime.ClassValue:
		return runtime.Int(int64(x.ID()) * 8), nil
	case runtime.IntegerValue:
		return runtime.IntegerValue{Val: new(big.Int).Add(new(big.Int).Lsh(x.Val, 1), big.NewInt(1))}, nil
	case runtime.NilValue:
		return runtime.Int(8), nil
	}
	return runtime.Int(int64(runtime.HashOf(self) >> 3)), nil
}

func send(a *activation, self value, args []value, blk block) (value, error) {
	if err := a.argCount(args, 1, -1); err != nil {
		return nil, err
	}
	name, err := a.nameArg(args[0])
	if err != nil {
		return nil, err
	}
	return a.Send(self, name, args[1:], blk)
}

// evalTarget is where def goes inside instance_eval.
func (a *activation) evalTarget(self value) *runtime.ClassValue {
	switch self.(type) {
	case *runtime.ObjectValue, *runtime.ClassValue:
		sc, _ := a.singletonClassOf(self)
		return sc
	}
	return nil
}

func (a *activation) puts(w io.Writer, args []value) error {
	if len(args) == 0 {
		io.WriteString(w, "\n")
		return nil
	}
	for _, arg := range args {
		if arr, ok := arg.(*runtime.ArrayValue); ok {
			if len(arr.Elements) == 0 {
				io.WriteString(w, "\n")
				continue
			}
			if err := a.puts(w, arr.Elements); err != nil {
				return err
			}
			continue
		}
		s, err := a.toS(arg)
		if err != nil {
			return err
		}
		if !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		io.WriteString(w, s)
	}
	return nil
}

// raise builds the exception for Kernel#raise from its arguments.
func (a *activation) raise(args []value) error {
	vm := a.vm
	if err := a.argCount(args, 0, 3); err != nil {
		return err
	}
	if len(args) == 0 {
		if cur, ok := vm.globals["$!"].(*runtime.ObjectValue); ok {
			return vm.raiseObject(cur)
		}
		return a.Raise("RuntimeError", "unhandled exception")
	}
	var exc *runtime.ObjectValue
	switch x := args[0].(type) {
	case *runtime.StringValue:
		if len(args) > 1 {
			return a.Raise("TypeError", "exception class/object expected")
		}
		exc = vm.newException(vm.classNamed("RuntimeError"), x.Val, a.where())
	case *runtime.ClassValue:
		v, err := a.Send(x, "new", args[1:min(len(args), 2)], nil)
		if err != nil {
			return err
		}
		obj, ok := v.(*runtime.ObjectValue)
		if !ok || !vm.isA(obj, vm.exception) {
			return a.Raise("TypeError", "exception class/object expected")
		}
		exc = obj
	case *runtime.ObjectValue:
		if !vm.isA(x, vm.exception) {
			return a.Raise("TypeError", "exception class/object expected")
		}
		exc = x
		if len(args) > 1 {
			d := exceptionOf(exc)
			s, err := a.toS(args[1])
			if err != nil {
				return err
			}
			d.message, d.hasMsg = s, true
		}
	default:
		return a.Raise("TypeError", "exception class/object expected")
	}
	d := exceptionOf(exc)
	if len(d.backtrace) == 0 {
		d.backtrace = []string{a.where()}
	}
	return vm.raiseObject(exc)
}

func (a *activation) toInteger(v value) (value, error) {
	switch x := v.(type) {
	case runtime.IntegerValue:
		return x, nil
	case runtime.FloatValue:
		if math.IsNaN(x.Val) || math.IsInf(x.Val, 0) {
			return nil, a.Raise("FloatDomainError", "%s", runtime.Inspect(x))
		}
		i, _ := integerArg(x)
		return runtime.IntegerValue{Val: i}, nil
	case *runtime.StringValue:
		s := strings.ReplaceAll(strings.TrimSpace(x.Val), "_", "")
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, a.Raise("ArgumentError", "invalid value for Integer(): %s", runtime.Inspect(x))
		}
		return runtime.IntegerValue{Val: n}, nil
	case runtime.NilValue:
		return nil, a.Raise("TypeError", "can't convert nil into Integer")
	}
	return a.Send(v, "to_i", nil, nil)
}

func (a *activation) toFloat(v value) (value, error) {
	switch x := v.(type) {
	case runtime.FloatValue:
		return x, nil
	case runtime.IntegerValue:
		return runtime.FloatValue{Val: runtime.IntToFloat(x)}, nil
	case *runtime.StringValue:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x.Val), "_", ""), 64)
		if err != nil {
			return nil, a.Raise("ArgumentError", "invalid value for Float(): %s", runtime.Inspect(x))
		}
		return runtime.FloatValue{Val: f}, nil
	case runtime.NilValue:
		return nil, a.Raise("TypeError", "can't convert nil into Float")
	}
	return a.Send(v, "to_f", nil, nil)
}

// copyValue implements dup and clone. Only clone keeps singleton methods
// and the frozen state.
func (a *activation) copyValue(v value, clone bool) (value, error) {
	switch x := v.(type) {
	case *runtime.StringValue:
		return &runtime.StringValue{Val: x.Val, Frozen: clone && x.Frozen}, nil
	case *runtime.ArrayValue:
		return runtime.NewArray(append([]value(nil), x.Elements...)...), nil
	case *runtime.HashValue:
		h := runtime.NewHash()
		x.Each(func(k, val value) bool { h.Set(k, val); return true })
		h.Default, h.DefaultProc = x.Default, x.DefaultProc
		return h, nil
	case *runtime.ObjectValue:
		obj := runtime.NewObject(x.Class)
		for n, val := range x.Ivars {
			obj.Ivars[n] = val
		}
		if d, ok := x.Data.(*exceptionData); ok {
			cp := *d
			obj.Data = &cp
		} else {
			obj.Data = x.Data
		}
		if clone && x.Singleton != nil {
			sc := runtime.NewClass(x.Singleton.Name, x.Class, false)
			sc.Attached = obj
			for n, m := range x.Singleton.Methods {
				sc.Methods[n] = m
			}
			sc.Includes = append(sc.Includes, x.Singleton.Includes...)
			obj.Singleton = sc
		}
		if m := a.vm.classOf(obj).Lookup("initialize_copy"); m != nil && m.Native == nil {
			if _, err := a.vm.invoke(a, obj, m, []value{x}, nil); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
	return v, nil
}

type bindingData struct {
	env   *runtime.Env
	self  value
	extra map[string]value
}

func localNames(env *runtime.Env, extra map[string]value) *runtime.ArrayValue {
	names := env.Keys()
	for n := range extra {
		names = append(names, n)
	}
	return symbols(names)
}

//-----------------------------------------------------------------------------
// format
//-----------------------------------------------------------------------------

// sprintf implements Kernel#format for the common directives: flags,
// width and precision followed by one of d i u f e E g G s p x X o b c %.
func (a *activation) sprintf(f string, args []value) (string, error) {
	var b strings.Builder
	next := 0
	arg := func() (value, error) {
		if next >= len(args) {
			return nil, a.Raise("ArgumentError", "too few arguments")
		}
		next++
		return args[next-1], nil
	}
	for i := 0; i < len(f); i++ {
		if f[i] != '%' {
			b.WriteByte(f[i])
			continue
		}
		j := i + 1
		for j < len(f) && strings.IndexByte("-+ 0#", f[j]) >= 0 {
			j++
		}
		for j < len(f) && (f[j] >= '0' && f[j] <= '9' || f[j] == '.') {
			j++
		}
		if j >= len(f) {
			return "", a.Raise("ArgumentError", "incomplete format specifier")
		}
		spec, verb := f[i+1:j], f[j]
		i = j
		if verb == '%' {
			b.WriteByte('%')
			continue
		}
		v, err := arg()
		if err != nil {
			return "", err
		}
		switch verb {
		case 'd', 'i', 'u':
			n, err := a.toInteger(v)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%"+spec+"d", n.(runtime.IntegerValue).Val)
		case 'x', 'X', 'o', 'b':
			n, err := a.toInteger(v)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%"+spec+string(verb), n.(runtime.IntegerValue).Val)
		case 'f', 'e', 'E', 'g', 'G':
			x, err := a.toFloat(v)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%"+spec+string(verb), x.(runtime.FloatValue).Val)
		case 's':
			s, err := a.toS(v)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%"+spec+"s", s)
		case 'p':
			s, err := a.inspect(v)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%"+spec+"s", s)
		case 'c':
			if n, ok := intArg(v); ok {
				fmt.Fprintf(&b, "%"+spec+"c", rune(n))
			} else {
				s, err := a.toS(v)
				if err != nil {
					return "", err
				}
				fmt.Fprintf(&b, "%"+spec+"s", firstRune(s))
			}
		default:
			return "", a.Raise("ArgumentError", "malformed format string - %%%c", verb)
		}
	}
	return b.String(), nil
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
