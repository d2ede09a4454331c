package vm

import (
	"math"

	"rblower/compiler-go/pkg/runtime"
)

// exceptionTree lists built-in exception classes as child, parent pairs;
// parents come first.
var exceptionTree = [][2]string{
	{"ScriptError", "Exception"},
	{"NotImplementedError", "ScriptError"},
	{"LoadError", "ScriptError"},
	{"NoMemoryError", "Exception"},
	{"SecurityError", "Exception"},
	{"SignalException", "Exception"},
	{"Interrupt", "SignalException"},
	{"SystemExit", "Exception"},
	{"SystemStackError", "Exception"},
	{"StandardError", "Exception"},
	{"RuntimeError", "StandardError"},
	{"FrozenError", "RuntimeError"},
	{"ArgumentError", "StandardError"},
	{"UncaughtThrowError", "ArgumentError"},
	{"EncodingError", "StandardError"},
	{"FiberError", "StandardError"},
	{"IOError", "StandardError"},
	{"EOFError", "IOError"},
	{"IndexError", "StandardError"},
	{"KeyError", "IndexError"},
	{"StopIteration", "IndexError"},
	{"ClosedQueueError", "StopIteration"},
	{"LocalJumpError", "StandardError"},
	{"NameError", "StandardError"},
	{"NoMethodError", "NameError"},
	{"RangeError", "StandardError"},
	{"FloatDomainError", "RangeError"},
	{"RegexpError", "StandardError"},
	{"ThreadError", "StandardError"},
	{"TypeError", "StandardError"},
	{"ZeroDivisionError", "StandardError"},
}

func (vm *VM) initExceptions() {
	vm.exception = vm.defineClass("Exception", vm.object)
	for _, pair := range exceptionTree {
		vm.defineClass(pair[0], vm.classNamed(pair[1]))
	}
	vm.standardError = vm.classNamed("StandardError")
	c := vm.exception
	obj := func(v value) *runtime.ObjectValue { return v.(*runtime.ObjectValue) }

	vm.defPrivate(c, "initialize", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 0, 1); err != nil {
			return nil, err
		}
		d := exceptionOf(obj(self))
		if len(args) == 1 && args[0].Kind() != runtime.KindNil {
			s, err := a.toS(args[0])
			if err != nil {
				return nil, err
			}
			d.message, d.hasMsg = s, true
		}
		return runtime.Nil, nil
	})
	vm.defSingleton(c, "exception", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.Send(self, "new", args, blk)
	})
	vm.def(c, "exception", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if len(args) == 0 {
			return self, nil
		}
		cp, err := a.copyValue(self, false)
		if err != nil {
			return nil, err
		}
		s, err := a.toS(args[0])
		if err != nil {
			return nil, err
		}
		d := exceptionOf(obj(cp))
		d.message, d.hasMsg = s, true
		return cp, nil
	})
	vm.def(c, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Str(a.vm.exceptionMessage(obj(self))), nil
	})
	vm.def(c, "message", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.Send(self, "to_s", nil, nil)
	})
	vm.alias(c, "detailed_message", "message")
	vm.def(c, "inspect", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		name := a.vm.realClassOf(self).QualifiedName()
		msg, err := a.Send(self, "to_s", nil, nil)
		if err != nil {
			return nil, err
		}
		s, _ := msg.(*runtime.StringValue)
		switch {
		case s == nil || s.Val == "":
			return runtime.Str(name), nil
		case s.Val == name:
			return runtime.Str(name), nil
		}
		return runtime.Str("#<" + name + ": " + s.Val + ">"), nil
	})
	vm.def(c, "full_message", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		d := exceptionOf(obj(self))
		msg, err := a.Send(self, "message", nil, nil)
		if err != nil {
			return nil, err
		}
		text, err := a.toS(msg)
		if err != nil {
			return nil, err
		}
		where := "-"
		if len(d.backtrace) > 0 {
			where = d.backtrace[0]
		}
		return runtime.Str(where + ": " + text + " (" + a.vm.realClassOf(self).QualifiedName() + ")"), nil
	})
	vm.def(c, "backtrace", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		d := exceptionOf(obj(self))
		if d.backtrace == nil {
			return runtime.Nil, nil
		}
		out := make([]value, len(d.backtrace))
		for i, line := range d.backtrace {
			out[i] = runtime.Str(line)
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(c, "set_backtrace", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		d := exceptionOf(obj(self))
		switch x := args[0].(type) {
		case runtime.NilValue:
			d.backtrace = nil
		case *runtime.StringValue:
			d.backtrace = []string{x.Val}
		case *runtime.ArrayValue:
			d.backtrace = d.backtrace[:0]
			for _, el := range x.Elements {
				s, err := a.stringArg(el)
				if err != nil {
					return nil, err
				}
				d.backtrace = append(d.backtrace, s)
			}
		default:
			return nil, a.Raise("TypeError", "backtrace must be an Array of String or an Array of Thread::Backtrace::Location")
		}
		return args[0], nil
	})
	vm.def(c, "==", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		other, ok := args[0].(*runtime.ObjectValue)
		if !ok || other.Class != obj(self).Class {
			return runtime.Bool(false), nil
		}
		return runtime.Bool(a.vm.exceptionMessage(other) == a.vm.exceptionMessage(obj(self))), nil
	})

	exit := vm.classNamed("SystemExit")
	vm.def(exit, "status", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if v, ok := obj(self).Ivars["@status"]; ok {
			return v, nil
		}
		return runtime.Int(0), nil
	})
	vm.def(exit, "success?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		v, ok := obj(self).Ivars["@status"]
		return runtime.Bool(!ok || runtime.Equal(v, runtime.Int(0))), nil
	})
	for _, name := range []string{"NameError", "KeyError", "StopIteration", "UncaughtThrowError", "FrozenError"} {
		vm.initErrorFields(vm.classNamed(name))
	}
}

// initErrorFields adds the readers error classes expose for the
// values that caused them, stored as @name, @receiver, @key and so on.
func (vm *VM) initErrorFields(c *runtime.ClassValue) {
	fields := map[string][]string{
		"NameError":          {"name", "receiver"},
		"KeyError":           {"key", "receiver"},
		"StopIteration":      {"result"},
		"UncaughtThrowError": {"tag", "value"},
		"FrozenError":        {"receiver"},
	}
	for _, f := range fields[c.Name] {
		ivar := "@" + f
		vm.def(c, f, 0, func(a *activation, self value, args []value, blk block) (value, error) {
			if v, ok := self.(*runtime.ObjectValue).Ivars[ivar]; ok {
				return v, nil
			}
			return runtime.Nil, nil
		})
	}
}

//-----------------------------------------------------------------------------
// Math
//-----------------------------------------------------------------------------

func (vm *VM) initMath() {
	m := vm.defineModule("Math")
	domain := runtime.NewClass("DomainError", vm.classNamed("ArgumentError"), false)
	domain.Lexical = m
	m.Consts["DomainError"] = domain
	m.Consts["PI"] = runtime.FloatValue{Val: math.Pi}
	m.Consts["E"] = runtime.FloatValue{Val: math.E}

	arg := func(a *activation, v value) (float64, error) {
		if f, ok := floatOf(v); ok {
			return f, nil
		}
		if v.Kind() == runtime.KindNil {
			return 0, a.Raise("TypeError", "can't convert nil into Float")
		}
		return 0, a.Raise("TypeError", "can't convert %s into Float", a.vm.realClassOf(v).Name)
	}
	outOfDomain := func(a *activation, name string) error {
		return a.Raise("Math::DomainError", `Numerical argument is out of domain - "%s"`, name)
	}
	unary := map[string]func(float64) float64{
		"sin": math.Sin, "cos": math.Cos, "tan": math.Tan,
		"asin": math.Asin, "acos": math.Acos, "atan": math.Atan,
		"sinh": math.Sinh, "cosh": math.Cosh, "tanh": math.Tanh,
		"exp": math.Exp, "cbrt": math.Cbrt,
		"sqrt": math.Sqrt, "log2": math.Log2, "log10": math.Log10,
	}
	// Functions undefined below a bound raise DomainError there.
	lowerBound := map[string]float64{"sqrt": 0, "log2": 0, "log10": 0}
	for name, fn := range unary {
		vm.defSingleton(m, name, 1, func(a *activation, self value, args []value, blk block) (value, error) {
			x, err := arg(a, args[0])
			if err != nil {
				return nil, err
			}
			if lo, ok := lowerBound[name]; ok && x < lo {
				return nil, outOfDomain(a, name)
			}
			if (name == "asin" || name == "acos") && (x < -1 || x > 1) {
				return nil, outOfDomain(a, name)
			}
			return runtime.FloatValue{Val: fn(x)}, nil
		})
	}
	vm.defSingleton(m, "log", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		x, err := arg(a, args[0])
		if err != nil {
			return nil, err
		}
		if x < 0 {
			return nil, outOfDomain(a, "log")
		}
		r := math.Log(x)
		if len(args) == 2 {
			base, err := arg(a, args[1])
			if err != nil {
				return nil, err
			}
			if base < 0 {
				return nil, outOfDomain(a, "log")
			}
			r /= math.Log(base)
		}
		return runtime.FloatValue{Val: r}, nil
	})
	binary := map[string]func(float64, float64) float64{
		"atan2": math.Atan2, "hypot": math.Hypot, "pow": math.Pow,
	}
	for name, fn := range binary {
		vm.defSingleton(m, name, 2, func(a *activation, self value, args []value, blk block) (value, error) {
			x, err := arg(a, args[0])
			if err != nil {
				return nil, err
			}
			y, err := arg(a, args[1])
			if err != nil {
				return nil, err
			}
			return runtime.FloatValue{Val: fn(x, y)}, nil
		})
	}
	// Including Math exposes the functions as private instance methods.
	for name, meth := range vm.metaclass(m).Methods {
		cp := *meth
		cp.Owner, cp.Visibility = m, runtime.Private
		m.Methods[name] = &cp
	}
}
