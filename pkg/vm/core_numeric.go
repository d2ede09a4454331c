package vm

import (
	"math"
	"math/big"

	"rblower/compiler-go/pkg/runtime"
)

func (vm *VM) initNumeric() {
	num := vm.numeric
	for _, op := range []string{"+", "-", "*", "/", "%", "**"} {
		vm.def(num, op, 1, func(a *activation, self value, args []value, blk block) (value, error) {
			return a.arith(op, self, args[0])
		})
	}
	vm.alias(num, "modulo", "%")
	vm.alias(num, "pow", "**")
	for _, op := range []string{"<", "<=", ">", ">="} {
		vm.def(num, op, 1, func(a *activation, self value, args []value, blk block) (value, error) {
			n, ok := numCompare(self, args[0])
			if !ok {
				return nil, a.Raise("ArgumentError", "comparison of %s with %s failed", vm.realClassOf(self).Name, a.vm.describeArg(args[0]))
			}
			switch op {
			case "<":
				return runtime.Bool(n < 0), nil
			case "<=":
				return runtime.Bool(n <= 0), nil
			case ">":
				return runtime.Bool(n > 0), nil
			}
			return runtime.Bool(n >= 0), nil
		})
	}
	vm.def(num, "<=>", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		n, ok := numCompare(self, args[0])
		if !ok {
			return runtime.Nil, nil
		}
		return runtime.Int(int64(n)), nil
	})
	vm.def(num, "==", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(runtime.Equal(self, args[0])), nil
	})
	vm.def(num, "coerce", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		x, ok1 := floatOf(self)
		y, ok2 := floatOf(args[0])
		if !ok1 || !ok2 {
			return nil, a.Raise("TypeError", "%s can't be coerced into %s", vm.realClassOf(args[0]).Name, vm.realClassOf(self).Name)
		}
		return runtime.NewArray(runtime.FloatValue{Val: y}, runtime.FloatValue{Val: x}), nil
	})
	vm.def(num, "-@", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.arith("-", runtime.Int(0), self)
	})
	vm.def(num, "+@", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
	vm.def(num, "abs", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		switch x := self.(type) {
		case runtime.IntegerValue:
			return runtime.IntegerValue{Val: new(big.Int).Abs(x.Val)}, nil
		case runtime.FloatValue:
			return runtime.FloatValue{Val: math.Abs(x.Val)}, nil
		}
		return self, nil
	})
	vm.alias(num, "magnitude", "abs")
	vm.def(num, "zero?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		f, _ := floatOf(self)
		return runtime.Bool(f == 0), nil
	})
	vm.def(num, "positive?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		f, _ := floatOf(self)
		return runtime.Bool(f > 0), nil
	})
	vm.def(num, "negative?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		f, _ := floatOf(self)
		return runtime.Bool(f < 0), nil
	})
	vm.def(num, "nonzero?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if f, _ := floatOf(self); f == 0 {
			return runtime.Nil, nil
		}
		return self, nil
	})
	vm.def(num, "fdiv", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		x, _ := floatOf(self)
		y, ok := floatOf(args[0])
		if !ok {
			return nil, a.Raise("TypeError", "%s can't be coerced into Float", vm.realClassOf(args[0]).Name)
		}
		return runtime.FloatValue{Val: x / y}, nil
	})
	vm.def(num, "div", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		q, err := a.arith("/", self, args[0])
		if err != nil {
			return nil, err
		}
		return floorValue(q), nil
	})
	vm.def(num, "divmod", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		q, err := a.arith("/", self, args[0])
		if err != nil {
			return nil, err
		}
		r, err := a.arith("%", self, args[0])
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(floorValue(q), r), nil
	})
	vm.def(num, "remainder", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		xi, ok1 := self.(runtime.IntegerValue)
		yi, ok2 := args[0].(runtime.IntegerValue)
		if ok1 && ok2 {
			if yi.Val.Sign() == 0 {
				return nil, a.Raise("ZeroDivisionError", "divided by 0")
			}
			return runtime.IntegerValue{Val: new(big.Int).Rem(xi.Val, yi.Val)}, nil
		}
		x, _ := floatOf(self)
		y, _ := floatOf(args[0])
		return runtime.FloatValue{Val: math.Mod(x, y)}, nil
	})
	vm.def(num, "integer?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		_, ok := self.(runtime.IntegerValue)
		return runtime.Bool(ok), nil
	})
	vm.def(num, "step", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		var by value = runtime.Int(1)
		if len(args) == 2 {
			by = args[1]
		}
		return a.numericStep(self, args[0], by, false, blk)
	})
	vm.def(num, "to_c", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
	vm.def(num, "hash", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(runtime.HashOf(self) >> 2)), nil
	})

	vm.initInteger()
	vm.initFloat()
}

func (vm *VM) initInteger() {
	i := vm.integer
	vm.def(i, "to_s", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		base := 10
		if len(args) > 0 {
			n, err := a.intArg(args[0])
			if err != nil {
				return nil, err
			}
			if n < 2 || n > 36 {
				return nil, a.Raise("ArgumentError", "invalid radix %d", n)
			}
			base = n
		}
		return runtime.Str(self.(runtime.IntegerValue).Val.Text(base)), nil
	})
	vm.alias(i, "inspect", "to_s")
	vm.def(i, "to_i", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
	vm.alias(i, "to_int", "to_i")
	vm.def(i, "to_f", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.FloatValue{Val: runtime.IntToFloat(self.(runtime.IntegerValue))}, nil
	})
	vm.def(i, "chr", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		n, _ := intArg(self)
		if n < 0 || n > 0x10ffff {
			return nil, a.Raise("RangeError", "%d out of char range", n)
		}
		return runtime.Str(string(rune(n))), nil
	})
	vm.def(i, "ord", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
	for _, op := range []string{"&", "|", "^", "<<", ">>"} {
		vm.def(i, op, 1, func(a *activation, self value, args []value, blk block) (value, error) {
			x := self.(runtime.IntegerValue).Val
			y, ok := args[0].(runtime.IntegerValue)
			if !ok {
				return nil, a.Raise("TypeError", "%s can't be coerced into Integer", vm.realClassOf(args[0]).Name)
			}
			out := new(big.Int)
			switch op {
			case "&":
				out.And(x, y.Val)
			case "|":
				out.Or(x, y.Val)
			case "^":
				out.Xor(x, y.Val)
			default:
				n, ok := intArg(y)
				if !ok {
					return nil, a.Raise("RangeError", "shift width too big")
				}
				if op == ">>" {
					n = -n
				}
				if n >= 0 {
					out.Lsh(x, uint(n))
				} else {
					out.Rsh(x, uint(-n))
				}
			}
			return runtime.IntegerValue{Val: out}, nil
		})
	}
	vm.def(i, "~", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.IntegerValue{Val: new(big.Int).Not(self.(runtime.IntegerValue).Val)}, nil
	})
	vm.def(i, "[]", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		n, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return runtime.Int(0), nil
		}
		return runtime.Int(int64(self.(runtime.IntegerValue).Val.Bit(n))), nil
	})
	vm.def(i, "succ", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.IntegerValue{Val: new(big.Int).Add(self.(runtime.IntegerValue).Val, big.NewInt(1))}, nil
	})
	vm.alias(i, "next", "succ")
	vm.def(i, "pred", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.IntegerValue{Val: new(big.Int).Sub(self.(runtime.IntegerValue).Val, big.NewInt(1))}, nil
	})
	vm.def(i, "even?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(self.(runtime.IntegerValue).Val.Bit(0) == 0), nil
	})
	vm.def(i, "odd?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(self.(runtime.IntegerValue).Val.Bit(0) == 1), nil
	})
	vm.def(i, "gcd", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		y, ok := args[0].(runtime.IntegerValue)
		if !ok {
			return nil, a.Raise("TypeError", "not an integer")
		}
		x := new(big.Int).Abs(self.(runtime.IntegerValue).Val)
		return runtime.IntegerValue{Val: new(big.Int).GCD(nil, nil, x, new(big.Int).Abs(y.Val))}, nil
	})
	vm.def(i, "lcm", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		y, ok := args[0].(runtime.IntegerValue)
		if !ok {
			return nil, a.Raise("TypeError", "not an integer")
		}
		x := new(big.Int).Abs(self.(runtime.IntegerValue).Val)
		yv := new(big.Int).Abs(y.Val)
		if x.Sign() == 0 || yv.Sign() == 0 {
			return runtime.Int(0), nil
		}
		g := new(big.Int).GCD(nil, nil, x, yv)
		return runtime.IntegerValue{Val: new(big.Int).Mul(new(big.Int).Quo(x, g), yv)}, nil
	})
	vm.def(i, "digits", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		x := self.(runtime.IntegerValue).Val
		if x.Sign() < 0 {
			return nil, a.Raise("Math::DomainError", "out of domain")
		}
		var out []value
		for _, ch := range reverseString(x.String()) {
			out = append(out, runtime.Int(int64(ch-'0')))
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(i, "bit_length", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		x := self.(runtime.IntegerValue).Val
		if x.Sign() < 0 {
			x = new(big.Int).Not(x)
		}
		return runtime.Int(int64(x.BitLen())), nil
	})
	vm.def(i, "times", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		n, _ := intArg(self)
		if blk == nil {
			out := make([]value, 0, max(n, 0))
			for k := 0; k < n; k++ {
				out = append(out, runtime.Int(int64(k)))
			}
			return runtime.NewArray(out...), nil
		}
		for k := 0; k < n; k++ {
			if _, err := a.callBlock(blk, runtime.Int(int64(k))); err != nil {
				return nil, err
			}
		}
		return self, nil
	})
	vm.def(i, "upto", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.numericStep(self, args[0], runtime.Int(1), false, blk)
	})
	vm.def(i, "downto", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.numericStep(self, args[0], runtime.Int(-1), false, blk)
	})
	for _, name := range []string{"floor", "ceil", "round", "truncate"} {
		vm.def(i, name, -1, func(a *activation, self value, args []value, blk block) (value, error) {
			digits := 0
			if len(args) > 0 {
				n, err := a.intArg(args[0])
				if err != nil {
					return nil, err
				}
				digits = n
			}
			if digits >= 0 {
				return self, nil
			}
			return roundInteger(self.(runtime.IntegerValue).Val, -digits, name), nil
		})
	}
	vm.def(i, "size", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(8), nil
	})
	vm.def(i, "finite?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(true), nil
	})
	vm.def(i, "infinite?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Nil, nil
	})
	vm.defSingleton(i, "sqrt", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		x, ok := args[0].(runtime.IntegerValue)
		if !ok || x.Val.Sign() < 0 {
			return nil, a.Raise("Math::DomainError", "Numerical argument is out of domain - \"isqrt\"")
		}
		return runtime.IntegerValue{Val: new(big.Int).Sqrt(x.Val)}, nil
	})
}

func (vm *VM) initFloat() {
	f := vm.float
	vm.float.Consts["INFINITY"] = runtime.FloatValue{Val: math.Inf(1)}
	vm.float.Consts["NAN"] = runtime.FloatValue{Val: math.NaN()}
	vm.float.Consts["EPSILON"] = runtime.FloatValue{Val: 2.220446049250313e-16}
	vm.float.Consts["MAX"] = runtime.FloatValue{Val: math.MaxFloat64}
	vm.float.Consts["MIN"] = runtime.FloatValue{Val: 2.2250738585072014e-308}

	vm.def(f, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Str(runtime.Inspect(self)), nil
	})
	vm.alias(f, "inspect", "to_s")
	vm.def(f, "to_f", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
	vm.def(f, "to_i", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.toInteger(self)
	})
	vm.alias(f, "to_int", "to_i")
	vm.def(f, "nan?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(math.IsNaN(self.(runtime.FloatValue).Val)), nil
	})
	vm.def(f, "infinite?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		x := self.(runtime.FloatValue).Val
		switch {
		case math.IsInf(x, 1):
			return runtime.Int(1), nil
		case math.IsInf(x, -1):
			return runtime.Int(-1), nil
		}
		return runtime.Nil, nil
	})
	vm.def(f, "finite?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		x := self.(runtime.FloatValue).Val
		return runtime.Bool(!math.IsInf(x, 0) && !math.IsNaN(x)), nil
	})
	for _, name := range []string{"floor", "ceil", "round", "truncate"} {
		vm.def(f, name, -1, func(a *activation, self value, args []value, blk block) (value, error) {
			digits := 0
			if len(args) > 0 {
				n, err := a.intArg(args[0])
				if err != nil {
					return nil, err
				}
				digits = n
			}
			x := self.(runtime.FloatValue).Val
			if digits > 0 {
				scale := math.Pow(10, float64(digits))
				return runtime.FloatValue{Val: roundFloat(x*scale, name) / scale}, nil
			}
			if math.IsInf(x, 0) || math.IsNaN(x) {
				return nil, a.Raise("FloatDomainError", "%s", runtime.Inspect(self))
			}
			r, _ := integerArg(runtime.FloatValue{Val: roundFloat(x, name)})
			if digits < 0 {
				return roundInteger(r, -digits, name), nil
			}
			return runtime.IntegerValue{Val: r}, nil
		})
	}
}

//-----------------------------------------------------------------------------
// Arithmetic
//-----------------------------------------------------------------------------

func floatOf(v value) (float64, bool) {
	switch x := v.(type) {
	case runtime.IntegerValue:
		return runtime.IntToFloat(x), true
	case runtime.FloatValue:
		return x.Val, true
	}
	return 0, false
}

// numCompare orders two numbers; ok is false for a non-number or NaN.
func numCompare(x, y value) (int, bool) {
	if xi, ok := x.(runtime.IntegerValue); ok {
		if yi, ok := y.(runtime.IntegerValue); ok {
			return xi.Val.Cmp(yi.Val), true
		}
	}
	xf, ok1 := floatOf(x)
	yf, ok2 := floatOf(y)
	if !ok1 || !ok2 || math.IsNaN(xf) || math.IsNaN(yf) {
		return 0, false
	}
	return cmpFloat(xf, yf), true
}

func (vm *VM) describeArg(v value) string {
	switch v.(type) {
	case runtime.NilValue, runtime.IntegerValue, runtime.FloatValue:
		return runtime.Inspect(v)
	}
	return vm.realClassOf(v).Name
}

// arith applies a binary arithmetic operator. Integer operands stay exact;
// anything involving a Float is computed in floating point.
func (a *activation) arith(op string, x, y value) (value, error) {
	xi, xInt := x.(runtime.IntegerValue)
	yi, yInt := y.(runtime.IntegerValue)
	if xInt && yInt {
		return a.intOp(op, xi.Val, yi.Val)
	}
	xf, ok1 := floatOf(x)
	yf, ok2 := floatOf(y)
	if !ok1 || !ok2 {
		if ok1 && a.vm.respondTo(y, "coerce") {
			pair, err := a.Send(y, "coerce", []value{x}, nil)
			if err != nil {
				return nil, err
			}
			if arr, ok := pair.(*runtime.ArrayValue); ok && len(arr.Elements) == 2 {
				return a.Send(arr.Elements[0], op, []value{arr.Elements[1]}, nil)
			}
		}
		return nil, a.Raise("TypeError", "%s can't be coerced into %s", a.vm.typeName(y), a.vm.realClassOf(x).Name)
	}
	switch op {
	case "+":
		return runtime.FloatValue{Val: xf + yf}, nil
	case "-":
		return runtime.FloatValue{Val: xf - yf}, nil
	case "*":
		return runtime.FloatValue{Val: xf * yf}, nil
	case "/":
		return runtime.FloatValue{Val: xf / yf}, nil
	case "%":
		return runtime.FloatValue{Val: floorMod(xf, yf)}, nil
	case "**":
		return runtime.FloatValue{Val: math.Pow(xf, yf)}, nil
	}
	return nil, Internal.New("unknown operator %s", op)
}

func floorMod(x, y float64) float64 {
	r := math.Mod(x, y)
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return r
}

func (a *activation) intOp(op string, x, y *big.Int) (value, error) {
	out := new(big.Int)
	switch op {
	case "+":
		out.Add(x, y)
	case "-":
		out.Sub(x, y)
	case "*":
		out.Mul(x, y)
	case "/", "%":
		if y.Sign() == 0 {
			return nil, a.Raise("ZeroDivisionError", "divided by 0")
		}
		q, r := new(big.Int).QuoRem(x, y, new(big.Int))
		if r.Sign() != 0 && r.Sign() != y.Sign() {
			q.Sub(q, big.NewInt(1))
			r.Add(r, y)
		}
		if op == "/" {
			return runtime.IntegerValue{Val: q}, nil
		}
		return runtime.IntegerValue{Val: r}, nil
	case "**":
		if y.Sign() < 0 {
			xf, _ := new(big.Float).SetInt(x).Float64()
			yf, _ := new(big.Float).SetInt(y).Float64()
			return runtime.FloatValue{Val: math.Pow(xf, yf)}, nil
		}
		if y.BitLen() > 32 && x.CmpAbs(big.NewInt(1)) > 0 {
			return runtime.FloatValue{Val: math.Inf(x.Sign())}, nil
		}
		out.Exp(x, y, nil)
	default:
		return nil, Internal.New("unknown operator %s", op)
	}
	return runtime.IntegerValue{Val: out}, nil
}

func roundFloat(x float64, mode string) float64 {
	switch mode {
	case "floor":
		return math.Floor(x)
	case "ceil":
		return math.Ceil(x)
	case "truncate":
		return math.Trunc(x)
	}
	return math.Round(x)
}

// roundInteger rounds x to a multiple of 10^digits.
func roundInteger(x *big.Int, digits int, mode string) value {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	q, r := new(big.Int).QuoRem(x, unit, new(big.Int))
	switch mode {
	case "floor":
		if r.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		}
	case "ceil":
		if r.Sign() > 0 {
			q.Add(q, big.NewInt(1))
		}
	case "round":
		twice := new(big.Int).Mul(new(big.Int).Abs(r), big.NewInt(2))
		if twice.Cmp(unit) >= 0 {
			q.Add(q, big.NewInt(int64(x.Sign())))
		}
	}
	return runtime.IntegerValue{Val: q.Mul(q, unit)}
}

func floorValue(v value) value {
	if f, ok := v.(runtime.FloatValue); ok {
		i, _ := integerArg(runtime.FloatValue{Val: math.Floor(f.Val)})
		return runtime.IntegerValue{Val: i}
	}
	return v
}

// numericStep iterates from start toward limit by step. Without a block the
// values are collected into an array.
func (a *activation) numericStep(start, limit, by value, exclusive bool, blk *runtime.ProcValue) (value, error) {
	sign, ok := numCompare(by, runtime.Int(0))
	if !ok {
		return nil, a.Raise("TypeError", "step must be numeric")
	}
	if sign == 0 {
		return nil, a.Raise("ArgumentError", "step can't be 0")
	}
	var out []value
	cur := start
	for {
		n, ok := numCompare(cur, limit)
		if !ok {
			return nil, a.Raise("ArgumentError", "bad value for range")
		}
		if n*sign > 0 || (exclusive && n == 0) {
			break
		}
		if blk != nil {
			if _, err := a.callBlock(blk, cur); err != nil {
				return nil, err
			}
		} else {
			out = append(out, cur)
		}
		next, err := a.arith("+", cur, by)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	if blk == nil {
		return runtime.NewArray(out...), nil
	}
	return start, nil
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
