package vm

import (
	"rblower/compiler-go/pkg/runtime"
)

// enumElements materializes what self's each yields. Multiple yielded
// values are collected as one array.
func (a *activation) enumElements(self value) ([]value, error) {
	switch x := self.(type) {
	case *runtime.ArrayValue:
		if m := a.vm.classOf(x).Lookup("each"); m != nil && m.Owner == a.vm.array {
			return x.Elements, nil
		}
	case *runtime.HashValue:
		if m := a.vm.classOf(x).Lookup("each"); m != nil && m.Owner == a.vm.hash {
			return hashPairs(x), nil
		}
	case runtime.RangeValue:
		return a.rangeElements(x)
	}
	var out []value
	collect := &runtime.ProcValue{Native: func(_ runtime.Caller, args []value, _ *runtime.ProcValue) (value, error) {
		switch len(args) {
		case 0:
			out = append(out, runtime.Nil)
		case 1:
			out = append(out, args[0])
		default:
			out = append(out, runtime.NewArray(append([]value(nil), args...)...))
		}
		return runtime.Nil, nil
	}}
	if _, err := a.Send(self, "each", nil, collect); err != nil {
		return nil, err
	}
	return out, nil
}

func (vm *VM) initEnumerable() {
	c := vm.enumerable
	// elems adapts a builtin that works on the materialized elements.
	elems := func(fn func(a *activation, xs []value, args []value, blk block) (value, error)) builtin {
		return func(a *activation, self value, args []value, blk block) (value, error) {
			xs, err := a.enumElements(self)
			if err != nil {
				return nil, err
			}
			return fn(a, xs, args, blk)
		}
	}
	array := func(out []value, err error) (value, error) {
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(out...), nil
	}

	vm.def(c, "to_a", -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return runtime.NewArray(append([]value(nil), xs...)...), nil
	}))
	vm.alias(c, "entries", "to_a")
	vm.def(c, "map", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		if blk == nil {
			return runtime.NewArray(append([]value(nil), xs...)...), nil
		}
		return array(a.mapValues(xs, blk))
	}))
	vm.alias(c, "collect", "map")
	vm.def(c, "flat_map", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		mapped, err := a.mapValues(xs, blk)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(flatten(mapped, 1)...), nil
	}))
	vm.alias(c, "collect_concat", "flat_map")
	vm.def(c, "filter_map", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		mapped, err := a.mapValues(xs, blk)
		if err != nil {
			return nil, err
		}
		var out []value
		for _, v := range mapped {
			if runtime.Truthy(v) {
				out = append(out, v)
			}
		}
		return runtime.NewArray(out...), nil
	}))
	for _, f := range []struct {
		name string
		keep bool
	}{{"select", true}, {"filter", true}, {"reject", false}} {
		vm.def(c, f.name, 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
			in, out, err := a.partition(xs, blk)
			if !f.keep {
				in = out
			}
			return array(in, err)
		}))
	}
	vm.def(c, "partition", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		in, out, err := a.partition(xs, blk)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(runtime.NewArray(in...), runtime.NewArray(out...)), nil
	}))
	vm.def(c, "find", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		i, err := a.findIndex(xs, nil, blk)
		if err != nil || i < 0 {
			return runtime.Nil, err
		}
		return xs[i], nil
	}))
	vm.alias(c, "detect", "find")
	vm.def(c, "find_index", -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		i, err := a.findIndex(xs, args, blk)
		if err != nil || i < 0 {
			return runtime.Nil, err
		}
		return runtime.Int(int64(i)), nil
	}))
	vm.def(c, "each_with_index", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		xs, err := a.enumElements(self)
		if err != nil {
			return nil, err
		}
		if blk == nil {
			return array(withIndex(xs), nil)
		}
		for i, el := range xs {
			if _, err := a.callBlock(blk, el, runtime.Int(int64(i))); err != nil {
				return nil, err
			}
		}
		return self, nil
	})
	vm.def(c, "each_with_object", 1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		for _, el := range xs {
			if _, err := a.callBlock(blk, el, args[0]); err != nil {
				return nil, err
			}
		}
		return args[0], nil
	}))
	vm.def(c, "map_with_index", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		out := make([]value, len(xs))
		for i, el := range xs {
			v, err := a.callBlock(blk, el, runtime.Int(int64(i)))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return runtime.NewArray(out...), nil
	}))
	vm.def(c, "inject", -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return a.inject(xs, args, blk)
	}))
	vm.alias(c, "reduce", "inject")
	vm.def(c, "sum", -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return a.sum(xs, args, blk)
	}))
	vm.def(c, "count", -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		if len(args) == 0 && blk == nil {
			return runtime.Int(int64(len(xs))), nil
		}
		n := 0
		for _, el := range xs {
			hit, err := a.matches(el, args, blk)
			if err != nil {
				return nil, err
			}
			if hit {
				n++
			}
		}
		return runtime.Int(int64(n)), nil
	}))
	vm.def(c, "include?", 1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		i, err := a.findIndex(xs, args, nil)
		return runtime.Bool(i >= 0), err
	}))
	vm.alias(c, "member?", "include?")
	vm.def(c, "first", -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		if len(args) == 0 {
			if len(xs) == 0 {
				return runtime.Nil, nil
			}
			return xs[0], nil
		}
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(append([]value(nil), xs[:min(n, len(xs))]...)...), nil
	}))
	vm.def(c, "take", 1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(append([]value(nil), xs[:min(n, len(xs))]...)...), nil
	}))
	vm.def(c, "drop", 1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(append([]value(nil), xs[min(n, len(xs)):]...)...), nil
	}))
	vm.def(c, "take_while", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		n, err := a.prefixWhile(xs, blk)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(append([]value(nil), xs[:n]...)...), nil
	}))
	vm.def(c, "drop_while", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		n, err := a.prefixWhile(xs, blk)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(append([]value(nil), xs[n:]...)...), nil
	}))
	vm.def(c, "min", -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return a.extreme(xs, args, blk, -1)
	}))
	vm.def(c, "max", -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return a.extreme(xs, args, blk, 1)
	}))
	vm.def(c, "minmax", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		lo, err := a.extreme(xs, nil, blk, -1)
		if err != nil {
			return nil, err
		}
		hi, err := a.extreme(xs, nil, blk, 1)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(lo, hi), nil
	}))
	vm.def(c, "min_by", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return a.extremeBy(xs, blk, -1)
	}))
	vm.def(c, "max_by", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return a.extremeBy(xs, blk, 1)
	}))
	vm.def(c, "sort", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return array(a.sorted(xs, blk))
	}))
	vm.def(c, "sort_by", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return array(a.sortBy(xs, blk))
	}))
	vm.def(c, "group_by", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return a.groupBy(xs, blk)
	}))
	vm.def(c, "tally", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		out := runtime.NewHash()
		for _, el := range xs {
			n := int64(0)
			if v, ok := out.Get(el); ok {
				n, _ = v.(runtime.IntegerValue).Int64()
			}
			out.Set(el, runtime.Int(n+1))
		}
		return out, nil
	}))
	vm.def(c, "uniq", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return array(a.uniq(xs, blk))
	}))
	vm.def(c, "zip", -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		others := make([][]value, len(args))
		for i, arg := range args {
			ys, err := a.enumElements(arg)
			if err != nil {
				return nil, err
			}
			others[i] = ys
		}
		out := make([]value, len(xs))
		for i, el := range xs {
			row := []value{el}
			for _, ys := range others {
				if i < len(ys) {
					row = append(row, ys[i])
				} else {
					row = append(row, runtime.Nil)
				}
			}
			out[i] = runtime.NewArray(row...)
		}
		if blk != nil {
			_, err := a.eachOf(runtime.Nil, out, blk)
			return runtime.Nil, err
		}
		return runtime.NewArray(out...), nil
	}))
	vm.def(c, "each_slice", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.windows(self, args[0], blk, false)
	})
	vm.def(c, "each_cons", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.windows(self, args[0], blk, true)
	})
	vm.def(c, "each_entry", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		xs, err := a.enumElements(self)
		if err != nil {
			return nil, err
		}
		return a.eachOf(self, xs, blk)
	})
	vm.def(c, "reverse_each", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		xs, err := a.enumElements(self)
		if err != nil {
			return nil, err
		}
		rev := make([]value, len(xs))
		for i, el := range xs {
			rev[len(xs)-1-i] = el
		}
		return a.eachOf(self, rev, blk)
	})
	vm.def(c, "cycle", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		xs, err := a.enumElements(self)
		if err != nil {
			return nil, err
		}
		rounds := -1
		if len(args) > 0 && args[0].Kind() != runtime.KindNil {
			n, err := a.intArg(args[0])
			if err != nil {
				return nil, err
			}
			rounds = n
		}
		for r := 0; (rounds < 0 || r < rounds) && len(xs) > 0; r++ {
			for _, el := range xs {
				if _, err := a.callBlock(blk, el); err != nil {
					return nil, err
				}
			}
		}
		return runtime.Nil, nil
	})
	for _, q := range []struct {
		name string
		mode int
	}{{"any?", 0}, {"all?", 1}, {"none?", 2}, {"one?", 3}} {
		vm.def(c, q.name, -1, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
			return a.quantify(xs, args, blk, q.mode)
		}))
	}
	vm.def(c, "to_h", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		if blk != nil {
			mapped, err := a.mapValues(xs, blk)
			if err != nil {
				return nil, err
			}
			xs = mapped
		}
		return a.pairsToHash(xs)
	}))
	vm.def(c, "chunk_while", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return a.chunks(xs, blk, false)
	}))
	vm.def(c, "slice_when", 0, elems(func(a *activation, xs []value, args []value, blk block) (value, error) {
		return a.chunks(xs, blk, true)
	}))
}

//-----------------------------------------------------------------------------
// Enumerable helpers
//-----------------------------------------------------------------------------

func withIndex(xs []value) []value {
	out := make([]value, len(xs))
	for i, el := range xs {
		out[i] = runtime.NewArray(el, runtime.Int(int64(i)))
	}
	return out
}

func (a *activation) mapValues(xs []value, blk *runtime.ProcValue) ([]value, error) {
	if err := a.needBlock(blk); err != nil {
		return nil, err
	}
	out := make([]value, len(xs))
	for i, el := range xs {
		v, err := a.callBlock(blk, el)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (a *activation) partition(xs []value, blk *runtime.ProcValue) (in, out []value, err error) {
	if err := a.needBlock(blk); err != nil {
		return nil, nil, err
	}
	for _, el := range xs {
		v, err := a.callBlock(blk, el)
		if err != nil {
			return nil, nil, err
		}
		if runtime.Truthy(v) {
			in = append(in, el)
		} else {
			out = append(out, el)
		}
	}
	return in, out, nil
}

func (a *activation) findIndex(xs []value, args []value, blk *runtime.ProcValue) (int, error) {
	for i, el := range xs {
		hit, err := a.matches(el, args, blk)
		if err != nil {
			return -1, err
		}
		if hit {
			return i, nil
		}
	}
	return -1, nil
}

func (a *activation) prefixWhile(xs []value, blk *runtime.ProcValue) (int, error) {
	if err := a.needBlock(blk); err != nil {
		return 0, err
	}
	for i, el := range xs {
		v, err := a.callBlock(blk, el)
		if err != nil {
			return 0, err
		}
		if !runtime.Truthy(v) {
			return i, nil
		}
	}
	return len(xs), nil
}

// inject folds with a block or an operator symbol; the first element
// seeds the fold when no initial value is given.
func (a *activation) inject(xs []value, args []value, blk *runtime.ProcValue) (value, error) {
	if err := a.argCount(args, 0, 2); err != nil {
		return nil, err
	}
	var acc value
	op := ""
	switch {
	case len(args) == 2:
		name, err := a.nameArg(args[1])
		if err != nil {
			return nil, err
		}
		acc, op = args[0], name
	case len(args) == 1 && blk == nil:
		name, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		op = name
	case len(args) == 1:
		acc = args[0]
	}
	for _, el := range xs {
		if acc == nil {
			acc = el
			continue
		}
		var err error
		if op != "" {
			acc, err = a.Send(acc, op, []value{el}, nil)
		} else {
			acc, err = a.callBlock(blk, acc, el)
		}
		if err != nil {
			return nil, err
		}
	}
	if acc == nil {
		return runtime.Nil, nil
	}
	return acc, nil
}

func (a *activation) sum(xs []value, args []value, blk *runtime.ProcValue) (value, error) {
	var acc value = runtime.Int(0)
	if len(args) > 0 {
		acc = args[0]
	}
	for _, el := range xs {
		if blk != nil {
			v, err := a.callBlock(blk, el)
			if err != nil {
				return nil, err
			}
			el = v
		}
		var err error
		if _, numeric := floatOf(acc); numeric {
			acc, err = a.arith("+", acc, el)
		} else {
			acc, err = a.Send(acc, "+", []value{el}, nil)
		}
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// extreme finds the minimum (sign -1) or maximum (sign 1), or the n
// smallest or largest when a count is given.
func (a *activation) extreme(xs []value, args []value, blk *runtime.ProcValue, sign int) (value, error) {
	if len(args) > 0 {
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		sorted, err := a.sorted(xs, blk)
		if err != nil {
			return nil, err
		}
		if sign > 0 {
			for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
		return runtime.NewArray(sorted[:min(n, len(sorted))]...), nil
	}
	var best value
	for _, el := range xs {
		if best == nil {
			best = el
			continue
		}
		n, err := a.compareWith(el, best, blk)
		if err != nil {
			return nil, err
		}
		if n*sign > 0 {
			best = el
		}
	}
	if best == nil {
		return runtime.Nil, nil
	}
	return best, nil
}

func (a *activation) compareWith(x, y value, blk *runtime.ProcValue) (int, error) {
	if blk == nil {
		return a.compare(x, y)
	}
	v, err := a.callBlock(blk, x, y)
	if err != nil {
		return 0, err
	}
	n, ok := intArg(v)
	if !ok {
		return 0, a.Raise("ArgumentError", "comparison of %s with %s failed", a.vm.realClassOf(x).Name, a.vm.realClassOf(y).Name)
	}
	return n, nil
}

func (a *activation) extremeBy(xs []value, blk *runtime.ProcValue, sign int) (value, error) {
	if err := a.needBlock(blk); err != nil {
		return nil, err
	}
	var best, bestKey value
	for _, el := range xs {
		k, err := a.callBlock(blk, el)
		if err != nil {
			return nil, err
		}
		if best == nil {
			best, bestKey = el, k
			continue
		}
		n, err := a.compare(k, bestKey)
		if err != nil {
			return nil, err
		}
		if n*sign > 0 {
			best, bestKey = el, k
		}
	}
	if best == nil {
		return runtime.Nil, nil
	}
	return best, nil
}

func (a *activation) groupBy(xs []value, blk *runtime.ProcValue) (value, error) {
	if err := a.needBlock(blk); err != nil {
		return nil, err
	}
	out := runtime.NewHash()
	for _, el := range xs {
		k, err := a.callBlock(blk, el)
		if err != nil {
			return nil, err
		}
		group, ok := out.Get(k)
		if !ok {
			group = runtime.NewArray()
			out.Set(k, group)
		}
		g := group.(*runtime.ArrayValue)
		g.Elements = append(g.Elements, el)
	}
	return out, nil
}

// windows backs each_slice (disjoint) and each_cons (overlapping).
func (a *activation) windows(self value, size value, blk *runtime.ProcValue, overlapping bool) (value, error) {
	n, err := a.intArg(size)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, a.Raise("ArgumentError", "invalid size")
	}
	xs, err := a.enumElements(self)
	if err != nil {
		return nil, err
	}
	var groups []value
	if overlapping {
		for i := 0; i+n <= len(xs); i++ {
			groups = append(groups, runtime.NewArray(append([]value(nil), xs[i:i+n]...)...))
		}
	} else {
		for i := 0; i < len(xs); i += n {
			groups = append(groups, runtime.NewArray(append([]value(nil), xs[i:min(i+n, len(xs))]...)...))
		}
	}
	if blk == nil {
		return runtime.NewArray(groups...), nil
	}
	for _, g := range groups {
		if _, err := a.callBlock(blk, g); err != nil {
			return nil, err
		}
	}
	return self, nil
}

// quantify implements any? (0), all? (1), none? (2) and one? (3). A
// pattern argument is matched with ===.
func (a *activation) quantify(xs []value, args []value, blk *runtime.ProcValue, mode int) (value, error) {
	hits := 0
	for _, el := range xs {
		var ok bool
		switch {
		case len(args) > 0:
			v, err := a.Send(args[0], "===", []value{el}, nil)
			if err != nil {
				return nil, err
			}
			ok = runtime.Truthy(v)
		case blk != nil:
			v, err := a.callBlock(blk, el)
			if err != nil {
				return nil, err
			}
			ok = runtime.Truthy(v)
		default:
			ok = runtime.Truthy(el)
		}
		if ok {
			hits++
		}
		switch {
		case mode == 0 && ok:
			return runtime.Bool(true), nil
		case mode == 1 && !ok:
			return runtime.Bool(false), nil
		case mode == 2 && ok:
			return runtime.Bool(false), nil
		case mode == 3 && hits > 1:
			return runtime.Bool(false), nil
		}
	}
	switch mode {
	case 0:
		return runtime.Bool(false), nil
	case 3:
		return runtime.Bool(hits == 1), nil
	}
	return runtime.Bool(true), nil
}

// chunks splits xs between neighbours; chunk_while splits where the block
// is false and slice_when where it is true.
func (a *activation) chunks(xs []value, blk *runtime.ProcValue, splitOnTrue bool) (value, error) {
	if err := a.needBlock(blk); err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return runtime.NewArray(), nil
	}
	var out []value
	cur := []value{xs[0]}
	for i := 1; i < len(xs); i++ {
		v, err := a.callBlock(blk, xs[i-1], xs[i])
		if err != nil {
			return nil, err
		}
		if runtime.Truthy(v) == splitOnTrue {
			out = append(out, runtime.NewArray(cur...))
			cur = nil
		}
		cur = append(cur, xs[i])
	}
	out = append(out, runtime.NewArray(cur...))
	return runtime.NewArray(out...), nil
}
