package vm

import (
	"sort"
	"strings"

	"rblower/compiler-go/pkg/runtime"
)

func (vm *VM) initArray() {
	c := vm.array
	arr := func(v value) *runtime.ArrayValue { return v.(*runtime.ArrayValue) }

	vm.defSingleton(c, "new", -1, func(a *activation, _ value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 0, 2); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return runtime.NewArray(), nil
		}
		if src, ok := args[0].(*runtime.ArrayValue); ok && len(args) == 1 {
			return runtime.NewArray(append([]value(nil), src.Elements...)...), nil
		}
		n, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, a.Raise("ArgumentError", "negative array size")
		}
		var fill value = runtime.Nil
		if len(args) == 2 {
			fill = args[1]
		}
		out := make([]value, n)
		for i := range out {
			if blk != nil {
				v, err := a.callBlock(blk, runtime.Int(int64(i)))
				if err != nil {
					return nil, err
				}
				out[i] = v
				continue
			}
			out[i] = fill
		}
		return runtime.NewArray(out...), nil
	})
	vm.defSingleton(c, "[]", -1, func(a *activation, _ value, args []value, blk block) (value, error) {
		return runtime.NewArray(append([]value(nil), args...)...), nil
	})

	vm.def(c, "each", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if blk == nil {
			return self, nil
		}
		xs := arr(self)
		for i := 0; i < len(xs.Elements); i++ {
			if _, err := a.callBlock(blk, xs.Elements[i]); err != nil {
				return nil, err
			}
		}
		return self, nil
	})
	vm.def(c, "each_index", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		for i := 0; i < len(arr(self).Elements); i++ {
			if _, err := a.callBlock(blk, runtime.Int(int64(i))); err != nil {
				return nil, err
			}
		}
		return self, nil
	})
	vm.def(c, "length", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(len(arr(self).Elements))), nil
	})
	vm.alias(c, "size", "length")
	vm.def(c, "empty?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(len(arr(self).Elements) == 0), nil
	})
	vm.def(c, "to_a", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
	vm.alias(c, "to_ary", "to_a")
	vm.alias(c, "entries", "to_a")
	vm.def(c, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		s, err := a.inspect(self)
		return runtime.Str(s), err
	})
	vm.alias(c, "inspect", "to_s")
	vm.def(c, "==", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		same, err := a.equal(self, args[0])
		return runtime.Bool(same), err
	})
	vm.def(c, "eql?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(runtime.Eql(self, args[0])), nil
	})
	vm.def(c, "hash", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(runtime.HashOf(self) >> 2)), nil
	})
	vm.def(c, "<=>", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		other, ok := args[0].(*runtime.ArrayValue)
		if !ok {
			return runtime.Nil, nil
		}
		xs, ys := arr(self).Elements, other.Elements
		for i := 0; i < len(xs) && i < len(ys); i++ {
			n, err := a.compare(xs[i], ys[i])
			if err != nil {
				return nil, err
			}
			if n != 0 {
				return runtime.Int(int64(n)), nil
			}
		}
		return runtime.Int(int64(cmpInt(len(xs), len(ys)))), nil
	})

	// Element access.
	vm.def(c, "[]", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		return a.arrayIndex(arr(self), args)
	})
	vm.alias(c, "slice", "[]")
	vm.def(c, "at", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.arrayIndex(arr(self), args)
	})
	vm.def(c, "[]=", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 2, 3); err != nil {
			return nil, err
		}
		return a.arraySet(arr(self), args)
	})
	vm.def(c, "fetch", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		xs := arr(self).Elements
		n, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		i := n
		if i < 0 {
			i += len(xs)
		}
		if i >= 0 && i < len(xs) {
			return xs[i], nil
		}
		switch {
		case blk != nil:
			return a.callBlock(blk, args[0])
		case len(args) == 2:
			return args[1], nil
		}
		return nil, a.Raise("IndexError", "index %d outside of array bounds: %d...%d", n, -len(xs), len(xs))
	})
	vm.def(c, "dig", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.dig(self, args)
	})
	vm.def(c, "first", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self).Elements
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
	})
	vm.def(c, "last", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self).Elements
		if len(args) == 0 {
			if len(xs) == 0 {
				return runtime.Nil, nil
			}
			return xs[len(xs)-1], nil
		}
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(append([]value(nil), xs[len(xs)-min(n, len(xs)):]...)...), nil
	})
	vm.def(c, "values_at", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		var out []value
		for _, arg := range args {
			v, err := a.arrayIndex(arr(self), []value{arg})
			if err != nil {
				return nil, err
			}
			if sub, ok := v.(*runtime.ArrayValue); ok {
				if _, isRange := arg.(runtime.RangeValue); isRange {
					out = append(out, sub.Elements...)
					continue
				}
			}
			out = append(out, v)
		}
		return runtime.NewArray(out...), nil
	})

	// Mutation.
	vm.def(c, "push", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		xs.Elements = append(xs.Elements, args...)
		return xs, nil
	})
	vm.alias(c, "append", "push")
	vm.def(c, "<<", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		xs.Elements = append(xs.Elements, args[0])
		return xs, nil
	})
	vm.def(c, "pop", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		if len(args) == 0 {
			if len(xs.Elements) == 0 {
				return runtime.Nil, nil
			}
			v := xs.Elements[len(xs.Elements)-1]
			xs.Elements = xs.Elements[:len(xs.Elements)-1]
			return v, nil
		}
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		n = min(n, len(xs.Elements))
		out := append([]value(nil), xs.Elements[len(xs.Elements)-n:]...)
		xs.Elements = xs.Elements[:len(xs.Elements)-n]
		return runtime.NewArray(out...), nil
	})
	vm.def(c, "shift", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		if len(args) == 0 {
			if len(xs.Elements) == 0 {
				return runtime.Nil, nil
			}
			v := xs.Elements[0]
			xs.Elements = append([]value(nil), xs.Elements[1:]...)
			return v, nil
		}
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		n = min(n, len(xs.Elements))
		out := append([]value(nil), xs.Elements[:n]...)
		xs.Elements = append([]value(nil), xs.Elements[n:]...)
		return runtime.NewArray(out...), nil
	})
	vm.def(c, "unshift", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		xs.Elements = append(append([]value(nil), args...), xs.Elements...)
		return xs, nil
	})
	vm.alias(c, "prepend", "unshift")
	vm.def(c, "insert", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, -1); err != nil {
			return nil, err
		}
		xs := arr(self)
		i, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			i += len(xs.Elements) + 1
		}
		if i < 0 {
			return nil, a.Raise("IndexError", "index %d too small for array", i)
		}
		for len(xs.Elements) < i {
			xs.Elements = append(xs.Elements, runtime.Nil)
		}
		rest := append(append([]value(nil), args[1:]...), xs.Elements[i:]...)
		xs.Elements = append(xs.Elements[:i], rest...)
		return xs, nil
	})
	vm.def(c, "concat", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		for _, arg := range args {
			other, err := a.arrayArg(arg)
			if err != nil {
				return nil, err
			}
			xs.Elements = append(xs.Elements, other.Elements...)
		}
		return xs, nil
	})
	vm.def(c, "replace", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		other, err := a.arrayArg(args[0])
		if err != nil {
			return nil, err
		}
		xs := arr(self)
		xs.Elements = append([]value(nil), other.Elements...)
		return xs, nil
	})
	vm.def(c, "clear", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		arr(self).Elements = nil
		return self, nil
	})
	vm.def(c, "delete", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		var kept []value
		var found value = runtime.Nil
		for _, el := range xs.Elements {
			same, err := a.equal(el, args[0])
			if err != nil {
				return nil, err
			}
			if same {
				found = el
				continue
			}
			kept = append(kept, el)
		}
		xs.Elements = kept
		return found, nil
	})
	vm.def(c, "delete_at", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		i, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			i += len(xs.Elements)
		}
		if i < 0 || i >= len(xs.Elements) {
			return runtime.Nil, nil
		}
		v := xs.Elements[i]
		xs.Elements = append(xs.Elements[:i:i], xs.Elements[i+1:]...)
		return v, nil
	})
	vm.def(c, "fill", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		for i := range xs.Elements {
			if blk != nil {
				v, err := a.callBlock(blk, runtime.Int(int64(i)))
				if err != nil {
					return nil, err
				}
				xs.Elements[i] = v
			} else if len(args) > 0 {
				xs.Elements[i] = args[0]
			}
		}
		return xs, nil
	})

	// In-place filters. Each returns nil when nothing changed, except the
	// keep_if and delete_if forms.
	filters := []struct {
		name   string
		keep   bool
		always bool
	}{
		{"select!", true, false}, {"filter!", true, false}, {"keep_if", true, true},
		{"reject!", false, false}, {"delete_if", false, true},
	}
	for _, f := range filters {
		vm.def(c, f.name, 0, func(a *activation, self value, args []value, blk block) (value, error) {
			if err := a.needBlock(blk); err != nil {
				return nil, err
			}
			xs := arr(self)
			var kept []value
			for _, el := range xs.Elements {
				v, err := a.callBlock(blk, el)
				if err != nil {
					return nil, err
				}
				if runtime.Truthy(v) == f.keep {
					kept = append(kept, el)
				}
			}
			changed := len(kept) != len(xs.Elements)
			xs.Elements = kept
			if !changed && !f.always {
				return runtime.Nil, nil
			}
			return xs, nil
		})
	}
	vm.def(c, "map!", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		xs := arr(self)
		for i, el := range xs.Elements {
			v, err := a.callBlock(blk, el)
			if err != nil {
				return nil, err
			}
			xs.Elements[i] = v
		}
		return xs, nil
	})
	vm.alias(c, "collect!", "map!")

	// Derived arrays, most with a bang form.
	derived := map[string]func(a *activation, xs []value, args []value, blk block) ([]value, error){
		"reverse": func(a *activation, xs []value, args []value, blk block) ([]value, error) {
			out := make([]value, len(xs))
			for i, el := range xs {
				out[len(xs)-1-i] = el
			}
			return out, nil
		},
		"compact": func(a *activation, xs []value, args []value, blk block) ([]value, error) {
			var out []value
			for _, el := range xs {
				if el.Kind() != runtime.KindNil {
					out = append(out, el)
				}
			}
			return out, nil
		},
		"flatten": func(a *activation, xs []value, args []value, blk block) ([]value, error) {
			depth := -1
			if len(args) > 0 && args[0].Kind() != runtime.KindNil {
				n, err := a.intArg(args[0])
				if err != nil {
					return nil, err
				}
				depth = n
			}
			return flatten(xs, depth), nil
		},
		"uniq": func(a *activation, xs []value, args []value, blk block) ([]value, error) {
			return a.uniq(xs, blk)
		},
		"sort": func(a *activation, xs []value, args []value, blk block) ([]value, error) {
			return a.sorted(xs, blk)
		},
		"shuffle": func(a *activation, xs []value, args []value, blk block) ([]value, error) {
			return append([]value(nil), xs...), nil
		},
	}
	for name, fn := range derived {
		vm.def(c, name, -1, func(a *activation, self value, args []value, blk block) (value, error) {
			out, err := fn(a, arr(self).Elements, args, blk)
			if err != nil {
				return nil, err
			}
			return runtime.NewArray(out...), nil
		})
		vm.def(c, name+"!", -1, func(a *activation, self value, args []value, blk block) (value, error) {
			xs := arr(self)
			out, err := fn(a, xs.Elements, args, blk)
			if err != nil {
				return nil, err
			}
			changed := !runtime.Equal(runtime.NewArray(out...), xs)
			xs.Elements = out
			if !changed && (name == "compact" || name == "flatten" || name == "uniq") {
				return runtime.Nil, nil
			}
			return xs, nil
		})
	}
	vm.def(c, "sort_by!", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self)
		out, err := a.sortBy(xs.Elements, blk)
		if err != nil {
			return nil, err
		}
		xs.Elements = out
		return xs, nil
	})
	vm.def(c, "rotate", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self).Elements
		n := 1
		if len(args) > 0 {
			k, err := a.intArg(args[0])
			if err != nil {
				return nil, err
			}
			n = k
		}
		if len(xs) == 0 {
			return runtime.NewArray(), nil
		}
		n = ((n % len(xs)) + len(xs)) % len(xs)
		return runtime.NewArray(append(append([]value(nil), xs[n:]...), xs[:n]...)...), nil
	})
	vm.def(c, "+", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		other, err := a.arrayArg(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(append(append([]value(nil), arr(self).Elements...), other.Elements...)...), nil
	})
	vm.def(c, "-", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		other, err := a.arrayArg(args[0])
		if err != nil {
			return nil, err
		}
		drop := runtime.NewHash()
		for _, el := range other.Elements {
			drop.Set(el, runtime.Bool(true))
		}
		var out []value
		for _, el := range arr(self).Elements {
			if _, ok := drop.Get(el); !ok {
				out = append(out, el)
			}
		}
		return runtime.NewArray(out...), nil
	})
	vm.alias(c, "difference", "-")
	vm.def(c, "*", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		if sep, ok := args[0].(*runtime.StringValue); ok {
			return a.join(arr(self), sep.Val)
		}
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		var out []value
		for i := 0; i < n; i++ {
			out = append(out, arr(self).Elements...)
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(c, "&", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		other, err := a.arrayArg(args[0])
		if err != nil {
			return nil, err
		}
		keep := runtime.NewHash()
		for _, el := range other.Elements {
			keep.Set(el, runtime.Bool(true))
		}
		seen := runtime.NewHash()
		var out []value
		for _, el := range arr(self).Elements {
			if _, ok := keep.Get(el); ok {
				if _, dup := seen.Get(el); !dup {
					seen.Set(el, runtime.Bool(true))
					out = append(out, el)
				}
			}
		}
		return runtime.NewArray(out...), nil
	})
	vm.alias(c, "intersection", "&")
	vm.def(c, "|", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		other, err := a.arrayArg(args[0])
		if err != nil {
			return nil, err
		}
		out, err := a.uniq(append(append([]value(nil), arr(self).Elements...), other.Elements...), nil)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(out...), nil
	})
	vm.alias(c, "union", "|")
	vm.def(c, "join", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		sep := ""
		if len(args) > 0 && args[0].Kind() != runtime.KindNil {
			s, err := a.stringArg(args[0])
			if err != nil {
				return nil, err
			}
			sep = s
		}
		return a.join(arr(self), sep)
	})
	vm.def(c, "index", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		for i, el := range arr(self).Elements {
			hit, err := a.matches(el, args, blk)
			if err != nil {
				return nil, err
			}
			if hit {
				return runtime.Int(int64(i)), nil
			}
		}
		return runtime.Nil, nil
	})
	vm.alias(c, "find_index", "index")
	vm.def(c, "rindex", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs := arr(self).Elements
		for i := len(xs) - 1; i >= 0; i-- {
			hit, err := a.matches(xs[i], args, blk)
			if err != nil {
				return nil, err
			}
			if hit {
				return runtime.Int(int64(i)), nil
			}
		}
		return runtime.Nil, nil
	})
	vm.def(c, "transpose", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		rows := arr(self).Elements
		if len(rows) == 0 {
			return runtime.NewArray(), nil
		}
		width := -1
		for _, row := range rows {
			r, err := a.arrayArg(row)
			if err != nil {
				return nil, err
			}
			if width >= 0 && len(r.Elements) != width {
				return nil, a.Raise("IndexError", "element size differs (%d should be %d)", len(r.Elements), width)
			}
			width = len(r.Elements)
		}
		out := make([]value, width)
		for j := range out {
			col := make([]value, len(rows))
			for i, row := range rows {
				col[i] = row.(*runtime.ArrayValue).Elements[j]
			}
			out[j] = runtime.NewArray(col...)
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(c, "assoc", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		for _, el := range arr(self).Elements {
			if pair, ok := el.(*runtime.ArrayValue); ok && len(pair.Elements) > 0 {
				same, err := a.equal(pair.Elements[0], args[0])
				if err != nil {
					return nil, err
				}
				if same {
					return pair, nil
				}
			}
		}
		return runtime.Nil, nil
	})
	vm.def(c, "product", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		combos := [][]value{{}}
		lists := []*runtime.ArrayValue{arr(self)}
		for _, arg := range args {
			other, err := a.arrayArg(arg)
			if err != nil {
				return nil, err
			}
			lists = append(lists, other)
		}
		for _, list := range lists {
			var next [][]value
			for _, combo := range combos {
				for _, el := range list.Elements {
					next = append(next, append(append([]value(nil), combo...), el))
				}
			}
			combos = next
		}
		out := make([]value, len(combos))
		for i, combo := range combos {
			out[i] = runtime.NewArray(combo...)
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(c, "combination", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		k, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		var out []value
		xs := arr(self).Elements
		var pick func(start int, chosen []value)
		pick = func(start int, chosen []value) {
			if len(chosen) == k {
				out = append(out, runtime.NewArray(append([]value(nil), chosen...)...))
				return
			}
			for i := start; i < len(xs); i++ {
				pick(i+1, append(chosen, xs[i]))
			}
		}
		if k >= 0 {
			pick(0, nil)
		}
		return a.eachOf(self, out, blk)
	})
	vm.def(c, "pack", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return nil, a.Raise("NotImplementedError", "Array#pack is not supported")
	})
}

//-----------------------------------------------------------------------------
// Array helpers
//-----------------------------------------------------------------------------

func cmpInt(x, y int) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// rangeBounds resolves r against a sequence of length elements into a
// start index and element count.
func rangeBounds(r runtime.RangeValue, length int) (int, int, bool) {
	start := 0
	if r.Start.Kind() != runtime.KindNil {
		s, ok := intArg(r.Start)
		if !ok {
			return 0, 0, false
		}
		start = s
	}
	end, exclusive := length, true
	if r.End.Kind() != runtime.KindNil {
		e, ok := intArg(r.End)
		if !ok {
			return 0, 0, false
		}
		end, exclusive = e, r.Exclusive
		if end < 0 {
			end += length
		}
	}
	if start < 0 {
		start += length
	}
	if start < 0 || start > length {
		return 0, 0, false
	}
	if !exclusive {
		end++
	}
	count := max(end-start, 0)
	count = min(count, length-start)
	return start, count, true
}

func (a *activation) arrayArg(v value) (*runtime.ArrayValue, error) {
	if arr, ok := v.(*runtime.ArrayValue); ok {
		return arr, nil
	}
	return nil, a.Raise("TypeError", "no implicit conversion of %s into Array", a.vm.typeName(v))
}

func (a *activation) countArg(v value) (int, error) {
	n, err := a.intArg(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, a.Raise("ArgumentError", "negative array size")
	}
	return n, nil
}

func (a *activation) arrayIndex(xs *runtime.ArrayValue, args []value) (value, error) {
	els := xs.Elements
	if r, ok := args[0].(runtime.RangeValue); ok {
		start, count, ok := rangeBounds(r, len(els))
		if !ok {
			return runtime.Nil, nil
		}
		return runtime.NewArray(append([]value(nil), els[start:start+count]...)...), nil
	}
	i, err := a.intArg(args[0])
	if err != nil {
		return nil, err
	}
	if i < 0 {
		i += len(els)
	}
	if len(args) == 2 {
		n, err := a.intArg(args[1])
		if err != nil {
			return nil, err
		}
		if i < 0 || i > len(els) || n < 0 {
			return runtime.Nil, nil
		}
		n = min(n, len(els)-i)
		return runtime.NewArray(append([]value(nil), els[i:i+n]...)...), nil
	}
	if i < 0 || i >= len(els) {
		return runtime.Nil, nil
	}
	return els[i], nil
}

func (a *activation) arraySet(xs *runtime.ArrayValue, args []value) (value, error) {
	v := args[len(args)-1]
	var start, count int
	spliced := true
	switch {
	case len(args) == 3:
		i, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		n, err := a.intArg(args[1])
		if err != nil {
			return nil, err
		}
		start, count = i, n
	default:
		if r, ok := args[0].(runtime.RangeValue); ok {
			s, n, ok := rangeBounds(r, len(xs.Elements))
			if !ok {
				return nil, a.Raise("RangeError", "%s out of range", runtime.Inspect(r))
			}
			start, count = s, n
			break
		}
		i, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		start, count, spliced = i, 1, false
	}
	if start < 0 {
		start += len(xs.Elements)
		if start < 0 {
			return nil, a.Raise("IndexError", "index %d too small for array", start-len(xs.Elements))
		}
	}
	for len(xs.Elements) < start {
		xs.Elements = append(xs.Elements, runtime.Nil)
	}
	if !spliced {
		if start == len(xs.Elements) {
			xs.Elements = append(xs.Elements, v)
		} else {
			xs.Elements[start] = v
		}
		return v, nil
	}
	count = min(max(count, 0), len(xs.Elements)-start)
	repl := []value{v}
	if arr, ok := v.(*runtime.ArrayValue); ok {
		repl = arr.Elements
	}
	tail := append(append([]value(nil), repl...), xs.Elements[start+count:]...)
	xs.Elements = append(xs.Elements[:start], tail...)
	return v, nil
}

func (a *activation) dig(v value, keys []value) (value, error) {
	for _, k := range keys {
		if v.Kind() == runtime.KindNil {
			return v, nil
		}
		next, err := a.Send(v, "[]", []value{k}, nil)
		if err != nil {
			return nil, err
		}
		v = next
	}
	return v, nil
}

func (a *activation) join(xs *runtime.ArrayValue, sep string) (value, error) {
	parts := make([]string, len(xs.Elements))
	for i, el := range xs.Elements {
		if sub, ok := el.(*runtime.ArrayValue); ok {
			s, err := a.join(sub, sep)
			if err != nil {
				return nil, err
			}
			parts[i] = s.(*runtime.StringValue).Val
			continue
		}
		s, err := a.toS(el)
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return runtime.Str(strings.Join(parts, sep)), nil
}

// matches tests el against a value argument or the block.
func (a *activation) matches(el value, args []value, blk *runtime.ProcValue) (bool, error) {
	if len(args) > 0 {
		return a.equal(el, args[0])
	}
	if blk == nil {
		return false, a.Raise("ArgumentError", "wrong number of arguments (given 0, expected 1)")
	}
	v, err := a.callBlock(blk, el)
	return runtime.Truthy(v), err
}

func flatten(xs []value, depth int) []value {
	var out []value
	for _, el := range xs {
		if sub, ok := el.(*runtime.ArrayValue); ok && depth != 0 {
			out = append(out, flatten(sub.Elements, depth-1)...)
			continue
		}
		out = append(out, el)
	}
	return out
}

func (a *activation) uniq(xs []value, blk *runtime.ProcValue) ([]value, error) {
	seen := runtime.NewHash()
	var out []value
	for _, el := range xs {
		key := el
		if blk != nil {
			k, err := a.callBlock(blk, el)
			if err != nil {
				return nil, err
			}
			key = k
		}
		if _, dup := seen.Get(key); dup {
			continue
		}
		seen.Set(key, runtime.Bool(true))
		out = append(out, el)
	}
	return out, nil
}

// sorted returns a stably sorted copy, ordered by <=> or by the block.
func (a *activation) sorted(xs []value, blk *runtime.ProcValue) ([]value, error) {
	out := append([]value(nil), xs...)
	var failed error
	sort.SliceStable(out, func(i, j int) bool {
		if failed != nil {
			return false
		}
		var n int
		if blk != nil {
			v, err := a.callBlock(blk, out[i], out[j])
			if err != nil {
				failed = err
				return false
			}
			k, ok := intArg(v)
			if !ok {
				failed = a.Raise("ArgumentError", "comparison of %s with %s failed", a.vm.realClassOf(out[i]).Name, a.vm.realClassOf(out[j]).Name)
				return false
			}
			n = k
		} else {
			k, err := a.compare(out[i], out[j])
			if err != nil {
				failed = err
				return false
			}
			n = k
		}
		return n < 0
	})
	return out, failed
}

func (a *activation) sortBy(xs []value, blk *runtime.ProcValue) ([]value, error) {
	if err := a.needBlock(blk); err != nil {
		return nil, err
	}
	keys := make([]value, len(xs))
	for i, el := range xs {
		k, err := a.callBlock(blk, el)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	var failed error
	sort.SliceStable(idx, func(i, j int) bool {
		if failed != nil {
			return false
		}
		n, err := a.compare(keys[idx[i]], keys[idx[j]])
		if err != nil {
			failed = err
		}
		return n < 0
	})
	out := make([]value, len(xs))
	for i, k := range idx {
		out[i] = xs[k]
	}
	return out, failed
}
