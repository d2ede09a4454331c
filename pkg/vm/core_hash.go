package vm

import (
	"rblower/compiler-go/pkg/runtime"
)

func (vm *VM) initHash() {
	c := vm.hash
	hsh := func(v value) *runtime.HashValue { return v.(*runtime.HashValue) }

	vm.defSingleton(c, "new", -1, func(a *activation, _ value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 0, 1); err != nil {
			return nil, err
		}
		h := runtime.NewHash()
		if len(args) == 1 {
			h.Default = args[0]
		}
		h.DefaultProc = blk
		return h, nil
	})
	vm.defSingleton(c, "[]", -1, func(a *activation, _ value, args []value, blk block) (value, error) {
		h := runtime.NewHash()
		if len(args) == 1 {
			switch src := args[0].(type) {
			case *runtime.HashValue:
				src.Each(func(k, v value) bool { h.Set(k, v); return true })
				return h, nil
			case *runtime.ArrayValue:
				return a.pairsToHash(src.Elements)
			}
		}
		if len(args)%2 != 0 {
			return nil, a.Raise("ArgumentError", "odd number of arguments for Hash")
		}
		for i := 0; i < len(args); i += 2 {
			h.Set(args[i], args[i+1])
		}
		return h, nil
	})

	vm.def(c, "[]", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.hashFetch(hsh(self), args[0])
	})
	vm.def(c, "[]=", 2, func(a *activation, self value, args []value, blk block) (value, error) {
		key := args[0]
		if s, ok := key.(*runtime.StringValue); ok && !s.Frozen {
			key = &runtime.StringValue{Val: s.Val, Frozen: true}
		}
		hsh(self).Set(key, args[1])
		return args[1], nil
	})
	vm.alias(c, "store", "[]=")
	vm.def(c, "fetch", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		if v, ok := hsh(self).Get(args[0]); ok {
			return v, nil
		}
		switch {
		case blk != nil:
			return a.callBlock(blk, args[0])
		case len(args) == 2:
			return args[1], nil
		}
		return nil, a.raiseWith("KeyError", map[string]value{"@key": args[0], "@receiver": self}, "key not found: %s", runtime.Inspect(args[0]))
	})
	vm.def(c, "dig", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.dig(self, args)
	})
	vm.def(c, "key?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		_, ok := hsh(self).Get(args[0])
		return runtime.Bool(ok), nil
	})
	for _, name := range []string{"has_key?", "include?", "member?"} {
		vm.alias(c, name, "key?")
	}
	vm.def(c, "value?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		for _, v := range hsh(self).Values() {
			same, err := a.equal(v, args[0])
			if err != nil || same {
				return runtime.Bool(same), err
			}
		}
		return runtime.Bool(false), nil
	})
	vm.alias(c, "has_value?", "value?")
	vm.def(c, "key", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		h := hsh(self)
		for _, k := range h.Keys() {
			v, _ := h.Get(k)
			same, err := a.equal(v, args[0])
			if err != nil {
				return nil, err
			}
			if same {
				return k, nil
			}
		}
		return runtime.Nil, nil
	})
	vm.def(c, "keys", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.NewArray(hsh(self).Keys()...), nil
	})
	vm.def(c, "values", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.NewArray(hsh(self).Values()...), nil
	})
	vm.def(c, "values_at", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		out := make([]value, len(args))
		for i, k := range args {
			v, err := a.hashFetch(hsh(self), k)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(c, "length", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(hsh(self).Len())), nil
	})
	vm.alias(c, "size", "length")
	vm.def(c, "empty?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(hsh(self).Len() == 0), nil
	})
	vm.def(c, "default", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return hsh(self).Default, nil
	})
	vm.def(c, "default=", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		hsh(self).Default = args[0]
		hsh(self).DefaultProc = nil
		return args[0], nil
	})
	vm.def(c, "to_h", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if blk == nil {
			return self, nil
		}
		var pairs []value
		for _, el := range hashPairs(hsh(self)) {
			v, err := a.callBlock(blk, el)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, v)
		}
		return a.pairsToHash(pairs)
	})
	vm.def(c, "to_a", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.NewArray(hashPairs(hsh(self))...), nil
	})
	vm.def(c, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		s, err := a.inspect(self)
		return runtime.Str(s), err
	})
	vm.alias(c, "inspect", "to_s")
	vm.def(c, "==", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		same, err := a.equal(self, args[0])
		return runtime.Bool(same), err
	})
	vm.def(c, "hash", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(runtime.HashOf(self) >> 2)), nil
	})

	// Iteration yields [key, value] pairs, which a two-parameter block
	// destructures.
	vm.def(c, "each", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if blk == nil {
			return runtime.NewArray(hashPairs(hsh(self))...), nil
		}
		for _, pair := range hashPairs(hsh(self)) {
			if _, err := a.callBlock(blk, pair); err != nil {
				return nil, err
			}
		}
		return self, nil
	})
	vm.alias(c, "each_pair", "each")
	vm.def(c, "each_key", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.eachOf(self, hsh(self).Keys(), blk)
	})
	vm.def(c, "each_value", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.eachOf(self, hsh(self).Values(), blk)
	})
	vm.def(c, "delete", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		if v, ok := hsh(self).Delete(args[0]); ok {
			return v, nil
		}
		if blk != nil {
			return a.callBlock(blk, args[0])
		}
		return runtime.Nil, nil
	})
	vm.def(c, "clear", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		hsh(self).Clear()
		return self, nil
	})
	vm.def(c, "merge", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		out := runtime.NewHash()
		out.Default, out.DefaultProc = hsh(self).Default, hsh(self).DefaultProc
		hsh(self).Each(func(k, v value) bool { out.Set(k, v); return true })
		return a.merge(out, args, blk)
	})
	vm.def(c, "merge!", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.merge(hsh(self), args, blk)
	})
	vm.alias(c, "update", "merge!")
	vm.def(c, "replace", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		src, ok := args[0].(*runtime.HashValue)
		if !ok {
			return nil, a.Raise("TypeError", "no implicit conversion of %s into Hash", a.vm.typeName(args[0]))
		}
		h := hsh(self)
		h.Clear()
		src.Each(func(k, v value) bool { h.Set(k, v); return true })
		return h, nil
	})
	vm.def(c, "invert", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		out := runtime.NewHash()
		hsh(self).Each(func(k, v value) bool { out.Set(v, k); return true })
		return out, nil
	})
	vm.def(c, "compact", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		out := runtime.NewHash()
		hsh(self).Each(func(k, v value) bool {
			if v.Kind() != runtime.KindNil {
				out.Set(k, v)
			}
			return true
		})
		return out, nil
	})

	// Filters return hashes rather than arrays of pairs.
	for _, f := range []struct {
		name string
		keep bool
	}{{"select", true}, {"filter", true}, {"reject", false}} {
		vm.def(c, f.name, 0, func(a *activation, self value, args []value, blk block) (value, error) {
			if err := a.needBlock(blk); err != nil {
				return nil, err
			}
			return a.filterHash(hsh(self), blk, f.keep)
		})
	}
	for _, f := range []struct {
		name string
		keep bool
	}{{"select!", true}, {"keep_if", true}, {"reject!", false}, {"delete_if", false}} {
		vm.def(c, f.name, 0, func(a *activation, self value, args []value, blk block) (value, error) {
			if err := a.needBlock(blk); err != nil {
				return nil, err
			}
			h := hsh(self)
			kept, err := a.filterHash(h, blk, f.keep)
			if err != nil {
				return nil, err
			}
			h.Clear()
			kept.Each(func(k, v value) bool { h.Set(k, v); return true })
			return h, nil
		})
	}
	vm.def(c, "find", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		for _, pair := range hashPairs(hsh(self)) {
			v, err := a.callBlock(blk, pair)
			if err != nil {
				return nil, err
			}
			if runtime.Truthy(v) {
				return pair, nil
			}
		}
		return runtime.Nil, nil
	})
	vm.alias(c, "detect", "find")
	vm.def(c, "transform_values", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		out := runtime.NewHash()
		for _, k := range hsh(self).Keys() {
			v, _ := hsh(self).Get(k)
			nv, err := a.callBlock(blk, v)
			if err != nil {
				return nil, err
			}
			out.Set(k, nv)
		}
		return out, nil
	})
	vm.def(c, "transform_keys", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		var mapping *runtime.HashValue
		if len(args) == 1 {
			m, ok := args[0].(*runtime.HashValue)
			if !ok {
				return nil, a.Raise("TypeError", "no implicit conversion of %s into Hash", a.vm.typeName(args[0]))
			}
			mapping = m
		} else if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		out := runtime.NewHash()
		for _, k := range hsh(self).Keys() {
			v, _ := hsh(self).Get(k)
			nk := k
			if mapping != nil {
				if mk, ok := mapping.Get(k); ok {
					nk = mk
				}
			} else {
				bk, err := a.callBlock(blk, k)
				if err != nil {
					return nil, err
				}
				nk = bk
			}
			out.Set(nk, v)
		}
		return out, nil
	})
	vm.def(c, "group_by", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.needBlock(blk); err != nil {
			return nil, err
		}
		return a.groupBy(hashPairs(hsh(self)), blk)
	})
	vm.def(c, "any?", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if blk == nil {
			return runtime.Bool(hsh(self).Len() > 0), nil
		}
		for _, pair := range hashPairs(hsh(self)) {
			v, err := a.callBlock(blk, pair)
			if err != nil {
				return nil, err
			}
			if runtime.Truthy(v) {
				return runtime.Bool(true), nil
			}
		}
		return runtime.Bool(false), nil
	})
	vm.def(c, "count", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if blk == nil {
			return runtime.Int(int64(hsh(self).Len())), nil
		}
		n := 0
		for _, pair := range hashPairs(hsh(self)) {
			v, err := a.callBlock(blk, pair)
			if err != nil {
				return nil, err
			}
			if runtime.Truthy(v) {
				n++
			}
		}
		return runtime.Int(int64(n)), nil
	})
	vm.def(c, "sum", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.sum(hashPairs(hsh(self)), args, blk)
	})
	vm.def(c, "min_by", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.extremeBy(hashPairs(hsh(self)), blk, -1)
	})
	vm.def(c, "max_by", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.extremeBy(hashPairs(hsh(self)), blk, 1)
	})
	vm.def(c, "sort_by", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		out, err := a.sortBy(hashPairs(hsh(self)), blk)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(out...), nil
	})
}

// hashFetch reads key, falling back to the default proc or value.
func (a *activation) hashFetch(h *runtime.HashValue, key value) (value, error) {
	if v, ok := h.Get(key); ok {
		return v, nil
	}
	if h.DefaultProc != nil {
		return a.callBlock(h.DefaultProc, h, key)
	}
	return h.Default, nil
}

func hashPairs(h *runtime.HashValue) []value {
	out := make([]value, 0, h.Len())
	h.Each(func(k, v value) bool {
		out = append(out, runtime.NewArray(k, v))
		return true
	})
	return out
}

func (a *activation) pairsToHash(pairs []value) (*runtime.HashValue, error) {
	h := runtime.NewHash()
	for _, el := range pairs {
		pair, ok := el.(*runtime.ArrayValue)
		if !ok {
			return nil, a.Raise("TypeError", "wrong element type %s (expected array)", a.vm.realClassOf(el).Name)
		}
		if len(pair.Elements) != 2 {
			return nil, a.Raise("ArgumentError", "wrong array length (expected 2, was %d)", len(pair.Elements))
		}
		h.Set(pair.Elements[0], pair.Elements[1])
	}
	return h, nil
}

func (a *activation) merge(dst *runtime.HashValue, args []value, blk *runtime.ProcValue) (value, error) {
	for _, arg := range args {
		src, ok := arg.(*runtime.HashValue)
		if !ok {
			return nil, a.Raise("TypeError", "no implicit conversion of %s into Hash", a.vm.typeName(arg))
		}
		for _, k := range src.Keys() {
			v, _ := src.Get(k)
			if old, exists := dst.Get(k); exists && blk != nil {
				merged, err := a.callBlock(blk, k, old, v)
				if err != nil {
					return nil, err
				}
				v = merged
			}
			dst.Set(k, v)
		}
	}
	return dst, nil
}

func (a *activation) filterHash(h *runtime.HashValue, blk *runtime.ProcValue, keep bool) (*runtime.HashValue, error) {
	out := runtime.NewHash()
	for _, k := range h.Keys() {
		v, _ := h.Get(k)
		res, err := a.callBlock(blk, k, v)
		if err != nil {
			return nil, err
		}
		if runtime.Truthy(res) == keep {
			out.Set(k, v)
		}
	}
	return out, nil
}
