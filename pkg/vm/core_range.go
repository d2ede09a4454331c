package vm

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/runtime"
)

// maxRangeElements bounds materializing a range into an array.
const maxRangeElements = 1 << 24

// rangeElements lists the members of a finite range: integer ranges
// directly, everything else by succ.
func (a *activation) rangeElements(r runtime.RangeValue) ([]value, error) {
	if r.End.Kind() == runtime.KindNil {
		return nil, a.Raise("RangeError", "cannot convert endless range to an array")
	}
	if r.Start.Kind() == runtime.KindNil {
		return nil, a.Raise("TypeError", "can't iterate from NilClass")
	}
	lo, okLo := intArg(r.Start)
	if okLo {
		hi, ok := intArg(r.End)
		if !ok {
			f, isFloat := floatOf(r.End)
			if !isFloat {
				return nil, a.Raise("ArgumentError", "bad value for range")
			}
			if math.IsInf(f, 0) || math.IsNaN(f) {
				return nil, a.Raise("RangeError", "cannot convert endless range to an array")
			}
			hi = int(math.Floor(f))
			if r.Exclusive && float64(hi) == f {
				hi--
			}
		} else if r.Exclusive {
			hi--
		}
		if hi-lo >= maxRangeElements {
			return nil, a.Raise("RangeError", "range too large to materialize")
		}
		var out []value
		for i := lo; i <= hi; i++ {
			out = append(out, runtime.Int(int64(i)))
		}
		return out, nil
	}
	if _, isFloat := r.Start.(runtime.FloatValue); isFloat {
		return nil, a.Raise("TypeError", "can't iterate from Float")
	}
	if s, ok := r.Start.(*runtime.StringValue); ok {
		end, ok := r.End.(*runtime.StringValue)
		if !ok {
			return nil, a.Raise("ArgumentError", "bad value for range")
		}
		var out []value
		for cur := s.Val; len(cur) <= len(end.Val); cur = succ(cur) {
			if cur == end.Val {
				if !r.Exclusive {
					out = append(out, runtime.Str(cur))
				}
				break
			}
			out = append(out, runtime.Str(cur))
			if len(out) >= maxRangeElements {
				return nil, a.Raise("RangeError", "range too large to materialize")
			}
		}
		return out, nil
	}
	if !a.vm.respondTo(r.Start, "succ") {
		return nil, a.Raise("TypeError", "can't iterate from %s", a.vm.realClassOf(r.Start).Name)
	}
	var out []value
	for cur := r.Start; ; {
		n, err := a.compare(cur, r.End)
		if err != nil {
			return nil, err
		}
		if n > 0 || (n == 0 && r.Exclusive) {
			break
		}
		out = append(out, cur)
		if n == 0 || len(out) >= maxRangeElements {
			break
		}
		if cur, err = a.Send(cur, "succ", nil, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// covers reports whether v lies between the range's bounds.
func (a *activation) covers(r runtime.RangeValue, v value) (bool, error) {
	if r.Start.Kind() != runtime.KindNil {
		n, err := a.compareOrNil(r.Start, v)
		if err != nil || n == nil || *n > 0 {
			return false, err
		}
	}
	if r.End.Kind() != runtime.KindNil {
		n, err := a.compareOrNil(v, r.End)
		if err != nil || n == nil || *n > 0 || (*n == 0 && r.Exclusive) {
			return false, err
		}
	}
	return true, nil
}

// compareOrNil is <=> that reports incomparable values as nil.
func (a *activation) compareOrNil(x, y value) (*int, error) {
	if n, ok := numCompare(x, y); ok {
		return &n, nil
	}
	v, err := a.Send(x, "<=>", []value{y}, nil)
	if err != nil {
		return nil, err
	}
	n, ok := intArg(v)
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (vm *VM) initRange() {
	c := vm.rangeType
	rng := func(v value) runtime.RangeValue { return v.(runtime.RangeValue) }

	vm.defSingleton(c, "new", -1, func(a *activation, _ value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 2, 3); err != nil {
			return nil, err
		}
		return runtime.RangeValue{Start: args[0], End: args[1], Exclusive: len(args) == 3 && runtime.Truthy(args[2])}, nil
	})
	vm.def(c, "begin", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return rng(self).Start, nil
	})
	vm.def(c, "end", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return rng(self).End, nil
	})
	vm.def(c, "exclude_end?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(rng(self).Exclusive), nil
	})
	vm.def(c, "first", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		r := rng(self)
		if len(args) == 0 {
			if r.Start.Kind() == runtime.KindNil {
				return nil, a.Raise("RangeError", "cannot get the first element of beginless range")
			}
			return r.Start, nil
		}
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		if r.End.Kind() == runtime.KindNil {
			lo, ok := intArg(r.Start)
			if !ok {
				return nil, a.Raise("TypeError", "can't iterate from %s", a.vm.realClassOf(r.Start).Name)
			}
			out := make([]value, n)
			for i := range out {
				out[i] = runtime.Int(int64(lo + i))
			}
			return runtime.NewArray(out...), nil
		}
		xs, err := a.rangeElements(r)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(xs[:min(n, len(xs))]...), nil
	})
	vm.def(c, "last", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		r := rng(self)
		if len(args) == 0 {
			if r.End.Kind() == runtime.KindNil {
				return nil, a.Raise("RangeError", "cannot get the last element of endless range")
			}
			return r.End, nil
		}
		n, err := a.countArg(args[0])
		if err != nil {
			return nil, err
		}
		xs, err := a.rangeElements(r)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(xs[len(xs)-min(n, len(xs)):]...), nil
	})
	vm.def(c, "min", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		r := rng(self)
		if len(args) > 0 || blk != nil {
			xs, err := a.rangeElements(r)
			if err != nil {
				return nil, err
			}
			return a.extreme(xs, args, blk, -1)
		}
		n, err := a.compareOrNil(r.Start, r.End)
		if err != nil || n == nil || *n > 0 || (*n == 0 && r.Exclusive) {
			return runtime.Nil, err
		}
		return r.Start, nil
	})
	vm.def(c, "max", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		r := rng(self)
		if len(args) > 0 || blk != nil || r.Exclusive {
			xs, err := a.rangeElements(r)
			if err != nil {
				return nil, err
			}
			return a.extreme(xs, args, blk, 1)
		}
		n, err := a.compareOrNil(r.Start, r.End)
		if err != nil || n == nil || *n > 0 {
			return runtime.Nil, err
		}
		return r.End, nil
	})
	vm.def(c, "each", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		r := rng(self)
		if blk == nil {
			xs, err := a.rangeElements(r)
			if err != nil {
				return nil, err
			}
			return runtime.NewArray(xs...), nil
		}
		if r.End.Kind() == runtime.KindNil {
			lo, ok := intArg(r.Start)
			if !ok {
				return nil, a.Raise("TypeError", "can't iterate from %s", a.vm.realClassOf(r.Start).Name)
			}
			for i := lo; ; i++ {
				if _, err := a.callBlock(blk, runtime.Int(int64(i))); err != nil {
					return nil, err
				}
			}
		}
		xs, err := a.rangeElements(r)
		if err != nil {
			return nil, err
		}
		for _, el := range xs {
			if _, err := a.callBlock(blk, el); err != nil {
				return nil, err
			}
		}
		return self, nil
	})
	vm.def(c, "to_a", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		xs, err := a.rangeElements(rng(self))
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(xs...), nil
	})
	vm.alias(c, "to_ary", "to_a")
	vm.alias(c, "entries", "to_a")
	vm.def(c, "include?", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		ok, err := a.covers(rng(self), args[0])
		return runtime.Bool(ok), err
	})
	for _, name := range []string{"member?", "===", "cover?"} {
		vm.alias(c, name, "include?")
	}
	vm.def(c, "size", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		r := rng(self)
		lo, ok := intArg(r.Start)
		if !ok {
			if _, isNum := floatOf(r.Start); !isNum {
				return runtime.Nil, nil
			}
			return nil, a.Raise("TypeError", "can't iterate from Float")
		}
		if r.End.Kind() == runtime.KindNil {
			return runtime.FloatValue{Val: math.Inf(1)}, nil
		}
		xs, err := a.rangeElements(runtime.RangeValue{Start: runtime.Int(int64(lo)), End: r.End, Exclusive: r.Exclusive})
		if err != nil {
			return nil, err
		}
		return runtime.Int(int64(len(xs))), nil
	})
	vm.def(c, "count", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		xs, err := a.rangeElements(rng(self))
		if err != nil {
			return nil, err
		}
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
	})
	vm.def(c, "step", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		r := rng(self)
		return a.numericStep(r.Start, r.End, args[0], r.Exclusive, blk)
	})
	vm.alias(c, "%", "step")
	vm.def(c, "sum", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		r := rng(self)
		lo, okLo := intArg(r.Start)
		hi, okHi := intArg(r.End)
		if okLo && okHi && blk == nil && len(args) == 0 {
			if r.Exclusive {
				hi--
			}
			if hi < lo {
				return runtime.Int(0), nil
			}
			return runtime.Int(int64((hi - lo + 1) * (lo + hi) / 2)), nil
		}
		xs, err := a.rangeElements(r)
		if err != nil {
			return nil, err
		}
		return a.sum(xs, args, blk)
	})
	vm.def(c, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.rangeString(rng(self), a.toS)
	})
	vm.def(c, "inspect", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return a.rangeString(rng(self), a.inspect)
	})
	vm.def(c, "==", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(runtime.Equal(self, args[0])), nil
	})
	vm.alias(c, "eql?", "==")
	vm.def(c, "hash", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(runtime.HashOf(self) >> 2)), nil
	})
	vm.def(c, "dup", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return self, nil
	})
}

func (a *activation) rangeString(r runtime.RangeValue, show func(value) (string, error)) (value, error) {
	var b strings.Builder
	for i, bound := range []value{r.Start, r.End} {
		if i == 1 {
			b.WriteString("..")
			if r.Exclusive {
				b.WriteString(".")
			}
		}
		if bound.Kind() == runtime.KindNil {
			continue
		}
		s, err := show(bound)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return runtime.Str(b.String()), nil
}

//-----------------------------------------------------------------------------
// Regexp and MatchData
//-----------------------------------------------------------------------------

func regexpFlags(o ast.RegexpOptions) string {
	var b strings.Builder
	if o&ast.RegexpMultiline != 0 {
		b.WriteByte('m')
	}
	if o&ast.RegexpIgnoreCase != 0 {
		b.WriteByte('i')
	}
	if o&ast.RegexpExtended != 0 {
		b.WriteByte('x')
	}
	return b.String()
}

// regexpOptionBits maps literal flags onto Regexp::IGNORECASE,
// EXTENDED and MULTILINE.
func regexpOptionBits(o ast.RegexpOptions) int64 {
	var n int64
	if o&ast.RegexpIgnoreCase != 0 {
		n |= 1
	}
	if o&ast.RegexpExtended != 0 {
		n |= 2
	}
	if o&ast.RegexpMultiline != 0 {
		n |= 4
	}
	return n
}

func regexpOptionsOf(v value) ast.RegexpOptions {
	switch x := v.(type) {
	case runtime.IntegerValue:
		n, _ := x.Int64()
		var o ast.RegexpOptions
		if n&1 != 0 {
			o |= ast.RegexpIgnoreCase
		}
		if n&2 != 0 {
			o |= ast.RegexpExtended
		}
		if n&4 != 0 {
			o |= ast.RegexpMultiline
		}
		return o
	case *runtime.StringValue:
		var o ast.RegexpOptions
		for _, r := range x.Val {
			switch r {
			case 'i':
				o |= ast.RegexpIgnoreCase
			case 'x':
				o |= ast.RegexpExtended
			case 'm':
				o |= ast.RegexpMultiline
			}
		}
		return o
	}
	if runtime.Truthy(v) {
		return ast.RegexpIgnoreCase
	}
	return 0
}

func (vm *VM) initRegexp() {
	c := vm.regexpType
	re := func(v value) *runtime.RegexpValue { return v.(*runtime.RegexpValue) }
	c.Consts["IGNORECASE"] = runtime.Int(1)
	c.Consts["EXTENDED"] = runtime.Int(2)
	c.Consts["MULTILINE"] = runtime.Int(4)

	vm.defSingleton(c, "new", -1, func(a *activation, _ value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		if src, ok := args[0].(*runtime.RegexpValue); ok {
			return src, nil
		}
		source, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		var opts ast.RegexpOptions
		if len(args) == 2 {
			opts = regexpOptionsOf(args[1])
		}
		return a.newRegexp(source, opts)
	})
	vm.alias(vm.metaclass(c), "compile", "new")
	vm.defSingleton(c, "escape", 1, func(a *activation, _ value, args []value, blk block) (value, error) {
		s, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.Str(regexp.QuoteMeta(s)), nil
	})
	vm.alias(vm.metaclass(c), "quote", "escape")
	vm.defSingleton(c, "union", -1, func(a *activation, _ value, args []value, blk block) (value, error) {
		if len(args) == 1 {
			if arr, ok := args[0].(*runtime.ArrayValue); ok {
				args = arr.Elements
			}
		}
		parts := make([]string, len(args))
		for i, arg := range args {
			r, err := a.toRegexp(arg)
			if err != nil {
				return nil, err
			}
			parts[i] = r.Source
		}
		return a.newRegexp(strings.Join(parts, "|"), 0)
	})

	vm.def(c, "match", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		if args[0].Kind() == runtime.KindNil {
			a.vm.globals["$~"] = runtime.Nil
			return runtime.Nil, nil
		}
		s, err := a.nameArg(args[0])
		if err != nil {
			return nil, err
		}
		from := 0
		if len(args) == 2 {
			n, err := a.intArg(args[1])
			if err != nil {
				return nil, err
			}
			from = runeOffset(s, n)
		}
		md := a.vm.match(re(self), s, from)
		if blk != nil && md.Kind() != runtime.KindNil {
			return a.callBlock(blk, md)
		}
		return md, nil
	})
	vm.def(c, "match?", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		s, ok := nameArg(args[0])
		if !ok {
			return runtime.Bool(false), nil
		}
		return runtime.Bool(re(self).Re.MatchString(s)), nil
	})
	vm.def(c, "=~", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		s, ok := nameArg(args[0])
		if !ok {
			a.vm.globals["$~"] = runtime.Nil
			return runtime.Nil, nil
		}
		return matchIndex(a.vm.match(re(self), s, 0)), nil
	})
	vm.def(c, "===", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		s, ok := nameArg(args[0])
		if !ok {
			return runtime.Bool(false), nil
		}
		return runtime.Bool(a.vm.match(re(self), s, 0).Kind() != runtime.KindNil), nil
	})
	vm.def(c, "source", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Str(re(self).Source), nil
	})
	vm.def(c, "options", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(regexpOptionBits(re(self).Options)), nil
	})
	vm.def(c, "casefold?", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(re(self).Options&ast.RegexpIgnoreCase != 0), nil
	})
	vm.def(c, "inspect", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		r := re(self)
		return runtime.Str("/" + r.Source + "/" + regexpFlags(r.Options)), nil
	})
	vm.def(c, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		r := re(self)
		on := regexpFlags(r.Options)
		off := ""
		for _, f := range "mix" {
			if !strings.ContainsRune(on, f) {
				off += string(f)
			}
		}
		if off != "" {
			off = "-" + off
		}
		return runtime.Str(fmt.Sprintf("(?%s%s:%s)", on, off, r.Source)), nil
	})
	vm.def(c, "names", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		var out []value
		for _, n := range re(self).Re.SubexpNames() {
			if n != "" {
				out = append(out, runtime.Str(n))
			}
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(c, "==", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Bool(runtime.Equal(self, args[0])), nil
	})
	vm.alias(c, "eql?", "==")
	vm.def(c, "hash", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(runtime.HashOf(runtime.Str(re(self).Source)) >> 2)), nil
	})

	vm.initMatchData()
}

func (vm *VM) initMatchData() {
	c := vm.matchData
	md := func(v value) *runtime.MatchDataValue { return v.(*runtime.MatchDataValue) }
	groups := func(m *runtime.MatchDataValue) []value {
		out := make([]value, len(m.Indices)/2)
		for i := range out {
			out[i] = m.Group(i)
		}
		return out
	}
	// charPos converts a byte offset into a character index.
	charPos := func(m *runtime.MatchDataValue, off int) value {
		if off < 0 {
			return runtime.Nil
		}
		return runtime.Int(int64(utf8.RuneCountInString(m.Subject[:off])))
	}

	vm.def(c, "[]", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		m := md(self)
		if name, ok := nameArg(args[0]); ok {
			i, err := a.groupIndex(m, name)
			if err != nil {
				return nil, err
			}
			return m.Group(i), nil
		}
		return a.arrayIndex(runtime.NewArray(groups(m)...), args)
	})
	vm.def(c, "to_a", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.NewArray(groups(md(self))...), nil
	})
	vm.def(c, "captures", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.NewArray(groups(md(self))[1:]...), nil
	})
	vm.def(c, "named_captures", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		m := md(self)
		out := runtime.NewHash()
		for i, n := range m.Names {
			if n != "" {
				out.Set(runtime.Str(n), m.Group(i))
			}
		}
		return out, nil
	})
	vm.def(c, "values_at", -1, func(a *activation, self value, args []value, blk block) (value, error) {
		gs := groups(md(self))
		out := make([]value, len(args))
		for i, arg := range args {
			n, err := a.intArg(arg)
			if err != nil {
				return nil, err
			}
			out[i] = runtime.Nil
			if n >= 0 && n < len(gs) {
				out[i] = gs[n]
			}
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(c, "pre_match", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		m := md(self)
		return runtime.Str(m.Subject[:m.Indices[0]]), nil
	})
	vm.def(c, "post_match", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		m := md(self)
		return runtime.Str(m.Subject[m.Indices[1]:]), nil
	})
	vm.def(c, "to_s", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return md(self).Group(0), nil
	})
	vm.def(c, "string", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return &runtime.StringValue{Val: md(self).Subject, Frozen: true}, nil
	})
	vm.def(c, "begin", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		m := md(self)
		n, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 || 2*n >= len(m.Indices) {
			return nil, a.Raise("IndexError", "index %d out of matches", n)
		}
		return charPos(m, m.Indices[2*n]), nil
	})
	vm.def(c, "end", 1, func(a *activation, self value, args []value, blk block) (value, error) {
		m := md(self)
		n, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 || 2*n >= len(m.Indices) {
			return nil, a.Raise("IndexError", "index %d out of matches", n)
		}
		return charPos(m, m.Indices[2*n+1]), nil
	})
	vm.def(c, "size", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		return runtime.Int(int64(len(md(self).Indices) / 2)), nil
	})
	vm.alias(c, "length", "size")
	vm.def(c, "inspect", 0, func(a *activation, self value, args []value, blk block) (value, error) {
		m := md(self)
		var b strings.Builder
		b.WriteString("#<MatchData ")
		b.WriteString(runtime.Inspect(m.Group(0)))
		for i, g := range groups(m)[1:] {
			fmt.Fprintf(&b, " %d:%s", i+1, runtime.Inspect(g))
		}
		b.WriteString(">")
		return runtime.Str(b.String()), nil
	})
}

func (a *activation) groupIndex(m *runtime.MatchDataValue, name string) (int, error) {
	for i, n := range m.Names {
		if n == name {
			return i, nil
		}
	}
	return 0, a.Raise("IndexError", "undefined group name reference: %s", name)
}
