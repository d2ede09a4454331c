package vm

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"rblower/compiler-go/pkg/runtime"
)

var floatPrefix = regexp.MustCompile(`^\s*[+-]?(\d[\d_]*)(\.\d[\d_]*)?([eE][+-]?\d+)?`)

func (vm *VM) initString() {
	s := vm.str
	self := func(v value) *runtime.StringValue { return v.(*runtime.StringValue) }

	vm.defSingleton(s, "new", -1, func(a *activation, _ value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return runtime.Str(""), nil
		}
		init, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.Str(init), nil
	})

	vm.def(s, "to_s", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return v, nil
	})
	vm.alias(s, "to_str", "to_s")
	vm.def(s, "inspect", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Str(runtime.Inspect(v)), nil
	})
	vm.def(s, "==", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		o, ok := args[0].(*runtime.StringValue)
		return runtime.Bool(ok && o.Val == self(v).Val), nil
	})
	vm.alias(s, "===", "==")
	vm.alias(s, "eql?", "==")
	vm.def(s, "<=>", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		o, ok := args[0].(*runtime.StringValue)
		if !ok {
			return runtime.Nil, nil
		}
		return runtime.Int(int64(strings.Compare(self(v).Val, o.Val))), nil
	})
	vm.def(s, "+", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		o, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.Str(self(v).Val + o), nil
	})
	vm.def(s, "*", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		n, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, a.Raise("ArgumentError", "negative argument")
		}
		return runtime.Str(strings.Repeat(self(v).Val, n)), nil
	})
	vm.def(s, "%", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		fargs := []value{args[0]}
		if arr, ok := args[0].(*runtime.ArrayValue); ok {
			fargs = arr.Elements
		}
		out, err := a.sprintf(self(v).Val, fargs)
		if err != nil {
			return nil, err
		}
		return runtime.Str(out), nil
	})
	vm.def(s, "<<", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		str := self(v)
		if err := a.mutable(str); err != nil {
			return nil, err
		}
		if n, ok := args[0].(runtime.IntegerValue); ok {
			r, _ := intArg(n)
			str.Val += string(rune(r))
			return str, nil
		}
		o, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		str.Val += o
		return str, nil
	})
	vm.def(s, "concat", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		str := self(v)
		if err := a.mutable(str); err != nil {
			return nil, err
		}
		for _, arg := range args {
			o, err := a.stringArg(arg)
			if err != nil {
				return nil, err
			}
			str.Val += o
		}
		return str, nil
	})
	vm.def(s, "replace", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		str := self(v)
		if err := a.mutable(str); err != nil {
			return nil, err
		}
		o, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		str.Val = o
		return str, nil
	})
	vm.def(s, "length", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Int(int64(utf8.RuneCountInString(self(v).Val))), nil
	})
	vm.alias(s, "size", "length")
	vm.def(s, "bytesize", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Int(int64(len(self(v).Val))), nil
	})
	vm.def(s, "empty?", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Bool(self(v).Val == ""), nil
	})
	vm.def(s, "hash", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Int(int64(runtime.HashOf(v) >> 2)), nil
	})

	// Case and whitespace, each with a bang variant that edits in place.
	transforms := map[string]func(string) string{
		"upcase":     strings.ToUpper,
		"downcase":   strings.ToLower,
		"capitalize": capitalize,
		"swapcase":   swapcase,
		"strip":      strings.TrimSpace,
		"lstrip":     func(x string) string { return strings.TrimLeftFunc(x, unicode.IsSpace) },
		"rstrip":     func(x string) string { return strings.TrimRightFunc(x, unicode.IsSpace) },
		"chop":       chop,
		"reverse":    reverseString,
		"succ":       succ,
	}
	for name, fn := range transforms {
		vm.def(s, name, 0, func(a *activation, v value, args []value, blk block) (value, error) {
			return runtime.Str(fn(self(v).Val)), nil
		})
		vm.def(s, name+"!", 0, func(a *activation, v value, args []value, blk block) (value, error) {
			str := self(v)
			if err := a.mutable(str); err != nil {
				return nil, err
			}
			out := fn(str.Val)
			if out == str.Val {
				return runtime.Nil, nil
			}
			str.Val = out
			return str, nil
		})
	}
	vm.alias(s, "next", "succ")
	vm.def(s, "chomp", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		out, err := a.chomp(self(v).Val, args)
		if err != nil {
			return nil, err
		}
		return runtime.Str(out), nil
	})
	vm.def(s, "chomp!", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		str := self(v)
		if err := a.mutable(str); err != nil {
			return nil, err
		}
		out, err := a.chomp(str.Val, args)
		if err != nil {
			return nil, err
		}
		if out == str.Val {
			return runtime.Nil, nil
		}
		str.Val = out
		return str, nil
	})

	// Pieces.
	vm.def(s, "chars", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.NewArray(chars(self(v).Val)...), nil
	})
	vm.def(s, "each_char", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return a.eachOf(v, chars(self(v).Val), blk)
	})
	vm.def(s, "bytes", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		var out []value
		for _, b := range []byte(self(v).Val) {
			out = append(out, runtime.Int(int64(b)))
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(s, "lines", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.NewArray(lines(self(v).Val)...), nil
	})
	vm.def(s, "each_line", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return a.eachOf(v, lines(self(v).Val), blk)
	})
	vm.def(s, "split", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 0, 2); err != nil {
			return nil, err
		}
		return a.split(self(v).Val, args)
	})
	vm.def(s, "partition", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		str := self(v).Val
		start, end, err := a.find(str, args[0], 0)
		if err != nil {
			return nil, err
		}
		if start < 0 {
			return runtime.NewArray(runtime.Str(str), runtime.Str(""), runtime.Str("")), nil
		}
		return runtime.NewArray(runtime.Str(str[:start]), runtime.Str(str[start:end]), runtime.Str(str[end:])), nil
	})
	vm.def(s, "rpartition", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		str := self(v).Val
		sep, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		i := strings.LastIndex(str, sep)
		if i < 0 {
			return runtime.NewArray(runtime.Str(""), runtime.Str(""), runtime.Str(str)), nil
		}
		return runtime.NewArray(runtime.Str(str[:i]), runtime.Str(sep), runtime.Str(str[i+len(sep):])), nil
	})

	// Searching.
	vm.def(s, "include?", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		o, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.Bool(strings.Contains(self(v).Val, o)), nil
	})
	vm.def(s, "start_with?", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		for _, arg := range args {
			if re, ok := arg.(*runtime.RegexpValue); ok {
				if loc := re.Re.FindStringIndex(self(v).Val); loc != nil && loc[0] == 0 {
					return runtime.Bool(true), nil
				}
				continue
			}
			o, err := a.stringArg(arg)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(self(v).Val, o) {
				return runtime.Bool(true), nil
			}
		}
		return runtime.Bool(false), nil
	})
	vm.def(s, "end_with?", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		for _, arg := range args {
			o, err := a.stringArg(arg)
			if err != nil {
				return nil, err
			}
			if strings.HasSuffix(self(v).Val, o) {
				return runtime.Bool(true), nil
			}
		}
		return runtime.Bool(false), nil
	})
	vm.def(s, "index", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		str := self(v).Val
		from := 0
		if len(args) == 2 {
			n, err := a.intArg(args[1])
			if err != nil {
				return nil, err
			}
			from = runeOffset(str, n)
		}
		start, _, err := a.find(str, args[0], from)
		if err != nil || start < 0 {
			return runtime.Nil, err
		}
		return runtime.Int(int64(utf8.RuneCountInString(str[:start]))), nil
	})
	vm.def(s, "rindex", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		str := self(v).Val
		o, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		i := strings.LastIndex(str, o)
		if i < 0 {
			return runtime.Nil, nil
		}
		return runtime.Int(int64(utf8.RuneCountInString(str[:i]))), nil
	})
	vm.def(s, "=~", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		re, ok := args[0].(*runtime.RegexpValue)
		if !ok {
			return nil, a.Raise("TypeError", "wrong argument type %s (expected Regexp)", vm.realClassOf(args[0]).Name)
		}
		return matchIndex(vm.match(re, self(v).Val, 0)), nil
	})
	vm.def(s, "match", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		re, err := a.toRegexp(args[0])
		if err != nil {
			return nil, err
		}
		return vm.match(re, self(v).Val, 0), nil
	})
	vm.def(s, "match?", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		re, err := a.toRegexp(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.Bool(re.Re.MatchString(self(v).Val)), nil
	})
	vm.def(s, "scan", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		re, err := a.toRegexp(args[0])
		if err != nil {
			return nil, err
		}
		str := self(v).Val
		var out []value
		for _, loc := range re.Re.FindAllStringSubmatchIndex(str, -1) {
			md := &runtime.MatchDataValue{Subject: str, Indices: loc, Names: re.Re.SubexpNames()}
			var item value = md.Group(0)
			if n := len(loc)/2 - 1; n > 0 {
				groups := make([]value, n)
				for g := range groups {
					groups[g] = md.Group(g + 1)
				}
				item = runtime.NewArray(groups...)
			}
			if blk != nil {
				vm.globals["$~"] = md
				if _, err := a.callBlock(blk, item); err != nil {
					return nil, err
				}
				continue
			}
			out = append(out, item)
		}
		if blk != nil {
			return v, nil
		}
		return runtime.NewArray(out...), nil
	})
	vm.def(s, "count", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, -1); err != nil {
			return nil, err
		}
		set, err := a.charSet(args[0])
		if err != nil {
			return nil, err
		}
		n := 0
		for _, r := range self(v).Val {
			if set(r) {
				n++
			}
		}
		return runtime.Int(int64(n)), nil
	})

	// Substitution.
	for _, name := range []string{"sub", "gsub", "sub!", "gsub!"} {
		global := strings.HasPrefix(name, "g")
		inPlace := strings.HasSuffix(name, "!")
		vm.def(s, name, -1, func(a *activation, v value, args []value, blk block) (value, error) {
			most := 2
			if blk != nil {
				most = 1
			}
			if err := a.argCount(args, 1, most); err != nil {
				return nil, err
			}
			str := self(v)
			if inPlace {
				if err := a.mutable(str); err != nil {
					return nil, err
				}
			}
			var repl value
			if len(args) == 2 {
				repl = args[1]
			}
			out, changed, err := a.substitute(str.Val, args[0], repl, blk, global)
			if err != nil {
				return nil, err
			}
			if !inPlace {
				return runtime.Str(out), nil
			}
			if !changed {
				return runtime.Nil, nil
			}
			str.Val = out
			return str, nil
		})
	}
	vm.def(s, "tr", 2, func(a *activation, v value, args []value, blk block) (value, error) {
		from, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		to, err := a.stringArg(args[1])
		if err != nil {
			return nil, err
		}
		return runtime.Str(translate(self(v).Val, from, to)), nil
	})
	vm.def(s, "delete", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, -1); err != nil {
			return nil, err
		}
		set, err := a.charSet(args[0])
		if err != nil {
			return nil, err
		}
		return runtime.Str(strings.Map(func(r rune) rune {
			if set(r) {
				return -1
			}
			return r
		}, self(v).Val)), nil
	})
	vm.def(s, "squeeze", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		set := func(rune) bool { return true }
		if len(args) > 0 {
			var err error
			if set, err = a.charSet(args[0]); err != nil {
				return nil, err
			}
		}
		var b strings.Builder
		last := rune(-1)
		for _, r := range self(v).Val {
			if r == last && set(r) {
				continue
			}
			b.WriteRune(r)
			last = r
		}
		return runtime.Str(b.String()), nil
	})

	// Indexing.
	vm.def(s, "[]", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 1, 2); err != nil {
			return nil, err
		}
		return a.strIndex(self(v).Val, args)
	})
	vm.alias(s, "slice", "[]")
	vm.def(s, "[]=", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		if err := a.argCount(args, 2, 3); err != nil {
			return nil, err
		}
		str := self(v)
		if err := a.mutable(str); err != nil {
			return nil, err
		}
		repl, err := a.stringArg(args[len(args)-1])
		if err != nil {
			return nil, err
		}
		runes := []rune(str.Val)
		var start, count int
		switch x := args[0].(type) {
		case *runtime.StringValue:
			i := strings.Index(str.Val, x.Val)
			if i < 0 {
				return nil, a.Raise("IndexError", "string not matched")
			}
			str.Val = str.Val[:i] + repl + str.Val[i+len(x.Val):]
			return args[len(args)-1], nil
		case runtime.RangeValue:
			var ok bool
			start, count, ok = rangeBounds(x, len(runes))
			if !ok {
				return nil, a.Raise("RangeError", "%s out of range", runtime.Inspect(x))
			}
		default:
			n, err := a.intArg(args[0])
			if err != nil {
				return nil, err
			}
			start, count = n, 1
			if len(args) == 3 {
				if count, err = a.intArg(args[1]); err != nil {
					return nil, err
				}
			}
			if start < 0 {
				start += len(runes)
			}
			if start < 0 || start > len(runes) {
				return nil, a.Raise("IndexError", "index %d out of string", n)
			}
		}
		if start+count > len(runes) {
			count = len(runes) - start
		}
		str.Val = string(runes[:start]) + repl + string(runes[start+count:])
		return args[len(args)-1], nil
	})
	vm.def(s, "insert", 2, func(a *activation, v value, args []value, blk block) (value, error) {
		str := self(v)
		if err := a.mutable(str); err != nil {
			return nil, err
		}
		n, err := a.intArg(args[0])
		if err != nil {
			return nil, err
		}
		o, err := a.stringArg(args[1])
		if err != nil {
			return nil, err
		}
		runes := []rune(str.Val)
		if n < 0 {
			n += len(runes) + 1
		}
		if n < 0 || n > len(runes) {
			return nil, a.Raise("IndexError", "index %d out of string", n)
		}
		str.Val = string(runes[:n]) + o + string(runes[n:])
		return str, nil
	})
	vm.def(s, "prepend", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		str := self(v)
		if err := a.mutable(str); err != nil {
			return nil, err
		}
		o, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		str.Val = o + str.Val
		return str, nil
	})

	// Padding.
	for _, name := range []string{"center", "ljust", "rjust"} {
		vm.def(s, name, -1, func(a *activation, v value, args []value, blk block) (value, error) {
			if err := a.argCount(args, 1, 2); err != nil {
				return nil, err
			}
			width, err := a.intArg(args[0])
			if err != nil {
				return nil, err
			}
			pad := " "
			if len(args) == 2 {
				if pad, err = a.stringArg(args[1]); err != nil {
					return nil, err
				}
				if pad == "" {
					return nil, a.Raise("ArgumentError", "zero width padding")
				}
			}
			return runtime.Str(justify(self(v).Val, width, pad, name)), nil
		})
	}

	// Conversion.
	vm.def(s, "to_sym", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.SymbolValue{Name: self(v).Val}, nil
	})
	vm.alias(s, "intern", "to_sym")
	vm.def(s, "to_i", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		base := 10
		if len(args) > 0 {
			n, err := a.intArg(args[0])
			if err != nil {
				return nil, err
			}
			base = n
		}
		return runtime.IntegerValue{Val: parseIntPrefix(self(v).Val, base)}, nil
	})
	vm.def(s, "hex", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.IntegerValue{Val: parseIntPrefix(strings.TrimPrefix(strings.TrimPrefix(self(v).Val, "0x"), "0X"), 16)}, nil
	})
	vm.def(s, "oct", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.IntegerValue{Val: parseIntPrefix(self(v).Val, 8)}, nil
	})
	vm.def(s, "to_f", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		m := floatPrefix.FindString(self(v).Val)
		f, _ := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(m), "_", ""), 64)
		return runtime.FloatValue{Val: f}, nil
	})
	vm.def(s, "ord", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		r, size := utf8.DecodeRuneInString(self(v).Val)
		if size == 0 {
			return nil, a.Raise("ArgumentError", "empty string")
		}
		return runtime.Int(int64(r)), nil
	})
	vm.def(s, "casecmp", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		o, ok := args[0].(*runtime.StringValue)
		if !ok {
			return runtime.Nil, nil
		}
		return runtime.Int(int64(strings.Compare(strings.ToLower(self(v).Val), strings.ToLower(o.Val)))), nil
	})
	vm.def(s, "casecmp?", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		o, ok := args[0].(*runtime.StringValue)
		if !ok {
			return runtime.Nil, nil
		}
		return runtime.Bool(strings.EqualFold(self(v).Val, o.Val)), nil
	})
	vm.def(s, "force_encoding", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		return v, nil
	})
	vm.def(s, "encoding", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Str("UTF-8"), nil
	})
	vm.def(s, "upto", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		last, err := a.stringArg(args[0])
		if err != nil {
			return nil, err
		}
		var out []value
		for cur := self(v).Val; len(cur) <= len(last); cur = succ(cur) {
			out = append(out, runtime.Str(cur))
			if cur == last {
				break
			}
		}
		return a.eachOf(v, out, blk)
	})

	vm.initSymbol()
}

func (vm *VM) initSymbol() {
	sym := vm.symbol
	name := func(v value) string { return v.(runtime.SymbolValue).Name }
	vm.def(sym, "to_s", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Str(name(v)), nil
	})
	vm.alias(sym, "id2name", "to_s")
	vm.alias(sym, "name", "to_s")
	vm.def(sym, "to_sym", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return v, nil
	})
	vm.def(sym, "to_proc", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return vm.symbolProc(name(v)), nil
	})
	vm.def(sym, "inspect", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Str(runtime.Inspect(v)), nil
	})
	vm.def(sym, "length", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Int(int64(utf8.RuneCountInString(name(v)))), nil
	})
	vm.alias(sym, "size", "length")
	vm.def(sym, "empty?", 0, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Bool(name(v) == ""), nil
	})
	vm.def(sym, "<=>", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		o, ok := args[0].(runtime.SymbolValue)
		if !ok {
			return runtime.Nil, nil
		}
		return runtime.Int(int64(strings.Compare(name(v), o.Name))), nil
	})
	vm.def(sym, "==", 1, func(a *activation, v value, args []value, blk block) (value, error) {
		return runtime.Bool(runtime.Equal(v, args[0])), nil
	})
	for op, fn := range map[string]func(string) string{
		"upcase": strings.ToUpper, "downcase": strings.ToLower, "capitalize": capitalize, "succ": succ,
	} {
		vm.def(sym, op, 0, func(a *activation, v value, args []value, blk block) (value, error) {
			return runtime.SymbolValue{Name: fn(name(v))}, nil
		})
	}
	vm.def(sym, "[]", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		return a.strIndex(name(v), args)
	})
	vm.def(sym, "start_with?", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		for _, arg := range args {
			if p, ok := nameArg(arg); ok && strings.HasPrefix(name(v), p) {
				return runtime.Bool(true), nil
			}
		}
		return runtime.Bool(false), nil
	})
	vm.def(sym, "end_with?", -1, func(a *activation, v value, args []value, blk block) (value, error) {
		for _, arg := range args {
			if p, ok := nameArg(arg); ok && strings.HasSuffix(name(v), p) {
				return runtime.Bool(true), nil
			}
		}
		return runtime.Bool(false), nil
	})
}

//-----------------------------------------------------------------------------
// String helpers
//-----------------------------------------------------------------------------

func (a *activation) mutable(s *runtime.StringValue) error {
	if s.Frozen {
		return a.Raise("FrozenError", "can't modify frozen String: %s", runtime.Inspect(s))
	}
	return nil
}

// eachOf yields items to blk, or returns them as an array without one.
func (a *activation) eachOf(self value, items []value, blk *runtime.ProcValue) (value, error) {
	if blk == nil {
		return runtime.NewArray(items...), nil
	}
	for _, item := range items {
		if _, err := a.callBlock(blk, item); err != nil {
			return nil, err
		}
	}
	return self, nil
}

func chars(s string) []value {
	out := make([]value, 0, len(s))
	for _, r := range s {
		out = append(out, runtime.Str(string(r)))
	}
	return out
}

func lines(s string) []value {
	var out []value
	for s != "" {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			out = append(out, runtime.Str(s))
			break
		}
		out = append(out, runtime.Str(s[:i+1]))
		s = s[i+1:]
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func swapcase(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsUpper(r) {
			return unicode.ToLower(r)
		}
		return unicode.ToUpper(r)
	}, s)
}

func chop(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}

func (a *activation) chomp(s string, args []value) (string, error) {
	if len(args) == 0 {
		switch {
		case strings.HasSuffix(s, "\r\n"):
			return s[:len(s)-2], nil
		case strings.HasSuffix(s, "\n"), strings.HasSuffix(s, "\r"):
			return s[:len(s)-1], nil
		}
		return s, nil
	}
	suffix, err := a.stringArg(args[0])
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(s, suffix), nil
}

// succ increments the rightmost alphanumeric run with carry, as
// String#succ does.
func succ(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	hasAlnum := false
	for _, c := range r {
		if isAlnum(c) {
			hasAlnum = true
			break
		}
	}
	i := len(r) - 1
	for {
		if hasAlnum {
			for i >= 0 && !isAlnum(r[i]) {
				i--
			}
			if i < 0 {
				break
			}
		}
		c := r[i]
		switch {
		case c == 'z':
			r[i] = 'a'
		case c == 'Z':
			r[i] = 'A'
		case c == '9':
			r[i] = '0'
		case !hasAlnum && c == utf8.MaxRune:
			r[i] = 0
		default:
			r[i]++
			return string(r)
		}
		// carry
		j := i - 1
		if hasAlnum {
			for j >= 0 && !isAlnum(r[j]) {
				j--
			}
		}
		if j < 0 {
			var lead rune
			switch c {
			case 'z':
				lead = 'a'
			case 'Z':
				lead = 'A'
			case '9':
				lead = '1'
			default:
				lead = 1
			}
			return string(r[:i]) + string(lead) + string(r[i:])
		}
		i = j
	}
	return string(r)
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func runeOffset(s string, n int) int {
	if n < 0 {
		n += utf8.RuneCountInString(s)
	}
	if n <= 0 {
		return 0
	}
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}

func matchIndex(md value) value {
	m, ok := md.(*runtime.MatchDataValue)
	if !ok {
		return runtime.Nil
	}
	return runtime.Int(int64(utf8.RuneCountInString(m.Subject[:m.Indices[0]])))
}

func (a *activation) toRegexp(v value) (*runtime.RegexpValue, error) {
	switch x := v.(type) {
	case *runtime.RegexpValue:
		return x, nil
	case *runtime.StringValue:
		return a.newRegexp(regexp.QuoteMeta(x.Val), 0)
	}
	return nil, a.Raise("TypeError", "wrong argument type %s (expected Regexp)", a.vm.realClassOf(v).Name)
}

// find locates pattern (a string or regexp) in s from byte offset from.
func (a *activation) find(s string, pattern value, from int) (int, int, error) {
	switch p := pattern.(type) {
	case *runtime.StringValue:
		i := strings.Index(s[from:], p.Val)
		if i < 0 {
			return -1, -1, nil
		}
		return from + i, from + i + len(p.Val), nil
	case *runtime.RegexpValue:
		loc := p.Re.FindStringIndex(s[from:])
		if loc == nil {
			return -1, -1, nil
		}
		return from + loc[0], from + loc[1], nil
	}
	return -1, -1, a.Raise("TypeError", "type mismatch: %s given", a.vm.realClassOf(pattern).Name)
}

func (a *activation) split(s string, args []value) (value, error) {
	limit := 0
	if len(args) == 2 {
		n, err := a.intArg(args[1])
		if err != nil {
			return nil, err
		}
		limit = n
	}
	var parts []string
	var pattern value = runtime.Nil
	if len(args) > 0 {
		pattern = args[0]
	}
	switch p := pattern.(type) {
	case runtime.NilValue:
		parts = strings.Fields(s)
		if limit > 0 && len(parts) > limit {
			trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
			parts = strings.FieldsFunc(trimmed, unicode.IsSpace)[:limit-1]
			rest := trimmed
			for _, part := range parts {
				rest = strings.TrimLeftFunc(rest[strings.Index(rest, part)+len(part):], unicode.IsSpace)
			}
			parts = append(parts, rest)
		}
	case *runtime.StringValue:
		switch {
		case p.Val == " ":
			return a.split(s, append([]value{runtime.Nil}, args[1:]...))
		case p.Val == "":
			for _, c := range chars(s) {
				parts = append(parts, c.(*runtime.StringValue).Val)
			}
		case limit > 0:
			parts = strings.SplitN(s, p.Val, limit)
		default:
			parts = strings.Split(s, p.Val)
		}
	case *runtime.RegexpValue:
		n := -1
		if limit > 0 {
			n = limit
		}
		parts = p.Re.Split(s, n)
	default:
		return nil, a.Raise("TypeError", "wrong argument type %s (expected Regexp)", a.vm.realClassOf(pattern).Name)
	}
	if limit == 0 {
		for len(parts) > 0 && parts[len(parts)-1] == "" {
			parts = parts[:len(parts)-1]
		}
	}
	out := make([]value, len(parts))
	for i, part := range parts {
		out[i] = runtime.Str(part)
	}
	return runtime.NewArray(out...), nil
}

// substitute implements sub and gsub. The replacement is a string with
// \N and \& references, a hash keyed by the matched text, or the block.
func (a *activation) substitute(s string, pattern, repl value, blk *runtime.ProcValue, global bool) (string, bool, error) {
	re, err := a.toRegexp(pattern)
	if err != nil {
		return "", false, err
	}
	n := 1
	if global {
		n = -1
	}
	matches := re.Re.FindAllStringSubmatchIndex(s, n)
	if len(matches) == 0 {
		return s, false, nil
	}
	var b strings.Builder
	last := 0
	for _, loc := range matches {
		md := &runtime.MatchDataValue{Subject: s, Indices: loc, Names: re.Re.SubexpNames()}
		b.WriteString(s[last:loc[0]])
		switch r := repl.(type) {
		case nil:
			if blk == nil {
				return "", false, a.Raise("ArgumentError", "wrong number of arguments (given 1, expected 2)")
			}
			a.vm.globals["$~"] = md
			out, err := a.callBlock(blk, md.Group(0))
			if err != nil {
				return "", false, err
			}
			str, err := a.toS(out)
			if err != nil {
				return "", false, err
			}
			b.WriteString(str)
		case *runtime.HashValue:
			out, _ := r.Get(md.Group(0))
			str, err := a.toS(out)
			if err != nil {
				return "", false, err
			}
			b.WriteString(str)
		default:
			tmpl, err := a.stringArg(repl)
			if err != nil {
				return "", false, err
			}
			b.WriteString(expandReplacement(tmpl, md))
		}
		last = loc[1]
	}
	b.WriteString(s[last:])
	a.vm.globals["$~"] = &runtime.MatchDataValue{Subject: s, Indices: matches[len(matches)-1], Names: re.Re.SubexpNames()}
	return b.String(), true, nil
}

func expandReplacement(tmpl string, md *runtime.MatchDataValue) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '\\' || i+1 >= len(tmpl) {
			b.WriteByte(c)
			continue
		}
		next := tmpl[i+1]
		switch {
		case next >= '0' && next <= '9':
			b.WriteString(runtime.ToS(md.Group(int(next - '0'))))
		case next == '&':
			b.WriteString(runtime.ToS(md.Group(0)))
		case next == '`':
			b.WriteString(md.Subject[:md.Indices[0]])
		case next == '\'':
			b.WriteString(md.Subject[md.Indices[1]:])
		case next == '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(c)
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}

// expandSet expands a tr-style character set such as "a-z" into runes.
func expandSet(set string) (runes []rune, negated bool) {
	r := []rune(set)
	if len(r) > 1 && r[0] == '^' {
		negated, r = true, r[1:]
	}
	for i := 0; i < len(r); i++ {
		if i+2 < len(r) && r[i+1] == '-' {
			for c := r[i]; c <= r[i+2]; c++ {
				runes = append(runes, c)
			}
			i += 2
			continue
		}
		runes = append(runes, r[i])
	}
	return runes, negated
}

func (a *activation) charSet(v value) (func(rune) bool, error) {
	set, err := a.stringArg(v)
	if err != nil {
		return nil, err
	}
	runes, negated := expandSet(set)
	members := map[rune]bool{}
	for _, r := range runes {
		members[r] = true
	}
	return func(r rune) bool { return members[r] != negated }, nil
}

func translate(s, from, to string) string {
	src, negated := expandSet(from)
	dst, _ := expandSet(to)
	if len(dst) == 0 {
		return s
	}
	mapping := map[rune]rune{}
	for i, r := range src {
		if i < len(dst) {
			mapping[r] = dst[i]
		} else {
			mapping[r] = dst[len(dst)-1]
		}
	}
	return strings.Map(func(r rune) rune {
		if negated {
			if _, in := mapping[r]; in {
				return r
			}
			return dst[len(dst)-1]
		}
		if m, ok := mapping[r]; ok {
			return m
		}
		return r
	}, s)
}

func justify(s string, width int, pad, mode string) string {
	n := utf8.RuneCountInString(s)
	if width <= n {
		return s
	}
	fill := func(k int) string {
		p := []rune(strings.Repeat(pad, k/utf8.RuneCountInString(pad)+1))
		return string(p[:k])
	}
	total := width - n
	switch mode {
	case "ljust":
		return s + fill(total)
	case "rjust":
		return fill(total) + s
	}
	left := total / 2
	return fill(left) + s + fill(total-left)
}

// parseIntPrefix reads the leading integer of s in base, ignoring what
// follows, as String#to_i does.
func parseIntPrefix(s string, base int) *big.Int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if base == 16 {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	}
	var digits strings.Builder
	for i, r := range s {
		if r == '_' && i > 0 {
			continue
		}
		d := digitValue(r)
		if d < 0 || d >= base {
			break
		}
		digits.WriteRune(r)
	}
	n, ok := new(big.Int).SetString(digits.String(), base)
	if !ok {
		return new(big.Int)
	}
	if neg {
		n.Neg(n)
	}
	return n
}

func digitValue(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'z':
		return int(r-'a') + 10
	case r >= 'A' && r <= 'Z':
		return int(r-'A') + 10
	}
	return -1
}

// strIndex implements String#[] by characters.
func (a *activation) strIndex(s string, args []value) (value, error) {
	runes := []rune(s)
	switch x := args[0].(type) {
	case *runtime.StringValue:
		if strings.Contains(s, x.Val) {
			return runtime.Str(x.Val), nil
		}
		return runtime.Nil, nil
	case *runtime.RegexpValue:
		md := a.vm.match(x, s, 0)
		m, ok := md.(*runtime.MatchDataValue)
		if !ok {
			return runtime.Nil, nil
		}
		group := 0
		if len(args) == 2 {
			n, err := a.intArg(args[1])
			if err != nil {
				return nil, err
			}
			group = n
		}
		return m.Group(group), nil
	case runtime.RangeValue:
		start, count, ok := rangeBounds(x, len(runes))
		if !ok {
			return runtime.Nil, nil
		}
		return runtime.Str(string(runes[start : start+count])), nil
	}
	n, err := a.intArg(args[0])
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n += len(runes)
	}
	if len(args) == 2 {
		count, err := a.intArg(args[1])
		if err != nil {
			return nil, err
		}
		if n < 0 || n > len(runes) || count < 0 {
			return runtime.Nil, nil
		}
		count = min(count, len(runes)-n)
		return runtime.Str(string(runes[n : n+count])), nil
	}
	if n < 0 || n >= len(runes) {
		return runtime.Nil, nil
	}
	return runtime.Str(string(runes[n])), nil
}
