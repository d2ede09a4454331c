package vm

import (
	"math/big"
	"regexp"
	"strings"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/runtime"
)

// toS converts v to a Go string the way interpolation does.
func (a *activation) toS(v runtime.Value) (string, error) {
	switch x := v.(type) {
	case *runtime.StringValue:
		return x.Val, nil
	case runtime.NilValue, runtime.BoolValue, runtime.IntegerValue, runtime.FloatValue, runtime.SymbolValue:
		return runtime.ToS(v), nil
	}
	out, err := a.Send(v, "to_s", nil, nil)
	if err != nil {
		return "", err
	}
	if s, ok := out.(*runtime.StringValue); ok {
		return s.Val, nil
	}
	return runtime.Inspect(v), nil
}

// inspect renders v with user-defined inspect methods honored inside
// collections.
func (a *activation) inspect(v runtime.Value) (string, error) {
	switch x := v.(type) {
	case *runtime.ArrayValue:
		parts := make([]string, len(x.Elements))
		for i, el := range x.Elements {
			s, err := a.inspect(el)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case *runtime.HashValue:
		var parts []string
		var failed error
		x.Each(func(k, val runtime.Value) bool {
			ks, err := a.inspect(k)
			if err != nil {
				failed = err
				return false
			}
			vs, err := a.inspect(val)
			if err != nil {
				failed = err
				return false
			}
			parts = append(parts, ks+"=>"+vs)
			return true
		})
		return "{" + strings.Join(parts, ", ") + "}", failed
	case *runtime.ObjectValue, *runtime.ClassValue:
		out, err := a.Send(v, "inspect", nil, nil)
		if err != nil {
			return "", err
		}
		if s, ok := out.(*runtime.StringValue); ok {
			return s.Val, nil
		}
	}
	return runtime.Inspect(v), nil
}

// equal is == with user-defined == honored for objects.
func (a *activation) equal(x, y runtime.Value) (bool, error) {
	switch xv := x.(type) {
	case *runtime.ObjectValue:
		out, err := a.Send(x, "==", []runtime.Value{y}, nil)
		if err != nil {
			return false, err
		}
		return runtime.Truthy(out), nil
	case *runtime.ArrayValue:
		yv, ok := y.(*runtime.ArrayValue)
		if !ok || len(xv.Elements) != len(yv.Elements) {
			return false, nil
		}
		for i := range xv.Elements {
			same, err := a.equal(xv.Elements[i], yv.Elements[i])
			if err != nil || !same {
				return false, err
			}
		}
		return true, nil
	}
	return runtime.Equal(x, y), nil
}

// compare is <=> as an int. Incomparable values raise ArgumentError.
func (a *activation) compare(x, y runtime.Value) (int, error) {
	switch xv := x.(type) {
	case runtime.IntegerValue:
		switch yv := y.(type) {
		case runtime.IntegerValue:
			return xv.Val.Cmp(yv.Val), nil
		case runtime.FloatValue:
			return cmpFloat(runtime.IntToFloat(xv), yv.Val), nil
		}
	case runtime.FloatValue:
		switch yv := y.(type) {
		case runtime.FloatValue:
			return cmpFloat(xv.Val, yv.Val), nil
		case runtime.IntegerValue:
			return cmpFloat(xv.Val, runtime.IntToFloat(yv)), nil
		}
	case *runtime.StringValue:
		if yv, ok := y.(*runtime.StringValue); ok {
			return strings.Compare(xv.Val, yv.Val), nil
		}
	}
	out, err := a.Send(x, "<=>", []runtime.Value{y}, nil)
	if err != nil {
		return 0, err
	}
	n, ok := out.(runtime.IntegerValue)
	if !ok {
		return 0, a.Raise("ArgumentError", "comparison of %s with %s failed", a.vm.realClassOf(x).Name, runtime.Inspect(y))
	}
	return n.Val.Sign(), nil
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// splat expands v for a *splat.
func (a *activation) splat(v runtime.Value) (*runtime.ArrayValue, error) {
	switch x := v.(type) {
	case *runtime.ArrayValue:
		return runtime.NewArray(append([]runtime.Value(nil), x.Elements...)...), nil
	case runtime.NilValue:
		return runtime.NewArray(), nil
	case *runtime.HashValue:
		var pairs []runtime.Value
		x.Each(func(k, val runtime.Value) bool {
			pairs = append(pairs, runtime.NewArray(k, val))
			return true
		})
		return runtime.NewArray(pairs...), nil
	case runtime.RangeValue:
		elems, err := a.rangeElements(x)
		if err != nil {
			return nil, err
		}
		return runtime.NewArray(elems...), nil
	}
	if a.vm.respondTo(v, "to_a") {
		out, err := a.Send(v, "to_a", nil, nil)
		if err != nil {
			return nil, err
		}
		if arr, ok := out.(*runtime.ArrayValue); ok {
			return arr, nil
		}
		return nil, a.Raise("TypeError", "can't convert %s to Array", a.vm.realClassOf(v).Name)
	}
	return runtime.NewArray(v), nil
}

// toAry prepares the right-hand side of a multiple assignment.
func (a *activation) toAry(v runtime.Value) (*runtime.ArrayValue, error) {
	if arr, ok := v.(*runtime.ArrayValue); ok {
		return arr, nil
	}
	if _, ok := v.(*runtime.ObjectValue); ok && a.vm.respondTo(v, "to_ary") {
		out, err := a.Send(v, "to_ary", nil, nil)
		if err != nil {
			return nil, err
		}
		if arr, ok := out.(*runtime.ArrayValue); ok {
			return arr, nil
		}
	}
	return runtime.NewArray(v), nil
}

// toProc converts a block argument passed with &.
func (a *activation) toProc(v runtime.Value) (runtime.Value, error) {
	switch x := v.(type) {
	case runtime.NilValue, *runtime.ProcValue:
		return v, nil
	case runtime.SymbolValue:
		return a.vm.symbolProc(x.Name), nil
	}
	out, err := a.Send(v, "to_proc", nil, nil)
	if err != nil {
		return nil, err
	}
	if p, ok := out.(*runtime.ProcValue); ok {
		return p, nil
	}
	return nil, a.Raise("TypeError", "wrong argument type %s (expected Proc)", a.vm.realClassOf(v).Name)
}

func (vm *VM) symbolProc(name string) *runtime.ProcValue {
	return &runtime.ProcValue{Lambda: true, Native: func(c runtime.Caller, args []runtime.Value, block *runtime.ProcValue) (runtime.Value, error) {
		if len(args) == 0 {
			return nil, c.Raise("ArgumentError", "no receiver given")
		}
		return c.Send(args[0], name, args[1:], block)
	}}
}

func integerArg(v runtime.Value) (*big.Int, bool) {
	switch x := v.(type) {
	case runtime.IntegerValue:
		return x.Val, true
	case runtime.FloatValue:
		f := new(big.Float).SetFloat64(x.Val)
		i, _ := f.Int(nil)
		return i, true
	}
	return nil, false
}

func intArg(v runtime.Value) (int, bool) {
	i, ok := integerArg(v)
	if !ok || !i.IsInt64() {
		return 0, false
	}
	return int(i.Int64()), true
}

//-----------------------------------------------------------------------------
// Regular expressions
//-----------------------------------------------------------------------------

var regexpRewrites = strings.NewReplacer(`\h`, `[0-9a-fA-F]`, `\Z`, `(?:\n?\z)`)

// translateRegexp maps Ruby regexp syntax onto RE2. Line anchors are
// always multi-line in Ruby; the m flag makes dot match newlines.
func translateRegexp(source string, options ast.RegexpOptions) string {
	if options&ast.RegexpExtended != 0 {
		source = stripExtended(source)
	}
	flags := "m"
	if options&ast.RegexpIgnoreCase != 0 {
		flags += "i"
	}
	if options&ast.RegexpMultiline != 0 {
		flags += "s"
	}
	return "(?" + flags + ")" + regexpRewrites.Replace(source)
}

// stripExtended drops unescaped whitespace and comments outside
// character classes.
func stripExtended(source string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(source); i++ {
		ch := source[i]
		switch {
		case ch == '\\' && i+1 < len(source):
			b.WriteByte(ch)
			b.WriteByte(source[i+1])
			i++
		case ch == '[':
			inClass = true
			b.WriteByte(ch)
		case ch == ']':
			inClass = false
			b.WriteByte(ch)
		case inClass:
			b.WriteByte(ch)
		case ch == '#':
			for i < len(source) && source[i] != '\n' {
				i++
			}
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func (a *activation) newRegexp(source string, options ast.RegexpOptions) (*runtime.RegexpValue, error) {
	key := translateRegexp(source, options)
	re, ok := a.vm.regexps[key]
	if !ok {
		var err error
		re, err = regexp.Compile(key)
		if err != nil {
			return nil, a.Raise("RegexpError", "%s: /%s/", err.Error(), source)
		}
		a.vm.regexps[key] = re
	}
	return &runtime.RegexpValue{Source: source, Options: options, Re: re}, nil
}

// match runs re against s from byte offset start and updates $~.
func (vm *VM) match(re *runtime.RegexpValue, s string, start int) runtime.Value {
	if start < 0 || start > len(s) {
		vm.globals["$~"] = runtime.Nil
		return runtime.Nil
	}
	loc := re.Re.FindStringSubmatchIndex(s[start:])
	if loc == nil {
		vm.globals["$~"] = runtime.Nil
		return runtime.Nil
	}
	for i := range loc {
		if loc[i] >= 0 {
			loc[i] += start
		}
	}
	md := &runtime.MatchDataValue{Subject: s, Indices: loc, Names: re.Re.SubexpNames()}
	vm.globals["$~"] = md
	return md
}

//-----------------------------------------------------------------------------
// Exceptions
//-----------------------------------------------------------------------------

type exceptionData struct {
	message   string
	hasMsg    bool
	backtrace []string
}

func exceptionOf(obj *runtime.ObjectValue) *exceptionData {
	if d, ok := obj.Data.(*exceptionData); ok {
		return d
	}
	d := &exceptionData{}
	obj.Data = d
	return d
}

func (vm *VM) newException(class *runtime.ClassValue, message string, where string) *runtime.ObjectValue {
	obj := runtime.NewObject(class)
	obj.Data = &exceptionData{message: message, hasMsg: true, backtrace: []string{where}}
	return obj
}

func (vm *VM) exceptionMessage(obj *runtime.ObjectValue) string {
	d := exceptionOf(obj)
	if !d.hasMsg {
		return obj.Class.QualifiedName()
	}
	return d.message
}

// raiseObject wraps an exception object for propagation.
func (vm *VM) raiseObject(obj *runtime.ObjectValue) error {
	return &RaiseError{Exception: obj, Class: obj.Class.QualifiedName(), Message: vm.exceptionMessage(obj)}
}
