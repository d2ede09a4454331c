package runtime

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Truthy reports Ruby truthiness: only nil and false are falsy.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil, NilValue:
		return false
	case BoolValue:
		return x.Val
	}
	return true
}

// Eql is hash-key equality: same kind and same value, with no numeric
// coercion.
func Eql(a, b Value) bool {
	switch x := a.(type) {
	case IntegerValue:
		y, ok := b.(IntegerValue)
		return ok && x.Val.Cmp(y.Val) == 0
	case FloatValue:
		y, ok := b.(FloatValue)
		return ok && x.Val == y.Val
	}
	return Equal(a, b)
}

// Equal is == for built-in values. Objects compare by identity.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case nil, NilValue:
		return b == nil || b.Kind() == KindNil
	case BoolValue:
		y, ok := b.(BoolValue)
		return ok && x.Val == y.Val
	case IntegerValue:
		switch y := b.(type) {
		case IntegerValue:
			return x.Val.Cmp(y.Val) == 0
		case FloatValue:
			return IntToFloat(x) == y.Val
		}
		return false
	case FloatValue:
		switch y := b.(type) {
		case FloatValue:
			return x.Val == y.Val
		case IntegerValue:
			return IntToFloat(y) == x.Val
		}
		return false
	case *StringValue:
		y, ok := b.(*StringValue)
		return ok && x.Val == y.Val
	case SymbolValue:
		y, ok := b.(SymbolValue)
		return ok && x.Name == y.Name
	case *ArrayValue:
		y, ok := b.(*ArrayValue)
		if !ok || len(x.Elements) != len(y.Elements) {
			return false
		}
		for i := range x.Elements {
			if !Equal(x.Elements[i], y.Elements[i]) {
				return false
			}
		}
		return true
	case *HashValue:
		y, ok := b.(*HashValue)
		if !ok || x.Len() != y.Len() {
			return false
		}
		same := true
		x.Each(func(k, v Value) bool {
			other, found := y.Get(k)
			same = found && Equal(v, other)
			return same
		})
		return same
	case RangeValue:
		y, ok := b.(RangeValue)
		return ok && x.Exclusive == y.Exclusive && Equal(x.Start, y.Start) && Equal(x.End, y.End)
	case *RegexpValue:
		y, ok := b.(*RegexpValue)
		return ok && x.Source == y.Source && x.Options == y.Options
	}
	return a == b
}

// IntToFloat converts an integer, rounding bignums to the nearest float.
func IntToFloat(v IntegerValue) float64 {
	f, _ := new(big.Float).SetInt(v.Val).Float64()
	return f
}

// ToS renders v the way to_s does for built-in values.
func ToS(v Value) string {
	switch x := v.(type) {
	case nil, NilValue:
		return ""
	case *StringValue:
		return x.Val
	case SymbolValue:
		return x.Name
	case *ClassValue:
		return x.QualifiedName()
	}
	return Inspect(v)
}

// Inspect renders v the way inspect does for built-in values.
func Inspect(v Value) string {
	switch x := v.(type) {
	case nil, NilValue:
		return "nil"
	case BoolValue:
		return strconv.FormatBool(x.Val)
	case IntegerValue:
		return x.Val.String()
	case FloatValue:
		return formatFloat(x.Val)
	case *StringValue:
		return strconv.Quote(x.Val)
	case SymbolValue:
		return ":" + x.Name
	case *ArrayValue:
		parts := make([]string, len(x.Elements))
		for i, el := range x.Elements {
			parts[i] = Inspect(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *HashValue:
		var parts []string
		x.Each(func(k, v Value) bool {
			parts = append(parts, Inspect(k)+"=>"+Inspect(v))
			return true
		})
		return "{" + strings.Join(parts, ", ") + "}"
	case RangeValue:
		op := ".."
		if x.Exclusive {
			op = "..."
		}
		return Inspect(x.Start) + op + Inspect(x.End)
	case *RegexpValue:
		return "/" + x.Source + "/"
	case *MatchDataValue:
		return fmt.Sprintf("#<MatchData %q>", ToS(x.Group(0)))
	case *ProcValue:
		if x.Lambda {
			return "#<Proc (lambda)>"
		}
		return "#<Proc>"
	case *ClassValue:
		return x.QualifiedName()
	case *ObjectValue:
		if x.Class != nil {
			return fmt.Sprintf("#<%s>", x.Class.QualifiedName())
		}
		return "#<Object>"
	}
	return fmt.Sprintf("%v", v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.IsNaN(f):
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
