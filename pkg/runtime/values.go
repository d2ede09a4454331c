package runtime

import (
	"fmt"
	"io"
	"math/big"
	"regexp"
	"sync/atomic"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

// Kind identifies the runtime value category.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindString
	KindSymbol
	KindArray
	KindHash
	KindRange
	KindRegexp
	KindMatchData
	KindProc
	KindObject
	KindClass
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	case KindArray:
		return "array"
	case KindHash:
		return "hash"
	case KindRange:
		return "range"
	case KindRegexp:
		return "regexp"
	case KindMatchData:
		return "match_data"
	case KindProc:
		return "proc"
	case KindObject:
		return "object"
	case KindClass:
		return "class"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

// Value is the shared behaviour for all runtime values.
type Value interface {
	Kind() Kind
}

var nextID atomic.Uint64

func newID() uint64 { return nextID.Add(1) }

//-----------------------------------------------------------------------------
// Scalars
//-----------------------------------------------------------------------------

type NilValue struct{}

func (NilValue) Kind() Kind { return KindNil }

var Nil Value = NilValue{}

type BoolValue struct {
	Val bool
}

func (v BoolValue) Kind() Kind { return KindBool }

func Bool(b bool) Value { return BoolValue{Val: b} }

// IntegerValue covers both fixnums and bignums.
type IntegerValue struct {
	Val *big.Int
}

func (v IntegerValue) Kind() Kind { return KindInteger }

func Int(v int64) IntegerValue { return IntegerValue{Val: big.NewInt(v)} }

// Int64 reports the value when it fits in an int64.
func (v IntegerValue) Int64() (int64, bool) {
	if v.Val == nil {
		return 0, true
	}
	return v.Val.Int64(), v.Val.IsInt64()
}

type FloatValue struct {
	Val float64
}

func (v FloatValue) Kind() Kind { return KindFloat }

// StringValue is mutable, so it is always handled by pointer.
type StringValue struct {
	Val    string
	Frozen bool
}

func (v *StringValue) Kind() Kind { return KindString }

func Str(s string) *StringValue { return &StringValue{Val: s} }

type SymbolValue struct {
	Name string
}

func (v SymbolValue) Kind() Kind { return KindSymbol }

//-----------------------------------------------------------------------------
// Collections, ranges and patterns
//-----------------------------------------------------------------------------

type ArrayValue struct {
	Elements []Value
}

func (v *ArrayValue) Kind() Kind { return KindArray }

func NewArray(elements ...Value) *ArrayValue {
	return &ArrayValue{Elements: elements}
}

type RangeValue struct {
	Start     Value
	End       Value
	Exclusive bool
}

func (v RangeValue) Kind() Kind { return KindRange }

type RegexpValue struct {
	Source  string
	Options ast.RegexpOptions
	Re      *regexp.Regexp
}

func (v *RegexpValue) Kind() Kind { return KindRegexp }

// MatchDataValue is the result of a successful match; Indices holds
// submatch byte offsets as returned by regexp.
type MatchDataValue struct {
	Subject string
	Indices []int
	// Names are the pattern's group names, "" for unnamed groups.
	Names []string
}

func (v *MatchDataValue) Kind() Kind { return KindMatchData }

// Group returns submatch i, or nil when it did not participate.
func (v *MatchDataValue) Group(i int) Value {
	if i < 0 || 2*i+1 >= len(v.Indices) || v.Indices[2*i] < 0 {
		return Nil
	}
	return Str(v.Subject[v.Indices[2*i]:v.Indices[2*i+1]])
}

//-----------------------------------------------------------------------------
// Procs and frames
//-----------------------------------------------------------------------------

// NativeProc implements a proc in Go, such as Symbol#to_proc.
type NativeProc func(c Caller, args []Value, block *ProcValue) (Value, error)

// ProcValue is a closure: a compiled unit plus the environment, self and
// frame it was created in.
type ProcValue struct {
	Unit    *emit.Unit
	Env     *Env
	Self    Value
	Frame   *Frame
	Lexical *ClassValue
	Lambda  bool
	Native  NativeProc
}

func (v *ProcValue) Kind() Kind { return KindProc }

// Arity follows Proc#arity: negative when optional or rest parameters exist.
func (v *ProcValue) Arity() int {
	if v.Unit == nil {
		return -1
	}
	a := v.Unit.Spec.Arity
	if a.Optional > 0 || a.Rest {
		return -(a.Required + 1)
	}
	return a.Required
}

// Frame is the method-level context shared by a method activation and the
// blocks created in it.
type Frame struct {
	Self       Value
	Method     string
	Owner      *ClassValue
	Args       []Value
	Block      *ProcValue
	Lexical    *ClassValue
	Visibility Visibility
	// ModuleFunction makes following definitions module functions.
	ModuleFunction bool
	// Allocated is false when the unit's call configuration skipped the
	// frame; frame-aware builtins refuse to run then.
	Allocated bool
	// Returned is set once the method activation has finished.
	Returned bool
}

//-----------------------------------------------------------------------------
// Objects, classes and methods
//-----------------------------------------------------------------------------

type Visibility int

const (
	Public Visibility = iota
	Private
	Protected
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Private:
		return "private"
	case Protected:
		return "protected"
	default:
		return "?"
	}
}

// Caller is the interpreter surface native methods call back into.
type Caller interface {
	Send(recv Value, name string, args []Value, block *ProcValue) (Value, error)
	CallProc(p *ProcValue, args []Value) (Value, error)
	// Raise builds a Ruby exception of the named class.
	Raise(class string, format string, args ...any) error
	// Frame returns the caller's frame, or nil when it was not allocated.
	Frame() *Frame
	// Scope returns the caller's locals, or nil when they live on the
	// stack only.
	Scope() *Env
	ClassOf(v Value) *ClassValue
	Stdout() io.Writer
}

// NativeFunc implements a method in Go.
type NativeFunc func(c Caller, self Value, args []Value, block *ProcValue) (Value, error)

type Method struct {
	Name       string
	Owner      *ClassValue
	Visibility Visibility
	Unit       *emit.Unit
	Lexical    *ClassValue
	Native     NativeFunc
	// Arity applies to native methods; -1 accepts any count.
	Arity int
	// Undefined marks an undef'd name that stops lookup.
	Undefined bool
}

type ObjectValue struct {
	id        uint64
	Class     *ClassValue
	Ivars     map[string]Value
	Singleton *ClassValue
	// Data holds a native payload, such as an exception backtrace or a
	// binding's environment.
	Data any
}

func (v *ObjectValue) Kind() Kind { return KindObject }

func NewObject(class *ClassValue) *ObjectValue {
	return &ObjectValue{id: newID(), Class: class, Ivars: map[string]Value{}}
}

func (v *ObjectValue) ID() uint64 { return v.id }

type ClassValue struct {
	id       uint64
	Name     string
	Super    *ClassValue
	IsModule bool
	Methods  map[string]*Method
	Consts   map[string]Value
	Cvars    map[string]Value
	Ivars    map[string]Value
	Includes []*ClassValue
	// Lexical is the class or module the definition was nested in.
	Lexical *ClassValue
	Meta    *ClassValue
	// Attached is the object a singleton class belongs to.
	Attached Value
}

func (v *ClassValue) Kind() Kind { return KindClass }

func NewClass(name string, super *ClassValue, module bool) *ClassValue {
	return &ClassValue{
		id:       newID(),
		Name:     name,
		Super:    super,
		IsModule: module,
		Methods:  map[string]*Method{},
		Consts:   map[string]Value{},
		Cvars:    map[string]Value{},
		Ivars:    map[string]Value{},
	}
}

func (v *ClassValue) ID() uint64 { return v.id }

func (v *ClassValue) IsSingleton() bool { return v.Attached != nil }

// Ancestors lists the method resolution order: each class followed by
// its included modules, last included first.
func (v *ClassValue) Ancestors() []*ClassValue {
	var out []*ClassValue
	seen := map[*ClassValue]bool{}
	for c := v; c != nil; c = c.Super {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
		for i := len(c.Includes) - 1; i >= 0; i-- {
			for _, m := range c.Includes[i].Ancestors() {
				if !seen[m] {
					seen[m] = true
					out = append(out, m)
				}
			}
		}
	}
	return out
}

// Lookup finds name along the ancestors and returns the method.
func (v *ClassValue) Lookup(name string) *Method {
	for _, c := range v.Ancestors() {
		if m, ok := c.Methods[name]; ok {
			if m.Undefined {
				return nil
			}
			return m
		}
	}
	return nil
}

// LookupAfter finds name in the ancestors that follow owner, for super.
func (v *ClassValue) LookupAfter(owner *ClassValue, name string) *Method {
	found := false
	for _, c := range v.Ancestors() {
		if !found {
			found = c == owner
			continue
		}
		if m, ok := c.Methods[name]; ok {
			if m.Undefined {
				return nil
			}
			return m
		}
	}
	return nil
}

func (v *ClassValue) IsSubclassOf(other *ClassValue) bool {
	for _, c := range v.Ancestors() {
		if c == other {
			return true
		}
	}
	return false
}

// LookupCvar walks the superclass chain for a class variable and returns
// the class holding it.
func (v *ClassValue) LookupCvar(name string) (Value, *ClassValue) {
	for _, c := range v.Ancestors() {
		if val, ok := c.Cvars[name]; ok {
			return val, c
		}
	}
	return nil, nil
}

// LookupConst searches the class and its ancestors.
func (v *ClassValue) LookupConst(name string) (Value, bool) {
	for _, c := range v.Ancestors() {
		if val, ok := c.Consts[name]; ok {
			return val, true
		}
	}
	return nil, false
}

// QualifiedName joins lexical parents with ::, skipping Object.
func (v *ClassValue) QualifiedName() string {
	if v.Lexical == nil || v.Lexical.Lexical == nil && v.Lexical.Name == "Object" {
		return v.Name
	}
	return v.Lexical.QualifiedName() + "::" + v.Name
}

//-----------------------------------------------------------------------------
// Utility helpers
//-----------------------------------------------------------------------------

// CloneBigInt copies the provided big.Int pointer, tolerating nil.
func CloneBigInt(src *big.Int) *big.Int {
	if src == nil {
		return nil
	}
	return new(big.Int).Set(src)
}
