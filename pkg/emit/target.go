// Package emit defines the primitive operations the lowering engine drives
// and a recording backend that turns them into executable units.
//
// Every primitive has a fixed stack effect, noted as [+n]/[-n] on the
// Target methods. Backends must honor them exactly.
package emit

import (
	"math/big"

	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/inspector"
)

type Label int

// Variadic is the arity of a call whose arguments arrive as one array.
const Variadic = -1

// Discipline selects the method lookup policy of a dispatch.
type Discipline int

const (
	// DispatchNormal has an explicit receiver; only public methods are visible.
	DispatchNormal Discipline = iota
	// DispatchFunctional is an implicit-self call with arguments; private
	// methods are visible.
	DispatchFunctional
	// DispatchVariable is a bare identifier call on self.
	DispatchVariable
	// DispatchSuper looks up the method above the current one.
	DispatchSuper
)

func (d Discipline) String() string {
	switch d {
	case DispatchNormal:
		return "normal"
	case DispatchFunctional:
		return "functional"
	case DispatchVariable:
		return "variable"
	case DispatchSuper:
		return "super"
	default:
		return "?"
	}
}

// CallSite describes one dispatch.
type CallSite struct {
	Name       string
	Arity      int
	Discipline Discipline
	HasBlock   bool
	// ZSuper forwards the current method's arguments.
	ZSuper bool
}

type ConstScope int

const (
	ConstLexical ConstScope = iota
	// ConstQualified resolves under a module popped from the stack.
	ConstQualified
	ConstTop
)

func (c ConstScope) String() string {
	switch c {
	case ConstLexical:
		return "lexical"
	case ConstQualified:
		return "qualified"
	case ConstTop:
		return "top"
	default:
		return "?"
	}
}

type ProtectKind int

const (
	// ProtectRescue catches raised exceptions only.
	ProtectRescue ProtectKind = iota
	// ProtectEnsure catches everything, non-local jumps included.
	ProtectEnsure
	// ProtectProbe catches everything; the handler discards it.
	ProtectProbe
)

func (k ProtectKind) String() string {
	switch k {
	case ProtectRescue:
		return "rescue"
	case ProtectEnsure:
		return "ensure"
	case ProtectProbe:
		return "probe"
	default:
		return "?"
	}
}

type ProbeKind int

const (
	ProbeIvar ProbeKind = iota
	ProbeGlobal
	ProbeCvar
	ProbeConst
	// ProbeQualifiedConst pops the module to look in.
	ProbeQualifiedConst
	// ProbeMethod pops the receiver and honors visibility like a normal call.
	ProbeMethod
	// ProbeFunctionalMethod pops self; private methods count.
	ProbeFunctionalMethod
	ProbeBlock
	ProbeSuper
)

var probeNames = [...]string{"ivar", "global", "cvar", "const", "qconst", "method", "fmethod", "block", "super"}

func (k ProbeKind) String() string {
	if int(k) < len(probeNames) {
		return probeNames[k]
	}
	return "?"
}

// Pops reports how many operands the probe consumes.
func (k ProbeKind) Pops() int {
	switch k {
	case ProbeQualifiedConst, ProbeMethod, ProbeFunctionalMethod:
		return 1
	default:
		return 0
	}
}

type UnitKind int

const (
	UnitRoot UnitKind = iota
	UnitMethod
	UnitClosure
	UnitClass
)

func (k UnitKind) String() string {
	switch k {
	case UnitRoot:
		return "root"
	case UnitMethod:
		return "method"
	case UnitClosure:
		return "closure"
	case UnitClass:
		return "class"
	default:
		return "?"
	}
}

// Arity is the parameter shape of a method or closure.
type Arity struct {
	Required int
	Optional int
	Rest     bool
}

// UnitSpec describes a nested compilation unit.
type UnitSpec struct {
	Kind       UnitKind
	Name       string
	Scope      *ast.Scope
	Arity      Arity
	Record     inspector.Record
	CallConfig inspector.CallConfig
	// Lambda closures check arity strictly and treat return as local.
	Lambda bool
	Pos    ast.Position
}

// UnitRef is the handle a finished nested unit is known by.
type UnitRef interface {
	UnitID() string
}

// Target is the emission protocol.
type Target interface {
	// Literals [+1]
	PushNil()
	PushTrue()
	PushFalse()
	PushSelf()
	PushInt(v int64)
	PushBignum(v *big.Int)
	PushFloat(v float64)
	PushString(v string)
	PushSymbol(name string)
	PushRegexp(source string, options ast.RegexpOptions)

	// Variables
	LoadLocal(slot, depth int)  // [+1]
	StoreLocal(slot, depth int) // [-1]
	LoadGlobal(name string)     // [+1]
	StoreGlobal(name string)    // [-1]
	LoadIvar(name string)       // [+1]
	StoreIvar(name string)      // [-1]
	LoadCvar(name string)       // [+1]
	StoreCvar(name string)      // [-1]
	// LoadConst [+1]; the qualified form pops the module first [0].
	LoadConst(name string, scope ConstScope)
	// StoreConst [-1]; the qualified form pops value then module [-2].
	StoreConst(name string, scope ConstScope)

	// Shuffling
	Dup()          // a -> a a
	Dup2()         // a b -> a b a b
	DupX1()        // a b -> b a b
	DupX2()        // a b c -> c a b c
	Swap()         // a b -> b a
	Pop()          // a ->
	Reverse(n int) // reverses the top n values

	// Dispatch pops receiver, arguments and block, and pushes the result.
	Dispatch(site CallSite)

	// Control flow
	NewLabel() Label
	MarkLabel(l Label)
	Branch(l Label)
	BranchIfTrue(l Label)  // [-1]
	BranchIfFalse(l Label) // [-1]

	// Nested units. BeginUnit returns the child's target; EndUnit on the
	// child finishes it.
	BeginUnit(spec UnitSpec) Target
	EndUnit() UnitRef
	PushClosure(ref UnitRef)                          // [+1]
	DefineMethod(name string, ref UnitRef)            // [+1] nil
	DefineSingletonMethod(name string, ref UnitRef)   // [0] pops receiver, pushes nil
	OpenClass(name string, ref UnitRef, path ConstScope, hasSuper bool) // pops [module] [super], pushes body value
	OpenModule(name string, ref UnitRef, path ConstScope)               // pops [module], pushes body value
	OpenSingletonClass(ref UnitRef)                   // [0] pops object, pushes body value
	AliasMethod(newName, oldName string)              // [+1] nil
	AliasGlobal(newName, oldName string)              // [+1] nil
	UndefMethod(name string)                          // [+1] nil
	AtExit(ref UnitRef)                               // [+1] nil

	// Protected regions
	BeginProtected(kind ProtectKind, handler Label)
	// BeginHandler marks the handler; the caught value is pushed [+1].
	BeginHandler(handler Label)
	EndProtected()
	Rethrow() // [-1]

	// Argument binding
	CheckArity(arity Arity)
	LoadArg(i int)     // [+1]
	ArgGiven(i int)    // [+1] boolean
	RestArgs(from int) // [+1] array
	LoadBlock()        // [+1] proc or nil

	// Collections
	MakeArray(n int)                                     // [-n+1]
	MakeHash(pairs int)                                  // [-2n+1]
	MakeRange(exclusive bool)                            // [-1]
	ConcatStrings(n int)                                 // [-n+1]
	AsString()                                           // [0]
	MakeDynamicRegexp(n int, options ast.RegexpOptions) // [-n+1]
	Splat()                                              // [0] value to array
	ToAry()                                              // [0]
	ArgsCat()                                            // [-1] array array -> array
	ArgsPush()                                           // [-1] array value -> array
	SValue()                                             // [0]
	ToMultipleAssignable()                               // [0]
	ArrayRef(i int)                                      // [0] array -> element or nil
	ArraySlice(pre, post int)                            // [0] array -> array
	ArrayTailRef(pre, post, i int)                       // [0] array -> element or nil

	// Blocks and exits
	ToProc()         // [0]
	Yield(arity int) // pops arguments, pushes result
	Return()         // [-1]
	Break()          // [-1]
	Next()           // [-1]

	// Probe answers a definedness question with a boolean.
	Probe(kind ProbeKind, name string)

	Position(pos ast.Position)
}
