package emit

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/oklog/ulid/v2"

	"rblower/compiler-go/pkg/ast"
)

type Op int

const (
	OpPushNil Op = iota
	OpPushTrue
	OpPushFalse
	OpPushSelf
	OpPushInt
	OpPushBignum
	OpPushFloat
	OpPushString
	OpPushSymbol
	OpPushRegexp
	OpLoadLocal
	OpStoreLocal
	OpLoadGlobal
	OpStoreGlobal
	OpLoadIvar
	OpStoreIvar
	OpLoadCvar
	OpStoreCvar
	OpLoadConst
	OpStoreConst
	OpDup
	OpDup2
	OpDupX1
	OpDupX2
	OpSwap
	OpPop
	OpReverse
	OpDispatch
	OpBranch
	OpBranchIfTrue
	OpBranchIfFalse
	OpPushClosure
	OpDefineMethod
	OpDefineSingletonMethod
	OpOpenClass
	OpOpenModule
	OpOpenSingletonClass
	OpAliasMethod
	OpAliasGlobal
	OpUndefMethod
	OpAtExit
	OpBeginProtected
	OpBeginHandler
	OpEndProtected
	OpRethrow
	OpCheckArity
	OpLoadArg
	OpArgGiven
	OpRestArgs
	OpLoadBlock
	OpMakeArray
	OpMakeHash
	OpMakeRange
	OpConcatStrings
	OpAsString
	OpMakeDynamicRegexp
	OpSplat
	OpToAry
	OpArgsCat
	OpArgsPush
	OpSValue
	OpToMultipleAssignable
	OpArrayRef
	OpArraySlice
	OpArrayTailRef
	OpToProc
	OpYield
	OpReturn
	OpBreak
	OpNext
	OpProbe
	OpPosition
)

var opNames = [...]string{
	"push_nil", "push_true", "push_false", "push_self", "push_int", "push_bignum",
	"push_float", "push_string", "push_symbol", "push_regexp", "load_local", "store_local",
	"load_global", "store_global", "load_ivar", "store_ivar", "load_cvar", "store_cvar",
	"load_const", "store_const", "dup", "dup2", "dup_x1", "dup_x2", "swap", "pop", "reverse",
	"dispatch", "branch", "branch_if_true", "branch_if_false", "push_closure", "define_method",
	"define_singleton_method", "open_class", "open_module", "open_singleton_class",
	"alias_method", "alias_global", "undef_method", "at_exit", "begin_protected",
	"begin_handler", "end_protected", "rethrow", "check_arity", "load_arg", "arg_given",
	"rest_args", "load_block", "make_array", "make_hash", "make_range", "concat_strings",
	"as_string", "make_dregexp", "splat", "to_ary", "args_cat", "args_push", "svalue",
	"to_masgn", "array_ref", "array_slice", "array_tail_ref", "to_proc", "yield", "return",
	"break", "next", "probe", "position",
}

func (op Op) String() string {
	if int(op) >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Instr is one recorded primitive. Which operand fields are meaningful
// depends on Op.
type Instr struct {
	Op      Op
	A, B, C int
	Int     int64
	Float   float64
	Big     *big.Int
	Str     string
	Str2    string
	Flag    bool
	Label   Label
	Site    CallSite
	Const   ConstScope
	Protect ProtectKind
	Probe   ProbeKind
	Arity   Arity
	Regexp  ast.RegexpOptions
	Child   *Unit
	Pos     ast.Position
}

// Unit is a finished, executable compilation unit.
type Unit struct {
	ID       ulid.ULID
	Spec     UnitSpec
	Code     []Instr
	Children []*Unit
	labels   []int
}

func (u *Unit) UnitID() string { return u.ID.String() }

// LabelPC returns the program counter a label was marked at.
func (u *Unit) LabelPC(l Label) int {
	if int(l) < 0 || int(l) >= len(u.labels) {
		return -1
	}
	return u.labels[l]
}

// Size counts the instructions of u and all nested units.
func (u *Unit) Size() int {
	n := len(u.Code)
	for _, c := range u.Children {
		n += c.Size()
	}
	return n
}

// Count returns u plus the number of nested units.
func (u *Unit) Count() int {
	n := 1
	for _, c := range u.Children {
		n += c.Count()
	}
	return n
}

// Listing renders u and its nested units as text. The output does not
// depend on unit ids, so two lowerings of the same tree list identically.
func (u *Unit) Listing() string {
	var b strings.Builder
	names := map[*Unit]string{}
	var number func(*Unit, string)
	number = func(x *Unit, name string) {
		names[x] = name
		for i, c := range x.Children {
			number(c, fmt.Sprintf("%s.%d", name, i))
		}
	}
	number(u, "0")
	var write func(*Unit)
	write = func(x *Unit) {
		fmt.Fprintf(&b, "unit %s %s %q", names[x], x.Spec.Kind, x.Spec.Name)
		if x.Spec.Kind != UnitRoot && x.Spec.Kind != UnitClass {
			fmt.Fprintf(&b, " arity=%d/%d", x.Spec.Arity.Required, x.Spec.Arity.Optional)
			if x.Spec.Arity.Rest {
				b.WriteString("+rest")
			}
			fmt.Fprintf(&b, " %s", x.Spec.CallConfig)
		}
		b.WriteString("\n")
		marks := map[int][]int{}
		for l, pc := range x.labels {
			marks[pc] = append(marks[pc], l)
		}
		for pc, in := range x.Code {
			for _, l := range marks[pc] {
				fmt.Fprintf(&b, "L%d:\n", l)
			}
			if in.Op == OpPosition {
				continue
			}
			fmt.Fprintf(&b, "  %-16s%s\n", in.Op, operands(in, names))
		}
		for _, l := range marks[len(x.Code)] {
			fmt.Fprintf(&b, "L%d:\n", l)
		}
		for _, c := range x.Children {
			write(c)
		}
	}
	write(u)
	return b.String()
}

func operands(in Instr, names map[*Unit]string) string {
	switch in.Op {
	case OpPushInt:
		return fmt.Sprint(in.Int)
	case OpPushBignum:
		return in.Big.String()
	case OpPushFloat:
		return fmt.Sprint(in.Float)
	case OpPushString:
		return fmt.Sprintf("%q", in.Str)
	case OpPushSymbol, OpLoadGlobal, OpStoreGlobal, OpLoadIvar, OpStoreIvar, OpLoadCvar, OpStoreCvar, OpUndefMethod:
		return in.Str
	case OpPushRegexp:
		return fmt.Sprintf("/%s/%d", in.Str, in.Regexp)
	case OpLoadLocal, OpStoreLocal:
		return fmt.Sprintf("%d@%d", in.A, in.B)
	case OpLoadConst, OpStoreConst:
		return fmt.Sprintf("%s %s", in.Str, in.Const)
	case OpReverse, OpLoadArg, OpArgGiven, OpRestArgs, OpMakeArray, OpMakeHash, OpConcatStrings, OpArrayRef, OpYield:
		return fmt.Sprint(in.A)
	case OpMakeDynamicRegexp:
		return fmt.Sprintf("%d /%d", in.A, in.Regexp)
	case OpArraySlice:
		return fmt.Sprintf("%d %d", in.A, in.B)
	case OpArrayTailRef:
		return fmt.Sprintf("%d %d %d", in.A, in.B, in.C)
	case OpMakeRange:
		if in.Flag {
			return "exclusive"
		}
		return "inclusive"
	case OpDispatch:
		s := fmt.Sprintf("%s/%d %s", in.Site.Name, in.Site.Arity, in.Site.Discipline)
		if in.Site.HasBlock {
			s += " &"
		}
		if in.Site.ZSuper {
			s += " zsuper"
		}
		return s
	case OpBranch, OpBranchIfTrue, OpBranchIfFalse, OpBeginHandler:
		return fmt.Sprintf("L%d", in.Label)
	case OpBeginProtected:
		return fmt.Sprintf("%s L%d", in.Protect, in.Label)
	case OpPushClosure, OpAtExit, OpOpenSingletonClass:
		return names[in.Child]
	case OpDefineMethod, OpDefineSingletonMethod:
		return fmt.Sprintf("%s %s", in.Str, names[in.Child])
	case OpOpenClass:
		s := fmt.Sprintf("%s %s %s", in.Str, in.Const, names[in.Child])
		if in.Flag {
			s += " super"
		}
		return s
	case OpOpenModule:
		return fmt.Sprintf("%s %s %s", in.Str, in.Const, names[in.Child])
	case OpAliasMethod, OpAliasGlobal:
		return fmt.Sprintf("%s %s", in.Str, in.Str2)
	case OpCheckArity:
		return fmt.Sprintf("%d %d %t", in.Arity.Required, in.Arity.Optional, in.Arity.Rest)
	case OpProbe:
		return fmt.Sprintf("%s %s", in.Probe, in.Str)
	}
	return ""
}

// Assembler records primitives into a Unit.
type Assembler struct {
	unit   *Unit
	parent *Assembler
	err    error
}

// NewAssembler starts recording a top-level unit.
func NewAssembler(spec UnitSpec) *Assembler {
	return &Assembler{unit: &Unit{ID: ulid.Make(), Spec: spec}}
}

// Unit returns the unit being recorded.
func (a *Assembler) Unit() *Unit { return a.unit }

// Finish validates label resolution across the unit tree.
func (a *Assembler) Finish() (*Unit, error) {
	if a.err != nil {
		return nil, a.err
	}
	if err := checkLabels(a.unit); err != nil {
		return nil, err
	}
	return a.unit, nil
}

func checkLabels(u *Unit) error {
	for l, pc := range u.labels {
		if pc < 0 {
			return fmt.Errorf("emit: unit %q: label L%d never marked", u.Spec.Name, l)
		}
	}
	for _, in := range u.Code {
		switch in.Op {
		case OpBranch, OpBranchIfTrue, OpBranchIfFalse, OpBeginProtected, OpBeginHandler:
			if int(in.Label) >= len(u.labels) {
				return fmt.Errorf("emit: unit %q: unknown label L%d", u.Spec.Name, in.Label)
			}
		}
	}
	for _, c := range u.Children {
		if err := checkLabels(c); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) add(in Instr) { a.unit.Code = append(a.unit.Code, in) }

func (a *Assembler) op(op Op) { a.add(Instr{Op: op}) }

func (a *Assembler) child(ref UnitRef) *Unit {
	u, ok := ref.(*Unit)
	if !ok && a.err == nil {
		a.err = fmt.Errorf("emit: foreign unit reference %T", ref)
	}
	return u
}

func (a *Assembler) PushNil()   { a.op(OpPushNil) }
func (a *Assembler) PushTrue()  { a.op(OpPushTrue) }
func (a *Assembler) PushFalse() { a.op(OpPushFalse) }
func (a *Assembler) PushSelf()  { a.op(OpPushSelf) }

func (a *Assembler) PushInt(v int64) { a.add(Instr{Op: OpPushInt, Int: v}) }

func (a *Assembler) PushBignum(v *big.Int) {
	a.add(Instr{Op: OpPushBignum, Big: new(big.Int).Set(v)})
}

func (a *Assembler) PushFloat(v float64)     { a.add(Instr{Op: OpPushFloat, Float: v}) }
func (a *Assembler) PushString(v string)     { a.add(Instr{Op: OpPushString, Str: v}) }
func (a *Assembler) PushSymbol(name string)  { a.add(Instr{Op: OpPushSymbol, Str: name}) }

func (a *Assembler) PushRegexp(source string, options ast.RegexpOptions) {
	a.add(Instr{Op: OpPushRegexp, Str: source, Regexp: options})
}

func (a *Assembler) LoadLocal(slot, depth int)  { a.add(Instr{Op: OpLoadLocal, A: slot, B: depth}) }
func (a *Assembler) StoreLocal(slot, depth int) { a.add(Instr{Op: OpStoreLocal, A: slot, B: depth}) }
func (a *Assembler) LoadGlobal(name string)     { a.add(Instr{Op: OpLoadGlobal, Str: name}) }
func (a *Assembler) StoreGlobal(name string)    { a.add(Instr{Op: OpStoreGlobal, Str: name}) }
func (a *Assembler) LoadIvar(name string)       { a.add(Instr{Op: OpLoadIvar, Str: name}) }
func (a *Assembler) StoreIvar(name string)      { a.add(Instr{Op: OpStoreIvar, Str: name}) }
func (a *Assembler) LoadCvar(name string)       { a.add(Instr{Op: OpLoadCvar, Str: name}) }
func (a *Assembler) StoreCvar(name string)      { a.add(Instr{Op: OpStoreCvar, Str: name}) }

func (a *Assembler) LoadConst(name string, scope ConstScope) {
	a.add(Instr{Op: OpLoadConst, Str: name, Const: scope})
}

func (a *Assembler) StoreConst(name string, scope ConstScope) {
	a.add(Instr{Op: OpStoreConst, Str: name, Const: scope})
}

func (a *Assembler) Dup()          { a.op(OpDup) }
func (a *Assembler) Dup2()         { a.op(OpDup2) }
func (a *Assembler) DupX1()        { a.op(OpDupX1) }
func (a *Assembler) DupX2()        { a.op(OpDupX2) }
func (a *Assembler) Swap()         { a.op(OpSwap) }
func (a *Assembler) Pop()          { a.op(OpPop) }
func (a *Assembler) Reverse(n int) { a.add(Instr{Op: OpReverse, A: n}) }

func (a *Assembler) Dispatch(site CallSite) { a.add(Instr{Op: OpDispatch, Site: site}) }

func (a *Assembler) NewLabel() Label {
	a.unit.labels = append(a.unit.labels, -1)
	return Label(len(a.unit.labels) - 1)
}

func (a *Assembler) MarkLabel(l Label) {
	if int(l) >= len(a.unit.labels) {
		if a.err == nil {
			a.err = fmt.Errorf("emit: unit %q: mark of unknown label L%d", a.unit.Spec.Name, l)
		}
		return
	}
	if a.unit.labels[l] >= 0 && a.err == nil {
		a.err = fmt.Errorf("emit: unit %q: label L%d marked twice", a.unit.Spec.Name, l)
	}
	a.unit.labels[l] = len(a.unit.Code)
}

func (a *Assembler) Branch(l Label)        { a.add(Instr{Op: OpBranch, Label: l}) }
func (a *Assembler) BranchIfTrue(l Label)  { a.add(Instr{Op: OpBranchIfTrue, Label: l}) }
func (a *Assembler) BranchIfFalse(l Label) { a.add(Instr{Op: OpBranchIfFalse, Label: l}) }

func (a *Assembler) BeginUnit(spec UnitSpec) Target {
	return &Assembler{unit: &Unit{ID: ulid.Make(), Spec: spec}, parent: a}
}

// EndUnit attaches the finished unit to its parent.
func (a *Assembler) EndUnit() UnitRef {
	if a.parent != nil {
		a.parent.unit.Children = append(a.parent.unit.Children, a.unit)
		if a.err != nil && a.parent.err == nil {
			a.parent.err = a.err
		}
	}
	return a.unit
}

func (a *Assembler) PushClosure(ref UnitRef) { a.add(Instr{Op: OpPushClosure, Child: a.child(ref)}) }

func (a *Assembler) DefineMethod(name string, ref UnitRef) {
	a.add(Instr{Op: OpDefineMethod, Str: name, Child: a.child(ref)})
}

func (a *Assembler) DefineSingletonMethod(name string, ref UnitRef) {
	a.add(Instr{Op: OpDefineSingletonMethod, Str: name, Child: a.child(ref)})
}

func (a *Assembler) OpenClass(name string, ref UnitRef, path ConstScope, hasSuper bool) {
	a.add(Instr{Op: OpOpenClass, Str: name, Child: a.child(ref), Const: path, Flag: hasSuper})
}

func (a *Assembler) OpenModule(name string, ref UnitRef, path ConstScope) {
	a.add(Instr{Op: OpOpenModule, Str: name, Child: a.child(ref), Const: path})
}

func (a *Assembler) OpenSingletonClass(ref UnitRef) {
	a.add(Instr{Op: OpOpenSingletonClass, Child: a.child(ref)})
}

func (a *Assembler) AliasMethod(newName, oldName string) {
	a.add(Instr{Op: OpAliasMethod, Str: newName, Str2: oldName})
}

func (a *Assembler) AliasGlobal(newName, oldName string) {
	a.add(Instr{Op: OpAliasGlobal, Str: newName, Str2: oldName})
}

func (a *Assembler) UndefMethod(name string) { a.add(Instr{Op: OpUndefMethod, Str: name}) }
func (a *Assembler) AtExit(ref UnitRef)      { a.add(Instr{Op: OpAtExit, Child: a.child(ref)}) }

func (a *Assembler) BeginProtected(kind ProtectKind, handler Label) {
	a.add(Instr{Op: OpBeginProtected, Protect: kind, Label: handler})
}

func (a *Assembler) BeginHandler(handler Label) {
	a.MarkLabel(handler)
	a.add(Instr{Op: OpBeginHandler, Label: handler})
}

func (a *Assembler) EndProtected() { a.op(OpEndProtected) }
func (a *Assembler) Rethrow()      { a.op(OpRethrow) }

func (a *Assembler) CheckArity(arity Arity) { a.add(Instr{Op: OpCheckArity, Arity: arity}) }
func (a *Assembler) LoadArg(i int)          { a.add(Instr{Op: OpLoadArg, A: i}) }
func (a *Assembler) ArgGiven(i int)         { a.add(Instr{Op: OpArgGiven, A: i}) }
func (a *Assembler) RestArgs(from int)      { a.add(Instr{Op: OpRestArgs, A: from}) }
func (a *Assembler) LoadBlock()             { a.op(OpLoadBlock) }

func (a *Assembler) MakeArray(n int)          { a.add(Instr{Op: OpMakeArray, A: n}) }
func (a *Assembler) MakeHash(pairs int)       { a.add(Instr{Op: OpMakeHash, A: pairs}) }
func (a *Assembler) MakeRange(exclusive bool) { a.add(Instr{Op: OpMakeRange, Flag: exclusive}) }
func (a *Assembler) ConcatStrings(n int)      { a.add(Instr{Op: OpConcatStrings, A: n}) }
func (a *Assembler) AsString()                { a.op(OpAsString) }

func (a *Assembler) MakeDynamicRegexp(n int, options ast.RegexpOptions) {
	a.add(Instr{Op: OpMakeDynamicRegexp, A: n, Regexp: options})
}

func (a *Assembler) Splat()                { a.op(OpSplat) }
func (a *Assembler) ToAry()                { a.op(OpToAry) }
func (a *Assembler) ArgsCat()              { a.op(OpArgsCat) }
func (a *Assembler) ArgsPush()             { a.op(OpArgsPush) }
func (a *Assembler) SValue()               { a.op(OpSValue) }
func (a *Assembler) ToMultipleAssignable() { a.op(OpToMultipleAssignable) }
func (a *Assembler) ArrayRef(i int)        { a.add(Instr{Op: OpArrayRef, A: i}) }

func (a *Assembler) ArraySlice(pre, post int) { a.add(Instr{Op: OpArraySlice, A: pre, B: post}) }

func (a *Assembler) ArrayTailRef(pre, post, i int) {
	a.add(Instr{Op: OpArrayTailRef, A: pre, B: post, C: i})
}

func (a *Assembler) ToProc()         { a.op(OpToProc) }
func (a *Assembler) Yield(arity int) { a.add(Instr{Op: OpYield, A: arity}) }
func (a *Assembler) Return()         { a.op(OpReturn) }
func (a *Assembler) Break()          { a.op(OpBreak) }
func (a *Assembler) Next()           { a.op(OpNext) }

func (a *Assembler) Probe(kind ProbeKind, name string) {
	a.add(Instr{Op: OpProbe, Probe: kind, Str: name})
}

func (a *Assembler) Position(pos ast.Position) { a.add(Instr{Op: OpPosition, Pos: pos}) }

var _ Target = (*Assembler)(nil)
