package ast

import "math/big"

// Literal helpers.

func Nil() *NilNode     { return NewNil() }
func True() *TrueNode   { return NewTrue() }
func False() *FalseNode { return NewFalse() }
func Self() *SelfNode   { return NewSelf() }

func Int(value int64) *FixnumNode { return NewFixnum(value) }

func Big(value *big.Int) *BignumNode { return NewBignum(value) }

func Flt(value float64) *FloatNode { return NewFloat(value) }

func Str(value string) *StrNode { return NewStr(value) }

func Sym(name string) *SymbolNode { return NewSymbol(name) }

func Re(source string) *RegexpNode { return NewRegexp(source, 0) }

func Arr(elements ...Node) *ArrayNode { return NewArray(elements) }

func Hsh(pairs ...Node) *HashNode { return NewHash(pairs) }

func DStr(parts ...Node) *DStrNode { return NewDStr(parts) }

func Interp(body Node) *EvStrNode { return NewEvStr(body) }

func Range(begin, end Node) *DotNode { return NewDot(begin, end, false) }

func XRange(begin, end Node) *DotNode { return NewDot(begin, end, true) }

// Variable helpers. L* forms are locals of a method or root scope, D* forms
// are block locals.

func LVar(name string, slot int) *LocalVarNode { return NewLocalVar(name, slot, 0) }

func LAsgn(name string, slot int, value Node) *LocalAsgnNode {
	return NewLocalAsgn(name, slot, 0, value)
}

func DVar(name string, slot, depth int) *DVarNode { return NewDVar(name, slot, depth) }

func DAsgn(name string, slot, depth int, value Node) *DAsgnNode {
	return NewDAsgn(name, slot, depth, value)
}

func IVar(name string) *InstVarNode { return NewInstVar(name) }

func IAsgn(name string, value Node) *InstAsgnNode { return NewInstAsgn(name, value) }

func GVar(name string) *GlobalVarNode { return NewGlobalVar(name) }

func GAsgn(name string, value Node) *GlobalAsgnNode { return NewGlobalAsgn(name, value) }

func CVar(name string) *ClassVarNode { return NewClassVar(name) }

func Const(name string) *ConstNode { return NewConst(name) }

func CDecl(name string, value Node) *ConstDeclNode { return NewConstDecl(name, nil, value) }

// Control flow helpers.

func Seq(statements ...Node) *BlockNode { return NewBlock(statements) }

func If(cond, then, els Node) *IfNode { return NewIf(cond, then, els) }

func And(first, second Node) *AndNode { return NewAnd(first, second) }

func Or(first, second Node) *OrNode { return NewOr(first, second) }

func Not(cond Node) *NotNode { return NewNot(cond) }

func While(cond, body Node) *WhileNode { return NewWhile(cond, body, true) }

func Until(cond, body Node) *UntilNode { return NewUntil(cond, body, true) }

func Case(subject Node, els Node, whens ...*WhenNode) *CaseNode {
	return NewCase(subject, whens, els)
}

func When(body Node, exprs ...Node) *WhenNode { return NewWhen(exprs, body) }

func Break(value Node) *BreakNode { return NewBreak(value) }

func Next(value Node) *NextNode { return NewNext(value) }

func Return(value Node) *ReturnNode { return NewReturn(value) }

func Defined(expr Node) *DefinedNode { return NewDefined(expr) }

// Call helpers.

func Call(receiver Node, name string, args ...Node) *CallNode {
	return NewCall(receiver, name, argList(args), nil)
}

func CallIter(receiver Node, name string, iter Node, args ...Node) *CallNode {
	return NewCall(receiver, name, argList(args), iter)
}

func FCall(name string, args ...Node) *FCallNode {
	return NewFCall(name, argList(args), nil)
}

func FCallIter(name string, iter Node, args ...Node) *FCallNode {
	return NewFCall(name, argList(args), iter)
}

func VCall(name string) *VCallNode { return NewVCall(name) }

// Yield passes one argument as is and several as an expanded list.
func Yield(args ...Node) *YieldNode {
	switch len(args) {
	case 0:
		return NewYield(nil, false)
	case 1:
		return NewYield(args[0], false)
	}
	return NewYield(NewArray(args), true)
}

func Splat(value Node) *SplatNode { return NewSplat(value) }

func argList(args []Node) Node {
	if len(args) == 0 {
		return nil
	}
	return NewArray(args)
}

// Block builds a closure literal over scope with positional parameters
// already declared in it.
func Block(scope *Scope, body Node, params ...string) *IterNode {
	return NewIter(Params(scope, params...), body, scope)
}

// Params builds a required-only parameter list, declaring each name.
func Params(scope *Scope, names ...string) *ArgsNode {
	if len(names) == 0 {
		return nil
	}
	required := make([]Node, 0, len(names))
	for _, name := range names {
		required = append(required, NewArgument(name, scope.Declare(name)))
	}
	return NewArgs(required, nil, nil, nil)
}

func Def(name string, scope *Scope, body Node, params ...string) *DefnNode {
	return NewDefn(name, Params(scope, params...), body, scope)
}

// Multiple assignment and exceptions.

func MAsgn(value Node, head ...Node) *MultipleAsgnNode {
	return NewMultipleAsgn(head, nil, nil, value)
}

func Rescue(body Node, clauses ...*RescueBodyNode) *RescueNode {
	var first *RescueBodyNode
	for i := len(clauses) - 1; i >= 0; i-- {
		clauses[i].Next = first
		first = clauses[i]
	}
	return NewRescue(body, first, nil)
}

func RescueClause(body Node, classes ...Node) *RescueBodyNode {
	var exceptions Node
	if len(classes) > 0 {
		exceptions = NewArray(classes)
	}
	return NewRescueBody(exceptions, body, nil)
}

func Ensure(body, ensure Node) *EnsureNode { return NewEnsure(body, ensure) }

func Root(scope *Scope, statements ...Node) *RootNode {
	var body Node
	switch len(statements) {
	case 0:
	case 1:
		body = statements[0]
	default:
		body = NewBlock(statements)
	}
	return NewRoot("", body, scope)
}
