package ast

import (
	"fmt"
	"math/big"
)

type NodeType string

const (
	// Literals
	NodeNil       NodeType = "Nil"
	NodeTrue      NodeType = "True"
	NodeFalse     NodeType = "False"
	NodeSelf      NodeType = "Self"
	NodeFixnum    NodeType = "Fixnum"
	NodeBignum    NodeType = "Bignum"
	NodeFloat     NodeType = "Float"
	NodeStr       NodeType = "Str"
	NodeSymbol    NodeType = "Symbol"
	NodeRegexp    NodeType = "Regexp"
	NodeXStr      NodeType = "XStr"
	NodeDStr      NodeType = "DStr"
	NodeDSymbol   NodeType = "DSymbol"
	NodeDRegexp   NodeType = "DRegexp"
	NodeDXStr     NodeType = "DXStr"
	NodeEvStr     NodeType = "EvStr"
	NodeArray     NodeType = "Array"
	NodeZArray    NodeType = "ZArray"
	NodeHash      NodeType = "Hash"
	NodeDot       NodeType = "Dot"

	// Variables and constants
	NodeLocalVar     NodeType = "LocalVar"
	NodeLocalAsgn    NodeType = "LocalAsgn"
	NodeDVar         NodeType = "DVar"
	NodeDAsgn        NodeType = "DAsgn"
	NodeInstVar      NodeType = "InstVar"
	NodeInstAsgn     NodeType = "InstAsgn"
	NodeGlobalVar    NodeType = "GlobalVar"
	NodeGlobalAsgn   NodeType = "GlobalAsgn"
	NodeClassVar     NodeType = "ClassVar"
	NodeClassVarAsgn NodeType = "ClassVarAsgn"
	NodeClassVarDecl NodeType = "ClassVarDecl"
	NodeConst        NodeType = "Const"
	NodeColon2       NodeType = "Colon2"
	NodeColon3       NodeType = "Colon3"
	NodeConstDecl    NodeType = "ConstDecl"
	NodeBackRef      NodeType = "BackRef"
	NodeNthRef       NodeType = "NthRef"

	// Control flow
	NodeAnd     NodeType = "And"
	NodeOr      NodeType = "Or"
	NodeNot     NodeType = "Not"
	NodeIf      NodeType = "If"
	NodeWhile   NodeType = "While"
	NodeUntil   NodeType = "Until"
	NodeCase    NodeType = "Case"
	NodeWhen    NodeType = "When"
	NodeFor     NodeType = "For"
	NodeBlock   NodeType = "Block"
	NodeNewline NodeType = "Newline"
	NodeBegin   NodeType = "Begin"
	NodeBreak   NodeType = "Break"
	NodeNext    NodeType = "Next"
	NodeRedo    NodeType = "Redo"
	NodeRetry   NodeType = "Retry"
	NodeReturn  NodeType = "Return"
	NodeFlip    NodeType = "Flip"
	NodeMatch   NodeType = "Match"
	NodeMatch2  NodeType = "Match2"
	NodeMatch3  NodeType = "Match3"
	NodeDefined NodeType = "Defined"

	// Calls
	NodeCall       NodeType = "Call"
	NodeFCall      NodeType = "FCall"
	NodeVCall      NodeType = "VCall"
	NodeAttrAssign NodeType = "AttrAssign"
	NodeSuper      NodeType = "Super"
	NodeZSuper     NodeType = "ZSuper"
	NodeYield      NodeType = "Yield"
	NodeBlockPass  NodeType = "BlockPass"
	NodeSplat      NodeType = "Splat"
	NodeArgsCat    NodeType = "ArgsCat"
	NodeArgsPush   NodeType = "ArgsPush"
	NodeSValue     NodeType = "SValue"
	NodeToAry      NodeType = "ToAry"
	NodeIter       NodeType = "Iter"
	NodeLambda     NodeType = "Lambda"

	// Compound assignment
	NodeMultipleAsgn  NodeType = "MultipleAsgn"
	NodeOpAsgn        NodeType = "OpAsgn"
	NodeOpAsgnOr      NodeType = "OpAsgnOr"
	NodeOpAsgnAnd     NodeType = "OpAsgnAnd"
	NodeOpElementAsgn NodeType = "OpElementAsgn"
	NodeStar          NodeType = "Star"

	// Definitions
	NodeDefn    NodeType = "Defn"
	NodeDefs    NodeType = "Defs"
	NodeClass   NodeType = "Class"
	NodeModule  NodeType = "Module"
	NodeSClass  NodeType = "SClass"
	NodeAlias   NodeType = "Alias"
	NodeVAlias  NodeType = "VAlias"
	NodeUndef   NodeType = "Undef"
	NodePreExe  NodeType = "PreExe"
	NodePostExe NodeType = "PostExe"

	// Parameters
	NodeArgs     NodeType = "Args"
	NodeArgument NodeType = "Argument"
	NodeOptArg   NodeType = "OptArg"
	NodeRestArg  NodeType = "RestArg"
	NodeBlockArg NodeType = "BlockArg"

	// Exceptions and structure
	NodeRescue     NodeType = "Rescue"
	NodeRescueBody NodeType = "RescueBody"
	NodeEnsure     NodeType = "Ensure"
	NodeRoot       NodeType = "Root"
	NodeUnknown    NodeType = "Unknown"
)

// Position locates a node in its source file.
type Position struct {
	File      string `json:"file,omitempty"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

func (p Position) String() string {
	file := p.File
	if file == "" {
		file = "<unknown>"
	}
	if p.EndLine > p.StartLine {
		return fmt.Sprintf("%s:%d-%d", file, p.StartLine, p.EndLine)
	}
	return fmt.Sprintf("%s:%d", file, p.StartLine)
}

// Node is implemented by every syntax node. Nodes are immutable once the
// front end hands them over.
type Node interface {
	NodeType() NodeType
	Position() Position
	isNode()
}

type nodeImpl struct {
	Type NodeType `json:"type"`
	pos  Position
}

func newNodeImpl(kind NodeType) nodeImpl {
	return nodeImpl{Type: kind}
}

func (n nodeImpl) NodeType() NodeType         { return n.Type }
func (n nodeImpl) Position() Position         { return n.pos }
func (nodeImpl) isNode()                      {}
func (n *nodeImpl) SetPosition(pos Position) { n.pos = pos }

type positioned interface {
	SetPosition(Position)
}

// At sets the position on a freshly built node and returns it.
func At[T Node](node T, pos Position) T {
	if p, ok := any(node).(positioned); ok {
		p.SetPosition(pos)
	}
	return node
}

// Assignable marks nodes that may appear as assignment targets. Used as a
// target, the node's value child is nil and the value comes from the stack.
type Assignable interface {
	Node
	assignableNode()
}

type assignableMarker struct{}

func (assignableMarker) assignableNode() {}

// Literals

type NilNode struct{ nodeImpl }

func NewNil() *NilNode { return &NilNode{nodeImpl: newNodeImpl(NodeNil)} }

type TrueNode struct{ nodeImpl }

func NewTrue() *TrueNode { return &TrueNode{nodeImpl: newNodeImpl(NodeTrue)} }

type FalseNode struct{ nodeImpl }

func NewFalse() *FalseNode { return &FalseNode{nodeImpl: newNodeImpl(NodeFalse)} }

type SelfNode struct{ nodeImpl }

func NewSelf() *SelfNode { return &SelfNode{nodeImpl: newNodeImpl(NodeSelf)} }

type FixnumNode struct {
	nodeImpl
	Value int64 `json:"value"`
}

func NewFixnum(value int64) *FixnumNode {
	return &FixnumNode{nodeImpl: newNodeImpl(NodeFixnum), Value: value}
}

type BignumNode struct {
	nodeImpl
	Value *big.Int `json:"value"`
}

func NewBignum(value *big.Int) *BignumNode {
	return &BignumNode{nodeImpl: newNodeImpl(NodeBignum), Value: new(big.Int).Set(value)}
}

type FloatNode struct {
	nodeImpl
	Value float64 `json:"value"`
}

func NewFloat(value float64) *FloatNode {
	return &FloatNode{nodeImpl: newNodeImpl(NodeFloat), Value: value}
}

type StrNode struct {
	nodeImpl
	Value string `json:"value"`
}

func NewStr(value string) *StrNode {
	return &StrNode{nodeImpl: newNodeImpl(NodeStr), Value: value}
}

type SymbolNode struct {
	nodeImpl
	Name string `json:"name"`
}

func NewSymbol(name string) *SymbolNode {
	return &SymbolNode{nodeImpl: newNodeImpl(NodeSymbol), Name: name}
}

// RegexpOptions mirrors the literal's trailing flags.
type RegexpOptions int

const (
	RegexpIgnoreCase RegexpOptions = 1 << iota
	RegexpExtended
	RegexpMultiline
)

type RegexpNode struct {
	nodeImpl
	Source  string        `json:"source"`
	Options RegexpOptions `json:"options"`
}

func NewRegexp(source string, options RegexpOptions) *RegexpNode {
	return &RegexpNode{nodeImpl: newNodeImpl(NodeRegexp), Source: source, Options: options}
}

type XStrNode struct {
	nodeImpl
	Value string `json:"value"`
}

func NewXStr(value string) *XStrNode {
	return &XStrNode{nodeImpl: newNodeImpl(NodeXStr), Value: value}
}

// DStrNode is an interpolated string. Parts are StrNode and EvStrNode values.
type DStrNode struct {
	nodeImpl
	Parts []Node `json:"parts"`
}

func NewDStr(parts []Node) *DStrNode {
	return &DStrNode{nodeImpl: newNodeImpl(NodeDStr), Parts: parts}
}

type DSymbolNode struct {
	nodeImpl
	Parts []Node `json:"parts"`
}

func NewDSymbol(parts []Node) *DSymbolNode {
	return &DSymbolNode{nodeImpl: newNodeImpl(NodeDSymbol), Parts: parts}
}

type DRegexpNode struct {
	nodeImpl
	Parts   []Node        `json:"parts"`
	Options RegexpOptions `json:"options"`
}

func NewDRegexp(parts []Node, options RegexpOptions) *DRegexpNode {
	return &DRegexpNode{nodeImpl: newNodeImpl(NodeDRegexp), Parts: parts, Options: options}
}

type DXStrNode struct {
	nodeImpl
	Parts []Node `json:"parts"`
}

func NewDXStr(parts []Node) *DXStrNode {
	return &DXStrNode{nodeImpl: newNodeImpl(NodeDXStr), Parts: parts}
}

type EvStrNode struct {
	nodeImpl
	Body Node `json:"body"`
}

func NewEvStr(body Node) *EvStrNode {
	return &EvStrNode{nodeImpl: newNodeImpl(NodeEvStr), Body: body}
}

type ArrayNode struct {
	nodeImpl
	Elements []Node `json:"elements"`
}

func NewArray(elements []Node) *ArrayNode {
	return &ArrayNode{nodeImpl: newNodeImpl(NodeArray), Elements: elements}
}

func (n *ArrayNode) Size() int {
	if n == nil {
		return 0
	}
	return len(n.Elements)
}

type ZArrayNode struct{ nodeImpl }

func NewZArray() *ZArrayNode { return &ZArrayNode{nodeImpl: newNodeImpl(NodeZArray)} }

// HashNode stores its pairs flattened: key0, value0, key1, value1, ...
type HashNode struct {
	nodeImpl
	Pairs []Node `json:"pairs"`
}

func NewHash(pairs []Node) *HashNode {
	return &HashNode{nodeImpl: newNodeImpl(NodeHash), Pairs: pairs}
}

type DotNode struct {
	nodeImpl
	Begin     Node `json:"begin"`
	End       Node `json:"end"`
	Exclusive bool `json:"exclusive"`
}

func NewDot(begin, end Node, exclusive bool) *DotNode {
	return &DotNode{nodeImpl: newNodeImpl(NodeDot), Begin: begin, End: end, Exclusive: exclusive}
}

// Variables

type LocalVarNode struct {
	nodeImpl
	Name  string `json:"name"`
	Slot  int    `json:"slot"`
	Depth int    `json:"depth"`
}

func NewLocalVar(name string, slot, depth int) *LocalVarNode {
	return &LocalVarNode{nodeImpl: newNodeImpl(NodeLocalVar), Name: name, Slot: slot, Depth: depth}
}

type LocalAsgnNode struct {
	nodeImpl
	assignableMarker
	Name  string `json:"name"`
	Slot  int    `json:"slot"`
	Depth int    `json:"depth"`
	Value Node   `json:"value,omitempty"`
}

func NewLocalAsgn(name string, slot, depth int, value Node) *LocalAsgnNode {
	return &LocalAsgnNode{nodeImpl: newNodeImpl(NodeLocalAsgn), Name: name, Slot: slot, Depth: depth, Value: value}
}

// DVarNode reads a variable declared in a block scope.
type DVarNode struct {
	nodeImpl
	Name  string `json:"name"`
	Slot  int    `json:"slot"`
	Depth int    `json:"depth"`
}

func NewDVar(name string, slot, depth int) *DVarNode {
	return &DVarNode{nodeImpl: newNodeImpl(NodeDVar), Name: name, Slot: slot, Depth: depth}
}

type DAsgnNode struct {
	nodeImpl
	assignableMarker
	Name  string `json:"name"`
	Slot  int    `json:"slot"`
	Depth int    `json:"depth"`
	Value Node   `json:"value,omitempty"`
}

func NewDAsgn(name string, slot, depth int, value Node) *DAsgnNode {
	return &DAsgnNode{nodeImpl: newNodeImpl(NodeDAsgn), Name: name, Slot: slot, Depth: depth, Value: value}
}

type InstVarNode struct {
	nodeImpl
	Name string `json:"name"`
}

func NewInstVar(name string) *InstVarNode {
	return &InstVarNode{nodeImpl: newNodeImpl(NodeInstVar), Name: name}
}

type InstAsgnNode struct {
	nodeImpl
	assignableMarker
	Name  string `json:"name"`
	Value Node   `json:"value,omitempty"`
}

func NewInstAsgn(name string, value Node) *InstAsgnNode {
	return &InstAsgnNode{nodeImpl: newNodeImpl(NodeInstAsgn), Name: name, Value: value}
}

type GlobalVarNode struct {
	nodeImpl
	Name string `json:"name"`
}

func NewGlobalVar(name string) *GlobalVarNode {
	return &GlobalVarNode{nodeImpl: newNodeImpl(NodeGlobalVar), Name: name}
}

type GlobalAsgnNode struct {
	nodeImpl
	assignableMarker
	Name  string `json:"name"`
	Value Node   `json:"value,omitempty"`
}

func NewGlobalAsgn(name string, value Node) *GlobalAsgnNode {
	return &GlobalAsgnNode{nodeImpl: newNodeImpl(NodeGlobalAsgn), Name: name, Value: value}
}

type ClassVarNode struct {
	nodeImpl
	Name string `json:"name"`
}

func NewClassVar(name string) *ClassVarNode {
	return &ClassVarNode{nodeImpl: newNodeImpl(NodeClassVar), Name: name}
}

type ClassVarAsgnNode struct {
	nodeImpl
	assignableMarker
	Name  string `json:"name"`
	Value Node   `json:"value,omitempty"`
}

func NewClassVarAsgn(name string, value Node) *ClassVarAsgnNode {
	return &ClassVarAsgnNode{nodeImpl: newNodeImpl(NodeClassVarAsgn), Name: name, Value: value}
}

// ClassVarDeclNode is a class variable assignment directly in a class body.
type ClassVarDeclNode struct {
	nodeImpl
	assignableMarker
	Name  string `json:"name"`
	Value Node   `json:"value,omitempty"`
}

func NewClassVarDecl(name string, value Node) *ClassVarDeclNode {
	return &ClassVarDeclNode{nodeImpl: newNodeImpl(NodeClassVarDecl), Name: name, Value: value}
}

type ConstNode struct {
	nodeImpl
	Name string `json:"name"`
}

func NewConst(name string) *ConstNode {
	return &ConstNode{nodeImpl: newNodeImpl(NodeConst), Name: name}
}

// Colon2Node is `Left::Name`. A nil Left means the name is resolved
// lexically; it only appears that way as a class or module path.
type Colon2Node struct {
	nodeImpl
	Left Node   `json:"left,omitempty"`
	Name string `json:"name"`
}

func NewColon2(left Node, name string) *Colon2Node {
	return &Colon2Node{nodeImpl: newNodeImpl(NodeColon2), Left: left, Name: name}
}

// Colon3Node is `::Name`.
type Colon3Node struct {
	nodeImpl
	Name string `json:"name"`
}

func NewColon3(name string) *Colon3Node {
	return &Colon3Node{nodeImpl: newNodeImpl(NodeColon3), Name: name}
}

type ConstDeclNode struct {
	nodeImpl
	assignableMarker
	Name  string `json:"name"`
	Path  Node   `json:"path,omitempty"`
	Value Node   `json:"value,omitempty"`
}

// NewConstDecl builds a constant assignment. Path is nil for a lexical
// assignment, a *Colon2Node for `M::A = v` or a *Colon3Node for `::A = v`.
func NewConstDecl(name string, path Node, value Node) *ConstDeclNode {
	return &ConstDeclNode{nodeImpl: newNodeImpl(NodeConstDecl), Name: name, Path: path, Value: value}
}

// BackRefNode is one of $&, $`, $', $+ or $~.
type BackRefNode struct {
	nodeImpl
	Kind byte `json:"kind"`
}

func NewBackRef(kind byte) *BackRefNode {
	return &BackRefNode{nodeImpl: newNodeImpl(NodeBackRef), Kind: kind}
}

func (n *BackRefNode) GlobalName() string { return "$" + string(n.Kind) }

type NthRefNode struct {
	nodeImpl
	N int `json:"n"`
}

func NewNthRef(n int) *NthRefNode {
	return &NthRefNode{nodeImpl: newNodeImpl(NodeNthRef), N: n}
}

func (n *NthRefNode) GlobalName() string { return fmt.Sprintf("$%d", n.N) }

// Control flow

type AndNode struct {
	nodeImpl
	First  Node `json:"first"`
	Second Node `json:"second"`
}

func NewAnd(first, second Node) *AndNode {
	return &AndNode{nodeImpl: newNodeImpl(NodeAnd), First: first, Second: second}
}

type OrNode struct {
	nodeImpl
	First  Node `json:"first"`
	Second Node `json:"second"`
}

func NewOr(first, second Node) *OrNode {
	return &OrNode{nodeImpl: newNodeImpl(NodeOr), First: first, Second: second}
}

type NotNode struct {
	nodeImpl
	Condition Node `json:"condition"`
}

func NewNot(condition Node) *NotNode {
	return &NotNode{nodeImpl: newNodeImpl(NodeNot), Condition: condition}
}

type IfNode struct {
	nodeImpl
	Condition Node `json:"condition"`
	Then      Node `json:"then,omitempty"`
	Else      Node `json:"else,omitempty"`
}

func NewIf(condition, then, els Node) *IfNode {
	return &IfNode{nodeImpl: newNodeImpl(NodeIf), Condition: condition, Then: then, Else: els}
}

// WhileNode is a pre-test loop when EvaluateAtStart is set and a
// `begin ... end while` post-test loop otherwise.
type WhileNode struct {
	nodeImpl
	Condition       Node `json:"condition"`
	Body            Node `json:"body,omitempty"`
	EvaluateAtStart bool `json:"evaluateAtStart"`
}

func NewWhile(condition, body Node, evaluateAtStart bool) *WhileNode {
	return &WhileNode{nodeImpl: newNodeImpl(NodeWhile), Condition: condition, Body: body, EvaluateAtStart: evaluateAtStart}
}

type UntilNode struct {
	nodeImpl
	Condition       Node `json:"condition"`
	Body            Node `json:"body,omitempty"`
	EvaluateAtStart bool `json:"evaluateAtStart"`
}

func NewUntil(condition, body Node, evaluateAtStart bool) *UntilNode {
	return &UntilNode{nodeImpl: newNodeImpl(NodeUntil), Condition: condition, Body: body, EvaluateAtStart: evaluateAtStart}
}

// CaseNode without a Subject tests each when expression for truthiness.
type CaseNode struct {
	nodeImpl
	Subject Node        `json:"subject,omitempty"`
	Whens   []*WhenNode `json:"whens"`
	Else    Node        `json:"else,omitempty"`
}

func NewCase(subject Node, whens []*WhenNode, els Node) *CaseNode {
	return &CaseNode{nodeImpl: newNodeImpl(NodeCase), Subject: subject, Whens: whens, Else: els}
}

type WhenNode struct {
	nodeImpl
	Expressions []Node `json:"expressions"`
	Body        Node   `json:"body,omitempty"`
}

func NewWhen(expressions []Node, body Node) *WhenNode {
	return &WhenNode{nodeImpl: newNodeImpl(NodeWhen), Expressions: expressions, Body: body}
}

// ForNode iterates Iter with `each`. Its body runs in Scope, a block scope
// that declares no variables of its own.
type ForNode struct {
	nodeImpl
	Var   Node   `json:"var"`
	Iter  Node   `json:"iter"`
	Body  Node   `json:"body,omitempty"`
	Scope *Scope `json:"-"`
}

func NewFor(variable, iter, body Node, scope *Scope) *ForNode {
	return &ForNode{nodeImpl: newNodeImpl(NodeFor), Var: variable, Iter: iter, Body: body, Scope: scope}
}

type BlockNode struct {
	nodeImpl
	Statements []Node `json:"statements"`
}

func NewBlock(statements []Node) *BlockNode {
	return &BlockNode{nodeImpl: newNodeImpl(NodeBlock), Statements: statements}
}

// NewlineNode marks the start of a source line.
type NewlineNode struct {
	nodeImpl
	Next Node `json:"next"`
}

func NewNewline(next Node) *NewlineNode {
	return &NewlineNode{nodeImpl: newNodeImpl(NodeNewline), Next: next}
}

type BeginNode struct {
	nodeImpl
	Body Node `json:"body,omitempty"`
}

func NewBegin(body Node) *BeginNode {
	return &BeginNode{nodeImpl: newNodeImpl(NodeBegin), Body: body}
}

type BreakNode struct {
	nodeImpl
	Value Node `json:"value,omitempty"`
}

func NewBreak(value Node) *BreakNode {
	return &BreakNode{nodeImpl: newNodeImpl(NodeBreak), Value: value}
}

type NextNode struct {
	nodeImpl
	Value Node `json:"value,omitempty"`
}

func NewNext(value Node) *NextNode {
	return &NextNode{nodeImpl: newNodeImpl(NodeNext), Value: value}
}

type RedoNode struct{ nodeImpl }

func NewRedo() *RedoNode { return &RedoNode{nodeImpl: newNodeImpl(NodeRedo)} }

type RetryNode struct{ nodeImpl }

func NewRetry() *RetryNode { return &RetryNode{nodeImpl: newNodeImpl(NodeRetry)} }

type ReturnNode struct {
	nodeImpl
	Value Node `json:"value,omitempty"`
}

func NewReturn(value Node) *ReturnNode {
	return &ReturnNode{nodeImpl: newNodeImpl(NodeReturn), Value: value}
}

// FlipNode is a flip-flop; its on/off state lives in a hidden local slot.
type FlipNode struct {
	nodeImpl
	Begin     Node `json:"begin"`
	End       Node `json:"end"`
	Exclusive bool `json:"exclusive"`
	Slot      int  `json:"slot"`
	Depth     int  `json:"depth"`
}

func NewFlip(begin, end Node, exclusive bool, slot, depth int) *FlipNode {
	return &FlipNode{nodeImpl: newNodeImpl(NodeFlip), Begin: begin, End: end, Exclusive: exclusive, Slot: slot, Depth: depth}
}

// MatchNode is a bare regexp in condition position, matched against $_.
type MatchNode struct {
	nodeImpl
	Regexp Node `json:"regexp"`
}

func NewMatch(regexp Node) *MatchNode {
	return &MatchNode{nodeImpl: newNodeImpl(NodeMatch), Regexp: regexp}
}

// Match2Node is `regexp =~ value` with a literal regexp on the left.
type Match2Node struct {
	nodeImpl
	Receiver Node `json:"receiver"`
	Value    Node `json:"value"`
}

func NewMatch2(receiver, value Node) *Match2Node {
	return &Match2Node{nodeImpl: newNodeImpl(NodeMatch2), Receiver: receiver, Value: value}
}

// Match3Node is `value =~ regexp` with a literal regexp on the right.
type Match3Node struct {
	nodeImpl
	Receiver Node `json:"receiver"`
	Value    Node `json:"value"`
}

func NewMatch3(receiver, value Node) *Match3Node {
	return &Match3Node{nodeImpl: newNodeImpl(NodeMatch3), Receiver: receiver, Value: value}
}

type DefinedNode struct {
	nodeImpl
	Expression Node `json:"expression"`
}

func NewDefined(expression Node) *DefinedNode {
	return &DefinedNode{nodeImpl: newNodeImpl(NodeDefined), Expression: expression}
}

// Calls

// CallNode has an explicit receiver. Args is nil, an *ArrayNode, or one of
// the variadic shapes (*SplatNode, *ArgsCatNode, *ArgsPushNode). Iter is nil,
// an *IterNode or a *BlockPassNode.
type CallNode struct {
	nodeImpl
	Receiver Node   `json:"receiver"`
	Name     string `json:"name"`
	Args     Node   `json:"args,omitempty"`
	Iter     Node   `json:"iter,omitempty"`
}

func NewCall(receiver Node, name string, args, iter Node) *CallNode {
	return &CallNode{nodeImpl: newNodeImpl(NodeCall), Receiver: receiver, Name: name, Args: args, Iter: iter}
}

// FCallNode calls a method on self with arguments or a block.
type FCallNode struct {
	nodeImpl
	Name string `json:"name"`
	Args Node   `json:"args,omitempty"`
	Iter Node   `json:"iter,omitempty"`
}

func NewFCall(name string, args, iter Node) *FCallNode {
	return &FCallNode{nodeImpl: newNodeImpl(NodeFCall), Name: name, Args: args, Iter: iter}
}

// VCallNode is a bare identifier that is not a known local variable.
type VCallNode struct {
	nodeImpl
	Name string `json:"name"`
}

func NewVCall(name string) *VCallNode {
	return &VCallNode{nodeImpl: newNodeImpl(NodeVCall), Name: name}
}

// AttrAssignNode is `recv.name = v` or `recv[i] = v`. Name carries the
// trailing `=`. Used as an expression, Args holds the index arguments
// followed by the assigned value; used as a target, the value is omitted.
type AttrAssignNode struct {
	nodeImpl
	assignableMarker
	Receiver Node   `json:"receiver"`
	Name     string `json:"name"`
	Args     Node   `json:"args,omitempty"`
}

func NewAttrAssign(receiver Node, name string, args Node) *AttrAssignNode {
	return &AttrAssignNode{nodeImpl: newNodeImpl(NodeAttrAssign), Receiver: receiver, Name: name, Args: args}
}

type SuperNode struct {
	nodeImpl
	Args Node `json:"args,omitempty"`
	Iter Node `json:"iter,omitempty"`
}

func NewSuper(args, iter Node) *SuperNode {
	return &SuperNode{nodeImpl: newNodeImpl(NodeSuper), Args: args, Iter: iter}
}

// ZSuperNode is a bare `super` that forwards the current arguments.
type ZSuperNode struct {
	nodeImpl
	Iter Node `json:"iter,omitempty"`
}

func NewZSuper(iter Node) *ZSuperNode {
	return &ZSuperNode{nodeImpl: newNodeImpl(NodeZSuper), Iter: iter}
}

type YieldNode struct {
	nodeImpl
	Args            Node `json:"args,omitempty"`
	ExpandArguments bool `json:"expandArguments"`
}

func NewYield(args Node, expand bool) *YieldNode {
	return &YieldNode{nodeImpl: newNodeImpl(NodeYield), Args: args, ExpandArguments: expand}
}

// BlockPassNode is `&expr` in argument position.
type BlockPassNode struct {
	nodeImpl
	Body Node `json:"body"`
}

func NewBlockPass(body Node) *BlockPassNode {
	return &BlockPassNode{nodeImpl: newNodeImpl(NodeBlockPass), Body: body}
}

type SplatNode struct {
	nodeImpl
	Value Node `json:"value"`
}

func NewSplat(value Node) *SplatNode {
	return &SplatNode{nodeImpl: newNodeImpl(NodeSplat), Value: value}
}

// ArgsCatNode concatenates an argument list with a splatted value.
type ArgsCatNode struct {
	nodeImpl
	First  Node `json:"first"`
	Second Node `json:"second"`
}

func NewArgsCat(first, second Node) *ArgsCatNode {
	return &ArgsCatNode{nodeImpl: newNodeImpl(NodeArgsCat), First: first, Second: second}
}

// ArgsPushNode appends a single value to a splatted argument list.
type ArgsPushNode struct {
	nodeImpl
	First  Node `json:"first"`
	Second Node `json:"second"`
}

func NewArgsPush(first, second Node) *ArgsPushNode {
	return &ArgsPushNode{nodeImpl: newNodeImpl(NodeArgsPush), First: first, Second: second}
}

// SValueNode collapses a splatted value: empty becomes nil and a single
// element becomes that element.
type SValueNode struct {
	nodeImpl
	Value Node `json:"value"`
}

func NewSValue(value Node) *SValueNode {
	return &SValueNode{nodeImpl: newNodeImpl(NodeSValue), Value: value}
}

type ToAryNode struct {
	nodeImpl
	Value Node `json:"value"`
}

func NewToAry(value Node) *ToAryNode {
	return &ToAryNode{nodeImpl: newNodeImpl(NodeToAry), Value: value}
}

// IterNode is a block literal attached to a call.
type IterNode struct {
	nodeImpl
	Args  *ArgsNode `json:"args,omitempty"`
	Body  Node      `json:"body,omitempty"`
	Scope *Scope    `json:"-"`
}

func NewIter(args *ArgsNode, body Node, scope *Scope) *IterNode {
	return &IterNode{nodeImpl: newNodeImpl(NodeIter), Args: args, Body: body, Scope: scope}
}

type LambdaNode struct {
	nodeImpl
	Args  *ArgsNode `json:"args,omitempty"`
	Body  Node      `json:"body,omitempty"`
	Scope *Scope    `json:"-"`
}

func NewLambda(args *ArgsNode, body Node, scope *Scope) *LambdaNode {
	return &LambdaNode{nodeImpl: newNodeImpl(NodeLambda), Args: args, Body: body, Scope: scope}
}

// Compound assignment

// MultipleAsgnNode is `head..., *rest, post... = value`. Rest is nil, an
// assignable target, or a *StarNode for an anonymous splat. When used as a
// nested target, Value is nil.
type MultipleAsgnNode struct {
	nodeImpl
	assignableMarker
	Head  []Node `json:"head,omitempty"`
	Rest  Node   `json:"rest,omitempty"`
	Post  []Node `json:"post,omitempty"`
	Value Node   `json:"value,omitempty"`
}

func NewMultipleAsgn(head []Node, rest Node, post []Node, value Node) *MultipleAsgnNode {
	return &MultipleAsgnNode{nodeImpl: newNodeImpl(NodeMultipleAsgn), Head: head, Rest: rest, Post: post, Value: value}
}

// OpAsgnNode is `receiver.attribute op= value`.
type OpAsgnNode struct {
	nodeImpl
	Receiver  Node   `json:"receiver"`
	Attribute string `json:"attribute"`
	Operator  string `json:"operator"`
	Value     Node   `json:"value"`
}

func NewOpAsgn(receiver Node, attribute, operator string, value Node) *OpAsgnNode {
	return &OpAsgnNode{nodeImpl: newNodeImpl(NodeOpAsgn), Receiver: receiver, Attribute: attribute, Operator: operator, Value: value}
}

func (n *OpAsgnNode) AttributeAssign() string { return n.Attribute + "=" }

// OpAsgnOrNode is `a ||= b`: First reads the target, Second assigns it.
type OpAsgnOrNode struct {
	nodeImpl
	First  Node `json:"first"`
	Second Node `json:"second"`
}

func NewOpAsgnOr(first, second Node) *OpAsgnOrNode {
	return &OpAsgnOrNode{nodeImpl: newNodeImpl(NodeOpAsgnOr), First: first, Second: second}
}

type OpAsgnAndNode struct {
	nodeImpl
	First  Node `json:"first"`
	Second Node `json:"second"`
}

func NewOpAsgnAnd(first, second Node) *OpAsgnAndNode {
	return &OpAsgnAndNode{nodeImpl: newNodeImpl(NodeOpAsgnAnd), First: first, Second: second}
}

// OpElementAsgnNode is `receiver[args] op= value`.
type OpElementAsgnNode struct {
	nodeImpl
	Receiver Node   `json:"receiver"`
	Args     Node   `json:"args"`
	Operator string `json:"operator"`
	Value    Node   `json:"value"`
}

func NewOpElementAsgn(receiver, args Node, operator string, value Node) *OpElementAsgnNode {
	return &OpElementAsgnNode{nodeImpl: newNodeImpl(NodeOpElementAsgn), Receiver: receiver, Args: args, Operator: operator, Value: value}
}

// StarNode is the anonymous `*` of a multiple assignment.
type StarNode struct {
	nodeImpl
	assignableMarker
}

func NewStar() *StarNode { return &StarNode{nodeImpl: newNodeImpl(NodeStar)} }

// Definitions

type DefnNode struct {
	nodeImpl
	Name  string    `json:"name"`
	Args  *ArgsNode `json:"args,omitempty"`
	Body  Node      `json:"body,omitempty"`
	Scope *Scope    `json:"-"`
}

func NewDefn(name string, args *ArgsNode, body Node, scope *Scope) *DefnNode {
	return &DefnNode{nodeImpl: newNodeImpl(NodeDefn), Name: name, Args: args, Body: body, Scope: scope}
}

type DefsNode struct {
	nodeImpl
	Receiver Node      `json:"receiver"`
	Name     string    `json:"name"`
	Args     *ArgsNode `json:"args,omitempty"`
	Body     Node      `json:"body,omitempty"`
	Scope    *Scope    `json:"-"`
}

func NewDefs(receiver Node, name string, args *ArgsNode, body Node, scope *Scope) *DefsNode {
	return &DefsNode{nodeImpl: newNodeImpl(NodeDefs), Receiver: receiver, Name: name, Args: args, Body: body, Scope: scope}
}

// ClassNode's Path is a *Colon2Node (Left nil for a lexical name) or a
// *Colon3Node.
type ClassNode struct {
	nodeImpl
	Path  Node   `json:"path"`
	Super Node   `json:"super,omitempty"`
	Body  Node   `json:"body,omitempty"`
	Scope *Scope `json:"-"`
}

func NewClass(path, super, body Node, scope *Scope) *ClassNode {
	return &ClassNode{nodeImpl: newNodeImpl(NodeClass), Path: path, Super: super, Body: body, Scope: scope}
}

type ModuleNode struct {
	nodeImpl
	Path  Node   `json:"path"`
	Body  Node   `json:"body,omitempty"`
	Scope *Scope `json:"-"`
}

func NewModule(path, body Node, scope *Scope) *ModuleNode {
	return &ModuleNode{nodeImpl: newNodeImpl(NodeModule), Path: path, Body: body, Scope: scope}
}

// SClassNode is `class << receiver`.
type SClassNode struct {
	nodeImpl
	Receiver Node   `json:"receiver"`
	Body     Node   `json:"body,omitempty"`
	Scope    *Scope `json:"-"`
}

func NewSClass(receiver, body Node, scope *Scope) *SClassNode {
	return &SClassNode{nodeImpl: newNodeImpl(NodeSClass), Receiver: receiver, Body: body, Scope: scope}
}

// PathName returns the final name of a class or module path.
func PathName(path Node) string {
	switch p := path.(type) {
	case *Colon2Node:
		return p.Name
	case *Colon3Node:
		return p.Name
	case *ConstNode:
		return p.Name
	default:
		return ""
	}
}

type AliasNode struct {
	nodeImpl
	NewName string `json:"newName"`
	OldName string `json:"oldName"`
}

func NewAlias(newName, oldName string) *AliasNode {
	return &AliasNode{nodeImpl: newNodeImpl(NodeAlias), NewName: newName, OldName: oldName}
}

// VAliasNode aliases a global variable.
type VAliasNode struct {
	nodeImpl
	NewName string `json:"newName"`
	OldName string `json:"oldName"`
}

func NewVAlias(newName, oldName string) *VAliasNode {
	return &VAliasNode{nodeImpl: newNodeImpl(NodeVAlias), NewName: newName, OldName: oldName}
}

type UndefNode struct {
	nodeImpl
	Name string `json:"name"`
}

func NewUndef(name string) *UndefNode {
	return &UndefNode{nodeImpl: newNodeImpl(NodeUndef), Name: name}
}

// PreExeNode is a BEGIN block.
type PreExeNode struct {
	nodeImpl
	Body Node `json:"body,omitempty"`
}

func NewPreExe(body Node) *PreExeNode {
	return &PreExeNode{nodeImpl: newNodeImpl(NodePreExe), Body: body}
}

// PostExeNode is an END block; its body becomes a closure run at exit.
type PostExeNode struct {
	nodeImpl
	Body  Node   `json:"body,omitempty"`
	Scope *Scope `json:"-"`
}

func NewPostExe(body Node, scope *Scope) *PostExeNode {
	return &PostExeNode{nodeImpl: newNodeImpl(NodePostExe), Body: body, Scope: scope}
}

// Parameters

// ArgsNode is a method or block parameter list. Required entries are
// *ArgumentNode values, or *MultipleAsgnNode for destructuring block
// parameters.
type ArgsNode struct {
	nodeImpl
	Required []Node        `json:"required,omitempty"`
	Optional []*OptArgNode `json:"optional,omitempty"`
	Rest     *RestArgNode  `json:"rest,omitempty"`
	Block    *BlockArgNode `json:"block,omitempty"`
}

func NewArgs(required []Node, optional []*OptArgNode, rest *RestArgNode, block *BlockArgNode) *ArgsNode {
	return &ArgsNode{nodeImpl: newNodeImpl(NodeArgs), Required: required, Optional: optional, Rest: rest, Block: block}
}

// RequiredCount is zero for a nil list.
func (n *ArgsNode) RequiredCount() int {
	if n == nil {
		return 0
	}
	return len(n.Required)
}

func (n *ArgsNode) OptionalCount() int {
	if n == nil {
		return 0
	}
	return len(n.Optional)
}

func (n *ArgsNode) HasRest() bool { return n != nil && n.Rest != nil }

type ArgumentNode struct {
	nodeImpl
	Name string `json:"name"`
	Slot int    `json:"slot"`
}

func NewArgument(name string, slot int) *ArgumentNode {
	return &ArgumentNode{nodeImpl: newNodeImpl(NodeArgument), Name: name, Slot: slot}
}

// OptArgNode wraps the assignment that binds the parameter to its default.
type OptArgNode struct {
	nodeImpl
	Assignment Node `json:"assignment"`
}

func NewOptArg(assignment Node) *OptArgNode {
	return &OptArgNode{nodeImpl: newNodeImpl(NodeOptArg), Assignment: assignment}
}

// RestArgNode has Slot -1 when the rest parameter is anonymous.
type RestArgNode struct {
	nodeImpl
	Name string `json:"name,omitempty"`
	Slot int    `json:"slot"`
}

func NewRestArg(name string, slot int) *RestArgNode {
	return &RestArgNode{nodeImpl: newNodeImpl(NodeRestArg), Name: name, Slot: slot}
}

type BlockArgNode struct {
	nodeImpl
	Name string `json:"name"`
	Slot int    `json:"slot"`
}

func NewBlockArg(name string, slot int) *BlockArgNode {
	return &BlockArgNode{nodeImpl: newNodeImpl(NodeBlockArg), Name: name, Slot: slot}
}

// Exceptions and structure

// RescueNode is `begin body rescue ... else ... end`.
type RescueNode struct {
	nodeImpl
	Body   Node            `json:"body,omitempty"`
	Rescue *RescueBodyNode `json:"rescue,omitempty"`
	Else   Node            `json:"else,omitempty"`
}

func NewRescue(body Node, rescue *RescueBodyNode, els Node) *RescueNode {
	return &RescueNode{nodeImpl: newNodeImpl(NodeRescue), Body: body, Rescue: rescue, Else: els}
}

// RescueBodyNode is one rescue clause; Next chains the following clause.
// A nil Exceptions list matches StandardError.
type RescueBodyNode struct {
	nodeImpl
	Exceptions Node            `json:"exceptions,omitempty"`
	Body       Node            `json:"body,omitempty"`
	Next       *RescueBodyNode `json:"next,omitempty"`
}

func NewRescueBody(exceptions, body Node, next *RescueBodyNode) *RescueBodyNode {
	return &RescueBodyNode{nodeImpl: newNodeImpl(NodeRescueBody), Exceptions: exceptions, Body: body, Next: next}
}

type EnsureNode struct {
	nodeImpl
	Body   Node `json:"body,omitempty"`
	Ensure Node `json:"ensure,omitempty"`
}

func NewEnsure(body, ensure Node) *EnsureNode {
	return &EnsureNode{nodeImpl: newNodeImpl(NodeEnsure), Body: body, Ensure: ensure}
}

type RootNode struct {
	nodeImpl
	File  string `json:"file,omitempty"`
	Body  Node   `json:"body,omitempty"`
	Scope *Scope `json:"-"`
}

func NewRoot(file string, body Node, scope *Scope) *RootNode {
	return &RootNode{nodeImpl: newNodeImpl(NodeRoot), File: file, Body: body, Scope: scope}
}

// UnknownNode stands in for syntax the front end could not translate.
type UnknownNode struct {
	nodeImpl
	Name     string `json:"name"`
	Children []Node `json:"children,omitempty"`
}

func NewUnknown(name string, children []Node) *UnknownNode {
	return &UnknownNode{nodeImpl: newNodeImpl(NodeUnknown), Name: name, Children: children}
}
