package ast

// Children returns the direct child nodes of node in evaluation order,
// skipping absent children.
func Children(node Node) []Node {
	var out []Node
	add := func(nodes ...Node) {
		for _, n := range nodes {
			if n != nil && !isNilNode(n) {
				out = append(out, n)
			}
		}
	}
	switch n := node.(type) {
	case *DStrNode:
		add(n.Parts...)
	case *DSymbolNode:
		add(n.Parts...)
	case *DRegexpNode:
		add(n.Parts...)
	case *DXStrNode:
		add(n.Parts...)
	case *EvStrNode:
		add(n.Body)
	case *ArrayNode:
		add(n.Elements...)
	case *HashNode:
		add(n.Pairs...)
	case *DotNode:
		add(n.Begin, n.End)
	case *LocalAsgnNode:
		add(n.Value)
	case *DAsgnNode:
		add(n.Value)
	case *InstAsgnNode:
		add(n.Value)
	case *GlobalAsgnNode:
		add(n.Value)
	case *ClassVarAsgnNode:
		add(n.Value)
	case *ClassVarDeclNode:
		add(n.Value)
	case *Colon2Node:
		add(n.Left)
	case *ConstDeclNode:
		add(n.Path, n.Value)
	case *AndNode:
		add(n.First, n.Second)
	case *OrNode:
		add(n.First, n.Second)
	case *NotNode:
		add(n.Condition)
	case *IfNode:
		add(n.Condition, n.Then, n.Else)
	case *WhileNode:
		add(n.Condition, n.Body)
	case *UntilNode:
		add(n.Condition, n.Body)
	case *CaseNode:
		add(n.Subject)
		for _, w := range n.Whens {
			add(w)
		}
		add(n.Else)
	case *WhenNode:
		add(n.Expressions...)
		add(n.Body)
	case *ForNode:
		add(n.Iter, n.Var, n.Body)
	case *BlockNode:
		add(n.Statements...)
	case *NewlineNode:
		add(n.Next)
	case *BeginNode:
		add(n.Body)
	case *BreakNode:
		add(n.Value)
	case *NextNode:
		add(n.Value)
	case *ReturnNode:
		add(n.Value)
	case *FlipNode:
		add(n.Begin, n.End)
	case *MatchNode:
		add(n.Regexp)
	case *Match2Node:
		add(n.Receiver, n.Value)
	case *Match3Node:
		add(n.Receiver, n.Value)
	case *DefinedNode:
		add(n.Expression)
	case *CallNode:
		add(n.Receiver, n.Args, n.Iter)
	case *FCallNode:
		add(n.Args, n.Iter)
	case *AttrAssignNode:
		add(n.Receiver, n.Args)
	case *SuperNode:
		add(n.Args, n.Iter)
	case *ZSuperNode:
		add(n.Iter)
	case *YieldNode:
		add(n.Args)
	case *BlockPassNode:
		add(n.Body)
	case *SplatNode:
		add(n.Value)
	case *ArgsCatNode:
		add(n.First, n.Second)
	case *ArgsPushNode:
		add(n.First, n.Second)
	case *SValueNode:
		add(n.Value)
	case *ToAryNode:
		add(n.Value)
	case *IterNode:
		if n.Args != nil {
			add(n.Args)
		}
		add(n.Body)
	case *LambdaNode:
		if n.Args != nil {
			add(n.Args)
		}
		add(n.Body)
	case *MultipleAsgnNode:
		add(n.Head...)
		add(n.Rest)
		add(n.Post...)
		add(n.Value)
	case *OpAsgnNode:
		add(n.Receiver, n.Value)
	case *OpAsgnOrNode:
		add(n.First, n.Second)
	case *OpAsgnAndNode:
		add(n.First, n.Second)
	case *OpElementAsgnNode:
		add(n.Receiver, n.Args, n.Value)
	case *DefnNode:
		if n.Args != nil {
			add(n.Args)
		}
		add(n.Body)
	case *DefsNode:
		add(n.Receiver)
		if n.Args != nil {
			add(n.Args)
		}
		add(n.Body)
	case *ClassNode:
		add(n.Path, n.Super, n.Body)
	case *ModuleNode:
		add(n.Path, n.Body)
	case *SClassNode:
		add(n.Receiver, n.Body)
	case *PreExeNode:
		add(n.Body)
	case *PostExeNode:
		add(n.Body)
	case *ArgsNode:
		add(n.Required...)
		for _, opt := range n.Optional {
			add(opt)
		}
		if n.Rest != nil {
			add(n.Rest)
		}
		if n.Block != nil {
			add(n.Block)
		}
	case *OptArgNode:
		add(n.Assignment)
	case *RescueNode:
		add(n.Body)
		if n.Rescue != nil {
			add(n.Rescue)
		}
		add(n.Else)
	case *RescueBodyNode:
		add(n.Exceptions, n.Body)
		if n.Next != nil {
			add(n.Next)
		}
	case *EnsureNode:
		add(n.Body, n.Ensure)
	case *RootNode:
		add(n.Body)
	case *UnknownNode:
		add(n.Children...)
	}
	return out
}

// Walk visits node and its descendants depth first. Returning false from
// visit skips the node's children.
func Walk(node Node, visit func(Node) bool) {
	if node == nil || isNilNode(node) {
		return
	}
	if !visit(node) {
		return
	}
	for _, child := range Children(node) {
		Walk(child, visit)
	}
}

// isNilNode reports a typed nil pointer stored in a Node interface.
func isNilNode(n Node) bool {
	switch v := n.(type) {
	case *ArgsNode:
		return v == nil
	case *RescueBodyNode:
		return v == nil
	case *IterNode:
		return v == nil
	case *WhenNode:
		return v == nil
	case *OptArgNode:
		return v == nil
	case *RestArgNode:
		return v == nil
	case *BlockArgNode:
		return v == nil
	case *ArrayNode:
		return v == nil
	}
	return false
}

// IsNil reports whether n is absent, including a typed nil pointer.
func IsNil(n Node) bool {
	return n == nil || isNilNode(n)
}

// AlwaysTrue reports literal shapes whose value is truthy without evaluation.
func AlwaysTrue(n Node) bool {
	switch n.(type) {
	case *TrueNode, *FixnumNode, *BignumNode, *FloatNode, *StrNode, *DStrNode,
		*SymbolNode, *DSymbolNode, *RegexpNode, *DRegexpNode, *ArrayNode, *ZArrayNode,
		*HashNode, *DotNode, *XStrNode, *DXStrNode, *SelfNode, *LambdaNode:
		return true
	}
	return false
}

// AlwaysFalse reports literal shapes that are nil or false.
func AlwaysFalse(n Node) bool {
	if IsNil(n) {
		return true
	}
	switch n.(type) {
	case *NilNode, *FalseNode:
		return true
	}
	return false
}

// IsImmediate reports shapes that evaluate without side effects or dispatch.
func IsImmediate(n Node) bool {
	switch n.(type) {
	case *NilNode, *TrueNode, *FalseNode, *SelfNode, *FixnumNode, *BignumNode,
		*FloatNode, *StrNode, *SymbolNode, *RegexpNode, *ZArrayNode,
		*LocalVarNode, *DVarNode, *InstVarNode, *GlobalVarNode:
		return true
	}
	return false
}

// Unwrap strips Newline markers.
func Unwrap(n Node) Node {
	for {
		nl, ok := n.(*NewlineNode)
		if !ok {
			return n
		}
		n = nl.Next
	}
}
