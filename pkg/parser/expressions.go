package parser

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"rblower/compiler-go/pkg/ast"
)

func (c *parseContext) expressions(nodes []*sitter.Node) ([]ast.Node, error) {
	out := make([]ast.Node, 0, len(nodes))
	for _, n := range nodes {
		expr, err := c.expression(n)
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
	return out, nil
}

func (c *parseContext) expression(n *sitter.Node) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind() {
	// literals
	case "nil":
		return c.at(ast.NewNil(), n), nil
	case "true":
		return c.at(ast.NewTrue(), n), nil
	case "false":
		return c.at(ast.NewFalse(), n), nil
	case "self":
		return c.at(ast.NewSelf(), n), nil
	case "integer":
		return c.integer(n, c.text(n))
	case "float":
		return c.float(n, c.text(n))
	case "line":
		return c.at(ast.NewFixnum(int64(n.StartPosition().Row)+1), n), nil
	case "file":
		return c.at(ast.NewStr(c.file), n), nil
	case "string", "bare_string":
		return c.str(n)
	case "chained_string":
		return c.chainedString(n)
	case "character":
		return c.at(ast.NewStr(unescape(strings.TrimPrefix(c.text(n), "?"))), n), nil
	case "simple_symbol":
		return c.at(ast.NewSymbol(strings.TrimPrefix(c.text(n), ":")), n), nil
	case "hash_key_symbol":
		return c.at(ast.NewSymbol(c.text(n)), n), nil
	case "delimited_symbol", "bare_symbol":
		return c.symbol(n)
	case "regex":
		return c.regex(n)
	case "subshell":
		return c.subshell(n)
	case "string_array", "symbol_array":
		elements, err := c.expressions(c.namedChildren(n))
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewArray(elements), n), nil
	case "array":
		elements, err := c.argumentItems(c.namedChildren(n))
		if err != nil {
			return nil, err
		}
		if len(elements) == 0 {
			return c.at(ast.NewZArray(), n), nil
		}
		return c.at(ast.NewArray(elements), n), nil
	case "hash":
		return c.hash(n, c.namedChildren(n))
	case "range":
		return c.rangeNode(n)
	case "interpolation":
		body, err := c.statements(c.namedChildren(n))
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewEvStr(body), n), nil

	// variables
	case "identifier":
		name := c.text(n)
		if v := c.readVar(name); v != nil {
			return c.at(v, n), nil
		}
		return c.at(ast.NewVCall(name), n), nil
	case "instance_variable":
		return c.at(ast.NewInstVar(c.text(n)), n), nil
	case "class_variable":
		return c.at(ast.NewClassVar(c.text(n)), n), nil
	case "global_variable":
		return c.globalVar(n), nil
	case "constant":
		return c.at(ast.NewConst(c.text(n)), n), nil
	case "scope_resolution":
		name := c.text(n.ChildByFieldName("name"))
		scopeNode := n.ChildByFieldName("scope")
		if scopeNode == nil {
			return c.at(ast.NewColon3(name), n), nil
		}
		left, err := c.expression(scopeNode)
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewColon2(left, name), n), nil
	case "super":
		return c.at(ast.NewZSuper(nil), n), nil

	// assignment
	case "assignment":
		return c.assignment(n)
	case "operator_assignment":
		return c.operatorAssignment(n)

	// operators
	case "binary":
		return c.binary(n)
	case "unary":
		return c.unary(n)
	case "conditional":
		cond, err := c.condition(n.ChildByFieldName("condition"))
		if err != nil {
			return nil, err
		}
		then, err := c.expression(n.ChildByFieldName("consequence"))
		if err != nil {
			return nil, err
		}
		els, err := c.expression(n.ChildByFieldName("alternative"))
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewIf(cond, then, els), n), nil
	case "parenthesized_statements":
		body, err := c.statements(c.namedChildren(n))
		if err != nil {
			return nil, err
		}
		if body == nil {
			return c.at(ast.NewNil(), n), nil
		}
		return body, nil

	// control flow
	case "if":
		return c.ifNode(n, false)
	case "unless":
		return c.ifNode(n, true)
	case "if_modifier", "unless_modifier", "while_modifier", "until_modifier":
		return c.modifier(n)
	case "while", "until":
		return c.loop(n)
	case "case":
		return c.caseNode(n)
	case "for":
		return c.forNode(n)
	case "begin":
		body, err := c.beginBody(n)
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewBegin(body), n), nil
	case "rescue_modifier":
		body, err := c.expression(n.ChildByFieldName("body"))
		if err != nil {
			return nil, err
		}
		handler, err := c.expression(n.ChildByFieldName("handler"))
		if err != nil {
			return nil, err
		}
		clause := ast.At(ast.NewRescueBody(nil, handler, nil), c.pos(n))
		return c.at(ast.NewRescue(body, clause, nil), n), nil
	case "return", "break", "next":
		value, err := c.jumpValue(n)
		if err != nil {
			return nil, err
		}
		switch n.Kind() {
		case "return":
			return c.at(ast.NewReturn(value), n), nil
		case "break":
			return c.at(ast.NewBreak(value), n), nil
		}
		return c.at(ast.NewNext(value), n), nil
	case "redo":
		return c.at(ast.NewRedo(), n), nil
	case "retry":
		return c.at(ast.NewRetry(), n), nil
	case "yield":
		return c.yield(n)

	// calls and closures
	case "call":
		return c.call(n)
	case "element_reference":
		return c.elementReference(n)
	case "lambda":
		return c.closure(n)

	// definitions
	case "method", "singleton_method":
		return c.method(n)
	case "class":
		return c.class(n)
	case "module":
		return c.module(n)
	case "singleton_class":
		return c.singletonClass(n)
	case "alias":
		return c.alias(n)
	case "undef":
		return c.undef(n)
	case "begin_block":
		body, err := c.statements(c.namedChildren(n))
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewPreExe(body), n), nil
	case "end_block":
		return c.postExe(n)

	case "empty_statement":
		return c.at(ast.NewNil(), n), nil
	}
	// pattern matching, rationals, complex numbers, heredocs and the rest
	return c.unknown(n), nil
}

func (c *parseContext) globalVar(n *sitter.Node) ast.Node {
	name := c.text(n)
	if len(name) == 2 {
		switch name[1] {
		case '&', '`', '\'', '+', '~':
			return c.at(ast.NewBackRef(name[1]), n)
		}
	}
	if len(name) > 1 && name[1] >= '1' && name[1] <= '9' {
		nth := 0
		for _, r := range name[1:] {
			if r < '0' || r > '9' {
				return c.at(ast.NewGlobalVar(name), n)
			}
			nth = nth*10 + int(r-'0')
		}
		return c.at(ast.NewNthRef(nth), n)
	}
	return c.at(ast.NewGlobalVar(name), n)
}

func (c *parseContext) rangeNode(n *sitter.Node) (ast.Node, error) {
	begin, err := c.expression(n.ChildByFieldName("begin"))
	if err != nil {
		return nil, err
	}
	end, err := c.expression(n.ChildByFieldName("end"))
	if err != nil {
		return nil, err
	}
	exclusive := c.text(n.ChildByFieldName("operator")) == "..."
	return c.at(ast.NewDot(begin, end, exclusive), n), nil
}

func (c *parseContext) hash(n *sitter.Node, items []*sitter.Node) (ast.Node, error) {
	var pairs []ast.Node
	for _, item := range items {
		if item.Kind() != "pair" {
			return c.unknown(item), nil
		}
		valueNode := item.ChildByFieldName("value")
		if valueNode == nil {
			// shorthand `{x:}`
			return c.unknown(item), nil
		}
		key, err := c.expression(item.ChildByFieldName("key"))
		if err != nil {
			return nil, err
		}
		// "key": value is a symbol key
		if s, ok := key.(*ast.StrNode); ok && !hasToken(item, "=>") {
			key = c.at(ast.NewSymbol(s.Value), item)
		}
		value, err := c.expression(valueNode)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, key, value)
	}
	return c.at(ast.NewHash(pairs), n), nil
}

func hasToken(n *sitter.Node, token string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil && !child.IsNamed() && child.Kind() == token {
			return true
		}
	}
	return false
}

// Operators

func (c *parseContext) binary(n *sitter.Node) (ast.Node, error) {
	left, err := c.expression(n.ChildByFieldName("left"))
	if err != nil {
		return nil, err
	}
	right, err := c.expression(n.ChildByFieldName("right"))
	if err != nil {
		return nil, err
	}
	op := c.text(n.ChildByFieldName("operator"))
	switch op {
	case "and", "&&":
		return c.at(ast.NewAnd(left, right), n), nil
	case "or", "||":
		return c.at(ast.NewOr(left, right), n), nil
	case "!~":
		return c.at(ast.NewNot(c.at(ast.NewCall(left, "=~", ast.NewArray([]ast.Node{right}), nil), n)), n), nil
	case "=~":
		if isRegexpLiteral(left) {
			return c.at(ast.NewMatch2(left, right), n), nil
		}
		if isRegexpLiteral(right) {
			return c.at(ast.NewMatch3(right, left), n), nil
		}
	}
	return c.at(ast.NewCall(left, op, ast.NewArray([]ast.Node{right}), nil), n), nil
}

func isRegexpLiteral(n ast.Node) bool {
	switch n.(type) {
	case *ast.RegexpNode, *ast.DRegexpNode:
		return true
	}
	return false
}

func (c *parseContext) unary(n *sitter.Node) (ast.Node, error) {
	op := c.text(n.ChildByFieldName("operator"))
	operandNode := n.ChildByFieldName("operand")
	if op == "-" && operandNode != nil {
		switch operandNode.Kind() {
		case "integer":
			return c.integer(n, "-"+c.text(operandNode))
		case "float":
			return c.float(n, "-"+c.text(operandNode))
		}
	}
	operand, err := c.expression(operandNode)
	if err != nil {
		return nil, err
	}
	switch op {
	case "!", "not":
		return c.at(ast.NewNot(operand), n), nil
	case "defined?":
		return c.at(ast.NewDefined(operand), n), nil
	case "-":
		return c.at(ast.NewCall(operand, "-@", nil, nil), n), nil
	case "+":
		return c.at(ast.NewCall(operand, "+@", nil, nil), n), nil
	}
	return c.at(ast.NewCall(operand, op, nil, nil), n), nil
}

// Calls

func (c *parseContext) call(n *sitter.Node) (ast.Node, error) {
	if op := n.ChildByFieldName("operator"); op != nil && c.text(op) == "&." {
		return c.unknown(n), nil
	}
	methodNode := n.ChildByFieldName("method")
	name := "call"
	if methodNode != nil {
		name = c.text(methodNode)
	}
	args, iter, err := c.arguments(n.ChildByFieldName("arguments"))
	if err != nil {
		return nil, err
	}
	if blockNode := n.ChildByFieldName("block"); blockNode != nil {
		if iter != nil {
			return nil, wrapParseError(c.file, blockNode, fmt.Errorf("both block argument and block given"))
		}
		if iter, err = c.closure(blockNode); err != nil {
			return nil, err
		}
	}

	receiverNode := n.ChildByFieldName("receiver")
	if methodNode != nil && methodNode.Kind() == "super" && receiverNode == nil {
		if n.ChildByFieldName("arguments") == nil {
			return c.at(ast.NewZSuper(iter), n), nil
		}
		return c.at(ast.NewSuper(args, iter), n), nil
	}
	if receiverNode == nil {
		if args == nil && iter == nil && n.ChildByFieldName("arguments") == nil {
			if v := c.readVar(name); v != nil {
				return c.at(v, n), nil
			}
			return c.at(ast.NewVCall(name), n), nil
		}
		return c.at(ast.NewFCall(name, args, iter), n), nil
	}
	receiver, err := c.expression(receiverNode)
	if err != nil {
		return nil, err
	}
	return c.at(ast.NewCall(receiver, name, args, iter), n), nil
}

func (c *parseContext) elementReference(n *sitter.Node) (ast.Node, error) {
	receiver, err := c.expression(n.ChildByFieldName("object"))
	if err != nil {
		return nil, err
	}
	args, iter, err := c.argumentList(c.unfieldedChildren(n, "object", "block"))
	if err != nil {
		return nil, err
	}
	if blockNode := n.ChildByFieldName("block"); blockNode != nil {
		if iter, err = c.closure(blockNode); err != nil {
			return nil, err
		}
	}
	return c.at(ast.NewCall(receiver, "[]", args, iter), n), nil
}

func (c *parseContext) yield(n *sitter.Node) (ast.Node, error) {
	children := c.namedChildren(n)
	if len(children) == 0 {
		return c.at(ast.NewYield(nil, false), n), nil
	}
	args, iter, err := c.arguments(children[0])
	if err != nil {
		return nil, err
	}
	if iter != nil {
		return nil, wrapParseError(c.file, n, fmt.Errorf("block argument in yield"))
	}
	if arr, ok := args.(*ast.ArrayNode); ok && len(arr.Elements) == 1 {
		if _, splat := arr.Elements[0].(*ast.SplatNode); !splat {
			return c.at(ast.NewYield(arr.Elements[0], false), n), nil
		}
	}
	return c.at(ast.NewYield(args, true), n), nil
}

// arguments converts an argument_list into the call's argument array and
// its block pass, either of which may be nil.
func (c *parseContext) arguments(n *sitter.Node) (ast.Node, ast.Node, error) {
	if n == nil {
		return nil, nil, nil
	}
	return c.argumentList(c.namedChildren(n))
}

func (c *parseContext) argumentList(items []*sitter.Node) (ast.Node, ast.Node, error) {
	var (
		plain []*sitter.Node
		iter  ast.Node
	)
	for _, item := range items {
		if item.Kind() == "block_argument" {
			children := c.namedChildren(item)
			if len(children) != 1 {
				return c.unknown(item), nil, nil
			}
			body, err := c.expression(children[0])
			if err != nil {
				return nil, nil, err
			}
			iter = c.at(ast.NewBlockPass(body), item)
			continue
		}
		plain = append(plain, item)
	}
	elements, err := c.argumentItems(plain)
	if err != nil {
		return nil, nil, err
	}
	if len(elements) == 0 {
		return nil, iter, nil
	}
	return ast.NewArray(elements), iter, nil
}

// argumentItems converts list elements. Splats stay inline as
// *ast.SplatNode; trailing `key: value` pairs collect into one hash.
func (c *parseContext) argumentItems(items []*sitter.Node) ([]ast.Node, error) {
	var (
		out   []ast.Node
		pairs []*sitter.Node
	)
	for _, item := range items {
		switch item.Kind() {
		case "pair":
			pairs = append(pairs, item)
			continue
		case "splat_argument":
			children := c.namedChildren(item)
			if len(children) != 1 {
				out = append(out, c.unknown(item))
				continue
			}
			value, err := c.expression(children[0])
			if err != nil {
				return nil, err
			}
			out = append(out, c.at(ast.NewSplat(value), item))
		case "hash_splat_argument", "forward_argument", "block_argument":
			out = append(out, c.unknown(item))
		default:
			expr, err := c.expression(item)
			if err != nil {
				return nil, err
			}
			out = append(out, expr)
		}
	}
	if len(pairs) > 0 {
		h, err := c.hash(pairs[0], pairs)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Assignment

func (c *parseContext) assignment(n *sitter.Node) (ast.Node, error) {
	left := n.ChildByFieldName("left")
	rightNode := n.ChildByFieldName("right")
	if left == nil || rightNode == nil {
		return nil, wrapParseError(c.file, n, fmt.Errorf("assignment without both sides"))
	}
	if left.Kind() == "left_assignment_list" {
		// the targets are declared before the value is evaluated
		target, err := c.multipleTarget(left)
		if err != nil {
			return nil, err
		}
		value, err := c.assignedValue(rightNode, true)
		if err != nil {
			return nil, err
		}
		if m, ok := target.(*ast.MultipleAsgnNode); ok {
			m.Value = value
		}
		return c.at(target, n), nil
	}
	if left.Kind() == "identifier" {
		c.declare(c.text(left))
	}
	value, err := c.assignedValue(rightNode, false)
	if err != nil {
		return nil, err
	}
	target, err := c.assignTo(left, value)
	if err != nil {
		return nil, err
	}
	return c.at(target, n), nil
}

// assignedValue converts the right-hand side. A list becomes an array; a
// lone splat stays a splat.
func (c *parseContext) assignedValue(n *sitter.Node, multiple bool) (ast.Node, error) {
	switch n.Kind() {
	case "right_assignment_list":
		elements, err := c.argumentItems(c.namedChildren(n))
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewArray(elements), n), nil
	case "splat_argument":
		elements, err := c.argumentItems([]*sitter.Node{n})
		if err != nil {
			return nil, err
		}
		if multiple {
			return c.at(ast.NewArray(elements), n), nil
		}
		return elements[0], nil
	}
	value, err := c.expression(n)
	if err != nil {
		return nil, err
	}
	if multiple {
		return c.at(ast.NewToAry(value), n), nil
	}
	return value, nil
}

// assignTo builds the assignment of value to the target n. A nil value
// builds a bare target for multiple assignment and for loops.
func (c *parseContext) assignTo(n *sitter.Node, value ast.Node) (ast.Node, error) {
	if n == nil {
		return nil, fmt.Errorf("missing assignment target")
	}
	switch n.Kind() {
	case "identifier":
		return c.at(c.assignVar(c.text(n), value), n), nil
	case "instance_variable":
		return c.at(ast.NewInstAsgn(c.text(n), value), n), nil
	case "global_variable":
		return c.at(ast.NewGlobalAsgn(c.text(n), value), n), nil
	case "class_variable":
		if c.scope.Kind == ast.ScopeClass {
			return c.at(ast.NewClassVarDecl(c.text(n), value), n), nil
		}
		return c.at(ast.NewClassVarAsgn(c.text(n), value), n), nil
	case "constant":
		return c.at(ast.NewConstDecl(c.text(n), nil, value), n), nil
	case "scope_resolution":
		path, err := c.expression(n)
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewConstDecl(ast.PathName(path), path, value), n), nil
	case "call":
		if op := n.ChildByFieldName("operator"); op != nil && c.text(op) == "&." {
			return c.unknown(n), nil
		}
		receiver, err := c.expression(n.ChildByFieldName("receiver"))
		if err != nil {
			return nil, err
		}
		var args ast.Node
		if value != nil {
			args = ast.NewArray([]ast.Node{value})
		}
		name := c.text(n.ChildByFieldName("method")) + "="
		return c.at(ast.NewAttrAssign(receiver, name, args), n), nil
	case "element_reference":
		receiver, err := c.expression(n.ChildByFieldName("object"))
		if err != nil {
			return nil, err
		}
		index, err := c.argumentItems(c.unfieldedChildren(n, "object", "block"))
		if err != nil {
			return nil, err
		}
		if value != nil {
			index = append(index, value)
		}
		var args ast.Node
		if len(index) > 0 {
			args = ast.NewArray(index)
		}
		return c.at(ast.NewAttrAssign(receiver, "[]=", args), n), nil
	case "left_assignment_list", "destructured_left_assignment":
		return c.multipleTarget(n)
	case "rest_assignment":
		children := c.namedChildren(n)
		if len(children) == 0 {
			return c.at(ast.NewStar(), n), nil
		}
		return c.assignTo(children[0], value)
	}
	return c.unknown(n), nil
}

func (c *parseContext) multipleTarget(n *sitter.Node) (ast.Node, error) {
	var (
		head, post []ast.Node
		rest       ast.Node
	)
	for _, child := range c.namedChildren(n) {
		target, err := c.assignTo(child, nil)
		if err != nil {
			return nil, err
		}
		switch {
		case child.Kind() == "rest_assignment":
			if rest != nil {
				return c.unknown(child), nil
			}
			rest = target
		case rest != nil:
			post = append(post, target)
		default:
			head = append(head, target)
		}
	}
	return c.at(ast.NewMultipleAsgn(head, rest, post, nil), n), nil
}

func (c *parseContext) operatorAssignment(n *sitter.Node) (ast.Node, error) {
	left := n.ChildByFieldName("left")
	if left == nil {
		return nil, wrapParseError(c.file, n, fmt.Errorf("operator assignment without a target"))
	}
	op := strings.TrimSuffix(c.text(n.ChildByFieldName("operator")), "=")
	value, err := c.expression(n.ChildByFieldName("right"))
	if err != nil {
		return nil, err
	}

	switch left.Kind() {
	case "call":
		if o := left.ChildByFieldName("operator"); o != nil && c.text(o) == "&." {
			return c.unknown(n), nil
		}
		receiver, err := c.expression(left.ChildByFieldName("receiver"))
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewOpAsgn(receiver, c.text(left.ChildByFieldName("method")), op, value), n), nil
	case "element_reference":
		receiver, err := c.expression(left.ChildByFieldName("object"))
		if err != nil {
			return nil, err
		}
		index, err := c.argumentItems(c.unfieldedChildren(left, "object", "block"))
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewOpElementAsgn(receiver, ast.NewArray(index), op, value), n), nil
	}

	if left.Kind() == "identifier" {
		c.declare(c.text(left))
	}
	current, err := c.expression(left)
	if err != nil {
		return nil, err
	}
	switch op {
	case "||", "&&":
		assign, err := c.assignTo(left, value)
		if err != nil {
			return nil, err
		}
		if op == "||" {
			return c.at(ast.NewOpAsgnOr(current, assign), n), nil
		}
		return c.at(ast.NewOpAsgnAnd(current, assign), n), nil
	}
	combined := c.at(ast.NewCall(current, op, ast.NewArray([]ast.Node{value}), nil), n)
	return c.assignTo(left, combined)
}
