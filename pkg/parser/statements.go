package parser

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"rblower/compiler-go/pkg/ast"
)

// statements converts a statement list into nil, a single statement or a
// block, each statement marked with its source line.
func (c *parseContext) statements(nodes []*sitter.Node) (ast.Node, error) {
	out := make([]ast.Node, 0, len(nodes))
	for _, n := range nodes {
		switch n.Kind() {
		case "empty_statement", "uninterpreted", "comment":
			continue
		}
		stmt, err := c.expression(n)
		if err != nil {
			return nil, err
		}
		if stmt == nil {
			continue
		}
		out = append(out, ast.At(ast.NewNewline(stmt), c.pos(n)))
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	}
	return ast.NewBlock(out), nil
}

// body converts a node whose named children are statements (then, else,
// do, block_body, ensure...). A nil node yields a nil body.
func (c *parseContext) body(n *sitter.Node) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	return c.statements(c.namedChildren(n))
}

// beginBody handles the statement lists that may carry rescue, else and
// ensure clauses: begin blocks and method, class and do-block bodies.
func (c *parseContext) beginBody(n *sitter.Node) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	var (
		stmts      []*sitter.Node
		rescues    []*sitter.Node
		elseNode   *sitter.Node
		ensureNode *sitter.Node
	)
	for _, child := range c.namedChildren(n) {
		switch child.Kind() {
		case "rescue":
			rescues = append(rescues, child)
		case "else":
			elseNode = child
		case "ensure":
			ensureNode = child
		default:
			stmts = append(stmts, child)
		}
	}
	body, err := c.statements(stmts)
	if err != nil {
		return nil, err
	}
	var els ast.Node
	if elseNode != nil {
		if els, err = c.body(elseNode); err != nil {
			return nil, err
		}
	}
	if len(rescues) > 0 {
		var first, last *ast.RescueBodyNode
		for _, r := range rescues {
			clause, err := c.rescueClause(r)
			if err != nil {
				return nil, err
			}
			if first == nil {
				first = clause
			} else {
				last.Next = clause
			}
			last = clause
		}
		body = c.at(ast.NewRescue(body, first, els), n)
	} else if els != nil {
		body = seq(body, els)
	}
	if ensureNode != nil {
		ensure, err := c.body(ensureNode)
		if err != nil {
			return nil, err
		}
		body = c.at(ast.NewEnsure(body, ensure), n)
	}
	return body, nil
}

func (c *parseContext) rescueClause(n *sitter.Node) (*ast.RescueBodyNode, error) {
	var exceptions ast.Node
	if list := n.ChildByFieldName("exceptions"); list != nil {
		classes, err := c.expressions(c.namedChildren(list))
		if err != nil {
			return nil, err
		}
		exceptions = ast.NewArray(classes)
	}
	// `rescue E => e` binds $! before the clause body runs, so the body
	// already sees e as a local
	var bind ast.Node
	if variable := n.ChildByFieldName("variable"); variable != nil {
		children := c.namedChildren(variable)
		if len(children) != 1 {
			return nil, wrapParseError(c.file, variable, fmt.Errorf("rescue variable without a target"))
		}
		target, err := c.assignTo(children[0], ast.NewGlobalVar("$!"))
		if err != nil {
			return nil, err
		}
		bind = c.at(target, variable)
	}
	body, err := c.body(n.ChildByFieldName("body"))
	if err != nil {
		return nil, err
	}
	if bind != nil {
		body = seq(bind, body)
	}
	clause := ast.NewRescueBody(exceptions, body, nil)
	return ast.At(clause, c.pos(n)), nil
}

func seq(nodes ...ast.Node) ast.Node {
	out := make([]ast.Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if b, ok := n.(*ast.BlockNode); ok {
			out = append(out, b.Statements...)
			continue
		}
		out = append(out, n)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return ast.NewBlock(out)
}

// Conditionals and loops

func (c *parseContext) condition(n *sitter.Node) (ast.Node, error) {
	cond, err := c.expression(n)
	if err != nil {
		return nil, err
	}
	switch v := cond.(type) {
	case *ast.RegexpNode, *ast.DRegexpNode:
		return c.at(ast.NewMatch(v), n), nil
	case *ast.DotNode:
		slot, depth := c.declareHidden()
		return c.at(ast.NewFlip(v.Begin, v.End, v.Exclusive, slot, depth), n), nil
	}
	return cond, nil
}

func (c *parseContext) ifNode(n *sitter.Node, negate bool) (ast.Node, error) {
	cond, err := c.condition(n.ChildByFieldName("condition"))
	if err != nil {
		return nil, err
	}
	then, err := c.body(n.ChildByFieldName("consequence"))
	if err != nil {
		return nil, err
	}
	var els ast.Node
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		if alt.Kind() == "elsif" {
			els, err = c.ifNode(alt, false)
		} else {
			els, err = c.body(alt)
		}
		if err != nil {
			return nil, err
		}
	}
	if negate {
		then, els = els, then
	}
	return c.at(ast.NewIf(cond, then, els), n), nil
}

// modifier handles `body if cond` and friends.
func (c *parseContext) modifier(n *sitter.Node) (ast.Node, error) {
	cond, err := c.condition(n.ChildByFieldName("condition"))
	if err != nil {
		return nil, err
	}
	bodyNode := n.ChildByFieldName("body")
	body, err := c.expression(bodyNode)
	if err != nil {
		return nil, err
	}
	switch n.Kind() {
	case "if_modifier":
		return c.at(ast.NewIf(cond, body, nil), n), nil
	case "unless_modifier":
		return c.at(ast.NewIf(cond, nil, body), n), nil
	}
	// `begin ... end while cond` runs the body before the first test
	atStart := bodyNode.Kind() != "begin"
	if n.Kind() == "while_modifier" {
		return c.at(ast.NewWhile(cond, body, atStart), n), nil
	}
	return c.at(ast.NewUntil(cond, body, atStart), n), nil
}

func (c *parseContext) loop(n *sitter.Node) (ast.Node, error) {
	cond, err := c.condition(n.ChildByFieldName("condition"))
	if err != nil {
		return nil, err
	}
	body, err := c.body(n.ChildByFieldName("body"))
	if err != nil {
		return nil, err
	}
	if n.Kind() == "while" {
		return c.at(ast.NewWhile(cond, body, true), n), nil
	}
	return c.at(ast.NewUntil(cond, body, true), n), nil
}

func (c *parseContext) caseNode(n *sitter.Node) (ast.Node, error) {
	var subject ast.Node
	if value := n.ChildByFieldName("value"); value != nil {
		var err error
		if subject, err = c.expression(value); err != nil {
			return nil, err
		}
	}
	var (
		whens []*ast.WhenNode
		els   ast.Node
	)
	for _, child := range c.unfieldedChildren(n, "value") {
		switch child.Kind() {
		case "when":
			var exprs []ast.Node
			for _, pattern := range c.unfieldedChildren(child, "body") {
				inner := c.namedChildren(pattern)
				if len(inner) != 1 {
					return nil, wrapParseError(c.file, pattern, fmt.Errorf("when pattern without an expression"))
				}
				expr, err := c.expression(inner[0])
				if err != nil {
					return nil, err
				}
				exprs = append(exprs, expr)
			}
			body, err := c.body(child.ChildByFieldName("body"))
			if err != nil {
				return nil, err
			}
			whens = append(whens, ast.At(ast.NewWhen(exprs, body), c.pos(child)))
		case "else":
			body, err := c.body(child)
			if err != nil {
				return nil, err
			}
			els = body
		}
	}
	return c.at(ast.NewCase(subject, whens, els), n), nil
}

// forNode runs its body in a scope of its own that declares nothing: the
// loop variable and body locals belong to the enclosing scope.
func (c *parseContext) forNode(n *sitter.Node) (ast.Node, error) {
	valueNode := n.ChildByFieldName("value")
	if valueNode == nil || valueNode.NamedChildCount() != 1 {
		return nil, wrapParseError(c.file, n, fmt.Errorf("for loop without an iterable"))
	}
	iter, err := c.expression(valueNode.NamedChild(0))
	if err != nil {
		return nil, err
	}
	scope := ast.NewScope(ast.ScopeBlock, c.scope)
	c.transparent[scope] = true
	var variable, body ast.Node
	err = c.within(scope, func() error {
		var err error
		if variable, err = c.assignTo(n.ChildByFieldName("pattern"), nil); err != nil {
			return err
		}
		body, err = c.body(n.ChildByFieldName("body"))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.at(ast.NewFor(variable, iter, body, scope), n), nil
}

// jumpValue converts the optional argument list of return, break and next.
func (c *parseContext) jumpValue(n *sitter.Node) (ast.Node, error) {
	children := c.namedChildren(n)
	if len(children) == 0 {
		return nil, nil
	}
	args, iter, err := c.arguments(children[0])
	if err != nil {
		return nil, err
	}
	if iter != nil {
		return nil, wrapParseError(c.file, n, fmt.Errorf("block argument in %s", n.Kind()))
	}
	if arr, ok := args.(*ast.ArrayNode); ok && len(arr.Elements) == 1 {
		if _, splat := arr.Elements[0].(*ast.SplatNode); !splat {
			return arr.Elements[0], nil
		}
		return ast.NewSValue(arr), nil
	}
	return args, nil
}

// Definitions

func (c *parseContext) method(n *sitter.Node) (ast.Node, error) {
	name := methodName(c.text(n.ChildByFieldName("name")))
	scope := ast.NewScope(ast.ScopeMethod, nil)
	var (
		args        *ast.ArgsNode
		body        ast.Node
		unsupported *sitter.Node
	)
	err := c.within(scope, func() error {
		var err error
		args, unsupported, err = c.parameters(n.ChildByFieldName("parameters"), scope)
		if err != nil || unsupported != nil {
			return err
		}
		body, err = c.methodBody(n.ChildByFieldName("body"))
		return err
	})
	if err != nil {
		return nil, err
	}
	if unsupported != nil {
		return c.unknown(unsupported), nil
	}
	if n.Kind() == "singleton_method" {
		receiver, err := c.expression(n.ChildByFieldName("object"))
		if err != nil {
			return nil, err
		}
		return c.at(ast.NewDefs(receiver, name, args, body, scope), n), nil
	}
	return c.at(ast.NewDefn(name, args, body, scope), n), nil
}

// methodBody accepts both a body_statement and the single expression of
// an endless definition.
func (c *parseContext) methodBody(n *sitter.Node) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind() == "body_statement" {
		return c.beginBody(n)
	}
	return c.expression(n)
}

func methodName(text string) string {
	return strings.TrimPrefix(strings.TrimSpace(text), ":")
}

// parameters declares every parameter in scope. The returned node is the
// first parameter form the tree cannot express.
func (c *parseContext) parameters(n *sitter.Node, scope *ast.Scope) (*ast.ArgsNode, *sitter.Node, error) {
	if n == nil {
		return nil, nil, nil
	}
	var (
		required []ast.Node
		optional []*ast.OptArgNode
		rest     *ast.RestArgNode
		block    *ast.BlockArgNode
	)
	for i := uint(0); i < n.NamedChildCount(); i++ {
		p := n.NamedChild(i)
		if p == nil || p.Kind() == "comment" {
			continue
		}
		if n.FieldNameForNamedChild(uint32(i)) == "locals" {
			scope.Declare(c.text(p))
			continue
		}
		switch p.Kind() {
		case "identifier", "destructured_parameter":
			if len(optional) > 0 || rest != nil {
				return nil, p, nil
			}
			param, unsupported, err := c.requiredParameter(p, scope)
			if err != nil || unsupported != nil {
				return nil, unsupported, err
			}
			required = append(required, param)
		case "optional_parameter":
			if rest != nil {
				return nil, p, nil
			}
			name := c.text(p.ChildByFieldName("name"))
			scope.Declare(name)
			value, err := c.expression(p.ChildByFieldName("value"))
			if err != nil {
				return nil, nil, err
			}
			optional = append(optional, ast.At(ast.NewOptArg(c.at(c.assignVar(name, value), p)), c.pos(p)))
		case "splat_parameter":
			if nameNode := p.ChildByFieldName("name"); nameNode != nil {
				name := c.text(nameNode)
				rest = ast.NewRestArg(name, scope.Declare(name))
			} else {
				rest = ast.NewRestArg("", -1)
			}
		case "block_parameter":
			nameNode := p.ChildByFieldName("name")
			if nameNode == nil {
				return nil, p, nil
			}
			name := c.text(nameNode)
			block = ast.NewBlockArg(name, scope.Declare(name))
		default:
			// keyword, hash splat and argument forwarding parameters
			return nil, p, nil
		}
	}
	return ast.At(ast.NewArgs(required, optional, rest, block), c.pos(n)), nil, nil
}

func (c *parseContext) requiredParameter(p *sitter.Node, scope *ast.Scope) (ast.Node, *sitter.Node, error) {
	if p.Kind() == "identifier" {
		name := c.text(p)
		return ast.At(ast.NewArgument(name, scope.Declare(name)), c.pos(p)), nil, nil
	}
	// destructured block parameter: |(a, *b)|
	var (
		head, post []ast.Node
		rest       ast.Node
	)
	for _, child := range c.namedChildren(p) {
		var target ast.Node
		switch child.Kind() {
		case "identifier":
			target = declareParam(scope, c.text(child))
		case "destructured_parameter":
			nested, unsupported, err := c.requiredParameter(child, scope)
			if err != nil || unsupported != nil {
				return nil, unsupported, err
			}
			target = nested
		case "splat_parameter":
			if rest != nil {
				return nil, child, nil
			}
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				rest = declareParam(scope, c.text(nameNode))
			} else {
				rest = ast.NewStar()
			}
			continue
		default:
			return nil, child, nil
		}
		if rest != nil {
			post = append(post, target)
		} else {
			head = append(head, target)
		}
	}
	return ast.At(ast.NewMultipleAsgn(head, rest, post, nil), c.pos(p)), nil, nil
}

// declareParam binds a destructured parameter in its own scope, shadowing
// any outer variable of the same name.
func declareParam(scope *ast.Scope, name string) ast.Node {
	slot := scope.Declare(name)
	if scope.Kind == ast.ScopeBlock {
		return ast.NewDAsgn(name, slot, 0, nil)
	}
	return ast.NewLocalAsgn(name, slot, 0, nil)
}

// closure converts block, do_block and lambda literals.
func (c *parseContext) closure(n *sitter.Node) (ast.Node, error) {
	scope := ast.NewScope(ast.ScopeBlock, c.scope)
	var (
		args        *ast.ArgsNode
		body        ast.Node
		unsupported *sitter.Node
	)
	err := c.within(scope, func() error {
		var err error
		args, unsupported, err = c.parameters(n.ChildByFieldName("parameters"), scope)
		if err != nil || unsupported != nil {
			return err
		}
		bodyNode := n.ChildByFieldName("body")
		if n.Kind() == "lambda" && bodyNode != nil {
			// the lambda body is itself a block or do_block without parameters
			if inner := bodyNode.ChildByFieldName("parameters"); inner != nil {
				unsupported = inner
				return nil
			}
			bodyNode = bodyNode.ChildByFieldName("body")
		}
		if bodyNode != nil && bodyNode.Kind() == "body_statement" {
			body, err = c.beginBody(bodyNode)
		} else {
			body, err = c.body(bodyNode)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if unsupported != nil {
		return c.unknown(unsupported), nil
	}
	if n.Kind() == "lambda" {
		return c.at(ast.NewLambda(args, body, scope), n), nil
	}
	return c.at(ast.NewIter(args, body, scope), n), nil
}

// classPath converts the name of a class or module definition.
func (c *parseContext) classPath(n *sitter.Node) (ast.Node, error) {
	switch n.Kind() {
	case "constant":
		return c.at(ast.NewColon2(nil, c.text(n)), n), nil
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
	}
	return nil, wrapParseError(c.file, n, fmt.Errorf("unexpected class name %s", n.Kind()))
}

func (c *parseContext) classBody(n *sitter.Node) (ast.Node, *ast.Scope, error) {
	scope := ast.NewScope(ast.ScopeClass, nil)
	var body ast.Node
	err := c.within(scope, func() error {
		var err error
		body, err = c.beginBody(n.ChildByFieldName("body"))
		return err
	})
	return body, scope, err
}

func (c *parseContext) class(n *sitter.Node) (ast.Node, error) {
	path, err := c.classPath(n.ChildByFieldName("name"))
	if err != nil {
		return nil, err
	}
	var super ast.Node
	if superclass := n.ChildByFieldName("superclass"); superclass != nil {
		children := c.namedChildren(superclass)
		if len(children) != 1 {
			return nil, wrapParseError(c.file, superclass, fmt.Errorf("superclass without an expression"))
		}
		if super, err = c.expression(children[0]); err != nil {
			return nil, err
		}
	}
	body, scope, err := c.classBody(n)
	if err != nil {
		return nil, err
	}
	return c.at(ast.NewClass(path, super, body, scope), n), nil
}

func (c *parseContext) module(n *sitter.Node) (ast.Node, error) {
	path, err := c.classPath(n.ChildByFieldName("name"))
	if err != nil {
		return nil, err
	}
	body, scope, err := c.classBody(n)
	if err != nil {
		return nil, err
	}
	return c.at(ast.NewModule(path, body, scope), n), nil
}

func (c *parseContext) singletonClass(n *sitter.Node) (ast.Node, error) {
	receiver, err := c.expression(n.ChildByFieldName("value"))
	if err != nil {
		return nil, err
	}
	body, scope, err := c.classBody(n)
	if err != nil {
		return nil, err
	}
	return c.at(ast.NewSClass(receiver, body, scope), n), nil
}

func (c *parseContext) alias(n *sitter.Node) (ast.Node, error) {
	newNode := n.ChildByFieldName("name")
	oldNode := n.ChildByFieldName("alias")
	if newNode == nil || oldNode == nil {
		return nil, wrapParseError(c.file, n, fmt.Errorf("alias without two names"))
	}
	if newNode.Kind() == "global_variable" && oldNode.Kind() == "global_variable" {
		return c.at(ast.NewVAlias(c.text(newNode), c.text(oldNode)), n), nil
	}
	return c.at(ast.NewAlias(methodName(c.text(newNode)), methodName(c.text(oldNode))), n), nil
}

func (c *parseContext) undef(n *sitter.Node) (ast.Node, error) {
	var out []ast.Node
	for _, child := range c.namedChildren(n) {
		out = append(out, c.at(ast.NewUndef(methodName(c.text(child))), child))
	}
	return seq(out...), nil
}

func (c *parseContext) postExe(n *sitter.Node) (ast.Node, error) {
	scope := ast.NewScope(ast.ScopeBlock, c.scope)
	var body ast.Node
	err := c.within(scope, func() error {
		var err error
		body, err = c.statements(c.namedChildren(n))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.at(ast.NewPostExe(body, scope), n), nil
}
