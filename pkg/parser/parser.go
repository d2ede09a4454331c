// Package parser turns Ruby source into scope-annotated syntax trees using
// the tree-sitter Ruby grammar.
package parser

import (
	"context"
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"

	"rblower/compiler-go/pkg/ast"
)

// Parser wraps a tree-sitter parser configured for Ruby. A Parser is not
// safe for concurrent use; give each goroutine its own.
type Parser struct {
	parser *sitter.Parser
}

func New() (*Parser, error) {
	lang := sitter.NewLanguage(tree_sitter_ruby.Language())
	if lang == nil {
		return nil, fmt.Errorf("parser: ruby language not available")
	}
	p := sitter.NewParser()
	if err := p.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}
	return &Parser{parser: p}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p == nil || p.parser == nil {
		return
	}
	p.parser.Close()
}

// Parse parses one source file. Syntax errors come back as *ParseError;
// constructs the tree cannot express become ast.UnknownNode so that the
// lowering engine rejects them per unit instead of the parse failing.
func (p *Parser) Parse(file string, source []byte) (*ast.RootNode, error) {
	return p.ParseContext(context.Background(), file, source)
}

// ParseContext is Parse with ctx checked before and after the tree is
// built. The tree-sitter parse itself runs to completion.
func (p *Parser) ParseContext(ctx context.Context, file string, source []byte) (*ast.RootNode, error) {
	if p == nil || p.parser == nil {
		return nil, fmt.Errorf("parser: nil parser")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parser: %s: %w", file, err)
	}
	tree := p.parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parser: %s: no tree produced", file)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.Kind() != "program" {
		return nil, fmt.Errorf("parser: %s: unexpected root node", file)
	}
	if root.HasError() {
		return nil, syntaxError(file, source, root)
	}

	c := newParseContext(file, source)
	body, err := c.statements(c.namedChildren(root))
	if err != nil {
		return nil, wrapParseError(file, root, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parser: %s: %w", file, err)
	}
	out := ast.NewRoot(file, body, c.scope)
	return ast.At(out, c.pos(root)), nil
}

// parseContext carries the source and the lexical scope chain while the
// tree is converted.
type parseContext struct {
	file   string
	source []byte
	scope  *ast.Scope
	// for-loop scopes declare nothing; their variables land in the
	// enclosing scope
	transparent map[*ast.Scope]bool
	hidden      int
}

func newParseContext(file string, source []byte) *parseContext {
	return &parseContext{
		file:        file,
		source:      source,
		scope:       ast.NewScope(ast.ScopeRoot, nil),
		transparent: make(map[*ast.Scope]bool),
	}
}

func (c *parseContext) pos(n *sitter.Node) ast.Position {
	start := n.StartPosition()
	end := n.EndPosition()
	return ast.Position{File: c.file, StartLine: int(start.Row) + 1, EndLine: int(end.Row) + 1}
}

func (c *parseContext) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(c.source)
}

func (c *parseContext) at(node ast.Node, n *sitter.Node) ast.Node {
	if node == nil || n == nil {
		return node
	}
	return ast.At(node, c.pos(n))
}

func (c *parseContext) unknown(n *sitter.Node, children ...ast.Node) ast.Node {
	return c.at(ast.NewUnknown(n.Kind(), children), n)
}

// namedChildren skips comments.
func (c *parseContext) namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// unfieldedChildren returns the named children not bound to any of the given
// fields.
func (c *parseContext) unfieldedChildren(n *sitter.Node, exclude ...string) []*sitter.Node {
	var out []*sitter.Node
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		field := n.FieldNameForNamedChild(uint32(i))
		skip := false
		for _, name := range exclude {
			if field == name {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, child)
		}
	}
	return out
}

// within runs fn with scope as the current scope.
func (c *parseContext) within(scope *ast.Scope, fn func() error) error {
	saved := c.scope
	c.scope = scope
	defer func() { c.scope = saved }()
	return fn()
}

// declare returns the slot and depth of name, adding it to the innermost
// scope that owns variables when it is new.
func (c *parseContext) declare(name string) (slot, depth int) {
	if slot, depth, ok := c.scope.Lookup(name); ok {
		return slot, depth
	}
	owner := c.scope
	for c.transparent[owner] && owner.Parent != nil {
		owner = owner.Parent
		depth++
	}
	return owner.Declare(name), depth
}

// declareHidden reserves an anonymous slot in the nearest method-level
// scope, as flip-flop state needs.
func (c *parseContext) declareHidden() (slot, depth int) {
	c.hidden++
	owner := c.scope
	for owner.Kind == ast.ScopeBlock && owner.Parent != nil {
		owner = owner.Parent
		depth++
	}
	return owner.Declare(fmt.Sprintf("%%flip%d", c.hidden)), depth
}

func (c *parseContext) inBlock() bool { return c.scope.Kind == ast.ScopeBlock }

// readVar resolves a bare identifier to a variable read, or to nil when no
// enclosing scope declares it.
func (c *parseContext) readVar(name string) ast.Node {
	slot, depth, ok := c.scope.Lookup(name)
	if !ok {
		return nil
	}
	if c.inBlock() {
		return ast.NewDVar(name, slot, depth)
	}
	return ast.NewLocalVar(name, slot, depth)
}

func (c *parseContext) assignVar(name string, value ast.Node) ast.Assignable {
	slot, depth := c.declare(name)
	if c.inBlock() {
		return ast.NewDAsgn(name, slot, depth, value)
	}
	return ast.NewLocalAsgn(name, slot, depth, value)
}
