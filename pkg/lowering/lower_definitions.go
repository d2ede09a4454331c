package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/inspector"
)

// methodUnit compiles a method body with strict arity into a child unit.
func (c *Compiler) methodUnit(owner ast.Node, name string, args *ast.ArgsNode, body ast.Node, scope *ast.Scope, u *Unit) (emit.UnitRef, error) {
	record := inspector.InspectBody(name, c.opts.Inspector, args, body)
	child := c.beginChild(u, emit.UnitSpec{
		Kind:       emit.UnitMethod,
		Name:       name,
		Scope:      scope,
		Arity:      arityOf(args),
		Record:     record,
		CallConfig: record.CallConfig(),
		Pos:        owner.Position(),
	})
	if err := c.bindParameters(args, child, true); err != nil {
		return nil, err
	}
	if err := c.Lower(body, child); err != nil {
		return nil, err
	}
	if err := child.checkBalanced(owner); err != nil {
		return nil, err
	}
	return child.t.EndUnit(), nil
}

func (c *Compiler) lowerDefn(n *ast.DefnNode, u *Unit) error {
	ref, err := c.methodUnit(n, n.Name, n.Args, n.Body, n.Scope, u)
	if err != nil {
		return err
	}
	u.DefineMethod(n.Name, ref)
	return nil
}

func (c *Compiler) lowerDefs(n *ast.DefsNode, u *Unit) error {
	if err := c.Lower(n.Receiver, u); err != nil {
		return err
	}
	ref, err := c.methodUnit(n, n.Name, n.Args, n.Body, n.Scope, u)
	if err != nil {
		return err
	}
	u.DefineSingletonMethod(n.Name, ref)
	return nil
}

// lowerCPath pushes the enclosing module of a class or module path when
// the path is qualified.
func (c *Compiler) lowerCPath(path ast.Node, u *Unit) (string, emit.ConstScope, error) {
	switch p := path.(type) {
	case *ast.ConstNode:
		return p.Name, emit.ConstLexical, nil
	case *ast.Colon2Node:
		if ast.IsNil(p.Left) {
			return p.Name, emit.ConstLexical, nil
		}
		if err := c.Lower(p.Left, u); err != nil {
			return "", 0, err
		}
		return p.Name, emit.ConstQualified, nil
	case *ast.Colon3Node:
		return p.Name, emit.ConstTop, nil
	}
	return "", 0, notCompilable(path, "class path %s", path.NodeType())
}

// bodyUnit compiles a class, module or singleton class body.
func (c *Compiler) bodyUnit(owner ast.Node, name string, body ast.Node, scope *ast.Scope, u *Unit) (emit.UnitRef, error) {
	record := inspector.InspectBody(name, c.opts.Inspector, nil, body)
	child := c.beginChild(u, emit.UnitSpec{
		Kind:       emit.UnitClass,
		Name:       name,
		Scope:      scope,
		Record:     record,
		CallConfig: record.CallConfig(),
		Pos:        owner.Position(),
	})
	if err := c.Lower(body, child); err != nil {
		return nil, err
	}
	if err := child.checkBalanced(owner); err != nil {
		return nil, err
	}
	return child.t.EndUnit(), nil
}

func (c *Compiler) lowerClass(n *ast.ClassNode, u *Unit) error {
	name, path, err := c.lowerCPath(n.Path, u)
	if err != nil {
		return err
	}
	hasSuper := !ast.IsNil(n.Super)
	if hasSuper {
		if err := c.Lower(n.Super, u); err != nil {
			return err
		}
	}
	ref, err := c.bodyUnit(n, name, n.Body, n.Scope, u)
	if err != nil {
		return err
	}
	u.OpenClass(name, ref, path, hasSuper)
	return nil
}

func (c *Compiler) lowerModule(n *ast.ModuleNode, u *Unit) error {
	name, path, err := c.lowerCPath(n.Path, u)
	if err != nil {
		return err
	}
	ref, err := c.bodyUnit(n, name, n.Body, n.Scope, u)
	if err != nil {
		return err
	}
	u.OpenModule(name, ref, path)
	return nil
}

func (c *Compiler) lowerSClass(n *ast.SClassNode, u *Unit) error {
	if err := c.Lower(n.Receiver, u); err != nil {
		return err
	}
	ref, err := c.bodyUnit(n, "singleton class", n.Body, n.Scope, u)
	if err != nil {
		return err
	}
	u.OpenSingletonClass(ref)
	return nil
}

// lowerPostExe registers an END block to run at exit.
func (c *Compiler) lowerPostExe(n *ast.PostExeNode, u *Unit) error {
	record := inspector.InspectBody("END", c.opts.Inspector, nil, n.Body)
	child := c.beginChild(u, emit.UnitSpec{
		Kind:       emit.UnitClosure,
		Name:       "END",
		Scope:      n.Scope,
		Record:     record,
		CallConfig: record.CallConfig(),
		Pos:        n.Position(),
	})
	if err := c.lowerClosureBody(n, n.Body, child); err != nil {
		return err
	}
	u.AtExit(child.t.EndUnit())
	return nil
}
