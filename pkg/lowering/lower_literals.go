package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

func (c *Compiler) elements(nodes []ast.Node) ArrayCallback {
	return func(u *Unit, _ any, i int) error {
		return c.Lower(nodes[i], u)
	}
}

// stringParts lowers interpolation segments, converting evaluated parts
// to strings.
func (c *Compiler) stringParts(parts []ast.Node) ArrayCallback {
	return func(u *Unit, _ any, i int) error {
		switch p := parts[i].(type) {
		case *ast.StrNode:
			u.PushString(p.Value)
			return nil
		case *ast.EvStrNode:
			return c.lowerEvStr(p, u)
		default:
			if err := c.Lower(p, u); err != nil {
				return err
			}
			u.AsString()
			return nil
		}
	}
}

func (c *Compiler) lowerArray(n *ast.ArrayNode, u *Unit) error {
	for _, el := range n.Elements {
		if _, ok := el.(*ast.SplatNode); ok {
			return c.lowerArgsArray(n, u)
		}
	}
	return u.createArray(n, len(n.Elements), c.elements(n.Elements))
}

func (c *Compiler) lowerHash(n *ast.HashNode, u *Unit) error {
	if len(n.Pairs)%2 != 0 {
		return notCompilable(n, "hash literal with %d children", len(n.Pairs))
	}
	return u.createHash(n, len(n.Pairs)/2, c.elements(n.Pairs))
}

func (c *Compiler) lowerDot(n *ast.DotNode, u *Unit) error {
	if err := c.Lower(n.Begin, u); err != nil {
		return err
	}
	if err := c.Lower(n.End, u); err != nil {
		return err
	}
	u.MakeRange(n.Exclusive)
	return nil
}

func (c *Compiler) lowerEvStr(n *ast.EvStrNode, u *Unit) error {
	if err := c.Lower(n.Body, u); err != nil {
		return err
	}
	u.AsString()
	return nil
}

func (c *Compiler) lowerDStr(n *ast.DStrNode, u *Unit) error {
	return u.createString(n, len(n.Parts), c.stringParts(n.Parts))
}

func (c *Compiler) lowerDSymbol(n *ast.DSymbolNode, u *Unit) error {
	if err := u.createString(n, len(n.Parts), c.stringParts(n.Parts)); err != nil {
		return err
	}
	u.Dispatch(emit.CallSite{Name: "to_sym", Discipline: emit.DispatchNormal})
	return nil
}

func (c *Compiler) lowerDRegexp(n *ast.DRegexpNode, u *Unit) error {
	cb := c.stringParts(n.Parts)
	for i := range n.Parts {
		if err := cb(u, n, i); err != nil {
			return err
		}
	}
	u.MakeDynamicRegexp(len(n.Parts), n.Options)
	return nil
}

// Backtick strings call Kernel#` on self.

func (c *Compiler) lowerXStr(n *ast.XStrNode, u *Unit) error {
	u.PushSelf()
	u.PushString(n.Value)
	u.Dispatch(emit.CallSite{Name: "`", Arity: 1, Discipline: emit.DispatchFunctional})
	return nil
}

func (c *Compiler) lowerDXStr(n *ast.DXStrNode, u *Unit) error {
	u.PushSelf()
	if err := u.createString(n, len(n.Parts), c.stringParts(n.Parts)); err != nil {
		return err
	}
	u.Dispatch(emit.CallSite{Name: "`", Arity: 1, Discipline: emit.DispatchFunctional})
	return nil
}
