package lowering

import (
	"rblower/compiler-go/pkg/ast"
	"rblower/compiler-go/pkg/emit"
)

func hasSplat(nodes []ast.Node) bool {
	for _, n := range nodes {
		if _, ok := n.(*ast.SplatNode); ok {
			return true
		}
	}
	return false
}

// argsCallback returns nil for a call without arguments. Plain lists up to
// MaxSpecificArity are passed as separate operands; anything longer, or
// any list with a splat, is packed into a single array.
func (c *Compiler) argsCallback(args ast.Node) ArgumentsCallback {
	if ast.IsNil(args) {
		return nil
	}
	if arr, ok := args.(*ast.ArrayNode); ok && !hasSplat(arr.Elements) {
		elements := arr.Elements
		if len(elements) <= c.opts.MaxSpecificArity {
			return argumentsFunc{arity: len(elements), fn: func(u *Unit) error {
				for _, el := range elements {
					if err := c.Lower(el, u); err != nil {
						return err
					}
				}
				return nil
			}}
		}
		return argumentsFunc{arity: emit.Variadic, fn: func(u *Unit) error {
			return u.createArray(arr, len(elements), c.elements(elements))
		}}
	}
	return argumentsFunc{arity: emit.Variadic, fn: func(u *Unit) error {
		return c.lowerArgsArray(args, u)
	}}
}

// lowerArgsArray leaves one array holding the expanded argument list.
func (c *Compiler) lowerArgsArray(node ast.Node, u *Unit) error {
	switch n := node.(type) {
	case nil:
		u.MakeArray(0)
	case *ast.ArrayNode:
		lead := 0
		for lead < len(n.Elements) {
			if _, ok := n.Elements[lead].(*ast.SplatNode); ok {
				break
			}
			lead++
		}
		if err := u.createArray(n, lead, c.elements(n.Elements)); err != nil {
			return err
		}
		for _, el := range n.Elements[lead:] {
			if s, ok := el.(*ast.SplatNode); ok {
				if err := c.Lower(s.Value, u); err != nil {
					return err
				}
				u.Splat()
				u.ArgsCat()
				continue
			}
			if err := c.Lower(el, u); err != nil {
				return err
			}
			u.ArgsPush()
		}
	case *ast.ZArrayNode:
		u.MakeArray(0)
	case *ast.SplatNode:
		if err := c.Lower(n.Value, u); err != nil {
			return err
		}
		u.Splat()
	case *ast.ArgsCatNode:
		if err := c.lowerArgsArray(n.First, u); err != nil {
			return err
		}
		if err := c.Lower(n.Second, u); err != nil {
			return err
		}
		u.Splat()
		u.ArgsCat()
	case *ast.ArgsPushNode:
		if err := c.lowerArgsArray(n.First, u); err != nil {
			return err
		}
		if err := c.Lower(n.Second, u); err != nil {
			return err
		}
		u.ArgsPush()
	default:
		if ast.IsNil(node) {
			u.MakeArray(0)
			return nil
		}
		if err := c.Lower(node, u); err != nil {
			return err
		}
		u.MakeArray(1)
	}
	return nil
}

func (c *Compiler) blockCallback(iter ast.Node) (ValueCallback, error) {
	if ast.IsNil(iter) {
		return nil, nil
	}
	switch b := iter.(type) {
	case *ast.IterNode:
		return func(u *Unit) error {
			return c.lowerClosure(b, b.Args, b.Body, b.Scope, false, u)
		}, nil
	case *ast.LambdaNode:
		return func(u *Unit) error {
			return c.lowerClosure(b, b.Args, b.Body, b.Scope, true, u)
		}, nil
	case *ast.BlockPassNode:
		return func(u *Unit) error {
			if err := c.Lower(b.Body, u); err != nil {
				return err
			}
			u.ToProc()
			return nil
		}, nil
	}
	return nil, notCompilable(iter, "block of kind %s", iter.NodeType())
}

func (c *Compiler) lowerCall(n *ast.CallNode, u *Unit) error {
	block, err := c.blockCallback(n.Iter)
	if err != nil {
		return err
	}
	return u.invoke(ValueCallback(nodeBranch(c, n.Receiver)), n.Name, emit.DispatchNormal, c.argsCallback(n.Args), block)
}

func (c *Compiler) lowerFCall(n *ast.FCallNode, u *Unit) error {
	block, err := c.blockCallback(n.Iter)
	if err != nil {
		return err
	}
	return u.invoke(nil, n.Name, emit.DispatchFunctional, c.argsCallback(n.Args), block)
}

func (c *Compiler) lowerVCall(n *ast.VCallNode, u *Unit) error {
	return u.invoke(nil, n.Name, emit.DispatchVariable, nil, nil)
}

// lowerAttrAssign evaluates `recv.name = args` to the assigned value, not
// the setter's result.
func (c *Compiler) lowerAttrAssign(n *ast.AttrAssignNode, u *Unit) error {
	disc := setterDiscipline(n.Receiver)
	if err := c.Lower(n.Receiver, u); err != nil {
		return err
	}
	var elements []ast.Node
	arr, plain := n.Args.(*ast.ArrayNode)
	if plain {
		elements = arr.Elements
		plain = !hasSplat(elements)
	}
	switch {
	case plain && len(elements) == 1:
		if err := c.Lower(elements[0], u); err != nil {
			return err
		}
		u.DupX1()
		u.Dispatch(emit.CallSite{Name: n.Name, Arity: 1, Discipline: disc})
		u.Pop()
	case plain && len(elements) == 2:
		if err := c.Lower(elements[0], u); err != nil {
			return err
		}
		if err := c.Lower(elements[1], u); err != nil {
			return err
		}
		u.DupX2()
		u.Dispatch(emit.CallSite{Name: n.Name, Arity: 2, Discipline: disc})
		u.Pop()
	default:
		if err := c.lowerArgsArray(n.Args, u); err != nil {
			return err
		}
		u.DupX1()
		u.Dispatch(emit.CallSite{Name: n.Name, Arity: emit.Variadic, Discipline: disc})
		u.Pop()
		u.ArrayTailRef(0, 1, 0)
	}
	return nil
}

func (c *Compiler) lowerSuper(n *ast.SuperNode, u *Unit) error {
	block, err := c.blockCallback(n.Iter)
	if err != nil {
		return err
	}
	return u.invoke(nil, "super", emit.DispatchSuper, c.argsCallback(n.Args), block)
}

// lowerZSuper forwards the current method's arguments, so the call site
// carries no operands besides self and an optional block.
func (c *Compiler) lowerZSuper(n *ast.ZSuperNode, u *Unit) error {
	block, err := c.blockCallback(n.Iter)
	if err != nil {
		return err
	}
	u.PushSelf()
	if block != nil {
		if err := block(u); err != nil {
			return err
		}
	}
	u.Dispatch(emit.CallSite{Name: "super", Discipline: emit.DispatchSuper, HasBlock: block != nil, ZSuper: true})
	return nil
}

func (c *Compiler) lowerYield(n *ast.YieldNode, u *Unit) error {
	if ast.IsNil(n.Args) {
		u.Yield(0)
		return nil
	}
	if !n.ExpandArguments {
		if err := c.Lower(n.Args, u); err != nil {
			return err
		}
		u.Yield(1)
		return nil
	}
	if arr, ok := n.Args.(*ast.ArrayNode); ok && !hasSplat(arr.Elements) {
		for _, el := range arr.Elements {
			if err := c.Lower(el, u); err != nil {
				return err
			}
		}
		u.Yield(len(arr.Elements))
		return nil
	}
	if err := c.lowerArgsArray(n.Args, u); err != nil {
		return err
	}
	u.Yield(emit.Variadic)
	return nil
}
