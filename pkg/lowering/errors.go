package lowering

import (
	"github.com/joomcode/errorx"

	"rblower/compiler-go/pkg/ast"
)

var (
	Errors = errorx.NewNamespace("lowering")

	// NotCompilable marks a tree shape the engine cannot lower. It is always
	// recoverable: the caller discards the unit and runs the tree another way.
	NotCompilable = Errors.NewType("not_compilable")

	// Unbalanced reports a broken stack-effect invariant in the engine itself.
	Unbalanced = Errors.NewType("unbalanced_stack")

	PropertyPosition = errorx.RegisterProperty("position")
	PropertyNodeType = errorx.RegisterProperty("node_type")
)

func notCompilable(node ast.Node, format string, args ...any) error {
	err := NotCompilable.New(format, args...)
	if node == nil {
		return err
	}
	return err.WithProperty(PropertyPosition, node.Position()).
		WithProperty(PropertyNodeType, node.NodeType())
}

func IsNotCompilable(err error) bool {
	return errorx.IsOfType(err, NotCompilable)
}

// PositionOf returns the position of the node a NotCompilable error was
// raised for.
func PositionOf(err error) (ast.Position, bool) {
	v, ok := errorx.ExtractProperty(err, PropertyPosition)
	if !ok {
		return ast.Position{}, false
	}
	pos, ok := v.(ast.Position)
	return pos, ok
}

func NodeTypeOf(err error) (ast.NodeType, bool) {
	v, ok := errorx.ExtractProperty(err, PropertyNodeType)
	if !ok {
		return "", false
	}
	kind, ok := v.(ast.NodeType)
	return kind, ok
}

// ReasonOf returns the bare message of a lowering error.
func ReasonOf(err error) string {
	if e := errorx.Cast(err); e != nil {
		return e.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
