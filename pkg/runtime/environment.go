package runtime

import (
	"sort"

	"rblower/compiler-go/pkg/ast"
)

// Env holds the local variable slots of one scope. Closures keep a
// pointer to the whole Env chain, so writes are visible both ways.
type Env struct {
	scope  *ast.Scope
	slots  []Value
	parent *Env
}

// NewEnv creates an environment sized for scope, nested under parent.
func NewEnv(scope *ast.Scope, parent *Env) *Env {
	return &Env{scope: scope, slots: make([]Value, scope.Len()), parent: parent}
}

// Parent exposes the lexical parent (nil at a method or root boundary).
func (e *Env) Parent() *Env {
	return e.parent
}

func (e *Env) Scope() *ast.Scope { return e.scope }

// At walks depth parents up.
func (e *Env) At(depth int) *Env {
	env := e
	for i := 0; i < depth && env != nil; i++ {
		env = env.parent
	}
	return env
}

// Get reads a slot; unassigned slots read as nil.
func (e *Env) Get(slot, depth int) Value {
	env := e.At(depth)
	if env == nil || slot < 0 || slot >= len(env.slots) || env.slots[slot] == nil {
		return Nil
	}
	return env.slots[slot]
}

func (e *Env) Set(slot, depth int, v Value) {
	env := e.At(depth)
	if env == nil || slot < 0 {
		return
	}
	if slot >= len(env.slots) {
		grown := make([]Value, slot+1)
		copy(grown, env.slots)
		env.slots = grown
	}
	env.slots[slot] = v
}

// Snapshot returns the named bindings visible from e, inner scopes
// shadowing outer ones.
func (e *Env) Snapshot() map[string]Value {
	out := map[string]Value{}
	for env := e; env != nil; env = env.parent {
		if env.scope == nil {
			continue
		}
		for slot, name := range env.scope.Names {
			if _, shadowed := out[name]; shadowed {
				continue
			}
			v := Value(Nil)
			if slot < len(env.slots) && env.slots[slot] != nil {
				v = env.slots[slot]
			}
			out[name] = v
		}
	}
	return out
}

// Keys returns the visible names in sorted order.
func (e *Env) Keys() []string {
	snap := e.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup resolves a name to its slot and depth relative to e.
func (e *Env) Lookup(name string) (slot, depth int, ok bool) {
	depth = 0
	for env := e; env != nil; env = env.parent {
		if env.scope != nil {
			for i, n := range env.scope.Names {
				if n == name {
					return i, depth, true
				}
			}
		}
		depth++
	}
	return 0, 0, false
}
