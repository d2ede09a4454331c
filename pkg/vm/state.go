package vm

import (
	"strconv"
	"strings"

	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/runtime"
)

//-----------------------------------------------------------------------------
// Globals
//-----------------------------------------------------------------------------

func (vm *VM) resolveGlobal(name string) string {
	for i := 0; i < 8; i++ {
		target, ok := vm.globalAliases[name]
		if !ok {
			break
		}
		name = target
	}
	return name
}

// loadGlobal reads a global. Match-derived globals ($&, $1 ...) are
// computed from $~.
func (vm *VM) loadGlobal(name string) runtime.Value {
	name = vm.resolveGlobal(name)
	if v, ok := vm.matchGlobal(name); ok {
		return v
	}
	if v, ok := vm.globals[name]; ok {
		return v
	}
	return runtime.Nil
}

func (vm *VM) matchGlobal(name string) (runtime.Value, bool) {
	if len(name) < 2 {
		return nil, false
	}
	md, _ := vm.globals["$~"].(*runtime.MatchDataValue)
	switch suffix := name[1:]; suffix {
	case "&":
		if md == nil {
			return runtime.Nil, true
		}
		return md.Group(0), true
	case "`":
		if md == nil {
			return runtime.Nil, true
		}
		return runtime.Str(md.Subject[:md.Indices[0]]), true
	case "'":
		if md == nil {
			return runtime.Nil, true
		}
		return runtime.Str(md.Subject[md.Indices[1]:]), true
	case "+":
		if md == nil {
			return runtime.Nil, true
		}
		for i := len(md.Indices)/2 - 1; i > 0; i-- {
			if g := md.Group(i); g.Kind() != runtime.KindNil {
				return g, true
			}
		}
		return runtime.Nil, true
	default:
		n, err := strconv.Atoi(suffix)
		if err != nil || n <= 0 {
			return nil, false
		}
		if md == nil {
			return runtime.Nil, true
		}
		return md.Group(n), true
	}
}

func (a *activation) storeGlobal(name string, v runtime.Value) error {
	name = a.vm.resolveGlobal(name)
	if _, derived := a.vm.matchGlobal(name); derived {
		return a.Raise("NameError", "Can't set variable %s", name)
	}
	if name == "$~" {
		if _, ok := v.(*runtime.MatchDataValue); !ok && v.Kind() != runtime.KindNil {
			return a.Raise("TypeError", "wrong argument type %s (expected MatchData)", a.vm.realClassOf(v).Name)
		}
	}
	a.vm.globals[name] = v
	return nil
}

//-----------------------------------------------------------------------------
// Instance and class variables
//-----------------------------------------------------------------------------

func ivarsOf(v runtime.Value) map[string]runtime.Value {
	switch x := v.(type) {
	case *runtime.ObjectValue:
		return x.Ivars
	case *runtime.ClassValue:
		return x.Ivars
	}
	return nil
}

func (a *activation) loadIvar(name string) runtime.Value {
	if v, ok := ivarsOf(a.self)[name]; ok {
		return v
	}
	return runtime.Nil
}

func (a *activation) storeIvar(name string, v runtime.Value) error {
	ivars := ivarsOf(a.self)
	if ivars == nil {
		return a.Raise("FrozenError", "can't modify frozen %s", a.vm.realClassOf(a.self).Name)
	}
	ivars[name] = v
	return nil
}

// cvarBase is the class class variables resolve against: the lexical
// class, or the attached class inside a singleton class body.
func (a *activation) cvarBase() *runtime.ClassValue {
	base := a.definee()
	if base.IsSingleton() {
		if attached, ok := base.Attached.(*runtime.ClassValue); ok {
			return attached
		}
	}
	return base
}

func (a *activation) storeCvar(name string, v runtime.Value) {
	base := a.cvarBase()
	if _, owner := base.LookupCvar(name); owner != nil {
		owner.Cvars[name] = v
		return
	}
	base.Cvars[name] = v
}

//-----------------------------------------------------------------------------
// Constants
//-----------------------------------------------------------------------------

// lookupConst searches the lexical nesting, then the ancestors of the
// innermost class, then Object.
func (a *activation) lookupConst(name string) (runtime.Value, bool) {
	for c := a.lexical; c != nil; c = c.Lexical {
		if v, ok := c.Consts[name]; ok {
			return v, true
		}
	}
	if a.lexical != nil {
		if v, ok := a.lexical.LookupConst(name); ok {
			return v, true
		}
	}
	return a.vm.object.LookupConst(name)
}

func (a *activation) loadConst(name string, scope emit.ConstScope) (runtime.Value, error) {
	switch scope {
	case emit.ConstQualified:
		v := a.pop()
		mod, ok := v.(*runtime.ClassValue)
		if !ok {
			return nil, a.Raise("TypeError", "%s is not a class/module", runtime.Inspect(v))
		}
		if c, ok := mod.LookupConst(name); ok {
			return c, nil
		}
		return nil, a.Raise("NameError", "uninitialized constant %s::%s", mod.QualifiedName(), name)
	case emit.ConstTop:
		if c, ok := a.vm.object.LookupConst(name); ok {
			return c, nil
		}
	default:
		if c, ok := a.lookupConst(name); ok {
			return c, nil
		}
	}
	return nil, a.Raise("NameError", "uninitialized constant %s", name)
}

// storeConst pops the value, and for a qualified store the module under
// it.
func (a *activation) storeConst(name string, scope emit.ConstScope) error {
	v := a.pop()
	target := a.definee()
	switch scope {
	case emit.ConstQualified:
		m := a.pop()
		mod, ok := m.(*runtime.ClassValue)
		if !ok {
			return a.Raise("TypeError", "%s is not a class/module", runtime.Inspect(m))
		}
		target = mod
	case emit.ConstTop:
		target = a.vm.object
	}
	if target.IsSingleton() {
		if attached, ok := target.Attached.(*runtime.ClassValue); ok {
			target = attached
		}
	}
	if c, ok := v.(*runtime.ClassValue); ok && c.Name == "" {
		c.Name = name
		c.Lexical = target
	}
	target.Consts[name] = v
	return nil
}

//-----------------------------------------------------------------------------
// Definedness probes
//-----------------------------------------------------------------------------

func (a *activation) probe(kind emit.ProbeKind, name string) (bool, error) {
	vm := a.vm
	switch kind {
	case emit.ProbeIvar:
		_, ok := ivarsOf(a.self)[name]
		return ok, nil
	case emit.ProbeGlobal:
		name = vm.resolveGlobal(name)
		if v, derived := vm.matchGlobal(name); derived {
			return v.Kind() != runtime.KindNil, nil
		}
		_, ok := vm.globals[name]
		return ok, nil
	case emit.ProbeCvar:
		_, owner := a.cvarBase().LookupCvar(name)
		return owner != nil, nil
	case emit.ProbeConst:
		_, ok := a.lookupConst(name)
		return ok, nil
	case emit.ProbeQualifiedConst:
		mod, ok := a.pop().(*runtime.ClassValue)
		if !ok {
			return false, nil
		}
		_, ok = mod.LookupConst(name)
		return ok, nil
	case emit.ProbeMethod:
		recv := a.pop()
		m := vm.classOf(recv).Lookup(name)
		if m == nil {
			return false, nil
		}
		switch m.Visibility {
		case runtime.Private:
			return false, nil
		case runtime.Protected:
			return vm.isA(a.self, m.Owner), nil
		}
		return true, nil
	case emit.ProbeFunctionalMethod:
		return vm.classOf(a.pop()).Lookup(name) != nil, nil
	case emit.ProbeBlock:
		return a.frame != nil && a.frame.Block != nil, nil
	case emit.ProbeSuper:
		f := a.frame
		if f == nil || f.Owner == nil || f.Method == "" {
			return false, nil
		}
		return vm.classOf(a.self).LookupAfter(f.Owner, f.Method) != nil, nil
	}
	return false, Internal.New("unknown probe %s", kind)
}

// respondTo reports whether a public method name exists on v.
func (vm *VM) respondTo(v runtime.Value, name string) bool {
	m := vm.classOf(v).Lookup(name)
	return m != nil && m.Visibility != runtime.Private
}

func isConstName(name string) bool {
	return name != "" && strings.ToUpper(name[:1]) == name[:1] && strings.ToLower(name[:1]) != name[:1]
}
