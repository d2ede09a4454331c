package ast

type ScopeKind int

const (
	ScopeRoot ScopeKind = iota
	ScopeMethod
	ScopeBlock
	ScopeClass
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeRoot:
		return "root"
	case ScopeMethod:
		return "method"
	case ScopeBlock:
		return "block"
	case ScopeClass:
		return "class"
	default:
		return "unknown"
	}
}

// Scope is one lexical level of local variables. Only block scopes see
// their parent; method, class and root scopes start a fresh variable store.
type Scope struct {
	Kind   ScopeKind
	Names  []string
	Parent *Scope
}

func NewScope(kind ScopeKind, parent *Scope, names ...string) *Scope {
	s := &Scope{Kind: kind, Parent: parent}
	for _, name := range names {
		s.Declare(name)
	}
	return s
}

// Declare returns the slot of name in this scope, adding it if needed.
func (s *Scope) Declare(name string) int {
	for i, existing := range s.Names {
		if existing == name {
			return i
		}
	}
	s.Names = append(s.Names, name)
	return len(s.Names) - 1
}

// Lookup resolves name to a slot and the number of scopes between s and the
// declaring scope.
func (s *Scope) Lookup(name string) (slot, depth int, ok bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		for i, existing := range cur.Names {
			if existing == name {
				return i, depth, true
			}
		}
		if cur.Kind != ScopeBlock {
			break
		}
		depth++
	}
	return -1, -1, false
}

func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Names)
}

// Depth counts the enclosing scopes reachable from s.
func (s *Scope) Depth() int {
	depth := 0
	for cur := s; cur != nil && cur.Kind == ScopeBlock && cur.Parent != nil; cur = cur.Parent {
		depth++
	}
	return depth
}

// At returns the scope depth levels up the chain.
func (s *Scope) At(depth int) *Scope {
	cur := s
	for i := 0; i < depth && cur != nil; i++ {
		cur = cur.Parent
	}
	return cur
}
