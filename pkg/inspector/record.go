package inspector

import "strings"

// Flag is one conservative capability of a method or closure body.
type Flag uint32

const (
	BlockArg Flag = 1 << iota
	Closure
	Class
	Method
	Eval
	FrameAware
	FrameBlock
	FrameVisibility
	BackRef
	LastLine
	OptArgs
	RestArg
	ScopeAware
	ZSuper
	Constant
	ClassVar
	Super
	Retry

	flagCount = iota
)

// AllFlags is full conservatism.
const AllFlags Flag = 1<<flagCount - 1

// frameFlags are the flags that force a heap frame.
const frameFlags = FrameAware | FrameBlock | FrameVisibility | Closure | Eval | ZSuper | Super | BackRef | LastLine

var flagNames = [...]string{
	"BLOCK_ARG", "CLOSURE", "CLASS", "METHOD", "EVAL", "FRAME_AWARE", "FRAME_BLOCK",
	"FRAME_VISIBILITY", "BACKREF", "LASTLINE", "OPT_ARGS", "REST_ARG", "SCOPE_AWARE",
	"ZSUPER", "CONSTANT", "CLASS_VAR", "SUPER", "RETRY",
}

func (f Flag) String() string {
	if f == 0 {
		return "NONE"
	}
	if f == AllFlags {
		return "ALL"
	}
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Record is the accumulated capability summary of one body. Only an
// Inspector sets flags; nothing clears them.
type Record struct {
	flags Flag
}

// Conservative is a record with every flag set.
func Conservative() Record { return Record{flags: AllFlags} }

func (r Record) Has(f Flag) bool { return r.flags&f == f }

// Any reports whether at least one of the given flags is set.
func (r Record) Any(f Flag) bool { return r.flags&f != 0 }

func (r Record) All() bool { return r.flags == AllFlags }

func (r Record) Flags() Flag { return r.flags }

func (r Record) String() string { return r.flags.String() }

// NeedsFrame reports whether the body must run with a heap frame.
func (r Record) NeedsFrame() bool { return r.Any(frameFlags) }

// NeedsScope reports whether the body's locals must live in a heap scope.
func (r Record) NeedsScope() bool { return r.Any(Closure | ScopeAware) }

// CallConfig picks the cheapest calling convention the record allows.
func (r Record) CallConfig() CallConfig {
	switch {
	case r.NeedsFrame() && r.NeedsScope():
		return FrameFullScopeFull
	case r.NeedsFrame():
		return FrameFullScopeNone
	case r.NeedsScope():
		return FrameNoneScopeFull
	default:
		return FrameNoneScopeNone
	}
}

type CallConfig int

const (
	FrameNoneScopeNone CallConfig = iota
	FrameNoneScopeFull
	FrameFullScopeNone
	FrameFullScopeFull
)

func (c CallConfig) String() string {
	switch c {
	case FrameNoneScopeNone:
		return "FrameNoneScopeNone"
	case FrameNoneScopeFull:
		return "FrameNoneScopeFull"
	case FrameFullScopeNone:
		return "FrameFullScopeNone"
	case FrameFullScopeFull:
		return "FrameFullScopeFull"
	default:
		return "CallConfig(?)"
	}
}

func (c CallConfig) HasFrame() bool { return c == FrameFullScopeNone || c == FrameFullScopeFull }

func (c CallConfig) HasScope() bool { return c == FrameNoneScopeFull || c == FrameFullScopeFull }
