package vm

import (
	"fmt"

	"github.com/joomcode/errorx"

	"rblower/compiler-go/pkg/runtime"
)

var (
	Errors = errorx.NewNamespace("vm")

	// Internal is a broken invariant in the executed code, such as an
	// operand stack underflow.
	Internal = Errors.NewType("internal")

	// Unsound is raised by a frame-aware or scope-aware builtin running in
	// a unit whose call configuration left out what it needs.
	Unsound = Errors.NewType("unsound_call_config")
)

// RaiseError carries a Ruby exception through Go returns until a rescue
// region catches it.
type RaiseError struct {
	Exception *runtime.ObjectValue
	Class     string
	Message   string
}

func (e *RaiseError) Error() string {
	if e.Message == "" {
		return e.Class
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// breakSignal leaves the call that received proc as its block.
type breakSignal struct {
	proc  *runtime.ProcValue
	value runtime.Value
}

func (b breakSignal) Error() string { return "break from proc-closure" }

// returnSignal leaves the method activation owning frame.
type returnSignal struct {
	frame *runtime.Frame
	value runtime.Value
}

func (r returnSignal) Error() string { return "unexpected return" }

type throwSignal struct {
	tag   runtime.Value
	value runtime.Value
}

func (t throwSignal) Error() string {
	return fmt.Sprintf("uncaught throw %s", runtime.Inspect(t.tag))
}

// caughtSignal is a non-local jump held on the operand stack while an
// ensure handler runs; Rethrow resumes it.
type caughtSignal struct {
	err error
}

func (caughtSignal) Kind() runtime.Kind { return runtime.KindObject }

// catchable reports the value a handler of the given kind receives for
// err. Rescue regions see exceptions only.
func catchable(err error, rescueOnly bool) (runtime.Value, bool) {
	switch e := err.(type) {
	case *RaiseError:
		return e.Exception, true
	case breakSignal, returnSignal, throwSignal:
		if rescueOnly {
			return nil, false
		}
		return caughtSignal{err: err}, true
	}
	return nil, false
}

// IsRaise reports whether err is an uncaught Ruby exception of the named
// class or a subclass of it.
func IsRaise(err error, class string) bool {
	re, ok := err.(*RaiseError)
	if !ok || re.Exception == nil {
		return false
	}
	for c := re.Exception.Class; c != nil; c = c.Super {
		if c.Name == class {
			return true
		}
	}
	return false
}
