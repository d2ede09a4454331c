// Package vm executes recorded compilation units. It is the reference
// backend for the lowering engine: every primitive's stack effect and
// every protected-region rule is checked by running programs on it.
package vm

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/joomcode/errorx"

	"rblower/compiler-go/pkg/emit"
	"rblower/compiler-go/pkg/runtime"
)

type Options struct {
	// MaxCallDepth bounds nested method and block activations.
	MaxCallDepth int
	Stdout       io.Writer
	Logger       *slog.Logger
}

func DefaultOptions() Options {
	return Options{MaxCallDepth: 1000, Stdout: os.Stdout}
}

// VM holds one program's global state. It is not safe for concurrent use;
// run independent programs on independent VMs.
type VM struct {
	opts   Options
	logger *slog.Logger

	globals       map[string]runtime.Value
	globalAliases map[string]string
	atExit        []*runtime.ProcValue
	regexps       map[string]*regexp.Regexp
	depth         int
	exitStatus    int

	main *runtime.ObjectValue

	basicObject, object, module, class  *runtime.ClassValue
	kernel, comparable, enumerable      *runtime.ClassValue
	nilClass, trueClass, falseClass     *runtime.ClassValue
	numeric, integer, float             *runtime.ClassValue
	str, symbol, array, hash, rangeType *runtime.ClassValue
	regexpType, matchData, proc         *runtime.ClassValue
	binding, exception, standardError   *runtime.ClassValue
}

func New(opts Options) *VM {
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = DefaultOptions().MaxCallDepth
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	vm := &VM{
		opts:          opts,
		logger:        logger,
		globals:       map[string]runtime.Value{},
		globalAliases: map[string]string{},
		regexps:       map[string]*regexp.Regexp{},
	}
	vm.bootstrap()
	return vm
}

// ExitStatus is the status passed to exit, or 0.
func (vm *VM) ExitStatus() int { return vm.exitStatus }

// Global reads a global variable.
func (vm *VM) Global(name string) runtime.Value {
	return vm.loadGlobal(name)
}

// Run executes a root unit and then the registered END blocks, last
// registered first. It returns the value of the program's last expression.
func (vm *VM) Run(unit *emit.Unit) (runtime.Value, error) {
	if unit == nil || unit.Spec.Kind != emit.UnitRoot {
		return nil, errorx.IllegalArgument.New("vm: expected a root unit")
	}
	vm.logger.Debug("running unit", "unit", unit.UnitID(), "name", unit.Spec.Name)
	frame := &runtime.Frame{
		Self:       vm.main,
		Lexical:    vm.object,
		Visibility: runtime.Private,
		Allocated:  unit.Spec.CallConfig.HasFrame(),
	}
	act := vm.newActivation(unit, runtime.NewEnv(unit.Spec.Scope, nil), vm.main, frame, vm.object)
	result, err := act.run()
	if rs, ok := err.(returnSignal); ok && rs.frame == frame {
		result, err = rs.value, nil
	}
	frame.Returned = true
	err = vm.finish(act, err)
	for len(vm.atExit) > 0 {
		last := vm.atExit[len(vm.atExit)-1]
		vm.atExit = vm.atExit[:len(vm.atExit)-1]
		if _, exitErr := act.CallProc(last, nil); exitErr != nil && err == nil {
			err = vm.finish(act, exitErr)
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// finish maps what escaped the root activation to the error Run reports.
func (vm *VM) finish(act *activation, err error) error {
	switch e := err.(type) {
	case nil:
		return nil
	case *RaiseError:
		if vm.isA(e.Exception, vm.classNamed("SystemExit")) {
			if status, ok := e.Exception.Ivars["@status"].(runtime.IntegerValue); ok {
				code, _ := status.Int64()
				vm.exitStatus = int(code)
			}
			return nil
		}
		vm.logger.Debug("uncaught exception", "class", e.Class, "message", e.Message)
		return e
	case breakSignal:
		return act.Raise("LocalJumpError", "break from proc-closure")
	case returnSignal:
		return act.Raise("LocalJumpError", "unexpected return")
	case throwSignal:
		return act.raiseWith("UncaughtThrowError", map[string]runtime.Value{"@tag": e.tag, "@value": e.value}, "uncaught throw %s", runtime.Inspect(e.tag))
	}
	return err
}

// classNamed resolves a constant path such as "Math::DomainError" from
// Object.
func (vm *VM) classNamed(name string) *runtime.ClassValue {
	cur := vm.object
	for _, part := range strings.Split(name, "::") {
		v, ok := cur.Consts[part]
		if !ok {
			return nil
		}
		c, ok := v.(*runtime.ClassValue)
		if !ok {
			return nil
		}
		cur = c
	}
	return cur
}
