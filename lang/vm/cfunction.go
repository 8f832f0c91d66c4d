package vm

import (
	"fmt"

	"github.com/ember-lang/ember/lang/heap"
	"github.com/ember-lang/ember/lang/value"
)

// CFunctionImpl is a host function's implementation: it receives the VM and
// the already-evaluated argument view and returns a result (spec §6.4's
// "(argv, argc, ret_slot)" contract, flattened to a Go slice since Ember
// does not need to expose a raw register-slot view to host code).
type CFunctionImpl func(vm *VM, args []value.Value) (value.Value, error)

// CFunction is a host-implemented callable value (spec §3.1's cfunction
// type), the register-machine analogue of a Go-native builtin function
// registered into a global namespace.
type CFunction struct {
	heap.Header
	name string
	impl CFunctionImpl
}

var (
	_ heap.Object    = (*CFunction)(nil)
	_ value.Callable = (*CFunction)(nil)
)

// NewCFunction wraps impl as a callable CFunction value and registers it
// with h.
func NewCFunction(h *heap.Heap, name string, impl CFunctionImpl) *CFunction {
	f := &CFunction{name: name, impl: impl}
	h.Track(f, heap.MemFunction, 48)
	h.Enable(f)
	return f
}

func (f *CFunction) Type() value.Type { return value.TypeCFunction }
func (f *CFunction) String() string   { return fmt.Sprintf("<cfunction %s>", f.name) }
func (f *CFunction) Name() string     { return f.name }
func (f *CFunction) Children(func(heap.Object)) {}

// Fixarity returns a CFunctionImpl wrapper that rejects any call whose
// argument count is not exactly n, matching spec §4.3's fixarity(n) helper.
func Fixarity(n int, impl CFunctionImpl) CFunctionImpl {
	return func(vm *VM, args []value.Value) (value.Value, error) {
		if len(args) != n {
			return nil, newError(KindArity, "expected exactly %d argument(s), got %d", n, len(args))
		}
		return impl(vm, args)
	}
}

// Arity returns a CFunctionImpl wrapper that rejects calls whose argument
// count falls outside [min, max] (max < 0 means unbounded), matching spec
// §4.3's arity(min,max) helper.
func Arity(min, max int, impl CFunctionImpl) CFunctionImpl {
	return func(vm *VM, args []value.Value) (value.Value, error) {
		if len(args) < min || (max >= 0 && len(args) > max) {
			if max < 0 {
				return nil, newError(KindArity, "expected at least %d argument(s), got %d", min, len(args))
			}
			return nil, newError(KindArity, "expected between %d and %d argument(s), got %d", min, max, len(args))
		}
		return impl(vm, args)
	}
}

// ArgNumber validates and returns args[i] as a Number (spec's arg_<type>(i)
// helper family).
func ArgNumber(args []value.Value, i int) (value.Number, error) {
	n, ok := args[i].(value.Number)
	if !ok {
		return 0, newError(KindType, "argument %d: expected number, got %s", i, args[i].Type())
	}
	return n, nil
}

// ArgString validates and returns args[i] as a *value.String.
func ArgString(args []value.Value, i int) (*value.String, error) {
	s, ok := args[i].(*value.String)
	if !ok {
		return nil, newError(KindType, "argument %d: expected string, got %s", i, args[i].Type())
	}
	return s, nil
}
