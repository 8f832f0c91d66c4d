package vm

import (
	"testing"

	"github.com/ember-lang/ember/lang/bytecode"
	"github.com/ember-lang/ember/lang/fiber"
	"github.com/ember-lang/ember/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbstractGetPutDefaultToVTable(t *testing.T) {
	vm := New(0)
	data := map[string]value.Value{}
	a := NewAbstract(vm, &AbstractVTable{
		Name: "box",
		Get: func(d interface{}, key value.Value) (value.Value, bool, error) {
			v, ok := d.(map[string]value.Value)[key.String()]
			return v, ok, nil
		},
		Put: func(d interface{}, key, val value.Value) error {
			d.(map[string]value.Value)[key.String()] = val
			return nil
		},
	}, data)

	sc := value.NewStringCache(vm.Heap)
	key := sc.Intern([]byte("x"))

	_, found, err := a.Get(key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, a.SetKey(key, value.Number(7)))
	v, found, err := a.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, value.Number(7), v)
}

func TestAbstractWithoutHooksHasSafeDefaults(t *testing.T) {
	vm := New(0)
	a := NewAbstract(vm, &AbstractVTable{Name: "opaque"}, nil)

	_, found, err := a.Get(value.Nil)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Error(t, a.SetKey(value.Nil, value.Nil))
	assert.Equal(t, "<abstract opaque>", a.String())

	c, err := a.Cmp(a)
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	b := NewAbstract(vm, &AbstractVTable{Name: "opaque"}, nil)
	_, err = a.Cmp(b)
	assert.Error(t, err, "distinct abstract values with no compare hook are not comparable")
}

func TestAbstractFinalizeRunsGCHook(t *testing.T) {
	vm := New(0)
	finalized := false
	a := NewAbstract(vm, &AbstractVTable{
		Name: "resource",
		GC:   func(interface{}) { finalized = true },
	}, nil)
	vm.Heap.AddRoot(a)
	vm.Heap.Collect(nil)
	assert.False(t, finalized, "rooted abstract value must survive collection")

	vm.Heap.RemoveRoot(a)
	vm.Heap.Collect(nil)
	assert.True(t, finalized, "unrooted abstract value's GC hook must run on collection")
}

func TestAbstractCallableViaVTable(t *testing.T) {
	vm := New(0)
	adder := NewAbstract(vm, &AbstractVTable{
		Name: "adder",
		Call: func(vm *VM, data interface{}, args []value.Value) (value.Value, error) {
			n, err := ArgNumber(args, 0)
			if err != nil {
				return nil, err
			}
			return n + 1, nil
		},
	}, nil)

	callerDef := trackDef(vm, &bytecode.FuncDef{
		Name:      "caller",
		SlotCount: 4,
		Constants: []value.Value{adder},
		Code: []bytecode.Instr{
			bytecode.EncodeSU(bytecode.LOAD_CONSTANT, 0, 0),
			bytecode.EncodeSI(bytecode.LOAD_INTEGER, 1, 41),
			bytecode.EncodeS(bytecode.PUSH, 1),
			bytecode.EncodeSS(bytecode.CALL, 2, 0),
			bytecode.EncodeS(bytecode.RETURN, 2),
		},
	})
	require.NoError(t, bytecode.Verify(callerDef))
	callerFn := bytecode.NewFunction(vm.Heap, callerDef, nil)

	f := vm.NewFiber(callerFn, 16)
	sig, result, err := vm.Resume(f, value.Nil)
	require.NoError(t, err)
	assert.Equal(t, fiber.SignalOk, sig)
	assert.Equal(t, value.Number(42), result)
}

func TestAbstractIteratesViaNextHook(t *testing.T) {
	vm := New(0)
	keys := []value.Value{value.Number(1), value.Number(2), value.Number(3)}
	a := NewAbstract(vm, &AbstractVTable{
		Name: "seq",
		Next: func(data interface{}, key value.Value) (value.Value, value.Value, bool, error) {
			idx := 0
			if key != nil {
				for i, k := range keys {
					if eq, _ := value.Equals(k, key); eq {
						idx = i + 1
						break
					}
				}
			}
			if idx >= len(keys) {
				return nil, nil, false, nil
			}
			return keys[idx], keys[idx], true, nil
		},
	}, nil)

	it := a.Iterate()
	var got []value.Value
	var v value.Value
	for it.Next(&v) {
		got = append(got, v)
	}
	it.Done()
	assert.Equal(t, keys, got)
}

func TestWrapPointerRoundTrips(t *testing.T) {
	type handle struct{ id int }
	p := value.WrapPointer(&handle{id: 9})
	assert.Equal(t, value.TypePointer, p.Type())
	got, ok := p.Data.(*handle)
	require.True(t, ok)
	assert.Equal(t, 9, got.id)
}
