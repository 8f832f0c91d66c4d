package vm

import (
	"fmt"
	"hash/fnv"

	"github.com/ember-lang/ember/lang/heap"
	"github.com/ember-lang/ember/lang/value"
)

// AbstractVTable is the set of hooks an abstract value may supply (spec
// §6.3 "Abstract type interface"). Every field is nullable; a nil hook
// falls back to a default behavior documented on the corresponding Abstract
// method, the same "each may be null for the default behavior" contract
// spec §6.3 describes.
type AbstractVTable struct {
	Name string

	GC       func(data interface{})
	GCMark   func(data interface{}, mark func(heap.Object))
	Get      func(data interface{}, key value.Value) (value.Value, bool, error)
	Put      func(data interface{}, key, val value.Value) error
	Marshal  func(data interface{}) ([]byte, error)
	Unmarshal func(raw []byte) (interface{}, error)
	ToString func(data interface{}) string
	Compare  func(a, b interface{}) (int, error)
	Hash     func(data interface{}) uint64
	Next     func(data interface{}, key value.Value) (nextKey, val value.Value, ok bool, err error)
	Call     func(vm *VM, data interface{}, args []value.Value) (value.Value, error)
}

// Abstract is a host-defined runtime value whose behavior is entirely
// supplied by a vtable (spec §3.1's "abstract" type, §6.3's vtable
// contract). Where spec describes a C-style block header holding a vtable
// pointer with value data immediately following it, Go's interface system
// lets Data simply be whatever the host wants — there is no reason to lay
// out raw bytes by hand the way spec's reference host language does.
type Abstract struct {
	heap.Header
	vm   *VM
	vt   *AbstractVTable
	Data interface{}
}

var (
	_ heap.Object     = (*Abstract)(nil)
	_ heap.Finalizer  = (*Abstract)(nil)
	_ value.Value     = (*Abstract)(nil)
	_ value.Callable  = (*Abstract)(nil)
	_ value.Mapping   = (*Abstract)(nil)
	_ value.HasSetKey = (*Abstract)(nil)
	_ value.Ordered   = (*Abstract)(nil)
	_ value.HasHash   = (*Abstract)(nil)
	_ value.Iterable  = (*Abstract)(nil)
)

// NewAbstract wraps data behind vt and registers it with vm's heap. vm is
// stored on the value but not read by any method: the Get and Put hooks
// receive no VM, and the Call hook receives the VM that dispatches the call.
func NewAbstract(vm *VM, vt *AbstractVTable, data interface{}) *Abstract {
	a := &Abstract{vm: vm, vt: vt, Data: data}
	vm.Heap.Track(a, heap.MemAbstract, 64)
	vm.Heap.Enable(a)
	return a
}

func (a *Abstract) Type() value.Type { return value.TypeAbstract }

func (a *Abstract) String() string {
	if a.vt != nil && a.vt.ToString != nil {
		return a.vt.ToString(a.Data)
	}
	return fmt.Sprintf("<abstract %s>", a.Name())
}

// Name satisfies value.Callable; it is also used as the default String/trace
// label when the vtable supplies no ToString hook.
func (a *Abstract) Name() string {
	if a.vt != nil && a.vt.Name != "" {
		return a.vt.Name
	}
	return "abstract"
}

// Children marks whatever the vtable's GCMark hook reaches. Without one, an
// abstract value is treated as a leaf: nothing reachable only through it
// survives collection, matching spec §6.3's "gcmark... may be null" default
// of no extra reachability.
func (a *Abstract) Children(mark func(heap.Object)) {
	if a.vt != nil && a.vt.GCMark != nil {
		a.vt.GCMark(a.Data, mark)
	}
}

// Finalize runs the vtable's GC hook, if any, when the heap reclaims a.
func (a *Abstract) Finalize() {
	if a.vt != nil && a.vt.GC != nil {
		a.vt.GC(a.Data)
	}
}

// Get implements value.Mapping. Without a Get hook, an abstract value has no
// readable fields: every key misses.
func (a *Abstract) Get(key value.Value) (value.Value, bool, error) {
	if a.vt == nil || a.vt.Get == nil {
		return value.Nil, false, nil
	}
	return a.vt.Get(a.Data, key)
}

// SetKey implements value.HasSetKey. Without a Put hook, an abstract value
// is read-only from Ember's perspective.
func (a *Abstract) SetKey(key, val value.Value) error {
	if a.vt == nil || a.vt.Put == nil {
		return fmt.Errorf("abstract value %s does not support field assignment", a.Name())
	}
	return a.vt.Put(a.Data, key, val)
}

// Cmp implements value.Ordered. Without a Compare hook, two abstract values
// are equal only if they are the same object.
func (a *Abstract) Cmp(y value.Value) (int, error) {
	other, ok := y.(*Abstract)
	if !ok {
		return 0, fmt.Errorf("cannot compare abstract value to %s", y.Type())
	}
	if a.vt == nil || a.vt.Compare == nil {
		if a == other {
			return 0, nil
		}
		return 0, fmt.Errorf("abstract value %s has no compare hook", a.Name())
	}
	return a.vt.Compare(a.Data, other.Data)
}

// Hash implements value.HasHash. Without a Hash hook, an abstract value
// hashes by identity, consistent with Cmp's identity-based default.
func (a *Abstract) Hash() uint64 {
	if a.vt != nil && a.vt.Hash != nil {
		return a.vt.Hash(a.Data)
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%p", a)
	return h.Sum64()
}

// Iterate implements value.Iterable by driving the vtable's Next hook the
// same way Table's iteration walks its entries: each call advances from the
// previous key (nil to start) and yields the next key, until Next reports
// no more. Without a Next hook, an abstract value iterates as empty.
func (a *Abstract) Iterate() value.Iterator {
	return &abstractIterator{a: a}
}

type abstractIterator struct {
	a   *Abstract
	key value.Value
}

func (it *abstractIterator) Next(p *value.Value) bool {
	if it.a.vt == nil || it.a.vt.Next == nil {
		return false
	}
	k, _, ok, err := it.a.vt.Next(it.a.Data, it.key)
	if err != nil || !ok {
		return false
	}
	it.key = k
	*p = k
	return true
}

func (it *abstractIterator) Done() {}

// MarshalBinary runs the vtable's Marshal hook, if any (spec §6.3 "marshal").
func (a *Abstract) MarshalBinary() ([]byte, error) {
	if a.vt == nil || a.vt.Marshal == nil {
		return nil, fmt.Errorf("abstract value %s has no marshal hook", a.Name())
	}
	return a.vt.Marshal(a.Data)
}

// UnmarshalAbstract reconstructs an Abstract value of the given vtable from
// bytes produced by a prior MarshalBinary call (spec §6.3 "unmarshal").
func UnmarshalAbstract(vm *VM, vt *AbstractVTable, raw []byte) (*Abstract, error) {
	if vt == nil || vt.Unmarshal == nil {
		return nil, fmt.Errorf("abstract vtable %q has no unmarshal hook", vtName(vt))
	}
	data, err := vt.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	return NewAbstract(vm, vt, data), nil
}

func vtName(vt *AbstractVTable) string {
	if vt == nil {
		return "<nil>"
	}
	return vt.Name
}
