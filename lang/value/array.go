package value

import (
	"fmt"
	"strings"

	"github.com/ember-lang/ember/lang/heap"
)

// Array is a growable, mutable sequence of Values (spec §3.3). It is the
// mutable counterpart of Tuple: same element layout, different mutability
// and a distinct runtime type.
type Array struct {
	heap.Header
	elems []Value
}

var (
	_ Value       = (*Array)(nil)
	_ Indexable   = (*Array)(nil)
	_ HasSetIndex = (*Array)(nil)
	_ Sequence    = (*Array)(nil)
)

// NewArray allocates an Array with the given initial elements (copied) and
// registers it with h.
func NewArray(h *heap.Heap, elems []Value) *Array {
	a := &Array{elems: append([]Value(nil), elems...)}
	h.Track(a, heap.MemArray, uintptr(cap(a.elems))*8+24)
	h.Enable(a)
	return a
}

func (a *Array) Type() Type { return TypeArray }

func (a *Array) String() string {
	var b strings.Builder
	b.WriteByte('@')
	b.WriteByte('[')
	for i, e := range a.elems {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.String())
	}
	b.WriteByte(']')
	return b.String()
}

func (a *Array) Children(mark func(heap.Object)) {
	for _, e := range a.elems {
		if o, ok := e.(heap.Object); ok {
			mark(o)
		}
	}
}

func (a *Array) Len() int32 { return int32(len(a.elems)) }

func (a *Array) Index(i int32) Value { return a.elems[i] }

func (a *Array) SetIndex(i int32, v Value) error {
	a.elems[i] = v
	return nil
}

// Push appends v to the end of the array, growing its backing storage as
// needed (spec §3.3's "array_push" primitive).
func (a *Array) Push(v Value) {
	a.elems = append(a.elems, v)
}

// Pop removes and returns the last element. It returns an error if the
// array is empty.
func (a *Array) Pop() (Value, error) {
	n := len(a.elems)
	if n == 0 {
		return nil, fmt.Errorf("pop from empty array")
	}
	v := a.elems[n-1]
	a.elems[n-1] = nil
	a.elems = a.elems[:n-1]
	return v, nil
}

// Insert inserts v at position i, shifting subsequent elements right.
func (a *Array) Insert(i int32, v Value) error {
	if i < 0 || i > int32(len(a.elems)) {
		return fmt.Errorf("array index %d out of range", i)
	}
	a.elems = append(a.elems, nil)
	copy(a.elems[i+1:], a.elems[i:])
	a.elems[i] = v
	return nil
}

// Slice returns a new Array holding a copy of elements [from, to).
func (a *Array) Slice(h *heap.Heap, from, to int32) *Array {
	return NewArray(h, a.elems[from:to])
}

func (a *Array) Iterate() Iterator {
	return &arrayIterator{a: a}
}

type arrayIterator struct {
	a   *Array
	pos int
}

func (it *arrayIterator) Next(p *Value) bool {
	if it.pos >= len(it.a.elems) {
		return false
	}
	*p = it.a.elems[it.pos]
	it.pos++
	return true
}

func (it *arrayIterator) Done() {}
