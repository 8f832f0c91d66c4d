package value

import "fmt"

// Pointer is an opaque host-data capsule (spec §3.1's "pointer" type): the
// interpreter never looks inside it, tracks it with Ember's own heap, or
// gives it any behavior beyond identity. A host embedding Ember uses it to
// thread an arbitrary Go value through Ember code untouched — a file
// handle, a connection, anything the host alone understands — without
// paying for an Abstract value's vtable machinery.
type Pointer struct {
	Data interface{}
}

var _ Value = (*Pointer)(nil)

// WrapPointer is spec §6.1's "wrap_pointer": a total constructor from any Go
// value to a Pointer, always succeeding.
func WrapPointer(data interface{}) *Pointer {
	return &Pointer{Data: data}
}

func (p *Pointer) Type() Type { return TypePointer }

func (p *Pointer) String() string { return fmt.Sprintf("<pointer %p>", p) }
