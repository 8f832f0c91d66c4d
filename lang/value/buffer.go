package value

import (
	"fmt"

	"github.com/ember-lang/ember/lang/heap"
)

// Buffer is a mutable byte string, used for incremental string building and
// as a mutable binary-data container (spec §3.3).
type Buffer struct {
	heap.Header
	bytes []byte
}

var (
	_ Value     = (*Buffer)(nil)
	_ Indexable = (*Buffer)(nil)
	_ Sequence  = (*Buffer)(nil)
)

// NewBuffer allocates a Buffer seeded with a copy of initial, registering it
// with h.
func NewBuffer(h *heap.Heap, initial []byte) *Buffer {
	b := &Buffer{bytes: append([]byte(nil), initial...)}
	h.Track(b, heap.MemBuffer, uintptr(cap(b.bytes))+24)
	h.Enable(b)
	return b
}

func (b *Buffer) Type() Type { return TypeBuffer }

func (b *Buffer) String() string { return string(b.bytes) }

func (b *Buffer) Children(func(heap.Object)) {} // holds only raw bytes

func (b *Buffer) Len() int32 { return int32(len(b.bytes)) }

func (b *Buffer) Index(i int32) Value { return Number(b.bytes[i]) }

func (b *Buffer) Iterate() Iterator { return &bufferIterator{b: b} }

type bufferIterator struct {
	b   *Buffer
	pos int
}

func (it *bufferIterator) Next(p *Value) bool {
	if it.pos >= len(it.b.bytes) {
		return false
	}
	*p = Number(it.b.bytes[it.pos])
	it.pos++
	return true
}

func (it *bufferIterator) Done() {}

// Push appends raw bytes to the buffer.
func (b *Buffer) Push(p []byte) {
	b.bytes = append(b.bytes, p...)
}

// PushString appends the bytes of an interned String.
func (b *Buffer) PushString(s *String) {
	b.bytes = append(b.bytes, s.bytes...)
}

// Clear truncates the buffer to zero length without releasing capacity.
func (b *Buffer) Clear() {
	b.bytes = b.bytes[:0]
}

// Popn removes and discards the last n bytes. It errors if n exceeds the
// current length.
func (b *Buffer) Popn(n int32) error {
	if int(n) > len(b.bytes) {
		return fmt.Errorf("cannot pop %d bytes from a %d-byte buffer", n, len(b.bytes))
	}
	b.bytes = b.bytes[:len(b.bytes)-int(n)]
	return nil
}

// ToString interns the buffer's current content as an immutable String.
func (b *Buffer) ToString(cache *StringCache) *String {
	return cache.Intern(b.bytes)
}
