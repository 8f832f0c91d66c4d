package value

import (
	"strings"

	"github.com/ember-lang/ember/lang/heap"
)

// Tuple is an immutable sequence of Values (spec §3.3). A tuple carries a
// "presentation form" bit distinguishing literal tuples `(a b c)` from
// bracketed tuples `[a b c]`; both compare and hash identically, the bit
// only affects printing.
type Tuple struct {
	heap.Header
	elems    []Value
	brackets bool
}

var (
	_ Value     = (*Tuple)(nil)
	_ Indexable = (*Tuple)(nil)
	_ Sequence  = (*Tuple)(nil)
	_ Ordered   = (*Tuple)(nil)
	_ HasHash   = (*Tuple)(nil)
)

// NewTuple allocates a Tuple holding a copy of elems and registers it with h.
func NewTuple(h *heap.Heap, elems []Value, brackets bool) *Tuple {
	t := &Tuple{elems: append([]Value(nil), elems...), brackets: brackets}
	h.Track(t, heap.MemTuple, uintptr(len(elems))*8+24)
	h.Enable(t)
	return t
}

func (t *Tuple) Type() Type { return TypeTuple }

func (t *Tuple) String() string {
	var b strings.Builder
	open, close := '(', ')'
	if t.brackets {
		open, close = '[', ']'
	}
	b.WriteRune(open)
	for i, e := range t.elems {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.String())
	}
	b.WriteRune(close)
	return b.String()
}

func (t *Tuple) Children(mark func(heap.Object)) {
	for _, e := range t.elems {
		if o, ok := e.(heap.Object); ok {
			mark(o)
		}
	}
}

func (t *Tuple) Len() int32 { return int32(len(t.elems)) }

func (t *Tuple) Index(i int32) Value { return t.elems[i] }

// Brackets reports whether t was written in bracketed presentation form.
func (t *Tuple) Brackets() bool { return t.brackets }

func (t *Tuple) Iterate() Iterator { return &tupleIterator{t: t} }

type tupleIterator struct {
	t   *Tuple
	pos int
}

func (it *tupleIterator) Next(p *Value) bool {
	if it.pos >= len(it.t.elems) {
		return false
	}
	*p = it.t.elems[it.pos]
	it.pos++
	return true
}

func (it *tupleIterator) Done() {}

// Cmp implements lexicographic comparison, required for Tuple to be usable
// as a Table/Struct key.
func (t *Tuple) Cmp(y Value) (int, error) {
	o := y.(*Tuple)
	n := len(t.elems)
	if len(o.elems) < n {
		n = len(o.elems)
	}
	for i := 0; i < n; i++ {
		c, err := Compare(t.elems[i], o.elems[i])
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return c, nil
		}
	}
	return len(t.elems) - len(o.elems), nil
}

func (t *Tuple) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for _, e := range t.elems {
		h = (h ^ Hash(e)) * 1099511628211
	}
	return h
}
