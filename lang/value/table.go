package value

import (
	"fmt"
	"strings"

	"github.com/ember-lang/ember/lang/heap"
)

// WeakMode controls which side of a Table's entries is held weakly: a weak
// reference does not keep its referent alive, and is cleared once the
// referent would otherwise be collected (spec §4.1, "weak tables").
type WeakMode uint8

const (
	WeakNone WeakMode = iota
	WeakKeys
	WeakValues
	WeakKeysAndValues
)

type tableEntry struct {
	key   Value
	value Value
	tomb  bool
}

// Table is Ember's general-purpose open-addressed hash map from Value to
// Value, with optional single-parent prototype inheritance and optional
// weak keys/values (spec §3.3, §4.1). Capacity is always zero or a power of
// two, and 0 <= count+deleted <= capacity always holds (spec §8 property
// 5) — invariants that ruled out reusing dolthub/swiss here; see DESIGN.md.
type Table struct {
	heap.Header
	entries []tableEntry
	count   int
	deleted int
	proto   *Table
	weak    WeakMode
}

var (
	_ Value       = (*Table)(nil)
	_ Mapping     = (*Table)(nil)
	_ HasSetKey   = (*Table)(nil)
	_ heap.Object = (*Table)(nil)
)

const tableMaxLoad = 0.7

// MaxPrototypeDepth bounds how many links Get walks up a Table's proto
// chain before giving up, per spec §3.3's "chained lookup up to a depth
// bound". It catches a cyclic or pathologically deep chain with an error
// instead of hanging or overflowing the Go stack; legitimate prototype
// chains (single-digit depth in practice) never come close to it.
const MaxPrototypeDepth = 64

// NewTable allocates an empty Table with the given initial capacity hint
// (rounded up to a power of two) and weak mode, and registers it with h.
func NewTable(h *heap.Heap, sizeHint int, weak WeakMode) *Table {
	t := &Table{weak: weak}
	if sizeHint > 0 {
		t.entries = make([]tableEntry, nextPow2(sizeHint))
	}
	h.Track(t, heap.MemTable, uintptr(cap(t.entries))*32+32)
	h.Enable(t)
	if weak != WeakNone {
		h.RegisterWeak(t)
	}
	return t
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (t *Table) Type() Type { return TypeTable }

func (t *Table) String() string {
	var b strings.Builder
	b.WriteByte('@')
	b.WriteByte('{')
	first := true
	for _, e := range t.entries {
		if e.key == nil || e.tomb {
			continue
		}
		if !first {
			b.WriteByte(' ')
		}
		first = false
		fmt.Fprintf(&b, "%s %s", e.key, e.value)
	}
	b.WriteByte('}')
	return b.String()
}

func (t *Table) weakKey() bool { return t.weak == WeakKeys || t.weak == WeakKeysAndValues }
func (t *Table) weakVal() bool { return t.weak == WeakValues || t.weak == WeakKeysAndValues }

func (t *Table) Children(mark func(heap.Object)) {
	if t.proto != nil {
		mark(t.proto)
	}
	weakKey, weakVal := t.weakKey(), t.weakVal()
	for _, e := range t.entries {
		if e.key == nil || e.tomb {
			continue
		}
		if !weakKey {
			if o, ok := e.key.(heap.Object); ok {
				mark(o)
			}
		}
		if !weakVal {
			if o, ok := e.value.(heap.Object); ok {
				mark(o)
			}
		}
	}
}

// ScanWeak clears entries whose weakly-held key or value did not survive
// the current collection's mark phase.
func (t *Table) ScanWeak(isLive func(heap.Object) bool) {
	if t.weak == WeakNone {
		return
	}
	weakKey, weakVal := t.weakKey(), t.weakVal()
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil || e.tomb {
			continue
		}
		dead := false
		if weakKey {
			if o, ok := e.key.(heap.Object); ok && !isLive(o) {
				dead = true
			}
		}
		if !dead && weakVal {
			if o, ok := e.value.(heap.Object); ok && !isLive(o) {
				dead = true
			}
		}
		if dead {
			e.key, e.value = tombKey{}, nil
			e.tomb = true
			t.count--
			t.deleted++
		}
	}
}

// SetPrototype sets the table's single prototype, consulted by Get when a
// key is absent locally (spec's "bounded-depth prototype chain").
func (t *Table) SetPrototype(proto *Table) { t.proto = proto }

func (t *Table) Prototype() *Table { return t.proto }

func (t *Table) Len() int32 { return int32(t.count) }

// find locates key's slot: if present, returns its index and true; if
// absent, returns the index at which it should be inserted (preferring a
// tombstone) and false. Panics if called on a zero-capacity table; callers
// must grow first.
func (t *Table) find(key Value) (int, bool) {
	mask := len(t.entries) - 1
	idx := int(Hash(key)) & mask
	firstTomb := -1
	for i := 0; i <= mask; i++ {
		e := &t.entries[idx]
		if e.key == nil {
			if firstTomb >= 0 {
				return firstTomb, false
			}
			return idx, false
		}
		if e.tomb {
			if firstTomb < 0 {
				firstTomb = idx
			}
		} else {
			eq, _ := Equals(e.key, key)
			if eq {
				return idx, true
			}
		}
		idx = (idx + 1) & mask
	}
	if firstTomb >= 0 {
		return firstTomb, false
	}
	return -1, false
}

func (t *Table) grow() {
	old := t.entries
	newCap := nextPow2(len(old)*2 + 1)
	if newCap < 8 {
		newCap = 8
	}
	t.entries = make([]tableEntry, newCap)
	t.count, t.deleted = 0, 0
	for _, e := range old {
		if e.key == nil || e.tomb {
			continue
		}
		t.rawInsert(e.key, e.value)
	}
}

func (t *Table) rawInsert(key, value Value) {
	idx, _ := t.find(key)
	if t.entries[idx].key == nil {
		t.count++
	}
	t.entries[idx] = tableEntry{key: key, value: value}
}

// Get looks up key locally, then in the prototype chain, up to
// MaxPrototypeDepth links.
func (t *Table) Get(key Value) (Value, bool, error) {
	cur := t
	for depth := 0; cur != nil; depth++ {
		if depth >= MaxPrototypeDepth {
			return Nil, false, fmt.Errorf("prototype chain exceeds max depth %d", MaxPrototypeDepth)
		}
		if len(cur.entries) != 0 {
			idx, found := cur.find(key)
			if found {
				return cur.entries[idx].value, true, nil
			}
		}
		cur = cur.proto
	}
	return Nil, false, nil
}

// SetKey inserts or updates key in the local table (never the prototype).
func (t *Table) SetKey(key, val Value) error {
	if len(t.entries) == 0 || float64(t.count+t.deleted+1) > tableMaxLoad*float64(len(t.entries)) {
		t.grow()
	}
	idx, found := t.find(key)
	wasTomb := !found && idx >= 0 && t.entries[idx].tomb
	if !found {
		t.count++
		if wasTomb {
			t.deleted--
		}
	}
	t.entries[idx] = tableEntry{key: key, value: val}
	return nil
}

// Delete removes key from the local table, leaving a tombstone. It reports
// whether the key was present.
func (t *Table) Delete(key Value) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx, found := t.find(key)
	if !found {
		return false
	}
	t.entries[idx] = tableEntry{tomb: true, key: tombKey{}}
	t.count--
	t.deleted++
	return true
}

// tombKey is a private sentinel stored in a deleted slot's key field so that
// find's "e.key == nil means empty" check continues to distinguish empty
// slots from tombstoned ones.
type tombKey struct{}

func (tombKey) String() string { return "<tombstone>" }
func (tombKey) Type() Type     { return numTypes } // never matches a real Type

func (t *Table) Iterate() Iterator { return &tableIterator{t: t} }

type tableIterator struct {
	t   *Table
	pos int
}

func (it *tableIterator) Next(p *Value) bool {
	for it.pos < len(it.t.entries) {
		e := it.t.entries[it.pos]
		it.pos++
		if e.key != nil && !e.tomb {
			*p = e.key
			return true
		}
	}
	return false
}

func (it *tableIterator) Done() {}
