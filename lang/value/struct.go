package value

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ember-lang/ember/lang/heap"
)

type structEntry struct {
	key   Value
	value Value
}

// Struct is Ember's immutable counterpart to Table: a fixed key/value
// mapping built once at construction time, with a single optional
// prototype. Unlike Table, two Structs with the same entries must hash and
// compare equal bit-for-bit regardless of the order their entries were
// supplied in (spec §8 property), so construction inserts entries in a
// canonical (hash, printed-key) order into a deterministic open-addressed
// layout rather than preserving caller order.
type Struct struct {
	heap.Header
	buckets []structEntry // len is a power of two; empty slots have nil key
	count   int
	proto   *Struct
}

var (
	_ Value   = (*Struct)(nil)
	_ Mapping = (*Struct)(nil)
	_ HasHash = (*Struct)(nil)
	_ HasEqual = (*Struct)(nil)
)

// NewStruct builds an immutable Struct from pairs, deduplicating by key
// (last write wins, matching the documented construction order), and
// registers it with h.
func NewStruct(h *heap.Heap, pairs []structEntry, proto *Struct) *Struct {
	dedup := make(map[uint64][]structEntry, len(pairs))
	order := make([]uint64, 0, len(pairs))
	for _, p := range pairs {
		hk := Hash(p.key)
		bucket := dedup[hk]
		replaced := false
		for i, e := range bucket {
			if eq, _ := Equals(e.key, p.key); eq {
				bucket[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			if len(bucket) == 0 {
				order = append(order, hk)
			}
			dedup[hk] = append(bucket, p)
		}
	}
	flat := make([]structEntry, 0, len(pairs))
	for _, hk := range order {
		flat = append(flat, dedup[hk]...)
	}
	sort.Slice(flat, func(i, j int) bool {
		hi, hj := Hash(flat[i].key), Hash(flat[j].key)
		if hi != hj {
			return hi < hj
		}
		return flat[i].key.String() < flat[j].key.String()
	})

	capacity := nextPow2(len(flat)*4 + 1)
	if capacity < 8 {
		capacity = 8
	}
	s := &Struct{buckets: make([]structEntry, capacity), proto: proto}
	mask := capacity - 1
	for _, e := range flat {
		idx := int(Hash(e.key)) & mask
		for s.buckets[idx].key != nil {
			idx = (idx + 1) & mask
		}
		s.buckets[idx] = e
		s.count++
	}
	h.Track(s, heap.MemStruct, uintptr(capacity)*32+32)
	h.Enable(s)
	return s
}

func (s *Struct) Type() Type { return TypeStruct }

func (s *Struct) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for _, e := range s.buckets {
		if e.key == nil {
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

func (s *Struct) Children(mark func(heap.Object)) {
	if s.proto != nil {
		mark(s.proto)
	}
	for _, e := range s.buckets {
		if e.key == nil {
			continue
		}
		if o, ok := e.key.(heap.Object); ok {
			mark(o)
		}
		if o, ok := e.value.(heap.Object); ok {
			mark(o)
		}
	}
}

func (s *Struct) Len() int32 { return int32(s.count) }

func (s *Struct) Prototype() *Struct { return s.proto }

func (s *Struct) Get(key Value) (Value, bool, error) {
	for cur := s; cur != nil; cur = cur.proto {
		mask := len(cur.buckets) - 1
		idx := int(Hash(key)) & mask
		for i := 0; i <= mask; i++ {
			e := cur.buckets[idx]
			if e.key == nil {
				break
			}
			if eq, _ := Equals(e.key, key); eq {
				return e.value, true, nil
			}
			idx = (idx + 1) & mask
		}
	}
	return Nil, false, nil
}

func (s *Struct) Iterate() Iterator { return &structIterator{s: s} }

type structIterator struct {
	s   *Struct
	pos int
}

func (it *structIterator) Next(p *Value) bool {
	for it.pos < len(it.s.buckets) {
		e := it.s.buckets[it.pos]
		it.pos++
		if e.key != nil {
			*p = e.key
			return true
		}
	}
	return false
}

func (it *structIterator) Done() {}

// Hash combines every entry's key/value hash so that structurally equal
// structs always hash equal, independent of original construction order
// (the canonical bucket layout already guarantees equal content produces
// an identical buckets slice, so this could also walk buckets directly).
func (s *Struct) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for _, e := range s.buckets {
		if e.key == nil {
			continue
		}
		h = (h ^ Hash(e.key)) * 1099511628211
		h = (h ^ Hash(e.value)) * 1099511628211
	}
	return h
}

func (s *Struct) Equals(y Value) (bool, error) {
	o, ok := y.(*Struct)
	if !ok {
		return false, nil
	}
	if s.count != o.count {
		return false, nil
	}
	for _, e := range s.buckets {
		if e.key == nil {
			continue
		}
		ov, found, _ := o.Get(e.key)
		if !found {
			return false, nil
		}
		eq, err := Equals(e.value, ov)
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}
