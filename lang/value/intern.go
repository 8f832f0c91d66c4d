package value

import (
	"github.com/dolthub/swiss"
	"github.com/ember-lang/ember/lang/heap"
)

// internedBytes is the shared representation behind String, Symbol and
// Keyword: an immutable, heap-managed byte sequence with a precomputed hash.
// Spec §3.3 ("Header stores length and precomputed hash") and §4.5 ("During
// sweep, any intern entry whose referent is being freed must be erased from
// the cache") are implemented once here and reused by all three types.
type internedBytes struct {
	heap.Header
	bytes []byte
	hash  uint64
	evict func() // removes this value from its owning intern cache
}

func (b *internedBytes) Len() int32       { return int32(len(b.bytes)) }
func (b *internedBytes) Bytes() []byte    { return b.bytes }
func (b *internedBytes) Hash() uint64     { return b.hash }
func (b *internedBytes) Children(func(heap.Object)) {} // leaf: no heap-managed children
func (b *internedBytes) Finalize() {
	if b.evict != nil {
		b.evict()
	}
}

// fnvHash computes a 64-bit FNV-1a hash, used as the precomputed hash for
// every interned value and reused by Table/Struct for scalar keys.
func fnvHash(b []byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime64
	}
	return h
}

// StringCache interns String values, keyed by content.
type StringCache struct {
	h *heap.Heap
	m *swiss.Map[string, *String]
}

func NewStringCache(h *heap.Heap) *StringCache {
	return &StringCache{h: h, m: swiss.NewMap[string, *String](64)}
}

// Intern returns the unique *String for the given bytes, allocating and
// registering a new one only if no equal string is already cached.
func (c *StringCache) Intern(b []byte) *String {
	key := string(b)
	if s, ok := c.m.Get(key); ok {
		return s
	}
	s := &String{internedBytes{bytes: []byte(key), hash: fnvHash(b)}}
	s.evict = func() { c.m.Delete(key) }
	c.h.Track(s, heap.MemString, uintptr(len(b))+32)
	c.h.Enable(s)
	c.m.Put(key, s)
	return s
}

func (c *StringCache) Len() int { return c.m.Count() }

// SymbolCache interns Symbol values, keyed by content.
type SymbolCache struct {
	h *heap.Heap
	m *swiss.Map[string, *Symbol]
}

func NewSymbolCache(h *heap.Heap) *SymbolCache {
	return &SymbolCache{h: h, m: swiss.NewMap[string, *Symbol](64)}
}

func (c *SymbolCache) Intern(b []byte) *Symbol {
	key := string(b)
	if s, ok := c.m.Get(key); ok {
		return s
	}
	s := &Symbol{internedBytes{bytes: []byte(key), hash: fnvHash(b)}}
	s.evict = func() { c.m.Delete(key) }
	c.h.Track(s, heap.MemSymbol, uintptr(len(b))+32)
	c.h.Enable(s)
	c.m.Put(key, s)
	return s
}

func (c *SymbolCache) Len() int { return c.m.Count() }

// KeywordCache interns Keyword values, keyed by content.
type KeywordCache struct {
	h *heap.Heap
	m *swiss.Map[string, *Keyword]
}

func NewKeywordCache(h *heap.Heap) *KeywordCache {
	return &KeywordCache{h: h, m: swiss.NewMap[string, *Keyword](64)}
}

func (c *KeywordCache) Intern(b []byte) *Keyword {
	key := string(b)
	if k, ok := c.m.Get(key); ok {
		return k
	}
	k := &Keyword{internedBytes{bytes: []byte(key), hash: fnvHash(b)}}
	k.evict = func() { c.m.Delete(key) }
	c.h.Track(k, heap.MemKeyword, uintptr(len(b))+32)
	c.h.Enable(k)
	c.m.Put(key, k)
	return k
}

func (c *KeywordCache) Len() int { return c.m.Count() }
