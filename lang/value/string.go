package value

import (
	"bytes"
	"fmt"
)

// String is an immutable, interned byte sequence (spec §3.1, §4.5). Equal
// strings are always pointer-identical: callers obtain Strings exclusively
// through a StringCache, never by constructing the type directly.
type String struct{ internedBytes }

var (
	_ Value      = (*String)(nil)
	_ Ordered    = (*String)(nil)
	_ HasHash    = (*String)(nil)
	_ Indexable  = (*String)(nil)
	_ Sequence   = (*String)(nil)
)

func (s *String) Type() Type { return TypeString }

func (s *String) String() string { return string(s.bytes) }

func (s *String) GoString() string { return fmt.Sprintf("%q", s.bytes) }

func (s *String) Cmp(y Value) (int, error) {
	o := y.(*String)
	return bytes.Compare(s.bytes, o.bytes), nil
}

// Len reports the number of bytes in the string (strings are byte sequences,
// not Unicode scalar sequences, per the Glossary's "byte-oriented").
func (s *String) Len() int32 { return int32(len(s.bytes)) }

// Index returns the byte at position i as a single-byte Number.
func (s *String) Index(i int32) Value {
	return Number(s.bytes[i])
}

func (s *String) Iterate() Iterator {
	return &stringIterator{s: s}
}

type stringIterator struct {
	s   *String
	pos int
}

func (it *stringIterator) Next(p *Value) bool {
	if it.pos >= len(it.s.bytes) {
		return false
	}
	*p = Number(it.s.bytes[it.pos])
	it.pos++
	return true
}

func (it *stringIterator) Done() {}

// Slice returns the substring [from, to), sharing no memory with s: the
// result is interned fresh through cache.
func (s *String) Slice(cache *StringCache, from, to int32) *String {
	return cache.Intern(s.bytes[from:to])
}

// Concat returns the interned concatenation of s and o.
func (s *String) Concat(cache *StringCache, o *String) *String {
	buf := make([]byte, 0, len(s.bytes)+len(o.bytes))
	buf = append(buf, s.bytes...)
	buf = append(buf, o.bytes...)
	return cache.Intern(buf)
}
