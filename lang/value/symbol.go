package value

import "bytes"

// Symbol is an interned identifier value, distinguished from String mainly
// by the fact that its textual form is never treated as printable data: it
// names a binding, a special form, or a table/struct key. Equal symbols are
// always pointer-identical (spec §3.1, §4.5).
type Symbol struct{ internedBytes }

var (
	_ Value   = (*Symbol)(nil)
	_ Ordered = (*Symbol)(nil)
	_ HasHash = (*Symbol)(nil)
)

func (s *Symbol) Type() Type { return TypeSymbol }

func (s *Symbol) String() string { return string(s.bytes) }

func (s *Symbol) Cmp(y Value) (int, error) {
	o := y.(*Symbol)
	return bytes.Compare(s.bytes, o.bytes), nil
}
