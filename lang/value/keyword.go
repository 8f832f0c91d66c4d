package value

import "bytes"

// Keyword is an interned, self-evaluating value conventionally used as a
// table/struct key or enum-like tag (spec §3.1, §4.5). Keywords print with a
// leading colon to distinguish them from Symbols at the same byte content.
type Keyword struct{ internedBytes }

var (
	_ Value   = (*Keyword)(nil)
	_ Ordered = (*Keyword)(nil)
	_ HasHash = (*Keyword)(nil)
)

func (k *Keyword) Type() Type { return TypeKeyword }

func (k *Keyword) String() string { return ":" + string(k.bytes) }

func (k *Keyword) Cmp(y Value) (int, error) {
	o := y.(*Keyword)
	return bytes.Compare(k.bytes, o.bytes), nil
}
