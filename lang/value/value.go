// Package value implements Ember's tagged value system: the Value interface
// and its "tagged struct" representation (each concrete value carries an
// explicit Type tag alongside Go's own interface dispatch, see DESIGN.md for
// why NaN-boxing is not additionally implemented), the container types
// (array, tuple, buffer, table, struct, string/symbol/keyword), interning,
// and the free functions (Compare, Equals, Hash, NumberBinary, Truthy, ...) that
// give those types their cross-cutting runtime behavior.
package value

import "github.com/ember-lang/ember/lang/token"

// Type is the runtime type tag of a Value, corresponding 1:1 to spec §3.1's
// sixteen-member type union.
type Type uint8

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeString
	TypeSymbol
	TypeKeyword
	TypeArray
	TypeTuple
	TypeTable
	TypeStruct
	TypeBuffer
	TypeFunction
	TypeCFunction
	TypeFiber
	TypeAbstract
	TypePointer

	numTypes
)

var typeNames = [...]string{
	TypeNil:      "nil",
	TypeBool:     "boolean",
	TypeNumber:   "number",
	TypeString:   "string",
	TypeSymbol:   "symbol",
	TypeKeyword:  "keyword",
	TypeArray:    "array",
	TypeTuple:    "tuple",
	TypeTable:    "table",
	TypeStruct:   "struct",
	TypeBuffer:   "buffer",
	TypeFunction: "function",
	TypeCFunction: "cfunction",
	TypeFiber:    "fiber",
	TypeAbstract: "abstract",
	TypePointer:  "pointer",
}

func (t Type) String() string {
	if t < numTypes {
		return typeNames[t]
	}
	return "invalid"
}

// TypeMask is a bitset of Types, used by TYPECHECK and CheckTypes: bit i is
// set iff Type(i) is a member of the mask.
type TypeMask uint32

// Mask returns the single-bit TypeMask for t.
func (t Type) Mask() TypeMask { return TypeMask(1) << uint(t) }

// Has reports whether mask contains t.
func (m TypeMask) Has(t Type) bool { return m&t.Mask() != 0 }

// Value is the interface implemented by every value the machine can
// manipulate. Every concrete implementation also satisfies the "tagged
// struct" representation of spec §3.1 by reporting a single, constant Type.
type Value interface {
	// String returns the value's display representation.
	String() string
	// Type reports the value's runtime type tag.
	Type() Type
}

// Callable is implemented by any value that may be the operand of a function
// call. It only names the callee; the calls themselves are dispatched by the
// interpreter in lang/vm.
type Callable interface {
	Value
	Name() string
}

// Ordered is implemented by types whose values are totally ordered among
// values of the same type.
type Ordered interface {
	Value
	// Cmp compares the receiver to y, which is guaranteed to be of the same
	// concrete type. It returns <0, 0 or >0. Client code should call the
	// package-level Compare function instead of this method directly.
	Cmp(y Value) (int, error)
}

// HasEqual is implemented by types that define custom equality instead of
// deferring to Ordered or identity. A type should implement at most one of
// Ordered or HasEqual.
type HasEqual interface {
	Value
	Equals(y Value) (bool, error)
}

// HasHash is implemented by types whose hash is not simply derived from
// their Go representation (most container types need this; scalars hash
// directly).
type HasHash interface {
	Value
	Hash() uint64
}

// Iterator provides a sequence of values. Callers must call Done once
// finished. No sequence in this package tracks its active iterators, so
// mutating a sequence while it is being iterated is not detected.
type Iterator interface {
	Next(p *Value) bool
	Done()
}

// Iterable is implemented by values that can produce an Iterator. Unlike
// Sequence, the length need not be known ahead of iteration.
type Iterable interface {
	Value
	Iterate() Iterator
}

// Sequence is an Iterable of known length.
type Sequence interface {
	Iterable
	Len() int32
}

// Indexable is a Sequence that additionally supports O(1) random access.
type Indexable interface {
	Value
	Index(i int32) Value
	Len() int32
}

// HasSetIndex is an Indexable whose elements may be assigned (x[i] = y). The
// index is assumed already normalized (no negative "from end" indices).
type HasSetIndex interface {
	Indexable
	SetIndex(i int32, v Value) error
}

// Mapping is a mapping from keys to values (Table, Struct).
type Mapping interface {
	Value
	Get(k Value) (v Value, found bool, err error)
}

// HasSetKey supports map update via x[k] = v.
type HasSetKey interface {
	Mapping
	SetKey(k, v Value) error
}

// Side indicates which operand of a binary operator the receiver of
// HasBinary.Binary is.
type Side bool

const (
	Left  Side = false
	Right Side = true
)

// HasBinary is implemented by values that participate in binary operators
// beyond the built-in number/string handling. An implementation may decline
// to handle the operation by returning (nil, nil). The interpreter's
// arithmetic opcodes do not consult it; they accept Number operands only.
type HasBinary interface {
	Value
	Binary(op token.Token, y Value, side Side) (Value, error)
}

// HasUnary is the unary counterpart of HasBinary.
type HasUnary interface {
	Value
	Unary(op token.Token) (Value, error)
}

// HasAttrs is implemented by values exposing named fields or methods.
type HasAttrs interface {
	Value
	Attr(name string) (Value, error)
	AttrNames() []string
}

// HasSetField is the mutable counterpart of HasAttrs.
type HasSetField interface {
	HasAttrs
	SetField(name string, v Value) error
}

// NoSuchAttrError is returned by Attr/SetField to signal "no such field",
// allowing the runtime to augment the error with a misspelling hint.
type NoSuchAttrError string

func (e NoSuchAttrError) Error() string { return string(e) }

// Truthy reports the truth value of v: every value is truthy except Nil and
// False.
func Truthy(v Value) bool {
	switch v := v.(type) {
	case NilType:
		return false
	case Bool:
		return bool(v)
	default:
		return true
	}
}
