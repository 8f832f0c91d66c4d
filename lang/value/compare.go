package value

import (
	"fmt"
	"math"
	"reflect"
)

// Compare implements the total order over Values required by spec §6.1:
// values of different types order by their Type tag; values of the same
// type defer to Ordered.Cmp when available, or to Equals/identity otherwise.
func Compare(x, y Value) (int, error) {
	if x.Type() != y.Type() {
		if x.Type() < y.Type() {
			return -1, nil
		}
		return +1, nil
	}
	if ox, ok := x.(Ordered); ok {
		return ox.Cmp(y)
	}
	eq, err := Equals(x, y)
	if err != nil {
		return 0, err
	}
	if eq {
		return 0, nil
	}
	return 0, fmt.Errorf("values of type %s are not ordered", x.Type())
}

// Equals implements value equality: Ordered types compare equal when Cmp
// returns 0, HasEqual types defer to their own Equals, and everything else
// (Function, CFunction, Fiber, Abstract, Pointer) uses Go interface
// identity, which for the heap-allocated types coincides with pointer
// identity (spec §3.1's "identity comparison for reference types").
func Equals(x, y Value) (bool, error) {
	if x.Type() != y.Type() {
		return false, nil
	}
	switch xv := x.(type) {
	case Ordered:
		c, err := xv.Cmp(y)
		if err != nil {
			return false, err
		}
		return c == 0, nil
	case HasEqual:
		return xv.Equals(y)
	default:
		return x == y, nil
	}
}

// Hash implements the content hash used for Table and Struct keys (spec
// §4.5): HasHash types provide their own, Ordered scalars without one are
// hashed via their printed form, and reference types fall back to a
// pointer-derived hash.
func Hash(v Value) uint64 {
	switch h := v.(type) {
	case HasHash:
		return h.Hash()
	case Bool:
		return uint64(b2i(bool(h)))
	case NilType:
		return 0
	case Number:
		return numberHash(h)
	default:
		_, ordered := v.(Ordered)
		_, hasEqual := v.(HasEqual)
		if !ordered && !hasEqual && reflect.ValueOf(v).Kind() == reflect.Pointer {
			// Identity-compared reference types: hash the address, which stays
			// stable while the value's printed form changes under mutation.
			return fnvHash([]byte(fmt.Sprintf("%p", v)))
		}
		return fnvHash([]byte(v.String()))
	}
}

func numberHash(n Number) uint64 {
	if i, ok := n.AsInt32(); ok {
		// Ensure integer-valued floats (3.0) hash equal to their int32 form,
		// matching Cmp's treatment of them as equal under ==.
		return uint64(uint32(i)) * 2654435761
	}
	bits := math.Float64bits(float64(n))
	return bits ^ (bits >> 33)
}
