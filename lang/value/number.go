package value

import (
	"fmt"
	"math"

	"github.com/ember-lang/ember/lang/numfmt"
	"github.com/ember-lang/ember/lang/token"
)

// Number is Ember's sole numeric value type: an IEEE-754 double, per spec
// §3.1 ("whether a dedicated integer tag exists is an implementation
// choice"). Integer-shaped numbers (those with no fractional part, within
// int32 range) additionally support the bitwise opcodes via AsInt32.
type Number float64

var (
	_ Value    = Number(0)
	_ Ordered  = Number(0)
	_ HasUnary = Number(0)
)

func (n Number) String() string {
	return numfmt.Format(float64(n))
}

func (n Number) Type() Type { return TypeNumber }

// AsInt32 reports whether n is integer-shaped and within int32 range, and
// its value as an int32 if so.
func (n Number) AsInt32() (int32, bool) {
	f := float64(n)
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int32(f), true
}

// Cmp implements comparison of two Number values. NaN is totally ordered as
// greater than every other number, consistent with spec §6.1's requirement
// that Compare be a total order and that Equals(x, x) hold for NaN used as a
// table/struct key.
func (n Number) Cmp(y Value) (int, error) {
	m := y.(Number)
	return numberCmp(n, m), nil
}

func numberCmp(x, y Number) int {
	fx, fy := float64(x), float64(y)
	switch {
	case fx > fy:
		return +1
	case fx < fy:
		return -1
	case fx == fy:
		return 0
	}
	// at least one is NaN
	switch {
	case fx == fx:
		return -1 // y is NaN
	case fy == fy:
		return +1 // x is NaN
	default:
		return 0 // both NaN
	}
}

// Unary implements +x, -x and ~x (bitwise not, integer-shaped only).
func (n Number) Unary(op token.Token) (Value, error) {
	switch op {
	case token.UPLUS:
		return n, nil
	case token.UMINUS:
		return -n, nil
	case token.TILDE:
		i, ok := n.AsInt32()
		if !ok {
			return nil, fmt.Errorf("bitwise not requires an integer-shaped number, got %s", n)
		}
		return Number(^i), nil
	}
	return nil, nil
}

// NumberBinary implements the arithmetic and bitwise binary operators for
// pairs of Numbers. Division by zero, integer-valued or not, yields the
// IEEE-754 infinities/NaN, matching "polymorphic forms coerce both operands
// to doubles"; the erroring integer division is IntDivide's.
func NumberBinary(op token.Token, x, y Number) (Value, error) {
	switch op {
	case token.PLUS:
		return x + y, nil
	case token.MINUS:
		return x - y, nil
	case token.STAR:
		return x * y, nil
	case token.SLASH:
		return x / y, nil
	case token.SLASHSLASH:
		return Number(math.Floor(float64(x / y))), nil
	case token.PERCENT:
		return Number(math.Mod(float64(x), float64(y))), nil
	case token.AMPERSAND, token.PIPE, token.CIRCUMFLEX, token.LTLT, token.GTGT, token.GTGTGT:
		xi, xok := x.AsInt32()
		yi, yok := y.AsInt32()
		if !xok || !yok {
			return nil, fmt.Errorf("bitwise operator %s requires integer-shaped numbers, got %s and %s", op, x, y)
		}
		return intBinary(op, xi, yi)
	}
	return nil, fmt.Errorf("unsupported number operator %s", op)
}

// IntDivide and IntModulo implement the strict integer-shaped variants of
// division and modulo used by the bytecode's *_INTEGER opcode forms (spec
// §4.3): unlike the polymorphic Number/DIVIDE, dividing by an integer zero
// raises an arithmetic error instead of producing an IEEE-754 infinity.
func IntDivide(x, y int32) (Value, error) {
	if y == 0 {
		return nil, fmt.Errorf("integer division by zero")
	}
	return Number(x / y), nil
}

func IntModulo(x, y int32) (Value, error) {
	if y == 0 {
		return nil, fmt.Errorf("integer division by zero")
	}
	return Number(x % y), nil
}

func intBinary(op token.Token, x, y int32) (Value, error) {
	switch op {
	case token.AMPERSAND:
		return Number(x & y), nil
	case token.PIPE:
		return Number(x | y), nil
	case token.CIRCUMFLEX:
		return Number(x ^ y), nil
	case token.LTLT:
		if y < 0 || y >= 32 {
			return nil, fmt.Errorf("shift amount %d out of range", y)
		}
		return Number(x << uint(y)), nil
	case token.GTGT:
		if y < 0 || y >= 32 {
			return nil, fmt.Errorf("shift amount %d out of range", y)
		}
		return Number(x >> uint(y)), nil
	case token.GTGTGT:
		if y < 0 || y >= 32 {
			return nil, fmt.Errorf("shift amount %d out of range", y)
		}
		return Number(int32(uint32(x) >> uint(y))), nil
	}
	return nil, fmt.Errorf("unsupported integer operator %s", op)
}
