package numfmt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	f, err := Parse("123")
	require.NoError(t, err)
	assert.Equal(t, 123.0, f)

	f, err = Parse("-42.5")
	require.NoError(t, err)
	assert.Equal(t, -42.5, f)

	f, err = Parse("+7")
	require.NoError(t, err)
	assert.Equal(t, 7.0, f)
}

func TestParseHexPrefix(t *testing.T) {
	f, err := Parse("0xff")
	require.NoError(t, err)
	assert.Equal(t, 255.0, f)

	f, err = Parse("0XA")
	require.NoError(t, err)
	assert.Equal(t, 10.0, f)
}

func TestParseExplicitRadix(t *testing.T) {
	f, err := Parse("2r1010")
	require.NoError(t, err)
	assert.Equal(t, 10.0, f)

	f, err = Parse("36rZ")
	require.NoError(t, err)
	assert.Equal(t, 35.0, f)

	f, err = Parse("16r1.8")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)
}

func TestParseUnderscoreSeparator(t *testing.T) {
	f, err := Parse("1_000_000")
	require.NoError(t, err)
	assert.Equal(t, 1000000.0, f)

	_, err = Parse("_100")
	assert.Error(t, err)

	_, err = Parse("100_")
	assert.Error(t, err)

	_, err = Parse("1__0")
	assert.Error(t, err)
}

func TestParseExponentForm(t *testing.T) {
	f, err := Parse("1e3")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, f)

	f, err = Parse("1.5e-2")
	require.NoError(t, err)
	assert.Equal(t, 0.015, f)

	// base 16 assigns 'e' a digit value, so '&' introduces the exponent.
	f, err = Parse("0x1&4")
	require.NoError(t, err)
	assert.Equal(t, 65536.0, f)

	// 'e' is itself a valid hex digit, not an exponent marker, at base 16.
	f, err = Parse("0xe")
	require.NoError(t, err)
	assert.Equal(t, 14.0, f)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	_, err = Parse(".")
	assert.Error(t, err)

	_, err = Parse("1.2.3")
	assert.Error(t, err)

	_, err = Parse("99r1")
	assert.Error(t, err)

	_, err = Parse("2r2")
	assert.Error(t, err)
}

func TestFormatRoundTrip(t *testing.T) {
	cases := []float64{0, 1, -1, 42, 0.5, 123456789, -0.015, 1e21, 3.14159}
	for _, f := range cases {
		s := Format(f)
		back, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, f, back, "round trip of %v through %q", f, s)
	}
}

func TestFormatIntegerHasNoDecimalPoint(t *testing.T) {
	assert.Equal(t, "42", Format(42))
	assert.Equal(t, "0", Format(0))
	assert.Equal(t, "-7", Format(-7))
}

func TestFormatSpecialValues(t *testing.T) {
	assert.Equal(t, "nan", Format(math.NaN()))
	assert.Equal(t, "inf", Format(math.Inf(1)))
	assert.Equal(t, "-inf", Format(math.Inf(-1)))
}
