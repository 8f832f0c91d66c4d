package value

import (
	"testing"

	"github.com/ember-lang/ember/lang/heap"
	"github.com/ember-lang/ember/lang/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(Nil))
	assert.False(t, Truthy(False))
	assert.True(t, Truthy(True))
	assert.True(t, Truthy(Number(0)))
}

func TestNumberBinary(t *testing.T) {
	v, err := NumberBinary(token.PLUS, Number(2), Number(3))
	require.NoError(t, err)
	assert.Equal(t, Number(5), v)

	v, err = NumberBinary(token.SLASH, Number(1), Number(0))
	require.NoError(t, err)
	assert.True(t, float64(v.(Number)) > 1e300 || v.(Number) != v.(Number))
}

func TestIntDivideByZero(t *testing.T) {
	_, err := IntDivide(4, 0)
	assert.Error(t, err)
}

func TestNumberCmpNaN(t *testing.T) {
	nan := Number(0)
	nan = Number(nanValue())
	c, err := nan.Cmp(nan)
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestStringInterning(t *testing.T) {
	h := heap.New(0)
	cache := NewStringCache(h)
	a := cache.Intern([]byte("hello"))
	b := cache.Intern([]byte("hello"))
	assert.True(t, a == b, "equal-content strings must be pointer-identical")
	assert.Equal(t, 1, cache.Len())
}

func TestTableGetSetDelete(t *testing.T) {
	h := heap.New(0)
	tbl := NewTable(h, 0, WeakNone)
	sc := NewStringCache(h)
	key := sc.Intern([]byte("x"))

	_, found, err := tbl.Get(key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tbl.SetKey(key, Number(42)))
	v, found, err := tbl.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Number(42), v)

	assert.True(t, tbl.Delete(key))
	_, found, _ = tbl.Get(key)
	assert.False(t, found)
}

func TestTablePrototypeChain(t *testing.T) {
	h := heap.New(0)
	sc := NewStringCache(h)
	proto := NewTable(h, 0, WeakNone)
	require.NoError(t, proto.SetKey(sc.Intern([]byte("a")), Number(1)))

	child := NewTable(h, 0, WeakNone)
	child.SetPrototype(proto)

	v, found, err := child.Get(sc.Intern([]byte("a")))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Number(1), v)
}

func TestTableGetCyclicPrototypeChainErrors(t *testing.T) {
	h := heap.New(0)
	sc := NewStringCache(h)
	a := NewTable(h, 0, WeakNone)
	b := NewTable(h, 0, WeakNone)
	a.SetPrototype(b)
	b.SetPrototype(a)

	_, _, err := a.Get(sc.Intern([]byte("missing")))
	assert.Error(t, err, "a cyclic prototype chain must error instead of looping forever")
}

func TestTableGrowthPreservesEntries(t *testing.T) {
	h := heap.New(0)
	sc := NewStringCache(h)
	tbl := NewTable(h, 0, WeakNone)
	for i := 0; i < 200; i++ {
		key := sc.Intern([]byte{byte(i), byte(i >> 8)})
		require.NoError(t, tbl.SetKey(key, Number(i)))
	}
	for i := 0; i < 200; i++ {
		key := sc.Intern([]byte{byte(i), byte(i >> 8)})
		v, found, err := tbl.Get(key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, Number(i), v)
	}
}

func TestStructOrderIndependentLayout(t *testing.T) {
	h := heap.New(0)
	sc := NewSymbolCache(h)
	a, b := sc.Intern([]byte("a")), sc.Intern([]byte("b"))

	s1 := NewStruct(h, []structEntry{{a, Number(1)}, {b, Number(2)}}, nil)
	s2 := NewStruct(h, []structEntry{{b, Number(2)}, {a, Number(1)}}, nil)

	assert.Equal(t, s1.Hash(), s2.Hash())
	eq, err := s1.Equals(s2)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestArrayPushPop(t *testing.T) {
	h := heap.New(0)
	a := NewArray(h, nil)
	a.Push(Number(1))
	a.Push(Number(2))
	assert.Equal(t, int32(2), a.Len())

	v, err := a.Pop()
	require.NoError(t, err)
	assert.Equal(t, Number(2), v)

	_, err = a.Pop()
	require.NoError(t, err)
	_, err = a.Pop()
	assert.Error(t, err)
}

func TestBufferRoundTrip(t *testing.T) {
	h := heap.New(0)
	sc := NewStringCache(h)
	buf := NewBuffer(h, nil)
	buf.Push([]byte("hello "))
	buf.PushString(sc.Intern([]byte("world")))
	s := buf.ToString(sc)
	assert.Equal(t, "hello world", s.String())
}
