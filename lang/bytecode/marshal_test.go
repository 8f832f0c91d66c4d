package bytecode

import (
	"testing"

	"github.com/ember-lang/ember/lang/token"
	"github.com/ember-lang/ember/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalRoundTripFlatFunction(t *testing.T) {
	def := &FuncDef{
		Name:      "add",
		Source:    "add.ember",
		SlotCount: 3,
		NumParams: 2,
		Constants: []value.Value{value.Number(1.5), stringLiteral("hi")},
		Code: []Instr{
			EncodeSSS(ADD, 2, 0, 1),
			EncodeS(RETURN, 2),
		},
		SourcePos: []token.Pos{
			token.MakePos(1, 1),
			token.MakePos(1, 10),
		},
	}

	data, err := Marshal(def)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, def.Name, got.Name)
	assert.Equal(t, def.Source, got.Source)
	assert.Equal(t, def.SlotCount, got.SlotCount)
	assert.Equal(t, def.NumParams, got.NumParams)
	assert.Equal(t, def.HasVarargs, got.HasVarargs)
	assert.Equal(t, def.Code, got.Code)
	assert.Equal(t, def.SourcePos, got.SourcePos)
	require.Len(t, got.Constants, 2)
	assert.Equal(t, value.Number(1.5), got.Constants[0])
	assert.Equal(t, "hi", got.Constants[1].String())
	require.NoError(t, Verify(got))
}

func TestMarshalRoundTripWithVarargsAndNestedDef(t *testing.T) {
	inner := &FuncDef{
		Name:      "inner",
		SlotCount: 1,
		NumParams: 1,
		Code:      []Instr{EncodeS(RETURN, 0)},
	}
	outer := &FuncDef{
		Name:       "outer",
		SlotCount:  2,
		NumParams:  1,
		HasVarargs: true,
		NestedDefs: []*FuncDef{inner},
		Captures:   [][]Capture{{{Depth: 1, Slot: 0}}},
		Code:       []Instr{EncodeS(RETURN_NIL, 0)},
	}

	data, err := Marshal(outer)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	assert.True(t, got.HasVarargs)
	require.Len(t, got.NestedDefs, 1)
	assert.Equal(t, "inner", got.NestedDefs[0].Name)
	require.Len(t, got.Captures, 1)
	assert.Equal(t, []Capture{{Depth: 1, Slot: 0}}, got.Captures[0])
	require.NoError(t, Verify(got))
}

func TestUnmarshalRejectsTruncatedData(t *testing.T) {
	def := &FuncDef{Name: "x", SlotCount: 1, Code: []Instr{EncodeS(RETURN_NIL, 0)}}
	data, err := Marshal(def)
	require.NoError(t, err)

	_, err = Unmarshal(data[:len(data)-2])
	assert.Error(t, err)
}
