package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrRoundTripSSS(t *testing.T) {
	w := EncodeSSS(ADD, 1, 2, 3)
	a, b, c := w.DecodeSSS()
	assert.Equal(t, uint8(1), a)
	assert.Equal(t, uint8(2), b)
	assert.Equal(t, uint8(3), c)
	assert.Equal(t, ADD, w.Op())
}

func TestInstrRoundTripSignedS24(t *testing.T) {
	w := EncodeS(JUMP, -100)
	assert.Equal(t, int32(-100), w.DecodeS24())

	w = EncodeS(JUMP, 100)
	assert.Equal(t, int32(100), w.DecodeS24())
}

func TestBreakpointBit(t *testing.T) {
	op := RETURN.WithBreakpoint(true)
	assert.True(t, op.Breakpoint())
	assert.Equal(t, RETURN, op.OpcodeMask())
}

func TestVerifyAcceptsSimpleFunction(t *testing.T) {
	def := &FuncDef{
		Name:      "id",
		SlotCount: 2,
		NumParams: 1,
		Code: []Instr{
			EncodeS(RETURN, 0),
		},
	}
	assert.NoError(t, Verify(def))
}

func TestVerifyRejectsMissingTerminator(t *testing.T) {
	def := &FuncDef{
		Name:      "bad",
		SlotCount: 2,
		NumParams: 0,
		Code: []Instr{
			EncodeS(LOAD_NIL, 0),
		},
	}
	assert.Error(t, Verify(def))
}

func TestVerifyRejectsOutOfRangeSlot(t *testing.T) {
	def := &FuncDef{
		Name:      "bad-slot",
		SlotCount: 1,
		Code: []Instr{
			EncodeS(RETURN, 5),
		},
	}
	assert.Error(t, Verify(def))
}

func TestVerifyRejectsBadJumpTarget(t *testing.T) {
	def := &FuncDef{
		Name:      "bad-jump",
		SlotCount: 1,
		Code: []Instr{
			EncodeS(JUMP, 100),
		},
	}
	assert.Error(t, Verify(def))
}

func TestVerifyRejectsOutOfRangeUpvalueEnvOnNestedDef(t *testing.T) {
	// inner has no nested defs of its own, so len(inner.Captures) == 0: the
	// bug this guards against checked env against that (always 0-length)
	// list instead of against how many envs inner actually receives (1,
	// recorded in outer's Captures[0]).
	inner := &FuncDef{
		Name:      "inner",
		SlotCount: 1,
		Code: []Instr{
			EncodeSSU(LOAD_UPVALUE, 0, 1, 0), // env index 1: out of range, inner receives only 1 env
			EncodeS(RETURN, 0),
		},
	}
	outer := &FuncDef{
		Name:       "outer",
		SlotCount:  1,
		NestedDefs: []*FuncDef{inner},
		Captures:   [][]Capture{{{Depth: 1, Slot: 0}}},
		Code: []Instr{
			EncodeSU(CLOSURE, 0, 0),
			EncodeS(RETURN, 0),
		},
	}
	assert.Error(t, Verify(outer))
}

func TestVerifyAcceptsInRangeUpvalueEnvOnNestedDef(t *testing.T) {
	inner := &FuncDef{
		Name:      "inner",
		SlotCount: 1,
		Code: []Instr{
			EncodeSSU(LOAD_UPVALUE, 0, 0, 0), // env index 0: inner's only env
			EncodeS(RETURN, 0),
		},
	}
	outer := &FuncDef{
		Name:       "outer",
		SlotCount:  1,
		NestedDefs: []*FuncDef{inner},
		Captures:   [][]Capture{{{Depth: 1, Slot: 0}}},
		Code: []Instr{
			EncodeSU(CLOSURE, 0, 0),
			EncodeS(RETURN, 0),
		},
	}
	assert.NoError(t, Verify(outer))
}

func TestAssembleDisassembleRoundTrip(t *testing.T) {
	src := `function: add2 3 2
constants:
	number 1
code:
	0000 LOAD_CONSTANT 2 0
	0001 ADD 2 0 1
	0002 RETURN 2
`
	def, err := Assemble(src)
	require.NoError(t, err)
	assert.Equal(t, "add2", def.Name)
	assert.Equal(t, int32(3), def.SlotCount)
	assert.Equal(t, int32(2), def.NumParams)
	require.Len(t, def.Code, 3)
	assert.Equal(t, LOAD_CONSTANT, def.Code[0].Op())
	assert.NoError(t, Verify(def))

	out := Disassemble(def)
	assert.Contains(t, out, "function: add2 3 2")
	assert.Contains(t, out, "ADD 2 0 1")
}
