package bytecode

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ember-lang/ember/lang/token"
	"github.com/ember-lang/ember/lang/value"
)

// This file implements a stable binary layout for a FuncDef: a small
// header (arity, flags, slot count, name, source id), the bytecode words,
// the constants in marshal format, nested defs recursively with their
// capture lists, and an optional source-position map. There is no
// compiler in this package that ever serializes a FuncDef, so the layout
// has no prior art to adapt here; it reuses encoding/binary and bufio the
// way asm.go's textual format reuses them.

const (
	flagVarargs = 1 << 0
	flagHasPos  = 1 << 1
)

const (
	constTagNumber byte = iota
	constTagString
)

// Marshal encodes def and its nested defs into the stable binary layout.
func Marshal(def *FuncDef) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalDef(&buf, def); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalDef(w *bytes.Buffer, def *FuncDef) error {
	flags := uint8(0)
	if def.HasVarargs {
		flags |= flagVarargs
	}
	if def.SourcePos != nil {
		flags |= flagHasPos
	}

	if err := writeU32(w, uint32(def.NumParams)); err != nil {
		return err
	}
	if err := w.WriteByte(flags); err != nil {
		return err
	}
	if err := writeU32(w, uint32(def.SlotCount)); err != nil {
		return err
	}
	if err := writeString(w, def.Name); err != nil {
		return err
	}
	if err := writeString(w, def.Source); err != nil {
		return err
	}

	if err := writeU32(w, uint32(len(def.Code))); err != nil {
		return err
	}
	for _, instr := range def.Code {
		if err := writeU32(w, uint32(instr)); err != nil {
			return err
		}
	}

	if err := writeU32(w, uint32(len(def.Constants))); err != nil {
		return err
	}
	for _, c := range def.Constants {
		if err := marshalConstant(w, c); err != nil {
			return err
		}
	}

	if flags&flagHasPos != 0 {
		if err := writeU32(w, uint32(len(def.SourcePos))); err != nil {
			return err
		}
		for _, p := range def.SourcePos {
			if err := writeU32(w, uint32(p)); err != nil {
				return err
			}
		}
	}

	if err := writeU32(w, uint32(len(def.NestedDefs))); err != nil {
		return err
	}
	for i, nd := range def.NestedDefs {
		var captures []Capture
		if i < len(def.Captures) {
			captures = def.Captures[i]
		}
		if err := writeU32(w, uint32(len(captures))); err != nil {
			return err
		}
		for _, cap := range captures {
			if err := writeU32(w, uint32(cap.Depth)); err != nil {
				return err
			}
			if err := writeU32(w, uint32(cap.Slot)); err != nil {
				return err
			}
		}
		if err := marshalDef(w, nd); err != nil {
			return err
		}
	}
	return nil
}

func marshalConstant(w *bytes.Buffer, v value.Value) error {
	switch c := v.(type) {
	case value.Number:
		if err := w.WriteByte(constTagNumber); err != nil {
			return err
		}
		return writeU64(w, math.Float64bits(float64(c)))
	case *value.String:
		if err := w.WriteByte(constTagString); err != nil {
			return err
		}
		return writeString(w, c.String())
	case stringLiteral:
		if err := w.WriteByte(constTagString); err != nil {
			return err
		}
		return writeString(w, string(c))
	default:
		return fmt.Errorf("bytecode: constant of type %s has no marshal form", v.Type())
	}
}

// Unmarshal decodes a FuncDef previously produced by Marshal. Constants
// decode to value.Number and the assembler's stringLiteral (unexported but
// usable as a plain value.Value), matching Assemble's "numeric and string
// constants only" scope; string constants are not interned here for the
// same reason as the textual assembler's parseConstant — no cache is
// available at decode time.
func Unmarshal(data []byte) (*FuncDef, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	def, err := unmarshalDef(r)
	if err != nil {
		return nil, err
	}
	return def, nil
}

func unmarshalDef(r *bufio.Reader) (*FuncDef, error) {
	numParams, err := readU32(r)
	if err != nil {
		return nil, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	slotCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	source, err := readString(r)
	if err != nil {
		return nil, err
	}

	def := &FuncDef{
		Name:       name,
		Source:     source,
		NumParams:  int32(numParams),
		HasVarargs: flags&flagVarargs != 0,
		SlotCount:  int32(slotCount),
	}

	codeLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	def.Code = make([]Instr, codeLen)
	for i := range def.Code {
		w, err := readU32(r)
		if err != nil {
			return nil, err
		}
		def.Code[i] = Instr(w)
	}

	constLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	def.Constants = make([]value.Value, constLen)
	for i := range def.Constants {
		c, err := unmarshalConstant(r)
		if err != nil {
			return nil, err
		}
		def.Constants[i] = c
	}

	if flags&flagHasPos != 0 {
		posLen, err := readU32(r)
		if err != nil {
			return nil, err
		}
		def.SourcePos = make([]token.Pos, posLen)
		for i := range def.SourcePos {
			w, err := readU32(r)
			if err != nil {
				return nil, err
			}
			def.SourcePos[i] = token.Pos(w)
		}
	}

	nestedLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	def.NestedDefs = make([]*FuncDef, nestedLen)
	def.Captures = make([][]Capture, nestedLen)
	for i := range def.NestedDefs {
		capLen, err := readU32(r)
		if err != nil {
			return nil, err
		}
		caps := make([]Capture, capLen)
		for j := range caps {
			depth, err := readU32(r)
			if err != nil {
				return nil, err
			}
			slot, err := readU32(r)
			if err != nil {
				return nil, err
			}
			caps[j] = Capture{Depth: int32(depth), Slot: int32(slot)}
		}
		def.Captures[i] = caps

		nd, err := unmarshalDef(r)
		if err != nil {
			return nil, err
		}
		def.NestedDefs[i] = nd
	}

	return def, nil
}

func unmarshalConstant(r *bufio.Reader) (value.Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case constTagNumber:
		bits, err := readU64(r)
		if err != nil {
			return nil, err
		}
		return value.Number(math.Float64frombits(bits)), nil
	case constTagString:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return stringLiteral(s), nil
	default:
		return nil, fmt.Errorf("bytecode: unknown constant tag %d", tag)
	}
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeString(w *bytes.Buffer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
