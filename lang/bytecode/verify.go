package bytecode

import "fmt"

// VerifyError is returned by Verify, distinguishing verification failures
// from ordinary runtime errors (spec §4.4: "a distinct error kind surfaced
// at closure creation time, before any execution").
type VerifyError struct {
	Func string
	Msg  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify %s: %s", e.Func, e.Msg)
}

// Verify checks def against the eight structural rules of spec §4.4,
// recursing into every nested def. It is idempotent: a def that already
// passed is not re-checked.
//
// A top-level def (one never reached via another def's CLOSURE, e.g. a
// compilation unit's entry point) receives no envs at runtime, so it is
// verified as if envCount were 0; a nested def's envCount is derived from
// its own index into the enclosing def's Captures list, the same list
// CLOSURE itself consults at runtime to build fn.Envs (funcdef.go,
// vm.go's CLOSURE case), so the bound checked here always matches the slice
// length LOAD_UPVALUE/SET_UPVALUE will actually index into.
func Verify(def *FuncDef) error {
	return verify(def, 0)
}

func verify(def *FuncDef, envCount int32) error {
	if def.verified {
		return nil
	}
	if err := verifyOne(def, envCount); err != nil {
		return err
	}
	for i, nd := range def.NestedDefs {
		var childEnvCount int32
		if i < len(def.Captures) {
			childEnvCount = int32(len(def.Captures[i]))
		}
		if err := verify(nd, childEnvCount); err != nil {
			return err
		}
	}
	def.verified = true
	return nil
}

func verifyOne(def *FuncDef, envCount int32) error {
	if len(def.Code) == 0 {
		return &VerifyError{def.Name, "function body is empty"}
	}
	if def.NumParams > def.SlotCount || (def.HasVarargs && def.NumParams+1 > def.SlotCount) {
		return &VerifyError{def.Name, "declared arity exceeds slot count"}
	}

	n := len(def.Code)
	for pc, w := range def.Code {
		op := w.Op().OpcodeMask()
		if op >= numOpcodes {
			return &VerifyError{def.Name, fmt.Sprintf("unknown opcode at pc %d", pc)}
		}
		if err := verifySlots(def, w, pc); err != nil {
			return err
		}
		if err := verifyRefs(def, op, w, pc, n, envCount); err != nil {
			return err
		}
	}

	last := def.Code[n-1].Op().OpcodeMask()
	if !terminators[last] {
		return &VerifyError{def.Name, "function does not end in a terminating instruction"}
	}
	return nil
}

func verifySlots(def *FuncDef, w Instr, pc int) error {
	check := func(s int32) error {
		if s < 0 || s >= def.SlotCount {
			return &VerifyError{def.Name, fmt.Sprintf("slot %d at pc %d out of range [0,%d)", s, pc, def.SlotCount)}
		}
		return nil
	}
	op := w.Op().OpcodeMask()

	// A handful of ShapeSSU opcodes pack an immediate into one of the three
	// 8-bit fields rather than a register, so the generic per-shape pass
	// below would wrongly demand it be a valid slot index too. Handle those
	// by name first; everything else falls through to the shape-driven rule.
	switch op {
	case SHL_IMMEDIATE, SHR_IMMEDIATE, GET_INDEX:
		// dest slot, source slot, unsigned immediate (shift count / array
		// index) — the third field is never a register (vm.go's
		// SHL_IMMEDIATE/SHR_IMMEDIATE/GET_INDEX cases).
		d, a, _ := w.DecodeSSU()
		if err := check(int32(d)); err != nil {
			return err
		}
		return check(int32(a))
	case PUT_INDEX:
		// source slot, unsigned immediate (array index), value slot — the
		// middle field is never a register (vm.go's PUT_INDEX case).
		a, _, s := w.DecodeSSU()
		if err := check(int32(a)); err != nil {
			return err
		}
		return check(int32(s))
	}

	switch op.Shape() {
	case ShapeS:
		return check(w.DecodeS24())
	case ShapeSS:
		a, b := w.DecodeSS()
		if err := check(int32(a)); err != nil {
			return err
		}
		return check(int32(b))
	case ShapeSI, ShapeSU, ShapeST, ShapeSL, ShapeSC, ShapeSD:
		a, _ := w.DecodeSU()
		return check(int32(a))
	case ShapeSSS, ShapeSSU:
		a, b, c := w.DecodeSSS()
		for _, s := range []uint8{a, b, c} {
			if err := check(int32(s)); err != nil {
				return err
			}
		}
	case ShapeSSI:
		a, b, _ := w.DecodeSSI()
		if err := check(int32(a)); err != nil {
			return err
		}
		return check(int32(b))
	}
	return nil
}

func verifyRefs(def *FuncDef, op Opcode, w Instr, pc, length int, envCount int32) error {
	switch op {
	case JUMP:
		target := pc + int(w.DecodeS24()) + 1
		if target < 0 || target >= length {
			return &VerifyError{def.Name, fmt.Sprintf("jump target %d at pc %d out of range", target, pc)}
		}
	case JUMP_IF, JUMP_IF_NOT:
		_, offset := w.DecodeSL()
		target := pc + int(offset) + 1
		if target < 0 || target >= length {
			return &VerifyError{def.Name, fmt.Sprintf("jump target %d at pc %d out of range", target, pc)}
		}
	case LOAD_CONSTANT:
		_, idx := w.DecodeSU()
		if int(idx) >= len(def.Constants) {
			return &VerifyError{def.Name, fmt.Sprintf("constant index %d at pc %d out of range", idx, pc)}
		}
	case CLOSURE:
		_, idx := w.DecodeSU()
		if int(idx) >= len(def.NestedDefs) {
			return &VerifyError{def.Name, fmt.Sprintf("nested-def index %d at pc %d out of range", idx, pc)}
		}
	case LOAD_UPVALUE, SET_UPVALUE:
		_, env, _ := w.DecodeSSU()
		// env indexes fn.Envs (vm.go's LOAD_UPVALUE/SET_UPVALUE case), which at
		// CLOSURE time is built with exactly envCount entries — the length of
		// the capture list the enclosing def recorded for this def. Bounds-check
		// against that, not against def's own Captures (which describes the
		// capture lists def's *nested* defs receive, an unrelated count).
		if int32(env) >= envCount {
			return &VerifyError{def.Name, fmt.Sprintf("env index %d at pc %d out of range [0,%d)", env, pc, envCount)}
		}
	}
	return nil
}
