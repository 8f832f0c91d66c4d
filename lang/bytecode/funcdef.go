package bytecode

import (
	"fmt"

	"github.com/ember-lang/ember/lang/heap"
	"github.com/ember-lang/ember/lang/token"
	"github.com/ember-lang/ember/lang/value"
)

// Capture describes one upvalue a closure captures when materialized by
// CLOSURE: "env at relative frame depth N" (spec §4.3 "Closure"). The
// interpreter walks N frames up the caller chain and either shares the
// FuncEnv already attached there or installs a fresh one.
type Capture struct {
	Depth int32 // frames to walk up from the defining call
	Slot  int32 // slot within that frame's register window
}

// FuncDef is one compiled function: its code, constants, nested function
// definitions, and the metadata the verifier and interpreter need. It is
// a register-machine analogue of a stack-machine Funcode, with no
// Defers/Catches fields since this interpreter has no opcode for them.
type FuncDef struct {
	heap.Header

	Name       string
	Source     string // optional source identifier, e.g. a file path (spec §3.4)
	Code       []Instr
	Constants  []value.Value
	NestedDefs []*FuncDef
	Captures   [][]Capture // one capture list per nested def, indexed identically

	NumParams  int32
	HasVarargs bool
	SlotCount  int32 // total register window width required

	// SourcePos optionally maps each instruction index to a source position,
	// for diagnostics (spec §3.4 "optional source mapping"). Nil if the
	// FuncDef was assembled without debug info.
	SourcePos []token.Pos

	verified bool
}

var _ heap.Object = (*FuncDef)(nil)

// Track registers def with h, giving it a MemFuncDef header so the GC can
// reach its constants and nested defs (spec §4.1 "funcdef marks its
// constants, nested defs, name, and source id").
func (def *FuncDef) Track(h *heap.Heap) *FuncDef {
	h.Track(def, heap.MemFuncDef, uintptr(len(def.Code))*4+uintptr(len(def.Constants))*8+64)
	h.Enable(def)
	return def
}

// Children marks def's constants and nested defs. Name and source id are
// plain Go strings/ints, not heap objects, so they need no marking.
func (def *FuncDef) Children(mark func(heap.Object)) {
	for _, c := range def.Constants {
		if o, ok := c.(heap.Object); ok {
			mark(o)
		}
	}
	for _, nd := range def.NestedDefs {
		if nd != nil {
			mark(nd)
		}
	}
}

// FuncEnv is a captured upvalue frame (spec §3.4). While the owning fiber
// is live and the frame is still on its stack, Values is nil and Fiber/Base
// identify where the live values are; once the frame is popped or the
// fiber dies, the env is detached and Values holds its own copy.
type FuncEnv struct {
	heap.Header

	Owner  heap.Object // the owning Fiber, as a heap.Object (avoids an import cycle on lang/fiber)
	Base   int32
	Length int32
	Values []value.Value // non-nil only once detached
}

var _ heap.Object = (*FuncEnv)(nil)

// NewFuncEnv allocates a live (attached) FuncEnv referencing a frame still
// on its owning fiber's stack.
func NewFuncEnv(h *heap.Heap, owner heap.Object, base, length int32) *FuncEnv {
	e := &FuncEnv{Owner: owner, Base: base, Length: length}
	h.Track(e, heap.MemFuncEnv, uintptr(length)*8+32)
	h.Enable(e)
	return e
}

// Detach copies values into the env's own storage and clears Owner, so the
// env no longer refers to its owning fiber's stack (spec §3.4 "detached").
func (e *FuncEnv) Detach(values []value.Value) {
	e.Values = append([]value.Value(nil), values...)
	e.Owner = nil
}

// DetachFrom implements fiber.Detacher: data is the owning fiber's whole
// value stack, and e.Base/e.Length locate this env's live slots within it.
func (e *FuncEnv) DetachFrom(data []value.Value) {
	e.Detach(data[e.Base : e.Base+e.Length])
}

func (e *FuncEnv) Children(mark func(heap.Object)) {
	if e.Owner != nil {
		mark(e.Owner)
		return
	}
	for _, v := range e.Values {
		if o, ok := v.(heap.Object); ok {
			mark(o)
		}
	}
}

// Function is a closure: a FuncDef paired with the FuncEnvs it captured at
// creation time (spec §3.4).
type Function struct {
	heap.Header
	Def  *FuncDef
	Envs []*FuncEnv
}

var (
	_ heap.Object  = (*Function)(nil)
	_ value.Value  = (*Function)(nil)
)

func NewFunction(h *heap.Heap, def *FuncDef, envs []*FuncEnv) *Function {
	f := &Function{Def: def, Envs: envs}
	h.Track(f, heap.MemFunction, uintptr(len(envs))*8+32)
	h.Enable(f)
	return f
}

func (f *Function) Type() value.Type { return value.TypeFunction }
func (f *Function) String() string   { return fmt.Sprintf("<function %s>", f.Def.Name) }
func (f *Function) Name() string     { return f.Def.Name }

func (f *Function) Children(mark func(heap.Object)) {
	for _, e := range f.Envs {
		if e != nil {
			mark(e)
		}
	}
}
