// Package vm implements Ember's register-based bytecode interpreter: the
// dispatch loop, the public embedding API, and the CFunction calling
// convention. The dispatch loop's switch-on-opcode/break-on-error shape is
// the usual one for a threaded interpreter, recast to operate on
// lang/fiber's register windows instead of an operand stack.
package vm

import (
	"fmt"
	"sync/atomic"

	"github.com/ember-lang/ember/lang/bytecode"
	"github.com/ember-lang/ember/lang/fiber"
	"github.com/ember-lang/ember/lang/heap"
	"github.com/ember-lang/ember/lang/token"
	"github.com/ember-lang/ember/lang/value"
)

// VM holds all state shared across fibers: the heap, the interning caches,
// and the global bindings table. One VM serves exactly one OS thread (spec
// §5 "Scheduling model": "Parallel OS-thread execution requires one VM
// state per thread").
type VM struct {
	Heap     *heap.Heap
	Strings  *value.StringCache
	Symbols  *value.SymbolCache
	Keywords *value.KeywordCache
	Globals  *value.Table

	current *fiber.Fiber

	// autoSuspend is checked at back-edges and safe points; a nonzero value
	// causes the interpreter to yield a cooperative interrupt signal (spec
	// §4.3 "Interruption"). It is exported via InterpreterInterrupt so a host
	// running the VM from another goroutine can request a stop.
	autoSuspend int32

	pushArea []value.Value
}

// New creates a VM with a fresh heap of the given GC interval (0 selects the
// default) and empty interning caches and globals table.
func New(gcInterval uint64) *VM {
	h := heap.New(gcInterval)
	return &VM{
		Heap:     h,
		Strings:  value.NewStringCache(h),
		Symbols:  value.NewSymbolCache(h),
		Keywords: value.NewKeywordCache(h),
		Globals:  value.NewTable(h, 0, value.WeakNone),
	}
}

// Current returns the fiber currently executing on this VM, or nil.
func (vm *VM) Current() *fiber.Fiber { return vm.current }

// GCRoots implements heap.RootSet for the VM itself: the currently
// executing fiber chain plus the globals table (spec §4.1 "Roots": "the
// process-wide registry and module table").
func (vm *VM) GCRoots() []heap.Object {
	roots := []heap.Object{vm.Globals}
	if vm.current != nil {
		roots = append(roots, vm.current)
	}
	return roots
}

// Pin keeps obj alive across collections regardless of reachability, until
// a matching Unpin (spec §6.2 "pin/unpin").
func (vm *VM) Pin(obj heap.Object) { heap.Pin(obj) }

// Unpin releases a pin taken by Pin.
func (vm *VM) Unpin(obj heap.Object) { heap.Unpin(obj) }

// GCRoot adds obj to the VM's explicit root table, keeping it reachable
// until a matching GCUnroot (spec §6.2 "gc_root/gc_unroot").
func (vm *VM) GCRoot(obj heap.Object) { vm.Heap.AddRoot(obj) }

// GCUnroot removes a root added by GCRoot.
func (vm *VM) GCUnroot(obj heap.Object) { vm.Heap.RemoveRoot(obj) }

// InterpreterInterrupt arms the cooperative interrupt checked at the next
// back-edge or safe point (spec §4.3 "Interruption", §6.2).
func (vm *VM) InterpreterInterrupt() { atomic.StoreInt32(&vm.autoSuspend, 1) }

// InterpreterInterruptHandled disarms a pending interrupt request without
// running the interpreter to observe it, e.g. a host that armed an
// interrupt and then changed its mind before the fiber reached a safe point
// (spec §6.2 "interpreter_interrupt_handled").
func (vm *VM) InterpreterInterruptHandled() { atomic.StoreInt32(&vm.autoSuspend, 0) }

func (vm *VM) interruptRequested() bool {
	return atomic.CompareAndSwapInt32(&vm.autoSuspend, 1, 0)
}

// Deinit drops vm's references to its heap and interning caches, spec
// §6.2's "deinit()" counterpart to New's "init()". A VM must not be used
// again afterward; construct a fresh one with New.
func (vm *VM) Deinit() {
	vm.current = nil
	vm.Globals = nil
	vm.Strings = nil
	vm.Symbols = nil
	vm.Keywords = nil
	vm.Heap = nil
	vm.pushArea = nil
}

// Snapshot captures a VM's per-thread interpreter state — which fiber, if
// any, is currently executing, and the armed/disarmed state of the
// cooperative interrupt — so it can be restored later by Load. Globals, the
// heap and the interning caches are shared state, not per-call state, and
// are not part of the snapshot (spec §6.2 "vm_save/vm_load... allowing
// reentrant hosting").
type Snapshot struct {
	current     *fiber.Fiber
	autoSuspend int32
}

// Save captures vm's current per-thread state for later restoration by
// Load, e.g. a host multiplexing several logical calls onto one VM across
// reentrant invocations (spec §6.2 "vm_save(into)").
func (vm *VM) Save() Snapshot {
	return Snapshot{current: vm.current, autoSuspend: atomic.LoadInt32(&vm.autoSuspend)}
}

// Load restores a snapshot previously produced by Save (spec §6.2
// "vm_load(from)").
func (vm *VM) Load(s Snapshot) {
	vm.current = s.current
	atomic.StoreInt32(&vm.autoSuspend, s.autoSuspend)
}

// Panic constructs a runtime error for a CFunctionImpl to return, raising it
// as the current execution's failure once propagated back through run's
// unwinding (spec §6.2 "panic(msg)").
func (vm *VM) Panic(msg string) error { return newError(KindRuntime, "%s", msg) }

// Panicf is Panic with fmt.Sprintf-style formatting (spec §6.2 "panicf(fmt, …)").
func (vm *VM) Panicf(format string, args ...interface{}) error {
	return newError(KindRuntime, format, args...)
}

// NewFiber allocates a new fiber over fn, per spec §4.2 "Creation".
func (vm *VM) NewFiber(fn value.Value, capacity int32) *fiber.Fiber {
	return fiber.New(vm.Heap, fn, capacity)
}

// Resume implements spec §4.2's resume contract: it fails fast on an
// already-Dead or -Alive fiber, otherwise runs the interpreter until the
// fiber yields, returns, or errors, restoring vm.current and the parent's
// child link in every case.
func (vm *VM) Resume(f *fiber.Fiber, in value.Value) (fiber.Signal, value.Value, error) {
	wasNew := f.Status() == fiber.StatusNew
	if err := f.BeginResume(vm.current); err != nil {
		return fiber.SignalError, nil, &Error{Kind: KindFiberState, Msg: err.Error()}
	}
	prevCurrent := vm.current
	vm.current = f
	defer func() {
		vm.current = prevCurrent
		f.EndResume()
	}()

	if _, cancelErr := f.TakeResult(); cancelErr != nil {
		// Cancel armed an error: raise it immediately without running.
		return vm.unwindToSignal(f, cancelErr)
	}

	if wasNew {
		// The entry frame was pre-pushed by fiber.New with the callable but
		// no argument window yet; install it now, unpacking a tuple argument
		// across the callee's parameters if its arity admits it (spec §4.2).
		fr := f.CurrentFrame()
		argv := flattenArg(in)
		width, err := vm.frameWidth(fr.Callable, len(argv))
		if err != nil {
			return vm.unwindToSignal(f, err)
		}
		f.PushTailcallFrame(fr.Callable, width, argv)
	} else if fr := f.CurrentFrame(); fr != nil {
		// Resuming a Pending fiber: `in` replaces the suspended result
		// register (spec §4.2 "if Pending, value replaces the interpreter's
		// suspended result register").
		f.SetSlot(f.ResumeSlot(), in)
	}

	return vm.run(f)
}

// Continue resumes f with in, identical to Resume. It exists as a separate
// name because spec §6.2 calls this operation "continue_" — the trailing
// underscore there is only because "continue" is a keyword in the
// specification's reference host language, which does not apply to Go.
func (vm *VM) Continue(f *fiber.Fiber, in value.Value) (fiber.Signal, value.Value, error) {
	return vm.Resume(f, in)
}

// Run executes callee as a nullary call on a fresh fiber and returns its
// result, spec §6.2's "run(callee, &result)" convenience wrapper around
// NewFiber+Resume for a host that doesn't need fiber-level yield control.
func (vm *VM) Run(callee value.Value) (fiber.Signal, value.Value, error) {
	f := vm.NewFiber(callee, 64)
	return vm.Resume(f, value.Nil)
}

// Step advances f by exactly one bytecode instruction — or, if its current
// frame is a native (CFunction/Abstract) call, which has no bytecode to
// step through, by running that call to completion — instead of running to
// completion like Resume/Continue (spec §6.2 "step(fiber, in, &out)"). It
// shares Resume's entry/exit contract for a New or genuinely Pending fiber:
// in is delivered the same way (unpacked into the entry frame for a New
// fiber, or replacing the suspended result register for a Pending one).
//
// A step that does not finish the function reports fiber.SignalDebug and
// leaves f paused via Suspend rather than Yield: f.Status remains resumable
// (Pending) without a result being produced or a resume slot armed, since
// the pause point is mid-function, not a real yield/return site. The next
// Step call detects this (fiber.MidStep) and simply continues execution in
// place instead of writing in into some stale or unrelated register, the
// way it would for an actual Resume-after-yield.
//
// Note that the push-argument scratch area (used by PUSH/PUSH_2/PUSH_3/
// PUSH_ARRAY ahead of a CALL or TAILCALL) is VM-wide, not per-fiber;
// single-stepping through a PUSH...CALL sequence on one fiber while another
// fiber is also mid-step would corrupt both. Step is meant for driving one
// fiber at a time, the same way a host debugger would.
func (vm *VM) Step(f *fiber.Fiber, in value.Value) (fiber.Signal, value.Value, error) {
	wasNew := f.Status() == fiber.StatusNew
	wasMidStep := f.MidStep()
	if err := f.BeginResume(vm.current); err != nil {
		return fiber.SignalError, nil, &Error{Kind: KindFiberState, Msg: err.Error()}
	}
	prevCurrent := vm.current
	vm.current = f
	defer func() {
		vm.current = prevCurrent
		f.EndResume()
	}()

	if _, cancelErr := f.TakeResult(); cancelErr != nil {
		return vm.unwindToSignal(f, cancelErr)
	}

	if wasNew {
		fr := f.CurrentFrame()
		argv := flattenArg(in)
		width, err := vm.frameWidth(fr.Callable, len(argv))
		if err != nil {
			return vm.unwindToSignal(f, err)
		}
		f.PushTailcallFrame(fr.Callable, width, argv)
	} else if !wasMidStep {
		// A real yield/cancel resume feeds in into the slot the suspending
		// instruction named. A fiber merely paused mid-function by a prior
		// Step call (MidStep) is not at a yield site — there is no slot to
		// feed in into, execution just continues where it left off.
		if fr := f.CurrentFrame(); fr != nil {
			f.SetSlot(f.ResumeSlot(), in)
		}
	}

	fr := f.CurrentFrame()
	if fr == nil {
		v, _ := f.TakeResult()
		return fiber.SignalOk, v, nil
	}

	switch c := fr.Callable.(type) {
	case *CFunction:
		args := append([]value.Value(nil), f.DataSlice(fr.Base, fr.Width)...)
		result, err := c.impl(vm, args)
		if err != nil {
			return vm.unwindAndSignal(f, err)
		}
		return vm.finishStepCall(f, fr, result)
	case *Abstract:
		if c.vt == nil || c.vt.Call == nil {
			err := newError(KindType, "value of type %s is not callable", fr.Callable.Type())
			return vm.unwindAndSignal(f, err)
		}
		args := append([]value.Value(nil), f.DataSlice(fr.Base, fr.Width)...)
		result, err := c.vt.Call(vm, c.Data, args)
		if err != nil {
			return vm.unwindAndSignal(f, err)
		}
		return vm.finishStepCall(f, fr, result)
	case *bytecode.Function:
		sig, result, err, _, done := vm.stepOnce(f, c)
		if err != nil {
			return vm.unwindAndSignal(f, err)
		}
		if !done {
			f.Suspend()
			return fiber.SignalDebug, result, nil
		}
		return sig, result, nil
	default:
		err := newError(KindType, "value of type %s is not callable", fr.Callable.Type())
		return vm.unwindAndSignal(f, err)
	}
}

// finishStepCall completes a Step call into a native (CFunction/Abstract)
// callee: writes result to the caller's slot the same way run()'s CALL
// handling does, and — unless that pop finished the whole fiber — leaves f
// paused via Suspend so the next Step call resumes the caller's frame at
// its next instruction instead of finding the fiber still "Alive" and
// rejecting the resume outright.
func (vm *VM) finishStepCall(f *fiber.Fiber, fr *fiber.Frame, result value.Value) (fiber.Signal, value.Value, error) {
	resultSlot := fr.ResultSlot
	entryPopped := f.PopFrame()
	if entryPopped {
		f.Finish(result)
		return fiber.SignalOk, result, nil
	}
	if resultSlot >= 0 {
		f.SetSlot(resultSlot, result)
	}
	f.Suspend()
	return fiber.SignalDebug, result, nil
}

func flattenArg(v value.Value) []value.Value {
	if v == nil {
		return nil
	}
	if t, ok := v.(*value.Tuple); ok {
		out := make([]value.Value, t.Len())
		for i := range out {
			out[i] = t.Index(int32(i))
		}
		return out
	}
	return []value.Value{v}
}

// frameWidth returns the register-window width to allocate for a call to
// callable. A bytecode function's window is its full local+param slot count
// (fixed at compile time); a CFunction has no locals of its own, so its
// window is exactly the argument count the caller pushed, letting
// CFunctionImpl's args slice (lang/vm/cfunction.go) see precisely what was
// passed (spec §6.4's "(argv, argc, ret_slot)" contract).
func (vm *VM) frameWidth(callable value.Value, argc int) (int32, error) {
	switch c := callable.(type) {
	case *bytecode.Function:
		return c.Def.SlotCount, nil
	case *CFunction:
		return int32(argc), nil
	case *Abstract:
		if c.vt == nil || c.vt.Call == nil {
			return 0, newError(KindType, "value of type %s is not callable", callable.Type())
		}
		return int32(argc), nil
	default:
		return 0, newError(KindType, "value of type %s is not callable", callable.Type())
	}
}

func (vm *VM) unwindToSignal(f *fiber.Fiber, err error) (fiber.Signal, value.Value, error) {
	verr := asError(err)
	verr.Trace = append(verr.Trace, buildTrace(f)...)
	f.Fail(verr)
	return fiber.SignalError, nil, verr
}

// asError coerces err to *Error, wrapping it under KindRuntime if it was
// raised as a plain error (e.g. by fiber.PushCallFrame or fiber.BeginResume,
// which know nothing of vm.Kind).
func asError(err error) *Error {
	if verr, ok := err.(*Error); ok {
		return verr
	}
	return newError(KindRuntime, "%s", err)
}

// buildTrace walks f's live frames, innermost first, into the form
// lang/print's stack-trace formatter consumes (spec §7).
func buildTrace(f *fiber.Fiber) []TraceEntry {
	frames := f.Frames()
	trace := make([]TraceEntry, 0, len(frames))
	for _, fr := range frames {
		entry := TraceEntry{TailCall: fr.TailCall}
		switch c := fr.Callable.(type) {
		case *bytecode.Function:
			entry.Function = c.Def.Name
			entry.Source = c.Def.Source
			if int(fr.PC) < len(c.Def.SourcePos) {
				entry.Line, entry.Column = c.Def.SourcePos[fr.PC].LineCol()
			}
		case *CFunction:
			entry.Function = c.Name()
		case *Abstract:
			entry.Function = c.Name()
		}
		trace = append(trace, entry)
	}
	return trace
}

// run drives the interpreter over f's current frame until it yields,
// returns from its entry frame, or errors. It dispatches CFunction frames
// immediately (they have no bytecode to step) and otherwise executes the
// register machine loop (spec §4.3).
func (vm *VM) run(f *fiber.Fiber) (fiber.Signal, value.Value, error) {
	for {
		fr := f.CurrentFrame()
		if fr == nil {
			v, _ := f.TakeResult()
			return fiber.SignalOk, v, nil
		}
		switch c := fr.Callable.(type) {
		case *CFunction:
			args := append([]value.Value(nil), f.DataSlice(fr.Base, fr.Width)...)
			result, err := c.impl(vm, args)
			if err != nil {
				return vm.unwindAndSignal(f, err)
			}
			resultSlot := fr.ResultSlot
			entryPopped := f.PopFrame()
			if entryPopped {
				f.Finish(result)
				return fiber.SignalOk, result, nil
			}
			if resultSlot >= 0 {
				f.SetSlot(resultSlot, result)
			}
		case *bytecode.Function:
			sig, result, err, suspended := vm.runBytecode(f, c)
			if err != nil {
				return vm.unwindAndSignal(f, err)
			}
			if suspended {
				return sig, result, nil
			}
		case *Abstract:
			if c.vt == nil || c.vt.Call == nil {
				err := newError(KindType, "value of type %s is not callable", fr.Callable.Type())
				return vm.unwindAndSignal(f, err)
			}
			args := append([]value.Value(nil), f.DataSlice(fr.Base, fr.Width)...)
			result, err := c.vt.Call(vm, c.Data, args)
			if err != nil {
				return vm.unwindAndSignal(f, err)
			}
			resultSlot := fr.ResultSlot
			entryPopped := f.PopFrame()
			if entryPopped {
				f.Finish(result)
				return fiber.SignalOk, result, nil
			}
			if resultSlot >= 0 {
				f.SetSlot(resultSlot, result)
			}
		default:
			err := newError(KindType, "value of type %s is not callable", fr.Callable.Type())
			return vm.unwindAndSignal(f, err)
		}
	}
}

func (vm *VM) unwindAndSignal(f *fiber.Fiber, err error) (fiber.Signal, value.Value, error) {
	verr := asError(err)
	verr.Trace = append(verr.Trace, buildTrace(f)...)
	for f.Depth() > 0 {
		if f.PopFrame() {
			break
		}
	}
	f.Fail(verr)
	return fiber.SignalError, nil, verr
}

// runBytecode executes c's code on f's current frame until RETURN,
// RETURN_NIL, TAILCALL into another bytecode function, TRANSFER (yield), an
// error, or an interrupt. suspended reports whether execution left the
// fiber mid-flight (yielded or the whole Resume call should return now).
func (vm *VM) runBytecode(f *fiber.Fiber, fn *bytecode.Function) (sig fiber.Signal, result value.Value, err error, suspended bool) {
	vm.pushArea = vm.pushArea[:0]
	for {
		var done bool
		sig, result, err, suspended, done = vm.stepOnce(f, fn)
		if done {
			return sig, result, err, suspended
		}
	}
}

// stepOnce executes exactly one bytecode instruction of fn's code on f's
// current frame, starting at that frame's PC. done reports whether
// execution should stop here — a terminal instruction ran, an error
// occurred, or an interrupt fired — in which case sig/result/err/suspended
// mirror runBytecode's own return values. When done is false, the frame's PC
// has simply advanced and the caller should call stepOnce again.
//
// runBytecode's run-to-completion loop and the public single-instruction
// Step (spec §6.2 "step(fiber, in, &out)") both drive execution through this
// one entry point, so a host single-stepping a fiber observes exactly the
// same per-instruction semantics as ordinary Resume.
func (vm *VM) stepOnce(f *fiber.Fiber, fn *bytecode.Function) (sig fiber.Signal, result value.Value, err error, suspended, done bool) {
	def := fn.Def
	fr := f.CurrentFrame()
	code := def.Code
	pc := fr.PC

	if vm.interruptRequested() {
		fr.PC = pc
		f.Yield(value.Nil, 0)
		return fiber.SignalDebug, value.Nil, nil, true, true
	}

	if int(pc) >= len(code) {
		fr.PC = pc
		return fiber.SignalError, nil, newError(KindRuntime, "pc ran off the end of %s", def.Name), false, true
	}
	w := code[pc]
	op := w.Op().OpcodeMask()
	pc++

	switch op {
	case bytecode.NOOP:
		// no effect

	case bytecode.ERROR:
		s := w.DecodeU24()
		v := f.Slot(int32(s))
		fr.PC = pc
		return fiber.SignalError, nil, newError(KindRuntime, "%s", v), false, true

	case bytecode.TYPECHECK:
		s, mask := w.DecodeSU()
		v := f.Slot(int32(s))
		if !value.TypeMask(mask).Has(v.Type()) {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "slot %d: unexpected type %s", s, v.Type()), false, true
		}

	case bytecode.RETURN:
		s := w.DecodeU24()
		result = f.Slot(int32(s))
		fr.PC = pc
		resultSlot := fr.ResultSlot
		entryPopped := f.PopFrame()
		if entryPopped {
			f.Finish(result)
			return fiber.SignalOk, result, nil, true, true
		}
		if resultSlot >= 0 {
			f.SetSlot(resultSlot, result)
		}
		return fiber.SignalOk, result, nil, false, true

	case bytecode.RETURN_NIL:
		result = value.Nil
		fr.PC = pc
		resultSlot := fr.ResultSlot
		entryPopped := f.PopFrame()
		if entryPopped {
			f.Finish(result)
			return fiber.SignalOk, result, nil, true, true
		}
		if resultSlot >= 0 {
			f.SetSlot(resultSlot, result)
		}
		return fiber.SignalOk, result, nil, false, true

	case bytecode.ADD, bytecode.SUBTRACT, bytecode.MULTIPLY, bytecode.DIVIDE,
		bytecode.ADD_INTEGER, bytecode.SUBTRACT_INTEGER, bytecode.MULTIPLY_INTEGER, bytecode.DIVIDE_INTEGER,
		bytecode.ADD_REAL, bytecode.SUBTRACT_REAL, bytecode.MULTIPLY_REAL, bytecode.DIVIDE_REAL:
		d, a, b := w.DecodeSSS()
		v, e := arithOp(op, f.Slot(int32(a)), f.Slot(int32(b)))
		if e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}
		f.SetSlot(int32(d), v)

	case bytecode.ADD_IMMEDIATE, bytecode.MULTIPLY_IMMEDIATE:
		d, a, imm := w.DecodeSSI()
		x, ok := f.Slot(int32(a)).(value.Number)
		if !ok {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "immediate arithmetic requires a number operand"), false, true
		}
		if op == bytecode.ADD_IMMEDIATE {
			f.SetSlot(int32(d), x+value.Number(imm))
		} else {
			f.SetSlot(int32(d), x*value.Number(imm))
		}

	case bytecode.BAND, bytecode.BOR, bytecode.BXOR, bytecode.SHL, bytecode.SHR, bytecode.SHR_UNSIGNED:
		d, a, b := w.DecodeSSS()
		v, e := arithOp(bitwiseToken(op), f.Slot(int32(a)), f.Slot(int32(b)))
		if e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}
		f.SetSlot(int32(d), v)

	case bytecode.BNOT:
		d, a := w.DecodeSS()
		n, ok := f.Slot(int32(a)).(value.Number)
		if !ok {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "bitwise not requires a number operand"), false, true
		}
		v, e := n.Unary(token.TILDE)
		if e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}
		f.SetSlot(int32(d), v)

	case bytecode.SHL_IMMEDIATE, bytecode.SHR_IMMEDIATE:
		d, a, u := w.DecodeSSU()
		n, ok := f.Slot(int32(a)).(value.Number)
		if !ok {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "shift requires a number operand"), false, true
		}
		tok := token.LTLT
		if op == bytecode.SHR_IMMEDIATE {
			tok = token.GTGT
		}
		v, e := value.NumberBinary(tok, n, value.Number(u))
		if e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}
		f.SetSlot(int32(d), v)

	case bytecode.MOVE_NEAR, bytecode.MOVE_FAR:
		d, s := w.DecodeSS()
		f.SetSlot(int32(d), f.Slot(int32(s)))

	case bytecode.JUMP:
		pc = uint32(int32(pc) + w.DecodeS24())

	case bytecode.JUMP_IF, bytecode.JUMP_IF_NOT:
		s, offset := w.DecodeSL()
		truthy := value.Truthy(f.Slot(int32(s)))
		if op == bytecode.JUMP_IF_NOT {
			truthy = !truthy
		}
		if truthy {
			pc = uint32(int32(pc) + int32(offset))
		}

	case bytecode.GREATER_THAN, bytecode.LESS_THAN, bytecode.EQUALS:
		d, a, b := w.DecodeSSS()
		var v bool
		var e error
		if op == bytecode.EQUALS {
			v, e = value.Equals(f.Slot(int32(a)), f.Slot(int32(b)))
		} else {
			var c int
			c, e = value.Compare(f.Slot(int32(a)), f.Slot(int32(b)))
			if op == bytecode.GREATER_THAN {
				v = c > 0
			} else {
				v = c < 0
			}
		}
		if e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}
		f.SetSlot(int32(d), value.Bool(v))

	case bytecode.COMPARE:
		d, a, b := w.DecodeSSS()
		c, e := value.Compare(f.Slot(int32(a)), f.Slot(int32(b)))
		if e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}
		f.SetSlot(int32(d), value.Number(c))

	case bytecode.LOAD_NIL:
		f.SetSlot(int32(w.DecodeU24()), value.Nil)
	case bytecode.LOAD_TRUE:
		f.SetSlot(int32(w.DecodeU24()), value.True)
	case bytecode.LOAD_FALSE:
		f.SetSlot(int32(w.DecodeU24()), value.False)
	case bytecode.LOAD_INTEGER:
		s, imm := w.DecodeSI()
		f.SetSlot(int32(s), value.Number(imm))
	case bytecode.LOAD_CONSTANT:
		s, idx := w.DecodeSU()
		f.SetSlot(int32(s), def.Constants[idx])
	case bytecode.LOAD_SELF:
		f.SetSlot(int32(w.DecodeU24()), fn)

	case bytecode.LOAD_UPVALUE, bytecode.SET_UPVALUE:
		s, envIdx, slot := w.DecodeSSU()
		env := fn.Envs[envIdx]
		v := upvalueSlot(env, int32(slot))
		if op == bytecode.LOAD_UPVALUE {
			f.SetSlot(int32(s), *v)
		} else {
			*v = f.Slot(int32(s))
		}

	case bytecode.CLOSURE:
		d, idx := w.DecodeSU()
		nested := def.NestedDefs[idx]
		var envs []*bytecode.FuncEnv
		if int(idx) < len(def.Captures) {
			envs = make([]*bytecode.FuncEnv, len(def.Captures[idx]))
			for i, cap := range def.Captures[idx] {
				env, err := vm.resolveCapture(f, cap)
				if err != nil {
					fr.PC = pc
					return fiber.SignalError, nil, err, false, true
				}
				envs[i] = env
			}
		}
		f.SetSlot(int32(d), bytecode.NewFunction(vm.Heap, nested, envs))

	case bytecode.PUSH:
		vm.pushArea = append(vm.pushArea, f.Slot(int32(w.DecodeU24())))
	case bytecode.PUSH_2:
		a, b := w.DecodeSS()
		vm.pushArea = append(vm.pushArea, f.Slot(int32(a)), f.Slot(int32(b)))
	case bytecode.PUSH_3:
		a, b, c := w.DecodeSSS()
		vm.pushArea = append(vm.pushArea, f.Slot(int32(a)), f.Slot(int32(b)), f.Slot(int32(c)))
	case bytecode.PUSH_ARRAY:
		arr, ok := f.Slot(int32(w.DecodeU24())).(*value.Array)
		if !ok {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "PUSH_ARRAY requires an array operand"), false, true
		}
		it := arr.Iterate()
		var v value.Value
		for it.Next(&v) {
			vm.pushArea = append(vm.pushArea, v)
		}
		it.Done()

	case bytecode.CALL:
		dest, calleeSlot := w.DecodeSS()
		callee := f.Slot(int32(calleeSlot))
		args := append([]value.Value(nil), vm.pushArea...)
		vm.pushArea = vm.pushArea[:0]
		width, e := vm.frameWidth(callee, len(args))
		if e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}
		fr.PC = pc
		if e := f.PushCallFrame(callee, width, args, int32(dest)); e != nil {
			return fiber.SignalError, nil, newError(KindStackOverflow, "%s", e), false, true
		}
		return fiber.SignalOk, nil, nil, false, true

	case bytecode.TAILCALL:
		callee := f.Slot(int32(w.DecodeU24()))
		args := append([]value.Value(nil), vm.pushArea...)
		vm.pushArea = vm.pushArea[:0]
		width, e := vm.frameWidth(callee, len(args))
		if e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}
		fr.PC = pc
		f.PushTailcallFrame(callee, width, args)
		return fiber.SignalOk, nil, nil, false, true

	case bytecode.TRANSFER:
		// TRANSFER either resumes a named fiber (operand holds a *fiber.Fiber)
		// or yields to whichever fiber resumed this one (operand is nil), per
		// spec §4.3 "TRANSFER (yield to a named fiber or parent)".
		target, valueSlot, destSlot := w.DecodeSSS()
		payload := f.Slot(int32(valueSlot))
		fr.PC = pc

		targetVal := f.Slot(int32(target))
		if targetVal == value.Nil {
			f.Yield(payload, int32(destSlot))
			return fiber.SignalYield, payload, nil, true, true
		}

		targetFiber, ok := targetVal.(*fiber.Fiber)
		if !ok {
			return fiber.SignalError, nil, newError(KindType, "TRANSFER requires a fiber operand or nil"), false, true
		}
		// The target fiber's own signal (ok/yield/error) describes *its*
		// outcome, already folded into res/e here; it says nothing about
		// whether this fiber — the one executing TRANSFER — should keep
		// running, which is what stepOnce's return signals. This fiber isn't
		// suspending, so SignalOk is correct regardless of how the target
		// fiber got to res.
		_, res, e := vm.Resume(targetFiber, payload)
		if e != nil {
			return fiber.SignalError, nil, e, false, true
		}
		f.SetSlot(int32(destSlot), res)
		return fiber.SignalOk, nil, nil, false, true

	case bytecode.GET:
		d, a, b := w.DecodeSSS()
		m, ok := f.Slot(int32(a)).(value.Mapping)
		if !ok {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "GET requires a mapping operand"), false, true
		}
		v, _, e := m.Get(f.Slot(int32(b)))
		if e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}
		f.SetSlot(int32(d), v)

	case bytecode.PUT:
		a, b, c := w.DecodeSSS()
		m, ok := f.Slot(int32(a)).(value.HasSetKey)
		if !ok {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "PUT requires a settable mapping operand"), false, true
		}
		if e := m.SetKey(f.Slot(int32(b)), f.Slot(int32(c))); e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}

	case bytecode.GET_INDEX:
		d, a, idx := w.DecodeSSU()
		ix, ok := f.Slot(int32(a)).(value.Indexable)
		if !ok {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "GET_INDEX requires an indexable operand"), false, true
		}
		f.SetSlot(int32(d), ix.Index(int32(idx)))

	case bytecode.PUT_INDEX:
		a, idx, s := w.DecodeSSU()
		ix, ok := f.Slot(int32(a)).(value.HasSetIndex)
		if !ok {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "PUT_INDEX requires a settable indexable operand"), false, true
		}
		if e := ix.SetIndex(int32(idx), f.Slot(int32(s))); e != nil {
			fr.PC = pc
			return fiber.SignalError, nil, e, false, true
		}

	case bytecode.LENGTH:
		d, a := w.DecodeSS()
		seq, ok := f.Slot(int32(a)).(value.Sequence)
		if !ok {
			fr.PC = pc
			return fiber.SignalError, nil, newError(KindType, "LENGTH requires a sequence operand"), false, true
		}
		f.SetSlot(int32(d), value.Number(seq.Len()))

	default:
		fr.PC = pc
		return fiber.SignalError, nil, newError(KindRuntime, "unimplemented opcode %s", op), false, true
	}

	fr.PC = pc
	return fiber.SignalOk, nil, nil, false, false
}

// upvalueSlot returns a pointer to env's live value at the given offset: if
// env is still attached to its owning fiber's stack, that is a slot in the
// fiber's data array; once detached, it is a slot in env's own copy (spec
// §3.4).
func upvalueSlot(env *bytecode.FuncEnv, slot int32) *value.Value {
	if env.Values != nil {
		return &env.Values[slot]
	}
	owner := env.Owner.(*fiber.Fiber)
	return owner.SlotPointer(env.Base + slot)
}

// resolveCapture installs a live FuncEnv rooted at the frame cap.Depth
// levels above the current one, attaching it so PopFrame detaches it once
// that frame returns (spec §4.3 "Closure"). Each capture gets its own env;
// this does not dedupe multiple captures of the same defining frame into
// one shared env.
//
// cap.Depth comes straight from a FuncDef's Captures list, which the
// verifier does not bounds-check (only LOAD_UPVALUE/SET_UPVALUE's env index
// is checked there, against the capture count, not each capture's own
// Depth). A depth deeper than the live frame chain — reachable only from
// malformed or hand-marshalled bytecode — must therefore be caught here,
// not assumed valid: FrameBaseAt's ok=false is propagated as an error
// instead of silently substituting the current frame's base, which would
// build an env pointed at the wrong slots and mask the real problem.
func (vm *VM) resolveCapture(f *fiber.Fiber, cap bytecode.Capture) (*bytecode.FuncEnv, error) {
	base, ok := f.FrameBaseAt(cap.Depth)
	if !ok {
		return nil, newError(KindVerify, "capture depth %d exceeds live frame chain", cap.Depth)
	}
	env := bytecode.NewFuncEnv(vm.Heap, f, base, cap.Slot+1)
	if !f.AttachEnv(cap.Depth, env) {
		return nil, newError(KindVerify, "capture depth %d exceeds live frame chain", cap.Depth)
	}
	return env, nil
}

func bitwiseToken(op bytecode.Opcode) token.Token {
	switch op {
	case bytecode.BAND:
		return token.AMPERSAND
	case bytecode.BOR:
		return token.PIPE
	case bytecode.BXOR:
		return token.CIRCUMFLEX
	case bytecode.SHL:
		return token.LTLT
	case bytecode.SHR:
		return token.GTGT
	case bytecode.SHR_UNSIGNED:
		return token.GTGTGT
	}
	panic(fmt.Sprintf("not a bitwise opcode: %s", op))
}

func arithOp(op bytecode.Opcode, x, y value.Value) (value.Value, error) {
	switch op {
	case bytecode.ADD, bytecode.ADD_INTEGER, bytecode.ADD_REAL:
		return numBinary(token.PLUS, x, y, op)
	case bytecode.SUBTRACT, bytecode.SUBTRACT_INTEGER, bytecode.SUBTRACT_REAL:
		return numBinary(token.MINUS, x, y, op)
	case bytecode.MULTIPLY, bytecode.MULTIPLY_INTEGER, bytecode.MULTIPLY_REAL:
		return numBinary(token.STAR, x, y, op)
	case bytecode.DIVIDE, bytecode.DIVIDE_INTEGER, bytecode.DIVIDE_REAL:
		return numBinary(token.SLASH, x, y, op)
	case bytecode.BAND, bytecode.BOR, bytecode.BXOR, bytecode.SHL, bytecode.SHR, bytecode.SHR_UNSIGNED:
		return numBinary(bitwiseToken(op), x, y, op)
	}
	return nil, newError(KindRuntime, "not an arithmetic opcode: %s", op)
}

func numBinary(tok token.Token, x, y value.Value, op bytecode.Opcode) (value.Value, error) {
	xn, xok := x.(value.Number)
	yn, yok := y.(value.Number)
	if !xok || !yok {
		return nil, newError(KindType, "arithmetic requires number operands, got %s and %s", x.Type(), y.Type())
	}
	switch op {
	case bytecode.DIVIDE_INTEGER:
		xi, xiok := xn.AsInt32()
		yi, yiok := yn.AsInt32()
		if !xiok || !yiok {
			return nil, newError(KindType, "integer division requires integer-shaped operands")
		}
		v, err := value.IntDivide(xi, yi)
		if err != nil {
			return nil, newError(KindDivideByZero, "%s", err)
		}
		return v, nil
	}
	return value.NumberBinary(tok, xn, yn)
}
