// Package heap implements the explicit, generational-by-policy linked-block
// mark/sweep garbage collector that Ember's runtime values participate in,
// independently of (and in addition to) the host Go runtime's own collector.
//
// Every Ember value that needs reference-graph reachability tracking (as
// opposed to Go's built-in GC, which would keep all of it alive forever via
// ordinary pointers) embeds a Header and registers itself with a Heap. The
// Heap then owns a private linked list of those headers, the root set, and
// the mark/sweep/weak-table machinery described by the runtime specification.
package heap

import "fmt"

// MemType identifies the memory-managed type of a heap object, independent of
// its Value type (some memory types, like FuncDef or FuncEnv, have no
// corresponding runtime Value).
type MemType uint8

const (
	MemString MemType = iota
	MemSymbol
	MemKeyword
	MemArray
	MemTuple
	MemTable
	MemStruct
	MemBuffer
	MemFunction
	MemFuncDef
	MemFuncEnv
	MemFiber
	MemAbstract
)

var memTypeNames = [...]string{
	MemString:   "string",
	MemSymbol:   "symbol",
	MemKeyword:  "keyword",
	MemArray:    "array",
	MemTuple:    "tuple",
	MemTable:    "table",
	MemStruct:   "struct",
	MemBuffer:   "buffer",
	MemFunction: "function",
	MemFuncDef:  "funcdef",
	MemFuncEnv:  "funcenv",
	MemFiber:    "fiber",
	MemAbstract: "abstract",
}

func (mt MemType) String() string {
	if int(mt) < len(memTypeNames) {
		return memTypeNames[mt]
	}
	return fmt.Sprintf("memtype(%d)", mt)
}

const (
	flagReachable = 1 << iota
	flagDisabled
)

// Header is the GC header every heap-managed object embeds. It carries the
// block-list link and the flags word (memory type, reachable bit, disabled
// a.k.a. pin bit) described by the runtime specification's heap-object
// layout.
type Header struct {
	next    *Header
	memType MemType
	flags   uint8
	size    uint64
	obj     Object
}

// GCHeader returns h itself. Embedding Header anonymously in a heap-managed
// struct therefore satisfies half of the Object interface for free; only
// Children (and, optionally, Finalize) need to be implemented explicitly.
func (h *Header) GCHeader() *Header { return h }

// MemType reports the memory type recorded in the header.
func (h *Header) MemType() MemType { return h.memType }

func (h *Header) reachable() bool { return h.flags&flagReachable != 0 }
func (h *Header) setReachable(v bool) {
	if v {
		h.flags |= flagReachable
	} else {
		h.flags &^= flagReachable
	}
}

// Disabled reports whether this object is pinned (unconditionally reachable).
func (h *Header) Disabled() bool { return h.flags&flagDisabled != 0 }
func (h *Header) setDisabled(v bool) {
	if v {
		h.flags |= flagDisabled
	} else {
		h.flags &^= flagDisabled
	}
}

// Object is implemented by every value managed by a Heap: strings, symbols,
// keywords, arrays, tuples, tables, structs, buffers, functions, funcdefs,
// funcenvs, fibers and abstract values.
type Object interface {
	// GCHeader returns the address of this object's embedded Header. It must
	// always return the same address for the lifetime of the object.
	GCHeader() *Header
	// Children calls mark for every Object directly reachable from this one
	// that should be kept alive by ordinary (non-weak) reachability. Weak
	// tables skip the sides configured as weak.
	Children(mark func(Object))
}

// Finalizer is implemented by objects that need to run cleanup when they are
// collected: buffers release their backing bytes, tables release their
// bucket array, fibers release their value stack, and abstract values invoke
// their user-supplied finalizer.
type Finalizer interface {
	Finalize()
}

// WeakScanner is implemented by weak tables (or other weak containers). After
// the mark phase completes, the Heap calls ScanWeak on every registered
// WeakScanner so it can drop entries whose weakly-held side did not survive
// marking.
type WeakScanner interface {
	Object
	// ScanWeak is called once per collection, after marking and before sweep.
	// isLive reports whether the given Object was reached during the mark
	// phase (or is pinned); the scanner must clear any entry referring to an
	// Object for which isLive returns false.
	ScanWeak(isLive func(Object) bool)
}

// OOMHook is the type of the out-of-memory hook a host may install with
// SetOOMHook. The heap stores the hook (by default one that panics), but no
// code in this package calls it: Track never fails, and no allocation path
// here detects or reports memory exhaustion.
type OOMHook func(requested uintptr)

// Stats reports a point-in-time snapshot of collector bookkeeping, primarily
// for diagnostics and the CLI's gcstats command.
type Stats struct {
	LiveObjects    int
	BytesAllocated uint64
	NextCollection uint64
	Interval       uint64
	Collections    int
}

// Heap owns one generation's worth of GC-managed objects: the block list, the
// root table, the weak-table registry, and the byte-counter that schedules
// collections. A Heap is not safe for concurrent use; the runtime model is
// one Heap per VM thread (see spec §5).
type Heap struct {
	head  *Header // head of the block list (most recently allocated first)
	count int

	roots map[Object]int // pinned-by-root-table objects, refcounted
	weak  []WeakScanner  // registered weak tables, pruned lazily on sweep

	bytesAllocated uint64
	liveBytes      uint64
	nextCollection uint64
	interval       uint64

	oom OOMHook

	collections int
}

// New returns a Heap ready to track allocations. interval is the initial
// number of bytes that may be allocated before the first collection is
// considered; a value of 0 picks a reasonable default.
func New(interval uint64) *Heap {
	if interval == 0 {
		interval = 1 << 20 // 1 MiB of notional "allocated bytes" before first GC
	}
	return &Heap{
		roots:          make(map[Object]int),
		interval:       interval,
		nextCollection: interval,
		oom: func(requested uintptr) {
			panic(fmt.Sprintf("out of memory: failed to allocate %d bytes", requested))
		},
	}
}

// SetOOMHook replaces the stored out-of-memory hook; a nil hook is replaced
// by a no-op. See OOMHook: the stored hook is never called by this package.
func (h *Heap) SetOOMHook(hook OOMHook) {
	if hook == nil {
		hook = func(uintptr) {}
	}
	h.oom = hook
}

// Track registers obj with the heap: it is linked onto the block list with
// the disabled (pinned) bit set, per the allocator contract ("construction is
// multi-step and may allocate again; marking a half-built object is
// unsafe"). The caller must call Enable once construction of obj is
// complete, or the object leaks (remains unconditionally reachable forever).
//
// size is the approximate number of bytes obj occupies; it only feeds the
// collection-scheduling heuristic, it is not used for accounting precision.
func (h *Heap) Track(obj Object, mt MemType, size uintptr) {
	hdr := obj.GCHeader()
	*hdr = Header{next: h.head, memType: mt, size: uint64(size), obj: obj}
	hdr.setDisabled(true)
	h.head = hdr
	h.count++
	h.bytesAllocated += uint64(size)
}

// Enable clears the disabled (pinned) bit set by Track, making obj subject to
// ordinary reachability-based collection.
func (h *Heap) Enable(obj Object) {
	obj.GCHeader().setDisabled(false)
}

// RegisterWeak records a weak-table-like object so future collections call
// its ScanWeak hook. Idempotent.
func (h *Heap) RegisterWeak(ws WeakScanner) {
	for _, w := range h.weak {
		if w == ws {
			return
		}
	}
	h.weak = append(h.weak, ws)
}

// Pin sets the disabled bit on obj's header, forcing it to be treated as
// reachable regardless of the object graph until Unpin is called. This is
// the low-level primitive; AddRoot/RemoveRoot (refcounted) are usually more
// convenient for long-running C-style call stacks.
func Pin(obj Object) { obj.GCHeader().setDisabled(true) }

// Unpin clears the disabled bit set by Pin.
func Unpin(obj Object) { obj.GCHeader().setDisabled(false) }

// AddRoot adds obj to the heap's explicit root table. Roots are refcounted:
// an object pinned by N calls to AddRoot requires N calls to RemoveRoot
// before it stops being an explicit root (it may of course still be kept
// alive by ordinary reachability from other roots).
func (h *Heap) AddRoot(obj Object) {
	h.roots[obj]++
}

// RemoveRoot decrements obj's root refcount, removing it from the root table
// once it reaches zero. Removing a root that was never added is a no-op.
func (h *Heap) RemoveRoot(obj Object) {
	if n, ok := h.roots[obj]; ok {
		if n <= 1 {
			delete(h.roots, obj)
		} else {
			h.roots[obj] = n - 1
		}
	}
}

// RootSet is implemented by collaborators (notably lang/fiber.Fiber) that
// contribute additional roots beyond the heap's own root table — the current
// fiber and every fiber reachable via parent/child, per spec §4.1.
type RootSet interface {
	GCRoots() []Object
}

// MaybeCollect runs a collection if accumulated allocations since the last
// one exceed the scheduled interval. extra contributes additional transient
// roots (e.g. values currently on a native call stack that haven't been
// pinned). It returns true if a collection ran.
func (h *Heap) MaybeCollect(extra RootSet) bool {
	if h.bytesAllocated < h.nextCollection {
		return false
	}
	h.Collect(extra)
	return true
}

// Collect runs an unconditional mark/sweep pass.
func (h *Heap) Collect(extra RootSet) {
	h.mark(extra)
	h.scanWeak()
	h.sweep()

	// Retune the interval to a multiple of current live bytes, to achieve
	// amortized linear overhead (spec §4.1 "Scheduling"). h.liveBytes is
	// sweep's own tally of bytes still reachable after this pass, not
	// h.bytesAllocated — sweep already reset that to 0 by the time Collect
	// gets here, which would otherwise pin the interval at its floor forever.
	live := h.liveBytes
	const retuneFactor = 2
	newInterval := live * retuneFactor
	if newInterval < 4096 {
		newInterval = 4096
	}
	h.interval = newInterval
	h.nextCollection = h.bytesAllocated + h.interval
	h.collections++
}

func (h *Heap) mark(extra RootSet) {
	var stack []Object

	push := func(o Object) {
		if o == nil {
			return
		}
		hdr := o.GCHeader()
		if hdr.reachable() {
			return
		}
		hdr.setReachable(true)
		stack = append(stack, o)
	}

	for obj := range h.roots {
		push(obj)
	}
	if extra != nil {
		for _, obj := range extra.GCRoots() {
			push(obj)
		}
	}
	// Pinned (disabled) objects are unconditionally reachable even if nothing
	// on the live graph references them yet (e.g. mid-construction values).
	for hdr := h.head; hdr != nil; hdr = hdr.next {
		if hdr.Disabled() {
			push(hdr.obj)
		}
	}

	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obj.Children(push)
	}
}

func (h *Heap) scanWeak() {
	isLive := func(o Object) bool {
		if o == nil {
			return true
		}
		hdr := o.GCHeader()
		return hdr.reachable() || hdr.Disabled()
	}
	for _, w := range h.weak {
		w.ScanWeak(isLive)
	}
}

func (h *Heap) sweep() {
	var (
		newHead   *Header
		newCount  int
		liveBytes uint64
		liveWeak  []WeakScanner
	)

	weakLive := make([]bool, len(h.weak))
	for i, w := range h.weak {
		hdr := w.GCHeader()
		weakLive[i] = hdr.reachable() || hdr.Disabled()
	}

	for hdr := h.head; hdr != nil; {
		next := hdr.next
		if hdr.reachable() || hdr.Disabled() {
			hdr.setReachable(false)
			hdr.next = newHead
			newHead = hdr
			newCount++
			liveBytes += hdr.size
		} else {
			if fin, ok := hdr.obj.(Finalizer); ok {
				fin.Finalize()
			}
		}
		hdr = next
	}
	h.head = newHead
	h.count = newCount
	h.liveBytes = liveBytes

	for i, w := range h.weak {
		if weakLive[i] {
			liveWeak = append(liveWeak, w)
		}
	}
	h.weak = liveWeak

	// bytesAllocated tracks allocation pressure since the last collection, so
	// it resets here; Track calls after this point accumulate toward the next
	// scheduled collection. liveBytes (just computed above) is what Collect's
	// interval retuning reads instead, since by this point bytesAllocated no
	// longer reflects what actually survived the sweep.
	h.bytesAllocated = 0
}

// Stats returns a snapshot of the collector's bookkeeping.
func (h *Heap) Stats() Stats {
	return Stats{
		LiveObjects:    h.count,
		BytesAllocated: h.bytesAllocated,
		NextCollection: h.nextCollection,
		Interval:       h.interval,
		Collections:    h.collections,
	}
}
