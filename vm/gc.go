package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Box: the heap node managed by the Collector
// ---------------------------------------------------------------------------

// box is the untyped header shared by every heap-allocated value. Payloads
// are stored behind the Traceable interface so a single intrusive linked
// list (Collector.boxHead) can hold boxes of any type.
type box struct {
	valid bool // false once the payload has been destroyed
	next  *box // next box in Collector's allocation list, while still live

	payload Traceable
}

// Note on "outstanding weak pointers" (§3, §4.1): original_source/gc.h
// tracks a live Ptr<T> count on every box (incremented/decremented by
// Ptr<T>'s constructor/destructor) so the C++ collector knows exactly when
// it is safe to free() the box's backing storage versus merely running the
// payload's destructor and leaving a dangling-but-inert node on the list.
// Go has no destructors to hook that count on, and doesn't need one: once
// swept, a box is unlinked from Collector.boxHead immediately (see below);
// from that point its only remaining references are whatever Ptr[T] values
// a caller still holds, so Go's own allocator reclaims the struct exactly
// when the last such Ptr goes out of scope — the same "freed once no weak
// pointer refers to it" contract the spec describes, produced by Go's
// reachability tracking instead of manual refcounting.

func (b *box) trace(t Tracer) {
	b.payload.Trace(t)
}

func (b *box) destroy() {
	if d, ok := b.payload.(destroyable); ok {
		d.Destroy()
	}
	b.payload = nil
}

// destroyable is implemented by payloads that need to run cleanup (closing
// captured resources, etc.) when collected. Most payloads don't need it;
// setting valid=false and dropping the reference is enough for Go's own
// allocator to reclaim memory once the box itself becomes unreachable.
type destroyable interface {
	Destroy()
}

// ---------------------------------------------------------------------------
// Traceable / Tracer: the visitor mechanism
// ---------------------------------------------------------------------------

// Tracer is invoked once per outgoing pointer during the mark phase.
type Tracer func(p tracedPtr)

// tracedPtr is the type-erased form of Ptr[T] used to reach into the
// collector without making Tracer itself generic (Go's type parameters
// can't appear on a value passed through an interface-shaped visitor
// without erasure at this boundary).
type tracedPtr struct {
	box *box
}

// Traceable is implemented by every type that can be reached by the
// collector, whether allocated (via Box) or merely rooted (via Root).
// Tracing of primitives is a no-op; tracing of collections visits every
// element; tracing of sum types dispatches to the active variant.
type Traceable interface {
	Trace(Tracer)
}

// ---------------------------------------------------------------------------
// Ptr[T]: weak, nullable handle to a Box
// ---------------------------------------------------------------------------

// Ptr is a weak pointer into the collector's heap. Triggering a collection
// can invalidate it at any time; using it requires checking Valid first, or
// calling Get, which panics on an invalid pointer (a host-fatal error per
// the error taxonomy: dereferencing a dangling Ptr is never a programmer
// mistake the scripting language itself can make, since only the VM and Go
// host code hold Ptrs directly).
type Ptr[T any] struct {
	b *box
}

// NilPtr returns the null pointer for T.
func NilPtr[T any]() Ptr[T] { return Ptr[T]{} }

// IsNil reports whether the pointer holds no box at all (as opposed to a
// box whose payload has been collected — see Valid).
func (p Ptr[T]) IsNil() bool { return p.b == nil }

// Valid reports whether the underlying box's payload is still alive.
func (p Ptr[T]) Valid() bool { return p.b != nil && p.b.valid }

// Get dereferences the pointer, panicking if it is invalid.
func (p Ptr[T]) Get() *T {
	if !p.Valid() {
		panic("rill: dereferenced an invalid Ptr")
	}
	t, ok := p.b.payload.(*typedPayload[T])
	if !ok {
		panic("rill: Ptr type mismatch")
	}
	return &t.value
}

// Trace implements Traceable: a Ptr traces to exactly one child, its box,
// provided the pointer is currently valid.
func (p Ptr[T]) Trace(t Tracer) {
	if p.Valid() {
		t(tracedPtr{box: p.b})
	}
}

// Cast reinterprets the pointer's payload as U without any runtime check,
// mirroring original_source/gc.h's Ptr<T>::cast<U>. Used only where the
// caller has already established the dynamic type by other means (e.g.
// Value's own tag).
func Cast[U any, T any](p Ptr[T]) Ptr[U] {
	return Ptr[U]{b: p.b}
}

// DynCast performs a checked downcast, mirroring original_source/gc.h's
// Ptr<T>::dyncast<U>. It succeeds only when the box's payload is actually a
// *typedPayload[U]; there is no address-shift hazard in Go (interfaces
// carry the concrete type directly), so unlike the C++ original DynCast
// cannot fail due to multiple-inheritance layout, only due to type
// mismatch.
func DynCast[U any, T any](p Ptr[T]) (Ptr[U], bool) {
	if !p.Valid() {
		return Ptr[U]{}, false
	}
	if _, ok := p.b.payload.(*typedPayload[U]); !ok {
		return Ptr[U]{}, false
	}
	return Ptr[U]{b: p.b}, true
}

// typedPayload wraps a T so it can carry a Trace/Destroy implementation
// without requiring every T managed by the collector to itself satisfy
// Traceable through pointer receivers colliding with unrelated methods.
type typedPayload[T any] struct {
	value T
}

func (p *typedPayload[T]) Trace(t Tracer) {
	if tr, ok := any(&p.value).(Traceable); ok {
		tr.Trace(t)
	}
}

func (p *typedPayload[T]) Destroy() {
	if d, ok := any(&p.value).(destroyable); ok {
		d.Destroy()
	}
}

// ---------------------------------------------------------------------------
// Root[T]: scoped strong anchor
// ---------------------------------------------------------------------------

// rootNode is the intrusive-list node backing every live Root, independent
// of T so the Collector can hold a single homogeneous list.
type rootNode struct {
	prev, next *rootNode
	trace      func(Tracer)
}

// Root is a scoped strong anchor: for as long as it exists, everything
// transitively reachable from its traced contents survives collection.
// Roots are registered on the Collector's intrusive root list at creation
// and must be released (Drop) when the enclosing scope exits normally or
// via a raised exception — the Go idiom for this is `defer r.Drop()`
// immediately after obtaining the root.
type Root[T any] struct {
	c     *Collector
	node  *rootNode
	Value T
}

// Drop releases the root, unlinking it from the collector's root list. A
// dropped root's Value is no longer a GC entry point; using Value after
// Drop is a programming error the type system doesn't prevent, matching
// original_source/gc.h's RAII discipline (a Root going out of scope there
// is a compile-time guarantee C++ has and Go does not — callers must defer
// Drop themselves).
func (r *Root[T]) Drop() {
	if r.node == nil {
		return
	}
	r.c.detachRoot(r.node)
	r.node = nil
}

// ---------------------------------------------------------------------------
// Collector: tracing mark-and-sweep
// ---------------------------------------------------------------------------

// Collector owns every heap Box and the intrusive root list. Only the
// owning Context may call Alloc/Collect (§5: "Only the owning Context may
// call alloc/collect").
type Collector struct {
	boxHead  *box
	rootHead *rootNode
	allocations int
	threshold   int

	log commonlog.Logger
}

// NewCollector creates an empty collector. threshold starts at 128,
// matching original_source/gc.cpp's initial value (also the floor used by
// max(allocations*2, 128) after every collection).
func NewCollector(log commonlog.Logger) *Collector {
	return NewCollectorWithThreshold(log, 128)
}

// NewCollectorWithThreshold is NewCollector with an explicit starting
// threshold, for a host that has loaded one from runtime.toml's
// [gc].initial-threshold (manifest.GC).
func NewCollectorWithThreshold(log commonlog.Logger, threshold int) *Collector {
	if threshold <= 0 {
		threshold = 128
	}
	return &Collector{threshold: threshold, log: log}
}

// Alloc allocates a Box wrapping a newly constructed T and returns it
// already rooted. If allocations have reached the threshold, a collection
// runs first; afterwards threshold is reset to max(allocations*2, 128).
func Alloc[T any](c *Collector, value T) Root[Ptr[T]] {
	if c.allocations >= c.threshold {
		c.Collect()
		if c.allocations*2 > 128 {
			c.threshold = c.allocations * 2
		} else {
			c.threshold = 128
		}
	}
	b := &box{valid: true, next: c.boxHead, payload: &typedPayload[T]{value: value}}
	c.boxHead = b
	c.allocations++
	return rootPtr(c, Ptr[T]{b: b})
}

// Root produces a Root over any traceable value, pinning it as a GC entry
// point for as long as the Root lives.
func (c *Collector) Root(value Traceable) Root[Traceable] {
	return rootAny(c, value)
}

// RootValue is a convenience for rooting a plain Value (Value implements
// Traceable directly, so this is the common case scripts and the VM use).
func RootValue(c *Collector, v Value) Root[Value] {
	return rootTyped(c, v)
}

// rootTyped is the generic constructor backing every typed Root[T] helper.
func rootTyped[T Traceable](c *Collector, value T) Root[T] {
	n := &rootNode{}
	n.trace = func(t Tracer) { value.Trace(t) }
	c.attachRoot(n)
	return Root[T]{c: c, node: n, Value: value}
}

func rootAny(c *Collector, value Traceable) Root[Traceable] {
	return rootTyped[Traceable](c, value)
}

// Root over a Ptr[T] is used pervasively (Alloc returns one); give it a
// named constructor too so call sites read naturally.
func rootPtr[T any](c *Collector, p Ptr[T]) Root[Ptr[T]] {
	n := &rootNode{}
	n.trace = func(t Tracer) { p.Trace(t) }
	c.attachRoot(n)
	return Root[Ptr[T]]{c: c, node: n, Value: p}
}

func (c *Collector) attachRoot(n *rootNode) {
	n.next = c.rootHead
	if c.rootHead != nil {
		c.rootHead.prev = n
	}
	c.rootHead = n
}

func (c *Collector) detachRoot(n *rootNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else if c.rootHead == n {
		c.rootHead = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
}

// Collect performs one full mark-and-sweep cycle.
func (c *Collector) Collect() {
	marked := make(map[*box]bool)
	var worklist []*box

	enqueue := func(p tracedPtr) {
		if p.box == nil || !p.box.valid || marked[p.box] {
			return
		}
		marked[p.box] = true
		worklist = append(worklist, p.box)
	}

	for n := c.rootHead; n != nil; n = n.next {
		n.trace(enqueue)
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		b.trace(enqueue)
	}

	swept := 0
	prev := (*box)(nil)
	cur := c.boxHead
	for cur != nil {
		next := cur.next
		if marked[cur] {
			prev = cur
			cur = next
			continue
		}
		swept++
		if cur.valid {
			cur.destroy()
			cur.valid = false
			c.allocations--
		}
		// Unlink unconditionally: the collector's own bookkeeping list has
		// no more use for a dead box (it will never be traced again), and
		// any Ptr[T] still holding this *box keeps it alive independently
		// via Go's ordinary reachability — see the note after the box type
		// above.
		if prev == nil {
			c.boxHead = next
		} else {
			prev.next = next
		}
		cur = next
	}

	if c.log != nil {
		c.log.Debugf("gc: collect swept=%d threshold=%d", swept, c.threshold)
	}
}

// String is provided for debug output in tests and panics only.
func (c *Collector) String() string {
	return fmt.Sprintf("Collector(allocations=%d threshold=%d)", c.allocations, c.threshold)
}
