package vm

import (
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/rill/manifest"
)

// Context owns one Collector and the well-known classes every value's
// primitive kind resolves to (§3, §5: "Only the owning Context may call
// alloc/collect", "Multiple Contexts may coexist ... without shared
// mutable state"). A process may run several Contexts concurrently as
// long as no Value ever crosses between them.
type Context struct {
	*Collector

	ObjectClass   Ptr[Klass]
	ClassClass    Ptr[Klass]
	NilClass      Ptr[Klass]
	BoolClass     Ptr[Klass]
	IntClass      Ptr[Klass]
	StringClass   Ptr[Klass]
	FunctionClass Ptr[Klass]

	// Builtins holds every host-provided FFI entry point installed by
	// builtins.go, addressable by name from compiled GetVar lookups that
	// fall through to the global scope. Primitive method libraries
	// themselves are explicitly out of scope (§1); this is just the seam
	// a host program uses to provide them.
	Builtins map[string]Value

	Log commonlog.Logger
	ID  uuid.UUID

	roots []interface{ Drop() }
}

// NewContext builds a fresh Context using manifest.Default(), bootstrapping
// the primitive class hierarchy exactly as original_source/value.cpp's
// Context constructor does, then installing every builtin group (see
// builtins.go).
func NewContext(log commonlog.Logger) *Context {
	return NewContextWithManifest(log, manifest.Default())
}

// NewContextWithManifest is NewContext with an explicit runtime.toml-backed
// configuration: it sizes the Collector's starting threshold from
// [gc].initial-threshold and installs only the builtin groups [builtins]
// enables, per §10 and §12.
func NewContextWithManifest(log commonlog.Logger, m *manifest.Manifest) *Context {
	if m == nil {
		m = manifest.Default()
	}
	collectorLog := log
	if !m.GC.LogCollections {
		collectorLog = nil
	}
	ctx := &Context{
		Collector: NewCollectorWithThreshold(collectorLog, m.GC.InitialThreshold),
		Builtins:  make(map[string]Value),
		Log:       log,
		ID:        uuid.New(),
	}
	ctx.bootstrap()
	InstallBuiltins(ctx, m.Builtins)
	if ctx.Log != nil {
		ctx.Log.Infof("context %s: bootstrapped", ctx.ID)
	}
	return ctx
}

// bootstrap wires up Object, Class, and the five primitive classes. Class
// is a subclass of Object, and Object's metaclass is an instance and a
// subclass of Class, so these three must be allocated "raw" (klass and base
// assigned directly, with no metaclass-of-metaclass computation) before
// anything else can exist; every other well-known class is then allocated
// with klass = Class and base = Object.
func (ctx *Context) bootstrap() {
	classCls := ctx.AllocKlass(Ptr[Klass]{}, Ptr[Klass]{})
	objectCls := ctx.AllocKlass(Ptr[Klass]{}, Ptr[Klass]{})
	objectMeta := ctx.AllocKlass(classCls.Value, classCls.Value)
	defer objectMeta.Drop() // reachable from objectCls.Klass once wired below

	objectCls.Value.Get().Klass = objectMeta.Value
	classCls.Value.Get().Klass = classCls.Value
	classCls.Value.Get().Base = objectCls.Value

	// classCls and objectCls form a cycle reachable only from each other
	// (objectCls.Klass -> objectMeta -> classCls, classCls.Base ->
	// objectCls); with nothing else rooting the pair, both roots must be
	// pinned for the Context's whole lifetime.
	ctx.pin(&classCls)
	ctx.pin(&objectCls)

	ctx.ClassClass = classCls.Value
	ctx.ObjectClass = objectCls.Value

	nameOf := func(k Ptr[Klass], name string) {
		k.Get().Properties["name"] = ctx.NewString(name)
	}
	nameOf(ctx.ObjectClass, "Object")
	nameOf(ctx.ClassClass, "Class")

	prim := func(name string) Ptr[Klass] {
		r := ctx.AllocKlass(ctx.ClassClass, ctx.ObjectClass)
		ctx.pin(&r)
		nameOf(r.Value, name)
		return r.Value
	}
	ctx.NilClass = prim("Nil")
	ctx.BoolClass = prim("Bool")
	ctx.IntClass = prim("Int")
	ctx.StringClass = prim("String")
	ctx.FunctionClass = prim("Function")
}

// AllocKlass allocates a Klass directly from an explicit metaclass and
// base, with no metaclass-of-metaclass computation, and returns it rooted
// but droppable. NewKlass (klass.go) builds on top of this to compute a
// fresh metaclass for ordinary subclassing; bootstrap uses it directly for
// the handful of classes that need a specific, non-computed metaclass
// wiring. Callers that need the result to outlive their own scope must
// either keep the Root alive themselves or call ctx.pin, as bootstrap does
// for the well-known classes.
func (ctx *Context) AllocKlass(klass, base Ptr[Klass]) Root[Ptr[Klass]] {
	k := Klass{
		Object: Object{Properties: make(map[string]Value), Klass: klass},
		Base:   base,
	}
	return Alloc(ctx.Collector, k)
}

// AllocBool allocates a fresh detonator cell. It is not pinned: once
// installed into a MethodEntry reachable from some Klass, the entry itself
// is what keeps it alive.
func (ctx *Context) AllocBool(v bool) Root[Ptr[bool]] {
	return Alloc(ctx.Collector, v)
}

// NewString allocates a script-level string value. The returned Value is
// safe to store into any already-reachable structure (a frame's operand
// stack, a property map, a Raised about to be thrown) with no allocation
// in between; it carries no root of its own beyond that transitive
// reachability, matching how every other heap Value works once created.
func (ctx *Context) NewString(s string) Value {
	root := Alloc(ctx.Collector, s)
	defer root.Drop()
	return FromStringPtr(root.Value)
}

// pin keeps a Root alive for the Context's entire lifetime by holding onto
// its Drop method rather than calling it. Used only for values with no
// natural narrower scope: well-known classes and their names.
func (ctx *Context) pin(r interface{ Drop() }) {
	ctx.roots = append(ctx.roots, r)
}

// Close drops every root the Context has pinned for its own lifetime. A
// Context is unusable after Close; any further Alloc will still succeed,
// but nothing prevents its result (and everything reachable from
// bootstrap) from being collected out from under it.
func (ctx *Context) Close() {
	for _, r := range ctx.roots {
		r.Drop()
	}
	ctx.roots = nil
}
