package vm

// ---------------------------------------------------------------------------
// Object: a native compound value with named properties
// ---------------------------------------------------------------------------

// Object mirrors original_source/value.h's Object exactly: a plain
// name-to-Value property map plus a pointer to its class. Every value is
// "an object" conceptually (§3), but this particular Go type names the
// dictionary-like objects the language itself creates and manipulates
// through GetProp/SetProp.
type Object struct {
	Properties map[string]Value
	Klass      Ptr[Klass]
}

// NewObject returns a fresh, empty Object of the given class; the caller
// allocates it on the collector's heap.
func NewObject(klass Ptr[Klass]) Object {
	return Object{Properties: make(map[string]Value), Klass: klass}
}

// GetProp looks up a property by name.
func (o *Object) GetProp(name string) (Value, bool) {
	v, ok := o.Properties[name]
	return v, ok
}

// SetProp assigns a property, creating it if absent.
func (o *Object) SetProp(name string, v Value) {
	o.Properties[name] = v
}

// Trace visits the object's class and every property value.
func (o *Object) Trace(t Tracer) {
	o.Klass.Trace(t)
	for _, v := range o.Properties {
		v.Trace(t)
	}
}

// ---------------------------------------------------------------------------
// CppObject: base for foreign objects implemented in Go
// ---------------------------------------------------------------------------

// CppObject wraps host-side state behind a scripting-language class,
// mirroring original_source/value.h's CppObject. Data is opaque to the
// core; a host FFI package installs one Klass per Go type it exposes and
// stores its own struct in Data.
type CppObject struct {
	Klass Ptr[Klass]
	Data  any
}

func (o *CppObject) Trace(t Tracer) {
	o.Klass.Trace(t)
	if tr, ok := o.Data.(Traceable); ok {
		tr.Trace(t)
	}
}
