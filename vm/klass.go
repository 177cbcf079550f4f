package vm

// ---------------------------------------------------------------------------
// MethodEntry: an owned definition or a cached ancestor lookup
// ---------------------------------------------------------------------------

// MethodEntry mirrors original_source/value.h's detail::MethodEntry. Own
// distinguishes a method the class defines itself from one cached here
// after a successful lookup into a base class; Valid is the shared
// "detonator" boolean — flipping it (via a fresh Ptr[bool] swapped in on
// redefinition) lazily invalidates every cache entry still pointing at it.
type MethodEntry struct {
	Value Value
	Own   bool
	Valid Ptr[bool]
}

func (m MethodEntry) Trace(t Tracer) {
	m.Value.Trace(t)
	m.Valid.Trace(t)
}

// ---------------------------------------------------------------------------
// Klass: an Object plus a method table and an optional superclass
// ---------------------------------------------------------------------------

// Klass extends Object with a method table and superclass chain, exactly
// as original_source/value.h's `struct Klass : Object` does. We spell it
// "Klass" for the same reason the original does: to keep it distinct from
// Go's own vocabulary without colliding with a keyword the source language
// reserves ("class").
type Klass struct {
	Object
	Methods map[string]MethodEntry
	Base    Ptr[Klass] // IsNil() means no superclass (the root, Object)
}

// NewKlass allocates a subclass of base. Mirrors original_source/value.cpp's
// two-argument Klass constructor: the new class's own class (metaclass) is
// allocated first, itself a subclass of base's metaclass, so the metaclass
// chain mirrors the class chain one level up.
func NewKlass(ctx *Context, base Ptr[Klass]) Root[Ptr[Klass]] {
	baseKlass := base.Get()
	metaOfBase := baseKlass.Klass // metaclass of base
	var metaOfMeta Ptr[Klass]
	if metaOfBase.Valid() {
		metaOfMeta = metaOfBase.Get().Klass
	}
	meta := ctx.AllocKlass(metaOfMeta, metaOfBase)
	defer meta.Drop()
	return ctx.AllocKlass(meta.Value, base)
}

// NewRootKlass allocates a class with no superclass and an explicit
// metaclass. Context.bootstrap does not call it; it builds Object and
// Class with ctx.AllocKlass directly.
func NewRootKlass(ctx *Context, metaclass Ptr[Klass]) Root[Ptr[Klass]] {
	return ctx.AllocKlass(metaclass, Ptr[Klass]{})
}

func (k *Klass) Trace(t Tracer) {
	k.Object.Trace(t)
	for _, m := range k.Methods {
		m.Trace(t)
	}
	k.Base.Trace(t)
}

// Lookup walks the inheritance chain from self upward, per §4.2. Owned
// entries answer directly; cache entries answer while their detonator is
// still true and are purged (and the search continues into base) once it
// flips false. A successful hit that bottoms out in some ancestor is
// cached, with own=false, in every class visited along the way down to
// (and including) self — mirroring original_source/value.cpp's recursive
// lookup_rec, which inserts a cache entry at each stack frame that
// receives a hit from its own base.
func (k *Klass) Lookup(name string) (Value, bool) {
	v, _, ok := k.lookupRec(name)
	return v, ok
}

func (k *Klass) lookupRec(name string) (Value, Ptr[bool], bool) {
	if entry, ok := k.Methods[name]; ok {
		if entry.Own || *entry.Valid.Get() {
			return entry.Value, entry.Valid, true
		}
		delete(k.Methods, name)
	}
	if k.Base.IsNil() || !k.Base.Valid() {
		return Value{}, Ptr[bool]{}, false
	}
	value, valid, ok := k.Base.Get().lookupRec(name)
	if !ok {
		return Value{}, Ptr[bool]{}, false
	}
	if k.Methods == nil {
		k.Methods = make(map[string]MethodEntry)
	}
	k.Methods[name] = MethodEntry{Value: value, Own: false, Valid: valid}
	return value, valid, true
}

// Remove deletes name from this class's own method table only, flipping
// its detonator so any descendant caches go stale lazily. Returns the
// removed value, if it was owned here.
func (k *Klass) Remove(name string) (Value, bool) {
	entry, ok := k.Methods[name]
	if !ok || !entry.Own {
		return Value{}, false
	}
	*entry.Valid.Get() = false
	delete(k.Methods, name)
	return entry.Value, true
}

// Define creates a new method or overwrites an existing one, per §4.2.
func (k *Klass) Define(ctx *Context, name string, value Value) {
	if entry, ok := k.Methods[name]; ok && entry.Own {
		*entry.Valid.Get() = false
		fresh := ctx.AllocBool(true)
		entry.Value = value
		entry.Valid = fresh.Value
		k.Methods[name] = entry
		fresh.Drop()
		if ctx.Log != nil {
			ctx.Log.Debugf("klass: redefine %s (detonator flipped)", name)
		}
		return
	}
	if k.Base.Valid() {
		k.Base.Get().defineFixup(ctx, name)
	}
	fresh := ctx.AllocBool(true)
	if k.Methods == nil {
		k.Methods = make(map[string]MethodEntry)
	}
	k.Methods[name] = MethodEntry{Value: value, Own: true, Valid: fresh.Value}
	fresh.Drop()
}

// defineFixup invalidates any owned entry for name found while walking up
// from k, and purges any purely-cached entry, continuing into base either
// way. Mirrors original_source/value.cpp's Klass::define_fixup.
func (k *Klass) defineFixup(ctx *Context, name string) {
	if entry, ok := k.Methods[name]; ok {
		if entry.Own {
			*entry.Valid.Get() = false
			fresh := ctx.AllocBool(true)
			entry.Valid = fresh.Value
			k.Methods[name] = entry
			fresh.Drop()
			if ctx.Log != nil {
				ctx.Log.Debugf("klass: fixup invalidated owned %s during ancestor define", name)
			}
		} else {
			delete(k.Methods, name)
		}
	}
	if k.Base.Valid() {
		k.Base.Get().defineFixup(ctx, name)
	}
}

// IsSubclassOf reports whether k is base or a descendant of base.
func (k *Klass) IsSubclassOf(base Ptr[Klass]) bool {
	cur := k
	for {
		if sameKlass(cur, base) {
			return true
		}
		if !cur.Base.Valid() {
			return false
		}
		cur = cur.Base.Get()
	}
}

func sameKlass(k *Klass, p Ptr[Klass]) bool {
	if !p.Valid() {
		return false
	}
	return p.Get() == k
}
