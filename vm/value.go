package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: the uniform tagged value
// ---------------------------------------------------------------------------

// Kind discriminates Value's variants.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindString
	KindFunction
	KindCppFunction
	KindObject
	KindCppObject
	KindKlass
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "Nil"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindString:
		return "String"
	case KindFunction:
		return "Function"
	case KindCppFunction:
		return "CppFunction"
	case KindObject:
		return "Object"
	case KindCppObject:
		return "CppObject"
	case KindKlass:
		return "Klass"
	default:
		return "?"
	}
}

// Value is the discriminated union every script-level datum flows through:
// Nil, bool, i64 stored inline, plus six heap variants stored as a weak
// pointer into the collector. See DESIGN.md for why this is a tagged
// struct rather than the teacher's NaN-boxed uint64: NaN-boxing has no
// indirection layer to invalidate after a collection.
type Value struct {
	kind Kind
	i    int64 // holds bool (0/1) and int64 payloads
	heap *box  // holds the box for every heap variant
}

// Nil is the singleton nil value.
var Nil = Value{kind: KindNil}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNil() bool  { return v.kind == KindNil }
func (v Value) IsBool() bool { return v.kind == KindBool }
func (v Value) IsInt() bool  { return v.kind == KindInt }

func FromBool(b bool) Value {
	if b {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool, i: 0}
}

func (v Value) Bool() bool {
	if v.kind != KindBool {
		panic("rill: Value.Bool on non-bool")
	}
	return v.i != 0
}

func FromInt(n int64) Value { return Value{kind: KindInt, i: n} }

func (v Value) Int() int64 {
	if v.kind != KindInt {
		panic("rill: Value.Int on non-int")
	}
	return v.i
}

func FromStringPtr(p Ptr[string]) Value { return Value{kind: KindString, heap: p.b} }
func (v Value) StringPtr() Ptr[string] {
	if v.kind != KindString {
		panic("rill: Value.StringPtr on non-string")
	}
	return Ptr[string]{b: v.heap}
}

func FromFunctionPtr(p Ptr[Function]) Value { return Value{kind: KindFunction, heap: p.b} }
func (v Value) FunctionPtr() Ptr[Function] {
	if v.kind != KindFunction {
		panic("rill: Value.FunctionPtr on non-function")
	}
	return Ptr[Function]{b: v.heap}
}

func FromCppFunctionPtr(p Ptr[CppFunction]) Value { return Value{kind: KindCppFunction, heap: p.b} }
func (v Value) CppFunctionPtr() Ptr[CppFunction] {
	if v.kind != KindCppFunction {
		panic("rill: Value.CppFunctionPtr on non-cppfunction")
	}
	return Ptr[CppFunction]{b: v.heap}
}

func FromObjectPtr(p Ptr[Object]) Value { return Value{kind: KindObject, heap: p.b} }
func (v Value) ObjectPtr() Ptr[Object] {
	if v.kind != KindObject {
		panic("rill: Value.ObjectPtr on non-object")
	}
	return Ptr[Object]{b: v.heap}
}

func FromCppObjectPtr(p Ptr[CppObject]) Value { return Value{kind: KindCppObject, heap: p.b} }
func (v Value) CppObjectPtr() Ptr[CppObject] {
	if v.kind != KindCppObject {
		panic("rill: Value.CppObjectPtr on non-cppobject")
	}
	return Ptr[CppObject]{b: v.heap}
}

func FromKlassPtr(p Ptr[Klass]) Value { return Value{kind: KindKlass, heap: p.b} }
func (v Value) KlassPtr() Ptr[Klass] {
	if v.kind != KindKlass {
		panic("rill: Value.KlassPtr on non-klass")
	}
	return Ptr[Klass]{b: v.heap}
}

// IsHeap reports whether v carries a heap pointer at all.
func (v Value) IsHeap() bool {
	switch v.kind {
	case KindString, KindFunction, KindCppFunction, KindObject, KindCppObject, KindKlass:
		return true
	default:
		return false
	}
}

// Trace implements Traceable: heap variants trace to their single box,
// provided it is still valid; everything else is a no-op, matching
// original_source/gc.h's Trace<Ptr<T>> and the X-macro'd primitive
// no-op specializations.
func (v Value) Trace(t Tracer) {
	if v.IsHeap() && v.heap != nil && v.heap.valid {
		t(tracedPtr{box: v.heap})
	}
}

// ClassOf returns v's class, per §3: primitives answer their well-known
// primitive class; Object/CppObject/Klass answer their own klass field (for
// a Klass, its metaclass).
func (v Value) ClassOf(ctx *Context) Ptr[Klass] {
	switch v.kind {
	case KindNil:
		return ctx.NilClass
	case KindBool:
		return ctx.BoolClass
	case KindInt:
		return ctx.IntClass
	case KindString:
		return ctx.StringClass
	case KindFunction, KindCppFunction:
		return ctx.FunctionClass
	case KindObject:
		return v.ObjectPtr().Get().Klass
	case KindCppObject:
		return v.CppObjectPtr().Get().Klass
	case KindKlass:
		return v.KlassPtr().Get().Klass
	default:
		panic("rill: Value.ClassOf: unknown kind")
	}
}

// Inspect renders a short, non-round-tripping diagnostic string, per
// SPEC_FULL.md §12's supplemented (not full quote/unquote) string
// representation.
func (v Value) Inspect() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindString:
		if !v.StringPtr().Valid() {
			return "<invalid string>"
		}
		return strconv.Quote(*v.StringPtr().Get())
	case KindFunction:
		return "<function>"
	case KindCppFunction:
		return "<cppfunction>"
	case KindObject:
		if !v.ObjectPtr().Valid() {
			return "<invalid object>"
		}
		return "<object>"
	case KindCppObject:
		return "<cppobject>"
	case KindKlass:
		if !v.KlassPtr().Valid() {
			return "<invalid klass>"
		}
		if name, ok := v.KlassPtr().Get().Properties["name"]; ok && name.kind == KindString && name.StringPtr().Valid() {
			return fmt.Sprintf("<class %s>", *name.StringPtr().Get())
		}
		return "<class>"
	default:
		return "<?>"
	}
}

// Equal implements identity/value equality: Nil, Bool and Int compare by
// value, heap variants by box identity. Nothing in the compiler or VM
// calls it; it is not exposed as a script-level "==" operator, which is
// host-provided (§1) and may implement value equality for strings
// differently.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool, KindInt:
		return v.i == other.i
	default:
		return v.heap == other.heap
	}
}
