package vm

import (
	"fmt"

	"github.com/chazu/rill/manifest"
)

// InstallBuiltins registers a small, demonstrative set of host-provided
// primitive methods and global functions, grounded in
// original_source/builtins.cpp's shape: arithmetic and comparison as
// methods on Int, boolean negation as a method on Bool, and a couple of
// free functions reachable from Context.Builtins. A complete standard
// library is explicitly out of scope (§1) — this exists to exercise the
// CppFunction/Send/Call paths end to end, not to be exhaustive.
func InstallBuiltins(ctx *Context, groups manifest.Builtins) {
	installObjectMethods(ctx) // class/not_understood: always installed, needed by the VM's own dispatch fallback
	if groups.Arithmetic {
		installIntMethods(ctx)
		installBoolMethods(ctx)
	}
	if groups.Classes {
		installClassMethods(ctx)
	}
	if groups.Print {
		installGlobals(ctx)
	}
}

// defineMethod installs name on klass in the curried "Method" shape §4.5
// describes: an outer CppFunction of arity 1 bound to self, which — for
// inner > 0 — returns a further CppFunction of arity inner closing over
// self and computing the final result from the real arguments. Send's
// calling convention only ever supplies the receiver; a following Call
// supplies the rest, so every host method must be shaped this way to be
// reachable through Send at all.
func defineMethod(ctx *Context, klass Ptr[Klass], name string, inner int, fn func(ctx *Context, self Value, args []Value) (Value, error)) {
	outer := CppFunction{Name: name, Nargs: 1, Fn: func(ctx *Context, args []Value) (Value, error) {
		self := args[0]
		if inner == 0 {
			return fn(ctx, self, nil)
		}
		bound := CppFunction{Name: name, Nargs: inner, Fn: func(ctx *Context, innerArgs []Value) (Value, error) {
			return fn(ctx, self, innerArgs)
		}}
		root := Alloc(ctx.Collector, bound)
		defer root.Drop()
		return FromCppFunctionPtr(root.Value), nil
	}}
	root := Alloc(ctx.Collector, outer)
	defer root.Drop()
	klass.Get().Define(ctx, name, FromCppFunctionPtr(root.Value))
}

func requireInt(v Value, who string) (int64, error) {
	if v.Kind() != KindInt {
		return 0, fmt.Errorf("rill: %s expects an Int argument", who)
	}
	return v.Int(), nil
}

func installIntMethods(ctx *Context) {
	binop := func(name string, f func(a, b int64) Value) {
		defineMethod(ctx, ctx.IntClass, name, 1, func(ctx *Context, self Value, args []Value) (Value, error) {
			a, err := requireInt(self, name)
			if err != nil {
				return Value{}, err
			}
			if len(args) < 1 {
				return Value{}, fmt.Errorf("rill: %s expects an Int argument", name)
			}
			b, err := requireInt(args[0], name)
			if err != nil {
				return Value{}, err
			}
			return f(a, b), nil
		})
	}
	binop("+", func(a, b int64) Value { return FromInt(a + b) })
	binop("-", func(a, b int64) Value { return FromInt(a - b) })
	binop("*", func(a, b int64) Value { return FromInt(a * b) })
	binop("<", func(a, b int64) Value { return FromBool(a < b) })
	binop("<=", func(a, b int64) Value { return FromBool(a <= b) })
	binop(">", func(a, b int64) Value { return FromBool(a > b) })
	binop(">=", func(a, b int64) Value { return FromBool(a >= b) })
	binop("==", func(a, b int64) Value { return FromBool(a == b) })

	defineMethod(ctx, ctx.IntClass, "/", 1, func(ctx *Context, self Value, args []Value) (Value, error) {
		a, err := requireInt(self, "/")
		if err != nil {
			return Value{}, err
		}
		if len(args) < 1 {
			return Value{}, fmt.Errorf("rill: / expects an Int argument")
		}
		b, err := requireInt(args[0], "/")
		if err != nil {
			return Value{}, err
		}
		if b == 0 {
			return Value{}, &Raised{Value: ctx.NewString("division by zero")}
		}
		return FromInt(a / b), nil
	})
}

func installBoolMethods(ctx *Context) {
	defineMethod(ctx, ctx.BoolClass, "not", 0, func(ctx *Context, self Value, args []Value) (Value, error) {
		return FromBool(!self.Bool()), nil
	})
}

func installObjectMethods(ctx *Context) {
	defineMethod(ctx, ctx.ObjectClass, "class", 0, func(ctx *Context, self Value, args []Value) (Value, error) {
		k := self.ClassOf(ctx)
		return FromKlassPtr(k), nil
	})
	// not_understood(obj) returns a thunk; calling that thunk with the bare
	// selector string (not a synthesized message object) raises the
	// catchable "does not understand" exception.
	defineMethod(ctx, ctx.ObjectClass, "not_understood", 1, func(ctx *Context, self Value, args []Value) (Value, error) {
		selector := "?"
		if len(args) > 0 && args[0].Kind() == KindString {
			selector = *args[0].StringPtr().Get()
		}
		return Value{}, &Raised{Value: ctx.NewString(fmt.Sprintf("%s does not understand %q", self.Inspect(), selector))}
	})
}

// installClassMethods gives scripts a way to build the class hierarchy
// without any dedicated class-definition bytecode: Class instances (i.e.
// Klass values) understand "subclass" and "define" as ordinary sent
// methods, grounded in original_source/value.cpp's NewKlass and
// Klass::define respectively.
func installClassMethods(ctx *Context) {
	defineMethod(ctx, ctx.ClassClass, "subclass", 1, func(ctx *Context, self Value, args []Value) (Value, error) {
		if self.Kind() != KindKlass {
			return Value{}, fmt.Errorf("rill: subclass expects a Class receiver")
		}
		if len(args) < 1 || args[0].Kind() != KindString {
			return Value{}, fmt.Errorf("rill: subclass expects a String name")
		}
		root := NewKlass(ctx, self.KlassPtr())
		defer root.Drop()
		root.Value.Get().Properties["name"] = args[0]
		return FromKlassPtr(root.Value), nil
	})
	defineMethod(ctx, ctx.ClassClass, "define", 2, func(ctx *Context, self Value, args []Value) (Value, error) {
		if self.Kind() != KindKlass {
			return Value{}, fmt.Errorf("rill: define expects a Class receiver")
		}
		if len(args) < 2 || args[0].Kind() != KindString {
			return Value{}, fmt.Errorf("rill: define expects a String method name")
		}
		name := *args[0].StringPtr().Get()
		self.KlassPtr().Get().Define(ctx, name, args[1])
		return self, nil
	})
	defineMethod(ctx, ctx.ClassClass, "name", 0, func(ctx *Context, self Value, args []Value) (Value, error) {
		if self.Kind() != KindKlass {
			return Value{}, fmt.Errorf("rill: name expects a Class receiver")
		}
		if v, ok := self.KlassPtr().Get().Properties["name"]; ok {
			return v, nil
		}
		return Nil, nil
	})
}

func installGlobals(ctx *Context) {
	ctx.Builtins["true"] = FromBool(true)
	ctx.Builtins["false"] = FromBool(false)
	ctx.Builtins["nil"] = Nil

	print := CppFunction{Name: "print", Nargs: -1, Fn: func(ctx *Context, args []Value) (Value, error) {
		if ctx.Log != nil {
			for _, a := range args {
				ctx.Log.Infof("print: %s", a.Inspect())
			}
		}
		return Nil, nil
	}}
	root := Alloc(ctx.Collector, print)
	ctx.pin(&root)
	ctx.Builtins["print"] = FromCppFunctionPtr(root.Value)
}
