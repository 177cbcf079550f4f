package vm

import "testing"

// callLambda compiles a top-level lambda and calls it once with args.
func callLambda(t *testing.T, ctx *Context, l LambdaExpr, args ...Value) Value {
	t.Helper()
	proto, err := CompileLambda(ctx, l)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	protoRoot := Alloc(ctx.Collector, *proto)
	defer protoRoot.Drop()
	fnRoot := Alloc(ctx.Collector, Function{Proto: protoRoot.Value})
	defer fnRoot.Drop()

	vm := NewInterpreter(ctx)
	result, err := vm.Call(FromFunctionPtr(fnRoot.Value), args)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return result
}

// A function that calls another function twice in the course of computing
// its own result behaves as a pure stack no-op around each call save for
// the pushed return value: nothing leaks or gets left behind across
// repeated Call/Return pairs.
func TestInterpreterCallReturnIsStackNeutral(t *testing.T) {
	ctx := NewContext(nil)
	l := lambda([]string{"x"},
		LetExpr{Name: "double", Value: lambda([]string{"v"},
			ReturnExpr{Value: bin("*", VariableExpr{"v"}, IntExpr{2})},
		)},
		ReturnExpr{Value: bin("+",
			call(VariableExpr{"double"}, VariableExpr{"x"}),
			call(VariableExpr{"double"}, bin("+", VariableExpr{"x"}, IntExpr{1})),
		)},
	)
	got := callLambda(t, ctx, l, FromInt(10))
	// double(10) + double(11) = 20 + 22 = 42
	if got.Kind() != KindInt || got.Int() != 42 {
		t.Fatalf("expected 42, got %s", got.Inspect())
	}

	// Run it several more times: a leaking operand stack would eventually
	// corrupt later results even though each call's own logic is correct.
	for i := 0; i < 5; i++ {
		got := callLambda(t, ctx, l, FromInt(int64(i)))
		want := int64(i)*2 + int64(i+1)*2
		if got.Kind() != KindInt || got.Int() != want {
			t.Fatalf("iteration %d: expected %d, got %s", i, want, got.Inspect())
		}
	}
}

// An exception thrown from inside a Catch region resumes execution at the
// handler with exactly the thrown value visible, and the surrounding
// expression's own stack usage (the "1 +" wrapped around the try) is
// unaffected: nothing pushed inside the try leaks past its catch.
func TestInterpreterCatchUnwindsToExactValue(t *testing.T) {
	ctx := NewContext(nil)
	l := lambda(nil,
		ReturnExpr{Value: bin("+", IntExpr{1},
			TryExpr{
				Body: block(
					LetExpr{Name: "a", Value: IntExpr{5}},
					LetExpr{Name: "b", Value: IntExpr{6}},
					ThrowExpr{Value: IntExpr{77}},
				),
				Name:    "e",
				Handler: bin("+", VariableExpr{"e"}, IntExpr{1}),
			},
		)},
	)
	got := callLambda(t, ctx, l)
	// 1 + (77 + 1) = 79
	if got.Kind() != KindInt || got.Int() != 79 {
		t.Fatalf("expected 79, got %s", got.Inspect())
	}
}

// Two closures created over the same still-open local observe each other's
// writes; two closures created over distinct, already-closed locals from
// separate block scopes do not share state at all.
func TestInterpreterOpenVsClosedUpvalues(t *testing.T) {
	ctx := NewContext(nil)

	// Open, shared: setter's write is visible through getter even though
	// both calls happen after the defining block itself has exited (the
	// upvalue was opened once and shared between the two closures before
	// either was closed).
	shared := lambda(nil,
		LetExpr{Name: "getter", Value: EmptyExpr{}},
		LetExpr{Name: "setter", Value: EmptyExpr{}},
		block(
			LetExpr{Name: "x", Value: IntExpr{5}},
			AssignExpr{Name: "getter", Value: lambda(nil, ReturnExpr{Value: VariableExpr{"x"}})},
			AssignExpr{Name: "setter", Value: lambda([]string{"v"},
				AssignExpr{Name: "x", Value: VariableExpr{"v"}},
				ReturnExpr{Value: EmptyExpr{}},
			)},
		),
		call(VariableExpr{"setter"}, IntExpr{99}),
		ReturnExpr{Value: call(VariableExpr{"getter"})},
	)
	got := callLambda(t, ctx, shared)
	if got.Kind() != KindInt || got.Int() != 99 {
		t.Fatalf("expected shared upvalue write visible (99), got %s", got.Inspect())
	}

	// Closed, independent: two block scopes each declare their own x, each
	// captured by a distinct closure; once each block exits its upvalue is
	// closed to a private snapshot, so the two closures never interfere.
	independent := lambda(nil,
		LetExpr{Name: "a", Value: EmptyExpr{}},
		LetExpr{Name: "b", Value: EmptyExpr{}},
		block(
			LetExpr{Name: "x", Value: IntExpr{1}},
			AssignExpr{Name: "a", Value: lambda(nil, ReturnExpr{Value: VariableExpr{"x"}})},
		),
		block(
			LetExpr{Name: "x", Value: IntExpr{2}},
			AssignExpr{Name: "b", Value: lambda(nil, ReturnExpr{Value: VariableExpr{"x"}})},
		),
		ReturnExpr{Value: bin("+",
			bin("*", call(VariableExpr{"a"}), IntExpr{10}),
			call(VariableExpr{"b"}),
		)},
	)
	got = callLambda(t, ctx, independent)
	if got.Kind() != KindInt || got.Int() != 12 {
		t.Fatalf("expected independent closed upvalues (12), got %s", got.Inspect())
	}
}
