package vm

import (
	"sort"
	"testing"
)

// runProgram compiles body as a top-level program (every Context.Builtins
// name pre-bound as a global, per §4.4) and runs it to completion on a
// fresh Interpreter.
func runProgram(t *testing.T, ctx *Context, body ExpressionSeq) Value {
	t.Helper()
	names := make([]string, 0, len(ctx.Builtins))
	for n := range ctx.Builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	args := make([]Value, len(names))
	for i, n := range names {
		args[i] = ctx.Builtins[n]
	}

	proto, err := CompileProgram(ctx, body, names)
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

func lambda(params []string, body ...Expression) LambdaExpr {
	return LambdaExpr{Params: params, Body: ExpressionSeq(body)}
}

func block(body ...Expression) BlockExpr {
	return BlockExpr{Body: ExpressionSeq(body)}
}

func call(callee Expression, args ...Expression) CallExpr {
	return CallExpr{Callee: callee, Args: args}
}

func bin(op string, l, r Expression) BinaryExpr {
	return BinaryExpr{Op: op, Left: l, Right: r}
}

func ifThenElse(cond, then, els Expression) IfExpr {
	return IfExpr{Branches: []IfBranch{{Cond: cond, Body: then}}, Otherwise: els}
}

// Scenario 1: mutually recursive functions, combined result 62.
func TestCompilerMutualRecursion(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		LetExpr{Name: "ping", Value: EmptyExpr{}},
		LetExpr{Name: "pong", Value: EmptyExpr{}},
		AssignExpr{Name: "ping", Value: lambda([]string{"n"},
			ifThenElse(bin("==", VariableExpr{"n"}, IntExpr{0}), IntExpr{31},
				call(VariableExpr{"pong"}, bin("-", VariableExpr{"n"}, IntExpr{1})),
			),
		)},
		AssignExpr{Name: "pong", Value: lambda([]string{"n"},
			ifThenElse(bin("==", VariableExpr{"n"}, IntExpr{0}), IntExpr{31},
				call(VariableExpr{"ping"}, bin("-", VariableExpr{"n"}, IntExpr{1})),
			),
		)},
		ReturnExpr{Value: bin("+",
			call(VariableExpr{"ping"}, IntExpr{3}),
			call(VariableExpr{"pong"}, IntExpr{2}),
		)},
	}
	got := runProgram(t, ctx, body)
	if got.Kind() != KindInt || got.Int() != 62 {
		t.Fatalf("expected 62, got %s", got.Inspect())
	}
}

// Scenario 1b: ordinary sequential let bindings, each lambda body
// referencing the other by name before its own let has run, combined
// result 62 — exercises the declaration pre-pass directly, with no
// AssignExpr workaround.
func TestCompilerMutualRecursionForwardReference(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		LetExpr{Name: "ping", Value: lambda([]string{"n"},
			ifThenElse(bin("==", VariableExpr{"n"}, IntExpr{0}), IntExpr{31},
				call(VariableExpr{"pong"}, bin("-", VariableExpr{"n"}, IntExpr{1})),
			),
		)},
		LetExpr{Name: "pong", Value: lambda([]string{"n"},
			ifThenElse(bin("==", VariableExpr{"n"}, IntExpr{0}), IntExpr{31},
				call(VariableExpr{"ping"}, bin("-", VariableExpr{"n"}, IntExpr{1})),
			),
		)},
		ReturnExpr{Value: bin("+",
			call(VariableExpr{"ping"}, IntExpr{3}),
			call(VariableExpr{"pong"}, IntExpr{2}),
		)},
	}
	got := runProgram(t, ctx, body)
	if got.Kind() != KindInt || got.Int() != 62 {
		t.Fatalf("expected 62, got %s", got.Inspect())
	}
}

// Scenario 2: try/catch with a throw inside, handler increments, yields 3.
func TestCompilerTryCatchThrow(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		LetExpr{Name: "n", Value: IntExpr{0}},
		TryExpr{
			Body: block(
				AssignExpr{Name: "n", Value: IntExpr{1}},
				ThrowExpr{Value: IntExpr{99}},
				AssignExpr{Name: "n", Value: IntExpr{1000}},
			),
			Name: "e",
			Handler: AssignExpr{Name: "n", Value: bin("+", VariableExpr{"n"}, IntExpr{2})},
		},
		ReturnExpr{Value: VariableExpr{"n"}},
	}
	got := runProgram(t, ctx, body)
	if got.Kind() != KindInt || got.Int() != 3 {
		t.Fatalf("expected 3, got %s", got.Inspect())
	}
}

// Scenario 3: nested blocks with shadowing, yields 42.
func TestCompilerNestedBlockShadowing(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		LetExpr{Name: "x", Value: IntExpr{10}},
		block(
			LetExpr{Name: "x", Value: IntExpr{20}},
			AssignExpr{Name: "x", Value: bin("+", VariableExpr{"x"}, IntExpr{1})},
		),
		AssignExpr{Name: "x", Value: bin("+", VariableExpr{"x"}, IntExpr{32})},
		ReturnExpr{Value: VariableExpr{"x"}},
	}
	got := runProgram(t, ctx, body)
	if got.Kind() != KindInt || got.Int() != 42 {
		t.Fatalf("expected 42, got %s", got.Inspect())
	}
}

// Scenario 4: iterative Fibonacci via a while loop.
func TestCompilerIterativeFibonacci(t *testing.T) {
	ctx := NewContext(nil)
	fibBody := ExpressionSeq{
		LetExpr{Name: "a", Value: IntExpr{0}},
		LetExpr{Name: "b", Value: IntExpr{1}},
		LetExpr{Name: "i", Value: IntExpr{0}},
		WhileExpr{
			Cond: bin("<", VariableExpr{"i"}, VariableExpr{"n"}),
			Body: block(
				LetExpr{Name: "t", Value: bin("+", VariableExpr{"a"}, VariableExpr{"b"})},
				AssignExpr{Name: "a", Value: VariableExpr{"b"}},
				AssignExpr{Name: "b", Value: VariableExpr{"t"}},
				AssignExpr{Name: "i", Value: bin("+", VariableExpr{"i"}, IntExpr{1})},
			),
		},
		ReturnExpr{Value: VariableExpr{"a"}},
	}

	proto, err := CompileLambda(ctx, lambda([]string{"n"}, fibBody...))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	protoRoot := Alloc(ctx.Collector, *proto)
	defer protoRoot.Drop()
	fnRoot := Alloc(ctx.Collector, Function{Proto: protoRoot.Value})
	defer fnRoot.Drop()

	vm := NewInterpreter(ctx)
	cases := []struct{ n, want int64 }{
		{0, 0}, {1, 1}, {4, 3}, {7, 13}, {10, 55}, {15, 610},
	}
	for _, c := range cases {
		got, err := vm.Call(FromFunctionPtr(fnRoot.Value), []Value{FromInt(c.n)})
		if err != nil {
			t.Fatalf("fib(%d): %v", c.n, err)
		}
		if got.Kind() != KindInt || got.Int() != c.want {
			t.Fatalf("fib(%d): expected %d, got %s", c.n, c.want, got.Inspect())
		}
	}
}

// Scenario 5: break/continue interleaved, yields 33.
func TestCompilerBreakContinue(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		LetExpr{Name: "sum", Value: IntExpr{0}},
		LetExpr{Name: "i", Value: IntExpr{0}},
		WhileExpr{
			Cond: bin("<", VariableExpr{"i"}, IntExpr{10}),
			Body: block(
				AssignExpr{Name: "i", Value: bin("+", VariableExpr{"i"}, IntExpr{1})},
				ifThenElse(bin("==", VariableExpr{"i"}, IntExpr{3}), ContinueExpr{}, EmptyExpr{}),
				ifThenElse(bin("==", VariableExpr{"i"}, IntExpr{9}), BreakExpr{}, EmptyExpr{}),
				AssignExpr{Name: "sum", Value: bin("+", VariableExpr{"sum"}, VariableExpr{"i"})},
			),
		},
		ReturnExpr{Value: VariableExpr{"sum"}},
	}
	got := runProgram(t, ctx, body)
	if got.Kind() != KindInt || got.Int() != 33 {
		t.Fatalf("expected 33, got %s", got.Inspect())
	}
}

// Scenario 6: a closure counter called three times returns 3.
func TestCompilerClosureCounter(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		LetExpr{Name: "makeCounter", Value: lambda(nil,
			LetExpr{Name: "n", Value: IntExpr{0}},
			LetExpr{Name: "inc", Value: lambda(nil,
				AssignExpr{Name: "n", Value: bin("+", VariableExpr{"n"}, IntExpr{1})},
				ReturnExpr{Value: VariableExpr{"n"}},
			)},
			ReturnExpr{Value: VariableExpr{"inc"}},
		)},
		LetExpr{Name: "counter", Value: call(VariableExpr{"makeCounter"})},
		call(VariableExpr{"counter"}),
		call(VariableExpr{"counter"}),
		ReturnExpr{Value: call(VariableExpr{"counter"})},
	}
	got := runProgram(t, ctx, body)
	if got.Kind() != KindInt || got.Int() != 3 {
		t.Fatalf("expected 3, got %s", got.Inspect())
	}
}

// Scenario 7: a defer runs on normal scope exit, leaving n = 111.
func TestCompilerDeferNormalExit(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		LetExpr{Name: "n", Value: IntExpr{0}},
		block(
			DeferExpr{Body: AssignExpr{Name: "n", Value: IntExpr{111}}},
			AssignExpr{Name: "n", Value: IntExpr{5}},
		),
		ReturnExpr{Value: VariableExpr{"n"}},
	}
	got := runProgram(t, ctx, body)
	if got.Kind() != KindInt || got.Int() != 111 {
		t.Fatalf("expected 111, got %s", got.Inspect())
	}
}

// Scenario 8: a defer still runs when its scope exits via a thrown
// exception, leaving n = 111.
func TestCompilerDeferWithThrow(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		LetExpr{Name: "n", Value: IntExpr{0}},
		TryExpr{
			Body: block(
				DeferExpr{Body: AssignExpr{Name: "n", Value: IntExpr{111}}},
				ThrowExpr{Value: IntExpr{1}},
			),
			Name:    "e",
			Handler: EmptyExpr{},
		},
		ReturnExpr{Value: VariableExpr{"n"}},
	}
	got := runProgram(t, ctx, body)
	if got.Kind() != KindInt || got.Int() != 111 {
		t.Fatalf("expected 111, got %s", got.Inspect())
	}
}

// A break that would skip a pending defer is a compile error, not a
// silent early run of the deferred body.
func TestCompilerBreakAcrossDeferIsCompileError(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		WhileExpr{
			Cond: VariableExpr{"true"},
			Body: block(
				DeferExpr{Body: EmptyExpr{}},
				BreakExpr{},
			),
		},
	}
	_, err := CompileProgram(ctx, body, []string{"true", "false", "nil"})
	if err == nil {
		t.Fatalf("expected a compile error, got none")
	}
	if _, ok := err.(*CompileError); !ok {
		t.Fatalf("expected *CompileError, got %T: %v", err, err)
	}
}

// return crossing a defer is likewise a compile error.
func TestCompilerReturnAcrossDeferIsCompileError(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		block(
			DeferExpr{Body: EmptyExpr{}},
			ReturnExpr{Value: IntExpr{1}},
		),
	}
	_, err := CompileProgram(ctx, body, nil)
	if err == nil {
		t.Fatalf("expected a compile error, got none")
	}
	if _, ok := err.(*CompileError); !ok {
		t.Fatalf("expected *CompileError, got %T: %v", err, err)
	}
}

// Referencing an undefined variable is a compile error naming the
// offending variable.
func TestCompilerUndefinedVariableIsCompileError(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{VariableExpr{"nowhere"}}
	_, err := CompileProgram(ctx, body, nil)
	ce, ok := err.(*CompileError)
	if !ok {
		t.Fatalf("expected *CompileError, got %T: %v", err, err)
	}
	if ce.Name != "nowhere" {
		t.Fatalf("expected offending name %q, got %q", "nowhere", ce.Name)
	}
}

// Scenario 9: short-circuit evaluation never reaches either throw.
func TestCompilerShortCircuit(t *testing.T) {
	ctx := NewContext(nil)
	body := ExpressionSeq{
		OrExpr{Left: VariableExpr{"true"}, Right: ThrowExpr{Value: IntExpr{1}}},
		AndExpr{Left: VariableExpr{"false"}, Right: ThrowExpr{Value: IntExpr{2}}},
		OrExpr{
			Left:  VariableExpr{"false"},
			Right: AndExpr{Left: VariableExpr{"true"}, Right: VariableExpr{"true"}},
		},
	}
	got := runProgram(t, ctx, body)
	if got.Kind() != KindBool || got.Bool() != true {
		t.Fatalf("expected true, got %s", got.Inspect())
	}
}
