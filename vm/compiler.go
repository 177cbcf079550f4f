package vm

import "fmt"

// CompileError reports a compile-time failure: an unknown variable, or a
// break/continue/return whose path is invalid per §4.4/§7 (outside a loop,
// or crossing a scope with a pending defer). Kind names the category, Name
// the offending identifier or keyword detail, matching §7's compile-error
// list of what a host needs to report back to the caller.
type CompileError struct {
	Kind string
	Name string
}

func (e *CompileError) Error() string {
	if e.Kind == "undefined variable" {
		return fmt.Sprintf("Variable '%s' not found", e.Name)
	}
	return fmt.Sprintf("rill: compiler: %s %s", e.Kind, e.Name)
}

// funcEnv holds the compilation state for one FunctionProto: its
// in-progress code and constant pool, the stack of lexical block scopes
// currently open within it, the loops currently enclosing the point being
// compiled (for break/continue), and a link to the enclosing function's
// funcEnv for upvalue resolution, per §4.4.
type funcEnv struct {
	ctx    *Context
	parent *funcEnv
	proto  *FunctionProto

	scopes []*blockScope
	loops  []*loopEnv

	upvalueIndex map[string]uint32
}

// blockScope tracks one lexical block's locals in two maps, per §4.4:
// definitions holds names whose let has actually compiled (and so has a
// value in place at this point), while declarations holds names the
// block's declaration pre-pass has reserved a slot for but whose let
// hasn't run yet — a name can appear in declarations more than once if
// it's re-let-bound later in the same block, hence the per-name queue.
type blockScope struct {
	definitions  map[string]uint32
	declarations map[string][]uint32
	captured     map[uint32]bool // slots captured as upvalues by a nested function
	defers       []Expression
}

type loopEnv struct {
	scopeDepth    int // len(fe.scopes) at the point the loop's body scope was pushed
	continueTo    int
	breakPatches  []int
}

func newFuncEnv(ctx *Context, parent *funcEnv, name string, nparams int) *funcEnv {
	return &funcEnv{
		ctx:    ctx,
		parent: parent,
		proto: &FunctionProto{
			Name:  name,
			Nargs: nparams,
		},
		upvalueIndex: make(map[string]uint32),
	}
}

func (fe *funcEnv) emit(op Opcode, a, b uint32) int {
	fe.proto.Code = append(fe.proto.Code, Instruction{Op: op, A: a, B: b})
	return len(fe.proto.Code) - 1
}

func (fe *funcEnv) here() int { return len(fe.proto.Code) }

func (fe *funcEnv) patch(idx int, target int) {
	fe.proto.Code[idx].A = uint32(target)
}

func (fe *funcEnv) addConst(v Value) uint32 {
	fe.proto.Constants = append(fe.proto.Constants, v)
	return uint32(len(fe.proto.Constants) - 1)
}

func (fe *funcEnv) constString(s string) uint32 {
	return fe.addConst(fe.ctx.NewString(s))
}

func (fe *funcEnv) pushScope() *blockScope {
	s := &blockScope{definitions: make(map[string]uint32), declarations: make(map[string][]uint32)}
	fe.scopes = append(fe.scopes, s)
	return s
}

func (fe *funcEnv) popScope() {
	fe.scopes = fe.scopes[:len(fe.scopes)-1]
}

func (fe *funcEnv) scope() *blockScope {
	return fe.scopes[len(fe.scopes)-1]
}

func (fe *funcEnv) declareLocal(name string) uint32 {
	slot := uint32(fe.proto.NLocals)
	fe.proto.NLocals++
	fe.scope().definitions[name] = slot
	return slot
}

// reserveDeclaration pre-reserves a local slot for name ahead of compiling
// its let's value, per §4.4's declaration pre-pass. It only records the
// reservation; the slot's storage is already Nil by construction (a fresh
// dataFrame's locals array is zero-valued), so unlike original_source's
// stack-as-locals model there is no separate initializer to emit here.
func (fe *funcEnv) reserveDeclaration(name string) uint32 {
	slot := uint32(fe.proto.NLocals)
	fe.proto.NLocals++
	scope := fe.scope()
	scope.declarations[name] = append(scope.declarations[name], slot)
	return slot
}

// consumeDeclaration pops the front pre-reserved slot for name off the
// current (innermost) scope's declarations queue, promoting it to
// definitions. Declarations are only ever reserved and consumed within the
// same block, so this never searches enclosing scopes.
func (fe *funcEnv) consumeDeclaration(name string) (uint32, bool) {
	scope := fe.scope()
	list := scope.declarations[name]
	if len(list) == 0 {
		return 0, false
	}
	slot := list[0]
	scope.declarations[name] = list[1:]
	scope.definitions[name] = slot
	return slot, true
}

// resolveLocal searches this function's own open scopes, innermost first,
// against both definitions and declarations (§4.4) — the latter is what
// lets a nested lambda capture a sibling `let` that hasn't executed yet.
func (fe *funcEnv) resolveLocal(name string) (uint32, bool) {
	for i := len(fe.scopes) - 1; i >= 0; i-- {
		if slot, ok := fe.scopes[i].definitions[name]; ok {
			return slot, true
		}
		if list, ok := fe.scopes[i].declarations[name]; ok && len(list) > 0 {
			return list[0], true
		}
	}
	return 0, false
}

func (fe *funcEnv) markCaptured(slot uint32) {
	for i := len(fe.scopes) - 1; i >= 0; i-- {
		if scopeOwnsSlot(fe.scopes[i], slot) {
			if fe.scopes[i].captured == nil {
				fe.scopes[i].captured = make(map[uint32]bool)
			}
			fe.scopes[i].captured[slot] = true
			return
		}
	}
}

func scopeOwnsSlot(s *blockScope, slot uint32) bool {
	for _, v := range s.definitions {
		if v == slot {
			return true
		}
	}
	for _, list := range s.declarations {
		for _, v := range list {
			if v == slot {
				return true
			}
		}
	}
	return false
}

// declareBlock is the declaration pre-pass of §4.4: before any statement in
// seq is compiled, every `let` reachable without crossing into a nested
// block, if, while, lambda, method, or try gets its local slot reserved
// now, so a lambda compiled later in the same sequence that references a
// still-later `let` resolves it as a forward reference instead of failing.
func declareBlock(fe *funcEnv, seq ExpressionSeq) {
	for _, e := range seq {
		declareExpr(fe, e)
	}
}

func declareExpr(fe *funcEnv, expr Expression) {
	switch e := expr.(type) {
	case LetExpr:
		declareExpr(fe, e.Value)
		fe.reserveDeclaration(e.Name)
	case AssignExpr:
		declareExpr(fe, e.Value)
	case GetPropExpr:
		declareExpr(fe, e.Receiver)
	case SetPropExpr:
		declareExpr(fe, e.Receiver)
		declareExpr(fe, e.Value)
	case CallExpr:
		declareExpr(fe, e.Callee)
		for _, a := range e.Args {
			declareExpr(fe, a)
		}
	case SendExpr:
		declareExpr(fe, e.Receiver)
	case UnaryExpr:
		declareExpr(fe, e.Operand)
	case BinaryExpr:
		declareExpr(fe, e.Left)
		declareExpr(fe, e.Right)
	case ReturnExpr:
		if e.Value != nil {
			declareExpr(fe, e.Value)
		}
	case ThrowExpr:
		declareExpr(fe, e.Value)
	default:
		// BlockExpr, IfExpr, WhileExpr, LambdaExpr, MethodExpr, TryExpr,
		// DeferExpr, AndExpr, OrExpr, GetIndexExpr, SetIndexExpr, and the
		// terminal node kinds each get their own declare pass (or none)
		// when they're actually compiled; the pre-pass doesn't cross into
		// them.
	}
}

// varRef describes where a resolved variable lives, from the compiling
// function's own point of view.
type varRef struct {
	upvalue bool
	index   uint32
}

// resolveVar implements the four-step lookup of §4.4: local in this
// function, else recurse into the enclosing function and, on success,
// thread a new upvalue through this function pointing at whatever the
// enclosing function found (its own local, or one of its own upvalues).
func resolveVar(fe *funcEnv, name string) (varRef, bool) {
	if slot, ok := fe.resolveLocal(name); ok {
		return varRef{upvalue: false, index: slot}, true
	}
	if idx, ok := fe.upvalueIndex[name]; ok {
		return varRef{upvalue: true, index: idx}, true
	}
	if fe.parent == nil {
		return varRef{}, false
	}
	outer, ok := resolveVar(fe.parent, name)
	if !ok {
		return varRef{}, false
	}
	if !outer.upvalue {
		fe.parent.markCaptured(outer.index)
	}
	idx := uint32(len(fe.proto.UpvalueDescs))
	fe.proto.UpvalueDescs = append(fe.proto.UpvalueDescs, UpvalueDesc{FromLocal: !outer.upvalue, Index: outer.index})
	fe.upvalueIndex[name] = idx
	return varRef{upvalue: true, index: idx}, true
}

// ---------------------------------------------------------------------------
// Top-level entry points
// ---------------------------------------------------------------------------

// CompileProgram compiles a top-level expression sequence into a
// FunctionProto whose parameters are globals, in order: the caller invokes
// the resulting function once with the corresponding values (typically
// drawn from Context.Builtins) bound as arguments, since the bytecode has
// no separate global-variable opcode of its own — the top-level function's
// own locals stand in for globals, exactly as any other function's
// parameters would.
func CompileProgram(ctx *Context, program ExpressionSeq, globals []string) (*FunctionProto, error) {
	fe := newFuncEnv(ctx, nil, "main", len(globals))
	fe.proto.NLocals = len(globals)
	fe.pushScope()
	for i, name := range globals {
		fe.scope().definitions[name] = uint32(i)
	}
	if err := compileBody(fe, program); err != nil {
		return nil, err
	}
	fe.emit(OpReturn, 0, 0)
	closeScopeUpvalues(fe, fe.scope())
	fe.popScope()
	return fe.proto, nil
}

// CompileLambda compiles a standalone function body (no globals reserved),
// for use by tests and host code building a Function value directly.
func CompileLambda(ctx *Context, lambda LambdaExpr) (*FunctionProto, error) {
	fe := newFuncEnv(ctx, nil, "lambda", len(lambda.Params))
	return compileFunctionBody(fe, lambda.Params, lambda.Body)
}

func compileFunctionBody(fe *funcEnv, params []string, body ExpressionSeq) (*FunctionProto, error) {
	fe.proto.NLocals = len(params)
	fe.pushScope()
	for i, p := range params {
		fe.scope().definitions[p] = uint32(i)
	}
	if err := compileBody(fe, body); err != nil {
		return nil, err
	}
	fe.emit(OpReturn, 0, 0)
	closeScopeUpvalues(fe, fe.scope())
	fe.popScope()
	return fe.proto, nil
}

// compileBody compiles a sequence as a function's outermost block: unlike
// compileBlockExpr, it does not open a further nested scope (the
// parameter scope pushed by the caller serves as the function's top
// level), unless the body has a DeferExpr directly in it, in which case
// it is compiled as a nested BlockExpr so the deferred bodies run on both
// the normal and the exceptional exit.
func compileBody(fe *funcEnv, body ExpressionSeq) error {
	if blockHasDirectDefer(body) {
		return compileBlockExpr(fe, BlockExpr{Body: body})
	}
	declareBlock(fe, body)
	return compileStatements(fe, body)
}

// ---------------------------------------------------------------------------
// Expression compilation
// ---------------------------------------------------------------------------

func compileExpr(fe *funcEnv, expr Expression) error {
	switch e := expr.(type) {
	case StringExpr:
		fe.emit(OpGetConst, fe.constString(e.Value), 0)
	case IntExpr:
		fe.emit(OpGetConst, fe.addConst(FromInt(e.Value)), 0)
	case EmptyExpr:
		fe.emit(OpNil, 0, 0)
	case VariableExpr:
		return compileVariable(fe, e.Name)
	case LetExpr:
		if err := compileExpr(fe, e.Value); err != nil {
			return err
		}
		slot, ok := fe.consumeDeclaration(e.Name)
		if !ok {
			// Reached without a matching declare-pass reservation (e.g. a
			// let nested inside a value the pre-pass doesn't cross into,
			// such as an if condition or an and/or operand); declare it
			// in place.
			slot = fe.declareLocal(e.Name)
		}
		fe.emit(OpSetVar, slot, 0)
	case AssignExpr:
		if err := compileExpr(fe, e.Value); err != nil {
			return err
		}
		return compileAssign(fe, e.Name)
	case GetPropExpr:
		if err := compileExpr(fe, e.Receiver); err != nil {
			return err
		}
		fe.emit(OpGetProp, fe.constString(e.Name), 0)
	case SetPropExpr:
		if err := compileExpr(fe, e.Receiver); err != nil {
			return err
		}
		if err := compileExpr(fe, e.Value); err != nil {
			return err
		}
		fe.emit(OpSetProp, fe.constString(e.Name), 0)
	case GetIndexExpr:
		return compileExpr(fe, CallExpr{
			Callee: SendExpr{Receiver: e.Receiver, Selector: "[]"},
			Args:   e.Keys,
		})
	case SetIndexExpr:
		return compileExpr(fe, CallExpr{
			Callee: SendExpr{Receiver: e.Receiver, Selector: "[]="},
			Args:   append(append([]Expression{}, e.Keys...), e.Value),
		})
	case CallExpr:
		if err := compileExpr(fe, e.Callee); err != nil {
			return err
		}
		for _, a := range e.Args {
			if err := compileExpr(fe, a); err != nil {
				return err
			}
		}
		fe.emit(OpCall, uint32(len(e.Args)), 0)
	case SendExpr:
		if err := compileExpr(fe, e.Receiver); err != nil {
			return err
		}
		fe.emit(OpSend, fe.constString(e.Selector), 0)
	case UnaryExpr:
		return compileExpr(fe, SendExpr{Receiver: e.Operand, Selector: e.Op})
	case BinaryExpr:
		return compileExpr(fe, CallExpr{
			Callee: SendExpr{Receiver: e.Left, Selector: e.Op},
			Args:   []Expression{e.Right},
		})
	case AndExpr:
		return compileAnd(fe, e)
	case OrExpr:
		return compileOr(fe, e)
	case BlockExpr:
		return compileBlockExpr(fe, e)
	case IfExpr:
		return compileIf(fe, e)
	case WhileExpr:
		return compileWhile(fe, e)
	case TryExpr:
		return compileTry(fe, e)
	case DeferExpr:
		fe.scope().defers = append(fe.scope().defers, e.Body)
		fe.emit(OpNil, 0, 0)
	case LambdaExpr:
		return compileClosure(fe, e.Params, e.Body, "lambda")
	case MethodExpr:
		// method(args…) body curries to fn(self) { fn(args…) body }; method
		// body (no argument list) desugars directly to fn(self) body, per
		// §4.4 — Params==nil distinguishes the two, not an empty slice.
		outerBody := e.Body
		if e.Params != nil {
			outerBody = ExpressionSeq{LambdaExpr{Params: e.Params, Body: e.Body}}
		}
		return compileClosure(fe, []string{"self"}, outerBody, e.Name)
	case BreakExpr:
		return compileBreak(fe)
	case ContinueExpr:
		return compileContinue(fe)
	case ReturnExpr:
		return compileReturn(fe, e)
	case ThrowExpr:
		if err := compileExpr(fe, e.Value); err != nil {
			return err
		}
		fe.emit(OpThrow, 0, 0)
	default:
		return fmt.Errorf("rill: compiler: unhandled expression %T", expr)
	}
	return nil
}

func compileVariable(fe *funcEnv, name string) error {
	ref, ok := resolveVar(fe, name)
	if !ok {
		return &CompileError{Kind: "undefined variable", Name: name}
	}
	if ref.upvalue {
		fe.emit(OpGetUp, ref.index, 0)
	} else {
		fe.emit(OpGetVar, ref.index, 0)
	}
	return nil
}

func compileAssign(fe *funcEnv, name string) error {
	ref, ok := resolveVar(fe, name)
	if !ok {
		return &CompileError{Kind: "undefined variable", Name: name}
	}
	if ref.upvalue {
		fe.emit(OpSetUp, ref.index, 0)
	} else {
		fe.emit(OpSetVar, ref.index, 0)
	}
	return nil
}

// compileStatements compiles a sequence, leaving exactly the last
// expression's value on the stack (Nil if the sequence is empty), popping
// every intermediate result.
func compileStatements(fe *funcEnv, seq ExpressionSeq) error {
	if len(seq) == 0 {
		fe.emit(OpNil, 0, 0)
		return nil
	}
	for i, e := range seq {
		if err := compileExpr(fe, e); err != nil {
			return err
		}
		if i != len(seq)-1 {
			fe.emit(OpPop, 0, 0)
		}
	}
	return nil
}

// compileBlockExpr compiles a BlockExpr, its own lexical scope, per §4.4:
// a scope with any DeferExpr directly inside it wraps its body in an
// implicit catch that runs the deferred bodies (in reverse declaration
// order) and re-throws before propagating further, in addition to running
// them on every normal exit path.
func compileBlockExpr(fe *funcEnv, block BlockExpr) error {
	scope := fe.pushScope()
	hasDefer := blockHasDirectDefer(block.Body)

	var catchIdx int
	if hasDefer {
		catchIdx = fe.emit(OpCatch, 0, 0)
	}

	declareBlock(fe, block.Body)
	if err := compileStatements(fe, block.Body); err != nil {
		return err
	}
	runDefersInline(fe, scope)
	closeScopeUpvalues(fe, scope)

	if hasDefer {
		fe.emit(OpUncatch, 0, 0)
		endJump := fe.emit(OpJump, 0, 0)
		fe.patch(catchIdx, fe.here())
		runDefersInline(fe, scope)
		closeScopeUpvalues(fe, scope)
		fe.emit(OpThrow, 0, 0)
		fe.patch(endJump, fe.here())
	}

	fe.popScope()
	return nil
}

func blockHasDirectDefer(seq ExpressionSeq) bool {
	for _, e := range seq {
		if _, ok := e.(DeferExpr); ok {
			return true
		}
	}
	return false
}

func runDefersInline(fe *funcEnv, scope *blockScope) {
	for i := len(scope.defers) - 1; i >= 0; i-- {
		compileExpr(fe, scope.defers[i])
		fe.emit(OpPop, 0, 0)
	}
}

func closeScopeUpvalues(fe *funcEnv, scope *blockScope) {
	for slot := range scope.captured {
		fe.emit(OpResetUp, slot, 0)
	}
}

// compileIf compiles an if/elif*/else chain: each branch's condition is
// tried in order, guarded by a JumpUnless to the next branch's test, and a
// successful branch's body ends with a Jump straight to the chain's end so
// it never falls through into a later branch.
func compileIf(fe *funcEnv, e IfExpr) error {
	var endJumps []int
	for _, branch := range e.Branches {
		if err := compileExpr(fe, branch.Cond); err != nil {
			return err
		}
		nextJump := fe.emit(OpJumpUnless, 0, 0)
		if err := compileExpr(fe, branch.Body); err != nil {
			return err
		}
		endJumps = append(endJumps, fe.emit(OpJump, 0, 0))
		fe.patch(nextJump, fe.here())
	}
	otherwise := e.Otherwise
	if otherwise == nil {
		otherwise = EmptyExpr{}
	}
	if err := compileExpr(fe, otherwise); err != nil {
		return err
	}
	end := fe.here()
	for _, idx := range endJumps {
		fe.patch(idx, end)
	}
	return nil
}

func compileAnd(fe *funcEnv, e AndExpr) error {
	if err := compileExpr(fe, e.Left); err != nil {
		return err
	}
	fe.emit(OpDup, 0, 0)
	endJump := fe.emit(OpJumpUnless, 0, 0)
	fe.emit(OpPop, 0, 0)
	if err := compileExpr(fe, e.Right); err != nil {
		return err
	}
	fe.patch(endJump, fe.here())
	return nil
}

func compileOr(fe *funcEnv, e OrExpr) error {
	if err := compileExpr(fe, e.Left); err != nil {
		return err
	}
	fe.emit(OpDup, 0, 0)
	endJump := fe.emit(OpJumpIf, 0, 0)
	fe.emit(OpPop, 0, 0)
	if err := compileExpr(fe, e.Right); err != nil {
		return err
	}
	fe.patch(endJump, fe.here())
	return nil
}

func compileWhile(fe *funcEnv, e WhileExpr) error {
	loopStart := fe.here()
	if err := compileExpr(fe, e.Cond); err != nil {
		return err
	}
	exitJump := fe.emit(OpJumpUnless, 0, 0)

	loopScopeDepth := len(fe.scopes)
	scope := fe.pushScope()
	fe.loops = append(fe.loops, &loopEnv{scopeDepth: loopScopeDepth, continueTo: loopStart})
	if err := compileExpr(fe, e.Body); err != nil {
		return err
	}
	fe.emit(OpPop, 0, 0)
	closeScopeUpvalues(fe, scope)
	fe.popScope()

	fe.emit(OpJump, uint32(loopStart), 0)
	loopEndPC := fe.here()
	fe.emit(OpNil, 0, 0)
	fe.patch(exitJump, loopEndPC)

	loop := fe.loops[len(fe.loops)-1]
	fe.loops = fe.loops[:len(fe.loops)-1]
	for _, idx := range loop.breakPatches {
		fe.patch(idx, loopEndPC)
	}
	return nil
}

func compileBreak(fe *funcEnv) error {
	if len(fe.loops) == 0 {
		return &CompileError{Kind: "break", Name: "outside a loop"}
	}
	loop := fe.loops[len(fe.loops)-1]
	if err := drainScopesTo(fe, loop.scopeDepth, "break"); err != nil {
		return err
	}
	idx := fe.emit(OpJump, 0, 0)
	loop.breakPatches = append(loop.breakPatches, idx)
	return nil
}

func compileContinue(fe *funcEnv) error {
	if len(fe.loops) == 0 {
		return &CompileError{Kind: "continue", Name: "outside a loop"}
	}
	loop := fe.loops[len(fe.loops)-1]
	if err := drainScopesTo(fe, loop.scopeDepth, "continue"); err != nil {
		return err
	}
	fe.emit(OpJump, uint32(loop.continueTo), 0)
	return nil
}

func compileReturn(fe *funcEnv, e ReturnExpr) error {
	if err := drainScopesTo(fe, 0, "return"); err != nil {
		return err
	}
	value := e.Value
	if value == nil {
		value = EmptyExpr{}
	}
	if err := compileExpr(fe, value); err != nil {
		return err
	}
	fe.emit(OpReturn, 0, 0)
	return nil
}

// drainScopesTo emits the upvalue-closing bytecode for every scope from the
// innermost down to and including index stop, for a non-local exit
// (break, continue, or return) that skips those scopes' normal exit
// points. Per §4.4/§7, a defer registered directly in any scope on that
// path makes the exit a compile error rather than something the compiler
// silently runs early: a break/continue/return that could skip a defer's
// scheduled cleanup is rejected outright, not patched around.
func drainScopesTo(fe *funcEnv, stop int, keyword string) error {
	for i := len(fe.scopes) - 1; i >= stop; i-- {
		if len(fe.scopes[i].defers) > 0 {
			return &CompileError{Kind: keyword, Name: "crosses a defer"}
		}
	}
	for i := len(fe.scopes) - 1; i >= stop; i-- {
		closeScopeUpvalues(fe, fe.scopes[i])
	}
	return nil
}

func compileTry(fe *funcEnv, e TryExpr) error {
	catchIdx := fe.emit(OpCatch, 0, 0)
	if err := compileExpr(fe, e.Body); err != nil {
		return err
	}
	fe.emit(OpUncatch, 0, 0)
	endJump := fe.emit(OpJump, 0, 0)

	fe.patch(catchIdx, fe.here())
	scope := fe.pushScope()
	slot := fe.declareLocal(e.Name)
	fe.emit(OpSetVar, slot, 0)
	fe.emit(OpPop, 0, 0)
	if err := compileExpr(fe, e.Handler); err != nil {
		return err
	}
	closeScopeUpvalues(fe, scope)
	fe.popScope()

	fe.patch(endJump, fe.here())
	return nil
}

// compileClosure compiles a nested function (lambda or method body) in its
// own funcEnv, then emits the enclosing function's MakeUp/CopyUp sequence
// that builds a closure over it at the point this expression is reached,
// per §4.4.
func compileClosure(fe *funcEnv, params []string, body ExpressionSeq, name string) error {
	child := newFuncEnv(fe.ctx, fe, name, len(params))
	if _, err := compileFunctionBody(child, params, body); err != nil {
		return err
	}

	protoPtrRoot := Alloc(fe.ctx.Collector, *child.proto)
	fnRoot := Alloc(fe.ctx.Collector, Function{Proto: protoPtrRoot.Value})
	protoPtrRoot.Drop()
	constIdx := fe.addConst(FromFunctionPtr(fnRoot.Value))
	fnRoot.Drop()

	fe.emit(OpMakeUp, constIdx, uint32(len(child.proto.UpvalueDescs)))
	for _, desc := range child.proto.UpvalueDescs {
		if desc.FromLocal {
			fe.emit(OpCopyUp, 0, desc.Index)
		} else {
			fe.emit(OpCopyUp, 1, desc.Index)
		}
	}
	return nil
}
