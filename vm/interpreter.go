package vm

import "fmt"

// ---------------------------------------------------------------------------
// dataFrame: one call's locals, operand stack, and program counter
// ---------------------------------------------------------------------------

// dataFrame fuses what original_source/vm.h splits into a DataFrame
// (operand stack) and a CallFrame (control bookkeeping): in this
// translation each call gets its own frame object rather than slicing a
// single shared array, which keeps closing upvalues and reporting stack
// traces straightforward at the cost of an extra allocation per call.
type dataFrame struct {
	proto   *FunctionProto
	fn      Ptr[Function] // NilPtr for a synthetic top-level frame
	locals  []Value
	stack   []Value
	pc      int
	// openUps holds a Root for every upvalue currently open over one of
	// this frame's locals, keeping it alive independent of whatever
	// closures have captured it so far (a closure's own Upvalues slice
	// only becomes an independent GC root once the closure itself is
	// reachable from somewhere). Closed and dropped on OpResetUp, or by
	// run()'s deferred cleanup once the frame returns.
	openUps map[uint32]Root[Ptr[Upvalue]]

	// selfRoot registers the frame itself as a GC root for as long as it
	// is on the call stack: locals and the operand stack are otherwise
	// invisible to the collector, since nothing else traces into them.
	selfRoot Root[Traceable]
}

func newDataFrame(proto *FunctionProto, fn Ptr[Function]) *dataFrame {
	return &dataFrame{
		proto:  proto,
		fn:     fn,
		locals: make([]Value, proto.NLocals),
	}
}

func (f *dataFrame) Trace(t Tracer) {
	for _, v := range f.locals {
		v.Trace(t)
	}
	for _, v := range f.stack {
		v.Trace(t)
	}
	f.fn.Trace(t)
}

func (f *dataFrame) push(v Value) { f.stack = append(f.stack, v) }

func (f *dataFrame) pop() Value {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack = f.stack[:n]
	return v
}

func (f *dataFrame) top() Value { return f.stack[len(f.stack)-1] }

// ---------------------------------------------------------------------------
// exceptionFrame: one live catch handler
// ---------------------------------------------------------------------------

// exceptionFrame records where control resumes if a Throw reaches this
// point in the call stack, per §4.3. frameDepth indexes vm.frames (which
// frame's loop should resume); stackDepth is that frame's operand-stack
// depth to unwind back to before jumping to handlerPC.
type exceptionFrame struct {
	frameDepth int
	stackDepth int
	handlerPC  int
}

// scriptThrow carries a thrown Value up the Go call stack via panic/recover,
// which stands in for original_source/vm.h's manual exception-frame walk:
// Go's own stack unwinding already runs every intervening run() call's
// deferred frame cleanup exactly once as it propagates, so piggybacking on
// it avoids re-deriving that bookkeeping by hand.
type scriptThrow struct {
	value Value
}

// ---------------------------------------------------------------------------
// StateFrame: a snapshot for nested re-entry into the interpreter
// ---------------------------------------------------------------------------

// StateFrame marks the call-stack and exception-stack depth at the moment
// a Go host callback (a CppFunction) re-enters the interpreter to invoke a
// script value recursively. RestoreState is deferred around that nested
// call so that however it returns (normally, by Go error, or via a script
// exception still unwinding past this point), vm.frames and vm.exceptions
// never retain entries left behind by a call that has already exited.
type StateFrame struct {
	frameDepth int
	excFloor   int
}

func (vm *Interpreter) SaveState() StateFrame {
	return StateFrame{frameDepth: len(vm.frames), excFloor: len(vm.exceptions)}
}

func (vm *Interpreter) RestoreState(s StateFrame) {
	if len(vm.frames) > s.frameDepth {
		vm.frames = vm.frames[:s.frameDepth]
	}
	if len(vm.exceptions) > s.excFloor {
		vm.exceptions = vm.exceptions[:s.excFloor]
	}
}

// ---------------------------------------------------------------------------
// Interpreter: the bytecode VM
// ---------------------------------------------------------------------------

// Interpreter drives one Context's execution. A Context may be driven by
// at most one Interpreter at a time (§5); nothing here is safe to share
// across goroutines, matching the concurrency Non-goal.
type Interpreter struct {
	ctx        *Context
	frames     []*dataFrame
	exceptions []exceptionFrame
}

func NewInterpreter(ctx *Context) *Interpreter {
	return &Interpreter{ctx: ctx}
}

// UncaughtError wraps a script-level exception value that reached the
// bottom of the call stack with no catch handler.
type UncaughtError struct {
	Value Value
}

func (e *UncaughtError) Error() string {
	return "uncaught exception: " + e.Value.Inspect()
}

// Call invokes fn (a Function or CppFunction Value) with args, running the
// fetch-execute loop until fn returns or a script exception escapes
// uncaught, in which case it comes back as *UncaughtError. A host-level Go
// error from a CppFunction that isn't *Raised propagates as-is.
func (vm *Interpreter) Call(fn Value, args []Value) (Value, error) {
	switch fn.Kind() {
	case KindCppFunction:
		return vm.callCpp(fn.CppFunctionPtr(), args)
	case KindFunction:
		return vm.callFunction(fn.FunctionPtr(), args)
	case KindKlass:
		return vm.construct(fn.KlassPtr(), args)
	default:
		return Value{}, fmt.Errorf("rill: cannot call a %s", fn.Kind())
	}
}

// raise packages a runtime-detected error as a script-catchable Value,
// mirroring original_source/vm.cpp's throw_string: every error the VM
// itself detects while running (as opposed to a Go-level host failure) is
// materialized as a Value and driven through the ordinary Throw path, so
// script try/catch can see it.
func (vm *Interpreter) raise(format string, args ...interface{}) *scriptThrow {
	return &scriptThrow{value: vm.ctx.NewString(fmt.Sprintf(format, args...))}
}

// truthy evaluates a conditional operand, per §4.3's Jump semantics. A
// non-bool value is a type mismatch in conditional, not a host panic.
func (vm *Interpreter) truthy(v Value) bool {
	if v.Kind() != KindBool {
		panic(vm.raise("type mismatch in conditional: expected Bool, got %s", v.Kind()))
	}
	return v.Bool()
}

func (vm *Interpreter) callCpp(p Ptr[CppFunction], args []Value) (result Value, err error) {
	f := p.Get()
	if f.Nargs >= 0 && len(args) != f.Nargs {
		panic(vm.raise("%s expects %d arguments, got %d", f.Name, f.Nargs, len(args)))
	}
	state := vm.SaveState()
	defer vm.RestoreState(state)
	v, ferr := f.Fn(vm.ctx, args)
	if raised, ok := ferr.(*Raised); ok {
		panic(&scriptThrow{value: raised.Value})
	}
	return v, ferr
}

func (vm *Interpreter) callFunction(p Ptr[Function], args []Value) (Value, error) {
	fn := p.Get()
	proto := fn.Proto.Get()
	if len(args) != proto.Nargs {
		panic(vm.raise("%s expects %d arguments, got %d", proto.Name, proto.Nargs, len(args)))
	}
	frame := newDataFrame(proto, p)
	copy(frame.locals, args)
	frame.selfRoot = vm.ctx.Root(frame)
	vm.frames = append(vm.frames, frame)
	return vm.run()
}

// Send performs method dispatch, per §4.2/§4.5's Send semantics: look up
// selector on receiver's class and call the found value with receiver as
// its sole argument — the real arguments, if any, are applied by a
// separate, following Call against whatever Send returns. Falls back to
// not_understood if nothing answers.
func (vm *Interpreter) Send(receiver Value, selector string) (Value, error) {
	klass := receiver.ClassOf(vm.ctx)
	if !klass.Valid() {
		panic(vm.raise("cannot send %q to a value with no class", selector))
	}
	if method, ok := klass.Get().Lookup(selector); ok {
		return vm.Call(method, []Value{receiver})
	}
	if vm.ctx.Log != nil {
		vm.ctx.Log.Debugf("interpreter: %s falls through to not_understood", selector)
	}
	return vm.notUnderstood(receiver, selector)
}

// notUnderstood builds and invokes the two-chained-call thunk described in
// §4.3's Send semantics and SPEC_FULL.md §12: not_understood is looked up
// like any other method on obj's class, called with obj to get an
// intermediate callable, which is then called again with the plain
// selector value — not a synthesized message object. If not_understood
// itself is missing, the failure raises a catchable exception rather than
// a second, infinitely-recursive send.
func (vm *Interpreter) notUnderstood(receiver Value, selector string) (Value, error) {
	klass := receiver.ClassOf(vm.ctx)
	handler, ok := klass.Get().Lookup("not_understood")
	if !ok {
		panic(vm.raise("%s does not understand %q", receiver.Inspect(), selector))
	}
	thunk, err := vm.Call(handler, []Value{receiver})
	if err != nil {
		return Value{}, err
	}
	return vm.Call(thunk, []Value{vm.ctx.NewString(selector)})
}

// run wraps execLoop with a panic/recover boundary that implements Throw's
// stack unwinding: a *scriptThrow panic propagates through the Go call
// stack exactly as it propagates through the script's own call stack, and
// is only actually recovered by the run() invocation whose frame matches
// the nearest active exceptionFrame's recorded depth.
func (vm *Interpreter) run() (result Value, err error) {
	myDepth := len(vm.frames) - 1
	frame := vm.frames[myDepth]
	defer func() {
		vm.frames = vm.frames[:myDepth]
		for slot, r := range frame.openUps {
			r.Value.Get().Close()
			r.Drop()
			delete(frame.openUps, slot)
		}
		frame.selfRoot.Drop()
	}()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		st, ok := r.(*scriptThrow)
		if !ok {
			panic(r)
		}
		if len(vm.exceptions) == 0 {
			if vm.ctx.Log != nil {
				vm.ctx.Log.Warningf("interpreter: uncaught exception %s", st.value.Inspect())
			}
			err = &UncaughtError{Value: st.value}
			return
		}
		top := len(vm.exceptions) - 1
		h := vm.exceptions[top]
		if h.frameDepth != myDepth {
			panic(r)
		}
		vm.exceptions = vm.exceptions[:top]
		frame.stack = frame.stack[:h.stackDepth]
		frame.push(st.value)
		frame.pc = h.handlerPC
		result, err = vm.run()
	}()
	return vm.execLoop(frame)
}

// execLoop is the fetch-decode-execute loop for a single frame. It never
// pops vm.frames itself, and touches vm.exceptions only through Catch and
// Uncatch; run() (its only caller) pops the frame and consumes the
// matching handler on the panic/recover unwinding path above.
func (vm *Interpreter) execLoop(frame *dataFrame) (Value, error) {
	for {
		if frame.pc >= len(frame.proto.Code) {
			return Nil, nil
		}
		ins := frame.proto.Code[frame.pc]
		frame.pc++

		switch ins.Op {
		case OpNop:
			// no-op

		case OpPop:
			frame.pop()

		case OpNip:
			v := frame.pop()
			frame.pop()
			frame.push(v)

		case OpDup:
			frame.push(frame.top())

		case OpNil:
			frame.push(Nil)

		case OpGetVar:
			frame.push(frame.locals[ins.A])

		case OpSetVar:
			frame.locals[ins.A] = frame.top()

		case OpGetConst:
			frame.push(frame.proto.Constants[ins.A])

		case OpGetUp:
			frame.push(frame.fn.Get().Upvalues[ins.A].Get().Get())

		case OpSetUp:
			frame.fn.Get().Upvalues[ins.A].Get().Set(frame.top())

		case OpResetUp:
			if r, ok := frame.openUps[ins.A]; ok {
				r.Value.Get().Close()
				r.Drop()
				delete(frame.openUps, ins.A)
			}

		case OpMakeUp:
			v, err := vm.execMakeUp(frame, ins)
			if err != nil {
				return Value{}, err
			}
			frame.push(v)

		case OpCopyUp:
			return Value{}, fmt.Errorf("rill: stray copy_up instruction")

		case OpGetProp:
			name := frame.proto.Constants[ins.A]
			obj := frame.pop()
			frame.push(vm.getProp(obj, name))

		case OpSetProp:
			name := frame.proto.Constants[ins.A]
			val := frame.pop()
			obj := frame.pop()
			vm.setProp(obj, name, val)
			frame.push(val)

		case OpCall:
			n := int(ins.A)
			args := append([]Value(nil), frame.stack[len(frame.stack)-n:]...)
			frame.stack = frame.stack[:len(frame.stack)-n]
			fn := frame.pop()
			result, err := vm.Call(fn, args)
			if err != nil {
				return Value{}, err
			}
			frame.push(result)

		case OpSend:
			selector := frame.proto.Constants[ins.A]
			recv := frame.pop()
			if selector.Kind() != KindString || !selector.StringPtr().Valid() {
				panic(vm.raise("send with non-string selector"))
			}
			result, err := vm.Send(recv, *selector.StringPtr().Get())
			if err != nil {
				return Value{}, err
			}
			frame.push(result)

		case OpReturn:
			return frame.pop(), nil

		case OpJump:
			frame.pc = int(ins.A)

		case OpJumpIf:
			if vm.truthy(frame.pop()) {
				frame.pc = int(ins.A)
			}

		case OpJumpUnless:
			if !vm.truthy(frame.pop()) {
				frame.pc = int(ins.A)
			}

		case OpThrow:
			v := frame.pop()
			panic(&scriptThrow{value: v})

		case OpCatch:
			vm.exceptions = append(vm.exceptions, exceptionFrame{
				frameDepth: vm.frameIndex(frame),
				stackDepth: len(frame.stack),
				handlerPC:  int(ins.A),
			})

		case OpUncatch:
			if len(vm.exceptions) > 0 {
				vm.exceptions = vm.exceptions[:len(vm.exceptions)-1]
			}

		default:
			return Value{}, fmt.Errorf("rill: unknown opcode %s", ins.Op)
		}
	}
}

func (vm *Interpreter) frameIndex(frame *dataFrame) int {
	for i := len(vm.frames) - 1; i >= 0; i-- {
		if vm.frames[i] == frame {
			return i
		}
	}
	panic("rill: frame not found on call stack")
}

// construct builds a fresh Object of klass and, if klass (or an ancestor)
// defines "init", sends it with the constructor arguments.
func (vm *Interpreter) construct(klass Ptr[Klass], args []Value) (Value, error) {
	obj := NewObject(klass)
	root := Alloc(vm.ctx.Collector, obj)
	defer root.Drop()
	v := FromObjectPtr(root.Value)
	if _, ok := klass.Get().Lookup("init"); ok {
		bound, err := vm.Send(v, "init")
		if err != nil {
			return Value{}, err
		}
		if _, err := vm.Call(bound, args); err != nil {
			return Value{}, err
		}
	}
	return v, nil
}

// getProp reads a property off obj, per §4.3's GetProp: throws if the
// property is missing, or if obj is a primitive with no property table at
// all.
func (vm *Interpreter) getProp(obj Value, name Value) Value {
	key := *name.StringPtr().Get()
	switch obj.Kind() {
	case KindObject:
		o := obj.ObjectPtr().Get()
		if v, ok := o.GetProp(key); ok {
			return v
		}
		panic(vm.raise("missing property %q on %s", key, obj.Inspect()))
	case KindKlass:
		k := obj.KlassPtr().Get()
		if v, ok := k.GetProp(key); ok {
			return v
		}
		panic(vm.raise("missing property %q on %s", key, obj.Inspect()))
	default:
		panic(vm.raise("cannot get property %q of a %s", key, obj.Kind()))
	}
}

// setProp writes a property on obj, per §4.3's SetProp: throws on a
// primitive receiver.
func (vm *Interpreter) setProp(obj Value, name Value, val Value) {
	key := *name.StringPtr().Get()
	switch obj.Kind() {
	case KindObject:
		obj.ObjectPtr().Get().SetProp(key, val)
	case KindKlass:
		obj.KlassPtr().Get().SetProp(key, val)
	default:
		panic(vm.raise("cannot set property %q of a %s", key, obj.Kind()))
	}
}

// execMakeUp materializes a closure: ins.A is the constant-pool index of
// the nested FunctionProto, ins.B is the number of CopyUp instructions
// immediately following that populate its upvalues. Each CopyUp's A
// selects the source kind (0 = a local slot in this frame, identified by
// B; nonzero = one of this frame's own function's upvalues, identified by
// B), per §4.4.
func (vm *Interpreter) execMakeUp(frame *dataFrame, ins Instruction) (Value, error) {
	protoVal := frame.proto.Constants[ins.A]
	if protoVal.Kind() != KindFunction || !protoVal.FunctionPtr().Valid() {
		return Value{}, fmt.Errorf("rill: make_up constant is not a function prototype")
	}
	protoPtr := protoVal.FunctionPtr().Get().Proto

	ups := make([]Ptr[Upvalue], ins.B)
	for i := 0; i < int(ins.B); i++ {
		if frame.pc >= len(frame.proto.Code) {
			return Value{}, fmt.Errorf("rill: make_up missing copy_up operands")
		}
		copyIns := frame.proto.Code[frame.pc]
		frame.pc++
		if copyIns.Op != OpCopyUp {
			return Value{}, fmt.Errorf("rill: make_up expected copy_up, found %s", copyIns.Op)
		}

		if copyIns.A == 0 {
			slot := copyIns.B
			if existing, ok := frame.openUps[slot]; ok {
				// Reuse the exact same box: every closure over this slot
				// must observe the same Close() when the scope exits, per
				// §4.4, not merely an equivalent independent copy.
				ups[i] = existing.Value
			} else {
				u := newOpenUpvalue(frame, slot)
				root := Alloc(vm.ctx.Collector, u)
				if frame.openUps == nil {
					frame.openUps = make(map[uint32]Root[Ptr[Upvalue]])
				}
				frame.openUps[slot] = root
				ups[i] = root.Value
			}
		} else {
			// Share the enclosing closure's own box, already reachable
			// through frame.fn, so both closures see the same writes and
			// the same Close().
			ups[i] = frame.fn.Get().Upvalues[copyIns.B]
		}
	}

	fn := Function{Proto: protoPtr, Upvalues: ups}
	root := Alloc(vm.ctx.Collector, fn)
	defer root.Drop()
	return FromFunctionPtr(root.Value), nil
}
