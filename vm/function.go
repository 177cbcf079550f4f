package vm

// ---------------------------------------------------------------------------
// FunctionProto: compiled, closure-independent bytecode
// ---------------------------------------------------------------------------

// FunctionProto is the immutable output of compiling a single lambda or
// method body: its code, its constant pool, and enough shape information
// to set up a call frame. Mirrors original_source/value.h's
// CompiledFunction, split out from Function so that every closure sharing
// one compiled body (§4.4: nested lambdas re-entering an enclosing scope)
// can reference the same FunctionProto through distinct Function values.
type FunctionProto struct {
	Name      string
	Nargs     int
	NLocals   int // local variable slots, including arguments
	Code      []Instruction
	Constants []Value
	// UpvalueDescs describes, in order, how this proto's own upvalues are
	// populated when a Function closing over it is created: either lifted
	// from a local slot in the immediately enclosing frame (FromLocal) or
	// forwarded from an upvalue already captured by that enclosing
	// function (FromLocal false). See §4.4.
	UpvalueDescs []UpvalueDesc
}

func (p *FunctionProto) Trace(t Tracer) {
	for _, c := range p.Constants {
		c.Trace(t)
	}
}

// UpvalueDesc records where one of a FunctionProto's upvalues comes from,
// resolved once at compile time (§4.4's four-step resolution algorithm).
type UpvalueDesc struct {
	FromLocal bool
	Index     uint32
}

// ---------------------------------------------------------------------------
// Upvalue: a captured variable, open or closed
// ---------------------------------------------------------------------------

// Upvalue is open while its enclosing call frame is still live (it points
// at that frame's local slot directly, so writes through it are visible to
// the frame and vice versa) and closed once the frame returns (it copies
// the final value out and stops referencing the frame at all). §4.4.
type Upvalue struct {
	open  bool
	frame *dataFrame
	index uint32
	value Value
}

func newOpenUpvalue(frame *dataFrame, index uint32) Upvalue {
	return Upvalue{open: true, frame: frame, index: index}
}

func (u *Upvalue) Get() Value {
	if u.open {
		return u.frame.locals[u.index]
	}
	return u.value
}

func (u *Upvalue) Set(v Value) {
	if u.open {
		u.frame.locals[u.index] = v
		return
	}
	u.value = v
}

// Close copies the current value out of the frame and severs the link, so
// the frame's own storage can be discarded when its call returns.
func (u *Upvalue) Close() {
	if !u.open {
		return
	}
	u.value = u.frame.locals[u.index]
	u.open = false
	u.frame = nil
}

func (u *Upvalue) Trace(t Tracer) {
	if !u.open {
		u.value.Trace(t)
	}
	// An open upvalue's value lives in frame.locals, which the frame
	// itself traces while the frame is a GC root (it's on the live data
	// stack); nothing further to do here.
}

// ---------------------------------------------------------------------------
// Function: a closure over a FunctionProto
// ---------------------------------------------------------------------------

// Function pairs a compiled body with the upvalues it closed over at
// creation time, mirroring original_source/value.h's Function.
type Function struct {
	Proto    Ptr[FunctionProto]
	Upvalues []Ptr[Upvalue]
}

func (f *Function) Trace(t Tracer) {
	f.Proto.Trace(t)
	for _, u := range f.Upvalues {
		u.Trace(t)
	}
}

// ---------------------------------------------------------------------------
// CppFunction: a host-provided primitive
// ---------------------------------------------------------------------------

// CppFunction wraps a Go function so it can be called through exactly the
// same Call/Send paths as a script-defined Function (§1: primitive method
// libraries are host-provided FFI, not compiled bytecode). Fn may signal a
// script-catchable exception by returning a *Raised error.
type CppFunction struct {
	Name  string
	Nargs int // -1 means variadic; the interpreter passes all arguments through
	Fn    func(ctx *Context, args []Value) (Value, error)
}

func (f *CppFunction) Trace(t Tracer) {}

// Raised is returned by a CppFunction to signal a script-level exception,
// carrying the Value that a `throw` inside a script would have carried.
// The interpreter unwraps it and drives it through the ordinary Throw path
// (§4.3) rather than treating it as a host-fatal Go error.
type Raised struct {
	Value Value
}

func (r *Raised) Error() string {
	return "raised: " + r.Value.Inspect()
}
