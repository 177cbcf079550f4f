package vm

import "fmt"

// Opcode enumerates the bytecode instruction set, in the same order as
// original_source/value.h's Opcode enum.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpPop
	OpNip
	OpDup
	OpNil
	OpGetVar
	OpSetVar
	OpGetConst
	OpGetUp
	OpSetUp
	OpResetUp
	OpMakeUp
	OpCopyUp
	OpGetProp
	OpSetProp
	OpCall
	OpSend
	OpReturn
	OpJump
	OpJumpIf
	OpJumpUnless
	OpThrow
	OpCatch
	OpUncatch
)

var opcodeNames = [...]string{
	OpNop:        "nop",
	OpPop:        "pop",
	OpNip:        "nip",
	OpDup:        "dup",
	OpNil:        "nil",
	OpGetVar:     "get_var",
	OpSetVar:     "set_var",
	OpGetConst:   "get_const",
	OpGetUp:      "get_up",
	OpSetUp:      "set_up",
	OpResetUp:    "reset_up",
	OpMakeUp:     "make_up",
	OpCopyUp:     "copy_up",
	OpGetProp:    "get_prop",
	OpSetProp:    "set_prop",
	OpCall:       "call",
	OpSend:       "send",
	OpReturn:     "return",
	OpJump:       "jump",
	OpJumpIf:     "jump_if",
	OpJumpUnless: "jump_unless",
	OpThrow:      "throw",
	OpCatch:      "catch",
	OpUncatch:    "uncatch",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Instruction is a single decoded bytecode word: an opcode plus up to two
// operands (most opcodes use only A; MakeUp/CopyUp use both).
// original_source/value.h packs op and a single arg into 32 bits; Go gains
// nothing from that here (the win was cache density in an array the size
// of a whole program's code, which still holds, but bit-packing an
// exported struct only costs readability), so Instruction stays a plain
// struct instead, widened to two operands where one word wasn't enough.
type Instruction struct {
	Op Opcode
	A  uint32
	B  uint32
}

// Disassemble renders proto's code as human-readable text, one instruction
// per line, resolving GetConst operands against the constant pool and
// recursing into any nested FunctionProto constants. Adapted from the
// disassembler shape used elsewhere in this codebase for bytecode owned by
// a single compiled unit.
func Disassemble(proto *FunctionProto) string {
	out := fmt.Sprintf("function %s(%d args, %d locals)\n", proto.Name, proto.Nargs, proto.NLocals)
	for i, ins := range proto.Code {
		out += fmt.Sprintf("  %4d  %-12s %d %d", i, ins.Op, ins.A, ins.B)
		if (ins.Op == OpGetConst || ins.Op == OpGetProp || ins.Op == OpSetProp || ins.Op == OpSend) && int(ins.A) < len(proto.Constants) {
			out += "  ; " + proto.Constants[ins.A].Inspect()
		}
		out += "\n"
	}
	for _, c := range proto.Constants {
		if c.Kind() == KindFunction && c.FunctionPtr().Valid() {
			nested := c.FunctionPtr().Get().Proto
			if nested.Valid() {
				out += "\n" + Disassemble(nested.Get())
			}
		}
	}
	return out
}
