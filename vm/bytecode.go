package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single register-machine instruction.
type Opcode byte

// NoReg marks an unused register operand.
const NoReg uint8 = 0xFF

// MaxRegisters is the number of addressable registers per frame.
const MaxRegisters = int(NoReg)

// Loads and moves
const (
	OpNop       Opcode = 0x00 // no operation (placeholder, patchable)
	OpLoadNull  Opcode = 0x01 // A = null
	OpLoadTrue  Opcode = 0x02 // A = true
	OpLoadFalse Opcode = 0x03 // A = false
	OpLoadInt   Opcode = 0x04 // A = K (inline int32)
	OpLoadConst Opcode = 0x05 // A = literals[K]
	OpLoadStr   Opcode = 0x06 // A = S (inline small string)
	OpMove      Opcode = 0x07 // A = B
	OpLoadBase  Opcode = 0x08 // A = base class of the running method's owner
)

// Captures and closures
const (
	OpGetCapture Opcode = 0x10 // A = captures[B]
	OpClose      Opcode = 0x11 // close cells for registers >= A
	OpClosure    Opcode = 0x12 // A = closure(children[K]), B = env register or NoReg
)

// Tables, arrays, classes
const (
	OpNewTable  Opcode = 0x20 // A = {}
	OpNewArray  Opcode = 0x21 // A = []
	OpNewSlot   Opcode = 0x22 // A[B] = C (table literal slot)
	OpArrayPush Opcode = 0x23 // A.push(B)
	OpNewClass  Opcode = 0x24 // A = class literals[K], base B, type id C
	OpNewStruct Opcode = 0x25 // A = struct literals[K], type id C
	OpNewMember Opcode = 0x26 // class A member B = C, flags K
	OpGet       Opcode = 0x27 // A = B[C]
	OpSet       Opcode = 0x28 // A[B] = C
)

// Arithmetic, comparison, bitwise (A = B op C)
const (
	OpAdd    Opcode = 0x30
	OpSub    Opcode = 0x31
	OpMul    Opcode = 0x32
	OpDiv    Opcode = 0x33
	OpMod    Opcode = 0x34
	OpPow    Opcode = 0x35
	OpShl    Opcode = 0x36
	OpShr    Opcode = 0x37
	OpBitAnd Opcode = 0x38
	OpBitOr  Opcode = 0x39
	OpBitXor Opcode = 0x3A
	OpEq     Opcode = 0x3B
	OpNe     Opcode = 0x3C
	OpLt     Opcode = 0x3D
	OpLe     Opcode = 0x3E
	OpGt     Opcode = 0x3F
	OpGe     Opcode = 0x40
)

// Unary (A = op B) and in-place
const (
	OpNeg    Opcode = 0x48
	OpNot    Opcode = 0x49
	OpBitNot Opcode = 0x4A
	OpTypeOf Opcode = 0x4B
	OpInc    Opcode = 0x4C // A = A + 1
	OpDec    Opcode = 0x4D // A = A - 1
)

// Control flow
const (
	OpJump        Opcode = 0x50 // pc += K
	OpJumpIfFalse Opcode = 0x51 // if !A { pc += K }
	OpJumpIfTrue  Opcode = 0x52 // if A { pc += K }
	OpJumpIfArg   Opcode = 0x53 // if argument for slot A was passed { pc += K }
	OpCall        Opcode = 0x54 // A = A(this=B, args A+1..A+C)
	OpReturn      Opcode = 0x55 // return A
	OpReturnNull  Opcode = 0x56 // return null
)

// Type checks
const (
	OpCheckType   Opcode = 0x60 // fail unless kind(A) in TypeMask(K)
	OpCheckCustom Opcode = 0x61 // fail unless A is an instance whose type id is in literals[K]
)

// Member flags carried in the K operand of OpNewMember.
const (
	MemberStatic = 1 << iota
	MemberConst
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// operandFormat describes which operand fields an opcode encodes.
type operandFormat uint8

const (
	fmtNone operandFormat = iota
	fmtA
	fmtAB
	fmtABC
	fmtAK
	fmtABK
	fmtABCK
	fmtK  // jump offset only
	fmtAS // register + inline string
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name   string
	format operandFormat
	Jump   bool // K is a relative jump offset
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:       {"NOP", fmtNone, false},
	OpLoadNull:  {"LOADNULL", fmtA, false},
	OpLoadTrue:  {"LOADTRUE", fmtA, false},
	OpLoadFalse: {"LOADFALSE", fmtA, false},
	OpLoadInt:   {"LOADI", fmtAK, false},
	OpLoadConst: {"LOADK", fmtAK, false},
	OpLoadStr:   {"LOADS", fmtAS, false},
	OpMove:      {"MOVE", fmtAB, false},
	OpLoadBase:  {"LOADBASE", fmtA, false},

	OpGetCapture: {"GETCAP", fmtAB, false},
	OpClose:      {"CLOSE", fmtA, false},
	OpClosure:    {"CLOSURE", fmtABK, false},

	OpNewTable:  {"NEWTABLE", fmtA, false},
	OpNewArray:  {"NEWARRAY", fmtA, false},
	OpNewSlot:   {"NEWSLOT", fmtABC, false},
	OpArrayPush: {"APUSH", fmtAB, false},
	OpNewClass:  {"NEWCLASS", fmtABCK, false},
	OpNewStruct: {"NEWSTRUCT", fmtABCK, false},
	OpNewMember: {"NEWMEMBER", fmtABCK, false},
	OpGet:       {"GET", fmtABC, false},
	OpSet:       {"SET", fmtABC, false},

	OpAdd:    {"ADD", fmtABC, false},
	OpSub:    {"SUB", fmtABC, false},
	OpMul:    {"MUL", fmtABC, false},
	OpDiv:    {"DIV", fmtABC, false},
	OpMod:    {"MOD", fmtABC, false},
	OpPow:    {"POW", fmtABC, false},
	OpShl:    {"SHL", fmtABC, false},
	OpShr:    {"SHR", fmtABC, false},
	OpBitAnd: {"BAND", fmtABC, false},
	OpBitOr:  {"BOR", fmtABC, false},
	OpBitXor: {"BXOR", fmtABC, false},
	OpEq:     {"EQ", fmtABC, false},
	OpNe:     {"NE", fmtABC, false},
	OpLt:     {"LT", fmtABC, false},
	OpLe:     {"LE", fmtABC, false},
	OpGt:     {"GT", fmtABC, false},
	OpGe:     {"GE", fmtABC, false},

	OpNeg:    {"NEG", fmtAB, false},
	OpNot:    {"NOT", fmtAB, false},
	OpBitNot: {"BNOT", fmtAB, false},
	OpTypeOf: {"TYPEOF", fmtAB, false},
	OpInc:    {"INC", fmtA, false},
	OpDec:    {"DEC", fmtA, false},

	OpJump:        {"JMP", fmtK, true},
	OpJumpIfFalse: {"JMPF", fmtAK, true},
	OpJumpIfTrue:  {"JMPT", fmtAK, true},
	OpJumpIfArg:   {"JMPARG", fmtAK, true},
	OpCall:        {"CALL", fmtABC, false},
	OpReturn:      {"RET", fmtA, false},
	OpReturnNull:  {"RETNULL", fmtNone, false},

	OpCheckType:   {"CHKTYPE", fmtAK, false},
	OpCheckCustom: {"CHKCUSTOM", fmtAK, false},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// IsJump reports whether the opcode's K operand is a relative jump offset.
func (op Opcode) IsJump() bool {
	return op.Info().Jump
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Instruction
// ---------------------------------------------------------------------------

// Instruction is one decoded instruction. Which operand fields are
// meaningful depends on the opcode's format.
type Instruction struct {
	Op      Opcode
	A, B, C uint8
	K       int32  // literal index, immediate, mask, flags or jump offset
	S       string // inline small string (OpLoadStr)
	Line    int32  // source line for runtime diagnostics (not encoded)
}

func (ins Instruction) String() string {
	info := ins.Op.Info()
	switch info.format {
	case fmtNone:
		return info.Name
	case fmtA:
		return fmt.Sprintf("%-10s r%d", info.Name, ins.A)
	case fmtAB:
		return fmt.Sprintf("%-10s r%d %s", info.Name, ins.A, regName(ins.B))
	case fmtABC:
		return fmt.Sprintf("%-10s r%d %s %s", info.Name, ins.A, regName(ins.B), regName(ins.C))
	case fmtAK:
		return fmt.Sprintf("%-10s r%d %d", info.Name, ins.A, ins.K)
	case fmtABK:
		return fmt.Sprintf("%-10s r%d %s %d", info.Name, ins.A, regName(ins.B), ins.K)
	case fmtABCK:
		return fmt.Sprintf("%-10s r%d %s %d %d", info.Name, ins.A, regName(ins.B), ins.C, ins.K)
	case fmtK:
		return fmt.Sprintf("%-10s %d", info.Name, ins.K)
	case fmtAS:
		return fmt.Sprintf("%-10s r%d %q", info.Name, ins.A, ins.S)
	}
	return info.Name
}

func regName(r uint8) string {
	if r == NoReg {
		return "-"
	}
	return fmt.Sprintf("r%d", r)
}

// ---------------------------------------------------------------------------
// InstructionList: the compiler's instruction buffer
// ---------------------------------------------------------------------------

// InstructionList is an append-only instruction buffer whose entries stay
// addressable by index for backpatching. A contiguous tail can be split off
// and spliced back later, always on instruction boundaries.
type InstructionList struct {
	code []Instruction
}

// NewInstructionList creates an empty list.
func NewInstructionList() *InstructionList {
	return &InstructionList{code: make([]Instruction, 0, 32)}
}

// Len returns the number of instructions, which is also the index the next
// emitted instruction will have.
func (l *InstructionList) Len() int {
	return len(l.code)
}

// Emit appends an instruction and returns its index.
func (l *InstructionList) Emit(ins Instruction) int {
	l.code = append(l.code, ins)
	return len(l.code) - 1
}

// At returns a pointer to the instruction at index i.
func (l *InstructionList) At(i int) *Instruction {
	return &l.code[i]
}

// Last returns the most recently emitted instruction, if any.
func (l *InstructionList) Last() (Instruction, bool) {
	if len(l.code) == 0 {
		return Instruction{}, false
	}
	return l.code[len(l.code)-1], true
}

// PatchJump points the jump at index at to the instruction index target.
func (l *InstructionList) PatchJump(at, target int) {
	ins := &l.code[at]
	if !ins.Op.IsJump() {
		panic(fmt.Sprintf("PatchJump: %s at %d is not a jump", ins.Op, at))
	}
	ins.K = int32(target - at)
}

// SplitOff removes every instruction from index from onwards and returns
// them. Jump offsets are relative, so jumps inside the removed range stay
// valid when it is spliced back as one unit.
func (l *InstructionList) SplitOff(from int) []Instruction {
	if from < 0 || from > len(l.code) {
		panic(fmt.Sprintf("SplitOff: index %d out of range [0,%d]", from, len(l.code)))
	}
	tail := make([]Instruction, len(l.code)-from)
	copy(tail, l.code[from:])
	l.code = l.code[:from]
	return tail
}

// Splice appends a previously split-off range and returns the index of its
// first instruction.
func (l *InstructionList) Splice(tail []Instruction) int {
	start := len(l.code)
	l.code = append(l.code, tail...)
	return start
}

// Instructions returns a copy of the buffer.
func (l *InstructionList) Instructions() []Instruction {
	out := make([]Instruction, len(l.code))
	copy(out, l.code)
	return out
}
