package vm

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op   Opcode
		name string
		jump bool
	}{
		{OpNop, "NOP", false},
		{OpLoadInt, "LOADI", false},
		{OpLoadStr, "LOADS", false},
		{OpGetCapture, "GETCAP", false},
		{OpNewMember, "NEWMEMBER", false},
		{OpJump, "JMP", true},
		{OpJumpIfFalse, "JMPF", true},
		{OpJumpIfArg, "JMPARG", true},
		{OpCall, "CALL", false},
		{OpCheckCustom, "CHKCUSTOM", false},
	}
	for _, tt := range tests {
		if got := tt.op.Name(); got != tt.name {
			t.Errorf("0x%02X: Name = %q, want %q", byte(tt.op), got, tt.name)
		}
		if got := tt.op.IsJump(); got != tt.jump {
			t.Errorf("%s: IsJump = %v, want %v", tt.op, got, tt.jump)
		}
	}
	if got := Opcode(0xEE).String(); got != "UNKNOWN_EE" {
		t.Errorf("unknown opcode = %q", got)
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		ins  Instruction
		want string
	}{
		{Instruction{Op: OpReturnNull}, "RETNULL"},
		{Instruction{Op: OpLoadInt, A: 1, K: -7}, "LOADI      r1 -7"},
		{Instruction{Op: OpCall, A: 2, B: NoReg, C: 1}, "CALL       r2 - r1"},
		{Instruction{Op: OpLoadStr, A: 3, S: "hi"}, `LOADS      r3 "hi"`},
		{Instruction{Op: OpJump, K: 4}, "JMP        4"},
	}
	for _, tt := range tests {
		if got := tt.ins.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// InstructionList tests
// ---------------------------------------------------------------------------

func TestInstructionListPatchJump(t *testing.T) {
	l := NewInstructionList()
	j := l.Emit(Instruction{Op: OpJumpIfFalse, A: 1})
	l.Emit(Instruction{Op: OpNop})
	l.Emit(Instruction{Op: OpNop})
	l.PatchJump(j, l.Len())
	if k := l.At(j).K; k != 3 {
		t.Errorf("offset = %d, want 3", k)
	}

	defer func() {
		if recover() == nil {
			t.Error("patching a non-jump did not panic")
		}
	}()
	l.PatchJump(1, 0)
}

func TestInstructionListSplitSplice(t *testing.T) {
	l := NewInstructionList()
	l.Emit(Instruction{Op: OpLoadInt, A: 1, K: 1})
	from := l.Len()
	l.Emit(Instruction{Op: OpInc, A: 1})
	l.Emit(Instruction{Op: OpInc, A: 1})

	tail := l.SplitOff(from)
	if len(tail) != 2 || l.Len() != 1 {
		t.Fatalf("split: tail %d, remaining %d", len(tail), l.Len())
	}
	l.Emit(Instruction{Op: OpMove, A: 2, B: 1})
	start := l.Splice(tail)
	if start != 2 || l.Len() != 4 {
		t.Errorf("splice start = %d, len = %d", start, l.Len())
	}
	code := l.Instructions()
	want := []Opcode{OpLoadInt, OpMove, OpInc, OpInc}
	for i, op := range want {
		if code[i].Op != op {
			t.Errorf("code[%d] = %s, want %s", i, code[i].Op, op)
		}
	}
	code[0].Op = OpNop
	if l.At(0).Op != OpLoadInt {
		t.Error("Instructions did not copy")
	}
	if last, ok := l.Last(); !ok || last.Op != OpInc {
		t.Errorf("Last = %v %v", last, ok)
	}
}

// ---------------------------------------------------------------------------
// Encoding tests
// ---------------------------------------------------------------------------

func TestEncodeDecodeRoundTrip(t *testing.T) {
	code := []Instruction{
		{Op: OpNop},
		{Op: OpLoadInt, A: 1, K: -123456},
		{Op: OpLoadStr, A: 2, S: "small"},
		{Op: OpMove, A: 3, B: 2},
		{Op: OpAdd, A: 1, B: 1, C: 3},
		{Op: OpClosure, A: 4, B: NoReg, K: 2},
		{Op: OpNewMember, A: 5, B: 6, C: 7, K: MemberConst},
		{Op: OpJump, K: -4},
		{Op: OpReturn, A: 1},
	}
	data := Encode(code)
	back, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != len(code) {
		t.Fatalf("decoded %d instructions, want %d", len(back), len(code))
	}
	for i := range code {
		if back[i] != code[i] {
			t.Errorf("instruction %d: got %+v, want %+v", i, back[i], code[i])
		}
	}
}

func TestEncodeIsVariableWidth(t *testing.T) {
	tests := []struct {
		ins  Instruction
		size int
	}{
		{Instruction{Op: OpReturnNull}, 1},
		{Instruction{Op: OpLoadNull, A: 1}, 2},
		{Instruction{Op: OpGet, A: 1, B: 2, C: 3}, 4},
		{Instruction{Op: OpLoadInt, A: 1, K: 9}, 6},
		{Instruction{Op: OpJump, K: 9}, 5},
		{Instruction{Op: OpLoadStr, A: 1, S: "abc"}, 6},
	}
	for _, tt := range tests {
		if got := len(Encode([]Instruction{tt.ins})); got != tt.size {
			t.Errorf("%s: %d bytes, want %d", tt.ins.Op, got, tt.size)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte{0xEE}); err == nil {
		t.Error("unknown opcode decoded")
	}
	full := Encode([]Instruction{{Op: OpLoadInt, A: 1, K: 1 << 20}})
	_, err := Decode(full[:len(full)-1])
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated stream: err = %v", err)
	}
}

func TestDisassemble(t *testing.T) {
	child := &FunctionProto{
		Name:     "inner",
		Code:     []Instruction{{Op: OpGetCapture, A: 1, B: 0}, {Op: OpReturn, A: 1}},
		Captures: []CaptureInfo{{Name: "x", FromParentLocal: true, Index: 1}},
		MaxStack: 2,
	}
	p := &FunctionProto{
		Name: "main",
		Code: []Instruction{
			{Op: OpLoadConst, A: 1, K: 0},
			{Op: OpJumpIfFalse, A: 1, K: 2},
			{Op: OpClosure, A: 2, B: NoReg, K: 0},
			{Op: OpReturnNull},
		},
		Literals: []Value{StringValue("a long string literal")},
		Children: []*FunctionProto{child},
		MaxStack: 3,
	}
	out := Disassemble(p)
	for _, want := range []string{
		"function main (params=0 required=0 stack=3 captures=0)",
		`.literal 0 "a long string literal"`,
		"0001  JMPF       r1 2  ; -> 0003",
		"function main/0:inner",
		".capture 0 x <- local 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing lacks %q:\n%s", want, out)
		}
	}
}
