package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction formats one instruction at index pc. Jump targets
// are resolved to absolute indices.
func DisassembleInstruction(pc int, ins Instruction) string {
	if ins.Op.IsJump() {
		return fmt.Sprintf("%04d  %s  ; -> %04d", pc, ins, pc+int(ins.K))
	}
	return fmt.Sprintf("%04d  %s", pc, ins)
}

// Disassemble returns a full listing of a prototype and its children.
func Disassemble(p *FunctionProto) string {
	var b strings.Builder
	disassembleInto(&b, p, "")
	return b.String()
}

func disassembleInto(b *strings.Builder, p *FunctionProto, path string) {
	name := p.Name
	if name == "" {
		name = "<anonymous>"
	}
	fmt.Fprintf(b, "function %s%s (params=%d required=%d stack=%d captures=%d)\n",
		path, name, len(p.Params), p.RequiredParams(), p.MaxStack, len(p.Captures))
	for i, c := range p.Captures {
		from := "capture"
		if c.FromParentLocal {
			from = "local"
		}
		fmt.Fprintf(b, "  .capture %d %s <- %s %d\n", i, c.Name, from, c.Index)
	}
	for i, lit := range p.Literals {
		fmt.Fprintf(b, "  .literal %d %s\n", i, lit.repr())
	}
	for pc, ins := range p.Code {
		b.WriteString("  ")
		b.WriteString(DisassembleInstruction(pc, ins))
		b.WriteByte('\n')
	}
	for i, c := range p.Children {
		disassembleInto(b, c, fmt.Sprintf("%s%s/%d:", path, name, i))
	}
}
