package vm

// ---------------------------------------------------------------------------
// FunctionProto: compiled function
// ---------------------------------------------------------------------------

// FunctionProto is the compiler's output for one function. Nested functions
// are owned by their parent and referenced by index from OpClosure.
type FunctionProto struct {
	Name   string
	Source string // source file name, for diagnostics

	Code     []Instruction
	Literals []Value

	Params   []ParamInfo
	Locals   []LocalInfo
	Captures []CaptureInfo
	Children []*FunctionProto

	// MaxStack is the number of registers a frame needs, including slot 0.
	MaxStack int
	Line     int
}

// ParamInfo describes one declared parameter. Parameters occupy registers
// 1..len(Params); register 0 holds this.
type ParamInfo struct {
	Name       string
	Mask       TypeMask
	CustomMask uint64
	Const      bool
	HasDefault bool
}

// LocalInfo is the debug record of a local variable's lifetime.
type LocalInfo struct {
	Name    string
	Slot    int
	StartPC int
	EndPC   int
}

// CaptureInfo tells OpClosure where to find a captured variable: a local
// register of the enclosing frame, or one of the enclosing closure's own
// captures.
type CaptureInfo struct {
	Name            string
	FromParentLocal bool
	Index           int
}

// RequiredParams returns the number of parameters without defaults.
func (p *FunctionProto) RequiredParams() int {
	n := 0
	for _, param := range p.Params {
		if !param.HasDefault {
			n++
		}
	}
	return n
}

// OptionalParams returns the number of parameters with defaults.
func (p *FunctionProto) OptionalParams() int {
	return len(p.Params) - p.RequiredParams()
}

// Bytecode returns the encoded instruction stream.
func (p *FunctionProto) Bytecode() []byte {
	return Encode(p.Code)
}

// LineFor returns the source line of the instruction at pc.
func (p *FunctionProto) LineFor(pc int) int {
	if pc >= 0 && pc < len(p.Code) {
		return int(p.Code[pc].Line)
	}
	return p.Line
}

// LocalAt returns the name of the local living in slot at pc, if any.
func (p *FunctionProto) LocalAt(slot, pc int) (string, bool) {
	for _, l := range p.Locals {
		if l.Slot == slot && pc >= l.StartPC && pc < l.EndPC {
			return l.Name, true
		}
	}
	return "", false
}

// Walk visits p and every nested prototype, depth first.
func (p *FunctionProto) Walk(fn func(*FunctionProto)) {
	fn(p)
	for _, c := range p.Children {
		c.Walk(fn)
	}
}
