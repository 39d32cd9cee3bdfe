package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/tern/vm"
)

// ---------------------------------------------------------------------------
// funcState: per-function compile state
// ---------------------------------------------------------------------------

// localVar is a live local variable.
type localVar struct {
	name     string
	slot     int
	spec     typeSpec
	isConst  bool
	captured bool // some nested function captures it
	startPC  int
}

// scope marks a lexical block.
type scope struct {
	nlocals    int // len(locals) at entry
	stackSize  int
	outers     int
	blockStart int // enclosing block's first local
}

// loopState tracks break and continue placeholders of one loop.
type loopState struct {
	bodyBase  int // stack size at body entry; cells at or above it close on exit
	breaks    []int
	continues []int
	captured  bool
}

type literalKey struct {
	kind vm.Kind
	i    int64
	f    uint64
	s    string
}

type funcState struct {
	parent *funcState
	name   string
	line   int

	code     *vm.InstructionList
	literals []vm.Value
	litIndex map[literalKey]int

	targets   []int
	stackSize int // next free register
	maxStack  int
	limit     int

	locals     []*localVar
	localInfos []vm.LocalInfo
	outers     int // live locals captured by nested functions
	blockStart int // index in locals of the innermost block's first local

	captures []vm.CaptureInfo
	params   []vm.ParamInfo
	children []*vm.FunctionProto
	loops    []*loopState

	// proven is the lowest instruction index a static type proof may look
	// at; jump targets raise it.
	proven int
}

func newFuncState(parent *funcState, name string, line, limit int) *funcState {
	return &funcState{
		parent:    parent,
		name:      name,
		line:      line,
		code:      vm.NewInstructionList(),
		litIndex:  make(map[literalKey]int),
		stackSize: 1, // register 0 is this
		maxStack:  1,
		limit:     limit,
	}
}

// ---------------------------------------------------------------------------
// Target stack
// ---------------------------------------------------------------------------

// newTarget allocates the next free register and pushes it.
func (fs *funcState) newTarget() int {
	slot := fs.stackSize
	if slot >= fs.limit {
		panic(abort{err: &Error{Kind: ErrSemantic, Message: fmt.Sprintf("function %s needs more than %d registers", fs.displayName(), fs.limit), Check: "newTarget"}})
	}
	fs.stackSize++
	if fs.stackSize > fs.maxStack {
		fs.maxStack = fs.stackSize
	}
	fs.targets = append(fs.targets, slot)
	return slot
}

// pushTarget pushes an existing register, such as a local's slot.
func (fs *funcState) pushTarget(slot int) int {
	fs.targets = append(fs.targets, slot)
	return slot
}

// popTarget removes the top target. A temporary register is freed; a
// register owned by a local stays allocated.
func (fs *funcState) popTarget() int {
	n := len(fs.targets)
	if n == 0 {
		panic(abort{err: &Error{Kind: ErrInternal, Message: "target stack underflow", Check: "popTarget"}})
	}
	slot := fs.targets[n-1]
	fs.targets = fs.targets[:n-1]
	if slot >= fs.localTop() && slot == fs.stackSize-1 {
		fs.stackSize--
	}
	return slot
}

// topTarget returns the top target without popping it.
func (fs *funcState) topTarget() int {
	return fs.targets[len(fs.targets)-1]
}

// peekTarget returns the target n below the top.
func (fs *funcState) peekTarget(n int) int {
	return fs.targets[len(fs.targets)-1-n]
}

// localTop is the first register not owned by a local.
func (fs *funcState) localTop() int {
	if n := len(fs.locals); n > 0 {
		return fs.locals[n-1].slot + 1
	}
	return 1
}

// isTemp reports whether slot is a temporary rather than this or a local.
func (fs *funcState) isTemp(slot int) bool {
	return slot >= fs.localTop()
}

// ---------------------------------------------------------------------------
// Locals
// ---------------------------------------------------------------------------

// pushLocal binds name to the top target, which must be a fresh temporary,
// and pops it off the target stack without freeing the register.
func (fs *funcState) pushLocal(name string, spec typeSpec, isConst bool) *localVar {
	slot := fs.targets[len(fs.targets)-1]
	fs.targets = fs.targets[:len(fs.targets)-1]
	l := &localVar{name: name, slot: slot, spec: spec, isConst: isConst, startPC: fs.code.Len()}
	fs.locals = append(fs.locals, l)
	return l
}

// findLocal returns the innermost local named name in this function.
func (fs *funcState) findLocal(name string) *localVar {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return fs.locals[i]
		}
	}
	return nil
}

// declaredHere reports whether name is already a local of the innermost
// block.
func (fs *funcState) declaredHere(name string) bool {
	for _, l := range fs.locals[fs.blockStart:] {
		if l.name == name {
			return true
		}
	}
	return false
}

func (fs *funcState) markCaptured(l *localVar) {
	if l.captured {
		return
	}
	l.captured = true
	fs.outers++
	for _, lp := range fs.loops {
		if l.slot >= lp.bodyBase {
			lp.captured = true
		}
	}
}

// getCapture resolves name against enclosing functions, registering one
// capture per distinct name.
func (fs *funcState) getCapture(name string) (int, bool) {
	for i, c := range fs.captures {
		if c.Name == name {
			return i, true
		}
	}
	if fs.parent == nil {
		return -1, false
	}
	if l := fs.parent.findLocal(name); l != nil {
		fs.parent.markCaptured(l)
		fs.captures = append(fs.captures, vm.CaptureInfo{Name: name, FromParentLocal: true, Index: l.slot})
		return len(fs.captures) - 1, true
	}
	if idx, ok := fs.parent.getCapture(name); ok {
		fs.captures = append(fs.captures, vm.CaptureInfo{Name: name, Index: idx})
		return len(fs.captures) - 1, true
	}
	return -1, false
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

func (fs *funcState) openScope() scope {
	sc := scope{nlocals: len(fs.locals), stackSize: fs.stackSize, outers: fs.outers, blockStart: fs.blockStart}
	fs.blockStart = len(fs.locals)
	return sc
}

// closeScope drops the block's locals and restores the stack size. It emits
// CLOSE iff a dropped local was captured.
func (fs *funcState) closeScope(sc scope, line int) {
	before := fs.outers
	fs.dropLocals(sc.nlocals)
	fs.stackSize = sc.stackSize
	fs.blockStart = sc.blockStart
	if fs.outers != before {
		fs.emit(vm.Instruction{Op: vm.OpClose, A: uint8(sc.stackSize)}, line)
	}
}

func (fs *funcState) dropLocals(n int) {
	end := fs.code.Len()
	for i := len(fs.locals) - 1; i >= n; i-- {
		l := fs.locals[i]
		if l.captured {
			fs.outers--
		}
		fs.localInfos = append(fs.localInfos, vm.LocalInfo{Name: l.name, Slot: l.slot, StartPC: l.startPC, EndPC: end})
	}
	fs.locals = fs.locals[:n]
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func (fs *funcState) pushLoop() *loopState {
	lp := &loopState{bodyBase: fs.stackSize}
	fs.loops = append(fs.loops, lp)
	return lp
}

// popLoop patches break and continue placeholders. If a body local was
// captured, each placeholder NOP becomes a CLOSE of the body's registers.
func (fs *funcState) popLoop(lp *loopState, breakTarget, continueTarget int) {
	fs.loops = fs.loops[:len(fs.loops)-1]
	fix := func(at, target int) {
		if lp.captured {
			*fs.code.At(at) = vm.Instruction{Op: vm.OpClose, A: uint8(lp.bodyBase), Line: fs.code.At(at).Line}
		}
		fs.patch(at+1, target)
	}
	for _, at := range lp.breaks {
		fix(at, breakTarget)
	}
	for _, at := range lp.continues {
		fix(at, continueTarget)
	}
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (fs *funcState) emit(ins vm.Instruction, line int) int {
	ins.Line = int32(line)
	return fs.code.Emit(ins)
}

// patch points the jump at index at to target and blocks static type proofs
// from looking across the landing point.
func (fs *funcState) patch(at, target int) {
	fs.code.PatchJump(at, target)
	if target > fs.proven {
		fs.proven = target
	}
}

// label returns the index of the next instruction as a jump target. Static
// type proofs do not look across it.
func (fs *funcState) label() int {
	n := fs.code.Len()
	if n > fs.proven {
		fs.proven = n
	}
	return n
}

// provenKind returns the static kind of reg if the last instruction loaded a
// literal into it.
func (fs *funcState) provenKind(reg int) (vm.Kind, bool) {
	n := fs.code.Len()
	if n == 0 || n-1 < fs.proven {
		return 0, false
	}
	ins := fs.code.At(n - 1)
	if int(ins.A) != reg {
		return 0, false
	}
	switch ins.Op {
	case vm.OpLoadNull:
		return vm.KindNull, true
	case vm.OpLoadTrue, vm.OpLoadFalse:
		return vm.KindBool, true
	case vm.OpLoadInt:
		return vm.KindInt, true
	case vm.OpLoadStr:
		return vm.KindString, true
	case vm.OpLoadConst:
		return fs.literals[ins.K].Kind(), true
	case vm.OpNewTable:
		return vm.KindTable, true
	case vm.OpNewArray:
		return vm.KindArray, true
	case vm.OpClosure:
		return vm.KindFunction, true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Literal pool
// ---------------------------------------------------------------------------

func (fs *funcState) literal(v vm.Value) int {
	var key literalKey
	switch v.Kind() {
	case vm.KindInt:
		key = literalKey{kind: vm.KindInt, i: v.AsInt()}
	case vm.KindFloat:
		key = literalKey{kind: vm.KindFloat, f: math.Float64bits(v.AsFloat())}
	case vm.KindString:
		key = literalKey{kind: vm.KindString, s: v.AsString()}
	default:
		fs.literals = append(fs.literals, v)
		return len(fs.literals) - 1
	}
	if i, ok := fs.litIndex[key]; ok {
		return i
	}
	fs.literals = append(fs.literals, v)
	fs.litIndex[key] = len(fs.literals) - 1
	return len(fs.literals) - 1
}

// typeWords interns the [custom, mask] pair read by CHKCUSTOM.
func (fs *funcState) typeWords(spec typeSpec) int {
	key := literalKey{kind: vm.KindArray, i: int64(spec.custom), f: uint64(spec.mask)}
	if i, ok := fs.litIndex[key]; ok {
		return i
	}
	words := vm.ArrayValue(vm.NewArray(vm.IntValue(int64(spec.custom)), vm.IntValue(int64(spec.mask))))
	fs.literals = append(fs.literals, words)
	fs.litIndex[key] = len(fs.literals) - 1
	return len(fs.literals) - 1
}

// ---------------------------------------------------------------------------
// Finalization
// ---------------------------------------------------------------------------

func (fs *funcState) displayName() string {
	if fs.name == "" {
		return "<anonymous>"
	}
	return fs.name
}

// finish turns the state into an immutable prototype.
func (fs *funcState) finish(source string) *vm.FunctionProto {
	fs.dropLocals(0)
	return &vm.FunctionProto{
		Name:     fs.name,
		Source:   source,
		Code:     fs.code.Instructions(),
		Literals: fs.literals,
		Params:   fs.params,
		Locals:   fs.localInfos,
		Captures: fs.captures,
		Children: fs.children,
		MaxStack: fs.maxStack,
		Line:     fs.line,
	}
}
