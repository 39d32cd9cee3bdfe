package compiler

import (
	"testing"

	"github.com/chazu/tern/vm"
)

func countOps(code []vm.Instruction, op vm.Opcode) int {
	n := 0
	for _, ins := range code {
		if ins.Op == op {
			n++
		}
	}
	return n
}

func TestTargetStackTemporaries(t *testing.T) {
	fs := newFuncState(nil, "t", 1, 10)
	a := fs.newTarget()
	b := fs.newTarget()
	if a != 1 || b != 2 {
		t.Fatalf("targets = %d, %d, want 1, 2", a, b)
	}
	if fs.maxStack != 3 {
		t.Errorf("maxStack = %d, want 3", fs.maxStack)
	}
	fs.popTarget()
	fs.popTarget()
	if fs.stackSize != 1 || len(fs.targets) != 0 {
		t.Errorf("after pops: stackSize %d, %d targets", fs.stackSize, len(fs.targets))
	}
}

func TestTargetStackLocalsSurvivePop(t *testing.T) {
	fs := newFuncState(nil, "t", 1, 10)
	fs.newTarget()
	l := fs.pushLocal("x", typeSpec{}, false)
	fs.pushTarget(l.slot)
	fs.popTarget()
	if fs.stackSize != 2 {
		t.Errorf("popping a local's target freed it: stackSize %d", fs.stackSize)
	}
	if got := fs.newTarget(); got != 2 {
		t.Errorf("next temporary = %d, want 2", got)
	}
}

func TestTargetStackOverflow(t *testing.T) {
	fs := newFuncState(nil, "small", 1, 3)
	fs.newTarget()
	fs.newTarget()
	defer func() {
		r := recover()
		a, ok := r.(abort)
		if !ok {
			t.Fatalf("recovered %v, want abort", r)
		}
		if a.err.Kind != ErrSemantic {
			t.Errorf("kind = %v, want semantic", a.err.Kind)
		}
	}()
	fs.newTarget()
}

func TestScopeRollbackWithoutCapture(t *testing.T) {
	fs := newFuncState(nil, "t", 1, 10)
	sc := fs.openScope()
	fs.newTarget()
	fs.pushLocal("a", typeSpec{}, false)
	fs.newTarget()
	fs.pushLocal("b", typeSpec{}, false)
	fs.closeScope(sc, 1)

	if fs.stackSize != 1 || len(fs.locals) != 0 {
		t.Errorf("after close: stackSize %d, %d locals", fs.stackSize, len(fs.locals))
	}
	if n := countOps(fs.code.Instructions(), vm.OpClose); n != 0 {
		t.Errorf("emitted %d CLOSE without captures", n)
	}
	if len(fs.localInfos) != 2 {
		t.Errorf("debug records = %d, want 2", len(fs.localInfos))
	}
}

func TestScopeRollbackWithCapture(t *testing.T) {
	parent := newFuncState(nil, "outer", 1, 10)
	parent.newTarget()
	parent.pushLocal("keep", typeSpec{}, false)

	sc := parent.openScope()
	parent.newTarget()
	parent.pushLocal("a", typeSpec{}, false)

	child := newFuncState(parent, "inner", 2, 10)
	if _, ok := child.getCapture("a"); !ok {
		t.Fatal("capture of a failed")
	}
	parent.closeScope(sc, 3)

	code := parent.code.Instructions()
	if n := countOps(code, vm.OpClose); n != 1 {
		t.Fatalf("emitted %d CLOSE, want 1", n)
	}
	if code[len(code)-1].A != 2 {
		t.Errorf("CLOSE A = %d, want 2", code[len(code)-1].A)
	}
	if parent.outers != 0 {
		t.Errorf("outers = %d after close, want 0", parent.outers)
	}
}

func TestCaptureOfOuterBlockClosesInOuterBlock(t *testing.T) {
	parent := newFuncState(nil, "outer", 1, 10)
	outer := parent.openScope()
	parent.newTarget()
	parent.pushLocal("a", typeSpec{}, false)
	inner := parent.openScope()
	parent.newTarget()
	parent.pushLocal("b", typeSpec{}, false)

	child := newFuncState(parent, "f", 2, 10)
	child.getCapture("a")

	parent.closeScope(inner, 3)
	if n := countOps(parent.code.Instructions(), vm.OpClose); n != 0 {
		t.Fatalf("inner block closed %d times; it dropped no captured local", n)
	}
	parent.closeScope(outer, 4)
	if n := countOps(parent.code.Instructions(), vm.OpClose); n != 1 {
		t.Errorf("outer block emitted %d CLOSE, want 1", n)
	}
}

func TestCaptureDedup(t *testing.T) {
	parent := newFuncState(nil, "outer", 1, 10)
	parent.newTarget()
	parent.pushLocal("x", typeSpec{}, false)
	child := newFuncState(parent, "inner", 1, 10)

	i1, _ := child.getCapture("x")
	i2, _ := child.getCapture("x")
	if i1 != i2 || len(child.captures) != 1 {
		t.Errorf("captures = %v, indices %d %d", child.captures, i1, i2)
	}
	if got := child.captures[0]; !got.FromParentLocal || got.Index != 1 {
		t.Errorf("capture = %+v, want parent local slot 1", got)
	}
}

func TestCaptureThroughIntermediateFunction(t *testing.T) {
	top := newFuncState(nil, "top", 1, 10)
	top.newTarget()
	top.pushLocal("x", typeSpec{}, false)
	mid := newFuncState(top, "mid", 1, 10)
	leaf := newFuncState(mid, "leaf", 1, 10)

	idx, ok := leaf.getCapture("x")
	if !ok || idx != 0 {
		t.Fatalf("leaf capture = %d %v", idx, ok)
	}
	if leaf.captures[0].FromParentLocal {
		t.Error("leaf should capture through mid's capture list")
	}
	if len(mid.captures) != 1 || !mid.captures[0].FromParentLocal {
		t.Errorf("mid captures = %+v", mid.captures)
	}
	if _, ok := leaf.getCapture("nope"); ok {
		t.Error("unknown name resolved as a capture")
	}
}

func TestLiteralPoolDedup(t *testing.T) {
	fs := newFuncState(nil, "t", 1, 10)
	a := fs.literal(vm.StringValue("hello"))
	b := fs.literal(vm.IntValue(1 << 40))
	c := fs.literal(vm.StringValue("hello"))
	d := fs.literal(vm.FloatValue(1.5))
	e := fs.literal(vm.FloatValue(1.5))
	if a != c || d != e || len(fs.literals) != 3 {
		t.Errorf("pool = %v (indices %d %d %d %d %d)", fs.literals, a, b, c, d, e)
	}
}

func TestProvenKindStopsAtJumpTargets(t *testing.T) {
	fs := newFuncState(nil, "t", 1, 10)
	j := fs.emit(vm.Instruction{Op: vm.OpJumpIfFalse, A: 1}, 1)
	fs.emit(vm.Instruction{Op: vm.OpLoadInt, A: 2, K: 3}, 1)
	if k, ok := fs.provenKind(2); !ok || k != vm.KindInt {
		t.Fatalf("provenKind = %v %v, want int", k, ok)
	}
	fs.patch(j, fs.code.Len()-1)
	if _, ok := fs.provenKind(2); !ok {
		t.Error("a jump onto the load itself still runs the load")
	}
	fs.patch(j, fs.code.Len())
	if _, ok := fs.provenKind(2); ok {
		t.Error("a jump landing after the load must block the proof")
	}
	if _, ok := fs.provenKind(3); ok {
		t.Error("proof for a register the instruction did not load")
	}
}
