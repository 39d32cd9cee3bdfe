package vm

import (
	"bytes"
	"errors"
	"testing"
)

// proto builds a prototype for hand-assembled code.
func proto(name string, maxStack int, code ...Instruction) *FunctionProto {
	return &FunctionProto{Name: name, Source: "vm_test", Code: code, MaxStack: maxStack}
}

func mustRun(t *testing.T, machine *VM, p *FunctionProto) Value {
	t.Helper()
	v, err := machine.Run(p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return v
}

func TestRunArithmetic(t *testing.T) {
	p := proto("main", 4,
		Instruction{Op: OpLoadInt, A: 1, K: 2},
		Instruction{Op: OpLoadInt, A: 2, K: 3},
		Instruction{Op: OpLoadInt, A: 3, K: 4},
		Instruction{Op: OpMul, A: 2, B: 2, C: 3},
		Instruction{Op: OpAdd, A: 1, B: 1, C: 2},
		Instruction{Op: OpReturn, A: 1},
	)
	if v := mustRun(t, New(), p); v.AsInt() != 14 {
		t.Errorf("result = %s, want 14", v)
	}
}

func TestArithPromotion(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b Value
		want Value
	}{
		{OpAdd, IntValue(1), FloatValue(0.5), FloatValue(1.5)},
		{OpDiv, IntValue(7), IntValue(2), IntValue(3)},
		{OpDiv, FloatValue(7), IntValue(2), FloatValue(3.5)},
		{OpMod, IntValue(-7), IntValue(3), IntValue(-1)},
		{OpPow, IntValue(3), IntValue(4), IntValue(81)},
		{OpPow, IntValue(2), IntValue(-1), FloatValue(0.5)},
		{OpAdd, StringValue("n="), IntValue(3), StringValue("n=3")},
		{OpShl, IntValue(1), IntValue(10), IntValue(1024)},
	}
	for _, tt := range tests {
		got, err := arith(tt.op, tt.a, tt.b)
		if err != nil {
			t.Errorf("%s %s %s: %v", tt.a, tt.op, tt.b, err)
			continue
		}
		if got.Kind() != tt.want.Kind() || !got.Equal(tt.want) {
			t.Errorf("%s %s %s = %s (%s), want %s (%s)", tt.a, tt.op, tt.b, got, got.Kind(), tt.want, tt.want.Kind())
		}
	}
	if _, err := arith(OpDiv, IntValue(1), IntValue(0)); !errors.Is(err, ErrDivideByZero) {
		t.Errorf("1/0: err = %v", err)
	}
	if _, err := arith(OpSub, StringValue("a"), IntValue(1)); !errors.Is(err, ErrBadOperand) {
		t.Errorf("string - int: err = %v", err)
	}
	if _, err := arith(OpBitAnd, FloatValue(1), IntValue(1)); !errors.Is(err, ErrBadOperand) {
		t.Errorf("float & int: err = %v", err)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b Value
		want bool
	}{
		{OpLt, IntValue(1), IntValue(2), true},
		{OpGe, FloatValue(2), IntValue(2), true},
		{OpGt, StringValue("b"), StringValue("a"), true},
		{OpEq, IntValue(2), FloatValue(2), true},
		{OpNe, Null, BoolValue(false), true},
	}
	for _, tt := range tests {
		got, err := compare(tt.op, tt.a, tt.b)
		if err != nil || got.AsBool() != tt.want {
			t.Errorf("%s %s %s = %v, %v", tt.a, tt.op, tt.b, got, err)
		}
	}
	if _, err := compare(OpLt, IntValue(1), StringValue("1")); !errors.Is(err, ErrBadOperand) {
		t.Errorf("int < string: err = %v", err)
	}
}

func TestRunJumps(t *testing.T) {
	// r1 = 0; while (r1 < 5) r1++; return r1
	p := proto("loop", 3,
		Instruction{Op: OpLoadInt, A: 1, K: 0},
		Instruction{Op: OpLoadInt, A: 2, K: 5},
		Instruction{Op: OpLt, A: 2, B: 1, C: 2},
		Instruction{Op: OpJumpIfFalse, A: 2, K: 3},
		Instruction{Op: OpInc, A: 1},
		Instruction{Op: OpJump, K: -4},
		Instruction{Op: OpReturn, A: 1},
	)
	if v := mustRun(t, New(), p); v.AsInt() != 5 {
		t.Errorf("result = %s, want 5", v)
	}
}

func TestRunGlobalsAndPrint(t *testing.T) {
	machine := New()
	var out bytes.Buffer
	machine.Stdout = &out
	machine.SetGlobal("answer", IntValue(42))

	p := proto("main", 5,
		Instruction{Op: OpLoadStr, A: 1, S: "print"},
		Instruction{Op: OpGet, A: 1, B: 0, C: 1},
		Instruction{Op: OpLoadStr, A: 2, S: "answer"},
		Instruction{Op: OpGet, A: 2, B: 0, C: 2},
		Instruction{Op: OpLoadStr, A: 3, S: "is"},
		Instruction{Op: OpCall, A: 1, B: NoReg, C: 2},
		Instruction{Op: OpReturnNull},
	)
	mustRun(t, machine, p)
	if got := out.String(); got != "42 is\n" {
		t.Errorf("output = %q", got)
	}
}

func TestGetFallsBackToRootFromMethods(t *testing.T) {
	// A function run with a table as this still sees globals through GET r0.
	machine := New()
	machine.SetGlobal("g", IntValue(7))
	fn := proto("f", 2,
		Instruction{Op: OpLoadStr, A: 1, S: "g"},
		Instruction{Op: OpGet, A: 1, B: 0, C: 1},
		Instruction{Op: OpReturn, A: 1},
	)
	v, err := machine.Call(ClosureValue(&Closure{Proto: fn}), TableValue(NewTable()))
	if err != nil || v.AsInt() != 7 {
		t.Errorf("result = %s, %v", v, err)
	}

	// Any other register gets no fallback.
	fn2 := proto("f2", 3,
		Instruction{Op: OpNewTable, A: 1},
		Instruction{Op: OpLoadStr, A: 2, S: "g"},
		Instruction{Op: OpGet, A: 2, B: 1, C: 2},
		Instruction{Op: OpReturn, A: 2},
	)
	if _, err := machine.Run(fn2); !errors.Is(err, ErrMissingMember) {
		t.Errorf("err = %v, want missing member", err)
	}
}

func TestClosuresShareCells(t *testing.T) {
	// counter: local r1 = 0; two closures capture it; one writes through a
	// native, the other reads. After CLOSE the cell keeps the value.
	reader := proto("read", 2,
		Instruction{Op: OpGetCapture, A: 1, B: 0},
		Instruction{Op: OpReturn, A: 1},
	)
	reader.Captures = []CaptureInfo{{Name: "n", FromParentLocal: true, Index: 1}}

	main := proto("main", 4,
		Instruction{Op: OpLoadInt, A: 1, K: 1},
		Instruction{Op: OpClosure, A: 2, B: NoReg, K: 0},
		Instruction{Op: OpClosure, A: 3, B: NoReg, K: 0},
		Instruction{Op: OpLoadInt, A: 1, K: 5},
		Instruction{Op: OpClose, A: 1},
		Instruction{Op: OpLoadInt, A: 1, K: 9},
		Instruction{Op: OpNewArray, A: 0},
		Instruction{Op: OpArrayPush, A: 0, B: 2},
		Instruction{Op: OpArrayPush, A: 0, B: 3},
		Instruction{Op: OpReturn, A: 0},
	)
	main.Children = []*FunctionProto{reader}

	machine := New()
	v := mustRun(t, machine, main)
	fns := v.AsArray().Elems
	a := fns[0].AsClosure()
	b := fns[1].AsClosure()
	if a.Captures[0] != b.Captures[0] {
		t.Fatal("closures over one local got distinct cells")
	}
	if a.Captures[0].IsOpen() {
		t.Error("cell still open after CLOSE")
	}
	got, err := machine.Call(fns[0], Null)
	if err != nil || got.AsInt() != 5 {
		t.Errorf("read() = %s, %v; want the value at CLOSE (5)", got, err)
	}
}

func TestEnvClosureBindsThis(t *testing.T) {
	inner := proto("getn", 2,
		Instruction{Op: OpLoadStr, A: 1, S: "n"},
		Instruction{Op: OpGet, A: 1, B: 0, C: 1},
		Instruction{Op: OpReturn, A: 1},
	)
	env := NewTable()
	env.SetString("n", IntValue(3))
	cl := &Closure{Proto: inner, Env: TableValue(env), HasEnv: true}
	v, err := New().Call(ClosureValue(cl), TableValue(NewTable()))
	if err != nil || v.AsInt() != 3 {
		t.Errorf("result = %s, %v", v, err)
	}
}

func TestParamChecks(t *testing.T) {
	fn := proto("f", 3, Instruction{Op: OpReturn, A: 1})
	fn.Params = []ParamInfo{
		{Name: "a", Mask: MaskInt},
		{Name: "b", HasDefault: true},
	}
	machine := New()
	callee := ClosureValue(&Closure{Proto: fn})

	if v, err := machine.Call(callee, Null, IntValue(1)); err != nil || v.AsInt() != 1 {
		t.Errorf("f(1) = %s, %v", v, err)
	}
	_, err := machine.Call(callee, Null)
	if !errors.Is(err, ErrInvalidParamCount) {
		t.Errorf("f(): err = %v", err)
	}
	_, err = machine.Call(callee, Null, IntValue(1), IntValue(2), IntValue(3))
	if !errors.Is(err, ErrInvalidParamCount) {
		t.Errorf("f(1, 2, 3): err = %v", err)
	}
	_, err = machine.Call(callee, Null, StringValue("x"))
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Kind != ErrInvalidParamType {
		t.Fatalf("f(\"x\"): err = %v", err)
	}
	if rerr.Function != "f" {
		t.Errorf("error function = %q", rerr.Function)
	}
}

func TestJumpIfArg(t *testing.T) {
	// function(a, b = 10) { return b; }
	fn := proto("f", 3,
		Instruction{Op: OpJumpIfArg, A: 2, K: 2},
		Instruction{Op: OpLoadInt, A: 2, K: 10},
		Instruction{Op: OpReturn, A: 2},
	)
	fn.Params = []ParamInfo{{Name: "a"}, {Name: "b", HasDefault: true}}
	machine := New()
	callee := ClosureValue(&Closure{Proto: fn})
	if v, _ := machine.Call(callee, Null, IntValue(1)); v.AsInt() != 10 {
		t.Errorf("default = %s, want 10", v)
	}
	if v, _ := machine.Call(callee, Null, IntValue(1), IntValue(2)); v.AsInt() != 2 {
		t.Errorf("passed = %s, want 2", v)
	}
}

func TestCheckType(t *testing.T) {
	p := proto("main", 2,
		Instruction{Op: OpLoadStr, A: 1, S: "s"},
		Instruction{Op: OpCheckType, A: 1, K: int32(MaskInt | MaskFloat)},
		Instruction{Op: OpReturnNull},
	)
	p.Locals = []LocalInfo{{Name: "v", Slot: 1, StartPC: 1, EndPC: 3}}
	_, err := New().Run(p)
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Kind != ErrTypeMismatch {
		t.Fatalf("err = %v", err)
	}
	if rerr.Message != "v: expected int|float, got string" {
		t.Errorf("message = %q", rerr.Message)
	}
}

func TestCheckCustom(t *testing.T) {
	words := ArrayValue(NewArray(IntValue(1<<2), IntValue(int64(MaskNull))))
	run := func(v Value) error {
		p := proto("main", 2,
			Instruction{Op: OpMove, A: 1, B: 0},
			Instruction{Op: OpCheckCustom, A: 1, K: 0},
			Instruction{Op: OpReturnNull},
		)
		p.Literals = []Value{words}
		_, err := New().Call(ClosureValue(&Closure{Proto: p}), v)
		return err
	}
	base := NewClass("Base", nil, 2, false)
	derived := NewClass("Derived", base, 5, false)
	other := NewClass("Other", nil, 1, false)

	if err := run(InstanceValue(newInstance(derived))); err != nil {
		t.Errorf("derived instance: %v", err)
	}
	if err := run(Null); err != nil {
		t.Errorf("null with null in mask: %v", err)
	}
	if err := run(InstanceValue(newInstance(other))); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("unrelated instance: err = %v", err)
	}
	if err := run(IntValue(1)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("int: err = %v", err)
	}
}

func TestConstructAndMembers(t *testing.T) {
	machine := New()
	cls := NewClass("P", nil, 0, true)
	cls.AddMember(&Member{Name: "x", Value: IntValue(1)})
	cls.AddMember(&Member{Name: "k", Value: IntValue(2), Const: true})
	cls.AddMember(&Member{Name: "count", Value: IntValue(0), Static: true})

	v, err := machine.Call(ClassValue(cls), Null)
	if err != nil {
		t.Fatal(err)
	}
	if err := machine.set(v, StringValue("x"), IntValue(5)); err != nil {
		t.Errorf("set x: %v", err)
	}
	if err := machine.set(v, StringValue("k"), IntValue(5)); !errors.Is(err, ErrConstAssign) {
		t.Errorf("set const: err = %v", err)
	}
	if err := machine.set(v, StringValue("y"), IntValue(5)); !errors.Is(err, ErrMissingMember) {
		t.Errorf("new struct field: err = %v", err)
	}
	if _, ok := v.AsInstance().Field("count"); ok {
		t.Error("static member copied into the instance")
	}
	if _, err := machine.Call(ClassValue(cls), Null, IntValue(1)); !errors.Is(err, ErrInvalidParamCount) {
		t.Errorf("arguments without a constructor: err = %v", err)
	}
	if typeOf, _ := unary(OpTypeOf, v); typeOf.AsString() != "P" {
		t.Errorf("typeof = %s, want P", typeOf)
	}
}

func TestBuiltinMethods(t *testing.T) {
	machine := New()
	call := func(recv Value, name string, args ...Value) Value {
		t.Helper()
		fn, err := machine.get(recv, StringValue(name))
		if err != nil {
			t.Fatalf("%s.%s: %v", recv.Kind(), name, err)
		}
		v, err := machine.Call(fn, recv, args...)
		if err != nil {
			t.Fatalf("%s.%s(): %v", recv.Kind(), name, err)
		}
		return v
	}

	arr := ArrayValue(NewArray(IntValue(1)))
	call(arr, "push", IntValue(2))
	if n := call(arr, "size"); n.AsInt() != 2 {
		t.Errorf("size = %s", n)
	}
	if !call(arr, "contains", IntValue(2)).AsBool() {
		t.Error("contains(2) = false")
	}
	if v := call(arr, "pop"); v.AsInt() != 2 {
		t.Errorf("pop = %s", v)
	}

	s := StringValue("hello")
	if v := call(s, "slice", IntValue(1), IntValue(3)); v.AsString() != "el" {
		t.Errorf("slice = %s", v)
	}
	if v := call(s, "upper"); v.AsString() != "HELLO" {
		t.Errorf("upper = %s", v)
	}

	tbl := NewTable()
	tbl.SetString("a", IntValue(1))
	tbl.SetString("b", IntValue(2))
	it := call(TableValue(tbl), "iterator")
	var keys string
	for !call(it, "end").AsBool() {
		keys += call(it, "get_key").AsString()
		call(it, "next")
	}
	if keys != "ab" {
		t.Errorf("iterated keys %q", keys)
	}

	// A table's own member shadows the built-in method.
	tbl.SetString("size", IntValue(99))
	if v, _ := machine.get(TableValue(tbl), StringValue("size")); v.AsInt() != 99 {
		t.Errorf("shadowed size = %s", v)
	}
}

func TestRuntimeErrorLocation(t *testing.T) {
	p := proto("main", 3,
		Instruction{Op: OpLoadInt, A: 1, K: 1, Line: 3},
		Instruction{Op: OpLoadInt, A: 2, K: 0, Line: 4},
		Instruction{Op: OpDiv, A: 1, B: 1, C: 2, Line: 5},
		Instruction{Op: OpReturn, A: 1, Line: 5},
	)
	_, err := New().Run(p)
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v", err)
	}
	if rerr.Line != 5 || rerr.Function != "main" || rerr.Source != "vm_test" {
		t.Errorf("location = %s:%d in %s", rerr.Source, rerr.Line, rerr.Function)
	}
	if got := rerr.Error(); got != "vm_test:5: in main: division by zero: integer division by zero" {
		t.Errorf("Error() = %q", got)
	}
}

func TestNotCallableAndStackOverflow(t *testing.T) {
	machine := New()
	if _, err := machine.Call(IntValue(1), Null); !errors.Is(err, ErrNotCallable) {
		t.Errorf("calling an int: err = %v", err)
	}

	// function f() { return f(); } with f as a global
	rec := proto("f", 2,
		Instruction{Op: OpLoadStr, A: 1, S: "f"},
		Instruction{Op: OpGet, A: 1, B: 0, C: 1},
		Instruction{Op: OpCall, A: 1, B: NoReg, C: 0},
		Instruction{Op: OpReturn, A: 1},
	)
	machine.MaxDepth = 20
	machine.SetGlobal("f", ClosureValue(&Closure{Proto: rec}))
	fn, _ := machine.Global("f")
	if _, err := machine.Call(fn, TableValue(machine.Root())); !errors.Is(err, ErrStackOverflow) {
		t.Errorf("unbounded recursion: err = %v", err)
	}
}
