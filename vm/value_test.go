package vm

import (
	"testing"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Null, false},
		{BoolValue(false), false},
		{BoolValue(true), true},
		{IntValue(0), false},
		{IntValue(-3), true},
		{FloatValue(0), false},
		{FloatValue(0.1), true},
		{StringValue(""), false},
		{StringValue("x"), true},
		{TableValue(NewTable()), true},
		{ArrayValue(NewArray()), true},
	}
	for _, tt := range tests {
		if got := tt.v.Truthy(); got != tt.want {
			t.Errorf("%s (%s): Truthy = %v, want %v", tt.v, tt.v.Kind(), got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	tbl := TableValue(NewTable())
	tests := []struct {
		a, b Value
		want bool
	}{
		{IntValue(1), IntValue(1), true},
		{IntValue(1), FloatValue(1), true},
		{FloatValue(1.5), FloatValue(1.5), true},
		{IntValue(1), StringValue("1"), false},
		{StringValue("a"), StringValue("a"), true},
		{Null, Null, true},
		{Null, BoolValue(false), false},
		{tbl, tbl, true},
		{tbl, TableValue(NewTable()), false},
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("%s == %s: got %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestValueString(t *testing.T) {
	arr := NewArray(IntValue(1), StringValue("two"), Null)
	tests := []struct {
		v    Value
		want string
	}{
		{Null, "null"},
		{BoolValue(true), "true"},
		{IntValue(-42), "-42"},
		{FloatValue(2.5), "2.5"},
		{StringValue("plain"), "plain"},
		{ArrayValue(arr), `[1, "two", null]`},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTypeMask(t *testing.T) {
	m := MaskInt | MaskNull
	if !m.Has(KindInt) || !m.Has(KindNull) || m.Has(KindFloat) {
		t.Errorf("mask %s membership wrong", m)
	}
	if got := m.String(); got != "null|int" {
		t.Errorf("String() = %q, want %q", got, "null|int")
	}
	if got := TypeMask(0).String(); got != "any" {
		t.Errorf("empty mask = %q, want any", got)
	}
	if !MaskNumber.Has(KindFloat) {
		t.Error("number does not include float")
	}
}

func TestTableKeysFoldIntegralFloats(t *testing.T) {
	tbl := NewTable()
	tbl.Set(IntValue(1), StringValue("one"))
	tbl.Set(FloatValue(1.0), StringValue("uno"))
	tbl.SetString("k", IntValue(2))
	if tbl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tbl.Len())
	}
	if v, _ := tbl.Get(IntValue(1)); v.AsString() != "uno" {
		t.Errorf("t[1] = %s, want uno", v)
	}
	keys := tbl.Keys()
	if keys[0].AsInt() != 1 || keys[1].AsString() != "k" {
		t.Errorf("keys not in insertion order: %v", keys)
	}
	if !tbl.Delete(StringValue("k")) || tbl.Len() != 1 {
		t.Error("Delete failed")
	}
}

func TestClassLookupAndCustomMask(t *testing.T) {
	base := NewClass("Base", nil, 0, false)
	base.AddMember(&Member{Name: "m", Value: IntValue(1)})
	derived := NewClass("Derived", base, 3, false)
	derived.AddMember(&Member{Name: "f", Value: IntValue(2)})

	if m, owner := derived.Lookup("m"); m == nil || owner != base {
		t.Errorf("inherited lookup = %v from %v", m, owner)
	}
	if !derived.IsA(base) || base.IsA(derived) {
		t.Error("IsA relation wrong")
	}
	if got := derived.customMask(); got != 1|1<<3 {
		t.Errorf("customMask = %b, want %b", got, 1|1<<3)
	}
	inst := newInstance(derived)
	if v, ok := inst.Field("m"); !ok || v.AsInt() != 1 {
		t.Errorf("inherited field = %v %v", v, ok)
	}
}

func TestCellCloses(t *testing.T) {
	regs := []Value{Null, IntValue(1)}
	c := newOpenCell(1, &regs[1])
	regs[1] = IntValue(5)
	if c.Get().AsInt() != 5 || !c.IsOpen() {
		t.Fatal("open cell does not alias its register")
	}
	c.close()
	regs[1] = IntValue(9)
	if c.Get().AsInt() != 5 || c.IsOpen() {
		t.Errorf("closed cell = %s, want 5", c.Get())
	}
	c.Set(IntValue(6))
	if c.Get().AsInt() != 6 || regs[1].AsInt() != 9 {
		t.Error("closed cell still writes the register")
	}
}
