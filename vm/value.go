package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the primitive type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTable
	KindArray
	KindFunction
	KindClass
	KindInstance
	KindIterator
)

var kindNames = [...]string{
	KindNull:     "null",
	KindBool:     "bool",
	KindInt:      "int",
	KindFloat:    "float",
	KindString:   "string",
	KindTable:    "table",
	KindArray:    "array",
	KindFunction: "function",
	KindClass:    "class",
	KindInstance: "instance",
	KindIterator: "iterator",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a tagged runtime value. Scalars live in bits; strings and heap
// objects live in obj.
type Value struct {
	kind Kind
	bits uint64
	obj  any
}

// Null is the null value.
var Null = Value{kind: KindNull}

// Constructors

func BoolValue(b bool) Value {
	if b {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

func IntValue(i int64) Value { return Value{kind: KindInt, bits: uint64(i)} }

func FloatValue(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

func StringValue(s string) Value { return Value{kind: KindString, obj: s} }

func TableValue(t *Table) Value { return Value{kind: KindTable, obj: t} }

func ArrayValue(a *Array) Value { return Value{kind: KindArray, obj: a} }

func ClosureValue(c *Closure) Value { return Value{kind: KindFunction, obj: c} }

func NativeValue(n *Native) Value { return Value{kind: KindFunction, obj: n} }

func ClassValue(c *Class) Value { return Value{kind: KindClass, obj: c} }

func InstanceValue(i *Instance) Value { return Value{kind: KindInstance, obj: i} }

func iteratorValue(it *Iterator) Value { return Value{kind: KindIterator, obj: it} }

// NewNative wraps a Go function as a callable value.
func NewNative(name string, fn NativeFunc) Value {
	return NativeValue(&Native{Name: name, Fn: fn})
}

// Accessors

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }
func (v Value) AsBool() bool { return v.bits != 0 }
func (v Value) AsInt() int64 { return int64(v.bits) }
func (v Value) AsFloat() float64 { return math.Float64frombits(v.bits) }

// AsString returns the payload of a string value, or "" for other kinds.
func (v Value) AsString() string {
	s, _ := v.obj.(string)
	return s
}

func (v Value) AsTable() *Table { t, _ := v.obj.(*Table); return t }
func (v Value) AsArray() *Array { a, _ := v.obj.(*Array); return a }
func (v Value) AsClosure() *Closure { c, _ := v.obj.(*Closure); return c }
func (v Value) AsNative() *Native { n, _ := v.obj.(*Native); return n }
func (v Value) AsClass() *Class { c, _ := v.obj.(*Class); return c }
func (v Value) AsInstance() *Instance { i, _ := v.obj.(*Instance); return i }
func (v Value) asIterator() *Iterator { it, _ := v.obj.(*Iterator); return it }

// Number returns the value as float64 for mixed arithmetic.
func (v Value) Number() float64 {
	if v.kind == KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

// Truthy implements the language's truth test: null, false, 0, 0.0 and ""
// are false; everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool, KindInt:
		return v.bits != 0
	case KindFloat:
		return v.AsFloat() != 0
	case KindString:
		return v.AsString() != ""
	}
	return true
}

// Equal compares scalars by value and heap objects by identity.
func (v Value) Equal(o Value) bool {
	if v.IsNumber() && o.IsNumber() {
		if v.kind == KindInt && o.kind == KindInt {
			return v.AsInt() == o.AsInt()
		}
		return v.Number() == o.Number()
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.bits == o.bits
	case KindString:
		return v.AsString() == o.AsString()
	}
	return v.obj == o.obj
}

// TypeName returns the name reported by typeof.
func (v Value) TypeName() string {
	switch v.kind {
	case KindClass:
		return "class"
	case KindInstance:
		return v.AsInstance().Class.Name
	}
	return v.kind.String()
}

// String renders the value for printing.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.AsInt(), 10)
	case KindFloat:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case KindString:
		return v.AsString()
	case KindTable:
		return v.AsTable().String()
	case KindArray:
		parts := make([]string, 0, v.AsArray().Len())
		for _, e := range v.AsArray().Elems {
			parts = append(parts, e.repr())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindFunction:
		if c := v.AsClosure(); c != nil {
			return fmt.Sprintf("function %s", c.Proto.Name)
		}
		return fmt.Sprintf("native %s", v.AsNative().Name)
	case KindClass:
		return fmt.Sprintf("class %s", v.AsClass().Name)
	case KindInstance:
		return fmt.Sprintf("instance of %s", v.AsInstance().Class.Name)
	case KindIterator:
		return "iterator"
	}
	return "?"
}

// repr is String with strings quoted, for container rendering.
func (v Value) repr() string {
	if v.kind == KindString {
		return strconv.Quote(v.AsString())
	}
	return v.String()
}

// ---------------------------------------------------------------------------
// Type masks
// ---------------------------------------------------------------------------

// TypeMask is a bitset of permitted primitive kinds.
type TypeMask uint16

const (
	MaskNull     TypeMask = 1 << KindNull
	MaskBool     TypeMask = 1 << KindBool
	MaskInt      TypeMask = 1 << KindInt
	MaskFloat    TypeMask = 1 << KindFloat
	MaskString   TypeMask = 1 << KindString
	MaskTable    TypeMask = 1 << KindTable
	MaskArray    TypeMask = 1 << KindArray
	MaskFunction TypeMask = 1 << KindFunction
	MaskClass    TypeMask = 1 << KindClass
	MaskInstance TypeMask = 1 << KindInstance

	MaskNumber = MaskInt | MaskFloat
)

// Has reports whether kind k is permitted.
func (m TypeMask) Has(k Kind) bool {
	return m&(1<<k) != 0
}

func (m TypeMask) String() string {
	if m == 0 {
		return "any"
	}
	var names []string
	for k := KindNull; k <= KindIterator; k++ {
		if m.Has(k) {
			names = append(names, k.String())
		}
	}
	return strings.Join(names, "|")
}

// ---------------------------------------------------------------------------
// Hashable keys
// ---------------------------------------------------------------------------

// tableKey is the map key form of a Value. Integral floats fold onto ints so
// t[1] and t[1.0] address the same slot.
type tableKey struct {
	kind Kind
	bits uint64
	str  string
	obj  any
}

func keyOf(v Value) tableKey {
	switch v.kind {
	case KindString:
		return tableKey{kind: KindString, str: v.AsString()}
	case KindFloat:
		f := v.AsFloat()
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return tableKey{kind: KindInt, bits: uint64(int64(f))}
		}
		return tableKey{kind: KindFloat, bits: v.bits}
	case KindNull, KindBool, KindInt:
		return tableKey{kind: v.kind, bits: v.bits}
	}
	return tableKey{kind: v.kind, obj: v.obj}
}
