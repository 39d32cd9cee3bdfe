package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// arith applies a binary arithmetic or bitwise opcode. Int op int stays int;
// any float operand promotes the result to float.
func arith(op Opcode, a, b Value) (Value, error) {
	if op == OpAdd && (a.kind == KindString || b.kind == KindString) {
		return StringValue(a.String() + b.String()), nil
	}
	switch op {
	case OpShl, OpShr, OpBitAnd, OpBitOr, OpBitXor:
		return bitwise(op, a, b)
	}
	if !a.IsNumber() || !b.IsNumber() {
		return Null, newError(ErrBadOperand, "cannot apply %s to %s and %s", op, a.TypeName(), b.TypeName())
	}
	if a.kind == KindInt && b.kind == KindInt {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case OpAdd:
			return IntValue(x + y), nil
		case OpSub:
			return IntValue(x - y), nil
		case OpMul:
			return IntValue(x * y), nil
		case OpDiv:
			if y == 0 {
				return Null, newError(ErrDivideByZero, "integer division by zero")
			}
			return IntValue(x / y), nil
		case OpMod:
			if y == 0 {
				return Null, newError(ErrDivideByZero, "integer modulo by zero")
			}
			return IntValue(x % y), nil
		case OpPow:
			if y >= 0 {
				return IntValue(ipow(x, y)), nil
			}
			return FloatValue(math.Pow(float64(x), float64(y))), nil
		}
	}
	x, y := a.Number(), b.Number()
	switch op {
	case OpAdd:
		return FloatValue(x + y), nil
	case OpSub:
		return FloatValue(x - y), nil
	case OpMul:
		return FloatValue(x * y), nil
	case OpDiv:
		return FloatValue(x / y), nil
	case OpMod:
		return FloatValue(math.Mod(x, y)), nil
	case OpPow:
		return FloatValue(math.Pow(x, y)), nil
	}
	return Null, newError(ErrBadOperand, "unknown arithmetic opcode %s", op)
}

func ipow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func bitwise(op Opcode, a, b Value) (Value, error) {
	if a.kind != KindInt || b.kind != KindInt {
		return Null, newError(ErrBadOperand, "%s needs int operands, got %s and %s", op, a.TypeName(), b.TypeName())
	}
	x, y := a.AsInt(), b.AsInt()
	switch op {
	case OpShl:
		return IntValue(x << uint64(y&63)), nil
	case OpShr:
		return IntValue(x >> uint64(y&63)), nil
	case OpBitAnd:
		return IntValue(x & y), nil
	case OpBitOr:
		return IntValue(x | y), nil
	case OpBitXor:
		return IntValue(x ^ y), nil
	}
	return Null, newError(ErrBadOperand, "unknown bitwise opcode %s", op)
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

func compare(op Opcode, a, b Value) (Value, error) {
	switch op {
	case OpEq:
		return BoolValue(a.Equal(b)), nil
	case OpNe:
		return BoolValue(!a.Equal(b)), nil
	}
	var c int
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		x, y := a.AsInt(), b.AsInt()
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	case a.IsNumber() && b.IsNumber():
		x, y := a.Number(), b.Number()
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	case a.kind == KindString && b.kind == KindString:
		c = strings.Compare(a.AsString(), b.AsString())
	default:
		return Null, newError(ErrBadOperand, "cannot compare %s with %s", a.TypeName(), b.TypeName())
	}
	switch op {
	case OpLt:
		return BoolValue(c < 0), nil
	case OpLe:
		return BoolValue(c <= 0), nil
	case OpGt:
		return BoolValue(c > 0), nil
	case OpGe:
		return BoolValue(c >= 0), nil
	}
	return Null, newError(ErrBadOperand, "unknown comparison opcode %s", op)
}

// ---------------------------------------------------------------------------
// Unary
// ---------------------------------------------------------------------------

func unary(op Opcode, v Value) (Value, error) {
	switch op {
	case OpNeg:
		switch v.kind {
		case KindInt:
			return IntValue(-v.AsInt()), nil
		case KindFloat:
			return FloatValue(-v.AsFloat()), nil
		}
		return Null, newError(ErrBadOperand, "cannot negate %s", v.TypeName())
	case OpNot:
		return BoolValue(!v.Truthy()), nil
	case OpBitNot:
		if v.kind != KindInt {
			return Null, newError(ErrBadOperand, "~ needs an int operand, got %s", v.TypeName())
		}
		return IntValue(^v.AsInt()), nil
	case OpTypeOf:
		return StringValue(v.TypeName()), nil
	}
	return Null, newError(ErrBadOperand, "unknown unary opcode %s", op)
}

func step(v Value, delta int64) (Value, error) {
	switch v.kind {
	case KindInt:
		return IntValue(v.AsInt() + delta), nil
	case KindFloat:
		return FloatValue(v.AsFloat() + float64(delta)), nil
	}
	return Null, newError(ErrBadOperand, "cannot increment %s", v.TypeName())
}
