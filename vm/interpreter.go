package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Frame: execution state for one function activation
// ---------------------------------------------------------------------------

type frame struct {
	closure *Closure
	proto   *FunctionProto
	regs    []Value
	argc    int
	open    []*Cell // cells aliasing registers of this frame
}

// cellFor returns the open cell for slot, creating it on first capture so
// that every closure capturing the same variable shares one cell.
func (f *frame) cellFor(slot int) *Cell {
	for _, c := range f.open {
		if c.slot == slot {
			return c
		}
	}
	c := newOpenCell(slot, &f.regs[slot])
	f.open = append(f.open, c)
	return c
}

// closeFrom closes every open cell whose slot is at or above from.
func (f *frame) closeFrom(from int) {
	kept := f.open[:0]
	for _, c := range f.open {
		if c.slot >= from {
			c.close()
			continue
		}
		kept = append(kept, c)
	}
	f.open = kept
}

// fail attaches the frame's location to a runtime error that has none yet.
func (f *frame) fail(err error, pc int) error {
	var rerr *RuntimeError
	if errors.As(err, &rerr) && rerr.Function == "" && rerr.Line == 0 {
		rerr.Function = f.proto.Name
		rerr.Source = f.proto.Source
		rerr.Line = f.proto.LineFor(pc)
	}
	return err
}

// ---------------------------------------------------------------------------
// Calling convention
// ---------------------------------------------------------------------------

func checkMask(v Value, mask TypeMask, custom uint64) bool {
	if mask == 0 && custom == 0 {
		return true
	}
	if mask.Has(v.kind) {
		return true
	}
	if custom != 0 && v.kind == KindInstance {
		return v.AsInstance().Class.customMask()&custom != 0
	}
	return false
}

func describeMask(mask TypeMask, custom uint64) string {
	switch {
	case custom == 0:
		return mask.String()
	case mask == 0:
		return "custom type"
	}
	return mask.String() + "|custom type"
}

func (vm *VM) invoke(cl *Closure, this Value, args []Value) (Value, error) {
	p := cl.Proto
	if vm.depth >= vm.MaxDepth {
		return Null, &RuntimeError{Kind: ErrStackOverflow, Message: fmt.Sprintf("call depth exceeds %d", vm.MaxDepth),
			Function: p.Name, Source: p.Source, Line: p.Line}
	}
	vm.depth++
	defer func() { vm.depth-- }()

	if req := p.RequiredParams(); len(args) < req || len(args) > len(p.Params) {
		msg := fmt.Sprintf("expected %d arguments, got %d", req, len(args))
		if req != len(p.Params) {
			msg = fmt.Sprintf("expected %d to %d arguments, got %d", req, len(p.Params), len(args))
		}
		return Null, &RuntimeError{Kind: ErrInvalidParamCount, Message: msg, Function: p.Name, Source: p.Source, Line: p.Line}
	}
	for i, a := range args {
		param := p.Params[i]
		if !checkMask(a, param.Mask, param.CustomMask) {
			return Null, &RuntimeError{
				Kind:     ErrInvalidParamType,
				Message:  fmt.Sprintf("parameter %d (%s): expected %s, got %s", i+1, param.Name, describeMask(param.Mask, param.CustomMask), a.TypeName()),
				Function: p.Name,
				Source:   p.Source,
				Line:     p.Line,
			}
		}
	}

	size := p.MaxStack
	if size < len(args)+1 {
		size = len(args) + 1
	}
	f := &frame{closure: cl, proto: p, regs: make([]Value, size), argc: len(args)}
	f.regs[0] = this
	copy(f.regs[1:], args)
	return vm.execute(f)
}

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

func (vm *VM) execute(f *frame) (Value, error) {
	code := f.proto.Code
	literals := f.proto.Literals
	regs := f.regs
	cl := f.closure

	pc := 0
	for pc < len(code) {
		ins := &code[pc]
		at := pc
		pc++

		var err error
		switch ins.Op {
		// --- Loads and moves ---
		case OpNop:

		case OpLoadNull:
			regs[ins.A] = Null
		case OpLoadTrue:
			regs[ins.A] = BoolValue(true)
		case OpLoadFalse:
			regs[ins.A] = BoolValue(false)
		case OpLoadInt:
			regs[ins.A] = IntValue(int64(ins.K))
		case OpLoadConst:
			regs[ins.A] = literals[ins.K]
		case OpLoadStr:
			regs[ins.A] = StringValue(ins.S)
		case OpMove:
			regs[ins.A] = regs[ins.B]
		case OpLoadBase:
			if cl.Owner != nil && cl.Owner.Base != nil {
				regs[ins.A] = ClassValue(cl.Owner.Base)
			} else {
				err = newError(ErrMissingMember, "base used outside a method of a derived class")
			}

		// --- Captures and closures ---
		case OpGetCapture:
			regs[ins.A] = cl.Captures[ins.B].Get()
		case OpClose:
			f.closeFrom(int(ins.A))
		case OpClosure:
			child := f.proto.Children[ins.K]
			nc := &Closure{Proto: child, Owner: cl.Owner, Captures: make([]*Cell, len(child.Captures))}
			for i, ci := range child.Captures {
				if ci.FromParentLocal {
					nc.Captures[i] = f.cellFor(ci.Index)
				} else {
					nc.Captures[i] = cl.Captures[ci.Index]
				}
			}
			if ins.B != NoReg {
				nc.Env = regs[ins.B]
				nc.HasEnv = true
			}
			regs[ins.A] = ClosureValue(nc)

		// --- Tables, arrays, classes ---
		case OpNewTable:
			regs[ins.A] = TableValue(NewTable())
		case OpNewArray:
			regs[ins.A] = ArrayValue(NewArray())
		case OpNewSlot:
			err = vm.set(regs[ins.A], regs[ins.B], regs[ins.C])
		case OpArrayPush:
			a := regs[ins.A].AsArray()
			a.Elems = append(a.Elems, regs[ins.B])
		case OpNewClass, OpNewStruct:
			var base *Class
			if ins.B != NoReg {
				if base = regs[ins.B].AsClass(); base == nil {
					err = newError(ErrBadOperand, "base of %s is a %s, not a class", literals[ins.K].AsString(), regs[ins.B].TypeName())
					break
				}
			}
			typeID := -1
			if ins.C != NoReg {
				typeID = int(ins.C)
			}
			regs[ins.A] = ClassValue(NewClass(literals[ins.K].AsString(), base, typeID, ins.Op == OpNewStruct))
		case OpNewMember:
			c := regs[ins.A].AsClass()
			val := regs[ins.C]
			if fn := val.AsClosure(); fn != nil {
				fn.Owner = c
			}
			c.AddMember(&Member{
				Name:   regs[ins.B].AsString(),
				Value:  val,
				Static: ins.K&MemberStatic != 0,
				Const:  ins.K&MemberConst != 0,
			})
		case OpGet:
			regs[ins.A], err = vm.get(regs[ins.B], regs[ins.C])
			if ins.B == 0 && errors.Is(err, ErrMissingMember) {
				// Names missing from this fall back to the root table.
				if v, ok := vm.root.Get(regs[ins.C]); ok {
					regs[ins.A], err = v, nil
				}
			}
		case OpSet:
			err = vm.set(regs[ins.A], regs[ins.B], regs[ins.C])

		// --- Arithmetic and bitwise ---
		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
			OpShl, OpShr, OpBitAnd, OpBitOr, OpBitXor:
			regs[ins.A], err = arith(ins.Op, regs[ins.B], regs[ins.C])

		// --- Comparison ---
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			regs[ins.A], err = compare(ins.Op, regs[ins.B], regs[ins.C])

		// --- Unary ---
		case OpNeg, OpNot, OpBitNot, OpTypeOf:
			regs[ins.A], err = unary(ins.Op, regs[ins.B])
		case OpInc:
			regs[ins.A], err = step(regs[ins.A], 1)
		case OpDec:
			regs[ins.A], err = step(regs[ins.A], -1)

		// --- Control flow ---
		case OpJump:
			pc = at + int(ins.K)
		case OpJumpIfFalse:
			if !regs[ins.A].Truthy() {
				pc = at + int(ins.K)
			}
		case OpJumpIfTrue:
			if regs[ins.A].Truthy() {
				pc = at + int(ins.K)
			}
		case OpJumpIfArg:
			if int(ins.A) <= f.argc {
				pc = at + int(ins.K)
			}
		case OpCall:
			this := regs[0]
			if ins.B != NoReg {
				this = regs[ins.B]
			}
			args := make([]Value, ins.C)
			copy(args, regs[int(ins.A)+1:int(ins.A)+1+int(ins.C)])
			regs[ins.A], err = vm.call(regs[ins.A], this, args)
		case OpReturn:
			result := regs[ins.A]
			f.closeFrom(0)
			return result, nil
		case OpReturnNull:
			f.closeFrom(0)
			return Null, nil

		// --- Type checks ---
		case OpCheckType:
			if v := regs[ins.A]; !checkMask(v, TypeMask(ins.K), 0) {
				err = vm.mismatch(f, at, ins.A, describeMask(TypeMask(ins.K), 0), v)
			}
		case OpCheckCustom:
			words := literals[ins.K].AsArray()
			custom := uint64(words.Elems[0].AsInt())
			mask := TypeMask(words.Elems[1].AsInt())
			if v := regs[ins.A]; !checkMask(v, mask, custom) {
				err = vm.mismatch(f, at, ins.A, describeMask(mask, custom), v)
			}

		default:
			err = &RuntimeError{Kind: ErrBadOperand, Message: fmt.Sprintf("unknown opcode 0x%02X", byte(ins.Op))}
		}
		if err != nil {
			f.closeFrom(0)
			return Null, f.fail(err, at)
		}
	}
	f.closeFrom(0)
	return Null, nil
}

func (vm *VM) mismatch(f *frame, pc int, reg uint8, want string, got Value) error {
	name, ok := f.proto.LocalAt(int(reg), pc)
	if !ok {
		name = fmt.Sprintf("r%d", reg)
	}
	return newError(ErrTypeMismatch, "%s: expected %s, got %s", name, want, got.TypeName())
}
