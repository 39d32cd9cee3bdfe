package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Built-in methods
// ---------------------------------------------------------------------------

// builtinMethods holds the methods every value of a kind answers to. They
// are found by GET only when the receiver has no member of that name.
var builtinMethods = map[Kind]map[string]*Native{}

func defineMethod(k Kind, name string, fn NativeFunc) {
	m := builtinMethods[k]
	if m == nil {
		m = make(map[string]*Native)
		builtinMethods[k] = m
	}
	m[name] = &Native{Name: name, Fn: fn}
}

func lookupBuiltin(k Kind, name string) (*Native, bool) {
	n, ok := builtinMethods[k][name]
	return n, ok
}

func wantArgs(name string, args []Value, n int) error {
	if len(args) != n {
		return newError(ErrInvalidParamCount, "%s expects %d arguments, got %d", name, n, len(args))
	}
	return nil
}

func wantInt(name string, v Value, pos int) (int64, error) {
	if v.kind != KindInt {
		return 0, newError(ErrInvalidParamType, "%s: parameter %d expects int, got %s", name, pos, v.TypeName())
	}
	return v.AsInt(), nil
}

func init() {
	// --- array ---
	defineMethod(KindArray, "size", func(_ *VM, this Value, args []Value) (Value, error) {
		return IntValue(int64(this.AsArray().Len())), wantArgs("size", args, 0)
	})
	defineMethod(KindArray, "push", func(_ *VM, this Value, args []Value) (Value, error) {
		if err := wantArgs("push", args, 1); err != nil {
			return Null, err
		}
		a := this.AsArray()
		a.Elems = append(a.Elems, args[0])
		return this, nil
	})
	defineMethod(KindArray, "pop", func(_ *VM, this Value, args []Value) (Value, error) {
		if err := wantArgs("pop", args, 0); err != nil {
			return Null, err
		}
		a := this.AsArray()
		if len(a.Elems) == 0 {
			return Null, newError(ErrBadOperand, "pop from empty array")
		}
		v := a.Elems[len(a.Elems)-1]
		a.Elems = a.Elems[:len(a.Elems)-1]
		return v, nil
	})
	defineMethod(KindArray, "contains", func(_ *VM, this Value, args []Value) (Value, error) {
		if err := wantArgs("contains", args, 1); err != nil {
			return Null, err
		}
		for _, e := range this.AsArray().Elems {
			if e.Equal(args[0]) {
				return BoolValue(true), nil
			}
		}
		return BoolValue(false), nil
	})
	defineMethod(KindArray, "remove", func(_ *VM, this Value, args []Value) (Value, error) {
		if err := wantArgs("remove", args, 1); err != nil {
			return Null, err
		}
		i, err := wantInt("remove", args[0], 1)
		if err != nil {
			return Null, err
		}
		a := this.AsArray()
		if i < 0 || int(i) >= len(a.Elems) {
			return Null, newError(ErrBadOperand, "index %d out of range [0,%d)", i, len(a.Elems))
		}
		v := a.Elems[i]
		a.Elems = append(a.Elems[:i], a.Elems[i+1:]...)
		return v, nil
	})
	defineMethod(KindArray, "iterator", iteratorMethod)

	// --- table ---
	defineMethod(KindTable, "size", func(_ *VM, this Value, args []Value) (Value, error) {
		return IntValue(int64(this.AsTable().Len())), wantArgs("size", args, 0)
	})
	defineMethod(KindTable, "keys", func(_ *VM, this Value, args []Value) (Value, error) {
		return ArrayValue(NewArray(this.AsTable().Keys()...)), wantArgs("keys", args, 0)
	})
	defineMethod(KindTable, "contains", func(_ *VM, this Value, args []Value) (Value, error) {
		if err := wantArgs("contains", args, 1); err != nil {
			return Null, err
		}
		_, ok := this.AsTable().Get(args[0])
		return BoolValue(ok), nil
	})
	defineMethod(KindTable, "remove", func(_ *VM, this Value, args []Value) (Value, error) {
		if err := wantArgs("remove", args, 1); err != nil {
			return Null, err
		}
		return BoolValue(this.AsTable().Delete(args[0])), nil
	})
	defineMethod(KindTable, "iterator", iteratorMethod)

	// --- string ---
	defineMethod(KindString, "size", func(_ *VM, this Value, args []Value) (Value, error) {
		return IntValue(int64(len(this.AsString()))), wantArgs("size", args, 0)
	})
	defineMethod(KindString, "slice", func(_ *VM, this Value, args []Value) (Value, error) {
		if err := wantArgs("slice", args, 2); err != nil {
			return Null, err
		}
		from, err := wantInt("slice", args[0], 1)
		if err != nil {
			return Null, err
		}
		to, err := wantInt("slice", args[1], 2)
		if err != nil {
			return Null, err
		}
		s := this.AsString()
		if from < 0 || to < from || int(to) > len(s) {
			return Null, newError(ErrBadOperand, "slice [%d:%d] out of range for length %d", from, to, len(s))
		}
		return StringValue(s[from:to]), nil
	})
	defineMethod(KindString, "upper", func(_ *VM, this Value, args []Value) (Value, error) {
		return StringValue(strings.ToUpper(this.AsString())), wantArgs("upper", args, 0)
	})
	defineMethod(KindString, "iterator", iteratorMethod)

	// --- iterator ---
	defineMethod(KindIterator, "end", func(_ *VM, this Value, args []Value) (Value, error) {
		return BoolValue(this.asIterator().end()), nil
	})
	defineMethod(KindIterator, "get", func(_ *VM, this Value, args []Value) (Value, error) {
		return this.asIterator().get(), nil
	})
	defineMethod(KindIterator, "get_key", func(_ *VM, this Value, args []Value) (Value, error) {
		return this.asIterator().key(), nil
	})
	defineMethod(KindIterator, "next", func(_ *VM, this Value, args []Value) (Value, error) {
		this.asIterator().pos++
		return Null, nil
	})
}

func iteratorMethod(_ *VM, this Value, args []Value) (Value, error) {
	if err := wantArgs("iterator", args, 0); err != nil {
		return Null, err
	}
	return iteratorValue(newIterator(this)), nil
}

// ---------------------------------------------------------------------------
// Global functions
// ---------------------------------------------------------------------------

func (vm *VM) installGlobals() {
	vm.SetGlobal("print", NewNative("print", func(vm *VM, _ Value, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprintln(vm.Stdout, strings.Join(parts, " "))
		return Null, nil
	}))
	vm.SetGlobal("array", NewNative("array", func(_ *VM, _ Value, args []Value) (Value, error) {
		elems := make([]Value, len(args))
		copy(elems, args)
		return ArrayValue(NewArray(elems...)), nil
	}))
	vm.SetGlobal("tostring", NewNative("tostring", func(_ *VM, _ Value, args []Value) (Value, error) {
		if err := wantArgs("tostring", args, 1); err != nil {
			return Null, err
		}
		return StringValue(args[0].String()), nil
	}))
}
