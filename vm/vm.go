package vm

import (
	"io"
	"os"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tern.vm")

// DefaultMaxDepth bounds nested calls before ErrStackOverflow.
const DefaultMaxDepth = 200

// ---------------------------------------------------------------------------
// VM: the execution context
// ---------------------------------------------------------------------------

// VM executes compiled prototypes. The root table is the this of top-level
// code, so its entries are the globals scripts see as implicit fields.
type VM struct {
	Stdout   io.Writer
	MaxDepth int

	root  *Table
	depth int
}

// New creates a VM with the global functions installed.
func New() *VM {
	vm := &VM{
		Stdout:   os.Stdout,
		MaxDepth: DefaultMaxDepth,
		root:     NewTable(),
	}
	vm.installGlobals()
	return vm
}

// Root returns the root table.
func (vm *VM) Root() *Table {
	return vm.root
}

// SetGlobal binds name in the root table.
func (vm *VM) SetGlobal(name string, v Value) {
	vm.root.SetString(name, v)
}

// Global looks up name in the root table.
func (vm *VM) Global(name string) (Value, bool) {
	return vm.root.GetString(name)
}

// Run executes a top-level prototype with the root table as this.
func (vm *VM) Run(proto *FunctionProto) (Value, error) {
	log.Debugf("run %s (%d instructions)", proto.Name, len(proto.Code))
	cl := &Closure{Proto: proto}
	return vm.invoke(cl, TableValue(vm.root), nil)
}

// Call invokes any callable value from Go.
func (vm *VM) Call(fn Value, this Value, args ...Value) (Value, error) {
	return vm.call(fn, this, args)
}

func (vm *VM) call(fn Value, this Value, args []Value) (Value, error) {
	switch fn.Kind() {
	case KindFunction:
		if cl := fn.AsClosure(); cl != nil {
			if cl.HasEnv {
				this = cl.Env
			}
			return vm.invoke(cl, this, args)
		}
		n := fn.AsNative()
		return n.Fn(vm, this, args)
	case KindClass:
		return vm.construct(fn.AsClass(), args)
	}
	return Null, newError(ErrNotCallable, "cannot call a %s value", fn.TypeName())
}

// construct builds an instance and runs its constructor.
func (vm *VM) construct(c *Class, args []Value) (Value, error) {
	inst := newInstance(c)
	self := InstanceValue(inst)
	m, _ := c.Lookup("constructor")
	if m == nil {
		if len(args) > 0 {
			return Null, newError(ErrInvalidParamCount, "%s has no constructor but got %d arguments", c.Name, len(args))
		}
		return self, nil
	}
	if _, err := vm.call(m.Value, self, args); err != nil {
		return Null, err
	}
	return self, nil
}

// ---------------------------------------------------------------------------
// Member access
// ---------------------------------------------------------------------------

func (vm *VM) get(obj, key Value) (Value, error) {
	switch obj.Kind() {
	case KindTable:
		if v, ok := obj.AsTable().Get(key); ok {
			return v, nil
		}
	case KindArray:
		if key.Kind() == KindInt || key.Kind() == KindFloat {
			a := obj.AsArray()
			i := int(key.Number())
			if i < 0 || i >= len(a.Elems) {
				return Null, newError(ErrBadOperand, "index %d out of range [0,%d)", i, len(a.Elems))
			}
			return a.Elems[i], nil
		}
	case KindString:
		if key.Kind() == KindInt {
			s := obj.AsString()
			i := int(key.AsInt())
			if i < 0 || i >= len(s) {
				return Null, newError(ErrBadOperand, "index %d out of range [0,%d)", i, len(s))
			}
			return IntValue(int64(s[i])), nil
		}
	case KindInstance:
		inst := obj.AsInstance()
		if v, ok := inst.fields.Get(key); ok {
			return v, nil
		}
		if key.Kind() == KindString {
			if m, _ := inst.Class.Lookup(key.AsString()); m != nil {
				return m.Value, nil
			}
		}
	case KindClass:
		if key.Kind() == KindString {
			if m, _ := obj.AsClass().Lookup(key.AsString()); m != nil {
				return m.Value, nil
			}
		}
	case KindIterator:
	default:
		return Null, newError(ErrBadOperand, "cannot index a %s value", obj.TypeName())
	}
	if key.Kind() == KindString {
		if n, ok := lookupBuiltin(obj.Kind(), key.AsString()); ok {
			return NativeValue(n), nil
		}
	}
	return Null, newError(ErrMissingMember, "%s has no member %s", obj.TypeName(), key.repr())
}

func (vm *VM) set(obj, key, val Value) error {
	switch obj.Kind() {
	case KindTable:
		obj.AsTable().Set(key, val)
		return nil
	case KindArray:
		a := obj.AsArray()
		if key.Kind() != KindInt {
			return newError(ErrBadOperand, "array index must be int, got %s", key.TypeName())
		}
		i := int(key.AsInt())
		if i < 0 || i >= len(a.Elems) {
			return newError(ErrBadOperand, "index %d out of range [0,%d)", i, len(a.Elems))
		}
		a.Elems[i] = val
		return nil
	case KindInstance:
		inst := obj.AsInstance()
		if m, _ := inst.Class.Lookup(key.AsString()); m != nil && m.Const {
			return newError(ErrConstAssign, "member %s of %s is const", key.AsString(), inst.Class.Name)
		}
		if _, ok := inst.fields.Get(key); !ok && inst.Class.Struct {
			return newError(ErrMissingMember, "struct %s has no field %s", inst.Class.Name, key.repr())
		}
		inst.fields.Set(key, val)
		return nil
	case KindClass:
		c := obj.AsClass()
		name := key.AsString()
		if m, _ := c.Lookup(name); m != nil {
			if m.Const {
				return newError(ErrConstAssign, "member %s of %s is const", name, c.Name)
			}
			m.Value = val
			return nil
		}
		c.AddMember(&Member{Name: name, Value: val, Static: true})
		return nil
	}
	return newError(ErrBadOperand, "cannot assign into a %s value", obj.TypeName())
}
