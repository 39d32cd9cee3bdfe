package vm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Table: insertion-ordered associative container
// ---------------------------------------------------------------------------

// Table maps keys to values and iterates in insertion order.
type Table struct {
	keys  []Value
	vals  []Value
	index map[tableKey]int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{index: make(map[tableKey]int)}
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.keys) }

// Get returns the value stored under key.
func (t *Table) Get(key Value) (Value, bool) {
	if i, ok := t.index[keyOf(key)]; ok {
		return t.vals[i], true
	}
	return Null, false
}

// GetString is Get with a string key.
func (t *Table) GetString(key string) (Value, bool) {
	return t.Get(StringValue(key))
}

// Set inserts or updates key.
func (t *Table) Set(key, val Value) {
	k := keyOf(key)
	if i, ok := t.index[k]; ok {
		t.vals[i] = val
		return
	}
	t.index[k] = len(t.keys)
	t.keys = append(t.keys, key)
	t.vals = append(t.vals, val)
}

// SetString is Set with a string key.
func (t *Table) SetString(key string, val Value) {
	t.Set(StringValue(key), val)
}

// Delete removes key, keeping the order of the remaining entries.
func (t *Table) Delete(key Value) bool {
	k := keyOf(key)
	i, ok := t.index[k]
	if !ok {
		return false
	}
	delete(t.index, k)
	t.keys = append(t.keys[:i], t.keys[i+1:]...)
	t.vals = append(t.vals[:i], t.vals[i+1:]...)
	for j := i; j < len(t.keys); j++ {
		t.index[keyOf(t.keys[j])] = j
	}
	return true
}

// Keys returns the keys in insertion order.
func (t *Table) Keys() []Value {
	out := make([]Value, len(t.keys))
	copy(out, t.keys)
	return out
}

func (t *Table) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range t.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.String())
		b.WriteString(": ")
		b.WriteString(t.vals[i].repr())
	}
	b.WriteByte('}')
	return b.String()
}

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

// Array is a growable sequence of values.
type Array struct {
	Elems []Value
}

// NewArray creates an array holding elems.
func NewArray(elems ...Value) *Array {
	return &Array{Elems: elems}
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Elems) }

// ---------------------------------------------------------------------------
// Classes and instances
// ---------------------------------------------------------------------------

// Member is one declared class member.
type Member struct {
	Name   string
	Value  Value
	Static bool
	Const  bool
}

// Class is a script class or struct. Static members and methods are read
// through the class; the remaining members seed each instance's fields.
type Class struct {
	Name    string
	Base    *Class
	TypeID  int // custom type index, -1 when unregistered
	Struct  bool
	members []*Member
	byName  map[string]*Member
}

// NewClass creates an empty class.
func NewClass(name string, base *Class, typeID int, isStruct bool) *Class {
	return &Class{
		Name:   name,
		Base:   base,
		TypeID: typeID,
		Struct: isStruct,
		byName: make(map[string]*Member),
	}
}

// AddMember declares a member. Redeclaring a name replaces it.
func (c *Class) AddMember(m *Member) {
	if old, ok := c.byName[m.Name]; ok {
		*old = *m
		return
	}
	c.byName[m.Name] = m
	c.members = append(c.members, m)
}

// Lookup finds a member on c or its bases.
func (c *Class) Lookup(name string) (*Member, *Class) {
	for cls := c; cls != nil; cls = cls.Base {
		if m, ok := cls.byName[name]; ok {
			return m, cls
		}
	}
	return nil, nil
}

// IsA reports whether c is other or derives from it.
func (c *Class) IsA(other *Class) bool {
	for cls := c; cls != nil; cls = cls.Base {
		if cls == other {
			return true
		}
	}
	return false
}

// customMask returns the custom type bits of c and its bases.
func (c *Class) customMask() uint64 {
	var mask uint64
	for cls := c; cls != nil; cls = cls.Base {
		if cls.TypeID >= 0 && cls.TypeID < 64 {
			mask |= 1 << uint(cls.TypeID)
		}
	}
	return mask
}

// Members returns the class's own members in declaration order.
func (c *Class) Members() []*Member {
	return c.members
}

// Instance is an object created by calling a class.
type Instance struct {
	Class  *Class
	fields *Table
}

func newInstance(c *Class) *Instance {
	inst := &Instance{Class: c, fields: NewTable()}
	var chain []*Class
	for cls := c; cls != nil; cls = cls.Base {
		chain = append(chain, cls)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, m := range chain[i].members {
			if m.Static || m.Value.Kind() == KindFunction {
				continue
			}
			inst.fields.SetString(m.Name, m.Value)
		}
	}
	return inst
}

// Field returns an instance field.
func (i *Instance) Field(name string) (Value, bool) {
	return i.fields.GetString(name)
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// Closure is a function prototype bound to its captured cells.
type Closure struct {
	Proto    *FunctionProto
	Captures []*Cell
	Env      Value // bound this, valid when HasEnv
	HasEnv   bool
	Owner    *Class // class that declared this method, for base lookup
}

// NativeFunc is the signature of Go functions callable from scripts.
type NativeFunc func(vm *VM, this Value, args []Value) (Value, error)

// Native is a Go function exposed to scripts.
type Native struct {
	Name string
	Fn   NativeFunc
}

// ---------------------------------------------------------------------------
// Cell: shared storage for captured variables
// ---------------------------------------------------------------------------

// Cell is a captured variable. It aliases a live register while the
// declaring frame's scope is open; after closing it owns the value.
type Cell struct {
	slot   int
	loc    *Value
	closed Value
}

func newOpenCell(slot int, loc *Value) *Cell {
	return &Cell{slot: slot, loc: loc}
}

// Get returns the current value.
func (c *Cell) Get() Value {
	if c.loc != nil {
		return *c.loc
	}
	return c.closed
}

// Set stores a value.
func (c *Cell) Set(v Value) {
	if c.loc != nil {
		*c.loc = v
		return
	}
	c.closed = v
}

// IsOpen reports whether the cell still aliases a register.
func (c *Cell) IsOpen() bool {
	return c.loc != nil
}

func (c *Cell) close() {
	if c.loc != nil {
		c.closed = *c.loc
		c.loc = nil
	}
}

// ---------------------------------------------------------------------------
// Iterator
// ---------------------------------------------------------------------------

// Iterator walks an array, table or string for range-based for loops.
type Iterator struct {
	over Value
	pos  int
	keys []Value // snapshot for tables
}

func newIterator(v Value) *Iterator {
	it := &Iterator{over: v}
	if t := v.AsTable(); t != nil {
		it.keys = t.Keys()
	}
	return it
}

func (it *Iterator) length() int {
	switch it.over.Kind() {
	case KindArray:
		return it.over.AsArray().Len()
	case KindTable:
		return len(it.keys)
	case KindString:
		return len(it.over.AsString())
	}
	return 0
}

func (it *Iterator) end() bool { return it.pos >= it.length() }

func (it *Iterator) key() Value {
	if it.over.Kind() == KindTable {
		if it.pos < len(it.keys) {
			return it.keys[it.pos]
		}
		return Null
	}
	return IntValue(int64(it.pos))
}

func (it *Iterator) get() Value {
	if it.end() {
		return Null
	}
	switch it.over.Kind() {
	case KindArray:
		return it.over.AsArray().Elems[it.pos]
	case KindTable:
		v, _ := it.over.AsTable().Get(it.keys[it.pos])
		return v
	case KindString:
		return StringValue(it.over.AsString()[it.pos : it.pos+1])
	}
	return Null
}
