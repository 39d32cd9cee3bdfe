package compiler

import (
	"fmt"
	"sort"

	"github.com/chazu/tern/vm"
)

// MaxCustomTypes is the number of custom type tags a registry can hold; each
// tag is one bit of a 64-bit custom mask.
const MaxCustomTypes = 64

// TypeRegistry maps class and struct names to custom type indices 0..63.
// One registry is shared by a compile unit and any units that continue it.
type TypeRegistry struct {
	ids map[string]int
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{ids: make(map[string]int)}
}

// Register assigns the next index to name. Registering a name twice returns
// its existing index.
func (r *TypeRegistry) Register(name string) (int, error) {
	if id, ok := r.ids[name]; ok {
		return id, nil
	}
	if _, builtin := builtinTypes[name]; builtin {
		return 0, fmt.Errorf("cannot redefine built-in type %s", name)
	}
	if len(r.ids) >= MaxCustomTypes {
		return 0, fmt.Errorf("too many custom types: %s would be type #%d, the limit is %d", name, len(r.ids)+1, MaxCustomTypes)
	}
	id := len(r.ids)
	r.ids[name] = id
	return id, nil
}

// Lookup returns the index of a registered name.
func (r *TypeRegistry) Lookup(name string) (int, bool) {
	id, ok := r.ids[name]
	return id, ok
}

// Len returns the number of registered types.
func (r *TypeRegistry) Len() int {
	return len(r.ids)
}

// Names returns the registered names ordered by index.
func (r *TypeRegistry) Names() []string {
	names := make([]string, 0, len(r.ids))
	for n := range r.ids {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return r.ids[names[i]] < r.ids[names[j]] })
	return names
}

// ---------------------------------------------------------------------------
// Type masks
// ---------------------------------------------------------------------------

var builtinTypes = map[string]vm.TypeMask{
	"null":     vm.MaskNull,
	"bool":     vm.MaskBool,
	"int":      vm.MaskInt,
	"float":    vm.MaskFloat,
	"number":   vm.MaskNumber,
	"string":   vm.MaskString,
	"table":    vm.MaskTable,
	"array":    vm.MaskArray,
	"function": vm.MaskFunction,
	"class":    vm.MaskClass,
	"instance": vm.MaskInstance,
}

// typeSpec is a parsed type restriction.
type typeSpec struct {
	mask   vm.TypeMask
	custom uint64
}

func (t typeSpec) empty() bool {
	return t.mask == 0 && t.custom == 0
}

// addType adds one type name to spec.
func (r *TypeRegistry) addType(spec *typeSpec, name string) error {
	if m, ok := builtinTypes[name]; ok {
		spec.mask |= m
		return nil
	}
	if id, ok := r.ids[name]; ok {
		spec.custom |= 1 << uint(id)
		return nil
	}
	return fmt.Errorf("unknown type %s", name)
}
