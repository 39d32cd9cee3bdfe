package hash

import (
	"github.com/chazu/tern/vm"
)

// ---------------------------------------------------------------------------
// Normalization: vm.FunctionProto → frozen hashing tree
// ---------------------------------------------------------------------------

// Normalize converts a prototype tree into its hashing form, dropping
// names, source files, line numbers and local variable tables.
func Normalize(p *vm.FunctionProto) *HProto {
	h := normalize(p)
	h.Version = HashVersion
	return h
}

func normalize(p *vm.FunctionProto) *HProto {
	h := &HProto{
		Code:     make([]HInstr, len(p.Code)),
		Literals: make([]HValue, len(p.Literals)),
		Params:   make([]HParam, len(p.Params)),
		Captures: make([]HCapture, len(p.Captures)),
		Children: make([]*HProto, len(p.Children)),
		MaxStack: p.MaxStack,
	}
	for i, ins := range p.Code {
		h.Code[i] = HInstr{Op: uint8(ins.Op), A: ins.A, B: ins.B, C: ins.C, K: ins.K, S: ins.S}
	}
	for i, v := range p.Literals {
		h.Literals[i] = normalizeValue(v)
	}
	for i, pi := range p.Params {
		h.Params[i] = HParam{Mask: uint16(pi.Mask), CustomMask: pi.CustomMask, Const: pi.Const, HasDefault: pi.HasDefault}
	}
	for i, ci := range p.Captures {
		h.Captures[i] = HCapture{FromParentLocal: ci.FromParentLocal, Index: ci.Index}
	}
	for i, child := range p.Children {
		h.Children[i] = normalize(child)
	}
	return h
}

func normalizeValue(v vm.Value) HValue {
	h := HValue{Kind: uint8(v.Kind())}
	switch v.Kind() {
	case vm.KindBool:
		if v.AsBool() {
			h.Int = 1
		}
	case vm.KindInt:
		h.Int = v.AsInt()
	case vm.KindFloat:
		h.Float = v.AsFloat()
	case vm.KindString:
		h.Str = v.AsString()
	case vm.KindArray:
		for _, e := range v.AsArray().Elems {
			h.Elems = append(h.Elems, normalizeValue(e))
		}
	}
	return h
}
