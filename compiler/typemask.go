package compiler

import (
	"strings"

	"github.com/chazu/tern/vm"
)

// typeName reads one type name. null, function and class are keywords but
// also name types.
func (c *compiler) typeName() (string, Position, error) {
	t := c.tok()
	switch t.Type {
	case TokenIdentifier, TokenNull, TokenFunction, TokenClass:
		c.next()
		return t.Literal, t.Pos, nil
	}
	return "", t.Pos, c.unexpected("type name")
}

// typeList parses <T, ...> into a type restriction.
func (c *compiler) typeList() (typeSpec, error) {
	var spec typeSpec
	if err := c.expect(TokenLt); err != nil {
		return spec, err
	}
	for {
		name, pos, err := c.typeName()
		if err != nil {
			return spec, err
		}
		if err := c.reg.addType(&spec, name); err != nil {
			return spec, c.errorAt(ErrSemantic, pos, "%v", err)
		}
		if !c.accept(TokenComma) {
			break
		}
	}
	return spec, c.expect(TokenGt)
}

// declType parses the optional type in front of a declared name: var<T,..>,
// var, or a type name followed by the name itself.
func (c *compiler) declType() (typeSpec, error) {
	switch {
	case c.is(TokenVar):
		c.next()
		if c.is(TokenLt) {
			return c.typeList()
		}
		return typeSpec{}, nil
	case c.startsTypedDecl():
		var spec typeSpec
		name, pos, _ := c.typeName()
		if err := c.reg.addType(&spec, name); err != nil {
			return spec, c.errorAt(ErrSemantic, pos, "%v", err)
		}
		return spec, nil
	}
	return typeSpec{}, nil
}

// startsTypedDecl reports whether the current token is a type name that is
// followed by the declared identifier.
func (c *compiler) startsTypedDecl() bool {
	t := c.tok()
	if t.Type != TokenIdentifier {
		return false
	}
	next := c.peek(1)
	return next.Type == TokenIdentifier && next.Pos.Line == t.Pos.Line
}

// checkType guards reg against spec. A literal loaded by the previous
// instruction is checked here; anything else gets a runtime check.
func (c *compiler) checkType(reg int, spec typeSpec, name string, pos Position) error {
	if spec.empty() {
		return nil
	}
	if kind, ok := c.fs.provenKind(reg); ok {
		if spec.mask.Has(kind) {
			return nil
		}
		return c.errorAt(ErrSemantic, pos, "type mismatch: %s is declared %s but assigned a %s value", name, c.describeSpec(spec), kind)
	}
	if spec.custom != 0 {
		c.emitK(vm.OpCheckCustom, reg, int32(c.fs.typeWords(spec)))
	} else {
		c.emitK(vm.OpCheckType, reg, int32(spec.mask))
	}
	return nil
}

func (c *compiler) describeSpec(spec typeSpec) string {
	var parts []string
	if spec.mask != 0 {
		parts = append(parts, spec.mask.String())
	}
	for i, n := range c.reg.Names() {
		if spec.custom&(1<<uint(i)) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}
