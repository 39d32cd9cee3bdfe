package compiler

import (
	"strings"

	"github.com/chazu/tern/vm"
)

// ---------------------------------------------------------------------------
// Function bodies
// ---------------------------------------------------------------------------

// paramDefault is a default value whose source is compiled once every
// parameter has a register.
type paramDefault struct {
	local *localVar
	text  string
	pos   Position
}

// functionBody compiles (params) { body } as a child of the current
// function and returns its index among the parent's children.
func (c *compiler) functionBody(name string) (int, error) {
	parent := c.fs
	child := newFuncState(parent, name, c.tok().Pos.Line, c.opts.MaxStack)
	saved := c.es
	c.fs, c.es = child, exprState{}
	defer func() { c.fs, c.es = parent, saved }()

	if err := c.params(); err != nil {
		return 0, err
	}
	if err := c.expect(TokenLBrace); err != nil {
		return 0, err
	}
	if err := c.statements(TokenRBrace); err != nil {
		return 0, err
	}
	if err := c.expect(TokenRBrace); err != nil {
		return 0, err
	}
	child.emit(vm.Instruction{Op: vm.OpReturnNull}, c.line())

	proto := child.finish(c.src.file)
	parent.children = append(parent.children, proto)
	log.Debugf("compiled function %s: %d instructions, %d registers", child.displayName(), len(proto.Code), proto.MaxStack)
	return len(parent.children) - 1, nil
}

// params compiles the parameter list. Each parameter is
//
//	[const] [type | var<T,..> | var] name [= default]
//
// and once a parameter has a default every later one needs one too.
func (c *compiler) params() error {
	if err := c.expect(TokenLParen); err != nil {
		return err
	}
	fs := c.fs
	var defaults []paramDefault
	for !c.is(TokenRParen) {
		isConst := c.accept(TokenConst)
		spec, err := c.declType()
		if err != nil {
			return err
		}
		pos := c.tok().Pos
		name, err := c.expectIdent()
		if err != nil {
			return err
		}
		if fs.declaredHere(name) {
			return c.errorAt(ErrSemantic, pos, "duplicate parameter %s", name)
		}
		fs.newTarget()
		l := fs.pushLocal(name, spec, isConst)
		info := vm.ParamInfo{Name: name, Mask: spec.mask, CustomMask: spec.custom, Const: isConst}

		if c.accept(TokenAssign) {
			text, tpos, err := c.cutUntil(TokenComma, TokenRParen)
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return c.unexpected("default value")
			}
			defaults = append(defaults, paramDefault{local: l, text: text, pos: tpos})
			info.HasDefault = true
		} else if len(defaults) > 0 {
			return c.errorAt(ErrSemantic, pos, "parameter %s needs a default value: it follows parameter %s, which has one", name, defaults[len(defaults)-1].local.name)
		}
		fs.params = append(fs.params, info)
		if !c.accept(TokenComma) {
			break
		}
	}
	if err := c.expect(TokenRParen); err != nil {
		return err
	}

	// Prologue: an omitted argument takes its default.
	for _, d := range defaults {
		skip := c.emitJump(vm.OpJumpIfArg, d.local.slot)
		err := c.verbatim(d.text, d.pos, func() error {
			if err := c.expression(); err != nil {
				return err
			}
			src := fs.popTarget()
			if err := c.checkType(src, d.local.spec, d.local.name, d.pos); err != nil {
				return err
			}
			c.emitMove(d.local.slot, src)
			return nil
		})
		if err != nil {
			return err
		}
		fs.patch(skip, fs.code.Len())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

// importStatement compiles import "name"; by compiling the loaded source in
// place. A unit is compiled once per compile; importing a unit that is still
// being compiled is a cycle.
func (c *compiler) importStatement() error {
	pos := c.tok().Pos
	c.next() // import
	if !c.is(TokenString) {
		return c.unexpected("import name")
	}
	name := c.tok().Literal
	c.next()
	if err := c.endStatement(); err != nil {
		return err
	}
	if c.opts.Loader == nil {
		return c.errorAt(ErrSemantic, pos, "cannot import %q: no loader configured", name)
	}
	resolved, text, err := c.opts.Loader.Load(name)
	if err != nil {
		return c.errorAt(ErrSemantic, pos, "cannot import %q: %v", name, err)
	}
	for i, n := range c.importing {
		if n == resolved {
			chain := append(append([]string{}, c.importing[i:]...), resolved)
			return c.errorAt(ErrSemantic, pos, "import cycle: %s", strings.Join(chain, " -> "))
		}
	}
	if c.imported[resolved] {
		log.Debugf("import %s: already compiled", resolved)
		return nil
	}
	c.imported[resolved] = true

	c.importing = append(c.importing, resolved)
	c.pushSource(&tokenSource{lex: NewLexer(text), file: resolved, display: text})
	err = c.statements(TokenEOF)
	c.popSource()
	c.importing = c.importing[:len(c.importing)-1]
	if err != nil {
		return err
	}
	log.Debugf("imported %s", resolved)
	return nil
}
