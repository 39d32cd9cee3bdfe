package compiler

import (
	"github.com/chazu/tern/vm"
)

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// statements compiles statements until a token of type end, which is left
// for the caller.
func (c *compiler) statements(end TokenType) error {
	for !c.is(end) {
		switch c.tok().Type {
		case TokenEOF:
			return c.unexpected("'%s'", end)
		case TokenError:
			return c.unexpected("statement")
		}
		if err := c.statement(); err != nil {
			return err
		}
		if n := len(c.fs.targets); n != 0 {
			return c.errorf(ErrInternal, "%d targets left on the stack after a statement", n)
		}
	}
	return nil
}

func (c *compiler) statement() error {
	switch c.tok().Type {
	case TokenSemicolon:
		c.next()
		return nil
	case TokenLBrace:
		return c.block()
	case TokenVar:
		return c.varDecl()
	case TokenConst:
		return c.constDecl()
	case TokenFunction:
		if c.peek(1).Type == TokenIdentifier {
			return c.functionDecl()
		}
	case TokenClass:
		if c.peek(1).Type == TokenIdentifier {
			return c.classDecl(false)
		}
	case TokenStruct:
		return c.classDecl(true)
	case TokenEnum:
		return c.enumDecl()
	case TokenIf:
		return c.ifStatement()
	case TokenFor:
		return c.forStatement()
	case TokenWhile:
		return c.whileStatement()
	case TokenBreak, TokenContinue:
		return c.jumpStatement()
	case TokenReturn:
		return c.returnStatement()
	case TokenImport:
		return c.importStatement()
	case TokenReserved:
		return c.errorf(ErrUnimplemented, "%s statements are not supported", c.tok().Literal)
	case TokenIdentifier:
		if c.startsTypedDecl() {
			spec, err := c.declType()
			if err != nil {
				return err
			}
			return c.declareList(spec, false)
		}
	}
	return c.expressionStatement()
}

func (c *compiler) expressionStatement() error {
	if err := c.expression(); err != nil {
		return err
	}
	c.fs.popTarget()
	return c.endStatement()
}

// endStatement consumes a semicolon, or accepts a statement end implied by a
// new line, a closing brace or the end of input.
func (c *compiler) endStatement() error {
	if c.accept(TokenSemicolon) || c.endOfStatement() {
		return nil
	}
	return c.unexpected("';'")
}

// scopedStatement compiles one statement in a block of its own.
func (c *compiler) scopedStatement() error {
	sc := c.fs.openScope()
	if err := c.statement(); err != nil {
		return err
	}
	c.fs.closeScope(sc, c.line())
	return nil
}

func (c *compiler) block() error {
	c.next() // {
	sc := c.fs.openScope()
	if err := c.statements(TokenRBrace); err != nil {
		return err
	}
	if err := c.expect(TokenRBrace); err != nil {
		return err
	}
	c.fs.closeScope(sc, c.line())
	return nil
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (c *compiler) varDecl() error {
	spec, err := c.declType()
	if err != nil {
		return err
	}
	return c.declareList(spec, false)
}

func (c *compiler) constDecl() error {
	c.next() // const
	var spec typeSpec
	if c.is(TokenVar) || c.startsTypedDecl() {
		var err error
		if spec, err = c.declType(); err != nil {
			return err
		}
	}
	return c.declareList(spec, true)
}

// declareList compiles name [= expr] {, name [= expr]} with one spec.
func (c *compiler) declareList(spec typeSpec, isConst bool) error {
	fs := c.fs
	for {
		pos := c.tok().Pos
		name, err := c.expectIdent()
		if err != nil {
			return err
		}
		if fs.declaredHere(name) {
			return c.errorAt(ErrSemantic, pos, "%s is already declared in this block", name)
		}
		if c.accept(TokenAssign) {
			if err := c.expression(); err != nil {
				return err
			}
			c.fresh()
			l := fs.pushLocal(name, spec, isConst)
			if err := c.checkType(l.slot, spec, name, pos); err != nil {
				return err
			}
		} else {
			switch {
			case isConst:
				return c.errorAt(ErrSemantic, pos, "const %s needs a value", name)
			case c.opts.StrictTypes && !spec.empty():
				return c.errorAt(ErrSemantic, pos, "typed variable %s needs an initial value", name)
			}
			c.emit(vm.OpLoadNull, fs.newTarget(), 0, 0)
			fs.pushLocal(name, spec, isConst)
		}
		if !c.accept(TokenComma) {
			break
		}
	}
	return c.endStatement()
}

// declareName reserves a register for a new local named by the current
// token. The local is visible before its value is stored, so the value's
// code may refer to it.
func (c *compiler) declareName(isConst bool) (*localVar, error) {
	pos := c.tok().Pos
	name, err := c.expectIdent()
	if err != nil {
		return nil, err
	}
	if c.fs.declaredHere(name) {
		return nil, c.errorAt(ErrSemantic, pos, "%s is already declared in this block", name)
	}
	c.fs.newTarget()
	return c.fs.pushLocal(name, typeSpec{}, isConst), nil
}

// functionDecl compiles function name(params) { body } into a local.
func (c *compiler) functionDecl() error {
	c.next() // function
	l, err := c.declareName(false)
	if err != nil {
		return err
	}
	idx, err := c.functionBody(l.name)
	if err != nil {
		return err
	}
	c.emitABK(vm.OpClosure, l.slot, int(vm.NoReg), int32(idx))
	return nil
}

// classDecl compiles class Name [: Base] { ... } or struct Name { ... }. The
// name is registered as a custom type before the body is compiled.
func (c *compiler) classDecl(isStruct bool) error {
	c.next() // class or struct
	t := c.tok()
	if t.Type != TokenIdentifier {
		return c.unexpected("identifier")
	}
	typeID, err := c.reg.Register(t.Literal)
	if err != nil {
		return c.errorf(ErrSemantic, "%v", err)
	}
	l, err := c.declareName(true)
	if err != nil {
		return err
	}
	return c.classLiteral(l.slot, l.name, isStruct, typeID)
}

// enumDecl compiles enum Name { A, B = 5, C } into a const table of ints.
func (c *compiler) enumDecl() error {
	c.next() // enum
	l, err := c.declareName(true)
	if err != nil {
		return err
	}
	if err := c.expect(TokenLBrace); err != nil {
		return err
	}
	fs := c.fs
	c.emit(vm.OpNewTable, l.slot, 0, 0)
	var value int64
	for !c.is(TokenRBrace) {
		name, err := c.expectIdent()
		if err != nil {
			return err
		}
		if c.accept(TokenAssign) {
			neg := c.accept(TokenMinus)
			if !c.is(TokenInteger) {
				return c.unexpected("integer")
			}
			value = c.tok().Int
			if neg {
				value = -value
			}
			c.next()
		}
		key := fs.newTarget()
		c.loadString(key, name)
		val := fs.newTarget()
		c.loadInt(val, value)
		c.emit(vm.OpNewSlot, l.slot, key, val)
		fs.popTarget()
		fs.popTarget()
		value++
		if !c.accept(TokenComma) {
			break
		}
	}
	return c.expect(TokenRBrace)
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

func (c *compiler) returnStatement() error {
	c.next() // return
	if c.endOfStatement() {
		c.emit(vm.OpReturnNull, 0, 0, 0)
		return c.endStatement()
	}
	if err := c.expression(); err != nil {
		return err
	}
	c.emit(vm.OpReturn, c.fs.popTarget(), 0, 0)
	return c.endStatement()
}

// jumpStatement compiles break and continue as a NOP placeholder and a jump;
// the loop patches both once its exits are known.
func (c *compiler) jumpStatement() error {
	t := c.tok()
	fs := c.fs
	if len(fs.loops) == 0 {
		return c.errorf(ErrSemantic, "%s outside a loop", t.Type)
	}
	c.next()
	lp := fs.loops[len(fs.loops)-1]
	at := c.emit(vm.OpNop, 0, 0, 0)
	c.emitJump(vm.OpJump, 0)
	if t.Type == TokenBreak {
		lp.breaks = append(lp.breaks, at)
	} else {
		lp.continues = append(lp.continues, at)
	}
	return c.endStatement()
}
