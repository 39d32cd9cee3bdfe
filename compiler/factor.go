package compiler

import (
	"github.com/chazu/tern/vm"
)

// ---------------------------------------------------------------------------
// Factors
// ---------------------------------------------------------------------------

func (c *compiler) factor() error {
	fs := c.fs
	t := c.tok()
	switch t.Type {
	case TokenInteger:
		c.next()
		c.loadInt(fs.newTarget(), t.Int)
	case TokenFloat:
		c.next()
		c.emitK(vm.OpLoadConst, fs.newTarget(), int32(fs.literal(vm.FloatValue(t.Float))))
	case TokenString:
		c.next()
		c.loadString(fs.newTarget(), t.Literal)
	case TokenTrue:
		c.next()
		c.emit(vm.OpLoadTrue, fs.newTarget(), 0, 0)
	case TokenFalse:
		c.next()
		c.emit(vm.OpLoadFalse, fs.newTarget(), 0, 0)
	case TokenNull:
		c.next()
		c.emit(vm.OpLoadNull, fs.newTarget(), 0, 0)
	case TokenLParen:
		c.next()
		if err := c.expression(); err != nil {
			return err
		}
		if err := c.expect(TokenRParen); err != nil {
			return err
		}
	case TokenLBracket:
		return c.arrayLiteral()
	case TokenLBrace:
		return c.tableLiteral()
	case TokenFunction:
		return c.lambda()
	case TokenClass:
		c.next()
		return c.classLiteral(fs.newTarget(), "", false, int(vm.NoReg))
	case TokenThis:
		c.next()
		fs.pushTarget(0)
	case TokenBase:
		c.next()
		c.emit(vm.OpLoadBase, fs.newTarget(), 0, 0)
		c.setState(exprState{kind: exprBase})
		return nil
	case TokenIdentifier:
		return c.identifier()
	case TokenReserved:
		return c.errorf(ErrUnimplemented, "%s is not supported", t.Literal)
	default:
		return c.unexpected("expression")
	}
	c.setState(exprState{})
	return nil
}

// identifier resolves a name: a local of this function, then a capture from
// an enclosing one, then a field of this.
func (c *compiler) identifier() error {
	name := c.tok().Literal
	c.next()
	fs := c.fs
	if l := fs.findLocal(name); l != nil {
		fs.pushTarget(l.slot)
		c.setState(exprState{kind: exprLocal, local: l, name: name})
		return nil
	}
	if idx, ok := fs.getCapture(name); ok {
		c.setState(exprState{kind: exprCapture, capture: idx, name: name})
		c.settle()
		return nil
	}
	fs.pushTarget(0)
	c.loadString(fs.newTarget(), name)
	c.setState(exprState{kind: exprMember, implicit: true, name: name})
	c.settle()
	return nil
}

func (c *compiler) arrayLiteral() error {
	c.next() // [
	fs := c.fs
	dst := fs.newTarget()
	c.emit(vm.OpNewArray, dst, 0, 0)
	for !c.is(TokenRBracket) {
		if err := c.expression(); err != nil {
			return err
		}
		c.emit(vm.OpArrayPush, dst, fs.popTarget(), 0)
		if !c.accept(TokenComma) {
			break
		}
	}
	if err := c.expect(TokenRBracket); err != nil {
		return err
	}
	c.setState(exprState{})
	return nil
}

func (c *compiler) tableLiteral() error {
	c.next() // {
	dst := c.fs.newTarget()
	c.emit(vm.OpNewTable, dst, 0, 0)
	for !c.is(TokenRBrace) {
		if err := c.memberEntry(dst, false, 0); err != nil {
			return err
		}
		if !c.accept(TokenComma) && !c.accept(TokenSemicolon) && !c.is(TokenRBrace) {
			if c.tok().Pos.Line == c.src.prev.Pos.Line {
				return c.unexpected("',' or '}'")
			}
		}
	}
	if err := c.expect(TokenRBrace); err != nil {
		return err
	}
	c.setState(exprState{})
	return nil
}

// memberEntry compiles one key/value entry of a table or class body into
// dst. Accepted forms:
//
//	name = expr    name : expr    "key" : expr    [expr] = expr
//	function name(params) { ... }    name(params) { ... }
//
// Class bodies also accept a bare name, which declares a null field.
func (c *compiler) memberEntry(dst int, class bool, flags int32) error {
	fs := c.fs
	t := c.tok()
	switch {
	case t.Type == TokenFunction || (t.Type == TokenIdentifier && c.peek(1).Type == TokenLParen):
		if t.Type == TokenFunction {
			c.next()
		}
		name, err := c.expectIdent()
		if err != nil {
			return err
		}
		c.loadString(fs.newTarget(), name)
		idx, err := c.functionBody(name)
		if err != nil {
			return err
		}
		c.emitABK(vm.OpClosure, fs.newTarget(), int(vm.NoReg), int32(idx))

	case t.Type == TokenIdentifier || t.Type == TokenString:
		c.next()
		c.loadString(fs.newTarget(), t.Literal)
		if c.accept(TokenAssign) || c.accept(TokenColon) {
			if err := c.expression(); err != nil {
				return err
			}
		} else if class && t.Type == TokenIdentifier {
			c.emit(vm.OpLoadNull, fs.newTarget(), 0, 0)
		} else {
			return c.unexpected("'=' or ':'")
		}

	case t.Type == TokenLBracket:
		c.next()
		if err := c.expression(); err != nil {
			return err
		}
		if err := c.expect(TokenRBracket); err != nil {
			return err
		}
		if !c.accept(TokenAssign) && !c.accept(TokenColon) {
			return c.unexpected("'=' or ':'")
		}
		if err := c.expression(); err != nil {
			return err
		}

	case t.Type == TokenReserved:
		return c.errorf(ErrUnimplemented, "%s is not supported", t.Literal)
	default:
		return c.unexpected("member")
	}

	val := fs.popTarget()
	key := fs.popTarget()
	if class {
		c.emitABCK(vm.OpNewMember, dst, key, val, flags)
	} else {
		c.emit(vm.OpNewSlot, dst, key, val)
	}
	return nil
}

// lambda compiles function [env] (params) { body } as an expression.
func (c *compiler) lambda() error {
	c.next() // function
	fs := c.fs
	env := int(vm.NoReg)
	if c.accept(TokenLBracket) {
		if err := c.expression(); err != nil {
			return err
		}
		if err := c.expect(TokenRBracket); err != nil {
			return err
		}
		env = fs.popTarget()
	}
	if c.is(TokenIdentifier) {
		return c.errorf(ErrSyntax, "named function %s is a statement, not an expression", c.tok().Literal)
	}
	idx, err := c.functionBody("")
	if err != nil {
		return err
	}
	c.emitABK(vm.OpClosure, fs.newTarget(), env, int32(idx))
	c.setState(exprState{})
	return nil
}

// classLiteral compiles an optional base and the class body into dst.
// typeID is vm.NoReg for anonymous classes.
func (c *compiler) classLiteral(dst int, name string, isStruct bool, typeID int) error {
	fs := c.fs
	base := int(vm.NoReg)
	if !isStruct && c.accept(TokenColon) {
		if err := c.postfix(false); err != nil {
			return err
		}
		base = fs.popTarget()
	}
	op := vm.OpNewClass
	if isStruct {
		op = vm.OpNewStruct
	}
	c.emitABCK(op, dst, base, typeID, int32(fs.literal(vm.StringValue(name))))

	if err := c.expect(TokenLBrace); err != nil {
		return err
	}
	for !c.is(TokenRBrace) {
		var flags int32
		for {
			if c.accept(TokenStatic) {
				flags |= vm.MemberStatic
			} else if c.accept(TokenConst) {
				flags |= vm.MemberConst
			} else {
				break
			}
		}
		if err := c.memberEntry(dst, true, flags); err != nil {
			return err
		}
		for c.accept(TokenSemicolon) || c.accept(TokenComma) {
		}
	}
	if err := c.expect(TokenRBrace); err != nil {
		return err
	}
	c.setState(exprState{})
	return nil
}
