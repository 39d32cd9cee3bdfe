package compiler

import (
	"github.com/chazu/tern/vm"
)

// ---------------------------------------------------------------------------
// Expression state
// ---------------------------------------------------------------------------

// exprKind says how the most recently compiled expression is stored.
type exprKind int

const (
	exprPlain   exprKind = iota // a value in the top target
	exprLocal                   // a local; the top target is its slot
	exprMember                  // table and key are the top two targets
	exprCapture                 // a captured variable, not yet loaded
	exprBase                    // base; the top target holds the base class
)

type exprState struct {
	kind     exprKind
	local    *localVar
	capture  int
	name     string
	implicit bool // member of an implicit this
	fromBase bool // member looked up on base
	noGet    bool // leave the final access unresolved for the caller
}

// setState replaces the expression state, keeping the caller's noGet.
func (c *compiler) setState(es exprState) {
	es.noGet = c.es.noGet
	c.es = es
}

// ---------------------------------------------------------------------------
// Assignment level
// ---------------------------------------------------------------------------

// expression compiles one full expression and pushes exactly one target.
func (c *compiler) expression() error {
	saved := c.es
	c.es = exprState{}
	defer func() { c.es = saved }()

	if err := c.logicalOr(); err != nil {
		return err
	}
	switch t := c.tok().Type; {
	case isAssignOp(t):
		return c.assignment(t)
	case t == TokenQuestion:
		return c.ternary()
	}
	return nil
}

var compoundOps = map[TokenType]vm.Opcode{
	TokenPlusAssign:    vm.OpAdd,
	TokenMinusAssign:   vm.OpSub,
	TokenStarAssign:    vm.OpMul,
	TokenSlashAssign:   vm.OpDiv,
	TokenPercentAssign: vm.OpMod,
}

func (c *compiler) assignment(op TokenType) error {
	es := c.es
	pos := c.tok().Pos
	switch es.kind {
	case exprPlain:
		return c.errorAt(ErrSemantic, pos, "cannot assign to an expression")
	case exprBase:
		return c.errorAt(ErrSemantic, pos, "cannot assign to base")
	case exprCapture:
		return c.errorAt(ErrSemantic, pos, "cannot assign to captured variable %s", es.name)
	case exprMember:
		if es.implicit {
			return c.errorAt(ErrSemantic, pos, "cannot assign to %s: use this.%s to assign a field", es.name, es.name)
		}
	case exprLocal:
		if es.local.isConst {
			return c.errorAt(ErrSemantic, pos, "cannot assign to const %s", es.name)
		}
	}
	c.next()
	if err := c.expression(); err != nil {
		return err
	}

	fs := c.fs
	switch es.kind {
	case exprLocal:
		src := fs.popTarget()
		dst := fs.topTarget()
		if op == TokenAssign {
			if _, ok := fs.provenKind(src); ok {
				if err := c.checkType(src, es.local.spec, es.name, pos); err != nil {
					return err
				}
				c.emitMove(dst, src)
				return nil
			}
			// Checked in place so a mismatch names the assigned local.
			c.emitMove(dst, src)
			return c.checkType(dst, es.local.spec, es.name, pos)
		}
		c.emit(compoundOps[op], dst, dst, src)
		return c.checkType(dst, es.local.spec, es.name, pos)

	case exprMember:
		if op == TokenAssign {
			val := fs.popTarget()
			key := fs.popTarget()
			tbl := fs.popTarget()
			c.emit(vm.OpSet, tbl, key, val)
			c.emitMove(fs.newTarget(), val)
			return nil
		}
		val := fs.topTarget()
		key := fs.peekTarget(1)
		tbl := fs.peekTarget(2)
		tmp := fs.newTarget()
		c.emit(vm.OpGet, tmp, tbl, key)
		c.emit(compoundOps[op], tmp, tmp, val)
		c.emit(vm.OpSet, tbl, key, tmp)
		fs.popTarget()
		fs.popTarget()
		fs.popTarget()
		fs.popTarget()
		c.emitMove(fs.newTarget(), tmp)
		return nil
	}
	return c.errorAt(ErrInternal, pos, "unhandled assignment target")
}

// ternary compiles cond ? a : b; the condition is the top target.
func (c *compiler) ternary() error {
	c.next() // ?
	fs := c.fs
	cond := fs.popTarget()
	jf := c.emitJump(vm.OpJumpIfFalse, cond)
	trg := fs.newTarget()
	if err := c.expression(); err != nil {
		return err
	}
	c.emitMove(trg, fs.popTarget())
	jmp := c.emitJump(vm.OpJump, 0)
	if err := c.expect(TokenColon); err != nil {
		return err
	}
	fs.patch(jf, fs.code.Len())
	if err := c.expression(); err != nil {
		return err
	}
	c.emitMove(trg, fs.popTarget())
	fs.patch(jmp, fs.code.Len())
	return nil
}

// ---------------------------------------------------------------------------
// Logical levels
// ---------------------------------------------------------------------------

// logicalOr compiles a || b. The right side recurses into this level and is
// skipped when the left side is truthy; the result is the deciding operand.
func (c *compiler) logicalOr() error {
	if err := c.logicalAnd(); err != nil {
		return err
	}
	if !c.is(TokenOrOr) {
		return nil
	}
	c.next()
	return c.shortCircuit(vm.OpJumpIfTrue, c.logicalOr)
}

func (c *compiler) logicalAnd() error {
	if err := c.bitOr(); err != nil {
		return err
	}
	if !c.is(TokenAndAnd) {
		return nil
	}
	c.next()
	return c.shortCircuit(vm.OpJumpIfFalse, c.logicalAnd)
}

func (c *compiler) shortCircuit(jump vm.Opcode, right func() error) error {
	fs := c.fs
	first := fs.popTarget()
	trg := fs.newTarget()
	c.emitMove(trg, first)
	j := c.emitJump(jump, trg)
	if err := right(); err != nil {
		return err
	}
	c.emitMove(trg, fs.popTarget())
	fs.patch(j, fs.code.Len())
	c.setState(exprState{})
	return nil
}

// ---------------------------------------------------------------------------
// Binary levels
// ---------------------------------------------------------------------------

var (
	bitOrOps    = map[TokenType]vm.Opcode{TokenPipe: vm.OpBitOr}
	bitXorOps   = map[TokenType]vm.Opcode{TokenCaret: vm.OpBitXor}
	bitAndOps   = map[TokenType]vm.Opcode{TokenAmp: vm.OpBitAnd}
	equalityOps = map[TokenType]vm.Opcode{TokenEq: vm.OpEq, TokenNe: vm.OpNe}
	relationOps = map[TokenType]vm.Opcode{TokenLt: vm.OpLt, TokenLe: vm.OpLe, TokenGt: vm.OpGt, TokenGe: vm.OpGe}
	shiftOps    = map[TokenType]vm.Opcode{TokenShl: vm.OpShl, TokenShr: vm.OpShr}
	additiveOps = map[TokenType]vm.Opcode{TokenPlus: vm.OpAdd, TokenMinus: vm.OpSub}
	multOps     = map[TokenType]vm.Opcode{TokenStar: vm.OpMul, TokenSlash: vm.OpDiv, TokenPercent: vm.OpMod}
	powerOps    = map[TokenType]vm.Opcode{TokenStarStar: vm.OpPow}
)

func (c *compiler) bitOr() error          { return c.binary(c.bitXor, bitOrOps) }
func (c *compiler) bitXor() error         { return c.binary(c.bitAnd, bitXorOps) }
func (c *compiler) bitAnd() error         { return c.binary(c.equality, bitAndOps) }
func (c *compiler) equality() error       { return c.binary(c.relational, equalityOps) }
func (c *compiler) relational() error     { return c.binary(c.shift, relationOps) }
func (c *compiler) shift() error          { return c.binary(c.additive, shiftOps) }
func (c *compiler) additive() error       { return c.binary(c.multiplicative, additiveOps) }
func (c *compiler) multiplicative() error { return c.binary(c.power, multOps) }
func (c *compiler) power() error          { return c.binary(c.unary, powerOps) }

// binary compiles a left-associative chain of one precedence level.
func (c *compiler) binary(operand func() error, ops map[TokenType]vm.Opcode) error {
	if err := operand(); err != nil {
		return err
	}
	for {
		op, ok := ops[c.tok().Type]
		if !ok {
			return nil
		}
		c.next()
		// The right operand may write the left local.
		if !c.fs.isTemp(c.fs.topTarget()) {
			c.fresh()
		}
		if err := operand(); err != nil {
			return err
		}
		right := c.fs.popTarget()
		left := c.fs.popTarget()
		c.emit(op, c.fs.newTarget(), left, right)
		c.setState(exprState{})
	}
}

// ---------------------------------------------------------------------------
// Unary level
// ---------------------------------------------------------------------------

var unaryOps = map[TokenType]vm.Opcode{
	TokenMinus:  vm.OpNeg,
	TokenBang:   vm.OpNot,
	TokenTilde:  vm.OpBitNot,
	TokenTypeof: vm.OpTypeOf,
}

func (c *compiler) unary() error {
	t := c.tok()
	switch t.Type {
	case TokenPlusPlus, TokenMinusMinus:
		return c.prefixStep(t.Type)
	case TokenMinus:
		if next := c.peek(1); next.Type == TokenInteger || next.Type == TokenFloat {
			if after := c.peek(2).Type; after != TokenDot && after != TokenLBracket && after != TokenLParen {
				c.next()
				c.next()
				dst := c.fs.newTarget()
				if next.Type == TokenInteger {
					c.loadInt(dst, -next.Int)
				} else {
					c.emitK(vm.OpLoadConst, dst, int32(c.fs.literal(vm.FloatValue(-next.Float))))
				}
				c.setState(exprState{})
				return nil
			}
		}
	}
	op, ok := unaryOps[t.Type]
	if !ok {
		return c.postfix(false)
	}
	c.next()
	if err := c.unary(); err != nil {
		return err
	}
	src := c.fs.popTarget()
	c.emit(op, c.fs.newTarget(), src, 0)
	c.setState(exprState{})
	return nil
}

// prefixStep compiles ++x and --x; the value is the updated one.
func (c *compiler) prefixStep(t TokenType) error {
	pos := c.tok().Pos
	op := vm.OpInc
	if t == TokenMinusMinus {
		op = vm.OpDec
	}
	c.next()
	if err := c.postfix(true); err != nil {
		return err
	}
	if err := c.checkStepTarget(pos); err != nil {
		return err
	}
	fs := c.fs
	switch c.es.kind {
	case exprLocal:
		c.emit(op, c.es.local.slot, 0, 0)
	case exprMember:
		key := fs.topTarget()
		tbl := fs.peekTarget(1)
		tmp := fs.newTarget()
		c.emit(vm.OpGet, tmp, tbl, key)
		c.emit(op, tmp, 0, 0)
		c.emit(vm.OpSet, tbl, key, tmp)
		fs.popTarget()
		fs.popTarget()
		fs.popTarget()
		c.emitMove(fs.newTarget(), tmp)
	}
	c.es = exprState{}
	return nil
}

// postStep compiles x++ and x--; the value is the one before the update.
func (c *compiler) postStep() error {
	pos := c.tok().Pos
	op := vm.OpInc
	if c.is(TokenMinusMinus) {
		op = vm.OpDec
	}
	if err := c.checkStepTarget(pos); err != nil {
		return err
	}
	c.next()
	fs := c.fs
	switch c.es.kind {
	case exprLocal:
		slot := fs.popTarget()
		old := fs.newTarget()
		c.emitMove(old, slot)
		c.emit(op, slot, 0, 0)
	case exprMember:
		key := fs.topTarget()
		tbl := fs.peekTarget(1)
		tmp := fs.newTarget()
		old := fs.newTarget()
		c.emit(vm.OpGet, tmp, tbl, key)
		c.emitMove(old, tmp)
		c.emit(op, tmp, 0, 0)
		c.emit(vm.OpSet, tbl, key, tmp)
		for i := 0; i < 4; i++ {
			fs.popTarget()
		}
		c.emitMove(fs.newTarget(), old)
	}
	c.setState(exprState{})
	return nil
}

func (c *compiler) checkStepTarget(pos Position) error {
	es := c.es
	switch es.kind {
	case exprLocal:
		if es.local.isConst {
			return c.errorAt(ErrSemantic, pos, "cannot modify const %s", es.name)
		}
		return nil
	case exprMember:
		if es.implicit {
			return c.errorAt(ErrSemantic, pos, "cannot modify %s: use this.%s to modify a field", es.name, es.name)
		}
		return nil
	case exprCapture:
		return c.errorAt(ErrSemantic, pos, "cannot modify captured variable %s", es.name)
	case exprBase:
		return c.errorAt(ErrSemantic, pos, "cannot modify base")
	}
	return c.errorAt(ErrSemantic, pos, "cannot increment or decrement an expression")
}

// ---------------------------------------------------------------------------
// Postfix level
// ---------------------------------------------------------------------------

// postfix compiles a factor followed by member accesses, indexing, calls
// and postfix increments. With noGet the final access stays a reference.
func (c *compiler) postfix(noGet bool) error {
	c.es = exprState{noGet: noGet}
	if err := c.factor(); err != nil {
		return err
	}
	for {
		switch c.tok().Type {
		case TokenDot:
			fromBase := c.es.kind == exprBase
			c.resolve()
			c.next()
			name, err := c.expectIdent()
			if err != nil {
				return err
			}
			c.loadString(c.fs.newTarget(), name)
			c.setState(exprState{kind: exprMember, name: name, fromBase: fromBase})
			c.settle()

		case TokenLBracket:
			fromBase := c.es.kind == exprBase
			c.resolve()
			c.next()
			if err := c.expression(); err != nil {
				return err
			}
			if err := c.expect(TokenRBracket); err != nil {
				return err
			}
			c.setState(exprState{kind: exprMember, name: "[]", fromBase: fromBase})
			c.settle()

		case TokenLParen:
			if err := c.call(); err != nil {
				return err
			}

		case TokenPlusPlus, TokenMinusMinus:
			if c.tok().Pos.Line != c.src.prev.Pos.Line {
				return nil
			}
			if err := c.postStep(); err != nil {
				return err
			}

		default:
			return nil
		}
	}
}

// needRef reports whether the pending access must stay a reference because
// it is about to be assigned, called or stepped.
func (c *compiler) needRef() bool {
	t := c.tok()
	switch {
	case isAssignOp(t.Type):
		return true
	case t.Type == TokenLParen:
		return c.es.kind == exprMember
	case t.Type == TokenPlusPlus || t.Type == TokenMinusMinus:
		return t.Pos.Line == c.src.prev.Pos.Line
	case t.Type == TokenDot || t.Type == TokenLBracket:
		return false
	}
	return c.es.noGet
}

// settle loads a pending member or capture unless it is needed as a
// reference.
func (c *compiler) settle() {
	if !c.needRef() {
		c.resolve()
	}
}

// resolve turns a pending member or capture into a plain value.
func (c *compiler) resolve() {
	fs := c.fs
	switch c.es.kind {
	case exprMember:
		key := fs.popTarget()
		tbl := fs.popTarget()
		c.emit(vm.OpGet, fs.newTarget(), tbl, key)
	case exprCapture:
		c.emit(vm.OpGetCapture, fs.newTarget(), c.es.capture, 0)
	default:
		return
	}
	c.setState(exprState{})
}

// call compiles an argument list and the call. A member callee keeps its
// table as this; afterwards table, callee and arguments collapse into one
// result register.
func (c *compiler) call() error {
	fs := c.fs
	es := c.es
	pos := c.tok().Pos
	var fn, this int
	if es.kind == exprMember {
		fn = c.fresh()
		tbl := fs.peekTarget(1)
		c.emit(vm.OpGet, fn, tbl, fn)
		this = tbl
		if es.fromBase {
			// base methods run on the current this
			this = 0
		}
	} else {
		c.resolve()
		fn = c.fresh()
		this = int(vm.NoReg)
	}
	c.next() // (

	nargs := 0
	for !c.is(TokenRParen) {
		if err := c.expression(); err != nil {
			return err
		}
		c.fresh()
		nargs++
		if !c.accept(TokenComma) {
			break
		}
	}
	if err := c.expect(TokenRParen); err != nil {
		return err
	}
	if nargs > int(vm.NoReg) {
		return c.errorAt(ErrSemantic, pos, "too many arguments (%d)", nargs)
	}
	c.emit(vm.OpCall, fn, this, nargs)
	for i := 0; i < nargs; i++ {
		fs.popTarget()
	}
	fs.popTarget()
	if es.kind == exprMember {
		fs.popTarget()
	}
	c.emitMove(fs.newTarget(), fn)
	c.setState(exprState{})
	return nil
}
