package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/tern/vm"
)

// ---------------------------------------------------------------------------
// Conditionals
// ---------------------------------------------------------------------------

func (c *compiler) ifStatement() error {
	c.next() // if
	if err := c.condition(); err != nil {
		return err
	}
	fs := c.fs
	jf := c.emitJump(vm.OpJumpIfFalse, fs.popTarget())
	if err := c.scopedStatement(); err != nil {
		return err
	}
	if !c.is(TokenElse) {
		fs.patch(jf, fs.code.Len())
		return nil
	}
	c.next() // else
	jmp := c.emitJump(vm.OpJump, 0)
	fs.patch(jf, fs.code.Len())
	if err := c.scopedStatement(); err != nil {
		return err
	}
	fs.patch(jmp, fs.code.Len())
	return nil
}

// condition compiles ( expr ).
func (c *compiler) condition() error {
	if err := c.expect(TokenLParen); err != nil {
		return err
	}
	if err := c.expression(); err != nil {
		return err
	}
	return c.expect(TokenRParen)
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func (c *compiler) whileStatement() error {
	c.next() // while
	fs := c.fs
	condStart := fs.label()
	if err := c.condition(); err != nil {
		return err
	}
	jf := c.emitJump(vm.OpJumpIfFalse, fs.popTarget())
	lp := fs.pushLoop()
	if err := c.scopedStatement(); err != nil {
		return err
	}
	fs.patch(c.emitJump(vm.OpJump, 0), condStart)
	end := fs.code.Len()
	fs.patch(jf, end)
	fs.popLoop(lp, end, condStart)
	return nil
}

// forLoop lays out a loop whose increment is written before its body:
//
//	condStart: cond; JMPF end
//	           body
//	continue:  incr
//	           JMP condStart
//	end:
//
// The increment is compiled in source order and then cut out of the stream
// and spliced back in after the body. cond reports whether it pushed a
// condition.
func (c *compiler) forLoop(cond func() (bool, error), incr, body func() error) error {
	fs := c.fs
	condStart := fs.label()
	hasCond, err := cond()
	if err != nil {
		return err
	}
	jf := -1
	if hasCond {
		jf = c.emitJump(vm.OpJumpIfFalse, fs.popTarget())
	}

	// The increment runs after continue and the body, not after the head.
	incrStart := fs.label()
	if err := incr(); err != nil {
		return err
	}
	tail := fs.code.SplitOff(incrStart)

	lp := fs.pushLoop()
	if err := body(); err != nil {
		return err
	}
	continueTarget := fs.code.Splice(tail)
	fs.patch(c.emitJump(vm.OpJump, 0), condStart)
	end := fs.code.Len()
	if jf >= 0 {
		fs.patch(jf, end)
	}
	fs.popLoop(lp, end, continueTarget)
	return nil
}

func (c *compiler) forStatement() error {
	c.next() // for
	if err := c.expect(TokenLParen); err != nil {
		return err
	}
	if c.foreachHeader() {
		return c.foreach()
	}

	fs := c.fs
	sc := fs.openScope()
	switch {
	case c.accept(TokenSemicolon):
	case c.is(TokenVar), c.is(TokenConst), c.is(TokenIdentifier) && c.startsTypedDecl():
		// declareList consumes the semicolon
		if err := c.statement(); err != nil {
			return err
		}
		if c.src.prev.Type != TokenSemicolon {
			return c.unexpected("';'")
		}
	default:
		if err := c.expression(); err != nil {
			return err
		}
		fs.popTarget()
		if err := c.expect(TokenSemicolon); err != nil {
			return err
		}
	}

	cond := func() (bool, error) {
		if c.accept(TokenSemicolon) {
			return false, nil
		}
		if err := c.expression(); err != nil {
			return false, err
		}
		return true, c.expect(TokenSemicolon)
	}
	incr := func() error {
		if !c.is(TokenRParen) {
			if err := c.expression(); err != nil {
				return err
			}
			fs.popTarget()
		}
		return c.expect(TokenRParen)
	}
	if err := c.forLoop(cond, incr, c.scopedStatement); err != nil {
		return err
	}
	fs.closeScope(sc, c.line())
	return nil
}

// foreachHeader reports whether the tokens after for ( form
// var [<types>] name [, name] :.
func (c *compiler) foreachHeader() bool {
	if !c.is(TokenVar) {
		return false
	}
	i := 1
	if c.peek(i).Type == TokenLt {
		for {
			i++
			switch c.peek(i).Type {
			case TokenGt:
				i++
			case TokenEOF, TokenError, TokenSemicolon, TokenAssign:
				return false
			default:
				continue
			}
			break
		}
	}
	if c.peek(i).Type != TokenIdentifier {
		return false
	}
	switch c.peek(i + 1).Type {
	case TokenColon:
		return true
	case TokenComma:
		return c.peek(i+2).Type == TokenIdentifier && c.peek(i+3).Type == TokenColon
	}
	return false
}

// foreach compiles for (var [<T>] [key,] value : container) body by
// generating the iterator protocol as source and compiling it in place:
//
//	var __iterN = (container).iterator();
//	for (; !__iterN.end(); __iterN.next()) {
//		var key = __iterN.get_key();
//		var<T> value = __iterN.get();
//		body
//	}
func (c *compiler) foreach() error {
	line := c.tok().Pos.Line
	c.next() // var
	typeText := ""
	if c.is(TokenLt) {
		start := c.tok().Pos.Offset
		if _, err := c.typeList(); err != nil {
			return err
		}
		typeText = c.src.lex.Input()[start:c.src.prev.End]
	}
	first, err := c.expectIdent()
	if err != nil {
		return err
	}
	key, value := "", first
	if c.accept(TokenComma) {
		if value, err = c.expectIdent(); err != nil {
			return err
		}
		key = first
	}
	if err := c.expect(TokenColon); err != nil {
		return err
	}
	container, _, err := c.cutUntil(TokenRParen)
	if err != nil {
		return err
	}
	if strings.TrimSpace(container) == "" {
		return c.unexpected("container expression")
	}
	if err := c.expect(TokenRParen); err != nil {
		return err
	}

	iter := fmt.Sprintf("__iter%d", c.iterCount)
	c.iterCount++
	fs := c.fs
	sc := fs.openScope()
	prelude := fmt.Sprintf("var %s = (%s).iterator();", iter, container)
	if err := c.generated(prelude, line, c.statement); err != nil {
		return err
	}
	cond := func() (bool, error) {
		return true, c.generated("!"+iter+".end()", line, c.expression)
	}
	incr := func() error {
		if err := c.generated(iter+".next()", line, c.expression); err != nil {
			return err
		}
		fs.popTarget()
		return nil
	}
	body := func() error {
		inner := fs.openScope()
		var decl strings.Builder
		if key != "" {
			fmt.Fprintf(&decl, "var %s = %s.get_key();\n", key, iter)
		}
		fmt.Fprintf(&decl, "var%s %s = %s.get();", typeText, value, iter)
		if err := c.generated(decl.String(), line, func() error { return c.statements(TokenEOF) }); err != nil {
			return err
		}
		if err := c.statement(); err != nil {
			return err
		}
		fs.closeScope(inner, c.line())
		return nil
	}
	if err := c.forLoop(cond, incr, body); err != nil {
		return err
	}
	fs.closeScope(sc, c.line())
	return nil
}

// generated compiles text produced by the compiler itself with fn. Its
// tokens report line, and diagnostics quote the generated text.
func (c *compiler) generated(text string, line int, fn func() error) error {
	c.pushSource(&tokenSource{
		lex:     NewLexerAt(text, Position{Line: line, Column: 1}),
		file:    c.src.file,
		display: text,
	})
	err := fn()
	if err == nil && !c.is(TokenEOF) {
		err = c.unexpected("end of generated code")
	}
	c.popSource()
	return err
}

// verbatim compiles a slice of the current source with fn, keeping its
// positions and diagnostics in the original text.
func (c *compiler) verbatim(text string, pos Position, fn func() error) error {
	c.pushSource(&tokenSource{
		lex:         NewLexerAt(text, pos),
		file:        c.src.file,
		display:     c.src.display,
		displayBase: c.src.displayBase + pos.Offset,
	})
	err := fn()
	if err == nil && !c.is(TokenEOF) {
		err = c.unexpected("end of expression")
	}
	c.popSource()
	return err
}
