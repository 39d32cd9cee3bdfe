package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/tern/vm"
)

var log = commonlog.GetLogger("tern.compiler")

// Defaults for Options fields left zero.
const (
	DefaultMaxStack       = 250
	DefaultSmallStringMax = 16

	// registerCap is the hard register limit: operands are 8 bits and
	// vm.NoReg is reserved.
	registerCap = vm.MaxRegisters
)

// Loader resolves import names to source text.
type Loader interface {
	// Load returns the canonical name of the import, used for dedup and
	// diagnostics, and its source.
	Load(name string) (resolved string, source string, err error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(name string) (string, string, error)

// Load implements Loader.
func (f LoaderFunc) Load(name string) (string, string, error) {
	return f(name)
}

// Options configures a compile unit.
type Options struct {
	MaxStack       int // registers per function
	SmallStringMax int // strings shorter than this load inline
	StrictTypes    bool
	Loader         Loader
	Registry       *TypeRegistry
}

func (o Options) withDefaults() Options {
	if o.MaxStack <= 0 {
		o.MaxStack = DefaultMaxStack
	}
	if o.MaxStack > registerCap {
		o.MaxStack = registerCap
	}
	if o.SmallStringMax <= 0 {
		o.SmallStringMax = DefaultSmallStringMax
	}
	if o.Registry == nil {
		o.Registry = NewTypeRegistry()
	}
	return o
}

// ---------------------------------------------------------------------------
// Token sources
// ---------------------------------------------------------------------------

// tokenSource is one lexer on the source stack together with its lookahead.
type tokenSource struct {
	lex  *Lexer
	file string

	// display is the text diagnostics quote; the lexer input starts at
	// displayBase within it.
	display     string
	displayBase int

	tok   Token
	prev  Token
	ahead []Token
}

// ---------------------------------------------------------------------------
// compiler
// ---------------------------------------------------------------------------

type compiler struct {
	opts Options
	reg  *TypeRegistry

	src     *tokenSource
	sources []*tokenSource

	fs *funcState
	es exprState

	iterCount int
	imported  map[string]bool
	importing []string
}

// Compile compiles one unit into its top-level prototype. The first error
// aborts the unit and no prototype is returned.
func Compile(name, src string, opts Options) (proto *vm.FunctionProto, err error) {
	opts = opts.withDefaults()
	c := &compiler{
		opts:      opts,
		reg:       opts.Registry,
		imported:  map[string]bool{name: true},
		importing: []string{name},
	}
	c.fs = newFuncState(nil, "main", 1, opts.MaxStack)
	c.pushSource(&tokenSource{lex: NewLexer(src), file: name, display: src})

	defer func() {
		if r := recover(); r != nil {
			a, ok := r.(abort)
			if !ok {
				panic(r)
			}
			c.locate(a.err, c.src.tok.Pos)
			proto, err = nil, a.err
		}
	}()

	if err := c.statements(TokenEOF); err != nil {
		return nil, err
	}
	c.fs.emit(vm.Instruction{Op: vm.OpReturnNull}, c.line())
	proto = c.fs.finish(name)
	log.Debugf("compiled %s: %d instructions, %d nested functions", name, len(proto.Code), len(proto.Children))
	return proto, nil
}

// ---------------------------------------------------------------------------
// Token handling
// ---------------------------------------------------------------------------

func (c *compiler) pushSource(s *tokenSource) {
	c.sources = append(c.sources, s)
	c.src = s
	s.tok = s.lex.NextToken()
}

func (c *compiler) popSource() {
	c.sources = c.sources[:len(c.sources)-1]
	c.src = c.sources[len(c.sources)-1]
}

// tok returns the current token.
func (c *compiler) tok() Token {
	return c.src.tok
}

func (c *compiler) is(t TokenType) bool {
	return c.src.tok.Type == t
}

// next advances to the next token. Error tokens are not reported here; the
// production that inspects them does.
func (c *compiler) next() {
	s := c.src
	if s.tok.Type == TokenEOF || s.tok.Type == TokenError {
		return
	}
	s.prev = s.tok
	if len(s.ahead) > 0 {
		s.tok = s.ahead[0]
		s.ahead = s.ahead[1:]
		return
	}
	s.tok = s.lex.NextToken()
}

// peek returns the token n positions after the current one.
func (c *compiler) peek(n int) Token {
	s := c.src
	for len(s.ahead) < n {
		if k := len(s.ahead); k > 0 && (s.ahead[k-1].Type == TokenEOF || s.ahead[k-1].Type == TokenError) {
			return s.ahead[k-1]
		}
		s.ahead = append(s.ahead, s.lex.NextToken())
	}
	return s.ahead[n-1]
}

// accept consumes the current token if it has type t.
func (c *compiler) accept(t TokenType) bool {
	if c.is(t) {
		c.next()
		return true
	}
	return false
}

// expect consumes a token of type t or fails.
func (c *compiler) expect(t TokenType) error {
	if c.is(t) {
		c.next()
		return nil
	}
	return c.unexpectedAt(2, "'%s'", t)
}

// expectIdent consumes an identifier and returns its name.
func (c *compiler) expectIdent() (string, error) {
	if c.is(TokenIdentifier) {
		name := c.tok().Literal
		c.next()
		return name, nil
	}
	return "", c.unexpectedAt(2, "identifier")
}

// line is the source line emitted instructions are attributed to.
func (c *compiler) line() int {
	if c.src.prev.Pos.Line > 0 {
		return c.src.prev.Pos.Line
	}
	return c.src.tok.Pos.Line
}

// endOfStatement reports whether the current token may end a statement
// without a semicolon: a new line, a closing brace or the end of input.
func (c *compiler) endOfStatement() bool {
	t := c.tok()
	return t.Type == TokenSemicolon || t.Type == TokenRBrace || t.Type == TokenEOF ||
		(c.src.prev.Pos.Line > 0 && t.Pos.Line > c.src.prev.Pos.Line)
}

// cutUntil consumes tokens up to, not including, the first token of a type
// in stops at bracket depth 0 and returns the source text they span.
func (c *compiler) cutUntil(stops ...TokenType) (string, Position, error) {
	start := c.tok()
	end := start.Pos.Offset
	depth := 0
	for {
		t := c.tok()
		switch t.Type {
		case TokenEOF:
			return "", start.Pos, c.unexpectedAt(2, "'%s'", stops[0])
		case TokenError:
			return "", start.Pos, c.unexpectedAt(2, "'%s'", stops[0])
		case TokenLParen, TokenLBracket, TokenLBrace:
			depth++
		case TokenRParen, TokenRBracket, TokenRBrace:
			if depth == 0 {
				for _, s := range stops {
					if t.Type == s {
						return c.src.lex.Input()[start.Pos.Offset:end], start.Pos, nil
					}
				}
				return "", start.Pos, c.unexpectedAt(2, "'%s'", stops[0])
			}
			depth--
		default:
			if depth == 0 {
				for _, s := range stops {
					if t.Type == s {
						return c.src.lex.Input()[start.Pos.Offset:end], start.Pos, nil
					}
				}
			}
		}
		end = t.End
		c.next()
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// locate fills in the file, position and source line of err.
func (c *compiler) locate(err *Error, pos Position) {
	if err.File == "" {
		err.File = c.src.file
	}
	if err.Pos.Line == 0 {
		err.Pos = pos
	}
	if err.Line == "" {
		err.Line = sourceLine(c.src.display, c.src.displayBase+err.Pos.Offset)
	}
}

func (c *compiler) fail(kind ErrorKind, pos Position, skip int, format string, args ...any) *Error {
	err := &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Check: callerCheck(skip + 1)}
	c.locate(err, pos)
	return err
}

// errorf reports an error at the current token.
func (c *compiler) errorf(kind ErrorKind, format string, args ...any) error {
	return c.fail(kind, c.tok().Pos, 1, format, args...)
}

// errorAt reports an error at pos.
func (c *compiler) errorAt(kind ErrorKind, pos Position, format string, args ...any) error {
	return c.fail(kind, pos, 1, format, args...)
}

// unexpected reports that the current token is not what the grammar wants.
func (c *compiler) unexpected(format string, args ...any) error {
	return c.unexpectedAt(2, format, args...)
}

func (c *compiler) unexpectedAt(skip int, format string, args ...any) error {
	t := c.tok()
	if t.Type == TokenError {
		return c.fail(ErrLexical, t.Pos, skip, "%s", t.Literal)
	}
	return c.fail(ErrSyntax, t.Pos, skip, "expected %s, got %s", fmt.Sprintf(format, args...), t.Describe())
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *compiler) emit(op vm.Opcode, a, b, cc int) int {
	return c.fs.emit(vm.Instruction{Op: op, A: uint8(a), B: uint8(b), C: uint8(cc)}, c.line())
}

func (c *compiler) emitK(op vm.Opcode, a int, k int32) int {
	return c.fs.emit(vm.Instruction{Op: op, A: uint8(a), K: k}, c.line())
}

func (c *compiler) emitABK(op vm.Opcode, a, b int, k int32) int {
	return c.fs.emit(vm.Instruction{Op: op, A: uint8(a), B: uint8(b), K: k}, c.line())
}

func (c *compiler) emitABCK(op vm.Opcode, a, b, cc int, k int32) int {
	return c.fs.emit(vm.Instruction{Op: op, A: uint8(a), B: uint8(b), C: uint8(cc), K: k}, c.line())
}

// emitJump emits a jump with a placeholder offset.
func (c *compiler) emitJump(op vm.Opcode, a int) int {
	return c.emitK(op, a, 0)
}

// emitMove copies src into dst when they differ.
func (c *compiler) emitMove(dst, src int) {
	if dst != src {
		c.emit(vm.OpMove, dst, src, 0)
	}
}

// loadString loads s into reg inline or through the literal pool.
func (c *compiler) loadString(reg int, s string) {
	if len(s) < c.opts.SmallStringMax && len(s) <= 255 {
		c.fs.emit(vm.Instruction{Op: vm.OpLoadStr, A: uint8(reg), S: s}, c.line())
		return
	}
	c.emitK(vm.OpLoadConst, reg, int32(c.fs.literal(vm.StringValue(s))))
}

// loadInt loads v into reg inline when it fits 32 bits.
func (c *compiler) loadInt(reg int, v int64) {
	if v >= -1<<31 && v < 1<<31 {
		c.emitK(vm.OpLoadInt, reg, int32(v))
		return
	}
	c.emitK(vm.OpLoadConst, reg, int32(c.fs.literal(vm.IntValue(v))))
}

// fresh makes the top target a temporary at the top of the register stack,
// copying a local or this into a new register when needed.
func (c *compiler) fresh() int {
	top := c.fs.topTarget()
	if c.fs.isTemp(top) && top == c.fs.stackSize-1 {
		return top
	}
	src := c.fs.popTarget()
	dst := c.fs.newTarget()
	c.emitMove(dst, src)
	return dst
}
