package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for tern source
// ---------------------------------------------------------------------------

// Lexer tokenizes tern source code. It holds only value fields, so copying a
// Lexer saves its position and assigning the copy back restores it.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        rune // current character
	line      int  // current line (1-based)
	lineStart int  // offset of current line start

	// Offsets applied to reported positions, for text lexed out of context.
	lineDelta int
	colDelta  int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// NewLexerAt creates a lexer whose reported positions start at base instead
// of 1:1. Used for text that was cut out of a larger file.
func NewLexerAt(input string, base Position) *Lexer {
	l := NewLexer(input)
	if base.Line > 0 {
		l.lineDelta = base.Line - 1
	}
	if base.Column > 0 {
		l.colDelta = base.Column - 1
	}
	return l
}

// Input returns the text being tokenized.
func (l *Lexer) Input() string {
	return l.input
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' && l.readPos > 0 {
		l.line++
		l.lineStart = l.readPos
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	col := l.pos - l.lineStart + 1
	if l.line == 1 {
		col += l.colDelta
	}
	return Position{
		Offset: l.pos,
		Line:   l.line + l.lineDelta,
		Column: col,
	}
}

func (l *Lexer) token(t TokenType, lit string, pos Position) Token {
	return Token{Type: t, Literal: lit, Pos: pos, End: l.pos}
}

func (l *Lexer) errorf(pos Position, format string, args ...any) Token {
	return Token{Type: TokenError, Literal: fmt.Sprintf(format, args...), Pos: pos, End: l.pos}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if tok, ok := l.skipWhitespaceAndComments(); !ok {
		return tok
	}

	pos := l.position()

	switch {
	case l.ch == 0:
		return l.token(TokenEOF, "", pos)
	case l.ch == '"':
		return l.readString(pos)
	case l.ch == '\'':
		return l.readCharLiteral(pos)
	case isDigit(l.ch):
		return l.readNumber(pos)
	case l.ch == '.' && isDigit(l.peekChar()):
		return l.readNumber(pos)
	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)
	}
	return l.readOperator(pos)
}

// skipWhitespaceAndComments skips whitespace, // line comments and /* */
// block comments. It returns an error token for an unterminated block.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			pos := l.position()
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.ch == 0 {
					return l.errorf(pos, "unterminated block comment"), false
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
			continue
		}
		return Token{}, true
	}
}

// readString reads a double-quoted string literal with escapes.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // consume opening "

	var sb strings.Builder
	for l.ch != '"' {
		switch l.ch {
		case 0, '\n':
			return l.errorf(pos, "unterminated string")
		case '\\':
			r, err := l.readEscape()
			if err != nil {
				return l.errorf(pos, "%v", err)
			}
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar() // consume closing "

	return l.token(TokenString, sb.String(), pos)
}

// readEscape decodes one backslash escape; the current char is the backslash.
func (l *Lexer) readEscape() (rune, error) {
	l.readChar()
	ch := l.ch
	l.readChar()
	switch ch {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '0':
		return 0, nil
	case '\\', '"', '\'':
		return ch, nil
	case 'x':
		var v rune
		for i := 0; i < 2; i++ {
			if !isHexDigit(l.ch) {
				return 0, fmt.Errorf("invalid hex escape")
			}
			v = v*16 + hexValue(l.ch)
			l.readChar()
		}
		return v, nil
	case 0:
		return 0, fmt.Errorf("unterminated escape")
	}
	return 0, fmt.Errorf("unknown escape \\%c", ch)
}

// readCharLiteral reads 'a' as an integer token holding the character code.
func (l *Lexer) readCharLiteral(pos Position) Token {
	l.readChar() // consume opening '

	var r rune
	switch l.ch {
	case 0, '\n', '\'':
		return l.errorf(pos, "empty or unterminated character literal")
	case '\\':
		var err error
		if r, err = l.readEscape(); err != nil {
			return l.errorf(pos, "%v", err)
		}
	default:
		r = l.ch
		l.readChar()
	}
	if l.ch != '\'' {
		return l.errorf(pos, "character literal holds more than one character")
	}
	l.readChar()

	tok := l.token(TokenInteger, l.input[pos.Offset:l.pos], pos)
	tok.Int = int64(r)
	return tok
}

// readNumber reads an integer or float literal.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
		return l.intToken(l.input[start:l.pos], pos)
	}

	isFloat := false
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar() // consume .
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		isFloat = true
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			return l.errorf(pos, "malformed exponent in %q", l.input[start:l.pos])
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if isLetter(l.ch) || l.ch == '_' {
		return l.errorf(pos, "invalid character %q in number", l.ch)
	}

	lit := l.input[start:l.pos]
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return l.errorf(pos, "invalid float literal %q", lit)
		}
		tok := l.token(TokenFloat, lit, pos)
		tok.Float = f
		return tok
	}
	return l.intToken(lit, pos)
}

func (l *Lexer) intToken(lit string, pos Position) Token {
	v, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		return l.errorf(pos, "integer literal %s out of range", lit)
	}
	tok := l.token(TokenInteger, lit, pos)
	tok.Int = v
	return tok
}

// readIdentifier reads an identifier or reserved word.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	if tokType, ok := reservedWords[literal]; ok {
		return l.token(tokType, literal, pos)
	}
	return l.token(TokenIdentifier, literal, pos)
}

// operators lists punctuation longest first so that the first match wins.
var operators = []struct {
	text string
	typ  TokenType
}{
	{"**", TokenStarStar}, {"++", TokenPlusPlus}, {"--", TokenMinusMinus},
	{"||", TokenOrOr}, {"&&", TokenAndAnd}, {"==", TokenEq}, {"!=", TokenNe},
	{"<=", TokenLe}, {">=", TokenGe}, {"<<", TokenShl}, {">>", TokenShr},
	{"+=", TokenPlusAssign}, {"-=", TokenMinusAssign}, {"*=", TokenStarAssign},
	{"/=", TokenSlashAssign}, {"%=", TokenPercentAssign},
	{"(", TokenLParen}, {")", TokenRParen}, {"[", TokenLBracket}, {"]", TokenRBracket},
	{"{", TokenLBrace}, {"}", TokenRBrace}, {",", TokenComma}, {";", TokenSemicolon},
	{":", TokenColon}, {".", TokenDot}, {"?", TokenQuestion}, {"=", TokenAssign},
	{"|", TokenPipe}, {"^", TokenCaret}, {"&", TokenAmp}, {"<", TokenLt}, {">", TokenGt},
	{"+", TokenPlus}, {"-", TokenMinus}, {"*", TokenStar}, {"/", TokenSlash},
	{"%", TokenPercent}, {"!", TokenBang}, {"~", TokenTilde},
}

func (l *Lexer) readOperator(pos Position) Token {
	rest := l.input[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op.text) {
			for range op.text {
				l.readChar()
			}
			return l.token(op.typ, op.text, pos)
		}
	}
	ch := l.ch
	l.readChar()
	return l.errorf(pos, "unexpected character: %c", ch)
}

// Helper functions

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func hexValue(r rune) rune {
	switch {
	case isDigit(r):
		return r - '0'
	case r >= 'a' && r <= 'f':
		return r - 'a' + 10
	}
	return r - 'A' + 10
}

// Tokenize returns all tokens from the input.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
