package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42, 0xFF, 'a'
	TokenFloat      // 3.14, 1.5e10
	TokenString     // "hello"
	TokenIdentifier // foo, Bar
	TokenReserved   // reserved for unsupported constructs: switch, try, ...

	// Keywords
	TokenVar
	TokenConst
	TokenFunction
	TokenClass
	TokenStruct
	TokenEnum
	TokenStatic
	TokenIf
	TokenElse
	TokenFor
	TokenWhile
	TokenBreak
	TokenContinue
	TokenReturn
	TokenNull
	TokenTrue
	TokenFalse
	TokenThis
	TokenBase
	TokenTypeof
	TokenImport

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenSemicolon // ;
	TokenColon     // :
	TokenDot       // .
	TokenQuestion  // ?

	// Assignment
	TokenAssign        // =
	TokenPlusAssign    // +=
	TokenMinusAssign   // -=
	TokenStarAssign    // *=
	TokenSlashAssign   // /=
	TokenPercentAssign // %=

	// Operators
	TokenOrOr       // ||
	TokenAndAnd     // &&
	TokenPipe       // |
	TokenCaret      // ^
	TokenAmp        // &
	TokenEq         // ==
	TokenNe         // !=
	TokenLt         // <
	TokenLe         // <=
	TokenGt         // >
	TokenGe         // >=
	TokenShl        // <<
	TokenShr        // >>
	TokenPlus       // +
	TokenMinus      // -
	TokenStar       // *
	TokenSlash      // /
	TokenPercent    // %
	TokenStarStar   // **
	TokenBang       // !
	TokenTilde      // ~
	TokenPlusPlus   // ++
	TokenMinusMinus // --
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenReserved:   "RESERVED",

	TokenVar:      "var",
	TokenConst:    "const",
	TokenFunction: "function",
	TokenClass:    "class",
	TokenStruct:   "struct",
	TokenEnum:     "enum",
	TokenStatic:   "static",
	TokenIf:       "if",
	TokenElse:     "else",
	TokenFor:      "for",
	TokenWhile:    "while",
	TokenBreak:    "break",
	TokenContinue: "continue",
	TokenReturn:   "return",
	TokenNull:     "null",
	TokenTrue:     "true",
	TokenFalse:    "false",
	TokenThis:     "this",
	TokenBase:     "base",
	TokenTypeof:   "typeof",
	TokenImport:   "import",

	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenComma:     ",",
	TokenSemicolon: ";",
	TokenColon:     ":",
	TokenDot:       ".",
	TokenQuestion:  "?",

	TokenAssign:        "=",
	TokenPlusAssign:    "+=",
	TokenMinusAssign:   "-=",
	TokenStarAssign:    "*=",
	TokenSlashAssign:   "/=",
	TokenPercentAssign: "%=",

	TokenOrOr:       "||",
	TokenAndAnd:     "&&",
	TokenPipe:       "|",
	TokenCaret:      "^",
	TokenAmp:        "&",
	TokenEq:         "==",
	TokenNe:         "!=",
	TokenLt:         "<",
	TokenLe:         "<=",
	TokenGt:         ">",
	TokenGe:         ">=",
	TokenShl:        "<<",
	TokenShr:        ">>",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenStarStar:   "**",
	TokenBang:       "!",
	TokenTilde:      "~",
	TokenPlusPlus:   "++",
	TokenMinusMinus: "--",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in source text.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based
	Column int // 1-based, in bytes
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string // raw text, or the decoded value for strings
	Int     int64
	Float   float64
	Pos     Position // start position
	End     int      // offset just past the token
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Describe renders the token for error messages.
func (t Token) Describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenIdentifier:
		return fmt.Sprintf("identifier '%s'", t.Literal)
	case TokenInteger, TokenFloat:
		return fmt.Sprintf("number %s", t.Literal)
	case TokenString:
		return fmt.Sprintf("string %q", t.Literal)
	case TokenReserved:
		return fmt.Sprintf("reserved word '%s'", t.Literal)
	}
	return fmt.Sprintf("'%s'", t.Type)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"var":      TokenVar,
	"const":    TokenConst,
	"function": TokenFunction,
	"class":    TokenClass,
	"struct":   TokenStruct,
	"enum":     TokenEnum,
	"static":   TokenStatic,
	"if":       TokenIf,
	"else":     TokenElse,
	"for":      TokenFor,
	"while":    TokenWhile,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"return":   TokenReturn,
	"null":     TokenNull,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"this":     TokenThis,
	"base":     TokenBase,
	"typeof":   TokenTypeof,
	"import":   TokenImport,

	"switch":   TokenReserved,
	"case":     TokenReserved,
	"default":  TokenReserved,
	"try":      TokenReserved,
	"catch":    TokenReserved,
	"throw":    TokenReserved,
	"do":       TokenReserved,
	"yield":    TokenReserved,
	"resume":   TokenReserved,
	"delete":   TokenReserved,
}

// Keywords returns the words the language uses, sorted. Words reserved for
// future use are left out.
func Keywords() []string {
	var words []string
	for w, t := range reservedWords {
		if t != TokenReserved {
			words = append(words, w)
		}
	}
	sort.Strings(words)
	return words
}

// isAssignOp reports whether t is = or a compound assignment.
func isAssignOp(t TokenType) bool {
	switch t {
	case TokenAssign, TokenPlusAssign, TokenMinusAssign, TokenStarAssign, TokenSlashAssign, TokenPercentAssign:
		return true
	}
	return false
}
