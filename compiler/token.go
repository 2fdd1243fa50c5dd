package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for Nifki assembly
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenString // "hello"
	TokenNumber // 42, 0.5, 1e3

	// Words
	TokenCall // LOAD(x), DEF(main), BREAK(2)
	TokenWord // +, GET, IF, ;
)

var tokenNames = map[TokenType]string{
	TokenEOF:    "EOF",
	TokenError:  "ERROR",
	TokenString: "STRING",
	TokenNumber: "NUMBER",
	TokenCall:   "CALL",
	TokenWord:   "WORD",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in the source text.
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Column int // 1-based, in runes
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string // the raw text, or the error message for TokenError
	// Name and Arg split a call-form token NAME(ARG). For a string, Arg
	// is the unquoted contents.
	Name string
	Arg  string
	// Closed is false for a call form missing its ')'.
	Closed bool
	Pos    Position
	End    Position
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
