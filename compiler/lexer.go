package compiler

import (
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Nifki assembly
// ---------------------------------------------------------------------------

// Lexer splits assembly source into whitespace-separated tokens. Only
// space, tab, CR and LF separate tokens; a token that starts with '#'
// comments out the rest of the line.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	if input == "" {
		l.col = 1
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		if l.pos < len(l.input) {
			l.col++
		}
		l.ch = 0 // EOF
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()
	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos, End: pos}
	}

	switch {
	case l.ch == '"':
		return l.readString(pos)
	case l.ch >= '0' && l.ch <= '9':
		l.readRun(func(rune) bool { return true })
		return l.token(TokenNumber, pos)
	}

	l.readRun(func(ch rune) bool { return ch != '(' })
	if l.ch != '(' || l.pos == pos.Offset {
		// A run with no '(' after its first character is a bare word.
		l.readRun(func(rune) bool { return true })
		return l.token(TokenWord, pos)
	}

	name := l.input[pos.Offset:l.pos]
	l.readChar() // '('
	argStart := l.pos
	l.readRun(func(ch rune) bool { return ch != ')' })
	arg := l.input[argStart:l.pos]
	closed := l.ch == ')' && !l.atEOF()
	if closed {
		l.readChar()
	}
	tok := l.token(TokenCall, pos)
	tok.Name = name
	tok.Arg = arg
	tok.Closed = closed
	return tok
}

// readRun consumes non-space characters while more returns true.
func (l *Lexer) readRun(more func(rune) bool) {
	for !l.atEOF() && !isSpace(l.ch) && more(l.ch) {
		l.readChar()
	}
}

func (l *Lexer) token(typ TokenType, start Position) Token {
	return Token{
		Type:    typ,
		Literal: l.input[start.Offset:l.pos],
		Closed:  true,
		Pos:     start,
		End:     l.position(),
	}
}

// readString reads a double-quoted literal. Strings may span lines. Arg
// keeps the body with its escapes; DecodeString expands them.
func (l *Lexer) readString(start Position) Token {
	l.readChar() // opening quote
	bodyStart := l.pos
	for !l.atEOF() && l.ch != '"' {
		l.readChar()
	}
	if l.atEOF() {
		return Token{
			Type:    TokenError,
			Literal: "Unclosed string literal",
			Pos:     start,
			End:     l.position(),
		}
	}
	body := l.input[bodyStart:l.pos]
	l.readChar() // closing quote
	tok := l.token(TokenString, start)
	tok.Arg = body
	return tok
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEOF() {
		switch {
		case isSpace(l.ch):
			l.readChar()
		case l.ch == '#':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

// Tokenize returns every token of input, ending with EOF or the first
// error token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}
