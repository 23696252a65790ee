// Package lexer tokenizes the restricted source language.
//
// The lexer never fails: malformed input becomes ILLEGAL tokens carrying a
// description in Token.Err, and the parser turns the first one into a
// ParseError. Comments and whitespace are skipped.
package lexer

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/opal-lang/rash/core/ast"
)

// LexerOpt represents a lexer configuration option
type LexerOpt func(*Lexer)

// WithLogger routes per-token debug events to logger.
func WithLogger(logger *slog.Logger) LexerOpt {
	return func(l *Lexer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Lexer converts source text into tokens one at a time.
type Lexer struct {
	input  string
	pos    int // Byte offset of the next unread byte
	line   int
	column int

	logger *slog.Logger
	count  int // Tokens produced so far, EOF included
}

// NewLexer creates a new lexer instance with optional configuration
func NewLexer(input string, opts ...LexerOpt) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 1,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TokenCount returns the number of tokens produced so far.
func (l *Lexer) TokenCount() int {
	return l.count
}

// GetTokens returns all remaining tokens, ending with EOF.
func (l *Lexer) GetTokens() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

// NextToken returns the next token. After EOF it keeps returning EOF.
func (l *Lexer) NextToken() Token {
	tok := l.lexToken()
	l.count++
	l.logger.Debug("token", "type", tok.Type, "text", tok.Text, "pos", tok.Position)
	return tok
}

func (l *Lexer) here() ast.Position {
	return ast.Position{Line: l.line, Column: l.column, Offset: l.pos}
}

func (l *Lexer) peek(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// advance consumes one rune and updates line and column.
func (l *Lexer) advance() {
	if l.atEOF() {
		return
	}
	ch := l.input[l.pos]
	if ch < utf8.RuneSelf {
		l.pos++
		if ch == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		return
	}
	_, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	l.column++
}

func (l *Lexer) token(typ TokenType, start ast.Position) Token {
	return Token{
		Type:     typ,
		Text:     l.input[start.Offset:l.pos],
		Position: start,
		End:      l.here(),
	}
}

func (l *Lexer) illegal(start ast.Position, format string, args ...any) Token {
	if l.pos == start.Offset {
		l.advance()
	}
	tok := l.token(ILLEGAL, start)
	tok.Err = fmt.Sprintf(format, args...)
	return tok
}

func isIdentStart(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

// lexToken performs the actual tokenization work
func (l *Lexer) lexToken() Token {
	if tok, ok := l.skipTrivia(); !ok {
		return tok
	}

	start := l.here()
	if l.atEOF() {
		return Token{Type: EOF, Position: start, End: start}
	}

	ch := l.input[l.pos]
	if ch >= utf8.RuneSelf {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		switch {
		case r == utf8.RuneError && size == 1:
			return l.illegal(start, "invalid UTF-8 encoding")
		case unicode.IsLetter(r):
			return l.illegal(start, "non-ASCII identifiers are not supported")
		default:
			return l.illegal(start, "unexpected character %q", r)
		}
	}

	switch {
	case ch == 'r' && (l.peek(1) == '"' || (l.peek(1) == '#' && l.rawHashesThenQuote())):
		return l.lexRawString(start)
	case ch == 'r' && l.peek(1) == '#' && isIdentStart(l.peek(2)):
		l.advance()
		l.advance()
		l.lexIdentText()
		return l.illegal(start, "raw identifiers are not supported")
	case ch == 'b' && (l.peek(1) == '"' || l.peek(1) == '\'' || (l.peek(1) == 'r' && (l.peek(2) == '"' || l.peek(2) == '#'))):
		l.advance()
		return l.illegal(start, "byte literals are not supported")
	case isIdentStart(ch):
		text := l.lexIdentText()
		if typ, ok := keywords[text]; ok {
			return l.token(typ, start)
		}
		if reserved[text] {
			return l.token(RESERVED, start)
		}
		return l.token(IDENTIFIER, start)
	case isDigit(ch):
		return l.lexNumber(start)
	case ch == '"':
		return l.lexString(start)
	case ch == '\'':
		return l.lexQuote(start)
	}

	return l.lexPunct(start, ch)
}

// skipTrivia skips whitespace and comments. It returns false with an
// ILLEGAL token when a block comment is not terminated.
func (l *Lexer) skipTrivia() (Token, bool) {
	for !l.atEOF() {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\v' || ch == '\f':
			l.advance()
		case ch == '/' && l.peek(1) == '/':
			for !l.atEOF() && l.input[l.pos] != '\n' {
				l.advance()
			}
		case ch == '/' && l.peek(1) == '*':
			start := l.here()
			if !l.skipBlockComment() {
				tok := l.token(ILLEGAL, start)
				tok.Err = "unterminated block comment"
				return tok, false
			}
		case ch >= utf8.RuneSelf:
			r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
			if r == utf8.RuneError || !unicode.IsSpace(r) {
				return Token{}, true
			}
			l.advance()
		default:
			return Token{}, true
		}
	}
	return Token{}, true
}

// skipBlockComment consumes a possibly nested /* */ comment.
func (l *Lexer) skipBlockComment() bool {
	depth := 0
	for !l.atEOF() {
		switch {
		case l.input[l.pos] == '/' && l.peek(1) == '*':
			depth++
			l.advance()
			l.advance()
		case l.input[l.pos] == '*' && l.peek(1) == '/':
			depth--
			l.advance()
			l.advance()
			if depth == 0 {
				return true
			}
		default:
			l.advance()
		}
	}
	return false
}

func (l *Lexer) lexIdentText() string {
	start := l.pos
	for !l.atEOF() && isIdentPart(l.input[l.pos]) {
		l.advance()
	}
	return l.input[start:l.pos]
}

// rawHashesThenQuote reports whether the input at pos+1 is `#...#"`.
func (l *Lexer) rawHashesThenQuote() bool {
	i := l.pos + 1
	for i < len(l.input) && l.input[i] == '#' {
		i++
	}
	return i < len(l.input) && l.input[i] == '"'
}

func (l *Lexer) lexRawString(start ast.Position) Token {
	l.advance() // r
	hashes := 0
	for l.peek(0) == '#' {
		hashes++
		l.advance()
	}
	l.advance() // opening quote

	closing := "\"" + strings.Repeat("#", hashes)
	end := strings.Index(l.input[l.pos:], closing)
	if end < 0 {
		for !l.atEOF() {
			l.advance()
		}
		tok := l.token(ILLEGAL, start)
		tok.Err = "unterminated raw string literal"
		return tok
	}

	value := l.input[l.pos : l.pos+end]
	for i := 0; i < end+len(closing); {
		_, size := utf8.DecodeRuneInString(l.input[l.pos:])
		l.advance()
		i += size
	}
	tok := l.token(STRING, start)
	tok.Value = value
	return tok
}

// lexString decodes a double-quoted literal. On a malformed escape it keeps
// scanning to the closing quote so the ILLEGAL token covers the literal.
func (l *Lexer) lexString(start ast.Position) Token {
	l.advance() // opening quote

	var sb strings.Builder
	var errMsg string
	for {
		if l.atEOF() {
			tok := l.token(ILLEGAL, start)
			tok.Err = "unterminated string literal"
			return tok
		}

		ch := l.input[l.pos]
		if ch == '"' {
			l.advance()
			break
		}
		if ch != '\\' {
			_, size := utf8.DecodeRuneInString(l.input[l.pos:])
			sb.WriteString(l.input[l.pos : l.pos+size])
			l.advance()
			continue
		}

		escStart := l.here()
		l.advance() // backslash
		if err := l.lexEscape(&sb); err != "" && errMsg == "" {
			errMsg = fmt.Sprintf("%s at %s", err, escStart)
		}
	}

	if errMsg != "" {
		tok := l.token(ILLEGAL, start)
		tok.Err = errMsg
		return tok
	}
	tok := l.token(STRING, start)
	tok.Value = sb.String()
	return tok
}

// lexEscape decodes one escape sequence after the backslash.
// It returns a non-empty description when the escape is invalid.
func (l *Lexer) lexEscape(sb *strings.Builder) string {
	if l.atEOF() {
		return "unterminated escape"
	}

	ch := l.input[l.pos]
	switch ch {
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case '\\':
		sb.WriteByte('\\')
	case '0':
		sb.WriteByte(0)
	case '\'', '"':
		sb.WriteByte(ch)
	case 'x':
		l.advance()
		hi, lo := l.peek(0), l.peek(1)
		h, okHi := hexVal(hi)
		d, okLo := hexVal(lo)
		if !okHi || !okLo {
			return "invalid \\x escape"
		}
		l.advance()
		l.advance()
		v := h<<4 | d
		if v > 0x7f {
			return "\\x escape out of range; use \\u{...} for non-ASCII characters"
		}
		sb.WriteByte(byte(v))
		return ""
	case 'u':
		return l.lexUnicodeEscape(sb)
	case '\n', '\r':
		// Line continuation: skip the newline and leading whitespace.
		for !l.atEOF() {
			c := l.input[l.pos]
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				break
			}
			l.advance()
		}
		return ""
	default:
		r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
		l.advance()
		return fmt.Sprintf("unknown character escape '\\%c'", r)
	}
	l.advance()
	return ""
}

func (l *Lexer) lexUnicodeEscape(sb *strings.Builder) string {
	l.advance() // u
	if l.peek(0) != '{' {
		return "invalid unicode escape; expected \\u{...}"
	}
	l.advance()

	var v rune
	digits := 0
	for !l.atEOF() && l.input[l.pos] != '}' {
		c := l.input[l.pos]
		if c == '"' {
			return "unterminated unicode escape"
		}
		l.advance()
		if c == '_' {
			continue
		}
		d, ok := hexVal(c)
		if !ok {
			return "invalid character in unicode escape"
		}
		digits++
		if digits > 6 {
			return "overlong unicode escape"
		}
		v = v<<4 | rune(d)
	}
	if l.atEOF() {
		return "unterminated unicode escape"
	}
	l.advance() // }

	if digits == 0 {
		return "empty unicode escape"
	}
	if v > unicode.MaxRune || (v >= 0xD800 && v <= 0xDFFF) {
		return "invalid unicode character escape"
	}
	sb.WriteRune(v)
	return ""
}

func hexVal(c byte) (int, bool) {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0'), true
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10, true
	case 'A' <= c && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}

// lexQuote distinguishes a char literal ('c', '\n') from a lifetime ('static).
func (l *Lexer) lexQuote(start ast.Position) Token {
	l.advance() // opening quote
	if l.atEOF() {
		return l.illegal(start, "unterminated character literal")
	}

	if l.input[l.pos] == '\\' {
		l.advance()
		var sb strings.Builder
		l.lexEscape(&sb)
		if l.peek(0) != '\'' {
			return l.illegal(start, "unterminated character literal")
		}
		l.advance()
		return l.token(CHAR, start)
	}

	first := l.input[l.pos]
	_, size := utf8.DecodeRuneInString(l.input[l.pos:])
	if l.pos+size < len(l.input) && l.input[l.pos+size] == '\'' {
		l.advance()
		l.advance()
		return l.token(CHAR, start)
	}

	if isIdentStart(first) {
		l.lexIdentText()
		if l.peek(0) == '\'' {
			l.advance()
			return l.illegal(start, "character literal may only contain one codepoint")
		}
		return l.token(LIFETIME, start)
	}

	return l.illegal(start, "unterminated character literal")
}

// lexNumber tokenizes integer literals and recognizes float forms so the
// parser can reject them by name.
func (l *Lexer) lexNumber(start ast.Position) Token {
	base := uint64(10)
	if l.input[l.pos] == '0' {
		switch l.peek(1) {
		case 'x':
			base = 16
		case 'o':
			base = 8
		case 'b':
			base = 2
		}
		if base != 10 {
			l.advance()
			l.advance()
		}
	}

	var value uint64
	var overflow bool
	digits := 0
	var badDigit byte
	for !l.atEOF() {
		c := l.input[l.pos]
		if c == '_' {
			l.advance()
			continue
		}
		d, ok := hexVal(c)
		if !ok || (base == 10 && !isDigit(c)) {
			break
		}
		if base == 16 || isDigit(c) {
			if uint64(d) >= base {
				if badDigit == 0 {
					badDigit = c
				}
			} else if value > (^uint64(0)-uint64(d))/base {
				overflow = true
			} else {
				value = value*base + uint64(d)
			}
			digits++
			l.advance()
			continue
		}
		break
	}

	if base == 10 && l.isFloatContinuation() {
		l.lexFloatTail()
		return l.token(FLOAT, start)
	}

	suffix := ""
	if !l.atEOF() && isIdentStart(l.input[l.pos]) {
		suffix = l.lexIdentText()
	}

	switch {
	case digits == 0:
		return l.illegal(start, "missing digits after integer base prefix")
	case badDigit != 0:
		return l.illegal(start, "invalid digit %q in base %d literal", badDigit, base)
	case base == 10 && (suffix == "f32" || suffix == "f64"):
		return l.token(FLOAT, start)
	}

	tok := l.token(INTEGER, start)
	tok.Int = value
	tok.Suffix = suffix
	tok.Overflow = overflow
	return tok
}

// isFloatContinuation reports whether a decimal integer continues as a float:
// `1.5`, `1.` (not `1..` or `1.len()`), or an exponent.
func (l *Lexer) isFloatContinuation() bool {
	switch l.peek(0) {
	case '.':
		next := l.peek(1)
		return next != '.' && !isIdentStart(next)
	case 'e', 'E':
		next := l.peek(1)
		if next == '+' || next == '-' {
			next = l.peek(2)
		}
		return isDigit(next)
	}
	return false
}

func (l *Lexer) lexFloatTail() {
	if l.peek(0) == '.' {
		l.advance()
		for !l.atEOF() && (isDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
			l.advance()
		}
	}
	if c := l.peek(0); c == 'e' || c == 'E' {
		l.advance()
		if c := l.peek(0); c == '+' || c == '-' {
			l.advance()
		}
		for !l.atEOF() && (isDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
			l.advance()
		}
	}
	if !l.atEOF() && isIdentStart(l.input[l.pos]) {
		l.lexIdentText()
	}
}

func (l *Lexer) lexPunct(start ast.Position, ch byte) Token {
	next := l.peek(1)
	two := func(typ TokenType) Token {
		l.advance()
		l.advance()
		return l.token(typ, start)
	}
	one := func(typ TokenType) Token {
		l.advance()
		return l.token(typ, start)
	}

	switch ch {
	case '(':
		return one(LPAREN)
	case ')':
		return one(RPAREN)
	case '{':
		return one(LBRACE)
	case '}':
		return one(RBRACE)
	case '[':
		return one(LSQUARE)
	case ']':
		return one(RSQUARE)
	case ',':
		return one(COMMA)
	case ';':
		return one(SEMICOLON)
	case '#':
		return one(HASH)
	case '?':
		return one(QUESTION)
	case ':':
		if next == ':' {
			return two(COLONCOLON)
		}
		return one(COLON)
	case '.':
		if next == '.' {
			l.advance()
			l.advance()
			if l.peek(0) == '.' || l.peek(0) == '=' {
				l.advance()
			}
			return l.token(DOTDOT, start)
		}
		return one(DOT)
	case '=':
		switch next {
		case '=':
			return two(EQ_EQ)
		case '>':
			return two(FATARROW)
		}
		return one(EQUALS)
	case '!':
		if next == '=' {
			return two(NOT_EQ)
		}
		return one(NOT)
	case '<':
		switch next {
		case '=':
			return two(LT_EQ)
		case '<':
			return l.shiftOrAssign(start)
		}
		return one(LT)
	case '>':
		switch next {
		case '=':
			return two(GT_EQ)
		case '>':
			return l.shiftOrAssign(start)
		}
		return one(GT)
	case '&':
		switch next {
		case '&':
			return two(AND_AND)
		case '=':
			return two(ASSIGN_OP)
		}
		return one(AMP)
	case '|':
		switch next {
		case '|':
			return two(OR_OR)
		case '=':
			return two(ASSIGN_OP)
		}
		return one(PIPE)
	case '-':
		switch next {
		case '>':
			return two(ARROW)
		case '=':
			return two(ASSIGN_OP)
		}
		return one(MINUS)
	case '+', '*', '/', '%', '^':
		if next == '=' {
			return two(ASSIGN_OP)
		}
		switch ch {
		case '+':
			return one(PLUS)
		case '*':
			return one(MULTIPLY)
		case '/':
			return one(DIVIDE)
		case '%':
			return one(MODULO)
		}
		return l.illegal(start, "bitwise operators are not supported")
	}

	return l.illegal(start, "unexpected character %q", rune(ch))
}

// shiftOrAssign handles << >> <<= >>=, none of which are accepted.
func (l *Lexer) shiftOrAssign(start ast.Position) Token {
	l.advance()
	l.advance()
	if l.peek(0) == '=' {
		l.advance()
		return l.token(ASSIGN_OP, start)
	}
	return l.illegal(start, "bitwise operators are not supported")
}
