package lexer

import (
	"fmt"

	"github.com/opal-lang/rash/core/ast"
)

// TokenType represents lexical tokens of the restricted language
type TokenType int

const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL

	// Literals and names
	IDENTIFIER // main, path, _
	INTEGER    // 42, 0x2a, 1_000, 7i32
	FLOAT      // 1.5, 2e10 (lexed so the parser can reject them by name)
	STRING     // "text", r"raw", r#"raw"#
	CHAR       // 'c'
	LIFETIME   // 'static

	// Keywords the grammar accepts
	FN     // fn
	LET    // let
	MUT    // mut
	IF     // if
	ELSE   // else
	RETURN // return
	MATCH  // match
	TRUE   // true
	FALSE  // false

	// RESERVED covers every other Rust keyword. The parser rejects them
	// with a message naming the construct.
	RESERVED

	// Brackets and braces
	LPAREN  // (
	RPAREN  // )
	LBRACE  // {
	RBRACE  // }
	LSQUARE // [
	RSQUARE // ]

	// Punctuation
	COMMA      // ,
	SEMICOLON  // ;
	COLON      // :
	COLONCOLON // ::
	DOT        // .
	DOTDOT     // .. and ..=
	ARROW      // ->
	FATARROW   // =>
	EQUALS     // =
	HASH       // #
	AMP        // &
	PIPE       // |
	QUESTION   // ?
	ASSIGN_OP  // += -= *= /= %= and friends

	// Operators
	PLUS     // +
	MINUS    // -
	MULTIPLY // *
	DIVIDE   // /
	MODULO   // %
	EQ_EQ    // ==
	NOT_EQ   // !=
	LT       // <
	LT_EQ    // <=
	GT       // >
	GT_EQ    // >=
	AND_AND  // &&
	OR_OR    // ||
	NOT      // !
)

var tokenNames = map[TokenType]string{
	EOF:        "EOF",
	ILLEGAL:    "ILLEGAL",
	IDENTIFIER: "IDENTIFIER",
	INTEGER:    "INTEGER",
	FLOAT:      "FLOAT",
	STRING:     "STRING",
	CHAR:       "CHAR",
	LIFETIME:   "LIFETIME",
	FN:         "FN",
	LET:        "LET",
	MUT:        "MUT",
	IF:         "IF",
	ELSE:       "ELSE",
	RETURN:     "RETURN",
	MATCH:      "MATCH",
	TRUE:       "TRUE",
	FALSE:      "FALSE",
	RESERVED:   "RESERVED",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	LSQUARE:    "LSQUARE",
	RSQUARE:    "RSQUARE",
	COMMA:      "COMMA",
	SEMICOLON:  "SEMICOLON",
	COLON:      "COLON",
	COLONCOLON: "COLONCOLON",
	DOT:        "DOT",
	DOTDOT:     "DOTDOT",
	ARROW:      "ARROW",
	FATARROW:   "FATARROW",
	EQUALS:     "EQUALS",
	HASH:       "HASH",
	AMP:        "AMP",
	PIPE:       "PIPE",
	QUESTION:   "QUESTION",
	ASSIGN_OP:  "ASSIGN_OP",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	MULTIPLY:   "MULTIPLY",
	DIVIDE:     "DIVIDE",
	MODULO:     "MODULO",
	EQ_EQ:      "EQ_EQ",
	NOT_EQ:     "NOT_EQ",
	LT:         "LT",
	LT_EQ:      "LT_EQ",
	GT:         "GT",
	GT_EQ:      "GT_EQ",
	AND_AND:    "AND_AND",
	OR_OR:      "OR_OR",
	NOT:        "NOT",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

var keywords = map[string]TokenType{
	"fn":     FN,
	"let":    LET,
	"mut":    MUT,
	"if":     IF,
	"else":   ELSE,
	"return": RETURN,
	"match":  MATCH,
	"true":   TRUE,
	"false":  FALSE,
}

// reserved are Rust keywords outside the accepted subset.
var reserved = map[string]bool{
	"as": true, "async": true, "await": true, "break": true, "const": true,
	"continue": true, "crate": true, "dyn": true, "enum": true, "extern": true,
	"for": true, "impl": true, "in": true, "loop": true, "mod": true,
	"move": true, "pub": true, "ref": true, "self": true, "Self": true,
	"static": true, "struct": true, "super": true, "trait": true, "type": true,
	"unsafe": true, "use": true, "where": true, "while": true, "yield": true,
	"box": true, "macro_rules": true, "union": true, "try": true,
}

// Token represents a lexical token
type Token struct {
	Type     TokenType
	Text     string // Raw source text
	Position ast.Position
	End      ast.Position

	// Value is the decoded content of STRING tokens.
	Value string

	// Int, Suffix and Overflow describe INTEGER tokens. Overflow is set when
	// the literal does not fit in 64 bits.
	Int      uint64
	Suffix   string
	Overflow bool

	// Err describes why an ILLEGAL token was produced.
	Err string
}

// Span returns the source range covered by the token.
func (t Token) Span() ast.Span {
	return ast.Span{Start: t.Position, End: t.End}
}

// String returns the token text (for testing and debugging)
func (t Token) String() string {
	if t.Type == EOF {
		return "end of input"
	}
	return t.Text
}
