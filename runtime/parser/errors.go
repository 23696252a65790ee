package parser

import (
	"fmt"
	"unicode/utf8"

	"github.com/opal-lang/rash/core/ast"
	"github.com/opal-lang/rash/runtime/lexer"
)

// ErrorKind categorizes parse errors
type ErrorKind int

const (
	ErrorSyntax      ErrorKind = iota // Malformed input for the accepted grammar
	ErrorUnsupported                  // A construct outside the accepted subset
	ErrorLexical                      // Malformed token (bad escape, unterminated literal)
	ErrorEncoding                     // Input is not valid UTF-8
	ErrorLimit                        // Nesting limit exceeded
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorSyntax:
		return "syntax error"
	case ErrorUnsupported:
		return "unsupported construct"
	case ErrorLexical:
		return "invalid token"
	case ErrorEncoding:
		return "invalid encoding"
	case ErrorLimit:
		return "nesting limit"
	default:
		return "error"
	}
}

// ParseError represents a parsing error with location and context information
type ParseError struct {
	Kind       ErrorKind
	Span       ast.Span
	Message    string
	Context    string          // What was being parsed: "parameter list", "match arm"
	Got        lexer.TokenType // Offending token type, when there is one
	Suggestion string          // Possible fix
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Span.Start, e.Kind, e.Message)
	if e.Context != "" {
		msg += " in " + e.Context
	}
	return msg
}

func (p *Parser) errorAt(kind ErrorKind, tok lexer.Token, format string, args ...any) *ParseError {
	return &ParseError{
		Kind:    kind,
		Span:    tok.Span(),
		Message: fmt.Sprintf(format, args...),
		Got:     tok.Type,
		Context: p.context,
	}
}

func (p *Parser) unsupported(tok lexer.Token, format string, args ...any) *ParseError {
	return p.errorAt(ErrorUnsupported, tok, format, args...)
}

// unexpected reports the current token where `want` was expected. ILLEGAL
// tokens report their own lexical error instead.
func (p *Parser) unexpected(want string) *ParseError {
	tok := p.cur()
	if tok.Type == lexer.ILLEGAL {
		return p.errorAt(ErrorLexical, tok, "%s", tok.Err)
	}
	return p.errorAt(ErrorSyntax, tok, "expected %s, found %s", want, describe(tok))
}

func describe(tok lexer.Token) string {
	if tok.Type == lexer.EOF {
		return "end of input"
	}
	return "`" + tok.Text + "`"
}

// encodingError locates the first invalid UTF-8 sequence in source.
func encodingError(source []byte) *ParseError {
	pos := ast.Position{Line: 1, Column: 1}
	for pos.Offset < len(source) {
		r, size := utf8.DecodeRune(source[pos.Offset:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		pos.Offset += size
		if r == '\n' {
			pos.Line++
			pos.Column = 1
		} else {
			pos.Column++
		}
	}
	end := pos
	end.Offset++
	return &ParseError{
		Kind:    ErrorEncoding,
		Span:    ast.Span{Start: pos, End: end},
		Message: fmt.Sprintf("invalid UTF-8 byte 0x%02x", source[pos.Offset]),
		Got:     lexer.ILLEGAL,
	}
}

// keywordMessage names the construct a reserved keyword introduces.
func keywordMessage(word string) string {
	switch word {
	case "for", "while", "loop":
		return fmt.Sprintf("`%s` loops are not supported", word)
	case "break", "continue":
		return fmt.Sprintf("`%s` is not supported; loops are not part of the language", word)
	case "impl":
		return "impl blocks are not supported"
	case "trait", "dyn":
		return "traits are not supported"
	case "struct", "union":
		return "struct definitions are not supported"
	case "enum":
		return "enum definitions are not supported"
	case "mod", "crate", "super", "extern":
		return "modules are not supported"
	case "use":
		return "`use` declarations are not supported"
	case "const", "static":
		return fmt.Sprintf("`%s` items are not supported", word)
	case "type":
		return "type aliases are not supported"
	case "unsafe":
		return "unsafe code is not supported"
	case "as":
		return "`as` casts are not supported"
	case "move":
		return "closures are not supported"
	case "async", "await", "yield":
		return "async code is not supported"
	case "pub":
		return "visibility modifiers are not supported"
	case "self", "Self":
		return "methods are not supported"
	case "where":
		return "generics are not supported"
	case "macro_rules":
		return "macro definitions are not supported"
	case "box":
		return "heap allocation is not supported"
	default:
		return fmt.Sprintf("keyword `%s` is not supported", word)
	}
}
