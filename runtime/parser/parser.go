// Package parser builds the restricted syntax tree from source text.
//
// The parser is recursive descent over a pre-lexed token slice. It accepts
// only the allow-listed grammar and fails at the first construct outside it
// with a spanned *ParseError naming that construct. It never panics on any
// input.
package parser

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/opal-lang/rash/core/ast"
	"github.com/opal-lang/rash/core/types"
	"github.com/opal-lang/rash/runtime/lexer"
)

// formatMacros are the interpolating macros the grammar accepts.
var formatMacros = map[string]bool{
	"format":   true,
	"print":    true,
	"println":  true,
	"eprint":   true,
	"eprintln": true,
}

// Parser holds parsing state for a single source file.
type Parser struct {
	tokens   []lexer.Token
	pos      int
	depth    int
	maxDepth int
	maxChain int
	deepest  int
	context  string
	logger   *slog.Logger
}

// Parse parses source into a Program.
func Parse(source []byte, opts ...ParserOpt) (*ast.Program, error) {
	config := &ParserConfig{
		maxDepth: DefaultMaxDepth,
		maxChain: DefaultMaxChain,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(config)
	}

	if !utf8.Valid(source) {
		if config.sink != nil {
			*config.sink = ParseTelemetry{ErrorCount: 1}
		}
		return nil, encodingError(source)
	}

	var lexStart, parseStart time.Time
	timing := config.telemetry >= TelemetryTiming
	if timing {
		lexStart = time.Now()
	}

	lex := lexer.NewLexer(string(source), lexer.WithLogger(config.logger))
	tokens := lex.GetTokens()

	p := &Parser{
		tokens:   tokens,
		maxDepth: config.maxDepth,
		maxChain: config.maxChain,
		logger:   config.logger,
	}

	if timing {
		parseStart = time.Now()
	}
	prog, err := p.parseProgram()

	if config.sink != nil && config.telemetry > TelemetryOff {
		t := ParseTelemetry{
			TokenCount: len(tokens),
			MaxDepth:   p.deepest,
		}
		if prog != nil {
			t.FunctionCount = len(prog.Functions)
		}
		if err != nil {
			t.ErrorCount = 1
		}
		if timing {
			end := time.Now()
			t.LexTime = parseStart.Sub(lexStart)
			t.ParseTime = end.Sub(parseStart)
			t.TotalTime = end.Sub(lexStart)
		}
		*config.sink = t
	}

	if err != nil {
		p.logger.Debug("parse failed", "error", err)
		return nil, err
	}
	p.logger.Debug("parsed", "functions", len(prog.Functions), "tokens", len(tokens))
	return prog, nil
}

// ============================================================================
// Token access
// ============================================================================

func (p *Parser) cur() lexer.Token {
	return p.tokens[p.pos]
}

func (p *Parser) peek(n int) lexer.Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		idx = len(p.tokens) - 1
	}
	return p.tokens[idx]
}

func (p *Parser) at(typ lexer.TokenType) bool {
	return p.tokens[p.pos].Type == typ
}

// next consumes the current token. EOF is never consumed.
func (p *Parser) next() lexer.Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(typ lexer.TokenType, want string) (lexer.Token, error) {
	if !p.at(typ) {
		return lexer.Token{}, p.unexpected(want)
	}
	return p.next(), nil
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > p.deepest {
		p.deepest = p.depth
	}
	if p.depth > p.maxDepth {
		return p.errorAt(ErrorLimit, p.cur(), "nesting exceeds the maximum depth of %d", p.maxDepth)
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

// ============================================================================
// Items
// ============================================================================

func (p *Parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	first := p.cur()

	for !p.at(lexer.EOF) {
		switch tok := p.cur(); tok.Type {
		case lexer.FN:
			fn, err := p.parseFunction()
			if err != nil {
				return nil, err
			}
			prog.Functions = append(prog.Functions, fn)
		case lexer.HASH:
			return nil, p.unsupported(tok, "attributes are not supported")
		case lexer.RESERVED:
			return nil, p.unsupported(tok, "%s", keywordMessage(tok.Text))
		default:
			return nil, p.unexpected("a function definition")
		}
	}

	prog.Loc = first.Span().To(p.cur().Span())
	return prog, nil
}

func (p *Parser) parseFunction() (*ast.Function, error) {
	fnTok := p.next()

	nameTok, err := p.expect(lexer.IDENTIFIER, "a function name")
	if err != nil {
		return nil, err
	}
	if p.at(lexer.LT) {
		return nil, p.unsupported(p.cur(), "generics are not supported")
	}

	fn := &ast.Function{
		Name:    nameTok.Text,
		NameLoc: nameTok.Span(),
		Return:  types.Unit,
	}

	saved := p.context
	p.context = "parameter list of `" + fn.Name + "`"
	if _, err := p.expect(lexer.LPAREN, "`(`"); err != nil {
		return nil, err
	}
	for !p.at(lexer.RPAREN) {
		param, err := p.parseParam()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, param)
		if !p.at(lexer.RPAREN) {
			if _, err := p.expect(lexer.COMMA, "`,` or `)`"); err != nil {
				return nil, err
			}
		}
	}
	p.next()
	p.context = saved

	if p.at(lexer.ARROW) {
		p.next()
		ret, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Return = ret
	}
	if tok := p.cur(); tok.Type == lexer.RESERVED {
		return nil, p.unsupported(tok, "%s", keywordMessage(tok.Text))
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	markTail(body)

	fn.Body = body
	fn.Loc = fnTok.Span().To(body.Loc)
	return fn, nil
}

func (p *Parser) parseParam() (*ast.Param, error) {
	tok := p.cur()
	switch tok.Type {
	case lexer.MUT:
		return nil, p.unsupported(tok, "mutable parameters are not supported")
	case lexer.AMP, lexer.RESERVED:
		if tok.Type == lexer.AMP || tok.Text == "self" {
			return nil, p.unsupported(tok, "methods are not supported")
		}
	}

	name, err := p.expect(lexer.IDENTIFIER, "a parameter name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.COLON, "`:`"); err != nil {
		return nil, err
	}
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	return &ast.Param{
		Name: name.Text,
		Type: typ,
		Loc:  name.Span().To(p.tokens[p.pos-1].Span()),
	}, nil
}

var unsupportedIntTypes = map[string]bool{
	"i8": true, "i16": true, "i64": true, "i128": true, "isize": true,
	"u8": true, "u16": true, "u32": true, "u64": true, "u128": true, "usize": true,
}

// parseType accepts &str, &'static str, String, i32, bool and ().
func (p *Parser) parseType() (types.Type, error) {
	tok := p.cur()
	switch tok.Type {
	case lexer.AMP, lexer.AND_AND:
		if tok.Type == lexer.AND_AND {
			return types.Invalid, p.unsupported(tok, "only `&str` references are supported")
		}
		p.next()
		if p.at(lexer.LIFETIME) {
			p.next()
		}
		if p.at(lexer.MUT) {
			return types.Invalid, p.unsupported(p.cur(), "mutable references are not supported")
		}
		if target := p.cur(); target.Type != lexer.IDENTIFIER || target.Text != "str" {
			return types.Invalid, p.unsupported(target, "only `&str` references are supported")
		}
		p.next()
		return types.Str, nil

	case lexer.IDENTIFIER:
		p.next()
		if p.at(lexer.LT) {
			return types.Invalid, p.unsupported(tok, "generic type `%s<...>` is not supported", tok.Text)
		}
		if p.at(lexer.COLONCOLON) {
			return types.Invalid, p.unsupported(tok, "paths are not supported")
		}
		switch name := tok.Text; {
		case name == "String":
			return types.Str, nil
		case name == "i32":
			return types.I32, nil
		case name == "bool":
			return types.Bool, nil
		case name == "str":
			return types.Invalid, p.unsupported(tok, "bare `str` is not supported; use `&str`")
		case unsupportedIntTypes[name]:
			return types.Invalid, p.unsupported(tok, "integer type `%s` is not supported; use `i32`", name)
		case name == "f32" || name == "f64":
			return types.Invalid, p.unsupported(tok, "floating point types are not supported")
		case name == "char":
			return types.Invalid, p.unsupported(tok, "`char` is not supported; use `&str`")
		default:
			return types.Invalid, p.unsupported(tok, "type `%s` is not supported", name)
		}

	case lexer.LPAREN:
		p.next()
		if p.at(lexer.RPAREN) {
			p.next()
			return types.Unit, nil
		}
		return types.Invalid, p.unsupported(tok, "tuple types are not supported")
	case lexer.LSQUARE:
		return types.Invalid, p.unsupported(tok, "array and slice types are not supported")
	case lexer.MULTIPLY:
		return types.Invalid, p.unsupported(tok, "raw pointers are not supported")
	case lexer.NOT:
		return types.Invalid, p.unsupported(tok, "the never type is not supported")
	case lexer.FN, lexer.RESERVED:
		return types.Invalid, p.unsupported(tok, "function and trait object types are not supported")
	}
	return types.Invalid, p.unexpected("a type")
}

// markTail rewrites a trailing semicolon-less expression in tail position
// into an implicit return, following if/match/block arms.
func markTail(block *ast.Block) {
	if len(block.Stmts) == 0 {
		return
	}
	last := len(block.Stmts) - 1
	switch s := block.Stmts[last].(type) {
	case *ast.ExprStmt:
		if s.Tail {
			block.Stmts[last] = &ast.ReturnStmt{Value: s.X, Implicit: true, Loc: s.Loc}
		}
	case *ast.IfStmt:
		for _, arm := range s.Arms {
			markTail(arm.Body)
		}
		if s.Else != nil {
			markTail(s.Else)
		}
	case *ast.MatchStmt:
		for _, arm := range s.Arms {
			markTail(arm.Body)
		}
	case *ast.BlockStmt:
		markTail(s.Body)
	}
}

// ============================================================================
// Statements
// ============================================================================

func (p *Parser) parseBlock() (*ast.Block, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	open, err := p.expect(lexer.LBRACE, "`{`")
	if err != nil {
		return nil, err
	}

	block := &ast.Block{}
	for !p.at(lexer.RBRACE) {
		if p.at(lexer.EOF) {
			e := p.errorAt(ErrorSyntax, p.cur(), "unclosed block opened at %s", open.Position)
			e.Suggestion = "add a closing `}`"
			return nil, e
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
	}
	closeTok := p.next()
	block.Loc = open.Span().To(closeTok.Span())
	return block, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch tok := p.cur(); tok.Type {
	case lexer.SEMICOLON:
		p.next()
		return nil, nil
	case lexer.LET:
		return p.parseLet()
	case lexer.IF:
		return p.parseIf()
	case lexer.MATCH:
		return p.parseMatch()
	case lexer.RETURN:
		return p.parseReturn()
	case lexer.LBRACE:
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ast.BlockStmt{Body: body}, nil
	case lexer.FN:
		return nil, p.unsupported(tok, "nested functions are not supported")
	case lexer.HASH:
		return nil, p.unsupported(tok, "attributes are not supported")
	case lexer.RESERVED:
		return nil, p.unsupported(tok, "%s", keywordMessage(tok.Text))
	case lexer.LIFETIME:
		return nil, p.unsupported(tok, "loop labels are not supported")
	}
	return p.parseExprStmt()
}

func (p *Parser) parseExprStmt() (ast.Stmt, error) {
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	switch tok := p.cur(); tok.Type {
	case lexer.SEMICOLON:
		p.next()
		return &ast.ExprStmt{X: x, Loc: x.Span().To(tok.Span())}, nil
	case lexer.RBRACE:
		return &ast.ExprStmt{X: x, Tail: true, Loc: x.Span()}, nil
	case lexer.EQUALS:
		return nil, p.unsupported(tok, "assignment is not supported; bindings are immutable")
	case lexer.ASSIGN_OP:
		return nil, p.unsupported(tok, "compound assignment is not supported; bindings are immutable")
	case lexer.QUESTION:
		return nil, p.unsupported(tok, "the `?` operator is not supported")
	case lexer.DOTDOT:
		return nil, p.unsupported(tok, "ranges are not supported")
	}
	return nil, p.unexpected("`;`")
}

func (p *Parser) parseLet() (ast.Stmt, error) {
	letTok := p.next()

	switch tok := p.cur(); tok.Type {
	case lexer.MUT:
		e := p.unsupported(tok, "mutable bindings (`let mut`) are not supported")
		e.Suggestion = "bind a new name instead of mutating"
		return nil, e
	case lexer.LPAREN, lexer.LSQUARE:
		return nil, p.unsupported(tok, "destructuring patterns are not supported")
	case lexer.IDENTIFIER:
		if tok.Text == "_" {
			return nil, p.unsupported(tok, "`let _` is not supported; use an expression statement")
		}
	}

	name, err := p.expect(lexer.IDENTIFIER, "a binding name")
	if err != nil {
		return nil, err
	}
	stmt := &ast.LetStmt{Name: name.Text, NameLoc: name.Span()}

	if p.at(lexer.COLON) {
		p.next()
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		stmt.Annotation = typ
	}

	if !p.at(lexer.EQUALS) {
		if p.at(lexer.SEMICOLON) {
			return nil, p.unsupported(p.cur(), "bindings must be initialized where they are declared")
		}
		return nil, p.unexpected("`=`")
	}
	p.next()

	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	stmt.Value = value

	if p.at(lexer.ELSE) {
		return nil, p.unsupported(p.cur(), "let-else is not supported")
	}
	semi, err := p.expect(lexer.SEMICOLON, "`;`")
	if err != nil {
		return nil, err
	}
	stmt.Loc = letTok.Span().To(semi.Span())
	return stmt, nil
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	ifTok := p.next()
	stmt := &ast.IfStmt{}
	end := ifTok.Span()

	for {
		if p.at(lexer.LET) {
			return nil, p.unsupported(p.cur(), "`if let` is not supported")
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Arms = append(stmt.Arms, ast.IfArm{Cond: cond, Body: body})
		end = body.Loc

		if !p.at(lexer.ELSE) {
			break
		}
		p.next()
		if p.at(lexer.IF) {
			p.next()
			continue
		}
		els, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Else = els
		end = els.Loc
		break
	}

	stmt.Loc = ifTok.Span().To(end)
	return stmt, nil
}

func (p *Parser) parseMatch() (ast.Stmt, error) {
	matchTok := p.next()

	subject, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBRACE, "`{`"); err != nil {
		return nil, err
	}

	saved := p.context
	p.context = "match arm"
	defer func() { p.context = saved }()

	stmt := &ast.MatchStmt{Subject: subject}
	for !p.at(lexer.RBRACE) {
		arm, err := p.parseMatchArm()
		if err != nil {
			return nil, err
		}
		stmt.Arms = append(stmt.Arms, arm)
	}
	closeTok := p.next()
	stmt.Loc = matchTok.Span().To(closeTok.Span())
	return stmt, nil
}

func (p *Parser) parseMatchArm() (*ast.MatchArm, error) {
	arm := &ast.MatchArm{}
	start := p.cur()

	if p.at(lexer.PIPE) {
		p.next()
	}
	for {
		pat, wildcard, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if wildcard {
			arm.Wildcard = true
		} else {
			arm.Patterns = append(arm.Patterns, pat)
		}
		if !p.at(lexer.PIPE) {
			break
		}
		p.next()
	}
	if arm.Wildcard {
		arm.Patterns = nil
	}

	if p.at(lexer.IF) {
		return nil, p.unsupported(p.cur(), "match guards are not supported")
	}
	if _, err := p.expect(lexer.FATARROW, "`=>`"); err != nil {
		return nil, err
	}

	if p.at(lexer.LBRACE) {
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		arm.Body = body
		if p.at(lexer.COMMA) {
			p.next()
		}
	} else {
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		arm.Body = &ast.Block{
			Stmts: []ast.Stmt{&ast.ExprStmt{X: x, Tail: true, Loc: x.Span()}},
			Loc:   x.Span(),
		}
		if !p.at(lexer.RBRACE) {
			if _, err := p.expect(lexer.COMMA, "`,`"); err != nil {
				return nil, err
			}
		}
	}

	arm.Loc = start.Span().To(arm.Body.Loc)
	return arm, nil
}

// parsePattern accepts `_`, string, integer and boolean literals.
func (p *Parser) parsePattern() (ast.Expr, bool, error) {
	tok := p.cur()

	var pat ast.Expr
	switch tok.Type {
	case lexer.IDENTIFIER:
		if tok.Text == "_" {
			p.next()
			return nil, true, nil
		}
		return nil, false, p.unsupported(tok, "binding patterns are not supported; use `_` or a literal")
	case lexer.STRING:
		p.next()
		pat = &ast.StringLit{Value: tok.Value, Loc: tok.Span()}
	case lexer.TRUE, lexer.FALSE:
		p.next()
		pat = &ast.BoolLit{Value: tok.Type == lexer.TRUE, Loc: tok.Span()}
	case lexer.INTEGER:
		lit, err := p.parseIntLit(false, tok)
		if err != nil {
			return nil, false, err
		}
		pat = lit
	case lexer.MINUS:
		if p.peek(1).Type != lexer.INTEGER {
			return nil, false, p.unexpected("a literal pattern")
		}
		p.next()
		lit, err := p.parseIntLit(true, tok)
		if err != nil {
			return nil, false, err
		}
		pat = lit
	case lexer.LPAREN, lexer.LSQUARE:
		return nil, false, p.unsupported(tok, "tuple and slice patterns are not supported")
	case lexer.CHAR:
		return nil, false, p.unsupported(tok, "character literals are not supported; use a string literal")
	case lexer.FLOAT:
		return nil, false, p.unsupported(tok, "floating point literals are not supported")
	default:
		return nil, false, p.unexpected("a literal pattern")
	}

	if p.at(lexer.DOTDOT) {
		return nil, false, p.unsupported(p.cur(), "range patterns are not supported")
	}
	return pat, false, nil
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	retTok := p.next()
	stmt := &ast.ReturnStmt{Loc: retTok.Span()}

	if !p.at(lexer.SEMICOLON) && !p.at(lexer.RBRACE) {
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Value = value
		stmt.Loc = retTok.Span().To(value.Span())
	}

	switch {
	case p.at(lexer.SEMICOLON):
		semi := p.next()
		stmt.Loc = retTok.Span().To(semi.Span())
	case !p.at(lexer.RBRACE):
		return nil, p.unexpected("`;`")
	}
	return stmt, nil
}

// ============================================================================
// Expressions
// ============================================================================

const (
	precOr = iota + 1
	precAnd
	precCompare
	precAdd
	precMul
)

func binaryOp(tok lexer.Token) (ast.BinaryOp, int, bool) {
	switch tok.Type {
	case lexer.OR_OR:
		return ast.OpOr, precOr, true
	case lexer.AND_AND:
		return ast.OpAnd, precAnd, true
	case lexer.EQ_EQ:
		return ast.OpEq, precCompare, true
	case lexer.NOT_EQ:
		return ast.OpNe, precCompare, true
	case lexer.LT:
		return ast.OpLt, precCompare, true
	case lexer.LT_EQ:
		return ast.OpLe, precCompare, true
	case lexer.GT:
		return ast.OpGt, precCompare, true
	case lexer.GT_EQ:
		return ast.OpGe, precCompare, true
	case lexer.PLUS:
		return ast.OpAdd, precAdd, true
	case lexer.MINUS:
		return ast.OpSub, precAdd, true
	case lexer.MULTIPLY:
		return ast.OpMul, precMul, true
	case lexer.DIVIDE:
		return ast.OpDiv, precMul, true
	case lexer.MODULO:
		return ast.OpRem, precMul, true
	}
	return 0, 0, false
}

func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseBinary(precOr)
}

// parseBinary is precedence climbing. Operators at one level associate to
// the left; comparisons do not chain.
func (p *Parser) parseBinary(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	chain := 0
	lastCompare := false
	for {
		tok := p.cur()
		switch {
		case tok.Type == lexer.AMP || tok.Type == lexer.PIPE:
			return nil, p.unsupported(tok, "bitwise operators are not supported")
		case tok.Type == lexer.RESERVED && tok.Text == "as":
			return nil, p.unsupported(tok, "%s", keywordMessage(tok.Text))
		}

		op, prec, ok := binaryOp(tok)
		if !ok || prec < minPrec {
			return left, nil
		}
		if prec == precCompare && lastCompare {
			return nil, p.unsupported(tok, "comparison operators cannot be chained")
		}

		chain++
		if chain > p.maxChain {
			return nil, p.errorAt(ErrorLimit, tok, "expression exceeds the maximum length of %d operators", p.maxChain)
		}
		p.next()

		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{
			Op:    op,
			Left:  left,
			Right: right,
			OpLoc: tok.Span(),
			Loc:   left.Span().To(right.Span()),
		}
		lastCompare = prec == precCompare
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	switch tok := p.cur(); tok.Type {
	case lexer.MINUS:
		if next := p.peek(1); next.Type == lexer.INTEGER && p.peek(2).Type != lexer.DOT {
			p.next()
			return p.parseIntLit(true, tok)
		}
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.OpNeg, X: x, Loc: tok.Span().To(x.Span())}, nil
	case lexer.NOT:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.OpNot, X: x, Loc: tok.Span().To(x.Span())}, nil
	case lexer.AMP, lexer.AND_AND:
		return nil, p.unsupported(tok, "references are not supported in expressions")
	case lexer.MULTIPLY:
		return nil, p.unsupported(tok, "dereferencing is not supported")
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for chain := 0; ; chain++ {
		if chain > p.maxChain {
			return nil, p.errorAt(ErrorLimit, p.cur(), "method chain exceeds the maximum length of %d", p.maxChain)
		}

		switch tok := p.cur(); tok.Type {
		case lexer.DOT:
			p.next()
			name := p.cur()
			switch {
			case name.Type == lexer.IDENTIFIER && p.peek(1).Type == lexer.LPAREN:
				if !ast.IsMethod(name.Text) {
					return nil, p.unsupported(name, "method `%s` is not supported", name.Text)
				}
				p.next()
				p.next()
				if !p.at(lexer.RPAREN) {
					return nil, p.unsupported(p.cur(), "method `%s` takes no arguments", name.Text)
				}
				closeTok := p.next()
				x = &ast.MethodCallExpr{
					Receiver:  x,
					Method:    name.Text,
					MethodLoc: name.Span(),
					Loc:       x.Span().To(closeTok.Span()),
				}
			case name.Type == lexer.IDENTIFIER || name.Type == lexer.INTEGER:
				return nil, p.unsupported(name, "field access is not supported")
			case name.Type == lexer.RESERVED:
				return nil, p.unsupported(name, "%s", keywordMessage(name.Text))
			default:
				return nil, p.unexpected("a method name")
			}
		case lexer.LSQUARE:
			return nil, p.unsupported(tok, "index access is not supported")
		case lexer.QUESTION:
			return nil, p.unsupported(tok, "the `?` operator is not supported")
		case lexer.LPAREN:
			return nil, p.unsupported(tok, "only named functions can be called")
		default:
			return x, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.cur()
	switch tok.Type {
	case lexer.INTEGER:
		return p.parseIntLit(false, tok)
	case lexer.STRING:
		p.next()
		return &ast.StringLit{Value: tok.Value, Loc: tok.Span()}, nil
	case lexer.TRUE, lexer.FALSE:
		p.next()
		return &ast.BoolLit{Value: tok.Type == lexer.TRUE, Loc: tok.Span()}, nil
	case lexer.FLOAT:
		return nil, p.unsupported(tok, "floating point literals are not supported")
	case lexer.CHAR:
		return nil, p.unsupported(tok, "character literals are not supported; use a string literal")

	case lexer.IDENTIFIER:
		if tok.Text == "_" {
			return nil, p.unsupported(tok, "`_` cannot be used as a value")
		}
		p.next()
		switch p.cur().Type {
		case lexer.NOT:
			return p.parseMacro(tok)
		case lexer.COLONCOLON:
			return nil, p.unsupported(p.cur(), "paths are not supported")
		case lexer.LPAREN:
			args, closeTok, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &ast.CallExpr{
				Name:    tok.Text,
				NameLoc: tok.Span(),
				Args:    args,
				Loc:     tok.Span().To(closeTok.Span()),
			}, nil
		}
		return &ast.Ident{Name: tok.Text, Loc: tok.Span()}, nil

	case lexer.LPAREN:
		p.next()
		if p.at(lexer.RPAREN) {
			return nil, p.unsupported(tok, "the unit value `()` cannot be used as a value")
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.at(lexer.COMMA) {
			return nil, p.unsupported(p.cur(), "tuples are not supported")
		}
		if _, err := p.expect(lexer.RPAREN, "`)`"); err != nil {
			return nil, err
		}
		return x, nil

	case lexer.LSQUARE:
		return nil, p.unsupported(tok, "arrays are not supported")
	case lexer.PIPE, lexer.OR_OR:
		return nil, p.unsupported(tok, "closures are not supported")
	case lexer.IF:
		return nil, p.unsupported(tok, "if expressions are not supported; bind the value in each branch")
	case lexer.MATCH:
		return nil, p.unsupported(tok, "match expressions are not supported; use a match statement")
	case lexer.LBRACE:
		return nil, p.unsupported(tok, "block expressions are not supported")
	case lexer.RESERVED:
		return nil, p.unsupported(tok, "%s", keywordMessage(tok.Text))
	case lexer.LIFETIME:
		return nil, p.unsupported(tok, "loop labels are not supported")
	}
	return nil, p.unexpected("an expression")
}

// parseIntLit consumes an INTEGER token. start is the first token of the
// literal, which is the minus sign when negative.
func (p *Parser) parseIntLit(negative bool, start lexer.Token) (ast.Expr, error) {
	tok := p.next()
	if tok.Suffix != "" && tok.Suffix != "i32" {
		return nil, p.unsupported(tok, "integer suffix `%s` is not supported; only i32 integers are allowed", tok.Suffix)
	}

	limit := uint64(2147483647)
	if negative {
		limit++
	}
	if tok.Overflow || tok.Int > limit {
		text := tok.Text
		if negative {
			text = "-" + text
		}
		return nil, p.unsupported(tok, "integer literal `%s` is out of range for i32", text)
	}

	value := int64(tok.Int)
	if negative {
		value = -value
	}
	return &ast.IntLit{Value: value, Loc: start.Span().To(tok.Span())}, nil
}

func (p *Parser) parseArgs() ([]ast.Expr, lexer.Token, error) {
	saved := p.context
	p.context = "argument list"
	defer func() { p.context = saved }()

	p.next() // (
	var args []ast.Expr
	for !p.at(lexer.RPAREN) {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, lexer.Token{}, err
		}
		args = append(args, arg)
		if !p.at(lexer.RPAREN) {
			if _, err := p.expect(lexer.COMMA, "`,` or `)`"); err != nil {
				return nil, lexer.Token{}, err
			}
		}
	}
	return args, p.next(), nil
}

// parseMacro parses `name!(...)`. Only the formatting macros are accepted;
// the call carries a single *ast.FormatExpr argument.
func (p *Parser) parseMacro(nameTok lexer.Token) (ast.Expr, error) {
	p.next() // !
	name := nameTok.Text

	switch {
	case name == "vec":
		return nil, p.unsupported(nameTok, "`vec!` and other heap collections are not supported")
	case !formatMacros[name]:
		return nil, p.unsupported(nameTok, "macro `%s!` is not supported", name)
	}
	if !p.at(lexer.LPAREN) {
		return nil, p.unsupported(p.cur(), "macro invocations must use parentheses")
	}
	p.next()

	saved := p.context
	p.context = "`" + name + "!` invocation"
	defer func() { p.context = saved }()

	format := &ast.FormatExpr{}
	if p.at(lexer.RPAREN) {
		if name == "format" {
			return nil, p.errorAt(ErrorSyntax, p.cur(), "`format!` requires a format string")
		}
		closeTok := p.next()
		format.Loc = nameTok.Span().To(closeTok.Span())
		return p.macroCall(nameTok, format, closeTok), nil
	}

	strTok := p.cur()
	if strTok.Type != lexer.STRING {
		if strTok.Type == lexer.ILLEGAL {
			return nil, p.unexpected("a format string")
		}
		return nil, p.unsupported(strTok, "format string must be a string literal")
	}
	p.next()

	var args []ast.Expr
	for p.at(lexer.COMMA) {
		p.next()
		if p.at(lexer.RPAREN) {
			break
		}
		if p.at(lexer.IDENTIFIER) && p.peek(1).Type == lexer.EQUALS {
			return nil, p.unsupported(p.cur(), "named format arguments are not supported")
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	closeTok, err := p.expect(lexer.RPAREN, "`)`")
	if err != nil {
		return nil, err
	}

	segments, err := p.parseFormatString(strTok, args)
	if err != nil {
		return nil, err
	}
	format.Segments = segments
	format.Loc = nameTok.Span().To(closeTok.Span())

	if name == "format" {
		return format, nil
	}
	return p.macroCall(nameTok, format, closeTok), nil
}

func (p *Parser) macroCall(nameTok lexer.Token, format *ast.FormatExpr, closeTok lexer.Token) *ast.CallExpr {
	return &ast.CallExpr{
		Name:    nameTok.Text + "!",
		NameLoc: nameTok.Span(),
		Args:    []ast.Expr{format},
		Macro:   true,
		Loc:     nameTok.Span().To(closeTok.Span()),
	}
}

// parseFormatString splits a format string into text and argument
// segments. `{}` consumes the next positional argument, `{name}` captures
// a binding, and `{{`/`}}` are literal braces.
func (p *Parser) parseFormatString(tok lexer.Token, args []ast.Expr) ([]ast.FormatSegment, error) {
	s := tok.Value
	var segments []ast.FormatSegment
	var text strings.Builder
	next := 0

	flush := func() {
		if text.Len() > 0 {
			segments = append(segments, ast.FormatSegment{Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				text.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return nil, p.errorAt(ErrorSyntax, tok, "unmatched `{` in format string")
			}
			inner := s[i+1 : i+end]
			i += end

			var arg ast.Expr
			switch {
			case inner == "":
				if next >= len(args) {
					return nil, p.placeholderMismatch(tok, s, len(args))
				}
				arg = args[next]
				next++
			case strings.Contains(inner, ":"):
				return nil, p.unsupported(tok, "format specifiers like `{%s}` are not supported", inner)
			case isIdentifier(inner):
				arg = &ast.Ident{Name: inner, Loc: tok.Span()}
			case isDigits(inner):
				return nil, p.unsupported(tok, "positional format arguments are not supported; use `{}`")
			default:
				return nil, p.errorAt(ErrorSyntax, tok, "invalid format placeholder `{%s}`", inner)
			}
			flush()
			segments = append(segments, ast.FormatSegment{Arg: arg})
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				text.WriteByte('}')
				i++
				continue
			}
			return nil, p.errorAt(ErrorSyntax, tok, "unmatched `}` in format string")
		default:
			text.WriteByte(s[i])
		}
	}
	flush()

	if next != len(args) {
		return nil, p.placeholderMismatch(tok, s, len(args))
	}
	return segments, nil
}

func (p *Parser) placeholderMismatch(tok lexer.Token, s string, args int) *ParseError {
	placeholders := strings.Count(strings.ReplaceAll(s, "{{", ""), "{}")
	return p.errorAt(ErrorSyntax, tok,
		"format string has %d placeholder(s) but %d argument(s) were supplied", placeholders, args)
}

func isIdentifier(s string) bool {
	if s == "" || s == "_" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
