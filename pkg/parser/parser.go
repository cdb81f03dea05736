// Package parser implements a Pratt (precedence-climbing) parser
// turning a token stream from pkg/lexer into the pkg/ast tree the
// compiler consumes. Like the lexer, this sits outside the execution
// core as an external collaborator producing an AST for the compiler
// to lower.
package parser

import (
	"fmt"
	"strconv"

	"github.com/kristofer/smogvm/pkg/ast"
	"github.com/kristofer/smogvm/pkg/lexer"
)

// precedence levels, lowest to highest.
const (
	precLowest = iota
	precAssign
	precOr
	precAnd
	precEquality
	precComparison
	precAdditive
	precMultiplicative
	precUnary
	precCall
)

var precedences = map[lexer.TokenType]int{
	lexer.TokenAssign:    precAssign,
	lexer.TokenOr:        precOr,
	lexer.TokenAnd:       precAnd,
	lexer.TokenEqual:     precEquality,
	lexer.TokenNotEqual:  precEquality,
	lexer.TokenLess:      precComparison,
	lexer.TokenGreater:   precComparison,
	lexer.TokenLessEq:    precComparison,
	lexer.TokenGreaterEq: precComparison,
	lexer.TokenPlus:      precAdditive,
	lexer.TokenMinus:     precAdditive,
	lexer.TokenStar:      precMultiplicative,
	lexer.TokenSlash:     precMultiplicative,
	lexer.TokenPercent:   precMultiplicative,
	lexer.TokenLParen:    precCall,
	lexer.TokenDot:       precCall,
	lexer.TokenLBracket:  precCall,
}

// Error is a parse failure with source position.
type Error struct {
	Message string
	Line    int
	Column  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Parser consumes a lexer's token stream one token of lookahead at a
// time (cur + peek), in the style of a standard Pratt parser.
type Parser struct {
	l *lexer.Lexer

	cur  lexer.Token
	peek lexer.Token

	errors []*Error

	// noStructLiteral suppresses `Identifier{...}` struct-literal
	// parsing while true, so `if cond { ... }` doesn't try to read the
	// if-body's opening brace as a struct literal's field list (the
	// same ambiguity Go's own grammar resolves by banning composite
	// literals in control-flow headers).
	noStructLiteral bool
}

// New creates a parser over the given source text.
func New(input string) *Parser {
	p := &Parser{l: lexer.New(input)}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) addError(format string, args ...interface{}) {
	p.errors = append(p.errors, &Error{
		Message: fmt.Sprintf(format, args...),
		Line:    p.cur.Line,
		Column:  p.cur.Column,
	})
}

// Errors returns every parse error accumulated so far.
func (p *Parser) Errors() []*Error { return p.errors }

func (p *Parser) curIs(tt lexer.TokenType) bool  { return p.cur.Type == tt }
func (p *Parser) peekIs(tt lexer.TokenType) bool { return p.peek.Type == tt }

func (p *Parser) expect(tt lexer.TokenType) bool {
	if p.curIs(tt) {
		p.next()
		return true
	}
	p.addError("expected %s, got %s (%q)", tt, p.cur.Type, p.cur.Literal)
	p.next()
	return false
}

func (p *Parser) skipSemicolons() {
	for p.curIs(lexer.TokenSemicolon) {
		p.next()
	}
}

// ParseProgram parses the entire token stream into a Program. Callers
// must check the returned error slice afterward; a non-empty slice
// means the returned tree may be incomplete.
func ParseProgram(input string) (*ast.Program, []*Error) {
	p := New(input)
	prog := &ast.Program{}
	for !p.curIs(lexer.TokenEOF) {
		p.skipSemicolons()
		if p.curIs(lexer.TokenEOF) {
			break
		}
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		p.skipSemicolons()
	}
	return prog, p.errors
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.cur.Type {
	case lexer.TokenLet, lexer.TokenVar, lexer.TokenConst:
		return p.parseVarStatement()
	case lexer.TokenStruct:
		return p.parseStructStatement()
	case lexer.TokenIf:
		return p.parseIfStatement()
	case lexer.TokenWhile:
		return p.parseWhileStatement()
	case lexer.TokenReturn:
		return p.parseReturnStatement()
	case lexer.TokenLBrace:
		return p.parseBlockStatement()
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseVarStatement() ast.Statement {
	mutable := !p.curIs(lexer.TokenConst)
	p.next() // consume let/var/const
	name := p.cur.Literal
	p.expect(lexer.TokenIdentifier)
	p.expect(lexer.TokenAssign)
	value := p.parseExpression(precLowest)
	stmt := &ast.VarStatement{Name: name, Value: value, Mutable: mutable}
	if fl, ok := value.(*ast.FuncLiteral); ok && fl.Name == "" {
		fl.Name = name
	}
	return stmt
}

func (p *Parser) parseStructStatement() ast.Statement {
	p.next() // consume 'struct'
	name := p.cur.Literal
	p.expect(lexer.TokenIdentifier)
	p.expect(lexer.TokenLBrace)
	var fields []string
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		fields = append(fields, p.cur.Literal)
		p.expect(lexer.TokenIdentifier)
		if p.curIs(lexer.TokenColon) {
			p.next()
			p.next() // skip the (unchecked) type identifier
		}
		if p.curIs(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRBrace)
	return &ast.StructStatement{Name: name, Fields: fields}
}

func (p *Parser) parseIfStatement() ast.Statement {
	p.next() // consume 'if'
	p.noStructLiteral = true
	cond := p.parseExpression(precLowest)
	p.noStructLiteral = false
	then := p.parseBlockStatement()
	stmt := &ast.IfStatement{Condition: cond, Then: then}
	if p.curIs(lexer.TokenElse) {
		p.next()
		if p.curIs(lexer.TokenIf) {
			stmt.Else = p.parseIfStatement()
		} else {
			stmt.Else = p.parseBlockStatement()
		}
	}
	return stmt
}

func (p *Parser) parseWhileStatement() ast.Statement {
	p.next() // consume 'while'
	p.noStructLiteral = true
	cond := p.parseExpression(precLowest)
	p.noStructLiteral = false
	body := p.parseBlockStatement()
	return &ast.WhileStatement{Condition: cond, Body: body}
}

func (p *Parser) parseReturnStatement() ast.Statement {
	p.next() // consume 'return'
	if p.curIs(lexer.TokenSemicolon) || p.curIs(lexer.TokenRBrace) || p.curIs(lexer.TokenEOF) {
		return &ast.ReturnStatement{}
	}
	return &ast.ReturnStatement{Value: p.parseExpression(precLowest)}
}

func (p *Parser) parseBlockStatement() *ast.BlockStatement {
	block := &ast.BlockStatement{}
	p.expect(lexer.TokenLBrace)
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		p.skipSemicolons()
		if p.curIs(lexer.TokenRBrace) {
			break
		}
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.skipSemicolons()
	}
	p.expect(lexer.TokenRBrace)
	return block
}

func (p *Parser) parseExpressionStatement() ast.Statement {
	expr := p.parseExpression(precLowest)
	return &ast.ExpressionStatement{Expression: expr}
}

// parseExpression is the Pratt parser's core loop: a prefix parser
// builds the left-hand side, then infix/postfix parsers fold in
// anything that binds at least as tightly as precedence.
func (p *Parser) parseExpression(precedence int) ast.Expression {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}
	for !p.curIs(lexer.TokenSemicolon) && precedence < p.curPrecedence() {
		switch p.cur.Type {
		case lexer.TokenAssign:
			left = p.parseAssign(left)
		case lexer.TokenLParen:
			left = p.parseCall(left)
		case lexer.TokenDot:
			left = p.parseMember(left)
		case lexer.TokenLBracket:
			left = p.parseIndex(left)
		case lexer.TokenAnd, lexer.TokenOr:
			left = p.parseLogical(left)
		default:
			left = p.parseBinary(left)
		}
	}
	return left
}

func (p *Parser) curPrecedence() int {
	if pr, ok := precedences[p.cur.Type]; ok {
		return pr
	}
	return precLowest
}

func (p *Parser) parsePrefix() ast.Expression {
	switch p.cur.Type {
	case lexer.TokenInteger:
		return p.parseIntegerLiteral()
	case lexer.TokenFloat:
		return p.parseNumberLiteral()
	case lexer.TokenString:
		lit := &ast.StringLiteral{Value: p.cur.Literal}
		p.next()
		return lit
	case lexer.TokenTrue:
		p.next()
		return &ast.BoolLiteral{Value: true}
	case lexer.TokenFalse:
		p.next()
		return &ast.BoolLiteral{Value: false}
	case lexer.TokenNil:
		p.next()
		return &ast.NilLiteral{}
	case lexer.TokenBang, lexer.TokenMinus:
		return p.parseUnary()
	case lexer.TokenLParen:
		return p.parseParenOrArrow()
	case lexer.TokenLBracket:
		return p.parseArrayLiteral()
	case lexer.TokenLBrace:
		return p.parseObjectLiteral()
	case lexer.TokenFunc:
		return p.parseFuncLiteral()
	case lexer.TokenAwait:
		p.next()
		return &ast.AwaitExpression{Operand: p.parseExpression(precUnary)}
	case lexer.TokenYield:
		p.next()
		return &ast.YieldExpression{Operand: p.parseExpression(precUnary)}
	case lexer.TokenIdentifier:
		return p.parseIdentifierExpression()
	default:
		p.addError("unexpected token %s (%q)", p.cur.Type, p.cur.Literal)
		p.next()
		return nil
	}
}

func (p *Parser) parseIntegerLiteral() ast.Expression {
	n, err := strconv.ParseInt(p.cur.Literal, 10, 64)
	if err != nil {
		p.addError("invalid integer literal %q: %v", p.cur.Literal, err)
	}
	p.next()
	return &ast.IntegerLiteral{Value: n}
}

func (p *Parser) parseNumberLiteral() ast.Expression {
	n, err := strconv.ParseFloat(p.cur.Literal, 64)
	if err != nil {
		p.addError("invalid number literal %q: %v", p.cur.Literal, err)
	}
	p.next()
	return &ast.NumberLiteral{Value: n}
}

func (p *Parser) parseUnary() ast.Expression {
	op := p.cur.Literal
	p.next()
	operand := p.parseExpression(precUnary)
	return &ast.UnaryExpression{Operator: op, Operand: operand}
}

// parseIdentifierExpression handles a bare identifier, an arrow
// shorthand `ident => expr`, and a struct literal `Ident{field: v}`.
func (p *Parser) parseIdentifierExpression() ast.Expression {
	name := p.cur.Literal
	if p.peekIs(lexer.TokenArrow) {
		p.next() // consume identifier
		p.next() // consume '=>'
		return p.parseArrowBody([]string{name})
	}
	p.next()
	if p.curIs(lexer.TokenLBrace) && !p.noStructLiteral && startsWithUpper(name) {
		return p.parseStructLiteral(name)
	}
	return &ast.Identifier{Name: name}
}

func startsWithUpper(s string) bool {
	return len(s) > 0 && s[0] >= 'A' && s[0] <= 'Z'
}

func (p *Parser) parseStructLiteral(typeName string) ast.Expression {
	p.expect(lexer.TokenLBrace)
	lit := &ast.StructLiteral{TypeName: typeName}
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		key := p.cur.Literal
		p.expect(lexer.TokenIdentifier)
		p.expect(lexer.TokenColon)
		val := p.parseExpression(precLowest)
		lit.Keys = append(lit.Keys, key)
		lit.Values = append(lit.Values, val)
		if p.curIs(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRBrace)
	return lit
}

// parseParenOrArrow disambiguates `(expr)`, `()=>expr`, and
// `(a,b,...)=>expr`, all of which start identically.
func (p *Parser) parseParenOrArrow() ast.Expression {
	if p.peekIs(lexer.TokenRParen) {
		p.next()
		p.next()
		p.expect(lexer.TokenArrow)
		return p.parseArrowBody(nil)
	}

	if p.peekIs(lexer.TokenIdentifier) {
		savedParser := *p
		savedLexer := *p.l
		params := []string{p.peek.Literal}
		p.next()
		p.next()
		ok := true
		for p.curIs(lexer.TokenComma) {
			p.next()
			if !p.curIs(lexer.TokenIdentifier) {
				ok = false
				break
			}
			params = append(params, p.cur.Literal)
			p.next()
		}
		if ok && p.curIs(lexer.TokenRParen) && p.peekIs(lexer.TokenArrow) {
			p.next() // consume ')'
			p.next() // consume '=>'
			return p.parseArrowBody(params)
		}
		*p = savedParser
		*p.l = savedLexer
	}

	p.next() // consume '('
	expr := p.parseExpression(precLowest)
	p.expect(lexer.TokenRParen)
	return expr
}

func (p *Parser) parseArrowBody(params []string) ast.Expression {
	if p.curIs(lexer.TokenLBrace) {
		return &ast.FuncLiteral{Params: params, Body: p.parseBlockStatement()}
	}
	expr := p.parseExpression(precAssign)
	body := &ast.BlockStatement{Statements: []ast.Statement{&ast.ReturnStatement{Value: expr}}}
	return &ast.FuncLiteral{Params: params, Body: body}
}

func (p *Parser) parseFuncLiteral() ast.Expression {
	p.next() // consume 'func'
	p.expect(lexer.TokenLParen)
	var params []string
	for !p.curIs(lexer.TokenRParen) && !p.curIs(lexer.TokenEOF) {
		params = append(params, p.cur.Literal)
		p.expect(lexer.TokenIdentifier)
		if p.curIs(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRParen)
	body := p.parseBlockStatement()
	return &ast.FuncLiteral{Params: params, Body: body}
}

func (p *Parser) parseArrayLiteral() ast.Expression {
	p.next() // consume '['
	lit := &ast.ArrayLiteral{}
	for !p.curIs(lexer.TokenRBracket) && !p.curIs(lexer.TokenEOF) {
		lit.Elements = append(lit.Elements, p.parseExpression(precLowest))
		if p.curIs(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRBracket)
	return lit
}

func (p *Parser) parseObjectLiteral() ast.Expression {
	p.next() // consume '{'
	lit := &ast.ObjectLiteral{}
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		key := p.cur.Literal
		if !p.curIs(lexer.TokenIdentifier) && !p.curIs(lexer.TokenString) {
			p.addError("expected property name, got %s", p.cur.Type)
		}
		p.next()
		p.expect(lexer.TokenColon)
		val := p.parseExpression(precLowest)
		lit.Keys = append(lit.Keys, key)
		lit.Values = append(lit.Values, val)
		if p.curIs(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRBrace)
	return lit
}

func (p *Parser) parseAssign(left ast.Expression) ast.Expression {
	p.next() // consume '='
	value := p.parseExpression(precAssign - 1)
	return &ast.AssignExpression{Target: left, Value: value}
}

func (p *Parser) parseBinary(left ast.Expression) ast.Expression {
	op := p.cur.Literal
	precedence := p.curPrecedence()
	p.next()
	right := p.parseExpression(precedence)
	return &ast.BinaryExpression{Operator: op, Left: left, Right: right}
}

func (p *Parser) parseLogical(left ast.Expression) ast.Expression {
	op := p.cur.Literal
	precedence := p.curPrecedence()
	p.next()
	right := p.parseExpression(precedence)
	return &ast.LogicalExpression{Operator: op, Left: left, Right: right}
}

func (p *Parser) parseCall(callee ast.Expression) ast.Expression {
	p.next() // consume '('
	var args []ast.Expression
	for !p.curIs(lexer.TokenRParen) && !p.curIs(lexer.TokenEOF) {
		args = append(args, p.parseExpression(precLowest))
		if p.curIs(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRParen)
	return &ast.CallExpression{Callee: callee, Args: args}
}

func (p *Parser) parseMember(object ast.Expression) ast.Expression {
	p.next() // consume '.'
	name := p.cur.Literal
	p.expect(lexer.TokenIdentifier)
	return &ast.MemberExpression{Object: object, Property: name}
}

func (p *Parser) parseIndex(object ast.Expression) ast.Expression {
	p.next() // consume '['
	index := p.parseExpression(precLowest)
	p.expect(lexer.TokenRBracket)
	return &ast.IndexExpression{Object: object, Index: index}
}
