package parser

import (
	"fmt"
	"strconv"
	"strings"

	"quill/pkg/errors"
	"quill/pkg/lexer"
)

// Operator precedence levels, lowest to highest.
const (
	_ int = iota
	LOWEST
	SEQUENCE    // ,
	ASSIGNMENT  // = += -= ...
	TERNARY     // ?:
	LOGICAL_OR  // ||
	LOGICAL_AND // &&
	BITWISE_OR  // |
	BITWISE_XOR // ^
	BITWISE_AND // &
	EQUALITY    // == != === !==
	RELATIONAL  // < > <= >= in instanceof
	SHIFT       // << >> >>>
	SUM         // + -
	PRODUCT     // * / %
	POWER       // **
	UNARY       // -x !x typeof x ...
	POSTFIX     // x++ x--
	CALL        // fn(args)
	MEMBER      // obj.prop obj[key]
)

var precedences = map[lexer.TokenType]int{
	lexer.COMMA:           SEQUENCE,
	lexer.ASSIGN:          ASSIGNMENT,
	lexer.PLUS_ASSIGN:     ASSIGNMENT,
	lexer.MINUS_ASSIGN:    ASSIGNMENT,
	lexer.ASTERISK_ASSIGN: ASSIGNMENT,
	lexer.SLASH_ASSIGN:    ASSIGNMENT,
	lexer.PERCENT_ASSIGN:  ASSIGNMENT,
	lexer.EXPONENT_ASSIGN: ASSIGNMENT,
	lexer.AND_ASSIGN:      ASSIGNMENT,
	lexer.OR_ASSIGN:       ASSIGNMENT,
	lexer.XOR_ASSIGN:      ASSIGNMENT,
	lexer.LSHIFT_ASSIGN:   ASSIGNMENT,
	lexer.RSHIFT_ASSIGN:   ASSIGNMENT,
	lexer.UNSIGNED_ASSIGN: ASSIGNMENT,
	lexer.QUESTION:        TERNARY,
	lexer.LOGICAL_OR:      LOGICAL_OR,
	lexer.LOGICAL_AND:     LOGICAL_AND,
	lexer.BIT_OR:          BITWISE_OR,
	lexer.BIT_XOR:         BITWISE_XOR,
	lexer.BIT_AND:         BITWISE_AND,
	lexer.EQ:              EQUALITY,
	lexer.NOT_EQ:          EQUALITY,
	lexer.STRICT_EQ:       EQUALITY,
	lexer.STRICT_NOT_EQ:   EQUALITY,
	lexer.LT:              RELATIONAL,
	lexer.GT:              RELATIONAL,
	lexer.LE:              RELATIONAL,
	lexer.GE:              RELATIONAL,
	lexer.IN:              RELATIONAL,
	lexer.INSTANCEOF:      RELATIONAL,
	lexer.LSHIFT:          SHIFT,
	lexer.RSHIFT:          SHIFT,
	lexer.UNSIGNED_SHIFT:  SHIFT,
	lexer.PLUS:            SUM,
	lexer.MINUS:           SUM,
	lexer.ASTERISK:        PRODUCT,
	lexer.SLASH:           PRODUCT,
	lexer.PERCENT:         PRODUCT,
	lexer.EXPONENT:        POWER,
	lexer.INC:             POSTFIX,
	lexer.DEC:             POSTFIX,
	lexer.LPAREN:          CALL,
	lexer.DOT:             MEMBER,
	lexer.LBRACKET:        MEMBER,
}

type (
	prefixParseFn func() Expression
	infixParseFn  func(Expression) Expression
)

// Parser holds the parsing state: the token stream, the collected errors,
// and the Pratt parse-function tables.
type Parser struct {
	l *lexer.Lexer

	curToken  lexer.Token
	peekToken lexer.Token

	errors []errors.QuillError

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn

	// inForHeader suppresses the `in` infix so `for (x in obj)` can be
	// recognized by the for-statement parser itself.
	inForHeader bool
}

// NewParser creates a parser over the given lexer.
func NewParser(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}

	p.prefixParseFns = map[lexer.TokenType]prefixParseFn{
		lexer.IDENT:     p.parseIdentifier,
		lexer.NUMBER:    p.parseNumberLiteral,
		lexer.STRING:    p.parseStringLiteral,
		lexer.TRUE:      p.parseBooleanLiteral,
		lexer.FALSE:     p.parseBooleanLiteral,
		lexer.NULL:      p.parseNullLiteral,
		lexer.UNDEFINED: p.parseUndefinedLiteral,
		lexer.THIS:      p.parseThisExpression,
		lexer.LPAREN:    p.parseGroupedExpression,
		lexer.LBRACKET:  p.parseArrayExpression,
		lexer.LBRACE:    p.parseObjectExpression,
		lexer.FUNCTION:  p.parseFunctionExpression,
		lexer.NEW:       p.parseNewExpression,
		lexer.BANG:      p.parseUnaryExpression,
		lexer.MINUS:     p.parseUnaryExpression,
		lexer.PLUS:      p.parseUnaryExpression,
		lexer.BIT_NOT:   p.parseUnaryExpression,
		lexer.TYPEOF:    p.parseUnaryExpression,
		lexer.VOID:      p.parseUnaryExpression,
		lexer.DELETE:    p.parseUnaryExpression,
		lexer.INC:       p.parsePrefixUpdate,
		lexer.DEC:       p.parsePrefixUpdate,
	}

	p.infixParseFns = map[lexer.TokenType]infixParseFn{
		lexer.PLUS:            p.parseBinaryExpression,
		lexer.MINUS:           p.parseBinaryExpression,
		lexer.ASTERISK:        p.parseBinaryExpression,
		lexer.SLASH:           p.parseBinaryExpression,
		lexer.PERCENT:         p.parseBinaryExpression,
		lexer.EXPONENT:        p.parseBinaryExpression,
		lexer.LT:              p.parseBinaryExpression,
		lexer.GT:              p.parseBinaryExpression,
		lexer.LE:              p.parseBinaryExpression,
		lexer.GE:              p.parseBinaryExpression,
		lexer.EQ:              p.parseBinaryExpression,
		lexer.NOT_EQ:          p.parseBinaryExpression,
		lexer.STRICT_EQ:       p.parseBinaryExpression,
		lexer.STRICT_NOT_EQ:   p.parseBinaryExpression,
		lexer.BIT_AND:         p.parseBinaryExpression,
		lexer.BIT_OR:          p.parseBinaryExpression,
		lexer.BIT_XOR:         p.parseBinaryExpression,
		lexer.LSHIFT:          p.parseBinaryExpression,
		lexer.RSHIFT:          p.parseBinaryExpression,
		lexer.UNSIGNED_SHIFT:  p.parseBinaryExpression,
		lexer.IN:              p.parseBinaryExpression,
		lexer.INSTANCEOF:      p.parseBinaryExpression,
		lexer.LOGICAL_AND:     p.parseLogicalExpression,
		lexer.LOGICAL_OR:      p.parseLogicalExpression,
		lexer.QUESTION:        p.parseConditionalExpression,
		lexer.ASSIGN:          p.parseAssignmentExpression,
		lexer.PLUS_ASSIGN:     p.parseAssignmentExpression,
		lexer.MINUS_ASSIGN:    p.parseAssignmentExpression,
		lexer.ASTERISK_ASSIGN: p.parseAssignmentExpression,
		lexer.SLASH_ASSIGN:    p.parseAssignmentExpression,
		lexer.PERCENT_ASSIGN:  p.parseAssignmentExpression,
		lexer.EXPONENT_ASSIGN: p.parseAssignmentExpression,
		lexer.AND_ASSIGN:      p.parseAssignmentExpression,
		lexer.OR_ASSIGN:       p.parseAssignmentExpression,
		lexer.XOR_ASSIGN:      p.parseAssignmentExpression,
		lexer.LSHIFT_ASSIGN:   p.parseAssignmentExpression,
		lexer.RSHIFT_ASSIGN:   p.parseAssignmentExpression,
		lexer.UNSIGNED_ASSIGN: p.parseAssignmentExpression,
		lexer.COMMA:           p.parseSequenceExpression,
		lexer.LPAREN:          p.parseCallExpression,
		lexer.DOT:             p.parseMemberExpression,
		lexer.LBRACKET:        p.parseMemberExpression,
		lexer.INC:             p.parsePostfixUpdate,
		lexer.DEC:             p.parsePostfixUpdate,
	}

	// Read two tokens so curToken and peekToken are both set.
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the syntax errors from both the lexer and the parser.
func (p *Parser) Errors() []errors.QuillError {
	return append(p.l.Errors(), p.errors...)
}

// ParseProgram parses the whole input and returns the Program root node.
func (p *Parser) ParseProgram() (*Program, []errors.QuillError) {
	program := &Program{}

	for p.curToken.Type != lexer.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}

	return program, p.Errors()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t lexer.TokenType) bool { return p.peekToken.Type == t }

// expectPeek advances when the next token matches; otherwise records an
// error and stays put.
func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addErrorAt(p.peekToken, fmt.Sprintf("expected %q, got %q", t, p.peekToken.Type))
	return false
}

func (p *Parser) peekPrecedence() int {
	if p.inForHeader && p.peekTokenIs(lexer.IN) {
		return LOWEST
	}
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) addErrorAt(tok lexer.Token, msg string) {
	p.errors = append(p.errors, &errors.SyntaxError{
		Position: errors.Position{
			Line:     tok.Line,
			Column:   tok.Column,
			StartPos: tok.StartPos,
			EndPos:   tok.EndPos,
		},
		Msg: msg,
	})
}

// consumeSemicolon eats an optional trailing semicolon.
func (p *Parser) consumeSemicolon() {
	if p.peekTokenIs(lexer.SEMICOLON) {
		p.nextToken()
	}
}

// --- Statements ---

func (p *Parser) parseStatement() Statement {
	switch p.curToken.Type {
	case lexer.VAR:
		return p.parseVariableDeclaration()
	case lexer.FUNCTION:
		return p.parseFunctionDeclaration()
	case lexer.IF:
		return p.parseIfStatement()
	case lexer.WHILE:
		return p.parseWhileStatement()
	case lexer.DO:
		return p.parseDoWhileStatement()
	case lexer.FOR:
		return p.parseForStatement()
	case lexer.SWITCH:
		return p.parseSwitchStatement()
	case lexer.RETURN:
		return p.parseReturnStatement()
	case lexer.BREAK:
		stmt := &BreakStatement{Token: p.curToken}
		p.consumeSemicolon()
		return stmt
	case lexer.CONTINUE:
		stmt := &ContinueStatement{Token: p.curToken}
		p.consumeSemicolon()
		return stmt
	case lexer.LBRACE:
		return p.parseBlockStatement()
	case lexer.SEMICOLON:
		return &EmptyStatement{Token: p.curToken}
	case lexer.DEBUGGER:
		stmt := &DebuggerStatement{Token: p.curToken}
		p.consumeSemicolon()
		return stmt
	case lexer.THROW:
		return p.parseThrowStatement()
	case lexer.TRY:
		return p.parseTryStatement()
	case lexer.IDENT:
		if p.peekTokenIs(lexer.COLON) {
			return p.parseLabeledStatement()
		}
		return p.parseExpressionStatement()
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseVariableDeclaration() *VariableDeclaration {
	decl := &VariableDeclaration{Token: p.curToken}

	for {
		if !p.expectPeek(lexer.IDENT) {
			return decl
		}
		d := &VariableDeclarator{Name: &Identifier{Token: p.curToken, Name: p.curToken.Literal}}
		if p.peekTokenIs(lexer.ASSIGN) {
			p.nextToken() // '='
			p.nextToken() // first token of the initializer
			d.Init = p.parseExpression(SEQUENCE)
		}
		decl.Declarations = append(decl.Declarations, d)
		if !p.peekTokenIs(lexer.COMMA) {
			break
		}
		p.nextToken() // ','
	}

	p.consumeSemicolon()
	return decl
}

func (p *Parser) parseFunctionDeclaration() Statement {
	fd := &FunctionDeclaration{Token: p.curToken}

	if !p.expectPeek(lexer.IDENT) {
		return fd
	}
	fd.Name = &Identifier{Token: p.curToken, Name: p.curToken.Literal}

	if !p.expectPeek(lexer.LPAREN) {
		return fd
	}
	fd.Params = p.parseFunctionParams()

	if !p.expectPeek(lexer.LBRACE) {
		return fd
	}
	fd.Body = p.parseBlockStatement()
	return fd
}

// parseFunctionParams parses `(a, b, c)` with curToken on '('.
func (p *Parser) parseFunctionParams() []*Identifier {
	params := []*Identifier{}

	if p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
		return params
	}

	for {
		if !p.expectPeek(lexer.IDENT) {
			return params
		}
		params = append(params, &Identifier{Token: p.curToken, Name: p.curToken.Literal})
		if !p.peekTokenIs(lexer.COMMA) {
			break
		}
		p.nextToken() // ','
	}

	p.expectPeek(lexer.RPAREN)
	return params
}

func (p *Parser) parseBlockStatement() *BlockStatement {
	block := &BlockStatement{Token: p.curToken}
	p.nextToken()

	for !p.curTokenIs(lexer.RBRACE) && !p.curTokenIs(lexer.EOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.nextToken()
	}
	if p.curTokenIs(lexer.EOF) {
		p.addErrorAt(p.curToken, "unexpected end of input, expected \"}\"")
	}
	return block
}

func (p *Parser) parseExpressionStatement() *ExpressionStatement {
	stmt := &ExpressionStatement{Token: p.curToken}
	stmt.Expression = p.parseExpression(LOWEST)
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseIfStatement() *IfStatement {
	stmt := &IfStatement{Token: p.curToken}

	if !p.expectPeek(lexer.LPAREN) {
		return stmt
	}
	p.nextToken()
	stmt.Test = p.parseExpression(LOWEST)
	if !p.expectPeek(lexer.RPAREN) {
		return stmt
	}

	p.nextToken()
	stmt.Consequent = p.parseStatement()

	if p.peekTokenIs(lexer.ELSE) {
		p.nextToken() // 'else'
		p.nextToken() // first token of the alternate
		stmt.Alternate = p.parseStatement()
	}
	return stmt
}

func (p *Parser) parseWhileStatement() *WhileStatement {
	stmt := &WhileStatement{Token: p.curToken}

	if !p.expectPeek(lexer.LPAREN) {
		return stmt
	}
	p.nextToken()
	stmt.Test = p.parseExpression(LOWEST)
	if !p.expectPeek(lexer.RPAREN) {
		return stmt
	}

	p.nextToken()
	stmt.Body = p.parseStatement()
	return stmt
}

func (p *Parser) parseDoWhileStatement() *DoWhileStatement {
	stmt := &DoWhileStatement{Token: p.curToken}

	p.nextToken()
	stmt.Body = p.parseStatement()

	if !p.expectPeek(lexer.WHILE) {
		return stmt
	}
	if !p.expectPeek(lexer.LPAREN) {
		return stmt
	}
	p.nextToken()
	stmt.Test = p.parseExpression(LOWEST)
	if !p.expectPeek(lexer.RPAREN) {
		return stmt
	}
	p.consumeSemicolon()
	return stmt
}

// parseForStatement parses both the classic three-slot for and the for-in
// form (which the pre-pass later rejects).
func (p *Parser) parseForStatement() Statement {
	forTok := p.curToken

	if !p.expectPeek(lexer.LPAREN) {
		return &ForStatement{Token: forTok}
	}

	// Init slot.
	var init Statement
	switch p.peekToken.Type {
	case lexer.SEMICOLON:
		p.nextToken() // ';'
	case lexer.VAR:
		p.nextToken()
		p.inForHeader = true
		init = p.parseVariableDeclarationNoSemi()
		p.inForHeader = false
	default:
		p.nextToken()
		p.inForHeader = true
		expr := p.parseExpression(LOWEST)
		p.inForHeader = false
		init = &ExpressionStatement{Token: p.curToken, Expression: expr}
	}

	// for-in: `for (x in obj)` / `for (var x in obj)`.
	if p.peekTokenIs(lexer.IN) {
		fi := &ForInStatement{Token: forTok, Left: init}
		p.nextToken() // 'in'
		p.nextToken()
		fi.Right = p.parseExpression(LOWEST)
		if !p.expectPeek(lexer.RPAREN) {
			return fi
		}
		p.nextToken()
		fi.Body = p.parseStatement()
		return fi
	}

	stmt := &ForStatement{Token: forTok, Init: init}
	if init != nil {
		if !p.expectPeek(lexer.SEMICOLON) {
			return stmt
		}
	}

	// Test slot.
	if !p.peekTokenIs(lexer.SEMICOLON) {
		p.nextToken()
		stmt.Test = p.parseExpression(LOWEST)
	}
	if !p.expectPeek(lexer.SEMICOLON) {
		return stmt
	}

	// Update slot.
	if !p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
		stmt.Update = p.parseExpression(LOWEST)
	}
	if !p.expectPeek(lexer.RPAREN) {
		return stmt
	}

	p.nextToken()
	stmt.Body = p.parseStatement()
	return stmt
}

// parseVariableDeclarationNoSemi parses a var declaration without eating a
// trailing semicolon (for-header position).
func (p *Parser) parseVariableDeclarationNoSemi() *VariableDeclaration {
	decl := &VariableDeclaration{Token: p.curToken}

	for {
		if !p.expectPeek(lexer.IDENT) {
			return decl
		}
		d := &VariableDeclarator{Name: &Identifier{Token: p.curToken, Name: p.curToken.Literal}}
		if p.peekTokenIs(lexer.ASSIGN) {
			p.nextToken()
			p.nextToken()
			d.Init = p.parseExpression(SEQUENCE)
		}
		decl.Declarations = append(decl.Declarations, d)
		if !p.peekTokenIs(lexer.COMMA) {
			break
		}
		p.nextToken()
	}
	return decl
}

func (p *Parser) parseSwitchStatement() *SwitchStatement {
	stmt := &SwitchStatement{Token: p.curToken}

	if !p.expectPeek(lexer.LPAREN) {
		return stmt
	}
	p.nextToken()
	stmt.Discriminant = p.parseExpression(LOWEST)
	if !p.expectPeek(lexer.RPAREN) {
		return stmt
	}
	if !p.expectPeek(lexer.LBRACE) {
		return stmt
	}

	sawDefault := false
	for !p.peekTokenIs(lexer.RBRACE) && !p.peekTokenIs(lexer.EOF) {
		p.nextToken()
		c := &SwitchCase{Token: p.curToken}
		switch p.curToken.Type {
		case lexer.CASE:
			p.nextToken()
			c.Test = p.parseExpression(LOWEST)
		case lexer.DEFAULT:
			if sawDefault {
				p.addErrorAt(p.curToken, "multiple default clauses in switch statement")
			}
			sawDefault = true
		default:
			p.addErrorAt(p.curToken, fmt.Sprintf("expected \"case\" or \"default\", got %q", p.curToken.Type))
			return stmt
		}
		if !p.expectPeek(lexer.COLON) {
			return stmt
		}
		for !p.peekTokenIs(lexer.CASE) && !p.peekTokenIs(lexer.DEFAULT) &&
			!p.peekTokenIs(lexer.RBRACE) && !p.peekTokenIs(lexer.EOF) {
			p.nextToken()
			s := p.parseStatement()
			if s != nil {
				c.Body = append(c.Body, s)
			}
		}
		stmt.Cases = append(stmt.Cases, c)
	}
	p.expectPeek(lexer.RBRACE)
	return stmt
}

func (p *Parser) parseReturnStatement() *ReturnStatement {
	stmt := &ReturnStatement{Token: p.curToken}

	if p.peekTokenIs(lexer.SEMICOLON) || p.peekTokenIs(lexer.RBRACE) || p.peekTokenIs(lexer.EOF) {
		p.consumeSemicolon()
		return stmt
	}

	p.nextToken()
	stmt.Argument = p.parseExpression(LOWEST)
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseLabeledStatement() *LabeledStatement {
	stmt := &LabeledStatement{Token: p.curToken}
	stmt.Label = &Identifier{Token: p.curToken, Name: p.curToken.Literal}
	p.nextToken() // ':'
	p.nextToken()
	stmt.Body = p.parseStatement()
	return stmt
}

func (p *Parser) parseThrowStatement() *ThrowStatement {
	stmt := &ThrowStatement{Token: p.curToken}
	p.nextToken()
	stmt.Argument = p.parseExpression(LOWEST)
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseTryStatement() *TryStatement {
	stmt := &TryStatement{Token: p.curToken}

	if !p.expectPeek(lexer.LBRACE) {
		return stmt
	}
	stmt.Block = p.parseBlockStatement()

	if p.peekTokenIs(lexer.CATCH) {
		p.nextToken()
		if !p.expectPeek(lexer.LPAREN) {
			return stmt
		}
		if !p.expectPeek(lexer.IDENT) {
			return stmt
		}
		stmt.Param = &Identifier{Token: p.curToken, Name: p.curToken.Literal}
		if !p.expectPeek(lexer.RPAREN) {
			return stmt
		}
		if !p.expectPeek(lexer.LBRACE) {
			return stmt
		}
		stmt.Handler = p.parseBlockStatement()
	}
	if p.peekTokenIs(lexer.FINALLY) {
		p.nextToken()
		if !p.expectPeek(lexer.LBRACE) {
			return stmt
		}
		stmt.Finalizer = p.parseBlockStatement()
	}
	if stmt.Handler == nil && stmt.Finalizer == nil {
		p.addErrorAt(stmt.Token, "try statement requires a catch or finally clause")
	}
	return stmt
}

// --- Expressions ---

func (p *Parser) parseExpression(precedence int) Expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.addErrorAt(p.curToken, fmt.Sprintf("unexpected token %q", p.curToken.Literal))
		return nil
	}
	left := prefix()

	for precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}
	return left
}

func (p *Parser) parseIdentifier() Expression {
	return &Identifier{Token: p.curToken, Name: p.curToken.Literal}
}

func (p *Parser) parseNumberLiteral() Expression {
	lit := &NumberLiteral{Token: p.curToken}

	text := p.curToken.Literal
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		v, err := strconv.ParseUint(text[2:], 16, 64)
		if err != nil {
			p.addErrorAt(p.curToken, fmt.Sprintf("malformed hex literal %q", text))
			return lit
		}
		lit.Value = float64(v)
		return lit
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.addErrorAt(p.curToken, fmt.Sprintf("malformed number literal %q", text))
		return lit
	}
	lit.Value = v
	return lit
}

func (p *Parser) parseStringLiteral() Expression {
	return &StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseBooleanLiteral() Expression {
	return &BooleanLiteral{Token: p.curToken, Value: p.curTokenIs(lexer.TRUE)}
}

func (p *Parser) parseNullLiteral() Expression {
	return &NullLiteral{Token: p.curToken}
}

func (p *Parser) parseUndefinedLiteral() Expression {
	return &UndefinedLiteral{Token: p.curToken}
}

func (p *Parser) parseThisExpression() Expression {
	return &ThisExpression{Token: p.curToken}
}

func (p *Parser) parseGroupedExpression() Expression {
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	p.expectPeek(lexer.RPAREN)
	return expr
}

func (p *Parser) parseArrayExpression() Expression {
	arr := &ArrayExpression{Token: p.curToken}

	for !p.peekTokenIs(lexer.RBRACKET) && !p.peekTokenIs(lexer.EOF) {
		if p.peekTokenIs(lexer.COMMA) {
			// Elision: a hole lowers to null.
			arr.Elements = append(arr.Elements, nil)
			p.nextToken()
			continue
		}
		p.nextToken()
		arr.Elements = append(arr.Elements, p.parseExpression(SEQUENCE))
		if !p.peekTokenIs(lexer.COMMA) {
			break
		}
		p.nextToken() // separator; a ']' right after makes it a trailing comma
	}

	p.expectPeek(lexer.RBRACKET)
	return arr
}

func (p *Parser) parseObjectExpression() Expression {
	obj := &ObjectExpression{Token: p.curToken}

	for !p.peekTokenIs(lexer.RBRACE) && !p.peekTokenIs(lexer.EOF) {
		p.nextToken()
		prop := &ObjectProperty{}

		switch p.curToken.Type {
		case lexer.STRING:
			prop.KeyName = p.curToken.Literal
		case lexer.NUMBER:
			n := p.parseNumberLiteral().(*NumberLiteral)
			prop.KeyName = strconv.FormatFloat(n.Value, 'f', -1, 64)
		case lexer.LBRACKET:
			p.nextToken()
			prop.KeyExpr = p.parseExpression(SEQUENCE)
			if !p.expectPeek(lexer.RBRACKET) {
				return obj
			}
		default:
			// Identifiers and keywords are both valid literal keys.
			if p.curToken.Literal == "" || !isIdentLike(p.curToken.Literal) {
				p.addErrorAt(p.curToken, fmt.Sprintf("invalid property key %q", p.curToken.Literal))
				return obj
			}
			prop.KeyName = p.curToken.Literal
		}

		if !p.expectPeek(lexer.COLON) {
			return obj
		}
		p.nextToken()
		prop.Value = p.parseExpression(SEQUENCE)
		obj.Properties = append(obj.Properties, prop)

		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
		} else {
			break
		}
	}

	p.expectPeek(lexer.RBRACE)
	return obj
}

func (p *Parser) parseFunctionExpression() Expression {
	fe := &FunctionExpression{Token: p.curToken}

	if p.peekTokenIs(lexer.IDENT) {
		p.nextToken()
		fe.Name = &Identifier{Token: p.curToken, Name: p.curToken.Literal}
	}

	if !p.expectPeek(lexer.LPAREN) {
		return fe
	}
	fe.Params = p.parseFunctionParams()

	if !p.expectPeek(lexer.LBRACE) {
		return fe
	}
	fe.Body = p.parseBlockStatement()
	return fe
}

// parseNewExpression parses `new Callee(args)`. The callee is parsed with
// CALL precedence so that member accesses bind to it but argument lists
// belong to the `new`.
func (p *Parser) parseNewExpression() Expression {
	ne := &NewExpression{Token: p.curToken}

	p.nextToken()
	ne.Callee = p.parseExpression(CALL)

	if p.peekTokenIs(lexer.LPAREN) {
		p.nextToken()
		ne.Arguments = p.parseArguments()
	}
	return ne
}

func (p *Parser) parseUnaryExpression() Expression {
	expr := &UnaryExpression{Token: p.curToken, Operator: p.curToken.Literal}
	p.nextToken()
	expr.Operand = p.parseExpression(UNARY)
	return expr
}

func (p *Parser) parsePrefixUpdate() Expression {
	expr := &UpdateExpression{Token: p.curToken, Operator: p.curToken.Literal, Prefix: true}
	p.nextToken()
	expr.Operand = p.parseExpression(UNARY)
	if !isAssignTarget(expr.Operand) {
		p.addErrorAt(expr.Token, "invalid operand for "+expr.Operator)
	}
	return expr
}

func (p *Parser) parsePostfixUpdate(left Expression) Expression {
	expr := &UpdateExpression{Token: p.curToken, Operator: p.curToken.Literal, Operand: left}
	if !isAssignTarget(left) {
		p.addErrorAt(expr.Token, "invalid operand for "+expr.Operator)
	}
	return expr
}

func (p *Parser) parseBinaryExpression(left Expression) Expression {
	expr := &BinaryExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
		Left:     left,
	}
	precedence := precedences[p.curToken.Type]
	if p.curTokenIs(lexer.EXPONENT) {
		precedence-- // ** is right-associative
	}
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	return expr
}

func (p *Parser) parseLogicalExpression(left Expression) Expression {
	expr := &LogicalExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
		Left:     left,
	}
	precedence := precedences[p.curToken.Type]
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	return expr
}

func (p *Parser) parseConditionalExpression(test Expression) Expression {
	expr := &ConditionalExpression{Token: p.curToken, Test: test}

	p.nextToken()
	expr.Consequent = p.parseExpression(SEQUENCE) // assignment allowed, comma not
	if !p.expectPeek(lexer.COLON) {
		return expr
	}
	p.nextToken()
	expr.Alternate = p.parseExpression(SEQUENCE)
	return expr
}

func (p *Parser) parseAssignmentExpression(left Expression) Expression {
	expr := &AssignmentExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
		Target:   left,
	}
	if !isAssignTarget(left) {
		p.addErrorAt(p.curToken, "invalid assignment target")
	}
	p.nextToken()
	// Right-associative: a = b = c parses as a = (b = c).
	expr.Value = p.parseExpression(ASSIGNMENT - 1)
	return expr
}

func (p *Parser) parseSequenceExpression(left Expression) Expression {
	seq, ok := left.(*SequenceExpression)
	if !ok {
		seq = &SequenceExpression{Token: p.curToken, Expressions: []Expression{left}}
	}
	p.nextToken()
	seq.Expressions = append(seq.Expressions, p.parseExpression(SEQUENCE))
	return seq
}

func (p *Parser) parseCallExpression(callee Expression) Expression {
	call := &CallExpression{Token: p.curToken, Callee: callee}
	call.Arguments = p.parseArguments()
	return call
}

// parseArguments parses `(a, b, c)` with curToken on '('.
func (p *Parser) parseArguments() []Expression {
	args := []Expression{}

	if p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
		return args
	}

	p.nextToken()
	args = append(args, p.parseExpression(SEQUENCE))
	for p.peekTokenIs(lexer.COMMA) {
		p.nextToken()
		p.nextToken()
		args = append(args, p.parseExpression(SEQUENCE))
	}

	p.expectPeek(lexer.RPAREN)
	return args
}

func (p *Parser) parseMemberExpression(obj Expression) Expression {
	me := &MemberExpression{Token: p.curToken, Object: obj}

	if p.curTokenIs(lexer.LBRACKET) {
		me.Computed = true
		p.nextToken()
		me.Property = p.parseExpression(LOWEST)
		p.expectPeek(lexer.RBRACKET)
		return me
	}

	// Dot access: identifiers and keywords are both valid property names.
	p.nextToken()
	if !isIdentLike(p.curToken.Literal) {
		p.addErrorAt(p.curToken, fmt.Sprintf("invalid property name %q", p.curToken.Literal))
	}
	me.Property = &Identifier{Token: p.curToken, Name: p.curToken.Literal}
	return me
}

// isAssignTarget reports whether an expression may appear on the left of an
// assignment or as the operand of ++/--.
func isAssignTarget(e Expression) bool {
	switch e.(type) {
	case *Identifier, *MemberExpression:
		return true
	}
	return false
}

// isIdentLike reports whether a token literal has identifier shape (used
// for property names, where keywords are allowed).
func isIdentLike(lit string) bool {
	if lit == "" {
		return false
	}
	for i, r := range lit {
		if r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}
