// Package parser implements a recursive-descent parser for the restricted
// C-like language the core compiles: basic-typed declarations, pointers,
// arrays, structs, functions with up to nine parameters, and the control
// flow forms named in spec §4.6 (if/else, while, do/while, for).
package parser

import (
	"fmt"
	"strconv"

	"minicc/pkg/cabs"
	"minicc/pkg/lexer"
)

// Precedence levels for expression parsing (lowest to highest), following
// the teacher's named-constant convention.
const (
	precLowest   = 0
	precAssign   = 1 // = (right-associative)
	precOr       = 2 // ||
	precAnd      = 3 // &&
	precEquality = 4 // ==, !=
	precRelational = 5 // <, <=, >, >=
	precAdditive = 6 // +, -
	precMulti    = 7 // *, /, %
	precUnary    = 8 // -, !, &, *, sizeof
	precPostfix  = 9 // call, index, field access
)

// Parser parses source text into a cabs.Program.
type Parser struct {
	l         *lexer.Lexer
	filename  string
	curToken  lexer.Token
	peekToken lexer.Token
	errors    []string
}

// New creates a Parser reading tokens from l. filename is attached to every
// Location produced, matching spec §6's Location(file, line, col).
func New(l *lexer.Lexer, filename string) *Parser {
	p := &Parser{l: l, filename: filename}
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the syntax errors collected while parsing.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) loc() cabs.Location {
	return cabs.Location{File: p.filename, Line: p.curToken.Line, Col: p.curToken.Column}
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Sprintf("%d:%d: %s", p.curToken.Line, p.curToken.Column, msg))
}

func (p *Parser) curIs(t lexer.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekIs(t lexer.TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) expect(t lexer.TokenType) bool {
	if p.curIs(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("expected %s, got %s (%q)", t, p.curToken.Type, p.curToken.Literal))
	return false
}

// ParseProgram parses the whole token stream into a Program.
func (p *Parser) ParseProgram() *cabs.Program {
	prog := &cabs.Program{}
	for !p.curIs(lexer.TokenEOF) {
		d := p.parseDefinition()
		if d != nil {
			prog.Decls = append(prog.Decls, d)
		} else {
			p.nextToken()
		}
	}
	return prog
}

// --- Top-level definitions ---

func (p *Parser) parseDefinition() cabs.Definition {
	loc := p.loc()
	if p.curIs(lexer.TokenStruct) && p.peekIs(lexer.TokenIdent) {
		return p.maybeParseStructDecl(loc)
	}
	base, ok := p.parseBasicTypeSpec()
	if !ok {
		p.addError("expected a declaration")
		return nil
	}
	decl, ok := p.parseDeclarator()
	if !ok {
		return nil
	}
	if decl.IsFunc {
		fd := &cabs.FunDecl{Pos: loc, Base: base, Decl: decl}
		if p.curIs(lexer.TokenLBrace) {
			fd.Body = p.parseBlock()
		} else {
			p.expect(lexer.TokenSemicolon)
		}
		return fd
	}
	vd := &cabs.VarDecl{Pos: loc, Base: base, Decl: decl}
	if p.curIs(lexer.TokenAssign) {
		p.nextToken()
		vd.Init = p.parseExpr(precAssign)
	}
	p.expect(lexer.TokenSemicolon)
	return vd
}

// maybeParseStructDecl handles both `struct Tag { ... };` and a variable
// declared with a struct base type (`struct Tag v;`).
func (p *Parser) maybeParseStructDecl(loc cabs.Location) cabs.Definition {
	tagStart := p.curToken
	_ = tagStart
	p.nextToken() // consume 'struct'
	tag := p.curToken.Literal
	p.nextToken() // consume tag ident
	if p.curIs(lexer.TokenLBrace) {
		p.nextToken() // consume '{'
		sd := &cabs.StructDecl{Pos: loc, Tag: tag}
		for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
			mloc := p.loc()
			base, ok := p.parseBasicTypeSpec()
			if !ok {
				p.addError("expected a struct member declaration")
				p.nextToken()
				continue
			}
			decl, ok := p.parseDeclarator()
			if !ok {
				continue
			}
			sd.Members = append(sd.Members, &cabs.VarDecl{Pos: mloc, Base: base, Decl: decl})
			p.expect(lexer.TokenSemicolon)
		}
		p.expect(lexer.TokenRBrace)
		p.expect(lexer.TokenSemicolon)
		return sd
	}
	// Not a struct definition: the tag is already consumed, so parse the
	// rest as a normal declaration whose base type is `struct Tag`.
	base := cabs.BasicTypeSpec{Pos: loc, StructTag: tag}
	decl, ok := p.parseDeclarator()
	if !ok {
		return nil
	}
	vd := &cabs.VarDecl{Pos: loc, Base: base, Decl: decl}
	p.expect(lexer.TokenSemicolon)
	return vd
}

// parseBasicTypeSpec consumes the multiset of base-type keyword tokens from
// spec §4.1 (void/char/short/int/long/signed/unsigned/const/volatile), plus
// `struct Tag`.
func (p *Parser) parseBasicTypeSpec() (cabs.BasicTypeSpec, bool) {
	loc := p.loc()
	spec := cabs.BasicTypeSpec{Pos: loc}
	if p.curIs(lexer.TokenStruct) {
		p.nextToken()
		if !p.curIs(lexer.TokenIdent) {
			p.addError("expected struct tag")
			return spec, false
		}
		spec.StructTag = p.curToken.Literal
		p.nextToken()
		return spec, true
	}
	kwFor := map[lexer.TokenType]cabs.TypeKeyword{
		lexer.TokenVoid:     cabs.KwVoid,
		lexer.TokenChar:     cabs.KwChar,
		lexer.TokenShort:    cabs.KwShort,
		lexer.TokenInt_:     cabs.KwInt,
		lexer.TokenLong:     cabs.KwLong,
		lexer.TokenSigned:   cabs.KwSigned,
		lexer.TokenUnsigned: cabs.KwUnsigned,
		lexer.TokenConst:    cabs.KwConst,
		lexer.TokenVolatile: cabs.KwVolatile,
	}
	any := false
	for {
		kw, ok := kwFor[p.curToken.Type]
		if !ok {
			break
		}
		spec.Keywords = append(spec.Keywords, kw)
		any = true
		p.nextToken()
	}
	return spec, any
}

// isTypeStart reports whether the current token can begin a BasicTypeSpec.
func (p *Parser) isTypeStart() bool {
	switch p.curToken.Type {
	case lexer.TokenVoid, lexer.TokenChar, lexer.TokenShort, lexer.TokenInt_,
		lexer.TokenLong, lexer.TokenSigned, lexer.TokenUnsigned,
		lexer.TokenConst, lexer.TokenVolatile, lexer.TokenStruct:
		return true
	}
	return false
}

// parseDeclarator parses `*...name[N]` or `*...name(params)` (spec §4.2).
func (p *Parser) parseDeclarator() (cabs.Declarator, bool) {
	var d cabs.Declarator
	for p.curIs(lexer.TokenStar) {
		d.Pointers++
		p.nextToken()
	}
	if !p.curIs(lexer.TokenIdent) {
		p.addError(fmt.Sprintf("expected identifier in declarator, got %q", p.curToken.Literal))
		return d, false
	}
	d.Name = p.curToken.Literal
	p.nextToken()
	switch {
	case p.curIs(lexer.TokenLBracket):
		p.nextToken()
		if !p.curIs(lexer.TokenInt) {
			p.addError("expected array size")
			return d, false
		}
		n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			p.addError("invalid array size")
			return d, false
		}
		d.IsArray = true
		d.ArrayLen = n
		p.nextToken()
		if !p.expect(lexer.TokenRBracket) {
			return d, false
		}
	case p.curIs(lexer.TokenLParen):
		p.nextToken()
		d.IsFunc = true
		if !p.curIs(lexer.TokenRParen) {
			for {
				ploc := p.loc()
				if p.curIs(lexer.TokenVoid) && p.peekIs(lexer.TokenRParen) {
					p.nextToken()
					break
				}
				base, ok := p.parseBasicTypeSpec()
				if !ok {
					p.addError("expected parameter type")
					return d, false
				}
				pd, ok := p.parseDeclarator()
				if !ok {
					return d, false
				}
				d.Params = append(d.Params, &cabs.ParamDecl{Pos: ploc, Base: base, Decl: pd})
				if p.curIs(lexer.TokenComma) {
					p.nextToken()
					continue
				}
				break
			}
		}
		if !p.expect(lexer.TokenRParen) {
			return d, false
		}
	}
	return d, true
}

// --- Statements ---

func (p *Parser) parseBlock() *cabs.Block {
	loc := p.loc()
	p.expect(lexer.TokenLBrace)
	b := &cabs.Block{Pos: loc}
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		s := p.parseStatement()
		if s != nil {
			b.Items = append(b.Items, s)
		}
	}
	p.expect(lexer.TokenRBrace)
	return b
}

func (p *Parser) parseStatement() cabs.Stmt {
	switch p.curToken.Type {
	case lexer.TokenLBrace:
		return p.parseBlock()
	case lexer.TokenReturn:
		return p.parseReturn()
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenWhile:
		return p.parseWhile()
	case lexer.TokenDo:
		return p.parseDoWhile()
	case lexer.TokenFor:
		return p.parseFor()
	case lexer.TokenSemicolon:
		loc := p.loc()
		p.nextToken()
		return &cabs.Block{Pos: loc}
	}
	if p.isTypeStart() {
		return p.parseLocalDecl()
	}
	return p.parseExprStatement()
}

func (p *Parser) parseLocalDecl() cabs.Stmt {
	loc := p.loc()
	base, ok := p.parseBasicTypeSpec()
	if !ok {
		p.addError("expected a declaration")
		p.nextToken()
		return nil
	}
	decl, ok := p.parseDeclarator()
	if !ok {
		return nil
	}
	vd := &cabs.VarDecl{Pos: loc, Base: base, Decl: decl}
	if p.curIs(lexer.TokenAssign) {
		p.nextToken()
		vd.Init = p.parseExpr(precAssign)
	}
	p.expect(lexer.TokenSemicolon)
	return vd
}

func (p *Parser) parseExprStatement() cabs.Stmt {
	loc := p.loc()
	e := p.parseExpr(precLowest)
	p.expect(lexer.TokenSemicolon)
	return &cabs.ExprStmt{Pos: loc, Expr: e}
}

func (p *Parser) parseReturn() cabs.Stmt {
	loc := p.loc()
	p.nextToken()
	r := &cabs.ReturnStmt{Pos: loc}
	if !p.curIs(lexer.TokenSemicolon) {
		r.Expr = p.parseExpr(precLowest)
	}
	p.expect(lexer.TokenSemicolon)
	return r
}

func (p *Parser) parseIf() cabs.Stmt {
	loc := p.loc()
	p.nextToken()
	p.expect(lexer.TokenLParen)
	cond := p.parseExpr(precLowest)
	p.expect(lexer.TokenRParen)
	then := p.parseStatement()
	s := &cabs.IfStmt{Pos: loc, Cond: cond, Then: then}
	if p.curIs(lexer.TokenElse) {
		p.nextToken()
		s.Else = p.parseStatement()
	}
	return s
}

func (p *Parser) parseWhile() cabs.Stmt {
	loc := p.loc()
	p.nextToken()
	p.expect(lexer.TokenLParen)
	cond := p.parseExpr(precLowest)
	p.expect(lexer.TokenRParen)
	body := p.parseStatement()
	return &cabs.WhileStmt{Pos: loc, Cond: cond, Body: body}
}

func (p *Parser) parseDoWhile() cabs.Stmt {
	loc := p.loc()
	p.nextToken()
	body := p.parseStatement()
	p.expect(lexer.TokenWhile)
	p.expect(lexer.TokenLParen)
	cond := p.parseExpr(precLowest)
	p.expect(lexer.TokenRParen)
	p.expect(lexer.TokenSemicolon)
	return &cabs.DoWhileStmt{Pos: loc, Body: body, Cond: cond}
}

func (p *Parser) parseFor() cabs.Stmt {
	loc := p.loc()
	p.nextToken()
	p.expect(lexer.TokenLParen)
	f := &cabs.ForStmt{Pos: loc}
	if !p.curIs(lexer.TokenSemicolon) {
		if p.isTypeStart() {
			f.Init = p.parseLocalDecl()
		} else {
			f.Init = p.parseExprStatement()
		}
	} else {
		p.nextToken()
	}
	if !p.curIs(lexer.TokenSemicolon) {
		f.Cond = p.parseExpr(precLowest)
	}
	p.expect(lexer.TokenSemicolon)
	if !p.curIs(lexer.TokenRParen) {
		f.Post = p.parseExpr(precLowest)
	}
	p.expect(lexer.TokenRParen)
	f.Body = p.parseStatement()
	return f
}

// --- Expressions ---
//
// Assignment is right-associative and lowest precedence other than the
// statement terminator; everything else is a left-associative binary chain
// climbed by precedence, following the teacher's Pratt-style parser shape.

func (p *Parser) parseExpr(prec int) cabs.Expr {
	left := p.parseUnary()
	for {
		opPrec, op, isBinary := p.peekBinaryOp()
		if !isBinary || opPrec < prec {
			break
		}
		loc := p.loc()
		p.nextToken()
		nextPrec := opPrec + 1
		if op == cabs.OpAssign {
			nextPrec = opPrec // right-associative
		}
		right := p.parseExpr(nextPrec)
		left = &cabs.Binary{Pos: loc, Op: op, Left: left, Right: right}
		if op == cabs.OpAssign {
			break
		}
	}
	return left
}

func (p *Parser) peekBinaryOp() (int, cabs.BinaryOp, bool) {
	switch p.curToken.Type {
	case lexer.TokenAssign:
		return precAssign, cabs.OpAssign, true
	case lexer.TokenOr:
		return precOr, cabs.OpOr, true
	case lexer.TokenAnd:
		return precAnd, cabs.OpAnd, true
	case lexer.TokenEq:
		return precEquality, cabs.OpEq, true
	case lexer.TokenNe:
		return precEquality, cabs.OpNe, true
	case lexer.TokenLt:
		return precRelational, cabs.OpLt, true
	case lexer.TokenLe:
		return precRelational, cabs.OpLe, true
	case lexer.TokenGt:
		return precRelational, cabs.OpGt, true
	case lexer.TokenGe:
		return precRelational, cabs.OpGe, true
	case lexer.TokenPlus:
		return precAdditive, cabs.OpAdd, true
	case lexer.TokenMinus:
		return precAdditive, cabs.OpSub, true
	case lexer.TokenStar:
		return precMulti, cabs.OpMul, true
	case lexer.TokenSlash:
		return precMulti, cabs.OpDiv, true
	case lexer.TokenPercent:
		return precMulti, cabs.OpMod, true
	}
	return 0, 0, false
}

func (p *Parser) parseUnary() cabs.Expr {
	loc := p.loc()
	switch p.curToken.Type {
	case lexer.TokenMinus:
		p.nextToken()
		return &cabs.Unary{Pos: loc, Op: cabs.OpNeg, Expr: p.parseUnary()}
	case lexer.TokenNot:
		p.nextToken()
		return &cabs.Unary{Pos: loc, Op: cabs.OpNot, Expr: p.parseUnary()}
	case lexer.TokenAmpersand:
		p.nextToken()
		return &cabs.Unary{Pos: loc, Op: cabs.OpAddrOf, Expr: p.parseUnary()}
	case lexer.TokenStar:
		p.nextToken()
		return &cabs.Unary{Pos: loc, Op: cabs.OpDeref, Expr: p.parseUnary()}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() cabs.Expr {
	e := p.parsePrimary()
	for {
		loc := p.loc()
		switch p.curToken.Type {
		case lexer.TokenLParen:
			p.nextToken()
			var args []cabs.Expr
			if !p.curIs(lexer.TokenRParen) {
				args = append(args, p.parseExpr(precAssign))
				for p.curIs(lexer.TokenComma) {
					p.nextToken()
					args = append(args, p.parseExpr(precAssign))
				}
			}
			p.expect(lexer.TokenRParen)
			e = &cabs.Call{Pos: loc, Fn: e, Args: args}
		case lexer.TokenLBracket:
			p.nextToken()
			idx := p.parseExpr(precLowest)
			p.expect(lexer.TokenRBracket)
			e = &cabs.Index{Pos: loc, Array: e, Idx: idx}
		case lexer.TokenDot:
			p.nextToken()
			name := p.curToken.Literal
			p.expect(lexer.TokenIdent)
			e = &cabs.Field{Pos: loc, Base: e, Name: name}
		case lexer.TokenArrow:
			p.nextToken()
			name := p.curToken.Literal
			p.expect(lexer.TokenIdent)
			e = &cabs.Field{Pos: loc, Base: e, Name: name, Arrow: true}
		default:
			return e
		}
	}
}

func (p *Parser) parsePrimary() cabs.Expr {
	loc := p.loc()
	switch p.curToken.Type {
	case lexer.TokenInt:
		text := p.curToken.Literal
		p.nextToken()
		return &cabs.IntLit{Pos: loc, Text: text}
	case lexer.TokenCharLit:
		raw := p.curToken.Literal
		p.nextToken()
		return &cabs.CharLit{Pos: loc, Raw: raw}
	case lexer.TokenString:
		raw := p.curToken.Literal
		p.nextToken()
		return &cabs.StringLit{Pos: loc, Raw: raw}
	case lexer.TokenIdent:
		name := p.curToken.Literal
		p.nextToken()
		return &cabs.Ident{Pos: loc, Name: name}
	case lexer.TokenLParen:
		p.nextToken()
		e := p.parseExpr(precLowest)
		p.expect(lexer.TokenRParen)
		return e
	}
	p.addError(fmt.Sprintf("unexpected token %s (%q) in expression", p.curToken.Type, p.curToken.Literal))
	p.nextToken()
	return &cabs.IntLit{Pos: loc, Text: "0"}
}
