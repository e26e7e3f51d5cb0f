// Package parser builds an ast.Program from a token stream via recursive
// descent, performing no name resolution or type checking (spec §4.2).
package parser

import (
	"fmt"

	"forthjit/ast"
	"forthjit/token"
)

// tokenSource is satisfied by *lexer.Lexer; declared locally so the
// parser depends only on the shape it needs.
type tokenSource interface {
	NextToken() (token.Token, error)
}

// Parser performs recursive-descent parsing over a token stream.
type Parser struct {
	src tokenSource
	cur token.Token
}

// New creates a Parser reading from src.
func New(src tokenSource) (*Parser, error) {
	p := &Parser{src: src}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	tok, err := p.src.NextToken()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

// Parse consumes the entire token stream and returns the resulting
// Program, or the first error encountered (lexer or parser errors are
// both fatal; there is no recovery, per spec §4.2).
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}

	for {
		if p.cur.Kind == token.LINECOMMENT || p.cur.Kind == token.STACKCOMMENT {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}

		if p.cur.Kind == token.EOF {
			break
		}

		if p.cur.Kind == token.COLON {
			def, err := p.parseDefinition()
			if err != nil {
				return nil, err
			}
			prog.Definitions = append(prog.Definitions, def)
			continue
		}

		nodes, _, err := p.parseSequence("top-level")
		if err != nil {
			return nil, err
		}
		prog.TopLevel = append(prog.TopLevel, nodes...)
	}

	return prog, nil
}

// parseDefinition parses `: name ( effect )? body... ;`. The leading `:`
// is the current token on entry.
func (p *Parser) parseDefinition() (*ast.Definition, error) {
	loc := p.cur.Loc

	if err := p.advance(); err != nil { // consume ':'
		return nil, err
	}

	if p.cur.Kind == token.EOF {
		return nil, &Error{Kind: UnexpectedEOF, Loc: p.cur.Loc, Message: "expected a word name after ':'"}
	}
	if p.cur.Kind == token.COLON || p.cur.Kind == token.SEMICOLON || p.cur.Kind == token.CONTROL {
		return nil, &Error{Kind: UnmatchedControl, Loc: p.cur.Loc, Message: fmt.Sprintf("%q cannot be used as a word name", p.cur.Literal)}
	}
	name := p.cur.Literal

	if err := p.advance(); err != nil {
		return nil, err
	}

	var declared *string
	if p.cur.Kind == token.STACKCOMMENT {
		text := p.cur.Literal
		declared = &text
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	body, term, err := p.parseSequence("definition "+name, ";")
	if err != nil {
		return nil, err
	}
	_ = term // always ";" on success

	return &ast.Definition{
		Loc:            loc,
		Name:           name,
		Body:           body,
		DeclaredEffect: declared,
	}, nil
}

// parseSequence parses nodes until one of the control-keyword terminators
// is reached, or `;`/EOF/`:` end the sequence implicitly, per the rules:
//
//   - COLON always ends a top-level sequence (terminators == nil); inside
//     a definition body it is a NestedDefinition error.
//   - SEMICOLON ends a definition's direct body; inside a nested control
//     structure it is a MissingTerminator error.
//   - EOF ends a top-level sequence; inside a definition it is
//     UnexpectedEOF.
//   - A control keyword matching one of terminators ends the sequence and
//     is consumed; any other closing keyword is UnmatchedControl; an
//     opening keyword (if/begin/do) recurses into the matching construct.
//
// ctx is used only to make error messages readable.
func (p *Parser) parseSequence(ctx string, terminators ...string) ([]ast.Node, string, error) {
	var nodes []ast.Node
	inDefinition := ctx != "top-level"

	for {
		switch p.cur.Kind {
		case token.LINECOMMENT, token.STACKCOMMENT:
			if err := p.advance(); err != nil {
				return nil, "", err
			}
			continue

		case token.EOF:
			if inDefinition {
				return nil, "", &Error{Kind: UnexpectedEOF, Loc: p.cur.Loc, Message: "unexpected end of input inside " + ctx}
			}
			return nodes, "", nil

		case token.COLON:
			if inDefinition {
				return nil, "", &Error{Kind: NestedDefinition, Loc: p.cur.Loc, Message: "nested definitions are not supported"}
			}
			return nodes, "", nil

		case token.SEMICOLON:
			if contains(terminators, ";") {
				if err := p.advance(); err != nil {
					return nil, "", err
				}
				return nodes, ";", nil
			}
			if !inDefinition {
				return nil, "", &Error{Kind: UnmatchedControl, Loc: p.cur.Loc, Message: "';' outside of a definition"}
			}
			return nil, "", &Error{Kind: MissingTerminator, Loc: p.cur.Loc, Message: "definition closed by ';' before " + ctx + " was terminated"}

		case token.CONTROL:
			lit := p.cur.Literal
			if contains(terminators, lit) {
				if err := p.advance(); err != nil {
					return nil, "", err
				}
				return nodes, lit, nil
			}

			switch lit {
			case "if":
				node, err := p.parseIf()
				if err != nil {
					return nil, "", err
				}
				nodes = append(nodes, node)
			case "begin":
				node, err := p.parseBegin()
				if err != nil {
					return nil, "", err
				}
				nodes = append(nodes, node)
			case "do":
				node, err := p.parseDo()
				if err != nil {
					return nil, "", err
				}
				nodes = append(nodes, node)
			default:
				return nil, "", &Error{Kind: UnmatchedControl, Loc: p.cur.Loc, Message: fmt.Sprintf("stray '%s' does not close anything", lit)}
			}

		default:
			node, err := p.parseAtom()
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, node)
		}
	}
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// parseAtom parses a single literal or word reference and advances past
// it. The current token is guaranteed by the caller not to be a control
// keyword, colon, semicolon, EOF, or comment.
func (p *Parser) parseAtom() (ast.Node, error) {
	tok := p.cur
	var node ast.Node

	switch tok.Kind {
	case token.INT:
		node = &ast.Literal{Loc: tok.Loc, Kind: ast.IntLiteral, Text: tok.Literal}
	case token.FLOAT:
		node = &ast.Literal{Loc: tok.Loc, Kind: ast.FloatLiteral, Text: tok.Literal}
	case token.STRING:
		node = &ast.Literal{Loc: tok.Loc, Kind: ast.StringLiteral, Text: tok.Literal}
	case token.IDENT:
		node = &ast.WordRef{Loc: tok.Loc, Name: tok.Literal}
	default:
		return nil, &Error{Kind: UnmatchedControl, Loc: tok.Loc, Message: fmt.Sprintf("unexpected token %s", tok)}
	}

	if err := p.advance(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseIf() (ast.Node, error) {
	loc := p.cur.Loc
	if err := p.advance(); err != nil { // consume 'if'
		return nil, err
	}

	thenBody, term, err := p.parseSequence("if", "else", "then")
	if err != nil {
		return nil, err
	}

	if term == "then" {
		return &ast.If{Loc: loc, Then: thenBody}, nil
	}

	elseBody, _, err := p.parseSequence("if/else", "then")
	if err != nil {
		return nil, err
	}
	return &ast.If{Loc: loc, Then: thenBody, Else: elseBody}, nil
}

func (p *Parser) parseBegin() (ast.Node, error) {
	loc := p.cur.Loc
	if err := p.advance(); err != nil { // consume 'begin'
		return nil, err
	}

	first, term, err := p.parseSequence("begin", "until", "while")
	if err != nil {
		return nil, err
	}

	if term == "until" {
		return &ast.BeginUntil{Loc: loc, Body: first}, nil
	}

	body, _, err := p.parseSequence("begin/while", "repeat")
	if err != nil {
		return nil, err
	}
	return &ast.BeginWhileRepeat{Loc: loc, Cond: first, Body: body}, nil
}

func (p *Parser) parseDo() (ast.Node, error) {
	loc := p.cur.Loc
	if err := p.advance(); err != nil { // consume 'do'
		return nil, err
	}

	body, _, err := p.parseSequence("do", "loop")
	if err != nil {
		return nil, err
	}
	return &ast.DoLoop{Loc: loc, Body: body}, nil
}
