// Package token contains the tokens that the lexer will produce when
// scanning a source program.
package token

import "fmt"

// Kind identifies the lexical category of a Token.
type Kind int

// The full set of token kinds the lexer can produce.
const (
	// EOF marks the end of the input stream.
	EOF Kind = iota

	// ERROR is returned for lexemes the lexer could not classify; the
	// literal carries a human-readable description of the problem.
	ERROR

	// INT is an integer literal in the lexer's current numeric base.
	INT

	// FLOAT is a floating-point literal (a decimal point with digits on
	// both sides).
	FLOAT

	// STRING is a string literal's content, with the opener/closer
	// quotes already stripped.
	STRING

	// IDENT is a word reference: a primitive or user-defined name.
	IDENT

	// COLON is the `:` that introduces a definition.
	COLON

	// SEMICOLON is the `;` that terminates a definition.
	SEMICOLON

	// CONTROL is a control-structure keyword: if, else, then, begin,
	// until, while, repeat, do, loop.
	CONTROL

	// STACKCOMMENT is a parenthesized stack-effect comment, preserved
	// verbatim including the parens.
	STACKCOMMENT

	// LINECOMMENT is a `\ ...` comment running to end of line.
	LINECOMMENT
)

// String renders a Kind for diagnostics.
func (k Kind) String() string {
	switch k {
	case EOF:
		return "EOF"
	case ERROR:
		return "ERROR"
	case INT:
		return "INT"
	case FLOAT:
		return "FLOAT"
	case STRING:
		return "STRING"
	case IDENT:
		return "IDENT"
	case COLON:
		return "COLON"
	case SEMICOLON:
		return "SEMICOLON"
	case CONTROL:
		return "CONTROL"
	case STACKCOMMENT:
		return "STACKCOMMENT"
	case LINECOMMENT:
		return "LINECOMMENT"
	default:
		return "UNKNOWN"
	}
}

// Location pinpoints a token's origin for diagnostics. Lines and columns
// are 1-based.
type Location struct {
	File   string
	Line   int
	Column int
}

// String renders a Location as "file:line:column", omitting the file when
// it is empty (the common case for in-memory sources).
func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Token is an immutable lexeme plus its classification and origin.
type Token struct {
	Kind    Kind
	Literal string
	Loc     Location
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%s", t.Kind, t.Literal, t.Loc)
}

// controlKeywords is the closed set of words the parser treats as
// syntactic markers rather than word references.
var controlKeywords = map[string]bool{
	"if":     true,
	"else":   true,
	"then":   true,
	"begin":  true,
	"until":  true,
	"while":  true,
	"repeat": true,
	"do":     true,
	"loop":   true,
}

// IsControlKeyword reports whether the lower-cased name is one of the
// control-structure markers recognized by the parser.
func IsControlKeyword(name string) bool {
	return controlKeywords[name]
}
