package parser

import (
	"fmt"

	"forthjit/token"
)

// ErrorKind distinguishes the ways the parser can fail, per the ParseError
// taxonomy of spec §7.
type ErrorKind int

const (
	// UnmatchedControl marks a stray then/else/repeat/etc that does not
	// close any open control structure.
	UnmatchedControl ErrorKind = iota

	// UnexpectedEOF marks end of input reached inside a definition,
	// control structure, or comment.
	UnexpectedEOF

	// NestedDefinition marks a `:` encountered while already inside a
	// definition's body.
	NestedDefinition

	// MissingTerminator marks a definition closed by `;` before its
	// open control structure was terminated.
	MissingTerminator
)

func (k ErrorKind) String() string {
	switch k {
	case UnmatchedControl:
		return "UnmatchedControl"
	case UnexpectedEOF:
		return "UnexpectedEOF"
	case NestedDefinition:
		return "NestedDefinition"
	case MissingTerminator:
		return "MissingTerminator"
	default:
		return "Unknown"
	}
}

// Error is the ParseError of spec §7.
type Error struct {
	Kind    ErrorKind
	Loc     token.Location
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: parse error (%s): %s", e.Loc, e.Kind, e.Message)
}
