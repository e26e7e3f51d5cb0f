package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthjit/token"
)

func allTokens(t *testing.T, input string) []token.Token {
	t.Helper()
	l := New(input)
	var toks []token.Token
	for {
		tok, err := l.NextToken()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return toks
}

func TestParseNumbers(t *testing.T) {
	toks := allTokens(t, "3 43 -17 3.5 -2.25")

	want := []struct {
		kind token.Kind
		lit  string
	}{
		{token.INT, "3"},
		{token.INT, "43"},
		{token.INT, "-17"},
		{token.FLOAT, "3.5"},
		{token.FLOAT, "-2.25"},
		{token.EOF, ""},
	}

	require.Len(t, toks, len(want))
	for i, w := range want {
		assert.Equal(t, w.kind, toks[i].Kind, "token %d kind", i)
		assert.Equal(t, w.lit, toks[i].Literal, "token %d literal", i)
	}
}

func TestParseWords(t *testing.T) {
	toks := allTokens(t, ": double 2 * ;")

	wantKinds := []token.Kind{token.COLON, token.IDENT, token.INT, token.IDENT, token.SEMICOLON, token.EOF}
	require.Len(t, toks, len(wantKinds))
	for i, k := range wantKinds {
		assert.Equal(t, k, toks[i].Kind, "token %d", i)
	}
}

func TestParseControlKeywords(t *testing.T) {
	toks := allTokens(t, "if else then begin until while repeat do loop")
	for _, tok := range toks[:len(toks)-1] {
		assert.Equal(t, token.CONTROL, tok.Kind)
	}
}

func TestParseStackEffectComment(t *testing.T) {
	toks := allTokens(t, ": double ( n -- n ) 2 * ;")
	require.GreaterOrEqual(t, len(toks), 3)
	assert.Equal(t, token.STACKCOMMENT, toks[2].Kind)
	assert.Equal(t, "( n -- n )", toks[2].Literal)
}

func TestParseLineComment(t *testing.T) {
	toks := allTokens(t, "1 \\ rest of line is ignored\n2")
	require.Len(t, toks, 4)
	assert.Equal(t, token.LINECOMMENT, toks[1].Kind)
	assert.Equal(t, token.INT, toks[2].Kind)
}

func TestParseString(t *testing.T) {
	toks := allTokens(t, `s" hello world" type`)
	require.Len(t, toks, 3)
	assert.Equal(t, token.STRING, toks[0].Kind)
	assert.Equal(t, "hello world", toks[0].Literal)
}

func TestUnterminatedString(t *testing.T) {
	l := New(`s" hello`)
	_, err := l.NextToken()
	require.Error(t, err)
	var lexErr *Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, Unterminated, lexErr.Kind)
}

func TestUnterminatedStackComment(t *testing.T) {
	l := New(`( n -- n`)
	_, err := l.NextToken()
	require.Error(t, err)
	var lexErr *Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, Unterminated, lexErr.Kind)
}

func TestInvalidNumberBase(t *testing.T) {
	l := New("19", WithBase(2))
	_, err := l.NextToken()
	require.Error(t, err)
	var lexErr *Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, InvalidNumber, lexErr.Kind)
}

func TestLocationsAdvanceByLine(t *testing.T) {
	toks := allTokens(t, "1\n2")
	require.Len(t, toks, 3)
	assert.Equal(t, 1, toks[0].Loc.Line)
	assert.Equal(t, 2, toks[1].Loc.Line)
}
