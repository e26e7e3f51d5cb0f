package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthjit/ast"
	"forthjit/lexer"
)

func parse(t *testing.T, src string) (*ast.Program, error) {
	t.Helper()
	l := lexer.New(src)
	p, err := New(l)
	require.NoError(t, err)
	return p.Parse()
}

func TestParseTopLevelArithmetic(t *testing.T) {
	prog, err := parse(t, "10 20 + 3 *")
	require.NoError(t, err)
	assert.Empty(t, prog.Definitions)
	require.Len(t, prog.TopLevel, 5)

	lit, ok := prog.TopLevel[0].(*ast.Literal)
	require.True(t, ok)
	assert.Equal(t, ast.IntLiteral, lit.Kind)
	assert.Equal(t, "10", lit.Text)

	ref, ok := prog.TopLevel[2].(*ast.WordRef)
	require.True(t, ok)
	assert.Equal(t, "+", ref.Name)
}

func TestParseDefinitionWithStackEffect(t *testing.T) {
	prog, err := parse(t, ": double ( n -- n ) 2 * ; 5 double")
	require.NoError(t, err)
	require.Len(t, prog.Definitions, 1)

	def := prog.Definitions[0]
	assert.Equal(t, "double", def.Name)
	require.NotNil(t, def.DeclaredEffect)
	assert.Equal(t, "( n -- n )", *def.DeclaredEffect)
	assert.Len(t, def.Body, 2)

	require.Len(t, prog.TopLevel, 2)
}

func TestParseIfThen(t *testing.T) {
	prog, err := parse(t, ": f dup 0 = if drop 1 then ;")
	require.NoError(t, err)
	def := prog.Definitions[0]

	var ifNode *ast.If
	for _, n := range def.Body {
		if v, ok := n.(*ast.If); ok {
			ifNode = v
		}
	}
	require.NotNil(t, ifNode)
	assert.Nil(t, ifNode.Else)
	assert.Len(t, ifNode.Then, 2)
}

func TestParseIfElseThen(t *testing.T) {
	prog, err := parse(t, ": f dup 0 = if drop 1 else drop 2 then ;")
	require.NoError(t, err)
	def := prog.Definitions[0]

	var ifNode *ast.If
	for _, n := range def.Body {
		if v, ok := n.(*ast.If); ok {
			ifNode = v
		}
	}
	require.NotNil(t, ifNode)
	require.NotNil(t, ifNode.Else)
	assert.Len(t, ifNode.Then, 2)
	assert.Len(t, ifNode.Else, 2)
}

func TestParseBeginUntil(t *testing.T) {
	prog, err := parse(t, ": f begin 1 - dup 0 = until ;")
	require.NoError(t, err)
	def := prog.Definitions[0]

	node, ok := def.Body[len(def.Body)-1].(*ast.BeginUntil)
	require.True(t, ok)
	assert.NotEmpty(t, node.Body)
}

func TestParseBeginWhileRepeat(t *testing.T) {
	prog, err := parse(t, ": f begin dup 0 > while 1 - repeat ;")
	require.NoError(t, err)
	def := prog.Definitions[0]

	node, ok := def.Body[0].(*ast.BeginWhileRepeat)
	require.True(t, ok)
	assert.NotEmpty(t, node.Cond)
	assert.NotEmpty(t, node.Body)
}

func TestParseDoLoop(t *testing.T) {
	prog, err := parse(t, ": sumto 0 swap 1+ 1 do i + loop ;")
	require.NoError(t, err)
	def := prog.Definitions[0]

	var doNode *ast.DoLoop
	for _, n := range def.Body {
		if v, ok := n.(*ast.DoLoop); ok {
			doNode = v
		}
	}
	require.NotNil(t, doNode)
	assert.Len(t, doNode.Body, 2)
}

func TestParseStrayThenIsUnmatchedControl(t *testing.T) {
	_, err := parse(t, ": f then ;")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, UnmatchedControl, perr.Kind)
}

func TestParseNestedDefinitionRejected(t *testing.T) {
	_, err := parse(t, ": f : g ; ;")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, NestedDefinition, perr.Kind)
}

func TestParseUnterminatedIfIsUnexpectedEOF(t *testing.T) {
	_, err := parse(t, ": f dup if drop")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, UnexpectedEOF, perr.Kind)
}

func TestParseSemicolonInsideIfIsMissingTerminator(t *testing.T) {
	_, err := parse(t, ": f dup if drop ;")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, MissingTerminator, perr.Kind)
}
