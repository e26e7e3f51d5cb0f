package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthjit/ast"
	"forthjit/lexer"
	"forthjit/parser"
	"forthjit/types"
)

func parseSource(t *testing.T, src string) *ast.Program {
	t.Helper()
	p, err := parser.New(lexer.New(src))
	require.NoError(t, err)
	prog, err := p.Parse()
	require.NoError(t, err)
	return prog
}

func analyze(t *testing.T, src string) (*Result, error) {
	t.Helper()
	prog := parseSource(t, src)
	return New(Options{}).Analyze(prog)
}

func TestInfersSimpleArithmeticDefinition(t *testing.T) {
	res, err := analyze(t, ": double 2 * ;")
	require.NoError(t, err)

	entry, ok := res.Dictionary.Lookup("double")
	require.True(t, ok)
	assert.Equal(t, types.Effect{Inputs: []types.Type{types.Int}, Outputs: []types.Type{types.Int}}, entry.Effect)
}

func TestInfersDupAsPolymorphicButDefaultsInt(t *testing.T) {
	res, err := analyze(t, ": two-copies dup ;")
	require.NoError(t, err)

	entry, ok := res.Dictionary.Lookup("two-copies")
	require.True(t, ok)
	assert.Equal(t, []types.Type{types.Int}, entry.Effect.Inputs)
	assert.Equal(t, []types.Type{types.Int, types.Int}, entry.Effect.Outputs)
}

func TestUndefinedWordIsReported(t *testing.T) {
	_, err := analyze(t, ": oops not-a-real-word ;")
	require.Error(t, err)

	errs, ok := err.(Errors)
	require.True(t, ok)
	require.Len(t, errs, 1)
	semErr, ok := errs[0].(*Error)
	require.True(t, ok)
	assert.Equal(t, UndefinedWord, semErr.Kind)
}

func TestTopLevelUnderflowIsReported(t *testing.T) {
	_, err := analyze(t, "+")
	require.Error(t, err)

	errs := err.(Errors)
	require.Len(t, errs, 1)
}

func TestIfThenWithoutElseMustBeNeutral(t *testing.T) {
	_, err := analyze(t, ": bad 0= if 1 then ;")
	require.Error(t, err)
}

func TestIfElseBranchesMustMatch(t *testing.T) {
	res, err := analyze(t, ": pick 0= if 1 else 2 then ;")
	require.NoError(t, err)

	entry, ok := res.Dictionary.Lookup("pick")
	require.True(t, ok)
	assert.Equal(t, []types.Type{types.Int}, entry.Effect.Inputs)
	assert.Equal(t, []types.Type{types.Int}, entry.Effect.Outputs)
}

func TestIfElseBranchesMismatchIsReported(t *testing.T) {
	_, err := analyze(t, ": bad 0= if 1 else 1 1 then ;")
	require.Error(t, err)

	errs := err.(Errors)
	require.Len(t, errs, 1)
	assert.Equal(t, StackEffectMismatch, errs[0].(*Error).Kind)
}

func TestBeginUntilNeutralBody(t *testing.T) {
	_, err := analyze(t, ": countdown begin 1- dup 0= until ;")
	require.NoError(t, err)
}

func TestDoLoopUsesIndex(t *testing.T) {
	res, err := analyze(t, ": sum-to 0 swap 0 do i + loop ;")
	require.NoError(t, err)

	entry, ok := res.Dictionary.Lookup("sum-to")
	require.True(t, ok)
	assert.Equal(t, []types.Type{types.Int}, entry.Effect.Outputs)
}

func TestLoopIndexOutsideDoLoopIsRejected(t *testing.T) {
	_, err := analyze(t, ": bad i ;")
	require.Error(t, err)

	errs := err.(Errors)
	assert.Equal(t, ControlStructureMismatch, errs[0].(*Error).Kind)
}

func TestDeclaredEffectArityMismatchIsReported(t *testing.T) {
	_, err := analyze(t, ": double ( n -- n n n ) 2 * ;")
	require.Error(t, err)

	errs := err.(Errors)
	assert.Equal(t, StackEffectMismatch, errs[0].(*Error).Kind)
}

func TestRedefinitionRejectedByDefault(t *testing.T) {
	_, err := analyze(t, ": square dup * ; : square dup * dup * ;")
	require.Error(t, err)
}

func TestRedefinitionAllowedWhenOptedIn(t *testing.T) {
	prog := parseSource(t, ": square dup * ; : square dup * dup * ;")
	_, err := New(Options{AllowRedefinition: true}).Analyze(prog)
	require.NoError(t, err)
}

func TestErrorsAccumulateAcrossDefinitions(t *testing.T) {
	_, err := analyze(t, ": a nope1 ; : b nope2 ; : c nope3 ;")
	require.Error(t, err)

	errs := err.(Errors)
	assert.Len(t, errs, 3)
}

func TestReturnStackImbalanceIsReported(t *testing.T) {
	_, err := analyze(t, ": bad 1 >r ;")
	require.Error(t, err)

	errs := err.(Errors)
	assert.Equal(t, ReturnStackImbalance, errs[0].(*Error).Kind)
}

func TestReturnStackBalancedIsAccepted(t *testing.T) {
	_, err := analyze(t, ": id >r r> ;")
	require.NoError(t, err)
}

func TestRecursiveDefinitionResolves(t *testing.T) {
	res, err := analyze(t, ": fact dup 1 > if dup 1 - fact * else drop 1 then ;")
	require.NoError(t, err)

	entry, ok := res.Dictionary.Lookup("fact")
	require.True(t, ok)
	assert.Equal(t, []types.Type{types.Int}, entry.Effect.Inputs)
	assert.Equal(t, []types.Type{types.Int}, entry.Effect.Outputs)
}
