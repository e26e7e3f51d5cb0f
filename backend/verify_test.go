package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthjit/types"
)

func straightLineFn() *LFunction {
	return &LFunction{
		Name:   "double",
		Effect: types.Effect{Inputs: []types.Type{types.Int}, Outputs: []types.Type{types.Int}},
		Blocks: []*LBlock{
			{ID: 0, Params: []int{0}, Term: LReturn{Values: []int{0}}},
		},
	}
}

func TestVerifyAcceptsStraightLineFunction(t *testing.T) {
	require.NoError(t, Verify(straightLineFn()))
}

func TestVerifyRejectsReturnArityMismatch(t *testing.T) {
	fn := straightLineFn()
	fn.Blocks[0].Term = LReturn{Values: []int{0, 0}}

	err := Verify(fn)
	require.Error(t, err)

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, IRVerificationFailed, berr.Kind)
	assert.Contains(t, berr.Details, "signature mismatch on return")
}

func TestVerifyRejectsBranchParamArityMismatch(t *testing.T) {
	fn := &LFunction{
		Name: "loop",
		Blocks: []*LBlock{
			{ID: 0, Term: LBranch{Target: 1, Args: []int{0, 1}}},
			{ID: 1, Params: []int{0}, Term: LReturn{}},
		},
	}

	err := Verify(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block-parameter arity mismatch")
}

func TestVerifyRejectsMissingTerminator(t *testing.T) {
	fn := &LFunction{Name: "broken", Blocks: []*LBlock{{ID: 0}}}
	err := Verify(fn)
	require.Error(t, err)
}
