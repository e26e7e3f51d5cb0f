package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareStackRejectsInputsWiderThanCapacity(t *testing.T) {
	_, _, err := prepareStack([]int64{1, 2, 3}, 2)
	require.Error(t, err)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, StackOverflow, derr.Kind)
}

func TestPrepareStackDefaultsCapacity(t *testing.T) {
	cells, sp, err := prepareStack(nil, 0)
	require.NoError(t, err)
	assert.Len(t, cells, DefaultStackCells)
	assert.NotZero(t, sp)
}

func TestPrepareStackSeedsInputsAtBase(t *testing.T) {
	cells, sp, err := prepareStack([]int64{7, 8}, 16)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cells[0])
	assert.Equal(t, int64(8), cells[1])
	assert.NotZero(t, sp)
}
