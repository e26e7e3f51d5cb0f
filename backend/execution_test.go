package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forthjit/driver"
	"forthjit/ssa"
)

// run drives a source string through the full DeclareAll/Define/
// FinalizeAll/driver.Run path -- the JIT's actual execution surface, not
// just its IR -- and returns the top-level entry's resulting stack.
func run(t *testing.T, src string) *driver.Result {
	t.Helper()
	mod := buildModule(t, src)

	bmod, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { bmod.Close() })

	bmod.DeclareAll(mod)
	for _, name := range mod.Order {
		require.NoError(t, bmod.Define(mod.Functions[name]))
	}
	entries, err := bmod.FinalizeAll()
	require.NoError(t, err)

	res, err := driver.Run(entries[ssa.EntryFunctionName], nil, 0)
	require.NoError(t, err)
	require.NoError(t, bmod.Wait())
	return res
}

// TestExecuteCallWithArgumentReadsBackCalleeResult exercises a user word
// that declares a non-zero input count, the exact shape emitCall's
// Dsts-read loop must offset past: a call with zero arguments always read
// the correct bytes by coincidence, since the caller's staging area and
// the callee's result area are the same memory in that case.
func TestExecuteCallWithArgumentReadsBackCalleeResult(t *testing.T) {
	res := run(t, ": square dup * ; 5 square")
	require.Equal(t, 1, res.Depth)
	require.Equal(t, int64(25), res.Top)
}

// TestExecuteCallWithTwoArguments checks a callee with more than one
// declared input, so the staging/result offset math is exercised at a
// value other than 1.
func TestExecuteCallWithTwoArguments(t *testing.T) {
	res := run(t, ": sum2 + ; 3 4 sum2")
	require.Equal(t, 1, res.Depth)
	require.Equal(t, int64(7), res.Top)
}

// TestExecuteRecursiveCallWithArgument mirrors spec's own worked example
// (5 fact -> 120): a self-recursive word that both takes and returns a
// value, so every recursive call site must read its result back from the
// correct offset too.
func TestExecuteRecursiveCallWithArgument(t *testing.T) {
	res := run(t, ": fact dup 1 > if dup 1 - fact * then ; 5 fact")
	require.Equal(t, 1, res.Depth)
	require.Equal(t, int64(120), res.Top)
}
