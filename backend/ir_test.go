package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forthjit/lexer"
	"forthjit/parser"
	"forthjit/semantic"
	"forthjit/ssa"
)

func buildModule(t *testing.T, src string) *ssa.Module {
	t.Helper()
	p, err := parser.New(lexer.New(src))
	require.NoError(t, err)
	prog, err := p.Parse()
	require.NoError(t, err)
	res, err := semantic.New(semantic.Options{}).Analyze(prog)
	require.NoError(t, err)
	mod, err := ssa.NewBuilder(res.Dictionary).Build(prog, res.TopLevel)
	require.NoError(t, err)
	return mod
}

func TestLowerStraightLineFunction(t *testing.T) {
	mod := buildModule(t, ": double 2 * ;")
	fn := mod.Functions["double"]

	handles := map[string]FuncHandle{"double": 0}
	m := &Module{handles: handles}

	lf, err := Lower(fn, 0, handles, m)
	require.NoError(t, err)
	require.NoError(t, Verify(lf))
	require.Equal(t, "double", lf.Name)
	require.NotEmpty(t, lf.Blocks)
}

func TestLowerResolvesSelfRecursiveCall(t *testing.T) {
	mod := buildModule(t, ": countdown dup 0 > if 1 - countdown then ;")
	fn := mod.Functions["countdown"]

	handles := map[string]FuncHandle{"countdown": 0}
	m := &Module{handles: handles}

	lf, err := Lower(fn, 0, handles, m)
	require.NoError(t, err)

	var sawCall bool
	for _, b := range lf.Blocks {
		for _, in := range b.Instrs {
			if in.Op == LCall {
				sawCall = true
				require.Equal(t, FuncHandle(0), in.Callee)
			}
		}
	}
	require.True(t, sawCall, "expected a lowered self-recursive call")
}

func TestLowerRejectsUndeclaredCallee(t *testing.T) {
	fn := &ssa.Function{Name: "x", Blocks: []*ssa.Block{
		{ID: 0, Term: ssa.Return{}, Instrs: []*ssa.Instr{
			{Op: ssa.OpCall, Callee: "nowhere"},
		}},
	}}
	_, err := Lower(fn, 0, map[string]FuncHandle{}, &Module{})
	require.Error(t, err)
}
