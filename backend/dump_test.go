package backend

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpSSAIsDeterministic(t *testing.T) {
	mod := buildModule(t, ": double 2 * ;")
	first := DumpSSA(mod)
	second := DumpSSA(mod)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("DumpSSA not deterministic (-first +second):\n%s", diff)
	}
	assert.Contains(t, first, "func double")
	assert.Contains(t, first, "mul")
}

func TestDumpIRIsDeterministic(t *testing.T) {
	mod := buildModule(t, ": double 2 * ;")
	fn := mod.Functions["double"]
	handles := map[string]FuncHandle{"double": 0}
	lf, err := Lower(fn, 0, handles, &Module{handles: handles})
	require.NoError(t, err)

	fns := map[string]*LFunction{"double": lf}
	first := DumpIR(fns)
	second := DumpIR(fns)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("DumpIR not deterministic (-first +second):\n%s", diff)
	}
	assert.Contains(t, first, "double")
}
