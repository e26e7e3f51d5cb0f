package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forthjit/types"
)

func TestBuiltinsPreseeded(t *testing.T) {
	d := New()

	for _, name := range []string{"+", "-", "dup", "swap", "spawn", "recv", "i", "create-file"} {
		entry, ok := d.Lookup(name)
		require.True(t, ok, "expected builtin %q", name)
		assert.Equal(t, Primitive, entry.Origin)
	}

	_, ok := d.Lookup("not-a-word")
	assert.False(t, ok)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	d := New()
	_, ok := d.Lookup("DUP")
	assert.True(t, ok)
	_, ok = d.Lookup("Dup")
	assert.True(t, ok)
}

func TestDefineRejectsShadowingPrimitive(t *testing.T) {
	d := New()
	err := d.Define("dup", types.Effect{}, false, false)
	require.Error(t, err)
}

func TestDefineRejectsRedefinitionByDefault(t *testing.T) {
	d := New()
	require.NoError(t, d.Define("square", types.Effect{Inputs: []types.Type{types.Int}, Outputs: []types.Type{types.Int}}, false, false))
	err := d.Define("square", types.Effect{}, false, false)
	assert.Error(t, err)
}

func TestDefineAllowsRedefinitionWhenOptedIn(t *testing.T) {
	d := New()
	require.NoError(t, d.Define("square", types.Effect{}, false, false))
	err := d.Define("square", types.Effect{}, false, true)
	assert.NoError(t, err)

	entry, ok := d.Lookup("square")
	require.True(t, ok)
	assert.Equal(t, User, entry.Origin)
}

func TestShuffleOpsHaveNoFixedEffect(t *testing.T) {
	d := New()
	for _, name := range []string{"dup", "drop", "swap", "over", "rot", "nip", "tuck", "2dup", "2drop", "2swap"} {
		entry, ok := d.Lookup(name)
		require.True(t, ok)
		assert.NotEqual(t, NoShuffle, entry.Shuffle, name)
	}
}
