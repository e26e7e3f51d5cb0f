package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign16(t *testing.T) {
	assert.Equal(t, 0, align16(0))
	assert.Equal(t, 16, align16(1))
	assert.Equal(t, 16, align16(16))
	assert.Equal(t, 32, align16(17))
}

func TestScratchDispIsNegativeAndDistinct(t *testing.T) {
	a := scratchDisp(0)
	b := scratchDisp(1)
	assert.Less(t, a, int32(0))
	assert.Less(t, b, a)
}

func TestEncodeFunctionProducesNonEmptyCode(t *testing.T) {
	mod := buildModule(t, ": double 2 * ;")
	fn := mod.Functions["double"]
	handles := map[string]FuncHandle{"double": 0}
	m := &Module{handles: handles}

	lf, err := Lower(fn, 0, handles, m)
	require.NoError(t, err)
	require.NoError(t, Verify(lf))

	code, err := encodeFunction(lf, m)
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	// prologue starts with push rbp (0x55); epilogue ends with ret (0xC3).
	assert.Equal(t, byte(0x55), code[0])
	assert.Equal(t, byte(0xC3), code[len(code)-1])
}

func TestPatchRel32RoundTrips(t *testing.T) {
	a := &asm{}
	at := a.jmpRel32()
	a.emit(0x90, 0x90, 0x90)
	a.patchRel32(at, a.len())

	rel := int32(a.buf[at]) | int32(a.buf[at+1])<<8 | int32(a.buf[at+2])<<16 | int32(a.buf[at+3])<<24
	assert.Equal(t, int32(3), rel)
}
