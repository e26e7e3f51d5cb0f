package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromote(t *testing.T) {
	tests := []struct {
		a, b   Type
		want   Type
		wantOK bool
	}{
		{Int, Int, Int, true},
		{Int, Float, Float, true},
		{Float, Int, Float, true},
		{Float, Float, Float, true},
		{Addr, Int, Unknown, false},
		{Bool, Int, Unknown, false},
	}

	for _, tc := range tests {
		got, ok := Promote(tc.a, tc.b)
		assert.Equal(t, tc.wantOK, ok, "%s,%s", tc.a, tc.b)
		if tc.wantOK {
			assert.Equal(t, tc.want, got, "%s,%s", tc.a, tc.b)
		}
	}
}

func TestEffectEqual(t *testing.T) {
	a := Effect{Inputs: []Type{Int, Int}, Outputs: []Type{Int}}
	b := Effect{Inputs: []Type{Int, Int}, Outputs: []Type{Int}}
	c := Effect{Inputs: []Type{Int}, Outputs: []Type{Int}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestEffectString(t *testing.T) {
	e := Effect{Inputs: []Type{Int, Int}, Outputs: []Type{Int}}
	assert.Equal(t, "(int int -- int)", e.String())
}
