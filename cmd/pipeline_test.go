package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunDumpSSAReportsSuccessWithoutExecuting(t *testing.T) {
	var out bytes.Buffer
	code := Run("t.fs", ": double 2 * ;", &out, WithDumpSSA(true))

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out.String(), "func double")
}

func TestRunReportsCompileErrorOnSyntaxError(t *testing.T) {
	var out bytes.Buffer
	code := Run("t.fs", ": broken", &out)

	assert.Equal(t, ExitCompileError, code)
	assert.Empty(t, out.String())
}

func TestRunReportsCompileErrorOnUndefinedWord(t *testing.T) {
	var out bytes.Buffer
	code := Run("t.fs", "nowhere-to-be-found", &out)

	assert.Equal(t, ExitCompileError, code)
}

func TestRunDumpIRUsesLoweredForm(t *testing.T) {
	var out bytes.Buffer
	code := Run("t.fs", ": double 2 * ;", &out, WithDumpIR(true))

	assert.Equal(t, ExitSuccess, code)
	assert.True(t, strings.Contains(out.String(), "double"))
}
