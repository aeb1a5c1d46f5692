package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/internal/chunk"
)

func writeScript(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lox")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	var ee *exitError
	require.True(t, errors.As(err, &ee), "error %v is not an *exitError", err)
	return ee.code
}

func TestTooManyPositionalArgsIsUsageError(t *testing.T) {
	a := writeScript(t, "print 1;")
	b := writeScript(t, "print 2;")
	_, err := execute(t, a, b)
	require.Equal(t, 64, exitCode(t, err))
}

func TestRunFileSuccess(t *testing.T) {
	path := writeScript(t, "print 1 + 2;")
	_, err := execute(t, path)
	require.NoError(t, err)
}

func TestRunFileCompileErrorExitsWithSixtyFive(t *testing.T) {
	path := writeScript(t, "print ;")
	_, err := execute(t, path)
	require.Equal(t, 65, exitCode(t, err))
}

func TestRunFileRuntimeErrorExitsWithSeventy(t *testing.T) {
	path := writeScript(t, "print 1 + nil;")
	_, err := execute(t, path)
	require.Equal(t, 70, exitCode(t, err))
}

func TestRunMissingFileExitsWithSeventyFour(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "missing.lox"))
	require.Equal(t, 74, exitCode(t, err))
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, version)
}

func TestDisasmCommandPrintsBytecode(t *testing.T) {
	chunk.ColorsEnabled = false
	defer func() { chunk.ColorsEnabled = true }()

	path := writeScript(t, "print 1 + 2;")
	out, err := execute(t, "disasm", path)
	require.NoError(t, err)
	require.Contains(t, out, "OP_ADD")
}
