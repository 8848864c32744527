package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes rootCmd with args, capturing stdout/stderr and stdin.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCreatePutCatStatRm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")

	out, err := run(t, "", "create", path, "--cluster-size", "128", "--cluster-count", "64")
	require.NoError(t, err)
	assert.Contains(t, out, "created")

	out, err = run(t, "hello evfsctl", "put", path, "greeting")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	out, err = run(t, "", "cat", path, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello evfsctl", out)

	out, err = run(t, "", "stat", path, "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "entries:   1")
	assert.Contains(t, out, "cache:")

	out, err = run(t, "", "rm", path, "greeting")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	out, err = run(t, "", "stat", path)
	require.NoError(t, err)
	assert.Contains(t, out, "entries:   0")
}

func TestCatMissingKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	_, err := run(t, "", "create", path, "--cluster-size", "128", "--cluster-count", "64")
	require.NoError(t, err)

	_, err = run(t, "", "cat", path, "nope")
	assert.Error(t, err)
}

func TestPutPreallocate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	_, err := run(t, "", "create", path, "--cluster-size", "128", "--cluster-count", "64")
	require.NoError(t, err)

	_, err = run(t, "small", "put", path, "x", "--preallocate", "300")
	require.NoError(t, err)

	// --preallocate truncates the entry up to 300 bytes before the write,
	// so the 5-byte payload lands in a zero-padded 300-byte entry.
	out, err := run(t, "", "cat", path, "x")
	require.NoError(t, err)
	require.Len(t, out, 300)
	assert.True(t, strings.HasPrefix(out, "small"))
}
