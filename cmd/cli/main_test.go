package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/nodegrid/internal/app"
	"github.com/specialistvlad/nodegrid/internal/testutil"
)

func streams(out *testutil.SafeBuffer) app.Streams {
	return app.Streams{In: strings.NewReader(""), Out: out, Err: out}
}

func noEnvFile(t *testing.T) []string {
	return []string{"-env-file", filepath.Join(t.TempDir(), "absent.env")}
}

func TestRun_ExecutesBlueprint(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := `
blueprint "sum" {
  node "add" {
    type       = "math"
    parameters = { operation = "add", operand = 5 }
  }
}
`
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	out := &testutil.SafeBuffer{}
	args := append(noEnvFile(t), "-log-level", "error", "-input", `{"default": 2}`, path)

	// --- Act ---
	err := run(testutil.Context(t), streams(out), args)

	// --- Assert ---
	require.NoError(t, err)
	require.Contains(t, out.String(), `"success": true`)
	require.Contains(t, out.String(), `"data": 7`)
}

func TestRun_InvalidBlueprint(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// An unterminated block fails while the blueprint files are loaded.
	invalidHCL := `
		blueprint "broken" {
			node "a" {
	`
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(invalidHCL), 0o600))
	out := &testutil.SafeBuffer{}

	// --- Act ---
	err := run(context.Background(), streams(out), append(noEnvFile(t), "-log-level", "error", path))

	// --- Assert ---
	require.Error(t, err, "run() should fail when the blueprint cannot be parsed")
	require.Contains(t, err.Error(), "failed to load blueprints")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &testutil.SafeBuffer{}

	// --- Act ---
	err := run(context.Background(), streams(out), append(noEnvFile(t), "-h"))

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Providing an unknown flag will cause cli.Parse to return an error.
	args := []string{"--this-is-not-a-valid-flag"}
	out := &testutil.SafeBuffer{}

	// --- Act ---
	err := run(context.Background(), streams(out), append(noEnvFile(t), args...))

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}
