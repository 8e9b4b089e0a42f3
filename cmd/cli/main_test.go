package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_InvalidPipeline(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	invalidHCL := `
		task "css" {
			pipe {
		// Missing closing brace here
	`
	tempDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tempDir, "assetgrid.hcl"), []byte(invalidHCL), 0o600)
	require.NoError(t, err, "failed to set up test file")

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	code := run(context.Background(), stdout, stderr, []string{"run", "-C", tempDir, "--cache=false"})

	// --- Assert ---
	require.Equal(t, 2, code, "configuration errors exit with code 2")
	require.Contains(t, stderr.String(), "failed to load pipeline")
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := run(context.Background(), stdout, stderr, []string{"--help"})

	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "Usage:", "Expected help text to be printed to the output buffer")
	require.Empty(t, stderr.String())
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	pipeline := `
task "dirs" {
  pipe {
    step "mkdirs" {
      dirs = ["dist/css"]
    }
  }
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "assetgrid.hcl"), []byte(pipeline), 0o600))

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := run(context.Background(), stdout, stderr, []string{"run", "dirs", "-C", tempDir, "--cache=false", "--log-format", "json"})

	require.Equal(t, 0, code, stderr.String())
	require.DirExists(t, filepath.Join(tempDir, "dist", "css"))
	require.Contains(t, stderr.String(), "Execution finished.")
}
