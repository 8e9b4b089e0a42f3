package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindFiles(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"b.hcl",
		"a.hcl",
		"nested/c.hcl",
		"nested/readme.md",
		".git/d.hcl",
		"node_modules/pkg/e.hcl",
	} {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	found, err := FindFiles(root, ".hcl")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "a.hcl"),
		filepath.Join(root, "b.hcl"),
		filepath.Join(root, "nested", "c.hcl"),
	}, found)
}

func TestFindFilesEmptyExtensionPanics(t *testing.T) {
	require.Panics(t, func() { _, _ = FindFiles(t.TempDir(), "") })
}
