// Package fsutil locates pipeline files on disk.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FindFiles returns every file under root whose name ends in ext, sorted.
// Directories starting with a dot or named node_modules are not descended.
func FindFiles(root, ext string) ([]string, error) {
	if ext == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := doublestar.GlobWalk(os.DirFS(root), "**/*"+ext, func(p string, d fs.DirEntry) error {
		if d.IsDir() || skipped(p) {
			return nil
		}
		files = append(files, filepath.Join(root, filepath.FromSlash(p)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func skipped(p string) bool {
	parts := strings.Split(p, "/")
	for _, dir := range parts[:len(parts)-1] {
		if strings.HasPrefix(dir, ".") || dir == "node_modules" {
			return true
		}
	}
	return false
}
