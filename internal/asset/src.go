package asset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/vk/assetgrid/internal/ctxlog"
)

// Src reads every file matching patterns. Patterns starting with "!"
// exclude matches of the remaining pattern. When base is empty each file's
// base is the static directory prefix of the pattern that matched it; "."
// makes paths relative to the project root.
//
// Files are returned in pattern order: every match of the first include
// pattern, sorted by path, then the new matches of the next one. Each path
// appears at most once, at the position of the first pattern matching it.
func Src(ctx context.Context, fsys billy.Filesystem, patterns []string, base string) ([]*File, error) {
	logger := ctxlog.FromContext(ctx)

	var include, exclude []string
	for _, p := range patterns {
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			exclude = append(exclude, cleanPattern(neg))
			continue
		}
		include = append(include, cleanPattern(p))
	}

	seen := make(map[string]bool)
	var files []*File
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob %q", pattern)
		}
		root, _ := doublestar.SplitPattern(pattern)
		fileBase := base
		if fileBase == "" {
			fileBase = root
			if !hasMeta(pattern) {
				fileBase = path.Dir(pattern)
			}
		}
		fileBase = cleanPattern(fileBase)

		matches, err := match(fsys, root, pattern)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			logger.Debug("Glob matched no files.", "pattern", pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if seen[m] || excluded(m, exclude) {
				continue
			}
			f, err := readFile(fsys, m, fileBase)
			if err != nil {
				return nil, err
			}
			seen[m] = true
			files = append(files, f)
		}
	}
	return files, nil
}

// Glob returns the paths of regular files matching a single pattern.
func Glob(fsys billy.Filesystem, pattern string) ([]string, error) {
	pattern = cleanPattern(pattern)
	root, _ := doublestar.SplitPattern(pattern)
	return match(fsys, root, pattern)
}

func match(fsys billy.Filesystem, root, pattern string) ([]string, error) {
	var out []string
	err := util.Walk(fsys, filepath.FromSlash(root), func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := cleanPattern(filepath.ToSlash(p))
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return out, nil
}

func readFile(fsys billy.Filesystem, p, base string) (*File, error) {
	contents, err := util.ReadFile(fsys, filepath.FromSlash(p))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	f := &File{Path: p, Base: base, Contents: contents}
	if info, err := fsys.Stat(filepath.FromSlash(p)); err == nil {
		f.ModTime = info.ModTime()
	}
	return f, nil
}

func excluded(p string, exclude []string) bool {
	for _, pattern := range exclude {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// cleanPattern normalises a user supplied path or glob.
func cleanPattern(p string) string {
	p = filepath.ToSlash(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	if p == "" {
		return "."
	}
	if strings.HasSuffix(p, "/") && len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
