package asset

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Dest writes files below dir, keeping each file's path relative to its
// base. With sourcemaps set, a file carrying a map gets a sibling
// "<name>.map" and a sourceMappingURL comment pointing at it.
//
// Written files are rebased onto dir so later consumers see their new
// location. The written paths are returned in input order.
func Dest(fsys billy.Filesystem, dir string, files []*File, sourcemaps bool) ([]string, error) {
	dir = cleanPattern(dir)
	written := make([]string, 0, len(files))
	for _, f := range files {
		target := path.Join(dir, f.Relative())
		if err := fsys.MkdirAll(filepath.FromSlash(path.Dir(target)), 0o755); err != nil {
			return written, fmt.Errorf("failed to create directory for %s: %w", target, err)
		}

		contents := f.Contents
		if sourcemaps && f.Map != nil {
			mapName := path.Base(target) + ".map"
			if err := util.WriteFile(fsys, filepath.FromSlash(target+".map"), f.Map, 0o644); err != nil {
				return written, fmt.Errorf("failed to write source map for %s: %w", target, err)
			}
			contents = appendMapComment(contents, mapName, f.IsCSS())
			written = append(written, target+".map")
		}

		if err := util.WriteFile(fsys, filepath.FromSlash(target), contents, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", target, err)
		}
		f.Base = dir
		f.Path = target
		written = append(written, target)
	}
	return written, nil
}

func appendMapComment(contents []byte, url string, css bool) []byte {
	out := make([]byte, 0, len(contents)+len(url)+32)
	out = append(out, contents...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	if css {
		return append(out, fmt.Sprintf("/*# sourceMappingURL=%s */\n", url)...)
	}
	return append(out, fmt.Sprintf("//# sourceMappingURL=%s\n", url)...)
}
