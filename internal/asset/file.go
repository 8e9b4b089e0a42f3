package asset

import (
	"path"
	"strings"
	"time"
)

// File is a single file in a pipe's stream.
type File struct {
	// Path is the file's location relative to the project root.
	Path string
	// Base is the directory Path is made relative to when the file is
	// written to a destination. An empty Base is the project root.
	Base     string
	Contents []byte
	// Map is a version 3 source map for Contents, or nil.
	Map     []byte
	ModTime time.Time
}

// Relative returns Path relative to Base.
func (f *File) Relative() string {
	if f.Base == "" || f.Base == "." {
		return f.Path
	}
	rel := strings.TrimPrefix(f.Path, f.Base+"/")
	if rel == f.Path {
		return path.Base(f.Path)
	}
	return rel
}

// Ext returns the lower-cased extension of the file, including the dot.
func (f *File) Ext() string {
	return strings.ToLower(path.Ext(f.Path))
}

// Name returns the last element of Path.
func (f *File) Name() string {
	return path.Base(f.Path)
}

// SetRelative moves the file to rel, keeping its base.
func (f *File) SetRelative(rel string) {
	if f.Base == "" || f.Base == "." {
		f.Path = path.Clean(rel)
		return
	}
	f.Path = path.Join(f.Base, rel)
}

// SetExt replaces the file extension.
func (f *File) SetExt(ext string) {
	rel := f.Relative()
	f.SetRelative(strings.TrimSuffix(rel, path.Ext(rel)) + ext)
}

// Clone returns a deep copy of the file.
func (f *File) Clone() *File {
	c := *f
	c.Contents = append([]byte(nil), f.Contents...)
	if f.Map != nil {
		c.Map = append([]byte(nil), f.Map...)
	}
	return &c
}

// IsCSS reports whether the file is a stylesheet.
func (f *File) IsCSS() bool {
	switch f.Ext() {
	case ".css", ".scss", ".sass":
		return true
	}
	return false
}

// TotalSize sums the content size of files.
func TotalSize(files []*File) uint64 {
	var n uint64
	for _, f := range files {
		n += uint64(len(f.Contents))
	}
	return n
}
