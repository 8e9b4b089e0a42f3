// Package asset models the stream of files that flows through a pipe: how
// files are selected from a project with globs, carried between steps
// together with their source maps, and written to a destination.
//
// All paths are slash-separated and relative to the root of the
// billy.Filesystem the project is opened on.
package asset
