// Package pipeline runs the pipes of a task: read the source files, pass
// them through each step, write the result and announce what changed.
package pipeline
