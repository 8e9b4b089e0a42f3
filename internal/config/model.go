// SPDX-License-Identifier: MIT
//
// This file defines the Model, the root container for everything loaded from
// a project's pipeline files.
//
// A pipeline is a set of named tasks. A task owns one or more pipes, and a
// pipe is a straight line: read the files matching its globs, hand them to
// each step in order, write what comes out to a destination directory. Tasks
// are ordered only through explicit dependencies, so a task that consumes the
// output of another one says so instead of waiting for it.
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of a pipeline.
type Model struct {
	Locals      map[string]cty.Value
	Tasks       map[string]*Task
	TaskOrder   []string
	Watches     []*Watch
	Server      *Server
	DefaultTask string
}

// NewModel creates and returns an initialized, empty Model.
func NewModel() *Model {
	return &Model{
		Locals: make(map[string]cty.Value),
		Tasks:  make(map[string]*Task),
	}
}

// AddTask registers a task, rejecting duplicate names.
func (m *Model) AddTask(t *Task) error {
	if prev, ok := m.Tasks[t.Name]; ok {
		return fmt.Errorf("%s: duplicate task %q, first declared at %s", t.DeclRange, t.Name, prev.DeclRange)
	}
	m.Tasks[t.Name] = t
	m.TaskOrder = append(m.TaskOrder, t.Name)
	return nil
}

// Watch returns the watch with the given name, or nil.
func (m *Model) Watch(name string) *Watch {
	for _, w := range m.Watches {
		if w.Name == name {
			return w
		}
	}
	return nil
}

// Task is a named unit of work. Its pipes run concurrently and the task
// completes once all of them have finished.
type Task struct {
	Name        string
	Description string

	// DependsOn lists tasks that are scheduled together with this one and
	// must complete before it starts.
	DependsOn []string
	// After lists tasks that, when they are part of the same run, must
	// complete before this one starts. They are never scheduled implicitly.
	After []string

	Pipes     []*Pipe
	DeclRange hcl.Range
}

// ErrorMode controls what a pipe does when one of its steps fails.
type ErrorMode string

const (
	// OnErrorFail fails the owning task, and with it the run.
	OnErrorFail ErrorMode = "fail"
	// OnErrorContinue logs the failure and ends the pipe without writing.
	OnErrorContinue ErrorMode = "continue"
)

// ParseErrorMode validates a user supplied on_error value.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch ErrorMode(s) {
	case "", OnErrorFail:
		return OnErrorFail, nil
	case OnErrorContinue:
		return OnErrorContinue, nil
	}
	return "", fmt.Errorf("invalid on_error %q: must be %q or %q", s, OnErrorFail, OnErrorContinue)
}

// Pipe is a single read-transform-write chain inside a task.
type Pipe struct {
	Src         []string
	Base        string
	Dest        string
	Sourcemaps  bool
	Reload      bool
	OnError     ErrorMode
	Incremental bool
	Steps       []*Step
	DeclRange   hcl.Range
}

// Step is one transformation applied to the files flowing through a pipe.
type Step struct {
	Type      string
	Body      hcl.Body
	DeclRange hcl.Range
}

// Watch triggers tasks when files matching its paths change.
type Watch struct {
	Name      string
	Paths     []string
	Tasks     []string
	DeclRange hcl.Range
}

// Server configures the live-reload development server.
type Server struct {
	Port     int
	Proxy    string
	Root     string
	Before   []string
	Watches  []string
	ReloadOn []string
	Debounce time.Duration

	DeclRange hcl.Range
}
