package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/vk/assetgrid/internal/asset"
)

// Env carries what a step may need besides its arguments and input files.
type Env struct {
	// FS is the project filesystem.
	FS billy.Filesystem
	// Sourcemaps is set when the pipe writes source maps.
	Sourcemaps bool
	// Task is the name of the running task.
	Task string
}

// StepFunc transforms the files of a pipe. It may return the input slice,
// a modified copy, or an entirely new set of files.
type StepFunc func(ctx context.Context, env *Env, input any, files []*asset.File) ([]*asset.File, error)

// RegisteredStep holds the compiled Go parts of a step type.
type RegisteredStep struct {
	Description string
	// NewInput returns a pointer to a zero argument struct, or nil when the
	// step takes no arguments.
	NewInput func() any
	Fn       StepFunc
	// SideInputs is set for steps that read files or URLs other than the
	// pipe's sources. Their output cannot be derived from the pipe digest.
	SideInputs bool
}

// WithSideInputs marks the step as reading inputs outside the stream.
func (s *RegisteredStep) WithSideInputs() *RegisteredStep {
	s.SideInputs = true
	return s
}

// Step builds a RegisteredStep around a typed handler. Input must be a
// struct with `hcl` tags.
func Step[Input any](description string, fn func(ctx context.Context, env *Env, in *Input, files []*asset.File) ([]*asset.File, error)) *RegisteredStep {
	return &RegisteredStep{
		Description: description,
		NewInput:    func() any { return new(Input) },
		Fn: func(ctx context.Context, env *Env, input any, files []*asset.File) ([]*asset.File, error) {
			in, ok := input.(*Input)
			if !ok {
				return nil, fmt.Errorf("step input has type %T, want %T", input, new(Input))
			}
			return fn(ctx, env, in, files)
		},
	}
}

// Module is the interface that all step modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered steps for a single application instance.
type Registry struct {
	steps   map[string]*RegisteredStep
	closers []io.Closer
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{steps: make(map[string]*RegisteredStep)}
}

// RegisterStep registers a step type. Registering the same name twice is a
// programmer error.
func (r *Registry) RegisterStep(name string, step *RegisteredStep) {
	if _, exists := r.steps[name]; exists {
		panic(fmt.Sprintf("step type '%s' already registered", name))
	}
	if step == nil || step.Fn == nil {
		panic(fmt.Sprintf("step type '%s' registered without a handler", name))
	}
	slog.Debug("Registering step type.", "name", name)
	r.steps[name] = step
}

// OnClose registers a resource to release when the application shuts down.
func (r *Registry) OnClose(c io.Closer) {
	r.closers = append(r.closers, c)
}

// Lookup returns the step registered under name.
func (r *Registry) Lookup(name string) (*RegisteredStep, bool) {
	s, ok := r.steps[name]
	return s, ok
}

// Names returns the registered step types in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every resource registered with OnClose, in reverse order.
func (r *Registry) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
