package config

import "context"

// Loader is the interface for a format-specific pipeline loader.
type Loader interface {
	// Load reads configuration from the given paths, translates it into the
	// format-agnostic model, and returns a matching Decoder.
	Load(ctx context.Context, paths ...string) (*Model, Decoder, error)
}

// Decoder binds a step's raw configuration to the Go input struct of the
// step handler. Arguments are decoded at run time, against the evaluation
// context captured when the pipeline was loaded.
type Decoder interface {
	DecodeStep(ctx context.Context, step *Step, target any) error
}
