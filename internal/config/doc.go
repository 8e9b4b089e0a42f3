// Package config defines the format-agnostic pipeline model for the
// application, along with the core interfaces (Loader, Decoder) for loading
// a pipeline file and decoding step arguments.
//
// The `config.Model` is the single source of truth for the `dag`,
// `pipeline` and `watch` packages. The HCL implementation of the interfaces
// lives in a separate package.
package config
