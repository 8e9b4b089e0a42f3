// Package hcl provides the concrete HCL implementation of the pipeline
// loading and step decoding interfaces defined in the `config` package.
// It is responsible for file parsing, resolving `locals`, building the
// evaluation context and translating HCL blocks into the config model.
package hcl
