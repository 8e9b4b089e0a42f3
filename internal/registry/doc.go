// Package registry provides the central "glue" for the step system.
//
// The Registry maps the step type names used in pipeline files (e.g.
// `step "sass" {}`) to the compiled Go functions that implement them, along
// with a constructor for each step's argument struct.
//
// During application startup, the registry is populated by every compiled-in
// module and then validated against the loaded pipeline, so that unknown
// step types, malformed arguments and dangling task references are reported
// before anything runs.
package registry
