// Package app contains the core application logic. It wires the pipeline
// loader, step registry, build cache, task runner, watcher and dev server
// together, decoupled from any specific entrypoint like the CLI.
package app
