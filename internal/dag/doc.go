// Package dag builds the dependency graph of the tasks selected for a run
// and executes it with a pool of concurrent workers.
//
// A task becomes ready only when every task it depends on has signalled
// completion; there is no timing-based sequencing anywhere. A failing task
// cancels the run and every task downstream of it is skipped.
package dag
