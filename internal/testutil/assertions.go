package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertTaskRan checks the log output within a HarnessResult to confirm
// that a task has finished.
func AssertTaskRan(t *testing.T, result *HarnessResult, task string) {
	t.Helper()
	require.True(t, taskFinished(result.LogOutput, task),
		"expected task '%s' to have finished, logs:\n%s", task, result.LogOutput)
}

// AssertTaskNotRan checks that a task never started.
func AssertTaskNotRan(t *testing.T, result *HarnessResult, task string) {
	t.Helper()
	marker := fmt.Sprintf("task=%s", task)
	for _, line := range strings.Split(result.LogOutput, "\n") {
		if strings.Contains(line, "Starting task") && hasField(line, marker) {
			t.Fatalf("expected task '%s' not to run, logs:\n%s", task, result.LogOutput)
		}
	}
}

func taskFinished(logs, task string) bool {
	marker := fmt.Sprintf("task=%s", task)
	for _, line := range strings.Split(logs, "\n") {
		if strings.Contains(line, "Finished task") && hasField(line, marker) {
			return true
		}
	}
	return false
}

// hasField matches a key=value pair as a whole field.
func hasField(line, field string) bool {
	for _, f := range strings.Fields(line) {
		if f == field {
			return true
		}
	}
	return false
}
