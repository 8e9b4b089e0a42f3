package error_handling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/assetgrid/internal/app"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/registry"
	"github.com/vk/assetgrid/internal/testutil"
)

func failModule() *testutil.SimpleModule {
	type failInput struct {
		Message string `hcl:"message,optional"`
	}
	return &testutil.SimpleModule{
		StepName: "fail",
		Step: registry.Step("Always fails.", func(_ context.Context, _ *registry.Env, in *failInput, _ []*asset.File) ([]*asset.File, error) {
			msg := in.Message
			if msg == "" {
				msg = "step failed"
			}
			return nil, errors.New(msg)
		}),
	}
}

// Test for: A failing task cancels the run and skips its dependents.
func TestErrorHandling_FailureSkipsDependents(t *testing.T) {
	pipeline := `
task "broken" {
  pipe {
    step "fail" {
      message = "sass exploded"
    }
  }
}

task "slow" {
  pipe {
    step "sleep" {
      id = "slow"
    }
  }
}

task "after_broken" {
  depends_on = ["broken"]
  pipe {
    step "sleep" {
      id = "after_broken"
    }
  }
}

task "all" {
  depends_on = ["after_broken", "slow"]
}
`
	mock := testutil.NewMockSleeperModule(nil, 2*time.Second)
	start := time.Now()
	result := testutil.RunIntegrationTest(t, pipeline, nil, []string{"all"}, mock, failModule())

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "execution failed for broken")
	assert.Contains(t, result.Err.Error(), "sass exploded")
	assert.Nil(t, mock.Record("after_broken"))
	assert.Nil(t, mock.Record("slow"), "running tasks are canceled")
	assert.Less(t, time.Since(start), 2*time.Second)
	testutil.AssertTaskNotRan(t, result, "after_broken")
	testutil.AssertTaskNotRan(t, result, "all")
}

// Test for: on_error = "continue" logs the failure and writes nothing.
func TestErrorHandling_ContinueOnError(t *testing.T) {
	pipeline := `
task "css" {
  pipe {
    src      = ["src/style.css"]
    dest     = "dist"
    on_error = "continue"
    step "fail" {}
  }
  pipe {
    src  = ["src/other.css"]
    dest = "dist"
  }
}
`
	files := map[string]string{
		"src/style.css": "a{}",
		"src/other.css": "b{}",
	}
	result := testutil.RunIntegrationTest(t, pipeline, files, []string{"css"}, failModule())

	require.NoError(t, result.Err)
	assert.Contains(t, result.LogOutput, "Pipe failed, continuing without writing.")
	assert.False(t, result.Exists("dist/style.css"))
	assert.Equal(t, "b{}", result.ReadFile(t, "dist/other.css"))
	testutil.AssertTaskRan(t, result, "css")
}

// Test for: Invalid pipelines are rejected before anything runs.
func TestErrorHandling_InvalidPipelineIsRejected(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		wantErr  string
	}{
		{
			name:     "syntax",
			pipeline: `task "a" { pipe {`,
			wantErr:  "failed to load pipeline",
		},
		{
			name: "unknown dependency",
			pipeline: `
task "a" {
  depends_on = ["ghost"]
}
`,
			wantErr: "depends on unknown task 'ghost'",
		},
		{
			name: "unknown watch task",
			pipeline: `
task "a" {}
watch "w" {
  paths = ["src/**"]
  tasks = ["ghost"]
}
`,
			wantErr: "watch 'w': unknown task 'ghost'",
		},
		{
			name: "missing required argument",
			pipeline: `
task "a" {
  pipe {
    step "sleep" {}
  }
}
`,
			wantErr: "id",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := testutil.LoadPipelineTest(t, tc.pipeline, testutil.NewMockSleeperModule(nil, 0))
			require.Error(t, result.Err)
			var cfgErr *app.ConfigError
			require.ErrorAs(t, result.Err, &cfgErr)
			assert.Contains(t, result.Err.Error(), tc.wantErr)
		})
	}
}

// Test for: Dependency cycles are rejected when the graph is built.
func TestErrorHandling_CycleIsRejected(t *testing.T) {
	pipeline := `
task "a" {
  depends_on = ["b"]
}
task "b" {
  depends_on = ["a"]
}
`
	result := testutil.RunIntegrationTest(t, pipeline, nil, []string{"a"}, &testutil.NoOpModule{})

	require.Error(t, result.Err)
	var cfgErr *app.ConfigError
	require.ErrorAs(t, result.Err, &cfgErr)
	assert.Contains(t, result.Err.Error(), "cycle detected")
}
