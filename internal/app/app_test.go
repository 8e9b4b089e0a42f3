package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/hcl"
	"github.com/vk/assetgrid/internal/registry"
	"github.com/vk/assetgrid/modules/files"
)

const concatPipeline = `
default = "js"

task "js" {
  pipe {
    src         = ["src/js/a.js", "src/js/b.js"]
    dest        = "dist/js"
    incremental = true
    step "concat" {
      path = "lib.js"
    }
  }
}

watch "js" {
  paths = ["src/js/**"]
  tasks = ["js"]
}
`

var concatFiles = map[string]string{
	"src/js/a.js": "var a = 1;",
	"src/js/b.js": "var b = 2;",
}

// failModule registers a "fail" step that always errors.
type failModule struct{}

func (failModule) Register(r *registry.Registry) {
	type failInput struct{}
	r.RegisterStep("fail", registry.Step("Always fails.",
		func(context.Context, *registry.Env, *failInput, []*asset.File) ([]*asset.File, error) {
			return nil, errors.New("boom")
		}))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func readFile(t *testing.T, a *App, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(a.Root(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{ConfigPath: "assetgrid.hcl", Dir: ".", LogFormat: "auto", LogLevel: "info", Workers: 10}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "uppercase values are normalized", mutate: func(c *Config) { c.LogFormat = "JSON"; c.LogLevel = "DEBUG" }},
		{name: "empty config path", mutate: func(c *Config) { c.ConfigPath = "" }, wantErr: "config path"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "invalid log-format"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log-level"},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: "invalid workers"},
		{name: "bad port", mutate: func(c *Config) { c.HealthcheckPort = 70000 }, wantErr: "invalid healthcheck-port"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, strings.ToLower(cfg.LogLevel), cfg.LogLevel)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfig_PipelinePath(t *testing.T) {
	cfg := Config{ConfigPath: "build/assetgrid.hcl", Dir: "/project"}
	assert.Equal(t, filepath.Join("/project", "build", "assetgrid.hcl"), cfg.PipelinePath())

	abs := filepath.Join(t.TempDir(), "p.hcl")
	cfg.ConfigPath = abs
	assert.Equal(t, abs, cfg.PipelinePath())
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "assetgrid.hcl", cfg.ConfigPath)
		assert.Equal(t, ".", cfg.Dir)
		assert.Equal(t, "auto", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 10, cfg.Workers)
		assert.True(t, cfg.Cache)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("ASSETGRID_WORKERS", "3")
		t.Setenv("ASSETGRID_LOG_FORMAT", "json")
		t.Setenv("ASSETGRID_CACHE", "false")
		t.Setenv("ASSETGRID_OTEL_ENDPOINT", "localhost:4318")
		cfg, err := ConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Workers)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.False(t, cfg.Cache)
		assert.Equal(t, "localhost:4318", cfg.OtelEndpoint)
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("ASSETGRID_WORKERS", "many")
		_, err := ConfigFromEnv()
		require.Error(t, err)
	})
}

func TestResolveFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, "json", resolveFormat("auto", &buf), "non-terminal writers get json")
	assert.Equal(t, "text", resolveFormat("text", &buf))

	newLogger("info", "json", &buf).Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestNewApp_ConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		wantErr  string
	}{
		{name: "syntax", pipeline: `task "a" {`, wantErr: "failed to load pipeline"},
		{
			name: "unknown step",
			pipeline: `
task "a" {
  pipe {
    src  = ["x"]
    dest = "y"
    step "teleport" {}
  }
}
`,
			wantErr: "unknown step type 'teleport'",
		},
		{
			name: "bad step arguments",
			pipeline: `
task "a" {
  pipe {
    src  = ["x"]
    dest = "y"
    step "concat" {}
  }
}
`,
			wantErr: "path",
		},
		{name: "unknown default", pipeline: `default = "ghost"`, wantErr: "default task 'ghost'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := SetupAppTest(t, hcl.NewLoader(), tc.pipeline, nil, &files.Module{})
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRun_DefaultTask(t *testing.T) {
	a, logs, err := SetupAppTest(t, hcl.NewLoader(), concatPipeline, concatFiles)
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background(), nil))
	assert.Equal(t, "var a = 1;\nvar b = 2;", readFile(t, a, "dist/js/lib.js"))
	assert.Contains(t, logs.String(), "Execution finished.")
}

func TestRun_Incremental(t *testing.T) {
	a, logs, err := SetupAppTest(t, hcl.NewLoader(), concatPipeline, concatFiles)
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background(), []string{"js"}))
	require.NoError(t, a.Run(context.Background(), []string{"js"}))
	assert.Contains(t, logs.String(), "Pipe up to date, skipping.")
}

func TestRun_ConfigErrors(t *testing.T) {
	a, _, err := SetupAppTest(t, hcl.NewLoader(), `task "a" {}`, nil)
	require.NoError(t, err)

	err = a.Run(context.Background(), nil)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "no default task")

	err = a.Run(context.Background(), []string{"ghost"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "unknown task 'ghost'")
}

func TestRun_FailureSkipsDependents(t *testing.T) {
	pipeline := `
task "broken" {
  pipe {
    src  = ["src/js/a.js"]
    dest = "dist"
    step "fail" {}
  }
}

task "js" {
  depends_on = ["broken"]
  pipe {
    src  = ["src/js/a.js", "src/js/b.js"]
    dest = "dist/js"
    step "concat" {
      path = "lib.js"
    }
  }
}
`
	a, _, err := SetupAppTest(t, hcl.NewLoader(), pipeline, concatFiles, &files.Module{}, failModule{})
	require.NoError(t, err)

	err = a.Run(context.Background(), []string{"js"})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.False(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "execution failed for broken")
	assert.Contains(t, err.Error(), "boom")
	_, statErr := os.Stat(filepath.Join(a.Root(), "dist", "js", "lib.js"))
	assert.True(t, os.IsNotExist(statErr), "dependent task must not run")
}

func TestTasksAndWatches(t *testing.T) {
	a, _, err := SetupAppTest(t, hcl.NewLoader(), concatPipeline, concatFiles)
	require.NoError(t, err)

	tasks := a.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "js", tasks[0].Name)
	assert.Equal(t, "js", a.DefaultTask())
	require.Len(t, a.Watches(), 1)
	assert.Nil(t, a.Server())
}

func TestWatch_RebuildsOnChange(t *testing.T) {
	a, _, err := SetupAppTest(t, hcl.NewLoader(), concatPipeline, concatFiles)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx, nil) }()

	src := filepath.Join(a.Root(), "src", "js", "b.js")
	out := filepath.Join(a.Root(), "dist", "js", "lib.js")
	require.Eventually(t, func() bool {
		// Rewritten on every poll in case the watcher was not ready yet.
		if err := os.WriteFile(src, []byte("var b = 3;"), 0o644); err != nil {
			return false
		}
		data, err := os.ReadFile(out)
		return err == nil && strings.HasSuffix(string(data), "var b = 3;")
	}, 5*time.Second, 150*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_Errors(t *testing.T) {
	a, _, err := SetupAppTest(t, hcl.NewLoader(), concatPipeline, concatFiles)
	require.NoError(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, a.Watch(context.Background(), []string{"ghost"}), &cfgErr)

	b, _, err := SetupAppTest(t, hcl.NewLoader(), `task "a" {}`, nil)
	require.NoError(t, err)
	require.ErrorAs(t, b.Watch(context.Background(), nil), &cfgErr)
	require.ErrorAs(t, b.Serve(context.Background()), &cfgErr)
}

func TestServe_BuildsAndServes(t *testing.T) {
	port := freePort(t)
	pipeline := concatPipeline + fmt.Sprintf(`
server {
  port    = %d
  root    = "dist"
  before  = ["js"]
  watches = ["js"]
}
`, port)
	a, _, err := SetupAppTest(t, hcl.NewLoader(), pipeline, concatFiles)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/js/lib.js")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		body = buf.String()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "var a = 1;\nvar b = 2;", body)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestHealthcheckServer(t *testing.T) {
	port := freePort(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assetgrid.hcl"), []byte(`task "a" {}`), 0o644))

	cfg := &Config{
		ConfigPath:      "assetgrid.hcl",
		Dir:             dir,
		LogLevel:        "debug",
		LogFormat:       "text",
		Workers:         1,
		HealthcheckPort: port,
	}
	a, err := NewApp(context.Background(), &SafeBuffer{}, cfg, hcl.NewLoader())
	require.NoError(t, err)
	defer a.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
}
