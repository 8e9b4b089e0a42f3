package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/assetgrid/internal/app"
	"github.com/vk/assetgrid/internal/hcl"
	"github.com/vk/assetgrid/internal/registry"
)

// PipelineFile is the name the harness gives the pipeline it writes.
const PipelineFile = "assetgrid.hcl"

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	// Dir is the project directory the test ran in.
	Dir string
}

// ReadFile returns the content of a project file, failing the test if it
// cannot be read.
func (r *HarnessResult) ReadFile(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.Dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// Exists reports whether a project file exists.
func (r *HarnessResult) Exists(rel string) bool {
	_, err := os.Stat(filepath.Join(r.Dir, filepath.FromSlash(rel)))
	return err == nil
}

// WriteProject writes files (relative path to content) below dir.
func WriteProject(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// NewTestApp writes the pipeline and project files to a temporary directory
// and creates an App over it. The build cache lives in the same directory.
// With no modules the built-in steps are registered.
func NewTestApp(t *testing.T, pipeline string, files map[string]string, modules ...registry.Module) (*HarnessResult, *SafeBuffer) {
	t.Helper()
	return NewTestAppWithContext(context.Background(), t, pipeline, files, modules...)
}

// NewTestAppWithContext is NewTestApp with a caller-provided context.
func NewTestAppWithContext(ctx context.Context, t *testing.T, pipeline string, files map[string]string, modules ...registry.Module) (*HarnessResult, *SafeBuffer) {
	t.Helper()

	dir := t.TempDir()
	WriteProject(t, dir, files)
	WriteProject(t, dir, map[string]string{PipelineFile: pipeline})

	cfg := &app.Config{
		ConfigPath: PipelineFile,
		Dir:        dir,
		LogLevel:   "debug",
		LogFormat:  "text",
		Workers:    4,
		Cache:      true,
		CachePath:  filepath.Join(dir, ".assetgrid-cache.db"),
	}

	logBuffer := &SafeBuffer{}
	testApp, err := app.NewApp(ctx, logBuffer, cfg, hcl.NewLoader(), modules...)
	if testApp != nil {
		t.Cleanup(testApp.Close)
	}
	t.Cleanup(func() {
		if os.Getenv("ASSETGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       err,
		App:       testApp,
		Dir:       dir,
	}, logBuffer
}

// RunIntegrationTest loads the pipeline and runs targets once.
func RunIntegrationTest(t *testing.T, pipeline string, files map[string]string, targets []string, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, pipeline, files, targets, modules...)
}

// RunIntegrationTestWithContext provides a standardized harness for running
// integration tests with a specific context provided by the caller.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, pipeline string, files map[string]string, targets []string, modules ...registry.Module) *HarnessResult {
	t.Helper()

	result, logs := NewTestAppWithContext(ctx, t, pipeline, files, modules...)
	if result.Err != nil {
		return result
	}
	result.Err = result.App.Run(ctx, targets)
	result.LogOutput = logs.String()
	return result
}
