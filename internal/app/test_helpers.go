package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vk/assetgrid/internal/config"
	"github.com/vk/assetgrid/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest writes pipeline and files into a fresh project directory and
// creates an app over it with debug logging and a private build cache.
func SetupAppTest(t *testing.T, loader config.Loader, pipeline string, files map[string]string, modules ...registry.Module) (*App, *SafeBuffer, error) {
	t.Helper()

	dir := t.TempDir()
	files = mergeFiles(files, map[string]string{"assetgrid.hcl": pipeline})
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	logBuffer := &SafeBuffer{}
	cfg := &Config{
		ConfigPath: "assetgrid.hcl",
		Dir:        dir,
		LogLevel:   "debug",
		LogFormat:  "text",
		Workers:    4,
		Cache:      true,
		CachePath:  filepath.Join(dir, ".cache.db"),
	}
	testApp, err := NewApp(context.Background(), logBuffer, cfg, loader, modules...)
	if testApp != nil {
		t.Cleanup(testApp.Close)
	}

	t.Cleanup(func() {
		if os.Getenv("ASSETGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer, err
}

func mergeFiles(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
