// Package watch runs callbacks when files below a project root change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/vk/assetgrid/internal/ctxlog"
)

// DefaultDebounce is used for rules that do not set their own.
const DefaultDebounce = 100 * time.Millisecond

// RunFunc is called with the changed paths, relative to the root and
// slash-separated.
type RunFunc func(ctx context.Context, changed []string) error

// Rule ties a set of globs to a callback.
type Rule struct {
	Name string
	// Patterns are globs relative to the root. A leading "!" excludes.
	Patterns []string
	Debounce time.Duration
	Run      RunFunc
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	root  string
	rules []*rule
	fsw   *fsnotify.Watcher
}

// skipDirs are never watched.
var skipDirs = map[string]bool{".git": true, "node_modules": true}

// New creates a watcher over root and subscribes to every directory below
// it. Directories created later are added as they appear.
func New(root string, rules ...Rule) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{root: abs, fsw: fsw}
	for _, r := range rules {
		if r.Run == nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch rule '%s' has no callback", r.Name)
		}
		for _, p := range r.Patterns {
			if !doublestar.ValidatePattern(strings.TrimPrefix(p, "!")) {
				_ = fsw.Close()
				return nil, fmt.Errorf("watch rule '%s': invalid glob %q", r.Name, p)
			}
		}
		if r.Debounce <= 0 {
			r.Debounce = DefaultDebounce
		}
		w.rules = append(w.rules, &rule{Rule: r, events: make(chan string, 64)})
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// Close releases the watcher. Run closes it as well.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run dispatches file events to the rules until ctx is canceled. It waits
// for in-flight callbacks before returning.
func (w *Watcher) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	defer w.fsw.Close()

	var wg sync.WaitGroup
	for _, r := range w.rules {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx)
		}()
	}
	defer wg.Wait()

	logger.Info("👀 Watching for changes.", "root", w.root, "rules", len(w.rules))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error.", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				ctxlog.FromContext(ctx).Warn("Failed to watch new directory.", "dir", event.Name, "error", err)
			}
		}
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	for _, r := range w.rules {
		if Match(r.Patterns, rel) {
			select {
			case r.events <- rel:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Match reports whether rel matches any pattern and no "!" pattern.
func Match(patterns []string, rel string) bool {
	matched := false
	for _, p := range patterns {
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			if ok, _ := doublestar.Match(cleanGlob(neg), rel); ok {
				return false
			}
			continue
		}
		if ok, _ := doublestar.Match(cleanGlob(p), rel); ok {
			matched = true
		}
	}
	return matched
}

func cleanGlob(p string) string {
	return strings.TrimPrefix(filepath.ToSlash(p), "./")
}

// rule is the runtime state of a Rule.
type rule struct {
	Rule
	events chan string
}

// loop debounces events and runs the callback. Changes arriving while the
// callback runs are coalesced into exactly one follow-up run.
func (r *rule) loop(ctx context.Context) {
	logger := ctxlog.FromContext(ctx).With("watch", r.Name)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	changed := make(map[string]struct{})
	done := make(chan struct{}, 1)
	running, pending := false, false

	start := func() {
		paths := make([]string, 0, len(changed))
		for p := range changed {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		clear(changed)
		running = true
		go func() {
			defer func() { done <- struct{}{} }()
			logger.Info("🔄 Change detected.", "files", paths)
			if err := r.Run(ctx, paths); err != nil && ctx.Err() == nil {
				logger.Error("Watch run failed, still watching.", "error", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			return
		case p := <-r.events:
			changed[p] = struct{}{}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.Debounce)
		case <-timer.C:
			if running {
				pending = true
				continue
			}
			start()
		case <-done:
			running = false
			if pending {
				pending = false
				if len(changed) > 0 {
					start()
				}
			}
		}
	}
}
