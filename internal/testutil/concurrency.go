package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/assetgrid/internal/asset"
	"github.com/vk/assetgrid/internal/registry"
)

// ExecutionRecord is the wall-clock window of one "sleep" step.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two windows ran at the same time.
func (r *ExecutionRecord) Overlaps(o *ExecutionRecord) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// MockSleeperModule is a shared, self-contained module for concurrency tests.
// Its "sleep" step records when each id started and finished.
type MockSleeperModule struct {
	ExecutionTimes map[string]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(completionChan chan<- string, sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

// Record returns the execution record of id, or nil.
func (m *MockSleeperModule) Record(id string) *ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExecutionTimes[id]
}

// Register registers the "sleep" step.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	type sleeperInput struct {
		ID string `hcl:"id"`
	}

	r.RegisterStep("sleep", registry.Step("Sleeps and records timing.",
		func(ctx context.Context, _ *registry.Env, input *sleeperInput, files []*asset.File) ([]*asset.File, error) {
			startTime := time.Now()
			select {
			case <-time.After(m.sleepDuration):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			endTime := time.Now()

			m.mu.Lock()
			m.ExecutionTimes[input.ID] = &ExecutionRecord{Start: startTime, End: endTime}
			m.mu.Unlock()

			if m.completionChan != nil {
				m.completionChan <- input.ID
			}
			return files, nil
		}))
}
