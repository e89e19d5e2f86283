// Package mocks provides in-memory implementations of the interfaces package for tests
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/lanecast/lanecast/internal/state"
	"github.com/lanecast/lanecast/pkg/notifier"
	"github.com/lanecast/lanecast/pkg/types"
)

// MockRunStore keeps run states in memory
type MockRunStore struct {
	mu         sync.RWMutex
	states     map[string]*state.RunState
	active     map[string]bool
	beginError error
	heartbeats int
}

// NewMockRunStore creates an empty store
func NewMockRunStore() *MockRunStore {
	return &MockRunStore{
		states: make(map[string]*state.RunState),
		active: make(map[string]bool),
	}
}

// SetActive marks name as owned by another live process
func (m *MockRunStore) SetActive(name string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[name] = active
}

// SetBeginError makes BeginRun fail
func (m *MockRunStore) SetBeginError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginError = err
}

// BeginRun records a running state
func (m *MockRunStore) BeginRun(name, planPath, runID string, seed uint64, totalTrials int) (*state.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.beginError != nil {
		return nil, m.beginError
	}

	runs := 0
	if prev, ok := m.states[name]; ok {
		runs = prev.RunCount
	}
	st := &state.RunState{
		PlanName:    name,
		PlanPath:    planPath,
		RunID:       runID,
		Status:      types.RunStatusRunning,
		Seed:        seed,
		TotalTrials: totalTrials,
		RunCount:    runs + 1,
		StartedAt:   time.Now(),
		Heartbeat:   time.Now(),
	}
	m.states[name] = st
	return st, nil
}

// UpdateProgress records progress for a running state
func (m *MockRunStore) UpdateProgress(name string, percent float64, trials, failed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[name]; ok {
		st.PercentComplete = percent
		st.TrialsCompleted = trials
		st.FailedTrials = failed
	}
	return nil
}

// FinishRun records the final status
func (m *MockRunStore) FinishRun(name string, status types.RunStatus, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[name]; ok {
		st.Status = status
		st.FinishedAt = time.Now()
		st.LastError = ""
		if runErr != nil {
			st.LastError = runErr.Error()
		}
	}
	return nil
}

// ReadState returns a copy of the state for name, or nil
func (m *MockRunStore) ReadState(name string) (*state.RunState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[name]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

// IsActive returns what SetActive recorded
func (m *MockRunStore) IsActive(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[name], nil
}

// StartHeartbeat counts heartbeat starts
func (m *MockRunStore) StartHeartbeat(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
}

// StopHeartbeat is a no-op
func (m *MockRunStore) StopHeartbeat() {}

// HeartbeatStarts returns how many times StartHeartbeat was called
func (m *MockRunStore) HeartbeatStarts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.heartbeats
}

// Notification is one recorded notifier call
type Notification struct {
	Kind    string
	Plan    string
	Summary notifier.RunSummary
	Err     error
}

// MockNotifier records notifications
type MockNotifier struct {
	mu    sync.Mutex
	calls []Notification
}

// NewMockNotifier creates an empty recorder
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) record(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, n)
}

// NotifyRunStart records a start
func (m *MockNotifier) NotifyRunStart(plan string, trials int) {
	m.record(Notification{Kind: "start", Plan: plan, Summary: notifier.RunSummary{Plan: plan, Trials: trials}})
}

// NotifyRunComplete records a completion
func (m *MockNotifier) NotifyRunComplete(summary notifier.RunSummary) {
	m.record(Notification{Kind: "complete", Plan: summary.Plan, Summary: summary})
}

// NotifyRunFailure records a failure
func (m *MockNotifier) NotifyRunFailure(plan string, err error) {
	m.record(Notification{Kind: "failure", Plan: plan, Err: err})
}

// NotifyPlanReloaded records a reload
func (m *MockNotifier) NotifyPlanReloaded(plan string, items int) {
	m.record(Notification{Kind: "reload", Plan: plan})
}

// Calls returns the recorded notifications in order
func (m *MockNotifier) Calls() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.calls...)
}

// Kinds returns the kind of each recorded notification
func (m *MockNotifier) Kinds() []string {
	calls := m.Calls()
	kinds := make([]string, len(calls))
	for i, c := range calls {
		kinds[i] = c.Kind
	}
	return kinds
}
