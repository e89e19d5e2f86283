// Package state keeps run status files for forecasts so other processes can
// see what is running. Status files never hold trial data or bands.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/process"
	"github.com/lanecast/lanecast/pkg/types"
)

// StaleAfter is how long a running state may go without a heartbeat before it is considered dead
const StaleAfter = 30 * time.Second

// RunState is the persisted status of the latest run of one plan
type RunState struct {
	PlanName        string          `json:"planName"`
	PlanPath        string          `json:"planPath,omitempty"`
	RunID           string          `json:"runId"`
	Status          types.RunStatus `json:"status"`
	PercentComplete float64         `json:"percentComplete"`
	TrialsCompleted int             `json:"trialsCompleted"`
	TotalTrials     int             `json:"totalTrials"`
	FailedTrials    int             `json:"failedTrials"`
	Seed            uint64          `json:"seed"`
	RunCount        int             `json:"runCount"`
	ProcessID       int             `json:"processId"`
	StartedAt       time.Time       `json:"startedAt"`
	FinishedAt      time.Time       `json:"finishedAt,omitempty"`
	Heartbeat       time.Time       `json:"heartbeat"`
	LastError       string          `json:"lastError,omitempty"`
}

// Duration returns how long the run took, or has taken so far
func (s *RunState) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// IsStale reports whether a running state has lost its heartbeat
func (s *RunState) IsStale() bool {
	return s.Status == types.RunStatusRunning && time.Since(s.Heartbeat) > StaleAfter
}

// Manager reads and writes run state files under <root>/.lanecast/state
type Manager struct {
	stateDir string
	logger   logger.Logger

	mu             sync.RWMutex
	states         map[string]*RunState
	heartbeatStop  chan struct{}
	heartbeatTimer *time.Ticker
}

// NewManager creates a state manager rooted at projectRoot
func NewManager(projectRoot string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	stateDir := filepath.Join(projectRoot, ".lanecast", "state")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		log.Error("Failed to create state directory", logger.WithError(err))
	}

	return &Manager{
		stateDir: stateDir,
		logger:   log.WithComponent("state"),
		states:   make(map[string]*RunState),
	}
}

// Dir returns the state directory
func (m *Manager) Dir() string {
	return m.stateDir
}

// StateName derives a file-safe state name from a plan path
func StateName(planPath string) string {
	base := filepath.Base(planPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "plan"
	}
	return name
}

// BeginRun records a new running state, keeping the run counter of any previous run
func (m *Manager) BeginRun(name, planPath, runID string, seed uint64, totalTrials int) (*RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	st := &RunState{
		PlanName:    name,
		PlanPath:    planPath,
		RunID:       runID,
		Status:      types.RunStatusRunning,
		Seed:        seed,
		TotalTrials: totalTrials,
		ProcessID:   os.Getpid(),
		StartedAt:   now,
		Heartbeat:   now,
	}
	if prev, err := m.loadStateFile(name); err == nil {
		st.RunCount = prev.RunCount
	}
	st.RunCount++

	if err := m.saveStateFile(st); err != nil {
		return nil, fmt.Errorf("failed to save initial state: %w", err)
	}
	m.states[name] = st
	return st, nil
}

// UpdateProgress records the progress of a running state
func (m *Manager) UpdateProgress(name string, percent float64, trials, failed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.cached(name)
	if err != nil {
		return err
	}
	st.PercentComplete = percent
	st.TrialsCompleted = trials
	st.FailedTrials = failed
	st.Heartbeat = time.Now()
	return m.saveStateFile(st)
}

// FinishRun records the terminal status of a run
func (m *Manager) FinishRun(name string, status types.RunStatus, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.cached(name)
	if err != nil {
		return err
	}
	now := time.Now()
	st.Status = status
	st.FinishedAt = now
	st.Heartbeat = now
	st.LastError = ""
	if runErr != nil {
		st.LastError = runErr.Error()
	}
	return m.saveStateFile(st)
}

// ReadState returns the state for name, from memory or disk
func (m *Manager) ReadState(name string) (*RunState, error) {
	m.mu.RLock()
	if st, ok := m.states[name]; ok {
		cp := *st
		m.mu.RUnlock()
		return &cp, nil
	}
	m.mu.RUnlock()

	return m.loadStateFile(name)
}

// RemoveState deletes the state for name
func (m *Manager) RemoveState(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, name)
	if err := os.Remove(m.stateFilePath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// IsActive reports whether another live process is running the plan
func (m *Manager) IsActive(name string) (bool, error) {
	st, err := m.loadStateFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	if st.Status != types.RunStatusRunning || st.ProcessID == os.Getpid() || st.IsStale() {
		return false, nil
	}

	return process.IsAlive(st.ProcessID), nil
}

// DiscoverStates loads every state file in the state directory
func (m *Manager) DiscoverStates() (map[string]*RunState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]*RunState)
	files, err := os.ReadDir(m.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return states, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(file.Name(), ".json")
		st, err := m.loadStateFile(name)
		if err != nil {
			m.logger.Warn("Failed to load state file",
				logger.WithField("plan", name),
				logger.WithError(err))
			continue
		}
		states[name] = st
	}
	return states, nil
}

// StartHeartbeat refreshes the heartbeat of running states every interval
func (m *Manager) StartHeartbeat(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heartbeatTimer != nil {
		return
	}

	stop := make(chan struct{})
	ticker := time.NewTicker(interval)
	m.heartbeatStop = stop
	m.heartbeatTimer = ticker

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				m.updateHeartbeats()
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat updater
func (m *Manager) StopHeartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

// Cleanup stops the heartbeat and marks still-running states as cancelled
func (m *Manager) Cleanup() {
	m.StopHeartbeat()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.states {
		if st.Status != types.RunStatusRunning {
			continue
		}
		st.Status = types.RunStatusCancelled
		st.FinishedAt = time.Now()
		if err := m.saveStateFile(st); err != nil {
			m.logger.Warn("Failed to save final state",
				logger.WithField("plan", st.PlanName),
				logger.WithError(err))
		}
	}
}

func (m *Manager) cached(name string) (*RunState, error) {
	if st, ok := m.states[name]; ok {
		return st, nil
	}
	st, err := m.loadStateFile(name)
	if err != nil {
		return nil, fmt.Errorf("run state not found: %s", name)
	}
	m.states[name] = st
	return st, nil
}

func (m *Manager) stateFilePath(name string) string {
	return filepath.Join(m.stateDir, name+".json")
}

func (m *Manager) loadStateFile(name string) (*RunState, error) {
	data, err := os.ReadFile(m.stateFilePath(name))
	if err != nil {
		return nil, err
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &st, nil
}

func (m *Manager) saveStateFile(st *RunState) error {
	path := m.stateFilePath(st.PlanName)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

func (m *Manager) updateHeartbeats() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, st := range m.states {
		if st.Status != types.RunStatusRunning {
			continue
		}
		st.Heartbeat = now
		if err := m.saveStateFile(st); err != nil {
			m.logger.Debug("Failed to update heartbeat",
				logger.WithField("plan", st.PlanName),
				logger.WithError(err))
		}
	}
}
