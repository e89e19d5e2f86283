// Package interfaces provides abstractions for dependency injection and testability
package interfaces

import (
	"context"
	"time"

	"github.com/lanecast/lanecast/internal/state"
	"github.com/lanecast/lanecast/pkg/notifier"
	"github.com/lanecast/lanecast/pkg/types"
)

// RunStore persists the status of forecast runs
type RunStore interface {
	BeginRun(name, planPath, runID string, seed uint64, totalTrials int) (*state.RunState, error)
	UpdateProgress(name string, percent float64, trials, failed int) error
	FinishRun(name string, status types.RunStatus, runErr error) error
	ReadState(name string) (*state.RunState, error)
	// IsActive reports whether another live process is running the plan
	IsActive(name string) (bool, error)
	StartHeartbeat(ctx context.Context, interval time.Duration)
	StopHeartbeat()
}

// RunNotifier tells the user about run lifecycle events
type RunNotifier interface {
	NotifyRunStart(plan string, trials int)
	NotifyRunComplete(summary notifier.RunSummary)
	NotifyRunFailure(plan string, err error)
	NotifyPlanReloaded(plan string, items int)
}

var (
	_ RunStore    = (*state.Manager)(nil)
	_ RunNotifier = (*notifier.RunNotifier)(nil)
)
