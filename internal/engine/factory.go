package engine

import (
	"github.com/lanecast/lanecast/internal/state"
	"github.com/lanecast/lanecast/pkg/interfaces"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/notifier"
	"github.com/lanecast/lanecast/pkg/types"
)

// Dependencies are the collaborators an engine reports to. Nil members are skipped.
type Dependencies struct {
	State    interfaces.RunStore
	Notifier interfaces.RunNotifier
}

// DependencyFactory creates default implementations of dependencies
type DependencyFactory struct {
	projectRoot string
	logger      logger.Logger
	plan        *types.Plan
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(projectRoot string, log logger.Logger, plan *types.Plan) *DependencyFactory {
	return &DependencyFactory{
		projectRoot: projectRoot,
		logger:      log,
		plan:        plan,
	}
}

// CreateDefaults creates the state manager, and a notifier when the plan enables notifications
func (f *DependencyFactory) CreateDefaults() Dependencies {
	deps := Dependencies{
		State: state.NewManager(f.projectRoot, f.logger),
	}
	if n := f.plan.Notifications; n.IsEnabled() {
		deps.Notifier = notifier.New(notifier.Config{
			Enabled:      true,
			SuccessSound: n.SuccessSound,
			FailureSound: n.FailureSound,
		}, f.logger)
	}
	return deps
}

// CreateWithOverrides creates defaults, then replaces them with non-nil overrides
func (f *DependencyFactory) CreateWithOverrides(overrides Dependencies) Dependencies {
	deps := f.CreateDefaults()
	if overrides.State != nil {
		deps.State = overrides.State
	}
	if overrides.Notifier != nil {
		deps.Notifier = overrides.Notifier
	}
	return deps
}
