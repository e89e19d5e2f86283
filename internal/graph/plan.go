package graph

import (
	"errors"
	"fmt"

	"github.com/lanecast/lanecast/pkg/estimate"
	"github.com/lanecast/lanecast/pkg/types"
)

// ErrUnknownTeam is returned when an item names a team the plan does not define
var ErrUnknownTeam = errors.New("unknown team")

// DeviationFor converts a plan's estimation section into a Deviation
func DeviationFor(cfg *types.EstimationConfig) estimate.Deviation {
	return estimate.Deviation{
		Min:     cfg.GetMinDeviation(),
		Max:     cfg.GetMaxDeviation(),
		Default: cfg.GetDefaultDeviation(),
	}
}

// FromPlan builds work items from a plan. Effort comes from effortDays, or from
// points divided by the team's per-lane throughput when effortDays is absent.
func FromPlan(plan *types.Plan) ([]*WorkItem, error) {
	teams := make(map[string]*Team, len(plan.Teams))
	for i := range plan.Teams {
		spec := &plan.Teams[i]
		teams[spec.Name] = &Team{
			Name:              spec.Name,
			ParallelLanes:     spec.ParallelLanes,
			ThroughputPerLane: spec.GetThroughputPerLane(),
		}
	}

	dev := DeviationFor(plan.Estimation)
	items := make([]*WorkItem, 0, len(plan.Items))
	for i := range plan.Items {
		spec := &plan.Items[i]
		team, ok := teams[spec.Team]
		if !ok {
			return nil, fmt.Errorf("item %s: %w %q", spec.Key, ErrUnknownTeam, spec.Team)
		}

		items = append(items, &WorkItem{
			Key:           spec.Key,
			Title:         spec.Title,
			Team:          team,
			HierarchyType: spec.Type,
			ParentKey:     spec.Parent,
			BlockedBy:     spec.BlockedBy,
			Blocks:        spec.Blocks,
			Estimator:     estimate.FromConfidence(effortDays(spec, team), spec.GetConfidence(), dev),
		})
	}
	return items, nil
}

func effortDays(spec *types.ItemSpec, team *Team) float64 {
	switch {
	case spec.EffortDays != nil:
		return *spec.EffortDays
	case spec.Points != nil && team.ThroughputPerLane > 0:
		return *spec.Points / team.ThroughputPerLane
	default:
		return 0
	}
}
