package simulator

import (
	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/internal/scheduler"
)

// SetScheduleFunc replaces the per-trial scheduler
func SetScheduleFunc(s *Simulator, fn func(*graph.Graph, *scheduler.TrialState) error) {
	s.schedule = fn
}
