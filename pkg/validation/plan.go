// Package validation checks plans before they are simulated
package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/pkg/types"
	"github.com/robfig/cron/v3"
)

// ValidationLevel represents issue severity
type ValidationLevel string

const (
	ValidationLevelError   ValidationLevel = "error"
	ValidationLevelWarning ValidationLevel = "warning"
)

// ValidationError is one issue found in a plan. Subject is an item key, a team
// name or a plan section.
type ValidationError struct {
	Subject string
	Field   string
	Message string
	Level   ValidationLevel
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s.%s: %s", e.Level, e.Subject, e.Field, e.Message)
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// AddError adds an issue to the validation result
func (r *ValidationResult) AddError(subject, field, message string, level ValidationLevel) {
	r.Errors = append(r.Errors, ValidationError{
		Subject: subject,
		Field:   field,
		Message: message,
		Level:   level,
	})
	if level == ValidationLevelError {
		r.Valid = false
	}
}

// Count returns the number of issues at level
func (r *ValidationResult) Count(level ValidationLevel) int {
	n := 0
	for _, e := range r.Errors {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Err joins every error-level issue, or returns nil
func (r *ValidationResult) Err() error {
	var errs []error
	for i := range r.Errors {
		if r.Errors[i].Level == ValidationLevelError {
			errs = append(errs, &r.Errors[i])
		}
	}
	return errors.Join(errs...)
}

// PlanValidator validates plans
type PlanValidator struct{}

// NewPlanValidator creates a new plan validator
func NewPlanValidator() *PlanValidator {
	return &PlanValidator{}
}

// Validate checks teams, items and settings, then links the plan to report
// cycles and edges the linker would drop
func (v *PlanValidator) Validate(plan *types.Plan) *ValidationResult {
	result := &ValidationResult{Valid: true}

	teams := v.validateTeams(plan, result)
	v.validateItems(plan, teams, result)
	v.validateSimulation(&plan.Simulation, result)
	v.validateEstimation(plan.Estimation, result)
	v.validateWatch(plan.Watch, result)

	if result.Valid {
		v.validateGraph(plan, result)
	}
	return result
}

func (v *PlanValidator) validateTeams(plan *types.Plan, result *ValidationResult) map[string]bool {
	names := make(map[string]bool, len(plan.Teams))
	if len(plan.Teams) == 0 {
		result.AddError("plan", "teams", "at least one team is required", ValidationLevelError)
	}

	for _, team := range plan.Teams {
		if team.Name == "" {
			result.AddError("", "name", "team name is required", ValidationLevelError)
			continue
		}
		if names[team.Name] {
			result.AddError(team.Name, "name", "duplicate team name", ValidationLevelError)
		}
		names[team.Name] = true

		if team.ParallelLanes < 1 {
			result.AddError(team.Name, "parallelLanes", "fewer than one lane, one lane will be used", ValidationLevelWarning)
		}
		if team.ThroughputPerLane != nil && *team.ThroughputPerLane <= 0 {
			result.AddError(team.Name, "throughputPerLane", fmt.Sprintf("must be positive, %v will be used", types.DefaultThroughput), ValidationLevelWarning)
		}
	}
	return names
}

func (v *PlanValidator) validateItems(plan *types.Plan, teams map[string]bool, result *ValidationResult) {
	if len(plan.Items) == 0 {
		result.AddError("plan", "items", "at least one item is required", ValidationLevelError)
	}

	keys := make(map[string]bool, len(plan.Items))
	for _, item := range plan.Items {
		if item.Key != "" {
			if keys[item.Key] {
				result.AddError(item.Key, "key", "duplicate item key", ValidationLevelError)
			}
			keys[item.Key] = true
		}
	}

	for _, item := range plan.Items {
		key := item.Key
		if key == "" {
			result.AddError("", "key", "item key is required", ValidationLevelError)
			continue
		}
		if strings.TrimSpace(key) != key {
			result.AddError(key, "key", "item key has surrounding whitespace", ValidationLevelWarning)
		}

		switch {
		case item.Team == "":
			result.AddError(key, "team", "team is required", ValidationLevelError)
		case !teams[item.Team]:
			result.AddError(key, "team", fmt.Sprintf("unknown team %q", item.Team), ValidationLevelError)
		}

		v.validateEffort(item, result)

		for _, blocker := range item.BlockedBy {
			v.validateEdge(key, "blockedBy", blocker, keys, result)
		}
		for _, target := range item.Blocks {
			v.validateEdge(key, "blocks", target, keys, result)
		}
		if item.Parent != "" && !keys[item.Parent] {
			result.AddError(key, "parent", fmt.Sprintf("unknown parent %q", item.Parent), ValidationLevelWarning)
		}
	}
}

func (v *PlanValidator) validateEffort(item types.ItemSpec, result *ValidationResult) {
	if item.EffortDays != nil && (*item.EffortDays < 0 || math.IsNaN(*item.EffortDays)) {
		result.AddError(item.Key, "effortDays", "must not be negative", ValidationLevelError)
	}
	if item.Points != nil && (*item.Points < 0 || math.IsNaN(*item.Points)) {
		result.AddError(item.Key, "points", "must not be negative", ValidationLevelError)
	}
	if item.EffortDays == nil && item.Points == nil {
		result.AddError(item.Key, "effortDays", "no effort or points, item takes zero days", ValidationLevelWarning)
	}
	if item.Confidence != nil {
		if c := *item.Confidence; c < 0 || c > 100 || math.IsNaN(c) {
			result.AddError(item.Key, "confidence", "must be between 0 and 100", ValidationLevelError)
		}
	}
}

func (v *PlanValidator) validateEdge(key, field, other string, keys map[string]bool, result *ValidationResult) {
	switch {
	case other == key:
		result.AddError(key, field, "item cannot block itself, edge will be dropped", ValidationLevelWarning)
	case !keys[other]:
		result.AddError(key, field, fmt.Sprintf("unknown item %q, edge will be dropped", other), ValidationLevelWarning)
	}
}

func (v *PlanValidator) validateSimulation(sim *types.SimulationConfig, result *ValidationResult) {
	if sim.GetBatchSize() < 1 {
		result.AddError("simulation", "batchSize", "must be at least 1", ValidationLevelError)
	}
	if sim.GetBatchCount() < 1 {
		result.AddError("simulation", "batchCount", "must be at least 1", ValidationLevelError)
	}
	if sim.GetYieldDelay() < 0 {
		result.AddError("simulation", "yieldDelayMs", "must not be negative", ValidationLevelError)
	}
	if sim.Workers < 0 {
		result.AddError("simulation", "workers", "must not be negative", ValidationLevelError)
	}
	if sim.TotalTrials() > 0 && sim.TotalTrials() < 100 {
		result.AddError("simulation", "batchCount", fmt.Sprintf("only %d trials, bands will be noisy", sim.TotalTrials()), ValidationLevelWarning)
	}
}

func (v *PlanValidator) validateEstimation(est *types.EstimationConfig, result *ValidationResult) {
	lo, hi, def := est.GetMinDeviation(), est.GetMaxDeviation(), est.GetDefaultDeviation()
	if lo < 0 || hi < 0 || def < 0 {
		result.AddError("estimation", "deviation", "deviations must not be negative", ValidationLevelError)
	}
	if lo > hi {
		result.AddError("estimation", "minDeviation", "greater than maxDeviation, higher confidence will widen estimates", ValidationLevelWarning)
	}
}

func (v *PlanValidator) validateWatch(w *types.WatchConfig, result *ValidationResult) {
	if w == nil || w.Schedule == "" {
		return
	}
	if _, err := cron.ParseStandard(w.Schedule); err != nil {
		result.AddError("watch", "schedule", fmt.Sprintf("invalid schedule: %v", err), ValidationLevelError)
	}
}

func (v *PlanValidator) validateGraph(plan *types.Plan, result *ValidationResult) {
	items, err := graph.FromPlan(plan)
	if err != nil {
		result.AddError("plan", "items", err.Error(), ValidationLevelError)
		return
	}

	g, err := graph.Link(items, nil)
	if err != nil {
		var cycle *graph.CycleError
		if errors.As(err, &cycle) {
			result.AddError(cycle.Path[0], "blockedBy", "dependency cycle "+strings.Join(cycle.Path, " -> "), ValidationLevelError)
			return
		}
		result.AddError("plan", "items", err.Error(), ValidationLevelError)
		return
	}

	for _, d := range g.Dropped {
		if d.Reason == graph.DropCrossType {
			result.AddError(d.To, "blockedBy",
				fmt.Sprintf("blocker %q has a different hierarchy type, edge will be dropped", d.From),
				ValidationLevelWarning)
		}
	}
}
