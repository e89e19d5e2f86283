package validation_test

import (
	"strings"
	"testing"

	"github.com/lanecast/lanecast/pkg/types"
	"github.com/lanecast/lanecast/pkg/validation"
)

func basePlan() *types.Plan {
	return &types.Plan{
		Version: types.PlanVersion,
		Teams: []types.TeamSpec{
			{Name: "core", ParallelLanes: 2},
		},
		Items: []types.ItemSpec{
			{Key: "A", Team: "core", EffortDays: types.FloatPtr(3), Confidence: types.FloatPtr(50)},
			{Key: "B", Team: "core", EffortDays: types.FloatPtr(2), BlockedBy: []string{"A"}},
		},
		Simulation: types.SimulationConfig{
			BatchSize:  types.IntPtr(20),
			BatchCount: types.IntPtr(10),
		},
	}
}

func hasIssue(r *validation.ValidationResult, level validation.ValidationLevel, field, substr string) bool {
	for _, e := range r.Errors {
		if e.Level == level && e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestPlanValidator_Valid(t *testing.T) {
	result := validation.NewPlanValidator().Validate(basePlan())
	if !result.Valid || len(result.Errors) != 0 {
		t.Errorf("expected clean plan, got %v", result.Errors)
	}
	if result.Err() != nil {
		t.Errorf("expected nil error, got %v", result.Err())
	}
}

func TestPlanValidator_Issues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Plan)
		level  validation.ValidationLevel
		field  string
		substr string
	}{
		{
			name:   "duplicate key",
			mutate: func(p *types.Plan) { p.Items[1].Key = "A"; p.Items[1].BlockedBy = nil },
			level:  validation.ValidationLevelError,
			field:  "key",
			substr: "duplicate",
		},
		{
			name:   "unknown team",
			mutate: func(p *types.Plan) { p.Items[0].Team = "ghosts" },
			level:  validation.ValidationLevelError,
			field:  "team",
			substr: "unknown team",
		},
		{
			name:   "negative effort",
			mutate: func(p *types.Plan) { p.Items[0].EffortDays = types.FloatPtr(-1) },
			level:  validation.ValidationLevelError,
			field:  "effortDays",
			substr: "negative",
		},
		{
			name:   "confidence out of range",
			mutate: func(p *types.Plan) { p.Items[0].Confidence = types.FloatPtr(120) },
			level:  validation.ValidationLevelError,
			field:  "confidence",
			substr: "between 0 and 100",
		},
		{
			name:   "unknown blocker",
			mutate: func(p *types.Plan) { p.Items[1].BlockedBy = []string{"Z"} },
			level:  validation.ValidationLevelWarning,
			field:  "blockedBy",
			substr: "unknown item",
		},
		{
			name:   "self block",
			mutate: func(p *types.Plan) { p.Items[0].Blocks = []string{"A"} },
			level:  validation.ValidationLevelWarning,
			field:  "blocks",
			substr: "itself",
		},
		{
			name:   "no lanes",
			mutate: func(p *types.Plan) { p.Teams[0].ParallelLanes = 0 },
			level:  validation.ValidationLevelWarning,
			field:  "parallelLanes",
			substr: "one lane",
		},
		{
			name:   "missing effort",
			mutate: func(p *types.Plan) { p.Items[1].EffortDays = nil },
			level:  validation.ValidationLevelWarning,
			field:  "effortDays",
			substr: "zero days",
		},
		{
			name:   "zero batch size",
			mutate: func(p *types.Plan) { p.Simulation.BatchSize = types.IntPtr(0) },
			level:  validation.ValidationLevelError,
			field:  "batchSize",
			substr: "at least 1",
		},
		{
			name:   "few trials",
			mutate: func(p *types.Plan) { p.Simulation.BatchCount = types.IntPtr(2) },
			level:  validation.ValidationLevelWarning,
			field:  "batchCount",
			substr: "noisy",
		},
		{
			name:   "bad schedule",
			mutate: func(p *types.Plan) { p.Watch = &types.WatchConfig{Schedule: "every tuesday"} },
			level:  validation.ValidationLevelError,
			field:  "schedule",
			substr: "invalid schedule",
		},
		{
			name:   "cycle",
			mutate: func(p *types.Plan) { p.Items[0].BlockedBy = []string{"B"} },
			level:  validation.ValidationLevelError,
			field:  "blockedBy",
			substr: "dependency cycle",
		},
		{
			name: "cross type edge",
			mutate: func(p *types.Plan) {
				p.Items[0].Type = "epic"
				p.Items[1].Type = "story"
			},
			level:  validation.ValidationLevelWarning,
			field:  "blockedBy",
			substr: "hierarchy type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := basePlan()
			tt.mutate(plan)
			result := validation.NewPlanValidator().Validate(plan)

			if !hasIssue(result, tt.level, tt.field, tt.substr) {
				t.Errorf("expected %s on %s containing %q, got %v", tt.level, tt.field, tt.substr, result.Errors)
			}
			if tt.level == validation.ValidationLevelError && result.Valid {
				t.Error("expected plan to be invalid")
			}
			if tt.level == validation.ValidationLevelWarning && !result.Valid {
				t.Errorf("warnings alone should keep the plan valid: %v", result.Errors)
			}
		})
	}
}

func TestValidationResult_Err(t *testing.T) {
	result := &validation.ValidationResult{Valid: true}
	result.AddError("A", "key", "first", validation.ValidationLevelError)
	result.AddError("B", "team", "second", validation.ValidationLevelWarning)
	result.AddError("C", "key", "third", validation.ValidationLevelError)

	if result.Valid {
		t.Error("expected invalid result")
	}
	if result.Count(validation.ValidationLevelError) != 2 || result.Count(validation.ValidationLevelWarning) != 1 {
		t.Errorf("unexpected counts in %v", result.Errors)
	}
	msg := result.Err().Error()
	if !strings.Contains(msg, "[error] A.key: first") || !strings.Contains(msg, "C.key: third") || strings.Contains(msg, "second") {
		t.Errorf("unexpected joined error %q", msg)
	}
}
