// Package config loads, writes and overrides plan files
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lanecast/lanecast/pkg/types"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Format is a plan file encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var (
	// ErrUnsupportedVersion is returned for plan versions this build cannot read
	ErrUnsupportedVersion = errors.New("unsupported plan version")
	// ErrEmptyPlan is returned when a plan has no teams or no items
	ErrEmptyPlan = errors.New("plan has no teams or items")
)

// FormatFor picks a format from a file extension; unknown extensions return ""
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return ""
	}
}

// Manager handles plan file operations
type Manager struct{}

// NewManager creates a new plan manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadPlan reads, decodes and structurally validates a plan file
func (m *Manager) LoadPlan(path string) (*types.Plan, error) {
	plan, err := m.ReadPlan(path)
	if err != nil {
		return nil, err
	}
	if err := m.ValidatePlan(plan); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

// ReadPlan reads and decodes a plan file without validating it
func (m *Manager) ReadPlan(path string) (*types.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	plan, err := m.DecodePlan(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

// ParsePlan decodes plan data. An empty format tries JSON, then YAML, then TOML.
// YAML and TOML are decoded to a generic map and re-read through JSON so the
// plan types only need JSON decoding rules.
func (m *Manager) ParsePlan(data []byte, format Format) (*types.Plan, error) {
	plan, err := m.DecodePlan(data, format)
	if err != nil {
		return nil, err
	}
	if err := m.ValidatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// DecodePlan decodes and defaults a plan without validating it. An empty
// format tries JSON, then YAML, then TOML.
func (m *Manager) DecodePlan(data []byte, format Format) (*types.Plan, error) {
	var plan types.Plan

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("failed to parse plan as JSON: %w", err)
		}
	case FormatYAML:
		if err := decodeVia(data, yaml.Unmarshal, &plan); err != nil {
			return nil, fmt.Errorf("failed to parse plan as YAML: %w", err)
		}
	case FormatTOML:
		if err := decodeVia(data, toml.Unmarshal, &plan); err != nil {
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				row, col := derr.Position()
				return nil, fmt.Errorf("failed to parse plan as TOML at %d:%d: %w", row, col, err)
			}
			return nil, fmt.Errorf("failed to parse plan as TOML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &plan); err != nil {
			plan = types.Plan{}
			if err := decodeVia(data, yaml.Unmarshal, &plan); err != nil {
				plan = types.Plan{}
				if err := decodeVia(data, toml.Unmarshal, &plan); err != nil {
					return nil, fmt.Errorf("failed to parse plan as JSON, YAML or TOML")
				}
			}
		}
	}

	ApplyDefaults(&plan)
	return &plan, nil
}

func decodeVia(data []byte, unmarshal func([]byte, interface{}) error, plan *types.Plan) error {
	var raw map[string]interface{}
	if err := unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return ErrEmptyPlan
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, plan)
}

// ValidatePlan checks the plan version and that teams and items exist.
// Item-level checks live in the validation package.
func (m *Manager) ValidatePlan(plan *types.Plan) error {
	if plan.Version != types.PlanVersion {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, plan.Version)
	}
	if len(plan.Teams) == 0 || len(plan.Items) == 0 {
		return ErrEmptyPlan
	}
	return nil
}

// ApplyDefaults fills optional sections
func ApplyDefaults(plan *types.Plan) {
	if plan.Version == "" {
		plan.Version = types.PlanVersion
	}
	if plan.Logging == nil {
		plan.Logging = &types.LoggingConfig{}
	}
	if plan.Logging.Level == "" {
		plan.Logging.Level = types.LogLevelInfo
	}
}

// WritePlan encodes plan in the format implied by path
func (m *Manager) WritePlan(path string, plan *types.Plan) error {
	format := FormatFor(path)
	if format == "" {
		format = FormatYAML
	}
	data, err := EncodePlan(plan, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}

// EncodePlan renders plan in the given format
func EncodePlan(plan *types.Plan, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode plan: %w", err)
		}
		return append(data, '\n'), nil
	case FormatTOML:
		jsonData, err := json.Marshal(plan)
		if err != nil {
			return nil, fmt.Errorf("failed to encode plan: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(jsonData))
		dec.UseNumber()
		var raw map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to encode plan: %w", err)
		}
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).SetMarshalJsonNumbers(true).Encode(raw); err != nil {
			return nil, fmt.Errorf("failed to encode plan as TOML: %w", err)
		}
		return buf.Bytes(), nil
	default:
		data, err := yaml.Marshal(plan)
		if err != nil {
			return nil, fmt.Errorf("failed to encode plan as YAML: %w", err)
		}
		return data, nil
	}
}

// Override keys recognised by ApplyOverrides
const (
	KeyWeight     = "weight"
	KeyBatchSize  = "batch-size"
	KeyBatchCount = "batch-count"
	KeyYieldDelay = "yield-delay"
	KeyWorkers    = "workers"
	KeySeed       = "seed"
	KeyLogLevel   = "log-level"
	KeyLogFile    = "log-file"
)

// ApplyOverrides layers flag and environment values from v onto the plan
func ApplyOverrides(plan *types.Plan, v *viper.Viper) error {
	if v == nil {
		return nil
	}

	sim := &plan.Simulation
	if v.IsSet(KeyWeight) {
		w, err := types.ParseUncertaintyWeight(v.GetString(KeyWeight))
		if err != nil {
			return err
		}
		sim.UncertaintyWeight = w
	}
	if v.IsSet(KeyBatchSize) {
		sim.BatchSize = types.IntPtr(v.GetInt(KeyBatchSize))
	}
	if v.IsSet(KeyBatchCount) {
		sim.BatchCount = types.IntPtr(v.GetInt(KeyBatchCount))
	}
	if v.IsSet(KeyYieldDelay) {
		sim.YieldDelayMs = types.IntPtr(int(v.GetDuration(KeyYieldDelay).Milliseconds()))
	}
	if v.IsSet(KeyWorkers) {
		sim.Workers = v.GetInt(KeyWorkers)
	}
	if v.IsSet(KeySeed) {
		sim.Seed = v.GetUint64(KeySeed)
	}

	if plan.Logging == nil {
		plan.Logging = &types.LoggingConfig{}
	}
	if v.IsSet(KeyLogLevel) {
		plan.Logging.Level = types.LogLevel(v.GetString(KeyLogLevel))
	}
	if v.IsSet(KeyLogFile) {
		plan.Logging.File = v.GetString(KeyLogFile)
	}
	return nil
}

// SamplePlan returns the plan written by `lanecast init`
func SamplePlan() *types.Plan {
	return &types.Plan{
		Version: types.PlanVersion,
		Name:    "sample roadmap",
		Teams: []types.TeamSpec{
			{Name: "platform", ParallelLanes: 2, ThroughputPerLane: types.FloatPtr(1)},
			{Name: "web", ParallelLanes: 1, ThroughputPerLane: types.FloatPtr(2)},
		},
		Items: []types.ItemSpec{
			{Key: "PLAT-1", Title: "Auth service", Team: "platform", Type: "epic", EffortDays: types.FloatPtr(8), Confidence: types.FloatPtr(70)},
			{Key: "PLAT-2", Title: "Billing API", Team: "platform", Type: "epic", EffortDays: types.FloatPtr(5), Confidence: types.FloatPtr(50)},
			{Key: "PLAT-3", Title: "Audit log", Team: "platform", Type: "epic", EffortDays: types.FloatPtr(3), Confidence: types.FloatPtr(90), BlockedBy: []string{"PLAT-1"}},
			{Key: "WEB-1", Title: "Login screen", Team: "web", Type: "epic", Points: types.FloatPtr(10), Confidence: types.FloatPtr(60), BlockedBy: []string{"PLAT-1"}},
			{Key: "WEB-2", Title: "Invoices page", Team: "web", Type: "epic", Points: types.FloatPtr(8), BlockedBy: []string{"PLAT-2", "WEB-1"}},
		},
		Simulation: types.SimulationConfig{
			BatchSize:         types.IntPtr(types.DefaultBatchSize),
			BatchCount:        types.IntPtr(types.DefaultBatchCount),
			YieldDelayMs:      types.IntPtr(types.DefaultYieldDelayMs),
			UncertaintyWeight: types.Percentile(85),
		},
		Estimation: &types.EstimationConfig{
			MinDeviation:     types.FloatPtr(types.DefaultMinDeviation),
			MaxDeviation:     types.FloatPtr(types.DefaultMaxDeviation),
			DefaultDeviation: types.FloatPtr(types.DefaultDefaultDeviation),
		},
		Logging: &types.LoggingConfig{Level: types.LogLevelInfo},
		Notifications: &types.NotificationConfig{
			Enabled: types.BoolPtr(false),
		},
		Watch: &types.WatchConfig{Schedule: "@every 30m"},
	}
}
