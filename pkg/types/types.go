// Package types provides the plan and configuration model for lanecast
package types

import (
	"time"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// RunStatus represents the lifecycle state of a forecast run
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Simulation defaults
const (
	DefaultBatchSize        = 20
	DefaultBatchCount       = 500
	DefaultYieldDelayMs     = 1
	DefaultThroughput       = 1.0
	DefaultMinDeviation     = 0.0
	DefaultMaxDeviation     = 1.0
	DefaultDefaultDeviation = 0.4
	PlanVersion             = "1.0"
)

// TeamSpec describes a pool of capacity with a fixed number of parallel lanes
type TeamSpec struct {
	Name              string   `json:"name" yaml:"name"`
	ParallelLanes     int      `json:"parallelLanes" yaml:"parallelLanes"`
	ThroughputPerLane *float64 `json:"throughputPerLane,omitempty" yaml:"throughputPerLane,omitempty"`
}

// GetThroughputPerLane returns the configured throughput or the default of one point per day
func (t *TeamSpec) GetThroughputPerLane() float64 {
	if t.ThroughputPerLane != nil && *t.ThroughputPerLane > 0 {
		return *t.ThroughputPerLane
	}
	return DefaultThroughput
}

// ItemSpec describes one work item as supplied by the estimation collaborator
type ItemSpec struct {
	Key        string   `json:"key" yaml:"key"`
	Title      string   `json:"title,omitempty" yaml:"title,omitempty"`
	Team       string   `json:"team" yaml:"team"`
	Type       string   `json:"type,omitempty" yaml:"type,omitempty"`
	Parent     string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	BlockedBy  []string `json:"blockedBy,omitempty" yaml:"blockedBy,omitempty"`
	Blocks     []string `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	EffortDays *float64 `json:"effortDays,omitempty" yaml:"effortDays,omitempty"`
	Points     *float64 `json:"points,omitempty" yaml:"points,omitempty"`
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// GetConfidence returns the 0-100 confidence score, 0 when unset
func (i *ItemSpec) GetConfidence() float64 {
	if i.Confidence != nil {
		return *i.Confidence
	}
	return 0
}

// SimulationConfig represents the Monte Carlo run settings
type SimulationConfig struct {
	BatchSize         *int              `json:"batchSize,omitempty" yaml:"batchSize,omitempty"`
	BatchCount        *int              `json:"batchCount,omitempty" yaml:"batchCount,omitempty"`
	YieldDelayMs      *int              `json:"yieldDelayMs,omitempty" yaml:"yieldDelayMs,omitempty"`
	UncertaintyWeight UncertaintyWeight `json:"uncertaintyWeight" yaml:"uncertaintyWeight"`
	Workers           int               `json:"workers,omitempty" yaml:"workers,omitempty"`
	Seed              uint64            `json:"seed,omitempty" yaml:"seed,omitempty"`
	AbortOnTrialError bool              `json:"abortOnTrialError,omitempty" yaml:"abortOnTrialError,omitempty"`
}

// GetBatchSize returns the number of trials per batch
func (s *SimulationConfig) GetBatchSize() int {
	if s.BatchSize != nil {
		return *s.BatchSize
	}
	return DefaultBatchSize
}

// GetBatchCount returns the number of batches per run
func (s *SimulationConfig) GetBatchCount() int {
	if s.BatchCount != nil {
		return *s.BatchCount
	}
	return DefaultBatchCount
}

// GetYieldDelay returns the pause between batches
func (s *SimulationConfig) GetYieldDelay() time.Duration {
	if s.YieldDelayMs != nil {
		return time.Duration(*s.YieldDelayMs) * time.Millisecond
	}
	return DefaultYieldDelayMs * time.Millisecond
}

// TotalTrials returns batchSize x batchCount
func (s *SimulationConfig) TotalTrials() int {
	return s.GetBatchSize() * s.GetBatchCount()
}

// EstimationConfig maps confidence scores to log-normal deviations
type EstimationConfig struct {
	MinDeviation     *float64 `json:"minDeviation,omitempty" yaml:"minDeviation,omitempty"`
	MaxDeviation     *float64 `json:"maxDeviation,omitempty" yaml:"maxDeviation,omitempty"`
	DefaultDeviation *float64 `json:"defaultDeviation,omitempty" yaml:"defaultDeviation,omitempty"`
}

func (e *EstimationConfig) GetMinDeviation() float64 {
	if e != nil && e.MinDeviation != nil {
		return *e.MinDeviation
	}
	return DefaultMinDeviation
}

func (e *EstimationConfig) GetMaxDeviation() float64 {
	if e != nil && e.MaxDeviation != nil {
		return *e.MaxDeviation
	}
	return DefaultMaxDeviation
}

func (e *EstimationConfig) GetDefaultDeviation() float64 {
	if e != nil && e.DefaultDeviation != nil {
		return *e.DefaultDeviation
	}
	return DefaultDefaultDeviation
}

// NotificationConfig represents notification preferences
type NotificationConfig struct {
	Enabled      *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	SuccessSound string `json:"successSound,omitempty" yaml:"successSound,omitempty"`
	FailureSound string `json:"failureSound,omitempty" yaml:"failureSound,omitempty"`
}

// IsEnabled reports whether desktop notifications are on
func (n *NotificationConfig) IsEnabled() bool {
	return n != nil && n.Enabled != nil && *n.Enabled
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	File  string   `json:"file" yaml:"file"`
	Level LogLevel `json:"level" yaml:"level"`
}

// WatchConfig represents watch mode settings
type WatchConfig struct {
	Schedule      string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	DebounceMs    int    `json:"debounceMs,omitempty" yaml:"debounceMs,omitempty"`
	ReseedOnRerun bool   `json:"reseedOnRerun,omitempty" yaml:"reseedOnRerun,omitempty"`
}

// GetDebounce returns the settle time before a changed plan is reloaded
func (w *WatchConfig) GetDebounce() time.Duration {
	if w != nil && w.DebounceMs > 0 {
		return time.Duration(w.DebounceMs) * time.Millisecond
	}
	return 500 * time.Millisecond
}

// Plan represents a complete plan file
type Plan struct {
	Version       string              `json:"version" yaml:"version"`
	Name          string              `json:"name,omitempty" yaml:"name,omitempty"`
	Teams         []TeamSpec          `json:"teams" yaml:"teams"`
	Items         []ItemSpec          `json:"items" yaml:"items"`
	Simulation    SimulationConfig    `json:"simulation" yaml:"simulation"`
	Estimation    *EstimationConfig   `json:"estimation,omitempty" yaml:"estimation,omitempty"`
	Logging       *LoggingConfig      `json:"logging,omitempty" yaml:"logging,omitempty"`
	Notifications *NotificationConfig `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	Watch         *WatchConfig        `json:"watch,omitempty" yaml:"watch,omitempty"`
}

// TeamByName looks up a team spec
func (p *Plan) TeamByName(name string) (*TeamSpec, bool) {
	for i := range p.Teams {
		if p.Teams[i].Name == name {
			return &p.Teams[i], true
		}
	}
	return nil, false
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v
func FloatPtr(v float64) *float64 { return &v }

// BoolPtr returns a pointer to v
func BoolPtr(v bool) *bool { return &v }
