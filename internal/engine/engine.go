// Package engine turns plan files into forecasts. It links the plan, runs a
// simulation session, keeps the run status file current and sends
// notifications. Watch mode re-runs the forecast when the plan changes and on
// a cron schedule.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lanecast/lanecast/internal/forecast"
	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/internal/simulator"
	"github.com/lanecast/lanecast/internal/state"
	lcontext "github.com/lanecast/lanecast/pkg/context"
	"github.com/lanecast/lanecast/pkg/interfaces"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/notifier"
	"github.com/lanecast/lanecast/pkg/types"
	"github.com/lanecast/lanecast/pkg/validation"
	"golang.org/x/time/rate"
)

var (
	// ErrPlanBusy is returned when another live process is forecasting the same plan
	ErrPlanBusy = errors.New("plan is being forecast by another process")
	// ErrInvalidPlan wraps validation errors that block a run
	ErrInvalidPlan = errors.New("invalid plan")
)

// Progress is reported after every batch
type Progress struct {
	RunID           string
	Plan            string
	PercentComplete float64
	TrialsCompleted int
	TotalTrials     int
	FailedTrials    int
}

// Report is the outcome of one run. Result holds the bands gathered so far
// even when the run was cancelled.
type Report struct {
	RunID    string
	Plan     string
	Status   types.RunStatus
	Seed     uint64
	Result   *forecast.Result
	Dropped  []graph.DroppedEdge
	Warnings []validation.ValidationError
	Duration time.Duration
}

// Options tunes engine behaviour
type Options struct {
	// OnProgress is called on the run goroutine after every batch
	OnProgress func(Progress)
	// ProgressEvery is the minimum gap between progress log lines and status writes
	ProgressEvery time.Duration
}

// Engine forecasts one plan
type Engine struct {
	planPath string
	name     string
	logger   logger.Logger
	state    interfaces.RunStore
	notifier interfaces.RunNotifier
	opts     Options

	mu      sync.Mutex
	plan    *types.Plan
	session *forecast.Session
	runs    int

	runMu sync.Mutex
}

// New creates an engine for plan. planPath may be empty for in-memory plans;
// watch mode needs it.
func New(plan *types.Plan, planPath string, log logger.Logger, deps Dependencies, opts Options) *Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = time.Second
	}

	name := plan.Name
	if planPath != "" {
		name = planPath
	}

	return &Engine{
		planPath: planPath,
		name:     state.StateName(name),
		logger:   log.WithComponent("engine"),
		state:    deps.State,
		notifier: deps.Notifier,
		opts:     opts,
		plan:     plan,
	}
}

// Name returns the plan's state name
func (e *Engine) Name() string {
	return e.name
}

// Plan returns the current plan
func (e *Engine) Plan() *types.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan
}

// SetPlan replaces the plan used by the next run
func (e *Engine) SetPlan(plan *types.Plan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plan = plan
}

// Stop tears down the run in progress, if any, after its current batch
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Snapshot returns the bands of the run in progress, or nil when idle
func (e *Engine) Snapshot(w types.UncertaintyWeight) *forecast.Result {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Snapshot(w)
}

// Prepare validates plan and links it into a graph
func Prepare(plan *types.Plan, log logger.Logger) (*graph.Graph, []validation.ValidationError, error) {
	result := validation.NewPlanValidator().Validate(plan)
	var warnings []validation.ValidationError
	for _, issue := range result.Errors {
		if issue.Level == validation.ValidationLevelWarning {
			warnings = append(warnings, issue)
		}
	}
	if !result.Valid {
		return nil, warnings, fmt.Errorf("%w: %w", ErrInvalidPlan, result.Err())
	}

	items, err := graph.FromPlan(plan)
	if err != nil {
		return nil, warnings, err
	}
	g, err := graph.Link(items, log)
	if err != nil {
		return nil, warnings, fmt.Errorf("failed to link plan: %w", err)
	}
	return g, warnings, nil
}

// Run forecasts the current plan once
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	plan := e.Plan()
	ctx = lcontext.WithPlan(lcontext.EnrichContext(ctx, "forecast"), e.name)
	runID := lcontext.GetRunID(ctx)
	log := logger.WithContext(ctx, e.logger.WithRun(runID))

	g, warnings, err := Prepare(plan, log)
	for _, w := range warnings {
		log.Warn(w.Message, logger.WithField("subject", w.Subject), logger.WithField("field", w.Field))
	}
	if err != nil {
		log.Error("Plan cannot be forecast", logger.WithError(err))
		e.notifyFailure(err)
		return nil, err
	}

	if e.state != nil {
		if busy, err := e.state.IsActive(e.name); err == nil && busy {
			return nil, fmt.Errorf("%w: %s", ErrPlanBusy, e.name)
		}
	}

	sim := plan.Simulation
	seed := sim.Seed
	e.mu.Lock()
	if e.runs > 0 && plan.Watch != nil && plan.Watch.ReseedOnRerun {
		seed = 0
	}
	e.runs++
	e.mu.Unlock()

	limiter := rate.NewLimiter(rate.Every(e.opts.ProgressEvery), 1)
	total := sim.TotalTrials()
	session := forecast.NewSession(g, simulator.Options{
		BatchSize:         sim.GetBatchSize(),
		BatchCount:        sim.GetBatchCount(),
		YieldDelay:        sim.GetYieldDelay(),
		Workers:           sim.Workers,
		Seed:              seed,
		AbortOnTrialError: sim.AbortOnTrialError,
		Logger:            log,
		OnBatch: func(r simulator.BatchReport) {
			e.reportProgress(log, limiter, Progress{
				RunID:           runID,
				Plan:            e.name,
				PercentComplete: r.PercentComplete,
				TrialsCompleted: r.TrialsCompleted,
				TotalTrials:     total,
				FailedTrials:    r.FailedTrials,
			})
		},
	})

	e.mu.Lock()
	e.session = session
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.session = nil
		e.mu.Unlock()
	}()

	if e.state != nil {
		if _, err := e.state.BeginRun(e.name, e.planPath, runID, session.Seed(), total); err != nil {
			log.Warn("Failed to write run status", logger.WithError(err))
		}
	}
	if e.notifier != nil {
		e.notifier.NotifyRunStart(e.name, total)
	}

	log.Info("Starting forecast",
		logger.WithField("items", g.Len()),
		logger.WithField("teams", len(g.Teams)),
		logger.WithField("trials", total),
		logger.WithField("seed", session.Seed()))

	start := time.Now()
	runErr := session.Run(ctx)
	report := &Report{
		RunID:    runID,
		Plan:     e.name,
		Status:   statusFor(runErr),
		Seed:     session.Seed(),
		Result:   session.Snapshot(sim.UncertaintyWeight),
		Dropped:  g.Dropped,
		Warnings: warnings,
		Duration: time.Since(start),
	}

	if e.state != nil {
		if err := e.state.UpdateProgress(e.name, report.Result.PercentComplete, report.Result.TrialsCompleted, report.Result.FailedTrials); err != nil {
			log.Debug("Failed to write final progress", logger.WithError(err))
		}
		if err := e.state.FinishRun(e.name, report.Status, runErr); err != nil {
			log.Warn("Failed to write run status", logger.WithError(err))
		}
	}

	switch report.Status {
	case types.RunStatusCompleted:
		log.Success("Forecast complete",
			logger.WithField("completion_day", report.Result.Completion.Band.DueHigh),
			logger.WithField("weight", sim.UncertaintyWeight.String()),
			logger.WithField("failed_trials", report.Result.FailedTrials))
		if e.notifier != nil {
			e.notifier.NotifyRunComplete(notifier.RunSummary{
				Plan:       e.name,
				Trials:     report.Result.TrialsCompleted,
				Failed:     report.Result.FailedTrials,
				Duration:   report.Duration,
				Completion: report.Result.Completion.Band.DueHigh,
				Weight:     sim.UncertaintyWeight.String(),
			})
		}
		return report, nil
	case types.RunStatusCancelled:
		log.Warn("Forecast cancelled", logger.WithField("percent", report.Result.PercentComplete))
	default:
		log.Error("Forecast failed", logger.WithError(runErr))
		e.notifyFailure(runErr)
	}
	return report, fmt.Errorf("forecast %s: %w", e.name, runErr)
}

func (e *Engine) reportProgress(log logger.Logger, limiter *rate.Limiter, p Progress) {
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(p)
	}
	if !limiter.Allow() && p.PercentComplete < 100 {
		return
	}

	log.Info("Forecast progress",
		logger.WithField("percent", p.PercentComplete),
		logger.WithField("trials", p.TrialsCompleted),
		logger.WithField("failed", p.FailedTrials))
	if e.state != nil {
		if err := e.state.UpdateProgress(e.name, p.PercentComplete, p.TrialsCompleted, p.FailedTrials); err != nil {
			log.Debug("Failed to write progress", logger.WithError(err))
		}
	}
}

func (e *Engine) notifyFailure(err error) {
	if e.notifier != nil {
		e.notifier.NotifyRunFailure(e.name, err)
	}
}

func statusFor(err error) types.RunStatus {
	switch {
	case err == nil:
		return types.RunStatusCompleted
	case errors.Is(err, simulator.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return types.RunStatusCancelled
	default:
		return types.RunStatusFailed
	}
}
