package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lanecast/lanecast/pkg/config"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/types"
	"github.com/robfig/cron/v3"
)

// Trigger names why a watch-mode run started
type Trigger string

const (
	TriggerInitial  Trigger = "initial"
	TriggerReload   Trigger = "reload"
	TriggerSchedule Trigger = "schedule"
)

// WatchOptions configures Watch
type WatchOptions struct {
	// Schedule overrides the plan's watch.schedule cron spec
	Schedule string
	// OnReport is called after every run, including cancelled and failed ones
	OnReport func(Trigger, *Report, error)
}

// Watch forecasts the plan, then again whenever the plan file changes or the
// schedule fires, until ctx is done. A plan change abandons the run in
// progress. Triggers that arrive while a run is queued are coalesced.
func (e *Engine) Watch(ctx context.Context, opts WatchOptions) error {
	plan := e.Plan()
	triggers := make(chan Trigger, 1)
	request := func(t Trigger) {
		select {
		case triggers <- t:
		default:
		}
	}

	if e.planPath != "" {
		reload := config.NewReloadManager(e.planPath, e.logger)
		if plan.Watch != nil {
			reload.SetDebouncePeriod(plan.Watch.GetDebounce())
		}
		reload.AddCallback(func(p *types.Plan, err error) {
			if err != nil {
				e.logger.Error("Plan reload failed, keeping previous plan", logger.WithError(err))
				return
			}
			e.SetPlan(p)
			if e.notifier != nil {
				e.notifier.NotifyPlanReloaded(e.name, len(p.Items))
			}
			e.Stop()
			request(TriggerReload)
		})
		if err := reload.StartWatching(); err != nil {
			return fmt.Errorf("failed to watch plan: %w", err)
		}
		defer reload.StopWatching()
	}

	schedule := opts.Schedule
	if schedule == "" && plan.Watch != nil {
		schedule = plan.Watch.Schedule
	}
	if schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(schedule, func() { request(TriggerSchedule) }); err != nil {
			return fmt.Errorf("invalid watch schedule %q: %w", schedule, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		e.logger.Info("Scheduled re-forecast", logger.WithField("schedule", schedule))
	}

	if e.state != nil {
		e.state.StartHeartbeat(ctx, 10*time.Second)
		defer e.state.StopHeartbeat()
	}

	request(TriggerInitial)
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-triggers:
			e.logger.Info("Running forecast", logger.WithField("trigger", string(t)))
			report, err := e.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if opts.OnReport != nil {
				opts.OnReport(t, report, err)
			}
		}
	}
}
