// Package notifier sends desktop notifications about forecast runs
package notifier

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gen2brain/beeep"
	"github.com/lanecast/lanecast/pkg/logger"
)

// Sender delivers one notification
type Sender func(title, message string) error

// RunNotifier handles run notifications
type RunNotifier struct {
	enabled      bool
	successSound string
	failureSound string
	logger       logger.Logger
	send         Sender
	beep         func() error
}

// Config represents notification configuration
type Config struct {
	Enabled      bool
	SuccessSound string
	FailureSound string
}

// New creates a notifier that delivers through beeep
func New(config Config, log logger.Logger) *RunNotifier {
	n := NewWithSender(config, log, func(title, message string) error {
		return beeep.Notify(title, message, "")
	})
	n.beep = func() error {
		return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
	}
	return n
}

// NewWithSender creates a notifier that delivers through send and never beeps
func NewWithSender(config Config, log logger.Logger, send Sender) *RunNotifier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RunNotifier{
		enabled:      config.Enabled,
		successSound: config.SuccessSound,
		failureSound: config.FailureSound,
		logger:       log,
		send:         send,
		beep:         func() error { return nil },
	}
}

// RunSummary is what a finished run reports
type RunSummary struct {
	Plan       string
	Trials     int
	Failed     int
	Duration   time.Duration
	Completion float64
	Weight     string
}

// NotifyRunStart notifies that a run has started
func (n *RunNotifier) NotifyRunStart(plan string, trials int) {
	if !n.enabled {
		return
	}
	n.sendNotification("Lanecast", fmt.Sprintf("Forecasting %s over %s trials...", plan, humanize.Comma(int64(trials))), "")
}

// NotifyRunComplete notifies that a run finished
func (n *RunNotifier) NotifyRunComplete(s RunSummary) {
	if !n.enabled {
		return
	}
	message := fmt.Sprintf("%s: done by day %.1f at %s (%s trials in %s)",
		s.Plan, s.Completion, s.Weight, humanize.Comma(int64(s.Trials)), formatDuration(s.Duration))
	if s.Failed > 0 {
		message += fmt.Sprintf(", %d failed", s.Failed)
	}
	n.sendNotification("Forecast Ready", message, n.successSound)
}

// NotifyRunFailure notifies that a run failed
func (n *RunNotifier) NotifyRunFailure(plan string, err error) {
	if !n.enabled {
		return
	}
	n.sendNotification("Forecast Failed", fmt.Sprintf("%s: %v", plan, err), n.failureSound)
}

// NotifyPlanReloaded notifies that a watched plan changed and is being re-run
func (n *RunNotifier) NotifyPlanReloaded(plan string, items int) {
	if !n.enabled {
		return
	}
	n.sendNotification("Plan Changed", fmt.Sprintf("%s reloaded with %d items", plan, items), "")
}

func (n *RunNotifier) sendNotification(title, message, soundName string) {
	if err := n.send(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithError(err))
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
	}

	if soundName != "" {
		if err := n.beep(); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithError(err))
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
