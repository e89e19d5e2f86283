package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/lanecast/lanecast/internal/engine"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/process"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	every string
	json  bool
}

func (c *CLI) newWatchCmd() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <plan>",
		Short: "Re-forecast whenever the plan changes",
		Long: `Forecast a plan, then forecast it again every time the file is saved
and on an optional cron schedule, until interrupted. A save abandons the
forecast in progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd, args[0], opts)
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().StringVar(&opts.every, "every", "", "cron schedule for periodic re-forecast, e.g. @every 15m")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print each result as JSON")
	return cmd
}

func (c *CLI) runWatch(cmd *cobra.Command, planPath string, opts *watchOptions) error {
	plan, err := c.loadPlan(cmd, planPath)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(c.config.ProjectRoot)
	if err != nil {
		return fmt.Errorf("invalid project root: %w", err)
	}

	deps := engine.NewDependencyFactory(root, c.logger, plan).CreateDefaults()
	e := engine.New(plan, planPath, c.logger, deps, engine.Options{})

	pm := process.NewManager(c.logger)
	pm.RegisterShutdownHandler(e.Stop)
	pm.SetHeartbeat(time.Minute, func() {
		if snap := e.Snapshot(e.Plan().Simulation.UncertaintyWeight); snap != nil {
			c.logger.Debug("Forecast in progress", logger.WithField("percent", snap.PercentComplete))
		}
	})
	ctx := pm.Start(cmd.Context())
	defer pm.Stop()

	c.printInfo(fmt.Sprintf("Watching %s (Ctrl+C to stop)", planPath))

	return e.Watch(ctx, engine.WatchOptions{
		Schedule: opts.every,
		OnReport: func(trigger engine.Trigger, report *engine.Report, err error) {
			fmt.Fprintf(c.output, "\n%s %s\n", color.New(color.Faint).Sprint(time.Now().Format(time.TimeOnly)), trigger)
			switch {
			case report == nil:
				c.printError(err.Error())
			case opts.json:
				if encErr := writeJSON(c.output, report); encErr != nil {
					c.printError(encErr.Error())
				}
			case err != nil:
				c.printWarning(fmt.Sprintf("Forecast %s: %v", report.Status, err))
			default:
				c.renderReport(report)
			}
		},
	})
}
