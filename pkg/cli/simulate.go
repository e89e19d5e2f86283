package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lanecast/lanecast/internal/engine"
	"github.com/lanecast/lanecast/internal/forecast"
	"github.com/lanecast/lanecast/pkg/config"
	"github.com/lanecast/lanecast/pkg/process"
	"github.com/lanecast/lanecast/pkg/types"
	"github.com/spf13/cobra"
)

type simulateOptions struct {
	json  bool
	quiet bool
}

func (c *CLI) newSimulateCmd() *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate <plan>",
		Short: "Forecast a plan once and print its bands",
		Long: `Run the Monte Carlo forecast for a plan file and print the start and
due-day bands for every item, grouped by team and track, followed by the
overall completion band.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSimulate(cmd, args[0], opts)
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide live progress")
	return cmd
}

// addSimulationFlags registers the flags that override a plan's simulation section
func addSimulationFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String(config.KeyWeight, "", "uncertainty weight: average or a percentile 0-100")
	flags.Int(config.KeyBatchSize, types.DefaultBatchSize, "trials per batch")
	flags.Int(config.KeyBatchCount, types.DefaultBatchCount, "number of batches")
	flags.Int(config.KeyWorkers, 0, "trial workers per batch (0 uses every CPU)")
	flags.Uint64(config.KeySeed, 0, "random seed (0 picks a new seed per run)")
	flags.Duration(config.KeyYieldDelay, time.Duration(types.DefaultYieldDelayMs)*time.Millisecond, "pause between batches")
}

func (c *CLI) runSimulate(cmd *cobra.Command, planPath string, opts *simulateOptions) error {
	plan, err := c.loadPlan(cmd, planPath)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(c.config.ProjectRoot)
	if err != nil {
		return fmt.Errorf("invalid project root: %w", err)
	}

	deps := engine.NewDependencyFactory(root, c.logger, plan).CreateDefaults()
	progress := c.progressPrinter(opts.quiet || opts.json)
	e := engine.New(plan, planPath, c.logger, deps, engine.Options{OnProgress: progress})

	pm := process.NewManager(c.logger)
	pm.RegisterShutdownHandler(e.Stop)
	ctx := pm.Start(cmd.Context())
	defer pm.Stop()

	report, err := e.Run(ctx)
	if !opts.quiet && !opts.json {
		fmt.Fprintln(c.errorOut)
	}
	if report == nil {
		return err
	}

	if opts.json {
		if encErr := writeJSON(c.output, report); encErr != nil {
			return encErr
		}
	} else {
		c.renderReport(report)
	}

	if report.Status == types.RunStatusCancelled {
		c.printWarning(fmt.Sprintf("Forecast interrupted after %s trials; bands are partial",
			humanize.Comma(int64(report.Result.TrialsCompleted))))
		return nil
	}
	return err
}

// progressPrinter redraws a single progress line on the error writer
func (c *CLI) progressPrinter(silent bool) func(engine.Progress) {
	if silent {
		return nil
	}
	return func(p engine.Progress) {
		fmt.Fprintf(c.errorOut, "\rForecasting %s %5.1f%%  %s/%s trials",
			p.Plan, p.PercentComplete,
			humanize.Comma(int64(p.TrialsCompleted)),
			humanize.Comma(int64(p.TotalTrials)))
		if p.FailedTrials > 0 {
			fmt.Fprintf(c.errorOut, "  %d failed", p.FailedTrials)
		}
	}
}

// jsonReport is the --json document
type jsonReport struct {
	RunID    string           `json:"runId"`
	Plan     string           `json:"plan"`
	Status   types.RunStatus  `json:"status"`
	Seed     uint64           `json:"seed"`
	Duration string           `json:"duration"`
	Result   *forecast.Result `json:"result"`
	Dropped  []jsonDropped    `json:"droppedEdges,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

type jsonDropped struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

func writeJSON(w io.Writer, report *engine.Report) error {
	if report.Result == nil {
		return errors.New("no result to encode")
	}

	out := jsonReport{
		RunID:    report.RunID,
		Plan:     report.Plan,
		Status:   report.Status,
		Seed:     report.Seed,
		Duration: report.Duration.Round(time.Millisecond).String(),
		Result:   report.Result,
	}
	for _, d := range report.Dropped {
		out.Dropped = append(out.Dropped, jsonDropped{From: d.From, To: d.To, Reason: string(d.Reason)})
	}
	for _, w := range report.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
