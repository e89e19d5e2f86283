package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/lanecast/lanecast/internal/state"
	"github.com/lanecast/lanecast/pkg/process"
	"github.com/lanecast/lanecast/pkg/types"
	"github.com/spf13/cobra"
)

// ErrNotRunning is returned by stop when no live process owns the plan
var ErrNotRunning = errors.New("no forecast is running for this plan")

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [plan]",
		Short: "Show the latest run of each plan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan := ""
			if len(args) > 0 {
				plan = args[0]
			}
			return c.runStatus(plan)
		},
	}
}

func (c *CLI) newStopCmd() *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop <plan>",
		Short: "Stop the process forecasting a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStop(args[0], grace)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 5*time.Second, "time to wait before killing the process")
	return cmd
}

func (c *CLI) stateManager() (*state.Manager, error) {
	root, err := filepath.Abs(c.config.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid project root: %w", err)
	}
	return state.NewManager(root, c.logger), nil
}

func (c *CLI) runStatus(planPath string) error {
	sm, err := c.stateManager()
	if err != nil {
		return err
	}

	states, err := sm.DiscoverStates()
	if err != nil {
		return err
	}
	if planPath != "" {
		name := state.StateName(planPath)
		st, ok := states[name]
		if !ok {
			c.printInfo(fmt.Sprintf("No runs recorded for %s", planPath))
			return nil
		}
		states = map[string]*state.RunState{name: st}
	}
	if len(states) == 0 {
		c.printInfo("No runs recorded")
		return nil
	}

	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	w := newTable(c.output)
	fmt.Fprintln(w, "PLAN\tSTATUS\tPROGRESS\tTRIALS\tSEED\tRUNS\tSTARTED\tDURATION")
	fmt.Fprintln(w, "----\t------\t--------\t------\t----\t----\t-------\t--------")
	for _, name := range names {
		st := states[name]
		trials := fmt.Sprintf("%s/%s", humanize.Comma(int64(st.TrialsCompleted)), humanize.Comma(int64(st.TotalTrials)))
		if st.FailedTrials > 0 {
			trials += fmt.Sprintf(" (%d failed)", st.FailedTrials)
		}
		fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\t%d\t%d\t%s\t%s\n",
			name,
			formatStatus(st),
			st.PercentComplete,
			trials,
			st.Seed,
			st.RunCount,
			humanize.Time(st.StartedAt),
			st.Duration().Round(time.Millisecond))
	}
	w.Flush()

	for _, name := range names {
		if st := states[name]; st.LastError != "" {
			fmt.Fprintf(c.output, "%s %s: %s\n", color.RedString("✖"), name, st.LastError)
		}
	}
	return nil
}

func formatStatus(st *state.RunState) string {
	switch {
	case st.Status == types.RunStatusRunning && (st.IsStale() || !process.IsAlive(st.ProcessID)):
		return color.YellowString("stale")
	case st.Status == types.RunStatusRunning:
		return color.CyanString(string(st.Status))
	case st.Status == types.RunStatusCompleted:
		return color.GreenString(string(st.Status))
	case st.Status == types.RunStatusFailed:
		return color.RedString(string(st.Status))
	default:
		return color.YellowString(string(st.Status))
	}
}

func (c *CLI) runStop(planPath string, grace time.Duration) error {
	sm, err := c.stateManager()
	if err != nil {
		return err
	}

	name := state.StateName(planPath)
	st, err := sm.ReadState(name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotRunning, planPath)
	}
	if active, _ := sm.IsActive(name); !active {
		return fmt.Errorf("%w: %s", ErrNotRunning, planPath)
	}

	c.printInfo(fmt.Sprintf("Stopping %s (pid %d)", name, st.ProcessID))
	if err := process.Terminate(st.ProcessID, grace); err != nil {
		return fmt.Errorf("failed to stop %s: %w", name, err)
	}
	c.printSuccess(fmt.Sprintf("Stopped %s", name))
	return nil
}
