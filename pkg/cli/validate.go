package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/pkg/config"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/validation"
	"github.com/spf13/cobra"
)

// ErrValidationFailed is returned by validate when the plan has errors
var ErrValidationFailed = errors.New("plan has validation errors")

func (c *CLI) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan>",
		Short: "Check a plan for errors and dropped edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate(args[0])
		},
	}
}

func (c *CLI) runValidate(planPath string) error {
	// ReadPlan skips the load-time checks so every issue is listed.
	m := config.NewManager()
	plan, err := m.ReadPlan(planPath)
	if err != nil {
		return err
	}
	if err := m.ValidatePlan(plan); errors.Is(err, config.ErrUnsupportedVersion) {
		return err
	}

	result := validation.NewPlanValidator().Validate(plan)
	for _, issue := range result.Errors {
		label := color.YellowString("warning")
		if issue.Level == validation.ValidationLevelError {
			label = color.RedString("error")
		}
		fmt.Fprintf(c.output, "%-7s %s.%s: %s\n", label, issue.Subject, issue.Field, issue.Message)
	}

	if !result.Valid {
		c.printError(fmt.Sprintf("%d %s, %d %s",
			result.Count(validation.ValidationLevelError), plural(result.Count(validation.ValidationLevelError), "error", "errors"),
			result.Count(validation.ValidationLevelWarning), plural(result.Count(validation.ValidationLevelWarning), "warning", "warnings")))
		return ErrValidationFailed
	}

	items, err := graph.FromPlan(plan)
	if err != nil {
		return err
	}
	g, err := graph.Link(items, logger.NewNopLogger())
	if err != nil {
		return err
	}

	var roots int
	for _, item := range g.Items {
		if len(item.BlockedBy) == 0 {
			roots++
		}
	}
	c.printSuccess(fmt.Sprintf("%s is valid: %d items across %d teams, %d %s, %d dropped %s",
		planPath, g.Len(), len(g.Teams),
		roots, plural(roots, "unblocked item", "unblocked items"),
		len(g.Dropped), plural(len(g.Dropped), "edge", "edges")))
	if warnings := result.Count(validation.ValidationLevelWarning); warnings > 0 {
		c.printWarning(fmt.Sprintf("%d %s", warnings, plural(warnings, "warning", "warnings")))
	}
	return nil
}
