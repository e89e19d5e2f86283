package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/lanecast/lanecast/pkg/config"
	"github.com/spf13/cobra"
)

// DefaultPlanFile is written by init when no path is given
const DefaultPlanFile = "lanecast.yaml"

func (c *CLI) newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample plan",
		Long: `Write a sample plan with two teams and a handful of dependent items.
The format follows the file extension: .yaml, .yml, .json or .toml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := DefaultPlanFile
			if len(args) > 0 {
				path = args[0]
			}
			return c.runInit(path, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func (c *CLI) runInit(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.NewManager().WritePlan(path, config.SamplePlan()); err != nil {
		return err
	}

	c.printSuccess(fmt.Sprintf("Wrote sample plan to %s", path))
	c.printInfo(fmt.Sprintf("Next: lanecast validate %s && lanecast simulate %s", path, path))
	return nil
}
