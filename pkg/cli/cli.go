// Package cli provides the command-line interface for lanecast
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/lanecast/lanecast/pkg/config"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds the global CLI settings
type Config struct {
	ProjectRoot string
	Verbosity   string
	LogFile     string
	Version     string
}

// NewConfig creates a CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		ProjectRoot: ".",
		Verbosity:   "info",
	}
}

// CLI holds the command tree and its outputs. Every CLI has its own viper
// instance so commands can be executed repeatedly in tests.
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	logger   logger.Logger
	output   io.Writer
	errorOut io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	c := &CLI{
		config:   cfg,
		viper:    viper.New(),
		output:   os.Stdout,
		errorOut: os.Stderr,
	}
	c.setupCommands()
	return c
}

// NewCLIWithOutput creates a CLI with custom output writers
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	c := NewCLI(cfg)
	c.output = output
	c.errorOut = errorOut
	c.rootCmd.SetOut(output)
	c.rootCmd.SetErr(errorOut)
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "lanecast",
		Short: "Probabilistic delivery forecasts for team roadmaps",
		Long: `lanecast forecasts when planned work will finish.

It schedules every item onto its team's parallel lanes in dependency order,
repeats the schedule thousands of times with resampled estimates, and reports
start and due-day bands at the confidence level you choose.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initializeConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := c.rootCmd.PersistentFlags()
	flags.StringVar(&c.config.ProjectRoot, "root", c.config.ProjectRoot, "project root for run status files")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", c.config.Verbosity, "log level (debug, info, warn, error)")
	flags.StringVar(&c.config.LogFile, "log-file", "", "also write logs to this file")

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("lanecast v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newSimulateCmd())
	c.rootCmd.AddCommand(c.newValidateCmd())
	c.rootCmd.AddCommand(c.newWatchCmd())
	c.rootCmd.AddCommand(c.newStatusCmd())
	c.rootCmd.AddCommand(c.newStopCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	c.viper.SetEnvPrefix("LANECAST")
	c.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.viper.AutomaticEnv()

	if err := c.viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if c.config.Verbosity == "" {
		c.config.Verbosity = string(types.LogLevelInfo)
	}
	c.logger = c.newLogger(c.config.Verbosity, c.config.LogFile)
	return nil
}

func (c *CLI) newLogger(level, file string) logger.Logger {
	if c.errorOut == os.Stderr {
		return logger.CreateLogger(file, level)
	}
	return logger.CreateLoggerWithOutput(level, c.errorOut)
}

// loadPlan reads a plan and layers changed flags and LANECAST_* variables on
// top. The plan's logging section sets the log level unless --verbosity was given.
func (c *CLI) loadPlan(cmd *cobra.Command, path string) (*types.Plan, error) {
	plan, err := config.NewManager().LoadPlan(path)
	if err != nil {
		return nil, err
	}

	if err := config.ApplyOverrides(plan, c.viper); err != nil {
		return nil, err
	}

	if !cmd.Flags().Changed("verbosity") && plan.Logging != nil && plan.Logging.Level != "" {
		file := c.config.LogFile
		if file == "" {
			file = plan.Logging.File
		}
		c.logger = c.newLogger(string(plan.Logging.Level), file)
	}
	return plan, nil
}

func (c *CLI) printSuccess(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.GreenString("✔"), message)
}

func (c *CLI) printError(message string) {
	fmt.Fprintf(c.errorOut, "%s %s\n", color.RedString("✖"), message)
}

func (c *CLI) printInfo(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.CyanString("›"), message)
}

func (c *CLI) printWarning(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.YellowString("!"), message)
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of lanecast",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "lanecast v%s\n", c.config.Version)
		},
	}
}

// ExecuteWithVersion runs the CLI on os.Args
func ExecuteWithVersion(version string) error {
	cfg := NewConfig()
	cfg.Version = version
	return NewCLI(cfg).Execute(os.Args[1:])
}
