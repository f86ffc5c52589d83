package terminal

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/de-tools/cost-digest/pkg/runtime/app"
	"github.com/de-tools/cost-digest/pkg/runtime/terminal/commands"
	"github.com/de-tools/cost-digest/pkg/runtime/terminal/export"
	"github.com/de-tools/cost-digest/pkg/services/config"
)

// CLI represents the command-line interface
type CLI struct {
	reporter   *export.Reporter
	rootCmd    *cobra.Command
	configPath string
	logOutput  io.Writer
	load       commands.LoadFunc
}

// Options contain configuration for the CLI
type Options struct {
	Output    io.Writer
	LogOutput io.Writer
	// Load replaces config loading and wiring; used by tests.
	Load commands.LoadFunc
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	cli := &CLI{
		reporter:  export.NewReporter(opts.Output),
		logOutput: opts.LogOutput,
		load:      opts.Load,
	}
	if cli.load == nil {
		cli.load = cli.defaultLoad
	}

	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute() error {
	return cli.rootCmd.Execute()
}

// ExecuteContext runs the CLI with the given arguments, for tests and embedding.
func (cli *CLI) ExecuteContext(ctx context.Context, args ...string) error {
	cli.rootCmd.SetArgs(args)
	return cli.rootCmd.ExecuteContext(ctx)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cost-digest",
		Short:         "Recurring AWS cost optimization digest",
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "",
		"Path to a YAML config file (environment variables prefixed DIGEST_ override it)")

	cmd.AddCommand(commands.NewRunCmd(cli.load, cli.reporter))
	cmd.AddCommand(commands.NewRunsCmd(cli.load, cli.reporter))
	cmd.AddCommand(commands.NewServeCmd(cli.load))

	return cmd
}

func (cli *CLI) defaultLoad(ctx context.Context, mode app.Mode) (context.Context, *app.App, error) {
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return ctx, nil, err
	}

	logger := app.NewLogger(cfg.Log, cli.logOutput)
	ctx = logger.WithContext(ctx)

	a, err := app.Build(ctx, cfg, mode)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return ctx, a, nil
}
