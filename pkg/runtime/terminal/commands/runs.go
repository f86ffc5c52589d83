package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/de-tools/cost-digest/pkg/adapters"
	"github.com/de-tools/cost-digest/pkg/models/store"
	"github.com/de-tools/cost-digest/pkg/runtime/app"
	"github.com/de-tools/cost-digest/pkg/runtime/terminal/export"
)

var errHistoryDisabled = errors.New("run history is disabled; set store.driver to duckdb or sqlite")

type RunsCmd struct {
	output   string
	status   string
	limit    int
	load     LoadFunc
	reporter *export.Reporter
}

func NewRunsCmd(load LoadFunc, reporter *export.Reporter) *cobra.Command {
	rc := &RunsCmd{load: load, reporter: reporter}
	cmd := &cobra.Command{
		Use:          "runs [run-id]",
		Short:        "Show run history, or a single run",
		Args:         cobra.MaximumNArgs(1),
		RunE:         rc.run,
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&rc.output, "output", "o", export.FormatTable, "Output format: table, json or yaml")
	cmd.Flags().StringVar(&rc.status, "status", "", "Only runs with this status (e.g. FAILED)")
	cmd.Flags().IntVar(&rc.limit, "limit", 20, "Maximum number of runs to show")

	return cmd
}

func (rc *RunsCmd) run(cmd *cobra.Command, args []string) error {
	ctx, a, err := rc.load(cmd.Context(), app.ModeHistory)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.History == nil {
		return errHistoryDisabled
	}

	if len(args) == 1 {
		run, err := a.History.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get run %s: %w", args[0], err)
		}
		return rc.reporter.HandleRun(adapters.MapStoreRunToAPI(run), rc.output)
	}

	runs, err := a.History.List(ctx, store.ListOptions{Status: rc.status, Limit: rc.limit})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return rc.reporter.HandleRuns(adapters.MapStoreRunsToAPI(runs), rc.output)
}
