package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/de-tools/cost-digest/pkg/adapters"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/de-tools/cost-digest/pkg/runtime/app"
	"github.com/de-tools/cost-digest/pkg/runtime/terminal/export"
)

type RunCmd struct {
	output   string
	load     LoadFunc
	reporter *export.Reporter
}

func NewRunCmd(load LoadFunc, reporter *export.Reporter) *cobra.Command {
	rc := &RunCmd{load: load, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and send the cost optimization report once",
		Long: "Generate and send the cost optimization report once. Exits non-zero only when the run fails; " +
			"a run skipped because another one is in progress is not an error.",
		Args:         cobra.NoArgs,
		RunE:         rc.run,
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&rc.output, "output", "o", export.FormatTable, "Output format: table, json or yaml")

	return cmd
}

func (rc *RunCmd) run(cmd *cobra.Command, _ []string) error {
	ctx, a, err := rc.load(cmd.Context(), app.ModeRun)
	if err != nil {
		return err
	}
	defer a.Close()

	run := a.Runner.Execute(ctx, domain.TriggerManual)

	if err := rc.reporter.HandleRun(adapters.MapDomainRunToAPI(run), rc.output); err != nil {
		return err
	}

	if run.Status == domain.RunStatusFailed {
		return fmt.Errorf("run %s failed: %s", run.RunID, run.Error)
	}
	return nil
}
