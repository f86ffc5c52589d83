package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cost-digest/pkg/runtime/app"
	"github.com/de-tools/cost-digest/pkg/server"
	"github.com/de-tools/cost-digest/pkg/services/pipeline"
)

type ServeCmd struct {
	addr string
	load LoadFunc
}

func NewServeCmd(load LoadFunc) *cobra.Command {
	sc := &ServeCmd{load: load}
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the report on a schedule and serve the run API",
		Args:         cobra.NoArgs,
		RunE:         sc.run,
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&sc.addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func (sc *ServeCmd) run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, a, err := sc.load(ctx, app.ModeRun)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := sc.addr
	if addr == "" {
		addr = a.Config.Server.Addr
	}

	scheduler := pipeline.NewScheduler(a.Runner, pipeline.SchedulerConfig{
		Interval:   a.Config.Schedule.Interval,
		RunOnStart: a.Config.Schedule.RunOnStart,
	})
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	web := server.NewWebAPI(server.Config{
		Addr: addr,
		Dependencies: server.Dependencies{
			History: a.History,
			Trigger: a.Runner,
			Logger:  *zerolog.Ctx(ctx),
		},
	})
	err = web.Start(ctx)

	// Runs triggered over HTTP are not owned by the scheduler; the store
	// must stay open until they are recorded.
	scheduler.Stop()
	zerolog.Ctx(ctx).Info().Msg("waiting for in-flight runs")
	a.Runner.Wait()

	return err
}
