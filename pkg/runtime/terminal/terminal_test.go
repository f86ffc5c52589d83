package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cost-digest/pkg/models/api"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/de-tools/cost-digest/pkg/models/store"
	"github.com/de-tools/cost-digest/pkg/runtime/app"
	"github.com/de-tools/cost-digest/pkg/services/config"
	"github.com/de-tools/cost-digest/pkg/store/sqldb"
	"github.com/de-tools/cost-digest/pkg/store/sqldb/runs"
)

type stubRunner struct {
	status   domain.RunStatus
	triggers []domain.Trigger
	waited   atomic.Bool
}

func (s *stubRunner) Wait() {
	s.waited.Store(true)
}

func (s *stubRunner) Execute(_ context.Context, trigger domain.Trigger) *domain.ReportRun {
	s.triggers = append(s.triggers, trigger)
	started := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	run := domain.NewReportRun("run-1", trigger, started)
	switch s.status {
	case domain.RunStatusFailed:
		run.Fail(started.Add(time.Second), errors.New("source unavailable"))
	case domain.RunStatusSkippedConcurrent:
		run.Skip(started, "another run is in progress")
	default:
		run.Delivery = domain.DeliveryResult{Status: domain.DeliverySent}
		run.Succeed(started.Add(time.Minute))
	}
	return run
}

func (s *stubRunner) Start(ctx context.Context, trigger domain.Trigger) (*domain.ReportRun, <-chan *domain.ReportRun) {
	return s.Execute(ctx, trigger), nil
}

func newTestCLI(out io.Writer, a *app.App, loadErr error) *CLI {
	return NewCLI(Options{
		Output:    out,
		LogOutput: io.Discard,
		Load: func(ctx context.Context, _ app.Mode) (context.Context, *app.App, error) {
			if loadErr != nil {
				return ctx, nil, loadErr
			}
			return ctx, a, nil
		},
	})
}

func newHistory(t *testing.T) runs.Store {
	db, err := sqldb.NewDB(sqldb.Settings{Driver: sqldb.DriverSQLite, DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	history, err := runs.NewStore(db)
	require.NoError(t, err)
	return history
}

func TestRunCommand_Succeeded(t *testing.T) {
	var out bytes.Buffer
	runner := &stubRunner{status: domain.RunStatusSucceeded}
	cli := newTestCLI(&out, &app.App{Runner: runner}, nil)

	require.NoError(t, cli.ExecuteContext(context.Background(), "run", "-o", "json"))

	var got api.Run
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "SUCCEEDED", got.Status)
	assert.Equal(t, "SENT", got.Delivery)
	assert.Equal(t, []domain.Trigger{domain.TriggerManual}, runner.triggers)
}

func TestRunCommand_SkippedIsNotAnError(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI(&out, &app.App{Runner: &stubRunner{status: domain.RunStatusSkippedConcurrent}}, nil)

	require.NoError(t, cli.ExecuteContext(context.Background(), "run"))
	assert.Contains(t, out.String(), "SKIPPED_CONCURRENT")
}

func TestRunCommand_Failed(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI(&out, &app.App{Runner: &stubRunner{status: domain.RunStatusFailed}}, nil)

	err := cli.ExecuteContext(context.Background(), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source unavailable")
	assert.Contains(t, out.String(), "FAILED")
}

func TestRunCommand_LoadError(t *testing.T) {
	cli := newTestCLI(io.Discard, nil, errors.New("invalid configuration"))

	err := cli.ExecuteContext(context.Background(), "run")
	assert.EqualError(t, err, "invalid configuration")
}

func TestRunsCommand(t *testing.T) {
	ctx := context.Background()
	history := newHistory(t)

	started := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	failure := "boom"
	require.NoError(t, history.Record(ctx, &store.Run{ID: "run-1", Trigger: "schedule", Status: "SUCCEEDED", StartedAt: started, TotalSavings: "35.00", Currency: "USD"}))
	require.NoError(t, history.Record(ctx, &store.Run{ID: "run-2", Trigger: "manual", Status: "FAILED", StartedAt: started.Add(time.Hour), Error: &failure}))

	t.Run("list", func(t *testing.T) {
		var out bytes.Buffer
		cli := newTestCLI(&out, &app.App{History: history}, nil)

		require.NoError(t, cli.ExecuteContext(ctx, "runs", "-o", "json"))

		var got []api.Run
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "run-2", got[0].ID)
		assert.Equal(t, "run-1", got[1].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		var out bytes.Buffer
		cli := newTestCLI(&out, &app.App{History: history}, nil)

		require.NoError(t, cli.ExecuteContext(ctx, "runs", "--status", "failed", "-o", "json"))

		var got []api.Run
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "run-2", got[0].ID)
	})

	t.Run("single run", func(t *testing.T) {
		var out bytes.Buffer
		cli := newTestCLI(&out, &app.App{History: history}, nil)

		require.NoError(t, cli.ExecuteContext(ctx, "runs", "run-1", "-o", "json"))

		var got api.Run
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, "35.00", got.TotalSavings)
	})

	t.Run("unknown run", func(t *testing.T) {
		cli := newTestCLI(io.Discard, &app.App{History: history}, nil)

		err := cli.ExecuteContext(ctx, "runs", "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, runs.ErrNotFound)
	})
}

func TestRunsCommand_HistoryDisabled(t *testing.T) {
	cli := newTestCLI(io.Discard, &app.App{}, nil)

	err := cli.ExecuteContext(context.Background(), "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run history is disabled")
}

func TestServeCommand_WaitsForInFlightRuns(t *testing.T) {
	runner := &stubRunner{}
	a := &app.App{
		Config: &config.Config{Schedule: config.ScheduleConfig{Interval: time.Hour}},
		Runner: runner,
	}
	cli := newTestCLI(io.Discard, a, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, cli.ExecuteContext(ctx, "serve", "--addr", "127.0.0.1:0"))
	assert.True(t, runner.waited.Load())
}
