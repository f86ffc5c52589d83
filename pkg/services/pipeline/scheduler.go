package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/cost-digest/pkg/models/domain"
)

const DefaultInterval = 7 * 24 * time.Hour

// Executor is the unit of work fired on every tick.
type Executor interface {
	Execute(ctx context.Context, trigger domain.Trigger) *domain.ReportRun
}

type SchedulerConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

// Scheduler fires one run per interval. Each tick gets its own goroutine, so
// a tick that lands while a run is still in flight reaches the guard and is
// rejected instead of queuing behind it.
type Scheduler struct {
	executor Executor
	config   SchedulerConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running sync.WaitGroup
}

func NewScheduler(executor Executor, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Scheduler{executor: executor, config: config}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	zerolog.Ctx(ctx).Info().
		Dur("interval", s.config.Interval).
		Bool("run_on_start", s.config.RunOnStart).
		Msg("scheduler started")
	return nil
}

// Stop ends the tick loop and waits for runs already fired to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.running.Wait()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.fire(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			zerolog.Ctx(ctx).Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.executor.Execute(ctx, domain.TriggerSchedule)
	}()
}
