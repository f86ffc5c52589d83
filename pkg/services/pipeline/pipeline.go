package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/cost-digest/pkg/adapters"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/de-tools/cost-digest/pkg/models/store"
	"github.com/de-tools/cost-digest/pkg/services/archive"
	"github.com/de-tools/cost-digest/pkg/services/delivery"
	"github.com/de-tools/cost-digest/pkg/services/metrics"
	"github.com/de-tools/cost-digest/pkg/services/report"
	"github.com/de-tools/cost-digest/pkg/services/runguard"
	"github.com/de-tools/cost-digest/pkg/services/source"
	"github.com/de-tools/cost-digest/pkg/services/summary"
)

const DefaultSourceTimeout = 2 * time.Minute

// Recorder persists run history. runs.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, run *store.Run) error
}

type Config struct {
	Scope         source.Scope
	Sender        string
	Recipient     string
	SourceTimeout time.Duration
	// SkipEmpty finishes a run without mailing when there is nothing to report.
	SkipEmpty bool
}

type Pipeline struct {
	config     Config
	guard      *runguard.Guard
	source     source.Source
	normalizer *report.Normalizer
	summarizer *summary.Summarizer
	renderer   *report.Renderer
	dispatcher *delivery.Dispatcher
	archiver   archive.Archiver
	recorder   Recorder
	publisher  metrics.Publisher
	now        func() time.Time
	newID      func() string

	running sync.WaitGroup
}

type Option func(*Pipeline)

func WithArchiver(a archive.Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func WithPublisher(pub metrics.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(
	config Config,
	guard *runguard.Guard,
	src source.Source,
	normalizer *report.Normalizer,
	summarizer *summary.Summarizer,
	renderer *report.Renderer,
	dispatcher *delivery.Dispatcher,
	opts ...Option,
) *Pipeline {
	if config.SourceTimeout <= 0 {
		config.SourceTimeout = DefaultSourceTimeout
	}

	p := &Pipeline{
		config:     config,
		guard:      guard,
		source:     src,
		normalizer: normalizer,
		summarizer: summarizer,
		renderer:   renderer,
		dispatcher: dispatcher,
		archiver:   archive.Nop{},
		publisher:  metrics.Nop{},
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute performs one report run and always returns a finalized run.
func (p *Pipeline) Execute(ctx context.Context, trigger domain.Trigger) *domain.ReportRun {
	run, done := p.Start(ctx, trigger)
	if done == nil {
		return run
	}
	return <-done
}

// Start decides admission synchronously and runs the admitted report in the
// background. The returned run is a snapshot taken at admission; the
// finalized run is delivered on the channel. A trigger that is not admitted
// gets its finalized run and a nil channel.
//
// The run is detached from the caller's cancellation and bounded by the
// guard lease.
func (p *Pipeline) Start(ctx context.Context, trigger domain.Trigger) (*domain.ReportRun, <-chan *domain.ReportRun) {
	ctx = context.WithoutCancel(ctx)

	adm, err := p.guard.TryAdmit(ctx)
	if err != nil {
		run := domain.NewReportRun(p.newID(), trigger, p.now())
		run.CurrencyCode = p.normalizer.Currency()
		ctx = withRunLogger(ctx, run)
		if errors.Is(err, runguard.ErrAlreadyRunning) {
			run.Skip(p.now(), err.Error())
		} else {
			run.Fail(p.now(), err)
		}
		p.observe(ctx, run)
		return run, nil
	}

	run := domain.NewReportRun(adm.RunID, trigger, p.now())
	ctx = withRunLogger(ctx, run)
	run.CurrencyCode = p.normalizer.Currency()
	p.record(ctx, run)
	snapshot := *run

	done := make(chan *domain.ReportRun, 1)
	p.running.Add(1)
	go func() {
		defer p.running.Done()

		err := adm.Run(ctx, func(ctx context.Context) error {
			if err := p.execute(ctx, run); err != nil {
				run.Fail(p.now(), err)
				return nil
			}
			run.Succeed(p.now())
			return nil
		})
		if err != nil {
			// recovered panic
			run.Fail(p.now(), err)
		}

		p.observe(ctx, run)
		done <- run
	}()

	return &snapshot, done
}

// Wait blocks until every admitted run has been finalized and recorded.
// Callers that own the history store call it before closing the store.
func (p *Pipeline) Wait() {
	p.running.Wait()
}

func (p *Pipeline) execute(ctx context.Context, run *domain.ReportRun) error {
	logger := zerolog.Ctx(ctx)

	raw, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	run.TotalRaw = len(raw)

	recs, skipped := p.normalizer.Normalize(raw)
	run.Recommendations = recs
	run.TotalSkipped = skipped
	if skipped > 0 {
		logger.Warn().
			Int("skipped", skipped).
			Int("raw", len(raw)).
			Msg("records skipped during normalization")
	}

	run.Groups = report.Aggregate(recs)

	if len(recs) == 0 && p.config.SkipEmpty {
		logger.Info().Msg("no recommendations, report not sent")
		run.Delivery = domain.DeliveryResult{Status: domain.DeliverySkipped, Reason: "no recommendations"}
		return nil
	}

	narrative, degraded := p.summarizer.Summarize(ctx, run.Groups,
		report.TopRecommendations(recs, p.summarizer.TopN()), p.summarizer.MaxTokens())
	run.NarrativeSummary = narrative
	run.SummaryDegraded = degraded

	export, body := p.renderer.Render(run)
	name := report.ExportFileName(run.StartedAt)

	location, err := p.archiver.Archive(ctx, run.RunID, run.StartedAt, name, export)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to archive export, continuing")
	}
	run.ExportKey = location

	run.Delivery = p.dispatcher.Dispatch(ctx, delivery.Content{
		Narrative:      body,
		HTML:           p.renderer.RenderHTML(run),
		Export:         export,
		AttachmentName: name,
		Date:           run.StartedAt,
	}, p.config.Sender, p.config.Recipient)

	return delivery.AsError(run.Delivery)
}

func (p *Pipeline) fetch(ctx context.Context) ([]domain.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.SourceTimeout)
	defer cancel()

	raw, err := p.source.Fetch(ctx, p.config.Scope)
	if err != nil {
		var srcErr *source.Error
		if !errors.As(err, &srcErr) {
			err = source.NewError(p.source.Name(), p.config.Scope, err)
		}
		return nil, fmt.Errorf("failed to fetch recommendations: %w", err)
	}
	return raw, nil
}

func (p *Pipeline) observe(ctx context.Context, run *domain.ReportRun) {
	logger := zerolog.Ctx(ctx)

	p.record(ctx, run)
	if err := p.publisher.Publish(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to publish run status")
	}

	event := logger.Info()
	if run.Status == domain.RunStatusFailed {
		event = logger.Error()
	}
	event.
		Str("status", string(run.Status)).
		Int("recommendations", len(run.Recommendations)).
		Int("skipped", run.TotalSkipped).
		Str("savings", report.FormatMoney(run.TotalSavings(), run.CurrencyCode)).
		Bool("degraded", run.SummaryDegraded).
		Str("delivery", string(run.Delivery.Status)).
		Str("error", run.Error).
		Dur("duration", run.Duration()).
		Msg("report run finished")
}

func (p *Pipeline) record(ctx context.Context, run *domain.ReportRun) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(ctx, adapters.MapDomainRunToStore(run)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to record run")
	}
}

func withRunLogger(ctx context.Context, run *domain.ReportRun) context.Context {
	logger := zerolog.Ctx(ctx).With().
		Str("run_id", run.RunID).
		Str("trigger", string(run.Trigger)).
		Logger()
	return logger.WithContext(ctx)
}
