package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/de-tools/cost-digest/pkg/services/archive"
	"github.com/de-tools/cost-digest/pkg/services/awscfg"
	"github.com/de-tools/cost-digest/pkg/services/config"
	"github.com/de-tools/cost-digest/pkg/services/delivery"
	"github.com/de-tools/cost-digest/pkg/services/metrics"
	"github.com/de-tools/cost-digest/pkg/services/pipeline"
	"github.com/de-tools/cost-digest/pkg/services/report"
	"github.com/de-tools/cost-digest/pkg/services/runguard"
	"github.com/de-tools/cost-digest/pkg/services/source"
	"github.com/de-tools/cost-digest/pkg/services/summary"
	"github.com/de-tools/cost-digest/pkg/store/sqldb"
	"github.com/de-tools/cost-digest/pkg/store/sqldb/lock"
	"github.com/de-tools/cost-digest/pkg/store/sqldb/runs"
)

type Mode int

const (
	// ModeHistory opens run history only.
	ModeHistory Mode = iota
	// ModeRun wires the full pipeline.
	ModeRun
)

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Execute(ctx context.Context, trigger domain.Trigger) *domain.ReportRun
	Start(ctx context.Context, trigger domain.Trigger) (*domain.ReportRun, <-chan *domain.ReportRun)
	Wait()
}

type App struct {
	Config  *config.Config
	Runner  Runner
	History runs.Store // nil when store.driver is empty

	closers []func() error
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func Build(ctx context.Context, cfg *config.Config, mode Mode) (*App, error) {
	a := &App{Config: cfg}

	db, err := a.openHistory(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if mode == ModeHistory {
		return a, nil
	}

	runner, err := a.buildPipeline(ctx, cfg, db)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Runner = runner
	return a, nil
}

func (a *App) openHistory(cfg *config.Config) (*sql.DB, error) {
	if cfg.Store.Driver == "" {
		return nil, nil
	}

	db, err := sqldb.NewDB(sqldb.Settings{Driver: cfg.Store.Driver, DbPath: cfg.Store.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Store.Driver, err)
	}
	a.closers = append(a.closers, db.Close)

	history, err := runs.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}
	a.History = history
	return db, nil
}

func (a *App) buildPipeline(ctx context.Context, cfg *config.Config, db *sql.DB) (*pipeline.Pipeline, error) {
	logger := zerolog.Ctx(ctx)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	awsCfg, err := awscfg.LoadConfig(ctx, cfg.AWS.Profile, cfg.AWS.Region)
	if err != nil {
		return nil, err
	}

	scope := source.Scope{AccountID: cfg.Source.AccountID, Region: cfg.Source.Region}
	if scope.AccountID == "" {
		scope.AccountID, err = awscfg.ResolveAccountID(ctx, awscfg.NewSTSClient(*awsCfg))
		if err != nil {
			return nil, err
		}
	}

	guard, err := newGuard(cfg, *awsCfg, db)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{}
	if a.History != nil {
		opts = append(opts, pipeline.WithRecorder(a.History))
	}
	if cfg.Archive.Bucket != "" {
		opts = append(opts, pipeline.WithArchiver(archive.NewS3Archiver(*awsCfg, cfg.Archive.Bucket, cfg.Archive.Prefix)))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, pipeline.WithPublisher(metrics.NewCloudWatchPublisher(*awsCfg, cfg.Metrics.Namespace)))
	}

	logger.Info().
		Str("account_id", scope.AccountID).
		Str("source", cfg.Source.Kind).
		Str("transport", cfg.Mail.Transport).
		Str("guard", cfg.Guard.Backend).
		Bool("summary", cfg.Summary.Enabled).
		Bool("archive", cfg.Archive.Bucket != "").
		Msg("pipeline configured")

	return pipeline.New(
		pipeline.Config{
			Scope:         scope,
			Sender:        cfg.Mail.Sender,
			Recipient:     cfg.Mail.Recipient,
			SourceTimeout: cfg.Source.Timeout,
			SkipEmpty:     cfg.Report.SkipEmpty,
		},
		guard,
		newSource(cfg, *awsCfg),
		report.NewNormalizer(cfg.Report.Currency),
		summary.NewSummarizer(newGenerator(cfg, *awsCfg), summary.Config{
			TopN:      cfg.Summary.TopN,
			MaxTokens: cfg.Summary.MaxTokens,
			Timeout:   cfg.Summary.Timeout,
			Retries:   cfg.Summary.Retries,
		}),
		report.NewRenderer(cfg.Report.Title),
		delivery.NewDispatcher(newTransport(cfg, *awsCfg), cfg.Mail.Subject, cfg.Mail.Timeout),
		opts...,
	), nil
}

func newSource(cfg *config.Config, awsCfg aws.Config) source.Source {
	if cfg.Source.Kind == "rightsizing" {
		return source.NewRightsizingSource(awsCfg)
	}
	return source.NewHubSource(awsCfg)
}

// newGenerator returns nil when summaries are disabled; the summarizer then
// always degrades.
func newGenerator(cfg *config.Config, awsCfg aws.Config) summary.Generator {
	if !cfg.Summary.Enabled {
		return nil
	}
	if cfg.Summary.Region != "" {
		awsCfg = awsCfg.Copy()
		awsCfg.Region = cfg.Summary.Region
	}
	return summary.NewBedrockGenerator(awsCfg, cfg.Summary.ModelID)
}

func newTransport(cfg *config.Config, awsCfg aws.Config) delivery.Transport {
	if cfg.Mail.Transport == "smtp" {
		return delivery.NewSMTPTransport(delivery.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
		})
	}
	return delivery.NewSESTransport(awsCfg)
}

func newGuard(cfg *config.Config, awsCfg aws.Config, db *sql.DB) (*runguard.Guard, error) {
	var l runguard.Lock
	switch cfg.Guard.Backend {
	case "sql":
		sqlLock, err := lock.New(db, "")
		if err != nil {
			return nil, fmt.Errorf("failed to create sql run lock: %w", err)
		}
		l = sqlLock
	case "s3":
		l = runguard.NewS3Lock(s3.NewFromConfig(awsCfg), cfg.GuardBucket(), cfg.Guard.Key)
	default:
		l = runguard.NewMemoryLock()
	}
	return runguard.New(l, cfg.Guard.Lease), nil
}
