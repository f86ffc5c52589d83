package config

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "DIGEST"

type Config struct {
	AWS      AWSConfig      `mapstructure:"aws"`
	Source   SourceConfig   `mapstructure:"source"`
	Report   ReportConfig   `mapstructure:"report"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Mail     MailConfig     `mapstructure:"mail"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Store    StoreConfig    `mapstructure:"store"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

type AWSConfig struct {
	Profile string `mapstructure:"profile"`
	Region  string `mapstructure:"region"`
}

type SourceConfig struct {
	// hub | rightsizing
	Kind      string        `mapstructure:"kind"`
	AccountID string        `mapstructure:"account_id"`
	Region    string        `mapstructure:"region"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type ReportConfig struct {
	Title     string `mapstructure:"title"`
	Currency  string `mapstructure:"currency"`
	SkipEmpty bool   `mapstructure:"skip_empty"`
}

type SummaryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	ModelID   string        `mapstructure:"model_id"`
	Region    string        `mapstructure:"region"`
	TopN      int           `mapstructure:"top_n"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
}

type MailConfig struct {
	// ses | smtp
	Transport string `mapstructure:"transport"`
	Sender    string `mapstructure:"sender"`
	Recipient string `mapstructure:"recipient"`
	Subject   string `mapstructure:"subject"`

	// Bounds the whole send. An SMTP send that runs past it is aborted
	// on the wire before end-of-data.
	Timeout time.Duration `mapstructure:"timeout"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type GuardConfig struct {
	// memory | sql | s3
	Backend string        `mapstructure:"backend"`
	Lease   time.Duration `mapstructure:"lease"`
	Bucket  string        `mapstructure:"bucket"`
	Key     string        `mapstructure:"key"`
}

type StoreConfig struct {
	// duckdb | sqlite; empty disables run history
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type ScheduleConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"aws.profile":           "",
	"aws.region":            "us-east-1",
	"source.kind":           "hub",
	"source.account_id":     "",
	"source.region":         "",
	"source.timeout":        2 * time.Minute,
	"report.title":          "AWS Cost Optimization Report",
	"report.currency":       "USD",
	"report.skip_empty":     false,
	"summary.enabled":       true,
	"summary.model_id":      "anthropic.claude-3-sonnet-20240229-v1:0",
	"summary.region":        "",
	"summary.top_n":         10,
	"summary.max_tokens":    2000,
	"summary.timeout":       30 * time.Second,
	"summary.retries":       1,
	"mail.transport":        "ses",
	"mail.sender":           "",
	"mail.recipient":        "",
	"mail.subject":          "AWS Cost Optimization Recommendations Summary",
	"mail.timeout":          60 * time.Second,
	"mail.smtp.host":        "",
	"mail.smtp.port":        587,
	"mail.smtp.username":    "",
	"mail.smtp.password":    "",
	"guard.backend":         "memory",
	"guard.lease":           15 * time.Minute,
	"guard.bucket":          "",
	"guard.key":             "locks/cost-digest.lock",
	"store.driver":          "",
	"store.path":            "cost-digest.db",
	"archive.bucket":        "",
	"archive.prefix":        "reports",
	"metrics.enabled":       false,
	"metrics.namespace":     "CostDigest",
	"schedule.interval":     7 * 24 * time.Hour,
	"schedule.run_on_start": false,
	"server.addr":           ":8080",
	"log.level":             "info",
	"log.format":            "json",
}

// aliases are the bare variable names deployments already use.
var aliases = map[string]string{
	"mail.recipient": "EMAIL_RECIPIENT",
	"mail.sender":    "EMAIL_SENDER",
	"archive.bucket": "S3_BUCKET_NAME",
}

// Load reads the optional config file at path, then applies DIGEST_*
// environment variables on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range aliases {
		if err := v.BindEnv(key, envName(key), alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate checks what a report run needs. Serving history alone does not
// need mail settings, so callers validate before running.
func (c *Config) Validate() error {
	var errs []error

	if _, err := mail.ParseAddress(c.Mail.Sender); err != nil {
		errs = append(errs, fmt.Errorf("mail.sender %q: %w", c.Mail.Sender, err))
	}
	if _, err := mail.ParseAddress(c.Mail.Recipient); err != nil {
		errs = append(errs, fmt.Errorf("mail.recipient %q: %w", c.Mail.Recipient, err))
	}

	switch c.Source.Kind {
	case "hub", "rightsizing":
	default:
		errs = append(errs, fmt.Errorf("source.kind must be hub or rightsizing, got %q", c.Source.Kind))
	}

	switch c.Mail.Transport {
	case "ses":
	case "smtp":
		if c.Mail.SMTP.Host == "" {
			errs = append(errs, errors.New("mail.smtp.host is required for the smtp transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.transport must be ses or smtp, got %q", c.Mail.Transport))
	}

	switch c.Guard.Backend {
	case "memory":
	case "sql":
		if c.Store.Driver == "" {
			errs = append(errs, errors.New("guard.backend sql requires store.driver"))
		}
	case "s3":
		if c.GuardBucket() == "" {
			errs = append(errs, errors.New("guard.backend s3 requires guard.bucket or archive.bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("guard.backend must be memory, sql or s3, got %q", c.Guard.Backend))
	}

	switch c.Store.Driver {
	case "", "duckdb", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be duckdb or sqlite, got %q", c.Store.Driver))
	}

	if c.Summary.Retries < 0 || c.Summary.Retries > 1 {
		errs = append(errs, fmt.Errorf("summary.retries must be 0 or 1, got %d", c.Summary.Retries))
	}
	if c.Guard.Lease <= 0 {
		errs = append(errs, errors.New("guard.lease must be positive"))
	}
	if c.Schedule.Interval <= 0 {
		errs = append(errs, errors.New("schedule.interval must be positive"))
	}

	return errors.Join(errs...)
}

// GuardBucket falls back to the archive bucket so one bucket serves both.
func (c *Config) GuardBucket() string {
	if c.Guard.Bucket != "" {
		return c.Guard.Bucket
	}
	return c.Archive.Bucket
}
