package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/cost-digest/pkg/models/store"
	"github.com/de-tools/cost-digest/pkg/store/sqldb"
)

const DefaultListLimit = 50

var ErrNotFound = errors.New("report run not found")

// Store keeps the history of report runs.
type Store interface {
	Record(ctx context.Context, run *store.Run) error
	Get(ctx context.Context, id string) (*store.Run, error)
	List(ctx context.Context, opts store.ListOptions) ([]*store.Run, error)
}

type defaultStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &defaultStore{
		db: db,
	}, nil
}

const columns = `id, trigger_source, status, started_at, completed_at, total_recommendations,
	total_skipped, total_savings, currency, summary_degraded, delivery_status, export_key, error_message`

// Record inserts the run or overwrites the row with the same id.
func (s *defaultStore) Record(ctx context.Context, run *store.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	query := `
		INSERT INTO report_runs (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			total_recommendations = excluded.total_recommendations,
			total_skipped = excluded.total_skipped,
			total_savings = excluded.total_savings,
			currency = excluded.currency,
			summary_degraded = excluded.summary_degraded,
			delivery_status = excluded.delivery_status,
			export_key = excluded.export_key,
			error_message = excluded.error_message`

	_, err := sqldb.Conn(ctx, s.db).ExecContext(ctx, query,
		run.ID,
		run.Trigger,
		run.Status,
		toMillis(run.StartedAt),
		nullableMillis(run.CompletedAt),
		run.TotalRecommendations,
		run.TotalSkipped,
		run.TotalSavings,
		run.Currency,
		run.SummaryDegraded,
		run.DeliveryStatus,
		run.ExportKey,
		nullableString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

func (s *defaultStore) Get(ctx context.Context, id string) (*store.Run, error) {
	row := sqldb.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+columns+` FROM report_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// List returns runs newest first.
func (s *defaultStore) List(ctx context.Context, opts store.ListOptions) ([]*store.Run, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, strings.ToUpper(opts.Status))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + columns + ` FROM report_runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC, id LIMIT %d`, limit)

	rows, err := sqldb.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	result := make([]*store.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*store.Run, error) {
	var (
		run         store.Run
		startedAt   int64
		completedAt sql.NullInt64
		errMessage  sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Trigger,
		&run.Status,
		&startedAt,
		&completedAt,
		&run.TotalRecommendations,
		&run.TotalSkipped,
		&run.TotalSavings,
		&run.Currency,
		&run.SummaryDegraded,
		&run.DeliveryStatus,
		&run.ExportKey,
		&errMessage,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = fromMillis(startedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		run.CompletedAt = &t
	}
	if errMessage.Valid {
		run.Error = &errMessage.String
	}
	return &run, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
