package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/de-tools/cost-digest/pkg/store/sqldb"
)

const DefaultName = "report"

// Lock is a row in run_guard taken with a conditional UPDATE. The row is
// acquired only when it is free or its lease has lapsed.
type Lock struct {
	db   *sql.DB
	name string
	now  func() time.Time

	// serializes writers within one process; duckdb reports concurrent
	// updates of the same row as conflicts rather than blocking
	mu sync.Mutex
}

func New(db *sql.DB, name string) (*Lock, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if name == "" {
		name = DefaultName
	}
	return &Lock{db: db, name: name, now: time.Now}, nil
}

func (l *Lock) Name() string {
	return "sql"
}

// Acquire seeds the row and claims it in one transaction, so a failed claim
// never leaves a half-written row behind.
func (l *Lock) Acquire(ctx context.Context, holder string, lease time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var acquired bool
	err := sqldb.InTx(ctx, l.db, func(ctx context.Context) error {
		conn := sqldb.Conn(ctx, l.db)

		_, err := conn.ExecContext(ctx,
			`INSERT INTO run_guard (name, holder, expires_at) VALUES (?, '', 0) ON CONFLICT (name) DO NOTHING`,
			l.name)
		if err != nil {
			return fmt.Errorf("seed run_guard row: %w", err)
		}

		now := l.now()
		res, err := conn.ExecContext(ctx,
			`UPDATE run_guard SET holder = ?, expires_at = ? WHERE name = ? AND (holder = '' OR expires_at <= ?)`,
			holder, now.Add(lease).UnixMilli(), l.name, now.UnixMilli())
		if err != nil {
			return fmt.Errorf("acquire run_guard row: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("acquire run_guard row: %w", err)
		}
		acquired = affected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (l *Lock) Release(ctx context.Context, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := sqldb.Conn(ctx, l.db).ExecContext(ctx,
		`UPDATE run_guard SET holder = '', expires_at = 0 WHERE name = ? AND holder = ?`,
		l.name, holder)
	if err != nil {
		return fmt.Errorf("release run_guard row: %w", err)
	}
	return nil
}
