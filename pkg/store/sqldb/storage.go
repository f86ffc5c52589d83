package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// Timestamps are stored as unix milliseconds so the schema reads the same
// under both drivers.
const ReportRunsSchema = `
	CREATE TABLE IF NOT EXISTS report_runs (
		id VARCHAR NOT NULL PRIMARY KEY,
		trigger_source VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		started_at BIGINT NOT NULL,
		completed_at BIGINT NULL,
		total_recommendations INTEGER NOT NULL DEFAULT 0,
		total_skipped INTEGER NOT NULL DEFAULT 0,
		total_savings VARCHAR NOT NULL DEFAULT '0',
		currency VARCHAR NOT NULL DEFAULT '',
		summary_degraded BOOLEAN NOT NULL DEFAULT FALSE,
		delivery_status VARCHAR NOT NULL DEFAULT '',
		export_key VARCHAR NOT NULL DEFAULT '',
		error_message VARCHAR NULL
	);
`
const RunGuardSchema = `
	CREATE TABLE IF NOT EXISTS run_guard (
		name VARCHAR NOT NULL PRIMARY KEY,
		holder VARCHAR NOT NULL DEFAULT '',
		expires_at BIGINT NOT NULL DEFAULT 0
	);
`

var bootQueries = []string{
	ReportRunsSchema,
	RunGuardSchema,
}

type Settings struct {
	Driver string
	DbPath string
}

func NewDB(settings Settings) (*sql.DB, error) {
	switch settings.Driver {
	case "", DriverDuckDB:
		return newDuckDB(settings.DbPath)
	case DriverSQLite:
		return newSQLite(settings.DbPath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", settings.Driver)
	}
}

func newDuckDB(path string) (*sql.DB, error) {
	c, err := duckdb.NewConnector(fmt.Sprintf("%s?threads=4", path), func(exec driver.ExecerContext) error {
		for _, query := range bootQueries {
			_, err := exec.ExecContext(context.Background(), query, nil)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sql.OpenDB(c), nil
}

func newSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, err
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	for _, query := range bootQueries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return db, nil
}
