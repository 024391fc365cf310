// Package store owns all persistent state: the key catalogue, loans,
// bundles, events, and the audit log. It is the sole arbiter of the
// reservation invariant; the conflict check and the loan write always run
// inside one transaction.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/keydesk/keydesk/internal/query"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store wraps the database handle and knows which dialect it talks to.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the store and runs migrations. SQLite is the embedded
// default (pass ":memory:" for tests); Postgres is for multi-instance
// deployments and is addressed by a standard DSN.
func Open(driver, dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error

	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "keydesk.db?_journal_mode=WAL&_busy_timeout=5000"
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		// SQLite has a single writer; one connection serializes all
		// transactions, which is what makes check-then-insert atomic.
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Placeholder returns the bind-placeholder style of the active dialect, for
// the query compiler.
func (s *Store) Placeholder() query.PlaceholderFunc {
	if s.driver == DriverPostgres {
		return query.DollarPlaceholder
	}
	return query.QuestionPlaceholder
}

// inTx runs fn inside a transaction, rolling back on error or panic. A
// cancelled context aborts the transaction before commit, so no partial
// write survives.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// rebind converts ?-style placeholders to the dialect's style.
func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}
