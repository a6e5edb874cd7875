package clock

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Ledger is the per-user monotonic clock plus its append-only record log.
// Every accepted write to a user's data on this node increments the clock by
// exactly one and appends one record tagged with the originating table, all
// inside the same transaction as the data row itself.
type Ledger struct {
	db     *sql.DB
	logger *logging.Logger
}

// Open opens (or creates) the ledger database at dbPath.
// Use ":memory:" for an in-memory ledger in tests.
func Open(ctx context.Context, dbPath string, logger *logging.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	// SQLite allows a single writer; funneling every connection through one
	// handle serializes concurrent increments for us.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	l := &Ledger{db: db, logger: logger}
	if err := l.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run ledger migrations: %w", err)
	}

	return l, nil
}

func (l *Ledger) runMigrations() error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.Up(l.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

// Close closes the ledger database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordWrite runs one user write: it opens a transaction, increments the
// user's clock, appends the clock record, then hands the transaction and the
// freshly assigned clock value to fn so the caller can insert its data row
// stamped with that clock. Commit only happens if fn succeeds.
// ErrConcurrencyConflict is returned when the store could not serialize the
// increment; the caller retries the whole write.
func (l *Ledger) RecordWrite(ctx context.Context, wallet, sourceTable string, fn func(tx *sql.Tx, clock int64) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapConflict(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	newClock, err := l.IncrementAndRecord(ctx, tx, wallet, sourceTable)
	if err != nil {
		return err
	}

	if fn != nil {
		if err := fn(tx, newClock); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapConflict(err)
	}
	return nil
}

// IncrementAndRecord atomically bumps the user's clock by one and appends a
// clock record referencing sourceTable, inside the caller's transaction.
// Returns the new clock value for the caller to stamp onto its data row.
func (l *Ledger) IncrementAndRecord(ctx context.Context, tx *sql.Tx, wallet, sourceTable string) (int64, error) {
	var newClock int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO users (wallet, clock) VALUES (?, 1)
		 ON CONFLICT (wallet) DO UPDATE SET clock = clock + 1
		 RETURNING clock`,
		wallet,
	).Scan(&newClock)
	if err != nil {
		return 0, wrapConflict(err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO clock_records (wallet, clock, source_table) VALUES (?, ?, ?)`,
		wallet, newClock, sourceTable,
	)
	if err != nil {
		return 0, wrapConflict(err)
	}

	return newClock, nil
}

// GetClock returns the user's current clock, 0 when the user has no data
func (l *Ledger) GetClock(ctx context.Context, wallet string) (int64, error) {
	var clock int64
	err := l.db.QueryRowContext(ctx,
		`SELECT clock FROM users WHERE wallet = ?`, wallet,
	).Scan(&clock)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read clock for %s: %w", wallet, err)
	}
	return clock, nil
}

// GetClocks returns the clocks for many users in one query.
// Users absent from the ledger are returned with clock 0.
func (l *Ledger) GetClocks(ctx context.Context, wallets []string) (map[string]int64, error) {
	clocks := make(map[string]int64, len(wallets))
	if len(wallets) == 0 {
		return clocks, nil
	}
	for _, w := range wallets {
		clocks[w] = 0
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(wallets)), ",")
	args := make([]interface{}, len(wallets))
	for i, w := range wallets {
		args[i] = w
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT wallet, clock FROM users WHERE wallet IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch read clocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wallet string
		var clock int64
		if err := rows.Scan(&wallet, &clock); err != nil {
			return nil, err
		}
		clocks[wallet] = clock
	}
	return clocks, rows.Err()
}

// GetMaxRecordedClock returns the highest clock value in the record log for
// the user, 0 when no records exist. On a healthy node this always equals
// GetClock; a lower stored clock is drift the checker repairs.
func (l *Ledger) GetMaxRecordedClock(ctx context.Context, wallet string) (int64, error) {
	var max sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT MAX(clock) FROM clock_records WHERE wallet = ?`, wallet,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read max clock record for %s: %w", wallet, err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// Stats summarizes the ledger for node registration
func (l *Ledger) Stats(ctx context.Context) (models.NodeStats, error) {
	var stats models.NodeStats
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), IFNULL(MAX(clock), 0) FROM users`,
	).Scan(&stats.UserCount, &stats.MaxClock)
	if err != nil {
		return stats, fmt.Errorf("failed to read ledger stats: %w", err)
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clock_records`,
	).Scan(&stats.ClockRecordCount)
	if err != nil {
		return stats, fmt.Errorf("failed to count clock records: %w", err)
	}
	return stats, nil
}

// wrapConflict maps SQLite busy/locked failures onto ErrConcurrencyConflict
func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	return err
}
