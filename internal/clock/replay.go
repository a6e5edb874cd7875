package clock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harmonet/harmonet/internal/models"
)

// ErrReplayGap is returned when an incoming record batch does not continue
// the local log contiguously. The caller restarts the catch-up from its
// current clock.
var ErrReplayGap = errors.New("clock record batch does not extend local log")

// RecordsSince returns the user's clock records with clock > afterClock,
// ordered by clock, at most limit rows. Serving side of catch-up sync.
func (l *Ledger) RecordsSince(ctx context.Context, wallet string, afterClock int64, limit int) ([]models.ClockRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT clock, source_table FROM clock_records
		 WHERE wallet = ? AND clock > ?
		 ORDER BY clock LIMIT ?`,
		wallet, afterClock, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read clock records for %s: %w", wallet, err)
	}
	defer rows.Close()

	var records []models.ClockRecord
	for rows.Next() {
		var rec models.ClockRecord
		if err := rows.Scan(&rec.Clock, &rec.SourceTable); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ApplyRecords replays a batch of records exported from a peer, preserving
// their exact clock values and source tables so both replicas produce the
// same digest. The batch must extend the local log contiguously: records at
// or below the current clock are skipped, and the first new record must be
// exactly current clock + 1 or ErrReplayGap is returned. The whole batch
// lands in one transaction.
func (l *Ledger) ApplyRecords(ctx context.Context, wallet string, records []models.ClockRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapConflict(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT clock FROM users WHERE wallet = ?`, wallet,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read clock for %s: %w", wallet, err)
	}

	applied := 0
	for _, rec := range records {
		if rec.Clock <= current {
			continue
		}
		if rec.Clock != current+1 {
			return 0, fmt.Errorf("%w: have %d, got %d", ErrReplayGap, current, rec.Clock)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO clock_records (wallet, clock, source_table) VALUES (?, ?, ?)`,
			wallet, rec.Clock, rec.SourceTable,
		)
		if err != nil {
			return 0, wrapConflict(err)
		}
		current = rec.Clock
		applied++
	}

	if applied > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (wallet, clock) VALUES (?, ?)
			 ON CONFLICT (wallet) DO UPDATE SET clock = excluded.clock`,
			wallet, current,
		)
		if err != nil {
			return 0, wrapConflict(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapConflict(err)
	}
	return applied, nil
}
