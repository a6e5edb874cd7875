package clock

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Digest returns the content digest for a user: a hash over the user's full
// ordered clock-record log. Two replicas holding the same history produce
// the same digest regardless of when the rows landed.
func (l *Ledger) Digest(ctx context.Context, wallet string) (string, error) {
	return l.digestRange(ctx, wallet, -1)
}

// DigestUpTo returns the digest restricted to records with clock <= maxClock.
// A secondary whose history is a strict prefix of the primary's reports a
// full digest equal to the primary's DigestUpTo(secondaryClock).
func (l *Ledger) DigestUpTo(ctx context.Context, wallet string, maxClock int64) (string, error) {
	return l.digestRange(ctx, wallet, maxClock)
}

func (l *Ledger) digestRange(ctx context.Context, wallet string, maxClock int64) (string, error) {
	query := `SELECT clock, source_table FROM clock_records WHERE wallet = ? ORDER BY clock`
	args := []interface{}{wallet}
	if maxClock >= 0 {
		query = `SELECT clock, source_table FROM clock_records WHERE wallet = ? AND clock <= ? ORDER BY clock`
		args = append(args, maxClock)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("failed to read clock records for digest: %w", err)
	}
	defer rows.Close()

	h := xxhash.New()
	for rows.Next() {
		var clock int64
		var sourceTable string
		if err := rows.Scan(&clock, &sourceTable); err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%d|%s\n", clock, sourceTable)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	return fmt.Sprintf("0x%016x", h.Sum64()), nil
}

// EmptyDigest is the digest a replica with no content reports
func EmptyDigest() string {
	return fmt.Sprintf("0x%016x", xxhash.Sum64(nil))
}
