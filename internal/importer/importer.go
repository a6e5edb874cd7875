// Package importer is the receiving side of a sync: it pages a user's
// clock-record log from the primary and replays it into the local ledger so
// both replicas converge on the same clock and digest.
package importer

import (
	"context"
	"fmt"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
)

// ExportSource fetches clock-record pages from a peer
type ExportSource interface {
	Export(ctx context.Context, endpoint, wallet string, minClock int64) (*models.ExportData, error)
}

// ReplayLedger is the slice of the clock ledger the importer writes through
type ReplayLedger interface {
	GetClock(ctx context.Context, wallet string) (int64, error)
	ApplyRecords(ctx context.Context, wallet string, records []models.ClockRecord) (int, error)
}

// Importer pulls a user's history from a primary and replays it locally
type Importer struct {
	peers  ExportSource
	ledger ReplayLedger
	logger *logging.Logger
}

// New creates an importer
func New(peers ExportSource, ledger ReplayLedger, logger *logging.Logger) *Importer {
	return &Importer{
		peers:  peers,
		ledger: ledger,
		logger: logger,
	}
}

// Import catches the local replica up on one user from the given primary.
// It pages from the local clock forward until the primary has nothing more
// to hand over. A page that does not extend the local log contiguously
// aborts the import; the next sync attempt restarts from the local clock.
func (i *Importer) Import(ctx context.Context, wallet, primaryEndpoint, syncType string) error {
	logger := i.logger.With(
		"wallet", wallet,
		"primary", primaryEndpoint,
		"sync_type", syncType,
	)

	totalApplied := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		local, err := i.ledger.GetClock(ctx, wallet)
		if err != nil {
			return fmt.Errorf("failed to read local clock: %w", err)
		}

		page, err := i.peers.Export(ctx, primaryEndpoint, wallet, local)
		if err != nil {
			return fmt.Errorf("failed to export from primary: %w", err)
		}
		if len(page.Records) == 0 {
			break
		}

		applied, err := i.ledger.ApplyRecords(ctx, wallet, page.Records)
		if err != nil {
			return fmt.Errorf("failed to replay records: %w", err)
		}
		totalApplied += applied

		// A page that moved nothing forward would loop forever
		if applied == 0 {
			logger.Warn("Export page applied no records, stopping import",
				"local_clock", local, "primary_clock", page.Clock)
			break
		}
		if !page.HasMore {
			break
		}
	}

	if totalApplied > 0 {
		logger.Info("Import completed", "records_applied", totalApplied)
	}
	return nil
}
