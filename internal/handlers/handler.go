package handlers

import (
	"context"

	"github.com/harmonet/harmonet/internal/config"
	"github.com/harmonet/harmonet/internal/dedup"
	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
	"github.com/harmonet/harmonet/internal/syncjobs"
)

// ClockReader is the slice of the clock ledger the HTTP surface reads
type ClockReader interface {
	GetClock(ctx context.Context, wallet string) (int64, error)
	GetClocks(ctx context.Context, wallets []string) (map[string]int64, error)
	Digest(ctx context.Context, wallet string) (string, error)
	RecordsSince(ctx context.Context, wallet string, afterClock int64, limit int) ([]models.ClockRecord, error)
}

// ContentImporter applies an incoming sync: it pulls the user's data from
// the named primary and writes it locally through the clock ledger. The
// transfer itself lives outside this package; the HTTP surface only accepts
// the request and hands it over.
type ContentImporter interface {
	Import(ctx context.Context, wallet, primaryEndpoint, syncType string) error
}

// Enqueuer submits manual sync jobs triggered over HTTP
type Enqueuer interface {
	Enqueue(ctx context.Context, job syncjobs.Job) (string, bool, error)
}

// Handler contains all HTTP handlers
type Handler struct {
	logger   *logging.Logger
	node     config.NodeConfig
	clocks   ClockReader
	importer ContentImporter
	enqueuer Enqueuer
	dedup    *dedup.Registry
	version  string
}

// New creates a new handler instance
func New(logger *logging.Logger, node config.NodeConfig, clocks ClockReader,
	importer ContentImporter, enqueuer Enqueuer, registry *dedup.Registry,
	version string,
) *Handler {
	return &Handler{
		logger:   logger,
		node:     node,
		clocks:   clocks,
		importer: importer,
		enqueuer: enqueuer,
		dedup:    registry,
		version:  version,
	}
}
