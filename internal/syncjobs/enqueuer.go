package syncjobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harmonet/harmonet/internal/dedup"
	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/queue"
)

// Enqueuer is the single entry point for submitting sync jobs. Every job
// passes through the dedup reservation before it reaches the queue.
type Enqueuer struct {
	publisher queue.Publisher
	dedup     *dedup.Registry
	logger    *logging.Logger
}

// NewEnqueuer creates an enqueuer publishing to the given queue
func NewEnqueuer(publisher queue.Publisher, registry *dedup.Registry, logger *logging.Logger) *Enqueuer {
	return &Enqueuer{
		publisher: publisher,
		dedup:     registry,
		logger:    logger,
	}
}

// Enqueue submits a sync job unless an identical job is already waiting.
// Returns the handle of the waiting job (the new one or the pre-existing
// one) and whether a new job was actually queued.
func (e *Enqueuer) Enqueue(ctx context.Context, job Job) (string, bool, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.IssuedAt.IsZero() {
		job.IssuedAt = time.Now().UTC()
	}
	if err := job.Validate(); err != nil {
		return "", false, fmt.Errorf("refusing to enqueue malformed job: %w", err)
	}

	key := job.DedupKey()
	handle, created := e.dedup.Reserve(key, job.ID)
	if !created {
		e.logger.Debug("Sync job already waiting, skipping enqueue",
			"dedup_key", key.String(),
			"existing_job_id", handle)
		return handle, false, nil
	}

	data, err := json.Marshal(&job)
	if err != nil {
		e.dedup.Release(key, job.ID)
		return "", false, fmt.Errorf("failed to encode sync job: %w", err)
	}

	if err := e.publisher.Publish(ctx, job.SyncType.Subject(), data); err != nil {
		e.dedup.Release(key, job.ID)
		return "", false, fmt.Errorf("failed to publish sync job: %w", err)
	}

	e.logger.Info("Sync job enqueued",
		"job_id", job.ID,
		"sync_type", string(job.SyncType),
		"wallet", job.Wallet,
		"secondary", job.SecondaryEndpoint,
		"attempt", job.Attempt)
	return job.ID, true, nil
}
