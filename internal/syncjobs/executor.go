package syncjobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/harmonet/harmonet/internal/config"
	"github.com/harmonet/harmonet/internal/dedup"
	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
	"github.com/harmonet/harmonet/internal/queue"
)

// LocalClock reads this node's clock for a user
type LocalClock interface {
	GetClock(ctx context.Context, wallet string) (int64, error)
}

// PeerAPI is the slice of the peer client the executor needs
type PeerAPI interface {
	GetClockStatus(ctx context.Context, endpoint, wallet string, returnDigest bool) (*models.ClockStatusData, error)
	RequestSync(ctx context.Context, secondaryEndpoint string, syncReq models.SyncRequest) error
}

// outcome of one monitoring pass
type outcome string

const (
	outcomeConverged        outcome = "converged"
	outcomeNeedsAnotherPass outcome = "needs_another_pass"
	outcomeCeilingReached   outcome = "ceiling_reached"
	outcomeDropped          outcome = "dropped"
)

// Executor drains the two sync queues with independent worker pools, issues
// sync requests to secondaries and monitors their convergence. A job that
// cannot converge within one pass is re-submitted as a fresh job through the
// dedup path, bounding each job's runtime while guaranteeing eventual
// convergence across passes.
type Executor struct {
	subscriber queue.Subscriber
	enqueuer   *Enqueuer
	dedup      *dedup.Registry
	localClock LocalClock
	peers      PeerAPI
	cfg        config.SyncConfig
	logger     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExecutor creates a sync executor
func NewExecutor(
	subscriber queue.Subscriber,
	enqueuer *Enqueuer,
	registry *dedup.Registry,
	localClock LocalClock,
	peers PeerAPI,
	cfg config.SyncConfig,
	logger *logging.Logger,
) *Executor {
	return &Executor{
		subscriber: subscriber,
		enqueuer:   enqueuer,
		dedup:      registry,
		localClock: localClock,
		peers:      peers,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start subscribes both worker pools to their queues
func (x *Executor) Start(ctx context.Context) error {
	x.ctx, x.cancel = context.WithCancel(ctx)

	pools := []struct {
		syncType    Type
		concurrency int
	}{
		{TypeManual, x.cfg.ManualConcurrency},
		{TypeRecurring, x.cfg.RecurringConcurrency},
	}

	for _, pool := range pools {
		sem := make(chan struct{}, pool.concurrency)
		if err := x.subscriber.Subscribe(pool.syncType.Subject(), func(data []byte) error {
			select {
			case sem <- struct{}{}:
			case <-x.ctx.Done():
				return x.ctx.Err()
			}
			x.wg.Add(1)
			go func() {
				defer func() {
					<-sem
					x.wg.Done()
				}()
				x.process(x.ctx, data)
			}()
			return nil
		}); err != nil {
			return err
		}
		x.logger.Info("Sync worker pool started",
			"sync_type", string(pool.syncType),
			"concurrency", pool.concurrency)
	}

	return nil
}

// Stop unsubscribes both pools and waits for in-flight jobs
func (x *Executor) Stop() {
	for _, t := range []Type{TypeManual, TypeRecurring} {
		if err := x.subscriber.Unsubscribe(t.Subject()); err != nil {
			x.logger.Debug("Unsubscribe failed", "subject", t.Subject(), "error", err)
		}
	}
	if x.cancel != nil {
		x.cancel()
	}
	x.wg.Wait()
	x.logger.Info("Sync executor stopped")
}

func (x *Executor) process(ctx context.Context, data []byte) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		x.logger.Error("Dropping undecodable sync job", "error", err)
		return
	}
	if err := job.Validate(); err != nil {
		x.logger.Error("Dropping malformed sync job", "job_id", job.ID, "error", err)
		return
	}

	x.runJob(ctx, job)
}

// runJob executes one sync job end to end and returns the monitoring outcome
func (x *Executor) runJob(ctx context.Context, job Job) outcome {
	key := job.DedupKey()
	x.dedup.PromoteToActive(key)

	logger := x.logger.With(
		"job_id", job.ID,
		"sync_type", string(job.SyncType),
		"wallet", job.Wallet,
		"secondary", job.SecondaryEndpoint,
	)

	// The completion target is the primary's clock as of job pickup, not
	// enqueue time: writes that landed while the job was queued are covered
	// by this pass.
	target, err := x.localClock.GetClock(ctx, job.Wallet)
	if err != nil {
		x.dedup.Release(key, job.ID)
		logger.Error("Failed to snapshot local clock, dropping job", "error", err)
		return outcomeDropped
	}

	// Free the key before the network call so a new identical request can
	// queue up behind this run.
	x.dedup.Release(key, job.ID)

	reqCtx, cancel := context.WithTimeout(ctx, x.cfg.RequestTimeout)
	err = x.peers.RequestSync(reqCtx, job.SecondaryEndpoint, models.SyncRequest{
		Wallet:              []string{job.Wallet},
		CreatorNodeEndpoint: job.PrimaryEndpoint,
		SyncType:            job.SyncType.Wire(),
	})
	cancel()
	if err != nil {
		// The secondary may still converge from a partially applied push,
		// so monitoring proceeds regardless.
		logger.Warn("Sync request failed, monitoring anyway", "error", err)
	}

	result := x.monitor(ctx, job, target)
	switch result {
	case outcomeConverged:
		logger.Info("Sync converged", "target_clock", target, "attempt", job.Attempt)
	case outcomeNeedsAnotherPass, outcomeCeilingReached:
		logger.Info("Sync pass incomplete, re-submitting",
			"result", string(result),
			"target_clock", target,
			"attempt", job.Attempt)
		x.resubmit(ctx, job)
	}
	return result
}

// monitor polls the secondary's clock until it reaches the target, the gap
// proves too large for one pass, or the ceiling expires.
func (x *Executor) monitor(ctx context.Context, job Job, target int64) outcome {
	deadline := time.Now().Add(x.cfg.MonitorCeiling)
	ticker := time.NewTicker(x.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := x.peers.GetClockStatus(ctx, job.SecondaryEndpoint, job.Wallet, false)
		if err != nil {
			x.logger.Debug("Clock poll failed",
				"job_id", job.ID,
				"secondary", job.SecondaryEndpoint,
				"error", err)
		} else {
			if status.ClockValue >= target {
				return outcomeConverged
			}
			// One sync can only move a bounded clock range; a larger gap
			// needs another pass no matter how long we wait.
			if target-status.ClockValue > x.cfg.MaxClockRange {
				return outcomeNeedsAnotherPass
			}
		}

		if time.Now().After(deadline) {
			return outcomeCeilingReached
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return outcomeCeilingReached
		}
	}
}

func (x *Executor) resubmit(ctx context.Context, job Job) {
	_, created, err := x.enqueuer.Enqueue(ctx, Job{
		SyncType:          job.SyncType,
		Wallet:            job.Wallet,
		PrimaryEndpoint:   job.PrimaryEndpoint,
		SecondaryEndpoint: job.SecondaryEndpoint,
		Attempt:           job.Attempt + 1,
	})
	if err != nil {
		x.logger.Error("Failed to re-submit sync job", "job_id", job.ID, "error", err)
		return
	}
	if !created {
		x.logger.Debug("Follow-up sync already waiting", "job_id", job.ID)
	}
}
