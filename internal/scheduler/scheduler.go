// Package scheduler runs the periodic replica-set consistency pass: fetch
// the users this node serves, probe peer health, decide per (user, secondary)
// pair whether a sync is needed and flag replica sets holding unhealthy
// peers for reconfiguration.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harmonet/harmonet/internal/config"
	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
	"github.com/harmonet/harmonet/internal/syncjobs"
	"github.com/harmonet/harmonet/internal/syncmode"
)

// DirectorySource fetches user-to-replica-set mappings
type DirectorySource interface {
	NodeUsers(ctx context.Context, nodeEndpoint string) ([]models.ReplicaSetEntry, error)
}

// HealthSource classifies peer endpoints as healthy or not
type HealthSource interface {
	CheckAll(ctx context.Context, endpoints []string) map[string]bool
}

// LocalClockSource reads this node's clocks and digests
type LocalClockSource interface {
	GetClocks(ctx context.Context, wallets []string) (map[string]int64, error)
	Digest(ctx context.Context, wallet string) (string, error)
}

// RemoteClockSource reads clocks and digests from peers
type RemoteClockSource interface {
	BatchClockStatus(ctx context.Context, endpoint string, wallets []string, returnDigests bool) ([]models.UserClockStatus, error)
}

// ModeResolver decides the sync mode for one (user, secondary) pair
type ModeResolver interface {
	Resolve(ctx context.Context, wallet string, primary, secondary syncmode.ReplicaState) (syncmode.Mode, error)
}

// JobSubmitter feeds sync jobs into the dedup-guarded queue
type JobSubmitter interface {
	Enqueue(ctx context.Context, job syncjobs.Job) (string, bool, error)
}

// ReconfigTrigger flags replica sets for reconfiguration
type ReconfigTrigger interface {
	Trigger(ctx context.Context, entry models.ReplicaSetEntry, unhealthyReplica string)
}

// Deps bundles the scheduler's collaborators
type Deps struct {
	Directory      DirectorySource
	Health         HealthSource
	LocalClocks    LocalClockSource
	RemoteClocks   RemoteClockSource
	Resolver       ModeResolver
	Submitter      JobSubmitter
	Reconfigurator ReconfigTrigger
}

// digestFanout bounds concurrent local digest computations per run
const digestFanout = 8

// Scheduler is the replica-set consistency state machine. One run covers the
// slice of users with userID mod SliceBase == currentSlice; the slice
// advances after every run so all users are revisited within SliceBase runs.
type Scheduler struct {
	nodeEndpoint string
	cfg          config.SchedulerConfig
	runDelay     time.Duration
	deps         Deps
	logger       *logging.Logger

	mu           sync.Mutex
	currentSlice int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a scheduler starting at a random slice offset
func New(nodeEndpoint string, cfg config.SchedulerConfig, runDelay time.Duration, deps Deps, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		nodeEndpoint: nodeEndpoint,
		cfg:          cfg,
		runDelay:     runDelay,
		deps:         deps,
		logger:       logger,
		currentSlice: rand.Intn(cfg.SliceBase),
		stopCh:       make(chan struct{}),
	}
}

// Start starts the scheduler loop. The first run fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("Replica set scheduler started",
		"slice_base", s.cfg.SliceBase,
		"initial_slice", s.currentSlice,
		"run_delay", s.runDelay)
}

// Stop stops the scheduler loop
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Replica set scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			// A failed run aborts its remaining stages but never the loop
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Scheduler run aborted", "error", err)
			}
			timer.Reset(s.runDelay)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

type syncCandidate struct {
	entry     models.ReplicaSetEntry
	secondary string
}

type reconfigOp struct {
	entry     models.ReplicaSetEntry
	unhealthy string
}

// RunOnce executes one full scheduler pass over the current slice
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	s.mu.Lock()
	slice := s.currentSlice
	s.mu.Unlock()

	runLog := newRunLog(uuid.New().String(), slice)
	defer func() { runLog.Flush(s.logger, err) }()

	entries, err := s.deps.Directory.NodeUsers(ctx, s.nodeEndpoint)
	if err != nil {
		return fmt.Errorf("directory fetch: %w", err)
	}
	runLog.Record("directory_fetch", map[string]interface{}{"users": len(entries)})

	selected := make([]models.ReplicaSetEntry, 0, len(entries)/s.cfg.SliceBase+1)
	for _, e := range entries {
		if int(e.UserID%int64(s.cfg.SliceBase)) == slice {
			selected = append(selected, e)
		}
	}
	runLog.Record("slice_selection", map[string]interface{}{"selected": len(selected)})

	verdicts := s.checkPeerHealth(ctx, selected, runLog)

	candidates, reconfigs := s.partition(selected, verdicts)
	runLog.Record("partition", map[string]interface{}{
		"sync_candidates": len(candidates),
		"reconfig_ops":    len(reconfigs),
	})

	issued, failed := s.dispatchSyncs(ctx, candidates, runLog)
	if failed > issued && failed > 0 {
		// Isolated per-user failures are normal; more failures than
		// successes signals systemic trouble and marks the stage failed.
		s.logger.Error("Sync dispatch failures exceeded successes",
			"issued", issued,
			"failed", failed)
	}

	for _, op := range reconfigs {
		s.deps.Reconfigurator.Trigger(ctx, op.entry, op.unhealthy)
	}
	runLog.Record("reconfig_triggers", map[string]interface{}{"triggered": len(reconfigs)})

	s.mu.Lock()
	s.currentSlice = (slice + 1) % s.cfg.SliceBase
	s.mu.Unlock()

	return nil
}

// checkPeerHealth probes every distinct peer appearing in the selected
// users' replica sets, excluding this node.
func (s *Scheduler) checkPeerHealth(ctx context.Context, selected []models.ReplicaSetEntry, runLog *RunLog) map[string]bool {
	seen := make(map[string]struct{})
	endpoints := make([]string, 0)
	for _, e := range selected {
		for _, ep := range e.Endpoints() {
			if ep == s.nodeEndpoint {
				continue
			}
			if _, ok := seen[ep]; !ok {
				seen[ep] = struct{}{}
				endpoints = append(endpoints, ep)
			}
		}
	}

	verdicts := s.deps.Health.CheckAll(ctx, endpoints)

	healthy := 0
	for _, ok := range verdicts {
		if ok {
			healthy++
		}
	}
	runLog.Record("peer_health", map[string]interface{}{
		"peers":   len(endpoints),
		"healthy": healthy,
	})
	return verdicts
}

// partition splits selected users into sync candidates and reconfig ops.
// As primary this node syncs healthy secondaries and flags unhealthy ones;
// as secondary it only watches the other replicas' health and never
// initiates syncs it is not the source of.
func (s *Scheduler) partition(selected []models.ReplicaSetEntry, verdicts map[string]bool) ([]syncCandidate, []reconfigOp) {
	var candidates []syncCandidate
	var reconfigs []reconfigOp

	for _, e := range selected {
		if e.Primary == s.nodeEndpoint {
			for _, sec := range e.Secondaries() {
				if verdicts[sec] {
					candidates = append(candidates, syncCandidate{entry: e, secondary: sec})
				} else {
					reconfigs = append(reconfigs, reconfigOp{entry: e, unhealthy: sec})
				}
			}
			continue
		}
		for _, ep := range e.Endpoints() {
			if ep == s.nodeEndpoint {
				continue
			}
			if !verdicts[ep] {
				reconfigs = append(reconfigs, reconfigOp{entry: e, unhealthy: ep})
			}
		}
	}
	return candidates, reconfigs
}

// dispatchSyncs resolves each sync candidate's mode and enqueues recurring
// sync jobs for the pairs that need one. Returns counts of newly issued jobs
// and per-candidate failures.
func (s *Scheduler) dispatchSyncs(ctx context.Context, candidates []syncCandidate, runLog *RunLog) (issued, failed int) {
	if len(candidates) == 0 {
		runLog.Record("sync_dispatch", map[string]interface{}{"issued": 0})
		return 0, 0
	}

	walletSet := make(map[string]struct{}, len(candidates))
	wallets := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := walletSet[c.entry.Wallet]; !ok {
			walletSet[c.entry.Wallet] = struct{}{}
			wallets = append(wallets, c.entry.Wallet)
		}
	}

	localClocks, err := s.deps.LocalClocks.GetClocks(ctx, wallets)
	if err != nil {
		runLog.Record("local_state", map[string]interface{}{"error": err.Error()})
		return 0, len(candidates)
	}
	localDigests := s.fetchLocalDigests(ctx, wallets)
	runLog.Record("local_state", map[string]interface{}{
		"users":   len(wallets),
		"digests": len(localDigests),
	})

	remote := s.fetchRemoteStates(ctx, candidates)
	runLog.Record("remote_state", map[string]interface{}{"secondaries": len(remote)})

	duplicates := 0
	for _, c := range candidates {
		wallet := c.entry.Wallet

		digest, ok := localDigests[wallet]
		if !ok {
			failed++
			continue
		}
		statuses, ok := remote[c.secondary]
		if !ok {
			failed++
			continue
		}

		secondaryState := syncmode.ReplicaState{}
		if st, found := statuses[wallet]; found {
			secondaryState = syncmode.ReplicaState{Clock: st.Clock, Digest: st.Digest}
		}

		mode, err := s.deps.Resolver.Resolve(ctx, wallet,
			syncmode.ReplicaState{Clock: localClocks[wallet], Digest: &digest},
			secondaryState)
		if err != nil {
			failed++
			s.logger.Warn("Sync mode resolution failed",
				"wallet", wallet,
				"secondary", c.secondary,
				"error", err)
			continue
		}
		if mode == syncmode.None {
			continue
		}

		_, created, err := s.deps.Submitter.Enqueue(ctx, syncjobs.Job{
			SyncType:          syncjobs.TypeRecurring,
			Wallet:            wallet,
			PrimaryEndpoint:   s.nodeEndpoint,
			SecondaryEndpoint: c.secondary,
		})
		if err != nil {
			failed++
			s.logger.Warn("Sync enqueue failed",
				"wallet", wallet,
				"secondary", c.secondary,
				"error", err)
			continue
		}
		if created {
			issued++
		} else {
			duplicates++
		}
	}

	runLog.Record("sync_dispatch", map[string]interface{}{
		"issued":     issued,
		"failed":     failed,
		"duplicates": duplicates,
	})
	return issued, failed
}

// fetchLocalDigests computes this node's full digest per wallet with bounded
// fan-out. Wallets whose digest fails are omitted and their candidates fail
// individually.
func (s *Scheduler) fetchLocalDigests(ctx context.Context, wallets []string) map[string]string {
	var mu sync.Mutex
	digests := make(map[string]string, len(wallets))

	sem := make(chan struct{}, digestFanout)
	var wg sync.WaitGroup
	for _, wallet := range wallets {
		wg.Add(1)
		sem <- struct{}{}
		go func(w string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			d, err := s.deps.LocalClocks.Digest(ctx, w)
			if err != nil {
				s.logger.Warn("Local digest failed", "wallet", w, "error", err)
				return
			}
			mu.Lock()
			digests[w] = d
			mu.Unlock()
		}(wallet)
	}
	wg.Wait()

	return digests
}

// fetchRemoteStates batch-fetches clock and digest state from every
// candidate secondary, one request per secondary, concurrently.
func (s *Scheduler) fetchRemoteStates(ctx context.Context, candidates []syncCandidate) map[string]map[string]models.UserClockStatus {
	bySecondary := make(map[string][]string)
	for _, c := range candidates {
		bySecondary[c.secondary] = append(bySecondary[c.secondary], c.entry.Wallet)
	}

	var mu sync.Mutex
	remote := make(map[string]map[string]models.UserClockStatus, len(bySecondary))

	var wg sync.WaitGroup
	for secondary, wallets := range bySecondary {
		wg.Add(1)
		go func(endpoint string, ws []string) {
			defer wg.Done()
			statuses, err := s.deps.RemoteClocks.BatchClockStatus(ctx, endpoint, ws, true)
			if err != nil {
				s.logger.Warn("Remote clock fetch failed", "secondary", endpoint, "error", err)
				return
			}
			byWallet := make(map[string]models.UserClockStatus, len(statuses))
			for _, st := range statuses {
				byWallet[st.WalletPublicKey] = st
			}
			mu.Lock()
			remote[endpoint] = byWallet
			mu.Unlock()
		}(secondary, wallets)
	}
	wg.Wait()

	return remote
}
