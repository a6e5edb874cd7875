package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
)

const (
	leaseTTLSeconds      = 10
	statsRefreshInterval = 30 * time.Second
)

// StatsSource reports the state of the local clock ledger. The node
// publishes these numbers alongside its identity so operators can see how
// much user data each node holds without querying it directly.
type StatsSource interface {
	Stats(ctx context.Context) (models.NodeStats, error)
}

// NodeRegistration keeps this node's presence record alive in etcd
type NodeRegistration struct {
	etcdClient *clientv3.Client
	leaseID    clientv3.LeaseID
	nodeInfo   models.NodeInfo
	stats      StatsSource
	logger     *logging.Logger
}

// NewNodeRegistration creates a new node registration instance
func NewNodeRegistration(
	etcdClient *clientv3.Client,
	nodeInfo models.NodeInfo,
	stats StatsSource,
	logger *logging.Logger,
) *NodeRegistration {
	return &NodeRegistration{
		etcdClient: etcdClient,
		nodeInfo:   nodeInfo,
		stats:      stats,
		logger:     logger,
	}
}

// Register publishes the node record under a lease and starts the
// keep-alive loop. If the node dies, the lease expires and the record
// disappears on its own.
func (r *NodeRegistration) Register(ctx context.Context) error {
	r.logger.Info("Starting node registration", "wallet", r.nodeInfo.Wallet)

	stats, err := r.stats.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger stats: %w", err)
	}
	r.nodeInfo.Stats = stats
	r.nodeInfo.UpdatedAt = time.Now()

	lease, err := r.etcdClient.Grant(ctx, leaseTTLSeconds)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	r.leaseID = lease.ID

	if err := r.put(ctx); err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}

	r.logger.Info(
		"Node registered successfully",
		"wallet", r.nodeInfo.Wallet,
		"endpoint", r.nodeInfo.Endpoint,
		"lease_id", int64(r.leaseID),
		"user_count", stats.UserCount,
	)

	go r.keepAlive(ctx)

	return nil
}

// keepAlive maintains the lease and periodically refreshes ledger stats
func (r *NodeRegistration) keepAlive(ctx context.Context) {
	ch, err := r.etcdClient.KeepAlive(ctx, r.leaseID)
	if err != nil {
		r.logger.Error("Failed to start keep-alive", "error", err)
		return
	}

	ticker := time.NewTicker(statsRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Keep-alive stopped (context done)")
			return

		case ka, ok := <-ch:
			if !ok {
				r.logger.Warn("Keep-alive channel closed, attempting re-registration")
				time.Sleep(2 * time.Second)
				if err := r.Register(context.Background()); err != nil {
					r.logger.Error("Failed to re-register", "error", err)
				}
				return
			}
			if ka == nil {
				r.logger.Warn("Received nil keep-alive response")
				continue
			}
			r.logger.Debug("Heartbeat sent",
				"lease_id", int64(r.leaseID), "ttl", ka.TTL)

		case <-ticker.C:
			if err := r.refreshStats(ctx); err != nil {
				r.logger.Error("Failed to refresh ledger stats", "error", err)
			}
		}
	}
}

// refreshStats re-reads ledger stats and republishes the node record
func (r *NodeRegistration) refreshStats(ctx context.Context) error {
	stats, err := r.stats.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger stats: %w", err)
	}

	r.nodeInfo.Stats = stats
	r.nodeInfo.UpdatedAt = time.Now()

	if err := r.put(ctx); err != nil {
		return err
	}

	r.logger.Debug("Ledger stats refreshed",
		"user_count", stats.UserCount,
		"max_clock", stats.MaxClock)
	return nil
}

func (r *NodeRegistration) put(ctx context.Context) error {
	data, err := json.Marshal(r.nodeInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal node info: %w", err)
	}
	_, err = r.etcdClient.Put(ctx, r.key(), string(data), clientv3.WithLease(r.leaseID))
	return err
}

func (r *NodeRegistration) key() string {
	return fmt.Sprintf("/harmonet/nodes/%s", r.nodeInfo.Wallet)
}

// Deregister removes the node record and revokes the lease
func (r *NodeRegistration) Deregister(ctx context.Context) error {
	r.logger.Info("Deregistering node", "wallet", r.nodeInfo.Wallet)

	_, err := r.etcdClient.Delete(ctx, r.key())
	if err != nil {
		r.logger.Error("Failed to delete node key", "error", err)
	}

	if r.leaseID != 0 {
		_, err = r.etcdClient.Revoke(ctx, r.leaseID)
		if err != nil {
			r.logger.Error("Failed to revoke lease", "error", err)
		}
	}

	r.logger.Info("Node deregistered successfully", "wallet", r.nodeInfo.Wallet)

	return err
}
