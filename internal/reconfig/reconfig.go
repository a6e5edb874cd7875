// Package reconfig is the replica-set reconfiguration boundary. The actual
// replica-set mutation lives in an external collaborator; this node's only
// local responsibility is to flag the intended change, once per detection.
// Repeated detections across scheduler runs re-trigger until the directory
// reflects the new replica set, which is expected.
package reconfig

import (
	"context"
	"sync/atomic"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
)

// Updater applies replica-set changes in the external system of record
type Updater interface {
	UpdateReplicaSet(ctx context.Context, entry models.ReplicaSetEntry, unhealthyReplica string) error
}

// Reconfigurator records replica-set update intents and forwards them to the
// configured updater, when one is wired in.
type Reconfigurator struct {
	updater   Updater
	logger    *logging.Logger
	triggered atomic.Int64
}

// NewReconfigurator creates a reconfigurator. A nil updater is valid: the
// intent is still logged and counted, the mutation is left to operators.
func NewReconfigurator(updater Updater, logger *logging.Logger) *Reconfigurator {
	return &Reconfigurator{updater: updater, logger: logger}
}

// Trigger flags one user's replica set for reconfiguration away from the
// unhealthy replica.
func (r *Reconfigurator) Trigger(ctx context.Context, entry models.ReplicaSetEntry, unhealthyReplica string) {
	r.triggered.Add(1)

	r.logger.Warn("Replica set needs reconfiguration",
		"user_id", entry.UserID,
		"wallet", entry.Wallet,
		"primary", entry.Primary,
		"secondary1", entry.Secondary1,
		"secondary2", entry.Secondary2,
		"unhealthy_replica", unhealthyReplica)

	if r.updater == nil {
		return
	}
	if err := r.updater.UpdateReplicaSet(ctx, entry, unhealthyReplica); err != nil {
		r.logger.Error("Replica set update failed",
			"user_id", entry.UserID,
			"wallet", entry.Wallet,
			"unhealthy_replica", unhealthyReplica,
			"error", err)
	}
}

// TriggerCount returns how many reconfigurations were flagged since start
func (r *Reconfigurator) TriggerCount() int64 {
	return r.triggered.Load()
}
