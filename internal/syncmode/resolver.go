// Package syncmode decides, for one (user, secondary) pair, which side of a
// replica relationship must catch up. The decision is a pure function of the
// two replicas' clock and content-digest state, except for one local lookup:
// when the primary is ahead, its digest restricted to the secondary's clock
// range distinguishes a lagging prefix replica from a diverged one.
package syncmode

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/harmonet/harmonet/internal/logging"
)

// Mode is the sync verdict for a (user, secondary) pair
type Mode string

const (
	// None means the pair needs no sync this pass
	None Mode = "None"

	// SecondaryShouldSync means the secondary lags and must pull the delta
	// (or everything) from the primary.
	SecondaryShouldSync Mode = "SecondaryShouldSync"

	// PrimaryShouldSync means the primary must reconcile first: either the
	// secondary ended up ahead (post-failover) or the histories diverged and
	// the primary's full history must be re-pushed as authoritative.
	PrimaryShouldSync Mode = "PrimaryShouldSync"
)

// ErrInvalidArguments is returned when a digest input is missing entirely.
// Digests are mandatory even when they describe empty content.
var ErrInvalidArguments = errors.New("sync mode resolution requires clock and digest for both replicas")

// ReplicaState is one replica's (clock, digest) snapshot for a user.
// A nil Digest means the replica reports no content at all (empty replica);
// it is distinct from the digest of an empty record set.
type ReplicaState struct {
	Clock  int64
	Digest *string
}

// DigestSource recomputes this node's digest restricted to a clock range
type DigestSource interface {
	DigestUpTo(ctx context.Context, wallet string, maxClock int64) (string, error)
}

const (
	defaultDigestAttempts = 4
	defaultRetryDelay     = 500 * time.Millisecond
)

// Resolver applies the sync-mode decision table
type Resolver struct {
	digests DigestSource
	logger  *logging.Logger

	digestAttempts uint64
	retryDelay     time.Duration
}

// NewResolver creates a resolver backed by the local ledger's digests
func NewResolver(digests DigestSource, logger *logging.Logger) *Resolver {
	return &Resolver{
		digests:        digests,
		logger:         logger,
		digestAttempts: defaultDigestAttempts,
		retryDelay:     defaultRetryDelay,
	}
}

// Resolve returns the sync mode for one (user, secondary) pair.
//
// Decision table, evaluated in order:
//  1. Equal clocks: None when digests match, otherwise the primary re-pushes
//     (a secondary that quietly diverged without a clock change self-heals
//     by re-pulling the authoritative history).
//  2. Primary behind: the secondary ended up ahead, the primary must pull.
//  3. Primary ahead: an empty secondary just pulls; otherwise the primary's
//     digest restricted to [0, secondaryClock] decides prefix (pull delta)
//     versus divergence (primary re-pushes everything).
func (r *Resolver) Resolve(ctx context.Context, wallet string, primary, secondary ReplicaState) (Mode, error) {
	if primary.Digest == nil {
		return None, ErrInvalidArguments
	}

	switch {
	case primary.Clock == secondary.Clock:
		if secondary.Digest == nil {
			if primary.Clock == 0 {
				// Neither side holds anything yet
				return None, nil
			}
			return PrimaryShouldSync, nil
		}
		if *primary.Digest == *secondary.Digest {
			return None, nil
		}
		return PrimaryShouldSync, nil

	case primary.Clock < secondary.Clock:
		return PrimaryShouldSync, nil

	default: // primary.Clock > secondary.Clock
		if secondary.Digest == nil {
			return SecondaryShouldSync, nil
		}

		restricted, err := r.restrictedDigest(ctx, wallet, secondary.Clock)
		if err != nil {
			// Deferred to the next scheduler cycle rather than guessing
			r.logger.Warn("Range-restricted digest unavailable, deferring sync decision",
				"wallet", wallet,
				"secondary_clock", secondary.Clock,
				"error", err)
			return None, nil
		}

		if restricted == *secondary.Digest {
			return SecondaryShouldSync, nil
		}
		return PrimaryShouldSync, nil
	}
}

// restrictedDigest fetches the primary's digest over [0, maxClock], retrying
// up to the fixed attempt budget before giving up.
func (r *Resolver) restrictedDigest(ctx context.Context, wallet string, maxClock int64) (string, error) {
	var digest string

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retryDelay), r.digestAttempts-1),
		ctx,
	)

	err := backoff.Retry(func() error {
		d, err := r.digests.DigestUpTo(ctx, wallet, maxClock)
		if err != nil {
			return err
		}
		digest = d
		return nil
	}, policy)
	if err != nil {
		return "", err
	}
	return digest, nil
}
