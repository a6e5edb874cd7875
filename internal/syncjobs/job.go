// Package syncjobs carries sync work from decision to execution: typed job
// payloads, the dedup-guarded enqueue path and the worker pools that issue
// sync requests and monitor convergence.
package syncjobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/harmonet/harmonet/internal/dedup"
)

// Type classifies a sync job. Manual syncs are user-triggered catch-ups and
// get their own queue with higher concurrency; recurring syncs come from the
// scheduler.
type Type string

const (
	TypeManual    Type = "manual"
	TypeRecurring Type = "recurring"
)

// Valid reports whether the type is one of the known sync types
func (t Type) Valid() bool {
	return t == TypeManual || t == TypeRecurring
}

// Subject is the queue subject jobs of this type are published to
func (t Type) Subject() string {
	return "harmonet.sync." + string(t)
}

// Wire is the uppercase form used in the node-to-node sync request body
func (t Type) Wire() string {
	return strings.ToUpper(string(t))
}

// ParseType accepts both the internal and the wire spelling
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(s))
	if !t.Valid() {
		return "", fmt.Errorf("unknown sync type: %q", s)
	}
	return t, nil
}

// Job is one unit of sync work: make SecondaryEndpoint catch up on Wallet's
// data from PrimaryEndpoint.
type Job struct {
	ID                string    `json:"job_id"`
	SyncType          Type      `json:"sync_type"`
	Wallet            string    `json:"wallet"`
	PrimaryEndpoint   string    `json:"primary_endpoint"`
	SecondaryEndpoint string    `json:"secondary_endpoint"`
	IssuedAt          time.Time `json:"issued_at"`

	// Attempt counts monitoring passes for this logical sync. Large
	// histories converge across several passes, each a fresh job.
	Attempt int `json:"attempt"`
}

// Validate checks the fields a worker needs. Malformed jobs are dropped
// with an error log, never retried.
func (j *Job) Validate() error {
	if !j.SyncType.Valid() {
		return fmt.Errorf("invalid sync type: %q", j.SyncType)
	}
	if j.Wallet == "" {
		return fmt.Errorf("job is missing wallet")
	}
	if j.PrimaryEndpoint == "" {
		return fmt.Errorf("job is missing primary endpoint")
	}
	if j.SecondaryEndpoint == "" {
		return fmt.Errorf("job is missing secondary endpoint")
	}
	return nil
}

// DedupKey is the job's identity in the dedup registry
func (j *Job) DedupKey() dedup.Key {
	return dedup.Key{
		SyncType:          string(j.SyncType),
		Wallet:            j.Wallet,
		SecondaryEndpoint: j.SecondaryEndpoint,
	}
}
