package utils

import "time"

// =============================================================================
// Timeout Constants
// =============================================================================

// HTTP Handler Timeouts
const (
	// DefaultRequestTimeout is the default timeout for HTTP requests
	DefaultRequestTimeout = 30 * time.Second

	// PeerHealthTimeout is the hard budget for probing one peer's health;
	// a peer that cannot answer within it is treated as unhealthy.
	PeerHealthTimeout = 2 * time.Second

	// BatchClockTimeout is the timeout for batch clock status requests
	BatchClockTimeout = 10 * time.Second
)

// =============================================================================
// Retry and Backoff Constants
// =============================================================================

const (
	// DefaultMaxRetries is the default number of retry attempts
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the default backoff duration between retries
	DefaultRetryBackoff = 100 * time.Millisecond

	// MaxRetryBackoff is the maximum backoff duration
	MaxRetryBackoff = 5 * time.Second
)

// =============================================================================
// Batch Size Constants
// =============================================================================

const (
	// DefaultClockBatchSize caps how many wallets one batch clock status
	// request carries.
	DefaultClockBatchSize = 500

	// ExportPageSize caps how many clock records one export response
	// carries; secondaries page through with repeated requests.
	ExportPageSize = 1000
)

// =============================================================================
// Queue Type Constants
// =============================================================================
// QueueType represents the type of message queue
type QueueType string

const (
	// QueueTypeMemory represents the in-memory queue (default)
	QueueTypeMemory QueueType = "memory"

	// QueueTypeNATS represents NATS JetStream queue
	QueueTypeNATS QueueType = "nats"
)
