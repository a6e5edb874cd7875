package queue

import (
	"fmt"
	"strings"

	"github.com/harmonet/harmonet/internal/config"
	"github.com/harmonet/harmonet/internal/utils"
)

// NewQueue builds the configured backend. The in-memory queue is the
// default: a node drains its own sync jobs, so an external broker is an
// opt-in deployment choice rather than a requirement.
func NewQueue(cfg config.QueueConfig) (Queue, error) {
	switch utils.QueueType(strings.ToLower(cfg.Type)) {
	case utils.QueueTypeMemory, "":
		return newMemoryQueue(), nil
	case utils.QueueTypeNATS:
		return newNATSQueue(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported queue type %q (supported: memory, nats)", cfg.Type)
	}
}
