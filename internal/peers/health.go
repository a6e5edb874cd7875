package peers

import (
	"context"
	"sync"
	"time"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
)

// HealthProber probes a single peer endpoint
type HealthProber interface {
	HealthCheck(ctx context.Context, endpoint string) (*models.HealthResponse, error)
}

// HealthChecker classifies peers as healthy or unhealthy under a hard
// per-peer time budget. It never returns an error: a peer that fails or
// times out is simply unhealthy for this pass.
type HealthChecker struct {
	prober  HealthProber
	timeout time.Duration
	logger  *logging.Logger
}

// NewHealthChecker creates a health checker with the given per-peer timeout
func NewHealthChecker(prober HealthProber, timeout time.Duration, logger *logging.Logger) *HealthChecker {
	return &HealthChecker{
		prober:  prober,
		timeout: timeout,
		logger:  logger,
	}
}

// Check probes one endpoint and reports whether it is healthy. Any successful
// response within the time budget counts; the status string in the body is
// informational only.
func (h *HealthChecker) Check(ctx context.Context, endpoint string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if _, err := h.prober.HealthCheck(probeCtx, endpoint); err != nil {
		h.logger.Debug("Peer failed health check", "endpoint", endpoint, "error", err)
		return false
	}
	return true
}

// CheckAll probes every endpoint concurrently and returns the verdict per
// endpoint. Duplicate endpoints are probed once.
func (h *HealthChecker) CheckAll(ctx context.Context, endpoints []string) map[string]bool {
	unique := make(map[string]struct{}, len(endpoints))
	for _, ep := range endpoints {
		if ep != "" {
			unique[ep] = struct{}{}
		}
	}

	var mu sync.Mutex
	verdicts := make(map[string]bool, len(unique))

	var wg sync.WaitGroup
	for ep := range unique {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			healthy := h.Check(ctx, endpoint)
			mu.Lock()
			verdicts[endpoint] = healthy
			mu.Unlock()
		}(ep)
	}
	wg.Wait()

	return verdicts
}
