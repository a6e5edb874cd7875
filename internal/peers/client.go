// Package peers is the HTTP client side of the node-to-node protocol: health
// probes, clock status reads and sync requests against other content nodes.
package peers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
	"github.com/harmonet/harmonet/internal/utils"
)

// Client talks to other content nodes over their public HTTP surface
type Client struct {
	http   *resty.Client
	logger *logging.Logger
}

// NewClient creates a peer client with the given per-request timeout
func NewClient(timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = utils.DefaultRequestTimeout
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(utils.DefaultMaxRetries).
		SetRetryWaitTime(utils.DefaultRetryBackoff).
		SetRetryMaxWaitTime(utils.MaxRetryBackoff).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient, logger: logger}
}

// HTTPClient exposes the underlying resty client for transport injection in
// tests.
func (c *Client) HTTPClient() *resty.Client {
	return c.http
}

// HealthCheck probes a peer's verbose health endpoint
func (c *Client) HealthCheck(ctx context.Context, endpoint string) (*models.HealthResponse, error) {
	var health models.HealthResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&health).
		Get(joinURL(endpoint, "/health_check/verbose"))
	if err != nil {
		return nil, fmt.Errorf("health check against %s failed: %w", endpoint, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("health check against %s returned status %d", endpoint, resp.StatusCode())
	}

	return &health, nil
}

// GetClockStatus reads one user's clock (and optionally digest) from a peer
func (c *Client) GetClockStatus(ctx context.Context, endpoint, wallet string, returnDigest bool) (*models.ClockStatusData, error) {
	var status models.ClockStatusResponse

	req := c.http.R().
		SetContext(ctx).
		SetResult(&status)
	if returnDigest {
		req.SetQueryParam("returnDigest", "true")
	}

	resp, err := req.Get(joinURL(endpoint, "/users/clock_status/"+wallet))
	if err != nil {
		return nil, fmt.Errorf("clock status from %s failed: %w", endpoint, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("clock status from %s returned status %d", endpoint, resp.StatusCode())
	}

	return &status.Data, nil
}

// BatchClockStatus reads many users' clocks from a peer in one request
func (c *Client) BatchClockStatus(ctx context.Context, endpoint string, wallets []string, returnDigests bool) ([]models.UserClockStatus, error) {
	var batch models.BatchClockStatusResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(models.BatchClockStatusRequest{
			WalletPublicKeys: wallets,
			ReturnDigests:    returnDigests,
		}).
		SetResult(&batch).
		Post(joinURL(endpoint, "/users/batch_clock_status"))
	if err != nil {
		return nil, fmt.Errorf("batch clock status from %s failed: %w", endpoint, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("batch clock status from %s returned status %d", endpoint, resp.StatusCode())
	}

	return batch.Data.Users, nil
}

// Export fetches one page of a user's clock-record log from a peer,
// starting after minClock
func (c *Client) Export(ctx context.Context, endpoint, wallet string, minClock int64) (*models.ExportData, error) {
	var export models.ExportResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("minClock", fmt.Sprintf("%d", minClock)).
		SetResult(&export).
		Get(joinURL(endpoint, "/users/export/"+wallet))
	if err != nil {
		return nil, fmt.Errorf("export from %s failed: %w", endpoint, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("export from %s returned status %d", endpoint, resp.StatusCode())
	}

	return &export.Data, nil
}

// RequestSync asks a secondary to catch up from the named primary. Acceptance
// is fire-and-forget; the caller observes convergence by polling clock status.
func (c *Client) RequestSync(ctx context.Context, secondaryEndpoint string, syncReq models.SyncRequest) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(syncReq).
		Post(joinURL(secondaryEndpoint, "/sync"))
	if err != nil {
		return fmt.Errorf("sync request to %s failed: %w", secondaryEndpoint, err)
	}
	if resp.StatusCode() != http.StatusAccepted && resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("sync request to %s returned status %d", secondaryEndpoint, resp.StatusCode())
	}
	return nil
}

func joinURL(endpoint, path string) string {
	return strings.TrimSuffix(endpoint, "/") + path
}
