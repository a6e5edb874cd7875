// Package directory reads user-to-replica-set mappings from the external
// directory service. The service exposes two response shapes: the current one
// returns every user with the node anywhere in their replica set, the legacy
// fallback only users for which the node is primary. Both normalize into
// models.ReplicaSetEntry so the quirk stays inside this package.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/harmonet/harmonet/internal/config"
	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
	"github.com/harmonet/harmonet/internal/utils"
)

// ErrLookupFailed is returned when both directory response shapes failed.
// A scheduler run cannot proceed without the mapping and aborts.
var ErrLookupFailed = errors.New("directory lookup failed on both current and legacy endpoints")

// nodeUsersResponse is the current directory shape
type nodeUsersResponse struct {
	Data []struct {
		UserID     int64  `json:"user_id"`
		Wallet     string `json:"wallet"`
		Primary    string `json:"primary"`
		Secondary1 string `json:"secondary1"`
		Secondary2 string `json:"secondary2"`
	} `json:"data"`
}

// legacyNodeUsersResponse is the legacy directory shape, primary-only
type legacyNodeUsersResponse struct {
	Data []struct {
		UserID              int64    `json:"user_id"`
		Wallet              string   `json:"wallet"`
		CreatorNodeEndpoint string   `json:"creator_node_endpoint"`
		SecondaryEndpoints  []string `json:"secondary_endpoints"`
	} `json:"data"`
}

// Client reads replica-set mappings from the directory service
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *logging.Logger
}

// NewClient creates a directory client from configuration
func NewClient(cfg config.DirectoryConfig, logger *logging.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(utils.DefaultMaxRetries).
		SetRetryWaitTime(utils.DefaultRetryBackoff).
		SetRetryMaxWaitTime(utils.MaxRetryBackoff).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		logger:  logger,
	}
}

// HTTPClient exposes the underlying resty client for transport injection in
// tests.
func (c *Client) HTTPClient() *resty.Client {
	return c.http
}

// NodeUsers returns every user whose replica set contains nodeEndpoint.
// The current shape is tried first; on failure the legacy primary-only shape
// is used. ErrLookupFailed wraps both errors when neither succeeds.
func (c *Client) NodeUsers(ctx context.Context, nodeEndpoint string) ([]models.ReplicaSetEntry, error) {
	entries, currentErr := c.nodeUsersCurrent(ctx, nodeEndpoint)
	if currentErr == nil {
		return entries, nil
	}
	c.logger.Warn("Current directory shape failed, falling back to legacy",
		"node_endpoint", nodeEndpoint,
		"error", currentErr)

	entries, legacyErr := c.nodeUsersLegacy(ctx, nodeEndpoint)
	if legacyErr == nil {
		return entries, nil
	}

	return nil, fmt.Errorf("%w: current: %v, legacy: %v", ErrLookupFailed, currentErr, legacyErr)
}

func (c *Client) nodeUsersCurrent(ctx context.Context, nodeEndpoint string) ([]models.ReplicaSetEntry, error) {
	var payload nodeUsersResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("creator_node_endpoint", nodeEndpoint).
		SetResult(&payload).
		Get(c.baseURL + "/users/content_node/all")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode())
	}

	entries := make([]models.ReplicaSetEntry, 0, len(payload.Data))
	for _, u := range payload.Data {
		entries = append(entries, models.ReplicaSetEntry{
			UserID:     u.UserID,
			Wallet:     u.Wallet,
			Primary:    u.Primary,
			Secondary1: u.Secondary1,
			Secondary2: u.Secondary2,
		})
	}
	return entries, nil
}

func (c *Client) nodeUsersLegacy(ctx context.Context, nodeEndpoint string) ([]models.ReplicaSetEntry, error) {
	var payload legacyNodeUsersResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("creator_node_endpoint", nodeEndpoint).
		SetResult(&payload).
		Get(c.baseURL + "/users/creator_node")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode())
	}

	entries := make([]models.ReplicaSetEntry, 0, len(payload.Data))
	for _, u := range payload.Data {
		entry := models.ReplicaSetEntry{
			UserID:  u.UserID,
			Wallet:  u.Wallet,
			Primary: u.CreatorNodeEndpoint,
		}
		if len(u.SecondaryEndpoints) > 0 {
			entry.Secondary1 = u.SecondaryEndpoints[0]
		}
		if len(u.SecondaryEndpoints) > 1 {
			entry.Secondary2 = u.SecondaryEndpoints[1]
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
