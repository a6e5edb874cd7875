package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/harmonet/harmonet/internal/models"
	"github.com/harmonet/harmonet/internal/syncjobs"
	"github.com/harmonet/harmonet/internal/utils"
)

// Sync accepts an incoming sync request from a peer primary. Acceptance is
// fire-and-forget: the import runs in the background and the caller observes
// convergence by polling clock status.
func (h *Handler) Sync(c *fiber.Ctx) error {
	var req models.SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Wallet) != 1 || req.Wallet[0] == "" {
		return fiber.NewError(fiber.StatusBadRequest, "wallet must contain exactly one entry")
	}
	if req.CreatorNodeEndpoint == "" {
		return fiber.NewError(fiber.StatusBadRequest, "creator_node_endpoint is required")
	}
	syncType, err := syncjobs.ParseType(req.SyncType)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	wallet := req.Wallet[0]
	logger := h.logger.WithContext(c.UserContext()).With(
		"wallet", wallet,
		"primary", req.CreatorNodeEndpoint,
		"sync_type", string(syncType),
	)
	logger.Info("Sync request accepted")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), utils.DefaultRequestTimeout)
		defer cancel()
		if err := h.importer.Import(ctx, wallet, req.CreatorNodeEndpoint, syncType.Wire()); err != nil {
			logger.Error("Content import failed", "error", err)
		}
	}()

	resp := models.SyncAcceptedResponse{}
	resp.Data.Accepted = true
	resp.Data.Wallet = wallet
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// RequestManualSync lets a client ask this node, as primary, to push one
// user to a secondary right away. The job takes the same dedup and queue
// path as scheduler-issued syncs but runs in the higher-concurrency manual
// pool.
func (h *Handler) RequestManualSync(c *fiber.Ctx) error {
	var req models.ManualSyncRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Wallet == "" {
		return fiber.NewError(fiber.StatusBadRequest, "wallet is required")
	}
	if req.SecondaryEndpoint == "" {
		return fiber.NewError(fiber.StatusBadRequest, "secondary_endpoint is required")
	}

	handle, created, err := h.enqueuer.Enqueue(c.Context(), syncjobs.Job{
		SyncType:          syncjobs.TypeManual,
		Wallet:            req.Wallet,
		PrimaryEndpoint:   h.node.Endpoint,
		SecondaryEndpoint: req.SecondaryEndpoint,
	})
	if err != nil {
		h.logger.Error("Manual sync enqueue failed", "wallet", req.Wallet, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to enqueue sync")
	}

	resp := models.ManualSyncResponse{}
	resp.Data.JobID = handle
	resp.Data.AlreadyQueued = !created
	return c.Status(fiber.StatusAccepted).JSON(resp)
}
