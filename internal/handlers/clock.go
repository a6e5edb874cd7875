package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/harmonet/harmonet/internal/models"
	"github.com/harmonet/harmonet/internal/utils"
)

// ClockStatus returns one user's clock, and the content digest when asked.
// Users this node has never written report clock 0.
func (h *Handler) ClockStatus(c *fiber.Ctx) error {
	wallet := c.Params("wallet")
	if wallet == "" {
		return fiber.NewError(fiber.StatusBadRequest, "wallet is required")
	}

	clock, err := h.clocks.GetClock(c.Context(), wallet)
	if err != nil {
		h.logger.Error("Clock read failed", "wallet", wallet, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read clock")
	}

	data := models.ClockStatusData{ClockValue: clock}
	if c.QueryBool("returnDigest") {
		digest, err := h.clocks.Digest(c.Context(), wallet)
		if err != nil {
			h.logger.Error("Digest computation failed", "wallet", wallet, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to compute digest")
		}
		data.Digest = &digest
	}

	return c.JSON(models.ClockStatusResponse{Data: data})
}

// Export serves one page of a user's clock-record log to a catching-up
// secondary, starting after the minClock query parameter. The secondary
// replays the records verbatim so both replicas converge on the same digest.
func (h *Handler) Export(c *fiber.Ctx) error {
	wallet := c.Params("wallet")
	if wallet == "" {
		return fiber.NewError(fiber.StatusBadRequest, "wallet is required")
	}
	minClock := int64(c.QueryInt("minClock", 0))
	if minClock < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "minClock must be non-negative")
	}

	clock, err := h.clocks.GetClock(c.Context(), wallet)
	if err != nil {
		h.logger.Error("Clock read failed", "wallet", wallet, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read clock")
	}

	records, err := h.clocks.RecordsSince(c.Context(), wallet, minClock, utils.ExportPageSize)
	if err != nil {
		h.logger.Error("Record export failed", "wallet", wallet, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read clock records")
	}

	data := models.ExportData{
		Wallet:  wallet,
		Clock:   clock,
		Records: records,
	}
	if len(records) > 0 {
		data.HasMore = records[len(records)-1].Clock < clock
	}
	return c.JSON(models.ExportResponse{Data: data})
}

// BatchClockStatus returns the clocks of many users in one response
func (h *Handler) BatchClockStatus(c *fiber.Ctx) error {
	var req models.BatchClockStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.WalletPublicKeys) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "walletPublicKeys is required")
	}
	if len(req.WalletPublicKeys) > utils.DefaultClockBatchSize {
		return fiber.NewError(fiber.StatusBadRequest, "too many wallets in one batch")
	}

	clocks, err := h.clocks.GetClocks(c.Context(), req.WalletPublicKeys)
	if err != nil {
		h.logger.Error("Batch clock read failed", "wallets", len(req.WalletPublicKeys), "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read clocks")
	}

	users := make([]models.UserClockStatus, 0, len(req.WalletPublicKeys))
	for _, wallet := range req.WalletPublicKeys {
		status := models.UserClockStatus{
			WalletPublicKey: wallet,
			Clock:           clocks[wallet],
		}
		if req.ReturnDigests {
			digest, err := h.clocks.Digest(c.Context(), wallet)
			if err != nil {
				h.logger.Error("Digest computation failed", "wallet", wallet, "error", err)
				return fiber.NewError(fiber.StatusInternalServerError, "failed to compute digest")
			}
			status.Digest = &digest
		}
		users = append(users, status)
	}

	resp := models.BatchClockStatusResponse{}
	resp.Data.Users = users
	return c.JSON(resp)
}
