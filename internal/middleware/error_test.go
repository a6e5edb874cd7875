package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
)

func errorApp(routeErr error) *fiber.App {
	logger := logging.NewWithWriter(io.Discard, zerolog.Disabled)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	app.Get("/users/clock_status/:wallet", func(c *fiber.Ctx) error {
		return routeErr
	})
	return app
}

func decodeErrorEnvelope(t *testing.T, app *fiber.App) (int, models.ErrorResponse) {
	t.Helper()
	req := httptest.NewRequest("GET", "/users/clock_status/0xabc", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var body models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error envelope: %v", err)
	}
	return resp.StatusCode, body
}

func TestErrorHandler_FiberErrorKeepsStatusAndMessage(t *testing.T) {
	cases := []struct {
		err     *fiber.Error
		status  int
		message string
	}{
		{fiber.ErrBadRequest, fiber.StatusBadRequest, "Bad Request"},
		{fiber.ErrNotFound, fiber.StatusNotFound, "Not Found"},
		{fiber.NewError(fiber.StatusBadRequest, "wallet is required"), fiber.StatusBadRequest, "wallet is required"},
		{fiber.ErrServiceUnavailable, fiber.StatusServiceUnavailable, "Service Unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			status, body := decodeErrorEnvelope(t, errorApp(tc.err))
			if status != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, status)
			}
			if body.Error.Message != tc.message {
				t.Errorf("Expected message %q, got %q", tc.message, body.Error.Message)
			}
			if body.Error.Code != "ERROR" {
				t.Errorf("Expected ERROR code, got %q", body.Error.Code)
			}
		})
	}
}

func TestErrorHandler_WrappedFiberErrorUnwrapped(t *testing.T) {
	wrapped := fmt.Errorf("reading ledger: %w", fiber.ErrServiceUnavailable)

	status, body := decodeErrorEnvelope(t, errorApp(wrapped))
	if status != fiber.StatusServiceUnavailable {
		t.Errorf("Expected wrapped fiber error to keep its status, got %d", status)
	}
	if body.Error.Message != "Service Unavailable" {
		t.Errorf("Unexpected message: %q", body.Error.Message)
	}
}

func TestErrorHandler_UnknownErrorHidesDetail(t *testing.T) {
	status, body := decodeErrorEnvelope(t, errorApp(errors.New("sqlite: disk I/O error")))

	if status != fiber.StatusInternalServerError {
		t.Errorf("Expected 500 for unknown error, got %d", status)
	}
	if body.Error.Message != "Internal Server Error" {
		t.Errorf("Internal detail must not leak into the response, got %q", body.Error.Message)
	}
}
