// Package middleware holds the fiber middlewares shared by the node's HTTP
// surface: API-key protection for the operator routes and the error handler
// shaping every failure into the common response envelope.
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
)

// minKeyLength is the shortest API key the middleware will honor. Shorter
// keys configured by mistake are ignored rather than served.
const minKeyLength = 32

// APIKeyAuth protects the operator routes (manual sync submission) behind a
// static API key. The peer-facing surface stays open: nodes authenticate
// each other by membership in the directory, not by key.
//
// With auth disabled the middleware passes everything through. With auth
// enabled and no usable key configured it fails closed.
func APIKeyAuth(logger *logging.Logger, apiKeys []string, enabled bool) fiber.Handler {
	if !enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	keys := usableKeys(logger, apiKeys)
	if len(keys) == 0 {
		logger.Error("Operator auth enabled without a usable API key, rejecting all operator requests",
			"configured_keys", len(apiKeys),
			"min_key_length", minKeyLength)
	}

	return func(c *fiber.Ctx) error {
		presented := presentedKey(c)
		if presented == "" {
			logger.Warn("Operator request without API key",
				"path", c.Path(),
				"ip", c.IP())
			return unauthorized(c, "API key required via X-API-Key or Authorization header.")
		}

		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
				return c.Next()
			}
		}

		logger.Warn("Operator request with unknown API key",
			"path", c.Path(),
			"ip", c.IP(),
			"key_hint", keyHint(presented))
		return unauthorized(c, "Invalid API key.")
	}
}

// usableKeys drops configured keys that are too short to serve
func usableKeys(logger *logging.Logger, apiKeys []string) []string {
	keys := make([]string, 0, len(apiKeys))
	for _, key := range apiKeys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if len(key) < minKeyLength {
			logger.Warn("Ignoring configured API key below minimum length",
				"key_hint", keyHint(key),
				"key_length", len(key),
				"min_key_length", minKeyLength)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// presentedKey reads the key from X-API-Key, or from Authorization with or
// without a Bearer prefix.
func presentedKey(c *fiber.Ctx) string {
	if key := c.Get("X-API-Key"); key != "" {
		return key
	}
	auth := c.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return auth
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "UNAUTHORIZED",
			Message: message,
		},
	})
}

// keyHint is the loggable form of a key: enough to identify which configured
// key was meant, never enough to use.
func keyHint(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
