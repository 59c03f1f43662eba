package middleware

import (
	"crypto/subtle"
	"strings"

	"game-battle-service/logging"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GatewayHeader carries the shared secret the gateway attaches to every forwarded request.
const GatewayHeader = "X-Service-Token"

// GatewayAuth rejects requests that do not carry expectedToken. An empty token disables the check.
func GatewayAuth(expectedToken string) fiber.Handler {
	if expectedToken == "" {
		logging.L().Warn("gateway_auth_disabled")
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Get(GatewayHeader))
		if token == "" {
			return abort(c, fiber.StatusUnauthorized, "unauthorized", "gateway authentication token missing")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			logging.L().Warn("gateway_auth_rejected", zap.String("path", c.Path()))
			return abort(c, fiber.StatusUnauthorized, "unauthorized", "invalid gateway authentication token")
		}
		return c.Next()
	}
}

// abort writes the standard error body.
func abort(c *fiber.Ctx, status int, kind, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": kind, "message": message})
}
