package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"game-battle-service/logging"
	"game-battle-service/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	DeviceIDHeader   = "X-Device-ID"
	AdminTokenHeader = "X-Admin-Token"

	localDeviceID    = "device_id"
	localDisplayName = "display_name"
	localAdmin       = "is_admin"
)

// DeviceAuth resolves the caller's device from "Authorization: Bearer <token>" and X-Device-ID.
// With required=false a request without credentials passes through anonymously, but a
// request with bad credentials is still rejected.
func DeviceAuth(validator services.DeviceValidator, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		deviceID := strings.TrimSpace(c.Get(DeviceIDHeader))
		if token == "" && deviceID == "" && !required {
			return c.Next()
		}
		if token == "" || deviceID == "" {
			return abort(c, fiber.StatusUnauthorized, string(services.KindUnauthorized), "missing device credentials")
		}

		sess, err := validator.ValidateDevice(c.UserContext(), token, deviceID)
		if err != nil {
			if errors.Is(err, services.ErrUnauthorized) {
				return abort(c, fiber.StatusUnauthorized, string(services.KindUnauthorized), "invalid device credentials")
			}
			logging.L().Error("device_auth_failed", zap.String("path", c.Path()), zap.Error(err))
			return abort(c, fiber.StatusServiceUnavailable, string(services.KindUnavailable), "auth service unavailable")
		}

		c.Locals(localDeviceID, sess.DeviceID)
		c.Locals(localDisplayName, sess.DisplayName)
		return c.Next()
	}
}

// AdminFlag marks requests carrying the admin token. With required=true other requests are
// refused. An empty configured token means nobody is admin.
func AdminFlag(adminToken string, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(AdminTokenHeader)
		ok := adminToken != "" && subtle.ConstantTimeCompare([]byte(got), []byte(adminToken)) == 1
		if !ok && required {
			return abort(c, fiber.StatusForbidden, string(services.KindForbidden), "admin token required")
		}
		c.Locals(localAdmin, ok)
		return c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// DeviceID returns the authenticated device, or "" for anonymous requests.
func DeviceID(c *fiber.Ctx) string {
	id, _ := c.Locals(localDeviceID).(string)
	return id
}

// Caller builds the data store caller for this request.
func Caller(c *fiber.Ctx) services.Caller {
	name, _ := c.Locals(localDisplayName).(string)
	admin, _ := c.Locals(localAdmin).(bool)
	return services.Caller{DeviceID: DeviceID(c), DisplayName: name, Admin: admin}
}
