package handlers

import (
	"strconv"

	"game-battle-service/logging"
	"game-battle-service/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var statusByKind = map[services.Kind]int{
	services.KindNotFound:         fiber.StatusNotFound,
	services.KindInvalidState:     fiber.StatusConflict,
	services.KindConflict:         fiber.StatusConflict,
	services.KindSelfJoin:         fiber.StatusConflict,
	services.KindOutOfTurn:        fiber.StatusConflict,
	services.KindNotParticipant:   fiber.StatusForbidden,
	services.KindForbidden:        fiber.StatusForbidden,
	services.KindCapacityExceeded: fiber.StatusTooManyRequests,
	services.KindValidation:       fiber.StatusBadRequest,
	services.KindUnauthorized:     fiber.StatusUnauthorized,
	services.KindUnavailable:      fiber.StatusServiceUnavailable,
}

// StatusFor maps a service error kind to its HTTP status.
func StatusFor(kind services.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return fiber.StatusServiceUnavailable
}

// writeError renders err as {"error": kind, "message": ...}. Infrastructure details are
// logged, not returned.
func writeError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	msg := err.Error()
	if kind == services.KindUnavailable {
		logging.L().Error("request_failed",
			zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		msg = "service temporarily unavailable, retry later"
	}
	return c.Status(StatusFor(kind)).JSON(fiber.Map{"error": string(kind), "message": msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(services.KindValidation), "message": msg})
}

// queryInt reads an optional integer query parameter; absent yields def.
func queryInt(c *fiber.Ctx, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return n, nil
}
