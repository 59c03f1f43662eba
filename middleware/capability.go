package middleware

import (
	"game-battle-service/config"
	"game-battle-service/services"

	"github.com/gofiber/fiber/v2"
)

// RequireCapability rejects requests for games that are unknown or do not enable capability.
// The game comes from the :slug route parameter.
func RequireCapability(catalog *config.Catalog, capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		game, ok := catalog.Lookup(c.Params("slug"))
		if !ok {
			return abort(c, fiber.StatusNotFound, string(services.KindNotFound), "unknown game")
		}
		if !game.Has(capability) {
			return abort(c, fiber.StatusForbidden, string(services.KindForbidden), capability+" is not enabled for this game")
		}
		return c.Next()
	}
}
