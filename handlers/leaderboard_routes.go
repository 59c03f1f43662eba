package handlers

import (
	"encoding/json"

	"game-battle-service/config"
	"game-battle-service/middleware"
	"game-battle-service/services"

	"github.com/gofiber/fiber/v2"
)

type submitScoreRequest struct {
	Score    *float64        `json:"score"`
	Category string          `json:"category"`
	Metadata json.RawMessage `json:"metadata"`
}

func SetupLeaderboardRoutes(app *fiber.App, board *services.LeaderboardService, catalog *config.Catalog, auth services.DeviceValidator) {
	gate := middleware.RequireCapability(catalog, config.CapabilityLeaderboard)

	app.Post("/games/:slug/scores", gate, middleware.DeviceAuth(auth, true), func(c *fiber.Ctx) error {
		var req submitScoreRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.Score == nil {
			return badRequest(c, "score is required")
		}
		rec, err := board.Submit(c.UserContext(), c.Params("slug"), middleware.DeviceID(c), *req.Score, req.Category, req.Metadata)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	app.Get("/games/:slug/leaderboard", gate, func(c *fiber.Ctx) error {
		limit, err := queryInt(c, "limit", 0)
		if err != nil {
			return badRequest(c, "limit must be an integer")
		}
		boards, err := board.List(c.UserContext(), c.Params("slug"), limit)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"leaderboards": boards})
	})
}
