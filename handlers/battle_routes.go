package handlers

import (
	"encoding/json"
	"strings"

	"game-battle-service/config"
	"game-battle-service/middleware"
	"game-battle-service/models"
	"game-battle-service/services"

	"github.com/gofiber/fiber/v2"
)

type createBattleRequest struct {
	MapData   json.RawMessage `json:"mapData"`
	IsPrivate bool            `json:"isPrivate"`
}

type submitTurnRequest struct {
	Payload json.RawMessage `json:"payload"`
}

func SetupBattleRoutes(app *fiber.App, battles *services.BattleService, catalog *config.Catalog, auth services.DeviceValidator) {
	gate := middleware.RequireCapability(catalog, config.CapabilityAsyncBattles)
	device := middleware.DeviceAuth(auth, true)
	optionalDevice := middleware.DeviceAuth(auth, false)

	app.Post("/games/:slug/battles", gate, device, func(c *fiber.Ctx) error {
		var req createBattleRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		b, err := battles.Create(c.UserContext(), c.Params("slug"), middleware.DeviceID(c), req.MapData, req.IsPrivate)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"battleId": b.ID,
			"status":   b.Status,
			"battle":   b,
		})
	})

	app.Get("/games/:slug/battles", gate, device, func(c *fiber.Ctx) error {
		limit, err := queryInt(c, "limit", 0)
		if err != nil {
			return badRequest(c, "limit must be an integer")
		}
		var statuses []models.BattleStatus
		for _, s := range strings.Split(c.Query("status"), ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, models.BattleStatus(s))
			}
		}
		list, err := battles.ListForDevice(c.UserContext(), c.Params("slug"), middleware.DeviceID(c), statuses, limit)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"battles": list})
	})

	app.Get("/games/:slug/battles/open", gate, optionalDevice, func(c *fiber.Ctx) error {
		limit, err := queryInt(c, "limit", 0)
		if err != nil {
			return badRequest(c, "limit must be an integer")
		}
		list, err := battles.ListOpen(c.UserContext(), c.Params("slug"), middleware.DeviceID(c), limit)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"battles": list})
	})

	app.Post("/games/:slug/battles/:id/join", gate, device, func(c *fiber.Ctx) error {
		b, err := battles.Join(c.UserContext(), c.Params("slug"), c.Params("id"), middleware.DeviceID(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(b)
	})

	app.Post("/games/:slug/battles/:id/turns", gate, device, func(c *fiber.Ctx) error {
		var req submitTurnRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := battles.SubmitTurn(c.UserContext(), c.Params("slug"), c.Params("id"), middleware.DeviceID(c), req.Payload)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{
			"battleId":           res.Battle.ID,
			"turnNumber":         res.Turn.TurnNumber,
			"currentTurn":        res.Battle.CurrentTurn,
			"currentPlayerIndex": res.Battle.CurrentPlayerIndex,
			"status":             res.Battle.Status,
			"winnerId":           res.Battle.WinnerID,
			"endReason":          res.Battle.EndReason,
		})
	})

	app.Post("/games/:slug/battles/:id/forfeit", gate, device, func(c *fiber.Ctx) error {
		b, err := battles.Forfeit(c.UserContext(), c.Params("slug"), c.Params("id"), middleware.DeviceID(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{
			"battleId":  b.ID,
			"status":    b.Status,
			"winnerId":  b.WinnerID,
			"endReason": b.EndReason,
		})
	})

	app.Get("/games/:slug/battles/:id/poll", gate, optionalDevice, func(c *fiber.Ctx) error {
		last, err := queryInt(c, "lastKnownTurn", 0)
		if err != nil {
			return badRequest(c, "lastKnownTurn must be an integer")
		}
		res, err := battles.Poll(c.UserContext(), c.Params("slug"), c.Params("id"), last)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(res)
	})
}
