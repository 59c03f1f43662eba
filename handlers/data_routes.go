package handlers

import (
	"encoding/json"
	"net/url"

	"game-battle-service/config"
	"game-battle-service/middleware"
	"game-battle-service/models"
	"game-battle-service/services"

	"github.com/gofiber/fiber/v2"
)

type putDataRequest struct {
	Value json.RawMessage `json:"value"`
	Scope string          `json:"scope"`
}

func SetupDataRoutes(app *fiber.App, store *services.DataStore, catalog *config.Catalog, auth services.DeviceValidator, adminToken string) {
	gate := middleware.RequireCapability(catalog, config.CapabilityDataStore)
	device := middleware.DeviceAuth(auth, false)
	admin := middleware.AdminFlag(adminToken, false)

	app.Put("/games/:slug/data/:key", gate, device, admin, func(c *fiber.Ctx) error {
		key, err := keyParam(c)
		if err != nil {
			return badRequest(c, "invalid key encoding")
		}
		var req putDataRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		scope := models.DataScope(c.Query("scope", req.Scope))
		rec, err := store.Put(c.UserContext(), c.Params("slug"), key, req.Value, scope, middleware.Caller(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(rec)
	})

	app.Get("/games/:slug/data/:key", gate, device, admin, func(c *fiber.Ctx) error {
		key, err := keyParam(c)
		if err != nil {
			return badRequest(c, "invalid key encoding")
		}
		rec, err := store.Get(c.UserContext(), c.Params("slug"), key, models.DataScope(c.Query("scope")), middleware.Caller(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(rec)
	})

	app.Delete("/games/:slug/data/:key", gate, device, admin, func(c *fiber.Ctx) error {
		key, err := keyParam(c)
		if err != nil {
			return badRequest(c, "invalid key encoding")
		}
		deleted, err := store.Delete(c.UserContext(), c.Params("slug"), key, middleware.Caller(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"deleted": deleted})
	})

	app.Get("/games/:slug/data", gate, device, admin, func(c *fiber.Ctx) error {
		limit, err := queryInt(c, "limit", 0)
		if err != nil {
			return badRequest(c, "limit must be an integer")
		}
		res, err := store.List(c.UserContext(), c.Params("slug"), services.ListOptions{
			Prefix: c.Query("prefix"),
			Limit:  limit,
			Cursor: c.Query("cursor"),
			Scope:  models.DataScope(c.Query("scope")),
			Caller: middleware.Caller(c),
		})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(res)
	})
}

func keyParam(c *fiber.Ctx) (string, error) {
	return url.PathUnescape(c.Params("key"))
}
