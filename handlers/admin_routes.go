package handlers

import (
	"context"
	"time"

	"game-battle-service/config"
	"game-battle-service/middleware"
	"game-battle-service/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupStatsRoutes exposes per-device counters and the admin reconcile trigger.
func SetupStatsRoutes(app *fiber.App, stats *services.StatsService, catalog *config.Catalog, adminToken string) {
	app.Get("/games/:slug/stats/:deviceId", middleware.RequireCapability(catalog, config.CapabilityAsyncBattles), func(c *fiber.Ctx) error {
		st, err := stats.Get(c.UserContext(), c.Params("slug"), c.Params("deviceId"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(st)
	})

	app.Post("/admin/games/:slug/reconcile", middleware.AdminFlag(adminToken, true), func(c *fiber.Ctx) error {
		if _, ok := catalog.Lookup(c.Params("slug")); !ok {
			return writeError(c, services.ErrNotFound)
		}
		rep, err := stats.Reconcile(c.UserContext(), c.Params("slug"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(rep)
	})
}

// SetupHealthRoutes registers /healthz, which reports 503 when the database is unreachable.
func SetupHealthRoutes(app *fiber.App, db *gorm.DB) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
