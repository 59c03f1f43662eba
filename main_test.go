package main

import (
	"context"
	"net/http/httptest"
	"testing"

	"game-battle-service/config"
	"game-battle-service/middleware"
	"game-battle-service/services"
	"game-battle-service/storage/storagetest"

	"github.com/gofiber/fiber/v2"
)

type rejectAll struct{}

func (rejectAll) ValidateDevice(context.Context, string, string) (*services.DeviceSession, error) {
	return nil, services.ErrUnauthorized
}

func TestNewAppGatewayAndHealth(t *testing.T) {
	db := storagetest.NewDB(t)
	catalog, err := config.NewCatalog([]config.GameEntry{
		{Slug: "word-rush", Capabilities: []string{config.CapabilityLeaderboard}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	identity := services.NewProfileResolver(db.DB, nil, 0)
	stats := services.NewStatsService(db.DB)
	cfg := &config.Config{GatewayToken: "gw", AdminToken: "adm", AllowedOrigins: []string{"*"}}
	app := newApp(cfg, db, catalog, appServices{
		battles: services.NewBattleService(db.DB, 9, nil, stats, identity),
		store:   services.NewDataStore(db.DB, identity),
		board:   services.NewLeaderboardService(db.DB, identity),
		stats:   stats,
		auth:    rejectAll{},
	})

	get := func(path, token string) int {
		req := httptest.NewRequest(fiber.MethodGet, path, nil)
		if token != "" {
			req.Header.Set(middleware.GatewayHeader, token)
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		return resp.StatusCode
	}

	if status := get("/healthz", ""); status != fiber.StatusOK {
		t.Fatalf("health must bypass the gateway, got %d", status)
	}
	if status := get("/games/word-rush/leaderboard", ""); status != fiber.StatusUnauthorized {
		t.Fatalf("expected gateway rejection, got %d", status)
	}
	if status := get("/games/word-rush/leaderboard", "gw"); status != fiber.StatusOK {
		t.Fatalf("expected leaderboard through gateway, got %d", status)
	}
}
