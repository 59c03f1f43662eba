package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"game-battle-service/config"
	"game-battle-service/handlers"
	"game-battle-service/logging"
	"game-battle-service/middleware"
	"game-battle-service/services"
	"game-battle-service/storage"
	"game-battle-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	log := logging.L()

	catalog, err := config.LoadCatalog(cfg.GamesFile)
	if err != nil {
		return err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := db.Migrate(); err != nil {
			return err
		}
	}

	rdb := openRedis(ctx, cfg.RedisURL)
	if rdb != nil {
		defer rdb.Close()
	}

	identity := services.NewProfileResolver(db.DB, rdb, cfg.IdentityCacheTTL)
	stats := services.NewStatsService(db.DB)
	battles := services.NewBattleService(db.DB, cfg.MaxActiveBattles, services.DefaultRules{}, stats, identity)
	if cfg.R2.Enabled() {
		client, err := services.NewR2Client(ctx, cfg.R2)
		if err != nil {
			return err
		}
		battles.Archive = services.NewR2Archiver(client, cfg.R2.Bucket)
		log.Info("battle_archive_enabled", zap.String("bucket", cfg.R2.Bucket))
	}
	store := services.NewDataStore(db.DB, identity)
	board := services.NewLeaderboardService(db.DB, identity)
	auth := services.NewAuthClient(cfg.AuthServiceURL, cfg.AuthServiceToken)

	if cfg.SyncServiceURL != "" {
		workers.NewProfileSyncWorker(db.DB, cfg.SyncServiceURL, cfg.ProfileSyncPath, cfg.GatewayToken, cfg.ProfileSyncInterval, identity).Start(ctx)
	} else {
		log.Warn("profile_sync_disabled", zap.String("reason", "SYNC_SERVICE_URL not set"))
	}

	sched, err := services.StartReconcileScheduler(stats, catalog.Slugs, cfg.ReconcileInterval)
	if err != nil {
		return err
	}
	defer sched.Stop()

	app := newApp(cfg, db, catalog, appServices{
		battles: battles, store: store, board: board, stats: stats, auth: auth,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()
	log.Info("server_started",
		zap.Int("port", cfg.Port),
		zap.Strings("games", catalog.Slugs()),
		zap.Strings("allowed_origins", cfg.AllowedOrigins))

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	log.Info("server_stopping")
	err = app.ShutdownWithTimeout(10 * time.Second)
	battles.WaitArchives()
	return err
}

type appServices struct {
	battles *services.BattleService
	store   *services.DataStore
	board   *services.LeaderboardService
	stats   *services.StatsService
	auth    services.DeviceValidator
}

func newApp(cfg *config.Config, db *storage.DB, catalog *config.Catalog, svc appServices) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             2 * services.MaxValueBytes,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	handlers.SetupHealthRoutes(app, db.DB)

	app.Use(middleware.GatewayAuth(cfg.GatewayToken))
	origins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-Device-ID, X-Admin-Token",
		// fiber refuses credentials with a wildcard origin
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	handlers.SetupBattleRoutes(app, svc.battles, catalog, svc.auth)
	handlers.SetupDataRoutes(app, svc.store, catalog, svc.auth, cfg.AdminToken)
	handlers.SetupLeaderboardRoutes(app, svc.board, catalog, svc.auth)
	handlers.SetupStatsRoutes(app, svc.stats, catalog, cfg.AdminToken)
	return app
}

// openRedis returns nil when no URL is configured or the server is unreachable;
// identities are then read straight from the database.
func openRedis(ctx context.Context, rawURL string) *redis.Client {
	if rawURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		logging.L().Warn("redis_url_invalid", zap.Error(err))
		return nil
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logging.L().Warn("redis_unavailable", zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	return rdb
}
