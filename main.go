package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"game-battle-service/config"
	"game-battle-service/logging"
	"game-battle-service/services"
	"game-battle-service/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var cmdRoot = &cobra.Command{
		Use:   "battle-service",
		Short: "Async battle, data store and leaderboard backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Init(cfg.LogLevel, cfg.LogFormat)
			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.L().Sync()
		},
	}
	cmdRoot.AddCommand(cmdServe())
	cmdRoot.AddCommand(cmdMigrate())
	cmdRoot.AddCommand(cmdReconcile())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(configKey{}).(*config.Config)
	return cfg
}

func openDB(ctx context.Context, cfg *config.Config) (*storage.DB, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return storage.OpenPostgres(ctx, cfg.DatabaseURL, storage.DefaultPool)
}

func cmdServe() *cobra.Command {
	var skipMigrate bool
	var cmd = &cobra.Command{
		Use:          "serve",
		Short:        "run the HTTP API, profile sync and reconcile scheduler",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configFrom(cmd), !skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not run AutoMigrate on start")
	return cmd
}

func cmdMigrate() *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "create or update database tables",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), configFrom(cmd))
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}
			logging.L().Info("migrate_done")
			return nil
		},
	}
}

func cmdReconcile() *cobra.Command {
	var game string
	var cmd = &cobra.Command{
		Use:          "reconcile",
		Short:        "recompute player stats from battle history",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			slugs := []string{game}
			if game == "" {
				catalog, err := config.LoadCatalog(cfg.GamesFile)
				if err != nil {
					return err
				}
				slugs = catalog.Slugs()
			}
			reports := services.ReconcileAll(cmd.Context(), services.NewStatsService(db.DB), slugs)
			if len(reports) != len(slugs) {
				logging.L().Warn("reconcile_incomplete", zap.Int("games", len(slugs)), zap.Int("ok", len(reports)))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&game, "game", "g", "", "only reconcile this game slug")
	return cmd
}
