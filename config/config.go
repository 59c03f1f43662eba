// config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment (and .env when present).
type Config struct {
	Port        int    `env:"PORT" envDefault:"5200"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// Shared secret the gateway sends in X-Service-Token. Empty disables the gate.
	GatewayToken string `env:"GAME_SERVICE_TOKEN"`
	// Token for /admin routes.
	AdminToken string `env:"ADMIN_TOKEN"`

	AuthServiceURL   string `env:"AUTH_SERVICE_URL"`
	AuthServiceToken string `env:"AUTH_SERVICE_TOKEN"`

	SyncServiceURL      string        `env:"SYNC_SERVICE_URL"`
	ProfileSyncPath     string        `env:"PROFILE_SYNC_PATH" envDefault:"/api/v1/public/devices"`
	ProfileSyncInterval time.Duration `env:"PROFILE_SYNC_INTERVAL" envDefault:"1m"`

	GamesFile string `env:"GAMES_FILE" envDefault:"games.yaml"`

	MaxActiveBattles  int           `env:"MAX_ACTIVE_BATTLES" envDefault:"9"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`
	IdentityCacheTTL  time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"5m"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	R2 R2Config `envPrefix:"R2_"`
}

// R2Config points the battle archive at an S3-compatible bucket. Archive is off when Bucket is empty.
type R2Config struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME"`
	Endpoint        string `env:"ENDPOINT"`
}

// Enabled reports whether enough is configured to upload archives.
func (c R2Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && (c.AccountID != "" || c.Endpoint != "")
}

// EndpointURL returns the explicit endpoint or the Cloudflare account endpoint.
func (c R2Config) EndpointURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse parses the current environment without touching .env.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	if cfg.MaxActiveBattles <= 0 {
		return nil, errors.New("MAX_ACTIVE_BATTLES must be positive")
	}
	return &cfg, nil
}

// RequireDatabase returns an error when no DATABASE_URL is configured.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL environment variable not set")
	}
	return nil
}
