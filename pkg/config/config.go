package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the environment-driven service configuration.
type Config struct {
	// DatabaseURL selects the Postgres repository when set; otherwise
	// the service falls back to SQLite.
	DatabaseURL      string `env:"DATABASE_URL"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"ledgerquest.db"`
	SQLiteMigrations string `env:"SQLITE_MIGRATIONS" envDefault:"migrations/sqlite"`

	// RedisAddr selects the Redis cache when set; otherwise an
	// in-process cache is used. CacheDisabled turns caching off
	// entirely.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	CacheDisabled bool   `env:"CACHE_DISABLED" envDefault:"false"`

	// AuthProvider is "jwt" or "firebase".
	AuthProvider      string `env:"AUTH_PROVIDER" envDefault:"jwt"`
	JWTSecret         string `env:"JWT_SECRET"`
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	FirebaseAPIKey    string `env:"FIREBASE_API_KEY"`

	AvatarCacheTTL          time.Duration `env:"AVATAR_CACHE_TTL" envDefault:"5m"`
	CatalogCacheTTL         time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"1h"`
	StoreTimeout            time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	BattleInactivityTimeout time.Duration `env:"BATTLE_INACTIVITY_TIMEOUT" envDefault:"30m"`
	BattleSweepInterval     time.Duration `env:"BATTLE_SWEEP_INTERVAL" envDefault:"5m"`
	NotifyInterval          time.Duration `env:"NOTIFY_INTERVAL" envDefault:"1s"`
	EventQueueSize          int           `env:"EVENT_QUEUE_SIZE" envDefault:"1024"`
}

// Load reads configuration from the environment, after loading a local
// .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %v", err)
	}

	if cfg.AuthProvider == "jwt" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set when AUTH_PROVIDER is jwt")
	}
	if cfg.AuthProvider == "firebase" && cfg.FirebaseProjectID == "" {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID must be set when AUTH_PROVIDER is firebase")
	}

	return cfg, nil
}
