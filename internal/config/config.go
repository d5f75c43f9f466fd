package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const minAuthSecretLength = 32

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://localhost:5173"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH"`

	// SeedDemoData loads the demo catalogue and accounts into a SQL store.
	// The in-memory store is always seeded.
	SeedDemoData bool `envconfig:"SEED_DEMO_DATA" default:"false"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	ReceiptCacheTTL time.Duration `envconfig:"RECEIPT_CACHE_TTL" default:"10m"`

	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	SalesLookbackDays int `envconfig:"SALES_LOOKBACK_DAYS" default:"30"`
	ExpiringSoonDays  int `envconfig:"EXPIRING_SOON_DAYS" default:"90"`
}

// Load reads an optional .env file and then the process environment.
// Values already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.SalesLookbackDays < 1 {
		cfg.SalesLookbackDays = 30
	}
	if cfg.ExpiringSoonDays < 1 {
		cfg.ExpiringSoonDays = 90
	}
	if cfg.ReceiptCacheTTL <= 0 {
		cfg.ReceiptCacheTTL = 10 * time.Minute
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 8 * time.Hour
	}
	return &cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Validate rejects settings the server must not start with.
func (c Config) Validate() error {
	if len(c.AuthSecret) < minAuthSecretLength {
		return fmt.Errorf("AUTH_SECRET must be set and at least %d characters", minAuthSecretLength)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}
