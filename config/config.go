// config/config.go - Environment configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string
	Port        string
	CORSOrigins string
	JWTSecret   string
	DatabaseURL string

	RedisAddr        string
	CatalogCacheTTL  time.Duration
	CatalogCacheSize int

	HistoryLimit      int
	SweepHistoryLimit int
	SweepConcurrency  int

	RateLimitDisabled   bool
	RateLimitMax        int
	RateLimitWindow     time.Duration
	AuthRateLimitMax    int
	AuthRateLimitWindow time.Duration

	GuestCleanupEnabled  bool
	GuestMaxAge          time.Duration
	GuestCleanupInterval time.Duration
}

// Load reads .env (if present) and then the process environment. The returned bool reports
// whether a .env file was found so the caller can log it once a logger exists.
func Load() (*Config, bool) {
	envFile := godotenv.Load() == nil

	cfg := &Config{
		AppEnv:            GetEnv("APP_ENV", "development"),
		Port:              GetEnv("PORT", "3000"),
		CORSOrigins:       GetEnv("CORS_ORIGINS", "http://localhost:3000"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		DatabaseURL:       databaseURL(),
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		CatalogCacheTTL:   getDuration("CATALOG_CACHE_TTL", 30*time.Second),
		CatalogCacheSize:  getInt("CATALOG_CACHE_SIZE", 16),
		HistoryLimit:      getInt("HISTORY_LIMIT", 100),
		SweepHistoryLimit: getInt("SWEEP_HISTORY_LIMIT", 1000),
		SweepConcurrency:  getInt("SWEEP_CONCURRENCY", 4),

		RateLimitDisabled:   strings.EqualFold(os.Getenv("RATE_LIMIT_DISABLED"), "true"),
		RateLimitMax:        getInt("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitWindow:     getDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		AuthRateLimitMax:    getInt("AUTH_RATE_LIMIT_MAX", 5),
		AuthRateLimitWindow: getDuration("AUTH_RATE_LIMIT_WINDOW", 5*time.Minute),

		GuestCleanupEnabled:  !strings.EqualFold(os.Getenv("GUEST_CLEANUP_ENABLED"), "false"),
		GuestMaxAge:          getDuration("GUEST_MAX_AGE", 7*24*time.Hour),
		GuestCleanupInterval: getDuration("GUEST_CLEANUP_INTERVAL", time.Hour),
	}
	return cfg, envFile
}

// Validate checks the settings the server refuses to start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable must be set. Generate one with: openssl rand -base64 64")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters long")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		GetEnv("DB_HOST", "localhost"),
		GetEnv("DB_PORT", "5432"),
		GetEnv("DB_USER", "postgres"),
		GetEnv("DB_PASSWORD", ""),
		GetEnv("DB_NAME", "quizhub"),
		GetEnv("DB_SSLMODE", "disable"),
	)
}

func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
