// Package config loads the environment-driven configuration. Required
// settings fail startup immediately; there is no partial-degraded mode.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime setting.
type Config struct {
	HTTPAddr string

	PostgresDSN       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisURL          string
	RedisDialTimeout  time.Duration
	RedisReadTimeout  time.Duration
	RedisWriteTimeout time.Duration
	RedisPoolSize     int

	AuthSecret string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr: getEnv("NEXERP_HTTP_ADDR", ":8080"),

		PostgresDSN:       os.Getenv("NEXERP_PG_DSN"),
		DBMaxOpenConns:    getEnvInt("NEXERP_PG_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("NEXERP_PG_MAX_IDLE_CONNS", 10),
		DBConnMaxLifetime: getEnvDuration("NEXERP_PG_CONN_MAX_LIFETIME", 30*time.Minute),
		DBConnMaxIdleTime: getEnvDuration("NEXERP_PG_CONN_MAX_IDLE_TIME", 5*time.Minute),

		RedisURL:          os.Getenv("NEXERP_REDIS_URL"),
		RedisDialTimeout:  getEnvDuration("NEXERP_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisReadTimeout:  getEnvDuration("NEXERP_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWriteTimeout: getEnvDuration("NEXERP_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisPoolSize:     getEnvInt("NEXERP_REDIS_POOL_SIZE", 10),

		AuthSecret: os.Getenv("NEXERP_AUTH_SECRET"),
		Issuer:     getEnv("NEXERP_AUTH_ISSUER", "nexerp"),
		AccessTTL:  getEnvDuration("NEXERP_AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTTL: getEnvDuration("NEXERP_AUTH_REFRESH_TTL", 7*24*time.Hour),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the required settings.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.PostgresDSN) == "" {
		missing = append(missing, "NEXERP_PG_DSN")
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		missing = append(missing, "NEXERP_REDIS_URL")
	}
	if strings.TrimSpace(c.AuthSecret) == "" {
		missing = append(missing, "NEXERP_AUTH_SECRET")
	}
	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid value for %s, using default %d\n", key, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid duration for %s, using default %s\n", key, def)
		return def
	}
	return d
}
