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

// Config runtime settings read from the environment
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	DBMaxConns      int32
	JWTSecret       string
	JWTTTL          time.Duration
	LogLevel        string
	LogDevelopment  bool
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// devSecret is only accepted with APP_ENV=development
	devSecret = "dev-secret-change-me"
)

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function so tests need not touch the process env.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	cfg := Config{
		Env:         strings.ToLower(get("APP_ENV", EnvProduction)),
		HTTPAddr:    get("HTTP_ADDR", ":9091"),
		DatabaseURL: get("DATABASE_URL", ""),
		JWTSecret:   get("JWT_SECRET", ""),
		LogLevel:    strings.ToLower(get("LOG_LEVEL", "info")),
	}

	var errs []error
	var err error
	switch cfg.Env {
	case EnvDevelopment:
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devSecret
		}
	case EnvProduction:
		if cfg.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("JWT_SECRET: required unless APP_ENV=%s", EnvDevelopment))
		}
	default:
		errs = append(errs, fmt.Errorf("APP_ENV: unknown environment %q", cfg.Env))
	}
	if cfg.JWTTTL, err = time.ParseDuration(get("JWT_TTL", "24h")); err != nil || cfg.JWTTTL <= 0 {
		errs = append(errs, fmt.Errorf("JWT_TTL: must be a positive duration"))
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(get("SHUTDOWN_TIMEOUT", "5s")); err != nil || cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT: must be a positive duration"))
	}
	if cfg.LogDevelopment, err = strconv.ParseBool(get("LOG_DEVELOPMENT", "false")); err != nil {
		errs = append(errs, fmt.Errorf("LOG_DEVELOPMENT: %w", err))
	}
	n, err := strconv.ParseInt(get("DB_MAX_CONNS", "25"), 10, 32)
	if err != nil || n <= 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS: must be a positive integer"))
	}
	cfg.DBMaxConns = int32(n)

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL: unknown level %q", cfg.LogLevel))
	}

	for _, o := range strings.Split(get("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	return cfg, errors.Join(errs...)
}

// InsecureSecret reports whether the built-in development secret is in use.
func (c Config) InsecureSecret() bool {
	return c.JWTSecret == devSecret
}
