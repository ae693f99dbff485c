// Package config содержит логику чтения конфигурации сервиса книговыдачи.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress         = "localhost:8080"
	defaultJWTIssuer          = "circulation"
	defaultHoldExpiryInterval = time.Minute
	defaultLockTimeout        = 2 * time.Second
)

// Config содержит параметры конфигурации сервиса книговыдачи.
type Config struct {
	RunAddress         string        `env:"RUN_ADDRESS"`
	DatabaseURI        string        `env:"DATABASE_URI"`
	CatalogAddress     string        `env:"CATALOG_ADDRESS"`
	JWTSecret          string        `env:"JWT_SECRET"`
	JWTIssuer          string        `env:"JWT_ISSUER"`
	HoldExpiryInterval time.Duration `env:"HOLD_EXPIRY_INTERVAL"`
	LockTimeout        time.Duration `env:"LOCK_TIMEOUT"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.CatalogAddress, "c", "", "catalog service address")
	flag.StringVar(&cfg.JWTSecret, "s", "", "HS256 secret for bearer tokens")
	flag.StringVar(&cfg.JWTIssuer, "i", defaultJWTIssuer, "expected token issuer")
	flag.DurationVar(&cfg.HoldExpiryInterval, "e", defaultHoldExpiryInterval, "stale hold sweep interval, 0 disables")
	flag.DurationVar(&cfg.LockTimeout, "l", defaultLockTimeout, "row lock wait timeout")

	flag.Parse()

	if fromEnv.RunAddress != "" {
		cfg.RunAddress = fromEnv.RunAddress
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.CatalogAddress != "" {
		cfg.CatalogAddress = fromEnv.CatalogAddress
	}
	if fromEnv.JWTSecret != "" {
		cfg.JWTSecret = fromEnv.JWTSecret
	}
	if fromEnv.JWTIssuer != "" {
		cfg.JWTIssuer = fromEnv.JWTIssuer
	}
	if fromEnv.HoldExpiryInterval != 0 {
		cfg.HoldExpiryInterval = fromEnv.HoldExpiryInterval
	}
	if fromEnv.LockTimeout != 0 {
		cfg.LockTimeout = fromEnv.LockTimeout
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.HoldExpiryInterval < 0 {
		return nil, fmt.Errorf("hold expiry interval must not be negative: %s", cfg.HoldExpiryInterval)
	}
	if cfg.LockTimeout <= 0 {
		return nil, fmt.Errorf("lock timeout must be positive: %s", cfg.LockTimeout)
	}

	return cfg, nil
}
