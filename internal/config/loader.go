package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if TOURWATCH_CONFIG is set
//  3. env (prefix TOURWATCH_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("TOURWATCH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: TOURWATCH_ADDR, TOURWATCH_STORE_DRIVER, ...
	// Map env keys like TOURWATCH_STORE_DRIVER -> store_driver (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("TOURWATCH_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "tourwatch_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn required for postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	switch c.FeedDriver {
	case FeedMemory:
	case FeedRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr required for redis feed", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown feed driver %q", ErrInvalidConfig, c.FeedDriver)
	}
	if c.BusBuffer < 1 {
		return fmt.Errorf("%w: bus_buffer must be positive", ErrInvalidConfig)
	}
	if c.SurfaceSendBuffer < 1 {
		return fmt.Errorf("%w: surface_send_buffer must be positive", ErrInvalidConfig)
	}
	return nil
}
