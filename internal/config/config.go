// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Feed drivers.
const (
	FeedMemory = "memory"
	FeedRedis  = "redis"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the backing store: memory or postgres.
	StoreDriver string `koanf:"store_driver"`

	// PostgresDSN is the database/sql connection string for the postgres driver.
	PostgresDSN string `koanf:"postgres_dsn"`

	// FeedDriver selects the change-notification feed: memory or redis.
	FeedDriver string `koanf:"feed_driver"`

	// RedisAddr, RedisPassword and RedisDB configure the redis feed.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// ChannelPrefix namespaces redis pub/sub channels.
	ChannelPrefix string `koanf:"channel_prefix"`

	// BusBuffer bounds each in-memory subscription channel.
	BusBuffer int `koanf:"bus_buffer"`

	// SurfaceSendBuffer bounds each websocket client's outbound queue.
	SurfaceSendBuffer int `koanf:"surface_send_buffer"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StoreDriver:       StoreMemory,
		FeedDriver:        FeedMemory,
		RedisAddr:         "localhost:6379",
		ChannelPrefix:     "tourwatch:changes:",
		BusBuffer:         64,
		SurfaceSendBuffer: 32,
	}
	return c
}
