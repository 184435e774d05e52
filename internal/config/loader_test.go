package config_test

import (
	"context"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/tourwatch/tourwatch/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			// Clear any existing environment variables
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.FeedDriver, convey.ShouldEqual, config.FeedMemory)
				convey.So(cfg.ChannelPrefix, convey.ShouldEqual, "tourwatch:changes:")
				convey.So(cfg.BusBuffer, convey.ShouldEqual, 64)
				convey.So(cfg.SurfaceSendBuffer, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("TOURWATCH_ADDR", ":8080")
			_ = os.Setenv("TOURWATCH_LOG_LEVEL", "debug")
			_ = os.Setenv("TOURWATCH_FEED_DRIVER", "redis")
			_ = os.Setenv("TOURWATCH_REDIS_ADDR", "redis:6379")
			_ = os.Setenv("TOURWATCH_BUS_BUFFER", "128")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.FeedDriver, convey.ShouldEqual, config.FeedRedis)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "redis:6379")
				convey.So(cfg.BusBuffer, convey.ShouldEqual, 128)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
log_format: "json"
store_driver: "postgres"
postgres_dsn: "postgres://localhost/tourwatch?sslmode=disable"
surface_send_buffer: 16
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("TOURWATCH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StorePostgres)
				convey.So(cfg.SurfaceSendBuffer, convey.ShouldEqual, 16)
			})
		})

		convey.Convey("When env vars override the YAML file", func() {
			yamlContent := "addr: \":9090\"\n"
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("TOURWATCH_CONFIG", tmpFile)
			_ = os.Setenv("TOURWATCH_ADDR", ":7070")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the env var wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
			})
		})

		convey.Convey("When the config is invalid", func() {
			defer clearConfigEnvVars()

			convey.Convey("Then an unknown store driver is rejected", func() {
				clearConfigEnvVars()
				_ = os.Setenv("TOURWATCH_STORE_DRIVER", "cassandra")
				_, err := config.Load(ctx)
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store driver")
			})

			convey.Convey("Then a postgres store without a DSN is rejected", func() {
				clearConfigEnvVars()
				_ = os.Setenv("TOURWATCH_STORE_DRIVER", "postgres")
				_, err := config.Load(ctx)
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "postgres_dsn")
			})

			convey.Convey("Then a zero bus buffer is rejected", func() {
				clearConfigEnvVars()
				_ = os.Setenv("TOURWATCH_BUS_BUFFER", "0")
				_, err := config.Load(ctx)
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			clearConfigEnvVars()
			_ = os.Setenv("TOURWATCH_CONFIG", "/nonexistent/tourwatch.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	vars := []string{
		"TOURWATCH_CONFIG",
		"TOURWATCH_ADDR",
		"TOURWATCH_LOG_LEVEL",
		"TOURWATCH_LOG_FORMAT",
		"TOURWATCH_STORE_DRIVER",
		"TOURWATCH_POSTGRES_DSN",
		"TOURWATCH_FEED_DRIVER",
		"TOURWATCH_REDIS_ADDR",
		"TOURWATCH_REDIS_PASSWORD",
		"TOURWATCH_REDIS_DB",
		"TOURWATCH_CHANNEL_PREFIX",
		"TOURWATCH_BUS_BUFFER",
		"TOURWATCH_SURFACE_SEND_BUFFER",
	}
	for _, v := range vars {
		_ = os.Unsetenv(v)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "tourwatch-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
