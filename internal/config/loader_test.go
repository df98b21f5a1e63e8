package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/resonance/internal/config"
)

var configEnvVars = []string{ //nolint:gochecknoglobals // test fixture
	"RESONANCE_CONFIG",
	"RESONANCE_ADDR",
	"RESONANCE_STORE_BACKEND",
	"RESONANCE_POLL_INTERVAL",
	"RESONANCE_HIGH_THRESHOLD",
	"RESONANCE_QUEUE_SIZE",
	"RESONANCE_AUTOSTART_POLLER",
	"RESONANCE_WATCH_URLS",
	"RESONANCE_ID_SCHEME",
	"RESONANCE_METRICS_ENABLED",
	"RESONANCE_METRICS_REFRESH_INTERVAL",
}

func clearConfigEnvVars() {
	for _, name := range configEnvVars {
		_ = os.Unsetenv(name)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "resonance.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
				convey.So(cfg.WatchURLs, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RESONANCE_ADDR", ":8080")
			_ = os.Setenv("RESONANCE_STORE_BACKEND", "sqlite")
			_ = os.Setenv("RESONANCE_POLL_INTERVAL", "90s")
			_ = os.Setenv("RESONANCE_HIGH_THRESHOLD", "0.75")
			_ = os.Setenv("RESONANCE_QUEUE_SIZE", "64")
			_ = os.Setenv("RESONANCE_AUTOSTART_POLLER", "true")
			_ = os.Setenv("RESONANCE_WATCH_URLS", "https://a.example/news, b.example ,")
			_ = os.Setenv("RESONANCE_METRICS_ENABLED", "false")
			_ = os.Setenv("RESONANCE_METRICS_REFRESH_INTERVAL", "2s")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreBackend, convey.ShouldEqual, "sqlite")
				convey.So(cfg.PollInterval, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.HighThreshold, convey.ShouldEqual, 0.75)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.AutostartPoller, convey.ShouldBeTrue)
				convey.So(cfg.WatchURLs, convey.ShouldResemble, []string{"https://a.example/news", "b.example"})
				convey.So(cfg.MetricsEnabled, convey.ShouldBeFalse)
				convey.So(cfg.MetricsRefreshInterval, convey.ShouldEqual, 2*time.Second)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := createTempConfigFile(t, `
addr: ":9090"
data_dir: /var/lib/resonance
poll_interval: 2m
dispatch_workers: 4
watch_urls:
  - https://lab.example/updates
`)
			_ = os.Setenv("RESONANCE_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep defaults elsewhere", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DataDir, convey.ShouldEqual, "/var/lib/resonance")
				convey.So(cfg.PollInterval, convey.ShouldEqual, 2*time.Minute)
				convey.So(cfg.DispatchWorkers, convey.ShouldEqual, 4)
				convey.So(cfg.WatchURLs, convey.ShouldResemble, []string{"https://lab.example/updates"})
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
				convey.So(cfg.ResolvedSQLitePath(), convey.ShouldEqual, "/var/lib/resonance/resonance.db")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := createTempConfigFile(t, "addr: \":9090\"\nqueue_size: 300\n")
			_ = os.Setenv("RESONANCE_CONFIG", path)
			_ = os.Setenv("RESONANCE_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			_ = os.Setenv("RESONANCE_CONFIG", createTempConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.LoadFile("/non/existent/file.yaml")

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an invalid value", func() {
			_ = os.Setenv("RESONANCE_ID_SCHEME", "sequential")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "id_scheme")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("RESONANCE_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}
