// Package config loads orbitd's service configuration from environment
// variables and an optional config file, using viper. It replaces the
// per-subsystem loadXConfig(logger) functions the teacher wrote by hand
// with one coherent object per subsystem, still returning errors instead
// of panicking on a bad value.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/stargo/internal/auth"
	"github.com/star/stargo/internal/cache"
	"github.com/star/stargo/internal/propagation"
	"github.com/star/stargo/internal/stream"
)

// TLEConfig configures TLE acquisition and the on-disk snapshot cache.
type TLEConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration
}

// CatalogConfig configures the durable SQLite satellite catalog.
type CatalogConfig struct {
	Enabled bool
	Path    string
}

// DiscoveryConfig configures the Celestrak supplemental-elements crawler
// that feeds TLEConfig.ExtraSourceURLs.
type DiscoveryConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Config is the fully resolved service configuration.
type Config struct {
	HTTPAddr  string
	Auth      auth.Config
	Prop      propagation.PropConfig
	Cache     cache.Config
	Stream    stream.Config
	TLE       TLEConfig
	Catalog   CatalogConfig
	Discovery DiscoveryConfig
}

// Load reads configuration from an optional "stargo" config file (searched
// in the current directory and /etc/stargo) and from STARGO_-prefixed
// environment variables, applying the teacher's defaults where neither is
// set. A missing config file is not an error; an invalid value is.
func Load(workers int, logger *slog.Logger) (Config, error) {
	v := viper.New()
	v.SetConfigName("stargo")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/stargo")
	v.SetEnvPrefix("STARGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")

	v.SetDefault("prop.workers", workers)
	v.SetDefault("prop.step_seconds", 5)
	v.SetDefault("prop.horizon_seconds", 600)

	v.SetDefault("cache.step_seconds", 0) // 0 = inherit prop.step_seconds
	v.SetDefault("cache.horizon_seconds", 0)
	v.SetDefault("cache.grace_period_seconds", 30)
	v.SetDefault("cache.buffer_seconds", 60)

	v.SetDefault("stream.max_concurrent_per_ip", 10)
	v.SetDefault("stream.bandwidth_limit_bytes", 1048576)
	v.SetDefault("stream.keepalive_interval_seconds", 30)

	v.SetDefault("tle.enable_fetch", true)
	v.SetDefault("tle.source_url", "")
	v.SetDefault("tle.extra_source_urls", []string{
		"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
	})
	v.SetDefault("tle.cache_dir", "/tmp/stargo/tle")
	v.SetDefault("tle.max_files", 5)
	v.SetDefault("tle.max_age_seconds", 86400)

	v.SetDefault("catalog.enabled", true)
	v.SetDefault("catalog.path", "/tmp/stargo/catalog.db")

	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.interval_seconds", 21600)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		logger.Debug("no stargo config file found, using environment and defaults")
	} else {
		logger.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	cfg := Config{
		HTTPAddr: v.GetString("http.addr"),
		Auth: auth.Config{
			Enabled: v.GetBool("auth.enabled"),
			Token:   v.GetString("auth.token"),
		},
		Prop: propagation.PropConfig{
			Workers: v.GetInt("prop.workers"),
			Step:    time.Duration(v.GetInt("prop.step_seconds")) * time.Second,
			Horizon: time.Duration(v.GetInt("prop.horizon_seconds")) * time.Second,
		},
		Stream: stream.Config{
			MaxConcurrentPerIP: v.GetInt("stream.max_concurrent_per_ip"),
			BandwidthLimit:     v.GetInt("stream.bandwidth_limit_bytes"),
			KeepaliveInterval:  time.Duration(v.GetInt("stream.keepalive_interval_seconds")) * time.Second,
		},
		TLE: TLEConfig{
			EnableFetch:     v.GetBool("tle.enable_fetch"),
			SourceURL:       v.GetString("tle.source_url"),
			ExtraSourceURLs: v.GetStringSlice("tle.extra_source_urls"),
			CacheDir:        v.GetString("tle.cache_dir"),
			MaxFiles:        v.GetInt("tle.max_files"),
			MaxAge:          time.Duration(v.GetInt("tle.max_age_seconds")) * time.Second,
		},
		Catalog: CatalogConfig{
			Enabled: v.GetBool("catalog.enabled"),
			Path:    v.GetString("catalog.path"),
		},
		Discovery: DiscoveryConfig{
			Enabled:  v.GetBool("discovery.enabled"),
			Interval: time.Duration(v.GetInt("discovery.interval_seconds")) * time.Second,
		},
	}

	cacheStep := time.Duration(v.GetInt("cache.step_seconds")) * time.Second
	if cacheStep <= 0 {
		cacheStep = cfg.Prop.Step
	}
	cacheHorizon := time.Duration(v.GetInt("cache.horizon_seconds")) * time.Second
	if cacheHorizon <= 0 {
		cacheHorizon = cfg.Prop.Horizon
	}
	cfg.Cache = cache.Config{
		Step:        cacheStep,
		Horizon:     cacheHorizon,
		GracePeriod: time.Duration(v.GetInt("cache.grace_period_seconds")) * time.Second,
		Buffer:      time.Duration(v.GetInt("cache.buffer_seconds")) * time.Second,
	}

	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		return Config{}, fmt.Errorf("auth.enabled is true but auth.token (STARGO_AUTH_TOKEN) is empty")
	}
	if cfg.Prop.Workers < 1 {
		return Config{}, fmt.Errorf("prop.workers must be at least 1, got %d", cfg.Prop.Workers)
	}

	logger.Info("configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"auth_enabled", cfg.Auth.Enabled,
		"prop_workers", cfg.Prop.Workers,
		"tle_fetch_enabled", cfg.TLE.EnableFetch,
		"catalog_enabled", cfg.Catalog.Enabled,
		"discovery_enabled", cfg.Discovery.Enabled,
	)

	return cfg, nil
}
