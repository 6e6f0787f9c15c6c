package config

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(4, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.Auth.Enabled {
		t.Error("Auth.Enabled should default to false")
	}
	if cfg.Prop.Workers != 4 {
		t.Errorf("Prop.Workers = %d, want 4 (the passed-in default)", cfg.Prop.Workers)
	}
	if !cfg.TLE.EnableFetch {
		t.Error("TLE.EnableFetch should default to true")
	}
	if !cfg.Catalog.Enabled {
		t.Error("Catalog.Enabled should default to true")
	}
	if cfg.Discovery.Enabled {
		t.Error("Discovery.Enabled should default to false")
	}
	// Cache step/horizon of 0 must inherit from Prop.
	if cfg.Cache.Step != cfg.Prop.Step {
		t.Errorf("Cache.Step = %v, want to inherit Prop.Step %v", cfg.Cache.Step, cfg.Prop.Step)
	}
	if cfg.Cache.Horizon != cfg.Prop.Horizon {
		t.Errorf("Cache.Horizon = %v, want to inherit Prop.Horizon %v", cfg.Cache.Horizon, cfg.Prop.Horizon)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STARGO_HTTP_ADDR", ":9090")
	t.Setenv("STARGO_AUTH_ENABLED", "true")
	t.Setenv("STARGO_AUTH_TOKEN", "secret")
	t.Setenv("STARGO_PROP_WORKERS", "2")
	t.Setenv("STARGO_CACHE_STEP_SECONDS", "10")

	cfg, err := Load(4, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Token != "secret" {
		t.Errorf("Auth = %+v, want enabled with token 'secret'", cfg.Auth)
	}
	if cfg.Prop.Workers != 2 {
		t.Errorf("Prop.Workers = %d, want 2", cfg.Prop.Workers)
	}
	if cfg.Cache.Step.Seconds() != 10 {
		t.Errorf("Cache.Step = %v, want 10s", cfg.Cache.Step)
	}
}

func TestLoadRejectsAuthEnabledWithoutToken(t *testing.T) {
	t.Setenv("STARGO_AUTH_ENABLED", "true")
	t.Setenv("STARGO_AUTH_TOKEN", "")

	if _, err := Load(4, testLogger()); err == nil {
		t.Fatal("expected error when auth is enabled with an empty token")
	}
}

func TestLoadRejectsZeroWorkers(t *testing.T) {
	t.Setenv("STARGO_PROP_WORKERS", "0")

	if _, err := Load(4, testLogger()); err == nil {
		t.Fatal("expected error for prop.workers < 1")
	}
}
