package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Name != "triage-service" {
		t.Errorf("App.Name = %s, want triage-service", cfg.App.Name)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %s, want 0.0.0.0:8080", cfg.App.Addr())
	}
	if cfg.App.RequestTimeout() != 30*time.Second {
		t.Errorf("RequestTimeout() = %v, want 30s", cfg.App.RequestTimeout())
	}
	if cfg.Auth.AccessTokenTTLMinutes != 60 || cfg.Auth.BcryptCost != 12 {
		t.Errorf("Auth defaults = %d/%d, want 60/12", cfg.Auth.AccessTokenTTLMinutes, cfg.Auth.BcryptCost)
	}
	if cfg.Audit.AppendMaxAttempts != 3 {
		t.Errorf("AppendMaxAttempts = %d, want 3", cfg.Audit.AppendMaxAttempts)
	}
	if cfg.Audit.ChangelogCacheTTL() != 30*time.Second {
		t.Errorf("ChangelogCacheTTL() = %v, want 30s", cfg.Audit.ChangelogCacheTTL())
	}
	if !cfg.Postgres.RunMigrations {
		t.Error("RunMigrations must default to true")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "5")
	t.Setenv("AUDIT_APPEND_MAX_ATTEMPTS", "7")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.App.Port)
	}
	if cfg.App.RequestTimeout() != 5*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5s", cfg.App.RequestTimeout())
	}
	if cfg.Audit.AppendMaxAttempts != 7 {
		t.Errorf("AppendMaxAttempts = %d, want 7", cfg.Audit.AppendMaxAttempts)
	}
	if cfg.Postgres.RunMigrations {
		t.Error("RunMigrations override not applied")
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("Redis.DB = %d, want 2", cfg.Redis.DB)
	}
}

func TestLoadRejectsMalformedRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("malformed REDIS_DB must fail Load")
	}
}
