package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TICKETDESK_CONFIG", "")
	t.Setenv("GATEWAY_BASE_URL", "")
	t.Setenv("APP_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.App.Port)
	}
	if cfg.Gateway.Timeout() != 15*time.Second {
		t.Errorf("expected 15s gateway timeout, got %s", cfg.Gateway.Timeout())
	}
	if cfg.Session.IdleTTL() != 30*time.Minute {
		t.Errorf("expected 30m idle ttl, got %s", cfg.Session.IdleTTL())
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticketdesk.yaml")
	content := `
gateway:
  base_url: https://tickets.example.com/api/v1
  timeout_seconds: 5
redis:
  addr: cache:6379
  notice_cap: 10
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TICKETDESK_CONFIG", path)
	t.Setenv("GATEWAY_BASE_URL", "")
	t.Setenv("GATEWAY_TIMEOUT_SECONDS", "9")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.BaseURL != "https://tickets.example.com/api/v1" {
		t.Errorf("expected base url from file, got %q", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.TimeoutSeconds != 9 {
		t.Errorf("expected env override 9, got %d", cfg.Gateway.TimeoutSeconds)
	}
	if cfg.Redis.Addr != "cache:6379" || cfg.Redis.NoticeCap != 10 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Redis.NoticeTTLMinutes != 60 {
		t.Errorf("expected default notice ttl to survive partial file, got %d", cfg.Redis.NoticeTTLMinutes)
	}
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("TICKETDESK_CONFIG", "")
	t.Setenv("REDIS_DB", "one")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric REDIS_DB")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("TICKETDESK_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
