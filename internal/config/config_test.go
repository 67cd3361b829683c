package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
redis:
  addr: localhost:6379
quiz:
  settle_delay: 2s
  merge_retries: 3
certificates:
  one_per_course: true
telemetry:
  stream: telemetry:events
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Quiz.MergeRetries != 3 || !cfg.Certificates.OnePerCourse || cfg.Telemetry.Stream != "telemetry:events" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := Duration(cfg.Quiz.SettleDelay, time.Second); got != 2*time.Second {
		t.Fatalf("expected 2s settle delay, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDurationFallback(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"not-a-duration", 5 * time.Second},
		{"250ms", 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := Duration(tt.raw, 5*time.Second); got != tt.want {
			t.Fatalf("Duration(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("REDIS_ADDR=cache:6379\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("REDIS_ADDR", "")
	os.Unsetenv("REDIS_ADDR")
	t.Setenv("POSTGRES_URL", "postgres://env/db")

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing env file must be ignored: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("postgres:\n  url: postgres://file/db\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Postgres.URL != "postgres://env/db" || cfg.Redis.Addr != "cache:6379" {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
}
