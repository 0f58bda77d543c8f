package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("QUIZ_REDIS_ADDR", "localhost:6380")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `server:
  port: "9090"
  allowed_origins: ["http://localhost:3000"]
log:
  level: debug
redis:
  addr: ${QUIZ_REDIS_ADDR}
  publish_events: true
sessions:
  ttl: 30m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Redis.Addr != "localhost:6380" || !cfg.Redis.PublishEvents {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
	if got := TTLDuration(cfg.Sessions.TTL, time.Hour); got != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %s", got)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for empty, got %s", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for garbage, got %s", got)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("QUIZ_DOTENV_A=from-file\nQUIZ_DOTENV_B=from-file\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("QUIZ_DOTENV_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("QUIZ_DOTENV_B") })

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if os.Getenv("QUIZ_DOTENV_A") != "from-env" {
		t.Fatalf("existing variable was overridden")
	}
	if os.Getenv("QUIZ_DOTENV_B") != "from-file" {
		t.Fatalf("expected variable from file, got %q", os.Getenv("QUIZ_DOTENV_B"))
	}
}
