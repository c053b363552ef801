package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ultrasense")
	t.Setenv("PORT", "")
	t.Setenv("API_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.APIPort)
	}
	if cfg.AlertThreshold != 100 || cfg.PushChunkSize != 100 || cfg.DispatchWorkers != 4 {
		t.Fatalf("unexpected alert defaults %+v", cfg)
	}
	if cfg.ProviderTimeout != 10*time.Second {
		t.Fatalf("unexpected provider timeout %s", cfg.ProviderTimeout)
	}
	if len(cfg.CORSAllowOrigins) != 1 || cfg.CORSAllowOrigins[0] != "*" {
		t.Fatalf("unexpected CORS default %v", cfg.CORSAllowOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ultrasense")
	t.Setenv("PORT", "8081")
	t.Setenv("ALERT_THRESHOLD_CM", "75.5")
	t.Setenv("PUSH_CHUNK_SIZE", "10")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != 8081 || cfg.AlertThreshold != 75.5 || cfg.PushChunkSize != 10 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ProviderTimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.ProviderTimeout)
	}
	if len(cfg.CORSAllowOrigins) != 2 || cfg.CORSAllowOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowOrigins)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.SlogLevel())
	}
}

func TestLoadRejectsOversizedChunk(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ultrasense")
	t.Setenv("PUSH_CHUNK_SIZE", "500")
	if _, err := Load(); err == nil {
		t.Fatalf("expected chunk size validation error")
	}
}

func TestLoadRejectsNonPositiveThreshold(t *testing.T) {
	for _, v := range []string{"0", "-5", "NaN", "+Inf"} {
		t.Setenv("DATABASE_URL", "postgres://localhost/ultrasense")
		t.Setenv("ALERT_THRESHOLD_CM", v)
		if _, err := Load(); err == nil {
			t.Fatalf("ALERT_THRESHOLD_CM=%s: expected validation error", v)
		}
	}
}
