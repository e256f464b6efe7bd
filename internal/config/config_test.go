package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"forestlog/internal/db"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("DATABASE_DRIVER")
	os.Unsetenv("JWT_SECRET")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dialect() != db.SQLite || cfg.Port != "8080" || cfg.MaxRetries != 3 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.StoreTimeout != 5*time.Second || cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("durations %v %v", cfg.StoreTimeout, cfg.TokenTTL)
	}
	if err := cfg.ValidateForServe(); err == nil {
		t.Fatalf("expected missing JWT_SECRET to fail serve validation")
	}
}

func TestLoadFromEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("FORESTLOG_TEST_FROM_FILE=1\nLEVELS_FILE=levels.toml\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("LEVELS_FILE", "")
	os.Unsetenv("LEVELS_FILE")
	t.Setenv("FORESTLOG_TEST_FROM_FILE", "")
	os.Unsetenv("FORESTLOG_TEST_FROM_FILE")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/forest")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("CORS_ORIGIN", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dialect() != db.Postgres || cfg.StoreTimeout != 750*time.Millisecond || cfg.MaxRetries != 5 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.LevelsFile != "levels.toml" {
		t.Fatalf("env file not applied: %q", cfg.LevelsFile)
	}
	if got := cfg.Origins(); len(got) != 2 || got[1] != "https://b.example" {
		t.Fatalf("origins=%v", got)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("level=%v", cfg.SlogLevel())
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Fatalf("serve validation: %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"DATABASE_DRIVER":  "mysql",
		"DEFAULT_TIMEZONE": "Mars/Olympus",
		"MAX_RETRIES":      "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected %s=%s to be rejected", key, value)
			}
		})
	}
}
