package root

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"forestlog/internal/auth"
	"forestlog/internal/config"
	"forestlog/internal/db"
	"forestlog/internal/progression"
	"forestlog/internal/repo"
	"forestlog/internal/service"
)

type app struct {
	cfg    config.Config
	logger *slog.Logger
	conn   *db.DB
	svc    *service.Service
}

func (a *app) Close() {
	if a.conn != nil {
		_ = a.conn.Close()
	}
}

// openApp loads configuration, connects to storage, applies migrations and
// builds the service shared by every subcommand.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	levels, err := progression.LoadLevelTable(cfg.LevelsFile)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, cfg.Dialect(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Dialect(), err)
	}
	if err := db.RunMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	secret := cfg.JWTSecret
	if secret == "" {
		// Only serve requires a real secret; offline commands never issue tokens.
		secret = "offline"
	}
	svc := service.New(repo.New(conn), auth.NewManager(secret, cfg.TokenTTL), service.Options{
		Levels:          levels,
		DefaultTimezone: cfg.DefaultTimezone,
		StoreTimeout:    cfg.StoreTimeout,
		MaxRetries:      cfg.MaxRetries,
		Logger:          logger,
	})
	return &app{cfg: cfg, logger: logger, conn: conn, svc: svc}, nil
}
