package http

import (
	"log/slog"
	"net/http"
	"time"

	"forestlog/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	Service *service.Service
	Limiter *RateLimiter
	Logger  *slog.Logger
	Origins []string
}

func (a *API) Router() http.Handler {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(a.requestLogger)
	r.Use(a.corsMiddleware)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(a.authMiddleware)
			r.Get("/me", a.handleMe)
			r.Patch("/me", a.handleUpdateMe)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.authMiddleware)

		r.Route("/logs", func(r chi.Router) {
			r.With(a.Limiter.Limit("logs")).Post("/", a.handleCreateLog)
			r.Get("/", a.handleListLogs)
			r.Get("/today", a.handleTodayLogs)
			r.Get("/week", a.handleWeek)
		})
		r.Route("/streaks", func(r chi.Router) {
			r.Get("/", a.handleStreaks)
			r.Get("/milestones", a.handleMilestones)
			r.Get("/leaderboard", a.handleLeaderboard)
		})
		r.Get("/export/{format}", a.handleExport)
	})

	r.Route("/share", func(r chi.Router) {
		r.Get("/{token}", a.handlePublicForest)
		r.Group(func(r chi.Router) {
			r.Use(a.authMiddleware)
			r.Post("/", a.handleCreateShare)
			r.Get("/", a.handleListShares)
			r.Delete("/{token}", a.handleRevokeShare)
			r.Post("/{token}/like", a.handleLikeShare)
		})
	})

	return r
}
