package http

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"forestlog/internal/auth"
	"forestlog/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per user in fixed Redis windows.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{client: client, limit: limit, window: window, logger: logger}
}

// Limit rejects requests over the budget with 429. A nil limiter or a Redis
// failure lets the request through.
func (rl *RateLimiter) Limit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil || rl.client == nil || rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := auth.UserIDFromContext(r.Context())
			key := fmt.Sprintf("rate_limit:%s:%s", scope, userID)

			var (
				incr *redis.IntCmd
				ttl  *redis.DurationCmd
			)
			_, err := rl.client.Pipelined(r.Context(), func(pipe redis.Pipeliner) error {
				incr = pipe.Incr(r.Context(), key)
				ttl = pipe.TTL(r.Context(), key)
				return nil
			})
			if err != nil {
				rl.logger.Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			// A counter without an expiry never resets. Set it on the first hit
			// of a window, and again on any later hit if an earlier EXPIRE was lost.
			remaining := ttl.Val()
			if remaining < 0 {
				if err := rl.client.Expire(r.Context(), key, rl.window).Err(); err != nil {
					rl.logger.Warn("rate limit window not set", "key", key, "error", err)
				}
				remaining = rl.window
			}
			if incr.Val() > int64(rl.limit) {
				metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
