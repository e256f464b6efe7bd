package root

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	api "forestlog/internal/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.ValidateForServe(); err != nil {
				return err
			}

			var limiter *api.RateLimiter
			if a.cfg.RedisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
				defer client.Close()
				if err := client.Ping(ctx).Err(); err != nil {
					a.logger.Warn("redis unreachable, rate limiting degrades to pass-through", "addr", a.cfg.RedisAddr, "error", err)
				}
				limiter = api.NewRateLimiter(client, a.cfg.RateLimitPerMinute, time.Minute, a.logger)
			}

			handler := &api.API{
				Service: a.svc,
				Limiter: limiter,
				Logger:  a.logger,
				Origins: a.cfg.Origins(),
			}
			srv := &http.Server{
				Addr:              ":" + a.cfg.Port,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server listening", "port", a.cfg.Port, "driver", string(a.conn.Dialect))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("server shutdown error", "error", err)
				return err
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
}
