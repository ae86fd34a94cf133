package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const watchShutdownTimeout = 5 * time.Second

func newWatchCmd(app *app) *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
		runFor      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the entitlement verified and export metrics",
		Long:  "Run in the foreground, verifying the entitlement whenever the last check is older than the verify interval. With --metrics-addr, Prometheus metrics are served on /metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}

			ctx := cmd.Context()
			if runFor > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, runFor)
				defer cancel()
			}

			if metricsAddr != "" {
				stop, err := serveMetrics(ctx, app, metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}

			return watchLoop(ctx, app, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "How often to check whether verification is due")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	cmd.Flags().DurationVar(&runFor, "for", 0, "Stop after this long (default: until interrupted)")

	return cmd
}

func watchLoop(ctx context.Context, app *app, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := app.manager.VerifySubscriptionIfNeeded(ctx); err != nil && ctx.Err() == nil {
			app.logger.Warn().Err(err).Msg("scheduled verification failed")
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func serveMetrics(ctx context.Context, app *app, addr string) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}

	router := newWatchRouter(app.registry, func() statusOutput {
		return newStatusOutput(app.manager.State(), app.now(), app.settings.Verify.Interval)
	})
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	app.logger.Info().Str("addr", listener.Addr().String()).Msg("serving metrics")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), watchShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

func newWatchRouter(gatherer prometheus.Gatherer, status func() statusOutput) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = writeJSON(w, status())
	})

	return r
}
