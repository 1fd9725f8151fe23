package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reyohoho/torrent_player/internal/cleanup"
	"github.com/reyohoho/torrent_player/internal/config"
	"github.com/reyohoho/torrent_player/internal/http/rest"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/notifier"
	"github.com/reyohoho/torrent_player/internal/session"
	"github.com/reyohoho/torrent_player/internal/storage"
	"github.com/reyohoho/torrent_player/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := withLogger(cmd.Context(), os.Stdout)

		logctx.LoggerFromContext(ctx).Info("torrent player starting...", "log_level", cfg.LogLevel)

		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, c *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	deps, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer deps.close(ctx)

	// =========================================================================
	// Start Sessions
	var opts []session.Option

	if c.DiscordWebhookURL != "" {
		opts = append(opts, session.WithObserver(
			notifier.SessionObserver(ctx, notifier.NewDiscordNotifier(c.DiscordWebhookURL)),
		))
	}

	manager := deps.newManager(ctx, opts...)

	// =========================================================================
	// Start API Service
	g, gctx := errgroup.WithContext(ctx)

	server := setupServer(gctx, deps, manager)

	g.Go(func() error {
		logger.Info("initializing API support", "host", c.Web.BindAddress, "servers", len(deps.servers))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	// =========================================================================
	// Start Cleanup
	g.Go(func() error {
		runCleanup(gctx, deps.prefs, deps.tel, c.CleanupInterval, c.SelectionRetention)

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), c.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		manager.Shutdown()

		return nil
	})

	return g.Wait()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, deps *app, manager *session.Manager) *http.Server {
	c := deps.cfg

	handler := rest.NewSessionHandler(c.API.Username, c.API.Password, manager, deps.servers, deps.prefs, deps.client)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID, telemetry.HTTPLogging, telemetry.NewHTTPMiddleware(deps.tel).Middleware)
	r.Handle("/metrics", deps.tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         c.Web.BindAddress,
		ReadTimeout:  c.Web.ReadTimeout,
		WriteTimeout: c.Web.WriteTimeout,
		IdleTimeout:  c.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, c.Telemetry.ServiceName),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func runCleanup(ctx context.Context, repo storage.PreferenceWriteRepository, tel *telemetry.Telemetry, interval, keep time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	if interval <= 0 {
		logger.Info("selection cleanup disabled")

		return
	}

	cleanupTicker := time.NewTicker(interval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-cleanupTicker.C:
			if err := cleanup.PruneSelections(ctx, repo, keep); err != nil {
				logger.Error("failed to prune remembered selections", "err", err)
				tel.RecordSystemError("cleanup", "prune_selections")
			}
		}
	}
}
