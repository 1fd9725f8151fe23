package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reyohoho/torrent_player/internal/config"
	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/player"
	"github.com/reyohoho/torrent_player/internal/session"
	"github.com/reyohoho/torrent_player/internal/storage/sqlite"
	"github.com/reyohoho/torrent_player/internal/telemetry"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	db       *sql.DB
	prefs    *sqlite.InstrumentedPreferenceRepository
	client   *daemon.InstrumentedClient
	launcher *player.Launcher
	servers  []daemon.Server
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return nil, err
	}

	// =========================================================================
	// Start Daemon Client
	client := daemon.NewClient(
		cfg.TorrServerUsername,
		cfg.TorrServerPassword,
		daemon.WithHTTPClient(daemon.NewHTTPClient(cfg.RequestTimeout)),
	)

	return &app{
		cfg:      cfg,
		tel:      tel,
		db:       database,
		prefs:    sqlite.NewInstrumentedPreferenceRepository(database, tel),
		client:   daemon.NewInstrumentedClient(client, tel, "torrserver"),
		launcher: player.NewLauncher(tel),
		servers:  cfg.DaemonServers(),
	}, nil
}

func (a *app) newManager(ctx context.Context, opts ...session.Option) *session.Manager {
	opts = append([]session.Option{
		session.WithPreferences(a.prefs),
		session.WithTelemetry(a.tel),
		session.WithPollInterval(a.cfg.PollInterval),
		session.WithPollMaxAttempts(a.cfg.PollMaxAttempts),
		session.WithStatsInterval(a.cfg.StatsInterval),
		session.WithDefaultPlayer(a.cfg.PlayerPath),
	}, opts...)

	return session.NewManager(ctx, a.client, a.launcher, opts...)
}

// server looks up a configured daemon by id.
func (a *app) server(id string) (daemon.Server, bool) {
	for _, s := range a.servers {
		if s.ID == id {
			return s, true
		}
	}

	return daemon.Server{}, false
}

func (a *app) close(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	if err := a.db.Close(); err != nil {
		logger.Error("failed to close database", "err", err)
	}

	if err := a.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.Error("failed to shutdown telemetry", "err", err)
	}
}
