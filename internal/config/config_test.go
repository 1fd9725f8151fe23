package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/reyohoho/torrent_player/internal/config"
	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TORRSERVER_URLS", "http://one:8090,http://two:8090/")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 50, cfg.PollMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.StatsInterval)
	assert.Equal(t, 720*time.Hour, cfg.SelectionRetention)
	assert.Equal(t, "torrent_player.db", cfg.DBPath)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadConfig_MissingURLs(t *testing.T) {
	t.Setenv("TORRSERVER_URLS", "")

	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_InvalidAttempts(t *testing.T) {
	t.Setenv("TORRSERVER_URLS", "http://one:8090")
	t.Setenv("POLL_MAX_ATTEMPTS", "0")

	_, err := config.LoadConfig()
	assert.ErrorContains(t, err, "poll max attempts")
}

func TestDaemonServers(t *testing.T) {
	cfg := &config.Config{
		TorrServerURLs:      []string{"http://one:8090", " http://two:8090/ ", ""},
		TorrServerLocations: []string{"Amsterdam"},
		TorrServerIDs:       []string{"ams", ""},
	}

	assert.Equal(t, []daemon.Server{
		{ID: "ams", BaseURL: "http://one:8090/", Location: "Amsterdam"},
		{ID: "2", BaseURL: "http://two:8090/", Location: ""},
	}, cfg.DaemonServers())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &config.Config{LogLevel: tt.level}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}
