package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/reyohoho/torrent_player/internal/daemon"
)

// Config struct for environment variables.
type Config struct {
	TorrServerURLs      []string `envconfig:"TORRSERVER_URLS" required:"true"`
	TorrServerLocations []string `envconfig:"TORRSERVER_LOCATIONS"`
	TorrServerIDs       []string `envconfig:"TORRSERVER_IDS"`
	TorrServerUsername  string   `envconfig:"TORRSERVER_USERNAME"`
	TorrServerPassword  string   `envconfig:"TORRSERVER_PASSWORD"`

	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	PollMaxAttempts int           `envconfig:"POLL_MAX_ATTEMPTS" default:"50"`
	StatsInterval   time.Duration `envconfig:"STATS_INTERVAL" default:"500ms"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	PlayerPath         string        `envconfig:"PLAYER_PATH"`
	DBPath             string        `envconfig:"DB_PATH" default:"torrent_player.db"`
	SelectionRetention time.Duration `envconfig:"SELECTION_RETENTION" default:"720h"`
	CleanupInterval    time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL  string        `envconfig:"DISCORD_WEBHOOK_URL"`

	API struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9095"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}

	Telemetry struct {
		Enabled        bool   `split_words:"true" default:"true"`
		ServiceName    string `split_words:"true" default:"torrent_player"`
		ServiceVersion string `split_words:"true" default:"dev"`
		OTLPEndpoint   string `envconfig:"OTLP_ENDPOINT"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values envconfig cannot express as tags.
func (c *Config) Validate() error {
	if len(c.TorrServerURLs) == 0 {
		return errors.New("at least one TorrServer URL is required")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}

	if c.PollMaxAttempts < 1 {
		return fmt.Errorf("poll max attempts must be at least 1, got %d", c.PollMaxAttempts)
	}

	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be positive, got %s", c.StatsInterval)
	}

	return nil
}

// DaemonServers zips the configured URLs, locations and ids into daemon servers.
// Missing ids default to the 1-based position; missing locations stay empty.
func (c *Config) DaemonServers() []daemon.Server {
	servers := make([]daemon.Server, 0, len(c.TorrServerURLs))

	for i, raw := range c.TorrServerURLs {
		if strings.TrimSpace(raw) == "" {
			continue
		}

		id := strconv.Itoa(i + 1)
		if i < len(c.TorrServerIDs) && strings.TrimSpace(c.TorrServerIDs[i]) != "" {
			id = strings.TrimSpace(c.TorrServerIDs[i])
		}

		var location string
		if i < len(c.TorrServerLocations) {
			location = strings.TrimSpace(c.TorrServerLocations[i])
		}

		servers = append(servers, daemon.NewServer(id, raw, location))
	}

	return servers
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
