package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/reyohoho/torrent_player/internal/config"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "torrent_player",
	Short: "Stream torrents through TorrServer into a local media player",
	Long: `torrent_player hands magnet links to a TorrServer daemon, waits until the
torrent metadata is ready, lets you pick the playable files and starts an
external player on the daemon's stream URLs.

Run "serve" for the HTTP API or "play" to stream a single magnet link from the
terminal. Daemons are configured through TORRSERVER_URLS.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		cfg = loaded

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, playCmd, serversCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "err", err)
		stop()
		os.Exit(1)
	}
}

// withLogger installs a JSON logger writing to w as the default and on ctx.
func withLogger(ctx context.Context, w io.Writer) context.Context {
	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	return logctx.WithLogger(ctx, logger)
}
