package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/session"
	"github.com/spf13/cobra"
)

var (
	playServer string
	playFiles  []int
	playPlayer string
)

var playCmd = &cobra.Command{
	Use:   "play [magnet-link]",
	Short: "Stream a magnet link into the media player",
	Long: `play submits the magnet link, waits for the daemon to load the torrent
metadata and launches the player on the selected files.

Without --files the selection remembered for this torrent is reused, falling
back to every playable file. Without --server the remembered daemon is used,
otherwise the fastest one that answers.

The command stays attached to the player and exits when the player exits or on
Ctrl+C, closing the session with it. Use "serve" to keep a session open across
player restarts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := withLogger(cmd.Context(), os.Stderr)

		return play(ctx, cmd.OutOrStdout(), args[0])
	},
}

func init() {
	playCmd.Flags().StringVarP(&playServer, "server", "s", "", "Daemon id to use")
	playCmd.Flags().IntSliceVarP(&playFiles, "files", "f", nil, "File ids to play, in order")
	playCmd.Flags().StringVarP(&playPlayer, "player", "p", "", "Player executable (default: remembered or PLAYER_PATH)")
}

func play(ctx context.Context, out io.Writer, magnet string) error {
	deps, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close(ctx)

	server, err := pickServer(ctx, deps, playServer)
	if err != nil {
		return err
	}

	manager := deps.newManager(ctx)
	defer manager.Shutdown()

	s, err := manager.Open(ctx, magnet, server)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "🚀 Submitting %s to %s (%s)\n", s.InfoHash(), server.ID, server.BaseURL)

	events, cancel := s.Subscribe()
	defer cancel()

	selected := false

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\n🛑 Shutting down...")

			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}

			switch e.Kind {
			case session.EventAttempt:
				if e.Attempt == nil {
					continue
				}

				fmt.Fprintf(out, "⏳ Waiting for torrent metadata (%d/%d)\n", e.Attempt.Number, e.Attempt.Max)
			case session.EventFilesAvailable:
				printFiles(out, e.Files)
			case session.EventPhaseChanged:
				if e.Phase != session.PhaseAwaitingSelection || selected {
					continue
				}

				selected = true

				if err := startPlayback(ctx, out, s); err != nil {
					return err
				}
			case session.EventStats:
				printStats(out, e.Stats)
			case session.EventPlayerOutput:
				if e.Player != nil && e.Player.ExitCode != nil {
					fmt.Fprintf(out, "\n👋 %s\n", e.Message)

					return nil
				}
			case session.EventFailed:
				if e.Failure != nil && e.Failure.Kind != session.FailureLaunch {
					return fmt.Errorf("session failed (%s): %s", e.Failure.Kind, e.Failure.Message)
				}
			}
		}
	}
}

// pickServer prefers the requested daemon, then the remembered one, then the
// fastest one that answers a probe.
func pickServer(ctx context.Context, deps *app, id string) (daemon.Server, error) {
	logger := logctx.LoggerFromContext(ctx)

	if id != "" {
		s, ok := deps.server(id)
		if !ok {
			return daemon.Server{}, fmt.Errorf("unknown server %q", id)
		}

		return s, nil
	}

	if selected, err := deps.prefs.SelectedServer(ctx); err != nil {
		logger.Warn("failed to load selected server", "err", err)
	} else if s, ok := deps.server(selected); ok {
		return s, nil
	}

	if s, ok := daemon.Fastest(daemon.Probe(ctx, deps.client, deps.servers, daemon.DefaultProbeParallelism)); ok {
		return s, nil
	}

	if len(deps.servers) == 0 {
		return daemon.Server{}, errors.New("no servers configured")
	}

	logger.Warn("no server answered the probe, using the first one", "server", deps.servers[0].BaseURL)

	return deps.servers[0], nil
}

func startPlayback(ctx context.Context, out io.Writer, s *session.Session) error {
	ids := playFiles

	if len(ids) == 0 {
		remembered, err := s.RememberedSelection(ctx)
		if err != nil {
			logctx.LoggerFromContext(ctx).Warn("failed to load remembered selection", "err", err)
		}

		ids = remembered
	}

	if len(ids) == 0 {
		for _, f := range s.Files() {
			ids = append(ids, f.ID)
		}
	}

	playback, err := s.SelectFiles(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to select files: %w", err)
	}

	result, err := s.Launch(ctx, playPlayer)
	if err != nil {
		return fmt.Errorf("failed to launch player: %w", err)
	}

	fmt.Fprintf(out, "🎬 Started %s (pid %d) with %d files\n", result.Executable, result.PID, len(playback.URLs()))

	if playlist, ok := s.PlaylistURL(); ok {
		fmt.Fprintf(out, "📜 Playlist: %s\n", playlist)
	}

	return nil
}

func printFiles(out io.Writer, files []daemon.File) {
	fmt.Fprintf(out, "📂 %d playable files\n", len(files))

	for _, f := range files {
		fmt.Fprintf(out, "  [%d] %s (%s)\n", f.ID, f.Path, humanize.Bytes(uint64(max(f.Length, 0))))
	}
}

func printStats(out io.Writer, st *daemon.Stats) {
	if st == nil {
		return
	}

	fmt.Fprintf(out, "\r📊 Speed: %s/s | Peers: %d/%d | Size: %s",
		humanize.Bytes(uint64(max(st.DownloadSpeed, 0))),
		st.ActivePeers,
		st.TotalPeers,
		humanize.Bytes(uint64(max(st.TorrentSize, 0))),
	)
}
