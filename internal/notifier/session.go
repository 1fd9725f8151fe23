package notifier

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/session"
)

// OutcomeMessage renders the session events worth a chat message. Progress noise
// such as poll attempts and stats ticks is skipped.
func OutcomeMessage(e session.Event) (string, bool) {
	switch e.Kind {
	case session.EventFilesAvailable:
		var total int64
		for _, f := range e.Files {
			total += f.Length
		}

		return fmt.Sprintf("📂 Torrent %s is ready: %d playable files (%s)",
			e.Hash, len(e.Files), humanize.Bytes(uint64(max(total, 0)))), true
	case session.EventPlayerLaunched:
		if e.Player == nil {
			return "", false
		}

		return fmt.Sprintf("▶️ Playing %d files from %s in %s", len(e.URLs), e.Hash, e.Player.Executable), true
	case session.EventFailed:
		if e.Failure == nil || e.Failure.Kind == session.FailureCancelled {
			return "", false
		}

		return fmt.Sprintf("❌ Session %s failed (%s): %s", e.SessionID, e.Failure.Kind, e.Failure.Message), true
	default:
		return "", false
	}
}

// SessionObserver forwards the outcome of every session to n. The returned func
// is meant for session.WithObserver.
func SessionObserver(ctx context.Context, n Notifier) func(session.Event) {
	logger := logctx.LoggerFromContext(ctx)

	return func(e session.Event) {
		msg, ok := OutcomeMessage(e)
		if !ok {
			return
		}

		if err := n.Notify(ctx, msg); err != nil {
			logger.ErrorContext(ctx, "failed to send notification", "session_id", e.SessionID, "kind", e.Kind, "err", err)
		}
	}
}
