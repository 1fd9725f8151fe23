package cleanup

import (
	"context"
	"time"

	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/storage"
)

// PruneSelections forgets remembered file selections that were not touched for
// longer than keepDuration. A non-positive keepDuration keeps everything.
func PruneSelections(ctx context.Context, repo storage.PreferenceWriteRepository, keepDuration time.Duration) error {
	if keepDuration <= 0 {
		return nil
	}

	logger := logctx.LoggerFromContext(ctx)
	cutoff := time.Now().Add(-keepDuration)

	removed, err := repo.DeleteSelectionsBefore(ctx, cutoff)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to prune file selections", "cutoff", cutoff, "err", err)

		return err
	}

	if removed > 0 {
		logger.InfoContext(ctx, "Pruned expired file selections", "removed", removed, "cutoff", cutoff)
	}

	return nil
}
