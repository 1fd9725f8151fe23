package cleanup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reyohoho/torrent_player/internal/cleanup"
	"github.com/reyohoho/torrent_player/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRepo struct {
	storage.PreferenceWriteRepository

	calls  int
	before time.Time
	err    error
}

func (r *recordingRepo) DeleteSelectionsBefore(_ context.Context, before time.Time) (int64, error) {
	r.calls++
	r.before = before

	return 2, r.err
}

func TestPruneSelections(t *testing.T) {
	repo := &recordingRepo{}

	start := time.Now()
	require.NoError(t, cleanup.PruneSelections(context.Background(), repo, 24*time.Hour))

	assert.Equal(t, 1, repo.calls)
	assert.WithinDuration(t, start.Add(-24*time.Hour), repo.before, time.Second)
}

func TestPruneSelections_DisabledRetention(t *testing.T) {
	repo := &recordingRepo{}

	require.NoError(t, cleanup.PruneSelections(context.Background(), repo, 0))
	assert.Zero(t, repo.calls)
}

func TestPruneSelections_Error(t *testing.T) {
	repo := &recordingRepo{err: errors.New("database is locked")}

	err := cleanup.PruneSelections(context.Background(), repo, time.Hour)
	assert.EqualError(t, err, "database is locked")
}
