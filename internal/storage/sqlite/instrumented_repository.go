package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/reyohoho/torrent_player/internal/storage"
	"github.com/reyohoho/torrent_player/internal/telemetry"
)

// InstrumentedPreferenceRepository wraps PreferenceRepository with telemetry.
type InstrumentedPreferenceRepository struct {
	repo      *PreferenceRepository
	telemetry *telemetry.Telemetry
}

var _ storage.PreferenceRepository = (*InstrumentedPreferenceRepository)(nil)

// NewInstrumentedPreferenceRepository creates a new instrumented preference repository.
func NewInstrumentedPreferenceRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedPreferenceRepository {
	return &InstrumentedPreferenceRepository{
		repo:      NewPreferenceRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedPreferenceRepository) SelectedServer(ctx context.Context) (string, error) {
	var result string

	err := r.telemetry.InstrumentDBOperation(ctx, "get_selected_server", func(ctx context.Context) error {
		var err error
		result, err = r.repo.SelectedServer(ctx)

		return err
	})

	return result, err
}

func (r *InstrumentedPreferenceRepository) SaveSelectedServer(ctx context.Context, serverID string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_selected_server", func(ctx context.Context) error {
		return r.repo.SaveSelectedServer(ctx, serverID)
	})
}

func (r *InstrumentedPreferenceRepository) PlayerPath(ctx context.Context) (string, error) {
	var result string

	err := r.telemetry.InstrumentDBOperation(ctx, "get_player_path", func(ctx context.Context) error {
		var err error
		result, err = r.repo.PlayerPath(ctx)

		return err
	})

	return result, err
}

func (r *InstrumentedPreferenceRepository) SavePlayerPath(ctx context.Context, path string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_player_path", func(ctx context.Context) error {
		return r.repo.SavePlayerPath(ctx, path)
	})
}

func (r *InstrumentedPreferenceRepository) FileSelection(ctx context.Context, hash string) ([]int, error) {
	var result []int

	err := r.telemetry.InstrumentDBOperation(ctx, "get_file_selection", func(ctx context.Context) error {
		var err error
		result, err = r.repo.FileSelection(ctx, hash)

		return err
	})

	return result, err
}

func (r *InstrumentedPreferenceRepository) FileSelections(ctx context.Context) ([]storage.FileSelection, error) {
	var result []storage.FileSelection

	err := r.telemetry.InstrumentDBOperation(ctx, "list_file_selections", func(ctx context.Context) error {
		var err error
		result, err = r.repo.FileSelections(ctx)

		return err
	})

	return result, err
}

func (r *InstrumentedPreferenceRepository) SaveFileSelection(ctx context.Context, hash, serverID string, fileIDs []int) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_file_selection", func(ctx context.Context) error {
		return r.repo.SaveFileSelection(ctx, hash, serverID, fileIDs)
	})
}

func (r *InstrumentedPreferenceRepository) DeleteSelectionsBefore(ctx context.Context, before time.Time) (int64, error) {
	var removed int64

	err := r.telemetry.InstrumentDBOperation(ctx, "delete_file_selections", func(ctx context.Context) error {
		var err error
		removed, err = r.repo.DeleteSelectionsBefore(ctx, before)

		return err
	})

	return removed, err
}
