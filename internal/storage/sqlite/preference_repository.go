package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reyohoho/torrent_player/internal/storage"
)

const (
	keySelectedServer = "selected_server"
	keyPlayerPath     = "player_path"
)

type PreferenceRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPreferenceRepository(dbConn *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: dbConn, now: time.Now}
}

func (r *PreferenceRepository) SelectedServer(ctx context.Context) (string, error) {
	return r.setting(ctx, keySelectedServer)
}

func (r *PreferenceRepository) SaveSelectedServer(ctx context.Context, serverID string) error {
	return r.saveSetting(ctx, keySelectedServer, serverID)
}

func (r *PreferenceRepository) PlayerPath(ctx context.Context) (string, error) {
	return r.setting(ctx, keyPlayerPath)
}

func (r *PreferenceRepository) SavePlayerPath(ctx context.Context, path string) error {
	return r.saveSetting(ctx, keyPlayerPath, path)
}

// FileSelection returns the file ids remembered for hash, or nil.
func (r *PreferenceRepository) FileSelection(ctx context.Context, hash string) ([]int, error) {
	var raw string

	err := r.db.QueryRowContext(ctx, `SELECT file_ids FROM file_selections WHERE hash = ?`, hash).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var ids []int
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("corrupt file selection for %s: %w", hash, err)
	}

	return ids, nil
}

func (r *PreferenceRepository) FileSelections(ctx context.Context) ([]storage.FileSelection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT hash, server_id, file_ids, updated_at FROM file_selections ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var selections []storage.FileSelection

	for rows.Next() {
		var (
			record    storage.FileSelection
			raw       string
			updatedAt string
		)

		if err := rows.Scan(&record.Hash, &record.ServerID, &raw, &updatedAt); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(raw), &record.FileIDs); err != nil {
			return nil, fmt.Errorf("corrupt file selection for %s: %w", record.Hash, err)
		}

		record.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp for %s: %w", record.Hash, err)
		}

		selections = append(selections, record)
	}

	return selections, rows.Err()
}

// SaveFileSelection remembers fileIDs for hash, replacing any earlier choice.
func (r *PreferenceRepository) SaveFileSelection(ctx context.Context, hash, serverID string, fileIDs []int) error {
	raw, err := json.Marshal(fileIDs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO file_selections (hash, server_id, file_ids, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			server_id = excluded.server_id,
			file_ids = excluded.file_ids,
			updated_at = excluded.updated_at
	`, hash, serverID, string(raw), r.timestamp())

	return err
}

// DeleteSelectionsBefore forgets selections last saved before the given time.
func (r *PreferenceRepository) DeleteSelectionsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_selections WHERE updated_at < ?`,
		before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *PreferenceRepository) setting(ctx context.Context, key string) (string, error) {
	var value string

	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	return value, err
}

func (r *PreferenceRepository) saveSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, r.timestamp())

	return err
}

// timestamp is stored as fixed-width UTC RFC3339 so that string order is time order.
func (r *PreferenceRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}
