package storage

import (
	"context"
	"time"
)

// FileSelection is the remembered set of files a user picked for a torrent.
type FileSelection struct {
	Hash      string
	ServerID  string
	FileIDs   []int
	UpdatedAt time.Time
}

// PreferenceReadRepository reads remembered choices. Missing values are returned
// as zero values without an error.
type PreferenceReadRepository interface {
	SelectedServer(ctx context.Context) (string, error)
	PlayerPath(ctx context.Context) (string, error)
	FileSelection(ctx context.Context, hash string) ([]int, error)
	FileSelections(ctx context.Context) ([]FileSelection, error)
}

type PreferenceWriteRepository interface {
	SaveSelectedServer(ctx context.Context, serverID string) error
	SavePlayerPath(ctx context.Context, path string) error
	SaveFileSelection(ctx context.Context, hash, serverID string, fileIDs []int) error
	DeleteSelectionsBefore(ctx context.Context, before time.Time) (int64, error) // returns the number of removed rows
}

type PreferenceRepository interface {
	PreferenceReadRepository
	PreferenceWriteRepository
}
