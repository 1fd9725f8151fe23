package session

import (
	"encoding/json"
	"slices"

	"github.com/reyohoho/torrent_player/internal/daemon"
)

// PlaybackRequest is the chosen files of a ready torrent with their stream URLs,
// in selection order. It never changes after construction.
type PlaybackRequest struct {
	hash  string
	files []daemon.File
	urls  []string
}

func newPlaybackRequest(baseURL, hash string, files []daemon.File) *PlaybackRequest {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, daemon.StreamURL(baseURL, f, hash))
	}

	return &PlaybackRequest{
		hash:  hash,
		files: slices.Clone(files),
		urls:  urls,
	}
}

func (r *PlaybackRequest) Hash() string {
	return r.hash
}

// Files returns a copy of the selected files.
func (r *PlaybackRequest) Files() []daemon.File {
	return slices.Clone(r.files)
}

// URLs returns a copy of the stream URLs, one per selected file.
func (r *PlaybackRequest) URLs() []string {
	return slices.Clone(r.urls)
}

// FileIDs returns the daemon ids of the selected files.
func (r *PlaybackRequest) FileIDs() []int {
	ids := make([]int, 0, len(r.files))
	for _, f := range r.files {
		ids = append(ids, f.ID)
	}

	return ids
}

func (r *PlaybackRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Hash  string        `json:"hash"`
		Files []daemon.File `json:"files"`
		URLs  []string      `json:"urls"`
	}{r.hash, r.files, r.urls})
}
