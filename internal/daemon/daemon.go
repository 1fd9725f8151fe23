// Package daemon talks to a remote TorrServer-compatible torrent daemon over its
// HTTP/JSON protocol. It is a plain request/response mapper: retries, timers and
// session state belong to the callers.
package daemon

import (
	"context"
	"strings"
)

// StatReady is the only "stat" value the daemon documents: the torrent metadata is
// loaded and the file listing can be trusted. Every other value means "not yet".
const StatReady = 3

// Server is a configured daemon endpoint. BaseURL always ends with a slash so that
// protocol paths can be appended directly.
type Server struct {
	ID       string `json:"id"`
	BaseURL  string `json:"base_url"`
	Location string `json:"location"`
}

// NewServer builds a Server, normalizing the base URL.
func NewServer(id, baseURL, location string) Server {
	return Server{
		ID:       id,
		BaseURL:  NormalizeBaseURL(baseURL),
		Location: location,
	}
}

// NormalizeBaseURL trims whitespace and guarantees a single trailing slash.
func NormalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}

	return strings.TrimRight(baseURL, "/") + "/"
}

// File is one entry of the daemon's file listing.
type File struct {
	ID     int    `json:"id"`
	Path   string `json:"path"`
	Length int64  `json:"length"`
}

// Stats is a full snapshot of the transfer counters reported by the daemon.
type Stats struct {
	TotalPeers          int     `json:"total_peers"`
	ActivePeers         int     `json:"active_peers"`
	PendingPeers        int     `json:"pending_peers"`
	DownloadSpeed       float64 `json:"download_speed"`
	UploadSpeed         float64 `json:"upload_speed"`
	TorrentSize         int64   `json:"torrent_size"`
	ClientDownloadSpeed float64 `json:"client_download_speed"`
}

// Status is the daemon's answer to a "get" action.
type Status struct {
	Stat int
	// Stats is nil when the daemon did not include any transfer counters.
	Stats *Stats
	Files []File
}

// Ready reports whether the daemon declared the torrent ready.
func (s *Status) Ready() bool {
	return s != nil && s.Stat == StatReady
}

// Pinger is implemented by clients that can check a daemon's health.
type Pinger interface {
	Echo(ctx context.Context, baseURL string) (string, error)
}

// API is the contract the poller, the stats streamer and the orchestrator depend on.
type API interface {
	AddTorrent(ctx context.Context, baseURL, magnetURI string) (string, error)
	GetStatus(ctx context.Context, baseURL, hash string) (*Status, error)
}
