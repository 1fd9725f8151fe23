package daemon_test

import (
	"testing"

	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/stretchr/testify/assert"
)

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		file    daemon.File
		hash    string
		want    string
	}{
		{
			"plain path",
			"http://host/",
			daemon.File{ID: 4, Path: "Movie/Movie.S01E01.mkv"},
			"abc123",
			"http://host/stream/Movie/Movie.S01E01.mkv?link=abc123&index=4&play",
		},
		{
			"base without trailing slash",
			"http://host:8090",
			daemon.File{ID: 1, Path: "a.mp4"},
			"h",
			"http://host:8090/stream/a.mp4?link=h&index=1&play",
		},
		{
			"spaces and brackets",
			"http://host/",
			daemon.File{ID: 2, Path: "Show [1080p]/Episode 1.mkv"},
			"abc",
			"http://host/stream/Show%20%5B1080p%5D/Episode%201.mkv?link=abc&index=2&play",
		},
		{
			"reserved characters kept",
			"http://host/",
			daemon.File{ID: 3, Path: "A&B (2020)/it's,fine.mkv"},
			"abc",
			"http://host/stream/A&B%20(2020)/it's,fine.mkv?link=abc&index=3&play",
		},
		{
			"query delimiters encoded",
			"http://host/",
			daemon.File{ID: 5, Path: "what?/#1.mkv"},
			"abc",
			"http://host/stream/what%3F/%231.mkv?link=abc&index=5&play",
		},
		{
			"unicode",
			"http://host/",
			daemon.File{ID: 0, Path: "Фильм.mkv"},
			"abc",
			"http://host/stream/%D0%A4%D0%B8%D0%BB%D1%8C%D0%BC.mkv?link=abc&index=0&play",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, daemon.StreamURL(tt.baseURL, tt.file, tt.hash))
		})
	}
}

func TestPlaylistURL(t *testing.T) {
	assert.Equal(t, "http://host/playlist?hash=abc123", daemon.PlaylistURL("http://host", "abc123"))
	assert.Equal(t, "http://host/playlist?hash=abc123", daemon.PlaylistURL("http://host/", "abc123"))
}
