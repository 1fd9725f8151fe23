package media_test

import (
	"testing"

	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPlayable(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"Movie/Movie.S01E01.mkv", true},
		{"clip.MP4", true},
		{"stream.m2ts", true},
		{"broadcast.ts", true},
		{"Movie/Movie.srt", false},
		{"Movie/sample.nfo", false},
		{"cover.jpg", false},
		{"README", false},
		{"mkv", false},
		{"folder.mkv/readme.txt", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, media.IsPlayable(tt.path))
		})
	}
}

func TestClassify(t *testing.T) {
	files := []daemon.File{
		{ID: 1, Path: "Show/S01E02.mkv", Length: 10},
		{ID: 2, Path: "Show/S01E02.srt", Length: 1},
		{ID: 5, Path: "Show/S01E01.AVI", Length: 20},
		{ID: 3, Path: "Show/poster.png", Length: 2},
		{ID: 9, Path: "Show/Extras/trailer.webm", Length: 5},
	}

	got := media.Classify(files)

	assert.Equal(t, []daemon.File{
		{ID: 1, Path: "Show/S01E02.mkv", Length: 10},
		{ID: 5, Path: "Show/S01E01.AVI", Length: 20},
		{ID: 9, Path: "Show/Extras/trailer.webm", Length: 5},
	}, got)
}

func TestClassify_Idempotent(t *testing.T) {
	inputs := [][]daemon.File{
		nil,
		{},
		{{ID: 1, Path: "a.srt"}},
		{{ID: 4, Path: "b.mkv"}, {ID: 2, Path: "a.mp4"}, {ID: 3, Path: "c.txt"}},
		{{ID: 0, Path: "x.TS"}, {ID: 0, Path: "y.ts"}},
	}

	for _, in := range inputs {
		once := media.Classify(in)
		assert.Equal(t, once, media.Classify(once))
	}
}

func TestClassify_NothingPlayable(t *testing.T) {
	got := media.Classify([]daemon.File{{ID: 1, Path: "a.srt"}, {ID: 2, Path: "b.nfo"}})

	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtensions_ReturnsCopy(t *testing.T) {
	exts := media.Extensions()
	require.Contains(t, exts, "mkv")

	exts[0] = "srt"

	assert.False(t, media.IsPlayable("a.srt"))
	assert.NotEqual(t, "srt", media.Extensions()[0])
}
