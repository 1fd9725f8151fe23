// Package media decides which torrent files an external player can stream.
package media

import (
	"path"
	"slices"
	"strings"

	"github.com/reyohoho/torrent_player/internal/daemon"
)

// videoExtensions is the static table of container formats handed to the player.
var videoExtensions = []string{
	"webm", "mkv", "flv", "vob", "ogv", "ogg", "rrc", "gifv", "mng", "mov", "avi",
	"qt", "wmv", "yuv", "rm", "asf", "amv", "mp4", "m4p", "m4v", "mpg", "mp2", "mpeg",
	"mpe", "mpv", "svi", "3gp", "3g2", "mxf", "roq", "nsv", "f4v", "f4p", "f4a", "f4b",
	"mod", "m2ts", "ts",
}

var extensionSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(videoExtensions))
	for _, ext := range videoExtensions {
		set[ext] = struct{}{}
	}

	return set
}()

// Extensions returns a copy of the recognized extensions, without dots.
func Extensions() []string {
	return slices.Clone(videoExtensions)
}

// IsPlayable reports whether p ends with a recognized extension. Case is ignored.
func IsPlayable(p string) bool {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" {
		return false
	}

	_, ok := extensionSet[strings.ToLower(ext)]

	return ok
}

// Classify keeps the playable files, in the daemon's order and with the daemon's ids.
// The result is never nil.
func Classify(files []daemon.File) []daemon.File {
	out := make([]daemon.File, 0, len(files))

	for _, f := range files {
		if IsPlayable(f.Path) {
			out = append(out, f)
		}
	}

	return out
}
