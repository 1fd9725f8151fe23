package daemon

import (
	"net/url"
	"strconv"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// StreamURL builds the playback link for one file of a torrent:
//
//	{base}stream/{path}?link={hash}&index={id}&play
//
// The path is escaped the way browsers escape a full URI, so directory separators and
// other reserved characters survive while spaces and non-ASCII bytes are encoded.
func StreamURL(baseURL string, file File, hash string) string {
	var b strings.Builder

	b.WriteString(NormalizeBaseURL(baseURL))
	b.WriteString("stream/")
	b.WriteString(escapePath(file.Path))
	b.WriteString("?link=")
	b.WriteString(url.QueryEscape(hash))
	b.WriteString("&index=")
	b.WriteString(strconv.Itoa(file.ID))
	b.WriteString("&play")

	return b.String()
}

// PlaylistURL returns the daemon-generated playlist resource for a torrent.
func PlaylistURL(baseURL, hash string) string {
	return NormalizeBaseURL(baseURL) + "playlist?hash=" + url.QueryEscape(hash)
}

// escapePath percent-encodes every byte outside the URI unreserved and reserved sets.
// '?' and '#' are encoded as well since a literal one would end the path.
func escapePath(p string) string {
	var b strings.Builder

	b.Grow(len(p))

	for i := 0; i < len(p); i++ {
		c := p[i]
		if keepInPath(c) {
			b.WriteByte(c)

			continue
		}

		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}

	return b.String()
}

func keepInPath(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}

	return strings.IndexByte(";,/:@&=+$-_.!~*'()", c) >= 0
}
