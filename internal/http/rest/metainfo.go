package rest

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/anacrolix/torrent/metainfo"
)

const maxTorrentSize = 10 * 1024 * 1024

// InvalidContentError represents uploaded .torrent content that cannot be used.
type InvalidContentError struct {
	Reason string
	Err    error
}

func (e *InvalidContentError) Error() string {
	return "invalid torrent: " + e.Reason
}

func (e *InvalidContentError) Unwrap() error {
	return e.Err
}

// magnetFromMetaInfo turns base64 encoded .torrent content into a magnet link the
// daemon can add.
func magnetFromMetaInfo(encoded string) (string, error) {
	torrentBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", &InvalidContentError{Reason: fmt.Sprintf("invalid base64 encoding: %v", err), Err: err}
	}

	// Check size before decoding to bound memory.
	if len(torrentBytes) > maxTorrentSize {
		return "", &InvalidContentError{
			Reason: fmt.Sprintf("size %d bytes exceeds maximum %d bytes", len(torrentBytes), maxTorrentSize),
		}
	}

	mi, err := metainfo.Load(bytes.NewReader(torrentBytes))
	if err != nil {
		return "", &InvalidContentError{Reason: fmt.Sprintf("invalid bencode structure: %v", err), Err: err}
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return "", &InvalidContentError{Reason: "missing or invalid info dictionary", Err: err}
	}

	infoHash := mi.HashInfoBytes()
	magnet := mi.Magnet(&infoHash, &info)

	return magnet.String(), nil
}
