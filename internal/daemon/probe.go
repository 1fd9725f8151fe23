package daemon

import (
	"context"
	"time"

	"github.com/reyohoho/torrent_player/internal/logctx"
	"golang.org/x/sync/errgroup"
)

// DefaultProbeParallelism bounds how many daemons are probed at once.
const DefaultProbeParallelism = 4

// Health is the result of probing one daemon.
type Health struct {
	Server    Server `json:"server"`
	Online    bool   `json:"online"`
	Version   string `json:"version,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Probe echoes every server concurrently and returns one Health per server, in
// input order. A failing server never aborts the others.
func Probe(ctx context.Context, p Pinger, servers []Server, maxParallel int) []Health {
	logger := logctx.LoggerFromContext(ctx)

	if maxParallel <= 0 {
		maxParallel = DefaultProbeParallelism
	}

	results := make([]Health, len(servers))

	var g errgroup.Group
	g.SetLimit(maxParallel)

	for i, server := range servers {
		g.Go(func() error {
			start := time.Now()
			version, err := p.Echo(ctx, server.BaseURL)

			h := Health{Server: server, LatencyMS: time.Since(start).Milliseconds()}

			if err != nil {
				logger.DebugContext(ctx, "daemon probe failed", "server", server.BaseURL, "err", err)
				h.Error = err.Error()
			} else {
				h.Online = true
				h.Version = version
			}

			results[i] = h

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// Fastest returns the online server with the lowest probe latency.
func Fastest(results []Health) (Server, bool) {
	var (
		best  Health
		found bool
	)

	for _, h := range results {
		if !h.Online {
			continue
		}

		if !found || h.LatencyMS < best.LatencyMS {
			best, found = h, true
		}
	}

	return best.Server, found
}
