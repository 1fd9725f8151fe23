// Package stats streams transfer statistics of an active torrent on a fixed tick.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/telemetry"
	"golang.org/x/time/rate"
)

const DefaultInterval = 500 * time.Millisecond

// Snapshot is one forwarded stats tick.
type Snapshot struct {
	Hash  string
	Stats daemon.Stats
	At    time.Time
}

// Streamer starts stats loops. A Streamer has no per-torrent state and can be shared.
type Streamer struct {
	client    daemon.API
	interval  time.Duration
	telemetry *telemetry.Telemetry
}

// Option customizes a Streamer.
type Option func(*Streamer)

func WithInterval(d time.Duration) Option {
	return func(s *Streamer) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Streamer) {
		s.telemetry = t
	}
}

func NewStreamer(client daemon.API, opts ...Option) *Streamer {
	s := &Streamer{
		client:   client,
		interval: DefaultInterval,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handle controls one running stats loop.
type Handle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Stop ends the loop and waits for it to exit. No snapshot is delivered and no
// daemon call is started after Stop returns. Safe to call more than once, but not
// from inside the snapshot callback.
func (h *Handle) Stop() {
	h.stopOnce.Do(h.cancel)
	<-h.done
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start launches a loop that fetches the torrent status every interval and passes
// ready snapshots carrying stats to onSnapshot. Failures are logged and dropped.
// The loop ends when ctx is done or Stop is called.
func (s *Streamer) Start(ctx context.Context, baseURL, hash string, onSnapshot func(Snapshot)) *Handle {
	ctx, cancel := context.WithCancel(ctx)

	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer cancel()

		s.run(ctx, baseURL, hash, onSnapshot)
	}()

	return h
}

func (s *Streamer) run(ctx context.Context, baseURL, hash string, onSnapshot func(Snapshot)) {
	logger := logctx.LoggerFromContext(ctx).With("hash", hash)
	errLog := rate.Sometimes{First: 1, Interval: 30 * time.Second}
	speedLog := rate.Sometimes{Interval: 10 * time.Second}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.DebugContext(ctx, "stats stream started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "stats stream stopped")

			return
		case <-ticker.C:
		}

		status, err := s.client.GetStatus(ctx, baseURL, hash)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			s.telemetry.RecordStatsTick("error")
			errLog.Do(func() {
				logger.WarnContext(ctx, "failed to fetch transfer stats", "err", err)
			})

			continue
		}

		if !status.Ready() || status.Stats == nil {
			s.telemetry.RecordStatsTick("skipped")

			continue
		}

		s.telemetry.RecordStatsTick("forwarded")

		speedLog.Do(func() {
			logger.InfoContext(ctx, "download speed (server): "+humanBytes(status.Stats.DownloadSpeed)+"/s",
				"active_peers", status.Stats.ActivePeers,
				"total_peers", status.Stats.TotalPeers,
				"torrent_size", humanBytes(float64(status.Stats.TorrentSize)),
			)
		})

		if onSnapshot != nil {
			onSnapshot(Snapshot{Hash: hash, Stats: *status.Stats, At: time.Now()})
		}
	}
}

func humanBytes(v float64) string {
	if v < 0 {
		v = 0
	}

	return humanize.Bytes(uint64(v))
}
