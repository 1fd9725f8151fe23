// Package poller repeatedly asks the daemon for a torrent's status until it
// reports ready, the attempt budget runs out, or the caller cancels.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/telemetry"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 50
)

var (
	// ErrCancelled is returned when the context ends before the torrent is ready.
	ErrCancelled = errors.New("poll cancelled")
	// ErrExhausted is returned after MaxAttempts attempts without a ready status.
	ErrExhausted = errors.New("poll attempts exhausted")
	// ErrNoContent is returned when the daemon reports ready with an empty file list.
	ErrNoContent = errors.New("torrent is ready but lists no files")
)

// Attempt describes one completed poll attempt.
type Attempt struct {
	Number int
	Max    int
	Stat   int
	Ready  bool
	Err    error
}

// Poller drives GetStatus with a fixed delay between attempts.
type Poller struct {
	client      daemon.API
	interval    time.Duration
	maxAttempts int
	telemetry   *telemetry.Telemetry

	// OnAttempt, when set, is called synchronously after every attempt.
	OnAttempt func(ctx context.Context, a Attempt)
}

// Option customizes a Poller.
type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(p *Poller) {
		p.telemetry = t
	}
}

func WithOnAttempt(fn func(ctx context.Context, a Attempt)) Option {
	return func(p *Poller) {
		p.OnAttempt = fn
	}
}

func New(client daemon.API, opts ...Option) *Poller {
	p := &Poller{
		client:      client,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Interval returns the configured delay between attempts.
func (p *Poller) Interval() time.Duration { return p.interval }

// MaxAttempts returns the configured attempt budget.
func (p *Poller) MaxAttempts() int { return p.maxAttempts }

// PollUntilReady calls GetStatus until the daemon reports ready. The context is
// checked before the first attempt, after every call and during every wait, so
// cancellation never starts another request. A request already in flight is left
// to finish on its own.
//
// Transport and request errors count against the budget and are retried. An
// AuthError is returned immediately.
func (p *Poller) PollUntilReady(ctx context.Context, baseURL, hash string) (*daemon.Status, error) {
	logger := logctx.LoggerFromContext(ctx).With("hash", hash)
	start := time.Now()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			if timer == nil {
				timer = time.NewTimer(p.interval)
			} else {
				timer.Reset(p.interval)
			}

			select {
			case <-ctx.Done():
				p.telemetry.RecordTimeToReady("cancelled", time.Since(start))

				return nil, fmt.Errorf("%w after %d attempts: %w", ErrCancelled, attempt-1, context.Cause(ctx))
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			p.telemetry.RecordTimeToReady("cancelled", time.Since(start))

			return nil, fmt.Errorf("%w before first attempt: %w", ErrCancelled, context.Cause(ctx))
		}

		status, err := p.client.GetStatus(ctx, baseURL, hash)

		if ctx.Err() != nil {
			p.telemetry.RecordTimeToReady("cancelled", time.Since(start))

			return nil, fmt.Errorf("%w after %d attempts: %w", ErrCancelled, attempt, context.Cause(ctx))
		}

		a := Attempt{Number: attempt, Max: p.maxAttempts, Err: err}
		if status != nil {
			a.Stat = status.Stat
			a.Ready = status.Ready()
		}

		p.report(ctx, a)

		if err != nil {
			var authErr *daemon.AuthError
			if errors.As(err, &authErr) {
				p.telemetry.RecordTimeToReady("auth", time.Since(start))

				return nil, err
			}

			logger.DebugContext(ctx, "status request failed, will retry",
				"attempt", attempt, "max_attempts", p.maxAttempts, "err", err)

			continue
		}

		if !a.Ready {
			continue
		}

		if len(status.Files) == 0 {
			p.telemetry.RecordTimeToReady("no_content", time.Since(start))

			return nil, ErrNoContent
		}

		p.telemetry.RecordTimeToReady("ready", time.Since(start))

		logger.DebugContext(ctx, "torrent ready", "attempt", attempt, "files", len(status.Files))

		return status, nil
	}

	p.telemetry.RecordTimeToReady("exhausted", time.Since(start))

	return nil, fmt.Errorf("%w: %d attempts", ErrExhausted, p.maxAttempts)
}

func (p *Poller) report(ctx context.Context, a Attempt) {
	switch {
	case a.Err != nil:
		p.telemetry.RecordPollAttempt("error")
	case a.Ready:
		p.telemetry.RecordPollAttempt("ready")
	default:
		p.telemetry.RecordPollAttempt("pending")
	}

	if p.OnAttempt != nil {
		p.OnAttempt(ctx, a)
	}
}
