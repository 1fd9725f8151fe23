package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome values shared by the Record helpers.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// pollBuckets covers one poll interval up to a fully used default budget.
var pollBuckets = []float64{0.5, 1, 2, 3, 5, 10, 20, 30, 45, 60}

// instruments are nil on a disabled Telemetry; every recorder tolerates that.
type instruments struct {
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
	httpInFlight metric.Int64UpDownCounter

	sessionsOpened  metric.Int64Counter
	sessionsActive  metric.Int64UpDownCounter
	sessionOutcomes metric.Int64Counter
	pollAttempts    metric.Int64Counter
	pollDuration    metric.Float64Histogram
	statsTicks      metric.Int64Counter
	playerLaunches  metric.Int64Counter

	clientOperations metric.Int64Counter
	clientDuration   metric.Float64Histogram
	dbOperations     metric.Int64Counter
	dbDuration       metric.Float64Histogram

	systemErrors metric.Int64Counter
	uptime       metric.Float64Gauge
}

func (in *instruments) register(m metric.Meter) error {
	counters := []struct {
		dst        *metric.Int64Counter
		name, desc string
	}{
		{&in.httpRequests, "http_requests_total", "Total number of HTTP requests"},
		{&in.sessionsOpened, "sessions_opened_total", "Total number of playback sessions opened"},
		{&in.sessionOutcomes, "session_outcomes_total", "Total number of finished sessions by outcome"},
		{&in.pollAttempts, "poll_attempts_total", "Total number of readiness poll attempts"},
		{&in.statsTicks, "stats_ticks_total", "Total number of stats streamer iterations"},
		{&in.playerLaunches, "player_launches_total", "Total number of external player launches"},
		{&in.clientOperations, "daemon_operations_total", "Total number of torrent daemon calls"},
		{&in.dbOperations, "db_operations_total", "Total number of preference store operations"},
		{&in.systemErrors, "system_errors_total", "Total number of background errors"},
	}

	for _, c := range counters {
		var err error

		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	histograms := []struct {
		dst        *metric.Float64Histogram
		name, desc string
		buckets    []float64
	}{
		{&in.httpDuration, "http_request_duration_seconds", "HTTP request duration in seconds", nil},
		{&in.pollDuration, "poll_duration_seconds", "Time from the first poll attempt to a terminal outcome", pollBuckets},
		{&in.clientDuration, "daemon_operation_duration_seconds", "Torrent daemon call latency in seconds", nil},
		{&in.dbDuration, "db_operation_duration_seconds", "Preference store operation duration in seconds", nil},
	}

	for _, h := range histograms {
		opts := []metric.Float64HistogramOption{metric.WithDescription(h.desc), metric.WithUnit("s")}
		if h.buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(h.buckets...))
		}

		var err error

		*h.dst, err = m.Float64Histogram(h.name, opts...)
		if err != nil {
			return fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
	}

	var err error

	in.httpInFlight, err = m.Int64UpDownCounter("http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"))
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	in.sessionsActive, err = m.Int64UpDownCounter("sessions_active",
		metric.WithDescription("Number of sessions not yet closed"))
	if err != nil {
		return fmt.Errorf("failed to create sessions_active counter: %w", err)
	}

	in.uptime, err = m.Float64Gauge("system_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"), metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

func count(c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c != nil {
		c.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	}
}

func observe(h metric.Float64Histogram, d time.Duration, attrs ...attribute.KeyValue) {
	if h != nil {
		h.Record(context.Background(), d.Seconds(), metric.WithAttributes(attrs...))
	}
}

func shift(u metric.Int64UpDownCounter, n int64) {
	if u != nil {
		u.Add(context.Background(), n)
	}
}

// RecordHTTPRequest records one served request. route must be a pattern, never a raw path.
func (t *Telemetry) RecordHTTPRequest(method, route, statusClass string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", statusClass),
	}

	count(t.httpRequests, attrs...)
	observe(t.httpDuration, duration, attrs...)
}

func (t *Telemetry) IncrementHTTPInFlight() {
	if t != nil {
		shift(t.httpInFlight, 1)
	}
}

func (t *Telemetry) DecrementHTTPInFlight() {
	if t != nil {
		shift(t.httpInFlight, -1)
	}
}

// RecordSessionOpened counts a new session and marks it active.
func (t *Telemetry) RecordSessionOpened() {
	if t != nil {
		count(t.sessionsOpened)
		shift(t.sessionsActive, 1)
	}
}

// RecordSessionClosed records how a session ended and releases its active slot.
// outcome is "closed" or a failure kind.
func (t *Telemetry) RecordSessionClosed(outcome string) {
	if t != nil {
		count(t.sessionOutcomes, attribute.String("outcome", outcome))
		shift(t.sessionsActive, -1)
	}
}

// RecordPollAttempt records one readiness poll attempt ("ready", "pending", "error").
func (t *Telemetry) RecordPollAttempt(result string) {
	if t != nil {
		count(t.pollAttempts, attribute.String("result", result))
	}
}

// RecordTimeToReady records how long a poll took to reach a terminal outcome.
func (t *Telemetry) RecordTimeToReady(outcome string, duration time.Duration) {
	if t != nil {
		observe(t.pollDuration, duration, attribute.String("outcome", outcome))
	}
}

// RecordStatsTick records one stats streamer iteration ("forwarded", "skipped", "error").
func (t *Telemetry) RecordStatsTick(result string) {
	if t != nil {
		count(t.statsTicks, attribute.String("result", result))
	}
}

func (t *Telemetry) RecordPlayerLaunch(status string) {
	if t != nil {
		count(t.playerLaunches, attribute.String("status", status))
	}
}

// RecordClientOperation records one daemon call and its latency.
func (t *Telemetry) RecordClientOperation(client, operation, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("client", client),
		attribute.String("operation", operation),
		attribute.String("status", status),
	}

	count(t.clientOperations, attrs...)
	observe(t.clientDuration, duration, attrs...)
}

func (t *Telemetry) RecordDBOperation(operation, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("status", status),
	}

	count(t.dbOperations, attrs...)
	observe(t.dbDuration, duration, attrs...)
}

// RecordSystemError counts a background failure nobody is waiting on, such as a
// failed cleanup run.
func (t *Telemetry) RecordSystemError(component, errorType string) {
	if t != nil {
		count(t.systemErrors,
			attribute.String("component", component),
			attribute.String("error_type", errorType),
		)
	}
}

// collectUptime records the uptime gauge until ctx is done. Memory and goroutine
// metrics come from the runtime instrumentation.
func (t *Telemetry) collectUptime(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.uptime != nil {
				t.uptime.Record(context.Background(), time.Since(start).Seconds())
			}
		}
	}
}
