package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNilTelemetry_IsSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		tel.RecordSessionOpened()
		tel.RecordSessionClosed("closed")
		tel.RecordPollAttempt("pending")
		tel.RecordTimeToReady("ready", time.Second)
		tel.RecordStatsTick("forwarded")
		tel.RecordPlayerLaunch("success")
		tel.RecordClientOperation("torrserver", "get_status", StatusError, time.Millisecond)
		tel.RecordDBOperation("save", "success", time.Millisecond)
		tel.RecordSystemError("cleanup", "prune")
		tel.RecordHTTPRequest(http.MethodGet, "/sessions", "2xx", time.Millisecond)
	})

	called := false
	err := tel.InstrumentClientOperation(context.Background(), "torrserver", "add_torrent", func(context.Context) error {
		called = true

		return errors.New("boom")
	})
	assert.True(t, called)
	assert.EqualError(t, err, "boom")

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestDisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	err = tel.InstrumentLaunch(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, StatusSuccess, Outcome(nil))
	assert.Equal(t, StatusError, Outcome(errors.New("boom")))
	assert.Equal(t, StatusCancelled, Outcome(fmt.Errorf("poll: %w", context.Canceled)))
}

func TestInstruments_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tel := &Telemetry{}
	require.NoError(t, tel.instruments.register(provider.Meter("test")))

	tel.RecordSessionOpened()
	tel.RecordSessionOpened()
	tel.RecordSessionClosed("closed")

	ctx := context.Background()
	_ = tel.InstrumentClientOperation(ctx, "torrserver", "get_status", func(context.Context) error {
		return context.Canceled
	})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	statuses := map[string]string{}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			for _, dp := range sum.DataPoints {
				sums[m.Name] += dp.Value

				if v, ok := dp.Attributes.Value("status"); ok {
					statuses[m.Name] = v.AsString()
				}
			}
		}
	}

	assert.Equal(t, int64(2), sums["sessions_opened_total"])
	assert.Equal(t, int64(1), sums["sessions_active"])
	assert.Equal(t, int64(1), sums["session_outcomes_total"])
	assert.Equal(t, int64(1), sums["daemon_operations_total"])
	assert.Equal(t, StatusCancelled, statuses["daemon_operations_total"])
}

func TestGetStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusSwitchingProtocols, "1xx"},
		{http.StatusOK, "2xx"},
		{http.StatusNoContent, "2xx"},
		{http.StatusFound, "3xx"},
		{http.StatusNotFound, "4xx"},
		{http.StatusConflict, "4xx"},
		{http.StatusBadGateway, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, getStatusClass(tt.code))
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-id")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "upstream-id", seen)
		assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
	})

	t.Run("rejects control characters", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "bad id\tinjected")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.NotEqual(t, "bad id\tinjected", seen)
		assert.Len(t, seen, 36)
	})
}

func TestMiddleware_CapturesStatus(t *testing.T) {
	tel := &Telemetry{}

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(tel).Middleware, HTTPLogging)
	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/42", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestResponseWriter_SingleWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("ok"))

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, http.StatusAccepted, rw.status)
	assert.Equal(t, int64(2), rw.bytesWritten)
	assert.Same(t, rw, wrapResponseWriter(rw))
}
