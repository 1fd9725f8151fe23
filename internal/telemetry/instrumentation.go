package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CARDINALITY:
//
// Attributes on metrics must come from bounded sets. Never attach:
// - session ids, request ids, torrent hashes
// - magnet links, file paths, stream URLs
// - error messages with dynamic content
//
// Safe attributes:
// - operation names ("add_torrent", "get_status", "echo")
// - status values ("success", "error", "cancelled")
// - client types ("torrserver")
// - failure kinds ("auth", "exhausted", ...)
//
// High cardinality data belongs in logs, which carry trace_id and session_id.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// Outcome maps an operation result to a status value. Cancellation is common
// (server re-selection, session close) and is not counted as an error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.Canceled):
		return StatusCancelled
	default:
		return StatusError
	}
}

// InstrumentOperation runs fn inside a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc, attrs ...attribute.KeyValue) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	ctx, span := t.tracer.Start(ctx, operationName)
	defer span.End()

	span.SetAttributes(attribute.String("component", component))
	span.SetAttributes(attrs...)

	err := fn(ctx)

	status := Outcome(err)
	span.SetAttributes(attribute.String("status", status))

	if status == StatusError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// InstrumentDBOperation instruments preference store operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db."+operation, "database", fn,
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation", operation),
	)

	t.RecordDBOperation(operation, Outcome(err), time.Since(start))

	return err
}

// InstrumentClientOperation instruments a call to the torrent daemon.
func (t *Telemetry) InstrumentClientOperation(ctx context.Context, client, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "daemon."+operation, "daemon_client", fn,
		attribute.String("client.type", client),
		attribute.String("client.operation", operation),
	)

	t.RecordClientOperation(client, operation, Outcome(err), time.Since(start))

	return err
}

// InstrumentLaunch instruments an external player launch.
func (t *Telemetry) InstrumentLaunch(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "player.launch", "player", fn)

	t.RecordPlayerLaunch(Outcome(err))

	return err
}
