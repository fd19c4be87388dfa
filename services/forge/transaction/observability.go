// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transaction

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const transactionTracerName = "forgeline.transaction"

// Tracer provides OpenTelemetry tracing for apply transactions.
//
// # Description
//
// Wraps the OpenTelemetry tracer with apply-specific span creation and
// attribute management. When disabled, returns noop spans for zero
// overhead.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a new transaction tracer.
//
// # Inputs
//
//   - logger: Logger for structured logging. Uses slog.Default() if nil.
//   - enabled: Whether tracing is enabled. When false, uses noop spans.
//
// # Outputs
//
//   - *Tracer: Ready-to-use tracer instance.
func NewTracer(logger *slog.Logger, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  otel.Tracer(transactionTracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartApply starts the root span for one apply transaction.
//
// # Inputs
//
//   - ctx: Parent context for span creation.
//   - txID: Transaction identifier.
//   - bundleID: ID of the bundle being applied.
//   - files: Number of file operations in the bundle.
//
// # Outputs
//
//   - context.Context: Context with span attached.
//   - trace.Span: The created span. Caller must call End() when done.
func (t *Tracer) StartApply(ctx context.Context, txID, bundleID string, files int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	ctx, span := t.tracer.Start(ctx, "transaction.apply",
		trace.WithAttributes(
			attribute.String("tx.id", txID),
			attribute.String("tx.bundle_id", truncateForTrace(bundleID, 36)),
			attribute.Int("tx.files", files),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	t.logger.DebugContext(ctx, "starting apply transaction",
		slog.String("tx_id", txID),
		slog.String("bundle_id", bundleID),
	)

	return ctx, span
}

// EndApply completes an apply span.
//
// # Inputs
//
//   - span: The span to end.
//   - result: The transaction result (may be nil on early failure).
//   - err: Error if the transaction failed.
func (t *Tracer) EndApply(span trace.Span, result *ApplyResult, err error) {
	if span == nil {
		return
	}
	defer span.End()

	if result != nil {
		span.SetAttributes(
			attribute.String("tx.state", string(result.State)),
			attribute.Int("tx.files_applied", result.FilesApplied),
			attribute.Bool("tx.critical", result.Critical),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// RecordStateTransition records a state machine transition on the active
// span.
//
// # Inputs
//
//   - ctx: Context containing the active span.
//   - txID: Transaction identifier.
//   - from: Previous state.
//   - to: New state.
//   - duration: Time spent in the previous state.
func (t *Tracer) RecordStateTransition(ctx context.Context, txID string, from, to State, duration time.Duration) {
	span := trace.SpanFromContext(ctx)
	// Note: SpanFromContext returns noop span (not nil) when no span exists.
	// We check validity to avoid unnecessary calls to noop spans.
	if span.SpanContext().IsValid() {
		span.AddEvent("state_transition",
			trace.WithAttributes(
				attribute.String("tx.id", txID),
				attribute.String("tx.from_state", string(from)),
				attribute.String("tx.to_state", string(to)),
				attribute.Int64("tx.duration_in_state_ms", duration.Milliseconds()),
			),
		)
	}

	t.logger.DebugContext(ctx, "transaction state transition",
		slog.String("tx_id", txID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Duration("duration", duration),
	)
}

// truncateForTrace truncates a string for use in span attributes.
// Prevents excessive memory usage from long strings.
func truncateForTrace(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 4 {
		if maxLen <= 0 {
			return ""
		}
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// LoggerWithTrace returns a logger with trace_id and span_id fields when
// the context carries a valid span, for correlation with distributed
// traces.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
