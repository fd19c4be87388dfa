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
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for apply metrics.
var meter = otel.Meter("forgeline.transaction")

// Metric instruments for apply operations.
var (
	applyTotal       metric.Int64Counter
	rollbackTotal    metric.Int64Counter
	applyDuration    metric.Float64Histogram
	filesApplied     metric.Int64Histogram
	conflictsTotal   metric.Int64Counter
	activeGauge      metric.Int64UpDownCounter
	snapshotDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
// Set by the Applier on initialization.
//
// Thread Safety: Uses atomic operations for safe concurrent access.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Safe for concurrent use.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// initMetrics initializes all metric instruments.
// Safe to call multiple times; uses sync.Once internally.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		applyTotal, err = meter.Int64Counter(
			"apply_total",
			metric.WithDescription("Total number of apply transactions by terminal state"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbackTotal, err = meter.Int64Counter(
			"apply_rollback_total",
			metric.WithDescription("Total number of rollbacks by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		applyDuration, err = meter.Float64Histogram(
			"apply_duration_seconds",
			metric.WithDescription("Duration of apply transactions in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesApplied, err = meter.Int64Histogram(
			"apply_files_applied",
			metric.WithDescription("Number of file operations per transaction"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		conflictsTotal, err = meter.Int64Counter(
			"apply_conflicts_total",
			metric.WithDescription("Total number of conflicts detected, by resolution"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		activeGauge, err = meter.Int64UpDownCounter(
			"apply_active",
			metric.WithDescription("Number of apply transactions currently in flight"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		snapshotDuration, err = meter.Float64Histogram(
			"apply_snapshot_duration_seconds",
			metric.WithDescription("Time spent creating the pre-apply snapshot"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordApply records a finished transaction.
func recordApply(ctx context.Context, state State, duration time.Duration, files int) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("state", string(state)))
	applyTotal.Add(ctx, 1, attrs)
	applyDuration.Record(ctx, duration.Seconds(), attrs)
	filesApplied.Record(ctx, int64(files), attrs)
}

// recordRollback records a rollback attempt and its outcome.
func recordRollback(ctx context.Context, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "success"
	if !success {
		status = "error"
	}
	rollbackTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// recordConflict records one detected conflict and how it was resolved.
func recordConflict(ctx context.Context, resolution Resolution) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	conflictsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resolution", string(resolution)),
	))
}

// recordSnapshot records the time taken by snapshot creation.
func recordSnapshot(ctx context.Context, duration time.Duration) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	snapshotDuration.Record(ctx, duration.Seconds())
}

// incActive increments the in-flight transaction gauge.
func incActive(ctx context.Context) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	activeGauge.Add(ctx, 1)
}

// decActive decrements the in-flight transaction gauge.
func decActive(ctx context.Context) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	activeGauge.Add(ctx, -1)
}
