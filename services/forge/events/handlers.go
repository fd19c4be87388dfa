// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"log/slog"
	"sync"
)

// LoggingHandler returns a handler that logs every event.
func LoggingHandler(logger *slog.Logger, level slog.Level) Handler {
	return func(event *Event) {
		attrs := []any{
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("transaction_id", event.TransactionID),
			slog.Time("timestamp", event.Timestamp),
		}

		switch data := event.Data.(type) {
		case *SnapshotData:
			attrs = append(attrs,
				slog.String("snapshot_id", data.SnapshotID),
				slog.Int64("archive_size", data.ArchiveSize))
		case *FileData:
			attrs = append(attrs,
				slog.String("path", data.Path),
				slog.String("action", data.Action),
				slog.Int("index", data.Index),
				slog.Int("total", data.Total))
		case *MigrationData:
			attrs = append(attrs,
				slog.String("migration_id", data.MigrationID),
				slog.Int("index", data.Index),
				slog.Int("total", data.Total))
		case *CommandData:
			attrs = append(attrs,
				slog.String("command", data.Command),
				slog.String("phase", data.Phase))
		case *ConflictData:
			attrs = append(attrs,
				slog.String("path", data.Path),
				slog.String("resolution", data.Resolution))
		case *ErrorData:
			attrs = append(attrs,
				slog.String("error", data.Error),
				slog.Bool("recoverable", data.Recoverable))
		}

		logger.Log(nil, level, "apply progress", attrs...)
	}
}

// Counters aggregates event counts by kind.
//
// # Thread Safety
//
// Counters is safe for concurrent use.
type Counters struct {
	mu sync.RWMutex

	filesApplied   int
	migrationsRun  int
	conflicts      int
	rollbacks      int
	rollbackFailed int
}

// NewCounters creates an event counter collector.
func NewCounters() *Counters {
	return &Counters{}
}

// Handler returns the handler feeding the counters.
func (c *Counters) Handler() Handler {
	return func(event *Event) {
		c.mu.Lock()
		defer c.mu.Unlock()

		switch event.Type {
		case TypeFileApplied:
			c.filesApplied++
		case TypeMigrationComplete:
			c.migrationsRun++
		case TypeConflictDetected:
			c.conflicts++
		case TypeRolledBack:
			c.rollbacks++
		case TypeRollbackFailed:
			c.rollbackFailed++
		}
	}
}

// FilesApplied returns the observed applied-file count.
func (c *Counters) FilesApplied() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filesApplied
}

// MigrationsRun returns the observed completed-migration count.
func (c *Counters) MigrationsRun() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.migrationsRun
}

// Conflicts returns the observed conflict count.
func (c *Counters) Conflicts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conflicts
}

// Rollbacks returns the observed rollback count.
func (c *Counters) Rollbacks() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rollbacks
}
