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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_SubscribeAndEmit(t *testing.T) {
	e := NewEmitter(WithTransactionID("tx-1"))

	var mu sync.Mutex
	var received []*Event
	id := e.Subscribe(func(ev *Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	})

	e.Emit(TypeSnapshotCreated, &SnapshotData{SnapshotID: "snap-1"})
	e.Emit(TypeComplete, nil)
	// Unsubscribe drains the queue, so delivery is complete after it.
	e.Unsubscribe(id)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, TypeSnapshotCreated, received[0].Type)
	assert.Equal(t, "tx-1", received[0].TransactionID)
	assert.NotEmpty(t, received[0].ID)
}

func TestEmitter_TypeFilter(t *testing.T) {
	e := NewEmitter()

	var mu sync.Mutex
	var got []Type
	id := e.Subscribe(func(ev *Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Type)
	}, TypeRolledBack, TypeRollbackFailed)

	e.Emit(TypeFileApplied, nil)
	e.Emit(TypeRolledBack, nil)
	e.Emit(TypeVerifying, nil)
	e.Unsubscribe(id)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Type{TypeRolledBack}, got)
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter()

	var mu sync.Mutex
	calls := 0
	id := e.Subscribe(func(*Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	e.Emit(TypeValidating, nil)

	assert.True(t, e.Unsubscribe(id))
	assert.False(t, e.Unsubscribe(id))
	e.Emit(TypeValidating, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, e.SubscriptionCount())
}

func TestEmitter_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	e := NewEmitter()

	panicID := e.Subscribe(func(*Event) { panic("boom") })
	var mu sync.Mutex
	seen := 0
	seenID := e.Subscribe(func(*Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	// Must not panic outward, and the second handler still runs.
	assert.NotPanics(t, func() {
		e.Emit(TypeFileApplying, &FileData{Path: "a.go"})
	})
	e.Unsubscribe(panicID)
	e.Unsubscribe(seenID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen)
}

func TestEmitter_SlowSubscriberDoesNotBlockEmit(t *testing.T) {
	e := NewEmitter()

	release := make(chan struct{})
	e.Subscribe(func(*Event) { <-release })

	// Overfill the subscriber's queue while the handler is blocked.
	// Every Emit must still return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberQueueSize+16; i++ {
			e.Emit(TypeFileApplied, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}
	close(release)

	// The ring buffer still recorded every emission.
	assert.Len(t, e.BufferByType(TypeFileApplied), subscriberQueueSize+16)
}

func TestEmitter_BufferBounded(t *testing.T) {
	e := NewEmitter(WithBufferSize(3))

	for i := 0; i < 5; i++ {
		e.Emit(TypeFileApplied, nil)
	}

	buf := e.Buffer()
	assert.Len(t, buf, 3)
}

func TestEmitter_BufferByType(t *testing.T) {
	e := NewEmitter()

	e.Emit(TypeFileApplied, nil)
	e.Emit(TypeMigrationComplete, nil)
	e.Emit(TypeFileApplied, nil)

	assert.Len(t, e.BufferByType(TypeFileApplied), 2)
	assert.Len(t, e.BufferByType(TypeMigrationComplete), 1)
	assert.Empty(t, e.BufferByType(TypeRolledBack))
}

func TestCounters_TrackEventKinds(t *testing.T) {
	e := NewEmitter()
	c := NewCounters()
	id := e.Subscribe(c.Handler())

	e.Emit(TypeFileApplied, nil)
	e.Emit(TypeFileApplied, nil)
	e.Emit(TypeMigrationComplete, nil)
	e.Emit(TypeConflictDetected, &ConflictData{Path: "a.go"})
	e.Emit(TypeRolledBack, nil)
	e.Unsubscribe(id)

	assert.Equal(t, 2, c.FilesApplied())
	assert.Equal(t, 1, c.MigrationsRun())
	assert.Equal(t, 1, c.Conflicts())
	assert.Equal(t, 1, c.Rollbacks())
}
