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
	"time"

	"github.com/google/uuid"
)

// Handler is a function that processes events.
type Handler func(event *Event)

// subscriberQueueSize bounds each subscriber's pending event queue.
// When a queue is full the event is dropped for that subscriber
// instead of stalling the producer.
const subscriberQueueSize = 64

// Subscription registers a handler for a subset of event types.
type Subscription struct {
	// ID uniquely identifies this subscription.
	ID string

	// Handler processes matching events.
	Handler Handler

	// Types limits which event types to handle (nil = all types).
	Types []Type

	ch   chan *Event
	done chan struct{}
}

// Emitter broadcasts progress events to subscribers.
//
// # Description
//
// Each subscriber is served by its own goroutine reading from a
// bounded queue. Emit enqueues without waiting; a subscriber whose
// queue is full misses the event, so a slow or blocked consumer can
// never stall or fail the transaction producing the events. Handler
// panics are recovered. Recent events are kept in a bounded ring for
// late joiners.
//
// # Thread Safety
//
// Emitter is safe for concurrent use.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	buffer        []Event
	bufferSize    int
	transactionID string
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the retained-event buffer size.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		if size > 0 {
			e.bufferSize = size
		}
	}
}

// WithTransactionID stamps all events with a transaction ID.
func WithTransactionID(id string) EmitterOption {
	return func(e *Emitter) {
		e.transactionID = id
	}
}

// NewEmitter creates an event emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    256,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.buffer = make([]Event, 0, e.bufferSize)
	return e
}

// Subscribe registers a handler for the given event types (none means
// all). Returns the subscription ID for Unsubscribe.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	sub := &Subscription{
		ID:      uuid.NewString(),
		Handler: handler,
		Types:   types,
		ch:      make(chan *Event, subscriberQueueSize),
		done:    make(chan struct{}),
	}

	go func() {
		for ev := range sub.ch {
			invoke(sub.Handler, ev)
		}
		close(sub.done)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriptions[sub.ID] = sub
	return sub.ID
}

// Unsubscribe removes a subscription and waits for its already-queued
// events to finish dispatching. Returns false if unknown.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	sub, ok := e.subscriptions[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.subscriptions, id)
	e.mu.Unlock()

	close(sub.ch)
	<-sub.done
	return true
}

// Emit broadcasts an event to all matching subscribers. It enqueues
// and returns; it never waits on a subscriber.
func (e *Emitter) Emit(eventType Type, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	event := Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		TransactionID: e.transactionID,
		Timestamp:     time.Now(),
		Data:          data,
	}

	if len(e.buffer) >= e.bufferSize {
		e.buffer = e.buffer[1:]
	}
	e.buffer = append(e.buffer, event)

	for _, sub := range e.subscriptions {
		if !matches(sub, event.Type) {
			continue
		}
		select {
		case sub.ch <- &event:
		default:
			slog.Debug("subscriber queue full, dropping event",
				"subscription_id", sub.ID,
				"event_type", event.Type)
		}
	}
}

// invoke calls a handler with panic recovery so one failing consumer
// cannot take the pipeline down.
func invoke(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"event_type", event.Type,
				"event_id", event.ID,
				"panic", r)
		}
	}()
	handler(event)
}

func matches(sub *Subscription, t Type) bool {
	if len(sub.Types) == 0 {
		return true
	}
	for _, want := range sub.Types {
		if want == t {
			return true
		}
	}
	return false
}

// SetTransactionID updates the transaction ID stamped on future events.
func (e *Emitter) SetTransactionID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transactionID = id
}

// Buffer returns a copy of retained events in emission order.
func (e *Emitter) Buffer() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Event, len(e.buffer))
	copy(out, e.buffer)
	return out
}

// BufferByType returns retained events of one type.
func (e *Emitter) BufferByType(t Type) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Event
	for _, ev := range e.buffer {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions)
}
