// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import "sync"

// Queue is a FIFO of completed events awaiting persistence. It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	events []*Event
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends events in order.
func (q *Queue) Enqueue(events ...*Event) {
	q.mu.Lock()
	q.events = append(q.events, events...)
	q.mu.Unlock()
}

// Requeue puts events back at the head of the queue in their given order.
func (q *Queue) Requeue(events ...*Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	q.events = append(append(make([]*Event, 0, len(events)+len(q.events)), events...), q.events...)
	q.mu.Unlock()
}

// Pop removes and returns the oldest event.
func (q *Queue) Pop() (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, false
	}
	ev := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return ev, true
}

// Drain removes and returns up to max of the oldest events.
func (q *Queue) Drain(max int) []*Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := min(max, len(q.events))
	if n <= 0 {
		return nil
	}
	out := make([]*Event, n)
	copy(out, q.events[:n])
	clear(q.events[:n])
	q.events = q.events[n:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return out
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Clear drops all queued events.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.events = nil
	q.mu.Unlock()
}
