// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// staticResolver resolves every key to id and counts calls.
type staticResolver struct {
	mu    sync.Mutex
	id    uint32
	calls int
	keys  []ChannelKey
}

func (r *staticResolver) Resolve(_ context.Context, key ChannelKey) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.keys = append(r.keys, key)
	return r.id
}

// memPersister keeps committed events in memory.
type memPersister struct {
	mu        sync.Mutex
	committed []*Event
	begun     int
	beginErr  error
	commitErr error
	insertErr func(*Event) error
}

func (p *memPersister) BeginChunk(context.Context) (Chunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	p.begun++
	return &memChunk{p: p}, nil
}

func (p *memPersister) Events() []*Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Event(nil), p.committed...)
}

type memChunk struct {
	p       *memPersister
	pending []*Event
	done    bool
}

func (c *memChunk) Insert(_ context.Context, ev *Event, _ time.Duration) (int, error) {
	if c.p.insertErr != nil {
		if err := c.p.insertErr(ev); err != nil {
			return 0, err
		}
	}
	c.pending = append(c.pending, ev)
	return 1, nil
}

func (c *memChunk) Commit() error {
	if c.done {
		return errors.New("chunk already finished")
	}
	c.done = true
	if c.p.commitErr != nil {
		return c.p.commitErr
	}
	c.p.mu.Lock()
	c.p.committed = append(c.p.committed, c.pending...)
	c.p.mu.Unlock()
	return nil
}

func (c *memChunk) Rollback() error {
	c.done = true
	c.pending = nil
	return nil
}

func noTimeFix(t time.Time, _ Fixup) time.Time { return t }

// gpsTime is the UTC instant of a GPS second count with the default leap correction.
func gpsTime(raw uint32) time.Time {
	return gpsEpoch.Add(time.Duration(int64(raw)-DefaultGPSLeapSeconds) * time.Second)
}
