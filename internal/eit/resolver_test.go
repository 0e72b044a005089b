// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/eitcorr/internal/cache"
	"github.com/ManuGH/eitcorr/internal/resilience"
)

// countingStore answers lookups from fixed results and counts calls.
type countingStore struct {
	mu        sync.Mutex
	atsc      ChannelLookup
	dvb       ChannelLookup
	err       error
	atscCalls int
	dvbCalls  int
	lastDVB   [4]uint32
}

func (s *countingStore) LookupATSC(_ context.Context, _ uint32, _, _ uint16) (ChannelLookup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atscCalls++
	return s.atsc, s.err
}

func (s *countingStore) LookupDVB(_ context.Context, source uint32, sid, onid, tsid uint16) (ChannelLookup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dvbCalls++
	s.lastDVB = [4]uint32{source, uint32(sid), uint32(onid), uint32(tsid)}
	return s.dvb, s.err
}

func (s *countingStore) set(l ChannelLookup) {
	s.mu.Lock()
	s.atsc, s.dvb = l, l
	s.mu.Unlock()
}

func newTestResolver(store ChannelStore, opts ...func(*ResolverOptions)) *Resolver {
	o := ResolverOptions{Store: store, Cache: cache.NewMemoryCache(0)}
	for _, fn := range opts {
		fn(&o)
	}
	return NewResolver(o)
}

func TestResolver_CachesNonZero(t *testing.T) {
	store := &countingStore{atsc: ChannelLookup{ChanID: 1071, UseOnAirGuide: true, Found: true}}
	r := newTestResolver(store)
	key := ATSCChannel(1, 7, 1)

	for range 5 {
		assert.Equal(t, uint32(1071), r.Resolve(context.Background(), key))
	}
	assert.Equal(t, 1, store.atscCalls)

	r.Forget(key)
	assert.Equal(t, uint32(1071), r.Resolve(context.Background(), key))
	assert.Equal(t, 2, store.atscCalls)
}

func TestResolver_ZeroIsNeverCached(t *testing.T) {
	tests := []struct {
		name   string
		lookup ChannelLookup
	}{
		{name: "excluded from guide", lookup: ChannelLookup{ChanID: 1071, UseOnAirGuide: false, Found: true}},
		{name: "unknown channel", lookup: ChannelLookup{}},
		{name: "negative id", lookup: ChannelLookup{ChanID: -4, UseOnAirGuide: true, Found: true}},
		{name: "id beyond range", lookup: ChannelLookup{ChanID: math.MaxUint32 + 1, UseOnAirGuide: true, Found: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &countingStore{atsc: tt.lookup}
			r := newTestResolver(store)
			key := ATSCChannel(1, 7, 1)

			for range 3 {
				assert.Zero(t, r.Resolve(context.Background(), key))
			}
			assert.Equal(t, 3, store.atscCalls)
		})
	}
}

func TestResolver_AdmissionFlipIsObserved(t *testing.T) {
	store := &countingStore{}
	store.set(ChannelLookup{ChanID: 2001, UseOnAirGuide: false, Found: true})
	r := newTestResolver(store)
	key := DVBChannel(0, 4287, 9018, 4164)

	assert.Zero(t, r.Resolve(context.Background(), key))

	store.set(ChannelLookup{ChanID: 2001, UseOnAirGuide: true, Found: true})
	assert.Equal(t, uint32(2001), r.Resolve(context.Background(), key))
	assert.Equal(t, [4]uint32{0, 4287, 9018, 4164}, store.lastDVB)
	assert.Equal(t, 2, store.dvbCalls)
	assert.Zero(t, store.atscCalls)
}

func TestResolver_SchemasDoNotShareCacheEntries(t *testing.T) {
	store := &countingStore{}
	store.set(ChannelLookup{ChanID: 5, UseOnAirGuide: true, Found: true})
	r := newTestResolver(store)

	r.Resolve(context.Background(), ATSCChannel(1, 7, 1))
	r.Resolve(context.Background(), DVBChannel(1, 7, 1, 0))
	assert.Equal(t, 1, store.atscCalls)
	assert.Equal(t, 1, store.dvbCalls)
	assert.NotEqual(t, ATSCChannel(1, 7, 1).CacheKey(), DVBChannel(1, 7, 1, 0).CacheKey())
}

func TestResolver_StoreFailureIsReported(t *testing.T) {
	boom := errors.New("database is locked")
	store := &countingStore{err: boom}

	var reported []error
	r := newTestResolver(store, func(o *ResolverOptions) {
		o.Reporter = func(_ context.Context, _ ChannelKey, err error) { reported = append(reported, err) }
	})

	assert.Zero(t, r.Resolve(context.Background(), ATSCChannel(1, 7, 1)))
	assert.Zero(t, r.Resolve(context.Background(), ATSCChannel(1, 7, 1)))
	require.Len(t, reported, 2)
	assert.ErrorIs(t, reported[0], boom)
	assert.Equal(t, 2, store.atscCalls, "failures are not retried synchronously")
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestResolver_BreakerShieldsStore(t *testing.T) {
	store := &countingStore{err: errors.New("unreachable")}
	clk := &stepClock{now: time.Unix(0, 0)}
	breaker := resilience.NewCircuitBreaker("test_channel_store", 2, time.Minute, resilience.WithClock(clk))

	var reported []error
	r := newTestResolver(store, func(o *ResolverOptions) {
		o.Breaker = breaker
		o.Reporter = func(_ context.Context, _ ChannelKey, err error) { reported = append(reported, err) }
	})

	for range 4 {
		assert.Zero(t, r.Resolve(context.Background(), ATSCChannel(1, 7, 1)))
	}
	assert.Equal(t, 2, store.atscCalls, "open breaker must not reach the store")
	require.Len(t, reported, 4)
	assert.ErrorIs(t, reported[3], resilience.ErrCircuitOpen)

	store.mu.Lock()
	store.err = nil
	store.atsc = ChannelLookup{ChanID: 9, UseOnAirGuide: true, Found: true}
	store.mu.Unlock()
	clk.now = clk.now.Add(2 * time.Minute)

	assert.Equal(t, uint32(9), r.Resolve(context.Background(), ATSCChannel(1, 7, 1)))
	assert.Equal(t, resilience.StateClosed, breaker.State())
}
