// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/eitcorr/internal/cache"
	applog "github.com/ManuGH/eitcorr/internal/log"
	"github.com/ManuGH/eitcorr/internal/metrics"
	"github.com/ManuGH/eitcorr/internal/resilience"
)

// ChannelKey is a broadcaster-local channel identity: either an ATSC
// major/minor pair or a DVB service/network/transport triple, scoped to a
// video source. A zero source matches channels of any source.
type ChannelKey struct {
	SourceID    uint32
	Major       uint16
	Minor       uint16
	ServiceID   uint16
	NetworkID   uint16
	TransportID uint16
	dvb         bool
}

// ATSCChannel builds a key for an ATSC virtual channel.
func ATSCChannel(sourceID uint32, major, minor uint16) ChannelKey {
	return ChannelKey{SourceID: sourceID, Major: major, Minor: minor}
}

// DVBChannel builds a key for a DVB service.
func DVBChannel(sourceID uint32, serviceID, networkID, transportID uint16) ChannelKey {
	return ChannelKey{SourceID: sourceID, ServiceID: serviceID, NetworkID: networkID, TransportID: transportID, dvb: true}
}

// IsDVB reports whether the key uses the service/network/transport schema.
func (k ChannelKey) IsDVB() bool { return k.dvb }

func (k ChannelKey) String() string {
	if k.dvb {
		return fmt.Sprintf("dvb:%d:%d:%d:%d", k.SourceID, k.ServiceID, k.NetworkID, k.TransportID)
	}
	return fmt.Sprintf("atsc:%d:%d:%d", k.SourceID, k.Major, k.Minor)
}

// CacheKey is the key under which a resolution is cached.
func (k ChannelKey) CacheKey() string { return k.String() }

// ChannelLookup is a store answer for one channel key.
type ChannelLookup struct {
	ChanID        int64
	UseOnAirGuide bool
	Found         bool
}

// ChannelStore answers channel lookups against the channel database.
type ChannelStore interface {
	LookupATSC(ctx context.Context, sourceID uint32, major, minor uint16) (ChannelLookup, error)
	LookupDVB(ctx context.Context, sourceID uint32, serviceID, networkID, transportID uint16) (ChannelLookup, error)
}

// ChannelResolver maps channel keys to channel ids. Zero means the events
// of the channel are dropped.
type ChannelResolver interface {
	Resolve(ctx context.Context, key ChannelKey) uint32
}

// ErrorReporter receives channel store failures.
type ErrorReporter func(ctx context.Context, key ChannelKey, err error)

// ResolverOptions configures a Resolver. Cache and Store are required.
type ResolverOptions struct {
	Store    ChannelStore
	Cache    cache.Cache
	TTL      time.Duration
	Breaker  *resilience.CircuitBreaker
	Reporter ErrorReporter
	Logger   *zerolog.Logger
}

// Resolver resolves channel keys through a cache backed by the channel store.
// Only non-zero resolutions are cached so that a channel admitted to the
// guide later is picked up on the next lookup.
type Resolver struct {
	store    ChannelStore
	cache    cache.Cache
	ttl      time.Duration
	breaker  *resilience.CircuitBreaker
	reporter ErrorReporter
	logger   zerolog.Logger
}

// NewResolver builds a resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	r := &Resolver{
		store:    opts.Store,
		cache:    opts.Cache,
		ttl:      opts.TTL,
		breaker:  opts.Breaker,
		reporter: opts.Reporter,
	}
	if opts.Logger != nil {
		r.logger = *opts.Logger
	} else {
		r.logger = applog.WithComponent("resolver")
	}
	if r.reporter == nil {
		r.reporter = r.logLookupError
	}
	return r
}

// Resolve returns the channel id for key, or 0 when the channel is unknown,
// excluded from the guide, or the store could not be reached.
func (r *Resolver) Resolve(ctx context.Context, key ChannelKey) uint32 {
	ck := key.CacheKey()
	if id, ok := r.cache.Get(ck); ok && id != 0 {
		metrics.IncChannelResolution("cache_hit")
		return id
	}

	var res ChannelLookup
	lookup := func() error {
		var err error
		if key.IsDVB() {
			res, err = r.store.LookupDVB(ctx, key.SourceID, key.ServiceID, key.NetworkID, key.TransportID)
		} else {
			res, err = r.store.LookupATSC(ctx, key.SourceID, key.Major, key.Minor)
		}
		return err
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(lookup)
	} else {
		err = lookup()
	}
	if err != nil {
		metrics.IncChannelResolution("error")
		r.reporter(ctx, key, err)
		return 0
	}

	if !res.Found {
		metrics.IncChannelResolution("unknown")
		return 0
	}
	if !res.UseOnAirGuide {
		metrics.IncChannelResolution("excluded")
		return 0
	}

	id := clampChanID(res.ChanID)
	if id == 0 {
		metrics.IncChannelResolution("unknown")
		return 0
	}

	r.cache.Set(ck, id, r.ttl)
	metrics.IncChannelResolution("resolved")
	return id
}

// Forget drops a cached resolution.
func (r *Resolver) Forget(key ChannelKey) {
	r.cache.Delete(key.CacheKey())
}

func (r *Resolver) logLookupError(ctx context.Context, key ChannelKey, err error) {
	logger := applog.WithContext(ctx, r.logger)
	level := zerolog.ErrorLevel
	if errors.Is(err, resilience.ErrCircuitOpen) {
		level = zerolog.WarnLevel
	}
	logger.WithLevel(level).Err(err).
		Str(applog.FieldEvent, "resolver.lookup_failed").
		Str(applog.FieldChannelKey, key.String()).
		Msg("channel lookup failed, dropping events")
}

func clampChanID(id int64) uint32 {
	if id <= 0 || id > math.MaxUint32 {
		return 0
	}
	return uint32(id)
}
