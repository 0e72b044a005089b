// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/eitcorr/internal/cache"
	"github.com/ManuGH/eitcorr/internal/config"
	"github.com/ManuGH/eitcorr/internal/eit"
	applog "github.com/ManuGH/eitcorr/internal/log"
	"github.com/ManuGH/eitcorr/internal/persistence/sqlite"
	"github.com/ManuGH/eitcorr/internal/resilience"
	"github.com/ManuGH/eitcorr/internal/telemetry"
)

const (
	breakerThreshold    = 5
	breakerResetTimeout = 30 * time.Second
)

// Deps are the long-lived components built from the configuration.
type Deps struct {
	Store     *sqlite.Store
	Cache     cache.Cache
	Engine    *eit.Engine
	Breaker   *resilience.CircuitBreaker
	Telemetry *telemetry.Provider

	// cachePing is set for remote cache backends.
	cachePing func(ctx context.Context) error

	closers []func(ctx context.Context) error
}

// Bootstrap opens the store, builds the resolver cache and the engine, and
// starts the tracer provider. On error everything opened so far is closed.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (deps *Deps, err error) {
	logger := applog.WithComponent("bootstrap")
	deps = &Deps{}
	defer func() {
		if err != nil {
			_ = deps.Close(context.WithoutCancel(ctx))
			deps = nil
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return deps, fmt.Errorf("telemetry: %w", err)
	}
	deps.Telemetry = tp
	deps.closers = append(deps.closers, tp.Shutdown)

	store, err := sqlite.NewStore(cfg.DBPath, sqlite.DefaultConfig())
	if err != nil {
		return deps, fmt.Errorf("open store: %w", err)
	}
	deps.Store = store
	deps.closers = append(deps.closers, func(context.Context) error { return store.Close() })

	c, closeCache, err := newCache(cfg.Cache, logger)
	if err != nil {
		return deps, err
	}
	deps.Cache = c
	deps.closers = append(deps.closers, closeCache)
	if rc, ok := c.(*cache.RedisCache); ok {
		deps.cachePing = rc.HealthCheck
	}

	deps.Breaker = resilience.NewCircuitBreaker("channel_store", breakerThreshold, breakerResetTimeout)
	engine, err := NewEngine(cfg, store, c, deps.Breaker)
	if err != nil {
		return deps, err
	}
	deps.Engine = engine
	deps.closers = append(deps.closers, func(context.Context) error { engine.Close(); return nil })

	logger.Info().
		Str(applog.FieldEvent, "bootstrap.done").
		Str("db_path", cfg.DBPath).
		Str("cache", cfg.Cache.Backend).
		Int(applog.FieldSourceID, cfg.EIT.SourceID).
		Msg("components ready")
	return deps, nil
}

func newCache(cfg config.CacheConfig, logger zerolog.Logger) (cache.Cache, func(context.Context) error, error) {
	switch cfg.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		return rc, func(context.Context) error { return rc.Close() }, nil
	default:
		mc := cache.NewMemoryCache(time.Minute)
		return mc, func(context.Context) error { mc.Stop(); return nil }, nil
	}
}

// NewEngine builds an engine resolving channels through store and c. Store
// lookups go through breaker when it is non-nil.
func NewEngine(cfg config.AppConfig, store *sqlite.Store, c cache.Cache, breaker *resilience.CircuitBreaker) (*eit.Engine, error) {
	offset, err := cfg.EIT.UTCOffsetSeconds()
	if err != nil {
		return nil, fmt.Errorf("utc offset: %w", err)
	}
	leap := cfg.EIT.GPSLeapSeconds

	resolver := eit.NewResolver(eit.ResolverOptions{
		Store:   store,
		Cache:   c,
		TTL:     cfg.Cache.TTL,
		Breaker: breaker,
	})

	engine, err := eit.New(eit.Options{
		Resolver:       resolver,
		Persister:      store,
		ChunkSize:      cfg.EIT.ChunkSize,
		InsertTimeout:  cfg.EIT.InsertTimeout,
		UTCOffset:      offset,
		GPSLeapSeconds: &leap,
		SourceID:       uint32(cfg.EIT.SourceID),
		Languages:      cfg.EIT.Languages,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	for key, fix := range cfg.EIT.FixupMap() {
		engine.SetFixup(key.Major, key.Minor, fix)
	}
	return engine, nil
}

// ApplyReload pushes the reloadable EIT settings of next into engine.
// Fixups present in prev but absent from next are cleared.
func ApplyReload(engine *eit.Engine, prev, next config.AppConfig) error {
	offset, err := next.EIT.UTCOffsetSeconds()
	if err != nil {
		return fmt.Errorf("utc offset: %w", err)
	}
	engine.SetUTCOffset(offset)
	engine.SetSourceID(uint32(next.EIT.SourceID))
	engine.SetLanguagePreferences(next.EIT.Languages)

	want := next.EIT.FixupMap()
	for key := range prev.EIT.FixupMap() {
		if _, ok := want[key]; !ok {
			engine.SetFixup(key.Major, key.Minor, 0)
		}
	}
	for key, fix := range want {
		engine.SetFixup(key.Major, key.Minor, fix)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
