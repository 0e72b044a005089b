// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon owns the long-running process: it holds the data dir lock,
// serves the ingest API and runs the driver and config watcher until the
// context is cancelled.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/eitcorr/internal/config"
	"github.com/ManuGH/eitcorr/internal/epg"
	"github.com/ManuGH/eitcorr/internal/health"
	"github.com/ManuGH/eitcorr/internal/ingest"
	"github.com/ManuGH/eitcorr/internal/jobs"
	applog "github.com/ManuGH/eitcorr/internal/log"
)

const (
	shutdownTimeout = 10 * time.Second

	// backlogLimit is the queue depth above which readiness reports degraded.
	backlogLimit = 10000
)

// App wires Deps to the HTTP server, the driver and config reloads.
type App struct {
	logger zerolog.Logger
	holder *config.Holder
	deps   *Deps
	driver *jobs.Driver
	lock   *flock.Flock

	// started receives the bound listen address once the server accepts.
	started chan string
}

// NewApp creates the orchestrator. holder supplies the initial config.
func NewApp(holder *config.Holder, deps *Deps) (*App, error) {
	if deps == nil || deps.Engine == nil || deps.Store == nil {
		return nil, ErrMissingDeps
	}
	cfg := holder.Get()

	driver := NewDriver(cfg, deps)

	return &App{
		logger:  applog.WithComponent("daemon"),
		holder:  holder,
		deps:    deps,
		driver:  driver,
		lock:    flock.New(cfg.LockFile),
		started: make(chan string, 1),
	}, nil
}

// NewDriver builds the periodic job runner over deps. Export is disabled when
// cfg has no XMLTV path.
func NewDriver(cfg config.AppConfig, deps *Deps) *jobs.Driver {
	var exporter jobs.Exporter
	if cfg.XMLTVPath != "" {
		path := cfg.XMLTVPath
		exporter = func(ctx context.Context, from, to time.Time) (epg.Result, error) {
			return epg.Export(ctx, deps.Store, path, from, to)
		}
	}
	return jobs.NewDriver(deps.Engine, deps.Store, exporter, jobs.Config{
		DrainInterval:    cfg.Driver.DrainInterval,
		PruneInterval:    cfg.Driver.PruneInterval,
		ExportInterval:   cfg.Driver.ExportInterval,
		ExportWindow:     cfg.Driver.ExportWindow,
		PendingMaxAge:    cfg.EIT.PendingMaxAge,
		ProgramRetention: cfg.Driver.ProgramRetention,
	})
}

// probes registers readiness checks for the store, cache, breaker, backlog,
// drain loop and guide file.
func (a *App) probes(cfg config.AppConfig) *health.Manager {
	m := health.NewManager(cfg.Version)
	m.RegisterChecker(health.NewPingChecker("store", a.deps.Store.DB.PingContext, true))
	if a.deps.cachePing != nil {
		m.RegisterChecker(health.NewPingChecker("cache", a.deps.cachePing, false))
	}
	if a.deps.Breaker != nil {
		m.RegisterChecker(health.NewBreakerChecker("channel_store", a.deps.Breaker.State))
	}
	m.RegisterChecker(health.NewBacklogChecker(a.deps.Engine.Stats, backlogLimit))
	m.RegisterChecker(health.NewDrainChecker(func() (time.Time, string) {
		st := a.driver.Status()
		return st.LastDrain, st.Error
	}, max(10*cfg.Driver.DrainInterval, time.Minute)))
	if cfg.Driver.ExportInterval > 0 {
		m.RegisterChecker(health.NewFileChecker("xmltv", cfg.XMLTVPath))
	}
	return m
}

// Started yields the listen address once the API server is accepting.
func (a *App) Started() <-chan string { return a.started }

// Driver exposes the periodic job runner.
func (a *App) Driver() *jobs.Driver { return a.driver }

// Run acquires the lock and blocks until ctx is cancelled or a component
// fails. The lock is released on return.
func (a *App) Run(ctx context.Context) error {
	ok, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, a.lock.Path())
	}
	defer func() {
		if err := a.lock.Unlock(); err != nil {
			a.logger.Warn().Err(err).Str(applog.FieldEvent, "daemon.unlock_failed").Msg("failed to release lock")
		}
	}()

	cfg := a.holder.Get()
	ln, err := net.Listen("tcp", cfg.API.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.API.Listen, err)
	}

	srv := &http.Server{
		Handler: ingest.NewRouter(ingest.Options{
			Sink:      a.deps.Engine,
			RateLimit: cfg.API.RateLimit,
			Version:   cfg.Version,
			Health:    a.probes(cfg),
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().
			Str(applog.FieldEvent, "api.listening").
			Str("addr", ln.Addr().String()).
			Msg("ingest API listening")
		a.started <- ln.Addr().String()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ingest API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return a.driver.Run(gctx) })

	g.Go(func() error {
		if err := a.holder.Watch(gctx); err != nil {
			// Reload is best-effort; the daemon keeps running on the loaded config.
			a.logger.Warn().Err(err).Str(applog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		return nil
	})

	updates := make(chan config.AppConfig, 1)
	a.holder.RegisterListener(updates)
	g.Go(func() error {
		prev := cfg
		for {
			select {
			case <-gctx.Done():
				return nil
			case next := <-updates:
				if err := ApplyReload(a.deps.Engine, prev, next); err != nil {
					a.logger.Error().Err(err).Str(applog.FieldEvent, "config.apply_failed").Msg("failed to apply reloaded config")
					continue
				}
				prev = next
				a.logger.Info().
					Str(applog.FieldEvent, "config.applied").
					Int(applog.FieldSourceID, next.EIT.SourceID).
					Str("utc_offset", next.EIT.UTCOffset).
					Strs("languages", next.EIT.Languages).
					Msg("engine settings updated")
			}
		}
	})

	err = g.Wait()
	a.logger.Info().Str(applog.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return err
}
