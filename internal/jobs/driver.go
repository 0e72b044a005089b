// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs runs the periodic work around the correlation engine:
// draining completed events, pruning watermarks and exporting the guide.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/eitcorr/internal/epg"
	applog "github.com/ManuGH/eitcorr/internal/log"
)

// Engine is the part of *eit.Engine the driver uses.
type Engine interface {
	ProcessEvents(ctx context.Context) (int, error)
	PruneCache(ts time.Time) int
	EvictPending(olderThan time.Time) (primaries, texts int)
	ListSize() int
	ChunkSize() int
}

// Retention deletes persisted programs that ended before a cutoff.
type Retention interface {
	DeleteProgramsBefore(ctx context.Context, ts time.Time) (int64, error)
}

// Exporter writes the guide for a time window.
type Exporter func(ctx context.Context, from, to time.Time) (epg.Result, error)

// Config holds the driver intervals. Zero ExportInterval disables export.
type Config struct {
	DrainInterval  time.Duration
	PruneInterval  time.Duration
	ExportInterval time.Duration
	ExportWindow   time.Duration
	PendingMaxAge  time.Duration
	// ProgramRetention is how long ended programs stay in the store. Zero keeps them.
	ProgramRetention time.Duration
}

// Status represents the outcome of the most recent runs.
type Status struct {
	LastDrain      time.Time `json:"last_drain"`
	Inserted       int64     `json:"inserted_total"`
	LastPrune      time.Time `json:"last_prune"`
	LastExport     time.Time `json:"last_export"`
	ExportedEvents int       `json:"exported_programmes"`
	Error          string    `json:"error,omitempty"`
}

// Driver owns the periodic loop. Create it with NewDriver and call Run.
type Driver struct {
	engine    Engine
	retention Retention
	export    Exporter
	cfg       Config
	now       func() time.Time
	logger    zerolog.Logger

	mu     sync.Mutex
	status Status
}

// NewDriver builds a driver. retention and export may be nil.
func NewDriver(engine Engine, retention Retention, export Exporter, cfg Config) *Driver {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 2 * time.Second
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = 5 * time.Minute
	}
	if cfg.PendingMaxAge <= 0 {
		cfg.PendingMaxAge = 3 * time.Hour
	}
	if cfg.ExportWindow <= 0 {
		cfg.ExportWindow = 14 * 24 * time.Hour
	}
	return &Driver{
		engine:    engine,
		retention: retention,
		export:    export,
		cfg:       cfg,
		now:       time.Now,
		logger:    applog.WithComponent("driver"),
	}
}

// Status returns a copy of the last run outcomes.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Run blocks until ctx is cancelled. A final drain runs on shutdown so that
// completed events are not lost.
func (d *Driver) Run(ctx context.Context) error {
	drain := time.NewTicker(d.cfg.DrainInterval)
	defer drain.Stop()
	prune := time.NewTicker(d.cfg.PruneInterval)
	defer prune.Stop()

	var exportC <-chan time.Time
	if d.export != nil && d.cfg.ExportInterval > 0 {
		export := time.NewTicker(d.cfg.ExportInterval)
		defer export.Stop()
		exportC = export.C
	}

	d.logger.Info().
		Str(applog.FieldEvent, "driver.start").
		Dur("drain_interval", d.cfg.DrainInterval).
		Dur("prune_interval", d.cfg.PruneInterval).
		Dur("export_interval", d.cfg.ExportInterval).
		Msg("driver started")

	for {
		select {
		case <-ctx.Done():
			// Persist what is already complete with a fresh, bounded context.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			_, _ = d.Drain(flushCtx)
			cancel()
			d.logger.Info().Str(applog.FieldEvent, "driver.stop").Msg("driver stopped")
			return nil
		case <-drain.C:
			_, _ = d.Drain(ctx)
		case <-prune.C:
			d.Prune(ctx)
		case <-exportC:
			_, _ = d.Export(ctx)
		}
	}
}

// Drain calls ProcessEvents until a call persists less than a full chunk.
func (d *Driver) Drain(ctx context.Context) (int, error) {
	chunk := d.engine.ChunkSize()
	total := 0
	for {
		n, err := d.engine.ProcessEvents(ctx)
		total += n
		if err != nil {
			d.recordError(err)
			d.logger.Error().
				Err(err).
				Str(applog.FieldEvent, "driver.drain_failed").
				Int(applog.FieldInserted, total).
				Msg("drain failed")
			return total, err
		}
		if n < chunk || d.engine.ListSize() == 0 || ctx.Err() != nil {
			break
		}
	}

	d.mu.Lock()
	d.status.LastDrain = d.now()
	d.status.Inserted += int64(total)
	d.mu.Unlock()
	return total, nil
}

// Prune drops expired watermarks, evicts stale pending fragments and removes
// programs past retention.
func (d *Driver) Prune(ctx context.Context) {
	now := d.now()
	watermarks := d.engine.PruneCache(now)
	primaries, texts := d.engine.EvictPending(now.Add(-d.cfg.PendingMaxAge))

	var deleted int64
	if d.retention != nil && d.cfg.ProgramRetention > 0 {
		n, err := d.retention.DeleteProgramsBefore(ctx, now.Add(-d.cfg.ProgramRetention))
		if err != nil {
			d.recordError(err)
			d.logger.Error().Err(err).Str(applog.FieldEvent, "driver.retention_failed").Msg("program cleanup failed")
		}
		deleted = n
	}

	d.mu.Lock()
	d.status.LastPrune = now
	d.mu.Unlock()

	d.logger.Debug().
		Str(applog.FieldEvent, "driver.prune").
		Int("watermarks", watermarks).
		Int(applog.FieldIncomplete, primaries).
		Int(applog.FieldUnmatched, texts).
		Int64("programs", deleted).
		Msg("pruned engine state")
}

// ErrExportDisabled is returned by Export when no exporter is configured.
var ErrExportDisabled = errors.New("export disabled")

// Export writes the guide from one hour ago through ExportWindow ahead.
func (d *Driver) Export(ctx context.Context) (epg.Result, error) {
	if d.export == nil {
		return epg.Result{}, ErrExportDisabled
	}
	now := d.now()
	res, err := d.export(ctx, now.Add(-time.Hour), now.Add(d.cfg.ExportWindow))
	if err != nil {
		d.recordError(err)
		d.logger.Error().Err(err).Str(applog.FieldEvent, "driver.export_failed").Msg("guide export failed")
		return res, err
	}
	d.mu.Lock()
	d.status.LastExport = now
	d.status.ExportedEvents = res.Programmes
	d.mu.Unlock()
	return res, nil
}

func (d *Driver) recordError(err error) {
	d.mu.Lock()
	d.status.Error = err.Error()
	d.mu.Unlock()
}
