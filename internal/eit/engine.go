// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package eit assembles program guide events from event information tables.
//
// ATSC event rows and their extended text arrive as separate tables in any
// order and are joined by the Correlator. DVB tables carry complete events
// and are filtered by the Suppressor so that the endlessly repeated carousel
// is processed once per table version. Completed events are queued and
// persisted in chunks by ProcessEvents, which a periodic driver calls.
package eit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	applog "github.com/ManuGH/eitcorr/internal/log"
	"github.com/ManuGH/eitcorr/internal/metrics"
	"github.com/ManuGH/eitcorr/internal/telemetry"
)

const (
	// DefaultChunkSize is the number of events persisted per transaction.
	DefaultChunkSize = 20
	// DefaultInsertTimeout bounds a single event insert including retries.
	DefaultInsertTimeout = time.Second
)

// ErrEngineClosed is returned by ProcessEvents after Close.
var ErrEngineClosed = errors.New("eit engine closed")

// Persister opens chunk transactions on the program store.
type Persister interface {
	BeginChunk(ctx context.Context) (Chunk, error)
}

// Chunk is one persistence transaction. Insert returns the number of
// programs written for ev and gives up once timeout has elapsed.
type Chunk interface {
	Insert(ctx context.Context, ev *Event, timeout time.Duration) (int, error)
	Commit() error
	Rollback() error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures an Engine. Resolver and Persister are required.
type Options struct {
	Resolver       ChannelResolver
	Persister      Persister
	Fixer          Fixer
	TimeFix        TimeFixer
	FixupTable     *FixupTable
	Clock          Clock
	Logger         *zerolog.Logger
	ChunkSize      int
	InsertTimeout  time.Duration
	UTCOffset      int
	GPSLeapSeconds *int
	SourceID       uint32
	Languages      []string
}

// Stats is a point-in-time view of the engine's owned state.
type Stats struct {
	Queued     int `json:"queued"`
	Incomplete int `json:"incomplete"`
	Unmatched  int `json:"unmatched"`
	Watermarks int `json:"watermarks"`
}

// Engine owns the pending fragment maps, version watermarks and completion
// queue. All methods are safe for concurrent use. Channel resolution and
// persistence run without the engine lock held.
type Engine struct {
	resolver      ChannelResolver
	persister     Persister
	fixer         Fixer
	fixups        *FixupTable
	clock         Clock
	logger        zerolog.Logger
	tracer        trace.Tracer
	chunkSize     int
	insertTimeout time.Duration
	leapSeconds   int
	timeFix       TimeFixer
	queue         *Queue

	mu         sync.Mutex
	sourceID   uint32
	prefs      LanguagePreferences
	normalizer TimeNormalizer
	atscFixups map[ATSCKey]Fixup
	correlator *Correlator
	suppressor *Suppressor
	closed     bool
}

// New builds an engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Resolver == nil {
		return nil, errors.New("eit: resolver is required")
	}
	if opts.Persister == nil {
		return nil, errors.New("eit: persister is required")
	}

	e := &Engine{
		resolver:      opts.Resolver,
		persister:     opts.Persister,
		fixer:         opts.Fixer,
		fixups:        opts.FixupTable,
		clock:         opts.Clock,
		tracer:        telemetry.Tracer("eitcorr/eit"),
		chunkSize:     opts.ChunkSize,
		insertTimeout: opts.InsertTimeout,
		leapSeconds:   DefaultGPSLeapSeconds,
		timeFix:       opts.TimeFix,
		queue:         NewQueue(),
		sourceID:      opts.SourceID,
		prefs:         NewLanguagePreferences(opts.Languages),
		atscFixups:    make(map[ATSCKey]Fixup),
		correlator:    NewCorrelator(),
		suppressor:    NewSuppressor(),
	}
	if opts.Logger != nil {
		e.logger = *opts.Logger
	} else {
		e.logger = applog.WithComponent("eit")
	}
	if e.fixer == nil {
		e.fixer = DefaultFixer{}
	}
	if e.fixups == nil {
		e.fixups = DefaultFixupTable()
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.chunkSize <= 0 {
		e.chunkSize = DefaultChunkSize
	}
	if e.insertTimeout <= 0 {
		e.insertTimeout = DefaultInsertTimeout
	}
	if opts.GPSLeapSeconds != nil {
		e.leapSeconds = *opts.GPSLeapSeconds
	}
	if e.timeFix == nil {
		e.timeFix = DefaultTimeFix
	}
	e.normalizer = NewTimeNormalizer(opts.UTCOffset, e.leapSeconds, e.timeFix)
	return e, nil
}

// SetSourceID scopes channel lookups to a video source. Zero matches any source.
func (e *Engine) SetSourceID(sourceID uint32) {
	e.mu.Lock()
	e.sourceID = sourceID
	e.mu.Unlock()
}

// SetLanguagePreferences replaces the ranked language list.
func (e *Engine) SetLanguagePreferences(langs []string) {
	prefs := NewLanguagePreferences(langs)
	e.mu.Lock()
	e.prefs = prefs
	e.mu.Unlock()
}

// SetFixup assigns a fixup mask to an ATSC channel.
func (e *Engine) SetFixup(major, minor uint16, fix Fixup) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fix == 0 {
		delete(e.atscFixups, ATSCKey{Major: major, Minor: minor})
		return
	}
	e.atscFixups[ATSCKey{Major: major, Minor: minor}] = fix
}

// SetUTCOffset changes the offset, in seconds east of UTC, used for canonical times.
func (e *Engine) SetUTCOffset(seconds int) {
	e.mu.Lock()
	e.normalizer = NewTimeNormalizer(seconds, e.leapSeconds, e.timeFix)
	e.mu.Unlock()
}

// UTCOffset returns the current offset in seconds.
func (e *Engine) UTCOffset() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.normalizer.UTCOffset()
}

// snapshot is the per-call copy of settings taken under the lock.
type snapshot struct {
	sourceID   uint32
	prefs      LanguagePreferences
	normalizer TimeNormalizer
	fixup      Fixup
}

func (e *Engine) snapshotLocked(key ATSCKey) snapshot {
	return snapshot{
		sourceID:   e.sourceID,
		prefs:      e.prefs,
		normalizer: e.normalizer,
		fixup:      e.atscFixups[key],
	}
}

// AddATSCEvents submits the event rows of one ATSC table for a virtual channel.
func (e *Engine) AddATSCEvents(ctx context.Context, major, minor uint16, events []ATSCEvent) {
	if len(events) == 0 {
		return
	}
	key := ATSCKey{Major: major, Minor: minor}
	metrics.IncFragmentsReceived("atsc", len(events))
	now := e.clock.Now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	snap := e.snapshotLocked(key)
	var done []Completion
	for _, ev := range events {
		if c, ok := e.correlator.SubmitPrimary(key, ev, snap.prefs.BestMatch(ev.Titles), now); ok {
			done = append(done, c)
		}
	}
	e.mu.Unlock()

	e.completeATSC(ctx, snap, key, done)
}

// AddETT submits the extended text of one ATSC event.
func (e *Engine) AddETT(ctx context.Context, major, minor uint16, ett ExtendedText) {
	key := ATSCKey{Major: major, Minor: minor}
	metrics.IncFragmentsReceived("ett", 1)
	now := e.clock.Now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	snap := e.snapshotLocked(key)
	c, ok := e.correlator.SubmitExtendedText(key, ett.EventID, snap.prefs.BestMatch(ett.Texts), now)
	e.mu.Unlock()

	if ok {
		e.completeATSC(ctx, snap, key, []Completion{c})
	}
}

func (e *Engine) completeATSC(ctx context.Context, snap snapshot, key ATSCKey, done []Completion) {
	if len(done) == 0 {
		return
	}

	chanID := e.resolver.Resolve(ctx, ATSCChannel(snap.sourceID, key.Major, key.Minor))
	if chanID == 0 {
		e.drop("no_channel", len(done))
		e.logger.Debug().
			Str(applog.FieldEvent, "eit.no_channel").
			Str(applog.FieldChannelKey, key.String()).
			Int("dropped", len(done)).
			Msg("no guide channel for ATSC events")
		return
	}

	out := make([]*Event, 0, len(done))
	for _, c := range done {
		start := snap.normalizer.FromGPS(c.Event.StartGPS)
		start, end := snap.normalizer.Span(start, c.Event.Length, snap.fixup)
		if !start.Before(end) {
			e.drop("invalid_span", 1)
			continue
		}
		f := extractFeatures(c.Event.Descriptors)
		out = append(out, &Event{
			ChanID:       chanID,
			Title:        c.Title,
			Description:  c.Text,
			Category:     f.category,
			CategoryType: f.categoryType,
			Start:        start,
			End:          end,
			Fixup:        snap.fixup,
			Captioned:    f.captioned,
			Subtitled:    f.subtitled,
			Stereo:       f.stereo,
			HDTV:         f.hdtv,
		})
		if c.Event.ETM {
			metrics.IncEventCompleted("correlated")
		} else {
			metrics.IncEventCompleted("immediate")
		}
	}
	e.queue.Enqueue(out...)
}

// AddDVBTable submits one DVB table section. Events already processed at
// this table version are skipped.
func (e *Engine) AddDVBTable(ctx context.Context, table DVBTable) {
	if len(table.Events) == 0 {
		return
	}
	metrics.IncFragmentsReceived("dvb", len(table.Events))

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	snap := e.snapshotLocked(ATSCKey{})
	e.mu.Unlock()

	chanID := e.resolver.Resolve(ctx, DVBChannel(snap.sourceID, table.ServiceID, table.NetworkID, table.TransportID))
	if chanID == 0 {
		e.drop("no_channel", len(table.Events))
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fresh := make([]DVBEvent, 0, len(table.Events))
	for _, ev := range table.Events {
		if !e.suppressor.IsNew(table.NetworkID, table.TransportID, table.ServiceID, table.TableID, table.Version, ev.EventID, ev.End()) {
			metrics.IncDuplicateSuppressed()
			continue
		}
		fresh = append(fresh, ev)
	}
	e.mu.Unlock()

	if len(fresh) == 0 {
		return
	}

	fixup := e.fixups.Lookup(table.TransportID, table.NetworkID, table.ServiceID)
	out := make([]*Event, 0, len(fresh))
	for _, ev := range fresh {
		start, end := snap.normalizer.Span(snap.normalizer.FromUTC(ev.Start), ev.Duration, fixup)
		if !start.Before(end) {
			e.drop("invalid_span", 1)
			continue
		}
		f := extractFeatures(ev.Descriptors)
		category, ctype := ev.Category, ev.CategoryType
		if category == "" && f.hasContent {
			category = f.category
		}
		if ctype == CategoryNone {
			ctype = f.categoryType
		}
		out = append(out, &Event{
			ChanID:       chanID,
			Title:        snap.prefs.BestMatch(ev.Titles),
			Subtitle:     snap.prefs.BestMatch(ev.Subtitles),
			Description:  snap.prefs.BestMatches(ev.Descriptions),
			Category:     category,
			CategoryType: ctype,
			Start:        start,
			End:          end,
			Fixup:        fixup,
			Captioned:    f.captioned,
			Subtitled:    f.subtitled,
			Stereo:       f.stereo,
			HDTV:         f.hdtv,
		})
		metrics.IncEventCompleted("dvb")
	}
	e.queue.Enqueue(out...)
}

func (e *Engine) drop(reason string, n int) {
	for range n {
		metrics.IncEventDropped(reason)
	}
}

// ProcessEvents persists up to one chunk of completed events in a single
// transaction and returns the number of programs inserted. Insert failures
// are logged and counted; only transaction errors are returned. When the
// transaction cannot be opened or committed the chunk's events stay queued.
func (e *Engine) ProcessEvents(ctx context.Context) (int, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return 0, ErrEngineClosed
	}
	if e.queue.Len() == 0 {
		return 0, nil
	}

	ctx = applog.ContextWithDrainID(ctx, uuid.NewString())
	ctx, span := e.tracer.Start(ctx, "eit.drain")
	defer span.End()
	logger := applog.WithContext(ctx, e.logger)
	started := time.Now()

	chunk, err := e.persister.BeginChunk(ctx)
	if err != nil {
		telemetry.RecordError(span, err, "begin_failed")
		return 0, fmt.Errorf("begin chunk: %w", err)
	}

	var inserted, failed int
	popped := make([]*Event, 0, e.chunkSize)
	for len(popped) < e.chunkSize {
		queued, ok := e.queue.Pop()
		if !ok {
			break
		}
		popped = append(popped, queued)

		// Fix a copy so a requeued event is fixed only once.
		fixed := *queued
		ev := &fixed
		e.fixer.Fix(ev)
		n, err := chunk.Insert(ctx, ev, e.insertTimeout)
		if err != nil {
			failed++
			logger.Warn().Err(err).
				Str(applog.FieldEvent, "eit.insert_failed").
				Uint32(applog.FieldChanID, ev.ChanID).
				Time("start", ev.Start).
				Str("title", ev.Title).
				Msg("failed to persist event")
			continue
		}
		inserted += n
	}

	dequeued := len(popped)
	if err := chunk.Commit(); err != nil {
		_ = chunk.Rollback()
		e.queue.Requeue(popped...)
		telemetry.RecordError(span, err, "commit_failed")
		metrics.RecordDrain(0, 0, time.Since(started).Seconds())
		return 0, fmt.Errorf("commit chunk: %w", err)
	}

	st := e.Stats()
	metrics.RecordDrain(inserted, failed, time.Since(started).Seconds())
	metrics.RecordEngineState(st.Queued, st.Incomplete, st.Unmatched, st.Watermarks)
	span.SetAttributes(telemetry.DrainAttributes(e.chunkSize, dequeued, inserted, failed)...)
	span.SetAttributes(telemetry.PendingAttributes(st.Incomplete, st.Unmatched)...)

	logger.Info().
		Str(applog.FieldEvent, "eit.drain").
		Int(applog.FieldInserted, inserted).
		Int(applog.FieldComplete, st.Queued).
		Int(applog.FieldIncomplete, st.Incomplete).
		Int(applog.FieldUnmatched, st.Unmatched).
		Msgf("Added %d events -- complete(%d) incomplete(%d) unmatched(%d)",
			inserted, st.Queued, st.Incomplete, st.Unmatched)

	return inserted, nil
}

// PruneCache drops version watermarks of events that ended before ts.
func (e *Engine) PruneCache(ts time.Time) int {
	e.mu.Lock()
	removed := e.suppressor.PruneOlderThan(ts)
	e.mu.Unlock()

	if removed > 0 {
		e.logger.Debug().
			Str(applog.FieldEvent, "eit.prune").
			Int("removed", removed).
			Time("before", ts).
			Msg("pruned version watermarks")
	}
	return removed
}

// EvictPending drops fragments still waiting for their counterpart that
// arrived before olderThan.
func (e *Engine) EvictPending(olderThan time.Time) (primaries, texts int) {
	e.mu.Lock()
	primaries, texts = e.correlator.EvictOlderThan(olderThan)
	e.mu.Unlock()

	if primaries+texts > 0 {
		metrics.AddPendingEvicted(primaries, texts)
		e.logger.Info().
			Str(applog.FieldEvent, "eit.evict").
			Int(applog.FieldIncomplete, primaries).
			Int(applog.FieldUnmatched, texts).
			Msg("evicted stale pending fragments")
	}
	return primaries, texts
}

// ChunkSize is the maximum number of events one ProcessEvents call persists.
func (e *Engine) ChunkSize() int { return e.chunkSize }

// ListSize returns the number of completed events awaiting persistence.
func (e *Engine) ListSize() int {
	return e.queue.Len()
}

// Stats reports queue depth, pending fragments and watermark count.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	incomplete, unmatched := e.correlator.Pending()
	watermarks := e.suppressor.Len()
	e.mu.Unlock()
	return Stats{
		Queued:     e.queue.Len(),
		Incomplete: incomplete,
		Unmatched:  unmatched,
		Watermarks: watermarks,
	}
}

// Close frees all pending state. Later submissions are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.correlator.Reset()
	e.suppressor.Reset()
	e.mu.Unlock()
	e.queue.Clear()
	metrics.RecordEngineState(0, 0, 0, 0)
}
