// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/eitcorr/internal/cache"
	"github.com/ManuGH/eitcorr/internal/eit"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "eitcorr.db"), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedChannels creates one ATSC channel (1071, 7.1 on source 1) and one DVB
// channel (2001, service 4287 on 9018/4164 source 2).
func seedChannels(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, Channel{ChanID: 1071, SourceID: 1, Major: 7, Minor: 1, CallSign: "WABC", UseOnAirGuide: true}))

	mplex, err := s.UpsertMultiplex(ctx, 2, 9018, 4164)
	require.NoError(t, err)
	again, err := s.UpsertMultiplex(ctx, 2, 9018, 4164)
	require.NoError(t, err)
	require.Equal(t, mplex, again, "upsert must return the existing multiplex")

	require.NoError(t, s.UpsertChannel(ctx, Channel{ChanID: 2001, SourceID: 2, MplexID: mplex, ServiceID: 4287, CallSign: "BBC1", Name: "BBC One", UseOnAirGuide: true}))
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eitcorr.db")
	s, err := NewStore(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewStore(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestStore_LookupATSC(t *testing.T) {
	s := newTestStore(t)
	seedChannels(t, s)
	ctx := context.Background()

	res, err := s.LookupATSC(ctx, 1, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, eit.ChannelLookup{ChanID: 1071, UseOnAirGuide: true, Found: true}, res)

	res, err = s.LookupATSC(ctx, 2, 7, 1)
	require.NoError(t, err)
	assert.False(t, res.Found, "ATSC lookups are always scoped to the source")

	require.NoError(t, s.SetUseOnAirGuide(ctx, 1071, false))
	res, err = s.LookupATSC(ctx, 1, 7, 1)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.UseOnAirGuide)

	assert.Error(t, s.SetUseOnAirGuide(ctx, 9999, true))
}

func TestStore_LookupDVB(t *testing.T) {
	s := newTestStore(t)
	seedChannels(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		source uint32
		sid    uint16
		found  bool
	}{
		{name: "matching source", source: 2, sid: 4287, found: true},
		{name: "any source", source: 0, sid: 4287, found: true},
		{name: "other source", source: 1, sid: 4287, found: false},
		{name: "unknown service", source: 0, sid: 1, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.LookupDVB(ctx, tt.source, tt.sid, 9018, 4164)
			require.NoError(t, err)
			assert.Equal(t, tt.found, res.Found)
			if tt.found {
				assert.Equal(t, int64(2001), res.ChanID)
			}
		})
	}
}

func TestStore_ChunkInsertReplacesOverlaps(t *testing.T) {
	s := newTestStore(t)
	seedChannels(t, s)
	ctx := context.Background()

	loc := time.FixedZone("", -5*3600)
	base := time.Date(2025, 3, 1, 20, 0, 0, 0, loc)
	ev := func(title string, start time.Time, d time.Duration) *eit.Event {
		return &eit.Event{ChanID: 1071, Title: title, Start: start, End: start.Add(d), Captioned: true, Fixup: eit.FixPBS, CategoryType: eit.CategorySports}
	}

	chunk, err := s.BeginChunk(ctx)
	require.NoError(t, err)
	for _, e := range []*eit.Event{
		ev("Old A", base, 30*time.Minute),
		ev("Old B", base.Add(30*time.Minute), 30*time.Minute),
		ev("Later", base.Add(2*time.Hour), time.Hour),
	} {
		n, err := chunk.Insert(ctx, e, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	require.NoError(t, chunk.Commit())

	chunk, err = s.BeginChunk(ctx)
	require.NoError(t, err)
	n, err := chunk.Insert(ctx, ev("Movie", base.Add(15*time.Minute), time.Hour), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, chunk.Commit())

	programs, err := s.Programs(ctx, base.Add(-time.Hour), base.Add(6*time.Hour))
	require.NoError(t, err)
	require.Len(t, programs, 2)

	assert.Equal(t, "Movie", programs[0].Title)
	assert.True(t, programs[0].Start.Equal(base.Add(15*time.Minute)))
	_, offset := programs[0].Start.Zone()
	assert.Equal(t, -5*3600, offset)
	assert.True(t, programs[0].Captioned)
	assert.Equal(t, eit.FixPBS, programs[0].Fixup)
	assert.Equal(t, eit.CategorySports, programs[0].CategoryType)
	assert.Equal(t, "Later", programs[1].Title)
}

func TestStore_FailedInsertKeepsOverlappedPrograms(t *testing.T) {
	s := newTestStore(t)
	seedChannels(t, s)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	chunk, err := s.BeginChunk(ctx)
	require.NoError(t, err)
	_, err = chunk.Insert(ctx, &eit.Event{ChanID: 1071, Title: "Old", Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)}, time.Second)
	require.NoError(t, err)
	require.NoError(t, chunk.Commit())

	// A zero length row is left alone by the overlap delete, and its key
	// collides with the insert below.
	marker := base.Add(time.Hour).UnixMilli()
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO program (chanid, starttime_ms, endtime_ms, title) VALUES (1071, ?, ?, 'Marker')`,
		marker, marker)
	require.NoError(t, err)

	chunk, err = s.BeginChunk(ctx)
	require.NoError(t, err)
	n, err := chunk.Insert(ctx, &eit.Event{ChanID: 1071, Title: "Movie", Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}, time.Second)
	require.Error(t, err)
	assert.Zero(t, n)

	// The chunk stays usable after a failed event.
	_, err = chunk.Insert(ctx, &eit.Event{ChanID: 2001, Title: "News", Start: base, End: base.Add(time.Hour)}, time.Second)
	require.NoError(t, err)
	require.NoError(t, chunk.Commit())

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Programs)

	programs, err := s.Programs(ctx, base.Add(-time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	var titles []string
	for _, p := range programs {
		titles = append(titles, p.Title)
	}
	assert.Contains(t, titles, "Old")
	assert.NotContains(t, titles, "Movie")
}

func TestStore_ChunkRollback(t *testing.T) {
	s := newTestStore(t)
	seedChannels(t, s)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	chunk, err := s.BeginChunk(ctx)
	require.NoError(t, err)
	_, err = chunk.Insert(ctx, &eit.Event{ChanID: 2001, Title: "News", Start: start, End: start.Add(time.Hour)}, time.Second)
	require.NoError(t, err)
	require.NoError(t, chunk.Rollback())
	require.NoError(t, chunk.Rollback(), "second rollback is a no-op")

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.Programs)
}

func TestStore_InsertUnknownChannelFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	chunk, err := s.BeginChunk(ctx)
	require.NoError(t, err)
	defer chunk.Rollback()

	_, err = chunk.Insert(ctx, &eit.Event{ChanID: 42, Title: "Orphan", Start: start, End: start.Add(time.Hour)}, 200*time.Millisecond)
	assert.Error(t, err, "foreign key violation is permanent")
}

func TestStore_CountsAndCleanup(t *testing.T) {
	s := newTestStore(t)
	seedChannels(t, s)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	chunk, err := s.BeginChunk(ctx)
	require.NoError(t, err)
	for i := range 4 {
		st := start.Add(time.Duration(i) * time.Hour)
		_, err := chunk.Insert(ctx, &eit.Event{ChanID: 2001, Title: "Show", Start: st, End: st.Add(time.Hour)}, time.Second)
		require.NoError(t, err)
	}
	require.NoError(t, chunk.Commit())

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Channels)
	assert.Equal(t, 2, c.Guided)
	assert.Equal(t, 1, c.Multiplexes)
	assert.Equal(t, 4, c.Programs)
	assert.True(t, c.FirstStart.Equal(start))
	assert.True(t, c.LastEnd.Equal(start.Add(4*time.Hour)))

	removed, err := s.DeleteProgramsBefore(ctx, start.Add(2*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	channels, err := s.Channels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, uint16(9018), channels[1].NetworkID)
	assert.Equal(t, "BBC One", channels[1].Name)
}

// The store satisfies the resolver and engine contracts end to end.
func TestStore_WithEngine(t *testing.T) {
	s := newTestStore(t)
	seedChannels(t, s)
	ctx := context.Background()

	mc := cache.NewMemoryCache(0)
	resolver := eit.NewResolver(eit.ResolverOptions{Store: s, Cache: mc})
	engine, err := eit.New(eit.Options{Resolver: resolver, Persister: s, SourceID: 1})
	require.NoError(t, err)
	defer engine.Close()

	engine.AddATSCEvents(ctx, 7, 1, []eit.ATSCEvent{{
		EventID: 7, StartGPS: 1_300_000_020, Length: 1800, ETM: true,
		Titles: []eit.TextVariant{{Lang: "eng", Text: "Evening News"}},
	}})
	engine.AddETT(ctx, 7, 1, eit.ExtendedText{EventID: 7, Texts: []eit.TextVariant{{Lang: "eng", Text: "Synopsis"}}})

	n, err := engine.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Programs)
	assert.Equal(t, int64(1), mc.Stats().Sets)
}
