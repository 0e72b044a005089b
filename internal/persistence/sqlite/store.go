// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ManuGH/eitcorr/internal/eit"
)

const schemaVersion = 1

// Store is the channel and program database. It answers channel lookups for
// the resolver and persists completed events in chunk transactions.
type Store struct {
	DB *sql.DB
}

// Channel is a row of the channel table joined with its multiplex.
type Channel struct {
	ChanID        uint32
	SourceID      uint32
	MplexID       int64
	ServiceID     uint16
	NetworkID     uint16
	TransportID   uint16
	Major         uint16
	Minor         uint16
	CallSign      string
	Name          string
	UseOnAirGuide bool
}

// Counts summarises the store contents.
type Counts struct {
	Channels    int
	Guided      int
	Programs    int
	FirstStart  time.Time
	LastEnd     time.Time
	Multiplexes int
}

// NewStore opens the database at dbPath and applies the schema.
func NewStore(dbPath string, cfg Config) (*Store, error) {
	db, err := Open(dbPath, cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("program store: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schema := `
	CREATE TABLE IF NOT EXISTS dtv_multiplex (
		mplexid INTEGER PRIMARY KEY AUTOINCREMENT,
		sourceid INTEGER NOT NULL,
		networkid INTEGER NOT NULL,
		transportid INTEGER NOT NULL,
		UNIQUE (sourceid, networkid, transportid)
	);

	CREATE TABLE IF NOT EXISTS channel (
		chanid INTEGER PRIMARY KEY,
		sourceid INTEGER NOT NULL,
		mplexid INTEGER REFERENCES dtv_multiplex(mplexid),
		serviceid INTEGER,
		atsc_major_chan INTEGER NOT NULL DEFAULT 0,
		atsc_minor_chan INTEGER NOT NULL DEFAULT 0,
		callsign TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		useonairguide INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_channel_atsc ON channel(atsc_major_chan, atsc_minor_chan, sourceid);
	CREATE INDEX IF NOT EXISTS idx_channel_service ON channel(serviceid, mplexid);

	CREATE TABLE IF NOT EXISTS program (
		chanid INTEGER NOT NULL REFERENCES channel(chanid) ON DELETE CASCADE,
		starttime_ms INTEGER NOT NULL,
		endtime_ms INTEGER NOT NULL,
		utc_offset INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL,
		subtitle TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		category_type TEXT NOT NULL DEFAULT '',
		fixup INTEGER NOT NULL DEFAULT 0,
		closecaptioned INTEGER NOT NULL DEFAULT 0,
		subtitled INTEGER NOT NULL DEFAULT 0,
		stereo INTEGER NOT NULL DEFAULT 0,
		hdtv INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (chanid, starttime_ms)
	);
	CREATE INDEX IF NOT EXISTS idx_program_window ON program(starttime_ms, endtime_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// LookupATSC finds the channel carrying an ATSC virtual channel on a source.
func (s *Store) LookupATSC(ctx context.Context, sourceID uint32, major, minor uint16) (eit.ChannelLookup, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT chanid, useonairguide
		FROM channel
		WHERE atsc_major_chan = ? AND
		      atsc_minor_chan = ? AND
		      sourceid        = ?`,
		major, minor, sourceID)
	return scanLookup(row)
}

// LookupDVB finds the channel carrying a DVB service. A zero source matches any source.
func (s *Store) LookupDVB(ctx context.Context, sourceID uint32, serviceID, networkID, transportID uint16) (eit.ChannelLookup, error) {
	query := `
		SELECT chanid, useonairguide
		FROM channel, dtv_multiplex
		WHERE serviceid        = ? AND
		      networkid        = ? AND
		      transportid      = ? AND
		      channel.mplexid  = dtv_multiplex.mplexid`
	args := []any{serviceID, networkID, transportID}
	if sourceID != 0 {
		query += " AND channel.sourceid = ?"
		args = append(args, sourceID)
	}
	return scanLookup(s.DB.QueryRowContext(ctx, query, args...))
}

func scanLookup(row *sql.Row) (eit.ChannelLookup, error) {
	var res eit.ChannelLookup
	if err := row.Scan(&res.ChanID, &res.UseOnAirGuide); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eit.ChannelLookup{}, nil
		}
		return eit.ChannelLookup{}, fmt.Errorf("channel lookup: %w", err)
	}
	res.Found = true
	return res, nil
}

// UpsertMultiplex returns the id of a multiplex, creating it if needed.
func (s *Store) UpsertMultiplex(ctx context.Context, sourceID uint32, networkID, transportID uint16) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO dtv_multiplex (sourceid, networkid, transportid)
		VALUES (?, ?, ?)
		ON CONFLICT(sourceid, networkid, transportid) DO UPDATE SET sourceid = excluded.sourceid
		RETURNING mplexid`,
		sourceID, networkID, transportID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert multiplex: %w", err)
	}
	return id, nil
}

// UpsertChannel inserts or replaces a channel row.
func (s *Store) UpsertChannel(ctx context.Context, ch Channel) error {
	var mplex any
	if ch.MplexID != 0 {
		mplex = ch.MplexID
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO channel (chanid, sourceid, mplexid, serviceid, atsc_major_chan, atsc_minor_chan, callsign, name, useonairguide)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chanid) DO UPDATE SET
			sourceid = excluded.sourceid,
			mplexid = excluded.mplexid,
			serviceid = excluded.serviceid,
			atsc_major_chan = excluded.atsc_major_chan,
			atsc_minor_chan = excluded.atsc_minor_chan,
			callsign = excluded.callsign,
			name = excluded.name,
			useonairguide = excluded.useonairguide`,
		ch.ChanID, ch.SourceID, mplex, ch.ServiceID, ch.Major, ch.Minor, ch.CallSign, ch.Name, ch.UseOnAirGuide)
	if err != nil {
		return fmt.Errorf("upsert channel %d: %w", ch.ChanID, err)
	}
	return nil
}

// SetUseOnAirGuide toggles whether broadcast guide data is accepted for a channel.
func (s *Store) SetUseOnAirGuide(ctx context.Context, chanID uint32, use bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE channel SET useonairguide = ? WHERE chanid = ?`, use, chanID)
	if err != nil {
		return fmt.Errorf("set useonairguide: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set useonairguide: channel %d not found", chanID)
	}
	return nil
}

// Channels lists all channels ordered by id.
func (s *Store) Channels(ctx context.Context) ([]Channel, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT c.chanid, c.sourceid, COALESCE(c.mplexid, 0), COALESCE(c.serviceid, 0),
		       COALESCE(m.networkid, 0), COALESCE(m.transportid, 0),
		       c.atsc_major_chan, c.atsc_minor_chan, c.callsign, c.name, c.useonairguide
		FROM channel c
		LEFT JOIN dtv_multiplex m ON m.mplexid = c.mplexid
		ORDER BY c.chanid`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ChanID, &ch.SourceID, &ch.MplexID, &ch.ServiceID, &ch.NetworkID, &ch.TransportID,
			&ch.Major, &ch.Minor, &ch.CallSign, &ch.Name, &ch.UseOnAirGuide); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Programs lists programs overlapping [from, to) ordered by channel and start.
// Times carry the UTC offset they were stored with.
func (s *Store) Programs(ctx context.Context, from, to time.Time) ([]eit.Event, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT chanid, starttime_ms, endtime_ms, utc_offset, title, subtitle, description,
		       category, category_type, fixup, closecaptioned, subtitled, stereo, hdtv
		FROM program
		WHERE starttime_ms < ? AND endtime_ms > ?
		ORDER BY chanid, starttime_ms`,
		to.UnixMilli(), from.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var out []eit.Event
	for rows.Next() {
		var (
			ev             eit.Event
			startMS, endMS int64
			offset         int
			ctype          string
			fixup          int64
		)
		if err := rows.Scan(&ev.ChanID, &startMS, &endMS, &offset, &ev.Title, &ev.Subtitle, &ev.Description,
			&ev.Category, &ctype, &fixup, &ev.Captioned, &ev.Subtitled, &ev.Stereo, &ev.HDTV); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		loc := time.FixedZone("", offset)
		ev.Start = time.UnixMilli(startMS).In(loc)
		ev.End = time.UnixMilli(endMS).In(loc)
		ev.CategoryType = eit.CategoryType(ctype)
		ev.Fixup = eit.Fixup(fixup)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Counts returns row counts and the programme time range.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var (
		c           Counts
		first, last sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM channel),
			(SELECT COUNT(*) FROM channel WHERE useonairguide = 1),
			(SELECT COUNT(*) FROM dtv_multiplex),
			(SELECT COUNT(*) FROM program),
			(SELECT MIN(starttime_ms) FROM program),
			(SELECT MAX(endtime_ms) FROM program)`).
		Scan(&c.Channels, &c.Guided, &c.Multiplexes, &c.Programs, &first, &last)
	if err != nil {
		return Counts{}, fmt.Errorf("count rows: %w", err)
	}
	if first.Valid {
		c.FirstStart = time.UnixMilli(first.Int64).UTC()
	}
	if last.Valid {
		c.LastEnd = time.UnixMilli(last.Int64).UTC()
	}
	return c, nil
}

// DeleteProgramsBefore removes programs that ended before ts.
func (s *Store) DeleteProgramsBefore(ctx context.Context, ts time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM program WHERE endtime_ms < ?`, ts.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete old programs: %w", err)
	}
	return res.RowsAffected()
}

// BeginChunk opens a write transaction for one chunk of events.
func (s *Store) BeginChunk(ctx context.Context) (eit.Chunk, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin chunk: %w", err)
	}
	return &chunk{tx: tx}, nil
}

type chunk struct {
	tx *sql.Tx
}

// Insert replaces programs on the event's channel that overlap it with the
// event. Busy errors are retried until timeout elapses.
func (c *chunk) Insert(ctx context.Context, ev *eit.Event, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond

	return backoff.Retry(ctx, func() (int, error) {
		n, err := c.insert(ctx, ev)
		if err != nil && !isBusy(err) {
			return 0, backoff.Permanent(err)
		}
		return n, err
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(timeout))
}

// insert runs inside a savepoint so a failed INSERT never leaves the
// overlapping programs deleted.
func (c *chunk) insert(ctx context.Context, ev *eit.Event) (n int, err error) {
	if _, err := c.tx.ExecContext(ctx, `SAVEPOINT event`); err != nil {
		return 0, fmt.Errorf("savepoint: %w", err)
	}
	defer func() {
		// The per-event context may already be done; unwind regardless.
		uctx := context.WithoutCancel(ctx)
		if err != nil {
			_, _ = c.tx.ExecContext(uctx, `ROLLBACK TO event`)
		}
		if _, rerr := c.tx.ExecContext(uctx, `RELEASE event`); rerr != nil && err == nil {
			n, err = 0, fmt.Errorf("release savepoint: %w", rerr)
		}
	}()

	start, end := ev.Start.UnixMilli(), ev.End.UnixMilli()
	_, offset := ev.Start.Zone()

	if _, err := c.tx.ExecContext(ctx,
		`DELETE FROM program WHERE chanid = ? AND starttime_ms < ? AND endtime_ms > ?`,
		ev.ChanID, end, start); err != nil {
		return 0, fmt.Errorf("delete overlapping programs: %w", err)
	}

	if _, err := c.tx.ExecContext(ctx, `
		INSERT INTO program (chanid, starttime_ms, endtime_ms, utc_offset, title, subtitle, description,
		                     category, category_type, fixup, closecaptioned, subtitled, stereo, hdtv)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ChanID, start, end, offset, ev.Title, ev.Subtitle, ev.Description,
		ev.Category, string(ev.CategoryType), int64(ev.Fixup), ev.Captioned, ev.Subtitled, ev.Stereo, ev.HDTV); err != nil {
		return 0, fmt.Errorf("insert program: %w", err)
	}
	return 1, nil
}

func (c *chunk) Commit() error {
	return c.tx.Commit()
}

func (c *chunk) Rollback() error {
	err := c.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func isBusy(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
