// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import "time"

// tableKey identifies one event information table of a service.
type tableKey struct {
	network   uint16
	transport uint16
	service   uint16
	table     uint8
}

type watermark struct {
	version uint8
	end     time.Time
}

// Suppressor rejects events of table versions that were already processed.
// Watermarks are tracked per table and event so that sections of the same
// table version carrying different events are never mistaken for each other.
// It is not safe for concurrent use; the engine serialises access.
type Suppressor struct {
	tables map[tableKey]map[uint16]watermark
	size   int
}

// NewSuppressor returns an empty suppressor.
func NewSuppressor() *Suppressor {
	return &Suppressor{tables: make(map[tableKey]map[uint16]watermark)}
}

// versionMask covers the 5-bit version_number of an EIT section.
const versionMask = 0x1f

// newerVersion reports whether next follows prev in the 5-bit version space.
// Up to half the space ahead counts as newer, so 0x1f -> 0x00 is an update
// while a stale section still in the carousel is not.
func newerVersion(prev, next uint8) bool {
	d := (next - prev) & versionMask
	return d >= 1 && d <= versionMask/2
}

// IsNew reports whether the event is newer than its watermark and records it
// if so. A newer table version is always new. The same version is new only
// when it extends the end time. Older versions and ties are duplicates.
func (s *Suppressor) IsNew(network, transport, service uint16, table, version uint8, eventID uint16, end time.Time) bool {
	key := tableKey{network: network, transport: transport, service: service, table: table}
	events, ok := s.tables[key]
	if !ok {
		events = make(map[uint16]watermark)
		s.tables[key] = events
	}

	if w, seen := events[eventID]; seen {
		sameVersion := w.version&versionMask == version&versionMask
		if !newerVersion(w.version, version) && !(sameVersion && end.After(w.end)) {
			return false
		}
	} else {
		s.size++
	}
	events[eventID] = watermark{version: version, end: end}
	return true
}

// PruneOlderThan drops watermarks whose event ended before ts and returns how many were removed.
func (s *Suppressor) PruneOlderThan(ts time.Time) int {
	removed := 0
	for key, events := range s.tables {
		for id, w := range events {
			if w.end.Before(ts) {
				delete(events, id)
				removed++
			}
		}
		if len(events) == 0 {
			delete(s.tables, key)
		}
	}
	s.size -= removed
	return removed
}

// Len returns the number of tracked watermarks.
func (s *Suppressor) Len() int { return s.size }

// Reset drops all watermarks.
func (s *Suppressor) Reset() {
	s.tables = make(map[tableKey]map[uint16]watermark)
	s.size = 0
}
