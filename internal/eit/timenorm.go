// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultGPSLeapSeconds is the GPS-UTC difference since 2017-01-01.
const DefaultGPSLeapSeconds = 18

var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// OffsetKind selects the timestamp family of a raw start time.
type OffsetKind int

const (
	// OffsetGPS marks seconds since the GPS epoch (ATSC).
	OffsetGPS OffsetKind = iota
	// OffsetUTC marks seconds since the Unix epoch (DVB).
	OffsetUTC
)

// UTC offset configuration modes.
const (
	UTCOffsetAuto = "Auto"
	UTCOffsetNone = "None"
)

// OffsetProbe reads the local and UTC wall clocks. The two reads are not
// atomic, which is why Auto clamps the difference to whole minutes.
type OffsetProbe func() (local, utc time.Time)

// SystemProbe reads the host clock.
func SystemProbe() (time.Time, time.Time) {
	local := time.Now()
	utc := time.Now().UTC()
	return local, utc
}

// ParseUTCOffset resolves a UTC offset mode to seconds east of UTC.
// "Auto" (or empty) measures the host clock, "None" forces zero, anything
// else must be a signed "HH MM", "HHMM" or "HH:MM" string.
func ParseUTCOffset(mode string, probe OffsetProbe) (int, error) {
	mode = strings.TrimSpace(mode)
	switch {
	case mode == "" || strings.EqualFold(mode, UTCOffsetAuto):
		if probe == nil {
			probe = SystemProbe
		}
		return AutoUTCOffset(probe()), nil
	case strings.EqualFold(mode, UTCOffsetNone):
		return 0, nil
	}

	sign := 1
	switch mode[0] {
	case '-':
		sign = -1
		mode = mode[1:]
	case '+':
		mode = mode[1:]
	}
	digits := strings.NewReplacer(" ", "", ":", "").Replace(mode)
	if len(digits) != 4 {
		return 0, fmt.Errorf("invalid utc offset %q: want [+-]HH MM", mode)
	}
	hours, err := strconv.Atoi(digits[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid utc offset hours %q: %w", digits[:2], err)
	}
	minutes, err := strconv.Atoi(digits[2:])
	if err != nil {
		return 0, fmt.Errorf("invalid utc offset minutes %q: %w", digits[2:], err)
	}
	if hours > 14 || minutes > 59 {
		return 0, fmt.Errorf("utc offset %q out of range", mode)
	}
	return sign * (hours*3600 + minutes*60), nil
}

// AutoUTCOffset computes local-minus-UTC wall clock seconds and clamps the
// result to a whole minute.
func AutoUTCOffset(local, utc time.Time) int {
	lw := wallClock(local)
	uw := wallClock(utc.UTC())
	return ClampOffset(int(lw.Sub(uw) / time.Second))
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// ClampOffset snaps an offset within 10 seconds of a minute boundary onto it.
func ClampOffset(offset int) int {
	off := offset % 60
	switch {
	case off > -10 && off < 10:
		offset -= off
	case off < -50:
		offset -= 60 + off
	case off > 50:
		offset += 60 - off
	}
	return offset
}

// FormatOffset renders seconds east of UTC as "+HH:MM:SS".
func FormatOffset(offset int) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, offset/3600, (offset/60)%60, offset%60)
}

// TimeNormalizer converts raw table timestamps to canonical civil time: the
// correct instant carried in a fixed zone whose wall clock is local time.
type TimeNormalizer struct {
	utcOffset int
	gpsOffset int
	loc       *time.Location
	fix       TimeFixer
}

// NewTimeNormalizer builds a normalizer for a UTC offset in seconds and the
// configured GPS leap second correction. A nil fix leaves times untouched.
func NewTimeNormalizer(utcOffset, leapSeconds int, fix TimeFixer) TimeNormalizer {
	return TimeNormalizer{
		utcOffset: utcOffset,
		gpsOffset: -leapSeconds,
		loc:       time.FixedZone("EIT"+FormatOffset(utcOffset)[:6], utcOffset),
		fix:       fix,
	}
}

// UTCOffset returns the configured offset in seconds.
func (n TimeNormalizer) UTCOffset() int { return n.utcOffset }

// FromGPS converts GPS seconds to canonical time.
func (n TimeNormalizer) FromGPS(raw uint32) time.Time {
	return gpsEpoch.Add(time.Duration(int64(raw)+int64(n.gpsOffset)) * time.Second).In(n.loc)
}

// FromUTC converts an absolute UTC time to canonical time.
func (n TimeNormalizer) FromUTC(t time.Time) time.Time {
	return t.In(n.loc)
}

// Canonical dispatches on the timestamp family. UTC raw values are Unix seconds.
func (n TimeNormalizer) Canonical(raw int64, kind OffsetKind) time.Time {
	if kind == OffsetGPS {
		return n.FromGPS(uint32(raw))
	}
	return n.FromUTC(time.Unix(raw, 0))
}

// Span applies the broadcaster time fix to start and derives the end from it.
func (n TimeNormalizer) Span(start time.Time, duration uint32, fixup Fixup) (time.Time, time.Time) {
	if n.fix != nil {
		start = n.fix(start, fixup)
	}
	return start, start.Add(time.Duration(duration) * time.Second)
}
