// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"bytes"
	"fmt"
	"time"
)

// ATSCKey identifies an ATSC virtual channel within the configured source.
type ATSCKey struct {
	Major uint16
	Minor uint16
}

func (k ATSCKey) String() string { return fmt.Sprintf("%d.%d", k.Major, k.Minor) }

type fragmentKey struct {
	channel ATSCKey
	eventID uint16
}

type pendingPrimary struct {
	event   ATSCEvent
	title   string
	arrived time.Time
}

type pendingText struct {
	text    string
	arrived time.Time
}

// Completion is a primary fragment joined with its extended text.
type Completion struct {
	Key   ATSCKey
	Event ATSCEvent
	Title string
	Text  string
}

// Correlator joins ATSC event rows with extended text messages that may
// arrive in either order. It is not safe for concurrent use; the engine
// serialises access.
type Correlator struct {
	primaries map[fragmentKey]pendingPrimary
	texts     map[fragmentKey]pendingText
}

// NewCorrelator returns an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		primaries: make(map[fragmentKey]pendingPrimary),
		texts:     make(map[fragmentKey]pendingText),
	}
}

// SubmitPrimary offers an event row. It completes immediately when the row
// expects no extended text or its text is already pending; otherwise the row
// is held until the text arrives. A repeated row replaces the held one.
func (c *Correlator) SubmitPrimary(key ATSCKey, ev ATSCEvent, title string, now time.Time) (Completion, bool) {
	if !ev.ETM {
		return Completion{Key: key, Event: ev, Title: title}, true
	}

	fk := fragmentKey{channel: key, eventID: ev.EventID}
	if t, ok := c.texts[fk]; ok {
		delete(c.texts, fk)
		return Completion{Key: key, Event: ev, Title: title, Text: t.text}, true
	}

	ev.Descriptors = bytes.Clone(ev.Descriptors)
	ev.Titles = nil
	c.primaries[fk] = pendingPrimary{event: ev, title: title, arrived: now}
	return Completion{}, false
}

// SubmitExtendedText offers the extended text of an event. It completes when
// the event row is pending; otherwise the first text to arrive is held and
// later ones are dropped.
func (c *Correlator) SubmitExtendedText(key ATSCKey, eventID uint16, text string, now time.Time) (Completion, bool) {
	fk := fragmentKey{channel: key, eventID: eventID}
	if p, ok := c.primaries[fk]; ok {
		delete(c.primaries, fk)
		return Completion{Key: key, Event: p.event, Title: p.title, Text: text}, true
	}

	if _, ok := c.texts[fk]; !ok {
		c.texts[fk] = pendingText{text: text, arrived: now}
	}
	return Completion{}, false
}

// EvictOlderThan drops pending fragments that arrived before cutoff and
// returns the number of primaries and texts removed.
func (c *Correlator) EvictOlderThan(cutoff time.Time) (primaries, texts int) {
	for k, p := range c.primaries {
		if p.arrived.Before(cutoff) {
			delete(c.primaries, k)
			primaries++
		}
	}
	for k, t := range c.texts {
		if t.arrived.Before(cutoff) {
			delete(c.texts, k)
			texts++
		}
	}
	return primaries, texts
}

// Pending returns the number of rows awaiting text and texts awaiting a row.
func (c *Correlator) Pending() (primaries, texts int) {
	return len(c.primaries), len(c.texts)
}

// Reset drops all pending fragments.
func (c *Correlator) Reset() {
	c.primaries = make(map[fragmentKey]pendingPrimary)
	c.texts = make(map[fragmentKey]pendingText)
}
