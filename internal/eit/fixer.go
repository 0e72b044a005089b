// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Fixer corrects broadcaster quirks on a completed event before it is persisted.
type Fixer interface {
	Fix(ev *Event)
}

// FixerFunc adapts a function to Fixer.
type FixerFunc func(ev *Event)

// Fix calls f(ev).
func (f FixerFunc) Fix(ev *Event) { f(ev) }

// ukSubtitleMax is the longest subtitle kept under FixUK; longer ones are
// synopses sent in the wrong field.
const ukSubtitleMax = 128

// DefaultFixer applies the text corrections shared by all broadcasters plus
// the fixups selected by the event's bitmask.
type DefaultFixer struct{}

// Fix normalises text fields and applies fixup-specific corrections.
func (DefaultFixer) Fix(ev *Event) {
	ev.Title = cleanText(ev.Title)
	ev.Subtitle = cleanText(ev.Subtitle)
	ev.Description = cleanText(ev.Description)
	ev.Category = cleanText(ev.Category)

	if ev.Fixup&FixSubtitle != 0 && ev.Subtitle == "" {
		if title, sub, ok := strings.Cut(ev.Title, ": "); ok && title != "" && sub != "" {
			ev.Title, ev.Subtitle = title, sub
		}
	}

	if ev.Fixup&FixUK != 0 && ev.Description == "" && utf8.RuneCountInString(ev.Subtitle) > ukSubtitleMax {
		ev.Description, ev.Subtitle = ev.Subtitle, ""
	}

	if ev.Subtitle == ev.Title {
		ev.Subtitle = ""
	}
}

// cleanText composes to NFC, drops control characters and collapses whitespace.
func cleanText(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		if r < 0x20 || (r >= 0x80 && r < 0xa0) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
