// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"strings"

	"golang.org/x/text/language"
)

// bibliographic maps ISO 639-2/B codes seen in broadcast tables to their
// terminology form so both spellings share one canonical key.
var bibliographic = map[string]string{
	"alb": "sqi",
	"arm": "hye",
	"baq": "eus",
	"bur": "mya",
	"chi": "zho",
	"cze": "ces",
	"dut": "nld",
	"fre": "fra",
	"geo": "kat",
	"ger": "deu",
	"gre": "ell",
	"ice": "isl",
	"mac": "mkd",
	"mao": "mri",
	"may": "msa",
	"per": "fas",
	"rum": "ron",
	"slo": "slk",
	"tib": "bod",
	"wel": "cym",
}

// CanonicalLanguage returns the canonical key for an ISO 639 language code.
// Two- and three-letter spellings of the same language share a key.
// Unknown codes are returned lower-cased.
func CanonicalLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if t, ok := bibliographic[code]; ok {
		code = t
	}
	if base, err := language.ParseBase(code); err == nil {
		return base.String()
	}
	return code
}

// LanguagePreferences ranks canonical language keys. Lower is more preferred.
type LanguagePreferences map[string]int

// NewLanguagePreferences ranks langs in list order starting at 1. Empty
// entries are ignored and a repeated language keeps its first rank.
func NewLanguagePreferences(langs []string) LanguagePreferences {
	prefs := make(LanguagePreferences, len(langs))
	priority := 1
	for _, l := range langs {
		if strings.TrimSpace(l) == "" {
			continue
		}
		key := CanonicalLanguage(l)
		if _, dup := prefs[key]; dup {
			continue
		}
		prefs[key] = priority
		priority++
	}
	return prefs
}

// bestIndex returns the index of the variant with the lowest priority, the
// first variant on ties, and 0 when nothing matches.
func (p LanguagePreferences) bestIndex(variants []TextVariant) int {
	best, bestPrio := -1, 0
	for i, v := range variants {
		prio, ok := p[CanonicalLanguage(v.Lang)]
		if !ok {
			continue
		}
		if best < 0 || prio < bestPrio {
			best, bestPrio = i, prio
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// BestMatch picks the variant whose language ranks best. Without any match
// the first listed variant is used.
func (p LanguagePreferences) BestMatch(variants []TextVariant) string {
	if len(variants) == 0 {
		return ""
	}
	return variants[p.bestIndex(variants)].Text
}

// BestMatches concatenates, in table order, every variant sharing the
// language chosen by BestMatch. Long DVB descriptions are split across
// several descriptors of the same language.
func (p LanguagePreferences) BestMatches(variants []TextVariant) string {
	if len(variants) == 0 {
		return ""
	}
	want := CanonicalLanguage(variants[p.bestIndex(variants)].Lang)

	var sb strings.Builder
	for _, v := range variants {
		if CanonicalLanguage(v.Lang) == want {
			sb.WriteString(v.Text)
		}
	}
	return sb.String()
}
