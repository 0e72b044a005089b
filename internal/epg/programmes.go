// SPDX-License-Identifier: MIT
package epg

import (
	"time"

	"github.com/ManuGH/eitcorr/internal/eit"
)

// ProgrammesFromEvents converts persisted events to XMLTV programmes. Events
// on channels missing from ids are skipped.
func ProgrammesFromEvents(events []eit.Event, ids map[uint32]string) []Programme {
	programmes := make([]Programme, 0, len(events))

	for _, ev := range events {
		channelID, ok := ids[ev.ChanID]
		if !ok || ev.Title == "" {
			continue
		}

		prog := Programme{
			Start:   formatXMLTVTime(ev.Start),
			Stop:    formatXMLTVTime(ev.End),
			Channel: channelID,
			Title:   Title{Text: ev.Title},
			Desc:    ev.Description,
		}
		if ev.Subtitle != "" {
			prog.SubTitle = &Title{Text: ev.Subtitle}
		}
		if ev.Category != "" {
			prog.Category = append(prog.Category, Title{Lang: "en", Text: ev.Category})
		}
		if ev.CategoryType != eit.CategoryNone && string(ev.CategoryType) != ev.Category {
			prog.Category = append(prog.Category, Title{Lang: "en", Text: string(ev.CategoryType)})
		}
		if ev.HDTV {
			prog.Video = &Video{Quality: "HDTV"}
		}
		if ev.Stereo {
			prog.Audio = &Audio{Stereo: "stereo"}
		}
		if ev.Captioned {
			prog.Subtitles = append(prog.Subtitles, Subtitle{Type: "teletext"})
		}
		if ev.Subtitled {
			prog.Subtitles = append(prog.Subtitles, Subtitle{Type: "onscreen"})
		}

		programmes = append(programmes, prog)
	}

	return programmes
}

// formatXMLTVTime formats time in XMLTV format: YYYYMMDDHHMMSS +ZZZZ
func formatXMLTVTime(t time.Time) string {
	return t.Format("20060102150405 -0700")
}
