// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import "time"

// TextVariant is one language-tagged rendering of a string carried by a table.
type TextVariant struct {
	Lang string `json:"lang"`
	Text string `json:"text"`
}

// ATSCEvent is one event row of an ATSC event information table. Its start
// time is counted in GPS seconds and its extended text, if any, arrives in a
// separate extended text table.
type ATSCEvent struct {
	EventID     uint16        `json:"event_id"`
	StartGPS    uint32        `json:"start_gps"`
	Length      uint32        `json:"length"`
	ETM         bool          `json:"etm"`
	Titles      []TextVariant `json:"titles"`
	Descriptors []byte        `json:"descriptors,omitempty"`
}

// ExtendedText is the extended text message for one ATSC event.
type ExtendedText struct {
	EventID uint16        `json:"event_id"`
	Texts   []TextVariant `json:"texts"`
}

// DVBTable is one section of a DVB event information table.
type DVBTable struct {
	NetworkID   uint16     `json:"network_id"`
	TransportID uint16     `json:"transport_id"`
	ServiceID   uint16     `json:"service_id"`
	TableID     uint8      `json:"table_id"`
	Version     uint8      `json:"version"`
	Events      []DVBEvent `json:"events"`
}

// DVBEvent is one event of a DVB table. DVB events are complete on arrival.
type DVBEvent struct {
	EventID      uint16        `json:"event_id"`
	Start        time.Time     `json:"start"`
	Duration     uint32        `json:"duration"`
	Titles       []TextVariant `json:"titles"`
	Subtitles    []TextVariant `json:"subtitles,omitempty"`
	Descriptions []TextVariant `json:"descriptions,omitempty"`
	Category     string        `json:"category,omitempty"`
	CategoryType CategoryType  `json:"category_type,omitempty"`
	Descriptors  []byte        `json:"descriptors,omitempty"`
}

// End returns the UTC end of the event.
func (e DVBEvent) End() time.Time {
	return e.Start.Add(time.Duration(e.Duration) * time.Second)
}

// CategoryType classifies a program for the guide.
type CategoryType string

const (
	CategoryNone   CategoryType = ""
	CategoryMovie  CategoryType = "movie"
	CategorySeries CategoryType = "series"
	CategorySports CategoryType = "sports"
	CategoryTVShow CategoryType = "tvshow"
)

// Event is a completed program occurrence ready for persistence.
type Event struct {
	ChanID       uint32
	Title        string
	Subtitle     string
	Description  string
	Category     string
	CategoryType CategoryType
	Start        time.Time
	End          time.Time
	Fixup        Fixup
	Captioned    bool
	Subtitled    bool
	Stereo       bool
	HDTV         bool
}
