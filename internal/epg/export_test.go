// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/eitcorr/internal/eit"
	"github.com/ManuGH/eitcorr/internal/persistence/sqlite"
)

type fakeSource struct {
	channels []sqlite.Channel
	events   []eit.Event
	err      error
}

func (f fakeSource) Channels(context.Context) ([]sqlite.Channel, error) { return f.channels, f.err }

func (f fakeSource) Programs(context.Context, time.Time, time.Time) ([]eit.Event, error) {
	return f.events, nil
}

var est = time.FixedZone("", -5*3600)

func testSource() fakeSource {
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, est)
	return fakeSource{
		channels: []sqlite.Channel{
			{ChanID: 1071, CallSign: "WABC", Name: "ABC 7", UseOnAirGuide: true},
			{ChanID: 1072, CallSign: "WXYZ", UseOnAirGuide: false},
		},
		events: []eit.Event{
			{
				ChanID: 1071, Title: "Evening News", Subtitle: "Weekend", Description: "Synopsis",
				Category: "News", CategoryType: eit.CategoryTVShow,
				Start: start, End: start.Add(30 * time.Minute),
				HDTV: true, Stereo: true, Captioned: true,
			},
			{ChanID: 1072, Title: "Hidden", Start: start, End: start.Add(time.Hour)},
		},
	}
}

func TestBuild(t *testing.T) {
	tv, err := Build(context.Background(), testSource(), time.Time{}, time.Now())
	require.NoError(t, err)

	want := TV{
		Generator: Generator,
		Channels:  []Channel{{ID: "1071.wabc", DisplayName: []string{"ABC 7", "WABC"}}},
		Programs: []Programme{{
			Start:     "20250301200000 -0500",
			Stop:      "20250301203000 -0500",
			Channel:   "1071.wabc",
			Title:     Title{Text: "Evening News"},
			SubTitle:  &Title{Text: "Weekend"},
			Desc:      "Synopsis",
			Category:  []Title{{Lang: "en", Text: "News"}, {Lang: "en", Text: "tvshow"}},
			Video:     &Video{Quality: "HDTV"},
			Audio:     &Audio{Stereo: "stereo"},
			Subtitles: []Subtitle{{Type: "teletext"}},
		}},
	}
	if diff := cmp.Diff(want, tv); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeXMLTV_RoundTrips(t *testing.T) {
	tv, err := Build(context.Background(), testSource(), time.Time{}, time.Now())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeXMLTV(&buf, tv))
	assert.True(t, strings.HasPrefix(buf.String(), xml.Header))

	var decoded TV
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &decoded))
	decoded.XMLName = xml.Name{}
	tv.XMLName = xml.Name{}
	if diff := cmp.Diff(tv, decoded); diff != "" {
		t.Errorf("decoded document mismatch (-want +got):\n%s", diff)
	}
}

func TestExport_WritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.xml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	res, err := Export(context.Background(), testSource(), path, time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Result{Channels: 1, Programmes: 1}, res)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<programme start="20250301200000 -0500"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestExport_SourceErrorKeepsOldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.xml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	src := testSource()
	src.err = errors.New("database is locked")
	_, err := Export(context.Background(), src, path, time.Time{}, time.Now())
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestChannelID(t *testing.T) {
	tests := []struct {
		chanID         uint32
		callSign, name string
		want           string
	}{
		{chanID: 1071, callSign: "WABC-HD", want: "1071.wabc.hd"},
		{chanID: 2001, callSign: "", name: "Das Erste HD", want: "2001.das.erste.hd"},
		{chanID: 3, callSign: "!!", name: "", want: "3.eitcorr"},
		{chanID: 4, callSign: "Sat.1 Österreich", want: "4.sat.1.österreich"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChannelID(tt.chanID, tt.callSign, tt.name))
	}
}
