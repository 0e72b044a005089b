// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lineup provisions channel and multiplex rows from a YAML file.
// The engine only resolves channels that already exist in the store.
package lineup

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	applog "github.com/ManuGH/eitcorr/internal/log"
	"github.com/ManuGH/eitcorr/internal/persistence/sqlite"
	"github.com/ManuGH/eitcorr/internal/validate"
)

// Entry is one channel of a lineup file. A channel carried on a DVB
// multiplex sets NetworkID and TransportID; ATSC channels set Major/Minor.
type Entry struct {
	ChanID      uint32 `yaml:"chanid"`
	SourceID    uint32 `yaml:"source_id"`
	NetworkID   uint16 `yaml:"network_id,omitempty"`
	TransportID uint16 `yaml:"transport_id,omitempty"`
	ServiceID   uint16 `yaml:"service_id,omitempty"`
	Major       uint16 `yaml:"major,omitempty"`
	Minor       uint16 `yaml:"minor,omitempty"`
	CallSign    string `yaml:"callsign,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Guide       *bool  `yaml:"guide,omitempty"` // defaults to true
}

// Lineup is the root document of a lineup file.
type Lineup struct {
	Channels []Entry `yaml:"channels"`
}

// Store is the subset of the channel store used to provision a lineup.
type Store interface {
	UpsertMultiplex(ctx context.Context, sourceID uint32, networkID, transportID uint16) (int64, error)
	UpsertChannel(ctx context.Context, ch sqlite.Channel) error
}

// ErrEmpty is returned when a lineup file lists no channels.
var ErrEmpty = errors.New("lineup has no channels")

// Decode reads a lineup with strict field checking and validates it.
func Decode(r io.Reader) (Lineup, error) {
	var l Lineup
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return l, ErrEmpty
		}
		return l, fmt.Errorf("decode lineup: %w", err)
	}
	if len(l.Channels) == 0 {
		return l, ErrEmpty
	}
	if err := l.Validate(); err != nil {
		return l, err
	}
	return l, nil
}

// Validate checks ids and rejects duplicate channel ids.
func (l Lineup) Validate() error {
	v := validate.New()
	seen := make(map[uint32]int, len(l.Channels))
	for i, e := range l.Channels {
		field := fmt.Sprintf("channels[%d]", i)
		v.Positive(field+".chanid", int(e.ChanID))
		if prev, dup := seen[e.ChanID]; dup && e.ChanID != 0 {
			v.AddError(field+".chanid", fmt.Sprintf("duplicate of channels[%d]", prev), e.ChanID)
		}
		seen[e.ChanID] = i
		if e.Major == 0 && e.ServiceID == 0 {
			v.AddError(field, "needs an ATSC major number or a DVB service id", e.ChanID)
		}
		if e.Minor != 0 && e.Major == 0 {
			v.AddError(field+".minor", "set without major", e.Minor)
		}
	}
	return v.Err()
}

// Apply writes every entry to store. DVB entries get their multiplex
// created first. It returns the number of channels written.
func Apply(ctx context.Context, store Store, l Lineup) (int, error) {
	logger := applog.WithComponentFromContext(ctx, "lineup")
	mplexes := make(map[[3]uint32]int64)

	for i, e := range l.Channels {
		ch := sqlite.Channel{
			ChanID:        e.ChanID,
			SourceID:      e.SourceID,
			ServiceID:     e.ServiceID,
			NetworkID:     e.NetworkID,
			TransportID:   e.TransportID,
			Major:         e.Major,
			Minor:         e.Minor,
			CallSign:      e.CallSign,
			Name:          e.Name,
			UseOnAirGuide: e.Guide == nil || *e.Guide,
		}
		if e.NetworkID != 0 || e.TransportID != 0 {
			key := [3]uint32{e.SourceID, uint32(e.NetworkID), uint32(e.TransportID)}
			id, ok := mplexes[key]
			if !ok {
				var err error
				id, err = store.UpsertMultiplex(ctx, e.SourceID, e.NetworkID, e.TransportID)
				if err != nil {
					return i, err
				}
				mplexes[key] = id
			}
			ch.MplexID = id
		}
		if err := store.UpsertChannel(ctx, ch); err != nil {
			return i, err
		}
		logger.Debug().
			Str(applog.FieldEvent, "lineup.channel").
			Uint32(applog.FieldChanID, ch.ChanID).
			Uint32(applog.FieldSourceID, ch.SourceID).
			Int64("mplex_id", ch.MplexID).
			Bool("guide", ch.UseOnAirGuide).
			Msg("channel provisioned")
	}

	logger.Info().
		Str(applog.FieldEvent, "lineup.applied").
		Int("channels", len(l.Channels)).
		Int("multiplexes", len(mplexes)).
		Msg("lineup applied")
	return len(l.Channels), nil
}
