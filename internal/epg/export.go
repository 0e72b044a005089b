// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/eitcorr/internal/eit"
	applog "github.com/ManuGH/eitcorr/internal/log"
	"github.com/ManuGH/eitcorr/internal/metrics"
	"github.com/ManuGH/eitcorr/internal/persistence/sqlite"
	"github.com/ManuGH/eitcorr/internal/telemetry"
)

// Source reads the guide for export.
type Source interface {
	Channels(ctx context.Context) ([]sqlite.Channel, error)
	Programs(ctx context.Context, from, to time.Time) ([]eit.Event, error)
}

// Result summarises an export run.
type Result struct {
	Channels   int
	Programmes int
}

// Build assembles the XMLTV document for guided channels and the programmes
// overlapping [from, to).
func Build(ctx context.Context, src Source, from, to time.Time) (TV, error) {
	channels, err := src.Channels(ctx)
	if err != nil {
		return TV{}, fmt.Errorf("load channels: %w", err)
	}

	ids := make(map[uint32]string, len(channels))
	xmlChannels := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if !ch.UseOnAirGuide {
			continue
		}
		id := ChannelID(ch.ChanID, ch.CallSign, ch.Name)
		ids[ch.ChanID] = id

		names := make([]string, 0, 2)
		for _, n := range []string{ch.Name, ch.CallSign} {
			if n != "" && (len(names) == 0 || names[0] != n) {
				names = append(names, n)
			}
		}
		xmlChannels = append(xmlChannels, Channel{ID: id, DisplayName: names})
	}

	events, err := src.Programs(ctx, from, to)
	if err != nil {
		return TV{}, fmt.Errorf("load programs: %w", err)
	}
	return GenerateXMLTV(xmlChannels, ProgrammesFromEvents(events, ids)), nil
}

// Export writes the guide for [from, to) to path. The file is replaced
// atomically and synced before the rename.
func Export(ctx context.Context, src Source, path string, from, to time.Time) (res Result, err error) {
	ctx, span := telemetry.Tracer("eitcorr/epg").Start(ctx, "epg.export")
	defer span.End()
	defer func() {
		metrics.RecordExport(res.Programmes, err)
		telemetry.RecordError(span, err, "export_failed")
	}()
	logger := applog.FromContext(ctx)

	tv, err := Build(ctx, src, from, to)
	if err != nil {
		return Result{}, err
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return Result{}, fmt.Errorf("create pending XMLTV file: %w", err)
	}
	defer func() {
		// Removes the temp file unless it was committed.
		if cerr := pendingFile.Cleanup(); cerr != nil {
			logger.Debug().Err(cerr).Msg("cleanup pending XMLTV file")
		}
	}()

	w := bufio.NewWriter(pendingFile)
	if err := EncodeXMLTV(w, tv); err != nil {
		return Result{}, fmt.Errorf("write XMLTV data: %w", err)
	}
	if err := w.Flush(); err != nil {
		return Result{}, fmt.Errorf("write XMLTV data: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return Result{}, fmt.Errorf("atomically replace XMLTV file: %w", err)
	}

	res = Result{Channels: len(tv.Channels), Programmes: len(tv.Programs)}
	span.SetAttributes(telemetry.ExportAttributes(path, res.Channels, res.Programmes)...)
	logger.Info().
		Str(applog.FieldEvent, "epg.export").
		Str(applog.FieldPath, path).
		Int("channels", res.Channels).
		Int("programmes", res.Programmes).
		Msg("XMLTV guide written")
	return res, nil
}
