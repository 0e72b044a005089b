// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/ManuGH/eitcorr/internal/eit"
	applog "github.com/ManuGH/eitcorr/internal/log"
	"github.com/ManuGH/eitcorr/internal/metrics"
)

// Record kinds accepted by Replay.
const (
	KindATSC = "atsc"
	KindETT  = "ett"
	KindDVB  = "dvb"
)

// ReplayStats counts the lines consumed by Replay.
type ReplayStats struct {
	Lines     int `json:"lines"`
	Applied   int `json:"applied"`
	Malformed int `json:"malformed"`
	Unknown   int `json:"unknown"`
}

type recordHead struct {
	Kind string `json:"kind"`
}

// Replay feeds JSON-lines fragments from r to sink. Each line is an object
// with a "kind" of atsc, ett or dvb and the fields of the matching request
// body. Malformed lines are counted and skipped. A non-nil limiter paces
// submissions.
func Replay(ctx context.Context, r io.Reader, sink Sink, limiter *rate.Limiter) (ReplayStats, error) {
	var stats ReplayStats
	logger := applog.WithComponentFromContext(ctx, "replay")

	br := bufio.NewReaderSize(r, 64*1024)
	for {
		raw, tooLong, readErr := readLine(br, MaxBodyBytes)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return stats, fmt.Errorf("read replay input: %w", readErr)
		}

		line := bytes.TrimSpace(raw)
		if len(line) > 0 || tooLong {
			stats.Lines++
			if err := waitTurn(ctx, limiter); err != nil {
				return stats, err
			}

			result, err := "malformed", errLineTooLong
			if !tooLong {
				result, err = applyLine(ctx, sink, line)
			}
			metrics.IncReplayLine(result)
			switch result {
			case "ok":
				stats.Applied++
			case "unknown_kind":
				stats.Unknown++
				logger.Warn().
					Str(applog.FieldEvent, "replay.unknown_kind").
					Int("line", stats.Lines).
					Err(err).
					Msg("skipping record of unknown kind")
			default:
				stats.Malformed++
				logger.Warn().
					Str(applog.FieldEvent, "replay.malformed").
					Int("line", stats.Lines).
					Err(err).
					Msg("skipping malformed record")
			}
		}

		if readErr != nil {
			break
		}
	}

	logger.Info().
		Str(applog.FieldEvent, "replay.done").
		Int("lines", stats.Lines).
		Int("applied", stats.Applied).
		Int("malformed", stats.Malformed).
		Int("unknown", stats.Unknown).
		Msg("replay finished")
	return stats, nil
}

var errLineTooLong = fmt.Errorf("line exceeds %d bytes", MaxBodyBytes)

// readLine returns the next line including its newline. A line longer than
// limit is consumed up to its newline and reported with tooLong set and no
// content.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+1 {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

func waitTurn(ctx context.Context, limiter *rate.Limiter) error {
	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return ctx.Err()
}

func applyLine(ctx context.Context, sink Sink, line []byte) (string, error) {
	var head recordHead
	if err := json.Unmarshal(line, &head); err != nil {
		return "malformed", err
	}

	switch head.Kind {
	case KindATSC:
		var req ATSCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return "malformed", err
		}
		if req.Major == 0 {
			return "malformed", fmt.Errorf("atsc record without major channel")
		}
		sink.AddATSCEvents(ctx, req.Major, req.Minor, req.Events)
	case KindETT:
		var req ETTRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return "malformed", err
		}
		if req.Major == 0 {
			return "malformed", fmt.Errorf("ett record without major channel")
		}
		sink.AddETT(ctx, req.Major, req.Minor, req.ExtendedText)
	case KindDVB:
		var table eit.DVBTable
		if err := json.Unmarshal(line, &table); err != nil {
			return "malformed", err
		}
		sink.AddDVBTable(ctx, table)
	default:
		return "unknown_kind", fmt.Errorf("kind %q", head.Kind)
	}
	return "ok", nil
}
