// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest exposes the engine's fragment submission operations over
// HTTP and replays recorded fragments from JSON lines.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/eitcorr/internal/eit"
	"github.com/ManuGH/eitcorr/internal/health"
	applog "github.com/ManuGH/eitcorr/internal/log"
	"github.com/ManuGH/eitcorr/internal/telemetry"
)

// MaxBodyBytes caps one ingest request body.
const MaxBodyBytes = 4 << 20

// Sink receives decoded fragments. *eit.Engine implements it.
type Sink interface {
	AddATSCEvents(ctx context.Context, major, minor uint16, events []eit.ATSCEvent)
	AddETT(ctx context.Context, major, minor uint16, ett eit.ExtendedText)
	AddDVBTable(ctx context.Context, table eit.DVBTable)
	Stats() eit.Stats
}

// ATSCRequest carries the event rows of one ATSC table for a virtual channel.
type ATSCRequest struct {
	Major  uint16          `json:"major"`
	Minor  uint16          `json:"minor"`
	Events []eit.ATSCEvent `json:"events"`
}

// ETTRequest carries the extended text of one ATSC event.
type ETTRequest struct {
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
	eit.ExtendedText
}

// Options configures the router.
type Options struct {
	Sink Sink
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int
	Version   string
	// Health serves /healthz and /readyz; nil means a manager without checks.
	Health *health.Manager
}

type server struct {
	sink    Sink
	version string
}

// NewRouter builds the ingest HTTP handler.
func NewRouter(opts Options) http.Handler {
	s := &server{sink: opts.Sink, version: opts.Version}
	probes := opts.Health
	if probes == nil {
		probes = health.NewManager(opts.Version)
	}

	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(observe)

	r.Get("/healthz", probes.ServeHealth)
	r.Get("/readyz", probes.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(rateLimit(opts.RateLimit))
		}
		r.Post("/eit/atsc", s.handleATSC)
		r.Post("/ett", s.handleETT)
		r.Post("/eit/dvb", s.handleDVB)
		r.Get("/status", s.handleStatus)
	})

	return withTracing(r, "eitcorr.ingest")
}

func (s *server) handleATSC(w http.ResponseWriter, r *http.Request) {
	var req ATSCRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Major == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_channel", "major channel number is required")
		return
	}
	key := eit.ATSCKey{Major: req.Major, Minor: req.Minor}
	trace.SpanFromContext(r.Context()).SetAttributes(telemetry.ATSCTableAttributes("atsc", key.String(), len(req.Events))...)

	s.sink.AddATSCEvents(r.Context(), req.Major, req.Minor, req.Events)
	writeAccepted(w, len(req.Events))
}

func (s *server) handleETT(w http.ResponseWriter, r *http.Request) {
	var req ETTRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Major == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_channel", "major channel number is required")
		return
	}
	key := eit.ATSCKey{Major: req.Major, Minor: req.Minor}
	trace.SpanFromContext(r.Context()).SetAttributes(telemetry.ATSCTableAttributes("ett", key.String(), 1)...)

	s.sink.AddETT(r.Context(), req.Major, req.Minor, req.ExtendedText)
	writeAccepted(w, 1)
}

func (s *server) handleDVB(w http.ResponseWriter, r *http.Request) {
	var req eit.DVBTable
	if !decodeBody(w, r, &req) {
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(
		telemetry.DVBTableAttributes(req.NetworkID, req.TransportID, req.ServiceID, req.Version, len(req.Events))...)

	s.sink.AddDVBTable(r.Context(), req)
	writeAccepted(w, len(req.Events))
}

type statusResponse struct {
	Version string    `json:"version,omitempty"`
	Engine  eit.Stats `json:"engine"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Version: s.version, Engine: s.sink.Stats()})
}

// decodeBody decodes a size-limited JSON body into dst. On failure it writes
// the error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, r, http.StatusBadRequest, "read_failed", err.Error())
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func writeAccepted(w http.ResponseWriter, n int) {
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": n})
}

type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeJSON(w, status, errorResponse{
		Error:     code,
		Detail:    detail,
		RequestID: applog.RequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
