// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/eitcorr/internal/eit"
	"github.com/ManuGH/eitcorr/internal/health"
)

type atscCall struct {
	major, minor uint16
	events       []eit.ATSCEvent
}

type ettCall struct {
	major, minor uint16
	ett          eit.ExtendedText
}

type fakeSink struct {
	mu    sync.Mutex
	atsc  []atscCall
	etts  []ettCall
	dvb   []eit.DVBTable
	stats eit.Stats
}

func (f *fakeSink) AddATSCEvents(_ context.Context, major, minor uint16, events []eit.ATSCEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.atsc = append(f.atsc, atscCall{major, minor, events})
}

func (f *fakeSink) AddETT(_ context.Context, major, minor uint16, ett eit.ExtendedText) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.etts = append(f.etts, ettCall{major, minor, ett})
}

func (f *fakeSink) AddDVBTable(_ context.Context, table eit.DVBTable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dvb = append(f.dvb, table)
}

func (f *fakeSink) Stats() eit.Stats { return f.stats }

func do(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "192.0.2.10:40000"
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostATSC(t *testing.T) {
	sink := &fakeSink{}
	h := NewRouter(Options{Sink: sink})

	rec := do(t, h, http.MethodPost, "/api/v1/eit/atsc", `{
		"major": 7, "minor": 1,
		"events": [{"event_id": 7, "start_gps": 1300000020, "length": 1800, "etm": true,
		            "titles": [{"lang": "eng", "text": "Evening News"}]}]
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"accepted":1}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	require.Len(t, sink.atsc, 1)
	call := sink.atsc[0]
	assert.Equal(t, uint16(7), call.major)
	assert.Equal(t, uint16(1), call.minor)
	require.Len(t, call.events, 1)
	assert.Equal(t, eit.ATSCEvent{
		EventID: 7, StartGPS: 1300000020, Length: 1800, ETM: true,
		Titles: []eit.TextVariant{{Lang: "eng", Text: "Evening News"}},
	}, call.events[0])
}

func TestPostETT(t *testing.T) {
	sink := &fakeSink{}
	h := NewRouter(Options{Sink: sink})

	rec := do(t, h, http.MethodPost, "/api/v1/ett",
		`{"major": 7, "minor": 1, "event_id": 7, "texts": [{"lang": "eng", "text": "Synopsis"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, sink.etts, 1)
	assert.Equal(t, ettCall{7, 1, eit.ExtendedText{
		EventID: 7, Texts: []eit.TextVariant{{Lang: "eng", Text: "Synopsis"}},
	}}, sink.etts[0])
}

func TestPostDVB(t *testing.T) {
	sink := &fakeSink{}
	h := NewRouter(Options{Sink: sink})

	rec := do(t, h, http.MethodPost, "/api/v1/eit/dvb", `{
		"network_id": 9018, "transport_id": 4164, "service_id": 4287, "table_id": 78, "version": 3,
		"events": [
			{"event_id": 1, "start": "2025-03-01T20:00:00Z", "duration": 3600, "titles": [{"lang": "eng", "text": "News"}]},
			{"event_id": 2, "start": "2025-03-01T21:00:00Z", "duration": 1800, "titles": [{"lang": "eng", "text": "Weather"}]}
		]
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"accepted":2}`, rec.Body.String())

	require.Len(t, sink.dvb, 1)
	table := sink.dvb[0]
	assert.Equal(t, uint16(4287), table.ServiceID)
	assert.Equal(t, uint8(3), table.Version)
	require.Len(t, table.Events, 2)
	assert.Equal(t, "2025-03-01T21:00:00Z", table.Events[0].End().Format("2006-01-02T15:04:05Z07:00"))
}

func TestPost_RejectsBadBodies(t *testing.T) {
	sink := &fakeSink{}
	h := NewRouter(Options{Sink: sink})

	tests := []struct {
		name, path, body string
		wantCode         string
	}{
		{"broken json", "/api/v1/eit/atsc", `{"major": 7,`, "invalid_json"},
		{"unknown field", "/api/v1/eit/atsc", `{"major": 7, "minor": 1, "channel": "7.1"}`, "invalid_json"},
		{"missing major", "/api/v1/eit/atsc", `{"minor": 1, "events": []}`, "invalid_channel"},
		{"ett missing major", "/api/v1/ett", `{"event_id": 7}`, "invalid_channel"},
		{"dvb wrong type", "/api/v1/eit/dvb", `{"service_id": "one"}`, "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body, HeaderRequestID, "req-123")
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error)
			assert.Equal(t, "req-123", resp.RequestID)
		})
	}
	assert.Empty(t, sink.atsc)
	assert.Empty(t, sink.etts)
	assert.Empty(t, sink.dvb)
}

func TestPost_BodyTooLarge(t *testing.T) {
	h := NewRouter(Options{Sink: &fakeSink{}})
	body := `{"major": 7, "minor": 1, "events": [], "pad": "` + strings.Repeat("x", MaxBodyBytes) + `"}`

	rec := do(t, h, http.MethodPost, "/api/v1/eit/atsc", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStatus(t *testing.T) {
	sink := &fakeSink{stats: eit.Stats{Queued: 3, Incomplete: 2, Unmatched: 1, Watermarks: 9}}
	h := NewRouter(Options{Sink: sink, Version: "v1.0.0"})

	rec := do(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Equal(t, sink.stats, resp.Engine)
}

func TestHealthProbes(t *testing.T) {
	h := NewRouter(Options{Sink: &fakeSink{}, Version: "v1.0.0"})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	probes := health.NewManager("v1.0.0")
	probes.RegisterChecker(health.NewPingChecker("store", func(context.Context) error {
		return errors.New("database is closed")
	}, true))
	h = NewRouter(Options{Sink: &fakeSink{}, Health: probes})

	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code, "liveness ignores component state")

	rec = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is closed")
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewRouter(Options{Sink: &fakeSink{}})
	do(t, h, http.MethodGet, "/api/v1/status", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eitcorr_ingest_requests_total")
}

func TestRateLimit(t *testing.T) {
	h := NewRouter(Options{Sink: &fakeSink{}, RateLimit: 2})

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodGet, "/api/v1/status", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Health checks are outside the limited group.
	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

type panicSink struct{ fakeSink }

func (*panicSink) Stats() eit.Stats { panic("boom") }

func TestRecoverer(t *testing.T) {
	h := NewRouter(Options{Sink: &panicSink{}})
	rec := do(t, h, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}
