// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	fragmentsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_fragments_received_total",
		Help: "Fragments handed to the engine by kind",
	}, []string{"kind"}) // kind=atsc|ett|dvb

	duplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eitcorr_duplicates_suppressed_total",
		Help: "DVB events skipped because their table version was already processed",
	})

	eventsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_events_completed_total",
		Help: "Events that reached the completion queue by origin",
	}, []string{"origin"}) // origin=immediate|correlated|dvb

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_events_dropped_total",
		Help: "Events dropped before persistence by reason",
	}, []string{"reason"}) // reason=no_channel|invalid_span|closed

	pendingEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_pending_evicted_total",
		Help: "Pending fragments evicted after exceeding the maximum age",
	}, []string{"kind"}) // kind=primary|text

	pendingFragments = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eitcorr_pending_fragments",
		Help: "Fragments waiting for their counterpart",
	}, []string{"kind"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eitcorr_queue_depth",
		Help: "Completed events awaiting persistence",
	})

	watermarkEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eitcorr_watermark_entries",
		Help: "Version watermarks currently tracked",
	})

	// Persistence metrics
	eventsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eitcorr_events_inserted_total",
		Help: "Events written to the program store",
	})

	insertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eitcorr_insert_failures_total",
		Help: "Events whose insert failed after exhausting the retry budget",
	})

	drainDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eitcorr_drain_duration_seconds",
		Help:    "Time spent persisting one chunk of completed events",
		Buckets: prometheus.DefBuckets,
	})

	// Channel resolution metrics
	channelResolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_channel_resolution_total",
		Help: "Channel key resolutions by outcome",
	}, []string{"outcome"}) // outcome=cache_hit|resolved|excluded|unknown|error

	exportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_xmltv_export_total",
		Help: "XMLTV export runs by status",
	}, []string{"status"}) // status=success|error

	exportProgrammes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eitcorr_xmltv_programmes",
		Help: "Programmes written by the last XMLTV export",
	})

	// Ingest metrics
	ingestRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_ingest_requests_total",
		Help: "Ingest API requests by route and status code class",
	}, []string{"route", "code"})

	replayLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_replay_lines_total",
		Help: "JSON lines read by replay by result",
	}, []string{"result"}) // result=ok|malformed|unknown_kind
)

func IncFragmentsReceived(kind string, n int) {
	fragmentsReceived.WithLabelValues(kind).Add(float64(n))
}
func IncDuplicateSuppressed()             { duplicatesSuppressed.Inc() }
func IncEventCompleted(origin string)     { eventsCompleted.WithLabelValues(origin).Inc() }
func IncEventDropped(reason string)       { eventsDropped.WithLabelValues(reason).Inc() }
func IncChannelResolution(outcome string) { channelResolutionTotal.WithLabelValues(outcome).Inc() }

// AddPendingEvicted records fragments removed by an eviction pass.
func AddPendingEvicted(primaries, texts int) {
	pendingEvicted.WithLabelValues("primary").Add(float64(primaries))
	pendingEvicted.WithLabelValues("text").Add(float64(texts))
}

// RecordEngineState publishes the current size of the engine's owned state.
func RecordEngineState(queued, incomplete, unmatched, watermarks int) {
	queueDepth.Set(float64(queued))
	pendingFragments.WithLabelValues("primary").Set(float64(incomplete))
	pendingFragments.WithLabelValues("text").Set(float64(unmatched))
	watermarkEntries.Set(float64(watermarks))
}

// RecordDrain records the outcome of one persisted chunk.
func RecordDrain(inserted, failed int, seconds float64) {
	eventsInserted.Add(float64(inserted))
	insertFailures.Add(float64(failed))
	drainDurationSeconds.Observe(seconds)
}

// RecordExport records an XMLTV export run.
func RecordExport(programmes int, err error) {
	if err != nil {
		exportTotal.WithLabelValues("error").Inc()
		return
	}
	exportTotal.WithLabelValues("success").Inc()
	exportProgrammes.Set(float64(programmes))
}

// IncIngestRequest counts one ingest API request. code is the status class, e.g. "2xx".
func IncIngestRequest(route, code string) { ingestRequests.WithLabelValues(route, code).Inc() }

func IncReplayLine(result string) { replayLines.WithLabelValues(result).Inc() }
