// SPDX-License-Identifier: MIT
package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEngineCounters(t *testing.T) {
	before := testutil.ToFloat64(fragmentsReceived.WithLabelValues("dvb"))
	IncFragmentsReceived("dvb", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(fragmentsReceived.WithLabelValues("dvb")))

	before = testutil.ToFloat64(duplicatesSuppressed)
	IncDuplicateSuppressed()
	assert.Equal(t, before+1, testutil.ToFloat64(duplicatesSuppressed))

	before = testutil.ToFloat64(eventsDropped.WithLabelValues("no_channel"))
	IncEventDropped("no_channel")
	assert.Equal(t, before+1, testutil.ToFloat64(eventsDropped.WithLabelValues("no_channel")))

	beforeP := testutil.ToFloat64(pendingEvicted.WithLabelValues("primary"))
	beforeT := testutil.ToFloat64(pendingEvicted.WithLabelValues("text"))
	AddPendingEvicted(2, 5)
	assert.Equal(t, beforeP+2, testutil.ToFloat64(pendingEvicted.WithLabelValues("primary")))
	assert.Equal(t, beforeT+5, testutil.ToFloat64(pendingEvicted.WithLabelValues("text")))
}

func TestRecordEngineState(t *testing.T) {
	RecordEngineState(4, 3, 2, 1)
	assert.Equal(t, 4.0, testutil.ToFloat64(queueDepth))
	assert.Equal(t, 3.0, testutil.ToFloat64(pendingFragments.WithLabelValues("primary")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pendingFragments.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(watermarkEntries))
}

func TestRecordDrain(t *testing.T) {
	inserted := testutil.ToFloat64(eventsInserted)
	failed := testutil.ToFloat64(insertFailures)
	RecordDrain(19, 1, 0.25)
	assert.Equal(t, inserted+19, testutil.ToFloat64(eventsInserted))
	assert.Equal(t, failed+1, testutil.ToFloat64(insertFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(drainDurationSeconds))
}

func TestRecordExport(t *testing.T) {
	success := testutil.ToFloat64(exportTotal.WithLabelValues("success"))
	RecordExport(120, nil)
	assert.Equal(t, success+1, testutil.ToFloat64(exportTotal.WithLabelValues("success")))
	assert.Equal(t, 120.0, testutil.ToFloat64(exportProgrammes))

	failure := testutil.ToFloat64(exportTotal.WithLabelValues("error"))
	RecordExport(0, errors.New("disk full"))
	assert.Equal(t, failure+1, testutil.ToFloat64(exportTotal.WithLabelValues("error")))
	assert.Equal(t, 120.0, testutil.ToFloat64(exportProgrammes), "failed export keeps last count")
}

func TestBreakerMetrics(t *testing.T) {
	SetBreakerState("metrics_test", "open")
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("metrics_test")))

	SetBreakerState("metrics_test", "bogus")
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("metrics_test")), "unknown state is ignored")

	SetBreakerState("metrics_test", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("metrics_test")))

	RecordBreakerTrip("metrics_test", "threshold_exceeded")
	IncBreakerRejected("metrics_test")
	IncBreakerRejected("metrics_test")
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerTrips.WithLabelValues("metrics_test", "threshold_exceeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerRejected.WithLabelValues("metrics_test")))
}

func TestIngestCounters(t *testing.T) {
	before := testutil.ToFloat64(ingestRequests.WithLabelValues("/api/v1/ett", "2xx"))
	IncIngestRequest("/api/v1/ett", "2xx")
	assert.Equal(t, before+1, testutil.ToFloat64(ingestRequests.WithLabelValues("/api/v1/ett", "2xx")))

	before = testutil.ToFloat64(replayLines.WithLabelValues("malformed"))
	IncReplayLine("malformed")
	assert.Equal(t, before+1, testutil.ToFloat64(replayLines.WithLabelValues("malformed")))
}
