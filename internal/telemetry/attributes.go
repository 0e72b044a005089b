// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Table attributes
	TableKindKey      = "eit.kind"
	TableNetworkKey   = "eit.network_id"
	TableTransportKey = "eit.transport_id"
	TableServiceKey   = "eit.service_id"
	TableVersionKey   = "eit.version"
	TableEventsKey    = "eit.events"
	TableChannelKey   = "eit.channel"

	// Drain attributes
	DrainChunkSizeKey  = "drain.chunk_size"
	DrainDequeuedKey   = "drain.dequeued"
	DrainInsertedKey   = "drain.inserted"
	DrainFailedKey     = "drain.failed"
	DrainIncompleteKey = "drain.incomplete"
	DrainUnmatchedKey  = "drain.unmatched"

	// Export attributes
	ExportPathKey       = "export.path"
	ExportChannelsKey   = "export.channels"
	ExportProgrammesKey = "export.programmes"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ATSCTableAttributes describes an ATSC table or extended text submission.
func ATSCTableAttributes(kind, channel string, events int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TableKindKey, kind),
		attribute.String(TableChannelKey, channel),
		attribute.Int(TableEventsKey, events),
	}
}

// DVBTableAttributes describes a DVB table section.
func DVBTableAttributes(network, transport, service uint16, version uint8, events int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TableKindKey, "dvb"),
		attribute.Int(TableNetworkKey, int(network)),
		attribute.Int(TableTransportKey, int(transport)),
		attribute.Int(TableServiceKey, int(service)),
		attribute.Int(TableVersionKey, int(version)),
		attribute.Int(TableEventsKey, events),
	}
}

// DrainAttributes summarises one persisted chunk.
func DrainAttributes(chunkSize, dequeued, inserted, failed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(DrainChunkSizeKey, chunkSize),
		attribute.Int(DrainDequeuedKey, dequeued),
		attribute.Int(DrainInsertedKey, inserted),
		attribute.Int(DrainFailedKey, failed),
	}
}

// PendingAttributes reports correlator backlog after a drain.
func PendingAttributes(incomplete, unmatched int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(DrainIncompleteKey, incomplete),
		attribute.Int(DrainUnmatchedKey, unmatched),
	}
}

// ExportAttributes describes an XMLTV export run.
func ExportAttributes(path string, channels, programmes int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if path != "" {
		attrs = append(attrs, attribute.String(ExportPathKey, path))
	}
	return append(attrs,
		attribute.Int(ExportChannelsKey, channels),
		attribute.Int(ExportProgrammesKey, programmes),
	)
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
