// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldDrainID   = "drain_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Broadcast identity fields
	FieldSourceID    = "source_id"
	FieldChannelKey  = "channel_key"
	FieldChanID      = "chanid"
	FieldEventID     = "event_id"
	FieldNetworkID   = "network_id"
	FieldTransportID = "transport_id"
	FieldServiceID   = "service_id"
	FieldTableID     = "table_id"
	FieldVersion     = "version"

	// Drain summary fields
	FieldInserted   = "inserted"
	FieldComplete   = "complete"
	FieldIncomplete = "incomplete"
	FieldUnmatched  = "unmatched"

	// Path fields
	FieldPath = "path"
)
