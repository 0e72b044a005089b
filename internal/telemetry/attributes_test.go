// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("POST", "/api/v1/eit/atsc", 202)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, HTTPMethodKey, "POST")
	verifyAttribute(t, attrs, HTTPRouteKey, "/api/v1/eit/atsc")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 202)
}

func TestATSCTableAttributes(t *testing.T) {
	attrs := ATSCTableAttributes("atsc", "7.1", 12)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, TableKindKey, "atsc")
	verifyAttribute(t, attrs, TableChannelKey, "7.1")
	verifyIntAttribute(t, attrs, TableEventsKey, 12)
}

func TestDVBTableAttributes(t *testing.T) {
	attrs := DVBTableAttributes(9018, 4164, 4287, 17, 8)

	if len(attrs) != 6 {
		t.Fatalf("Expected 6 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, TableKindKey, "dvb")
	verifyIntAttribute(t, attrs, TableNetworkKey, 9018)
	verifyIntAttribute(t, attrs, TableTransportKey, 4164)
	verifyIntAttribute(t, attrs, TableServiceKey, 4287)
	verifyIntAttribute(t, attrs, TableVersionKey, 17)
	verifyIntAttribute(t, attrs, TableEventsKey, 8)
}

func TestDrainAttributes(t *testing.T) {
	attrs := append(DrainAttributes(20, 20, 19, 1), PendingAttributes(4, 2)...)

	if len(attrs) != 6 {
		t.Fatalf("Expected 6 attributes, got %d", len(attrs))
	}

	verifyIntAttribute(t, attrs, DrainChunkSizeKey, 20)
	verifyIntAttribute(t, attrs, DrainDequeuedKey, 20)
	verifyIntAttribute(t, attrs, DrainInsertedKey, 19)
	verifyIntAttribute(t, attrs, DrainFailedKey, 1)
	verifyIntAttribute(t, attrs, DrainIncompleteKey, 4)
	verifyIntAttribute(t, attrs, DrainUnmatchedKey, 2)
}

func TestExportAttributes(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantLen int
	}{
		{name: "with path", path: "/data/guide.xml", wantLen: 3},
		{name: "without path", path: "", wantLen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := ExportAttributes(tt.path, 40, 1200)

			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			if tt.path != "" {
				verifyAttribute(t, attrs, ExportPathKey, tt.path)
			}
			verifyIntAttribute(t, attrs, ExportChannelsKey, 40)
			verifyIntAttribute(t, attrs, ExportProgrammesKey, 1200)
		})
	}
}

func TestErrorAttributes(t *testing.T) {
	err := errors.New("test error")
	attrs := ErrorAttributes(err, "commit_failed")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "commit_failed")
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
