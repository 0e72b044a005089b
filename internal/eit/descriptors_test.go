// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFeatures(t *testing.T) {
	blob := []byte{
		0x86, 0x02, 0xc1, 0x00, // caption service
		0x50, 0x03, 0xf5, 0x0b, 0x01, // H.264 HD video, reserved bits set
		0x50, 0x02, 0x02, 0x03, // stereo audio
		0x50, 0x02, 0x03, 0x10, // DVB subtitles
		0x54, 0x02, 0x10, 0x00, // content: movie
		0x54, 0x02, 0x40, 0x00, // second content descriptor ignored
		0x4d, 0x00, // unrelated
	}

	f := extractFeatures(blob)
	assert.True(t, f.captioned)
	assert.True(t, f.hdtv)
	assert.True(t, f.stereo)
	assert.True(t, f.subtitled)
	assert.True(t, f.hasContent)
	assert.Equal(t, "Movie", f.category)
	assert.Equal(t, CategoryMovie, f.categoryType)
}

func TestExtractFeatures_Malformed(t *testing.T) {
	tests := map[string][]byte{
		"nil":             nil,
		"single byte":     {0x86},
		"truncated":       {0x86, 0x05, 0x00},
		"short component": {0x50, 0x01, 0x05},
		"empty content":   {0x54, 0x00},
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, features{}, extractFeatures(blob))
		})
	}
}

func TestParseDescriptors_StopsAtTruncation(t *testing.T) {
	ds := parseDescriptors([]byte{0x86, 0x00, 0x50, 0x04, 0x01})
	if assert.Len(t, ds, 1) {
		assert.Equal(t, byte(0x86), ds[0].tag)
	}
}
