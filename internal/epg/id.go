// SPDX-License-Identifier: MIT
package epg

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	idStrip     = regexp.MustCompile(`[^a-zA-ZÀ-ÿ0-9\s.\-_]`)
	idSeparator = regexp.MustCompile(`[\s.\-_]+`)
)

// makeStableID lower-cases a channel name and joins its words with dots.
// Unicode letters are kept for international channel names.
func makeStableID(input string) string {
	cleaned := idStrip.ReplaceAllString(strings.ToLower(input), "")
	return strings.Trim(idSeparator.ReplaceAllString(cleaned, "."), ".")
}

// ChannelID derives the XMLTV channel id. The channel id keeps it unique
// when two channels share a call sign.
func ChannelID(chanID uint32, callSign, name string) string {
	id := strconv.FormatUint(uint64(chanID), 10)
	label := makeStableID(callSign)
	if label == "" {
		label = makeStableID(name)
	}
	if label == "" {
		return id + ".eitcorr"
	}
	return id + "." + label
}
