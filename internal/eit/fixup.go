// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eit

import (
	"strings"
	"time"
)

// Fixup is a bitmask of broadcaster-specific quirks corrected before persistence.
type Fixup uint32

const (
	FixGenericDVB Fixup = 1 << iota
	FixBell
	FixUK
	FixPBS
	FixComHem
	FixSubtitle
	FixAUStar
	FixPro7Sat
)

var fixupNames = []struct {
	bit  Fixup
	name string
}{
	{FixGenericDVB, "generic_dvb"},
	{FixBell, "bell"},
	{FixUK, "uk"},
	{FixPBS, "pbs"},
	{FixComHem, "comhem"},
	{FixSubtitle, "subtitle"},
	{FixAUStar, "austar"},
	{FixPro7Sat, "pro7sat"},
}

// String lists the set bits, e.g. "generic_dvb|uk".
func (f Fixup) String() string {
	var parts []string
	for _, n := range fixupNames {
		if f&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseFixup parses a "|" or "," separated list of fixup names.
func ParseFixup(s string) (Fixup, bool) {
	var f Fixup
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "none" {
			continue
		}
		found := false
		for _, n := range fixupNames {
			if n.name == part {
				f |= n.bit
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return f, true
}

// FixupKey identifies DVB services at one of four specificities. Zero fields
// are wildcards: {NetworkID}, {TransportID, NetworkID}, {NetworkID, ServiceID}
// or all three.
type FixupKey struct {
	TransportID uint16
	NetworkID   uint16
	ServiceID   uint16
}

func (k FixupKey) packed() uint64 {
	return uint64(k.TransportID)<<32 | uint64(k.NetworkID)<<16 | uint64(k.ServiceID)
}

// FixupTable maps service keys to fixups. It is read-only once built.
type FixupTable struct {
	rules map[uint64]Fixup
}

// NewFixupTable builds a table from explicit rules.
func NewFixupTable(rules map[FixupKey]Fixup) *FixupTable {
	t := &FixupTable{rules: make(map[uint64]Fixup, len(rules))}
	for k, f := range rules {
		t.rules[k.packed()] |= f
	}
	return t
}

// Lookup ORs the rules of all four specificities for a service, plus FixGenericDVB.
func (t *FixupTable) Lookup(transportID, networkID, serviceID uint16) Fixup {
	fix := FixGenericDVB
	if t == nil {
		return fix
	}
	keys := [...]FixupKey{
		{NetworkID: networkID},
		{TransportID: transportID, NetworkID: networkID},
		{NetworkID: networkID, ServiceID: serviceID},
		{TransportID: transportID, NetworkID: networkID, ServiceID: serviceID},
	}
	for _, k := range keys {
		if f, ok := t.rules[k.packed()]; ok {
			fix |= f
		}
	}
	return fix
}

// Len returns the number of rules.
func (t *FixupTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// DefaultFixupTable returns the built-in rules for known broadcasters.
func DefaultFixupTable() *FixupTable {
	rules := map[FixupKey]Fixup{}
	network := func(onid uint16, f Fixup) { rules[FixupKey{NetworkID: onid}] |= f }
	service := func(onid, sid uint16, f Fixup) { rules[FixupKey{NetworkID: onid, ServiceID: sid}] |= f }
	transport := func(tsid, onid uint16, f Fixup) { rules[FixupKey{TransportID: tsid, NetworkID: onid}] |= f }
	exact := func(tsid, onid, sid uint16, f Fixup) {
		rules[FixupKey{TransportID: tsid, NetworkID: onid, ServiceID: sid}] |= f
	}

	// Bell ExpressVu
	for _, onid := range []uint16{256, 257, 4097, 4098, 4100, 4101, 4102, 4103, 4104, 4105, 4106, 4107} {
		network(onid, FixBell)
	}

	// UK Freeview/Freesat
	network(9018, FixUK)

	// ComHem and its channels that carry the subtitle in the title
	network(40999, FixComHem)
	for _, sid := range []uint16{1016, 1030, 1041, 1068, 1069, 1070, 1131, 1306, 1307, 1308} {
		service(40999, sid, FixSubtitle)
	}

	// Austar
	network(4096, FixAUStar)

	// Kabel Deutschland transports with Pro7/Sat.1 encoding
	for _, tsid := range []uint16{112, 10000, 10001, 10002, 10003, 10005, 10006, 10009} {
		transport(tsid, 61441, FixPro7Sat)
	}
	// Transports where only some services need the encoding fix
	for _, sid := range []uint16{50403, 53101, 53108, 53109, 53406, 53407, 53404, 53408, 53409,
		53410, 53503, 53411, 53412, 53112, 53513, 53618, 53619} {
		exact(10004, 61441, sid, FixPro7Sat)
	}
	for _, sid := range []uint16{53605, 53607, 53608, 53609, 53628} {
		exact(10007, 61441, sid, FixPro7Sat)
	}
	for _, sid := range []uint16{53002, 53624, 53630} {
		exact(10008, 61441, sid, FixPro7Sat)
	}

	// DVB-T Berlin and Ruhrgebiet
	exact(774, 8468, 16392, FixPro7Sat)
	exact(772, 8468, 16387, FixPro7Sat)
	exact(8707, 8468, 16413, FixPro7Sat)

	// DVB-S Pro7/Sat.1 Swiss and Austrian feeds
	for _, sid := range []uint16{20001, 20002, 20003, 20004, 20005} {
		exact(1082, 1, sid, FixPro7Sat)
	}

	// Premiere and Pro7/Sat.1
	network(133, FixPro7Sat)

	return NewFixupTable(rules)
}

// TimeFixer nudges a canonical start time for broadcaster quirks.
type TimeFixer func(start time.Time, fixup Fixup) time.Time

// DefaultTimeFix snaps start times within 5 seconds of a minute boundary onto it.
func DefaultTimeFix(start time.Time, _ Fixup) time.Time {
	secs := start.Second()
	switch {
	case secs < 5:
		return start.Add(-time.Duration(secs)*time.Second - time.Duration(start.Nanosecond()))
	case secs > 55:
		return start.Add(time.Duration(60-secs)*time.Second - time.Duration(start.Nanosecond()))
	}
	return start
}
