// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package record defines the flow records handed over to the exporter by
// the flow pipeline. Records are borrowed by the exporter for the duration
// of one encode call and never retained.
package record

import (
	"net/netip"
	"time"
)

// Flow is a single flow record with optional application-level extensions.
type Flow struct {
	TimeStart time.Time
	TimeEnd   time.Time
	ID        uint64
	Parent    uint64

	// IPVersion selects the IPv4 or the IPv6 templates (4 or 6).
	IPVersion uint8
	SrcAddr   netip.Addr
	DstAddr   netip.Addr
	TTL       uint8
	Bytes     uint64
	Packets   uint64
	Protocol  uint8
	SrcPort   uint16
	DstPort   uint16
	TCPFlags  uint8
	// SrcMAC and DstMAC are 48-bit hardware addresses stored in the
	// lower bits.
	SrcMAC uint64
	DstMAC uint64

	Extensions []Extension
}

// Extension is an application-level record attached to a flow.
type Extension interface {
	Kind() Kind
}

// IsIPv4 tells if the flow should be exported with IPv4 templates.
func (f *Flow) IsIPv4() bool {
	return f.IPVersion == 4
}
