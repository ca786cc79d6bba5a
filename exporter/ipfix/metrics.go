// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import "flowexporter/common/reporter"

type metrics struct {
	recordsEncoded   *reporter.CounterVec
	recordsDropped   *reporter.CounterVec
	stringsTruncated *reporter.CounterVec
	packetsSent      *reporter.CounterVec
	packetsDropped   *reporter.CounterVec
	bytesSent        *reporter.CounterVec
	sendErrors       *reporter.CounterVec
	connectAttempts  *reporter.CounterVec
	templatesRefresh reporter.Counter
	sequence         reporter.Gauge
	connected        reporter.Gauge
}

func (e *Exporter) initMetrics() {
	e.metrics.recordsEncoded = e.r.CounterVec(
		reporter.CounterOpts{
			Name: "records_encoded_total",
			Help: "Number of data records encoded.",
		},
		[]string{"kind"},
	)
	e.metrics.recordsDropped = e.r.CounterVec(
		reporter.CounterOpts{
			Name: "records_dropped_total",
			Help: "Number of data records dropped.",
		},
		[]string{"reason"},
	)
	e.metrics.stringsTruncated = e.r.CounterVec(
		reporter.CounterOpts{
			Name: "strings_truncated_total",
			Help: "Number of variable-length values truncated to fit in a field.",
		},
		[]string{"kind"},
	)
	e.metrics.packetsSent = e.r.CounterVec(
		reporter.CounterOpts{
			Name: "packets_sent_total",
			Help: "Number of IPFIX packets sent.",
		},
		[]string{"type"},
	)
	e.metrics.packetsDropped = e.r.CounterVec(
		reporter.CounterOpts{
			Name: "packets_dropped_total",
			Help: "Number of IPFIX packets not sent.",
		},
		[]string{"reason"},
	)
	e.metrics.bytesSent = e.r.CounterVec(
		reporter.CounterOpts{
			Name: "bytes_sent_total",
			Help: "Number of bytes sent.",
		},
		[]string{"type"},
	)
	e.metrics.sendErrors = e.r.CounterVec(
		reporter.CounterOpts{
			Name: "send_errors_total",
			Help: "Number of errors while sending packets.",
		},
		[]string{"error"},
	)
	e.metrics.connectAttempts = e.r.CounterVec(
		reporter.CounterOpts{
			Name: "connect_attempts_total",
			Help: "Number of connection attempts to the collector.",
		},
		[]string{"result"},
	)
	e.metrics.templatesRefresh = e.r.Counter(
		reporter.CounterOpts{
			Name: "templates_refreshed_total",
			Help: "Number of templates expired because of their lifetime.",
		},
	)
	e.metrics.sequence = e.r.Gauge(
		reporter.GaugeOpts{
			Name: "sequence_number",
			Help: "Current sequence number.",
		},
	)
	e.metrics.connected = e.r.Gauge(
		reporter.GaugeOpts{
			Name: "connected",
			Help: "Is the exporter connected to the collector?",
		},
	)
}
