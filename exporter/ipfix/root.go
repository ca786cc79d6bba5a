// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package ipfix encodes flow records as IPFIX messages (RFC 7011) and
// sends them to a collector over TCP or UDP.
//
// An exporting session is not safe for concurrent use: the caller is
// expected to serialize calls to Encode, Flush and Shutdown.
package ipfix

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"flowexporter/common/record"
	"flowexporter/common/reporter"
)

// Exporter is an IPFIX exporting session.
type Exporter struct {
	r         *reporter.Reporter
	d         *Dependencies
	config    Configuration
	errLogger zerolog.Logger
	diag      zerolog.Level

	registry  *Registry
	schemas   [record.KindLast][2]*schema
	transport *transport
	capacity  int

	sequence        uint32
	exportedPackets uint64

	metrics metrics
}

// Dependencies define the dependencies of the IPFIX exporter.
type Dependencies struct {
	Clock clock.Clock
}

const (
	ipv4Index = 0
	ipv6Index = 1
)

// New creates a new IPFIX exporting session. All templates are created
// and a first connection to the collector is attempted. Failing to
// connect is not fatal: the exporter retries later.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Exporter, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if configuration.MaxPacketSize == 0 {
		configuration.MaxPacketSize = DefaultMaxPacketSize
	}
	if configuration.MaxPacketSize < HeaderSize+SetHeaderSize+1 {
		return nil, fmt.Errorf("max packet size %d is too small", configuration.MaxPacketSize)
	}
	e := Exporter{
		r:         r,
		d:         &dependencies,
		config:    configuration,
		errLogger: r.Sample(reporter.BurstSampler(30*time.Second, 3)),
		diag:      zerolog.DebugLevel,
		capacity:  configuration.MaxPacketSize - HeaderSize,
		transport: newTransport(configuration, dependencies.Clock),
	}
	if configuration.Verbose {
		e.diag = zerolog.InfoLevel
	}
	e.initMetrics()

	now := e.d.Clock.Now()
	e.registry = NewRegistry(e.capacity,
		configuration.MaxPacketSize-HeaderSize-SetHeaderSize,
		configuration.TemplateRefreshTime, configuration.TemplateRefreshPackets)
	for kind := record.KindBasic; kind < record.KindLast; kind++ {
		for _, ipv4 := range []bool{true, false} {
			s := newSchema(kind, ipv4, configuration.Direction)
			t, err := e.registry.Create(s.fields(), now, e.exportedPackets)
			if err != nil {
				return nil, fmt.Errorf("cannot create %s template: %w", kind, err)
			}
			s.template = t
			e.schemas[kind][ipIndex(ipv4)] = s
			e.r.WithLevel(e.diag).
				Stringer("kind", kind).
				Bool("ipv4", ipv4).
				Uint16("id", t.ID).
				Int("record-size", s.fixedSize()).
				Msg("template created")
		}
	}

	if result := e.connect(); result != ConnectOK {
		e.transport.pending = true
		e.transport.nextAttempt = now.Add(e.transport.nextInterval())
	}
	return &e, nil
}

func ipIndex(ipv4 bool) int {
	if ipv4 {
		return ipv4Index
	}
	return ipv6Index
}

// schemaFor returns the schema to use for a flow and an extension kind.
func (e *Exporter) schemaFor(kind record.Kind, flow *record.Flow) *schema {
	return e.schemas[kind][ipIndex(flow.IsIPv4())]
}

// Templates returns the templates of the session in creation order.
func (e *Exporter) Templates() []*Template {
	return e.registry.Templates()
}

// SequenceNumber returns the number of data records sent since the
// session was (re)connected.
func (e *Exporter) SequenceNumber() uint32 {
	return e.sequence
}

// ExportedPackets returns the number of packets successfully sent.
func (e *Exporter) ExportedPackets() uint64 {
	return e.exportedPackets
}

// Pending returns the number of data records waiting in template buffers.
func (e *Exporter) Pending() int {
	count := 0
	for _, t := range e.registry.Templates() {
		count += t.recordCount
	}
	return count
}

// Connected tells if the session currently has a socket to the collector.
func (e *Exporter) Connected() bool {
	return !e.transport.pending && e.transport.connected()
}

// Flush sends pending templates, then all accumulated data records that
// fit in one packet.
func (e *Exporter) Flush() {
	e.sendTemplates()
	e.sendData()
}

// Shutdown flushes remaining records and closes the socket.
func (e *Exporter) Shutdown() {
	e.Flush()
	e.transport.close()
	e.metrics.connected.Set(0)
	e.r.WithLevel(e.diag).
		Uint64("packets", e.exportedPackets).
		Msg("IPFIX session closed")
}

// connect opens the socket to the collector and reports the outcome.
func (e *Exporter) connect() ConnectResult {
	ctx := context.Background()
	if e.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ConnectTimeout)
		defer cancel()
	}
	result, remote, err := e.transport.connect(ctx)
	e.metrics.connectAttempts.WithLabelValues(result.String()).Inc()
	if result != ConnectOK {
		e.metrics.connected.Set(0)
		e.errLogger.Warn().
			Err(err).
			Str("target", e.config.Target).
			Stringer("result", result).
			Msg("cannot connect to collector")
		return result
	}
	e.metrics.connected.Set(1)
	e.r.WithLevel(e.diag).
		Str("target", e.config.Target).
		Stringer("remote", remote).
		Stringer("protocol", e.config.Protocol).
		Msg("connected to collector")
	return result
}

// ensureConnected makes sure a socket is available, reconnecting when the
// reconnection delay has elapsed. After a successful reconnection, all
// templates are sent again.
func (e *Exporter) ensureConnected() bool {
	if !e.transport.pending {
		return e.transport.connected()
	}
	now := e.d.Clock.Now()
	if now.Before(e.transport.nextAttempt) {
		return false
	}
	if result := e.connect(); result != ConnectOK {
		e.transport.nextAttempt = now.Add(e.transport.nextInterval())
		return false
	}
	e.transport.pending = false
	e.transport.backoff.Reset()
	e.registry.ExpireAll(e.config.Protocol == ProtocolUDP, now, e.exportedPackets)
	e.sendTemplates()
	return !e.transport.pending && e.transport.connected()
}

// sendPacket sends one IPFIX message. flows is the number of data records
// in the message.
func (e *Exporter) sendPacket(packet []byte, flows uint32) sendStatus {
	kind := "data"
	if flows == 0 {
		kind = "template"
	}
	if !e.ensureConnected() {
		e.metrics.packetsDropped.WithLabelValues("not-connected").Inc()
		return sendDropped
	}
	if err := e.transport.write(packet); err != nil {
		class := classifyError(err)
		e.metrics.sendErrors.WithLabelValues(class.String()).Inc()
		if class == errorConnectionLost {
			e.transport.close()
			e.transport.pending = true
			e.transport.nextAttempt = e.d.Clock.Now()
			e.sequence = 0
			e.metrics.sequence.Set(0)
			e.metrics.connected.Set(0)
			clearSequenceNumber(packet)
			e.errLogger.Warn().Err(err).Str("target", e.config.Target).Msg("connection to collector lost")
			return sendResend
		}
		e.metrics.packetsDropped.WithLabelValues("send-error").Inc()
		e.errLogger.Err(err).Str("target", e.config.Target).Msgf("cannot send %s packet", kind)
		return sendDropped
	}
	e.sequence += flows
	e.exportedPackets++
	e.metrics.packetsSent.WithLabelValues(kind).Inc()
	e.metrics.bytesSent.WithLabelValues(kind).Add(float64(len(packet)))
	e.metrics.sequence.Set(float64(e.sequence))
	return sendOK
}

// sendTemplates sends all templates not yet exported or expired, in as
// many packets as needed.
func (e *Exporter) sendTemplates() {
	e.checkLifetimes()
	for {
		packet := e.buildTemplatePacket()
		if packet == nil {
			return
		}
		e.sendPacket(packet, 0)
	}
}

// sendData sends one packet of data records. If the connection was lost
// while sending, the packet is sent once more.
func (e *Exporter) sendData() {
	packet, flows := e.buildDataPacket()
	if packet == nil {
		return
	}
	status := e.sendPacket(packet, flows)
	if status == sendResend {
		status = e.sendPacket(packet, flows)
	}
	if status != sendOK {
		e.metrics.recordsDropped.WithLabelValues("not-sent").Add(float64(flows))
	}
}
