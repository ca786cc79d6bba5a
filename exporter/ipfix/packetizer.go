// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

// header builds the message header for a packet of the provided size.
func (e *Exporter) header(length int) Header {
	return Header{
		Version:             Version,
		Length:              uint16(length),
		ExportTime:          uint32(e.d.Clock.Now().Unix()),
		SequenceNumber:      e.sequence,
		ObservationDomainID: e.config.ObservationDomainID,
	}
}

// checkLifetimes marks expired templates as not exported. It only
// applies over UDP and runs once per flush: packets sent while
// advertising templates must not expire them again.
func (e *Exporter) checkLifetimes() {
	if e.config.Protocol != ProtocolUDP {
		return
	}
	now := e.d.Clock.Now()
	for _, t := range e.registry.Templates() {
		if e.registry.CheckLifetime(t, now, e.exportedPackets) {
			e.metrics.templatesRefresh.Inc()
			e.r.WithLevel(e.diag).Uint16("id", t.ID).Msg("template lifetime expired")
		}
	}
}

// buildTemplatePacket builds a packet with one template set containing
// the templates not exported yet. Templates not fitting in the packet
// are left for the next call. It returns nil when there is nothing to
// send.
func (e *Exporter) buildTemplatePacket() []byte {
	now := e.d.Clock.Now()
	size := HeaderSize + SetHeaderSize
	selected := []*Template{}
	for _, t := range e.registry.Templates() {
		if t.exported || size+len(t.record) > e.config.MaxPacketSize {
			continue
		}
		selected = append(selected, t)
		size += len(t.record)
	}
	if len(selected) == 0 {
		return nil
	}

	packet := make([]byte, HeaderSize+SetHeaderSize, size)
	e.header(size).put(packet)
	SetHeader{ID: TemplateSetID, Length: uint16(size - HeaderSize)}.put(packet[HeaderSize:])
	for _, t := range selected {
		packet = append(packet, t.record...)
		t.exported = true
		t.exportTime = now
		t.exportPacket = e.exportedPackets
	}
	return packet
}

// buildDataPacket builds a packet with one data set per template having
// accumulated records, as long as they fit. The buffers of included
// templates are emptied. It returns nil when there is nothing to send,
// otherwise the packet and the number of data records it contains.
func (e *Exporter) buildDataPacket() ([]byte, uint32) {
	packet := make([]byte, HeaderSize, e.config.MaxPacketSize)
	var flows uint32
	for _, t := range e.registry.Templates() {
		if t.recordCount == 0 || len(packet)+len(t.buffer) > e.config.MaxPacketSize {
			continue
		}
		SetHeader{ID: t.ID, Length: uint16(len(t.buffer))}.put(t.buffer)
		packet = append(packet, t.buffer...)
		flows += uint32(t.recordCount)
		t.resetBuffer()
	}
	if flows == 0 {
		return nil, 0
	}
	e.header(len(packet)).put(packet)
	return packet, flows
}
