// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import "encoding/binary"

const (
	// Version is the IPFIX protocol version.
	Version = 10
	// HeaderSize is the size of the IPFIX message header.
	HeaderSize = 16
	// SetHeaderSize is the size of a set header.
	SetHeaderSize = 4
	// TemplateSetID is the set ID reserved for template sets.
	TemplateSetID = 2
	// FirstTemplateID is the lowest ID assigned to a template.
	FirstTemplateID = 258
	// VariableLength is the field length announcing a variable-length field.
	VariableLength = 65535
	// MaxVariableLength is the longest value we can encode with the
	// one-byte length prefix. A first byte of 255 announces the
	// three-byte form (RFC 7011, section 7).
	MaxVariableLength = 254
	// DefaultMaxPacketSize is the default upper bound of an IPFIX message.
	DefaultMaxPacketSize = 1458

	enterpriseBit = 0x8000
)

// Header is the IPFIX message header.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|       Version Number          |            Length             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           Export Time                         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                       Sequence Number                         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                    Observation Domain ID                      |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type Header struct {
	Version             uint16
	Length              uint16
	ExportTime          uint32
	SequenceNumber      uint32
	ObservationDomainID uint32
}

// put writes the header at the beginning of the provided buffer.
func (h Header) put(b []byte) {
	binary.BigEndian.PutUint16(b[0:], h.Version)
	binary.BigEndian.PutUint16(b[2:], h.Length)
	binary.BigEndian.PutUint32(b[4:], h.ExportTime)
	binary.BigEndian.PutUint32(b[8:], h.SequenceNumber)
	binary.BigEndian.PutUint32(b[12:], h.ObservationDomainID)
}

// DecodeHeader decodes the IPFIX message header of a packet.
func DecodeHeader(b []byte) (Header, bool) {
	if len(b) < HeaderSize {
		return Header{}, false
	}
	return Header{
		Version:             binary.BigEndian.Uint16(b[0:]),
		Length:              binary.BigEndian.Uint16(b[2:]),
		ExportTime:          binary.BigEndian.Uint32(b[4:]),
		SequenceNumber:      binary.BigEndian.Uint32(b[8:]),
		ObservationDomainID: binary.BigEndian.Uint32(b[12:]),
	}, true
}

// clearSequenceNumber zeroes the sequence number of an already built packet.
func clearSequenceNumber(packet []byte) {
	binary.BigEndian.PutUint32(packet[8:], 0)
}

// SetHeader is the header of a template set or of a data set.
type SetHeader struct {
	ID     uint16
	Length uint16
}

func (h SetHeader) put(b []byte) {
	binary.BigEndian.PutUint16(b[0:], h.ID)
	binary.BigEndian.PutUint16(b[2:], h.Length)
}

// writer appends big-endian values to a buffer, refusing to grow it
// past a limit. Once a write is refused, the writer stays failed and the
// caller is expected to roll back to a known length.
type writer struct {
	buf    []byte
	limit  int
	failed bool
}

func (w *writer) reserve(n int) bool {
	if w.failed || len(w.buf)+n > w.limit {
		w.failed = true
		return false
	}
	return true
}

func (w *writer) uint(value uint64, width int) {
	if !w.reserve(width) {
		return
	}
	for i := width - 1; i >= 0; i-- {
		w.buf = append(w.buf, byte(value>>(8*i)))
	}
}

// bytes writes exactly width bytes, padding with zeroes or cutting the
// provided value.
func (w *writer) bytes(value []byte, width int) {
	if !w.reserve(width) {
		return
	}
	if len(value) > width {
		value = value[:width]
	}
	w.buf = append(w.buf, value...)
	for i := len(value); i < width; i++ {
		w.buf = append(w.buf, 0)
	}
}

// variable writes a one-byte length followed by the value. The value
// should already be at most MaxVariableLength bytes long.
func (w *writer) variable(value string) {
	if !w.reserve(1 + len(value)) {
		return
	}
	w.buf = append(w.buf, byte(len(value)))
	w.buf = append(w.buf, value...)
}
