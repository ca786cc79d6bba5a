// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrZeroLengthField is returned when a template field has a zero length.
	ErrZeroLengthField = errors.New("template field cannot be zero length")
	// ErrInvalidFieldLength is returned when a template field length cannot be encoded.
	ErrInvalidFieldLength = errors.New("invalid template field length")
	// ErrTemplateIDExhausted is returned when no more template ID is available.
	ErrTemplateIDExhausted = errors.New("no template ID available")
	// ErrTooManyFields is returned when a template has more fields than allowed.
	ErrTooManyFields = errors.New("too many fields in template")
	// ErrTemplateTooLarge is returned when a template definition does not fit in a packet.
	ErrTemplateTooLarge = errors.New("template definition too large")
	// ErrTruncatedTemplate is returned when decoding an incomplete template record.
	ErrTruncatedTemplate = errors.New("truncated template record")
)

// Field is one field of a template. A length of -1 denotes a
// variable-length field.
type Field struct {
	EnterpriseNumber uint32
	ElementID        uint16
	Length           int
}

// Variable tells if the field has a variable length.
func (f Field) Variable() bool {
	return f.Length == -1
}

func (f Field) wireLength() uint16 {
	if f.Variable() {
		return VariableLength
	}
	return uint16(f.Length)
}

// Template is an IPFIX template with its accumulation buffer.
type Template struct {
	ID     uint16
	Fields []Field

	record       []byte // template record, fixed once built
	buffer       []byte // data set header followed by data records
	recordCount  int
	exported     bool
	exportTime   time.Time
	exportPacket uint64
}

// Record returns the serialized template record (without set header).
func (t *Template) Record() []byte {
	return t.record
}

// RecordCount returns the number of data records waiting in the buffer.
func (t *Template) RecordCount() int {
	return t.recordCount
}

// BufferSize returns the size of the accumulation buffer, including the
// data set header.
func (t *Template) BufferSize() int {
	return len(t.buffer)
}

// Exported tells if the template has been sent to the collector.
func (t *Template) Exported() bool {
	return t.exported
}

// resetBuffer empties the accumulation buffer, keeping only the set header.
func (t *Template) resetBuffer() {
	t.buffer = t.buffer[:SetHeaderSize]
	t.recordCount = 0
}

// Registry owns the templates of an exporting session.
type Registry struct {
	templates      []*Template
	capacity       int
	maxRecordSize  int
	refreshTime    time.Duration
	refreshPackets uint64
}

// NewRegistry creates an empty template registry. capacity is the size of
// each accumulation buffer and maxRecordSize the largest template record
// accepted (to fit in a template packet).
func NewRegistry(capacity, maxRecordSize int, refreshTime time.Duration, refreshPackets uint64) *Registry {
	return &Registry{
		capacity:       capacity,
		maxRecordSize:  maxRecordSize,
		refreshTime:    refreshTime,
		refreshPackets: refreshPackets,
	}
}

// Templates returns the templates in creation order.
func (r *Registry) Templates() []*Template {
	return r.templates
}

// Create builds a new template from the provided list of fields and
// registers it. The template is not exported yet and its export baseline
// is set to the provided time and packet counter.
func (r *Registry) Create(fields []Field, now time.Time, exportedPackets uint64) (*Template, error) {
	if len(fields) > math.MaxUint16 {
		return nil, ErrTooManyFields
	}
	id := uint32(FirstTemplateID)
	for _, t := range r.templates {
		if uint32(t.ID) >= id {
			id = uint32(t.ID) + 1
		}
	}
	if id > math.MaxUint16 {
		return nil, ErrTemplateIDExhausted
	}

	record := make([]byte, 4, 4+8*len(fields))
	binary.BigEndian.PutUint16(record[0:], uint16(id))
	binary.BigEndian.PutUint16(record[2:], uint16(len(fields)))
	for idx, field := range fields {
		switch {
		case field.Length == 0:
			return nil, fmt.Errorf("field %d (%d/%d): %w",
				idx, field.EnterpriseNumber, field.ElementID, ErrZeroLengthField)
		case field.Length < -1 || field.Length >= VariableLength:
			return nil, fmt.Errorf("field %d (%d/%d) with length %d: %w",
				idx, field.EnterpriseNumber, field.ElementID, field.Length, ErrInvalidFieldLength)
		}
		elementID := field.ElementID
		if field.EnterpriseNumber != 0 {
			elementID |= enterpriseBit
		}
		record = binary.BigEndian.AppendUint16(record, elementID)
		record = binary.BigEndian.AppendUint16(record, field.wireLength())
		if field.EnterpriseNumber != 0 {
			record = binary.BigEndian.AppendUint32(record, field.EnterpriseNumber)
		}
	}
	if r.maxRecordSize > 0 && len(record) > r.maxRecordSize {
		return nil, fmt.Errorf("template %d is %d bytes: %w", id, len(record), ErrTemplateTooLarge)
	}

	t := &Template{
		ID:           uint16(id),
		Fields:       append([]Field{}, fields...),
		record:       record,
		buffer:       make([]byte, SetHeaderSize, r.capacity),
		exportTime:   now,
		exportPacket: exportedPackets,
	}
	SetHeader{ID: t.ID}.put(t.buffer)
	r.templates = append(r.templates, t)
	return t, nil
}

// CheckLifetime marks the template as not exported when its refresh time
// or its refresh packet count has been reached. It returns true if the
// template was expired by this call.
func (r *Registry) CheckLifetime(t *Template, now time.Time, exportedPackets uint64) bool {
	expired := false
	if r.refreshTime != 0 && !t.exportTime.Add(r.refreshTime).After(now) {
		expired = true
	}
	if r.refreshPackets != 0 && t.exportPacket+r.refreshPackets <= exportedPackets {
		expired = true
	}
	if expired && t.exported {
		t.exported = false
		return true
	}
	return false
}

// ExpireAll marks all templates as not exported. When restamp is true,
// the export baseline of each template is also reset to the provided
// time and packet counter.
func (r *Registry) ExpireAll(restamp bool, now time.Time, exportedPackets uint64) {
	for _, t := range r.templates {
		t.exported = false
		if restamp {
			t.exportTime = now
			t.exportPacket = exportedPackets
		}
	}
}

// DecodeTemplateRecord decodes a template record into its ID and its
// list of fields.
func DecodeTemplateRecord(b []byte) (uint16, []Field, error) {
	if len(b) < 4 {
		return 0, nil, ErrTruncatedTemplate
	}
	id := binary.BigEndian.Uint16(b[0:])
	count := int(binary.BigEndian.Uint16(b[2:]))
	b = b[4:]
	fields := make([]Field, 0, count)
	for range count {
		if len(b) < 4 {
			return 0, nil, ErrTruncatedTemplate
		}
		field := Field{
			ElementID: binary.BigEndian.Uint16(b[0:]),
			Length:    int(binary.BigEndian.Uint16(b[2:])),
		}
		b = b[4:]
		if field.ElementID&enterpriseBit != 0 {
			if len(b) < 4 {
				return 0, nil, ErrTruncatedTemplate
			}
			field.ElementID &^= enterpriseBit
			field.EnterpriseNumber = binary.BigEndian.Uint32(b)
			b = b[4:]
		}
		if field.Length == VariableLength {
			field.Length = -1
		}
		fields = append(fields, field)
	}
	if len(b) != 0 {
		return 0, nil, fmt.Errorf("%d trailing bytes in template record", len(b))
	}
	return id, fields, nil
}
