// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"errors"
	"fmt"

	"flowexporter/common/record"
)

// ErrRecordTooLarge is returned when a record does not fit in an empty
// buffer. Such a record is dropped.
var ErrRecordTooLarge = errors.New("record too large")

// Encode appends the flow to the buffers of the matching templates: one
// record per recognized extension, or a basic record when the flow has
// no extension and basic export is enabled. When a buffer is full, the
// session is flushed first.
func (e *Exporter) Encode(flow *record.Flow) error {
	if len(flow.Extensions) == 0 {
		if !e.config.ExportBasic {
			return nil
		}
		return e.encode(e.schemaFor(record.KindBasic, flow), flow, nil)
	}
	errs := []error{}
	for _, ext := range flow.Extensions {
		if ext == nil {
			continue
		}
		kind := ext.Kind()
		if kind == record.KindBasic || kind >= record.KindLast {
			continue
		}
		if err := e.encode(e.schemaFor(kind, flow), flow, ext); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// encode writes one record in the buffer of the schema's template. On
// overflow, the partial record is discarded, the session is flushed and
// the record is written again.
func (e *Exporter) encode(s *schema, flow *record.Flow, ext record.Extension) error {
	t := s.template
	for {
		w := writer{buf: t.buffer, limit: e.capacity}
		truncated := 0
		for _, c := range s.columns {
			if e.write(&w, c, c.value(flow, ext)) {
				truncated++
			}
		}
		if !w.failed {
			t.buffer = w.buf
			t.recordCount++
			e.metrics.recordsEncoded.WithLabelValues(s.kind.String()).Inc()
			if truncated > 0 {
				e.metrics.stringsTruncated.WithLabelValues(s.kind.String()).Add(float64(truncated))
				e.errLogger.Warn().
					Stringer("kind", s.kind).
					Uint64("flow", flow.ID).
					Int("fields", truncated).
					Msgf("values longer than %d bytes truncated", MaxVariableLength)
			}
			return nil
		}
		if len(t.buffer) == SetHeaderSize {
			e.metrics.recordsDropped.WithLabelValues("too-large").Inc()
			e.errLogger.Error().
				Stringer("kind", s.kind).
				Uint64("flow", flow.ID).
				Msg("record does not fit in a packet")
			return fmt.Errorf("%s record for flow %d larger than %d bytes: %w",
				s.kind, flow.ID, e.capacity-SetHeaderSize, ErrRecordTooLarge)
		}
		// Each flush drains at least one buffer. When this one was
		// skipped because of other buffers, the next flush includes it.
		e.Flush()
	}
}

// write writes one column value. It returns true when the value had to
// be truncated.
func (e *Exporter) write(w *writer, c column, v value) bool {
	switch {
	case c.Variable():
		s := v.s
		if len(s) > MaxVariableLength {
			w.variable(s[:MaxVariableLength])
			return true
		}
		w.variable(s)
	case v.kind == valueBytes:
		w.bytes(v.b, c.Length)
	default:
		w.uint(v.u, c.Length)
	}
	return false
}
