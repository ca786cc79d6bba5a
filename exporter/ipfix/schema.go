// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"net/netip"
	"time"

	"flowexporter/common/record"
)

// Enterprise numbers used by the templates.
const (
	// EnterpriseCESNET is the private enterprise number of CESNET.
	EnterpriseCESNET = 8057
	// EnterpriseFlowmon is the private enterprise number of Flowmon Networks.
	EnterpriseFlowmon = 16982
)

// valueKind tells how a column value is written.
type valueKind uint8

const (
	valueUint valueKind = iota
	valueBytes
	valueString
)

// value is the value of a column for one record.
type value struct {
	kind valueKind
	u    uint64
	b    []byte
	s    string
}

func uintValue[T uint8 | uint16 | uint32 | uint64](v T) value {
	return value{kind: valueUint, u: uint64(v)}
}

func stringValue(s string) value {
	return value{kind: valueString, s: s}
}

// column is a template field with the way to extract its value from a
// flow and its extension.
type column struct {
	Field
	value func(flow *record.Flow, ext record.Extension) value
}

// schema describes the layout of one template: the columns shared by all
// records, then the columns specific to the kind.
type schema struct {
	kind     record.Kind
	ipv4     bool
	columns  []column
	template *Template
}

// fixedSize is the size of a record when all variable-length fields are empty.
func (s *schema) fixedSize() int {
	size := 0
	for _, c := range s.columns {
		if c.Variable() {
			size++
		} else {
			size += c.Length
		}
	}
	return size
}

func (s *schema) fields() []Field {
	fields := make([]Field, len(s.columns))
	for idx, c := range s.columns {
		fields[idx] = c.Field
	}
	return fields
}

func epochMilliseconds(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixMilli())
}

func addr4(addr netip.Addr) []byte {
	addr = addr.Unmap()
	if !addr.Is4() {
		return nil
	}
	a := addr.As4()
	return a[:]
}

func addr16(addr netip.Addr) []byte {
	if !addr.IsValid() {
		return nil
	}
	a := addr.As16()
	return a[:]
}

func mac(hw uint64) []byte {
	return []byte{
		byte(hw >> 40), byte(hw >> 32), byte(hw >> 24),
		byte(hw >> 16), byte(hw >> 8), byte(hw),
	}
}

// baseColumns returns the columns common to all templates. direction is
// the constant direction bit field.
func baseColumns(ipv4 bool, direction uint16) []column {
	columns := []column{
		{Field{0, 10, 2}, func(*record.Flow, record.Extension) value { return uintValue(direction) }},
		{Field{0, 152, 8}, func(f *record.Flow, _ record.Extension) value {
			return uintValue(epochMilliseconds(f.TimeStart))
		}},
		{Field{0, 153, 8}, func(f *record.Flow, _ record.Extension) value {
			return uintValue(epochMilliseconds(f.TimeEnd))
		}},
		{Field{EnterpriseCESNET, 10000, 8}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.ID) }},
		{Field{EnterpriseCESNET, 10001, 8}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.Parent) }},
	}
	if ipv4 {
		columns = append(columns,
			column{Field{0, 8, 4}, func(f *record.Flow, _ record.Extension) value {
				return value{kind: valueBytes, b: addr4(f.SrcAddr)}
			}},
			column{Field{0, 12, 4}, func(f *record.Flow, _ record.Extension) value {
				return value{kind: valueBytes, b: addr4(f.DstAddr)}
			}})
	} else {
		columns = append(columns,
			column{Field{0, 27, 16}, func(f *record.Flow, _ record.Extension) value {
				return value{kind: valueBytes, b: addr16(f.SrcAddr)}
			}},
			column{Field{0, 28, 16}, func(f *record.Flow, _ record.Extension) value {
				return value{kind: valueBytes, b: addr16(f.DstAddr)}
			}})
	}
	return append(columns,
		column{Field{0, 60, 1}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.IPVersion) }},
		column{Field{0, 192, 1}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.TTL) }},
		column{Field{0, 1, 8}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.Bytes) }},
		column{Field{0, 2, 8}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.Packets) }},
		column{Field{0, 4, 1}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.Protocol) }},
		column{Field{0, 7, 2}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.SrcPort) }},
		column{Field{0, 11, 2}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.DstPort) }},
		column{Field{0, 6, 1}, func(f *record.Flow, _ record.Extension) value { return uintValue(f.TCPFlags) }},
		column{Field{0, 56, 6}, func(f *record.Flow, _ record.Extension) value {
			return value{kind: valueBytes, b: mac(f.SrcMAC)}
		}},
		column{Field{0, 80, 6}, func(f *record.Flow, _ record.Extension) value {
			return value{kind: valueBytes, b: mac(f.DstMAC)}
		}},
	)
}

// extension returns a column extracting a value from a typed extension.
// When the extension is not of the expected type, the field is zeroed.
func extension[E record.Extension](field Field, get func(E) value) column {
	return column{field, func(_ *record.Flow, ext record.Extension) value {
		if e, ok := ext.(E); ok {
			return get(e)
		}
		return value{}
	}}
}

func httpRequest(get func(*record.HTTP) string) func(*record.HTTP) value {
	return func(e *record.HTTP) value {
		if e.Type != record.HTTPRequest {
			return stringValue("")
		}
		return stringValue(get(e))
	}
}

var extensionColumns = map[record.Kind][]column{
	record.KindBasic: nil,
	record.KindHTTP: {
		extension(Field{EnterpriseFlowmon, 100, -1}, httpRequest(func(e *record.HTTP) string { return e.Agent })),
		extension(Field{EnterpriseFlowmon, 101, -1}, httpRequest(func(e *record.HTTP) string { return e.Method })),
		extension(Field{EnterpriseFlowmon, 102, -1}, httpRequest(func(e *record.HTTP) string { return e.Host })),
		extension(Field{EnterpriseFlowmon, 103, -1}, httpRequest(func(e *record.HTTP) string { return e.Referer })),
		extension(Field{EnterpriseFlowmon, 105, -1}, httpRequest(func(e *record.HTTP) string { return e.URI })),
		extension(Field{EnterpriseFlowmon, 104, -1}, func(e *record.HTTP) value {
			if e.Type == record.HTTPRequest {
				return stringValue("")
			}
			return stringValue(e.ContentType)
		}),
		extension(Field{EnterpriseFlowmon, 106, 2}, func(e *record.HTTP) value {
			if e.Type == record.HTTPRequest {
				return uintValue(uint16(0))
			}
			return uintValue(e.Code)
		}),
	},
	record.KindSMTP: {
		extension(Field{EnterpriseCESNET, 810, 4}, func(e *record.SMTP) value { return uintValue(e.CommandFlags) }),
		extension(Field{EnterpriseCESNET, 811, 4}, func(e *record.SMTP) value { return uintValue(e.MailCmdCount) }),
		extension(Field{EnterpriseCESNET, 812, 4}, func(e *record.SMTP) value { return uintValue(e.MailRcptCount) }),
		extension(Field{EnterpriseCESNET, 815, 4}, func(e *record.SMTP) value { return uintValue(e.MailCodeFlags) }),
		extension(Field{EnterpriseCESNET, 816, 4}, func(e *record.SMTP) value { return uintValue(e.Code2xxCount) }),
		extension(Field{EnterpriseCESNET, 817, 4}, func(e *record.SMTP) value { return uintValue(e.Code3xxCount) }),
		extension(Field{EnterpriseCESNET, 818, 4}, func(e *record.SMTP) value { return uintValue(e.Code4xxCount) }),
		extension(Field{EnterpriseCESNET, 819, 4}, func(e *record.SMTP) value { return uintValue(e.Code5xxCount) }),
		extension(Field{EnterpriseCESNET, 820, -1}, func(e *record.SMTP) value { return stringValue(e.Domain) }),
		extension(Field{EnterpriseCESNET, 813, -1}, func(e *record.SMTP) value { return stringValue(e.FirstSender) }),
		extension(Field{EnterpriseCESNET, 814, -1}, func(e *record.SMTP) value { return stringValue(e.FirstRecipient) }),
	},
	record.KindHTTPS: {
		extension(Field{EnterpriseCESNET, 808, -1}, func(e *record.HTTPS) value { return stringValue(e.SNI) }),
	},
	record.KindNTP: {
		extension(Field{EnterpriseCESNET, 18, 1}, func(e *record.NTP) value { return uintValue(e.LeapIndicator) }),
		extension(Field{EnterpriseCESNET, 19, 1}, func(e *record.NTP) value { return uintValue(e.Version) }),
		extension(Field{EnterpriseCESNET, 20, 1}, func(e *record.NTP) value { return uintValue(e.Mode) }),
		extension(Field{EnterpriseCESNET, 21, 1}, func(e *record.NTP) value { return uintValue(e.Stratum) }),
		extension(Field{EnterpriseCESNET, 22, 1}, func(e *record.NTP) value { return uintValue(e.Poll) }),
		extension(Field{EnterpriseCESNET, 23, 1}, func(e *record.NTP) value { return uintValue(e.Precision) }),
		extension(Field{EnterpriseCESNET, 24, 4}, func(e *record.NTP) value { return uintValue(e.RootDelay) }),
		extension(Field{EnterpriseCESNET, 25, 4}, func(e *record.NTP) value { return uintValue(e.RootDispersion) }),
		extension(Field{EnterpriseCESNET, 26, 4}, func(e *record.NTP) value { return uintValue(e.ReferenceID) }),
		extension(Field{EnterpriseCESNET, 27, 8}, func(e *record.NTP) value { return uintValue(e.ReferenceTS) }),
		extension(Field{EnterpriseCESNET, 28, 8}, func(e *record.NTP) value { return uintValue(e.OriginTS) }),
		extension(Field{EnterpriseCESNET, 29, 8}, func(e *record.NTP) value { return uintValue(e.ReceiveTS) }),
		extension(Field{EnterpriseCESNET, 30, 8}, func(e *record.NTP) value { return uintValue(e.TransmitTS) }),
	},
	record.KindSIP: {
		extension(Field{EnterpriseCESNET, 100, 2}, func(e *record.SIP) value { return uintValue(e.MessageType) }),
		extension(Field{EnterpriseCESNET, 101, 2}, func(e *record.SIP) value { return uintValue(e.StatusCode) }),
		extension(Field{EnterpriseCESNET, 102, -1}, func(e *record.SIP) value { return stringValue(e.CSeq) }),
		extension(Field{EnterpriseCESNET, 103, -1}, func(e *record.SIP) value { return stringValue(e.CallingParty) }),
		extension(Field{EnterpriseCESNET, 104, -1}, func(e *record.SIP) value { return stringValue(e.CalledParty) }),
		extension(Field{EnterpriseCESNET, 105, -1}, func(e *record.SIP) value { return stringValue(e.CallID) }),
		extension(Field{EnterpriseCESNET, 106, -1}, func(e *record.SIP) value { return stringValue(e.UserAgent) }),
		extension(Field{EnterpriseCESNET, 107, -1}, func(e *record.SIP) value { return stringValue(e.RequestURI) }),
		extension(Field{EnterpriseCESNET, 108, -1}, func(e *record.SIP) value { return stringValue(e.Via) }),
	},
}

// newSchema builds the schema for a kind and an IP version.
func newSchema(kind record.Kind, ipv4 bool, direction uint16) *schema {
	columns := baseColumns(ipv4, direction)
	columns = append(columns, extensionColumns[kind]...)
	return &schema{
		kind:    kind,
		ipv4:    ipv4,
		columns: columns,
	}
}
