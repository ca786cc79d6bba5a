// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package record

// HTTPMessageType tells if an HTTP extension carries a request or a response.
type HTTPMessageType uint8

const (
	// HTTPRequest is for HTTP requests.
	HTTPRequest HTTPMessageType = iota + 1
	// HTTPResponse is for HTTP responses.
	HTTPResponse
)

// HTTP is the extension for HTTP traffic. Request fields are exported
// only for requests and response fields only for responses.
type HTTP struct {
	Type HTTPMessageType

	// Request
	Agent   string
	Method  string
	Host    string
	Referer string
	URI     string

	// Response
	ContentType string
	Code        uint16
}

// Kind returns KindHTTP.
func (*HTTP) Kind() Kind { return KindHTTP }

// SMTP is the extension for SMTP sessions.
type SMTP struct {
	CommandFlags   uint32
	MailCmdCount   uint32
	MailRcptCount  uint32
	MailCodeFlags  uint32
	Code2xxCount   uint32
	Code3xxCount   uint32
	Code4xxCount   uint32
	Code5xxCount   uint32
	Domain         string
	FirstSender    string
	FirstRecipient string
}

// Kind returns KindSMTP.
func (*SMTP) Kind() Kind { return KindSMTP }

// HTTPS is the extension for TLS sessions.
type HTTPS struct {
	SNI string
}

// Kind returns KindHTTPS.
func (*HTTPS) Kind() Kind { return KindHTTPS }

// NTP is the extension for NTP packets. Timestamps are raw 64-bit NTP
// timestamps.
type NTP struct {
	LeapIndicator  uint8
	Version        uint8
	Mode           uint8
	Stratum        uint8
	Poll           uint8
	Precision      uint8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    uint32
	ReferenceTS    uint64
	OriginTS       uint64
	ReceiveTS      uint64
	TransmitTS     uint64
}

// Kind returns KindNTP.
func (*NTP) Kind() Kind { return KindNTP }

// SIP is the extension for SIP messages.
type SIP struct {
	MessageType  uint16
	StatusCode   uint16
	CSeq         string
	CallingParty string
	CalledParty  string
	CallID       string
	UserAgent    string
	RequestURI   string
	Via          string
}

// Kind returns KindSIP.
func (*SIP) Kind() Kind { return KindSIP }
