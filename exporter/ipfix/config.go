// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Configuration describes the configuration of an IPFIX exporting session.
type Configuration struct {
	// Target is the collector address (host:port).
	Target string `validate:"required,target"`
	// Protocol is the transport to use (tcp or udp).
	Protocol Protocol
	// Family restricts the resolved addresses (ip, ip4 or ip6).
	Family string `validate:"oneof=ip ip4 ip6"`
	// ObservationDomainID is put in each message header.
	ObservationDomainID uint32
	// Direction is the constant value of the direction bit field.
	Direction uint16
	// ExportBasic enables export of flows without any extension.
	ExportBasic bool
	// Verbose logs diagnostic messages at info level instead of debug level.
	Verbose bool
	// TemplateRefreshTime is the interval after which templates are
	// advertised again over UDP. 0 disables it.
	TemplateRefreshTime time.Duration `validate:"min=0"`
	// TemplateRefreshPackets is the number of packets after which
	// templates are advertised again over UDP. 0 disables it.
	TemplateRefreshPackets uint64
	// ReconnectInterval is the minimum time between two connection attempts.
	ReconnectInterval time.Duration `validate:"gt=0"`
	// ReconnectBackoff selects the reconnect policy: constant uses
	// ReconnectInterval each time, exponential doubles it up to
	// MaxReconnectInterval.
	ReconnectBackoff BackoffPolicy
	// MaxReconnectInterval caps the exponential reconnect policy.
	MaxReconnectInterval time.Duration `validate:"gtefield=ReconnectInterval"`
	// ConnectTimeout bounds each TCP connection attempt.
	ConnectTimeout time.Duration `validate:"min=0"`
	// MaxPacketSize is the maximum size of an IPFIX message.
	MaxPacketSize int `validate:"min=512,max=65535"`
	// SendBufferSize sets the socket send buffer. 0 keeps the system default.
	SendBufferSize int `validate:"min=0"`
}

// DefaultConfiguration represents the default configuration for an IPFIX
// exporting session.
func DefaultConfiguration() Configuration {
	return Configuration{
		Target:                 "127.0.0.1:4739",
		Protocol:               ProtocolTCP,
		Family:                 "ip",
		ExportBasic:            true,
		TemplateRefreshTime:    600 * time.Second,
		TemplateRefreshPackets: 0,
		ReconnectInterval:      60 * time.Second,
		ReconnectBackoff:       BackoffConstant,
		MaxReconnectInterval:   10 * time.Minute,
		ConnectTimeout:         5 * time.Second,
		MaxPacketSize:          DefaultMaxPacketSize,
	}
}

// Protocol is the transport protocol used to reach the collector.
type Protocol int

const (
	// ProtocolTCP is a reliable, in-order transport.
	ProtocolTCP Protocol = iota
	// ProtocolUDP is an unreliable datagram transport.
	ProtocolUDP
)

var protocolNames = map[Protocol]string{
	ProtocolTCP: "tcp",
	ProtocolUDP: "udp",
}

// String turns a protocol into a string.
func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText turns a protocol into text.
func (p Protocol) MarshalText() ([]byte, error) {
	if name, ok := protocolNames[p]; ok {
		return []byte(name), nil
	}
	return nil, errors.New("unknown protocol")
}

// UnmarshalText parses a protocol from text.
func (p *Protocol) UnmarshalText(input []byte) error {
	for protocol, name := range protocolNames {
		if strings.EqualFold(name, string(input)) {
			*p = protocol
			return nil
		}
	}
	return fmt.Errorf("unknown protocol %q", string(input))
}

// BackoffPolicy is the policy between two reconnection attempts.
type BackoffPolicy int

const (
	// BackoffConstant waits the same interval between each attempt.
	BackoffConstant BackoffPolicy = iota
	// BackoffExponential doubles the interval after each failed attempt.
	BackoffExponential
)

var backoffNames = map[BackoffPolicy]string{
	BackoffConstant:    "constant",
	BackoffExponential: "exponential",
}

// String turns a backoff policy into a string.
func (b BackoffPolicy) String() string {
	if name, ok := backoffNames[b]; ok {
		return name
	}
	return "unknown"
}

// MarshalText turns a backoff policy into text.
func (b BackoffPolicy) MarshalText() ([]byte, error) {
	if name, ok := backoffNames[b]; ok {
		return []byte(name), nil
	}
	return nil, errors.New("unknown backoff policy")
}

// UnmarshalText parses a backoff policy from text.
func (b *BackoffPolicy) UnmarshalText(input []byte) error {
	for policy, name := range backoffNames {
		if strings.EqualFold(name, string(input)) {
			*b = policy
			return nil
		}
	}
	return fmt.Errorf("unknown backoff policy %q", string(input))
}
