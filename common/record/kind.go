// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package record

import (
	"fmt"
	"strings"
)

// Kind is the type of an extension record.
type Kind uint8

const (
	// KindBasic is used for flows without any extension.
	KindBasic Kind = iota
	// KindHTTP is for HTTP request or response metadata.
	KindHTTP
	// KindSMTP is for SMTP session counters.
	KindSMTP
	// KindHTTPS is for TLS server name indication.
	KindHTTPS
	// KindNTP is for NTP header fields.
	KindNTP
	// KindSIP is for SIP call fields.
	KindSIP

	// KindLast is not a real kind. Iterate up to it.
	KindLast
)

var kindNames = map[Kind]string{
	KindBasic: "basic",
	KindHTTP:  "http",
	KindSMTP:  "smtp",
	KindHTTPS: "https",
	KindNTP:   "ntp",
	KindSIP:   "sip",
}

// String returns the name of a kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText turns a kind into text.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind from text.
func (k *Kind) UnmarshalText(input []byte) error {
	got := strings.ToLower(string(input))
	for kind, name := range kindNames {
		if name == got {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown extension kind %q", string(input))
}
