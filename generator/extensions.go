// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package generator

import (
	"fmt"
	"math/rand"
	"time"

	"flowexporter/common/record"
)

var (
	webHosts     = []string{"www.example.com", "api.example.org", "static.example.net", "shop.example.com"}
	webPaths     = []string{"/", "/index.html", "/api/v1/items", "/login", "/assets/app.js"}
	webAgents    = []string{"curl/8.5.0", "Mozilla/5.0 (X11; Linux x86_64)", "Go-http-client/1.1"}
	webTypes     = []string{"text/html", "application/json", "application/javascript", "image/png"}
	webCodes     = []uint16{200, 200, 200, 301, 304, 404, 500}
	mailDomains  = []string{"example.com", "example.org", "example.net"}
	mailUsers    = []string{"alice", "bob", "carol", "dave"}
	sipUsers     = []string{"1001", "1002", "alice", "bob"}
	sipAgents    = []string{"Asterisk PBX 20.5.0", "Linphone/5.2.0", "FreeSWITCH-mod_sofia/1.10.11"}
	sipMethods   = []string{"INVITE", "ACK", "BYE", "REGISTER", "OPTIONS"}
	sipStatusSet = []uint16{100, 180, 200, 486}
)

// ntpEpochOffset is the number of seconds between 1900 and 1970.
const ntpEpochOffset = 2208988800

// ntpTimestamp converts a time to a 64-bit NTP timestamp.
func ntpTimestamp(t time.Time) uint64 {
	seconds := uint64(t.Unix() + ntpEpochOffset)
	fraction := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return seconds<<32 | fraction
}

// randomExtension returns an extension of the provided kind with
// plausible content. It returns nil for basic flows.
func randomExtension(kind record.Kind, r *rand.Rand, now time.Time) record.Extension {
	switch kind {
	case record.KindHTTP:
		if r.Intn(2) == 0 {
			host := chooseRandom(r, webHosts)
			return &record.HTTP{
				Type:    record.HTTPRequest,
				Agent:   chooseRandom(r, webAgents),
				Method:  chooseRandom(r, []string{"GET", "GET", "POST", "HEAD"}),
				Host:    host,
				Referer: fmt.Sprintf("https://%s/", host),
				URI:     chooseRandom(r, webPaths),
			}
		}
		return &record.HTTP{
			Type:        record.HTTPResponse,
			ContentType: chooseRandom(r, webTypes),
			Code:        chooseRandom(r, webCodes),
		}
	case record.KindSMTP:
		domain := chooseRandom(r, mailDomains)
		recipients := uint32(r.Intn(4) + 1)
		return &record.SMTP{
			CommandFlags:   uint32(r.Int31n(1 << 10)),
			MailCmdCount:   1,
			MailRcptCount:  recipients,
			MailCodeFlags:  uint32(r.Int31n(1 << 8)),
			Code2xxCount:   recipients + 3,
			Code3xxCount:   1,
			Code4xxCount:   uint32(r.Intn(2)),
			Code5xxCount:   0,
			Domain:         domain,
			FirstSender:    fmt.Sprintf("%s@%s", chooseRandom(r, mailUsers), domain),
			FirstRecipient: fmt.Sprintf("%s@%s", chooseRandom(r, mailUsers), chooseRandom(r, mailDomains)),
		}
	case record.KindHTTPS:
		return &record.HTTPS{SNI: chooseRandom(r, webHosts)}
	case record.KindNTP:
		reference := now.Add(-time.Duration(r.Int63n(int64(time.Minute))))
		return &record.NTP{
			LeapIndicator:  0,
			Version:        4,
			Mode:           chooseRandom(r, []uint8{3, 4}),
			Stratum:        uint8(r.Intn(3) + 1),
			Poll:           6,
			Precision:      0xe9,
			RootDelay:      uint32(r.Int31n(1 << 12)),
			RootDispersion: uint32(r.Int31n(1 << 12)),
			ReferenceID:    r.Uint32(),
			ReferenceTS:    ntpTimestamp(reference),
			OriginTS:       ntpTimestamp(now.Add(-20 * time.Millisecond)),
			ReceiveTS:      ntpTimestamp(now.Add(-10 * time.Millisecond)),
			TransmitTS:     ntpTimestamp(now),
		}
	case record.KindSIP:
		method := chooseRandom(r, sipMethods)
		caller := chooseRandom(r, sipUsers)
		callee := chooseRandom(r, sipUsers)
		domain := chooseRandom(r, mailDomains)
		sip := &record.SIP{
			CSeq:         fmt.Sprintf("%d %s", r.Intn(100)+1, method),
			CallingParty: fmt.Sprintf("<sip:%s@%s>", caller, domain),
			CalledParty:  fmt.Sprintf("<sip:%s@%s>", callee, domain),
			CallID:       fmt.Sprintf("%016x@%s", r.Uint64(), domain),
			UserAgent:    chooseRandom(r, sipAgents),
			Via:          fmt.Sprintf("SIP/2.0/UDP %s:5060;branch=z9hG4bK%08x", domain, r.Uint32()),
		}
		if r.Intn(2) == 0 {
			sip.MessageType = uint16(r.Intn(len(sipMethods)) + 1)
			sip.RequestURI = fmt.Sprintf("sip:%s@%s", callee, domain)
		} else {
			sip.MessageType = 99
			sip.StatusCode = chooseRandom(r, sipStatusSet)
		}
		return sip
	}
	return nil
}
