// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package exporter

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/netsampler/goflow2/v2/decoders/netflow"

	"flowexporter/common/daemon"
	"flowexporter/common/helpers"
	"flowexporter/common/httpserver"
	"flowexporter/common/record"
	"flowexporter/common/reporter"
	"flowexporter/exporter/ipfix"
)

// startCollector starts a TCP collector and returns its address and a
// channel receiving each IPFIX message.
func startCollector(t *testing.T) (string, <-chan []byte) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error:\n%+v", err)
	}
	t.Cleanup(func() { listener.Close() })
	packets := make(chan []byte, 1000)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			t.Cleanup(func() { conn.Close() })
			go func() {
				for {
					header := make([]byte, ipfix.HeaderSize)
					if _, err := io.ReadFull(conn, header); err != nil {
						return
					}
					packet := make([]byte, binary.BigEndian.Uint16(header[2:]))
					copy(packet, header)
					if _, err := io.ReadFull(conn, packet[ipfix.HeaderSize:]); err != nil {
						return
					}
					packets <- packet
				}
			}()
		}
	}()
	return listener.Addr().String(), packets
}

// countRecords decodes received messages until none is received for a
// short time and returns the number of data records.
func countRecords(t *testing.T, packets <-chan []byte) int {
	t.Helper()
	templates := netflow.CreateTemplateSystem()
	count := 0
	for {
		select {
		case packet := <-packets:
			var msg netflow.IPFIXPacket
			err := netflow.DecodeMessageIPFIX(bytes.NewBuffer(packet[2:]), templates, &msg)
			if err != nil && !errors.Is(err, netflow.ErrorTemplateNotFound) {
				t.Fatalf("DecodeMessageIPFIX() error:\n%+v", err)
			}
			for _, fs := range msg.FlowSets {
				if data, ok := fs.(netflow.DataFlowSet); ok {
					count += len(data.Records)
				}
			}
		case <-time.After(300 * time.Millisecond):
			return count
		}
	}
}

func testFlow(id uint64) *record.Flow {
	return &record.Flow{
		TimeStart: time.Date(2024, 3, 12, 9, 59, 50, 0, time.UTC),
		TimeEnd:   time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC),
		ID:        id,
		IPVersion: 4,
		SrcAddr:   netip.MustParseAddr("192.0.2.10"),
		DstAddr:   netip.MustParseAddr("203.0.113.20"),
		TTL:       64,
		Bytes:     1500,
		Packets:   2,
		Protocol:  6,
		SrcPort:   34000,
		DstPort:   443,
		Extensions: []record.Extension{
			&record.HTTPS{SNI: fmt.Sprintf("host%d.example.com", id)},
		},
	}
}

func testConfiguration(target string) Configuration {
	config := DefaultConfiguration()
	config.Target = target
	config.ConnectTimeout = time.Second
	return config
}

func newTestComponent(t *testing.T, config Configuration, httpComponent *httpserver.Component) (*Component, *clock.Mock, *reporter.Reporter) {
	t.Helper()
	r := reporter.NewMock(t)
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC))
	c, err := New(r, config, Dependencies{
		Daemon: daemon.NewMock(t),
		Clock:  mockClock,
		HTTP:   httpComponent,
	})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	return c, mockClock, r
}

func TestExportOnStop(t *testing.T) {
	target, packets := startCollector(t)
	c, _, r := newTestComponent(t, testConfiguration(target), nil)
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error:\n%+v", err)
	}
	for i := range 500 {
		if !c.Send(testFlow(uint64(i + 1))) {
			t.Fatalf("Send() dropped flow %d", i+1)
		}
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error:\n%+v", err)
	}
	if got := countRecords(t, packets); got != 500 {
		t.Errorf("collector received %d records, expected 500", got)
	}

	gotMetrics := r.GetMetrics("flowexporter_exporter_", "flows_", "ipfix_records_encoded_total")
	expectedMetrics := map[string]string{
		`flows_queued_total`:                        "500",
		`ipfix_records_encoded_total{kind="https"}`: "500",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestFlushInterval(t *testing.T) {
	target, packets := startCollector(t)
	c, mockClock, _ := newTestComponent(t, testConfiguration(target), nil)
	helpers.StartStop(t, c)

	if got := countRecords(t, packets); got != 0 {
		t.Fatalf("collector received %d records, expected 0", got)
	}
	for i := range 3 {
		c.Send(testFlow(uint64(i + 1)))
	}
	// Wait for the flows to be encoded.
	deadline := time.Now().Add(2 * time.Second)
	for {
		status, ok := c.Status()
		if !ok {
			t.Fatal("Status() failed")
		}
		if status.PendingRecords == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Status() pending records = %d, expected 3", status.PendingRecords)
		}
		time.Sleep(10 * time.Millisecond)
	}
	mockClock.Add(time.Second)
	if got := countRecords(t, packets); got != 3 {
		t.Fatalf("collector received %d records, expected 3", got)
	}
	status, _ := c.Status()
	if status.PendingRecords != 0 || status.SequenceNumber != 3 || !status.Connected {
		t.Fatalf("Status() = %+v", status)
	}
}

func TestQueueFull(t *testing.T) {
	config := testConfiguration("127.0.0.1:4739")
	config.QueueSize = 2
	c, _, r := newTestComponent(t, config, nil)
	// Not started: nothing consumes the queue.
	for i, expected := range []bool{true, true, false, false} {
		if got := c.Send(testFlow(uint64(i + 1))); got != expected {
			t.Errorf("Send(%d) = %v, expected %v", i+1, got, expected)
		}
	}
	gotMetrics := r.GetMetrics("flowexporter_exporter_", "flows_", "queue_")
	expectedMetrics := map[string]string{
		`flows_queued_total`:                       "2",
		`flows_dropped_total{reason="queue-full"}`: "2",
		`queue_length`:                             "2",
		`queue_capacity`:                           "2",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestRateLimit(t *testing.T) {
	config := testConfiguration("127.0.0.1:4739")
	config.RateLimit = 10
	c, mockClock, r := newTestComponent(t, config, nil)
	accepted := 0
	for i := range 15 {
		if c.Send(testFlow(uint64(i + 1))) {
			accepted++
		}
	}
	if accepted != 10 {
		t.Errorf("Send() accepted %d flows, expected 10", accepted)
	}
	mockClock.Add(500 * time.Millisecond)
	accepted = 0
	for i := range 15 {
		if c.Send(testFlow(uint64(i + 16))) {
			accepted++
		}
	}
	if accepted != 5 {
		t.Errorf("Send() accepted %d flows after 500ms, expected 5", accepted)
	}
	gotMetrics := r.GetMetrics("flowexporter_exporter_", "flows_")
	expectedMetrics := map[string]string{
		`flows_queued_total`:                       "15",
		`flows_dropped_total{reason="rate-limit"}`: "15",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestHealthcheck(t *testing.T) {
	target, _ := startCollector(t)
	// Reserve a port and close it to get a refused connection.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error:\n%+v", err)
	}
	unreachable := listener.Addr().String()
	listener.Close()

	cases := []struct {
		Description string
		Target      string
		Expected    reporter.HealthcheckStatus
	}{
		{"connected", target, reporter.HealthcheckOK},
		{"not connected", unreachable, reporter.HealthcheckWarning},
	}
	for _, tc := range cases {
		t.Run(tc.Description, func(t *testing.T) {
			c, _, r := newTestComponent(t, testConfiguration(tc.Target), nil)
			helpers.StartStop(t, c)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			got := r.RunHealthchecks(ctx)
			if got.Status != tc.Expected {
				t.Fatalf("RunHealthchecks() = %+v, expected %s", got, tc.Expected)
			}
		})
	}
}

func TestStatusHTTP(t *testing.T) {
	target, _ := startCollector(t)
	r := reporter.NewMock(t)
	h := httpserver.NewMock(t, r)
	c, mockClock, _ := newTestComponent(t, testConfiguration(target), h)
	helpers.StartStop(t, c)
	// Templates are sent on the first flush.
	mockClock.Add(time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for {
		status, _ := c.Status()
		if status.ExportedPackets > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("templates were not sent")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v0/exporter/status", h.LocalAddr()))
	if err != nil {
		t.Fatalf("GET /api/v0/exporter/status error:\n%+v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/v0/exporter/status: status code %d", resp.StatusCode)
	}
	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error:\n%+v", err)
	}
	if !got.Connected || got.Target != target || got.Protocol != "tcp" {
		t.Errorf("GET /api/v0/exporter/status: %+v", got)
	}
	if len(got.Templates) != 12 {
		t.Fatalf("GET /api/v0/exporter/status: %d templates", len(got.Templates))
	}
	for idx, tmpl := range got.Templates {
		if tmpl.ID != uint16(ipfix.FirstTemplateID+idx) || !tmpl.Exported {
			t.Errorf("GET /api/v0/exporter/status: template %+v", tmpl)
		}
	}
}
