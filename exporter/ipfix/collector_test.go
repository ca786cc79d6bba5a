// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/netsampler/goflow2/v2/decoders/netflow"

	"flowexporter/common/reporter"
)

// collector is a minimal IPFIX collector for tests. It forwards each
// received message on a channel.
type collector struct {
	t        *testing.T
	packets  chan []byte
	addr     string
	listener net.Listener
	pconn    net.PacketConn

	lock  sync.Mutex
	conns []net.Conn
}

func newCollector(t *testing.T, protocol Protocol) *collector {
	t.Helper()
	c := &collector{
		t:       t,
		packets: make(chan []byte, 100),
	}
	switch protocol {
	case ProtocolUDP:
		pconn, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("ListenPacket() error:\n%+v", err)
		}
		c.pconn = pconn
		c.addr = pconn.LocalAddr().String()
		go c.readDatagrams()
	default:
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Listen() error:\n%+v", err)
		}
		c.listener = listener
		c.addr = listener.Addr().String()
		go c.accept()
	}
	t.Cleanup(c.close)
	return c
}

func (c *collector) accept() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		c.lock.Lock()
		c.conns = append(c.conns, conn)
		c.lock.Unlock()
		go c.readStream(conn)
	}
}

func (c *collector) readStream(conn net.Conn) {
	for {
		header := make([]byte, HeaderSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := int(binary.BigEndian.Uint16(header[2:]))
		if length < HeaderSize {
			c.t.Errorf("invalid message length %d", length)
			return
		}
		packet := make([]byte, length)
		copy(packet, header)
		if _, err := io.ReadFull(conn, packet[HeaderSize:]); err != nil {
			return
		}
		c.packets <- packet
	}
}

func (c *collector) readDatagrams() {
	buf := make([]byte, 65535)
	for {
		n, _, err := c.pconn.ReadFrom(buf)
		if err != nil {
			return
		}
		c.packets <- append([]byte{}, buf[:n]...)
	}
}

func (c *collector) close() {
	if c.listener != nil {
		c.listener.Close()
	}
	if c.pconn != nil {
		c.pconn.Close()
	}
	c.lock.Lock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.lock.Unlock()
}

// receive returns the next message or fails the test.
func (c *collector) receive() []byte {
	c.t.Helper()
	select {
	case packet := <-c.packets:
		return packet
	case <-time.After(2 * time.Second):
		c.t.Fatal("no packet received")
	}
	return nil
}

// drain returns all messages received within a short delay.
func (c *collector) drain() [][]byte {
	packets := [][]byte{}
	for {
		select {
		case packet := <-c.packets:
			packets = append(packets, packet)
		case <-time.After(200 * time.Millisecond):
			return packets
		}
	}
}

// decoder decodes messages with goflow2, keeping received templates.
type decoder struct {
	templates netflow.NetFlowTemplateSystem
}

func newDecoder() *decoder {
	return &decoder{templates: netflow.CreateTemplateSystem()}
}

func (d *decoder) decode(t *testing.T, packet []byte) netflow.IPFIXPacket {
	t.Helper()
	if version := binary.BigEndian.Uint16(packet); version != Version {
		t.Fatalf("decode() version %d", version)
	}
	var msg netflow.IPFIXPacket
	err := netflow.DecodeMessageIPFIX(bytes.NewBuffer(packet[2:]), d.templates, &msg)
	if err != nil && !errors.Is(err, netflow.ErrorTemplateNotFound) {
		t.Fatalf("DecodeMessageIPFIX() error:\n%+v", err)
	}
	return msg
}

// dataRecords returns the data records of a decoded message.
func dataRecords(msg netflow.IPFIXPacket) [][]netflow.DataField {
	records := [][]netflow.DataField{}
	for _, fs := range msg.FlowSets {
		if data, ok := fs.(netflow.DataFlowSet); ok {
			for _, record := range data.Records {
				records = append(records, record.Values)
			}
		}
	}
	return records
}

// templateRecords returns the number of template records in a decoded message.
func templateRecords(msg netflow.IPFIXPacket) int {
	count := 0
	for _, fs := range msg.FlowSets {
		if templates, ok := fs.(netflow.TemplateFlowSet); ok {
			count += len(templates.Records)
		}
	}
	return count
}

// fieldValue returns the raw value of a field in a data record.
func fieldValue(t *testing.T, values []netflow.DataField, enterprise uint32, id uint16) []byte {
	t.Helper()
	for _, v := range values {
		if v.Type&^enterpriseBit != id {
			continue
		}
		if (enterprise != 0) != v.PenProvided || (v.PenProvided && v.Pen != enterprise) {
			continue
		}
		b, ok := v.Value.([]byte)
		if !ok {
			t.Fatalf("field %d/%d is not a byte slice", enterprise, id)
		}
		return b
	}
	t.Fatalf("field %d/%d not found", enterprise, id)
	return nil
}

// testConfiguration returns a configuration targeting the provided collector.
func testConfiguration(c *collector, protocol Protocol) Configuration {
	config := DefaultConfiguration()
	config.Target = c.addr
	config.Protocol = protocol
	config.ConnectTimeout = time.Second
	return config
}

// newTestExporter creates an exporter using a mock clock.
func newTestExporter(t *testing.T, config Configuration) (*Exporter, *clock.Mock, *reporter.Reporter) {
	t.Helper()
	r := reporter.NewMock(t)
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC))
	e, err := New(r, config, Dependencies{Clock: mockClock})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	t.Cleanup(e.Shutdown)
	return e, mockClock, r
}
