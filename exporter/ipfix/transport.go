// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"
)

// ConnectResult is the outcome of a connection attempt.
type ConnectResult int

const (
	// ConnectOK means a socket to the collector is ready.
	ConnectOK ConnectResult = iota
	// ConnectResolveError means the collector address cannot be resolved.
	ConnectResolveError
	// ConnectUnreachable means no resolved address accepted a connection.
	ConnectUnreachable
)

// String turns a connection result into a string.
func (r ConnectResult) String() string {
	switch r {
	case ConnectOK:
		return "ok"
	case ConnectResolveError:
		return "resolve-error"
	case ConnectUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// sendStatus is the outcome of sending one packet.
type sendStatus int

const (
	sendOK sendStatus = iota
	// sendDropped means the packet was not sent and should not be retried.
	sendDropped
	// sendResend means the connection was lost and the packet should be
	// sent again once reconnected.
	sendResend
)

// errorClass classifies errors returned when writing to a socket.
type errorClass int

const (
	errorOther errorClass = iota
	errorTransient
	errorConnectionLost
)

// maxTransientRetries bounds how many times a write interrupted by a
// transient error is retried for the same packet.
const maxTransientRetries = 16

var connectionLostErrors = []error{
	unix.ECONNRESET,
	unix.ENOTCONN,
	unix.ENOTSOCK,
	unix.EPIPE,
	unix.EHOSTUNREACH,
	unix.ENETDOWN,
	unix.ENETUNREACH,
	unix.ENOBUFS,
	unix.ENOMEM,
	net.ErrClosed,
}

func classifyError(err error) errorClass {
	if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
		return errorTransient
	}
	for _, target := range connectionLostErrors {
		if errors.Is(err, target) {
			return errorConnectionLost
		}
	}
	return errorOther
}

func (c errorClass) String() string {
	switch c {
	case errorTransient:
		return "transient"
	case errorConnectionLost:
		return "connection-lost"
	default:
		return "other"
	}
}

// transport owns the socket to the collector and the reconnection state.
type transport struct {
	config   Configuration
	resolver *net.Resolver

	// TCP
	conn net.Conn
	// UDP
	packetConn net.PacketConn
	remote     net.Addr

	pending     bool
	nextAttempt time.Time
	backoff     backoff.BackOff
}

func newTransport(config Configuration, c clock.Clock) *transport {
	return &transport{
		config:   config,
		resolver: net.DefaultResolver,
		backoff:  newBackOff(config, c),
	}
}

// newBackOff returns the reconnection policy.
func newBackOff(config Configuration, c clock.Clock) backoff.BackOff {
	switch config.ReconnectBackoff {
	case BackoffExponential:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = config.ReconnectInterval
		b.MaxInterval = config.MaxReconnectInterval
		b.RandomizationFactor = 0
		b.Multiplier = 2
		b.MaxElapsedTime = 0
		b.Clock = c
		b.Reset()
		return b
	default:
		return backoff.NewConstantBackOff(config.ReconnectInterval)
	}
}

// nextInterval returns the time to wait before the next connection attempt.
func (t *transport) nextInterval() time.Duration {
	d := t.backoff.NextBackOff()
	if d == backoff.Stop {
		d = t.config.MaxReconnectInterval
	}
	return d
}

// connected tells if a socket is available.
func (t *transport) connected() bool {
	return t.conn != nil || t.packetConn != nil
}

// connect resolves the collector and tries each address in order until
// one of them works.
func (t *transport) connect(ctx context.Context) (ConnectResult, netip.AddrPort, error) {
	t.close()
	host, port, err := net.SplitHostPort(t.config.Target)
	if err != nil {
		return ConnectResolveError, netip.AddrPort{}, fmt.Errorf("invalid target %q: %w", t.config.Target, err)
	}
	network := t.config.Protocol.String()
	portNumber, err := t.resolver.LookupPort(ctx, network, port)
	if err != nil {
		return ConnectResolveError, netip.AddrPort{}, fmt.Errorf("cannot resolve port %q: %w", port, err)
	}
	family := t.config.Family
	if family == "" {
		family = "ip"
	}
	addrs, err := t.resolver.LookupNetIP(ctx, family, host)
	if err != nil {
		return ConnectResolveError, netip.AddrPort{}, fmt.Errorf("cannot resolve %q: %w", host, err)
	}

	errs := []error{}
	for _, addr := range addrs {
		addr = addr.Unmap()
		if !addr.IsValid() {
			continue
		}
		candidate := netip.AddrPortFrom(addr, uint16(portNumber))
		if err := t.open(ctx, candidate); err != nil {
			errs = append(errs, err)
			continue
		}
		return ConnectOK, candidate, nil
	}
	if len(errs) == 0 {
		return ConnectUnreachable, netip.AddrPort{}, fmt.Errorf("no usable address for %q", host)
	}
	return ConnectUnreachable, netip.AddrPort{}, errors.Join(errs...)
}

// open creates the socket for one candidate. No connection is made with UDP.
func (t *transport) open(ctx context.Context, candidate netip.AddrPort) error {
	switch t.config.Protocol {
	case ProtocolUDP:
		network := "udp4"
		if candidate.Addr().Is6() {
			network = "udp6"
		}
		lc := net.ListenConfig{Control: t.control}
		conn, err := lc.ListenPacket(ctx, network, "")
		if err != nil {
			return fmt.Errorf("cannot create socket for %s: %w", candidate, err)
		}
		t.packetConn = conn
		t.remote = net.UDPAddrFromAddrPort(candidate)
	default:
		dialer := net.Dialer{
			Timeout: t.config.ConnectTimeout,
			Control: t.control,
		}
		conn, err := dialer.DialContext(ctx, "tcp", candidate.String())
		if err != nil {
			return fmt.Errorf("cannot connect to %s: %w", candidate, err)
		}
		t.conn = conn
	}
	return nil
}

// control sets socket options before connecting.
func (t *transport) control(_, _ string, c syscall.RawConn) error {
	if t.config.SendBufferSize == 0 {
		return nil
	}
	var err error
	if cerr := c.Control(func(fd uintptr) {
		err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, t.config.SendBufferSize)
	}); cerr != nil {
		return cerr
	}
	return err
}

// write sends the whole packet, retrying on partial writes and on
// transient errors.
func (t *transport) write(packet []byte) error {
	if !t.connected() {
		return net.ErrClosed
	}
	sent := 0
	retries := 0
	for sent < len(packet) {
		var n int
		var err error
		if t.packetConn != nil {
			n, err = t.packetConn.WriteTo(packet[sent:], t.remote)
		} else {
			n, err = t.conn.Write(packet[sent:])
		}
		sent += n
		if err != nil {
			if classifyError(err) == errorTransient && retries < maxTransientRetries {
				retries++
				continue
			}
			return err
		}
	}
	return nil
}

// close releases the socket, if any.
func (t *transport) close() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	if t.packetConn != nil {
		t.packetConn.Close()
		t.packetConn = nil
		t.remote = nil
	}
}
