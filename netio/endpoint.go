// Package netio implements C1, the datagram endpoint: a non-blocking UDP
// send/receive wrapper the engine's poll tick drains until empty. See
// SPEC_FULL.md §3 for the optional DSCP/TOS socket option this package
// also owns.
package netio

import (
	"errors"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"flowsock/internal/conf"
	"flowsock/internal/flog"
)

// Endpoint is what the engine's Phase R/S need from a transport: a
// non-blocking receive and a send. The real implementation wraps a UDP
// socket; tests can substitute an in-memory fake (see netio/fake.go).
type Endpoint interface {
	ReadFrom(buf []byte) (n int, addr net.Addr, err error)
	WriteTo(data []byte, addr net.Addr) (int, error)
	LocalAddr() net.Addr
	Close() error
}

// ErrWouldBlock is returned by ReadFrom when no datagram is currently
// available — the signal Phase R uses to know it has drained the socket
// for this tick, matching the original source's UdpSocketState::Empty.
var ErrWouldBlock = errors.New("netio: would block")

// UDPEndpoint is the real, OS-socket-backed Endpoint.
type UDPEndpoint struct {
	conn *net.UDPConn
	ipv4 *ipv4.PacketConn // non-nil only when a traffic class was requested
}

// Bind opens a UDP socket on addr ("host:port", or ":0" for any port).
func Bind(addr string, cfg *conf.Config) (*UDPEndpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return bindResolved(udpAddr, cfg)
}

// BindAny opens a UDP socket on an OS-assigned port on the loopback
// interface, mirroring the original source's bind_any.
func BindAny(cfg *conf.Config) (*UDPEndpoint, error) {
	return bindResolved(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, cfg)
}

func bindResolved(addr *net.UDPAddr, cfg *conf.Config) (*UDPEndpoint, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	e := &UDPEndpoint{conn: conn}
	if cfg != nil && cfg.TrafficClass != 0 {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetTOS(cfg.TrafficClass); err != nil {
			// Best-effort: a platform or socket family that refuses the
			// option never aborts the bind.
			flog.Warnf("netio: failed to set traffic class %d: %v", cfg.TrafficClass, err)
		} else {
			e.ipv4 = pc
		}
	}
	return e, nil
}

// ReadFrom attempts one non-blocking read. It returns ErrWouldBlock itself,
// in place of the underlying timeout error, when no datagram is currently
// queued.
func (e *UDPEndpoint) ReadFrom(buf []byte) (int, net.Addr, error) {
	if err := e.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, err
	}
	n, addr, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, err
	}
	return n, addr, nil
}

// WriteTo sends data to addr. It never blocks the caller beyond the OS
// socket buffer's own backpressure.
func (e *UDPEndpoint) WriteTo(data []byte, addr net.Addr) (int, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return 0, err
		}
		udpAddr = resolved
	}
	return e.conn.WriteToUDP(data, udpAddr)
}

// LocalAddr is the address this endpoint is bound to.
func (e *UDPEndpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

// Close releases the underlying socket.
func (e *UDPEndpoint) Close() error { return e.conn.Close() }
