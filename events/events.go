// Package events defines the socket engine's event union: what comes out
// of Engine.Recv. Go has no sum type, so this follows the common idiom of
// an unexported marker method on a small closed set of concrete types.
package events

import (
	"net"

	"flowsock/packet"
)

// Event is implemented by ConnectEvent, PacketEvent, and TimeoutEvent.
// The unexported method closes the set to this package.
type Event interface {
	isEvent()
}

// ConnectEvent fires for every datagram from an address not already in the
// connection table, before that datagram is processed. An address only
// enters the table once the engine has sent to it, so an unknown peer
// produces one ConnectEvent per datagram until then.
type ConnectEvent struct {
	Addr net.Addr
}

func (ConnectEvent) isEvent() {}

// PacketEvent carries one packet delivered to the application: either a
// fresh unreliable/sequenced arrival, or a reliable/ordered one releasing
// from the connection's reassembly or hold-back state.
type PacketEvent struct {
	Packet packet.Packet
}

func (PacketEvent) isEvent() {}

// TimeoutEvent fires when a connection has not been heard from within its
// configured idle timeout and has been evicted from the table.
type TimeoutEvent struct {
	Addr net.Addr
}

func (TimeoutEvent) isEvent() {}
