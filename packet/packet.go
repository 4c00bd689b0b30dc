// Package packet defines the application-facing unit the socket engine
// sends and receives: an address, a payload, and the delivery/ordering
// guarantees requested for it.
package packet

import "net"

// Delivery is whether a packet's delivery is guaranteed.
type Delivery uint8

const (
	// Unreliable packets are sent once and never retransmitted.
	Unreliable Delivery = iota
	// Reliable packets are retransmitted until acknowledged.
	Reliable
)

func (d Delivery) String() string {
	if d == Reliable {
		return "Reliable"
	}
	return "Unreliable"
}

// Ordering is how a packet relates to others sent on the same stream.
type Ordering uint8

const (
	// Unordered packets may be delivered to the application in any order.
	Unordered Ordering = iota
	// Sequenced packets are delivered in order; a packet older than the
	// newest one already delivered on its stream is silently dropped.
	Sequenced
	// Ordered packets are delivered strictly in order; a packet that
	// arrives ahead of an older, still-missing one is held until the gap
	// fills (or the hold-back limit is hit).
	Ordered
)

func (o Ordering) String() string {
	switch o {
	case Sequenced:
		return "Sequenced"
	case Ordered:
		return "Ordered"
	default:
		return "Unordered"
	}
}

// Packet is one unit of data submitted to, or delivered by, the engine.
type Packet struct {
	addr     net.Addr
	payload  []byte
	delivery Delivery
	ordering Ordering
	stream   uint8
}

// Addr is the remote peer this packet was sent to, or received from.
func (p Packet) Addr() net.Addr { return p.addr }

// Payload is the opaque application payload.
func (p Packet) Payload() []byte { return p.payload }

// DeliveryGuarantee reports whether this packet is reliable.
func (p Packet) DeliveryGuarantee() Delivery { return p.delivery }

// OrderGuarantee reports this packet's ordering guarantee.
func (p Packet) OrderGuarantee() Ordering { return p.ordering }

// Stream is the ordering/sequencing stream this packet belongs to. Stream 0
// is the default stream.
func (p Packet) Stream() uint8 { return p.stream }

// New builds a Packet with an explicit delivery and ordering guarantee.
// Application code should prefer the named constructors below; New exists
// for the engine's receive path, which reconstructs a Packet from wire
// state rather than from an application call.
func New(addr net.Addr, payload []byte, delivery Delivery, ordering Ordering, stream uint8) Packet {
	return Packet{addr: addr, payload: payload, delivery: delivery, ordering: ordering, stream: stream}
}

// Unreliable builds a fire-and-forget, unordered packet.
func Unreliable(addr net.Addr, payload []byte) Packet {
	return Packet{addr: addr, payload: payload, delivery: Unreliable, ordering: Unordered}
}

// UnreliableSequenced builds an unreliable packet that is dropped by the
// receiver if a newer packet on the same stream already arrived.
func UnreliableSequenced(addr net.Addr, payload []byte, stream uint8) Packet {
	return Packet{addr: addr, payload: payload, delivery: Unreliable, ordering: Sequenced, stream: stream}
}

// ReliableUnordered builds a retransmitted packet with no ordering
// guarantee relative to other packets.
func ReliableUnordered(addr net.Addr, payload []byte) Packet {
	return Packet{addr: addr, payload: payload, delivery: Reliable, ordering: Unordered}
}

// ReliableSequenced builds a retransmitted packet that is dropped by the
// receiver if a newer packet on the same stream already arrived.
func ReliableSequenced(addr net.Addr, payload []byte, stream uint8) Packet {
	return Packet{addr: addr, payload: payload, delivery: Reliable, ordering: Sequenced, stream: stream}
}

// ReliableOrdered builds a retransmitted packet that is delivered strictly
// in order on its stream, holding back out-of-order arrivals.
func ReliableOrdered(addr net.Addr, payload []byte, stream uint8) Packet {
	return Packet{addr: addr, payload: payload, delivery: Reliable, ordering: Ordered, stream: stream}
}
