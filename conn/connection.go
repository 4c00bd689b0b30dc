// Package conn implements C3, the per-peer connection contract:
// reliability (retransmission until acknowledged), ordering/sequencing per
// stream, and fragmentation/reassembly of oversized reliable payloads.
// See SPEC_FULL.md §1 for the wire design this package implements.
package conn

import (
	"net"
	"time"

	"flowsock/internal/conf"
	"flowsock/packet"
	"flowsock/wire"
)

// Connection is a table-resident, persistent peer: the send side of C3.
// It owns a waiting-packet buffer for reliable delivery in addition to the
// receive-side state shared with Anonymous.
type Connection struct {
	addr        net.Addr
	lastHeardAt time.Time
	cfg         *conf.Config

	recv    *recvState
	waiting *waitingBuffer

	nextSeq    uint16
	nextItemID uint32
	nextFragID uint16
	sendTick   uint64
}

// NewConnection creates a table-resident connection for addr, first heard
// from at now.
func NewConnection(addr net.Addr, now time.Time, cfg *conf.Config) *Connection {
	return &Connection{
		addr:        addr,
		lastHeardAt: now,
		cfg:         cfg,
		recv:        newRecvState(cfg),
		waiting:     newWaitingBuffer(),
	}
}

// Addr is this connection's peer address.
func (c *Connection) Addr() net.Addr { return c.addr }

// LastHeardAt is when Touch was last called for this connection, i.e. the
// last time any datagram was received from it.
func (c *Connection) LastHeardAt() time.Time { return c.lastHeardAt }

// Touch records that a datagram was just received from this connection.
func (c *Connection) Touch(now time.Time) { c.lastHeardAt = now }

// WaitingCount reports how many reliable payloads are still awaiting
// acknowledgment. It exists for tests and diagnostics.
func (c *Connection) WaitingCount() int { return c.waiting.len() }

// BeginSendTick marks one Phase-S visit to this connection — the engine
// calls it once per queued Send it drains for this peer, before gathering
// dropped packets or processing the next outgoing packet. See
// SPEC_FULL.md §1.3 for why retransmission is tick-driven rather than
// wall-clock-driven.
func (c *Connection) BeginSendTick() uint64 {
	c.sendTick++
	return c.sendTick
}

// ProcessOutgoing turns an application packet into the datagram(s) that
// should be put on the wire, registering reliable payloads in the waiting
// buffer so they can be retransmitted until acknowledged.
func (c *Connection) ProcessOutgoing(p packet.Packet, now time.Time) ([][]byte, error) {
	payload := p.Payload()

	if p.DeliveryGuarantee() == packet.Unreliable {
		if wire.UnreliableSize(len(payload)) > c.cfg.MaxPacketSize {
			return nil, ErrPacketTooLarge
		}
		h := wire.StandardHeader{
			Kind:     wire.KindData,
			Reliable: false,
			Ordering: wireOrdering(p.OrderGuarantee()),
			Stream:   p.Stream(),
			Sequence: c.allocSeq(),
		}
		buf := make([]byte, wire.StandardHeaderSize+len(payload))
		n := h.Encode(buf)
		copy(buf[n:], payload)
		return [][]byte{buf}, nil
	}

	itemID := c.nextItemID
	c.nextItemID++

	if wire.ReliableSize(len(payload)) <= c.cfg.MaxPacketSize {
		seq := c.allocSeq()
		datagram := c.encodeReliableWhole(seq, p.OrderGuarantee(), p.Stream(), payload)
		it := &waitingItem{
			itemID:      itemID,
			payload:     payload,
			delivery:    packet.Reliable,
			ordering:    p.OrderGuarantee(),
			stream:      p.Stream(),
			pendingSeqs: map[uint16]uint8{seq: 0},
			sentAtTick:  c.sendTick,
		}
		c.waiting.insert(it)
		return [][]byte{datagram}, nil
	}

	fragID := c.nextFragID
	c.nextFragID++
	k := wire.FragmentCount(len(payload), c.cfg.FragmentThreshold)
	datagrams, pending := c.encodeFragments(fragID, uint8(k), p.OrderGuarantee(), p.Stream(), payload)
	it := &waitingItem{
		itemID:      itemID,
		payload:     payload,
		delivery:    packet.Reliable,
		ordering:    p.OrderGuarantee(),
		stream:      p.Stream(),
		fragmented:  true,
		fragID:      fragID,
		fragCount:   uint8(k),
		pendingSeqs: pending,
		sentAtTick:  c.sendTick,
	}
	c.waiting.insert(it)
	return datagrams, nil
}

// GatherDroppedPackets returns every retransmittable datagram for reliable
// payloads that have gone unacknowledged for ResendAfterTicks ticks,
// minting fresh wire sequence numbers for them.
func (c *Connection) GatherDroppedPackets() [][]byte {
	return c.waiting.dropped(c.sendTick, c.cfg.ResendAfterTicks, func(it *waitingItem) [][]byte {
		if !it.fragmented {
			seq := c.allocSeq()
			it.pendingSeqs = map[uint16]uint8{seq: 0}
			return [][]byte{c.encodeReliableWhole(seq, it.ordering, it.stream, it.payload)}
		}

		datagrams, pending := c.encodeFragments(it.fragID, it.fragCount, it.ordering, it.stream, it.payload)
		it.pendingSeqs = pending
		return datagrams
	})
}

// ProcessIncoming decodes an inbound datagram, applies reassembly and
// ordering, evicts any waiting payloads the peer has now acknowledged, and
// returns every packet now releasable to the application.
func (c *Connection) ProcessIncoming(data []byte, now time.Time) ([]packet.Packet, error) {
	c.Touch(now)
	delivered, ackHdr, hasAck, err := c.recv.ingest(c.addr, data)
	if err != nil {
		return nil, err
	}
	if hasAck {
		c.waiting.ack(ackHdr.AckSeq, ackHdr.AckBitfield, c.cfg.AckWindowSize)
	}
	return delivered, nil
}

func (c *Connection) allocSeq() uint16 {
	seq := c.nextSeq
	c.nextSeq++
	return seq
}

func (c *Connection) encodeReliableWhole(seq uint16, ordering packet.Ordering, stream uint8, payload []byte) []byte {
	h := wire.StandardHeader{Kind: wire.KindData, Reliable: true, Ordering: wireOrdering(ordering), Stream: stream, Sequence: seq}
	ack := c.recv.ackHeader()
	buf := make([]byte, wire.StandardHeaderSize+wire.AckHeaderSize+len(payload))
	n := h.Encode(buf)
	n += ack.Encode(buf[n:])
	copy(buf[n:], payload)
	return buf
}

// encodeFragments splits payload into k pieces of at most
// c.cfg.FragmentThreshold bytes, each with its own fresh wire sequence
// number, and returns the encoded datagrams plus the pendingSeqs map
// tracking which fragment index each sequence number carries.
func (c *Connection) encodeFragments(fragID uint16, k uint8, ordering packet.Ordering, stream uint8, payload []byte) ([][]byte, map[uint16]uint8) {
	datagrams := make([][]byte, 0, k)
	pending := make(map[uint16]uint8, k)
	threshold := c.cfg.FragmentThreshold

	for i := uint8(0); i < k; i++ {
		start := int(i) * threshold
		end := start + threshold
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]

		seq := c.allocSeq()
		pending[seq] = i

		h := wire.StandardHeader{Kind: wire.KindFragment, Reliable: true, Ordering: wireOrdering(ordering), Stream: stream, Sequence: seq}
		fh := wire.FragmentHeader{FragmentID: fragID, FragmentIndex: i, FragmentCount: k}

		size := wire.StandardHeaderSize + wire.FragmentHeaderSize + len(chunk)
		if i == 0 {
			size += wire.AckHeaderSize
		}
		buf := make([]byte, size)
		n := h.Encode(buf)
		// The fragment header always comes right after the standard
		// header, ahead of any ack header: a receiver must know the
		// fragment index before it can know whether an ack header
		// follows, since only index 0 carries one.
		n += fh.Encode(buf[n:])
		if i == 0 {
			ack := c.recv.ackHeader()
			n += ack.Encode(buf[n:])
		}
		copy(buf[n:], chunk)
		datagrams = append(datagrams, buf)
	}
	return datagrams, pending
}

func wireOrdering(o packet.Ordering) wire.Ordering {
	switch o {
	case packet.Sequenced:
		return wire.OrderingSequenced
	case packet.Ordered:
		return wire.OrderingOrdered
	default:
		return wire.OrderingUnordered
	}
}
