package conn

import (
	"fmt"
	"net"

	"flowsock/internal/conf"
	"flowsock/packet"
	"flowsock/wire"
)

// ErrPacketTooLarge is returned when an unreliable payload would not fit in
// a single datagram; unreliable packets are never fragmented.
var ErrPacketTooLarge = fmt.Errorf("conn: unreliable payload exceeds max packet size")

// recvState is the receive-side logic shared by Connection and Anonymous:
// fragment reassembly, per-stream sequencing/ordering, and tracking what
// this side has seen so it can be stamped into an outgoing ack header.
type recvState struct {
	cfg *conf.Config

	fragments *fragmentTable
	streams   map[uint8]*streamState

	recvHighest     uint16
	recvHighestSeen bool
	recvBitfield    uint32
}

func newRecvState(cfg *conf.Config) *recvState {
	return &recvState{
		cfg:       cfg,
		fragments: newFragmentTable(),
		streams:   make(map[uint8]*streamState),
	}
}

func (r *recvState) streamFor(id uint8) *streamState {
	s, ok := r.streams[id]
	if !ok {
		s = newStreamState()
		r.streams[id] = s
	}
	return s
}

// noteReceived records a reliable datagram's sequence number into this
// side's receive window, so it can later be reported back as an ack.
func (r *recvState) noteReceived(seq uint16) {
	if !r.recvHighestSeen {
		r.recvHighest = seq
		r.recvHighestSeen = true
		return
	}
	if seq == r.recvHighest {
		return
	}
	window := uint16(r.cfg.AckWindowSize)
	if sequenceGreater(seq, r.recvHighest) {
		shift := seq - r.recvHighest
		if shift > window {
			r.recvBitfield = 0
		} else {
			r.recvBitfield <<= shift
			r.recvBitfield |= 1 << (shift - 1)
		}
		r.recvHighest = seq
		return
	}
	// Older than recvHighest: set the corresponding bit if it's still
	// within the window.
	age := r.recvHighest - seq
	if age >= 1 && age <= window {
		r.recvBitfield |= 1 << (age - 1)
	}
}

// ackHeader builds the ack header this side should stamp on its next
// outgoing reliable datagram.
func (r *recvState) ackHeader() wire.AckHeader {
	return wire.AckHeader{AckSeq: r.recvHighest, AckBitfield: r.recvBitfield}
}

// ingest decodes one inbound datagram, reassembling fragments and applying
// ordering, and returns every packet.Packet now releasable to the
// application as a result (zero, one, or — for Ordered streams unblocking
// a run — several). When the datagram is reliable, hasAck reports whether
// ackHdr was populated from it.
func (r *recvState) ingest(addr net.Addr, data []byte) (delivered []packet.Packet, ackHdr wire.AckHeader, hasAck bool, err error) {
	h, n, err := wire.DecodeStandardHeader(data)
	if err != nil {
		return nil, wire.AckHeader{}, false, err
	}
	data = data[n:]

	if h.Reliable {
		r.noteReceived(h.Sequence)
	}

	// orderingSeq is the number ordering/sequencing decisions key off. For
	// a fragmented message every piece carries its own fresh wire sequence
	// (needed for per-datagram acking), so the stable FragmentID — minted
	// once for the whole message — stands in for it instead.
	orderingSeq := h.Sequence

	var fh wire.FragmentHeader
	isFragment := h.Kind == wire.KindFragment
	if isFragment {
		var n int
		fh, n, err = wire.DecodeFragmentHeader(data)
		if err != nil {
			return nil, wire.AckHeader{}, false, err
		}
		data = data[n:]
		orderingSeq = fh.FragmentID
	}

	// The ack header follows the standard header on every reliable,
	// non-fragmented datagram, and follows the fragment header on a
	// fragmented message's first piece only — a receiver must decode the
	// fragment header before it can know whether one follows.
	if h.Reliable && (!isFragment || fh.FragmentIndex == 0) {
		var n int
		ackHdr, n, err = wire.DecodeAckHeader(data)
		if err != nil {
			return nil, wire.AckHeader{}, false, err
		}
		data = data[n:]
		hasAck = true
	}

	var payload []byte
	if isFragment {
		complete, ok := r.fragments.ingest(fh, data)
		if !ok {
			return nil, ackHdr, hasAck, nil
		}
		payload = complete
	} else {
		payload = append([]byte(nil), data...)
	}

	switch h.Ordering {
	case wire.OrderingUnordered:
		delivered = append(delivered, packet.New(addr, payload, deliveryOf(h.Reliable), packet.Unordered, h.Stream))
	case wire.OrderingSequenced:
		st := r.streamFor(h.Stream)
		if st.admitSequenced(orderingSeq) {
			delivered = append(delivered, packet.New(addr, payload, deliveryOf(h.Reliable), packet.Sequenced, h.Stream))
		}
	case wire.OrderingOrdered:
		st := r.streamFor(h.Stream)
		for _, p := range st.admitOrdered(orderingSeq, payload, r.cfg.OrderingHoldLimit) {
			delivered = append(delivered, packet.New(addr, p, deliveryOf(h.Reliable), packet.Ordered, h.Stream))
		}
	}

	return delivered, ackHdr, hasAck, nil
}

func deliveryOf(reliable bool) packet.Delivery {
	if reliable {
		return packet.Reliable
	}
	return packet.Unreliable
}
