package conn

import (
	"flowsock/packet"

	"github.com/google/btree"
)

// waitingItem is a reliable payload awaiting acknowledgment. Its itemID is
// minted once, on first submission, and never changes across
// retransmissions — only the wire sequence number(s) backing it change.
// See SPEC_FULL.md §1.2-§1.3.
type waitingItem struct {
	itemID     uint32
	payload    []byte
	delivery   packet.Delivery
	ordering   packet.Ordering
	stream     uint8
	fragmented bool
	fragID     uint16
	fragCount  uint8

	// pendingSeqs maps an outstanding wire sequence number to the
	// fragment index it carries (0 for a non-fragmented item). An item is
	// fully acknowledged, and evicted, once this map is empty.
	pendingSeqs map[uint16]uint8

	sentAtTick uint64
}

func itemLess(a, b *waitingItem) bool { return a.itemID < b.itemID }

// sequenceGreater reports whether a is newer than b in wire-sequence order,
// correctly handling uint16 wraparound.
func sequenceGreater(a, b uint16) bool {
	return int16(a-b) > 0
}

// waitingBuffer holds every reliable payload a connection has sent and is
// still waiting to have acknowledged.
type waitingBuffer struct {
	items     *btree.BTreeG[*waitingItem]
	seqToItem map[uint16]*waitingItem
}

func newWaitingBuffer() *waitingBuffer {
	return &waitingBuffer{
		items:     btree.NewG(32, itemLess),
		seqToItem: make(map[uint16]*waitingItem),
	}
}

func (b *waitingBuffer) insert(it *waitingItem) {
	b.items.ReplaceOrInsert(it)
	for seq := range it.pendingSeqs {
		b.seqToItem[seq] = it
	}
}

// ack removes every pending sequence number implied by ackSeq and
// ackBitfield (ackSeq itself, plus each of the windowSize sequence numbers
// below it whose bit is set) from the waiting buffer, evicting any item
// whose pendingSeqs becomes empty as a result.
func (b *waitingBuffer) ack(ackSeq uint16, ackBitfield uint32, windowSize int) {
	b.ackOne(ackSeq)
	for i := 0; i < windowSize; i++ {
		if ackBitfield&(1<<uint(i)) == 0 {
			continue
		}
		b.ackOne(ackSeq - uint16(i) - 1)
	}
}

func (b *waitingBuffer) ackOne(seq uint16) {
	it, ok := b.seqToItem[seq]
	if !ok {
		return
	}
	delete(b.seqToItem, seq)
	delete(it.pendingSeqs, seq)
	if len(it.pendingSeqs) == 0 {
		b.items.Delete(it)
	}
}

// dropped visits every item due for retransmission (current tick has
// advanced at least resendAfterTicks past the item's sentAtTick) and calls
// reencode to mint the item's fresh sequence number(s) and re-encode its
// datagram(s). The returned byte slices are ready to send.
func (b *waitingBuffer) dropped(tick, resendAfterTicks uint64, reencode func(it *waitingItem) [][]byte) [][]byte {
	var due []*waitingItem
	b.items.Ascend(func(it *waitingItem) bool {
		if tick-it.sentAtTick >= resendAfterTicks {
			due = append(due, it)
		}
		return true
	})

	var out [][]byte
	for _, it := range due {
		for seq := range it.pendingSeqs {
			delete(b.seqToItem, seq)
		}
		datagrams := reencode(it)
		it.sentAtTick = tick
		for seq := range it.pendingSeqs {
			b.seqToItem[seq] = it
		}
		out = append(out, datagrams...)
	}
	return out
}

func (b *waitingBuffer) len() int { return b.items.Len() }
