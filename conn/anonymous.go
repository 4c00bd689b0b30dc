package conn

import (
	"net"
	"time"

	"flowsock/internal/conf"
	"flowsock/packet"
)

// Anonymous is the receive-only connection variant the C4 insert/lookup
// asymmetry produces for a datagram from an address not already in the
// connection table: it shares the same reassembly/ordering logic as a
// table-resident Connection, but has no waiting-packet buffer and is never
// inserted into the table — it lives for exactly one ProcessIncoming call.
// See SPEC_FULL.md §1.2.
type Anonymous struct {
	addr net.Addr
	recv *recvState
}

// NewAnonymous builds a one-shot receive-only connection for addr.
func NewAnonymous(addr net.Addr, cfg *conf.Config) *Anonymous {
	return &Anonymous{addr: addr, recv: newRecvState(cfg)}
}

// Addr is the peer address this datagram came from.
func (a *Anonymous) Addr() net.Addr { return a.addr }

// ProcessIncoming decodes the single datagram this Anonymous connection
// exists for. Any ack header it carries is decoded but discarded: an
// Anonymous connection never sent anything and has no waiting buffer to
// evict from.
func (a *Anonymous) ProcessIncoming(data []byte, _ time.Time) ([]packet.Packet, error) {
	delivered, _, _, err := a.recv.ingest(a.addr, data)
	return delivered, err
}
