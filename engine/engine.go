// Package engine implements C5: the socket engine that owns a datagram
// endpoint, the active-connection table, and an optional link conditioner,
// and drives them through a three-phase poll tick — Phase R
// (receive/demux), Phase S (send/retransmit), Phase T (timeout/idle
// eviction). See SPEC_FULL.md §1 and §4 for the full contract this
// package implements.
package engine

import (
	"net"
	"time"

	"flowsock/conditioner"
	"flowsock/internal/conf"
	"flowsock/events"
	"flowsock/internal/flog"
	"flowsock/netio"
	"flowsock/packet"
	"flowsock/table"
)

// Engine is the socket: the single owner of its endpoint and connection
// table. Nothing about it is safe for concurrent ManualPoll calls — it is
// meant to be driven by exactly one goroutine, directly via ManualPoll or
// indirectly via StartPolling.
type Engine struct {
	endpoint    netio.Endpoint
	table       *table.Table
	cfg         *conf.Config
	conditioner *conditioner.Conditioner

	sendCh  chan packet.Packet
	eventCh chan events.Event

	recvBuf []byte
	stop    chan struct{}
}

// Bind opens a real UDP endpoint on addr and returns an Engine for it.
func Bind(addr string, cfg *conf.Config) (*Engine, error) {
	ep, err := netio.Bind(addr, cfg)
	if err != nil {
		return nil, err
	}
	return newEngine(ep, cfg), nil
}

// BindAny opens a real UDP endpoint on an OS-assigned loopback port and
// returns an Engine for it.
func BindAny(cfg *conf.Config) (*Engine, error) {
	ep, err := netio.BindAny(cfg)
	if err != nil {
		return nil, err
	}
	return newEngine(ep, cfg), nil
}

// BindEndpoint builds an Engine around an already-constructed Endpoint —
// the real UDP one, or netio.Fake for tests that want deterministic
// control over what arrives and when.
func BindEndpoint(ep netio.Endpoint, cfg *conf.Config) *Engine {
	return newEngine(ep, cfg)
}

func newEngine(ep netio.Endpoint, cfg *conf.Config) *Engine {
	if cfg == nil {
		cfg = conf.New()
	}
	return &Engine{
		endpoint: ep,
		table:    table.New(cfg),
		cfg:      cfg,
		sendCh:   make(chan packet.Packet, 1024),
		eventCh:  make(chan events.Event, 1024),
		recvBuf:  make([]byte, cfg.ReceiveBufferMaxSize),
		stop:     make(chan struct{}),
	}
}

// LocalAddr is the address this engine's endpoint is bound to.
func (e *Engine) LocalAddr() net.Addr { return e.endpoint.LocalAddr() }

// SetLinkConditioner installs C2: every outbound datagram is, from this
// point on, first offered to c.ShouldSend before it reaches the wire. A
// nil conditioner (the default) never drops anything.
func (e *Engine) SetLinkConditioner(c *conditioner.Conditioner) { e.conditioner = c }

// ConnectionCount reports how many table-resident connections this engine
// currently tracks. Supplemented from the original source's
// connection_count() test accessor (SPEC_FULL.md §4); useful for asserting
// C4's DoS-resistant insert/lookup asymmetry.
func (e *Engine) ConnectionCount() int { return e.table.Len() }

// GetPacketSender returns the channel applications submit outgoing packets
// on. Send is a thin convenience wrapper around the same channel.
func (e *Engine) GetPacketSender() chan<- packet.Packet { return e.sendCh }

// GetEventReceiver returns the channel Phase R and Phase T publish events
// on. Recv is a thin convenience wrapper around the same channel.
func (e *Engine) GetEventReceiver() <-chan events.Event { return e.eventCh }

// Send queues p for the next Phase S to process. It never blocks the
// wire: p is handed to the send queue, and the engine's own poll tick
// decides when to actually put bytes on the socket.
func (e *Engine) Send(p packet.Packet) {
	e.sendCh <- p
}

// Recv blocks until an event is available.
func (e *Engine) Recv() events.Event {
	return <-e.eventCh
}

// ManualPoll runs exactly one tick: Phase R, then Phase S, then Phase T,
// using now as the tick's notion of the current time. Callers that want a
// background loop should use StartPolling/StartPollingWithDuration
// instead.
func (e *Engine) ManualPoll(now time.Time) {
	e.phaseR(now)
	e.phaseS(now)
	e.phaseT(now)
}

// phaseR drains the endpoint until it reports no more datagrams are
// queued, demultiplexing each one through the connection table.
func (e *Engine) phaseR(now time.Time) {
	for {
		n, addr, err := e.endpoint.ReadFrom(e.recvBuf)
		if err != nil {
			if err != netio.ErrWouldBlock {
				flog.Warnf("engine: read error: %v", err)
			}
			return
		}
		if n == 0 {
			flog.Warnf("engine: short receive (0 bytes) from %v", addr)
			continue
		}
		data := append([]byte(nil), e.recvBuf[:n]...)
		e.demux(addr, data, now)
	}
}

// demux implements eager Connect emission: a Connect event fires for an
// address not yet in the table before that datagram's contents are ever
// processed, even if processing the datagram itself later fails.
func (e *Engine) demux(addr net.Addr, data []byte, now time.Time) {
	existedBefore := e.table.Exists(addr)
	if !existedBefore {
		e.publish(events.ConnectEvent{Addr: addr})
	}

	lookup := e.table.GetOrCreateConnection(addr)

	var (
		delivered []packet.Packet
		err       error
	)
	if lookup.Existing != nil {
		delivered, err = lookup.Existing.ProcessIncoming(data, now)
	} else {
		delivered, err = lookup.Anonymous.ProcessIncoming(data, now)
	}
	if err != nil {
		flog.Warnf("engine: dropping malformed datagram from %v: %v", addr, err)
		return
	}
	for _, p := range delivered {
		e.publish(events.PacketEvent{Packet: p})
	}
}

// phaseS drains every packet queued since the last tick, resending
// anything gone unacknowledged for long enough along the way, and writes
// the resulting datagrams to the endpoint.
func (e *Engine) phaseS(now time.Time) {
	for {
		select {
		case p := <-e.sendCh:
			e.sendOne(p, now)
		default:
			return
		}
	}
}

func (e *Engine) sendOne(p packet.Packet, now time.Time) {
	c := e.table.GetOrInsertConnection(p.Addr(), now)
	c.BeginSendTick()

	for _, datagram := range c.GatherDroppedPackets() {
		e.writeFiltered(datagram, p.Addr())
	}

	datagrams, err := c.ProcessOutgoing(p, now)
	if err != nil {
		// A failure on one queued packet does not abort the rest of the
		// batch — the loop in phaseS simply continues to the next packet
		// on the next channel receive.
		flog.Warnf("engine: failed to send to %v: %v", p.Addr(), err)
		return
	}
	for _, datagram := range datagrams {
		e.writeFiltered(datagram, p.Addr())
	}
}

func (e *Engine) writeFiltered(datagram []byte, addr net.Addr) {
	if !e.conditioner.ShouldSend() {
		return
	}
	if _, err := e.endpoint.WriteTo(datagram, addr); err != nil {
		flog.Warnf("engine: write to %v failed: %v", addr, err)
	}
}

// phaseT evicts every connection idle for longer than
// cfg.IdleConnectionTimeout, publishing a TimeoutEvent for each.
func (e *Engine) phaseT(now time.Time) {
	for _, addr := range e.table.IdleConnections(e.cfg.IdleConnectionTimeout, now) {
		e.table.Remove(addr)
		e.publish(events.TimeoutEvent{Addr: addr})
	}
}

func (e *Engine) publish(evt events.Event) {
	select {
	case e.eventCh <- evt:
	default:
		flog.Warnf("engine: event channel full, dropping %T", evt)
	}
}

// StartPolling runs ManualPoll in a loop, using the real wall clock,
// sleeping interval between ticks, until Stop is called.
func (e *Engine) StartPolling(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case now := <-ticker.C:
				e.ManualPoll(now)
			}
		}
	}()
}

// StartPollingWithDuration is an alias for StartPolling kept for parity
// with the original source's start_polling_with_duration, which makes the
// poll interval explicit at the call site rather than implicit in a
// default.
func (e *Engine) StartPollingWithDuration(d time.Duration) { e.StartPolling(d) }

// Stop ends a background polling loop started by StartPolling. It does not
// close the endpoint.
func (e *Engine) Stop() { close(e.stop) }

// Close releases the underlying endpoint.
func (e *Engine) Close() error { return e.endpoint.Close() }
