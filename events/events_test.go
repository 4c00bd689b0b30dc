package events

import (
	"net"
	"testing"
)

func TestEventVariantsSatisfyInterface(t *testing.T) {
	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:1")
	var evts []Event
	evts = append(evts, ConnectEvent{Addr: addr})
	evts = append(evts, TimeoutEvent{Addr: addr})
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if _, ok := evts[0].(ConnectEvent); !ok {
		t.Errorf("expected evts[0] to be a ConnectEvent")
	}
	if _, ok := evts[1].(TimeoutEvent); !ok {
		t.Errorf("expected evts[1] to be a TimeoutEvent")
	}
}
