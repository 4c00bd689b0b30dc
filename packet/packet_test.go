package packet

import (
	"net"
	"testing"
)

func addr(t *testing.T) net.Addr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", "127.0.0.1:9000")
	if err != nil {
		t.Fatalf("ResolveUDPAddr: %v", err)
	}
	return a
}

func TestUnreliableConstructor(t *testing.T) {
	p := Unreliable(addr(t), []byte("hi"))
	if p.DeliveryGuarantee() != Unreliable {
		t.Errorf("expected Unreliable delivery")
	}
	if p.OrderGuarantee() != Unordered {
		t.Errorf("expected Unordered ordering")
	}
	if string(p.Payload()) != "hi" {
		t.Errorf("payload mismatch: %q", p.Payload())
	}
}

func TestReliableOrderedConstructor(t *testing.T) {
	p := ReliableOrdered(addr(t), []byte("hi"), 5)
	if p.DeliveryGuarantee() != Reliable {
		t.Errorf("expected Reliable delivery")
	}
	if p.OrderGuarantee() != Ordered {
		t.Errorf("expected Ordered ordering")
	}
	if p.Stream() != 5 {
		t.Errorf("Stream() = %d, want 5", p.Stream())
	}
}

func TestReliableSequencedConstructor(t *testing.T) {
	p := ReliableSequenced(addr(t), []byte("hi"), 1)
	if p.DeliveryGuarantee() != Reliable || p.OrderGuarantee() != Sequenced {
		t.Errorf("unexpected guarantees: %v/%v", p.DeliveryGuarantee(), p.OrderGuarantee())
	}
}

func TestDeliveryAndOrderingStringers(t *testing.T) {
	if Reliable.String() != "Reliable" || Unreliable.String() != "Unreliable" {
		t.Errorf("Delivery.String mismatch")
	}
	if Sequenced.String() != "Sequenced" || Ordered.String() != "Ordered" || Unordered.String() != "Unordered" {
		t.Errorf("Ordering.String mismatch")
	}
}
