package table

import (
	"net"
	"testing"
	"time"

	"flowsock/internal/conf"
)

func addr(t *testing.T, s string) net.Addr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		t.Fatalf("ResolveUDPAddr: %v", err)
	}
	return a
}

func TestGetOrInsertConnectionGrowsTable(t *testing.T) {
	tab := New(conf.New())
	a := addr(t, "127.0.0.1:1")
	if tab.Len() != 0 {
		t.Fatalf("expected empty table")
	}
	tab.GetOrInsertConnection(a, time.Unix(0, 0))
	if tab.Len() != 1 {
		t.Fatalf("expected 1 connection after insert, got %d", tab.Len())
	}
	tab.GetOrInsertConnection(a, time.Unix(0, 0))
	if tab.Len() != 1 {
		t.Fatalf("expected GetOrInsertConnection to be idempotent, got %d", tab.Len())
	}
}

// TestGetOrCreateConnectionNeverInsertsUnknownAddr matches the original
// source's receiving_does_not_allow_denial_of_service test: flooding the
// receive path with datagrams from addresses never sent to must never grow
// the table.
func TestGetOrCreateConnectionNeverInsertsUnknownAddr(t *testing.T) {
	tab := New(conf.New())
	for i := 0; i < 50; i++ {
		lookup := tab.GetOrCreateConnection(addr(t, "127.0.0.1:1"))
		if lookup.Existing != nil {
			t.Fatalf("expected no existing connection for a never-inserted address")
		}
		if lookup.Anonymous == nil {
			t.Fatalf("expected an anonymous connection")
		}
	}
	if tab.Len() != 0 {
		t.Fatalf("receive path must never grow the table, got %d entries", tab.Len())
	}
}

func TestGetOrCreateConnectionFindsExisting(t *testing.T) {
	tab := New(conf.New())
	a := addr(t, "127.0.0.1:1")
	inserted := tab.GetOrInsertConnection(a, time.Unix(0, 0))

	lookup := tab.GetOrCreateConnection(a)
	if lookup.Existing != inserted {
		t.Fatalf("expected to find the previously inserted connection")
	}
	if lookup.Anonymous != nil {
		t.Fatalf("expected no anonymous connection when one already exists")
	}
}

func TestIdleConnectionsUsesInjectedTime(t *testing.T) {
	tab := New(conf.New())
	a := addr(t, "127.0.0.1:1")
	tab.GetOrInsertConnection(a, time.Unix(0, 0))

	idle := tab.IdleConnections(5*time.Second, time.Unix(3, 0))
	if len(idle) != 0 {
		t.Fatalf("expected no idle connections before the timeout elapses, got %d", len(idle))
	}

	idle = tab.IdleConnections(5*time.Second, time.Unix(10, 0))
	if len(idle) != 1 {
		t.Fatalf("expected 1 idle connection past the timeout, got %d", len(idle))
	}
}

func TestRemoveEvictsConnection(t *testing.T) {
	tab := New(conf.New())
	a := addr(t, "127.0.0.1:1")
	tab.GetOrInsertConnection(a, time.Unix(0, 0))
	tab.Remove(a)
	if tab.Exists(a) {
		t.Fatalf("expected Remove to evict the connection")
	}
	if tab.Len() != 0 {
		t.Fatalf("expected empty table after Remove, got %d", tab.Len())
	}
}
