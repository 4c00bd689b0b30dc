package wire

import "testing"

func TestStandardHeaderRoundTrip(t *testing.T) {
	h := StandardHeader{Kind: KindFragment, Reliable: true, Ordering: OrderingOrdered, Stream: 3, Sequence: 4242}
	buf := make([]byte, StandardHeaderSize)
	n := h.Encode(buf)
	if n != StandardHeaderSize {
		t.Fatalf("Encode returned %d, want %d", n, StandardHeaderSize)
	}

	got, n, err := DecodeStandardHeader(buf)
	if err != nil {
		t.Fatalf("DecodeStandardHeader: %v", err)
	}
	if n != StandardHeaderSize {
		t.Fatalf("decode consumed %d, want %d", n, StandardHeaderSize)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestStandardHeaderDecodeShort(t *testing.T) {
	_, _, err := DecodeStandardHeader(make([]byte, StandardHeaderSize-1))
	if err != ErrShortHeader {
		t.Errorf("expected ErrShortHeader, got %v", err)
	}
}

func TestAckHeaderRoundTrip(t *testing.T) {
	h := AckHeader{AckSeq: 65000, AckBitfield: 0xDEADBEEF}
	buf := make([]byte, AckHeaderSize)
	h.Encode(buf)
	got, _, err := DecodeAckHeader(buf)
	if err != nil {
		t.Fatalf("DecodeAckHeader: %v", err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestFragmentHeaderRoundTrip(t *testing.T) {
	h := FragmentHeader{FragmentID: 7, FragmentIndex: 2, FragmentCount: 4}
	buf := make([]byte, FragmentHeaderSize)
	h.Encode(buf)
	got, _, err := DecodeFragmentHeader(buf)
	if err != nil {
		t.Fatalf("DecodeFragmentHeader: %v", err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestUnreliableSize(t *testing.T) {
	if got := UnreliableSize(100); got != 105 {
		t.Errorf("UnreliableSize(100) = %d, want 105", got)
	}
}

func TestReliableSize(t *testing.T) {
	if got := ReliableSize(100); got != 111 {
		t.Errorf("ReliableSize(100) = %d, want 111", got)
	}
}

// TestFragmentedSizeWorkedExample checks a 4000-byte payload at the
// default 1000-byte fragment threshold splits into exactly 4 fragments,
// for a total on-wire size of 4000 + 4*(5+4) + 6 = 4042.
func TestFragmentedSizeWorkedExample(t *testing.T) {
	const threshold = 1000
	if k := FragmentCount(4000, threshold); k != 4 {
		t.Fatalf("FragmentCount(4000, 1000) = %d, want 4", k)
	}
	if got := FragmentedSize(4000, threshold); got != 4042 {
		t.Errorf("FragmentedSize(4000, 1000) = %d, want 4042", got)
	}
}

func TestFragmentCountRoundsUp(t *testing.T) {
	if k := FragmentCount(1001, 1000); k != 2 {
		t.Errorf("FragmentCount(1001, 1000) = %d, want 2", k)
	}
	if k := FragmentCount(1000, 1000); k != 1 {
		t.Errorf("FragmentCount(1000, 1000) = %d, want 1", k)
	}
}
