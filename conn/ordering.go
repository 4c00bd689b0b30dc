package conn

// streamState tracks, per ordering/sequencing stream, enough history to
// apply Sequenced and Ordered delivery semantics to arriving datagrams.
type streamState struct {
	// sequencedHighest is the newest sequence number delivered on this
	// stream under Sequenced ordering.
	sequencedHighest     uint16
	sequencedHighestSeen bool

	// orderedNext is the next sequence number Ordered delivery is waiting
	// for on this stream.
	orderedNext    uint16
	orderedStarted bool
	holdback       map[uint16][]byte
}

func newStreamState() *streamState {
	return &streamState{holdback: make(map[uint16][]byte)}
}

// admitSequenced reports whether a datagram with the given sequence number
// should be delivered under Sequenced ordering, updating the stream's
// high-water mark when it is.
func (s *streamState) admitSequenced(seq uint16) bool {
	if !s.sequencedHighestSeen || sequenceGreater(seq, s.sequencedHighest) {
		s.sequencedHighest = seq
		s.sequencedHighestSeen = true
		return true
	}
	return false
}

// admitOrdered applies Ordered delivery: it returns, in order, every
// payload now releasable on this stream (the one just arrived, plus any
// contiguous run it unblocks from the hold-back buffer). holdLimit bounds
// how many out-of-order payloads may be buffered at once; a payload that
// would exceed it is dropped rather than buffered.
func (s *streamState) admitOrdered(seq uint16, payload []byte, holdLimit int) [][]byte {
	if !s.orderedStarted {
		s.orderedNext = seq
		s.orderedStarted = true
	}

	if seq == s.orderedNext {
		released := [][]byte{payload}
		s.orderedNext++
		for {
			next, ok := s.holdback[s.orderedNext]
			if !ok {
				break
			}
			released = append(released, next)
			delete(s.holdback, s.orderedNext)
			s.orderedNext++
		}
		return released
	}

	if sequenceGreater(s.orderedNext, seq) {
		// Strictly older than what we're waiting for: a duplicate or a
		// very late arrival. Drop it.
		return nil
	}

	if _, exists := s.holdback[seq]; !exists && len(s.holdback) >= holdLimit {
		return nil
	}
	s.holdback[seq] = payload
	return nil
}
