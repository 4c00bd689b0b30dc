// Package conditioner implements the socket engine's optional, test-only
// link conditioner (C2): a deterministic packet-loss simulator consulted
// before every outgoing send.
package conditioner

import "math/rand/v2"

// Conditioner decides, per outgoing datagram, whether the engine's send
// path should actually put it on the wire. A nil *Conditioner (the
// engine's default) always sends.
type Conditioner struct {
	lossProbability float64
	rng             *rand.Rand
}

// New returns a Conditioner that drops outgoing datagrams with probability
// lossProbability (0 never drops, 1 always drops), using a deterministic
// source seeded by seed so tests are reproducible.
func New(lossProbability float64, seed uint64) *Conditioner {
	if lossProbability < 0 {
		lossProbability = 0
	}
	if lossProbability > 1 {
		lossProbability = 1
	}
	return &Conditioner{
		lossProbability: lossProbability,
		rng:             rand.New(rand.NewPCG(seed, seed)),
	}
}

// ShouldSend reports whether a datagram should be sent. A nil receiver
// always returns true, matching the engine's unconditioned default.
func (c *Conditioner) ShouldSend() bool {
	if c == nil || c.lossProbability == 0 {
		return true
	}
	return c.rng.Float64() >= c.lossProbability
}
