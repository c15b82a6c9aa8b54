package network

import (
	"math/rand/v2"
)

// Latency computes the propagation delay of one message.
// Implementations must be stateless: they are shared between clones.
type Latency interface {
	Delay(from, to int, rng *rand.Rand) int64
}

// Fixed delays every message by the same amount.
type Fixed int64

// Delay returns the fixed delay.
func (f Fixed) Delay(_, _ int, _ *rand.Rand) int64 {
	return int64(f)
}

// Uniform draws the delay uniformly from [Min, Max].
type Uniform struct {
	Min int64 // Min is the smallest delay in milliseconds
	Max int64 // Max is the largest delay in milliseconds
}

// Delay draws a delay from the seeded source.
func (u Uniform) Delay(_, _ int, rng *rand.Rand) int64 {
	if u.Max <= u.Min {
		return u.Min
	}

	return u.Min + rng.Int64N(u.Max-u.Min+1)
}
