package committee

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// Result is the outcome of one member.
type Result struct {
	ID          int   // ID is the member index
	Completed   bool  // Completed is set once the threshold was reached
	CompletedAt int64 // CompletedAt is the completion time, zero if not completed
	Verified    int   // Verified is the number of verified contributions
	Round       int   // Round is the current round
}

// Results returns the outcome of every member, ordered by ID.
func (c *Committee) Results() []Result {
	out := make([]Result, len(c.nodes))

	for i, n := range c.nodes {
		at, ok := n.CompletedAt()
		out[i] = Result{
			ID:          n.ID(),
			Completed:   ok,
			CompletedAt: at,
			Verified:    n.Count(),
			Round:       n.Round(),
		}
	}

	return out
}

// Stats aggregates the activity of a committee.
type Stats struct {
	Time            int64  // Time is the virtual time in milliseconds
	Members         int    // Members is the committee size
	Completed       int    // Completed is the number of completed members
	PendingEvents   int    // PendingEvents is the substrate queue length
	Messages        uint64 // Messages is the number of messages sent on the substrate
	BatchesSent     uint64 // BatchesSent is the number of contribution batches sent
	RepliesSent     uint64 // RepliesSent is the number of batches sent as replies
	UnitsSent       uint64 // UnitsSent is the total encoding cost sent
	BatchesReceived uint64 // BatchesReceived is the number of batches received
	StatesSent      uint64 // StatesSent is the number of state announcements
	Verifications   uint64 // Verifications is the number of verifications run
	FirstDone       int64  // FirstDone is the earliest completion time, -1 if none
	LastDone        int64  // LastDone is the latest completion time, -1 if none
}

// Stats returns the aggregated activity counters.
func (c *Committee) Stats() Stats {
	s := Stats{
		Time:          c.net.Now(),
		Members:       len(c.nodes),
		Completed:     c.done,
		PendingEvents: c.net.Pending(),
		Messages:      c.net.Stats().Messages,
		FirstDone:     -1,
		LastDone:      -1,
	}

	for _, n := range c.nodes {
		ns := n.Stats()
		s.BatchesSent += ns.BatchesSent
		s.RepliesSent += ns.RepliesSent
		s.UnitsSent += ns.UnitsSent
		s.BatchesReceived += ns.BatchesReceived
		s.StatesSent += ns.StatesSent
		s.Verifications += ns.Verifications

		at, ok := n.CompletedAt()
		if !ok {
			continue
		}

		if s.FirstDone < 0 || at < s.FirstDone {
			s.FirstDone = at
		}

		if at > s.LastDone {
			s.LastDone = at
		}
	}

	return s
}

// Digest returns a BLAKE3 hash over the observable state of every member:
// completion, round, verified set and queued sets. Equal digests mean equal outcomes.
func (c *Committee) Digest() [32]byte {
	h := blake3.New()
	buf := make([]byte, 8)

	writeInt := func(v int64) {
		binary.BigEndian.PutUint64(buf, uint64(v))
		h.Write(buf)
	}

	writeInt(c.net.Now())

	for _, n := range c.nodes {
		at, ok := n.CompletedAt()
		if !ok {
			at = -1
		}

		writeInt(int64(n.ID()))
		writeInt(at)
		writeInt(int64(n.Round()))
		h.Write(n.Verified().Bytes())

		queued := n.Queued()
		writeInt(int64(len(queued)))
		for _, b := range queued {
			h.Write(b.Bytes())
		}
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))

	return out
}
