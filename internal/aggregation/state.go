package aggregation

import (
	"fmt"

	"SanFermin/internal/bitmap"
	"SanFermin/internal/topology"
)

// PeerEntry is a pending ledger entry.
type PeerEntry struct {
	Peer  int           // Peer is the pending target
	Known bitmap.Bitmap // Known is what the peer is believed to know
}

// NodeState is the complete state of a node, detached from the live node.
type NodeState struct {
	ID          int
	Round       int
	Cursor      int
	Started     bool
	Progress    bool
	Verifying   bool
	Flushing    bool
	Completed   bool
	Fresh       int
	CompletedAt int64
	Verified    bitmap.Bitmap
	Contacted   bitmap.Bitmap
	Replies     bitmap.Bitmap
	Queue       []bitmap.Bitmap
	Pending     []PeerEntry
	Stats       Stats
}

// Export captures the node state.
func (n *Node) Export() NodeState {
	pending := make([]PeerEntry, 0, n.ledger.Pending())
	for _, peer := range n.ledger.Peers() {
		known, _ := n.ledger.Knowledge(peer)
		pending = append(pending, PeerEntry{Peer: peer, Known: known})
	}

	return NodeState{
		ID:          n.id,
		Round:       n.round,
		Cursor:      n.cursor,
		Started:     n.started,
		Progress:    n.progress,
		Verifying:   n.verifying,
		Flushing:    n.flushing,
		Completed:   n.completed,
		Fresh:       n.fresh,
		CompletedAt: n.completedAt,
		Verified:    n.tracker.Verified(),
		Contacted:   n.contacted.Clone(),
		Replies:     n.replies.Clone(),
		Queue:       n.pipeline.Queued(),
		Pending:     pending,
		Stats:       n.stats,
	}
}

// RestoreNode rebuilds a node from its exported state.
func RestoreNode(st NodeState, params *Params, tree *topology.Tree) (*Node, error) {
	n, err := NewNode(st.ID, params, tree)
	if err != nil {
		return nil, err
	}

	if st.Round < 0 || st.Round > tree.MaxRound() {
		return nil, fmt.Errorf("node %d: round %d outside [0, %d]", st.ID, st.Round, tree.MaxRound())
	}

	for _, b := range []bitmap.Bitmap{st.Verified, st.Contacted, st.Replies} {
		if b.Width() != params.Size {
			return nil, fmt.Errorf("node %d: %w: %d != %d", st.ID, bitmap.ErrWidthMismatch, b.Width(), params.Size)
		}
	}

	if !st.Verified.Has(st.ID) {
		return nil, fmt.Errorf("node %d: own contribution missing from verified set", st.ID)
	}

	if _, err := n.tracker.Merge(st.Verified); err != nil {
		return nil, err
	}

	for _, b := range st.Queue {
		if b.Width() != params.Size {
			return nil, fmt.Errorf("node %d queue: %w", st.ID, bitmap.ErrWidthMismatch)
		}

		n.pipeline.Enqueue(b)
	}

	for _, e := range st.Pending {
		n.ledger.Record(e.Peer)
		if _, err := n.ledger.Learn(e.Peer, e.Known); err != nil {
			return nil, fmt.Errorf("node %d ledger:\n%w", st.ID, err)
		}
	}

	n.round = st.Round
	n.cursor = st.Cursor
	n.started = st.Started
	n.progress = st.Progress
	n.verifying = st.Verifying
	n.flushing = st.Flushing
	n.completed = st.Completed
	n.fresh = st.Fresh
	n.completedAt = st.CompletedAt
	n.contacted = st.Contacted.Clone()
	n.replies = st.Replies.Clone()
	n.stats = st.Stats

	return n, nil
}
