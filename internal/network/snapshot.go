package network

import (
	"fmt"
	"math/rand/v2"
)

// Snapshot is the complete substrate state, detached from any live network.
type Snapshot struct {
	Size   int     // Size is the number of nodes
	Now    int64   // Now is the virtual time
	Seq    uint64  // Seq is the next insertion number
	Rand   []byte  // Rand is the marshaled PCG state
	Peers  [][]int // Peers is the base peer list of each node
	Events []Event // Events are the pending events in firing order
	Stats  Stats   // Stats are the activity counters
}

// Export captures the network state.
func (n *Network) Export() (*Snapshot, error) {
	state, err := n.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal random source:\n%w", err)
	}

	peers := make([][]int, len(n.peers))
	for i, p := range n.peers {
		peers[i] = append([]int(nil), p...)
	}

	return &Snapshot{
		Size:   n.size,
		Now:    n.now,
		Seq:    n.seq,
		Rand:   state,
		Peers:  peers,
		Events: n.queue.events(),
		Stats:  n.stats,
	}, nil
}

// Restore rebuilds a network from a snapshot. The latency model is not part of the
// snapshot and must match the one the snapshot was taken with.
func Restore(snap *Snapshot, latency Latency) (*Network, error) {
	if snap.Size <= 0 {
		return nil, fmt.Errorf("invalid network size %d", snap.Size)
	}

	if len(snap.Peers) != snap.Size {
		return nil, fmt.Errorf("peer lists for %d nodes, want %d", len(snap.Peers), snap.Size)
	}

	src := &rand.PCG{}
	if err := src.UnmarshalBinary(snap.Rand); err != nil {
		return nil, fmt.Errorf("unmarshal random source:\n%w", err)
	}

	if latency == nil {
		latency = Fixed(1)
	}

	n := &Network{
		size:    snap.Size,
		now:     snap.Now,
		seq:     snap.Seq,
		queue:   newQueue(),
		src:     src,
		rng:     rand.New(src),
		latency: latency,
		peers:   make([][]int, snap.Size),
		stats:   snap.Stats,
	}

	for i, p := range snap.Peers {
		n.peers[i] = append([]int(nil), p...)
	}

	for i := range snap.Events {
		ev := snap.Events[i]
		if ev.Node < 0 || ev.Node >= snap.Size {
			return nil, fmt.Errorf("event %d targets node %d outside network", ev.Seq, ev.Node)
		}

		n.queue.push(ev.clone())
	}

	return n, nil
}
