package network

import (
	"fmt"
	"slices"
)

// BuildPeers links every node to random distinct peers until each has at least minPeers.
// Links are symmetric. The draw uses the network's seeded source, so equal seeds give equal graphs.
func (n *Network) BuildPeers(minPeers int) error {
	if minPeers < 0 {
		return fmt.Errorf("invalid peer count %d", minPeers)
	}

	if minPeers >= n.size && n.size > 1 {
		return fmt.Errorf("peer count %d needs more than %d nodes", minPeers, n.size)
	}

	if n.size == 1 {
		return nil
	}

	linked := make([]map[int]struct{}, n.size)
	for i := range linked {
		linked[i] = make(map[int]struct{}, minPeers)
	}

	for i := 0; i < n.size; i++ {
		for len(linked[i]) < minPeers {
			j := n.rng.IntN(n.size)
			if j == i {
				continue
			}

			if _, ok := linked[i][j]; ok {
				continue
			}

			linked[i][j] = struct{}{}
			linked[j][i] = struct{}{}
		}
	}

	for i, set := range linked {
		peers := make([]int, 0, len(set))
		for j := range set {
			peers = append(peers, j)
		}

		slices.Sort(peers)
		n.peers[i] = peers
	}

	return nil
}

// InitialPeers returns a copy of the base peer list of node.
func (n *Network) InitialPeers(node int) []int {
	if node < 0 || node >= n.size {
		return nil
	}

	return append([]int(nil), n.peers[node]...)
}
