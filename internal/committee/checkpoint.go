package committee

import (
	"fmt"

	"SanFermin/internal/aggregation"
	"SanFermin/internal/checkpoint"
	"SanFermin/internal/network"
)

// Export captures the committee state for a checkpoint.
// An aborted committee cannot be exported.
func (c *Committee) Export() (*checkpoint.State, error) {
	if c.err != nil {
		return nil, fmt.Errorf("export aborted committee:\n%w", c.err)
	}

	snap, err := c.net.Export()
	if err != nil {
		return nil, fmt.Errorf("export network:\n%w", err)
	}

	nodes := make([]aggregation.NodeState, len(c.nodes))
	for i, n := range c.nodes {
		nodes[i] = n.Export()
	}

	return &checkpoint.State{
		Config:      c.cfg.Clone(),
		Initialized: c.inited,
		Network:     snap,
		Nodes:       nodes,
	}, nil
}

// Restore rebuilds a committee from a checkpoint state.
// Running the restored committee forward gives the same results as running the exported one.
func Restore(st *checkpoint.State) (*Committee, error) {
	if err := st.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}

	if len(st.Nodes) != st.Config.CommitteeSize {
		return nil, fmt.Errorf("checkpoint holds %d members, config %d", len(st.Nodes), st.Config.CommitteeSize)
	}

	net, err := network.Restore(st.Network, st.Config.Latency())
	if err != nil {
		return nil, fmt.Errorf("restore network:\n%w", err)
	}

	c, err := assemble(st.Config, net)
	if err != nil {
		return nil, err
	}

	for i, ns := range st.Nodes {
		if ns.ID != i {
			return nil, fmt.Errorf("member %d stored at position %d", ns.ID, i)
		}

		node, err := aggregation.RestoreNode(ns, c.params, c.tree)
		if err != nil {
			return nil, fmt.Errorf("restore member %d:\n%w", i, err)
		}

		if node.Completed() {
			c.done++
		}

		c.nodes = append(c.nodes, node)
	}

	c.inited = st.Initialized

	return c, nil
}
