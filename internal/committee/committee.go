package committee

import (
	"errors"
	"fmt"

	"SanFermin/internal/aggregation"
	"SanFermin/internal/config"
	"SanFermin/internal/logger"
	"SanFermin/internal/network"
	"SanFermin/internal/topology"
)

var (
	// ErrNotInitialized is returned when a committee runs before Init.
	ErrNotInitialized = errors.New("committee not initialized")

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("committee already initialized")
)

// Committee is one simulation instance: every signing member plus the substrate they share.
// It is not safe for concurrent use; clones are fully independent and may run in parallel.
type Committee struct {
	cfg    *config.Config      // cfg is the run configuration
	params *aggregation.Params // params are the protocol parameters shared by nodes
	tree   *topology.Tree      // tree is the shared candidate cache
	net    *network.Network    // net is the event substrate
	nodes  []*aggregation.Node // nodes are indexed by member ID
	done   int                 // done counts completed members
	inited bool                // inited is set by Init
	err    error               // err is the first precondition violation, it aborts the instance
}

// New creates a committee with every member holding only its own contribution.
func New(cfg *config.Config) (*Committee, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}

	net, err := network.New(network.Config{
		Size:    cfg.CommitteeSize,
		Seed:    cfg.Seed,
		Latency: cfg.Latency(),
	})
	if err != nil {
		return nil, fmt.Errorf("create network:\n%w", err)
	}

	c, err := assemble(cfg, net)
	if err != nil {
		return nil, err
	}

	for id := 0; id < cfg.CommitteeSize; id++ {
		node, err := aggregation.NewNode(id, c.params, c.tree)
		if err != nil {
			return nil, fmt.Errorf("create node %d:\n%w", id, err)
		}

		c.nodes = append(c.nodes, node)
	}

	return c, nil
}

// assemble builds the shared parts of a committee around a network.
func assemble(cfg *config.Config, net *network.Network) (*Committee, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, fmt.Errorf("protocol parameters:\n%w", err)
	}

	tree, err := topology.NewTree(cfg.CommitteeSize)
	if err != nil {
		return nil, fmt.Errorf("create topology:\n%w", err)
	}

	c := &Committee{
		cfg:    cfg.Clone(),
		params: params,
		tree:   tree,
		net:    net,
		nodes:  make([]*aggregation.Node, 0, cfg.CommitteeSize),
	}

	net.SetHandler(c)

	return c, nil
}

// Init builds the base peer graph and schedules every member's start at the current time.
func (c *Committee) Init() error {
	if c.inited {
		return ErrAlreadyInitialized
	}

	if err := c.net.BuildPeers(c.cfg.MinPeers); err != nil {
		return fmt.Errorf("build peers:\n%w", err)
	}

	for id := range c.nodes {
		c.net.Schedule(0, id, aggregation.KindStart)
	}

	c.inited = true

	logger.Debug("committee initialized",
		"size", c.cfg.CommitteeSize,
		"threshold", c.params.Threshold,
		"strategy", c.params.Strategy,
		"seed", c.cfg.Seed,
	)

	return nil
}

// HandleEvent routes a substrate event to its member.
func (c *Committee) HandleEvent(ev *network.Event) error {
	if ev.Node < 0 || ev.Node >= len(c.nodes) {
		return fmt.Errorf("event for unknown member %d", ev.Node)
	}

	node := c.nodes[ev.Node]
	wasDone := node.Completed()

	if err := node.HandleEvent(c.net, ev); err != nil {
		return fmt.Errorf("member %d:\n%w", ev.Node, err)
	}

	if !wasDone && node.Completed() {
		c.done++
	}

	return nil
}

// Run processes every event due at or before until.
// The first precondition violation aborts the committee: it is returned now and by every later run.
func (c *Committee) Run(until int64) error {
	return c.run(until, nil)
}

// RunFor runs for d milliseconds of virtual time.
func (c *Committee) RunFor(d int64) error {
	return c.run(c.net.Now()+d, nil)
}

// RunUntilDone runs until every member completed or the clock passes limit.
func (c *Committee) RunUntilDone(limit int64) error {
	return c.run(limit, func() bool { return c.done < len(c.nodes) })
}

// run drives the substrate and records an abort.
func (c *Committee) run(until int64, cont func() bool) error {
	if c.err != nil {
		return c.err
	}

	if !c.inited {
		return ErrNotInitialized
	}

	if cont != nil && !cont() {
		return nil
	}

	if err := c.net.RunWhile(until, cont); err != nil {
		c.err = fmt.Errorf("simulation aborted:\n%w", err)
		logger.Error("simulation aborted", "t", c.net.Now(), "error", err)

		return c.err
	}

	return nil
}

// Err returns the error that aborted the committee, if any.
func (c *Committee) Err() error {
	return c.err
}

// Now returns the virtual time in milliseconds.
func (c *Committee) Now() int64 {
	return c.net.Now()
}

// Size returns the number of members.
func (c *Committee) Size() int {
	return len(c.nodes)
}

// Config returns a copy of the run configuration.
func (c *Committee) Config() *config.Config {
	return c.cfg.Clone()
}

// Node returns member id. The node must not be driven directly.
func (c *Committee) Node(id int) *aggregation.Node {
	if id < 0 || id >= len(c.nodes) {
		return nil
	}

	return c.nodes[id]
}

// Peers returns the base peers of member id.
func (c *Committee) Peers(id int) []int {
	return c.net.InitialPeers(id)
}

// Done returns the number of completed members.
func (c *Committee) Done() int {
	return c.done
}

// Clone returns a fully independent copy: members, pending events and random state.
// Running the copy and the original forward gives identical results.
func (c *Committee) Clone() *Committee {
	out := &Committee{
		cfg:    c.cfg.Clone(),
		params: c.params,
		tree:   c.tree,
		net:    c.net.Clone(),
		nodes:  make([]*aggregation.Node, len(c.nodes)),
		done:   c.done,
		inited: c.inited,
		err:    c.err,
	}

	for i, n := range c.nodes {
		out.nodes[i] = n.Clone()
	}

	out.net.SetHandler(out)

	return out
}
