package network

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// pcgIncrement is the second PCG seed word, fixed so a single seed defines a run.
const pcgIncrement = 0x9e3779b97f4a7c15

// ErrNoHandler is returned when events are dispatched before a handler is set.
var ErrNoHandler = errors.New("network has no event handler")

// Handler processes events popped from the queue.
// Returning an error stops the run.
type Handler interface {
	HandleEvent(ev *Event) error
}

// Stats counts substrate activity.
type Stats struct {
	Scheduled uint64 // Scheduled is the number of events pushed
	Processed uint64 // Processed is the number of events dispatched
	Messages  uint64 // Messages is the number of messages sent
}

// Config configures a simulated network.
type Config struct {
	Size    int     // Size is the number of nodes
	Seed    uint64  // Seed seeds the random source
	Latency Latency // Latency is the propagation model
}

// Network is a discrete-event substrate with a virtual millisecond clock.
// It is single-threaded: events run one at a time in (time, insertion) order.
type Network struct {
	size    int        // size is the number of nodes
	now     int64      // now is the current virtual time
	seq     uint64     // seq is the next insertion number
	queue   *queue     // queue holds pending events
	src     *rand.PCG  // src is the seeded generator state
	rng     *rand.Rand // rng draws from src
	latency Latency    // latency delays messages
	peers   [][]int    // peers is the base peer list of each node, sorted
	handler Handler    // handler receives dispatched events
	stats   Stats
}

// New creates a network with an empty queue at time zero.
func New(cfg Config) (*Network, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("invalid network size %d", cfg.Size)
	}

	if cfg.Latency == nil {
		cfg.Latency = Fixed(1)
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^pcgIncrement)

	return &Network{
		size:    cfg.Size,
		queue:   newQueue(),
		src:     src,
		rng:     rand.New(src),
		latency: cfg.Latency,
		peers:   make([][]int, cfg.Size),
	}, nil
}

// SetHandler sets the receiver of dispatched events.
func (n *Network) SetHandler(h Handler) {
	n.handler = h
}

// Size returns the number of nodes.
func (n *Network) Size() int {
	return n.size
}

// Now returns the current virtual time in milliseconds.
func (n *Network) Now() int64 {
	return n.now
}

// Rand returns the seeded random source of the run.
func (n *Network) Rand() *rand.Rand {
	return n.rng
}

// Pending returns the number of queued events.
func (n *Network) Pending() int {
	return n.queue.len()
}

// Stats returns a copy of the activity counters.
func (n *Network) Stats() Stats {
	return n.stats
}

// Schedule queues a timer event for node after delay milliseconds.
// Negative delays fire immediately.
func (n *Network) Schedule(delay int64, node int, kind Kind) {
	n.push(delay, &Event{Node: node, Kind: kind, From: -1})
}

// Deliver sends payload from one node to another.
// The message arrives after the latency model delay plus transmit milliseconds.
func (n *Network) Deliver(from, to int, payload []byte, transmit int64) {
	data := make([]byte, len(payload))
	copy(data, payload)

	delay := n.latency.Delay(from, to, n.rng) + transmit
	n.stats.Messages++

	n.push(delay, &Event{Node: to, Kind: KindMessage, From: from, Payload: data})
}

// push stamps and queues an event.
func (n *Network) push(delay int64, ev *Event) {
	if delay < 0 {
		delay = 0
	}

	ev.At = n.now + delay
	ev.Seq = n.seq
	n.seq++
	n.stats.Scheduled++

	n.queue.push(ev)
}

// Run dispatches every event due at or before until, then advances the clock to until.
// The first handler error stops the run and is returned; the clock stays at the failing event.
func (n *Network) Run(until int64) error {
	return n.RunWhile(until, nil)
}

// RunWhile is Run with an extra stop condition checked after every event.
// A nil cont runs to until.
func (n *Network) RunWhile(until int64, cont func() bool) error {
	if n.handler == nil {
		return ErrNoHandler
	}

	for {
		next, ok := n.queue.peek()
		if !ok || next.At > until {
			break
		}

		ev, _ := n.queue.pop()
		n.now = ev.At
		n.stats.Processed++

		if err := n.handler.HandleEvent(ev); err != nil {
			return fmt.Errorf("event kind %d for node %d at %dms:\n%w", ev.Kind, ev.Node, ev.At, err)
		}

		if cont != nil && !cont() {
			return nil
		}
	}

	if n.now < until {
		n.now = until
	}

	return nil
}

// Clone returns an independent deep copy of the network without a handler.
// The clone draws the same random sequence as the original from this point on.
func (n *Network) Clone() *Network {
	src := *n.src

	peers := make([][]int, len(n.peers))
	for i, p := range n.peers {
		peers[i] = append([]int(nil), p...)
	}

	return &Network{
		size:    n.size,
		now:     n.now,
		seq:     n.seq,
		queue:   n.queue.clone(),
		src:     &src,
		rng:     rand.New(&src),
		latency: n.latency,
		peers:   peers,
		stats:   n.stats,
	}
}
