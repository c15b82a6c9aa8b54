package network

import (
	"github.com/google/btree"
)

// queueDegree is the btree degree of the event queue.
const queueDegree = 32

// Kind identifies what an event does when it fires.
type Kind uint8

// KindMessage is a delivered message. Protocols define their timer kinds above it.
const KindMessage Kind = 0

// Event is a scheduled action addressed to one node.
// Events are plain data so a queue can be copied without sharing closures.
type Event struct {
	At      int64  // At is the virtual time in milliseconds at which the event fires
	Seq     uint64 // Seq is the insertion order, breaking ties between equal times
	Node    int    // Node is the target node
	Kind    Kind   // Kind selects the handler
	From    int    // From is the sending node for messages, -1 for timers
	Payload []byte // Payload is the encoded message, nil for timers
}

// clone returns a deep copy of the event.
func (e *Event) clone() *Event {
	out := *e
	if e.Payload != nil {
		out.Payload = make([]byte, len(e.Payload))
		copy(out.Payload, e.Payload)
	}

	return &out
}

// eventLess orders events by time, then by insertion order.
func eventLess(a, b *Event) bool {
	if a.At != b.At {
		return a.At < b.At
	}

	return a.Seq < b.Seq
}

// queue is the pending event set.
type queue struct {
	tree *btree.BTreeG[*Event]
}

// newQueue creates an empty queue.
func newQueue() *queue {
	return &queue{tree: btree.NewG(queueDegree, eventLess)}
}

// push adds an event.
func (q *queue) push(e *Event) {
	q.tree.ReplaceOrInsert(e)
}

// peek returns the next event without removing it.
func (q *queue) peek() (*Event, bool) {
	return q.tree.Min()
}

// pop removes and returns the next event.
func (q *queue) pop() (*Event, bool) {
	return q.tree.DeleteMin()
}

// len returns the number of pending events.
func (q *queue) len() int {
	return q.tree.Len()
}

// events returns deep copies of all pending events in firing order.
func (q *queue) events() []Event {
	out := make([]Event, 0, q.tree.Len())

	q.tree.Ascend(func(e *Event) bool {
		out = append(out, *e.clone())
		return true
	})

	return out
}

// clone returns a queue holding deep copies of every event.
func (q *queue) clone() *queue {
	out := newQueue()

	q.tree.Ascend(func(e *Event) bool {
		out.push(e.clone())
		return true
	})

	return out
}
