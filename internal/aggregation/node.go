package aggregation

import (
	"fmt"

	"SanFermin/internal/bitmap"
	"SanFermin/internal/logger"
	"SanFermin/internal/network"
	"SanFermin/internal/topology"
)

// Node is one signing member of the committee.
//
// A node starts in round 0, moves to round 1 when started and then advances one round
// per timeout without progress, up to the last round of the tree. Once its verified set
// reaches the threshold it completes: the completion time is stamped once, the round
// driver stops, and the node only answers peers that contact it.
type Node struct {
	id       int            // id is the member index
	params   *Params        // params are shared, read-only protocol parameters
	tree     *topology.Tree // tree derives round candidates
	tracker  *Tracker       // tracker holds verified contributions
	ledger   *Ledger        // ledger holds pending sends
	pipeline *Pipeline      // pipeline holds sets awaiting verification

	contacted bitmap.Bitmap // contacted are candidates targeted by the round driver
	replies   bitmap.Bitmap // replies are pending peers owed a reply
	cursor    int           // cursor is the fan-out position in the ordered candidates

	round       int   // round is the current round
	started     bool  // started is set by Start
	progress    bool  // progress is set when a drain learns something, reset each timeout
	verifying   bool  // verifying is set while a verification is in flight
	flushing    bool  // flushing is set while a flush event is scheduled
	fresh       int   // fresh counts contributions learned since the last notification
	completed   bool  // completed is set once the threshold is reached
	completedAt int64 // completedAt is the virtual completion time

	stats Stats
}

// NewNode creates member id with only its own contribution verified.
func NewNode(id int, params *Params, tree *topology.Tree) (*Node, error) {
	if tree.Size() != params.Size {
		return nil, fmt.Errorf("tree of %d members for committee of %d", tree.Size(), params.Size)
	}

	tracker, err := NewTracker(id, params.Size, params.Threshold)
	if err != nil {
		return nil, err
	}

	return &Node{
		id:        id,
		params:    params,
		tree:      tree,
		tracker:   tracker,
		ledger:    NewLedger(params.Strategy, params.Size),
		pipeline:  NewPipeline(),
		contacted: bitmap.New(params.Size),
		replies:   bitmap.New(params.Size),
	}, nil
}

// ID returns the member index.
func (n *Node) ID() int {
	return n.id
}

// Round returns the current round.
func (n *Node) Round() int {
	return n.round
}

// Verified returns a copy of the verified set.
func (n *Node) Verified() bitmap.Bitmap {
	return n.tracker.Verified()
}

// Count returns the number of verified contributions.
func (n *Node) Count() int {
	return n.tracker.Count()
}

// CompletedAt returns the completion time, and false if the node has not completed.
func (n *Node) CompletedAt() (int64, bool) {
	return n.completedAt, n.completed
}

// Completed reports whether the node reached the threshold.
func (n *Node) Completed() bool {
	return n.completed
}

// Queued returns copies of the sets awaiting verification.
func (n *Node) Queued() []bitmap.Bitmap {
	return n.pipeline.Queued()
}

// PendingPeers returns the peers with a pending send, in insertion order.
func (n *Node) PendingPeers() []int {
	return n.ledger.Peers()
}

// Stats returns the activity counters.
func (n *Node) Stats() Stats {
	return n.stats
}

// HandleEvent dispatches one substrate event to the node.
func (n *Node) HandleEvent(env Substrate, ev *network.Event) error {
	switch ev.Kind {
	case KindStart:
		return n.Start(env)
	case KindRoundTimeout:
		return n.OnTimeout(env)
	case KindFlush:
		return n.Flush(env)
	case KindVerified:
		return n.OnVerified(env)
	case network.KindMessage:
		return n.Receive(env, ev.From, ev.Payload)
	default:
		return fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

// Start moves the node to round 1, sends its contribution to its first targets
// and arms the round timer.
func (n *Node) Start(env Substrate) error {
	if n.started {
		return ErrAlreadyStarted
	}

	n.started = true

	if n.tracker.ReachedQuorum() {
		n.complete(env)
		return nil
	}

	n.advance()

	if err := n.seedTargets(); err != nil {
		return err
	}

	n.recordBasePeers(env)
	n.scheduleFlush(env)

	env.Schedule(n.params.RoundTimeout, n.id, KindRoundTimeout)

	return nil
}

// OnTimeout runs one round driver step.
// Without progress since the previous step the node moves to the next round.
func (n *Node) OnTimeout(env Substrate) error {
	if !n.started {
		return ErrNotStarted
	}

	if n.completed {
		return nil
	}

	if !n.progress && n.advance() {
		logger.Debug("round advanced", "node", n.id, "round", n.round, "t", env.Now())
	}

	n.progress = false

	if err := n.seedTargets(); err != nil {
		return err
	}

	n.scheduleFlush(env)

	env.Schedule(n.params.RoundTimeout, n.id, KindRoundTimeout)

	return nil
}

// Receive handles an encoded message from a peer.
func (n *Node) Receive(env Substrate, from int, payload []byte) error {
	if !n.started {
		return ErrNotStarted
	}

	typ, err := messageType(payload)
	if err != nil {
		return fmt.Errorf("message from %d:\n%w", from, err)
	}

	switch typ {
	case msgTypeBatch:
		return n.receiveBatch(env, from, payload)
	case msgTypeState:
		return n.receiveState(from, payload)
	default:
		return fmt.Errorf("invalid message type from %d: 0x%02x", from, typ)
	}
}

// receiveBatch queues a batch for verification.
// A completed node answers batches that are not replies themselves.
func (n *Node) receiveBatch(env Substrate, from int, payload []byte) error {
	batch, err := DecodeBatch(payload, n.params.Size)
	if err != nil {
		return fmt.Errorf("decode batch from %d:\n%w", from, err)
	}

	if batch.Sender != from {
		return fmt.Errorf("batch from %d claims sender %d", from, batch.Sender)
	}

	n.stats.BatchesReceived++

	if n.completed && !batch.Reply {
		n.ledger.Record(from)
		n.replies.Set(from)
	}

	if _, err := n.ledger.Learn(from, batch.Bitmap); err != nil {
		return err
	}

	n.pipeline.Enqueue(batch.Bitmap)
	n.scheduleFlush(env)

	if n.verifying {
		return nil
	}

	return n.Drain(env)
}

// receiveState records what a peer announced it knows.
func (n *Node) receiveState(from int, payload []byte) error {
	state, err := DecodePeerState(payload, n.params.Size)
	if err != nil {
		return fmt.Errorf("decode state from %d:\n%w", from, err)
	}

	if state.Sender != from {
		return fmt.Errorf("state from %d claims sender %d", from, state.Sender)
	}

	_, err = n.ledger.Learn(from, state.Bitmap)

	return err
}

// Drain verifies every queued set and schedules the end of the verification.
// Reaching the threshold completes the node at the current time.
func (n *Node) Drain(env Substrate) error {
	if !n.started {
		return ErrNotStarted
	}

	learned, err := n.pipeline.Drain(n.tracker)
	if err != nil {
		return err
	}

	n.stats.Verifications++
	n.verifying = true

	if learned > 0 {
		n.progress = true
		n.fresh += learned
	}

	if !n.completed && n.tracker.ReachedQuorum() {
		n.complete(env)
	}

	env.Schedule(n.params.PairingTime, n.id, KindVerified)

	return nil
}

// OnVerified ends a verification: new contributions are forwarded to every target
// and sets that arrived meanwhile are verified next.
func (n *Node) OnVerified(env Substrate) error {
	if !n.verifying {
		return fmt.Errorf("node %d: verification end without verification", n.id)
	}

	n.verifying = false

	if n.fresh > 0 && !n.completed {
		n.notify(env)
	}

	n.fresh = 0

	if n.pipeline.Len() == 0 {
		return nil
	}

	return n.Drain(env)
}

// Flush sends every pending batch. Peers with nothing new are skipped.
func (n *Node) Flush(env Substrate) error {
	n.flushing = false

	batches, err := n.ledger.Flush(n.tracker.Verified())
	if err != nil {
		return fmt.Errorf("node %d flush:\n%w", n.id, err)
	}

	for _, out := range batches {
		reply := n.replies.Has(out.Peer)
		n.replies.Clear(out.Peer)

		if out.Bitmap.Count() == 0 {
			n.stats.EmptySkipped++
			continue
		}

		n.send(env, out.Peer, out.Bitmap, reply)
	}

	return nil
}

// send encodes and delivers one batch.
func (n *Node) send(env Substrate, peer int, b bitmap.Bitmap, reply bool) {
	enc, units := Choose(b)

	payload := EncodeBatch(&Batch{
		Sender:   n.id,
		Reply:    reply,
		Encoding: enc,
		Units:    uint32(units),
		Bitmap:   b,
	})

	env.Deliver(n.id, peer, payload, int64(units)*n.params.UnitDelay)

	n.stats.BatchesSent++
	n.stats.UnitsSent += uint64(units)
	if reply {
		n.stats.RepliesSent++
	}
}

// notify makes every contacted candidate and base peer a pending target.
func (n *Node) notify(env Substrate) {
	for _, peer := range n.contacted.Indices() {
		n.ledger.Record(peer)
	}

	n.recordBasePeers(env)

	if n.params.WithState {
		n.announceState(env)
	}

	n.scheduleFlush(env)
}

// recordBasePeers makes every base peer a pending target.
func (n *Node) recordBasePeers(env Substrate) {
	for _, peer := range env.InitialPeers(n.id) {
		n.ledger.Record(peer)
	}
}

// announceState tells every base peer what this node has verified.
func (n *Node) announceState(env Substrate) {
	payload := EncodePeerState(&PeerState{Sender: n.id, Bitmap: n.tracker.Verified()})

	for _, peer := range env.InitialPeers(n.id) {
		env.Deliver(n.id, peer, payload, 0)
		n.stats.StatesSent++
	}
}

// seedTargets records the next fanout candidates of the current round.
// Candidates are taken closest first; once all have been contacted the cursor wraps
// around and the same candidates are retried.
func (n *Node) seedTargets() error {
	if n.round == 0 {
		return nil
	}

	candidates, err := n.tree.Candidates(n.id, n.round)
	if err != nil {
		return fmt.Errorf("candidates of node %d:\n%w", n.id, err)
	}

	order := topology.Order(n.id, candidates)
	if len(order) == 0 {
		return nil
	}

	count := min(n.params.Fanout, len(order))
	for i := 0; i < count; i++ {
		peer := order[(n.cursor+i)%len(order)]
		n.contacted.Set(peer)
		n.ledger.Record(peer)
	}

	n.cursor = (n.cursor + count) % len(order)

	return nil
}

// advance moves to the next round and points the cursor at the newly introduced candidates.
// It returns false at the last round.
func (n *Node) advance() bool {
	if n.round >= n.tree.MaxRound() {
		return false
	}

	previous := 0
	if n.round > 0 {
		if c, err := n.tree.Candidates(n.id, n.round); err == nil {
			previous = c.Count()
		}
	}

	n.round++
	n.cursor = previous

	return true
}

// scheduleFlush arms the flush timer if peers are pending and none is armed.
func (n *Node) scheduleFlush(env Substrate) {
	if n.flushing || n.ledger.Pending() == 0 {
		return
	}

	n.flushing = true
	env.Schedule(n.params.SendPeriod, n.id, KindFlush)
}

// complete stamps the completion time.
func (n *Node) complete(env Substrate) {
	n.completed = true
	n.completedAt = env.Now()

	logger.Debug("node completed",
		"node", n.id,
		"t", n.completedAt,
		"round", n.round,
		"verified", n.tracker.Count(),
	)
}

// Clone returns an independent copy sharing only the read-only parameters and tree.
func (n *Node) Clone() *Node {
	out := *n
	out.tracker = n.tracker.Clone()
	out.ledger = n.ledger.Clone()
	out.pipeline = n.pipeline.Clone()
	out.contacted = n.contacted.Clone()
	out.replies = n.replies.Clone()

	return &out
}
