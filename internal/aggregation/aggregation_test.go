package aggregation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"SanFermin/internal/bitmap"
	"SanFermin/internal/network"
	"SanFermin/internal/topology"
)

// scheduled is a timer recorded by fakeEnv.
type scheduled struct {
	delay int64
	node  int
	kind  network.Kind
}

// delivered is a message recorded by fakeEnv.
type delivered struct {
	from     int
	to       int
	payload  []byte
	transmit int64
}

// fakeEnv is a substrate that records instead of simulating.
type fakeEnv struct {
	now       int64
	peers     map[int][]int
	scheduled []scheduled
	delivered []delivered
}

func (e *fakeEnv) Now() int64 { return e.now }

func (e *fakeEnv) Schedule(delay int64, node int, kind network.Kind) {
	e.scheduled = append(e.scheduled, scheduled{delay: delay, node: node, kind: kind})
}

func (e *fakeEnv) Deliver(from, to int, payload []byte, transmit int64) {
	e.delivered = append(e.delivered, delivered{from: from, to: to, payload: payload, transmit: transmit})
}

func (e *fakeEnv) InitialPeers(node int) []int { return e.peers[node] }

// reset forgets recorded timers and messages.
func (e *fakeEnv) reset() {
	e.scheduled = nil
	e.delivered = nil
}

// kinds returns the kinds of the recorded timers.
func (e *fakeEnv) kinds() []network.Kind {
	out := make([]network.Kind, len(e.scheduled))
	for i, s := range e.scheduled {
		out[i] = s.kind
	}

	return out
}

// testParams mirrors the reference scenario: 100 members, threshold 60, differential sends.
func testParams() *Params {
	return &Params{
		Size:         100,
		Threshold:    60,
		Strategy:     StrategyDiff,
		Fanout:       4,
		RoundTimeout: 50,
		PairingTime:  2,
		SendPeriod:   20,
	}
}

// newTestNode creates a node and a fake substrate.
func newTestNode(t *testing.T, id int, params *Params) (*Node, *fakeEnv) {
	t.Helper()

	require.NoError(t, params.Validate())

	tree, err := topology.NewTree(params.Size)
	require.NoError(t, err)

	n, err := NewNode(id, params, tree)
	require.NoError(t, err)

	return n, &fakeEnv{peers: map[int][]int{}}
}

// startedNode creates a started node and clears what Start recorded.
func startedNode(t *testing.T, id int, params *Params) (*Node, *fakeEnv) {
	t.Helper()

	n, env := newTestNode(t, id, params)
	require.NoError(t, n.Start(env))
	env.reset()

	return n, env
}

// batchFrom encodes a batch sent by from carrying the given members.
func batchFrom(from, width int, reply bool, members ...int) []byte {
	b := bitmap.FromIndices(width, members...)
	enc, units := Choose(b)

	return EncodeBatch(&Batch{Sender: from, Reply: reply, Encoding: enc, Units: uint32(units), Bitmap: b})
}

// decodeSent decodes the i-th delivered batch.
func decodeSent(t *testing.T, env *fakeEnv, i, width int) *Batch {
	t.Helper()

	require.Greater(t, len(env.delivered), i)

	b, err := DecodeBatch(env.delivered[i].payload, width)
	require.NoError(t, err)

	return b
}

func TestTrackerStartsWithOwnContribution(t *testing.T) {
	tr, err := NewTracker(7, 10, 3)
	require.NoError(t, err)
	require.Equal(t, 1, tr.Count())
	require.True(t, tr.Verified().Has(7))
	require.False(t, tr.ReachedQuorum())

	_, err = NewTracker(10, 10, 3)
	require.Error(t, err)
}

func TestTrackerMergeIsMonotonic(t *testing.T) {
	tr, err := NewTracker(0, 10, 3)
	require.NoError(t, err)

	n, err := tr.Merge(bitmap.FromIndices(10, 1, 2))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, tr.ReachedQuorum())

	// Subset merge is a no-op
	n, err = tr.Merge(bitmap.FromIndices(10, 1))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 3, tr.Count())

	// Wrong width fails closed and leaves the set unchanged
	_, err = tr.Merge(bitmap.FromIndices(11, 5))
	require.True(t, errors.Is(err, bitmap.ErrWidthMismatch))
	require.Equal(t, 3, tr.Count())
}

func TestLedgerStrategies(t *testing.T) {
	verified := bitmap.FromIndices(8, 0, 1, 2, 3)

	all := NewLedger(StrategyAll, 8)
	require.True(t, all.Record(5))
	require.False(t, all.Record(5))

	_, err := all.Learn(5, bitmap.FromIndices(8, 0, 1))
	require.NoError(t, err)

	out, err := all.Outgoing(5, verified)
	require.NoError(t, err)
	require.True(t, out.Equal(verified))

	diff := NewLedger(StrategyDiff, 8)
	diff.Record(5)

	_, err = diff.Learn(5, bitmap.FromIndices(8, 0, 1))
	require.NoError(t, err)

	out, err = diff.Outgoing(5, verified)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, out.Indices())

	_, err = diff.Outgoing(6, verified)
	require.True(t, errors.Is(err, ErrNothingPending))
}

func TestLedgerLearnIgnoresUnknownPeers(t *testing.T) {
	l := NewLedger(StrategyDiff, 8)

	ok, err := l.Learn(3, bitmap.FromIndices(8, 1))
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, l.Pending())
}

func TestLedgerFlushClearsInInsertionOrder(t *testing.T) {
	l := NewLedger(StrategyAll, 8)
	l.Record(4)
	l.Record(1)
	l.Record(6)

	out, err := l.Flush(bitmap.FromIndices(8, 0))
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, 4, out[0].Peer)
	require.Equal(t, 1, out[1].Peer)
	require.Equal(t, 6, out[2].Peer)
	require.Zero(t, l.Pending())

	_, err = l.Flush(bitmap.FromIndices(8, 0))
	require.True(t, errors.Is(err, ErrNothingPending))
}

func TestLedgerCloneIsIndependent(t *testing.T) {
	l := NewLedger(StrategyDiff, 8)
	l.Record(2)

	c := l.Clone()
	_, err := c.Learn(2, bitmap.FromIndices(8, 5))
	require.NoError(t, err)
	c.Record(3)

	known, ok := l.Knowledge(2)
	require.True(t, ok)
	require.Zero(t, known.Count())
	require.Equal(t, []int{2}, l.Peers())
}

func TestPipelineDrain(t *testing.T) {
	tr, err := NewTracker(0, 10, 5)
	require.NoError(t, err)

	p := NewPipeline()
	p.Enqueue(bitmap.FromIndices(10, 1, 2))
	p.Enqueue(bitmap.FromIndices(10, 2, 3))

	learned, err := p.Drain(tr)
	require.NoError(t, err)
	require.Equal(t, 3, learned)
	require.Zero(t, p.Len())
	require.Equal(t, 4, tr.Count())
}

func TestNodeSetup(t *testing.T) {
	n, _ := newTestNode(t, 1, testParams())

	require.Equal(t, 1, n.Count())
	require.True(t, n.Verified().Has(1))
	require.Zero(t, n.Round())
	require.False(t, n.Completed())
}

func TestSendOwnContribution(t *testing.T) {
	n, env := newTestNode(t, 1, testParams())
	require.NoError(t, n.Start(env))

	// Round 1 of member 1 targets member 0 only
	require.Equal(t, 1, n.Round())
	require.Equal(t, []int{0}, n.PendingPeers())
	require.Equal(t, []network.Kind{KindFlush, KindRoundTimeout}, env.kinds())

	require.NoError(t, n.Flush(env))
	require.Len(t, env.delivered, 1)
	require.Equal(t, 0, env.delivered[0].to)

	b := decodeSent(t, env, 0, 100)
	require.Equal(t, 1, b.Sender)
	require.False(t, b.Reply)
	require.Equal(t, []int{1}, b.Bitmap.Indices())
	require.Empty(t, n.PendingPeers())

	// Nothing pending any more
	err := n.Flush(env)
	require.True(t, errors.Is(err, ErrNothingPending))
}

func TestDrainSchedulesOneFollowUp(t *testing.T) {
	n, env := startedNode(t, 1, testParams())

	require.NoError(t, n.Receive(env, 0, batchFrom(0, 100, false, 0)))

	require.Empty(t, n.Queued())
	require.Equal(t, []network.Kind{KindVerified}, env.kinds())
	require.Equal(t, int64(2), env.scheduled[0].delay)
	require.Equal(t, 2, n.Count())
}

func TestVerificationIsSerialized(t *testing.T) {
	n, env := startedNode(t, 1, testParams())

	require.NoError(t, n.Receive(env, 0, batchFrom(0, 100, false, 0)))
	require.NoError(t, n.Receive(env, 2, batchFrom(2, 100, false, 2, 3)))

	// The second batch waits for the running verification
	require.Len(t, n.Queued(), 1)
	require.Equal(t, 2, n.Count())

	env.reset()
	require.NoError(t, n.OnVerified(env))

	require.Empty(t, n.Queued())
	require.Equal(t, 4, n.Count())
	require.Contains(t, env.kinds(), KindVerified)
}

func TestVerifiedWithoutVerificationFails(t *testing.T) {
	n, env := startedNode(t, 1, testParams())
	require.Error(t, n.OnVerified(env))
}

func TestProgressNotifiesTargets(t *testing.T) {
	n, env := newTestNode(t, 1, testParams())
	env.peers[1] = []int{40, 50}

	require.NoError(t, n.Start(env))
	require.NoError(t, n.Flush(env))
	env.reset()

	require.NoError(t, n.Receive(env, 40, batchFrom(40, 100, false, 40, 41)))
	require.NoError(t, n.OnVerified(env))

	// Contacted candidate 0 and base peers 40 and 50 are pending again
	require.Equal(t, []int{0, 40, 50}, n.PendingPeers())

	env.reset()
	require.NoError(t, n.Flush(env))
	require.Len(t, env.delivered, 3)

	toCandidate := decodeSent(t, env, 0, 100)
	require.Equal(t, []int{1, 40, 41}, toCandidate.Bitmap.Indices())
}

func TestCompletionIsStampedOnce(t *testing.T) {
	params := testParams()
	params.Size = 4
	params.Threshold = 2

	n, env := startedNode(t, 0, params)

	env.now = 7
	require.NoError(t, n.Receive(env, 1, batchFrom(1, 4, false, 1)))

	at, ok := n.CompletedAt()
	require.True(t, ok)
	require.Equal(t, int64(7), at)

	env.now = 30
	require.NoError(t, n.OnVerified(env))
	require.NoError(t, n.Receive(env, 2, batchFrom(2, 4, false, 2)))

	at, _ = n.CompletedAt()
	require.Equal(t, int64(7), at)

	// The round driver stops
	env.reset()
	require.NoError(t, n.OnTimeout(env))
	require.NotContains(t, env.kinds(), KindRoundTimeout)
}

func TestCompletedNodeRepliesOnce(t *testing.T) {
	params := testParams()
	params.Size = 4
	params.Threshold = 2

	n, env := startedNode(t, 0, params)
	require.NoError(t, n.Flush(env))
	require.NoError(t, n.Receive(env, 1, batchFrom(1, 4, false, 1)))
	require.True(t, n.Completed())
	require.NoError(t, n.OnVerified(env))

	// A completed node makes no progress notifications
	require.Empty(t, n.PendingPeers())

	env.reset()
	require.NoError(t, n.Receive(env, 2, batchFrom(2, 4, false, 2)))
	require.Equal(t, []int{2}, n.PendingPeers())

	require.NoError(t, n.Flush(env))
	reply := decodeSent(t, env, 0, 4)
	require.True(t, reply.Reply)
	require.Equal(t, 2, env.delivered[0].to)
	require.Equal(t, []int{0, 1}, reply.Bitmap.Indices())

	// Replies are never answered
	require.NoError(t, n.Receive(env, 3, batchFrom(3, 4, true, 3)))
	require.Empty(t, n.PendingPeers())
	require.Equal(t, uint64(1), n.Stats().RepliesSent)
}

func TestRoundAdvancesOnlyWithoutProgress(t *testing.T) {
	params := testParams()
	params.Size = 16
	params.Threshold = 16
	params.Fanout = 1

	n, env := startedNode(t, 0, params)
	require.Equal(t, 1, n.Round())

	require.NoError(t, n.OnTimeout(env))
	require.Equal(t, 2, n.Round())

	// Round 2 introduces members 2 and 3, the closest comes first
	require.Contains(t, n.PendingPeers(), 2)

	require.NoError(t, n.Receive(env, 5, batchFrom(5, 16, false, 5)))
	require.NoError(t, n.OnTimeout(env))
	require.Equal(t, 2, n.Round())

	require.NoError(t, n.OnTimeout(env))
	require.Equal(t, 3, n.Round())
}

func TestRoundIsCapped(t *testing.T) {
	params := testParams()
	params.Size = 4
	params.Threshold = 4

	n, env := startedNode(t, 2, params)
	for i := 0; i < 10; i++ {
		require.NoError(t, n.OnTimeout(env))
	}

	require.Equal(t, topology.MaxRound(4), n.Round())
}

func TestPreconditions(t *testing.T) {
	n, env := newTestNode(t, 1, testParams())

	require.True(t, errors.Is(n.OnTimeout(env), ErrNotStarted))
	require.True(t, errors.Is(n.Receive(env, 0, batchFrom(0, 100, false, 0)), ErrNotStarted))

	require.NoError(t, n.Start(env))
	require.True(t, errors.Is(n.Start(env), ErrAlreadyStarted))
}

func TestWidthMismatchFailsClosed(t *testing.T) {
	n, env := startedNode(t, 1, testParams())

	err := n.Receive(env, 0, batchFrom(0, 64, false, 0))
	require.True(t, errors.Is(err, bitmap.ErrWidthMismatch))
	require.Equal(t, 1, n.Count())
	require.Empty(t, n.Queued())
}

func TestSpoofedSenderIsRejected(t *testing.T) {
	n, env := startedNode(t, 1, testParams())
	require.Error(t, n.Receive(env, 0, batchFrom(7, 100, false, 7)))
}

func TestPeerStateNarrowsDiff(t *testing.T) {
	n, env := startedNode(t, 1, testParams())

	require.NoError(t, n.Receive(env, 0, batchFrom(0, 100, false, 0, 8, 9)))
	require.Equal(t, []int{0}, n.PendingPeers())

	state := EncodePeerState(&PeerState{Sender: 0, Bitmap: bitmap.FromIndices(100, 0, 8, 9)})
	require.NoError(t, n.Receive(env, 0, state))

	env.reset()
	require.NoError(t, n.Flush(env))

	b := decodeSent(t, env, 0, 100)
	require.Equal(t, []int{1}, b.Bitmap.Indices())
}

func TestDiffSkipsPeersThatKnowEverything(t *testing.T) {
	n, env := startedNode(t, 1, testParams())

	state := EncodePeerState(&PeerState{Sender: 0, Bitmap: bitmap.FromIndices(100, 0, 1)})
	require.NoError(t, n.Receive(env, 0, state))

	require.NoError(t, n.Flush(env))
	require.Empty(t, env.delivered)
	require.Equal(t, uint64(1), n.Stats().EmptySkipped)
}

func TestWithStateAnnouncesToBasePeers(t *testing.T) {
	params := testParams()
	params.WithState = true

	n, env := newTestNode(t, 1, params)
	env.peers[1] = []int{30}

	require.NoError(t, n.Start(env))
	require.NoError(t, n.Receive(env, 30, batchFrom(30, 100, false, 30)))

	env.reset()
	require.NoError(t, n.OnVerified(env))
	require.Len(t, env.delivered, 1)

	st, err := DecodePeerState(env.delivered[0].payload, 100)
	require.NoError(t, err)
	require.Equal(t, []int{1, 30}, st.Bitmap.Indices())
}

func TestCloneIsIndependent(t *testing.T) {
	n, env := startedNode(t, 1, testParams())
	require.NoError(t, n.Receive(env, 0, batchFrom(0, 100, false, 0)))
	require.NoError(t, n.Receive(env, 2, batchFrom(2, 100, false, 2)))

	c := n.Clone()
	require.NoError(t, c.OnVerified(env))

	require.Equal(t, 3, c.Count())
	require.Equal(t, 2, n.Count())
	require.Len(t, n.Queued(), 1)
	require.Empty(t, c.Queued())
}

func TestExportRestore(t *testing.T) {
	params := testParams()
	n, env := startedNode(t, 1, params)
	require.NoError(t, n.Receive(env, 0, batchFrom(0, 100, false, 0)))
	require.NoError(t, n.Receive(env, 2, batchFrom(2, 100, false, 2)))

	tree, err := topology.NewTree(params.Size)
	require.NoError(t, err)

	r, err := RestoreNode(n.Export(), params, tree)
	require.NoError(t, err)
	require.Equal(t, n.Export(), r.Export())

	// Both continue identically
	e1, e2 := &fakeEnv{peers: map[int][]int{}}, &fakeEnv{peers: map[int][]int{}}
	require.NoError(t, n.OnVerified(e1))
	require.NoError(t, r.OnVerified(e2))
	require.NoError(t, n.Flush(e1))
	require.NoError(t, r.Flush(e2))
	require.Equal(t, e1.delivered, e2.delivered)
	require.Equal(t, e1.scheduled, e2.scheduled)
}

func TestRestoreRejectsForeignWidth(t *testing.T) {
	params := testParams()
	n, _ := startedNode(t, 1, params)

	st := n.Export()
	st.Verified = bitmap.FromIndices(50, 1)

	tree, err := topology.NewTree(params.Size)
	require.NoError(t, err)

	_, err = RestoreNode(st, params, tree)
	require.True(t, errors.Is(err, bitmap.ErrWidthMismatch))
}
