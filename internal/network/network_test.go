package network

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder is a handler that logs dispatched events.
type recorder struct {
	net  *Network
	seen []Event
	fail error
}

func (r *recorder) HandleEvent(ev *Event) error {
	r.seen = append(r.seen, *ev)
	return r.fail
}

// newTestNetwork creates a network with a recording handler.
func newTestNetwork(t *testing.T, size int, seed uint64) (*Network, *recorder) {
	t.Helper()

	n, err := New(Config{Size: size, Seed: seed, Latency: Uniform{Min: 5, Max: 50}})
	require.NoError(t, err)

	r := &recorder{net: n}
	n.SetHandler(r)

	return n, r
}

func TestEventsRunInTimeThenInsertionOrder(t *testing.T) {
	n, r := newTestNetwork(t, 4, 1)

	n.Schedule(10, 0, 1)
	n.Schedule(5, 1, 1)
	n.Schedule(10, 2, 1)
	n.Schedule(5, 3, 1)

	require.NoError(t, n.Run(100))

	nodes := make([]int, len(r.seen))
	for i, ev := range r.seen {
		nodes[i] = ev.Node
	}

	require.Equal(t, []int{1, 3, 0, 2}, nodes)
	require.Equal(t, int64(100), n.Now())
}

func TestRunStopsAtHorizon(t *testing.T) {
	n, r := newTestNetwork(t, 2, 1)

	n.Schedule(10, 0, 1)
	n.Schedule(30, 1, 1)

	require.NoError(t, n.Run(20))
	require.Len(t, r.seen, 1)
	require.Equal(t, 1, n.Pending())
	require.Equal(t, int64(20), n.Now())

	// Delays are relative to the current clock
	n.Schedule(0, 0, 2)
	require.NoError(t, n.Run(20))
	require.Len(t, r.seen, 2)
	require.Equal(t, int64(20), r.seen[1].At)
}

func TestHandlerErrorStopsRun(t *testing.T) {
	n, r := newTestNetwork(t, 2, 1)
	r.fail = errors.New("boom")

	n.Schedule(1, 0, 1)
	n.Schedule(2, 1, 1)

	err := n.Run(10)
	require.ErrorIs(t, err, r.fail)
	require.Len(t, r.seen, 1)
	require.Equal(t, int64(1), n.Now())
}

func TestRunWithoutHandler(t *testing.T) {
	n, err := New(Config{Size: 1})
	require.NoError(t, err)
	require.ErrorIs(t, n.Run(10), ErrNoHandler)
}

func TestDeliverCopiesPayload(t *testing.T) {
	n, r := newTestNetwork(t, 2, 1)

	payload := []byte{1, 2, 3}
	n.Deliver(0, 1, payload, 7)
	payload[0] = 9

	require.NoError(t, n.Run(1000))
	require.Len(t, r.seen, 1)

	ev := r.seen[0]
	require.Equal(t, KindMessage, ev.Kind)
	require.Equal(t, 0, ev.From)
	require.Equal(t, []byte{1, 2, 3}, ev.Payload)
	require.GreaterOrEqual(t, ev.At, int64(5+7))
	require.LessOrEqual(t, ev.At, int64(50+7))
}

func TestBuildPeers(t *testing.T) {
	n, _ := newTestNetwork(t, 100, 42)
	require.NoError(t, n.BuildPeers(10))

	for i := 0; i < 100; i++ {
		peers := n.InitialPeers(i)
		require.GreaterOrEqual(t, len(peers), 10)

		for _, p := range peers {
			require.NotEqual(t, i, p)
			require.Contains(t, n.InitialPeers(p), i, "link %d-%d not symmetric", i, p)
		}
	}

	// Same seed, same graph
	m, _ := newTestNetwork(t, 100, 42)
	require.NoError(t, m.BuildPeers(10))

	for i := 0; i < 100; i++ {
		require.Equal(t, n.InitialPeers(i), m.InitialPeers(i))
	}
}

func TestBuildPeersNeedsEnoughNodes(t *testing.T) {
	n, _ := newTestNetwork(t, 5, 1)
	require.Error(t, n.BuildPeers(5))
	require.NoError(t, n.BuildPeers(4))
}

func TestCloneIsIndependent(t *testing.T) {
	n, _ := newTestNetwork(t, 3, 7)
	n.Deliver(0, 1, []byte{1}, 0)
	n.Schedule(3, 2, 1)

	c := n.Clone()
	cr := &recorder{net: c}
	c.SetHandler(cr)

	// Same random stream from here on
	require.Equal(t, n.Rand().Uint64(), c.Rand().Uint64())

	// Mutating the original does not reach the clone
	n.Schedule(1, 0, 1)
	require.Equal(t, 3, n.Pending())
	require.Equal(t, 2, c.Pending())

	require.NoError(t, c.Run(1000))
	require.Len(t, cr.seen, 2)
	require.Equal(t, 3, n.Pending())
}

func TestExportRestore(t *testing.T) {
	n, r := newTestNetwork(t, 10, 3)
	require.NoError(t, n.BuildPeers(3))

	for i := 0; i < 5; i++ {
		n.Deliver(i, i+1, []byte{byte(i)}, 0)
	}

	snap, err := n.Export()
	require.NoError(t, err)

	m, err := Restore(snap, Uniform{Min: 5, Max: 50})
	require.NoError(t, err)

	mr := &recorder{net: m}
	m.SetHandler(mr)

	require.NoError(t, n.Run(1000))
	require.NoError(t, m.Run(1000))

	require.Equal(t, r.seen, mr.seen)
	require.Equal(t, n.Rand().Uint64(), m.Rand().Uint64())
	require.Equal(t, n.InitialPeers(4), m.InitialPeers(4))
}
