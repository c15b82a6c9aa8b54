package checkpoint

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"SanFermin/internal/aggregation"
	"SanFermin/internal/bitmap"
	"SanFermin/internal/config"
	"SanFermin/internal/network"
	"SanFermin/internal/types"
)

const (
	// formatVersion is the current checkpoint format version.
	formatVersion = 1

	// nodeStatsLen is the number of counters stored per node.
	nodeStatsLen = 7

	// netStatsLen is the number of substrate counters stored.
	netStatsLen = 3
)

// Node state flags.
const (
	flagStarted = 1 << iota
	flagProgress
	flagVerifying
	flagFlushing
	flagCompleted
)

var (
	// ErrChecksum is returned when a checkpoint body does not match its checksum.
	ErrChecksum = errors.New("checkpoint checksum mismatch")

	// ErrVersion is returned for checkpoints of an unknown format version.
	ErrVersion = errors.New("unsupported checkpoint version")
)

// State is the complete state of a committee at one point in virtual time.
type State struct {
	Config      *config.Config          // Config is the run configuration
	Initialized bool                    // Initialized is set once the committee was initialized
	Network     *network.Snapshot       // Network is the substrate state
	Nodes       []aggregation.NodeState // Nodes are the member states, indexed by ID
}

// Encode serializes a state: FlatBuffers body, BLAKE3 checksum envelope, zstd compression.
func Encode(st *State) ([]byte, error) {
	body, err := buildBody(st)
	if err != nil {
		return nil, err
	}

	checksum := blake3.Sum256(body)

	builder := flatbuffers.NewBuilder(len(body) + 128)
	bodyOffset := builder.CreateByteVector(body)
	checksumOffset := builder.CreateByteVector(checksum[:])

	types.EnvelopeStart(builder)
	types.EnvelopeAddVersion(builder, formatVersion)
	types.EnvelopeAddChecksum(builder, checksumOffset)
	types.EnvelopeAddBody(builder, bodyOffset)
	builder.Finish(types.EnvelopeEnd(builder))

	return compress(builder.FinishedBytes())
}

// Decode reverses Encode and verifies the checksum.
func Decode(data []byte) (*State, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress:\n%w", err)
	}

	body, err := openEnvelope(raw)
	if err != nil {
		return nil, err
	}

	return parseBody(body)
}

// openEnvelope checks the version and checksum and returns the body.
func openEnvelope(raw []byte) (body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed envelope: %v", r)
		}
	}()

	if len(raw) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("envelope too short: %d bytes", len(raw))
	}

	env := types.GetRootAsEnvelope(raw, 0)

	if v := env.Version(); v != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}

	body = env.BodyBytes()
	checksum := blake3.Sum256(body)

	if !bytes.Equal(checksum[:], env.ChecksumBytes()) {
		return nil, ErrChecksum
	}

	return body, nil
}

// buildBody encodes the state as a Checkpoint table.
// Vectors and child tables are written before the table that references them.
func buildBody(st *State) ([]byte, error) {
	if st.Config == nil || st.Network == nil {
		return nil, fmt.Errorf("incomplete state")
	}

	var cfg bytes.Buffer
	if err := toml.NewEncoder(&cfg).Encode(st.Config); err != nil {
		return nil, fmt.Errorf("encode config:\n%w", err)
	}

	builder := flatbuffers.NewBuilder(4096)

	configOffset := builder.CreateByteVector(cfg.Bytes())
	randOffset := builder.CreateByteVector(st.Network.Rand)
	peersOffset := buildPeers(builder, st.Network.Peers)
	eventsOffset := buildEvents(builder, st.Network.Events)
	nodesOffset := buildNodes(builder, st.Nodes)

	ns := st.Network.Stats
	netStatsOffset := buildCounters(builder, types.CheckpointStartNetStatsVector,
		[]uint64{ns.Scheduled, ns.Processed, ns.Messages})

	types.CheckpointStart(builder)
	types.CheckpointAddConfig(builder, configOffset)
	types.CheckpointAddInitialized(builder, st.Initialized)
	types.CheckpointAddNow(builder, st.Network.Now)
	types.CheckpointAddSeq(builder, st.Network.Seq)
	types.CheckpointAddRand(builder, randOffset)
	types.CheckpointAddPeers(builder, peersOffset)
	types.CheckpointAddEvents(builder, eventsOffset)
	types.CheckpointAddNodes(builder, nodesOffset)
	types.CheckpointAddNetStats(builder, netStatsOffset)
	builder.Finish(types.CheckpointEnd(builder))

	return builder.FinishedBytes(), nil
}

// buildPeers writes the base peer lists.
func buildPeers(builder *flatbuffers.Builder, peers [][]int) flatbuffers.UOffsetT {
	offsets := make([]flatbuffers.UOffsetT, len(peers))

	for i, list := range peers {
		types.PeerListStartPeersVector(builder, len(list))
		for j := len(list) - 1; j >= 0; j-- {
			builder.PrependUint32(uint32(list[j]))
		}
		listOffset := builder.EndVector(len(list))

		types.PeerListStart(builder)
		types.PeerListAddPeers(builder, listOffset)
		offsets[i] = types.PeerListEnd(builder)
	}

	return buildTableVector(builder, types.CheckpointStartPeersVector, offsets)
}

// buildEvents writes the pending events in firing order.
func buildEvents(builder *flatbuffers.Builder, events []network.Event) flatbuffers.UOffsetT {
	offsets := make([]flatbuffers.UOffsetT, len(events))

	for i, ev := range events {
		var payload flatbuffers.UOffsetT
		if ev.Payload != nil {
			payload = builder.CreateByteVector(ev.Payload)
		}

		types.EventStart(builder)
		types.EventAddAt(builder, ev.At)
		types.EventAddSeq(builder, ev.Seq)
		types.EventAddNode(builder, uint32(ev.Node))
		types.EventAddKind(builder, byte(ev.Kind))
		types.EventAddFrom(builder, int32(ev.From))
		if ev.Payload != nil {
			types.EventAddPayload(builder, payload)
		}
		offsets[i] = types.EventEnd(builder)
	}

	return buildTableVector(builder, types.CheckpointStartEventsVector, offsets)
}

// buildNodes writes every member state.
func buildNodes(builder *flatbuffers.Builder, nodes []aggregation.NodeState) flatbuffers.UOffsetT {
	offsets := make([]flatbuffers.UOffsetT, len(nodes))

	for i := range nodes {
		offsets[i] = buildNode(builder, &nodes[i])
	}

	return buildTableVector(builder, types.CheckpointStartNodesVector, offsets)
}

// buildNode writes one member state.
func buildNode(builder *flatbuffers.Builder, st *aggregation.NodeState) flatbuffers.UOffsetT {
	verified := builder.CreateByteVector(st.Verified.Bytes())
	contacted := builder.CreateByteVector(st.Contacted.Bytes())
	replies := builder.CreateByteVector(st.Replies.Bytes())

	queueOffsets := make([]flatbuffers.UOffsetT, len(st.Queue))
	for i, b := range st.Queue {
		bits := builder.CreateByteVector(b.Bytes())

		types.QueuedSetStart(builder)
		types.QueuedSetAddBits(builder, bits)
		queueOffsets[i] = types.QueuedSetEnd(builder)
	}
	queue := buildTableVector(builder, types.NodeStateStartQueueVector, queueOffsets)

	pendingOffsets := make([]flatbuffers.UOffsetT, len(st.Pending))
	for i, e := range st.Pending {
		known := builder.CreateByteVector(e.Known.Bytes())

		types.PeerEntryStart(builder)
		types.PeerEntryAddPeer(builder, uint32(e.Peer))
		types.PeerEntryAddKnown(builder, known)
		pendingOffsets[i] = types.PeerEntryEnd(builder)
	}
	pending := buildTableVector(builder, types.NodeStateStartPendingVector, pendingOffsets)

	s := st.Stats
	stats := buildCounters(builder, types.NodeStateStartStatsVector, []uint64{
		s.BatchesSent, s.RepliesSent, s.UnitsSent, s.EmptySkipped,
		s.BatchesReceived, s.StatesSent, s.Verifications,
	})

	types.NodeStateStart(builder)
	types.NodeStateAddId(builder, uint32(st.ID))
	types.NodeStateAddRound(builder, uint32(st.Round))
	types.NodeStateAddCursor(builder, uint32(st.Cursor))
	types.NodeStateAddFlags(builder, nodeFlags(st))
	types.NodeStateAddFresh(builder, uint32(st.Fresh))
	types.NodeStateAddCompletedAt(builder, st.CompletedAt)
	types.NodeStateAddVerified(builder, verified)
	types.NodeStateAddContacted(builder, contacted)
	types.NodeStateAddReplies(builder, replies)
	types.NodeStateAddQueue(builder, queue)
	types.NodeStateAddPending(builder, pending)
	types.NodeStateAddStats(builder, stats)

	return types.NodeStateEnd(builder)
}

// buildTableVector writes a vector of table offsets.
func buildTableVector(builder *flatbuffers.Builder, start func(*flatbuffers.Builder, int) flatbuffers.UOffsetT, offsets []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	start(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}

	return builder.EndVector(len(offsets))
}

// buildCounters writes a vector of counters.
func buildCounters(builder *flatbuffers.Builder, start func(*flatbuffers.Builder, int) flatbuffers.UOffsetT, values []uint64) flatbuffers.UOffsetT {
	start(builder, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		builder.PrependUint64(values[i])
	}

	return builder.EndVector(len(values))
}

// nodeFlags packs the boolean node fields.
func nodeFlags(st *aggregation.NodeState) byte {
	var f byte
	if st.Started {
		f |= flagStarted
	}
	if st.Progress {
		f |= flagProgress
	}
	if st.Verifying {
		f |= flagVerifying
	}
	if st.Flushing {
		f |= flagFlushing
	}
	if st.Completed {
		f |= flagCompleted
	}

	return f
}

// parseBody decodes a verified Checkpoint table.
func parseBody(body []byte) (st *State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed checkpoint body: %v", r)
		}
	}()

	cp := types.GetRootAsCheckpoint(body, 0)

	cfg, err := config.Parse(string(cp.ConfigBytes()))
	if err != nil {
		return nil, fmt.Errorf("checkpoint config:\n%w", err)
	}

	snap := &network.Snapshot{
		Size:   cfg.CommitteeSize,
		Now:    cp.Now(),
		Seq:    cp.Seq(),
		Rand:   append([]byte(nil), cp.RandBytes()...),
		Peers:  parsePeers(cp),
		Events: parseEvents(cp),
	}

	if cp.NetStatsLength() != netStatsLen {
		return nil, fmt.Errorf("network counters: got %d, want %d", cp.NetStatsLength(), netStatsLen)
	}
	snap.Stats = network.Stats{Scheduled: cp.NetStats(0), Processed: cp.NetStats(1), Messages: cp.NetStats(2)}

	nodes := make([]aggregation.NodeState, cp.NodesLength())
	var fb types.NodeState

	for i := range nodes {
		if !cp.Nodes(&fb, i) {
			return nil, fmt.Errorf("read node %d", i)
		}

		nodes[i], err = parseNode(&fb, cfg.CommitteeSize)
		if err != nil {
			return nil, fmt.Errorf("node %d:\n%w", i, err)
		}
	}

	return &State{
		Config:      cfg,
		Initialized: cp.Initialized(),
		Network:     snap,
		Nodes:       nodes,
	}, nil
}

// parsePeers decodes the base peer lists.
func parsePeers(cp *types.Checkpoint) [][]int {
	peers := make([][]int, cp.PeersLength())
	var list types.PeerList

	for i := range peers {
		if !cp.Peers(&list, i) {
			continue
		}

		peers[i] = make([]int, list.PeersLength())
		for j := range peers[i] {
			peers[i][j] = int(list.Peers(j))
		}
	}

	return peers
}

// parseEvents decodes the pending events.
func parseEvents(cp *types.Checkpoint) []network.Event {
	events := make([]network.Event, cp.EventsLength())
	var ev types.Event

	for i := range events {
		if !cp.Events(&ev, i) {
			continue
		}

		events[i] = network.Event{
			At:   ev.At(),
			Seq:  ev.Seq(),
			Node: int(ev.Node()),
			Kind: network.Kind(ev.Kind()),
			From: int(ev.From()),
		}

		if p := ev.PayloadBytes(); p != nil {
			events[i].Payload = append([]byte(nil), p...)
		}
	}

	return events
}

// parseNode decodes one member state.
func parseNode(fb *types.NodeState, width int) (aggregation.NodeState, error) {
	var st aggregation.NodeState
	var err error

	if st.Verified, err = bitmap.FromBytes(width, fb.VerifiedBytes()); err != nil {
		return st, fmt.Errorf("verified:\n%w", err)
	}

	if st.Contacted, err = bitmap.FromBytes(width, fb.ContactedBytes()); err != nil {
		return st, fmt.Errorf("contacted:\n%w", err)
	}

	if st.Replies, err = bitmap.FromBytes(width, fb.RepliesBytes()); err != nil {
		return st, fmt.Errorf("replies:\n%w", err)
	}

	st.Queue = make([]bitmap.Bitmap, fb.QueueLength())
	var q types.QueuedSet

	for i := range st.Queue {
		if !fb.Queue(&q, i) {
			return st, fmt.Errorf("read queued set %d", i)
		}

		if st.Queue[i], err = bitmap.FromBytes(width, q.BitsBytes()); err != nil {
			return st, fmt.Errorf("queued set %d:\n%w", i, err)
		}
	}

	st.Pending = make([]aggregation.PeerEntry, fb.PendingLength())
	var e types.PeerEntry

	for i := range st.Pending {
		if !fb.Pending(&e, i) {
			return st, fmt.Errorf("read pending entry %d", i)
		}

		known, err := bitmap.FromBytes(width, e.KnownBytes())
		if err != nil {
			return st, fmt.Errorf("pending entry %d:\n%w", i, err)
		}

		st.Pending[i] = aggregation.PeerEntry{Peer: int(e.Peer()), Known: known}
	}

	if fb.StatsLength() != nodeStatsLen {
		return st, fmt.Errorf("node counters: got %d, want %d", fb.StatsLength(), nodeStatsLen)
	}

	st.Stats = aggregation.Stats{
		BatchesSent:     fb.Stats(0),
		RepliesSent:     fb.Stats(1),
		UnitsSent:       fb.Stats(2),
		EmptySkipped:    fb.Stats(3),
		BatchesReceived: fb.Stats(4),
		StatesSent:      fb.Stats(5),
		Verifications:   fb.Stats(6),
	}

	flags := fb.Flags()
	st.ID = int(fb.Id())
	st.Round = int(fb.Round())
	st.Cursor = int(fb.Cursor())
	st.Fresh = int(fb.Fresh())
	st.CompletedAt = fb.CompletedAt()
	st.Started = flags&flagStarted != 0
	st.Progress = flags&flagProgress != 0
	st.Verifying = flags&flagVerifying != 0
	st.Flushing = flags&flagFlushing != 0
	st.Completed = flags&flagCompleted != 0

	return st, nil
}
