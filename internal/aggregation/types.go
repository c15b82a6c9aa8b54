package aggregation

import (
	"errors"
	"fmt"

	"SanFermin/internal/network"
)

// Event kinds handled by a signing node. Message delivery uses network.KindMessage.
const (
	KindStart        network.Kind = iota + 1 // KindStart initializes the node
	KindRoundTimeout                         // KindRoundTimeout fires the round driver
	KindFlush                                // KindFlush sends pending peer batches
	KindVerified                             // KindVerified ends a verification
)

// Precondition violations. Any of them aborts the simulation instance.
var (
	ErrNotStarted     = errors.New("node not started")
	ErrAlreadyStarted = errors.New("node already started")
	ErrNothingPending = errors.New("no pending peer to send to")
)

// Strategy selects what a node sends to a peer.
type Strategy uint8

const (
	// StrategyAll sends the full verified set.
	StrategyAll Strategy = iota

	// StrategyDiff sends only what the peer is not believed to know.
	StrategyDiff
)

// ParseStrategy converts a configuration name to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "all":
		return StrategyAll, nil
	case "diff", "dif":
		return StrategyDiff, nil
	default:
		return 0, fmt.Errorf("unknown send strategy %q", s)
	}
}

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyAll:
		return "all"
	case StrategyDiff:
		return "diff"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// Params are the protocol parameters shared by every node of a committee.
type Params struct {
	// Size is the committee size N.
	Size int

	// Threshold is the number of distinct verified contributions needed to complete.
	Threshold int

	// Strategy selects full or differential sends.
	Strategy Strategy

	// Fanout is the number of candidates contacted per round timeout.
	Fanout int

	// RoundTimeout is the delay in milliseconds between round driver steps.
	RoundTimeout int64

	// PairingTime is the verification cost in milliseconds.
	PairingTime int64

	// SendPeriod is the debounce delay in milliseconds before pending batches are sent.
	SendPeriod int64

	// UnitDelay is the transmission time in milliseconds per encoding unit.
	UnitDelay int64

	// WithState makes nodes announce their verified set to base peers after progress.
	WithState bool
}

// Validate checks the parameters for consistency.
func (p *Params) Validate() error {
	if p.Size <= 0 {
		return fmt.Errorf("invalid committee size %d", p.Size)
	}

	if p.Threshold < 1 || p.Threshold > p.Size {
		return fmt.Errorf("threshold %d outside [1, %d]", p.Threshold, p.Size)
	}

	if p.Fanout < 1 {
		return fmt.Errorf("invalid fanout %d", p.Fanout)
	}

	if p.RoundTimeout <= 0 {
		return fmt.Errorf("invalid round timeout %dms", p.RoundTimeout)
	}

	if p.PairingTime < 0 || p.SendPeriod < 0 || p.UnitDelay < 0 {
		return fmt.Errorf("negative delay")
	}

	return nil
}

// Substrate is the simulation environment a node acts through.
// It is passed explicitly to every handler.
type Substrate interface {
	// Now returns the current virtual time in milliseconds.
	Now() int64

	// Schedule queues a timer event for node after delay milliseconds.
	Schedule(delay int64, node int, kind network.Kind)

	// Deliver sends an encoded message, adding transmit milliseconds to the propagation delay.
	Deliver(from, to int, payload []byte, transmit int64)

	// InitialPeers returns the base peers of node.
	InitialPeers(node int) []int
}

// Stats counts the activity of one node.
type Stats struct {
	BatchesSent     uint64 // BatchesSent is the number of contribution batches sent
	RepliesSent     uint64 // RepliesSent is the number of those sent as replies
	UnitsSent       uint64 // UnitsSent is the total encoding cost of sent batches
	EmptySkipped    uint64 // EmptySkipped counts flushes with nothing new for the peer
	BatchesReceived uint64 // BatchesReceived is the number of batches received
	StatesSent      uint64 // StatesSent is the number of state announcements sent
	Verifications   uint64 // Verifications is the number of drains run
}
