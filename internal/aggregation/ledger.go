package aggregation

import (
	"fmt"

	"SanFermin/internal/bitmap"
)

// Outgoing is one batch ready to be sent.
type Outgoing struct {
	Peer   int           // Peer is the destination
	Bitmap bitmap.Bitmap // Bitmap is the contribution set to send
}

// Ledger tracks, per pending peer, what that peer is believed to know.
// An entry exists from the moment the peer becomes a send target until it is flushed,
// so repeated targeting between two flushes collapses into a single send.
type Ledger struct {
	strategy Strategy              // strategy selects full or differential sends
	width    int                   // width is the committee size
	entries  map[int]bitmap.Bitmap // entries maps peer to its believed knowledge
	order    []int                 // order lists pending peers by insertion
}

// NewLedger creates an empty ledger.
func NewLedger(strategy Strategy, width int) *Ledger {
	return &Ledger{
		strategy: strategy,
		width:    width,
		entries:  make(map[int]bitmap.Bitmap),
	}
}

// Record makes peer a pending send target with empty knowledge.
// It returns false if the peer was already pending.
func (l *Ledger) Record(peer int) bool {
	if _, ok := l.entries[peer]; ok {
		return false
	}

	l.entries[peer] = bitmap.New(l.width)
	l.order = append(l.order, peer)

	return true
}

// Learn adds known to the knowledge of a pending peer.
// Peers without an entry are ignored and false is returned.
func (l *Ledger) Learn(peer int, known bitmap.Bitmap) (bool, error) {
	entry, ok := l.entries[peer]
	if !ok {
		return false, nil
	}

	if _, err := entry.Union(known); err != nil {
		return false, fmt.Errorf("learn knowledge of peer %d:\n%w", peer, err)
	}

	return true, nil
}

// Knowledge returns a copy of what a pending peer is believed to know.
func (l *Ledger) Knowledge(peer int) (bitmap.Bitmap, bool) {
	entry, ok := l.entries[peer]
	if !ok {
		return bitmap.Bitmap{}, false
	}

	return entry.Clone(), true
}

// Outgoing computes the batch for a pending peer without removing its entry.
func (l *Ledger) Outgoing(peer int, verified bitmap.Bitmap) (bitmap.Bitmap, error) {
	entry, ok := l.entries[peer]
	if !ok {
		return bitmap.Bitmap{}, fmt.Errorf("peer %d:\n%w", peer, ErrNothingPending)
	}

	if l.strategy == StrategyAll {
		if verified.Width() != l.width {
			return bitmap.Bitmap{}, fmt.Errorf("%w: %d != %d", bitmap.ErrWidthMismatch, verified.Width(), l.width)
		}

		return verified.Clone(), nil
	}

	return verified.Difference(entry)
}

// Flush computes the batch of every pending peer, in insertion order, and clears the ledger.
// Flushing an empty ledger is a precondition violation.
func (l *Ledger) Flush(verified bitmap.Bitmap) ([]Outgoing, error) {
	if len(l.order) == 0 {
		return nil, ErrNothingPending
	}

	out := make([]Outgoing, 0, len(l.order))
	for _, peer := range l.order {
		b, err := l.Outgoing(peer, verified)
		if err != nil {
			return nil, err
		}

		out = append(out, Outgoing{Peer: peer, Bitmap: b})
	}

	l.entries = make(map[int]bitmap.Bitmap)
	l.order = nil

	return out, nil
}

// Pending returns the number of pending peers.
func (l *Ledger) Pending() int {
	return len(l.order)
}

// Peers returns the pending peers in insertion order.
func (l *Ledger) Peers() []int {
	return append([]int(nil), l.order...)
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{
		strategy: l.strategy,
		width:    l.width,
		entries:  make(map[int]bitmap.Bitmap, len(l.entries)),
		order:    append([]int(nil), l.order...),
	}

	for peer, entry := range l.entries {
		out.entries[peer] = entry.Clone()
	}

	return out
}
