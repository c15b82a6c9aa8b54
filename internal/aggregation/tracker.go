package aggregation

import (
	"fmt"

	"SanFermin/internal/bitmap"
)

// Tracker holds the verified contributions of one node.
// The verified set only grows and always contains the node's own index.
type Tracker struct {
	verified  bitmap.Bitmap // verified is the set of verified contributions
	threshold int           // threshold is the quorum size
}

// NewTracker creates a tracker for member self with its own contribution already verified.
func NewTracker(self, size, threshold int) (*Tracker, error) {
	if self < 0 || self >= size {
		return nil, fmt.Errorf("member %d outside committee of %d", self, size)
	}

	verified := bitmap.New(size)
	verified.Set(self)

	return &Tracker{verified: verified, threshold: threshold}, nil
}

// Merge adds the contributions of b and returns how many were new.
// A bitmap of another width is rejected and leaves the tracker unchanged.
func (t *Tracker) Merge(b bitmap.Bitmap) (int, error) {
	return t.verified.Union(b)
}

// ReachedQuorum reports whether the verified count meets the threshold.
func (t *Tracker) ReachedQuorum() bool {
	return t.verified.Count() >= t.threshold
}

// Count returns the number of verified contributions.
func (t *Tracker) Count() int {
	return t.verified.Count()
}

// Verified returns a copy of the verified set.
func (t *Tracker) Verified() bitmap.Bitmap {
	return t.verified.Clone()
}

// Clone returns an independent copy.
func (t *Tracker) Clone() *Tracker {
	return &Tracker{verified: t.verified.Clone(), threshold: t.threshold}
}
