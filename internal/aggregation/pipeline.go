package aggregation

import (
	"fmt"

	"SanFermin/internal/bitmap"
)

// Pipeline queues received contribution sets until they are verified.
type Pipeline struct {
	queue []bitmap.Bitmap // queue holds sets awaiting verification, oldest first
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Enqueue appends a received set. The pipeline keeps its own copy.
func (p *Pipeline) Enqueue(b bitmap.Bitmap) {
	p.queue = append(p.queue, b.Clone())
}

// Drain merges every queued set into the tracker and empties the queue.
// It returns the number of newly verified contributions.
func (p *Pipeline) Drain(t *Tracker) (int, error) {
	learned := 0

	for i, b := range p.queue {
		n, err := t.Merge(b)
		if err != nil {
			p.queue = p.queue[i+1:]
			return learned, fmt.Errorf("merge queued set %d:\n%w", i, err)
		}

		learned += n
	}

	p.queue = nil

	return learned, nil
}

// Len returns the number of queued sets.
func (p *Pipeline) Len() int {
	return len(p.queue)
}

// Queued returns copies of the queued sets, oldest first.
func (p *Pipeline) Queued() []bitmap.Bitmap {
	out := make([]bitmap.Bitmap, len(p.queue))
	for i, b := range p.queue {
		out[i] = b.Clone()
	}

	return out
}

// Clone returns an independent copy.
func (p *Pipeline) Clone() *Pipeline {
	return &Pipeline{queue: p.Queued()}
}
