package topology

import (
	"fmt"
	"math/bits"
	"sort"

	lru "github.com/hashicorp/golang-lru"

	"SanFermin/internal/bitmap"
)

// defaultCacheSize bounds the number of memoized candidate sets per tree.
const defaultCacheSize = 4096

// MaxRound returns the last useful round for a committee of n members, ceil(log2 n).
func MaxRound(n int) int {
	if n <= 1 {
		return 0
	}

	return bits.Len(uint(n - 1))
}

// Introduced returns the members first reachable by id in the given round.
// Round r targets the sibling block of id at height r-1 of the tournament tree:
// every j with j>>(r-1) == (id>>(r-1)) XOR 1. Members outside [0, n) are dropped.
func Introduced(id, round, n int) (bitmap.Bitmap, error) {
	if err := checkArgs(id, round, n); err != nil {
		return bitmap.Bitmap{}, err
	}

	b := bitmap.New(n)
	setSibling(b, id, round, n)

	return b, nil
}

// Candidates returns every member reachable by id up to and including round.
// The set is cumulative: Candidates(id, r) contains Candidates(id, r-1).
func Candidates(id, round, n int) (bitmap.Bitmap, error) {
	if err := checkArgs(id, round, n); err != nil {
		return bitmap.Bitmap{}, err
	}

	b := bitmap.New(n)
	for r := 1; r <= round; r++ {
		setSibling(b, id, r, n)
	}

	return b, nil
}

// Order lists the members of set ordered by tree distance to id (closest first).
// Ties cannot happen for distinct members, the XOR metric is injective.
func Order(id int, set bitmap.Bitmap) []int {
	members := set.Indices()

	sort.Slice(members, func(i, j int) bool {
		return members[i]^id < members[j]^id
	})

	return members
}

// setSibling sets the sibling block of id at the given round in b.
func setSibling(b bitmap.Bitmap, id, round, n int) {
	shift := uint(round - 1)
	if shift >= 63 {
		return
	}

	lo := ((id >> shift) ^ 1) << shift
	hi := lo + (1 << shift) - 1

	if hi >= n {
		hi = n - 1
	}

	for j := lo; j <= hi; j++ {
		b.Set(j)
	}
}

// checkArgs validates the inputs of a topology query.
func checkArgs(id, round, n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid committee size %d", n)
	}

	if id < 0 || id >= n {
		return fmt.Errorf("member %d outside committee of %d", id, n)
	}

	if round < 1 {
		return fmt.Errorf("invalid round %d, rounds start at 1", round)
	}

	return nil
}

// cacheKey identifies a memoized candidate set.
type cacheKey struct {
	id    int
	round int
}

// Tree memoizes candidate sets for a committee of fixed size.
// It is safe for concurrent use and may be shared between simulation clones.
type Tree struct {
	n     int        // n is the committee size
	cache *lru.Cache // cache maps cacheKey to bitmap.Bitmap
}

// NewTree creates a memoizing tree for a committee of n members.
func NewTree(n int) (*Tree, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid committee size %d", n)
	}

	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create candidate cache:\n%w", err)
	}

	return &Tree{n: n, cache: cache}, nil
}

// Size returns the committee size.
func (t *Tree) Size() int {
	return t.n
}

// MaxRound returns the last useful round of the tree.
func (t *Tree) MaxRound() int {
	return MaxRound(t.n)
}

// Candidates returns the cumulative candidate set of id at round.
// The returned bitmap is a private copy.
func (t *Tree) Candidates(id, round int) (bitmap.Bitmap, error) {
	key := cacheKey{id: id, round: round}

	if v, ok := t.cache.Get(key); ok {
		return v.(bitmap.Bitmap).Clone(), nil
	}

	b, err := Candidates(id, round, t.n)
	if err != nil {
		return bitmap.Bitmap{}, err
	}

	t.cache.Add(key, b.Clone())

	return b, nil
}
