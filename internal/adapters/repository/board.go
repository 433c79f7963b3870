package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/okian/pitwall/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: rating DESC, then driverID ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the table from
// best to worst.

// ratingScale controls fixed-point scaling from float64.
const ratingScale = 1_000_000_000

type ratingFP int64

func toFixedPoint(x float64) ratingFP {
	switch {
	case math.IsNaN(x):
		return 0
	case x*ratingScale >= math.MaxInt64:
		return ratingFP(math.MaxInt64)
	case x*ratingScale <= math.MinInt64:
		return ratingFP(math.MinInt64)
	}
	return ratingFP(math.Round(x * ratingScale))
}

func toFloat(x ratingFP) float64 {
	return float64(x) / ratingScale
}

type node struct {
	id     string
	rating ratingFP
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aRating ratingFP, aID string, bRating ratingFP, bID string) bool {
	if aRating != bRating {
		return aRating > bRating
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, nn *node) *node {
	if n == nil {
		nn.size = 1
		return nn
	}
	if less(nn.rating, nn.id, n.rating, n.id) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, rating ratingFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case rating == n.rating && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, rating)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, rating)
		}
	case less(rating, id, n.rating, n.id):
		n.left = deleteNode(n.left, id, rating)
	default:
		n.right = deleteNode(n.right, id, rating)
	}
	fix(n)
	return n
}

// collect appends up to limit entries in rank order.
func collect(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collect(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{DriverID: n.id, Rating: toFloat(n.rating)})
	}
	collect(n.right, limit, out)
}

// Board is a treap of driver ratings. Priorities are drawn from a seeded PCG
// so tree shape is reproducible.
type Board struct {
	mu      sync.RWMutex
	root    *node
	byID    map[string]ratingFP
	rng     *rand.Rand
	seed    uint64
	metrics bool
}

var _ Store = (*Board)(nil)

// NewBoard constructs an empty board.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		byID: make(map[string]ratingFP),
		seed: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.rng = rand.New(rand.NewPCG(b.seed, b.seed^0x9e3779b97f4a7c15)) //nolint:gosec // tree balance only
	return b
}

// Set replaces the rating of driverID in O(log n) expected time.
func (b *Board) Set(_ context.Context, driverID string, rating float64) error {
	fp := toFixedPoint(rating)

	b.mu.Lock()
	if old, ok := b.byID[driverID]; ok {
		if old == fp {
			b.mu.Unlock()
			return nil
		}
		b.root = deleteNode(b.root, driverID, old)
	}
	b.byID[driverID] = fp
	b.root = insert(b.root, &node{id: driverID, rating: fp, prio: b.rng.Uint64()})
	count := len(b.byID)
	b.mu.Unlock()

	if b.metrics {
		metrics.UpdateDriversRated(count)
	}
	return nil
}

// Rank returns the current rank and rating of driverID.
func (b *Board) Rank(_ context.Context, driverID string) (Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.byID[driverID]; !ok {
		return Entry{}, ErrNotFound
	}
	all := make([]Entry, 0, len(b.byID))
	collect(b.root, len(b.byID), &all)
	assignRanksWithTies(all)
	for _, e := range all {
		if e.DriverID == driverID {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// TopN returns the best n entries.
func (b *Board) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(b.byID)))
	collect(b.root, n, &out)
	assignRanksWithTies(out)
	return out, nil
}

// Count returns the number of rated drivers.
func (b *Board) Count(_ context.Context) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// Reset drops every entry.
func (b *Board) Reset(_ context.Context) {
	b.mu.Lock()
	b.root = nil
	b.byID = make(map[string]ratingFP)
	b.mu.Unlock()
	if b.metrics {
		metrics.UpdateDriversRated(0)
	}
}

// assignRanksWithTies gives equal ratings the same rank; ranks are consecutive.
func assignRanksWithTies(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Rating != entries[i-1].Rating {
			rank++
		}
		entries[i].Rank = rank
	}
}
