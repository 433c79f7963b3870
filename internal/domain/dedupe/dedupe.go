// Package dedupe tracks row keys that have already been seen.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded, recording it if not.
	SeenAndRecord(ctx context.Context, key string) bool
	// Unrecord forgets key.
	Unrecord(ctx context.Context, key string)
	Size() int
}

// KeyGuard is an unbounded in-memory Deduper.
type KeyGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

var _ Deduper = (*KeyGuard)(nil)

// NewKeyGuard creates an empty guard.
func NewKeyGuard(opts ...Option) *KeyGuard {
	g := &KeyGuard{}
	for _, opt := range opts {
		opt(g)
	}
	if g.seen == nil {
		g.seen = map[string]struct{}{}
	}
	return g
}

func (g *KeyGuard) SeenAndRecord(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return true
	}
	g.seen[key] = struct{}{}
	return false
}

func (g *KeyGuard) Unrecord(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
}

func (g *KeyGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Duplicates returns every key that occurs more than once, in order of its
// second occurrence.
func Duplicates(ctx context.Context, keys []string) []string {
	g := NewKeyGuard(WithCapacity(len(keys)))
	var dups []string
	for _, k := range keys {
		if g.SeenAndRecord(ctx, k) {
			dups = append(dups, k)
		}
	}
	return dups
}
