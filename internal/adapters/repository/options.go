package repository

// Option applies a configuration option to the Board.
type Option func(*Board)

// WithSeed fixes the seed of the treap priority generator.
func WithSeed(seed uint64) Option {
	return func(b *Board) {
		b.seed = seed
	}
}

// WithMetrics toggles publishing board size to pkg/metrics.
func WithMetrics(enabled bool) Option {
	return func(b *Board) {
		b.metrics = enabled
	}
}
