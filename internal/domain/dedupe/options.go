package dedupe

// Option applies a configuration option to a KeyGuard.
type Option func(*KeyGuard)

// WithCapacity presizes the guard for the expected number of keys.
func WithCapacity(n int) Option {
	return func(g *KeyGuard) {
		if n > 0 {
			g.seen = make(map[string]struct{}, n)
		}
	}
}
