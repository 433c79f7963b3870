// Package scoring holds the pairwise rating arithmetic used by the rating model.
package scoring

import "math"

// Outcome scores for one side of a pairwise comparison.
const (
	Win  = 1.0
	Loss = 0.0
	Draw = 0.5
)

// Default rating parameters.
const (
	DefaultKFactor       = 32.0
	DefaultInitialRating = 1500.0
	ratingScale          = 400.0
)

// Option applies a configuration option to an Elo.
type Option func(*Elo)

// WithKFactor sets the update sensitivity. Non-positive values are ignored.
func WithKFactor(k float64) Option {
	return func(e *Elo) {
		if k > 0 {
			e.k = k
		}
	}
}

// Elo applies logistic expected-score updates.
type Elo struct {
	k float64
}

// NewElo returns an Elo with the default K-factor unless overridden.
func NewElo(opts ...Option) Elo {
	e := Elo{k: DefaultKFactor}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// K returns the configured K-factor.
func (e Elo) K() float64 { return e.k }

// ExpectedScore is the probability that a player rated self beats one rated
// opponent: 1 / (1 + 10^((opponent-self)/400)).
func ExpectedScore(self, opponent float64) float64 {
	return 1 / (1 + math.Pow(10, (opponent-self)/ratingScale))
}

// Update returns the new rating of self after scoring actual against opponent.
func (e Elo) Update(self, opponent, actual float64) float64 {
	return self + e.k*(actual-ExpectedScore(self, opponent))
}
