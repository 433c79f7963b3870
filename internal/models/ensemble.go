package models

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/pitwall/internal/domain/table"
	"github.com/okian/pitwall/pkg/logger"
)

// EnsembleName is the name an Ensemble reports.
const EnsembleName = "Ensemble"

// weights must sum to one within absTol + relTol.
const (
	absTol = 1e-8
	relTol = 1e-5
)

// Ensemble predicts the weighted sum of its members' predictions.
type Ensemble struct {
	members []Model
	weights []float64
	trained bool
	logger  logger.Logger
}

var _ Model = (*Ensemble)(nil)

// NewEnsemble combines members. nil weights weigh every member equally.
func NewEnsemble(members []Model, weights []float64) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	if weights == nil {
		weights = make([]float64, len(members))
		for i := range weights {
			weights[i] = 1 / float64(len(members))
		}
	}
	if len(weights) != len(members) {
		return nil, fmt.Errorf("%w: %d weights for %d members", ErrInvalidEnsembleWeights, len(weights), len(members))
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1) > absTol+relTol {
		return nil, fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidEnsembleWeights, sum)
	}
	return &Ensemble{
		members: append([]Model(nil), members...),
		weights: append([]float64(nil), weights...),
		logger:  logger.NamedOrNop("models.ensemble"),
	}, nil
}

func (e *Ensemble) Name() string  { return EnsembleName }
func (e *Ensemble) Trained() bool { return e.trained }

// Metadata lists the members and their weights.
func (e *Ensemble) Metadata() Metadata {
	names := make([]string, len(e.members))
	for i, m := range e.members {
		names[i] = m.Name()
	}
	return Metadata{
		Name:            e.Name(),
		Trained:         e.trained,
		RequiredColumns: e.RequiredColumns(),
		Params: map[string]any{
			"members": names,
			"weights": append([]float64(nil), e.weights...),
		},
	}
}

// RequiredColumns is the union of the members' columns, in member order.
func (e *Ensemble) RequiredColumns() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range e.members {
		for _, c := range m.RequiredColumns() {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Members returns the member models.
func (e *Ensemble) Members() []Model { return append([]Model(nil), e.members...) }

// Weights returns the member weights.
func (e *Ensemble) Weights() []float64 { return append([]float64(nil), e.weights...) }

// Train trains every member on the same input.
func (e *Ensemble) Train(ctx context.Context, x *table.Frame, y []float64) error {
	for _, m := range e.members {
		e.logger.Debug(ctx, "training ensemble member", logger.String("member", m.Name()))
		if err := m.Train(ctx, x, y); err != nil {
			return fmt.Errorf("%s: %w", m.Name(), err)
		}
	}
	e.trained = true
	return nil
}

func (e *Ensemble) Predict(ctx context.Context, x *table.Frame) ([]float64, error) {
	if !e.trained {
		return nil, ErrNotTrained
	}
	out := make([]float64, x.Len())
	for i, m := range e.members {
		pred, err := m.Predict(ctx, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name(), err)
		}
		if len(pred) != len(out) {
			return nil, fmt.Errorf("%w: %s returned %d predictions for %d rows", ErrLengthMismatch, m.Name(), len(pred), len(out))
		}
		for j, p := range pred {
			out[j] += e.weights[i] * p
		}
	}
	return out, nil
}

// MemberPredictions returns each member's raw predictions by member name.
func (e *Ensemble) MemberPredictions(ctx context.Context, x *table.Frame) (map[string][]float64, error) {
	out := make(map[string][]float64, len(e.members))
	for _, m := range e.members {
		pred, err := m.Predict(ctx, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name(), err)
		}
		out[m.Name()] = pred
	}
	return out, nil
}
