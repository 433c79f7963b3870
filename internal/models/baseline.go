package models

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/pitwall/internal/domain/table"
)

// BaselineName is the name a Baseline reports.
const BaselineName = "Baseline"

// DefaultBaselineColumn is the feature a Baseline predicts from.
const DefaultBaselineColumn = "qualifying_position"

// BaselineOption applies a configuration option to a Baseline.
type BaselineOption func(*Baseline)

// WithColumn sets the feature column copied into predictions.
func WithColumn(c string) BaselineOption {
	return func(b *Baseline) {
		if c != "" {
			b.column = c
		}
	}
}

// Baseline predicts a feature column as the finishing position, the
// training target mean where the feature is missing.
type Baseline struct {
	column   string
	fallback float64
	trained  bool
}

var _ Model = (*Baseline)(nil)

// NewBaseline creates an untrained baseline.
func NewBaseline(opts ...BaselineOption) *Baseline {
	b := &Baseline{column: DefaultBaselineColumn}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Baseline) Name() string              { return BaselineName }
func (b *Baseline) RequiredColumns() []string { return []string{b.column} }
func (b *Baseline) Trained() bool             { return b.trained }

func (b *Baseline) Metadata() Metadata {
	md := Metadata{
		Name:            b.Name(),
		Trained:         b.trained,
		RequiredColumns: b.RequiredColumns(),
		Params:          map[string]any{"column": b.column},
	}
	if b.trained {
		md.Params["fallback"] = b.fallback
	}
	return md
}

// Column returns the feature the baseline copies.
func (b *Baseline) Column() string { return b.column }

func (b *Baseline) Train(_ context.Context, x *table.Frame, y []float64) error {
	if err := requireColumns(b.Name(), x, b.RequiredColumns()); err != nil {
		return err
	}
	if len(y) != x.Len() {
		return fmt.Errorf("%w: %d targets for %d rows", ErrLengthMismatch, len(y), x.Len())
	}
	var sum, n float64
	for _, v := range y {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("%w: no target values", ErrLengthMismatch)
	}
	b.fallback = sum / n
	b.trained = true
	return nil
}

func (b *Baseline) Predict(_ context.Context, x *table.Frame) ([]float64, error) {
	if !b.trained {
		return nil, ErrNotTrained
	}
	if err := requireColumns(b.Name(), x, b.RequiredColumns()); err != nil {
		return nil, err
	}
	vals, err := x.Floats(b.column)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if math.IsNaN(v) {
			vals[i] = b.fallback
		}
	}
	return vals, nil
}
