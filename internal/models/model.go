// Package models holds the position prediction models and the helpers they
// share.
package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/pitwall/internal/domain/table"
	"github.com/okian/pitwall/internal/evaluation"
)

// Model predicts one finishing position per input row.
type Model interface {
	Name() string
	// RequiredColumns lists the columns Train and Predict read from X. They
	// may be identifiers that PrepareInput merges in from metadata.
	RequiredColumns() []string
	Train(ctx context.Context, x *table.Frame, y []float64) error
	Predict(ctx context.Context, x *table.Frame) ([]float64, error)
	Trained() bool
	Metadata() Metadata
}

// Metadata describes a model and the parameters it was built with.
type Metadata struct {
	Name            string         `json:"name"`
	Trained         bool           `json:"is_trained"`
	RequiredColumns []string       `json:"required_columns"`
	Params          map[string]any `json:"parameters,omitempty"`
}

// PrepareInput returns x with every required column of m that x lacks merged
// in from meta by row key.
func PrepareInput(m Model, x, meta *table.Frame) (*table.Frame, error) {
	missing := missingColumns(x, m.RequiredColumns())
	if len(missing) == 0 {
		return x, nil
	}
	if meta == nil || meta.Len() == 0 {
		return nil, fmt.Errorf("%w: %s needs %s and no metadata was given",
			ErrMissingIdentifierColumns, m.Name(), strings.Join(missing, ", "))
	}
	if absent := missingColumns(meta, missing); len(absent) > 0 {
		return nil, fmt.Errorf("%w: %s needs %s, not in features or metadata",
			ErrMissingIdentifierColumns, m.Name(), strings.Join(absent, ", "))
	}
	return x.Merge(meta, missing...)
}

// Evaluate predicts x and scores the result against y.
func Evaluate(ctx context.Context, m Model, x *table.Frame, y []float64) (map[string]float64, error) {
	pred, err := m.Predict(ctx, x)
	if err != nil {
		return nil, err
	}
	if len(pred) != len(y) {
		return nil, fmt.Errorf("%w: %d predictions for %d targets", ErrLengthMismatch, len(pred), len(y))
	}
	if len(y) == 0 {
		return nil, fmt.Errorf("%w: nothing to evaluate", ErrLengthMismatch)
	}
	return map[string]float64{
		evaluation.MetricMAE:   evaluation.MAE(y, pred),
		evaluation.MetricRMSE:  evaluation.RMSE(y, pred),
		evaluation.MetricTop3:  evaluation.TopKAccuracy(y, pred, 3),
		evaluation.MetricTop10: evaluation.TopKAccuracy(y, pred, 10),
	}, nil
}

func missingColumns(f *table.Frame, cols []string) []string {
	var out []string
	for _, c := range cols {
		if !f.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func requireColumns(name string, f *table.Frame, cols []string) error {
	if f == nil {
		return fmt.Errorf("%w: %s got no input", ErrMissingIdentifierColumns, name)
	}
	if missing := missingColumns(f, cols); len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %s; merge them with PrepareInput",
			ErrMissingIdentifierColumns, name, strings.Join(missing, ", "))
	}
	return nil
}
