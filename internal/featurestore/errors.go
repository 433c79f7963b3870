package featurestore

import (
	"errors"

	"github.com/okian/pitwall/internal/domain/table"
)

var (
	ErrEmptyFeatureSet    = errors.New("empty feature set")
	ErrEmptyTrainingData  = errors.New("no usable training data")
	ErrFeatureSetNotFound = errors.New("feature set not found")
	ErrInvalidName        = errors.New("invalid feature set name")
	ErrInvalidTestSize    = errors.New("test size must be in (0, 1)")

	// ErrColumnNotFound is the table error, re-exported for callers of
	// PrepareTrainingData.
	ErrColumnNotFound = table.ErrColumnNotFound
)
