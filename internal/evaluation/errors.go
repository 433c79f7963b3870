package evaluation

import "errors"

var (
	ErrLengthMismatch = errors.New("true and predicted lengths differ")
	ErrEmptyInput     = errors.New("no samples to evaluate")
	ErrNoResults      = errors.New("no models evaluated")
	ErrUnknownMetric  = errors.New("unknown metric")
	ErrTooFewSamples  = errors.New("fewer samples than folds")
)
