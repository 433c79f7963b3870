package features

import "errors"

var (
	ErrEmptyFeatureSet = errors.New("empty feature set")
	ErrDuplicateKey    = errors.New("duplicate (year, round, driver) key")
)
