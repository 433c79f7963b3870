package repository

import "errors"

// Sentinel kinds for rating board errors.
var (
	ErrNotFound     = errors.New("driver not rated")
	ErrInvalidLimit = errors.New("invalid rankings limit")
)
