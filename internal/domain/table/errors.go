package table

import "errors"

var (
	ErrColumnNotFound = errors.New("column not found")
	ErrLengthMismatch = errors.New("column length does not match frame length")
	ErrColumnKind     = errors.New("column has a different kind")
	ErrMisaligned     = errors.New("row keys are not aligned")
)
