package models

import "errors"

var (
	ErrMissingIdentifierColumns = errors.New("missing identifier columns")
	ErrNotTrained               = errors.New("model is not trained")
	ErrLengthMismatch           = errors.New("length mismatch")
	ErrInvalidEnsembleWeights   = errors.New("invalid ensemble weights")
	ErrNoMembers                = errors.New("ensemble has no members")
	ErrInvalidSnapshot          = errors.New("invalid model snapshot")
)
