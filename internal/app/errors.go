package service

import "errors"

var (
	// ErrStageNotReady is returned when a stage runs before the stage it
	// reads from has produced output.
	ErrStageNotReady = errors.New("upstream stage has not run")
	ErrUnknownModel  = errors.New("unknown model")
)
