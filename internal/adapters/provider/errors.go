package provider

import "errors"

// Sentinel kinds for provider errors.
var (
	ErrUnexpectedStatus = errors.New("unexpected provider status")
	ErrDecode           = errors.New("decode provider response")
)
