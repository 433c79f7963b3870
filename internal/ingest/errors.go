package ingest

import "errors"

var (
	ErrInvalidFilter = errors.New("invalid event filter")
	ErrNoSeasons     = errors.New("no seasons requested")
)
