package race

import "errors"

// ErrDataUnavailable is returned by providers when an event or season has no
// results to serve, and by ingestion when a whole season came back empty.
var ErrDataUnavailable = errors.New("race data unavailable")
