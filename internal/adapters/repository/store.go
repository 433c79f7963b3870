// Package repository keeps the live rating table ordered for ranking queries.
package repository

import "context"

// Entry is one row of the rating table.
type Entry struct {
	Rank     int
	DriverID string
	Rating   float64
}

// Store provides read/write access to the rating table.
type Store interface {
	// Set records the current rating of a driver, replacing any previous value.
	Set(ctx context.Context, driverID string, rating float64) error

	// Rank returns the current rank and rating for a driver.
	// Returns ErrNotFound if the driver is unknown.
	Rank(ctx context.Context, driverID string) (Entry, error)

	// TopN returns the top-N entries ordered by rating desc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of rated drivers.
	Count(ctx context.Context) int

	// Reset removes every entry.
	Reset(ctx context.Context)
}
