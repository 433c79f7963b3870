// Package race holds the result rows produced by a data provider, the column
// names those rows map to, and the standings arithmetic derived from them.
package race

import (
	"strconv"
	"strings"

	"github.com/okian/pitwall/internal/domain/table"
)

// Column names shared by ingestion, feature engineering, the feature store and
// the models.
const (
	ColYear         = "year"
	ColRound        = "round"
	ColEventName    = "event_name"
	ColCountry      = "country"
	ColDriver       = "driver"
	ColDriverNumber = "driver_number"
	ColTeam         = "team"
	ColFullName     = "full_name"
	ColStatus       = "status"
	ColPosition     = "position"
	ColGrid         = "grid_position"
	ColPoints       = "points"
)

// Format values reported by providers for a race weekend.
const (
	FormatConventional = "conventional"
	FormatSprint       = "sprint"
)

// Event is one entry of a season schedule.
type Event struct {
	Year    int
	Round   int
	Name    string
	Country string
	Format  string
}

// Result is one driver's classified result in one race.
type Result struct {
	Year         int
	Round        int
	EventName    string
	Country      string
	DriverID     string
	DriverNumber string
	FullName     string
	Team         string
	Position     float64
	GridPosition float64
	Points       float64
	Status       string
}

// QualifyingResult is one driver's qualifying classification for one event.
type QualifyingResult struct {
	Year      int
	Round     int
	EventName string
	DriverID  string
	Position  float64
}

// Standing is one line of a championship table.
type Standing struct {
	Position int
	Key      string
	Points   float64
}

// IsFinished reports whether a status string means the driver was classified
// at the finish: "Finished", or lapped ("+1 Lap", "Lapped").
func IsFinished(status string) bool {
	return strings.Contains(status, "Finished") || strings.Contains(status, "+") || status == "Lapped"
}

// Key identifies a result row.
func Key(year, round int, driver string) string {
	return strconv.Itoa(year) + "/" + strconv.Itoa(round) + "/" + driver
}

// ResultsFrame lays race results out as a frame, one row per result in input
// order.
func ResultsFrame(results []Result) *table.Frame {
	n := len(results)
	var (
		year, round, pos, grid, pts                        = make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
		event, country, driver, number, full, team, status = make([]string, n), make([]string, n), make([]string, n), make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	)
	for i, r := range results {
		year[i] = float64(r.Year)
		round[i] = float64(r.Round)
		pos[i] = r.Position
		grid[i] = r.GridPosition
		pts[i] = r.Points
		event[i] = r.EventName
		country[i] = r.Country
		driver[i] = r.DriverID
		number[i] = r.DriverNumber
		full[i] = r.FullName
		team[i] = r.Team
		status[i] = r.Status
	}
	f := table.New(n)
	// lengths match by construction
	f, _ = f.WithFloats(ColYear, year)
	f, _ = f.WithFloats(ColRound, round)
	f, _ = f.WithStrings(ColEventName, event)
	f, _ = f.WithStrings(ColCountry, country)
	f, _ = f.WithStrings(ColDriver, driver)
	f, _ = f.WithStrings(ColDriverNumber, number)
	f, _ = f.WithStrings(ColFullName, full)
	f, _ = f.WithStrings(ColTeam, team)
	f, _ = f.WithFloats(ColPosition, pos)
	f, _ = f.WithFloats(ColGrid, grid)
	f, _ = f.WithFloats(ColPoints, pts)
	f, _ = f.WithStrings(ColStatus, status)
	return f
}
