package provider

import (
	"strconv"
	"strings"

	"github.com/okian/pitwall/internal/domain/race"
)

type mrData struct {
	MRData struct {
		RaceTable struct {
			Season string       `json:"season"`
			Races  []ergastRace `json:"Races"`
		} `json:"RaceTable"`
	} `json:"MRData"`
}

type ergastRace struct {
	Season   string `json:"season"`
	Round    string `json:"round"`
	RaceName string `json:"raceName"`
	Date     string `json:"date"`
	Circuit  struct {
		CircuitID string `json:"circuitId"`
		Location  struct {
			Locality string `json:"locality"`
			Country  string `json:"country"`
		} `json:"Location"`
	} `json:"Circuit"`
	Sprint            *struct{}          `json:"Sprint,omitempty"`
	Results           []ergastResult     `json:"Results,omitempty"`
	QualifyingResults []ergastQualifying `json:"QualifyingResults,omitempty"`
}

func (r ergastRace) event() race.Event {
	year, _ := strconv.Atoi(r.Season)
	round, _ := strconv.Atoi(r.Round)
	format := race.FormatConventional
	if r.Sprint != nil {
		format = race.FormatSprint
	}
	return race.Event{
		Year:    year,
		Round:   round,
		Name:    r.RaceName,
		Country: r.Circuit.Location.Country,
		Format:  format,
	}
}

type ergastDriver struct {
	DriverID   string `json:"driverId"`
	Code       string `json:"code"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

// id prefers the three-letter code and falls back to the driver id.
func (d ergastDriver) id() string {
	if d.Code != "" {
		return d.Code
	}
	return strings.ToUpper(d.DriverID)
}

type ergastConstructor struct {
	ConstructorID string `json:"constructorId"`
	Name          string `json:"name"`
}

type ergastResult struct {
	Number      string            `json:"number"`
	Position    string            `json:"position"`
	Points      string            `json:"points"`
	Grid        string            `json:"grid"`
	Status      string            `json:"status"`
	Driver      ergastDriver      `json:"Driver"`
	Constructor ergastConstructor `json:"Constructor"`
}

type ergastQualifying struct {
	Number      string            `json:"number"`
	Position    string            `json:"position"`
	Driver      ergastDriver      `json:"Driver"`
	Constructor ergastConstructor `json:"Constructor"`
}
