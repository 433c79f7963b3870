// Package types contains the read shapes shared by the pipeline controller
// and the HTTP API.
package types

import "time"

// RatingEntry is one line of the driver rating table.
type RatingEntry struct {
	Rank     int     `json:"rank"`
	DriverID string  `json:"driver"`
	Rating   float64 `json:"rating"`
}

// StageResult records one stage execution.
type StageResult struct {
	State      string    `json:"state"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Status is the pipeline snapshot exposed to readers.
type Status struct {
	State           string        `json:"state"`
	RunID           string        `json:"run_id"`
	DataLoaded      bool          `json:"data_loaded"`
	FeaturesCreated bool          `json:"features_created"`
	ModelsTrained   []string      `json:"models_trained"`
	NRows           int           `json:"n_rows"`
	NRaces          int           `json:"n_races"`
	NFeatures       int           `json:"n_features"`
	FeatureSetPath  string        `json:"feature_set_path,omitempty"`
	ModelPath       string        `json:"model_path,omitempty"`
	Stages          []StageResult `json:"stages"`
}

// ModelComparison is one row of the model comparison table.
type ModelComparison struct {
	Model   string             `json:"model"`
	Metrics map[string]float64 `json:"metrics"`
}

// HeadToHead is the pairwise win probability of two drivers.
type HeadToHead struct {
	DriverA string  `json:"driver_a"`
	DriverB string  `json:"driver_b"`
	ProbA   float64 `json:"driver_a_win_prob"`
	ProbB   float64 `json:"driver_b_win_prob"`
	RatingA float64 `json:"driver_a_rating"`
	RatingB float64 `json:"driver_b_rating"`
}

// Prediction is one test-split row with the model's predicted position.
type Prediction struct {
	Driver    string  `json:"driver"`
	Team      string  `json:"team"`
	Year      int     `json:"year"`
	Round     int     `json:"round"`
	EventName string  `json:"event_name"`
	Actual    float64 `json:"actual"`
	Predicted float64 `json:"predicted"`
}
