package features

// Engineered column names.
const (
	ColAvgPositionLast3 = "avg_position_last3"
	ColAvgPositionLast5 = "avg_position_last5"
	ColPointsLast3      = "points_last3"
	ColPointsLast5      = "points_last5"
	ColFinishRateLast5  = "finish_rate_last5"
	ColPodiumsLast5     = "podiums_last5"

	ColQualifyingPosition = "qualifying_position"
	ColGridVsQualiDelta   = "grid_vs_quali_delta"

	ColTrackAvgPosition  = "driver_track_avg_position"
	ColTrackBestPosition = "driver_track_best_position"
	ColTrackRaces        = "driver_track_races"

	ColChampionshipPosition = "championship_position"
	ColRaceNumber           = "race_number"

	teamPrefix = "team_"
)

// Form returns the six rolling form columns, prefixed for team form.
func Form(prefix string) []string {
	return []string{
		prefix + ColAvgPositionLast3,
		prefix + ColAvgPositionLast5,
		prefix + ColPointsLast3,
		prefix + ColPointsLast5,
		prefix + ColFinishRateLast5,
		prefix + ColPodiumsLast5,
	}
}

// Engineered returns every column EngineerAll adds, in the order it adds them.
func Engineered() []string {
	out := Form("")
	out = append(out, ColQualifyingPosition, ColGridVsQualiDelta)
	out = append(out, Form(teamPrefix)...)
	return append(out,
		ColTrackAvgPosition, ColTrackBestPosition, ColTrackRaces,
		ColChampionshipPosition, ColRaceNumber)
}
