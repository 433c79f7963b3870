package race

import "sort"

// DriverStandings sums points per driver over rounds at or before uptoRound
// of the given season.
func DriverStandings(results []Result, year, uptoRound int) []Standing {
	return standings(results, year, uptoRound, func(r Result) string { return r.DriverID })
}

// ConstructorStandings sums points per team over rounds at or before
// uptoRound of the given season.
func ConstructorStandings(results []Result, year, uptoRound int) []Standing {
	return standings(results, year, uptoRound, func(r Result) string { return r.Team })
}

func standings(results []Result, year, uptoRound int, key func(Result) string) []Standing {
	totals := map[string]float64{}
	for _, r := range results {
		if r.Year != year || r.Round > uptoRound {
			continue
		}
		totals[key(r)] += r.Points
	}
	out := make([]Standing, 0, len(totals))
	for k, p := range totals {
		out = append(out, Standing{Key: k, Points: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Key < out[j].Key
	})
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}
