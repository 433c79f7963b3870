// Package features derives per-row model features from race results.
//
// Every step takes a frame and returns a new frame with columns added. Steps
// never reorder or drop rows, so the output lines up row-for-row with the
// results it was built from.
package features

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/pitwall/internal/domain/dedupe"
	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/internal/domain/table"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// DefaultSentinel fills qualifying and championship positions that are unknown.
const DefaultSentinel = 20.0

// Option applies a configuration option to the Engineer.
type Option func(*Engineer)

// WithSentinel sets the position used when a qualifying or championship
// position is unknown.
func WithSentinel(p float64) Option {
	return func(e *Engineer) {
		e.sentinel = p
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(e *Engineer) {
		if lg != nil {
			e.logger = lg
		}
	}
}

// Engineer is the feature engineering stage.
type Engineer struct {
	sentinel float64
	logger   logger.Logger
}

// NewEngineer creates an Engineer.
func NewEngineer(opts ...Option) *Engineer {
	e := &Engineer{sentinel: DefaultSentinel, logger: logger.NamedOrNop("features")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EngineerAll builds the full feature frame from race results and qualifying
// classifications. The result has one row per race result, in input order.
func (e *Engineer) EngineerAll(ctx context.Context, results []race.Result, quali []race.QualifyingResult) (*table.Frame, error) {
	if len(results) == 0 {
		return nil, ErrEmptyFeatureSet
	}
	keys := make([]string, len(results))
	for i, r := range results {
		keys[i] = race.Key(r.Year, r.Round, r.DriverID)
	}
	if dups := dedupe.Duplicates(ctx, keys); len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, strings.Join(dups, ", "))
	}

	start := time.Now()
	f := race.ResultsFrame(results)
	steps := []struct {
		name string
		run  func(*table.Frame) (*table.Frame, error)
	}{
		{"driver_form", e.DriverForm},
		{"qualifying", func(f *table.Frame) (*table.Frame, error) { return e.Qualifying(f, quali) }},
		{"team_form", e.TeamForm},
		{"track_history", e.TrackHistory},
		{"championship", e.ChampionshipPosition},
		{"race_number", e.RaceNumber},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := s.run(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		f = next
	}
	if f.Len() != len(results) {
		return nil, fmt.Errorf("feature rows %d != result rows %d", f.Len(), len(results))
	}

	metrics.UpdateFeatureShape(f.Len(), len(f.Columns()))
	e.logger.Info(ctx, "features engineered",
		logger.Int("rows", f.Len()),
		logger.Int("columns", len(f.Columns())),
		logger.Int("qualifying_rows", len(quali)),
		logger.Duration("took", time.Since(start)))
	return f, nil
}

// DriverForm adds rolling form statistics per driver.
func (e *Engineer) DriverForm(f *table.Frame) (*table.Frame, error) {
	return form(f, race.ColDriver, "")
}

// TeamForm adds the same rolling statistics per team. Windows count result
// rows, so a two-car team's last-3 window spans its last three classified
// cars rather than its last three races.
func (e *Engineer) TeamForm(f *table.Frame) (*table.Frame, error) {
	return form(f, race.ColTeam, teamPrefix)
}

// Qualifying joins qualifying positions on (year, event, driver). The first
// matching qualifying row wins; rows without one get the sentinel.
func (e *Engineer) Qualifying(f *table.Frame, quali []race.QualifyingResult) (*table.Frame, error) {
	years, err := f.Floats(race.ColYear)
	if err != nil {
		return nil, err
	}
	events, err := f.Strings(race.ColEventName)
	if err != nil {
		return nil, err
	}
	drivers, err := f.Strings(race.ColDriver)
	if err != nil {
		return nil, err
	}
	grid, err := f.Floats(race.ColGrid)
	if err != nil {
		return nil, err
	}

	lookup := make(map[string]float64, len(quali))
	for _, q := range quali {
		k := joinKey(float64(q.Year), q.EventName, q.DriverID)
		if _, ok := lookup[k]; !ok {
			lookup[k] = q.Position
		}
	}

	qpos := make([]float64, f.Len())
	delta := make([]float64, f.Len())
	for i := range qpos {
		p, ok := lookup[joinKey(years[i], events[i], drivers[i])]
		if !ok || math.IsNaN(p) {
			p = e.sentinel
		}
		qpos[i] = p
		delta[i] = grid[i] - p
	}
	if f, err = f.WithFloats(ColQualifyingPosition, qpos); err != nil {
		return nil, err
	}
	return f.WithFloats(ColGridVsQualiDelta, delta)
}

// TrackHistory adds, per driver and event, the mean and best finishing
// position over strictly earlier visits and the number of those visits. A
// first visit has NaN mean and best.
func (e *Engineer) TrackHistory(f *table.Frame) (*table.Frame, error) {
	groups, err := chronoGroups(f, race.ColDriver, race.ColEventName)
	if err != nil {
		return nil, err
	}
	pos, err := f.Floats(race.ColPosition)
	if err != nil {
		return nil, err
	}
	n := f.Len()
	avg, best, visits := nanSlice(n), nanSlice(n), make([]float64, n)
	for _, g := range groups {
		var sum, count float64
		lo := math.NaN()
		for j, p := range g {
			visits[p] = float64(j)
			if count > 0 {
				avg[p] = sum / count
				best[p] = lo
			}
			if v := pos[p]; !math.IsNaN(v) {
				sum += v
				count++
				if math.IsNaN(lo) || v < lo {
					lo = v
				}
			}
		}
	}
	if f, err = f.WithFloats(ColTrackAvgPosition, avg); err != nil {
		return nil, err
	}
	if f, err = f.WithFloats(ColTrackBestPosition, best); err != nil {
		return nil, err
	}
	return f.WithFloats(ColTrackRaces, visits)
}

// ChampionshipPosition adds each driver's championship position going into
// the race: points from strictly earlier rounds of the same season, ties
// broken by driver id. Drivers without an earlier result, and every driver at
// a season's first round, get the sentinel.
func (e *Engineer) ChampionshipPosition(f *table.Frame) (*table.Frame, error) {
	order, err := f.SortedPositions(race.ColYear, race.ColRound)
	if err != nil {
		return nil, err
	}
	years, _ := f.Floats(race.ColYear)
	rounds, _ := f.Floats(race.ColRound)
	drivers, err := f.Strings(race.ColDriver)
	if err != nil {
		return nil, err
	}
	points, err := f.Floats(race.ColPoints)
	if err != nil {
		return nil, err
	}

	out := make([]float64, f.Len())
	var totals map[string]float64
	for i := 0; i < len(order); {
		y, r := years[order[i]], rounds[order[i]]
		j := i
		for j < len(order) && years[order[j]] == y && rounds[order[j]] == r {
			j++
		}
		if i == 0 || years[order[i-1]] != y {
			totals = map[string]float64{}
		}
		ranks := rankTotals(totals)
		for _, p := range order[i:j] {
			if rank, ok := ranks[drivers[p]]; ok {
				out[p] = float64(rank)
			} else {
				out[p] = e.sentinel
			}
		}
		for _, p := range order[i:j] {
			pts := points[p]
			if math.IsNaN(pts) {
				pts = 0
			}
			totals[drivers[p]] += pts
		}
		i = j
	}
	return f.WithFloats(ColChampionshipPosition, out)
}

// RaceNumber adds the round number as a feature.
func (e *Engineer) RaceNumber(f *table.Frame) (*table.Frame, error) {
	rounds, err := f.Floats(race.ColRound)
	if err != nil {
		return nil, err
	}
	return f.WithFloats(ColRaceNumber, rounds)
}

func form(f *table.Frame, by, prefix string) (*table.Frame, error) {
	groups, err := chronoGroups(f, by)
	if err != nil {
		return nil, err
	}
	pos, err := f.Floats(race.ColPosition)
	if err != nil {
		return nil, err
	}
	pts, err := f.Floats(race.ColPoints)
	if err != nil {
		return nil, err
	}
	status, err := f.Strings(race.ColStatus)
	if err != nil {
		return nil, err
	}

	n := f.Len()
	cols := make([][]float64, 6)
	for i := range cols {
		cols[i] = make([]float64, n)
	}
	for _, g := range groups {
		p, s := gather(pos, g), gather(pts, g)
		finished, podium := make([]float64, len(g)), make([]float64, len(g))
		for j, row := range g {
			if race.IsFinished(status[row]) {
				finished[j] = 1
			}
			if p[j] <= 3 {
				podium[j] = 1
			}
		}
		scatter(cols[0], g, rolling(p, 3, mean))
		scatter(cols[1], g, rolling(p, 5, mean))
		scatter(cols[2], g, rolling(s, 3, sum))
		scatter(cols[3], g, rolling(s, 5, sum))
		scatter(cols[4], g, rolling(finished, 5, mean))
		scatter(cols[5], g, rolling(podium, 5, sum))
	}
	for i, name := range Form(prefix) {
		if f, err = f.WithFloats(name, cols[i]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// chronoGroups returns the row positions of each distinct combination of the
// key columns, each group in (year, round) order. Groups are listed in order
// of first chronological appearance.
func chronoGroups(f *table.Frame, keyCols ...string) ([][]int, error) {
	order, err := f.SortedPositions(race.ColYear, race.ColRound)
	if err != nil {
		return nil, err
	}
	keys := make([][]string, len(keyCols))
	for i, c := range keyCols {
		if keys[i], err = f.Strings(c); err != nil {
			return nil, err
		}
	}
	index := map[string]int{}
	var groups [][]int
	parts := make([]string, len(keyCols))
	for _, p := range order {
		for i := range keys {
			parts[i] = keys[i][p]
		}
		k := strings.Join(parts, "\x00")
		g, ok := index[k]
		if !ok {
			g = len(groups)
			index[k] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], p)
	}
	return groups, nil
}

type reducer func(vals []float64) float64

// rolling applies fn over trailing windows of up to w values ending at each
// index. NaN values are ignored; a window with no values yields NaN.
func rolling(vals []float64, w int, fn reducer) []float64 {
	out := make([]float64, len(vals))
	buf := make([]float64, 0, w)
	for i := range vals {
		buf = buf[:0]
		for j := max(0, i-w+1); j <= i; j++ {
			if !math.IsNaN(vals[j]) {
				buf = append(buf, vals[j])
			}
		}
		if len(buf) == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(buf)
	}
	return out
}

func sum(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func mean(vals []float64) float64 { return sum(vals) / float64(len(vals)) }

func rankTotals(totals map[string]float64) map[string]int {
	drivers := make([]string, 0, len(totals))
	for d := range totals {
		drivers = append(drivers, d)
	}
	sort.Slice(drivers, func(i, j int) bool {
		if totals[drivers[i]] != totals[drivers[j]] {
			return totals[drivers[i]] > totals[drivers[j]]
		}
		return drivers[i] < drivers[j]
	})
	ranks := make(map[string]int, len(drivers))
	for i, d := range drivers {
		ranks[d] = i + 1
	}
	return ranks
}

func gather(vals []float64, positions []int) []float64 {
	out := make([]float64, len(positions))
	for i, p := range positions {
		out[i] = vals[p]
	}
	return out
}

func scatter(dst []float64, positions []int, vals []float64) {
	for i, p := range positions {
		dst[p] = vals[i]
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func joinKey(year float64, event, driver string) string {
	return fmt.Sprintf("%g\x00%s\x00%s", year, event, driver)
}
