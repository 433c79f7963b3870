// Package ingest loads season race and qualifying results from a Provider.
//
// Failures are absorbed per event: an event that cannot be loaded is logged
// and skipped, and a season only fails when none of its events loaded.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pitwall/internal/domain/dedupe"
	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Provider yields a season schedule and per-event result tables.
type Provider interface {
	Schedule(ctx context.Context, year int) ([]race.Event, error)
	RaceResults(ctx context.Context, ev race.Event) ([]race.Result, error)
	QualifyingResults(ctx context.Context, ev race.Event) ([]race.QualifyingResult, error)
}

// SkippedEvent names an event that was not loaded and why.
type SkippedEvent struct {
	Round  int
	Name   string
	Reason string
}

// SeasonLoad reports how much of one season was loaded.
type SeasonLoad struct {
	Year            int
	EventsRequested int
	EventsLoaded    int
	Filtered        int
	Skipped         []SkippedEvent
}

// Partial reports whether fewer events loaded than were requested.
func (s SeasonLoad) Partial() bool { return s.EventsLoaded < s.EventsRequested }

// Dataset is the combined output of a multi-season load.
type Dataset struct {
	Races      []race.Result
	Qualifying []race.QualifyingResult
	Seasons    []SeasonLoad
}

// Option applies a configuration option to the Loader.
type Option func(*Loader)

// WithFilter sets the schedule filter. nil keeps every event.
func WithFilter(f *EventFilter) Option {
	return func(l *Loader) {
		l.filter = f
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loader) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// Loader is the data ingestion stage.
type Loader struct {
	provider Provider
	filter   *EventFilter
	logger   logger.Logger
}

// NewLoader creates a Loader over p.
func NewLoader(p Provider, opts ...Option) *Loader {
	l := &Loader{provider: p, logger: logger.NamedOrNop("ingest")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadSeasonResults loads race results for every selected event of year.
func (l *Loader) LoadSeasonResults(ctx context.Context, year int) ([]race.Result, SeasonLoad, error) {
	events, load, err := l.schedule(ctx, year)
	if err != nil {
		return nil, load, err
	}
	guard := dedupe.NewKeyGuard()
	var out []race.Result
	for _, ev := range events {
		rows, err := l.provider.RaceResults(ctx, ev)
		if err == nil && len(rows) == 0 {
			err = fmt.Errorf("%w: empty result table", race.ErrDataUnavailable)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, load, ctxErr
			}
			l.skip(ctx, &load, ev, "results", err)
			continue
		}
		for _, r := range rows {
			// the schedule is authoritative for event identity
			r.Year, r.Round = ev.Year, ev.Round
			if r.EventName == "" {
				r.EventName = ev.Name
			}
			if r.Country == "" {
				r.Country = ev.Country
			}
			if guard.SeenAndRecord(ctx, race.Key(r.Year, r.Round, r.DriverID)) {
				metrics.RecordDuplicateRow()
				l.logger.Warn(ctx, "duplicate result row dropped",
					logger.Int("year", r.Year), logger.Int("round", r.Round), logger.String("driver", r.DriverID))
				continue
			}
			out = append(out, r)
		}
		load.EventsLoaded++
		metrics.RecordEventLoaded()
	}
	l.report(ctx, "race results", load)
	if load.EventsLoaded == 0 {
		return nil, load, fmt.Errorf("%w: season %d: none of %d events loaded", race.ErrDataUnavailable, year, load.EventsRequested)
	}
	return out, load, nil
}

// LoadQualifyingResults loads qualifying classifications for every selected
// event of year.
func (l *Loader) LoadQualifyingResults(ctx context.Context, year int) ([]race.QualifyingResult, SeasonLoad, error) {
	events, load, err := l.schedule(ctx, year)
	if err != nil {
		return nil, load, err
	}
	guard := dedupe.NewKeyGuard()
	var out []race.QualifyingResult
	for _, ev := range events {
		rows, err := l.provider.QualifyingResults(ctx, ev)
		if err == nil && len(rows) == 0 {
			err = fmt.Errorf("%w: empty qualifying table", race.ErrDataUnavailable)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, load, ctxErr
			}
			l.skip(ctx, &load, ev, "qualifying", err)
			continue
		}
		for _, q := range rows {
			q.Year, q.Round = ev.Year, ev.Round
			if q.EventName == "" {
				q.EventName = ev.Name
			}
			if guard.SeenAndRecord(ctx, race.Key(q.Year, q.Round, q.DriverID)) {
				continue
			}
			out = append(out, q)
		}
		load.EventsLoaded++
	}
	l.report(ctx, "qualifying", load)
	if load.EventsLoaded == 0 {
		return nil, load, fmt.Errorf("%w: season %d qualifying: none of %d events loaded", race.ErrDataUnavailable, year, load.EventsRequested)
	}
	return out, load, nil
}

// LoadMultiSeasonData loads race and qualifying results for each year.
// Seasons without race data are dropped; it fails only when every season
// came back empty. Missing qualifying data never fails a season.
func (l *Loader) LoadMultiSeasonData(ctx context.Context, years []int) (*Dataset, error) {
	if len(years) == 0 {
		return nil, ErrNoSeasons
	}
	ds := &Dataset{}
	for _, year := range years {
		start := time.Now()
		races, load, err := l.LoadSeasonResults(ctx, year)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			ds.Seasons = append(ds.Seasons, load)
			l.logger.Warn(ctx, "season skipped", logger.Int("year", year), logger.Error(err))
			continue
		}
		ds.Seasons = append(ds.Seasons, load)
		ds.Races = append(ds.Races, races...)

		quali, _, err := l.LoadQualifyingResults(ctx, year)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn(ctx, "season qualifying unavailable", logger.Int("year", year), logger.Error(err))
		}
		ds.Qualifying = append(ds.Qualifying, quali...)

		l.logger.Info(ctx, "season loaded",
			logger.Int("year", year),
			logger.Int("races", len(races)),
			logger.Int("qualifying", len(quali)),
			logger.Duration("took", time.Since(start)))
	}
	if len(ds.Races) == 0 {
		return ds, fmt.Errorf("%w: no race data for seasons %v", race.ErrDataUnavailable, years)
	}
	metrics.UpdateRaceRows(len(ds.Races))
	return ds, nil
}

// DriverStandings returns the drivers' championship after uptoRound.
func (l *Loader) DriverStandings(ctx context.Context, year, uptoRound int) ([]race.Standing, error) {
	results, err := l.resultsUpTo(ctx, year, uptoRound)
	if err != nil {
		return nil, err
	}
	return race.DriverStandings(results, year, uptoRound), nil
}

// ConstructorStandings returns the constructors' championship after uptoRound.
func (l *Loader) ConstructorStandings(ctx context.Context, year, uptoRound int) ([]race.Standing, error) {
	results, err := l.resultsUpTo(ctx, year, uptoRound)
	if err != nil {
		return nil, err
	}
	return race.ConstructorStandings(results, year, uptoRound), nil
}

func (l *Loader) resultsUpTo(ctx context.Context, year, uptoRound int) ([]race.Result, error) {
	events, _, err := l.schedule(ctx, year)
	if err != nil {
		return nil, err
	}
	var out []race.Result
	loaded := 0
	for _, ev := range events {
		if ev.Round > uptoRound {
			continue
		}
		rows, err := l.provider.RaceResults(ctx, ev)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn(ctx, "standings event skipped",
				logger.Int("year", year), logger.Int("round", ev.Round), logger.Error(err))
			continue
		}
		for _, r := range rows {
			r.Year, r.Round = ev.Year, ev.Round
			out = append(out, r)
		}
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("%w: no results for %d up to round %d", race.ErrDataUnavailable, year, uptoRound)
	}
	return out, nil
}

func (l *Loader) schedule(ctx context.Context, year int) ([]race.Event, SeasonLoad, error) {
	load := SeasonLoad{Year: year}
	events, err := l.provider.Schedule(ctx, year)
	if err != nil {
		if errors.Is(err, race.ErrDataUnavailable) {
			return nil, load, err
		}
		return nil, load, fmt.Errorf("%w: schedule %d: %w", race.ErrDataUnavailable, year, err)
	}
	kept := make([]race.Event, 0, len(events))
	for _, ev := range events {
		ok, err := l.filter.Keep(ev)
		if err != nil {
			return nil, load, err
		}
		if !ok {
			load.Filtered++
			metrics.RecordEventSkipped("filtered")
			continue
		}
		kept = append(kept, ev)
	}
	load.EventsRequested = len(kept)
	return kept, load, nil
}

func (l *Loader) skip(ctx context.Context, load *SeasonLoad, ev race.Event, what string, err error) {
	reason := "error"
	if errors.Is(err, race.ErrDataUnavailable) {
		reason = "unavailable"
	}
	metrics.RecordEventSkipped(reason)
	load.Skipped = append(load.Skipped, SkippedEvent{Round: ev.Round, Name: ev.Name, Reason: err.Error()})
	l.logger.Warn(ctx, "event skipped",
		logger.String("data", what),
		logger.Int("year", ev.Year),
		logger.Int("round", ev.Round),
		logger.String("event", ev.Name),
		logger.Error(err))
}

func (l *Loader) report(ctx context.Context, what string, load SeasonLoad) {
	if !load.Partial() {
		return
	}
	l.logger.Warn(ctx, "fewer events loaded than requested",
		logger.String("data", what),
		logger.Int("year", load.Year),
		logger.Int("requested", load.EventsRequested),
		logger.Int("loaded", load.EventsLoaded))
}
