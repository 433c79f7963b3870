package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/pitwall/internal/domain/race"
)

type eventKey struct {
	year, round int
}

// MemoryOption applies a configuration option to a Memory provider.
type MemoryOption func(*Memory)

// WithEventError makes every fetch for the given event fail with err.
func WithEventError(year, round int, err error) MemoryOption {
	return func(m *Memory) {
		m.failing[eventKey{year, round}] = err
	}
}

// WithEventFormat sets the weekend format reported for an event.
func WithEventFormat(year, round int, format string) MemoryOption {
	return func(m *Memory) {
		m.formats[eventKey{year, round}] = format
	}
}

// Memory serves a fixed set of rows. The schedule is derived from the rows.
type Memory struct {
	events  map[int][]race.Event
	results map[eventKey][]race.Result
	quali   map[eventKey][]race.QualifyingResult
	failing map[eventKey]error
	formats map[eventKey]string
}

// NewMemory indexes results and qualifying rows by event.
func NewMemory(results []race.Result, quali []race.QualifyingResult, opts ...MemoryOption) *Memory {
	m := &Memory{
		events:  map[int][]race.Event{},
		results: map[eventKey][]race.Result{},
		quali:   map[eventKey][]race.QualifyingResult{},
		failing: map[eventKey]error{},
		formats: map[eventKey]string{},
	}
	for _, opt := range opts {
		opt(m)
	}

	seen := map[eventKey]bool{}
	addEvent := func(ev race.Event) {
		k := eventKey{ev.Year, ev.Round}
		if seen[k] {
			return
		}
		seen[k] = true
		ev.Format = race.FormatConventional
		if f, ok := m.formats[k]; ok {
			ev.Format = f
		}
		m.events[ev.Year] = append(m.events[ev.Year], ev)
	}
	for _, r := range results {
		k := eventKey{r.Year, r.Round}
		m.results[k] = append(m.results[k], r)
		addEvent(race.Event{Year: r.Year, Round: r.Round, Name: r.EventName, Country: r.Country})
	}
	for _, q := range quali {
		k := eventKey{q.Year, q.Round}
		m.quali[k] = append(m.quali[k], q)
		addEvent(race.Event{Year: q.Year, Round: q.Round, Name: q.EventName})
	}
	for y := range m.events {
		evs := m.events[y]
		sort.Slice(evs, func(i, j int) bool { return evs[i].Round < evs[j].Round })
	}
	return m
}

func (m *Memory) Schedule(_ context.Context, year int) ([]race.Event, error) {
	evs, ok := m.events[year]
	if !ok {
		return nil, fmt.Errorf("%w: no schedule for %d", race.ErrDataUnavailable, year)
	}
	return append([]race.Event(nil), evs...), nil
}

func (m *Memory) RaceResults(_ context.Context, ev race.Event) ([]race.Result, error) {
	k := eventKey{ev.Year, ev.Round}
	if err, ok := m.failing[k]; ok {
		return nil, err
	}
	rows, ok := m.results[k]
	if !ok {
		return nil, fmt.Errorf("%w: no results for %d round %d", race.ErrDataUnavailable, ev.Year, ev.Round)
	}
	return append([]race.Result(nil), rows...), nil
}

func (m *Memory) QualifyingResults(_ context.Context, ev race.Event) ([]race.QualifyingResult, error) {
	k := eventKey{ev.Year, ev.Round}
	if err, ok := m.failing[k]; ok {
		return nil, err
	}
	rows, ok := m.quali[k]
	if !ok {
		return nil, fmt.Errorf("%w: no qualifying for %d round %d", race.ErrDataUnavailable, ev.Year, ev.Round)
	}
	return append([]race.QualifyingResult(nil), rows...), nil
}
