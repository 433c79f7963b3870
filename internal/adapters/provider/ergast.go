// Package provider implements race result providers: an Ergast-compatible
// HTTP client, a fixed in-memory provider, and a synthetic season generator.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

const (
	defaultBaseURL          = "https://api.jolpi.ca/ergast/f1"
	defaultTimeout          = 10 * time.Second
	defaultRatePerSec       = 4
	defaultBreakerThreshold = 5
	breakerName             = "ergast"
	pageLimit               = 100
)

// Ergast fetches schedules and results from an Ergast-compatible JSON API.
type Ergast struct {
	baseURL          string
	http             *http.Client
	timeout          time.Duration
	ratePerSec       float64
	burst            int
	limiter          *rate.Limiter
	breaker          *gobreaker.CircuitBreaker[[]byte]
	breakerThreshold uint32
	cache            Cache
	cacheTTL         time.Duration
	logger           logger.Logger
}

// NewErgast creates a client with the given options.
func NewErgast(opts ...Option) *Ergast {
	c := &Ergast{
		baseURL:          defaultBaseURL,
		timeout:          defaultTimeout,
		ratePerSec:       defaultRatePerSec,
		burst:            1,
		breakerThreshold: defaultBreakerThreshold,
		logger:           logger.NamedOrNop("provider"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	c.limiter = rate.NewLimiter(rate.Limit(c.ratePerSec), c.burst)

	threshold := c.breakerThreshold
	metrics.UpdateCircuitBreakerState(breakerName, int(gobreaker.StateClosed))
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a missing event is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, race.ErrDataUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn(context.Background(), "circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
			metrics.UpdateCircuitBreakerState(name, int(to))
		},
	})
	return c
}

// Schedule returns the season calendar. Sprint weekends carry
// race.FormatSprint.
func (c *Ergast) Schedule(ctx context.Context, year int) ([]race.Event, error) {
	var resp mrData
	if err := c.getJSON(ctx, "schedule", fmt.Sprintf("/%d.json?limit=%d", year, pageLimit), &resp); err != nil {
		return nil, err
	}
	races := resp.MRData.RaceTable.Races
	if len(races) == 0 {
		return nil, fmt.Errorf("%w: no schedule for %d", race.ErrDataUnavailable, year)
	}
	out := make([]race.Event, 0, len(races))
	for _, r := range races {
		ev := r.event()
		if ev.Year == 0 {
			ev.Year = year
		}
		out = append(out, ev)
	}
	return out, nil
}

// RaceResults returns the classified results of one event.
func (c *Ergast) RaceResults(ctx context.Context, ev race.Event) ([]race.Result, error) {
	var resp mrData
	path := fmt.Sprintf("/%d/%d/results.json?limit=%d", ev.Year, ev.Round, pageLimit)
	if err := c.getJSON(ctx, "results", path, &resp); err != nil {
		return nil, err
	}
	races := resp.MRData.RaceTable.Races
	if len(races) == 0 || len(races[0].Results) == 0 {
		return nil, fmt.Errorf("%w: no results for %d round %d", race.ErrDataUnavailable, ev.Year, ev.Round)
	}
	name := ev.Name
	if name == "" {
		name = races[0].RaceName
	}
	country := ev.Country
	if country == "" {
		country = races[0].Circuit.Location.Country
	}
	out := make([]race.Result, 0, len(races[0].Results))
	for _, r := range races[0].Results {
		out = append(out, race.Result{
			Year:         ev.Year,
			Round:        ev.Round,
			EventName:    name,
			Country:      country,
			DriverID:     r.Driver.id(),
			DriverNumber: r.Number,
			FullName:     strings.TrimSpace(r.Driver.GivenName + " " + r.Driver.FamilyName),
			Team:         r.Constructor.Name,
			Position:     parseFloat(r.Position),
			GridPosition: parseFloat(r.Grid),
			Points:       parseFloat(r.Points),
			Status:       r.Status,
		})
	}
	return out, nil
}

// QualifyingResults returns the qualifying classification of one event.
func (c *Ergast) QualifyingResults(ctx context.Context, ev race.Event) ([]race.QualifyingResult, error) {
	var resp mrData
	path := fmt.Sprintf("/%d/%d/qualifying.json?limit=%d", ev.Year, ev.Round, pageLimit)
	if err := c.getJSON(ctx, "qualifying", path, &resp); err != nil {
		return nil, err
	}
	races := resp.MRData.RaceTable.Races
	if len(races) == 0 || len(races[0].QualifyingResults) == 0 {
		return nil, fmt.Errorf("%w: no qualifying for %d round %d", race.ErrDataUnavailable, ev.Year, ev.Round)
	}
	name := ev.Name
	if name == "" {
		name = races[0].RaceName
	}
	out := make([]race.QualifyingResult, 0, len(races[0].QualifyingResults))
	for _, q := range races[0].QualifyingResults {
		out = append(out, race.QualifyingResult{
			Year:      ev.Year,
			Round:     ev.Round,
			EventName: name,
			DriverID:  q.Driver.id(),
			Position:  parseFloat(q.Position),
		})
	}
	return out, nil
}

func (c *Ergast) getJSON(ctx context.Context, endpoint, path string, v any) error {
	body, err := c.get(ctx, endpoint, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	return nil
}

func (c *Ergast) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	url := c.baseURL + path
	if c.cache != nil {
		b, ok, err := c.cache.Get(url)
		switch {
		case err != nil:
			c.logger.Warn(ctx, "provider cache read failed", logger.String("url", url), logger.Error(err))
		case ok:
			metrics.RecordProviderCache("hit")
			return b, nil
		default:
			metrics.RecordProviderCache("miss")
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, url)
	})
	ms := float64(time.Since(start).Milliseconds())
	switch {
	case err == nil:
		metrics.RecordProviderRequest(endpoint, "success", ms)
	case errors.Is(err, race.ErrDataUnavailable):
		metrics.RecordProviderRequest(endpoint, "not_found", ms)
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordProviderRequest(endpoint, "rejected", ms)
		return nil, fmt.Errorf("%s: %w", url, err)
	default:
		metrics.RecordProviderRequest(endpoint, "failure", ms)
		metrics.RecordErrorByComponent("provider", endpoint)
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(url, body, c.cacheTTL); err != nil {
			c.logger.Warn(ctx, "provider cache write failed", logger.String("url", url), logger.Error(err))
		}
	}
	return body, nil
}

func (c *Ergast) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", race.ErrDataUnavailable, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s: %d", ErrUnexpectedStatus, url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
