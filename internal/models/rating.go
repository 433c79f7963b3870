package models

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/internal/domain/scoring"
	"github.com/okian/pitwall/internal/domain/table"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// RatingModelName is the name a RatingModel reports.
const RatingModelName = "ELO"

// DefaultUnseenPosition is predicted for drivers the model has never rated.
const DefaultUnseenPosition = 20.0

// RatingOption applies a configuration option to a RatingModel.
type RatingOption func(*RatingModel)

// WithKFactor sets the rating update sensitivity.
func WithKFactor(k float64) RatingOption {
	return func(m *RatingModel) {
		m.elo = scoring.NewElo(scoring.WithKFactor(k))
	}
}

// WithInitialRating sets the rating a driver starts from.
func WithInitialRating(r float64) RatingOption {
	return func(m *RatingModel) {
		m.initial = r
	}
}

// WithUnseenPosition sets the position predicted for unrated drivers.
func WithUnseenPosition(p float64) RatingOption {
	return func(m *RatingModel) {
		m.unseen = p
	}
}

// WithBoard sets the store that mirrors current ratings for rank queries.
func WithBoard(b repository.Store) RatingOption {
	return func(m *RatingModel) {
		if b != nil {
			m.board = b
		}
	}
}

// WithRatingLogger sets the logger.
func WithRatingLogger(lg logger.Logger) RatingOption {
	return func(m *RatingModel) {
		if lg != nil {
			m.logger = lg
		}
	}
}

// HeadToHead is the pairwise win probability between two drivers.
type HeadToHead struct {
	DriverA string  `json:"driver_a"`
	DriverB string  `json:"driver_b"`
	ProbA   float64 `json:"driver_a_win_prob"`
	ProbB   float64 `json:"driver_b_win_prob"`
	RatingA float64 `json:"driver_a_rating"`
	RatingB float64 `json:"driver_b_rating"`
	KnownA  bool    `json:"driver_a_rated"`
	KnownB  bool    `json:"driver_b_rated"`
}

// RatingModel ranks drivers by ELO rating learned from pairwise race
// outcomes.
//
// Within a race every pair is updated in turn and each update sees the
// ratings left by the previous one, so the result depends on the order in
// which pairs are visited. Train visits races chronologically and pairs in
// finishing order.
type RatingModel struct {
	mu      sync.RWMutex
	elo     scoring.Elo
	initial float64
	unseen  float64
	ratings map[string]float64
	history map[string][]float64
	board   repository.Store
	trained bool
	logger  logger.Logger
}

var _ Model = (*RatingModel)(nil)

// NewRatingModel creates an untrained model.
func NewRatingModel(opts ...RatingOption) *RatingModel {
	m := &RatingModel{
		elo:     scoring.NewElo(),
		initial: scoring.DefaultInitialRating,
		unseen:  DefaultUnseenPosition,
		ratings: map[string]float64{},
		history: map[string][]float64{},
		logger:  logger.NamedOrNop("models.elo"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.board == nil {
		m.board = repository.NewBoard(repository.WithMetrics(true))
	}
	return m
}

func (m *RatingModel) Name() string { return RatingModelName }

func (m *RatingModel) RequiredColumns() []string {
	return []string{race.ColDriver, race.ColYear, race.ColEventName, race.ColRound}
}

func (m *RatingModel) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

func (m *RatingModel) Metadata() Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata()
}

// metadata builds the model description. Callers hold the lock.
func (m *RatingModel) metadata() Metadata {
	return Metadata{
		Name:            m.Name(),
		Trained:         m.trained,
		RequiredColumns: m.RequiredColumns(),
		Params: map[string]any{
			"k_factor":        m.elo.K(),
			"initial_rating":  m.initial,
			"unseen_position": m.unseen,
			"n_drivers":       len(m.ratings),
		},
	}
}

// Train updates ratings from the finishing positions y of the rows of x.
// Training again continues from the current ratings.
func (m *RatingModel) Train(ctx context.Context, x *table.Frame, y []float64) error {
	if err := requireColumns(m.Name(), x, m.RequiredColumns()); err != nil {
		return err
	}
	if len(y) != x.Len() {
		return fmt.Errorf("%w: %d targets for %d rows", ErrLengthMismatch, len(y), x.Len())
	}
	start := time.Now()
	order, err := x.SortedPositions(race.ColYear, race.ColRound)
	if err != nil {
		return err
	}
	groups, err := raceGroups(x, order)
	if err != nil {
		return err
	}
	drivers, err := x.Strings(race.ColDriver)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	updates := 0
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		sort.SliceStable(g, func(i, j int) bool { return table.CompareFloat(y[g[i]], y[g[j]]) < 0 })
		for i := 0; i < len(g); i++ {
			for j := i + 1; j < len(g); j++ {
				a, b := drivers[g[i]], drivers[g[j]]
				ra := m.elo.Update(m.rating(a), m.rating(b), scoring.Win)
				if err := m.set(ctx, a, ra); err != nil {
					return err
				}
				rb := m.elo.Update(m.rating(b), ra, scoring.Loss)
				if err := m.set(ctx, b, rb); err != nil {
					return err
				}
				updates += 2
			}
		}
	}
	m.trained = true

	metrics.RecordRatingUpdates(updates)
	m.logger.Info(ctx, "rating model trained",
		logger.Int("races", len(groups)),
		logger.Int("drivers", len(m.ratings)),
		logger.Int("updates", updates),
		logger.Duration("took", time.Since(start)))
	return nil
}

// Predict ranks the rated drivers of each race by rating, best first, as
// positions 1..m. Drivers without a rating get the unseen position. Results
// follow the row order of x.
func (m *RatingModel) Predict(_ context.Context, x *table.Frame) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return nil, ErrNotTrained
	}
	if err := requireColumns(m.Name(), x, m.RequiredColumns()); err != nil {
		return nil, err
	}
	order := make([]int, x.Len())
	for i := range order {
		order[i] = i
	}
	groups, err := raceGroups(x, order)
	if err != nil {
		return nil, err
	}
	drivers, err := x.Strings(race.ColDriver)
	if err != nil {
		return nil, err
	}

	out := make([]float64, x.Len())
	for _, g := range groups {
		seen := make([]int, 0, len(g))
		for _, p := range g {
			if _, ok := m.ratings[drivers[p]]; ok {
				seen = append(seen, p)
			} else {
				out[p] = m.unseen
			}
		}
		sort.SliceStable(seen, func(i, j int) bool {
			return m.ratings[drivers[seen[i]]] > m.ratings[drivers[seen[j]]]
		})
		for rank, p := range seen {
			out[p] = float64(rank + 1)
		}
	}
	return out, nil
}

// CurrentRankings returns every rated driver, best first.
func (m *RatingModel) CurrentRankings(ctx context.Context) ([]repository.Entry, error) {
	n := m.board.Count(ctx)
	if n == 0 {
		return []repository.Entry{}, nil
	}
	return m.board.TopN(ctx, n)
}

// TopN returns the n best rated drivers.
func (m *RatingModel) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	return m.board.TopN(ctx, n)
}

// Rank returns the rank and rating of one driver.
func (m *RatingModel) Rank(ctx context.Context, driver string) (repository.Entry, error) {
	return m.board.Rank(ctx, driver)
}

// RatingHistory returns every rating a driver has held, starting with the
// initial rating.
func (m *RatingModel) RatingHistory(driver string) ([]float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.history[driver]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), h...), true
}

// HeadToHead returns the probability of each driver finishing ahead of the
// other. Unrated drivers count as the initial rating.
func (m *RatingModel) HeadToHead(a, b string) HeadToHead {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ra, okA := m.ratings[a]
	if !okA {
		ra = m.initial
	}
	rb, okB := m.ratings[b]
	if !okB {
		rb = m.initial
	}
	p := scoring.ExpectedScore(ra, rb)
	return HeadToHead{
		DriverA: a, DriverB: b,
		ProbA: p, ProbB: 1 - p,
		RatingA: ra, RatingB: rb,
		KnownA: okA, KnownB: okB,
	}
}

// Ratings returns a copy of the current ratings.
func (m *RatingModel) Ratings() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.ratings))
	for k, v := range m.ratings {
		out[k] = v
	}
	return out
}

// Reset forgets every rating.
func (m *RatingModel) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings = map[string]float64{}
	m.history = map[string][]float64{}
	m.trained = false
	m.board.Reset(ctx)
}

// rating returns the driver's rating, registering the driver at the initial
// rating on first sight. Callers hold the write lock.
func (m *RatingModel) rating(driver string) float64 {
	r, ok := m.ratings[driver]
	if !ok {
		r = m.initial
		m.ratings[driver] = r
		m.history[driver] = []float64{r}
	}
	return r
}

func (m *RatingModel) set(ctx context.Context, driver string, r float64) error {
	m.ratings[driver] = r
	m.history[driver] = append(m.history[driver], r)
	if err := m.board.Set(ctx, driver, r); err != nil {
		return fmt.Errorf("mirror rating of %s: %w", driver, err)
	}
	return nil
}

// raceGroups splits positions into (year, event) groups, listed in order of
// first appearance within positions.
func raceGroups(x *table.Frame, positions []int) ([][]int, error) {
	years, err := x.Floats(race.ColYear)
	if err != nil {
		return nil, err
	}
	events, err := x.Strings(race.ColEventName)
	if err != nil {
		return nil, err
	}
	type key struct {
		year  float64
		event string
	}
	index := map[key]int{}
	var groups [][]int
	for _, p := range positions {
		k := key{years[p], events[p]}
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
