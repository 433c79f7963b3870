package featurestore

import (
	"fmt"
	"slices"

	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/internal/domain/table"
)

// DefaultExcludedColumns never become model features.
var DefaultExcludedColumns = []string{
	race.ColYear, race.ColRound, race.ColEventName, race.ColDriver,
	race.ColTeam, race.ColDriverNumber, race.ColPoints,
}

// DefaultMetadataColumns travel alongside X as identifiers.
var DefaultMetadataColumns = []string{
	race.ColDriver, race.ColYear, race.ColEventName, race.ColRound, race.ColTeam,
}

// DefaultTestSize is the fraction of rows held out for testing.
const DefaultTestSize = 0.2

// TrainingOptions controls PrepareTrainingData. Zero values select the
// defaults: target position, DefaultMetadataColumns.
type TrainingOptions struct {
	Target          string
	TestSize        float64
	MetadataColumns []string
	ExcludeColumns  []string
}

// DefaultTrainingOptions returns options predicting position with a 20% test
// split.
func DefaultTrainingOptions() TrainingOptions {
	return TrainingOptions{
		Target:          race.ColPosition,
		TestSize:        DefaultTestSize,
		MetadataColumns: DefaultMetadataColumns,
	}
}

// Split is a chronological train/test split. Each meta frame carries the
// same row keys, in the same order, as its X frame.
type Split struct {
	XTrain, XTest       *table.Frame
	YTrain, YTest       []float64
	MetaTrain, MetaTest *table.Frame
	FeatureColumns      []string
}

// PrepareTrainingData selects numeric features, drops incomplete rows,
// orders the rest by (year, round) and splits them without cutting a race in
// two.
func PrepareTrainingData(f *table.Frame, opts TrainingOptions) (*Split, error) {
	if opts.TestSize <= 0 || opts.TestSize >= 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTestSize, opts.TestSize)
	}
	if opts.Target == "" {
		opts.Target = race.ColPosition
	}
	if opts.MetadataColumns == nil {
		opts.MetadataColumns = DefaultMetadataColumns
	}
	if f == nil || f.Len() == 0 {
		return nil, ErrEmptyTrainingData
	}
	if k, ok := f.Kind(opts.Target); !ok || k != table.Float {
		return nil, fmt.Errorf("%w: target %s", ErrColumnNotFound, opts.Target)
	}
	for _, c := range append([]string{race.ColYear, race.ColRound}, opts.MetadataColumns...) {
		if !f.Has(c) {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, c)
		}
	}

	features := FeatureColumns(f, opts)
	complete, err := f.CompletePositions(append(slices.Clone(features), opts.Target)...)
	if err != nil {
		return nil, err
	}
	if len(complete) == 0 {
		return nil, fmt.Errorf("%w: every row has a missing value", ErrEmptyTrainingData)
	}
	clean := f.Take(complete)
	order, err := clean.SortedPositions(race.ColYear, race.ColRound)
	if err != nil {
		return nil, err
	}
	sorted := clean.Take(order).Reindex()

	n := sorted.Len()
	years, _ := sorted.Floats(race.ColYear)
	rounds, _ := sorted.Floats(race.ColRound)
	boundary := raceBoundary(years, rounds, int(float64(n)*(1-opts.TestSize)))
	if boundary <= 0 {
		return nil, fmt.Errorf("%w: training split is empty for %d rows", ErrEmptyTrainingData, n)
	}

	x, err := sorted.Select(features...)
	if err != nil {
		return nil, err
	}
	meta, err := sorted.Select(opts.MetadataColumns...)
	if err != nil {
		return nil, err
	}
	y, _ := sorted.Floats(opts.Target)

	train, test := span(0, boundary), span(boundary, n)
	return &Split{
		XTrain:         x.Take(train),
		XTest:          x.Take(test),
		YTrain:         y[:boundary],
		YTest:          y[boundary:],
		MetaTrain:      meta.Take(train),
		MetaTest:       meta.Take(test),
		FeatureColumns: features,
	}, nil
}

// FeatureColumns returns the numeric columns of f that PrepareTrainingData
// would use as features.
func FeatureColumns(f *table.Frame, opts TrainingOptions) []string {
	skip := map[string]bool{opts.Target: true}
	for _, group := range [][]string{DefaultExcludedColumns, opts.MetadataColumns, opts.ExcludeColumns} {
		for _, c := range group {
			skip[c] = true
		}
	}
	var out []string
	for _, c := range f.NumericColumns() {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}

// raceBoundary moves b off the middle of a race: forward to the end of the
// race, or back to its start when forward would leave no test rows. A move
// back that would leave no training rows keeps b.
func raceBoundary(years, rounds []float64, b int) int {
	n := len(years)
	if b <= 0 || b >= n {
		return b
	}
	same := func(i, j int) bool { return years[i] == years[j] && rounds[i] == rounds[j] }
	if !same(b-1, b) {
		return b
	}
	end := b
	for end < n && same(end, b) {
		end++
	}
	if end < n {
		return end
	}
	start := b
	for start > 0 && same(start-1, b) {
		start--
	}
	if start == 0 {
		return b
	}
	return start
}

func span(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
