package featurestore

import (
	"math"
	"sort"

	"github.com/go-gota/gota/series"

	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/internal/domain/table"
)

// Importance summarizes one numeric feature.
type Importance struct {
	Feature    string  `json:"feature"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	MissingPct float64 `json:"missing_pct"`
	Count      int     `json:"count"`
}

// FeatureImportance reports descriptive statistics for every numeric feature
// of f, skipping the target and DefaultExcludedColumns. Std is the sample
// standard deviation. Results are sorted by feature name.
func FeatureImportance(f *table.Frame, target string) []Importance {
	if target == "" {
		target = race.ColPosition
	}
	cols := FeatureColumns(f, TrainingOptions{Target: target, MetadataColumns: []string{}})
	out := make([]Importance, 0, len(cols))
	for _, c := range cols {
		vals, _ := f.Floats(c)
		s := series.New(vals, series.Float, c)
		var present []int
		for i, missing := range s.IsNaN() {
			if !missing {
				present = append(present, i)
			}
		}
		imp := Importance{Feature: c, Count: len(present)}
		if s.Len() > 0 {
			imp.MissingPct = float64(s.Len()-len(present)) / float64(s.Len()) * 100
		}
		if len(present) == 0 {
			imp.Mean, imp.Std, imp.Min, imp.Max = math.NaN(), math.NaN(), math.NaN(), math.NaN()
			out = append(out, imp)
			continue
		}
		valid := s.Subset(present)
		imp.Mean = valid.Mean()
		imp.Std = valid.StdDev()
		imp.Min = valid.Min()
		imp.Max = valid.Max()
		out = append(out, imp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out
}
