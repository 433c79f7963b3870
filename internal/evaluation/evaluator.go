// Package evaluation scores position predictions and compares models.
package evaluation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/go-gota/gota/series"

	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Metrics maps metric name to value for one model.
type Metrics map[string]float64

// Comparison is one row of a model comparison table.
type Comparison struct {
	Model   string  `json:"model"`
	Metrics Metrics `json:"metrics"`
}

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(e *Evaluator) {
		if lg != nil {
			e.logger = lg
		}
	}
}

// Evaluator scores predictions and keeps the latest result per model.
type Evaluator struct {
	mu      sync.RWMutex
	results map[string]Metrics
	logger  logger.Logger
}

// NewEvaluator creates an Evaluator with no results.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{results: map[string]Metrics{}, logger: logger.NamedOrNop("evaluation")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluatePositionPredictions scores yPred against yTrue and records the
// result under name, replacing any earlier result for that model.
func (e *Evaluator) EvaluatePositionPredictions(ctx context.Context, yTrue, yPred []float64, name string) (Metrics, error) {
	if err := check(yTrue, yPred); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	m := compute(yTrue, yPred)

	e.mu.Lock()
	e.results[name] = m
	e.mu.Unlock()

	for k, v := range m {
		metrics.UpdateModelMetric(name, k, v)
	}
	e.logger.Info(ctx, "model evaluated",
		logger.String("model", name),
		logger.Float64("mae", m[MetricMAE]),
		logger.Float64("rmse", m[MetricRMSE]),
		logger.Float64("top3_accuracy", m[MetricTop3]),
		logger.Int("samples", len(yTrue)))
	return cloneMetrics(m), nil
}

// EvaluateMultipleModels scores every model's predictions against the same
// targets. Models are evaluated in name order; the first failure stops.
func (e *Evaluator) EvaluateMultipleModels(ctx context.Context, yTrue []float64, preds map[string][]float64) (map[string]Metrics, error) {
	names := make([]string, 0, len(preds))
	for n := range preds {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make(map[string]Metrics, len(preds))
	for _, n := range names {
		m, err := e.EvaluatePositionPredictions(ctx, yTrue, preds[n], n)
		if err != nil {
			return nil, err
		}
		out[n] = m
	}
	return out, nil
}

// CompareModels returns every recorded result ordered by MAE, best first.
func (e *Evaluator) CompareModels() []Comparison {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Comparison, 0, len(e.results))
	for n, m := range e.results {
		out = append(out, Comparison{Model: n, Metrics: cloneMetrics(m)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Metrics[MetricMAE], out[j].Metrics[MetricMAE]
		if a != b {
			return a < b
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// BestModel returns the model with the best value of metric: lowest for mae
// and rmse, highest otherwise.
func (e *Evaluator) BestModel(metric string) (string, float64, error) {
	known := false
	for _, n := range MetricNames {
		if n == metric {
			known = true
			break
		}
	}
	if !known {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.results) == 0 {
		return "", 0, ErrNoResults
	}
	names := make([]string, 0, len(e.results))
	for n := range e.results {
		names = append(names, n)
	}
	sort.Strings(names)

	best, bestVal := "", math.NaN()
	for _, n := range names {
		v := e.results[n][metric]
		switch {
		case best == "":
		case lowerIsBetter[metric] && v < bestVal:
		case !lowerIsBetter[metric] && v > bestVal:
		default:
			continue
		}
		best, bestVal = n, v
	}
	return best, bestVal, nil
}

// Results returns a copy of every recorded result.
func (e *Evaluator) Results() map[string]Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Metrics, len(e.results))
	for n, m := range e.results {
		out[n] = cloneMetrics(m)
	}
	return out
}

// Reset drops every recorded result.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	e.results = map[string]Metrics{}
	e.mu.Unlock()
}

// GroupMetrics is the error of predictions for one band of true positions.
type GroupMetrics struct {
	Group string  `json:"group"`
	Count int     `json:"count"`
	MAE   float64 `json:"mae"`
	RMSE  float64 `json:"rmse"`
}

// EvaluateByPositionGroup reports MAE and RMSE for front (1-5), mid (6-10)
// and back (11+) finishers. Empty groups are omitted.
func EvaluateByPositionGroup(yTrue, yPred []float64) ([]GroupMetrics, error) {
	if err := check(yTrue, yPred); err != nil {
		return nil, err
	}
	bands := []struct {
		name string
		in   func(float64) bool
	}{
		{"front", func(p float64) bool { return p <= 5 }},
		{"mid", func(p float64) bool { return p > 5 && p <= 10 }},
		{"back", func(p float64) bool { return p > 10 }},
	}
	var out []GroupMetrics
	for _, b := range bands {
		var t, p []float64
		for i, v := range yTrue {
			if b.in(v) {
				t = append(t, v)
				p = append(p, yPred[i])
			}
		}
		if len(t) == 0 {
			continue
		}
		out = append(out, GroupMetrics{Group: b.name, Count: len(t), MAE: MAE(t, p), RMSE: RMSE(t, p)})
	}
	return out, nil
}

// Confidence describes the spread of absolute prediction errors.
type Confidence struct {
	MeanError          float64 `json:"mean_error"`
	MedianError        float64 `json:"median_error"`
	StdError           float64 `json:"std_error"`
	MaxError           float64 `json:"max_error"`
	P90Error           float64 `json:"p90_error"`
	PredictionVariance float64 `json:"prediction_variance"`
	Within1            float64 `json:"within_1"`
	Within2            float64 `json:"within_2"`
	Within3            float64 `json:"within_3"`
	Within5            float64 `json:"within_5"`
}

// PredictionConfidence summarizes absolute errors. Std and variance are
// population statistics.
func PredictionConfidence(yTrue, yPred []float64) (Confidence, error) {
	if err := check(yTrue, yPred); err != nil {
		return Confidence{}, err
	}
	errs := make([]float64, len(yTrue))
	for i := range yTrue {
		errs[i] = math.Abs(yPred[i] - yTrue[i])
	}
	s := series.New(errs, series.Float, "abs_error")
	return Confidence{
		MeanError:          s.Mean(),
		MedianError:        s.Median(),
		StdError:           popStd(errs),
		MaxError:           s.Max(),
		P90Error:           s.Quantile(0.9),
		PredictionVariance: popVar(yPred),
		Within1:            WithinAccuracy(yTrue, yPred, 1),
		Within2:            WithinAccuracy(yTrue, yPred, 2),
		Within3:            WithinAccuracy(yTrue, yPred, 3),
		Within5:            WithinAccuracy(yTrue, yPred, 5),
	}, nil
}

// CrossValidation holds per-fold errors over contiguous folds.
type CrossValidation struct {
	MAE      []float64 `json:"mae"`
	RMSE     []float64 `json:"rmse"`
	Top3     []float64 `json:"top3_accuracy"`
	MAEMean  float64   `json:"mae_mean"`
	MAEStd   float64   `json:"mae_std"`
	RMSEMean float64   `json:"rmse_mean"`
	RMSEStd  float64   `json:"rmse_std"`
}

// CrossValidatePerformance splits the samples into folds contiguous equal
// folds, the last one taking the remainder, and scores each.
func CrossValidatePerformance(yTrue, yPred []float64, folds int) (CrossValidation, error) {
	if err := check(yTrue, yPred); err != nil {
		return CrossValidation{}, err
	}
	if folds < 1 || len(yTrue) < folds {
		return CrossValidation{}, fmt.Errorf("%w: %d samples, %d folds", ErrTooFewSamples, len(yTrue), folds)
	}
	size := len(yTrue) / folds
	var cv CrossValidation
	for i := 0; i < folds; i++ {
		start, end := i*size, (i+1)*size
		if i == folds-1 {
			end = len(yTrue)
		}
		t, p := yTrue[start:end], yPred[start:end]
		cv.MAE = append(cv.MAE, MAE(t, p))
		cv.RMSE = append(cv.RMSE, RMSE(t, p))
		cv.Top3 = append(cv.Top3, TopKAccuracy(t, p, 3))
	}
	cv.MAEMean, cv.MAEStd = popMean(cv.MAE), popStd(cv.MAE)
	cv.RMSEMean, cv.RMSEStd = popMean(cv.RMSE), popStd(cv.RMSE)
	return cv, nil
}

func popMean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func popVar(v []float64) float64 {
	m := popMean(v)
	var s float64
	for _, x := range v {
		s += (x - m) * (x - m)
	}
	return s / float64(len(v))
}

func popStd(v []float64) float64 { return math.Sqrt(popVar(v)) }

func cloneMetrics(m Metrics) Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
