package evaluation

import "math"

// Metric names reported by EvaluatePositionPredictions.
const (
	MetricMAE     = "mae"
	MetricRMSE    = "rmse"
	MetricR2      = "r2"
	MetricTop3    = "top3_accuracy"
	MetricTop5    = "top5_accuracy"
	MetricTop10   = "top10_accuracy"
	MetricPodium  = "podium_accuracy"
	MetricPoints  = "points_accuracy"
	MetricExact   = "exact_accuracy"
	MetricWithin1 = "within_1_accuracy"
	MetricWithin2 = "within_2_accuracy"
	MetricWithin3 = "within_3_accuracy"
	MetricSamples = "n_samples"
)

const (
	podiumCutoff = 3
	pointsCutoff = 10
)

// MetricNames lists every metric in report order.
var MetricNames = []string{
	MetricMAE, MetricRMSE, MetricR2,
	MetricTop3, MetricTop5, MetricTop10,
	MetricPodium, MetricPoints, MetricExact,
	MetricWithin1, MetricWithin2, MetricWithin3,
	MetricSamples,
}

// lowerIsBetter holds the error-style metrics.
var lowerIsBetter = map[string]bool{MetricMAE: true, MetricRMSE: true}

func check(yTrue, yPred []float64) error {
	if len(yTrue) != len(yPred) {
		return ErrLengthMismatch
	}
	if len(yTrue) == 0 {
		return ErrEmptyInput
	}
	return nil
}

// MAE is the mean absolute error.
func MAE(yTrue, yPred []float64) float64 {
	var s float64
	for i := range yTrue {
		s += math.Abs(yPred[i] - yTrue[i])
	}
	return s / float64(len(yTrue))
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred []float64) float64 {
	var s float64
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(yTrue)))
}

// R2 is the coefficient of determination. With constant targets it is 1 for
// a perfect prediction and 0 otherwise.
func R2(yTrue, yPred []float64) float64 {
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))
	var res, tot float64
	for i := range yTrue {
		res += (yTrue[i] - yPred[i]) * (yTrue[i] - yPred[i])
		tot += (yTrue[i] - mean) * (yTrue[i] - mean)
	}
	if tot == 0 {
		if res == 0 {
			return 1
		}
		return 0
	}
	return 1 - res/tot
}

// TopKAccuracy is the share of rows where "predicted within the top k"
// agrees with "finished within the top k".
func TopKAccuracy(yTrue, yPred []float64, k float64) float64 {
	var hit float64
	for i := range yTrue {
		if (yPred[i] <= k) == (yTrue[i] <= k) {
			hit++
		}
	}
	return hit / float64(len(yTrue))
}

// ExactAccuracy is the share of rows whose prediction, rounded half to even,
// equals the true position.
func ExactAccuracy(yTrue, yPred []float64) float64 {
	var hit float64
	for i := range yTrue {
		if math.RoundToEven(yPred[i]) == yTrue[i] {
			hit++
		}
	}
	return hit / float64(len(yTrue))
}

// WithinAccuracy is the share of rows predicted within tol positions.
func WithinAccuracy(yTrue, yPred []float64, tol float64) float64 {
	var hit float64
	for i := range yTrue {
		if math.Abs(yPred[i]-yTrue[i]) <= tol {
			hit++
		}
	}
	return hit / float64(len(yTrue))
}

func compute(yTrue, yPred []float64) Metrics {
	return Metrics{
		MetricMAE:     MAE(yTrue, yPred),
		MetricRMSE:    RMSE(yTrue, yPred),
		MetricR2:      R2(yTrue, yPred),
		MetricTop3:    TopKAccuracy(yTrue, yPred, 3),
		MetricTop5:    TopKAccuracy(yTrue, yPred, 5),
		MetricTop10:   TopKAccuracy(yTrue, yPred, 10),
		MetricPodium:  TopKAccuracy(yTrue, yPred, podiumCutoff),
		MetricPoints:  TopKAccuracy(yTrue, yPred, pointsCutoff),
		MetricExact:   ExactAccuracy(yTrue, yPred),
		MetricWithin1: WithinAccuracy(yTrue, yPred, 1),
		MetricWithin2: WithinAccuracy(yTrue, yPred, 2),
		MetricWithin3: WithinAccuracy(yTrue, yPred, 3),
		MetricSamples: float64(len(yTrue)),
	}
}
