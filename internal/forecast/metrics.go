// internal/forecast/metrics.go
package forecast

import (
	"math"

	"github.com/stockwise/forecast-engine/internal/model"
	"github.com/stockwise/forecast-engine/internal/stat"
)

// evaluate computes MAE, RMSE and R^2 for predictions against actuals.
// A zero-variance actual series has an undefined R^2; report 0.
func evaluate(actual, predicted []float64) (mae, rmse, r2 float64) {
	n := len(actual)
	if n == 0 {
		return 0, 0, 0
	}

	mean := stat.Mean(actual)
	var absSum, sqSum, sst float64
	for i := range actual {
		d := predicted[i] - actual[i]
		absSum += math.Abs(d)
		sqSum += d * d
		dm := actual[i] - mean
		sst += dm * dm
	}

	mae = absSum / float64(n)
	rmse = math.Sqrt(sqSum / float64(n))
	if sst > 0 {
		r2 = 1 - sqSum/sst
	}
	return mae, rmse, r2
}

// residualStd is the sample standard deviation of hold-out residuals,
// the basis of the confidence intervals.
func residualStd(actual, predicted []float64) float64 {
	residuals := make([]float64, len(actual))
	for i := range actual {
		residuals[i] = actual[i] - predicted[i]
	}
	return stat.Std(residuals)
}

// cvOutcome is one model kind's chronological cross-validation result,
// plus the per-row predictions so the ensemble's CV error can be combined
// without retraining members per fold.
type cvOutcome struct {
	mae       float64
	std       float64
	foldMAEs  []float64
	foldSizes []int
	// predictions aligned with the rows each fold scored
	predicted []float64
	actual    []float64
}

// crossValidate runs expanding-window chronological folds: fold i trains
// on rows [0, foldSize*(i+1)) and scores the next segment. Random k-fold
// would leak future rows into training for a time series.
func crossValidate(x [][]float64, y []float64, folds int, train trainFunc) (cvOutcome, error) {
	n := len(y)
	if folds < 2 {
		folds = 2
	}
	// Each fold needs a training prefix and a scoring segment.
	for folds > 1 && n/(folds+1) < 5 {
		folds--
	}
	foldSize := n / (folds + 1)
	if foldSize == 0 {
		return cvOutcome{}, errTooFewRows
	}

	out := cvOutcome{}
	for i := 0; i < folds; i++ {
		trainEnd := foldSize * (i + 1)
		testEnd := trainEnd + foldSize
		if i == folds-1 {
			testEnd = n
		}

		m, err := train(x[:trainEnd], y[:trainEnd])
		if err != nil {
			return cvOutcome{}, err
		}

		var absSum float64
		for j := trainEnd; j < testEnd; j++ {
			pred := m.Predict(x[j])
			out.predicted = append(out.predicted, pred)
			out.actual = append(out.actual, y[j])
			absSum += math.Abs(pred - y[j])
		}
		out.foldMAEs = append(out.foldMAEs, absSum/float64(testEnd-trainEnd))
		out.foldSizes = append(out.foldSizes, testEnd-trainEnd)
	}

	out.mae = stat.Mean(out.foldMAEs)
	out.std = stat.Std(out.foldMAEs)
	return out, nil
}

type trainFunc func(x [][]float64, y []float64) (model.Model, error)
