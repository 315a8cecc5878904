// internal/model/ridge.go
package model

import (
	"errors"
	"fmt"
	"math"
)

// Ridge is an L2-regularized linear regressor fit by the normal equations.
// Features are standardized at fit time; the scaler travels with the model
// so Predict accepts raw feature vectors.
type Ridge struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Mean      []float64 `json:"feature_mean"`
	Scale     []float64 `json:"feature_scale"`
	Alpha     float64   `json:"alpha"`
}

// TrainRidge solves (X'X + alpha*I) beta = X'y on standardized features.
// The intercept is the target mean and is not penalized.
func TrainRidge(x [][]float64, y []float64, alpha float64) (*Ridge, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("ridge: empty or mismatched training data")
	}
	if alpha < 0 {
		return nil, errors.New("ridge: negative alpha")
	}

	p := len(x[0])
	mean, scale := fitScaler(x)
	xs := make([][]float64, len(x))
	for i, row := range x {
		xs[i] = applyScaler(row, mean, scale)
	}

	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(len(y))

	// Gram matrix with ridge penalty on the diagonal.
	gram := make([][]float64, p)
	for j := range gram {
		gram[j] = make([]float64, p)
	}
	xty := make([]float64, p)
	for i, row := range xs {
		yc := y[i] - yMean
		for j := 0; j < p; j++ {
			xty[j] += row[j] * yc
			for k := j; k < p; k++ {
				gram[j][k] += row[j] * row[k]
			}
		}
	}
	for j := 0; j < p; j++ {
		for k := 0; k < j; k++ {
			gram[j][k] = gram[k][j]
		}
		gram[j][j] += alpha
	}

	coef, err := solveLinearSystem(gram, xty)
	if err != nil {
		return nil, fmt.Errorf("ridge: %w", err)
	}

	return &Ridge{
		Coef:      coef,
		Intercept: yMean,
		Mean:      mean,
		Scale:     scale,
		Alpha:     alpha,
	}, nil
}

func (r *Ridge) Kind() Kind { return KindRidge }

func (r *Ridge) Predict(x []float64) float64 {
	xs := applyScaler(x, r.Mean, r.Scale)
	pred := r.Intercept
	for j, c := range r.Coef {
		if j < len(xs) {
			pred += c * xs[j]
		}
	}
	return pred
}

func fitScaler(x [][]float64) (mean, scale []float64) {
	n := len(x)
	p := len(x[0])
	mean = make([]float64, p)
	scale = make([]float64, p)
	for _, row := range x {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	for _, row := range x {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(n))
		if scale[j] == 0 {
			// Constant feature: leave centered values at zero.
			scale[j] = 1
		}
	}
	return mean, scale
}

func applyScaler(x, mean, scale []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		if j < len(mean) {
			out[j] = (v - mean[j]) / scale[j]
		}
	}
	return out
}

// solveLinearSystem performs Gaussian elimination with partial pivoting.
// The ridge diagonal keeps the system well conditioned for alpha > 0.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = make([]float64, n+1)
		copy(aug[i], a[i])
		aug[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(aug[row][col]) > math.Abs(aug[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return nil, errors.New("singular system")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		for row := col + 1; row < n; row++ {
			factor := aug[row][col] / aug[col][col]
			for k := col; k <= n; k++ {
				aug[row][k] -= factor * aug[col][k]
			}
		}
	}

	solution := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := aug[row][n]
		for k := row + 1; k < n; k++ {
			sum -= aug[row][k] * solution[k]
		}
		solution[row] = sum / aug[row][row]
	}
	return solution, nil
}
