// internal/model/naive.go
package model

// Naive is the fallback for products with too little history to train a
// real model: it predicts the trailing moving average of recent demand and
// ignores the feature vector entirely. Results built on it are always
// flagged low-confidence.
type Naive struct {
	MeanDemand float64 `json:"mean_demand"`
	Window     int     `json:"window"`
}

// TrainNaive averages the last window quantities (whole history when the
// window is larger or zero).
func TrainNaive(quantities []float64, window int) *Naive {
	n := len(quantities)
	if window <= 0 || window > n {
		window = n
	}
	sum := 0.0
	for _, v := range quantities[n-window:] {
		sum += v
	}
	mean := 0.0
	if window > 0 {
		mean = sum / float64(window)
	}
	return &Naive{MeanDemand: mean, Window: window}
}

func (m *Naive) Kind() Kind { return KindNaive }

func (m *Naive) Predict(_ []float64) float64 { return m.MeanDemand }
