package forecast

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stockwise/forecast-engine/internal/domain"
	"github.com/stockwise/forecast-engine/internal/model"
)

// seasonalSeries builds n daily observations with quantity
// 10 + 2*sin(day/7) plus small deterministic noise.
func seasonalSeries(n int) []domain.SalesObservation {
	rng := rand.New(rand.NewSource(11))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]domain.SalesObservation, n)
	for i := range obs {
		obs[i] = domain.SalesObservation{
			ProductID:    "p1",
			Date:         start.AddDate(0, 0, i),
			QuantitySold: 10 + 2*math.Sin(float64(i)/7) + rng.NormFloat64()*0.5,
			UnitPrice:    19.90,
		}
	}
	return obs
}

// testConfig keeps the tree models small so the full-bank path stays fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ForestTrees = 15
	cfg.ForestMaxDepth = 5
	cfg.BoostingRounds = 40
	cfg.CVFolds = 3
	return cfg
}

func TestSeasonalYearForecast(t *testing.T) {
	obs := seasonalSeries(365)

	tp, err := TrainAndEvaluate("p1", obs, testConfig())
	if err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}
	if tp.LowConfidence {
		t.Fatal("365 observations should not be low confidence")
	}
	if tp.Metrics.R2 <= 0.3 {
		t.Errorf("R2 = %f, want > 0.3", tp.Metrics.R2)
	}

	result, err := tp.Forecast(30, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if len(result.Points) != 30 {
		t.Fatalf("got %d points, want 30", len(result.Points))
	}

	sum := 0.0
	for _, p := range result.Points {
		sum += p.Forecast
	}
	mean := sum / float64(len(result.Points))
	if mean < 7 || mean > 13 {
		t.Errorf("forecast mean = %f, want within 30%% of the seasonal mean 10", mean)
	}
}

func TestConfidenceBoundsOrdered(t *testing.T) {
	obs := seasonalSeries(200)

	tp, err := TrainAndEvaluate("p1", obs, testConfig())
	if err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}

	result, err := tp.Forecast(60, 0.9)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	for i, p := range result.Points {
		if p.Lower > p.Forecast || p.Forecast > p.Upper {
			t.Fatalf("point %d: bounds not ordered: %f <= %f <= %f",
				i, p.Lower, p.Forecast, p.Upper)
		}
		if p.Lower < 0 {
			t.Fatalf("point %d: negative lower bound %f", i, p.Lower)
		}
	}

	// Intervals widen with the horizon.
	first := result.Points[0].Upper - result.Points[0].Lower
	last := result.Points[len(result.Points)-1].Upper - result.Points[len(result.Points)-1].Lower
	if tp.ResidualStd > 0 && last <= first {
		t.Errorf("interval width did not widen: first=%f last=%f", first, last)
	}
}

func TestTinyHistoryFallsBackToNaive(t *testing.T) {
	obs := seasonalSeries(10)

	tp, err := TrainAndEvaluate("p1", obs, testConfig())
	if err != nil {
		t.Fatalf("TrainAndEvaluate should not fail on tiny history: %v", err)
	}
	if !tp.LowConfidence {
		t.Error("10 observations must yield a low-confidence result")
	}
	if tp.Model.Kind() != model.KindNaive {
		t.Errorf("model kind = %s, want naive", tp.Model.Kind())
	}
	if len(tp.Notes) == 0 {
		t.Error("naive fallback should carry an explanatory note")
	}

	result, err := tp.Forecast(7, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if !result.LowConfidence {
		t.Error("forecast result must propagate the low-confidence flag")
	}

	// Naive forecast is flat at the trailing mean.
	for _, p := range result.Points[1:] {
		if p.Forecast != result.Points[0].Forecast {
			t.Errorf("naive forecast not flat: %f vs %f", p.Forecast, result.Points[0].Forecast)
		}
	}
}

func TestMidTierTrainsRidgeOnly(t *testing.T) {
	// 80 usable rows sits between MinObservations and FullBankThreshold.
	obs := seasonalSeries(80 + 30)

	tp, err := TrainAndEvaluate("p1", obs, testConfig())
	if err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}
	if tp.LowConfidence {
		t.Error("mid-tier history should not be low confidence")
	}
	if tp.Model.Kind() != model.KindRidge {
		t.Errorf("model kind = %s, want ridge (linear-only tier)", tp.Model.Kind())
	}
}

func TestForecastParameterValidation(t *testing.T) {
	tp, err := TrainAndEvaluate("p1", seasonalSeries(50), testConfig())
	if err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}

	cases := []struct {
		horizon    int
		confidence float64
	}{
		{0, 0.95},
		{-5, 0.95},
		{30, 0},
		{30, 1},
		{30, 1.5},
	}
	for _, tc := range cases {
		if _, err := tp.Forecast(tc.horizon, tc.confidence); err == nil {
			t.Errorf("Forecast(%d, %f): expected ErrInvalidParameters", tc.horizon, tc.confidence)
		}
	}
}

func TestHigherConfidenceWidensBounds(t *testing.T) {
	tp, err := TrainAndEvaluate("p1", seasonalSeries(200), testConfig())
	if err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}

	r90, err := tp.Forecast(10, 0.90)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	r99, err := tp.Forecast(10, 0.99)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	w90 := r90.Points[5].Upper - r90.Points[5].Lower
	w99 := r99.Points[5].Upper - r99.Points[5].Lower
	if tp.ResidualStd > 0 && w99 <= w90 {
		t.Errorf("99%% interval (%f) not wider than 90%% (%f)", w99, w90)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	obs := seasonalSeries(200)
	cfg := testConfig()

	tp, err := TrainAndEvaluate("p1", obs, cfg)
	if err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}

	restored := Restore("p1", tp.Model, tp.Metrics, tp.ResidualStd, obs)
	a, err := tp.Forecast(14, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	b, err := restored.Forecast(14, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	for i := range a.Points {
		if math.Abs(a.Points[i].Forecast-b.Points[i].Forecast) > 1e-9 {
			t.Fatalf("point %d differs after restore: %f vs %f",
				i, a.Points[i].Forecast, b.Points[i].Forecast)
		}
	}
}

func TestEvaluateMetrics(t *testing.T) {
	actual := []float64{10, 12, 8, 10}
	perfect := []float64{10, 12, 8, 10}

	mae, rmse, r2 := evaluate(actual, perfect)
	if mae != 0 || rmse != 0 || r2 != 1 {
		t.Errorf("perfect predictions: mae=%f rmse=%f r2=%f", mae, rmse, r2)
	}

	// Constant actuals have no variance to explain.
	_, _, r2 = evaluate([]float64{5, 5, 5}, []float64{5, 6, 4})
	if r2 != 0 {
		t.Errorf("zero-variance R2 = %f, want 0", r2)
	}
}
