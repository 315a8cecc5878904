package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stockwise/forecast-engine/internal/domain"
)

func obsSeries(start time.Time, quantities []float64) []domain.SalesObservation {
	out := make([]domain.SalesObservation, len(quantities))
	for i, q := range quantities {
		out[i] = domain.SalesObservation{
			ProductID:    "p1",
			Date:         start.AddDate(0, 0, i),
			QuantitySold: q,
			UnitPrice:    9.99,
		}
	}
	return out
}

func TestBuildWarmupDropped(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	quantities := make([]float64, 100)
	for i := range quantities {
		quantities[i] = float64(i)
	}

	m, err := Build(obsSeries(start, quantities))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got, want := len(m.X), 100-MaxLag; got != want {
		t.Fatalf("got %d vectors, want %d (warm-up dropped)", got, want)
	}
	if !m.Dates[0].Equal(start.AddDate(0, 0, MaxLag)) {
		t.Errorf("first vector date = %v, want %v", m.Dates[0], start.AddDate(0, 0, MaxLag))
	}
	for _, row := range m.X {
		if len(row) != len(FeatureNames) {
			t.Fatalf("vector width %d, want %d", len(row), len(FeatureNames))
		}
	}
}

func TestBuildInsufficientData(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, n := range []int{0, 10, MaxLag} {
		_, err := Build(obsSeries(start, make([]float64, n)))
		if !errors.Is(err, domain.ErrInsufficientData) {
			t.Errorf("Build with %d observations: err = %v, want ErrInsufficientData", n, err)
		}
	}

	// One more than the warm-up window produces exactly one vector.
	m, err := Build(obsSeries(start, make([]float64, MaxLag+1)))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(m.X) != 1 {
		t.Errorf("got %d vectors, want 1", len(m.X))
	}
}

func TestNoLookAheadLeakage(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	quantities := make([]float64, 80)
	for i := range quantities {
		quantities[i] = 10 + 3*math.Sin(float64(i)/7)
	}
	obs := obsSeries(start, quantities)

	base, err := Build(obs)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Append a wild future observation; every existing vector must be
	// byte-for-byte identical.
	extended := append(append([]domain.SalesObservation{}, obs...), domain.SalesObservation{
		ProductID:    "p1",
		Date:         start.AddDate(0, 0, len(quantities)),
		QuantitySold: 10000,
		UnitPrice:    9.99,
	})
	withFuture, err := Build(extended)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for i, row := range base.X {
		for j, v := range row {
			if withFuture.X[i][j] != v {
				t.Fatalf("vector %d feature %s changed after appending future data: %f -> %f",
					i, FeatureNames[j], v, withFuture.X[i][j])
			}
		}
	}
}

func TestDensifyFillsGapsWithZero(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := []domain.SalesObservation{
		{ProductID: "p1", Date: start, QuantitySold: 5, UnitPrice: 4},
		// 3-day gap
		{ProductID: "p1", Date: start.AddDate(0, 0, 4), QuantitySold: 7, UnitPrice: 4},
	}

	dense := Densify(obs)
	if len(dense) != 5 {
		t.Fatalf("dense length = %d, want 5", len(dense))
	}
	for i := 1; i <= 3; i++ {
		if dense[i].QuantitySold != 0 {
			t.Errorf("gap day %d quantity = %f, want 0", i, dense[i].QuantitySold)
		}
		if dense[i].UnitPrice != 4 {
			t.Errorf("gap day %d price = %f, want carried-forward 4", i, dense[i].UnitPrice)
		}
	}
	if dense[4].QuantitySold != 7 {
		t.Errorf("last day quantity = %f, want 7", dense[4].QuantitySold)
	}
}

func TestDensifyAggregatesDuplicateDates(t *testing.T) {
	d := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := []domain.SalesObservation{
		{ProductID: "p1", Date: d, QuantitySold: 3},
		{ProductID: "p1", Date: d, QuantitySold: 4},
	}

	dense := Densify(obs)
	if len(dense) != 1 {
		t.Fatalf("dense length = %d, want 1", len(dense))
	}
	if dense[0].QuantitySold != 7 {
		t.Errorf("aggregated quantity = %f, want 7", dense[0].QuantitySold)
	}
}

func TestLagAlignmentAcrossGap(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := obsSeries(start, make([]float64, 40))
	for i := range obs {
		obs[i].QuantitySold = float64(i + 1)
	}
	// Remove day index 35 to create a gap; lag_1 of day 36 must become 0,
	// not day 34's value.
	withGap := append(append([]domain.SalesObservation{}, obs[:35]...), obs[36:]...)

	m, err := Build(withGap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	lag1 := featureIndex(t, "qty_lag_1")
	// Day 36 is vector index 36-MaxLag.
	row := m.X[36-MaxLag]
	if row[lag1] != 0 {
		t.Errorf("lag_1 across gap = %f, want 0 (gap day must not be skipped)", row[lag1])
	}
}

func TestCalendarFeatures(t *testing.T) {
	// 2025-02-01 is a Saturday.
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := obsSeries(start, make([]float64, 32))
	obs[31].IsHoliday = true

	m, err := Build(obs)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	row := m.X[1] // 2025-02-01
	if got := row[featureIndex(t, "is_weekend")]; got != 1 {
		t.Errorf("is_weekend = %f, want 1", got)
	}
	if got := row[featureIndex(t, "is_holiday")]; got != 1 {
		t.Errorf("is_holiday = %f, want 1", got)
	}
	if got := row[featureIndex(t, "month")]; got != 2 {
		t.Errorf("month = %f, want 2", got)
	}
	if got := row[featureIndex(t, "quarter")]; got != 1 {
		t.Errorf("quarter = %f, want 1", got)
	}
}

func TestFutureVectorMatchesBuild(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	quantities := make([]float64, 50)
	for i := range quantities {
		quantities[i] = float64(i % 9)
	}
	obs := obsSeries(start, quantities)

	m, err := Build(obs)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// The vector Build produced for the last day must equal FutureVector
	// over the history preceding it.
	last := len(quantities) - 1
	got := FutureVector(quantities[:last], start.AddDate(0, 0, last), External{UnitPrice: 9.99})
	want := m.X[len(m.X)-1]
	for j := range want {
		if math.Abs(got[j]-want[j]) > 1e-12 {
			t.Fatalf("feature %s: FutureVector = %f, Build = %f", FeatureNames[j], got[j], want[j])
		}
	}
}

func featureIndex(t *testing.T, name string) int {
	t.Helper()
	for i, n := range FeatureNames {
		if n == name {
			return i
		}
	}
	t.Fatalf("unknown feature %s", name)
	return -1
}
