// internal/optimize/optimizer_test.go

package optimize

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stockwise/forecast-engine/internal/domain"
)

func flatForecast(days int, daily, residStd float64) *domain.ForecastResult {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.ForecastPoint, days)
	for i := range points {
		points[i] = domain.ForecastPoint{
			Date:     start.AddDate(0, 0, i),
			Forecast: daily,
			Lower:    daily - residStd,
			Upper:    daily + residStd,
		}
	}
	return &domain.ForecastResult{
		ProductID:   "prod-1",
		ModelKind:   "ridge",
		Points:      points,
		ResidualStd: residStd,
	}
}

func baseParams() Params {
	return Params{
		LeadTimeDays:       7,
		HoldingCost:        2.0,
		OrderCost:          50.0,
		TargetServiceLevel: 0.95,
	}
}

func TestOptimizeConstantDemand(t *testing.T) {
	res, err := Optimize(flatForecast(30, 5, 1.5), baseParams())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.ExpectedLeadTimeDemand-35) > 1e-9 {
		t.Fatalf("lead-time demand = %.4f, want 35", res.ExpectedLeadTimeDemand)
	}
	if res.SafetyStock <= 0 {
		t.Fatalf("safety stock = %.4f, want > 0", res.SafetyStock)
	}
	if got := res.ReorderPoint; math.Abs(got-(35+res.SafetyStock)) > 1e-9 {
		t.Fatalf("reorder point = %.4f, want lead demand + safety stock", got)
	}
	if math.Abs(res.AchievedServiceLevel-0.95) > 1e-9 {
		t.Fatalf("achieved service level = %.4f, want 0.95", res.AchievedServiceLevel)
	}
	// EOQ = sqrt(2 * 5*365 * 50 / 2)
	wantEOQ := math.Sqrt(2 * 5 * 365 * 50 / 2.0)
	if math.Abs(res.ReorderQuantity-wantEOQ) > 1e-6 {
		t.Fatalf("reorder qty = %.4f, want %.4f", res.ReorderQuantity, wantEOQ)
	}
}

func TestOptimizeIdempotent(t *testing.T) {
	fc := flatForecast(30, 5, 1.5)
	a, err := Optimize(fc, baseParams())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Optimize(fc, baseParams())
	if err != nil {
		t.Fatal(err)
	}
	if *a != *b {
		t.Fatalf("repeated runs differ: %+v vs %+v", a, b)
	}
}

func TestSafetyStockMonotoneInServiceLevel(t *testing.T) {
	fc := flatForecast(30, 5, 1.5)
	prev := -math.MaxFloat64
	for _, level := range []float64{0.80, 0.90, 0.95, 0.99} {
		p := baseParams()
		p.TargetServiceLevel = level
		res, err := Optimize(fc, p)
		if err != nil {
			t.Fatal(err)
		}
		if res.SafetyStock <= prev {
			t.Fatalf("safety stock not increasing at level %.2f: %.4f <= %.4f",
				level, res.SafetyStock, prev)
		}
		prev = res.SafetyStock
	}
}

func TestSubHalfServiceLevelClamps(t *testing.T) {
	p := baseParams()
	p.TargetServiceLevel = 0.30
	res, err := Optimize(flatForecast(30, 5, 1.5), p)
	if err != nil {
		t.Fatal(err)
	}
	if res.SafetyStock != 0 {
		t.Fatalf("safety stock = %.4f, want 0", res.SafetyStock)
	}
	if math.Abs(res.AchievedServiceLevel-0.5) > 1e-9 {
		t.Fatalf("achieved service level = %.4f, want 0.5", res.AchievedServiceLevel)
	}
}

func TestEOQFloor(t *testing.T) {
	p := baseParams()
	p.LeadTimeDays = 2
	p.HoldingCost = 1e6
	p.MinReorderQty = 5
	res, err := Optimize(flatForecast(10, 0.01, 0.1), p)
	if err != nil {
		t.Fatal(err)
	}
	if res.ReorderQuantity != 5 {
		t.Fatalf("reorder qty = %.4f, want floor 5", res.ReorderQuantity)
	}
}

func TestOptimizeParameterValidation(t *testing.T) {
	fc := flatForecast(30, 5, 1.5)
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero lead time", func(p *Params) { p.LeadTimeDays = 0 }},
		{"negative holding cost", func(p *Params) { p.HoldingCost = -1 }},
		{"zero order cost", func(p *Params) { p.OrderCost = 0 }},
		{"service level one", func(p *Params) { p.TargetServiceLevel = 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := baseParams()
			tc.mutate(&p)
			if _, err := Optimize(fc, p); !errors.Is(err, domain.ErrInvalidParameters) {
				t.Fatalf("err = %v, want ErrInvalidParameters", err)
			}
		})
	}

	t.Run("horizon shorter than lead time", func(t *testing.T) {
		p := baseParams()
		p.LeadTimeDays = 60
		if _, err := Optimize(fc, p); !errors.Is(err, domain.ErrInvalidParameters) {
			t.Fatalf("err = %v, want ErrInvalidParameters", err)
		}
	})
}

func TestLowConfidencePropagates(t *testing.T) {
	fc := flatForecast(30, 5, 1.5)
	fc.LowConfidence = true
	res, err := Optimize(fc, baseParams())
	if err != nil {
		t.Fatal(err)
	}
	if !res.LowConfidence {
		t.Fatal("low confidence flag not propagated")
	}
}
