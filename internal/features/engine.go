// internal/features/engine.go

// Package features turns an ordered daily sales history into fixed-schema
// numeric feature vectors. Lag, rolling and trend inputs for day t use only
// quantities from dates <= t-1; calendar facts about t itself are the only
// same-day inputs, so vectors are invariant under appending future rows.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/stockwise/forecast-engine/internal/domain"
	"github.com/stockwise/forecast-engine/internal/stat"
)

// SchemaVersion identifies the exact set and order of features below.
// Any change to FeatureNames, the lag set or the rolling windows must bump
// this, which forces stored models to retrain at load time.
const SchemaVersion = 2

// MaxLag is the warm-up window: the first MaxLag dense days cannot produce
// a complete vector and are dropped rather than imputed. Zero-filled lags
// would masquerade as signal history the product does not have.
const MaxLag = 30

var lags = []int{1, 7, 14, 30}

// FeatureNames lists the schema in vector order.
var FeatureNames = []string{
	"day_of_week", "month", "quarter", "is_weekend", "is_holiday",
	"month_sin", "month_cos", "dow_sin", "dow_cos",
	"qty_lag_1", "qty_lag_7", "qty_lag_14", "qty_lag_30",
	"qty_roll_mean_7", "qty_roll_std_7", "qty_roll_min_7", "qty_roll_max_7",
	"qty_roll_mean_14", "qty_roll_std_14",
	"qty_roll_mean_30", "qty_roll_std_30",
	"trend_slope",
	"unit_price", "promotion", "economic_index",
}

// Matrix is the feature matrix for one product: one row per dense day after
// the warm-up window, with the target being that day's quantity sold.
type Matrix struct {
	Dates []time.Time
	X     [][]float64
	Y     []float64
}

// External carries the caller-supplied inputs needed to build a vector for
// a future (not yet observed) day.
type External struct {
	UnitPrice     float64
	Promotion     bool
	EconomicIndex float64
	IsHoliday     func(time.Time) bool
}

// Build densifies the observations to a contiguous daily series and returns
// one feature vector per day after the warm-up window. It returns
// domain.ErrInsufficientData when the dense history is not longer than
// MaxLag, so no complete vector exists.
func Build(observations []domain.SalesObservation) (*Matrix, error) {
	dense := Densify(observations)
	if len(dense) <= MaxLag {
		return nil, fmt.Errorf("%w: %d dense days, need more than %d",
			domain.ErrInsufficientData, len(dense), MaxLag)
	}

	quantities := make([]float64, len(dense))
	for i, obs := range dense {
		quantities[i] = obs.QuantitySold
	}

	n := len(dense) - MaxLag
	m := &Matrix{
		Dates: make([]time.Time, 0, n),
		X:     make([][]float64, 0, n),
		Y:     make([]float64, 0, n),
	}
	for i := MaxLag; i < len(dense); i++ {
		obs := dense[i]
		row := vector(quantities[:i], obs.Date, obs.IsHoliday, External{
			UnitPrice:     obs.UnitPrice,
			Promotion:     obs.Promotion,
			EconomicIndex: obs.EconomicIndex,
		})
		m.Dates = append(m.Dates, obs.Date)
		m.X = append(m.X, row)
		m.Y = append(m.Y, obs.QuantitySold)
	}
	return m, nil
}

// FutureVector builds the feature vector for the day immediately following
// the quantity series. The forecaster calls this recursively during horizon
// generation, appending each prediction to the series.
func FutureVector(quantities []float64, date time.Time, ext External) []float64 {
	holiday := false
	if ext.IsHoliday != nil {
		holiday = ext.IsHoliday(date)
	}
	return vector(quantities, date, holiday, ext)
}

// Densify sorts observations by date and fills calendar gaps with zero-sales
// rows. Skipping gaps instead would silently shift every lag window, so
// missing days must resolve to quantity 0. Price, cost and the economic
// index carry forward from the previous observed day.
func Densify(observations []domain.SalesObservation) []domain.SalesObservation {
	if len(observations) == 0 {
		return nil
	}

	sorted := make([]domain.SalesObservation, len(observations))
	copy(sorted, observations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	dense := make([]domain.SalesObservation, 0, len(sorted))
	prev := sorted[0]
	prev.Date = day(prev.Date)
	dense = append(dense, prev)

	for _, obs := range sorted[1:] {
		obs.Date = day(obs.Date)
		if !obs.Date.After(prev.Date) {
			// Duplicate date: aggregate quantities, keep the latest row's
			// price and flags.
			obs.QuantitySold += dense[len(dense)-1].QuantitySold
			dense[len(dense)-1] = obs
			prev = obs
			continue
		}
		for d := prev.Date.AddDate(0, 0, 1); d.Before(obs.Date); d = d.AddDate(0, 0, 1) {
			dense = append(dense, domain.SalesObservation{
				TenantID:      prev.TenantID,
				ProductID:     prev.ProductID,
				Date:          d,
				QuantitySold:  0,
				UnitPrice:     prev.UnitPrice,
				UnitCost:      prev.UnitCost,
				EconomicIndex: prev.EconomicIndex,
			})
		}
		dense = append(dense, obs)
		prev = obs
	}
	return dense
}

func vector(history []float64, date time.Time, holiday bool, ext External) []float64 {
	n := len(history)
	row := make([]float64, 0, len(FeatureNames))

	dow := float64(date.Weekday())
	month := float64(date.Month())
	quarter := float64((int(date.Month())-1)/3 + 1)
	weekend := 0.0
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		weekend = 1.0
	}
	row = append(row, dow, month, quarter, weekend, boolFeature(holiday))

	row = append(row,
		math.Sin(2*math.Pi*month/12), math.Cos(2*math.Pi*month/12),
		math.Sin(2*math.Pi*dow/7), math.Cos(2*math.Pi*dow/7),
	)

	for _, lag := range lags {
		if n >= lag {
			row = append(row, history[n-lag])
		} else {
			row = append(row, 0)
		}
	}

	for _, window := range []int{7, 14, 30} {
		w := window
		if w > n {
			w = n
		}
		tail := history[n-w:]
		row = append(row, stat.Mean(tail), stat.Std(tail))
		if window == 7 {
			row = append(row, stat.Min(tail), stat.Max(tail))
		}
	}

	row = append(row, stat.TrendSlope(history))

	row = append(row, ext.UnitPrice, boolFeature(ext.Promotion), ext.EconomicIndex)
	return row
}

func boolFeature(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
