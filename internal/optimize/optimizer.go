// internal/optimize/optimizer.go

// Package optimize derives reorder parameters from a demand forecast:
// safety stock from the forecast's residual spread, the reorder point over
// the supplier lead time, and an EOQ-style reorder quantity. The function
// is pure, so identical inputs always produce identical results.
package optimize

import (
	"fmt"
	"math"

	"github.com/stockwise/forecast-engine/internal/domain"
	"github.com/stockwise/forecast-engine/internal/stat"
)

// Params are the caller-supplied cost and service inputs. HoldingCost is
// per unit per year; OrderCost is per purchase order.
type Params struct {
	LeadTimeDays       int
	HoldingCost        float64
	OrderCost          float64
	TargetServiceLevel float64
	// MinReorderQty floors the EOQ result; zero means 1 unit.
	MinReorderQty float64
}

func (p Params) validate() error {
	if p.LeadTimeDays <= 0 {
		return fmt.Errorf("%w: lead_time_days must be positive", domain.ErrInvalidParameters)
	}
	if p.HoldingCost <= 0 {
		return fmt.Errorf("%w: holding_cost must be positive", domain.ErrInvalidParameters)
	}
	if p.OrderCost <= 0 {
		return fmt.Errorf("%w: order_cost must be positive", domain.ErrInvalidParameters)
	}
	if p.TargetServiceLevel <= 0 || p.TargetServiceLevel >= 1 {
		return fmt.Errorf("%w: target_service_level must be in (0, 1)", domain.ErrInvalidParameters)
	}
	return nil
}

// Optimize turns a forecast into reorder parameters. The forecast horizon
// must cover the lead time: expected lead-time demand is the sum of the
// point forecasts across that window. Demand spread over the lead time
// comes from the forecast's residual sigma with sqrt-of-horizon widening,
// matching how the confidence bounds were built.
func Optimize(forecast *domain.ForecastResult, p Params) (*domain.OptimizationResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if forecast == nil || len(forecast.Points) == 0 {
		return nil, fmt.Errorf("%w: empty forecast", domain.ErrInvalidParameters)
	}
	if len(forecast.Points) < p.LeadTimeDays {
		return nil, fmt.Errorf("%w: forecast horizon %d shorter than lead time %d",
			domain.ErrInvalidParameters, len(forecast.Points), p.LeadTimeDays)
	}

	leadDemand := 0.0
	for _, pt := range forecast.Points[:p.LeadTimeDays] {
		leadDemand += pt.Forecast
	}

	// Var over the lead time is the sum of per-day variances
	// sigma^2 * h for h = 1..L.
	l := float64(p.LeadTimeDays)
	sigmaLead := forecast.ResidualStd * math.Sqrt(l*(l+1)/2)

	z := stat.NormalQuantile(p.TargetServiceLevel)
	safetyStock := z * sigmaLead
	achieved := p.TargetServiceLevel
	if safetyStock < 0 {
		// Sub-50% targets imply negative safety stock; clamp and report
		// the level actually achieved rather than echoing the request.
		safetyStock = 0
		if sigmaLead > 0 {
			achieved = stat.NormalCDF(0)
		}
	}

	meanDaily := 0.0
	for _, pt := range forecast.Points {
		meanDaily += pt.Forecast
	}
	meanDaily /= float64(len(forecast.Points))

	minQty := p.MinReorderQty
	if minQty <= 0 {
		minQty = 1
	}
	annualDemand := meanDaily * 365
	eoq := math.Sqrt(2 * annualDemand * p.OrderCost / p.HoldingCost)
	if eoq < minQty {
		eoq = minQty
	}

	return &domain.OptimizationResult{
		ProductID:              forecast.ProductID,
		ReorderPoint:           leadDemand + safetyStock,
		ReorderQuantity:        eoq,
		SafetyStock:            safetyStock,
		AchievedServiceLevel:   achieved,
		ExpectedLeadTimeDemand: leadDemand,
		LowConfidence:          forecast.LowConfidence,
	}, nil
}
