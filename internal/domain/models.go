// internal/domain/models.go
package domain

import "time"

// SalesObservation is one historical daily sales fact for a product.
// Observations are immutable once recorded and supplied in bulk by the
// caller, ordered by date per product. Gap days (no row for a date) are
// densified into zero-sales observations before feature building.
type SalesObservation struct {
	TenantID      string    `json:"tenant_id,omitempty" db:"tenant_id"`
	ProductID     string    `json:"product_id" db:"product_id"`
	Date          time.Time `json:"date" db:"date"`
	QuantitySold  float64   `json:"quantity_sold" db:"quantity_sold"`
	UnitPrice     float64   `json:"unit_price" db:"unit_price"`
	UnitCost      float64   `json:"unit_cost" db:"unit_cost"`
	IsHoliday     bool      `json:"is_holiday" db:"is_holiday"`
	Promotion     bool      `json:"promotion" db:"promotion"`
	EconomicIndex float64   `json:"economic_index" db:"economic_index"`
}

// ForecastPoint is one step of a demand forecast with its confidence band.
type ForecastPoint struct {
	Date     time.Time `json:"date"`
	Forecast float64   `json:"forecast"`
	Lower    float64   `json:"lower_bound"`
	Upper    float64   `json:"upper_bound"`
}

// ModelMetrics reports hold-out accuracy plus the cross-validated
// stability signal for a trained model.
type ModelMetrics struct {
	MAE   float64 `json:"mae"`
	RMSE  float64 `json:"rmse"`
	R2    float64 `json:"r2"`
	CVMAE float64 `json:"cv_mae"`
	CVStd float64 `json:"cv_std"`
}

// ForecastResult is the transient output of a forecast request. Only the
// underlying trained model is persisted; results are recomputed per call.
type ForecastResult struct {
	ProductID     string          `json:"product_id"`
	ModelKind     string          `json:"model_kind"`
	Points        []ForecastPoint `json:"forecasts"`
	Metrics       ModelMetrics    `json:"model_metrics"`
	ResidualStd   float64         `json:"residual_std"`
	LowConfidence bool            `json:"low_confidence"`
	Notes         []string        `json:"notes,omitempty"`
}

// OptimizationResult carries the reorder parameters derived from a
// forecast plus caller-supplied cost and lead-time inputs.
type OptimizationResult struct {
	ProductID              string  `json:"product_id"`
	ReorderPoint           float64 `json:"reorder_point"`
	ReorderQuantity        float64 `json:"reorder_quantity"`
	SafetyStock            float64 `json:"safety_stock"`
	AchievedServiceLevel   float64 `json:"achieved_service_level"`
	ExpectedLeadTimeDemand float64 `json:"expected_lead_time_demand"`
	LowConfidence          bool    `json:"low_confidence"`
}

// ProductTrainingStatus reports a single product's outcome inside a
// tenant-wide training run.
type ProductTrainingStatus struct {
	ProductID    string       `json:"product_id"`
	Success      bool         `json:"success"`
	ModelKind    string       `json:"model_kind,omitempty"`
	Observations int          `json:"observations"`
	Metrics      ModelMetrics `json:"metrics,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// StoredModelInfo describes a persisted model artifact without its payload.
type StoredModelInfo struct {
	TenantID      string       `json:"tenant_id"`
	ProductID     string       `json:"product_id"`
	Kind          string       `json:"model_kind"`
	SchemaVersion int          `json:"schema_version"`
	TrainedAt     time.Time    `json:"trained_at"`
	Metrics       ModelMetrics `json:"metrics"`
}
