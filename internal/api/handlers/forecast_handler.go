// internal/api/handlers/forecast_handler.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stockwise/forecast-engine/internal/domain"
	"github.com/stockwise/forecast-engine/internal/service"
)

const (
	defaultHorizonDays     = 30
	defaultConfidenceLevel = 0.95
)

type ForecastHandler struct {
	svc *service.ForecastService
}

func NewForecastHandler(svc *service.ForecastService) *ForecastHandler {
	return &ForecastHandler{svc: svc}
}

type forecastRequest struct {
	TenantID        string                    `json:"tenant_id"`
	ProductID       string                    `json:"product_id" binding:"required"`
	Observations    []domain.SalesObservation `json:"observations"`
	HorizonDays     int                       `json:"horizon_days"`
	ConfidenceLevel float64                   `json:"confidence_level"`
}

// Forecast returns a multi-day demand forecast with confidence bounds.
// With a tenant_id the tenant's stored model serves the request and
// observations may be omitted (history comes from the database); otherwise
// the submitted history trains inline. Sparse histories degrade to a naive
// low-confidence forecast rather than failing.
func (h *ForecastHandler) Forecast(c *gin.Context) {
	var req forecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if len(req.Observations) == 0 && req.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: observations or tenant_id required"})
		return
	}
	if req.HorizonDays == 0 {
		req.HorizonDays = defaultHorizonDays
	}
	if req.ConfidenceLevel == 0 {
		req.ConfidenceLevel = defaultConfidenceLevel
	}

	result, err := h.svc.Forecast(c.Request.Context(), req.TenantID, req.ProductID, req.Observations,
		req.HorizonDays, req.ConfidenceLevel)
	if err != nil {
		respondError(c, err, "forecast failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

type optimizeRequest struct {
	ProductID          string                    `json:"product_id" binding:"required"`
	Observations       []domain.SalesObservation `json:"observations"`
	Forecast           *domain.ForecastResult    `json:"forecast"`
	LeadTimeDays       int                       `json:"lead_time_days" binding:"required"`
	HoldingCost        float64                   `json:"holding_cost" binding:"required"`
	OrderCost          float64                   `json:"order_cost" binding:"required"`
	TargetServiceLevel float64                   `json:"target_service_level"`
	ConfidenceLevel    float64                   `json:"confidence_level"`
}

// Optimize computes reorder point, reorder quantity and safety stock from
// either a submitted forecast or raw sales history.
func (h *ForecastHandler) Optimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.TargetServiceLevel == 0 {
		req.TargetServiceLevel = defaultConfidenceLevel
	}

	result, err := h.svc.Optimize(c.Request.Context(), req.ProductID, req.Forecast, req.Observations,
		service.OptimizeParams{
			LeadTimeDays:       req.LeadTimeDays,
			HoldingCost:        req.HoldingCost,
			OrderCost:          req.OrderCost,
			TargetServiceLevel: req.TargetServiceLevel,
			ConfidenceLevel:    req.ConfidenceLevel,
		})
	if err != nil {
		respondError(c, err, "optimization failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

type trainRequest struct {
	TenantID   string   `json:"tenant_id" binding:"required"`
	ProductIDs []string `json:"product_ids"`
}

// Train runs batch training for a tenant against the sales database and
// persists the resulting model artifacts.
func (h *ForecastHandler) Train(c *gin.Context) {
	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	statuses, err := h.svc.TrainTenant(c.Request.Context(), req.TenantID, req.ProductIDs)
	if err != nil {
		respondError(c, err, "training failed")
		return
	}

	trained := 0
	for _, st := range statuses {
		if st.Success {
			trained++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id": req.TenantID,
		"trained":   trained,
		"failed":    len(statuses) - trained,
		"products":  statuses,
	})
}

// Models lists stored model artifacts for a tenant.
func (h *ForecastHandler) Models(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	infos, err := h.svc.ModelsForTenant(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err, "model listing failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant_id": tenantID,
		"models":    infos,
	})
}

func respondError(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidParameters):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrModelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSchemaMismatch), errors.Is(err, domain.ErrStaleModel):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
