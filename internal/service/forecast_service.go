// internal/service/forecast_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/stockwise/forecast-engine/internal/cache"
	"github.com/stockwise/forecast-engine/internal/config"
	"github.com/stockwise/forecast-engine/internal/domain"
	"github.com/stockwise/forecast-engine/internal/features"
	"github.com/stockwise/forecast-engine/internal/forecast"
	"github.com/stockwise/forecast-engine/internal/model"
	"github.com/stockwise/forecast-engine/internal/optimize"
	"github.com/stockwise/forecast-engine/internal/repository"
	"github.com/stockwise/forecast-engine/internal/storage"
	"github.com/stockwise/forecast-engine/internal/store"
)

// ForecastService orchestrates the pipeline: feature building and training
// per product, forecast generation with caching, inventory optimization,
// and batch training against the sales database with artifact persistence.
type ForecastService struct {
	cfg    *config.Config
	repo   repository.SalesRepository
	models store.ModelStore
	cache  cache.ForecastCache
	mirror storage.ObjectStorage
}

// NewForecastService wires the service. repo and mirror may be nil: without
// a repository only the inline /forecast and /optimize paths work, and
// without a mirror artifacts stay local only.
func NewForecastService(
	cfg *config.Config,
	repo repository.SalesRepository,
	models store.ModelStore,
	cacheImpl cache.ForecastCache,
	mirror storage.ObjectStorage,
) *ForecastService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopForecastCache()
	}
	return &ForecastService{
		cfg:    cfg,
		repo:   repo,
		models: models,
		cache:  cacheImpl,
		mirror: mirror,
	}
}

func (s *ForecastService) trainingConfig() forecast.Config {
	t := s.cfg.Training
	return forecast.Config{
		MinObservations:   t.MinObservations,
		FullBankThreshold: t.FullBankThreshold,
		CVFolds:           t.CVFolds,
		RidgeAlpha:        t.RidgeAlpha,
		ForestTrees:       t.ForestTrees,
		ForestMaxDepth:    t.ForestMaxDepth,
		BoostingRounds:    t.BoostingRounds,
		BoostingDepth:     t.BoostingDepth,
		BoostingLearnRate: t.BoostingLearnRate,
	}
}

// Forecast generates horizonDays of demand for a product. With a tenant ID
// the latest stored model serves the request: the best artifact by stored
// MAE is loaded, decoded and seeded with the history, and only a missing,
// schema-mismatched or unreadable artifact falls back to inline retraining.
// Without a tenant ID the request trains inline on the supplied history.
// Observations may be omitted when a tenant is given and the sales database
// is configured; the history is then pulled from it. Results are cached by
// request hash; a changed history, horizon, or confidence level misses the
// cache.
func (s *ForecastService) Forecast(ctx context.Context, tenantID, productID string,
	observations []domain.SalesObservation, horizonDays int, confidence float64) (*domain.ForecastResult, error) {

	if horizonDays <= 0 {
		return nil, fmt.Errorf("%w: horizon_days must be positive", domain.ErrInvalidParameters)
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, fmt.Errorf("%w: confidence_level must be in (0, 1)", domain.ErrInvalidParameters)
	}

	if len(observations) == 0 {
		if tenantID == "" {
			return nil, fmt.Errorf("%w: observations required without tenant_id", domain.ErrInvalidParameters)
		}
		if s.repo == nil {
			return nil, fmt.Errorf("%w: no sales database to load history for tenant %s",
				domain.ErrInvalidParameters, tenantID)
		}
		var err error
		observations, err = s.repo.GetObservations(ctx, tenantID, productID)
		if err != nil {
			return nil, err
		}
		if len(observations) == 0 {
			return nil, fmt.Errorf("%w: no sales history for %s/%s",
				domain.ErrInsufficientData, tenantID, productID)
		}
	}

	key := cache.ForecastRequestKey{
		TenantID:        tenantID,
		ProductID:       productID,
		HorizonDays:     horizonDays,
		ConfidenceLevel: confidence,
		Observations:    observations,
	}
	if result, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return result, nil
	} else if err != nil {
		log.Warn().Err(err).Str("product_id", productID).Msg("forecast cache get failed")
	}

	var result *domain.ForecastResult
	if tenantID != "" {
		stored, err := s.forecastFromStore(ctx, tenantID, productID, observations, horizonDays, confidence)
		switch {
		case err == nil:
			result = stored
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			// Any artifact problem degrades to inline retraining; the
			// request carries enough history to answer either way.
			log.Warn().Err(err).Str("tenant_id", tenantID).Str("product_id", productID).
				Msg("stored model unavailable, training inline")
		}
	}

	if result == nil {
		tp, err := forecast.TrainAndEvaluate(productID, observations, s.trainingConfig())
		if err != nil {
			return nil, err
		}
		result, err = tp.Forecast(horizonDays, confidence)
		if err != nil {
			return nil, err
		}
	}

	if err := s.cache.Set(ctx, key, result); err != nil {
		log.Warn().Err(err).Str("product_id", productID).Msg("forecast cache set failed")
	}
	return result, nil
}

// forecastFromStore serves a forecast from the persisted model bank: the
// stored kind with the lowest hold-out MAE is loaded (which enforces the
// feature schema check), decoded, and seeded with the caller's history.
func (s *ForecastService) forecastFromStore(ctx context.Context, tenantID, productID string,
	observations []domain.SalesObservation, horizonDays int, confidence float64) (*domain.ForecastResult, error) {

	infos, err := s.models.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	bestKind := ""
	bestMAE := 0.0
	for _, info := range infos {
		if info.ProductID != productID {
			continue
		}
		if bestKind == "" || info.Metrics.MAE < bestMAE {
			bestKind = info.Kind
			bestMAE = info.Metrics.MAE
		}
	}
	if bestKind == "" {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrModelNotFound, tenantID, productID)
	}

	artifact, err := s.models.Load(ctx, tenantID, productID, bestKind)
	if err != nil {
		return nil, err
	}
	m, err := model.Decode(model.Kind(artifact.Kind), artifact.Payload)
	if err != nil {
		return nil, err
	}

	tp := forecast.Restore(productID, m, artifact.Metrics, artifact.ResidualStd, observations)
	return tp.Forecast(horizonDays, confidence)
}

// OptimizeParams are the cost and service inputs for an optimization
// request. ConfidenceLevel only applies when the forecast is generated
// from raw observations; zero means 0.95.
type OptimizeParams struct {
	LeadTimeDays       int
	HoldingCost        float64
	OrderCost          float64
	TargetServiceLevel float64
	ConfidenceLevel    float64
}

// Optimize derives reorder parameters. The caller supplies either a ready
// forecast or raw observations; in the latter case a forecast covering the
// lead time is generated first.
func (s *ForecastService) Optimize(ctx context.Context, productID string,
	forecastResult *domain.ForecastResult, observations []domain.SalesObservation,
	p OptimizeParams) (*domain.OptimizationResult, error) {

	if forecastResult == nil {
		if len(observations) == 0 {
			return nil, fmt.Errorf("%w: either forecast or observations required", domain.ErrInvalidParameters)
		}
		if p.LeadTimeDays <= 0 {
			return nil, fmt.Errorf("%w: lead_time_days must be positive", domain.ErrInvalidParameters)
		}
		confidence := p.ConfidenceLevel
		if confidence == 0 {
			confidence = 0.95
		}
		// The horizon must cover the lead time; a longer horizon steadies
		// the daily-demand mean used by the EOQ.
		horizon := p.LeadTimeDays
		if horizon < 30 {
			horizon = 30
		}
		var err error
		forecastResult, err = s.Forecast(ctx, "", productID, observations, horizon, confidence)
		if err != nil {
			return nil, err
		}
	}

	return optimize.Optimize(forecastResult, optimize.Params{
		LeadTimeDays:       p.LeadTimeDays,
		HoldingCost:        p.HoldingCost,
		OrderCost:          p.OrderCost,
		TargetServiceLevel: p.TargetServiceLevel,
		MinReorderQty:      s.cfg.Training.MinReorderQty,
	})
}

// TrainTenant pulls sales history from the database and trains every
// requested product (or all products) with bounded parallelism. Each
// successful model kind is persisted to the model store and mirrored to
// object storage when configured. Per-product failures are reported in the
// status list, never abort the run; cancellation stops scheduling new
// products and leaves already stored artifacts in place.
func (s *ForecastService) TrainTenant(ctx context.Context, tenantID string, productIDs []string) ([]domain.ProductTrainingStatus, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("sales database not configured")
	}

	histories, err := s.repo.GetTenantObservations(ctx, tenantID, productIDs)
	if err != nil {
		return nil, err
	}

	products := make([]string, 0, len(histories))
	for id := range histories {
		products = append(products, id)
	}
	sort.Strings(products)

	workers := int64(s.cfg.Training.WorkerCount)
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)
	g, gctx := errgroup.WithContext(ctx)

	statuses := make([]domain.ProductTrainingStatus, len(products))
	trainedAt := time.Now().UTC()

	for i, productID := range products {
		if err := sem.Acquire(gctx, 1); err != nil {
			// Drain in-flight training before returning so no goroutine
			// writes into statuses after the function exits.
			_ = g.Wait()
			return nil, err
		}
		i, productID := i, productID
		g.Go(func() error {
			defer sem.Release(1)
			statuses[i] = s.trainProduct(gctx, tenantID, productID, histories[productID], trainedAt)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (s *ForecastService) trainProduct(ctx context.Context, tenantID, productID string,
	observations []domain.SalesObservation, trainedAt time.Time) domain.ProductTrainingStatus {

	status := domain.ProductTrainingStatus{
		ProductID:    productID,
		Observations: len(observations),
	}

	tp, err := forecast.TrainAndEvaluate(productID, observations, s.trainingConfig())
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Str("product_id", productID).
			Msg("product training failed")
		status.Error = err.Error()
		return status
	}

	for _, entry := range tp.Bank {
		if err := s.persistModel(ctx, tenantID, productID, entry, trainedAt); err != nil {
			log.Error().Err(err).Str("tenant_id", tenantID).Str("product_id", productID).
				Str("model", string(entry.Kind)).Msg("artifact persistence failed")
			status.Error = err.Error()
			return status
		}
	}

	status.Success = true
	status.ModelKind = string(tp.Model.Kind())
	status.Metrics = tp.Metrics
	return status
}

func (s *ForecastService) persistModel(ctx context.Context, tenantID, productID string,
	entry forecast.BankEntry, trainedAt time.Time) error {

	payload, err := model.Encode(entry.Model)
	if err != nil {
		return err
	}
	artifact := &store.TrainedModel{
		TenantID:      tenantID,
		ProductID:     productID,
		Kind:          string(entry.Kind),
		SchemaVersion: features.SchemaVersion,
		TrainedAt:     trainedAt,
		Metrics:       entry.Metrics,
		ResidualStd:   entry.ResidualStd,
		Payload:       payload,
	}
	if err := s.models.Save(ctx, artifact); err != nil {
		return err
	}

	if s.mirror != nil {
		key := fmt.Sprintf("models/%s/%s/%s.json", tenantID, productID, entry.Kind)
		data, err := json.Marshal(artifact)
		if err == nil {
			err = s.mirror.UploadObject(ctx, key, data, "application/json")
		}
		if err != nil {
			// Mirror is best effort; the local artifact is the source of truth.
			log.Warn().Err(err).Str("key", key).Msg("artifact mirror upload failed")
		}
	}
	return nil
}

// ModelsForTenant lists stored artifact metadata for a tenant.
func (s *ForecastService) ModelsForTenant(ctx context.Context, tenantID string) ([]domain.StoredModelInfo, error) {
	return s.models.List(ctx, tenantID)
}
