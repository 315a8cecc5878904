// internal/service/forecast_service_test.go
package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwise/forecast-engine/internal/cache"
	"github.com/stockwise/forecast-engine/internal/config"
	"github.com/stockwise/forecast-engine/internal/domain"
	"github.com/stockwise/forecast-engine/internal/features"
	"github.com/stockwise/forecast-engine/internal/model"
	"github.com/stockwise/forecast-engine/internal/repository"
	"github.com/stockwise/forecast-engine/internal/store"
)

type fakeSalesRepo struct {
	histories map[string][]domain.SalesObservation
}

func (r *fakeSalesRepo) GetObservations(ctx context.Context, tenantID, productID string) ([]domain.SalesObservation, error) {
	return r.histories[productID], nil
}

func (r *fakeSalesRepo) GetTenantObservations(ctx context.Context, tenantID string, productIDs []string) (map[string][]domain.SalesObservation, error) {
	if len(productIDs) == 0 {
		return r.histories, nil
	}
	out := make(map[string][]domain.SalesObservation)
	for _, id := range productIDs {
		if obs, ok := r.histories[id]; ok {
			out[id] = obs
		}
	}
	return out, nil
}

func (r *fakeSalesRepo) ListProducts(ctx context.Context, tenantID string) ([]string, error) {
	ids := make([]string, 0, len(r.histories))
	for id := range r.histories {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakeSalesRepo) SaveObservations(ctx context.Context, observations []domain.SalesObservation) error {
	return nil
}

type recordingCache struct {
	entries map[string]*domain.ForecastResult
	gets    int
	sets    int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]*domain.ForecastResult{}}
}

func (c *recordingCache) key(k cache.ForecastRequestKey) string {
	last := ""
	if n := len(k.Observations); n > 0 {
		last = k.Observations[n-1].Date.Format("2006-01-02")
	}
	return k.ProductID + "|" + last
}

func (c *recordingCache) Get(ctx context.Context, k cache.ForecastRequestKey) (*domain.ForecastResult, bool, error) {
	c.gets++
	result, ok := c.entries[c.key(k)]
	return result, ok, nil
}

func (c *recordingCache) Set(ctx context.Context, k cache.ForecastRequestKey, result *domain.ForecastResult) error {
	c.sets++
	c.entries[c.key(k)] = result
	return nil
}

func (c *recordingCache) InvalidateProduct(ctx context.Context, productID string) error { return nil }
func (c *recordingCache) InvalidateAll(ctx context.Context) error                       { return nil }

func testServiceConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Training: config.TrainingConfig{
			MinObservations:   30,
			FullBankThreshold: 90,
			CVFolds:           3,
			WorkerCount:       2,
			RidgeAlpha:        1.0,
			ForestTrees:       10,
			ForestMaxDepth:    5,
			BoostingRounds:    30,
			BoostingDepth:     3,
			BoostingLearnRate: 0.1,
			MinReorderQty:     1.0,
		},
	}
}

func salesHistory(productID string, days int) []domain.SalesObservation {
	rng := rand.New(rand.NewSource(7))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.SalesObservation, days)
	for i := range out {
		qty := 10 + 2*math.Sin(float64(i)/7) + rng.NormFloat64()*0.5
		if qty < 0 {
			qty = 0
		}
		out[i] = domain.SalesObservation{
			TenantID:      "tenant-1",
			ProductID:     productID,
			Date:          start.AddDate(0, 0, i),
			QuantitySold:  qty,
			UnitPrice:     12.5,
			EconomicIndex: 100,
		}
	}
	return out
}

func newTestService(t *testing.T, repo repository.SalesRepository, cacheImpl cache.ForecastCache) (*ForecastService, *store.FileStore) {
	t.Helper()
	fileStore, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewForecastService(testServiceConfig(t), repo, fileStore, cacheImpl, nil), fileStore
}

func TestForecastUsesCacheOnRepeat(t *testing.T) {
	c := newRecordingCache()
	svc, _ := newTestService(t, nil, c)
	ctx := context.Background()
	history := salesHistory("prod-1", 150)

	first, err := svc.Forecast(ctx, "", "prod-1", history, 14, 0.95)
	require.NoError(t, err)
	require.Len(t, first.Points, 14)
	assert.Equal(t, 1, c.sets)

	second, err := svc.Forecast(ctx, "", "prod-1", history, 14, 0.95)
	require.NoError(t, err)
	assert.Equal(t, 2, c.gets)
	assert.Equal(t, 1, c.sets, "cache hit must not retrain")
	assert.Equal(t, first, second)
}

func TestForecastValidatesParameters(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()
	history := salesHistory("prod-1", 40)

	_, err := svc.Forecast(ctx, "", "prod-1", history, 0, 0.95)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	_, err = svc.Forecast(ctx, "", "prod-1", history, 14, 1.2)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	// No history and no tenant to load one for.
	_, err = svc.Forecast(ctx, "", "prod-1", nil, 14, 0.95)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestForecastServesFromStoredModel(t *testing.T) {
	svc, fileStore := newTestService(t, nil, nil)
	ctx := context.Background()

	payload, err := model.Encode(&model.Naive{MeanDemand: 42, Window: 30})
	require.NoError(t, err)
	require.NoError(t, fileStore.Save(ctx, &store.TrainedModel{
		TenantID:      "tenant-1",
		ProductID:     "prod-1",
		Kind:          "naive",
		SchemaVersion: features.SchemaVersion,
		TrainedAt:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Metrics:       domain.ModelMetrics{MAE: 0.5},
		ResidualStd:   1.0,
		Payload:       payload,
	}))

	// Inline training on this history would never predict 42; only the
	// stored model does.
	result, err := svc.Forecast(ctx, "tenant-1", "prod-1", salesHistory("prod-1", 40), 7, 0.95)
	require.NoError(t, err)
	assert.Equal(t, "naive", result.ModelKind)
	assert.Equal(t, 0.5, result.Metrics.MAE)
	for _, p := range result.Points {
		assert.InDelta(t, 42.0, p.Forecast, 1e-9)
	}
}

func TestForecastStoredSchemaMismatchRetrainsInline(t *testing.T) {
	svc, fileStore := newTestService(t, nil, nil)
	ctx := context.Background()

	payload, err := model.Encode(&model.Naive{MeanDemand: 42, Window: 30})
	require.NoError(t, err)
	require.NoError(t, fileStore.Save(ctx, &store.TrainedModel{
		TenantID:      "tenant-1",
		ProductID:     "prod-1",
		Kind:          "naive",
		SchemaVersion: features.SchemaVersion - 1,
		TrainedAt:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Metrics:       domain.ModelMetrics{MAE: 0.5},
		ResidualStd:   1.0,
		Payload:       payload,
	}))

	// The artifact is rejected at load; the full history retrains inline,
	// which at this volume never selects the naive model.
	result, err := svc.Forecast(ctx, "tenant-1", "prod-1", salesHistory("prod-1", 150), 7, 0.95)
	require.NoError(t, err)
	assert.NotEqual(t, "naive", result.ModelKind)
	assert.False(t, result.LowConfidence)
}

func TestForecastLoadsHistoryFromRepository(t *testing.T) {
	repo := &fakeSalesRepo{histories: map[string][]domain.SalesObservation{
		"prod-1": salesHistory("prod-1", 150),
	}}
	svc, _ := newTestService(t, repo, nil)

	// No observations in the request: the tenant's history comes from the
	// database, and with no stored artifact the model trains inline.
	result, err := svc.Forecast(context.Background(), "tenant-1", "prod-1", nil, 14, 0.95)
	require.NoError(t, err)
	assert.Len(t, result.Points, 14)
	assert.False(t, result.LowConfidence)
}

func TestOptimizeFromObservations(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	result, err := svc.Optimize(ctx, "prod-1", nil, salesHistory("prod-1", 150), OptimizeParams{
		LeadTimeDays:       7,
		HoldingCost:        2,
		OrderCost:          50,
		TargetServiceLevel: 0.95,
	})
	require.NoError(t, err)
	assert.Equal(t, "prod-1", result.ProductID)
	assert.Greater(t, result.ExpectedLeadTimeDemand, 0.0)
	assert.Greater(t, result.ReorderPoint, result.ExpectedLeadTimeDemand)
	assert.GreaterOrEqual(t, result.ReorderQuantity, 1.0)
}

func TestOptimizeRequiresForecastOrObservations(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	_, err := svc.Optimize(context.Background(), "prod-1", nil, nil, OptimizeParams{
		LeadTimeDays:       7,
		HoldingCost:        2,
		OrderCost:          50,
		TargetServiceLevel: 0.95,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestTrainTenantPersistsEveryKind(t *testing.T) {
	repo := &fakeSalesRepo{histories: map[string][]domain.SalesObservation{
		"prod-big":  salesHistory("prod-big", 180),
		"prod-tiny": salesHistory("prod-tiny", 10),
	}}
	svc, _ := newTestService(t, repo, nil)
	ctx := context.Background()

	statuses, err := svc.TrainTenant(ctx, "tenant-1", nil)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	// Statuses come back in product order.
	assert.Equal(t, "prod-big", statuses[0].ProductID)
	assert.Equal(t, "prod-tiny", statuses[1].ProductID)
	for _, st := range statuses {
		assert.True(t, st.Success, "product %s: %s", st.ProductID, st.Error)
	}
	assert.Equal(t, "naive", statuses[1].ModelKind)

	infos, err := svc.ModelsForTenant(ctx, "tenant-1")
	require.NoError(t, err)

	kindsByProduct := map[string]map[string]bool{}
	for _, info := range infos {
		if kindsByProduct[info.ProductID] == nil {
			kindsByProduct[info.ProductID] = map[string]bool{}
		}
		kindsByProduct[info.ProductID][info.Kind] = true
	}
	// The large history trains the full bank; every surviving kind persists.
	assert.True(t, kindsByProduct["prod-big"]["ridge"])
	assert.True(t, kindsByProduct["prod-big"]["random_forest"])
	assert.True(t, kindsByProduct["prod-big"]["gradient_boosting"])
	assert.True(t, kindsByProduct["prod-tiny"]["naive"])
}

func TestTrainTenantWithoutRepository(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	// repo is nil when no database is configured
	_, err := svc.TrainTenant(context.Background(), "tenant-1", nil)
	assert.Error(t, err)
}

func TestTrainTenantHonorsCancellation(t *testing.T) {
	// Several products so workers are mid-training when acquisition fails;
	// TrainTenant must drain them before returning.
	histories := make(map[string][]domain.SalesObservation, 8)
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("prod-%d", i)
		histories[id] = salesHistory(id, 120)
	}
	repo := &fakeSalesRepo{histories: histories}
	svc, _ := newTestService(t, repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.TrainTenant(ctx, "tenant-1", nil)
	assert.Error(t, err)
}
