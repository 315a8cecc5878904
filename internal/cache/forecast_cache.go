// internal/cache/forecast_cache.go
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockwise/forecast-engine/internal/config"
	"github.com/stockwise/forecast-engine/internal/domain"
)

const (
	forecastKeyPrefix     = "forecast:result"
	forecastScanBatchSize = 100
)

// ForecastRequestKey identifies one forecast request for caching. The
// observation digest folds the full history into the key so a changed
// history never serves a stale forecast.
type ForecastRequestKey struct {
	TenantID        string
	ProductID       string
	HorizonDays     int
	ConfidenceLevel float64
	Observations    []domain.SalesObservation
}

type ForecastCache interface {
	Get(ctx context.Context, key ForecastRequestKey) (*domain.ForecastResult, bool, error)
	Set(ctx context.Context, key ForecastRequestKey, result *domain.ForecastResult) error
	InvalidateProduct(ctx context.Context, productID string) error
	InvalidateAll(ctx context.Context) error
}

type redisForecastCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopForecastCache struct{}

// NewForecastCache returns a redis-backed cache when enabled, otherwise a
// noop that always misses.
func NewForecastCache(cfg config.CacheConfig) (ForecastCache, error) {
	if !cfg.Enabled {
		return &noopForecastCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisForecastCache{client: client, ttl: ttl}, nil
}

func NewNoopForecastCache() ForecastCache {
	return &noopForecastCache{}
}

func (c *redisForecastCache) Get(ctx context.Context, key ForecastRequestKey) (*domain.ForecastResult, bool, error) {
	payload, err := c.client.Get(ctx, buildForecastKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var result domain.ForecastResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("decode forecast cache: %w", err)
	}
	return &result, true, nil
}

func (c *redisForecastCache) Set(ctx context.Context, key ForecastRequestKey, result *domain.ForecastResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode forecast cache: %w", err)
	}
	if err := c.client.Set(ctx, buildForecastKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisForecastCache) InvalidateProduct(ctx context.Context, productID string) error {
	prefix := fmt.Sprintf("%s:%s:", forecastKeyPrefix, productID)
	return deleteKeysWithPrefix(ctx, c.client, prefix, forecastScanBatchSize)
}

func (c *redisForecastCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, forecastKeyPrefix, forecastScanBatchSize)
}

func (n *noopForecastCache) Get(ctx context.Context, key ForecastRequestKey) (*domain.ForecastResult, bool, error) {
	return nil, false, nil
}

func (n *noopForecastCache) Set(ctx context.Context, key ForecastRequestKey, result *domain.ForecastResult) error {
	return nil
}

func (n *noopForecastCache) InvalidateProduct(ctx context.Context, productID string) error {
	return nil
}

func (n *noopForecastCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildForecastKey(key ForecastRequestKey) string {
	return fmt.Sprintf("%s:%s:%s", forecastKeyPrefix, key.ProductID, requestHash(key))
}

func requestHash(key ForecastRequestKey) string {
	h := sha1.New()
	fmt.Fprintf(h, "tenant=%s|horizon=%d|confidence=%.4f|n=%d",
		key.TenantID, key.HorizonDays, key.ConfidenceLevel, len(key.Observations))
	for _, obs := range key.Observations {
		fmt.Fprintf(h, "|%s:%g:%g:%t:%t:%g",
			obs.Date.UTC().Format("2006-01-02"),
			obs.QuantitySold, obs.UnitPrice, obs.IsHoliday, obs.Promotion, obs.EconomicIndex)
	}
	return hex.EncodeToString(h.Sum(nil))
}
