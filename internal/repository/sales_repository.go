// internal/repository/sales_repository.go
package repository

import (
	"context"

	"github.com/stockwise/forecast-engine/internal/domain"
)

// SalesRepository reads and writes the per-tenant sales history that batch
// training and the seed CLI work from.
type SalesRepository interface {
	GetObservations(ctx context.Context, tenantID, productID string) ([]domain.SalesObservation, error)
	// GetTenantObservations loads history for the given products, or for
	// every product of the tenant when productIDs is empty. Result is keyed
	// by product and ordered by date.
	GetTenantObservations(ctx context.Context, tenantID string, productIDs []string) (map[string][]domain.SalesObservation, error)
	ListProducts(ctx context.Context, tenantID string) ([]string, error)
	SaveObservations(ctx context.Context, observations []domain.SalesObservation) error
}
