// internal/repository/postgres/sales_repository.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/stockwise/forecast-engine/internal/domain"
)

type salesRepository struct {
	db *DB
}

func NewSalesRepository(db *DB) *salesRepository {
	return &salesRepository{db: db}
}

const salesColumns = `
	tenant_id, product_id, date, quantity_sold, unit_price, unit_cost,
	is_holiday, promotion, economic_index
`

func (r *salesRepository) GetObservations(ctx context.Context, tenantID, productID string) ([]domain.SalesObservation, error) {
	query := `
		SELECT ` + salesColumns + `
		FROM sales_observations
		WHERE tenant_id = $1 AND product_id = $2
		ORDER BY date ASC
	`

	var observations []domain.SalesObservation
	if err := sqlx.SelectContext(ctx, r.db, &observations, query, tenantID, productID); err != nil {
		return nil, fmt.Errorf("failed to get observations: %w", err)
	}
	return observations, nil
}

func (r *salesRepository) GetTenantObservations(ctx context.Context, tenantID string, productIDs []string) (map[string][]domain.SalesObservation, error) {
	query := `
		SELECT ` + salesColumns + `
		FROM sales_observations
		WHERE tenant_id = $1
		ORDER BY product_id, date ASC
	`
	args := []interface{}{tenantID}

	if len(productIDs) > 0 {
		var err error
		query = `
			SELECT ` + salesColumns + `
			FROM sales_observations
			WHERE tenant_id = ? AND product_id IN (?)
			ORDER BY product_id, date ASC
		`
		query, args, err = sqlx.In(query, tenantID, productIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to expand product filter: %w", err)
		}
		query = r.db.Rebind(query)
	}

	var observations []domain.SalesObservation
	if err := sqlx.SelectContext(ctx, r.db, &observations, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get tenant observations: %w", err)
	}

	grouped := make(map[string][]domain.SalesObservation)
	for _, obs := range observations {
		grouped[obs.ProductID] = append(grouped[obs.ProductID], obs)
	}
	return grouped, nil
}

func (r *salesRepository) ListProducts(ctx context.Context, tenantID string) ([]string, error) {
	query := `
		SELECT DISTINCT product_id
		FROM sales_observations
		WHERE tenant_id = $1
		ORDER BY product_id
	`

	var products []string
	if err := sqlx.SelectContext(ctx, r.db, &products, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (r *salesRepository) SaveObservations(ctx context.Context, observations []domain.SalesObservation) error {
	if len(observations) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO sales_observations (
				tenant_id, product_id, date, quantity_sold, unit_price,
				unit_cost, is_holiday, promotion, economic_index
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (tenant_id, product_id, date)
			DO UPDATE SET
				quantity_sold = EXCLUDED.quantity_sold,
				unit_price = EXCLUDED.unit_price,
				unit_cost = EXCLUDED.unit_cost,
				is_holiday = EXCLUDED.is_holiday,
				promotion = EXCLUDED.promotion,
				economic_index = EXCLUDED.economic_index
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, obs := range observations {
			_, err := stmt.ExecContext(
				ctx,
				obs.TenantID,
				obs.ProductID,
				obs.Date,
				obs.QuantitySold,
				obs.UnitPrice,
				obs.UnitCost,
				obs.IsHoliday,
				obs.Promotion,
				obs.EconomicIndex,
			)
			if err != nil {
				return fmt.Errorf("failed to insert observation: %w", err)
			}
		}

		return nil
	})
}
