// cmd/seed/sales.go
package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/stockwise/forecast-engine/internal/domain"
)

func salesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sales",
		Usage: "Load a sales-history CSV into the database",
		Flags: []cli.Flag{
			newDBURLFlag(),
			&cli.StringFlag{
				Name:     "tenant",
				Usage:    "Tenant the sales belong to",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Path to the sales CSV file",
				Required: true,
				EnvVars:  []string{"SALES_CSV_FILE"},
			},
		},
		Action: runSalesSeeder,
	}
}

// Expected columns: product_id, date (YYYY-MM-DD), quantity_sold,
// unit_price, unit_cost, is_holiday, promotion, economic_index. Columns
// after quantity_sold are optional per row.
func runSalesSeeder(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	file, err := os.Open(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to open sales file: %w", err)
	}
	defer file.Close()

	observations, err := parseSalesCSV(file, c.String("tenant"))
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		return fmt.Errorf("no sales rows found in %s", c.String("file"))
	}

	if err := insertObservations(c, db, observations); err != nil {
		return err
	}

	log.Printf("loaded %d sales observations for tenant %s", len(observations), c.String("tenant"))
	return nil
}

func parseSalesCSV(r io.Reader, tenantID string) ([]domain.SalesObservation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"product_id", "date", "quantity_sold"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required CSV column %q", required)
		}
	}

	var observations []domain.SalesObservation
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := time.Parse("2006-01-02", field(record, col, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date: %w", line, err)
		}
		quantity, err := strconv.ParseFloat(field(record, col, "quantity_sold"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid quantity_sold: %w", line, err)
		}

		observations = append(observations, domain.SalesObservation{
			TenantID:      tenantID,
			ProductID:     field(record, col, "product_id"),
			Date:          date,
			QuantitySold:  quantity,
			UnitPrice:     floatField(record, col, "unit_price"),
			UnitCost:      floatField(record, col, "unit_cost"),
			IsHoliday:     boolField(record, col, "is_holiday"),
			Promotion:     boolField(record, col, "promotion"),
			EconomicIndex: floatField(record, col, "economic_index"),
		})
	}
	return observations, nil
}

func field(record []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func floatField(record []string, col map[string]int, name string) float64 {
	v, err := strconv.ParseFloat(field(record, col, name), 64)
	if err != nil {
		return 0
	}
	return v
}

func boolField(record []string, col map[string]int, name string) bool {
	switch strings.ToLower(field(record, col, name)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func insertObservations(c *cli.Context, db *sql.DB, observations []domain.SalesObservation) error {
	tx, err := db.BeginTx(c.Context, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(c.Context, `
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
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, obs := range observations {
		_, err := stmt.ExecContext(
			c.Context,
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

	return tx.Commit()
}
