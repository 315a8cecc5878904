// cmd/seed/train.go
package main

import (
	"fmt"
	"log"

	"github.com/urfave/cli/v2"

	"github.com/stockwise/forecast-engine/internal/config"
	"github.com/stockwise/forecast-engine/internal/repository/postgres"
	"github.com/stockwise/forecast-engine/internal/service"
	"github.com/stockwise/forecast-engine/internal/store"
)

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "Run batch training for a tenant against the database (DB_* env config)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tenant",
				Usage:    "Tenant to train models for",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "product",
				Usage: "Limit training to specific product IDs (repeatable)",
			},
		},
		Action: runTrainer,
	}
}

func runTrainer(c *cli.Context) error {
	cfg := config.Load()

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	modelStore, err := store.NewFileStore(cfg.App.ModelDir)
	if err != nil {
		return fmt.Errorf("failed to open model store: %w", err)
	}

	svc := service.NewForecastService(cfg, postgres.NewSalesRepository(db), modelStore, nil, nil)

	tenantID := c.String("tenant")
	statuses, err := svc.TrainTenant(c.Context, tenantID, c.StringSlice("product"))
	if err != nil {
		return err
	}

	trained := 0
	for _, st := range statuses {
		if st.Success {
			trained++
			log.Printf("trained %s/%s: %s (mae=%.3f r2=%.3f, %d observations)",
				tenantID, st.ProductID, st.ModelKind, st.Metrics.MAE, st.Metrics.R2, st.Observations)
		} else {
			log.Printf("failed %s/%s: %s", tenantID, st.ProductID, st.Error)
		}
	}
	log.Printf("training complete: %d trained, %d failed", trained, len(statuses)-trained)
	return nil
}
