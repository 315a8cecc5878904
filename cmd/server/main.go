// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stockwise/forecast-engine/internal/api"
	"github.com/stockwise/forecast-engine/internal/cache"
	"github.com/stockwise/forecast-engine/internal/config"
	"github.com/stockwise/forecast-engine/internal/repository"
	"github.com/stockwise/forecast-engine/internal/repository/postgres"
	"github.com/stockwise/forecast-engine/internal/service"
	"github.com/stockwise/forecast-engine/internal/storage"
	"github.com/stockwise/forecast-engine/internal/store"
	"github.com/stockwise/forecast-engine/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.SetLevel(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// The database only backs batch training; inline forecast and optimize
	// requests carry their own history, so a missing database degrades the
	// service instead of stopping it.
	var repo repository.SalesRepository
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("database unavailable, /train disabled")
	} else {
		defer db.Close()
		repo = postgres.NewSalesRepository(db)
	}

	modelStore, err := store.NewFileStore(cfg.App.ModelDir)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to open model store")
	}

	forecastCache, err := cache.NewForecastCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("redis unavailable, forecast caching disabled")
		forecastCache = cache.NewNoopForecastCache()
	}

	var mirror storage.ObjectStorage
	if cfg.Artifact.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := storage.NewMinioClient(ctx, storage.MinioConfig{
			Endpoint:  cfg.Artifact.Endpoint,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		cancel()
		if err != nil {
			logger.Log.Warn().Err(err).Msg("object storage unavailable, artifact mirroring disabled")
		} else {
			mirror = client
		}
	}

	svc := service.NewForecastService(cfg, repo, modelStore, forecastCache, mirror)
	router := api.NewRouter(svc, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
