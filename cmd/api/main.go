package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/leadimport/internal/api"
	"github.com/timmy/leadimport/internal/config"
	"github.com/timmy/leadimport/internal/csvimport"
	"github.com/timmy/leadimport/internal/logger"
	"github.com/timmy/leadimport/internal/repository"
	"github.com/timmy/leadimport/internal/service"
	"github.com/timmy/leadimport/internal/storage"
	"github.com/timmy/leadimport/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: cfg.Logging.ServiceName,
		Environment: cfg.Logging.Environment,
		File:        cfg.Logging.File,
		FileOnly:    cfg.Logging.FileOnly,
		MaxSize:     cfg.Logging.MaxSize,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAge:      cfg.Logging.MaxAge,
		Compress:    cfg.Logging.Compress,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx := context.Background()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	objectStorage, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	policy, err := csvimport.ParsePolicy(cfg.Import.Coercion)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid import configuration")
	}

	paging := service.Paging{
		DefaultPageSize: cfg.Import.DefaultPageSize,
		MaxPageSize:     cfg.Import.MaxPageSize,
	}

	fileRepo := repository.NewFileRepository(db)
	jobRepo := repository.NewJobRepository(db)

	fileService := service.NewFileService(fileRepo, objectStorage, appLogger, &service.FileServiceConfig{
		KeyPrefix: cfg.Storage.KeyPrefix,
		Paging:    paging,
	})
	leadService := service.NewLeadService(
		repository.NewBatchRepository(db),
		repository.NewLeadRepository(db),
		appLogger,
		paging,
	)

	scheduler := worker.NewInMemoryScheduler(cfg.Import.MaxConcurrentJobs)

	importService := service.NewImportService(
		db,
		fileRepo,
		jobRepo,
		fileService,
		leadService,
		scheduler,
		appLogger,
		&service.ImportConfig{
			ChunkSize: cfg.Import.ChunkSize,
			LogLimit:  cfg.Import.LogLimit,
			Coercion:  policy,
			Atomic:    cfg.Import.Atomic,
			Paging:    paging,
		},
	)

	router := api.SetupRouter(&api.Services{
		DB:      db,
		Files:   fileService,
		Leads:   leadService,
		Imports: importService,
	}, &cfg.Server, cfg.Import.MaxUploadBytes(), appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":     cfg.Server.Port,
			"mode":     cfg.Server.Mode,
			"coercion": policy,
			"atomic":   cfg.Import.Atomic,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop accepting imports before draining the ones already running
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()
	if err := scheduler.Shutdown(drainCtx); err != nil {
		appLogger.WithError(err).Warn("Import jobs cancelled before completion")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	appLogger.Info("Server exited")
}
