package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/timmy/leadimport/internal/config"
	"github.com/timmy/leadimport/internal/csvimport"
	"github.com/timmy/leadimport/internal/domain"
	"github.com/timmy/leadimport/internal/logger"
	"github.com/timmy/leadimport/internal/repository"
	"github.com/timmy/leadimport/internal/service"
	"github.com/timmy/leadimport/internal/storage"
	"github.com/timmy/leadimport/internal/worker"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "leadimport-cli",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	filePath := flag.String("file", "", "CSV file to import")
	userID := flag.String("user", "", "Owner of the upload and the resulting batch")
	coercion := flag.String("coercion", "", "Override import.coercion (null, reject, sentinel)")
	atomic := flag.Bool("atomic", false, "Insert every chunk in one transaction")
	flag.Parse()

	if *filePath == "" || *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *coercion != "" {
		cfg.Import.Coercion = *coercion
	}
	policy, err := csvimport.ParsePolicy(cfg.Import.Coercion)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid coercion policy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	objectStorage, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	fileRepo := repository.NewFileRepository(db)
	fileService := service.NewFileService(fileRepo, objectStorage, appLogger, &service.FileServiceConfig{
		KeyPrefix: cfg.Storage.KeyPrefix,
	})
	leadService := service.NewLeadService(
		repository.NewBatchRepository(db),
		repository.NewLeadRepository(db),
		appLogger,
		service.DefaultPaging,
	)
	scheduler := worker.NewInMemoryScheduler(1)
	importService := service.NewImportService(
		db,
		fileRepo,
		repository.NewJobRepository(db),
		fileService,
		leadService,
		scheduler,
		appLogger,
		&service.ImportConfig{
			ChunkSize: cfg.Import.ChunkSize,
			LogLimit:  cfg.Import.LogLimit,
			Coercion:  policy,
			Atomic:    cfg.Import.Atomic || *atomic,
		},
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
		// ctx is already done, so running jobs are cancelled and marked failed
		scheduler.Shutdown(ctx)
	}()

	f, err := os.Open(*filePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open CSV file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		appLogger.WithError(err).Fatal("Failed to stat CSV file")
	}

	name := filepath.Base(*filePath)
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = "text/csv"
	}

	upload, err := fileService.Store(ctx, f, name, mimeType, info.Size(), *userID)
	f.Close()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to store CSV file")
	}

	job, err := importService.StartImport(ctx, upload.ID, *userID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to start import")
	}
	appLogger.WithFields(logger.Fields{
		logger.FieldFileID: upload.ID,
		logger.FieldJobID:  job.ID,
		"policy":           policy,
	}).Info("Import started")

	scheduler.Wait()

	detail, err := importService.GetImportJob(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load import job")
	}

	// Logs come newest first
	for i := len(detail.Logs) - 1; i >= 0; i-- {
		entry := detail.Logs[i]
		fmt.Printf("%4d  %-7s  %s\n", entry.Sequence, entry.Level, entry.Message)
	}
	fmt.Printf("\njob %s: %s (progress %d%%)\n", detail.ID, detail.Status, detail.Progress)
	if detail.BatchID != nil {
		fmt.Printf("batch: %s\n", *detail.BatchID)
	}

	if detail.Status != domain.JobStatusCompleted {
		if detail.ErrorMessage != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", *detail.ErrorMessage)
		}
		os.Exit(1)
	}
}
