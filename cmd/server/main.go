package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/fiscion/fiscion/internal/config"
	"github.com/fiscion/fiscion/internal/ocr"
	"github.com/fiscion/fiscion/internal/report"
	"github.com/fiscion/fiscion/internal/repository"
	"github.com/fiscion/fiscion/internal/server"
	"github.com/fiscion/fiscion/internal/storage"
	"github.com/fiscion/fiscion/internal/webhook"
	"github.com/fiscion/fiscion/internal/worker"
	"github.com/fiscion/fiscion/pkg/database"
	"github.com/fiscion/fiscion/pkg/utils"
)

func main() {
	// Local development credentials; ignored when the file is absent.
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Fiscion",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.ReportDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("Failed to create directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	// Repositories
	countryRepo := repository.NewCountryRepository(db.DB, logger)
	invoiceRepo := repository.NewInvoiceRepository(db.DB, logger)
	userRepo := repository.NewUserRepository(db.DB, logger)
	subscriptionRepo := repository.NewSubscriptionRepository(db.DB, logger)
	extractionLogRepo := repository.NewExtractionLogRepository(db.DB, logger)

	// Extraction pipeline
	ctx := context.Background()
	extractor, err := ocr.NewDocumentAIExtractor(ctx, ocr.DocumentAIConfig{
		ProjectID:          cfg.DocumentAI.ProjectID,
		Location:           cfg.DocumentAI.Location,
		InvoiceProcessorID: cfg.DocumentAI.InvoiceProcessorID,
		OCRProcessorID:     cfg.DocumentAI.OCRProcessorID,
		CredentialsFile:    cfg.DocumentAI.CredentialsFile,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize entity extractor", zap.Error(err))
	}
	defer extractor.Close()

	pipeline := ocr.NewPipeline(extractor, countryRepo, logger)

	// Background workers
	processor := worker.NewInvoiceProcessor(pipeline, invoiceRepo, extractionLogRepo, userRepo, logger)
	usageReset := worker.NewUsageResetWorker(userRepo, logger)

	workerManager := worker.NewManager(logger)
	workerManager.Register(processor)
	workerManager.Register(usageReset)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if err := workerManager.StartAll(workerCtx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// HTTP surface
	uploads := storage.NewLocalFileStorage(cfg.Storage.UploadDir, logger)
	exporter := report.NewExcelExporter(logger)
	handlers := server.NewHandlers(invoiceRepo, countryRepo, userRepo, uploads,
		processor, exporter, cfg.Storage.ReportDir, logger)

	verifier := webhook.NewVerifier(cfg.Paddle.WebhookSecret, logger)
	webhookHandler := webhook.NewHandler(verifier, subscriptionRepo, userRepo, logger)

	srv := server.New(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		WebhookPath:  cfg.Paddle.WebhookPath,
	}, handlers, webhookHandler, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerManager.StopAll()
	logger.Info("Server exited")
}
