package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mlindner/invoicescan/internal/config"
	"github.com/mlindner/invoicescan/internal/email"
	"github.com/mlindner/invoicescan/internal/export"
	httpapi "github.com/mlindner/invoicescan/internal/interfaces/http"
	"github.com/mlindner/invoicescan/internal/invoice"
	"github.com/mlindner/invoicescan/internal/processing"
	"github.com/mlindner/invoicescan/internal/repository"
	"github.com/mlindner/invoicescan/internal/storage"
	"github.com/mlindner/invoicescan/internal/worker"
	"github.com/mlindner/invoicescan/pkg/database"
	"github.com/mlindner/invoicescan/pkg/utils"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
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

	logger.Info("Starting invoice processing server",
		zap.Int("port", cfg.Server.Port),
		zap.String("model", cfg.Extractor.Model))

	db, err := database.New(database.Config{
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
	if err := migrator.Run(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	store, err := storage.NewStore(cfg.Storage.BaseDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize file storage", zap.Error(err))
	}
	archiver := storage.NewArchiver(cfg.Storage.ArchiveDir, logger)

	pendingRepo := repository.NewPendingRepository(db, logger)
	invoiceRepo := repository.NewInvoiceRepository(db, logger)
	lookupRepo := repository.NewLookupRepository(db, logger)
	batchRepo := repository.NewBatchRepository(db, logger)
	accountRepo := repository.NewEmailAccountRepository(db, logger)

	reader := invoice.NewPDFReader(logger)
	extractor := invoice.NewExtractor(invoice.ExtractorConfig{
		BaseURL:     cfg.Extractor.BaseURL,
		APIKey:      cfg.Extractor.APIKey,
		Model:       cfg.Extractor.Model,
		Temperature: cfg.Extractor.Temperature,
		Timeout:     cfg.Extractor.Timeout,
	}, reader, logger)

	detector := processing.NewDuplicateDetector(invoiceRepo, logger)
	processor := processing.NewProcessor(store, extractor, detector,
		pendingRepo, batchRepo, cfg.Extractor.Model, logger)
	finalizer := processing.NewFinalizer(db, pendingRepo, invoiceRepo,
		lookupRepo, batchRepo, detector, archiver, logger)

	sessions := email.NewSessionRegistry(cfg.Email.SessionTTL, logger)
	defer sessions.Close()
	importer := email.NewImporter(sessions, processor, accountRepo, logger)

	exporter := export.NewExcelExporter(invoiceRepo, logger)

	workers := worker.NewManager(logger)
	workers.Register(worker.NewBatchProcessor(batchRepo, processor, 2*time.Second, logger))

	handlers := httpapi.NewHandlers(processor, finalizer, detector, importer,
		exporter, pendingRepo, invoiceRepo, lookupRepo, batchRepo, accountRepo, logger)
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxUploadMB:  cfg.Server.MaxUploadMB,
		Debug:        cfg.Logger.Level == "debug",
	}, handlers, logger)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}
	defer workers.StopAll()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}
	logger.Info("Server exited")
}
