// Command scan walks a directory of PDFs through extraction and duplicate
// screening without starting the HTTP server. Useful for bulk backfills.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mlindner/invoicescan/internal/config"
	"github.com/mlindner/invoicescan/internal/invoice"
	"github.com/mlindner/invoicescan/internal/processing"
	"github.com/mlindner/invoicescan/internal/repository"
	"github.com/mlindner/invoicescan/internal/storage"
	"github.com/mlindner/invoicescan/pkg/database"
	"github.com/mlindner/invoicescan/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	dir := flag.String("dir", "", "directory of PDF files to process")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: scan -dir <directory> [-config <path>]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
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

	if err := database.NewMigrator(db, logger).Run(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	store, err := storage.NewStore(cfg.Storage.BaseDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize file storage", zap.Error(err))
	}

	pendingRepo := repository.NewPendingRepository(db, logger)
	invoiceRepo := repository.NewInvoiceRepository(db, logger)
	batchRepo := repository.NewBatchRepository(db, logger)

	extractor := invoice.NewExtractor(invoice.ExtractorConfig{
		BaseURL:     cfg.Extractor.BaseURL,
		APIKey:      cfg.Extractor.APIKey,
		Model:       cfg.Extractor.Model,
		Temperature: cfg.Extractor.Temperature,
		Timeout:     cfg.Extractor.Timeout,
	}, invoice.NewPDFReader(logger), logger)

	detector := processing.NewDuplicateDetector(invoiceRepo, logger)
	processor := processing.NewProcessor(store, extractor, detector,
		pendingRepo, batchRepo, cfg.Extractor.Model, logger)

	ctx := context.Background()
	var processed, skipped, duplicates, failures int

	err = filepath.WalkDir(*dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			logger.Error("failed to open file", zap.String("path", path), zap.Error(err))
			failures++
			return nil
		}
		res, err := processor.ProcessUpload(ctx, filepath.Base(path), f)
		f.Close()
		if err != nil {
			logger.Error("failed to process file", zap.String("path", path), zap.Error(err))
			failures++
			return nil
		}

		switch {
		case res.Duplicate:
			duplicates++
			fmt.Printf("DUPLICATE  %s (invoice %s)\n", path, res.InvoiceNumber)
		case res.Skipped:
			skipped++
			fmt.Printf("SKIPPED    %s (not an invoice)\n", path)
		default:
			processed++
			fmt.Printf("PENDING    %s -> #%d\n", path, res.Pending.ID)
		}
		return nil
	})
	if err != nil {
		logger.Fatal("Directory walk failed", zap.Error(err))
	}

	fmt.Printf("\nprocessed=%d skipped=%d duplicates=%d failures=%d\n",
		processed, skipped, duplicates, failures)
}
