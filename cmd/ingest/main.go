package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/app"
	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/imagestore"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
)

// ingest scans every receipt image stored under a Cloud Storage prefix and
// saves the usable expenses as one batch.
func main() {
	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)

	prefix := flag.String("prefix", "", "GCS prefix holding receipt images (e.g. gs://bucket/receipts/2024/03/)")
	limit := flag.Int("limit", 0, "Scan at most this many images (0 for all)")
	dryRun := flag.Bool("dry-run", false, "List the images that would be scanned")
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall time limit")
	flag.Parse()

	if *prefix == "" {
		log.Fatal().Msg("Error: --prefix is required")
	}
	bucket, _, err := imagestore.ParseGCSPrefix(*prefix)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid prefix")
	}

	// Create context with timeout so the command doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg.GCSBucket = bucket
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start receipt tracker")
	}
	defer a.Close()

	uris, err := a.GCS.List(ctx, *prefix)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list receipts")
	}
	if *limit > 0 && len(uris) > *limit {
		uris = uris[:*limit]
	}
	log.Info().Str("prefix", *prefix).Int("images", len(uris)).Msg("Starting ingestion")

	if len(uris) == 0 {
		fmt.Println("No receipt images found.")
		return
	}
	if *dryRun {
		for _, uri := range uris {
			fmt.Println(uri)
		}
		return
	}

	result, err := a.Service.ScanReceipts(ctx, uris)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	log.Info().
		Int("saved", result.Saved).
		Int("failed", countStatus(result.Items, pipeline.StatusFailed)).
		Int("skipped", countStatus(result.Items, pipeline.StatusSkipped)).
		Msg("Ingestion finished")

	if result.Notice != "" {
		fmt.Println(result.Notice)
		return
	}
	fmt.Printf("Ingestion completed: saved %d of %d receipts.\n", result.Saved, len(uris))
}

func countStatus(items []pipeline.ItemResult, status pipeline.ItemStatus) int {
	return pipeline.BatchResult{Items: items}.Count(status)
}
