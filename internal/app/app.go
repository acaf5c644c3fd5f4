// Package app builds the tracker service and its backends from configuration.
// Both the API server and the CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/imagestore"
	infraBQ "github.com/dvloznov/receipt-tracker/internal/infra/bigquery"
	"github.com/dvloznov/receipt-tracker/internal/infra/sqlite"
	"github.com/dvloznov/receipt-tracker/internal/ledger"
	"github.com/dvloznov/receipt-tracker/internal/ledger/inmemory"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/tracker"
)

// App holds the wired service and the resources to release on shutdown.
type App struct {
	Config  *config.Config
	Repo    ledger.Repository
	Service *tracker.Service

	// GCS is nil unless GCS_BUCKET is set.
	GCS *imagestore.GCSStore

	// Scanning is false when no Gemini key is configured.
	Scanning bool

	closers []func() error
}

// New validates cfg and builds the ledger, image sources, scanner and service.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}

	repo, err := OpenLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Repo = repo
	a.closers = append(a.closers, repo.Close)

	router := &imagestore.Router{Local: imagestore.NewLocalStore()}
	if cfg.GCSBucket != "" {
		gcs, err := imagestore.NewGCSStore(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.GCS = gcs
		router.GCS = gcs
		a.closers = append(a.closers, gcs.Close)
	} else {
		log.Info().Msg("GCS_BUCKET not set; gs:// receipts and uploads are disabled")
	}

	var scanner tracker.Scanner
	if cfg.CanScan() {
		analyzer, err := pipeline.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		scanner = pipeline.NewBatchScanner(router, analyzer,
			pipeline.WithParallelism(cfg.ScanParallelism),
			pipeline.WithTimeout(cfg.ScanTimeout),
		)
		a.Scanning = true
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set; receipt scanning is disabled")
	}

	svc, err := tracker.New(ctx, repo, scanner, cfg.DisplayCurrency)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Service = svc

	log.Info().
		Str("ledger", cfg.LedgerBackend).
		Bool("scanning", a.Scanning).
		Bool("gcs", a.GCS != nil).
		Str("display_currency", svc.DisplayCurrency()).
		Msg("Receipt tracker ready")

	return a, nil
}

// OpenLedger returns the repository selected by LEDGER_BACKEND.
func OpenLedger(ctx context.Context, cfg *config.Config) (ledger.Repository, error) {
	switch cfg.LedgerBackend {
	case config.BackendMemory, "":
		return inmemory.NewStore(), nil
	case config.BackendBigQuery:
		repo, err := infraBQ.NewLedger(ctx, cfg.BQProjectID, cfg.BQDataset)
		if err != nil {
			return nil, fmt.Errorf("OpenLedger: %w", err)
		}
		return repo, nil
	case config.BackendSQLite:
		repo, err := sqlite.NewLedger(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("OpenLedger: %w", err)
		}
		return repo, nil
	}
	return nil, fmt.Errorf("OpenLedger: unknown ledger backend %q", cfg.LedgerBackend)
}

// Close releases every opened resource, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
