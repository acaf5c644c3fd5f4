package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/extraction"
	"github.com/dvloznov/receipt-tracker/internal/imagestore"
	"github.com/dvloznov/receipt-tracker/internal/logger"
)

// ItemStatus is the outcome of scanning one image.
type ItemStatus string

const (
	// StatusOK means a usable expense was extracted.
	StatusOK ItemStatus = "ok"
	// StatusUnusable means the model answered but nothing was read from the receipt.
	StatusUnusable ItemStatus = "unusable"
	// StatusFailed means fetching or analysis failed, or the image timed out.
	StatusFailed ItemStatus = "failed"
	// StatusSkipped means the batch was cancelled before the image finished.
	StatusSkipped ItemStatus = "skipped"
)

// ItemResult reports one image of a batch.
type ItemResult struct {
	URI     string          `json:"uri"`
	Status  ItemStatus      `json:"status"`
	Expense *domain.Expense `json:"expense,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// BatchResult holds per-image results in input order.
type BatchResult struct {
	Items []ItemResult `json:"items"`
}

// Usable returns the usable expenses in input order.
func (r BatchResult) Usable() []domain.Expense {
	var out []domain.Expense
	for _, item := range r.Items {
		if item.Status == StatusOK && item.Expense != nil {
			out = append(out, *item.Expense)
		}
	}
	return out
}

// Count returns how many items ended with status.
func (r BatchResult) Count(status ItemStatus) int {
	n := 0
	for _, item := range r.Items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// ScanOptions carries the per-batch settings.
type ScanOptions struct {
	// Categories the model may choose from and the normalizer accepts.
	// Empty means the extractable set.
	Categories []string

	// FallbackCurrency is used when the receipt names none.
	FallbackCurrency string
}

// BatchScanner runs the scan pipeline over a batch of images.
type BatchScanner struct {
	source      imagestore.Source
	analyzer    ReceiptAnalyzer
	parallelism int64
	timeout     time.Duration
	normalize   []extraction.Option
}

// ScannerOption configures a BatchScanner.
type ScannerOption func(*BatchScanner)

// WithParallelism sets how many images are processed at once. Values below 1 mean 1.
func WithParallelism(n int) ScannerOption {
	return func(s *BatchScanner) {
		if n < 1 {
			n = 1
		}
		s.parallelism = int64(n)
	}
}

// WithTimeout sets the per-image time limit. Zero or negative keeps the default.
func WithTimeout(d time.Duration) ScannerOption {
	return func(s *BatchScanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithNormalizerOptions passes options to every per-batch normalizer.
func WithNormalizerOptions(opts ...extraction.Option) ScannerOption {
	return func(s *BatchScanner) {
		s.normalize = append(s.normalize, opts...)
	}
}

// NewBatchScanner creates a scanner that processes one image at a time with
// the default timeout unless configured otherwise.
func NewBatchScanner(source imagestore.Source, analyzer ReceiptAnalyzer, opts ...ScannerOption) *BatchScanner {
	s := &BatchScanner{
		source:      source,
		analyzer:    analyzer,
		parallelism: DefaultParallelism,
		timeout:     DefaultScanTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan processes uris and reports every item in input order. Once ctx is
// cancelled no further image starts and the remaining items are skipped.
// Scan never returns an error; failures are reported per item.
func (s *BatchScanner) Scan(ctx context.Context, uris []string, opts ScanOptions) BatchResult {
	normalizerOpts := append([]extraction.Option{}, s.normalize...)
	if len(opts.Categories) > 0 {
		normalizerOpts = append(normalizerOpts, extraction.WithCategories(opts.Categories))
	}
	p := NewReceiptScanPipeline(
		s.source,
		s.analyzer,
		BuildReceiptPrompt(opts.Categories),
		extraction.NewNormalizer(normalizerOpts...),
	)

	results := make([]ItemResult, len(uris))
	for i, uri := range uris {
		results[i] = ItemResult{URI: uri, Status: StatusSkipped}
	}

	sem := semaphore.NewWeighted(s.parallelism)
	var wg sync.WaitGroup

	for i, uri := range uris {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if ctx.Err() != nil {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(i int, uri string) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = s.scanOne(ctx, p, uri, opts.FallbackCurrency)
		}(i, uri)
	}

	wg.Wait()

	log := logger.FromContext(ctx)
	result := BatchResult{Items: results}
	log.Info().
		Int("images", len(uris)).
		Int("ok", result.Count(StatusOK)).
		Int("unusable", result.Count(StatusUnusable)).
		Int("failed", result.Count(StatusFailed)).
		Int("skipped", result.Count(StatusSkipped)).
		Msg("Receipt batch scanned")

	return result
}

func (s *BatchScanner) scanOne(ctx context.Context, p *Pipeline, uri, fallbackCurrency string) ItemResult {
	log := logger.FromContext(ctx).With().Str("uri", uri).Logger()

	itemCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state := &PipelineState{URI: uri, FallbackCurrency: fallbackCurrency}
	if err := p.Execute(itemCtx, state); err != nil {
		// Interrupted by the batch, not by its own deadline.
		if ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Msg("Receipt scan interrupted")
			return ItemResult{URI: uri, Status: StatusSkipped, Error: ctx.Err().Error()}
		}
		log.Error().Err(err).Msg("Receipt scan failed")
		return ItemResult{URI: uri, Status: StatusFailed, Error: err.Error()}
	}

	expense := state.Expense
	if !extraction.IsUsable(expense) {
		log.Warn().Msg("Nothing readable on receipt")
		return ItemResult{URI: uri, Status: StatusUnusable, Expense: &expense}
	}

	log.Debug().Str("expense_id", expense.ID).Str("merchant", expense.Merchant).Msg("Receipt scanned")
	return ItemResult{URI: uri, Status: StatusOK, Expense: &expense}
}
