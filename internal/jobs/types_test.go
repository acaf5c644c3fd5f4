package jobs

import (
	"context"
	"testing"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/ledger/inmemory"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/tracker"
)

type stubScanner struct{}

func (stubScanner) Scan(ctx context.Context, uris []string, opts pipeline.ScanOptions) pipeline.BatchResult {
	items := make([]pipeline.ItemResult, len(uris))
	for i, uri := range uris {
		items[i] = pipeline.ItemResult{
			URI:     uri,
			Status:  pipeline.StatusOK,
			Expense: &domain.Expense{ID: uri, Merchant: "Shop " + uri, Amount: 1, Currency: opts.FallbackCurrency},
		}
	}
	return pipeline.BatchResult{Items: items}
}

func TestScanHandler_RecordsResult(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	svc, err := tracker.New(ctx, store, stubScanner{}, "INR")
	if err != nil {
		t.Fatal(err)
	}

	job := &ScanReceiptsJob{JobID: "j1", URIs: []string{"a", "b"}}
	if err := NewScanHandler(svc)(ctx, job); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if job.Result == nil || job.Result.Saved != 2 {
		t.Fatalf("Result = %+v, want 2 saved", job.Result)
	}

	saved, _ := store.ListExpenses(ctx)
	if len(saved) != 2 {
		t.Errorf("ledger has %d expenses, want 2", len(saved))
	}
}

func TestScanHandler_EmptyBatchFails(t *testing.T) {
	ctx := context.Background()
	svc, _ := tracker.New(ctx, inmemory.NewStore(), stubScanner{}, "INR")

	job := &ScanReceiptsJob{JobID: "j1"}
	if err := NewScanHandler(svc)(ctx, job); err == nil {
		t.Error("expected error for a job without images")
	}
}
