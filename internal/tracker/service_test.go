package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/ledger"
	"github.com/dvloznov/receipt-tracker/internal/ledger/inmemory"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/query"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

// fakeScanner returns a canned batch and records the options it was given.
type fakeScanner struct {
	result  func(uris []string) pipeline.BatchResult
	gotOpts pipeline.ScanOptions
}

func (f *fakeScanner) Scan(ctx context.Context, uris []string, opts pipeline.ScanOptions) pipeline.BatchResult {
	f.gotOpts = opts
	return f.result(uris)
}

// failingRepo wraps a store and fails selected writes.
type failingRepo struct {
	*inmemory.Store
	failInsert      bool
	failSaveCatalog bool
}

func (r *failingRepo) InsertExpenses(ctx context.Context, expenses []domain.Expense) error {
	if r.failInsert {
		return errors.New("insert unavailable")
	}
	return r.Store.InsertExpenses(ctx, expenses)
}

func (r *failingRepo) SaveCatalog(ctx context.Context, snap catalog.Snapshot) error {
	if r.failSaveCatalog {
		return errors.New("save unavailable")
	}
	return r.Store.SaveCatalog(ctx, snap)
}

func newService(t *testing.T, repo ledger.Repository, scanner Scanner) *Service {
	t.Helper()
	n := 0
	s, err := New(context.Background(), repo, scanner, "INR",
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("manual-%d", n) }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func item(uri string, status pipeline.ItemStatus, merchant string, amount float64) pipeline.ItemResult {
	r := pipeline.ItemResult{URI: uri, Status: status}
	if status == pipeline.StatusOK || status == pipeline.StatusUnusable {
		r.Expense = &domain.Expense{ID: "id-" + uri, Merchant: merchant, Amount: amount, Currency: "INR", Date: "2024-03-10", Category: "Food", PaymentMethod: "Card"}
	}
	if status == pipeline.StatusFailed {
		r.Error = "boom"
	}
	return r
}

func TestScanReceipts_SavesUsableOnce(t *testing.T) {
	store := inmemory.NewStore()
	scanner := &fakeScanner{result: func(uris []string) pipeline.BatchResult {
		return pipeline.BatchResult{Items: []pipeline.ItemResult{
			item("a", pipeline.StatusOK, "Cafe", 10),
			item("b", pipeline.StatusUnusable, domain.UnknownMerchant, 0),
			item("c", pipeline.StatusFailed, "", 0),
			item("d", pipeline.StatusOK, "Mart", 20),
		}}
	}}
	s := newService(t, store, scanner)

	res, err := s.ScanReceipts(context.Background(), []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("ScanReceipts: %v", err)
	}
	if res.Saved != 2 || res.Notice != "" || len(res.Items) != 4 {
		t.Errorf("result = %+v", res)
	}

	saved, _ := store.ListExpenses(context.Background())
	if len(saved) != 2 || saved[0].Merchant != "Cafe" || saved[1].Merchant != "Mart" {
		t.Fatalf("saved = %+v", saved)
	}
	if !saved[0].CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", saved[0].CreatedAt, testNow)
	}
}

func TestScanReceipts_PassesCatalogToScanner(t *testing.T) {
	store := inmemory.NewStore()
	scanner := &fakeScanner{result: func(uris []string) pipeline.BatchResult { return pipeline.BatchResult{} }}
	s := newService(t, store, scanner)
	ctx := context.Background()

	if _, err := s.AddCategory(ctx, "Pets"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddCurrency(ctx, "jpy"); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.SetDisplayCurrency(ctx, "JPY"); !ok || err != nil {
		t.Fatalf("SetDisplayCurrency = %v, %v", ok, err)
	}

	_, _ = s.ScanReceipts(ctx, []string{"x"})

	if scanner.gotOpts.FallbackCurrency != "JPY" {
		t.Errorf("fallback currency = %q, want JPY", scanner.gotOpts.FallbackCurrency)
	}
	want := append(append([]string{}, catalog.BuiltinCategories...), "Pets")
	if diff := cmp.Diff(want, scanner.gotOpts.Categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestScanReceipts_NoUsableRecords(t *testing.T) {
	store := inmemory.NewStore()
	scanner := &fakeScanner{result: func(uris []string) pipeline.BatchResult {
		return pipeline.BatchResult{Items: []pipeline.ItemResult{
			item("a", pipeline.StatusUnusable, domain.UnknownMerchant, 0),
			item("b", pipeline.StatusFailed, "", 0),
		}}
	}}
	s := newService(t, store, scanner)

	res, err := s.ScanReceipts(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("ScanReceipts: %v", err)
	}
	if res.Saved != 0 || res.Notice != NoUsableNotice {
		t.Errorf("result = %+v, want notice %q", res, NoUsableNotice)
	}
	if saved, _ := store.ListExpenses(context.Background()); len(saved) != 0 {
		t.Errorf("nothing should be saved, got %d", len(saved))
	}
}

func TestScanReceipts_SavesAfterCancellation(t *testing.T) {
	store := inmemory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	scanner := &fakeScanner{result: func(uris []string) pipeline.BatchResult {
		cancel()
		return pipeline.BatchResult{Items: []pipeline.ItemResult{
			item("a", pipeline.StatusOK, "Cafe", 10),
			item("b", pipeline.StatusSkipped, "", 0),
		}}
	}}
	s := newService(t, store, scanner)

	res, err := s.ScanReceipts(ctx, []string{"a", "b"})
	if err != nil || res.Saved != 1 {
		t.Fatalf("ScanReceipts = %+v, %v", res, err)
	}
}

func TestScanReceipts_Errors(t *testing.T) {
	store := &failingRepo{Store: inmemory.NewStore(), failInsert: true}
	scanner := &fakeScanner{result: func(uris []string) pipeline.BatchResult {
		return pipeline.BatchResult{Items: []pipeline.ItemResult{item("a", pipeline.StatusOK, "Cafe", 10)}}
	}}
	s := newService(t, store, scanner)

	if _, err := s.ScanReceipts(context.Background(), nil); !errors.Is(err, ErrNoImages) {
		t.Errorf("empty batch: got %v, want ErrNoImages", err)
	}
	res, err := s.ScanReceipts(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected insert error")
	}
	if len(res.Items) != 1 {
		t.Error("items should still be reported when saving fails")
	}

	noScanner := newService(t, inmemory.NewStore(), nil)
	if _, err := noScanner.ScanReceipts(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error without a scanner")
	}
}

func TestCreateExpense(t *testing.T) {
	store := inmemory.NewStore()
	s := newService(t, store, nil)
	ctx := context.Background()

	got, err := s.CreateExpense(ctx, ExpenseInput{Merchant: "  Cafe ", Amount: 12.5, Category: "food"})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	want := domain.Expense{
		ID:            "manual-1",
		Merchant:      "Cafe",
		Amount:        12.5,
		Currency:      "INR",
		Date:          "2024-03-15",
		Category:      "Food",
		PaymentMethod: "Card",
		CreatedAt:     testNow,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}

	stored, err := store.GetExpense(ctx, "manual-1")
	if err != nil || stored.Merchant != "Cafe" {
		t.Errorf("stored = %+v, %v", stored, err)
	}
}

func TestCreateExpense_Validation(t *testing.T) {
	s := newService(t, inmemory.NewStore(), nil)

	tests := []struct {
		name string
		in   ExpenseInput
	}{
		{"blank merchant", ExpenseInput{Merchant: "  ", Amount: 1}},
		{"negative amount", ExpenseInput{Merchant: "A", Amount: -1}},
		{"nan amount", ExpenseInput{Merchant: "A", Amount: math.NaN()}},
		{"bad date", ExpenseInput{Merchant: "A", Amount: 1, Date: "15/03/2024"}},
		{"unknown category", ExpenseInput{Merchant: "A", Amount: 1, Category: "Yachts"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateExpense(context.Background(), tt.in); !errors.Is(err, ErrInvalidExpense) {
				t.Errorf("got %v, want ErrInvalidExpense", err)
			}
		})
	}
}

func TestReplaceAndDeleteExpense(t *testing.T) {
	store := inmemory.NewStore()
	s := newService(t, store, nil)
	ctx := context.Background()

	created, _ := s.CreateExpense(ctx, ExpenseInput{Merchant: "Cafe", Amount: 10})

	replaced, err := s.ReplaceExpense(ctx, created.ID, ExpenseInput{
		Merchant: "Bistro", Amount: 15, Currency: "usd", Date: "2024-03-01", Category: "Entertainment", PaymentMethod: "UPI",
	})
	if err != nil {
		t.Fatalf("ReplaceExpense: %v", err)
	}
	if replaced.ID != created.ID || !replaced.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("replace must keep id and creation time: %+v", replaced)
	}
	if replaced.Currency != "USD" || replaced.Merchant != "Bistro" {
		t.Errorf("replaced = %+v", replaced)
	}

	if _, err := s.ReplaceExpense(ctx, "missing", ExpenseInput{Merchant: "x"}); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("replace unknown: got %v, want ErrNotFound", err)
	}
	if _, err := s.ReplaceExpense(ctx, created.ID, ExpenseInput{}); !errors.Is(err, ErrInvalidExpense) {
		t.Errorf("replace invalid: got %v, want ErrInvalidExpense", err)
	}

	if err := s.DeleteExpense(ctx, created.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if err := s.DeleteExpense(ctx, created.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestReplaceExpense_KeepsScannedValues(t *testing.T) {
	store := inmemory.NewStore()
	scanned := item("a.jpg", pipeline.StatusOK, "Cafe", 12)
	scanned.Expense.Date = "12/03/2024"
	scanned.Expense.Category = "Pets"
	s := newService(t, store, &fakeScanner{result: func([]string) pipeline.BatchResult {
		return pipeline.BatchResult{Items: []pipeline.ItemResult{scanned}}
	}})
	ctx := context.Background()

	if res, err := s.ScanReceipts(ctx, []string{"a.jpg"}); err != nil || res.Saved != 1 {
		t.Fatalf("ScanReceipts = %+v, %v", res, err)
	}

	edited, err := s.ReplaceExpense(ctx, "id-a.jpg", ExpenseInput{
		Merchant: "Corner Cafe", Amount: 12, Currency: "INR", Date: "12/03/2024", Category: "Pets", PaymentMethod: "Card",
	})
	if err != nil {
		t.Fatalf("editing the merchant of a scanned record: %v", err)
	}
	if edited.Date != "12/03/2024" || edited.Category != "Pets" || edited.Merchant != "Corner Cafe" {
		t.Errorf("edited = %+v", edited)
	}

	if _, err := s.ReplaceExpense(ctx, "id-a.jpg", ExpenseInput{Merchant: "Cafe", Date: "13/03/2024"}); !errors.Is(err, ErrInvalidExpense) {
		t.Errorf("changed invalid date: got %v, want ErrInvalidExpense", err)
	}
	if _, err := s.CreateExpense(ctx, ExpenseInput{Merchant: "Cafe", Date: "12/03/2024"}); !errors.Is(err, ErrInvalidExpense) {
		t.Errorf("create with invalid date: got %v, want ErrInvalidExpense", err)
	}
}

func TestQuery(t *testing.T) {
	store := inmemory.NewStore()
	s := newService(t, store, nil)
	ctx := context.Background()

	for _, in := range []ExpenseInput{
		{Merchant: "Old", Amount: 5, Date: "2024-01-10", Category: "Food"},
		{Merchant: "New", Amount: 7, Date: "2024-03-02", Category: "Food"},
		{Merchant: "Trip", Amount: 100, Date: "2024-03-05", Category: "Travel"},
	} {
		if _, err := s.CreateExpense(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	res, err := s.Query(ctx, query.Criteria{Range: query.DateRange{Kind: query.ThisMonth}, Category: "Food"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Count != 1 || res.Total != 7 || res.Expenses[0].Merchant != "New" {
		t.Errorf("result = %+v", res)
	}
}

func TestCatalogPersistence(t *testing.T) {
	store := inmemory.NewStore()
	s := newService(t, store, nil)
	ctx := context.Background()

	if out, _ := s.AddCategory(ctx, "Pets"); out != catalog.Added {
		t.Errorf("AddCategory = %q", out)
	}
	if out, _ := s.AddCategory(ctx, "Pets"); out != catalog.AlreadyExists {
		t.Errorf("second AddCategory = %q", out)
	}
	if out, _ := s.AddCurrency(ctx, "aed"); out != catalog.Added {
		t.Errorf("AddCurrency = %q", out)
	}
	if ok, _ := s.SetDisplayCurrency(ctx, "XYZ"); ok {
		t.Error("unknown display currency must be rejected")
	}

	// A second service over the same store sees the additions.
	again := newService(t, store, nil)
	view := again.Catalog()
	if !again.catalog.HasCategory("Pets") || !again.catalog.HasCurrency("AED") {
		t.Errorf("catalog not restored: %+v", view)
	}
	for _, code := range view.CurrencySuggestions {
		if code == "AED" {
			t.Error("suggestions must exclude added currencies")
		}
	}

	if out, _ := again.RemoveCategory(ctx, "Food"); out != catalog.Builtin {
		t.Errorf("RemoveCategory builtin = %q", out)
	}
	if out, _ := again.RemoveCurrency(ctx, "AED"); out != catalog.Removed {
		t.Errorf("RemoveCurrency = %q", out)
	}
}

func TestCatalogSaveFailureRollsBack(t *testing.T) {
	repo := &failingRepo{Store: inmemory.NewStore(), failSaveCatalog: true}
	s := newService(t, repo, nil)

	if _, err := s.AddCategory(context.Background(), "Pets"); err == nil {
		t.Fatal("expected save error")
	}
	if s.catalog.HasCategory("Pets") {
		t.Error("failed save must roll the category back")
	}
}

func TestNew_DefaultDisplayCurrency(t *testing.T) {
	store := inmemory.NewStore()
	s, err := New(context.Background(), store, nil, "usd")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.DisplayCurrency(); got != "USD" {
		t.Errorf("display = %q, want USD", got)
	}

	unknown, _ := New(context.Background(), store, nil, "XYZ")
	if got := unknown.DisplayCurrency(); got != domain.DefaultCurrency {
		t.Errorf("display = %q, want %s", got, domain.DefaultCurrency)
	}
}
