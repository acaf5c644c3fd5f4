package bigquery

import (
	"context"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/domain"
)

func TestDataset_Table(t *testing.T) {
	ds := Dataset{ProjectID: "proj", DatasetID: "receipts"}
	if got, want := ds.Table("expenses"), "`proj.receipts.expenses`"; got != want {
		t.Errorf("Table = %q, want %q", got, want)
	}
}

func TestExpenseRow_RoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	e := domain.Expense{
		ID:            "exp-1",
		Merchant:      "Cafe",
		Amount:        12.5,
		Currency:      "INR",
		Date:          "2024-03-01",
		Category:      "Food",
		PaymentMethod: "UPI",
		CreatedAt:     created,
	}

	row := NewExpenseRow(e, 3)
	if row.BatchPosition != 3 {
		t.Errorf("BatchPosition = %d, want 3", row.BatchPosition)
	}
	if got := row.Amount.RatString(); got != "25/2" {
		t.Errorf("Amount = %s, want 25/2", got)
	}

	if diff := cmp.Diff(e, row.Expense()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAmountToNumeric(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.1, "1/10"},
		{1234.5, "2469/2"},
		{0, "0"},
		{12.3456789012, "12345678901/1000000000"},
		{0.0000000004, "0"},
		{math.NaN(), "0"},
		{math.Inf(1), "0"},
	}
	for _, tt := range tests {
		if got := amountToNumeric(tt.in).RatString(); got != tt.want {
			t.Errorf("amountToNumeric(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestExpenseRow_DateFallsBackToParsedDay(t *testing.T) {
	row := &ExpenseRow{
		ExpenseID:  "exp-1",
		Amount:     big.NewRat(5, 1),
		ExpenseDay: bigquery.NullDate{Date: civil.Date{Year: 2024, Month: 2, Day: 29}, Valid: true},
	}
	if got := row.Expense().Date; got != "2024-02-29" {
		t.Errorf("Date = %q, want 2024-02-29", got)
	}

	row.ExpenseDate = "sometime"
	if got := row.Expense().Date; got != "sometime" {
		t.Errorf("stored date must win, got %q", got)
	}

	if got := (&ExpenseRow{}).Expense().Amount; got != 0 {
		t.Errorf("nil amount = %v, want 0", got)
	}
}

func TestBuildInsertExpenses(t *testing.T) {
	ds := Dataset{ProjectID: "proj", DatasetID: "receipts"}
	rows := []*ExpenseRow{
		NewExpenseRow(domain.Expense{ID: "a", Amount: 1}, 0),
		NewExpenseRow(domain.Expense{ID: "b", Amount: 2}, 1),
	}

	sql, params := buildInsertExpenses(ds, rows)

	if !strings.HasPrefix(sql, "INSERT INTO `proj.receipts.expenses`") {
		t.Errorf("unexpected statement start: %s", sql)
	}
	for _, want := range []string{"@id_0", "@id_1", "@created_1", "SAFE.PARSE_DATE('%Y-%m-%d', @date_1)"} {
		if !strings.Contains(sql, want) {
			t.Errorf("statement missing %q:\n%s", want, sql)
		}
	}
	if len(params) != 18 {
		t.Fatalf("got %d params, want 18", len(params))
	}
	if params[9].Name != "id_1" || params[9].Value != "b" {
		t.Errorf("params[9] = %+v, want id_1=b", params[9])
	}
}

func TestSnapshotFromEntries(t *testing.T) {
	rows := []CatalogEntryRow{
		{Kind: EntryKindCurrency, Value: "JPY", Position: 1},
		{Kind: EntryKindCategory, Value: "Pets", Position: 0},
		{Kind: EntryKindCurrency, Value: "AED", Position: 0},
		{Kind: EntryKindDisplayCurrency, Value: "AED", Position: 0},
		{Kind: "legacy", Value: "ignored", Position: 0},
	}

	want := catalog.Snapshot{
		CustomCategories: []string{"Pets"},
		CustomCurrencies: []string{"AED", "JPY"},
		DisplayCurrency:  "AED",
	}
	if diff := cmp.Diff(want, SnapshotFromEntries(rows)); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertExpenses_RejectsBatchBeforeQuerying(t *testing.T) {
	ds := Dataset{ProjectID: "proj", DatasetID: "receipts"}
	tests := map[string][]domain.Expense{
		"missing id":         {{ID: "a"}, {}},
		"duplicate in batch":  {{ID: "a"}, {ID: "b"}, {ID: "a"}},
	}
	for name, batch := range tests {
		t.Run(name, func(t *testing.T) {
			// A nil client is never reached: the batch is checked first.
			if err := InsertExpensesWithClient(context.Background(), nil, ds, batch); err == nil {
				t.Error("expected the batch to be rejected")
			}
		})
	}
}
